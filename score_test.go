package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneIsDeep(t *testing.T) {
	f := newSATBFixture()
	clone := f.Score.Clone()

	require.Len(t, clone.Parts, 2)
	assert.Equal(t, f.Score.Title, clone.Title)
	assert.Equal(t, f.Score.Divisions, clone.Divisions)

	copied := noteByID(clone.Parts[0], f.S1)
	require.NotNil(t, copied)
	assert.NotSame(t, f.S1, copied)

	copied.Lyrics[0].Text = "changed"
	copied.Pitches[0].Octave = 2
	copied.Stem = ""
	assert.Equal(t, "Joy", f.S1.Lyrics[0].Text)
	assert.Equal(t, 5, f.S1.Pitches[0].Octave)
	assert.Equal(t, "up", f.S1.Stem)

	*clone.Parts[0].Measures[0].Attributes.KeyFifths = 3
	assert.Equal(t, 0, *f.Score.Parts[0].Measures[0].Attributes.KeyFifths)

	clone.Parts[0].Spanners[0].Members = nil
	assert.Len(t, f.SopranoSlur.Members, 2)
}

func TestClonePreservesIdentity(t *testing.T) {
	f := newSATBFixture()
	clone := f.Score.Clone()

	assert.Equal(t, f.Score.Parts[0].Notes()[0].ID, clone.Parts[0].Notes()[0].ID)
	assert.Equal(t, f.SopranoSlur.ID, clone.Parts[0].Spanners[0].ID)
	assert.Len(t, clone.Parts[0].LiveSpanners(), 2)
}

func TestNotesOrderedWithoutRests(t *testing.T) {
	f := newSATBFixture()
	upper := f.Score.Parts[0]

	assert.Equal(t, []int{0, 0, 4, 4, 8, 8, 12, 12, 16, 16}, noteOffsets(upper))
	assert.Equal(t, 10, upper.NoteCount())
	assert.Equal(t, 16, f.Score.NoteCount())

	for _, n := range upper.Notes() {
		assert.False(t, n.Rest)
	}
}

func TestSpannerSites(t *testing.T) {
	f := newSATBFixture()
	sites := f.Score.Parts[0].SpannerSites()

	assert.Equal(t, []*Spanner{f.SopranoSlur, f.Crescendo}, sites[f.S1.ID])
	assert.Equal(t, []*Spanner{f.Crescendo}, sites[f.A2.ID])
	assert.Empty(t, sites[f.S3.ID])

	assert.Equal(t, 1, f.Crescendo.Position(f.A1.ID))
	assert.Equal(t, -1, f.Crescendo.Position(f.S3.ID))
}

func TestLiveSpanners(t *testing.T) {
	f := newSATBFixture()
	p := f.Score.Parts[0]

	p.Measures[0].Voices = p.Measures[0].Voices[1:]
	live := p.LiveSpanners()

	require.Len(t, live, 1)
	assert.Same(t, f.Crescendo, live[0])
	assert.Len(t, p.Spanners, 2)
}
