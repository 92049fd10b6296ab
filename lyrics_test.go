package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLyricFragment(t *testing.T) {
	assert.Equal(t, "Joy-", lyricFragment(Lyric{Text: "Joy", Syllabic: SyllabicBegin}))
	assert.Equal(t, "o-", lyricFragment(Lyric{Text: "o-", Syllabic: SyllabicMiddle}))
	assert.Equal(t, "ful", lyricFragment(Lyric{Text: "ful", Syllabic: SyllabicEnd}))
	assert.Equal(t, "noise", lyricFragment(Lyric{Text: " noise ", Syllabic: SyllabicSingle}))
	assert.Equal(t, "", lyricFragment(Lyric{Text: "  ", Syllabic: SyllabicBegin}))
}

func TestJoinLyricFragments(t *testing.T) {
	tests := []struct {
		name      string
		fragments []string
		want      string
	}{
		{"single words", []string{"Make", "a", "noise"}, "Make a noise"},
		{"two syllables", []string{"Joy-", "ful"}, "Joyful"},
		{"leading hyphen", []string{"Joy-", "-ful", "noise"}, "Joyful noise"},
		{"melisma marker", []string{"Glo-", "_", "ri-", "a"}, "Gloria"},
		{"unfinished word", []string{"A-", "men-"}, "Amen"},
		{"blanks skipped", []string{"", "Lord", " "}, "Lord"},
		{"nothing", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, joinLyricFragments(tt.fragments))
		})
	}
}

func TestPartLyricText(t *testing.T) {
	f := newSATBFixture()

	soprano, err := FilterVoice(f.Score, 1, "1")
	assert.NoError(t, err)

	// authored as separate words until the slur joins Joy and ful
	assert.Equal(t, "Joy ful noise Lord", soprano.Parts[0].LyricText())

	PropagateLyrics(soprano, nil)
	assert.Equal(t, "Joyful noise Lord", soprano.Parts[0].LyricText())
}
