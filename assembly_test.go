package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFourPartScore(t *testing.T) {
	f := newSATBFixture()

	combined, err := CreateFourPartScore(f.Score, DefaultVoiceMappings)
	require.NoError(t, err)

	assert.Equal(t, "Ode", combined.Title)
	assert.Equal(t, "Anonymous", combined.Composer)
	assert.Empty(t, combined.MovementName)
	assert.Equal(t, 4, combined.Divisions)

	require.Len(t, combined.Parts, 4)
	for i, name := range []string{"Soprano", "Alto", "Tenor", "Bass"} {
		p := combined.Parts[i]
		assert.Equal(t, name, p.Name)
		assert.Equal(t, name, p.Abbreviation)
		assert.Equal(t, []string{"P1", "P2", "P3", "P4"}[i], p.ID)
	}

	assert.Equal(t, []string{"Joy", "ful", "noise", "", "Lord"}, lyricTexts(combined.Parts[1]))
	assert.Equal(t, []string{"Joy", "ful", "noise", "Lord"}, lyricTexts(combined.Parts[2]))
	assert.Equal(t, []string{"Joy", ""}, lyricTexts(combined.Parts[3]))

	// the source score is left alone
	assert.Len(t, f.Score.Parts, 2)
	assert.Equal(t, "First movement", f.Score.MovementName)
	assert.Empty(t, f.A1.Lyrics)
}

func TestCreateFourPartScoreVoiceCompleteness(t *testing.T) {
	f := newSATBFixture()

	combined, err := CreateFourPartScore(f.Score, DefaultVoiceMappings)
	require.NoError(t, err)

	expected := [][]*Note{
		{f.S1, f.S2, f.S3, f.S4, f.S5},
		{f.A1, f.A2, f.A3, f.A4, f.A5},
		{f.T1, f.T2, f.T3, f.T4},
		{f.B1, f.B2},
	}

	for i, notes := range expected {
		p := combined.Parts[i]
		assert.Equal(t, len(notes), p.NoteCount(), p.Name)
		for _, n := range notes {
			assert.NotNil(t, noteByID(p, n), "%s is missing the note at %d", p.Name, n.Offset)
		}
	}
}

func TestCreateFourPartScoreFailsOnAnyVoice(t *testing.T) {
	f := newSATBFixture()

	mappings := append([]VoiceMapping(nil), DefaultVoiceMappings...)
	mappings[2] = VoiceMapping{Staff: 4, VoiceID: "5", VoiceName: "Tenor"}

	_, err := CreateFourPartScore(f.Score, mappings)
	require.Error(t, err)

	var rangeErr *OutOfRangeError
	require.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, 4, rangeErr.Index)
}

func TestExtractAllVoicesSeparately(t *testing.T) {
	f := newSATBFixture()

	voices, err := ExtractAllVoicesSeparately(f.Score, DefaultVoiceMappings)
	require.NoError(t, err)
	require.Len(t, voices, 4)

	for i, v := range voices {
		assert.Equal(t, DefaultVoiceMappings[i], v.Mapping)
		require.Len(t, v.Score.Parts, 1)
		assert.Equal(t, v.Mapping.VoiceName, v.Score.Parts[0].Name)
		assert.Equal(t, "First movement", v.Score.MovementName)
	}

	assert.Equal(t, []string{"Joy", "ful", "noise", "Lord"}, lyricTexts(voices[2].Score.Parts[0]))
}

func TestExtractAllVoicesSeparatelySkipsBadVoice(t *testing.T) {
	f := newSATBFixture()
	logs := captureLogs(t)

	mappings := append([]VoiceMapping(nil), DefaultVoiceMappings...)
	mappings[1] = VoiceMapping{Staff: 3, VoiceID: "2", VoiceName: "Alto"}

	voices, err := ExtractAllVoicesSeparately(f.Score, mappings)
	require.NoError(t, err)
	require.Len(t, voices, 3)

	var names []string
	for _, v := range voices {
		names = append(names, v.Mapping.VoiceName)
	}
	assert.Equal(t, []string{"Soprano", "Tenor", "Bass"}, names)

	entries := findEntries(logs, "Skipping voice")
	require.Len(t, entries, 1)
	assert.Equal(t, log.ErrorLevel, entries[0].Level)
	assert.Equal(t, "Alto", entries[0].Fields["voice"])
}

func TestExtractAllVoicesSeparatelyReferenceFailureIsFatal(t *testing.T) {
	f := newSATBFixture()

	mappings := append([]VoiceMapping(nil), DefaultVoiceMappings...)
	mappings[0] = VoiceMapping{Staff: 7, VoiceID: "1", VoiceName: "Soprano"}

	voices, err := ExtractAllVoicesSeparately(f.Score, mappings)
	require.Error(t, err)
	assert.Nil(t, voices)

	var rangeErr *OutOfRangeError
	assert.True(t, errors.As(err, &rangeErr))
}

func TestExtractVoiceWarnsOnEmptyResult(t *testing.T) {
	f := newSATBFixture()
	logs := captureLogs(t)

	voice, err := ExtractVoice(f.Score, VoiceMapping{Staff: 2, VoiceID: "7", VoiceName: "Baritone"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, voice.Parts[0].NoteCount())

	entries := findEntries(logs, "Voice matched no notes, writing an empty staff")
	require.Len(t, entries, 1)
	assert.Equal(t, log.WarnLevel, entries[0].Level)
	assert.Equal(t, "Baritone", entries[0].Fields["voice"])
	assert.Equal(t, 2, entries[0].Fields["staff"])
	assert.Equal(t, "7", entries[0].Fields["voice_id"])
}

func TestExtractAllRequiresMappings(t *testing.T) {
	f := newSATBFixture()

	_, err := ExtractAllVoicesSeparately(f.Score, nil)
	assert.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	dir := filepath.Join("scores", "choir")

	tests := []struct {
		input string
		label string
		want  string
	}{
		{filepath.Join(dir, "ode.musicxml"), "Soprano", filepath.Join(dir, "ode-Soprano.musicxml")},
		{filepath.Join(dir, "ode.xml"), "4part", filepath.Join(dir, "ode-4part.xml")},
		{"ode.mxl", "Bass", "ode-Bass.mxl"},
		{"my.song.xml", "Alto", "my.song-Alto.xml"},
		{"noext", "Tenor", "noext-Tenor"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, OutputPath(tt.input, tt.label))
	}
}

func TestCreateFourPartScoreFromGrandStaff(t *testing.T) {
	score, err := ParseMusicXML(strings.NewReader(grandStaffMusicXML))
	require.NoError(t, err)

	combined, err := CreateFourPartScore(score, DefaultVoiceMappings)
	require.NoError(t, err)

	require.Len(t, combined.Parts, 4)
	assert.Equal(t, []string{"Ho", "san"}, lyricTexts(combined.Parts[0]))
	assert.Equal(t, []string{"Ho", "san"}, lyricTexts(combined.Parts[1]))
	assert.Equal(t, []string{"Ho", "san"}, lyricTexts(combined.Parts[2]))
	assert.Equal(t, []string{"Ho"}, lyricTexts(combined.Parts[3]))
	assert.Equal(t, "F", combined.Parts[3].Measures[0].Attributes.Clefs[0].Sign)

	voices, err := ExtractAllVoicesSeparately(score, DefaultVoiceMappings)
	require.NoError(t, err)
	require.Len(t, voices, 4)
	for _, v := range voices {
		assert.NotZero(t, v.Score.NoteCount(), v.Mapping.VoiceName)
	}
}
