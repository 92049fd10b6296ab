package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// VoiceMapping ties a staff/voice pair of the combined score to a named part
type VoiceMapping struct {
	Staff     int    `yaml:"staff"` // 1-based staff (part) index
	VoiceID   string `yaml:"voice"` // Voice identifier within the staff
	VoiceName string `yaml:"name"`  // e.g. "Soprano"
}

// DefaultVoiceMappings is the canonical SATB layout: two voices per staff,
// with voices 1-4 on the first staff and 5-8 on the second
var DefaultVoiceMappings = []VoiceMapping{
	{Staff: 1, VoiceID: "1", VoiceName: "Soprano"},
	{Staff: 1, VoiceID: "2", VoiceName: "Alto"},
	{Staff: 2, VoiceID: "5", VoiceName: "Tenor"},
	{Staff: 2, VoiceID: "6", VoiceName: "Bass"},
}

// ExtractedVoice is one voice pulled out of a combined score
type ExtractedVoice struct {
	Mapping VoiceMapping
	Score   *Score
}

// ExtractVoice filters the score down to the mapped voice, propagates lyrics
// from the reference voice (if any) and names the resulting part after the
// voice
func ExtractVoice(score *Score, mapping VoiceMapping, reference *Score) (*Score, error) {
	voice, err := FilterVoice(score, mapping.Staff, mapping.VoiceID)
	if err != nil {
		return nil, errors.Wrapf(err, "extracting %s", mapping.VoiceName)
	}

	PropagateLyrics(voice, reference)

	part := voice.Parts[0]
	part.Name = mapping.VoiceName
	part.Abbreviation = mapping.VoiceName

	if part.NoteCount() == 0 {
		log.WithFields(log.Fields{
			"voice":    mapping.VoiceName,
			"staff":    mapping.Staff,
			"voice_id": mapping.VoiceID,
		}).Warn("Voice matched no notes, writing an empty staff")
	}

	return voice, nil
}

// extractAll extracts the first mapping without a reference, then the rest
// concurrently using the first as the lyric reference. The original score and
// the reference are only read once the reference is complete.
//
// onError decides what happens to a failure after the first voice: returning
// nil skips that voice, returning an error aborts the batch.
func extractAll(score *Score, mappings []VoiceMapping, onError func(VoiceMapping, error) error) ([]*ExtractedVoice, error) {
	if len(mappings) == 0 {
		return nil, errors.New("no voice mappings given")
	}

	reference, err := ExtractVoice(score, mappings[0], nil)
	if err != nil {
		return nil, errors.Wrap(err, "extracting reference voice")
	}

	results := make([]*ExtractedVoice, len(mappings))
	results[0] = &ExtractedVoice{Mapping: mappings[0], Score: reference}

	var g errgroup.Group
	for i, mapping := range mappings[1:] {
		i, mapping := i+1, mapping
		g.Go(func() error {
			voice, err := ExtractVoice(score, mapping, reference)
			if err != nil {
				return onError(mapping, err)
			}
			results[i] = &ExtractedVoice{Mapping: mapping, Score: voice}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	extracted := results[:0]
	for _, r := range results {
		if r != nil {
			extracted = append(extracted, r)
		}
	}
	return extracted, nil
}

// CreateFourPartScore converts a combined SATB score into a new score with
// one part per mapped voice. Only title and composer are copied from the
// original; the movement name is cleared. Any extraction failure is fatal,
// since a missing voice would leave the score incomplete.
func CreateFourPartScore(score *Score, mappings []VoiceMapping) (*Score, error) {
	voices, err := extractAll(score, mappings, func(m VoiceMapping, err error) error {
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &Score{
		Title:     score.Title,
		Composer:  score.Composer,
		Divisions: score.Divisions,
	}

	for i, v := range voices {
		part := v.Score.Parts[0]
		part.ID = fmt.Sprintf("P%d", i+1)
		result.Parts = append(result.Parts, part)
	}

	return result, nil
}

// ExtractAllVoicesSeparately extracts every mapped voice into its own score.
// A failure on the first (reference) voice aborts the batch; failures on the
// remaining voices are logged and the voice is skipped.
func ExtractAllVoicesSeparately(score *Score, mappings []VoiceMapping) ([]*ExtractedVoice, error) {
	return extractAll(score, mappings, func(m VoiceMapping, err error) error {
		log.WithError(err).WithFields(log.Fields{
			"voice":    m.VoiceName,
			"staff":    m.Staff,
			"voice_id": m.VoiceID,
		}).Error("Skipping voice")
		return nil
	})
}

// OutputPath builds the output filename for a label by inserting "-<label>"
// before the extension, in the same directory as the input
func OutputPath(inputPath string, label string) string {
	ext := filepath.Ext(inputPath)
	stem := strings.TrimSuffix(filepath.Base(inputPath), ext)
	return filepath.Join(filepath.Dir(inputPath), stem+"-"+label+ext)
}
