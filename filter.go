package main

import (
	"github.com/apex/log"
)

// FilterVoice returns a copy of the score reduced to a single staff holding
// only the notes of one voice. The staff index is 1-based. The input score
// is never modified.
//
// Spanners attached to the first staff are captured before anything is
// removed and reattached to the surviving staff, so slurs and wedges keep
// pointing at the notes that survive. Spanners whose notes were all removed
// stay attached but inert.
//
// A voice ID that matches nothing is not an error: the result holds a staff
// with no notes.
func FilterVoice(score *Score, staffIndex int, voiceID string) (*Score, error) {
	if staffIndex < 1 || staffIndex > len(score.Parts) {
		return nil, &OutOfRangeError{Index: staffIndex, Count: len(score.Parts)}
	}

	filtered := score.Clone()

	captured := append([]*Spanner(nil), filtered.Parts[0].Spanners...)

	keep := filtered.Parts[staffIndex-1]
	filtered.Parts = []*Part{keep}

	for _, m := range keep.Measures {
		voices := m.Voices[:0]
		for _, v := range m.Voices {
			if v.ID == voiceID {
				voices = append(voices, v)
			}
		}
		m.Voices = voices
	}

	attachSpanners(keep, captured)

	for _, n := range keep.Notes() {
		n.Stem = ""
	}

	log.WithFields(log.Fields{
		"staff":    staffIndex,
		"voice_id": voiceID,
		"notes":    keep.NoteCount(),
		"spanners": len(keep.LiveSpanners()),
	}).Debug("Filtered voice")

	return filtered, nil
}

// attachSpanners adds spanners to the part, skipping ones already attached
func attachSpanners(p *Part, spanners []*Spanner) {
	attached := make(map[*Spanner]bool, len(p.Spanners))
	for _, sp := range p.Spanners {
		attached[sp] = true
	}
	for _, sp := range spanners {
		if !attached[sp] {
			p.Spanners = append(p.Spanners, sp)
			attached[sp] = true
		}
	}
}
