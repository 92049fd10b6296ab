package main

import (
	"github.com/apex/log"
)

// PropagateLyrics fixes up the lyrics of an extracted voice in place.
//
// Every note that already has a lyric gets the syllabic tag of its first
// lyric recomputed from its tie and slur membership. Then, when a reference
// voice is given, notes with no lyric text in any verse that start a sung
// event (untied, or the start of a tie) receive a copy of the lyrics of the
// first reference note sounding at exactly the same offset.
//
// Only the first lyric entry of a note is retagged; later verses are left as
// authored. Notes whose offset has no reference note, or whose reference
// note has no lyric, are left without one.
func PropagateLyrics(voice *Score, reference *Score) {
	for _, p := range voice.Parts {
		retagLyrics(p)
	}

	if reference == nil || len(reference.Parts) == 0 {
		return
	}

	lookup := notesByOffset(reference.Parts[0])

	for _, p := range voice.Parts {
		timeline := NewTimeline(p, voice.Divisions)

		for _, n := range p.Notes() {
			if n.HasAnyLyric() || !(n.Tie == TieNone || n.Tie == TieStart) {
				continue
			}

			candidates := lookup[n.Offset]
			if len(candidates) == 0 || !candidates[0].HasAnyLyric() {
				log.WithFields(log.Fields{
					"part":    p.Name,
					"measure": timeline.MeasureNumberAt(n.Offset),
					"offset":  n.Offset,
				}).Debug("No reference lyric at offset")
				continue
			}

			n.Lyrics = append([]Lyric(nil), candidates[0].Lyrics...)
		}
	}
}

// retagLyrics recomputes the syllabic tag of the first lyric of every note
func retagLyrics(p *Part) {
	sites := p.SpannerSites()

	for _, n := range p.Notes() {
		if len(n.Lyrics) == 0 {
			continue
		}

		slur := NotSlurred
		for _, sp := range sites[n.ID] {
			if sp.Kind == SpannerSlur {
				// the last slur the note belongs to decides
				slur = slurPositionOf(sp, n)
			}
		}

		n.Lyrics[0].Syllabic = syllabicFor(n.Tie, slur, n.Lyrics[0].Syllabic)
	}
}

// notesByOffset indexes the part's notes by their onset
func notesByOffset(p *Part) map[int][]*Note {
	index := make(map[int][]*Note)
	for _, n := range p.Notes() {
		index[n.Offset] = append(index[n.Offset], n)
	}
	return index
}
