package main

import (
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
)

func testNote(offset, duration int, step string, octave int) *Note {
	n := NewNote(offset, duration, Pitch{Step: step, Octave: octave})
	n.Type = "quarter"
	n.Stem = "up"
	return n
}

func testRest(offset, duration int) *Note {
	n := NewNote(offset, duration)
	n.Rest = true
	return n
}

func sung(n *Note, text string, syllabic Syllabic) *Note {
	n.Lyrics = []Lyric{{Number: "1", Text: text, Syllabic: syllabic}}
	return n
}

func tied(n *Note, tie TieType) *Note {
	n.Tie = tie
	return n
}

func testVoice(id string, notes ...*Note) *Voice {
	return &Voice{ID: id, Notes: notes}
}

func testMeasure(number string, offset, duration int, voices ...*Voice) *Measure {
	return &Measure{Number: number, Offset: offset, Duration: duration, Voices: voices}
}

// satbFixture is a two staff, two measure SATB score with handles on the
// interesting notes
type satbFixture struct {
	Score *Score

	S1, S2, S3, S4, S5 *Note
	A1, A2, A3, A4, A5 *Note
	T1, T2, T3, T4     *Note
	B1, B2             *Note

	SopranoSlur *Spanner
	Crescendo   *Spanner
	TenorSlur   *Spanner
}

// newSATBFixture builds the score at 4 ticks per quarter:
//
//	staff 1, voice 1: Joy- ful noise (unsung) | Lord (rest)
//	staff 1, voice 2: four quarters, the last two tied | whole
//	staff 2, voice 5: two quarters and a half | whole
//	staff 2, voice 6: a whole tied across the barline
func newSATBFixture() *satbFixture {
	f := &satbFixture{
		S1: sung(testNote(0, 4, "E", 5), "Joy", SyllabicSingle),
		S2: sung(testNote(4, 4, "D", 5), "ful", SyllabicSingle),
		S3: sung(testNote(8, 4, "C", 5), "noise", SyllabicSingle),
		S4: testNote(12, 4, "D", 5),
		S5: sung(testNote(16, 8, "C", 5), "Lord", SyllabicSingle),

		A1: testNote(0, 4, "C", 5),
		A2: testNote(4, 4, "B", 4),
		A3: tied(testNote(8, 4, "A", 4), TieStart),
		A4: tied(testNote(12, 4, "A", 4), TieStop),
		A5: testNote(16, 16, "G", 4),

		T1: testNote(0, 4, "G", 3),
		T2: testNote(4, 4, "G", 3),
		T3: testNote(8, 8, "E", 3),
		T4: testNote(16, 16, "E", 3),

		B1: tied(testNote(0, 16, "C", 3), TieStart),
		B2: tied(testNote(16, 16, "C", 3), TieStop),
	}

	f.SopranoSlur = NewSpanner(SpannerSlur, f.S1, f.S2)
	f.Crescendo = NewSpanner(SpannerCrescendo, f.S1, f.A1, f.S2, f.A2)
	f.TenorSlur = NewSpanner(SpannerSlur, f.T1, f.T2)

	fifths := 0
	upper := &Part{
		ID:   "P1",
		Name: "Women",
		Measures: []*Measure{
			testMeasure("1", 0, 16,
				testVoice("1", f.S1, f.S2, f.S3, f.S4),
				testVoice("2", f.A1, f.A2, f.A3, f.A4)),
			testMeasure("2", 16, 16,
				testVoice("1", f.S5, testRest(24, 8)),
				testVoice("2", f.A5)),
		},
		Spanners: []*Spanner{f.SopranoSlur, f.Crescendo},
	}
	upper.Measures[0].Attributes = &Attributes{
		KeyFifths: &fifths,
		Beats:     "4",
		BeatType:  "4",
		Clefs:     []Clef{{Sign: "G", Line: 2}},
	}
	upper.Measures[0].Directions = []*Direction{{Words: "Allegro", Tempo: 96}}

	lower := &Part{
		ID:   "P2",
		Name: "Men",
		Measures: []*Measure{
			testMeasure("1", 0, 16,
				testVoice("5", f.T1, f.T2, f.T3),
				testVoice("6", f.B1)),
			testMeasure("2", 16, 16,
				testVoice("5", f.T4),
				testVoice("6", f.B2)),
		},
		Spanners: []*Spanner{f.TenorSlur},
	}
	lower.Measures[0].Attributes = &Attributes{
		KeyFifths: &fifths,
		Beats:     "4",
		BeatType:  "4",
		Clefs:     []Clef{{Sign: "F", Line: 4}},
	}

	f.Score = &Score{
		Title:        "Ode",
		Composer:     "Anonymous",
		MovementName: "First movement",
		Divisions:    4,
		Parts:        []*Part{upper, lower},
	}
	return f
}

func noteByID(p *Part, n *Note) *Note {
	return p.noteIndex()[n.ID]
}

func lyricTexts(p *Part) []string {
	var texts []string
	for _, n := range p.Notes() {
		if n.HasLyric() {
			texts = append(texts, n.Lyrics[0].Text)
		} else {
			texts = append(texts, "")
		}
	}
	return texts
}

func noteOffsets(p *Part) []int {
	var offsets []int
	for _, n := range p.Notes() {
		offsets = append(offsets, n.Offset)
	}
	return offsets
}

// captureLogs routes log entries into memory for the rest of the test
func captureLogs(t *testing.T) *memory.Handler {
	t.Helper()

	logger := log.Log.(*log.Logger)
	prevHandler, prevLevel := logger.Handler, logger.Level

	handler := memory.New()
	logger.Handler = handler
	logger.Level = log.DebugLevel

	t.Cleanup(func() {
		logger.Handler = prevHandler
		logger.Level = prevLevel
	})
	return handler
}

func findEntries(h *memory.Handler, message string) []*log.Entry {
	var found []*log.Entry
	for _, e := range h.Entries {
		if e.Message == message {
			found = append(found, e)
		}
	}
	return found
}
