package main

import (
	"sort"

	"github.com/google/uuid"
)

// TieType describes how a note continues into its neighbours
type TieType string

const (
	TieNone     TieType = ""
	TieStart    TieType = "start"
	TieContinue TieType = "continue"
	TieStop     TieType = "stop"
)

// Syllabic marks where a lyric fragment sits inside a sung word
type Syllabic string

const (
	SyllabicSingle Syllabic = "single"
	SyllabicBegin  Syllabic = "begin"
	SyllabicMiddle Syllabic = "middle"
	SyllabicEnd    Syllabic = "end"
)

// SpannerKind identifies the annotation a spanner draws
type SpannerKind string

const (
	SpannerSlur       SpannerKind = "slur"
	SpannerCrescendo  SpannerKind = "crescendo"
	SpannerDiminuendo SpannerKind = "diminuendo"
)

// Score is an in-memory partwise score. Every part shares the same time base:
// Divisions ticks per quarter note.
type Score struct {
	Title        string
	Composer     string
	MovementName string
	Divisions    int
	Parts        []*Part
}

// Part is a single staff of the score, possibly holding interleaved voices
type Part struct {
	ID           string
	Name         string
	Abbreviation string
	Measures     []*Measure
	Spanners     []*Spanner // Slurs and wedges, referencing notes by ID
}

// Measure groups the voices sounding within one bar
type Measure struct {
	Number     string
	Offset     int // Start in ticks from the beginning of the part
	Duration   int // Length in ticks
	Attributes *Attributes
	Directions []*Direction
	Barlines   []Barline
	Voices     []*Voice
}

// Attributes carries the clef/key/time block at the start of a measure
type Attributes struct {
	KeyFifths *int
	KeyMode   string
	Beats     string
	BeatType  string
	Staves    int
	Clefs     []Clef
}

// Clef is a single clef declaration
type Clef struct {
	Number       int
	Sign         string
	Line         int
	OctaveChange int
}

// Direction is a staff-level marking such as words, dynamics or tempo
type Direction struct {
	Offset    int // Ticks from the start of the measure
	Placement string
	Voice     string
	Staff     int
	Words     string
	Dynamics  string // Element name, e.g. "mf"
	BeatUnit  string
	PerMinute string
	Tempo     float64 // From <sound tempo>, 0 when absent
}

// Barline is a barline at the left or right edge of a measure
type Barline struct {
	Location string
	Style    string
	Repeat   string // "forward", "backward" or empty
}

// Voice is one melodic line inside a measure
type Voice struct {
	ID    string
	Notes []*Note // Notes and rests in time order
}

// Pitch is one sounding pitch of a note or chord
type Pitch struct {
	Step       string
	Alter      int
	Octave     int
	Accidental string
}

// TimeModification describes tuplet ratios
type TimeModification struct {
	Actual int
	Normal int
}

// Lyric is a single verse entry attached to a note
type Lyric struct {
	Number   string
	Text     string
	Syllabic Syllabic
	Extend   bool
}

// Note is a note, chord or rest. Chords carry more than one pitch.
type Note struct {
	ID               uuid.UUID
	Offset           int // Absolute ticks from the start of the part
	Duration         int
	Rest             bool
	MeasureRest      bool
	Grace            bool
	Pitches          []Pitch
	Type             string
	Dots             int
	TimeModification *TimeModification
	Stem             string
	Staff            int
	Tie              TieType
	Lyrics           []Lyric
}

// Spanner is an annotation over two or more notes, independent of the
// part/measure/voice tree. Members are ordered by offset.
type Spanner struct {
	ID      uuid.UUID
	Kind    SpannerKind
	Members []uuid.UUID
}

// NewNote creates a note with a fresh identity
func NewNote(offset, duration int, pitches ...Pitch) *Note {
	return &Note{
		ID:       uuid.New(),
		Offset:   offset,
		Duration: duration,
		Pitches:  pitches,
	}
}

// NewSpanner creates a spanner of the given kind over the member notes
func NewSpanner(kind SpannerKind, members ...*Note) *Spanner {
	ids := make([]uuid.UUID, len(members))
	for i, n := range members {
		ids[i] = n.ID
	}
	return &Spanner{ID: uuid.New(), Kind: kind, Members: ids}
}

// HasLyric reports whether the note carries lyric text in its first entry
func (n *Note) HasLyric() bool {
	return len(n.Lyrics) > 0 && n.Lyrics[0].Text != ""
}

// HasAnyLyric reports whether any verse of the note carries text
func (n *Note) HasAnyLyric() bool {
	for _, l := range n.Lyrics {
		if l.Text != "" {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the score. Note and spanner identities are
// preserved so spanners keep pointing at the copied notes.
func (s *Score) Clone() *Score {
	out := &Score{
		Title:        s.Title,
		Composer:     s.Composer,
		MovementName: s.MovementName,
		Divisions:    s.Divisions,
		Parts:        make([]*Part, len(s.Parts)),
	}
	for i, p := range s.Parts {
		out.Parts[i] = p.Clone()
	}
	return out
}

// Clone returns a deep copy of the part
func (p *Part) Clone() *Part {
	out := &Part{
		ID:           p.ID,
		Name:         p.Name,
		Abbreviation: p.Abbreviation,
		Measures:     make([]*Measure, len(p.Measures)),
		Spanners:     make([]*Spanner, len(p.Spanners)),
	}
	for i, m := range p.Measures {
		out.Measures[i] = m.clone()
	}
	for i, sp := range p.Spanners {
		out.Spanners[i] = sp.clone()
	}
	return out
}

func (m *Measure) clone() *Measure {
	out := &Measure{
		Number:   m.Number,
		Offset:   m.Offset,
		Duration: m.Duration,
		Barlines: append([]Barline(nil), m.Barlines...),
	}
	if m.Attributes != nil {
		attrs := *m.Attributes
		if m.Attributes.KeyFifths != nil {
			fifths := *m.Attributes.KeyFifths
			attrs.KeyFifths = &fifths
		}
		attrs.Clefs = append([]Clef(nil), m.Attributes.Clefs...)
		out.Attributes = &attrs
	}
	for _, d := range m.Directions {
		dir := *d
		out.Directions = append(out.Directions, &dir)
	}
	for _, v := range m.Voices {
		voice := &Voice{ID: v.ID, Notes: make([]*Note, len(v.Notes))}
		for i, n := range v.Notes {
			voice.Notes[i] = n.clone()
		}
		out.Voices = append(out.Voices, voice)
	}
	return out
}

func (n *Note) clone() *Note {
	out := *n
	out.Pitches = append([]Pitch(nil), n.Pitches...)
	out.Lyrics = append([]Lyric(nil), n.Lyrics...)
	if n.TimeModification != nil {
		tm := *n.TimeModification
		out.TimeModification = &tm
	}
	return &out
}

func (sp *Spanner) clone() *Spanner {
	return &Spanner{
		ID:      sp.ID,
		Kind:    sp.Kind,
		Members: append([]uuid.UUID(nil), sp.Members...),
	}
}

// Notes returns the pitched notes and chords of the part ordered by offset.
// Rests are excluded. Notes sharing an offset keep measure/voice order.
func (p *Part) Notes() []*Note {
	var notes []*Note
	for _, m := range p.Measures {
		for _, v := range m.Voices {
			for _, n := range v.Notes {
				if !n.Rest {
					notes = append(notes, n)
				}
			}
		}
	}
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].Offset < notes[j].Offset
	})
	return notes
}

// NoteCount returns the number of pitched notes and chords in the part
func (p *Part) NoteCount() int {
	return len(p.Notes())
}

func (p *Part) noteIndex() map[uuid.UUID]*Note {
	index := make(map[uuid.UUID]*Note)
	for _, n := range p.Notes() {
		index[n.ID] = n
	}
	return index
}

// LiveSpanners returns the spanners with at least one member still present
// in the part. Spanners whose members were all removed stay attached but inert.
func (p *Part) LiveSpanners() []*Spanner {
	present := p.noteIndex()
	var live []*Spanner
	for _, sp := range p.Spanners {
		for _, id := range sp.Members {
			if _, ok := present[id]; ok {
				live = append(live, sp)
				break
			}
		}
	}
	return live
}

// SpannerSites maps each note ID to the spanners it participates in, in the
// order the spanners are attached to the part
func (p *Part) SpannerSites() map[uuid.UUID][]*Spanner {
	sites := make(map[uuid.UUID][]*Spanner)
	for _, sp := range p.Spanners {
		for _, id := range sp.Members {
			sites[id] = append(sites[id], sp)
		}
	}
	return sites
}

// Position returns the index of the note among the spanner's members, or -1
func (sp *Spanner) Position(id uuid.UUID) int {
	for i, member := range sp.Members {
		if member == id {
			return i
		}
	}
	return -1
}

// NoteCount returns the number of pitched notes across all parts
func (s *Score) NoteCount() int {
	total := 0
	for _, p := range s.Parts {
		total += p.NoteCount()
	}
	return total
}
