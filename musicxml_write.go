package main

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const (
	musicXMLHeader  = `<?xml version="1.0" encoding="UTF-8" standalone="no"?>`
	musicXMLDocType = `<!DOCTYPE score-partwise PUBLIC "-//Recordare//DTD MusicXML 4.0 Partwise//EN" "http://www.musicxml.org/dtds/partwise.dtd">`
	encoderName     = "satb"
)

// WriteScoreFile writes the score to path. Paths ending in .mxl are written
// as compressed MusicXML containers.
func WriteScoreFile(score *Score, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating output file")
	}

	if strings.EqualFold(filepath.Ext(path), ".mxl") {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		err = writeMXL(score, file, stem+".musicxml")
	} else {
		_, err = score.WriteTo(file)
	}

	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// WriteTo serializes the score as a partwise MusicXML 4.0 document
func (s *Score) WriteTo(w io.Writer) (int64, error) {
	root := s.buildDocument()

	var buf bytes.Buffer
	buf.WriteString(musicXMLHeader + "\n")
	buf.WriteString(musicXMLDocType + "\n")
	formatNode(&buf, root, 0, "  ")

	return buf.WriteTo(w)
}

func (s *Score) buildDocument() *xmlquery.Node {
	root := element(nil, "score-partwise")
	xmlquery.AddAttr(root, "version", "4.0")

	if s.Title != "" {
		textElement(element(root, "work"), "work-title", s.Title)
	}
	if s.MovementName != "" {
		textElement(root, "movement-title", s.MovementName)
	}

	identification := element(root, "identification")
	if s.Composer != "" {
		creator := textElement(identification, "creator", s.Composer)
		xmlquery.AddAttr(creator, "type", "composer")
	}
	textElement(element(identification, "encoding"), "software", encoderName)

	partList := element(root, "part-list")
	ids := make([]string, len(s.Parts))
	for i, p := range s.Parts {
		ids[i] = p.ID
		if ids[i] == "" {
			ids[i] = fmt.Sprintf("P%d", i+1)
		}

		scorePart := element(partList, "score-part")
		xmlquery.AddAttr(scorePart, "id", ids[i])
		textElement(scorePart, "part-name", p.Name)
		if p.Abbreviation != "" {
			textElement(scorePart, "part-abbreviation", p.Abbreviation)
		}
	}

	for i, p := range s.Parts {
		partNode := element(root, "part")
		xmlquery.AddAttr(partNode, "id", ids[i])

		pw := &partWriter{divisions: s.Divisions, marks: newSpannerMarks(p)}
		for j, m := range p.Measures {
			pw.writeMeasure(partNode, m, j == 0)
		}
	}

	return root
}

type wedgeMark struct {
	kind   SpannerKind
	number int
}

// spannerMarks says which slur and wedge markings to emit at which notes.
// Only the surviving members of a spanner are considered.
type spannerMarks struct {
	slurStarts  map[uuid.UUID][]int
	slurStops   map[uuid.UUID][]int
	wedgeStarts map[uuid.UUID][]wedgeMark
	wedgeStops  map[uuid.UUID][]wedgeMark
}

func newSpannerMarks(p *Part) *spannerMarks {
	marks := &spannerMarks{
		slurStarts:  make(map[uuid.UUID][]int),
		slurStops:   make(map[uuid.UUID][]int),
		wedgeStarts: make(map[uuid.UUID][]wedgeMark),
		wedgeStops:  make(map[uuid.UUID][]wedgeMark),
	}

	present := p.noteIndex()
	slurs, wedges := 0, 0

	for _, sp := range p.LiveSpanners() {
		var members []*Note
		for _, id := range sp.Members {
			if n, ok := present[id]; ok {
				members = append(members, n)
			}
		}
		members = sortedByOffset(members)
		first, last := members[0], members[len(members)-1]

		switch sp.Kind {
		case SpannerSlur:
			if len(members) < 2 {
				continue
			}
			number := slurs%6 + 1
			slurs++
			marks.slurStarts[first.ID] = append(marks.slurStarts[first.ID], number)
			marks.slurStops[last.ID] = append(marks.slurStops[last.ID], number)

		case SpannerCrescendo, SpannerDiminuendo:
			mark := wedgeMark{kind: sp.Kind, number: wedges%6 + 1}
			wedges++
			marks.wedgeStarts[first.ID] = append(marks.wedgeStarts[first.ID], mark)
			marks.wedgeStops[last.ID] = append(marks.wedgeStops[last.ID], mark)
		}
	}

	return marks
}

type partWriter struct {
	divisions int
	marks     *spannerMarks
}

func (pw *partWriter) writeMeasure(parent *xmlquery.Node, m *Measure, first bool) {
	measure := element(parent, "measure")
	xmlquery.AddAttr(measure, "number", m.Number)

	for _, b := range m.Barlines {
		if b.Location == "left" {
			writeBarline(measure, b)
		}
	}

	if first || m.Attributes != nil {
		pw.writeAttributes(measure, m.Attributes, first)
	}

	directions := append([]*Direction(nil), m.Directions...)
	sort.SliceStable(directions, func(i, j int) bool {
		return directions[i].Offset < directions[j].Offset
	})

	// flush writes the measure directions positioned at or before limit
	flush := func(cursor, limit int) {
		for len(directions) > 0 && directions[0].Offset <= limit {
			writeDirection(measure, directions[0], directions[0].Offset-cursor)
			directions = directions[1:]
		}
	}

	cursor, maxCursor := 0, 0
	for i, v := range m.Voices {
		for _, n := range v.Notes {
			rel := n.Offset - m.Offset
			if rel > cursor {
				writeTimeShift(measure, "forward", rel-cursor, v.ID)
			} else if rel < cursor {
				writeTimeShift(measure, "backup", cursor-rel, "")
			}
			cursor = rel

			if i == 0 {
				flush(cursor, cursor)
			}

			pw.writeNote(measure, n, v.ID)

			if !n.Grace {
				cursor += n.Duration
			}
			if cursor > maxCursor {
				maxCursor = cursor
			}
		}

		if i == 0 {
			flush(cursor, int(^uint(0)>>1))
		}
	}
	flush(cursor, int(^uint(0)>>1))

	if maxCursor < m.Duration {
		writeTimeShift(measure, "forward", m.Duration-cursor, "")
	}

	for _, b := range m.Barlines {
		if b.Location != "left" {
			writeBarline(measure, b)
		}
	}
}

func (pw *partWriter) writeAttributes(parent *xmlquery.Node, attrs *Attributes, first bool) {
	node := element(parent, "attributes")
	if first {
		textElement(node, "divisions", strconv.Itoa(pw.divisions))
	}
	if attrs == nil {
		return
	}

	if attrs.KeyFifths != nil {
		key := element(node, "key")
		textElement(key, "fifths", strconv.Itoa(*attrs.KeyFifths))
		if attrs.KeyMode != "" {
			textElement(key, "mode", attrs.KeyMode)
		}
	}

	if attrs.Beats != "" && attrs.BeatType != "" {
		time := element(node, "time")
		textElement(time, "beats", attrs.Beats)
		textElement(time, "beat-type", attrs.BeatType)
	}

	if attrs.Staves > 0 {
		textElement(node, "staves", strconv.Itoa(attrs.Staves))
	}

	for _, c := range attrs.Clefs {
		clef := element(node, "clef")
		if c.Number > 0 {
			xmlquery.AddAttr(clef, "number", strconv.Itoa(c.Number))
		}
		textElement(clef, "sign", c.Sign)
		if c.Line != 0 {
			textElement(clef, "line", strconv.Itoa(c.Line))
		}
		if c.OctaveChange != 0 {
			textElement(clef, "clef-octave-change", strconv.Itoa(c.OctaveChange))
		}
	}
}

func (pw *partWriter) writeNote(parent *xmlquery.Node, n *Note, voiceID string) {
	starts := pw.marks.wedgeStarts[n.ID]
	stops := pw.marks.wedgeStops[n.ID]

	// wedges ending here that began on an earlier note close before new ones open
	var stopsLater []wedgeMark
	for _, stop := range stops {
		if containsWedge(starts, stop) {
			stopsLater = append(stopsLater, stop)
		} else {
			writeWedge(parent, "stop", stop.number)
		}
	}
	for _, start := range starts {
		writeWedge(parent, string(start.kind), start.number)
	}
	for _, stop := range stopsLater {
		writeWedge(parent, "stop", stop.number)
	}

	if n.Rest || len(n.Pitches) == 0 {
		pw.writeNoteElement(parent, n, nil, voiceID, true)
		return
	}

	for i := range n.Pitches {
		pw.writeNoteElement(parent, n, &n.Pitches[i], voiceID, i == 0)
	}
}

func containsWedge(marks []wedgeMark, mark wedgeMark) bool {
	for _, m := range marks {
		if m == mark {
			return true
		}
	}
	return false
}

// writeNoteElement writes one <note>. Chords are written as one element per
// pitch; only the head carries slurs and lyrics.
func (pw *partWriter) writeNoteElement(parent *xmlquery.Node, n *Note, pitch *Pitch, voiceID string, head bool) {
	node := element(parent, "note")

	if n.Grace {
		element(node, "grace")
	}
	if !head {
		element(node, "chord")
	}

	switch {
	case n.Rest:
		rest := element(node, "rest")
		if n.MeasureRest {
			xmlquery.AddAttr(rest, "measure", "yes")
		}
	case pitch != nil:
		p := element(node, "pitch")
		textElement(p, "step", pitch.Step)
		if pitch.Alter != 0 {
			textElement(p, "alter", strconv.Itoa(pitch.Alter))
		}
		textElement(p, "octave", strconv.Itoa(pitch.Octave))
	default:
		element(node, "unpitched")
	}

	if !n.Grace {
		textElement(node, "duration", strconv.Itoa(n.Duration))
	}

	tieTypes := tieMarkers(n.Tie)
	for _, t := range tieTypes {
		tie := element(node, "tie")
		xmlquery.AddAttr(tie, "type", t)
	}

	textElement(node, "voice", voiceID)
	if n.Type != "" {
		textElement(node, "type", n.Type)
	}
	for i := 0; i < n.Dots; i++ {
		element(node, "dot")
	}
	if pitch != nil && pitch.Accidental != "" {
		textElement(node, "accidental", pitch.Accidental)
	}
	if tm := n.TimeModification; tm != nil {
		mod := element(node, "time-modification")
		textElement(mod, "actual-notes", strconv.Itoa(tm.Actual))
		textElement(mod, "normal-notes", strconv.Itoa(tm.Normal))
	}
	if n.Stem != "" {
		textElement(node, "stem", n.Stem)
	}
	if n.Staff > 0 {
		textElement(node, "staff", strconv.Itoa(n.Staff))
	}

	var slurStarts, slurStops []int
	if head {
		slurStarts = pw.marks.slurStarts[n.ID]
		slurStops = pw.marks.slurStops[n.ID]
	}

	if len(tieTypes) > 0 || len(slurStarts) > 0 || len(slurStops) > 0 {
		notations := element(node, "notations")
		for _, t := range tieTypes {
			tied := element(notations, "tied")
			xmlquery.AddAttr(tied, "type", t)
		}
		for _, number := range slurStops {
			slur := element(notations, "slur")
			xmlquery.AddAttr(slur, "type", "stop")
			xmlquery.AddAttr(slur, "number", strconv.Itoa(number))
		}
		for _, number := range slurStarts {
			slur := element(notations, "slur")
			xmlquery.AddAttr(slur, "type", "start")
			xmlquery.AddAttr(slur, "number", strconv.Itoa(number))
		}
	}

	if !head {
		return
	}

	for _, l := range n.Lyrics {
		lyric := element(node, "lyric")
		xmlquery.AddAttr(lyric, "number", l.Number)
		if l.Syllabic != "" {
			textElement(lyric, "syllabic", string(l.Syllabic))
		}
		textElement(lyric, "text", l.Text)
		if l.Extend {
			element(lyric, "extend")
		}
	}
}

// tieMarkers lists the tie types to write for a tie state, in document order
func tieMarkers(tie TieType) []string {
	switch tie {
	case TieStart:
		return []string{"start"}
	case TieStop:
		return []string{"stop"}
	case TieContinue:
		return []string{"stop", "start"}
	}
	return nil
}

func writeTimeShift(parent *xmlquery.Node, kind string, duration int, voiceID string) {
	node := element(parent, kind)
	textElement(node, "duration", strconv.Itoa(duration))
	if kind == "forward" && voiceID != "" {
		textElement(node, "voice", voiceID)
	}
}

func writeWedge(parent *xmlquery.Node, kind string, number int) {
	direction := element(parent, "direction")
	wedge := element(element(direction, "direction-type"), "wedge")
	xmlquery.AddAttr(wedge, "type", kind)
	xmlquery.AddAttr(wedge, "number", strconv.Itoa(number))
}

func writeDirection(parent *xmlquery.Node, d *Direction, offset int) {
	node := element(parent, "direction")
	if d.Placement != "" {
		xmlquery.AddAttr(node, "placement", d.Placement)
	}

	types := 0
	if d.Words != "" {
		textElement(element(node, "direction-type"), "words", d.Words)
		types++
	}
	if d.Dynamics != "" {
		element(element(element(node, "direction-type"), "dynamics"), d.Dynamics)
		types++
	}
	if d.BeatUnit != "" {
		metronome := element(element(node, "direction-type"), "metronome")
		textElement(metronome, "beat-unit", d.BeatUnit)
		textElement(metronome, "per-minute", d.PerMinute)
		types++
	}
	if types == 0 {
		element(element(node, "direction-type"), "words")
	}

	if offset != 0 {
		textElement(node, "offset", strconv.Itoa(offset))
	}
	if d.Staff > 0 {
		textElement(node, "staff", strconv.Itoa(d.Staff))
	}
	if d.Tempo > 0 {
		sound := element(node, "sound")
		xmlquery.AddAttr(sound, "tempo", strconv.FormatFloat(d.Tempo, 'f', -1, 64))
	}
}

func writeBarline(parent *xmlquery.Node, b Barline) {
	node := element(parent, "barline")
	xmlquery.AddAttr(node, "location", b.Location)
	if b.Style != "" {
		textElement(node, "bar-style", b.Style)
	}
	if b.Repeat != "" {
		repeat := element(node, "repeat")
		xmlquery.AddAttr(repeat, "direction", b.Repeat)
	}
}

func element(parent *xmlquery.Node, name string) *xmlquery.Node {
	n := &xmlquery.Node{Type: xmlquery.ElementNode, Data: name}
	if parent != nil {
		xmlquery.AddChild(parent, n)
	}
	return n
}

func textElement(parent *xmlquery.Node, name string, text string) *xmlquery.Node {
	n := element(parent, name)
	xmlquery.AddChild(n, &xmlquery.Node{Type: xmlquery.TextNode, Data: text})
	return n
}

// formatNode writes an element tree with one element per line. Elements that
// only hold text are written on a single line.
func formatNode(w *bytes.Buffer, n *xmlquery.Node, depth int, indent string) {
	writeIndent(w, depth, indent)
	w.WriteString("<" + n.Data)
	for _, attr := range n.Attr {
		w.WriteString(" " + attr.Name.Local + `="`)
		xml.EscapeText(w, []byte(attr.Value))
		w.WriteString(`"`)
	}

	var text strings.Builder
	hasElementChildren := false
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case xmlquery.ElementNode:
			hasElementChildren = true
		case xmlquery.TextNode:
			text.WriteString(child.Data)
		}
	}

	switch {
	case hasElementChildren:
		w.WriteString(">\n")
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == xmlquery.ElementNode {
				formatNode(w, child, depth+1, indent)
			}
		}
		writeIndent(w, depth, indent)
		w.WriteString("</" + n.Data + ">\n")

	case text.Len() > 0:
		w.WriteString(">")
		xml.EscapeText(w, []byte(text.String()))
		w.WriteString("</" + n.Data + ">\n")

	default:
		w.WriteString("/>\n")
	}
}

func writeIndent(w *bytes.Buffer, depth int, indent string) {
	for i := 0; i < depth; i++ {
		w.WriteString(indent)
	}
}
