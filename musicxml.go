// MusicXML reading.
//
// Only partwise documents are supported. Durations are rescaled so every part
// shares one time base: the least common multiple of all <divisions> values
// found in the document. Slurs and wedges are lifted out of the note tree
// into spanners that reference notes by ID. A part written on several staves
// is read as one part per staff.
package main

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

var (
	partwiseExpr  = xpath.MustCompile("/score-partwise")
	timewiseExpr  = xpath.MustCompile("/score-timewise")
	scorePartExpr = xpath.MustCompile("part-list/score-part")
	partExpr      = xpath.MustCompile("part")
	measureExpr   = xpath.MustCompile("measure")
	divisionsExpr = xpath.MustCompile("//attributes/divisions")
	workTitleExpr = xpath.MustCompile("work/work-title")
	movementExpr  = xpath.MustCompile("movement-title")
	composerExpr  = xpath.MustCompile("identification/creator[@type='composer']")
)

// OpenScore reads a MusicXML file from disk. Files ending in .mxl are read as
// compressed MusicXML containers.
func OpenScore(path string) (*Score, error) {
	if strings.EqualFold(filepath.Ext(path), ".mxl") {
		score, err := readMXL(path)
		if err != nil {
			return nil, &ParseError{Path: path, Err: err}
		}
		return score, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening score")
	}
	defer file.Close()

	score, err := parseScore(file)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return score, nil
}

// ParseMusicXML reads a partwise MusicXML document
func ParseMusicXML(r io.Reader) (*Score, error) {
	score, err := parseScore(r)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return score, nil
}

func parseScore(r io.Reader) (*Score, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "parsing XML")
	}

	root := xmlquery.QuerySelector(doc, partwiseExpr)
	if root == nil {
		if xmlquery.QuerySelector(doc, timewiseExpr) != nil {
			return nil, errors.WithHint(errors.New("timewise scores are not supported"),
				"re-export the score as partwise MusicXML")
		}
		return nil, errors.New("missing <score-partwise> root element")
	}

	score := &Score{
		Divisions: documentDivisions(doc),
		Title:     nodeText(xmlquery.QuerySelector(root, workTitleExpr)),
		Composer:  nodeText(xmlquery.QuerySelector(root, composerExpr)),
	}
	score.MovementName = nodeText(xmlquery.QuerySelector(root, movementExpr))
	if score.Title == "" {
		score.Title = score.MovementName
	}

	names := make(map[string][2]string)
	for _, sp := range xmlquery.QuerySelectorAll(root, scorePartExpr) {
		names[sp.SelectAttr("id")] = [2]string{
			childText(sp, "part-name"),
			childText(sp, "part-abbreviation"),
		}
	}

	for _, partNode := range xmlquery.QuerySelectorAll(root, partExpr) {
		id := partNode.SelectAttr("id")
		part := &Part{ID: id, Name: names[id][0], Abbreviation: names[id][1]}

		reader := newPartReader(score.Divisions)
		for _, measureNode := range xmlquery.QuerySelectorAll(partNode, measureExpr) {
			m, err := reader.readMeasure(measureNode)
			if err != nil {
				return nil, errors.Wrapf(err, "part %s measure %s", id, measureNode.SelectAttr("number"))
			}
			part.Measures = append(part.Measures, m)
		}
		part.Spanners = reader.resolveSpanners()

		score.Parts = append(score.Parts, splitStaves(part)...)
	}

	if len(score.Parts) == 0 {
		return nil, errors.New("score has no parts")
	}

	return score, nil
}

// documentDivisions returns the least common multiple of every divisions
// value in the document, so all durations can be expressed as integers
func documentDivisions(doc *xmlquery.Node) int {
	result := 1
	for _, n := range xmlquery.QuerySelectorAll(doc, divisionsExpr) {
		d, err := strconv.Atoi(nodeText(n))
		if err != nil || d <= 0 {
			continue
		}
		result = lcm(result, d)
	}
	return result
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}

type pendingSlur struct {
	voice  string
	number string
	start  *Note
	stop   *Note
}

type pendingWedge struct {
	kind  SpannerKind
	voice string
	staff int
	start int
	stop  int
}

// partReader carries the state needed while reading the measures of one part
type partReader struct {
	divisions  int // Score-wide ticks per quarter
	scale      int // Ticks per source division
	offset     int // Start of the next measure
	notes      []*Note
	voiceOf    map[uuid.UUID]string
	openSlurs  []*pendingSlur // In start order
	openWedges map[string]*pendingWedge
	slurs      []*pendingSlur
	wedges     []*pendingWedge
}

func newPartReader(divisions int) *partReader {
	return &partReader{
		divisions:  divisions,
		scale:      divisions,
		voiceOf:    make(map[uuid.UUID]string),
		openWedges: make(map[string]*pendingWedge),
	}
}

func (r *partReader) ticks(n *xmlquery.Node, name string) (int, error) {
	text := childText(n, name)
	if text == "" {
		return 0, nil
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", name, text)
	}
	return int(math.Round(value * float64(r.scale))), nil
}

func (r *partReader) readMeasure(node *xmlquery.Node) (*Measure, error) {
	m := &Measure{Number: node.SelectAttr("number"), Offset: r.offset}

	voices := make(map[string]*Voice)
	cursor, maxCursor := 0, 0
	var prev *Note

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode {
			continue
		}

		switch child.Data {
		case "attributes":
			if err := r.readAttributes(child, m); err != nil {
				return nil, err
			}

		case "note":
			if child.SelectElement("chord") != nil && prev != nil {
				r.mergeChordNote(child, prev)
				continue
			}

			n, voiceID, err := r.readNote(child, m.Offset+cursor)
			if err != nil {
				return nil, err
			}

			voice, ok := voices[voiceID]
			if !ok {
				voice = &Voice{ID: voiceID}
				voices[voiceID] = voice
				m.Voices = append(m.Voices, voice)
			}
			voice.Notes = append(voice.Notes, n)
			r.notes = append(r.notes, n)
			r.voiceOf[n.ID] = voiceID
			r.readNotations(child, n, voiceID)
			prev = n

			if !n.Grace {
				cursor += n.Duration
			}

		case "backup":
			d, err := r.ticks(child, "duration")
			if err != nil {
				return nil, err
			}
			cursor -= d
			if cursor < 0 {
				cursor = 0
			}

		case "forward":
			d, err := r.ticks(child, "duration")
			if err != nil {
				return nil, err
			}
			cursor += d

		case "direction":
			if err := r.readDirection(child, m, cursor); err != nil {
				return nil, err
			}

		case "barline":
			barline := Barline{
				Location: child.SelectAttr("location"),
				Style:    childText(child, "bar-style"),
			}
			if barline.Location == "" {
				barline.Location = "right"
			}
			if repeat := child.SelectElement("repeat"); repeat != nil {
				barline.Repeat = repeat.SelectAttr("direction")
			}
			m.Barlines = append(m.Barlines, barline)
		}

		if cursor > maxCursor {
			maxCursor = cursor
		}
	}

	m.Duration = maxCursor
	r.offset += maxCursor
	return m, nil
}

func (r *partReader) readAttributes(node *xmlquery.Node, m *Measure) error {
	if m.Attributes == nil {
		m.Attributes = &Attributes{}
	}
	attrs := m.Attributes

	if text := childText(node, "divisions"); text != "" {
		d, err := strconv.Atoi(text)
		if err != nil || d <= 0 {
			return errors.Newf("invalid divisions %q", text)
		}
		r.scale = r.divisions / d
	}

	if key := node.SelectElement("key"); key != nil {
		if fifths, err := strconv.Atoi(childText(key, "fifths")); err == nil {
			attrs.KeyFifths = &fifths
		}
		attrs.KeyMode = childText(key, "mode")
	}

	if time := node.SelectElement("time"); time != nil {
		attrs.Beats = childText(time, "beats")
		attrs.BeatType = childText(time, "beat-type")
	}

	if staves, err := strconv.Atoi(childText(node, "staves")); err == nil {
		attrs.Staves = staves
	}

	for _, c := range childElements(node, "clef") {
		clef := Clef{Sign: childText(c, "sign")}
		clef.Number, _ = strconv.Atoi(c.SelectAttr("number"))
		clef.Line, _ = strconv.Atoi(childText(c, "line"))
		clef.OctaveChange, _ = strconv.Atoi(childText(c, "clef-octave-change"))
		attrs.Clefs = append(attrs.Clefs, clef)
	}

	return nil
}

func (r *partReader) readNote(node *xmlquery.Node, offset int) (*Note, string, error) {
	duration, err := r.ticks(node, "duration")
	if err != nil {
		return nil, "", err
	}

	n := &Note{
		ID:       uuid.New(),
		Offset:   offset,
		Duration: duration,
		Type:     childText(node, "type"),
		Dots:     len(childElements(node, "dot")),
		Stem:     childText(node, "stem"),
		Tie:      readTie(node),
		Grace:    node.SelectElement("grace") != nil,
	}
	if n.Grace {
		n.Duration = 0
	}
	n.Staff, _ = strconv.Atoi(childText(node, "staff"))

	if rest := node.SelectElement("rest"); rest != nil {
		n.Rest = true
		n.MeasureRest = rest.SelectAttr("measure") == "yes"
	} else if pitch, ok := readPitch(node); ok {
		n.Pitches = []Pitch{pitch}
	}

	if tm := node.SelectElement("time-modification"); tm != nil {
		actual, _ := strconv.Atoi(childText(tm, "actual-notes"))
		normal, _ := strconv.Atoi(childText(tm, "normal-notes"))
		n.TimeModification = &TimeModification{Actual: actual, Normal: normal}
	}

	n.Lyrics = readLyrics(node)

	voiceID := childText(node, "voice")
	if voiceID == "" {
		voiceID = "1"
	}

	return n, voiceID, nil
}

// mergeChordNote folds a <chord/> note into the note it sounds with
func (r *partReader) mergeChordNote(node *xmlquery.Node, chord *Note) {
	if pitch, ok := readPitch(node); ok {
		chord.Pitches = append(chord.Pitches, pitch)
	}
	if chord.Tie == TieNone {
		chord.Tie = readTie(node)
	}
	if len(chord.Lyrics) == 0 {
		chord.Lyrics = readLyrics(node)
	}
	r.readNotations(node, chord, r.voiceOf[chord.ID])
}

func readPitch(node *xmlquery.Node) (Pitch, bool) {
	p := node.SelectElement("pitch")
	if p == nil {
		return Pitch{}, false
	}

	pitch := Pitch{
		Step:       childText(p, "step"),
		Accidental: childText(node, "accidental"),
	}
	if alter, err := strconv.ParseFloat(childText(p, "alter"), 64); err == nil {
		pitch.Alter = int(math.Round(alter))
	}
	pitch.Octave, _ = strconv.Atoi(childText(p, "octave"))
	return pitch, true
}

// readTie combines <tie> and <notations><tied> markers. A note that both
// stops and starts a tie continues it.
func readTie(node *xmlquery.Node) TieType {
	types := make(map[string]bool)
	for _, t := range childElements(node, "tie") {
		types[t.SelectAttr("type")] = true
	}
	for _, notations := range childElements(node, "notations") {
		for _, t := range childElements(notations, "tied") {
			types[t.SelectAttr("type")] = true
		}
	}

	switch {
	case types["continue"] || (types["start"] && types["stop"]):
		return TieContinue
	case types["start"]:
		return TieStart
	case types["stop"]:
		return TieStop
	}
	return TieNone
}

func readLyrics(node *xmlquery.Node) []Lyric {
	var lyrics []Lyric
	for _, l := range childElements(node, "lyric") {
		lyric := Lyric{
			Number:   l.SelectAttr("number"),
			Text:     norm.NFC.String(childText(l, "text")),
			Syllabic: Syllabic(childText(l, "syllabic")),
			Extend:   l.SelectElement("extend") != nil,
		}
		if lyric.Number == "" {
			lyric.Number = "1"
		}
		lyrics = append(lyrics, lyric)
	}
	return lyrics
}

// readNotations records slur starts and stops found on the note
func (r *partReader) readNotations(node *xmlquery.Node, n *Note, voiceID string) {
	for _, notations := range childElements(node, "notations") {
		for _, s := range childElements(notations, "slur") {
			number := s.SelectAttr("number")
			if number == "" {
				number = "1"
			}

			switch s.SelectAttr("type") {
			case "start":
				if i := r.findOpenSlur(voiceID, number); i >= 0 {
					r.openSlurs = append(r.openSlurs[:i], r.openSlurs[i+1:]...)
				}
				r.openSlurs = append(r.openSlurs, &pendingSlur{voice: voiceID, number: number, start: n})
			case "stop":
				i := r.findOpenSlur(voiceID, number)
				if i < 0 {
					// slurs may end in another voice
					i = r.findOpenSlur("", number)
				}
				if i >= 0 && r.openSlurs[i].start != n {
					open := r.openSlurs[i]
					open.stop = n
					r.slurs = append(r.slurs, open)
					r.openSlurs = append(r.openSlurs[:i], r.openSlurs[i+1:]...)
				}
			}
		}
	}
}

// findOpenSlur returns the index of the most recently started open slur with
// the given number, in the given voice unless voiceID is empty, or -1
func (r *partReader) findOpenSlur(voiceID, number string) int {
	for i := len(r.openSlurs) - 1; i >= 0; i-- {
		s := r.openSlurs[i]
		if s.number == number && (voiceID == "" || s.voice == voiceID) {
			return i
		}
	}
	return -1
}

func (r *partReader) readDirection(node *xmlquery.Node, m *Measure, cursor int) error {
	offset, err := r.ticks(node, "offset")
	if err != nil {
		return err
	}

	d := &Direction{
		Offset:    cursor + offset,
		Placement: node.SelectAttr("placement"),
		Voice:     childText(node, "voice"),
	}
	d.Staff, _ = strconv.Atoi(childText(node, "staff"))

	var words []string
	for _, dt := range childElements(node, "direction-type") {
		for child := dt.FirstChild; child != nil; child = child.NextSibling {
			if child.Type != xmlquery.ElementNode {
				continue
			}

			switch child.Data {
			case "words":
				if text := nodeText(child); text != "" {
					words = append(words, text)
				}
			case "dynamics":
				for dyn := child.FirstChild; dyn != nil; dyn = dyn.NextSibling {
					if dyn.Type == xmlquery.ElementNode {
						d.Dynamics = dyn.Data
						break
					}
				}
			case "metronome":
				d.BeatUnit = childText(child, "beat-unit")
				d.PerMinute = childText(child, "per-minute")
			case "wedge":
				r.readWedge(child, m.Offset+d.Offset, d.Voice, d.Staff)
			}
		}
	}
	d.Words = norm.NFC.String(strings.Join(words, " "))

	if sound := node.SelectElement("sound"); sound != nil {
		if tempo, err := strconv.ParseFloat(sound.SelectAttr("tempo"), 64); err == nil {
			d.Tempo = tempo
		}
	}

	if d.Words != "" || d.Dynamics != "" || d.BeatUnit != "" || d.Tempo > 0 {
		m.Directions = append(m.Directions, d)
	}
	return nil
}

func (r *partReader) readWedge(node *xmlquery.Node, at int, voiceID string, staff int) {
	number := node.SelectAttr("number")
	if number == "" {
		number = "1"
	}

	switch node.SelectAttr("type") {
	case "crescendo":
		r.openWedges[number] = &pendingWedge{kind: SpannerCrescendo, voice: voiceID, staff: staff, start: at}
	case "diminuendo":
		r.openWedges[number] = &pendingWedge{kind: SpannerDiminuendo, voice: voiceID, staff: staff, start: at}
	case "stop":
		if open, ok := r.openWedges[number]; ok {
			open.stop = at
			r.wedges = append(r.wedges, open)
			delete(r.openWedges, number)
		}
	}
}

// resolveSpanners turns the slurs and wedges seen in the part into spanners.
// A slur spans every note of its voice from its start to its stop note; a
// wedge spans every note of its voice or staff starting within its range.
func (r *partReader) resolveSpanners() []*Spanner {
	var spanners []*Spanner

	for _, s := range r.slurs {
		var members []*Note
		for _, n := range r.notes {
			if n.Rest || r.voiceOf[n.ID] != s.voice {
				continue
			}
			if n.Offset >= s.start.Offset && n.Offset <= s.stop.Offset {
				members = append(members, n)
			}
		}
		if len(members) > 0 {
			spanners = append(spanners, NewSpanner(SpannerSlur, sortedByOffset(members)...))
		}
	}

	for _, w := range r.wedges {
		var members []*Note
		for _, n := range r.notes {
			if n.Rest || (w.voice != "" && r.voiceOf[n.ID] != w.voice) {
				continue
			}
			if w.staff > 0 && max(n.Staff, 1) != w.staff {
				continue
			}
			if n.Offset >= w.start && n.Offset <= w.stop {
				members = append(members, n)
			}
		}
		if len(members) > 0 {
			spanners = append(spanners, NewSpanner(w.kind, sortedByOffset(members)...))
		}
	}

	return spanners
}

func sortedByOffset(notes []*Note) []*Note {
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].Offset < notes[j].Offset
	})
	return notes
}

// childElements returns the direct element children of n with the given name
func childElements(n *xmlquery.Node, name string) []*xmlquery.Node {
	var result []*xmlquery.Node
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == name {
			result = append(result, child)
		}
	}
	return result
}

// childText returns the trimmed text of the first direct child named name
func childText(n *xmlquery.Node, name string) string {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == name {
			return nodeText(child)
		}
	}
	return ""
}

func nodeText(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return norm.NFC.String(strings.TrimSpace(n.InnerText()))
}
