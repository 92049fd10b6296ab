package main

import (
	"io"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	gmDrumChannel       = 9
	noteVelocity  uint8 = 100
)

// MidiEvent represents a MIDI event with absolute timing
type MidiEvent struct {
	Time    uint32
	Message smf.Message
}

// TrackInfo contains information needed to create a MIDI track
type TrackInfo struct {
	Name    string      // Track name for meta event
	Channel uint8       // MIDI channel
	Program uint8       // GM program number
	Events  []MidiEvent // All MIDI events for this track
}

// VoiceNote is one sounding note of a voice, with tied notes already merged
type VoiceNote struct {
	Time     uint32
	Key      uint8
	Duration uint32
	Lyric    string
}

// RehearsalExporter builds a General MIDI file with one track per voice, for
// singers to practice their part against
type RehearsalExporter struct {
	Program uint8 // GM program used for every voice track

	smf    *smf.SMF
	tracks []TrackInfo
}

// NewRehearsalExporter creates an exporter writing at the given resolution
// in ticks per quarter note
func NewRehearsalExporter(ticksPerQuarter int) (*RehearsalExporter, error) {
	if ticksPerQuarter <= 0 || ticksPerQuarter > math.MaxInt16 {
		return nil, errors.WithHint(
			errors.Newf("cannot write MIDI at %d ticks per quarter note", ticksPerQuarter),
			"MIDI resolution must be between 1 and 32767")
	}

	s := smf.NewSMF1()
	s.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	return &RehearsalExporter{
		Program: ProgramChoirAahs,
		smf:     s,
	}, nil
}

// ExportRehearsalMidi writes every part of the score as its own voice track
func ExportRehearsalMidi(score *Score, w io.Writer) error {
	return exportRehearsalMidi(score, w, ProgramChoirAahs)
}

func exportRehearsalMidi(score *Score, w io.Writer, program uint8) error {
	exporter, err := NewRehearsalExporter(score.Divisions)
	if err != nil {
		return err
	}
	exporter.Program = program

	if err := exporter.SetupTimingTrack(score); err != nil {
		return err
	}

	for _, p := range score.Parts {
		if err := exporter.AddVoiceTrack(p); err != nil {
			return errors.Wrapf(err, "part %s", p.Name)
		}
	}

	return exporter.WriteTo(w)
}

// SetupTimingTrack builds the conductor track from the tempo marks and time
// signatures of the score's first part
func (e *RehearsalExporter) SetupTimingTrack(score *Score) error {
	if score == nil || len(score.Parts) == 0 {
		return errors.New("score has no parts")
	}

	timeline := NewTimeline(score.Parts[0], score.Divisions)
	tempoTrack := smf.Track{}

	trackNameMsg := smf.Message(smf.MetaTrackSequenceName("Tempo"))
	tempoTrack = append(tempoTrack, smf.Event{Delta: 0, Message: trackNameMsg})

	if len(timeline.Tempos) == 0 || timeline.Tempos[0].Time > 0 {
		log.Debug("No tempo mark at the start of the score, using 120 BPM")
		tempoMsg := smf.Message(smf.MetaTempo(120.0))
		tempoTrack = append(tempoTrack, smf.Event{Delta: 0, Message: tempoMsg})
	}

	// Deltas hold absolute times until converted below
	var timed smf.Track
	for _, tempo := range timeline.Tempos {
		tempoMsg := smf.Message(smf.MetaTempo(tempo.BPM))
		timed = append(timed, smf.Event{Delta: uint32(tempo.Time), Message: tempoMsg})
	}

	lastBeats, lastBeatType := 0, 0
	for _, m := range timeline.Measures {
		if m.Beats == lastBeats && m.BeatType == lastBeatType {
			continue
		}
		lastBeats, lastBeatType = m.Beats, m.BeatType
		timeSigMsg := smf.Message(smf.MetaTimeSig(uint8(m.Beats), uint8(m.BeatType), 24, 8))
		timed = append(timed, smf.Event{Delta: uint32(m.StartTime), Message: timeSigMsg})
	}

	sort.SliceStable(timed, func(i, j int) bool {
		return timed[i].Delta < timed[j].Delta
	})

	tempoTrack = append(tempoTrack, convertToRelativeDeltas(timed)...)
	tempoTrack = append(tempoTrack, smf.Event{Delta: 0, Message: smf.EOT})

	e.smf.Add(tempoTrack)
	return nil
}

// AddVoiceTrack adds a part as a voice track on the next free channel
func (e *RehearsalExporter) AddVoiceTrack(p *Part) error {
	channel := uint8(len(e.tracks))
	if channel >= gmDrumChannel {
		channel++
	}
	if channel > 15 {
		return errors.Newf("too many voices for MIDI export (%d)", len(e.tracks)+1)
	}

	notes := extractVoiceNotes(p)
	var events []MidiEvent

	for i, note := range notes {
		if note.Lyric != "" {
			lyricMsg := smf.Message(smf.MetaLyric(note.Lyric))
			events = append(events, MidiEvent{Time: note.Time, Message: lyricMsg})
		}

		noteOnMsg := smf.Message(midi.NoteOn(channel, note.Key, noteVelocity))
		events = append(events, MidiEvent{Time: note.Time, Message: noteOnMsg})

		// Cut the note short if the same key is struck again before it ends
		endTime := note.Time + note.Duration
		for j := i + 1; j < len(notes); j++ {
			next := notes[j]
			if next.Time >= endTime {
				break
			}
			if next.Key == note.Key {
				endTime = next.Time
				break
			}
		}

		noteOffMsg := smf.Message(midi.NoteOff(channel, note.Key))
		events = append(events, MidiEvent{Time: endTime, Message: noteOffMsg})
	}

	log.WithFields(log.Fields{
		"track":      p.Name,
		"channel":    channel,
		"instrument": programName(e.Program),
		"notes":      len(notes),
	}).Debug("Adding voice track")

	e.tracks = append(e.tracks, TrackInfo{
		Name:    p.Name,
		Channel: channel,
		Program: e.Program,
		Events:  events,
	})
	return nil
}

// extractVoiceNotes turns the part's notes into sounding notes. A tie chain
// becomes one note lasting the whole chain; the lyric of the first note in
// the chain is kept. Grace notes have no duration and are not played.
func extractVoiceNotes(p *Part) []VoiceNote {
	var result []VoiceNote
	open := make(map[uint8]int) // key -> index into result of a tie chain in progress

	for _, n := range p.Notes() {
		if n.Grace || n.Duration <= 0 {
			continue
		}

		lyric := ""
		if n.HasLyric() {
			lyric = lyricFragment(n.Lyrics[0])
		}

		for _, pitch := range n.Pitches {
			key, ok := pitchKey(pitch)
			if !ok {
				log.WithFields(log.Fields{
					"step":   pitch.Step,
					"octave": pitch.Octave,
				}).Warn("Skipping pitch outside the MIDI range")
				continue
			}

			end := uint32(n.Offset + n.Duration)

			if idx, chained := open[key]; chained && (n.Tie == TieContinue || n.Tie == TieStop) {
				result[idx].Duration = end - result[idx].Time
				if n.Tie == TieStop {
					delete(open, key)
				}
				continue
			}

			result = append(result, VoiceNote{
				Time:     uint32(n.Offset),
				Key:      key,
				Duration: uint32(n.Duration),
				Lyric:    lyric,
			})
			lyric = ""

			if n.Tie == TieStart || n.Tie == TieContinue {
				open[key] = len(result) - 1
			} else {
				delete(open, key)
			}
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Time < result[j].Time
	})
	return result
}

var stepSemitones = map[string]int{
	"C": 0, "D": 2, "E": 4, "F": 5, "G": 7, "A": 9, "B": 11,
}

// pitchKey converts a pitch to a MIDI key number, middle C (C4) being 60
func pitchKey(p Pitch) (uint8, bool) {
	semitone, ok := stepSemitones[p.Step]
	if !ok {
		return 0, false
	}
	key := (p.Octave+1)*12 + semitone + p.Alter
	if key < 0 || key > 127 {
		return 0, false
	}
	return uint8(key), true
}

// WriteTo finalizes the MIDI file and writes it to the provided writer
func (e *RehearsalExporter) WriteTo(writer io.Writer) error {
	if len(e.tracks) == 0 {
		return errors.New("no tracks to export")
	}

	for _, trackInfo := range e.tracks {
		e.smf.Add(createMidiTrack(trackInfo))
	}

	if _, err := e.smf.WriteTo(writer); err != nil {
		return errors.Wrap(err, "writing MIDI file")
	}
	return nil
}

// createMidiTrack builds a complete MIDI track from TrackInfo
func createMidiTrack(trackInfo TrackInfo) smf.Track {
	track := smf.Track{}

	trackNameMsg := smf.Message(smf.MetaTrackSequenceName(trackInfo.Name))
	track = append(track, smf.Event{Delta: 0, Message: trackNameMsg})

	programChangeMsg := smf.Message(midi.ProgramChange(trackInfo.Channel, trackInfo.Program))
	track = append(track, smf.Event{Delta: 0, Message: programChangeMsg})

	events := make([]MidiEvent, len(trackInfo.Events))
	copy(events, trackInfo.Events)
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Time == events[j].Time {
			// Lyrics first, then note-offs, then note-ons
			return eventPriority(events[i].Message) < eventPriority(events[j].Message)
		}
		return events[i].Time < events[j].Time
	})

	var lastTime uint32
	for _, event := range events {
		delta := event.Time - lastTime
		track = append(track, smf.Event{Delta: delta, Message: event.Message})
		lastTime = event.Time
	}

	track = append(track, smf.Event{Delta: 0, Message: smf.EOT})
	return track
}

func eventPriority(msg smf.Message) int {
	var ch, key, vel uint8
	switch {
	case msg.Type() == smf.MetaLyricMsg:
		return 0
	case msg.GetNoteOff(&ch, &key, &vel):
		return 1
	case msg.GetNoteOn(&ch, &key, &vel) && vel == 0:
		return 1
	}
	return 2
}

// convertToRelativeDeltas converts absolute delta times to relative delta times
func convertToRelativeDeltas(track smf.Track) smf.Track {
	var result smf.Track
	var lastTime uint32

	for _, event := range track {
		delta := event.Delta - lastTime
		result = append(result, smf.Event{Delta: delta, Message: event.Message})
		lastTime = event.Delta
	}

	return result
}

// midiOutputPath returns the path of the rehearsal file written next to a
// MusicXML output
func midiOutputPath(scorePath string) string {
	return strings.TrimSuffix(scorePath, filepath.Ext(scorePath)) + ".mid"
}
