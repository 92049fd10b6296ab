package main

import (
	"fmt"
	"strconv"
)

// MeasureSpan represents a measure with its timing information
type MeasureSpan struct {
	Number         string
	StartTime      int     // Start time in ticks
	EndTime        int     // End time in ticks
	Beats          int     // Time signature numerator
	BeatType       int     // Time signature denominator
	BeatsPerMinute float64 // Quarter notes per minute in effect at the start
}

// TempoEvent represents a tempo change in the score
type TempoEvent struct {
	Time int     // Absolute time in ticks
	BPM  float64 // Quarter notes per minute
}

// Timeline represents the measure layout of a part
type Timeline struct {
	Measures      []MeasureSpan
	Tempos        []TempoEvent
	TicksPerQuart int
}

// NewTimeline walks the measures of a part and records where each one
// starts, its time signature, and the tempo marks found in its directions
func NewTimeline(p *Part, divisions int) *Timeline {
	timeline := &Timeline{TicksPerQuart: divisions}

	beats, beatType := 4, 4
	bpm := 120.0

	for _, m := range p.Measures {
		if m.Attributes != nil {
			if b, err := strconv.Atoi(m.Attributes.Beats); err == nil && b > 0 {
				beats = b
			}
			if bt, err := strconv.Atoi(m.Attributes.BeatType); err == nil && bt > 0 {
				beatType = bt
			}
		}

		startBPM := bpm
		for _, d := range m.Directions {
			tempo := directionTempo(d)
			if tempo <= 0 {
				continue
			}
			at := m.Offset + d.Offset
			timeline.Tempos = append(timeline.Tempos, TempoEvent{Time: at, BPM: tempo})
			if at == m.Offset {
				startBPM = tempo
			}
			bpm = tempo
		}

		timeline.Measures = append(timeline.Measures, MeasureSpan{
			Number:         m.Number,
			StartTime:      m.Offset,
			EndTime:        m.Offset + m.Duration,
			Beats:          beats,
			BeatType:       beatType,
			BeatsPerMinute: startBPM,
		})
	}

	return timeline
}

// directionTempo returns the quarter-note tempo a direction sets, or 0
func directionTempo(d *Direction) float64 {
	if d.Tempo > 0 {
		return d.Tempo
	}
	if d.BeatUnit == "quarter" {
		if perMinute, err := strconv.ParseFloat(d.PerMinute, 64); err == nil {
			return perMinute
		}
	}
	return 0
}

// MeasureAt finds the measure that contains the given time
func (t *Timeline) MeasureAt(time int) *MeasureSpan {
	for i := range t.Measures {
		if time >= t.Measures[i].StartTime && time < t.Measures[i].EndTime {
			return &t.Measures[i]
		}
	}
	return nil
}

// MeasureNumberAt returns the number of the measure containing time, or "?"
func (t *Timeline) MeasureNumberAt(time int) string {
	if m := t.MeasureAt(time); m != nil {
		return m.Number
	}
	return "?"
}

// GetTotalDuration returns the total duration of the timeline in ticks
func (t *Timeline) GetTotalDuration() int {
	if len(t.Measures) == 0 {
		return 0
	}
	return t.Measures[len(t.Measures)-1].EndTime
}

// String returns a string representation of the timeline
func (t *Timeline) String() string {
	result := fmt.Sprintf("Timeline: %d measures, %d tempo marks\n", len(t.Measures), len(t.Tempos))
	for _, m := range t.Measures {
		result += fmt.Sprintf("Measure %s: %d/%d time, %.1f BPM, ticks %d-%d\n",
			m.Number, m.Beats, m.BeatType, m.BeatsPerMinute, m.StartTime, m.EndTime)
	}
	return result
}
