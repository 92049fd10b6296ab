package main

import (
	"fmt"

	"github.com/google/uuid"
)

// splitStaves divides a part written on several staves, such as a choir
// grand staff with <staves>2</staves>, into one part per staff. Notes and
// directions follow their <staff> number, unnumbered ones going to the first
// staff. Every staff keeps the measure offsets of the source part, and the
// written staff numbers are cleared since each result is a single staff.
func splitStaves(p *Part) []*Part {
	staves := 1
	for _, m := range p.Measures {
		if m.Attributes != nil && m.Attributes.Staves > staves {
			staves = m.Attributes.Staves
		}
	}
	if staves == 1 {
		return []*Part{p}
	}

	parts := make([]*Part, staves)
	for i := range parts {
		parts[i] = &Part{
			ID:           fmt.Sprintf("%s-%d", p.ID, i+1),
			Name:         p.Name,
			Abbreviation: p.Abbreviation,
		}
	}

	home := make(map[uuid.UUID]int)

	for _, m := range p.Measures {
		measures := make([]*Measure, staves)
		for i, part := range parts {
			measures[i] = &Measure{
				Number:     m.Number,
				Offset:     m.Offset,
				Duration:   m.Duration,
				Attributes: staffAttributes(m.Attributes, i+1),
				Barlines:   append([]Barline(nil), m.Barlines...),
			}
			part.Measures = append(part.Measures, measures[i])
		}

		for _, d := range m.Directions {
			s := staffSlot(d.Staff, staves)
			d.Staff = 0
			measures[s].Directions = append(measures[s].Directions, d)
		}

		for _, v := range m.Voices {
			routed := make([]*Voice, staves)
			for _, n := range v.Notes {
				s := staffSlot(n.Staff, staves)
				n.Staff = 0
				if routed[s] == nil {
					routed[s] = &Voice{ID: v.ID}
					measures[s].Voices = append(measures[s].Voices, routed[s])
				}
				routed[s].Notes = append(routed[s].Notes, n)
				home[n.ID] = s
			}
		}
	}

	// a spanner crossing staves is kept on each staff it touches
	for _, sp := range p.Spanners {
		touched := make([]bool, staves)
		for _, id := range sp.Members {
			if s, ok := home[id]; ok {
				touched[s] = true
			}
		}
		for s, ok := range touched {
			if ok {
				parts[s].Spanners = append(parts[s].Spanners, sp)
			}
		}
	}

	return parts
}

// staffSlot maps a 1-based staff number to an index, defaulting to the first
func staffSlot(staff, staves int) int {
	if staff < 1 || staff > staves {
		return 0
	}
	return staff - 1
}

// staffAttributes returns the attributes as seen by a single staff: clefs
// numbered for other staves are dropped and the staff count is cleared
func staffAttributes(attrs *Attributes, staff int) *Attributes {
	if attrs == nil {
		return nil
	}

	out := *attrs
	out.Staves = 0
	out.Clefs = nil
	if attrs.KeyFifths != nil {
		fifths := *attrs.KeyFifths
		out.KeyFifths = &fifths
	}

	for _, c := range attrs.Clefs {
		number := c.Number
		if number == 0 {
			number = 1
		}
		if number != staff {
			continue
		}
		c.Number = 0
		out.Clefs = append(out.Clefs, c)
	}
	return &out
}
