package main

// SlurPosition is where a note sits inside a slur
type SlurPosition int

const (
	NotSlurred SlurPosition = iota
	SlurFirst
	SlurInterior
	SlurLast
)

// syllabicFor derives the syllabic tag of a note's lyric from its tie and
// slur membership. A tie always wins over a slur; a note that is neither
// tied nor slurred keeps the tag it was authored with.
//
//	tie       slur       -> tag
//	start     any        -> begin
//	continue  any        -> middle
//	stop      any        -> end
//	none      first      -> begin
//	none      interior   -> middle
//	none      last       -> end
//	none      none       -> current
func syllabicFor(tie TieType, slur SlurPosition, current Syllabic) Syllabic {
	switch tie {
	case TieStart:
		return SyllabicBegin
	case TieContinue:
		return SyllabicMiddle
	case TieStop:
		return SyllabicEnd
	case TieNone:
	default:
		// unknown tie types leave the tag alone
		return current
	}

	switch slur {
	case SlurFirst:
		return SyllabicBegin
	case SlurInterior:
		return SyllabicMiddle
	case SlurLast:
		return SyllabicEnd
	}

	return current
}

// slurPositionOf returns the note's position in the given slur
func slurPositionOf(sp *Spanner, n *Note) SlurPosition {
	pos := sp.Position(n.ID)
	switch {
	case pos < 0:
		return NotSlurred
	case pos == 0:
		return SlurFirst
	case pos == len(sp.Members)-1:
		return SlurLast
	default:
		return SlurInterior
	}
}
