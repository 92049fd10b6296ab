package main

import (
	"strings"
)

// lyricFragment renders a lyric as a hyphenated fragment: syllables that
// begin or continue a word get a trailing "-", the way karaoke style lyric
// events mark an unfinished word
func lyricFragment(l Lyric) string {
	text := strings.TrimSpace(l.Text)
	if text == "" {
		return ""
	}
	if l.Syllabic == SyllabicBegin || l.Syllabic == SyllabicMiddle {
		return strings.TrimSuffix(text, "-") + "-"
	}
	return text
}

// joinLyricFragments joins hyphenated lyric fragments into readable text.
//
// Formatting rules handled:
// - Multi-syllable words: "Joy-" "ful" → "Joyful"
// - Leading hyphens on continuations: "Joy-" "-ful" → "Joyful"
// - Melisma continuation markers: "Glo-" "_" "ri-" "a" → "Gloria"
func joinLyricFragments(fragments []string) string {
	var result []string
	var currentWord strings.Builder

	for _, fragment := range fragments {
		cleaned := strings.TrimSpace(fragment)
		if cleaned == "" || cleaned == "_" {
			continue
		}

		// Continuations sometimes carry their own leading hyphen
		if currentWord.Len() > 0 {
			cleaned = strings.TrimPrefix(cleaned, "-")
		}

		isSyllableContinuation := strings.HasSuffix(cleaned, "-")
		if isSyllableContinuation {
			cleaned = strings.TrimSuffix(cleaned, "-")
		}

		currentWord.WriteString(cleaned)

		// If this syllable doesn't continue to next (no trailing hyphen), complete the word
		if !isSyllableContinuation {
			if word := currentWord.String(); word != "" {
				result = append(result, word)
			}
			currentWord.Reset()
		}
	}

	// Handle any remaining word
	if currentWord.Len() > 0 {
		result = append(result, currentWord.String())
	}

	return strings.Join(result, " ")
}

// LyricText returns the words sung by the part, built from the first lyric
// of every note in time order
func (p *Part) LyricText() string {
	var fragments []string
	for _, n := range p.Notes() {
		if n.HasLyric() {
			fragments = append(fragments, lyricFragment(n.Lyrics[0]))
		}
	}
	return joinLyricFragments(fragments)
}
