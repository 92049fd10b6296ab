package main

import (
	"fmt"
)

// OutOfRangeError is returned when a staff index does not exist in the score
type OutOfRangeError struct {
	Index int // Requested 1-based staff index
	Count int // Number of staves in the score
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("staff %d out of range: score has %d staves", e.Index, e.Count)
}

// ParseError is returned when a document cannot be read as MusicXML
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse error: %v", e.Err)
	}
	return fmt.Sprintf("parse error in %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
