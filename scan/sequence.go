// Package scan plans auto-scanning sequences over regions of interest of
// a pyramid level: an ordered, lazily produced stream of frame rectangles
// with first/last flags, plus the flat configuration record of the
// scanning pipeline.
package scan

import (
	"fmt"
	"strings"
)

// Sequence selects the frame enumeration order inside one ROI.
type Sequence int

const (
	SequenceNone Sequence = iota
	SequenceRowsLTR
	SequenceRowsSnake
	SequenceColsTTB
	SequenceColsSnake
	SequenceShortestSide
	SequenceShortestSideSnake
)

var sequenceNames = map[Sequence]string{
	SequenceNone:              "NONE",
	SequenceRowsLTR:           "ROWS_LEFT_TO_RIGHT",
	SequenceRowsSnake:         "ROWS_SNAKE",
	SequenceColsTTB:           "COLUMNS_TOP_TO_BOTTOM",
	SequenceColsSnake:         "COLUMNS_SNAKE",
	SequenceShortestSide:      "SHORTEST_SIDE",
	SequenceShortestSideSnake: "SHORTEST_SIDE_SNAKE",
}

func (s Sequence) String() string {
	if n, ok := sequenceNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// ParseSequence resolves a configuration string.
func ParseSequence(s string) (Sequence, error) {
	needle := strings.ToUpper(strings.TrimSpace(s))
	for seq, name := range sequenceNames {
		if name == needle {
			return seq, nil
		}
	}
	return SequenceNone, fmt.Errorf("unknown scanning sequence %q", s)
}

// snake reports whether the direction alternates per series.
func (s Sequence) snake() bool {
	switch s {
	case SequenceRowsSnake, SequenceColsSnake, SequenceShortestSideSnake:
		return true
	}
	return false
}

// resolveOrientation decides rows-vs-columns for a concrete ROI: the
// shortest-side modes scan series along the longer dimension so each
// series crosses the short one.
func (s Sequence) resolveOrientation(roiW, roiH int64) (byRows bool) {
	switch s {
	case SequenceColsTTB, SequenceColsSnake:
		return false
	case SequenceShortestSide, SequenceShortestSideSnake:
		return roiW >= roiH
	}
	return true
}
