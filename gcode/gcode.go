// Package gcode is a deliberately minimal reader for the motion words a
// planner needs to drive a machine end to end: G0/G1 linear moves, G4
// dwell, and M0/M2 program stop/end. Arcs, canned cycles, and modal
// persistence beyond "current target position" are out of scope; a
// full tokenizer is a separate concern, and this just stands in for
// enough of it to exercise the planner and stepper packages.
package gcode

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a parsed Line.
type Kind int

const (
	KindMotion Kind = iota
	KindDwell
	KindProgramStop
	KindProgramEnd
)

// Line is one parsed g-code line. Target and FeedRate are only
// meaningful for KindMotion; DwellSeconds only for KindDwell.
type Line struct {
	Kind         Kind
	Rapid        bool // true for G0, false for G1
	Target       [3]float32
	HasAxis      [3]bool
	FeedRate     float32
	HasFeed      bool
	DwellSeconds float32
}

// ErrLine is returned for any line that cannot be parsed with this
// reduced grammar; its Msg is reported verbatim as `error: <msg>`.
type ErrLine struct{ Msg string }

func (e ErrLine) Error() string { return e.Msg }

// ReadLine tokenizes one line of input into a Line. Words are
// whitespace-separated; each word is a single letter followed by a
// number, e.g. "G1", "X10.5", "F600".
func ReadLine(line string) (Line, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Line{}, ErrLine{Msg: "empty line"}
	}

	var out Line
	sawG := false
	for _, word := range fields {
		letter := word[0]
		rest := word[1:]
		switch letter {
		case 'G', 'g':
			code, err := strconv.Atoi(rest)
			if err != nil {
				return Line{}, ErrLine{Msg: fmt.Sprintf("malformed G word %q", word)}
			}
			sawG = true
			switch code {
			case 0:
				out.Kind = KindMotion
				out.Rapid = true
			case 1:
				out.Kind = KindMotion
				out.Rapid = false
			case 4:
				out.Kind = KindDwell
			default:
				return Line{}, ErrLine{Msg: fmt.Sprintf("unsupported G code G%d", code)}
			}
		case 'M', 'm':
			code, err := strconv.Atoi(rest)
			if err != nil {
				return Line{}, ErrLine{Msg: fmt.Sprintf("malformed M word %q", word)}
			}
			switch code {
			case 0:
				out.Kind = KindProgramStop
			case 2:
				out.Kind = KindProgramEnd
			default:
				return Line{}, ErrLine{Msg: fmt.Sprintf("unsupported M code M%d", code)}
			}
		case 'X', 'x':
			v, err := strconv.ParseFloat(rest, 32)
			if err != nil {
				return Line{}, ErrLine{Msg: fmt.Sprintf("malformed X word %q", word)}
			}
			out.Target[0] = float32(v)
			out.HasAxis[0] = true
		case 'Y', 'y':
			v, err := strconv.ParseFloat(rest, 32)
			if err != nil {
				return Line{}, ErrLine{Msg: fmt.Sprintf("malformed Y word %q", word)}
			}
			out.Target[1] = float32(v)
			out.HasAxis[1] = true
		case 'Z', 'z':
			v, err := strconv.ParseFloat(rest, 32)
			if err != nil {
				return Line{}, ErrLine{Msg: fmt.Sprintf("malformed Z word %q", word)}
			}
			out.Target[2] = float32(v)
			out.HasAxis[2] = true
		case 'F', 'f':
			v, err := strconv.ParseFloat(rest, 32)
			if err != nil {
				return Line{}, ErrLine{Msg: fmt.Sprintf("malformed F word %q", word)}
			}
			out.FeedRate = float32(v)
			out.HasFeed = true
		case 'P', 'p':
			v, err := strconv.ParseFloat(rest, 32)
			if err != nil {
				return Line{}, ErrLine{Msg: fmt.Sprintf("malformed P word %q", word)}
			}
			out.DwellSeconds = float32(v)
		default:
			return Line{}, ErrLine{Msg: fmt.Sprintf("unsupported word %q", word)}
		}
	}

	if !sawG && out.Kind != KindProgramStop && out.Kind != KindProgramEnd {
		return Line{}, ErrLine{Msg: "missing command letter"}
	}
	return out, nil
}
