package gcode_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/go-cnc/cncfw/gcode"
)

func TestReadLineMotion(t *testing.T) {
	c := qt.New(t)

	l, err := gcode.ReadLine("G1 X10 F600")
	c.Assert(err, qt.IsNil)
	c.Assert(l.Kind, qt.Equals, gcode.KindMotion)
	c.Assert(l.Rapid, qt.IsFalse)
	c.Assert(l.Target[0], qt.Equals, float32(10))
	c.Assert(l.HasAxis[0], qt.IsTrue)
	c.Assert(l.HasAxis[1], qt.IsFalse)
	c.Assert(l.FeedRate, qt.Equals, float32(600))
}

func TestReadLineRapid(t *testing.T) {
	c := qt.New(t)
	l, err := gcode.ReadLine("G0 X0 Y0 Z5")
	c.Assert(err, qt.IsNil)
	c.Assert(l.Rapid, qt.IsTrue)
	c.Assert(l.Target, qt.Equals, [3]float32{0, 0, 5})
}

func TestReadLineDwell(t *testing.T) {
	c := qt.New(t)
	l, err := gcode.ReadLine("G4 P1.5")
	c.Assert(err, qt.IsNil)
	c.Assert(l.Kind, qt.Equals, gcode.KindDwell)
	c.Assert(l.DwellSeconds, qt.Equals, float32(1.5))
}

func TestReadLineProgramStopAndEnd(t *testing.T) {
	c := qt.New(t)

	l, err := gcode.ReadLine("M0")
	c.Assert(err, qt.IsNil)
	c.Assert(l.Kind, qt.Equals, gcode.KindProgramStop)

	l, err = gcode.ReadLine("M2")
	c.Assert(err, qt.IsNil)
	c.Assert(l.Kind, qt.Equals, gcode.KindProgramEnd)
}

func TestReadLineRejectsUnsupported(t *testing.T) {
	c := qt.New(t)

	_, err := gcode.ReadLine("G2 X10 Y10 I5 J5")
	c.Assert(err, qt.Not(qt.IsNil))

	_, err = gcode.ReadLine("")
	c.Assert(err, qt.Not(qt.IsNil))

	_, err = gcode.ReadLine("Q7")
	c.Assert(err, qt.Not(qt.IsNil))
}
