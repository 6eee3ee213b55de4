package serial_test

import (
	"errors"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/go-cnc/cncfw/serial"
	"github.com/go-cnc/cncfw/settings"
	"github.com/go-cnc/cncfw/sysstate"
)

func feedLine(f *serial.Frontend, line string) {
	for i := 0; i < len(line); i++ {
		f.Feed(line[i])
	}
	f.Feed('\n')
}

func TestStatusReportFormat(t *testing.T) {
	c := qt.New(t)
	sys := sysstate.New()
	sys.SetState(sysstate.Idle)
	sys.SetPosition([3]int32{1000, 0, 0})
	set := settings.Defaults()

	var out strings.Builder
	f := serial.NewFrontend(sys, &set, nil, func(string) error { return nil }, func(s string) { out.WriteString(s) })

	f.Feed(serial.ByteStatus)
	c.Assert(out.String(), qt.Equals, "<Idle,MPos:10.000,0.000,0.000,WPos:10.000,0.000,0.000>\r\n")
}

func TestGCodeLineOkAndError(t *testing.T) {
	c := qt.New(t)
	sys := sysstate.New()
	sys.SetState(sysstate.Idle)
	set := settings.Defaults()

	var out strings.Builder
	f := serial.NewFrontend(sys, &set, nil, func(line string) error {
		if strings.HasPrefix(line, "G2") {
			return errors.New("unsupported G code G2")
		}
		return nil
	}, func(s string) { out.WriteString(s) })
	feedLine(f, "G1 X10 F600")
	c.Assert(out.String(), qt.Equals, "ok\r\n")

	out.Reset()
	feedLine(f, "G2 X10")
	c.Assert(out.String(), qt.Equals, "error: unsupported G code G2\r\n")
}

func TestAlarmLocksOutGCode(t *testing.T) {
	c := qt.New(t)
	sys := sysstate.New()
	sys.SetState(sysstate.Alarm)
	set := settings.Defaults()

	var out strings.Builder
	f := serial.NewFrontend(sys, &set, nil, func(string) error { return nil }, func(s string) { out.WriteString(s) })
	feedLine(f, "G1 X10 F600")
	c.Assert(out.String(), qt.Equals, "error: alarm lock\r\n")
}

func TestKillAlarmLockUnlocksState(t *testing.T) {
	c := qt.New(t)
	sys := sysstate.New()
	sys.SetState(sysstate.Alarm)
	set := settings.Defaults()

	var out strings.Builder
	f := serial.NewFrontend(sys, &set, nil, func(string) error { return nil }, func(s string) { out.WriteString(s) })
	feedLine(f, "$X")
	c.Assert(sys.State(), qt.Equals, sysstate.Idle)
}

// Invariant 5: a setting written via $x= and read back via $$ yields an
// identical value to the printed precision.
func TestSettingRoundTripViaDollarCommands(t *testing.T) {
	c := qt.New(t)
	sys := sysstate.New()
	sys.SetState(sysstate.Idle)
	set := settings.Defaults()
	store := &settings.MemStore{}

	var out strings.Builder
	f := serial.NewFrontend(sys, &set, store, func(string) error { return nil }, func(s string) { out.WriteString(s) })

	feedLine(f, "$6=12000.000")
	c.Assert(set.Acceleration, qt.Equals, float32(12000))

	out.Reset()
	feedLine(f, "$$")
	c.Assert(strings.Contains(out.String(), "$6=12000.000"), qt.IsTrue)
}
