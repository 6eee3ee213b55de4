package coordinator_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/go-cnc/cncfw/block"
	"github.com/go-cnc/cncfw/coordinator"
	"github.com/go-cnc/cncfw/hal"
	"github.com/go-cnc/cncfw/planner"
	"github.com/go-cnc/cncfw/settings"
	"github.com/go-cnc/cncfw/stepper"
	"github.com/go-cnc/cncfw/sysstate"
)

type fakeLimit struct{ triggered bool }

func (f *fakeLimit) Triggered() bool { return f.triggered }

func newTestCoordinator() (*coordinator.Coordinator, *fakeLimit) {
	sys := sysstate.New()
	buf := block.NewBuffer(block.DefaultCapacity)
	pCfg := planner.Config{
		StepsPerMM:                 [3]float32{100, 100, 100},
		AccelerationMMPerMin2:      36000,
		JunctionDeviation:          0.02,
		AccelerationTicksPerSecond: 100,
		MinimumStepsPerMinute:      100,
	}
	p := planner.New(pCfg, buf)

	exCfg := stepper.Config{
		StepPins:                   [3]hal.Pin{&hal.FakePin{}, &hal.FakePin{}, &hal.FakePin{}},
		DirPins:                    [3]hal.Pin{&hal.FakePin{}, &hal.FakePin{}, &hal.FakePin{}},
		StepPulseMicroseconds:      10,
		TimerFrequencyHz:           16_000_000,
		AccelerationTicksPerSecond: 100,
		MinimumStepsPerMinute:      100,
	}
	ex := stepper.NewExecutor(exCfg, &hal.FakeTimer{}, &hal.FakeTimer{}, buf, sys)

	set := settings.Defaults()
	limit := &fakeLimit{}
	c := coordinator.New(sys, p, ex, &set, nil, limit)
	sys.SetState(sysstate.Idle)
	return c, limit
}

// Scenario F: a hard-limit trigger alarms the machine and locks out
// g-code until $X (modeled here as the coordinator's alarm-reset path).
func TestHardLimitAlarmsAndLocksOut(t *testing.T) {
	c := qt.New(t)
	coord, limit := newTestCoordinator()

	c.Assert(coord.RunGCodeLine("G1 X10 F600"), qt.IsNil)

	limit.triggered = true
	coord.Poll()

	c.Assert(coord.Sys.State(), qt.Equals, sysstate.Alarm)

	err := coord.RunGCodeLine("G1 X0 F600")
	c.Assert(err, qt.Equals, coordinator.ErrAlarmLocked)

	limit.triggered = false
	coord.Sys.Raise(sysstate.ResetAlarm)
	coord.Poll()
	c.Assert(coord.Sys.State(), qt.Equals, sysstate.Idle)

	c.Assert(coord.RunGCodeLine("G1 X0 F600"), qt.IsNil)
}

func TestGCodeMotionDrivesCycleStart(t *testing.T) {
	c := qt.New(t)
	coord, _ := newTestCoordinator()

	c.Assert(coord.RunGCodeLine("G1 X10 F600"), qt.IsNil)
	coord.Poll()
	c.Assert(coord.Sys.State(), qt.Equals, sysstate.Cycle)
}
