// Package coordinator is the runtime state machine: it owns the
// foreground polling loop that drains sysstate.System's pending bitset
// and drives state transitions between Idle, Cycle, Hold, Homing and
// Alarm.
package coordinator

import (
	"log"

	"github.com/go-cnc/cncfw/gcode"
	"github.com/go-cnc/cncfw/planner"
	"github.com/go-cnc/cncfw/settings"
	"github.com/go-cnc/cncfw/stepper"
	"github.com/go-cnc/cncfw/sysstate"
)

// CustomError is the lightweight, allocation-free error type for the
// coordinator's rejections. RunGCodeLine returns ErrAlarmLocked; ErrBusy
// and ErrQueued are declared but no path in this package returns them.
type CustomError string

func (e CustomError) Error() string { return string(e) }

const (
	ErrBusy        CustomError = "busy"
	ErrQueued      CustomError = "queued"
	ErrAlarmLocked CustomError = "alarm lock"
)

// Homer runs the homing cycle. It is an external collaborator: the
// coordinator only needs to know when homing starts and finishes, not
// how it probes limit switches.
type Homer interface {
	Home() (pos [3]int32, err error)
}

// LimitSwitch reports a hard-limit trigger. A nil LimitSwitch means no
// limit inputs are wired (e.g. the host-side simulator).
type LimitSwitch interface {
	Triggered() bool
}

// Coordinator wires together the planner, stepper executor and shared
// machine state, and runs the foreground poll loop.
type Coordinator struct {
	Sys      *sysstate.System
	Planner  *planner.Planner
	Executor *stepper.Executor
	Settings *settings.Settings
	Homer    Homer
	Limits   LimitSwitch
}

// New builds a Coordinator already wired to the given components.
func New(sys *sysstate.System, p *planner.Planner, ex *stepper.Executor, set *settings.Settings, homer Homer, limits LimitSwitch) *Coordinator {
	return &Coordinator{Sys: sys, Planner: p, Executor: ex, Settings: set, Homer: homer, Limits: limits}
}

// RunGCodeLine is the serial.LineHandler the coordinator hands to the
// serial front-end: it rejects every line while alarmed, otherwise
// parses the line and feeds it to the planner.
func (c *Coordinator) RunGCodeLine(line string) error {
	if c.Sys.State() == sysstate.Alarm {
		return ErrAlarmLocked
	}

	l, err := gcode.ReadLine(line)
	if err != nil {
		return err
	}

	switch l.Kind {
	case gcode.KindMotion:
		target := c.Planner.CurrentTargetMM()
		for axis := 0; axis < 3; axis++ {
			if l.HasAxis[axis] {
				target[axis] = l.Target[axis]
			}
		}
		feed := l.FeedRate
		if !l.HasFeed {
			feed = c.Settings.DefaultFeedRate
		}
		if err := c.Planner.AppendLine(target, feed, false); err != nil {
			return err
		}
		c.Sys.Raise(sysstate.CycleStart)
	case gcode.KindDwell:
		c.Planner.Synchronize(c.Poll)
	case gcode.KindProgramStop:
		c.Planner.Synchronize(c.Poll)
		c.Sys.SetState(sysstate.Idle)
	case gcode.KindProgramEnd:
		c.Planner.Synchronize(c.Poll)
		c.Planner.Init()
		c.Sys.SetState(sysstate.Idle)
	}
	return nil
}

// Poll drains one round of pending flags and advances the state
// machine. It is meant to be called in a tight foreground loop (and is
// also what Planner.Synchronize's cooperative wait calls between spins).
// AppendLine's buffer-full retry loop does not call it: that wait ends
// only once the stepper discards a block, which only happens while the
// executor's timer is armed.
func (c *Coordinator) Poll() {
	if c.Limits != nil && c.Limits.Triggered() {
		c.raiseAlarm("hard limit")
		return
	}

	flags := c.Sys.TestAndClear(sysstate.Abort | sysstate.ResetAlarm | sysstate.CycleStart | sysstate.CycleStop | sysstate.FeedHoldComplete)

	if flags.Has(sysstate.Abort) {
		c.Executor.Disarm()
		c.raiseAlarm("abort during cycle")
		return
	}

	if flags.Has(sysstate.ResetAlarm) && c.Sys.State() == sysstate.Alarm {
		c.Sys.SetState(sysstate.Idle)
	}

	if c.Sys.Has(sysstate.FeedHold) {
		// The stepper sets State to Hold itself once it has confirmed
		// FeedHoldComplete (decelerated to a stop); resuming from there
		// still waits for an operator CycleStart ('~') rather than
		// happening automatically, so a feed hold actually pauses.
		if c.Sys.State() == sysstate.Hold && flags.Has(sysstate.CycleStart) {
			c.Sys.SetState(sysstate.Queued)
			remaining := c.Executor.RemainingSteps()
			c.Planner.CycleReinitialize(remaining)
			c.Sys.TestAndClear(sysstate.FeedHold)
			c.Executor.Resume()
			c.Sys.SetState(sysstate.Cycle)
		}
		return
	}

	if flags.Has(sysstate.CycleStart) {
		if c.Sys.State() != sysstate.Alarm && c.Sys.State() != sysstate.Homing {
			c.Executor.Arm()
			if !c.Executor.Idle() {
				c.Sys.SetState(sysstate.Cycle)
			}
		}
	}

	if flags.Has(sysstate.CycleStop) && c.Executor.Idle() && c.Sys.State() == sysstate.Cycle {
		c.Sys.SetState(sysstate.Idle)
	}
}

// raiseAlarm disarms the stepper (within one pulse period, per scenario
// F) and locks the machine into Alarm until an explicit $X unlock. It
// does not itself raise pending.Abort: that flag signals "an abort was
// requested" (reset byte, explicit abort call) rather than "the machine
// is alarmed" — conflating the two would make every Poll after an alarm
// re-observe Abort and re-enter raiseAlarm, defeating $X.
func (c *Coordinator) raiseAlarm(reason string) {
	c.Executor.Disarm()
	c.Planner.Init()
	c.Sys.SetState(sysstate.Alarm)
	log.Printf("ALARM: %s", reason)
}
