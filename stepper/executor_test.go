package stepper_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/go-cnc/cncfw/block"
	"github.com/go-cnc/cncfw/hal"
	"github.com/go-cnc/cncfw/stepper"
	"github.com/go-cnc/cncfw/sysstate"
)

func testConfig() stepper.Config {
	return stepper.Config{
		StepPins:                   [3]hal.Pin{&hal.FakePin{}, &hal.FakePin{}, &hal.FakePin{}},
		DirPins:                    [3]hal.Pin{&hal.FakePin{}, &hal.FakePin{}, &hal.FakePin{}},
		StepPulseMicroseconds:      10,
		TimerFrequencyHz:           16_000_000,
		AccelerationTicksPerSecond: 100,
		MinimumStepsPerMinute:      100,
	}
}

// a straight 1000-step X move, already fully planned (bypassing the
// planner so the stepper's own bookkeeping can be tested in isolation).
func straightBlock(steps int32) *block.Block {
	return &block.Block{
		Steps:           [3]int32{steps, 0, 0},
		StepEventCount:  steps,
		NominalRate:     6000,
		InitialRate:     100,
		FinalRate:       100,
		Acceleration:    36000,
		RateDelta:       360,
		AccelerateUntil: steps / 4,
		DecelerateAfter: steps - steps/4,
	}
}

// Invariant 2: the sum of step events executed equals step_event_count,
// and sys.position advances by exactly that many steps on X.
func TestExecutorCompletesBlockStepCount(t *testing.T) {
	c := qt.New(t)
	buf := block.NewBuffer(block.DefaultCapacity)
	sys := sysstate.New()
	primary := &hal.FakeTimer{}
	reset := &hal.FakeTimer{}
	_ = stepper.NewExecutor(testConfig(), primary, reset, buf, sys)

	slot, ok := buf.GetWriteSlot()
	c.Assert(ok, qt.IsTrue)
	*slot = *straightBlock(200)
	buf.CommitWrite()

	for i := 0; i < 200; i++ {
		primary.Fire()
	}

	c.Assert(buf.Empty(), qt.IsTrue)
	c.Assert(sys.Position()[0], qt.Equals, int32(200))
}

// Scenario E: feed-hold mid-block drives the rate strictly downward and
// eventually idles the stepper and raises CycleStop, without losing any
// already-completed steps.
func TestFeedHoldDecelerateAndStop(t *testing.T) {
	c := qt.New(t)
	buf := block.NewBuffer(block.DefaultCapacity)
	sys := sysstate.New()
	primary := &hal.FakeTimer{}
	reset := &hal.FakeTimer{}
	ex := stepper.NewExecutor(testConfig(), primary, reset, buf, sys)

	slot, ok := buf.GetWriteSlot()
	c.Assert(ok, qt.IsTrue)
	*slot = *straightBlock(1000)
	buf.CommitWrite()

	for i := 0; i < 200; i++ {
		primary.Fire()
	}
	c.Assert(sys.Position()[0], qt.Equals, int32(200))

	sys.Raise(sysstate.FeedHold)

	prevPeriod := primary.Period()
	strictlyNonIncreasing := true
	for i := 0; i < 2000 && sys.Has(sysstate.FeedHold) && !sys.Has(sysstate.CycleStop); i++ {
		primary.Fire()
		if primary.Period() < prevPeriod {
			strictlyNonIncreasing = false
		}
	}
	c.Assert(strictlyNonIncreasing, qt.IsTrue)
	c.Assert(sys.Has(sysstate.CycleStop), qt.IsTrue)
	c.Assert(ex.RemainingSteps() > 0, qt.IsTrue)
	c.Assert(sys.Position()[0] >= 200, qt.IsTrue)
}

// Invariant 3/4: with no hold at all, sys.position advances by exactly
// the block's step count, matching the no-hold baseline that scenario E
// compares feed-hold idempotence against.
func TestNoHoldBaseline(t *testing.T) {
	c := qt.New(t)
	buf := block.NewBuffer(block.DefaultCapacity)
	sys := sysstate.New()
	primary := &hal.FakeTimer{}
	reset := &hal.FakeTimer{}
	_ = stepper.NewExecutor(testConfig(), primary, reset, buf, sys)

	slot, ok := buf.GetWriteSlot()
	c.Assert(ok, qt.IsTrue)
	*slot = *straightBlock(1000)
	buf.CommitWrite()

	for i := 0; i < 1000; i++ {
		primary.Fire()
	}
	c.Assert(sys.Position()[0], qt.Equals, int32(1000))
}

func TestIdleRaisesCycleStopWhenBufferDrained(t *testing.T) {
	c := qt.New(t)
	buf := block.NewBuffer(block.DefaultCapacity)
	sys := sysstate.New()
	primary := &hal.FakeTimer{}
	reset := &hal.FakeTimer{}
	_ = stepper.NewExecutor(testConfig(), primary, reset, buf, sys)

	primary.Fire()
	c.Assert(sys.Has(sysstate.CycleStop), qt.IsTrue)
}
