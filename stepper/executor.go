// Package stepper drives the two cooperating timers that turn a planned
// block into physical step pulses: a primary timer whose period is the
// current trapezoid rate (reprogrammed on every step event) and a
// one-shot pulse-reset timer that clears the step pins after the
// configured pulse width. Both timer callbacks are expected to run at
// interrupt priority; Executor guards against reentrant primary-timer
// callbacks with a busy flag scoped around the inner body.
package stepper

import (
	"math"

	"github.com/go-cnc/cncfw/block"
	"github.com/go-cnc/cncfw/hal"
	"github.com/go-cnc/cncfw/sysstate"
)

// Config holds the pin wiring and timing constants the executor needs
// to convert a trapezoid rate (steps/min) into a timer reload value and
// to drive the step/direction/pulse-reset sequence.
type Config struct {
	StepPins [3]hal.Pin
	DirPins  [3]hal.Pin

	// StepPulseMicroseconds is how long a step pulse stays high before
	// the reset timer clears it.
	StepPulseMicroseconds uint32

	// TimerFrequencyHz is the clock driving both timers.
	TimerFrequencyHz uint32

	// AccelerationTicksPerSecond is how often, in real time, the
	// trapezoid rate is allowed to step by one RateDelta.
	AccelerationTicksPerSecond float32

	// MinimumStepsPerMinute floors the programmed rate; the resulting
	// timer period is additionally capped at the largest uint32 reload
	// value.
	MinimumStepsPerMinute float32

	// InvertStep, if true, drives step pins Low() for "pulse active"
	// instead of High() (idle-polarity convention for some driver ICs).
	InvertStep bool
}

// trapezoidPhase is which segment of the trapezoid profile the
// just-completed step event falls in, tracked so updateTrapezoid can
// tell a boundary step (phase just changed) from an interior one.
type trapezoidPhase uint8

const (
	phaseAccel trapezoidPhase = iota
	phaseCruise
	phaseDecel
)

// Executor owns the live step-generation state: the currently executing
// block, its Bresenham counters, and the trapezoid rate being tracked
// tick by tick.
type Executor struct {
	cfg        Config
	stepTimer  hal.StepTimer
	resetTimer hal.StepTimer
	buf        *block.Buffer
	sys        *sysstate.System

	busy bool

	current             *block.Block
	counter             [3]int32
	stepEventsCompleted int32

	cyclesPerAccelTick        uint32
	trapezoidTickCycleCounter uint32
	trapezoidAdjustedRate     float32
	trapezoidPhase            trapezoidPhase

	// minSafeRate floors the decelerate branch's plain rate -= RateDelta
	// step: once rate has decayed to it, the rate is halved each tick
	// instead, so rounding near a full stop can never walk the rate
	// negative. Recomputed whenever a block is (re)loaded.
	minSafeRate float32

	outBits uint8
}

// NewExecutor wires an Executor to its two timers, the block buffer it
// consumes from, and the shared machine state it advances.
func NewExecutor(cfg Config, stepTimer, resetTimer hal.StepTimer, buf *block.Buffer, sys *sysstate.System) *Executor {
	e := &Executor{
		cfg:        cfg,
		stepTimer:  stepTimer,
		resetTimer: resetTimer,
		buf:        buf,
		sys:        sys,
	}
	if cfg.AccelerationTicksPerSecond > 0 {
		e.cyclesPerAccelTick = uint32(float32(cfg.TimerFrequencyHz) / cfg.AccelerationTicksPerSecond)
	}
	e.stepTimer.SetCallback(e.tick)
	e.resetTimer.SetCallback(e.resetPulse)
	return e
}

// Idle reports whether the executor has no block loaded and the buffer
// has nothing queued; the runtime coordinator uses this to decide
// whether a cycle-start is meaningful.
func (e *Executor) Idle() bool {
	return e.current == nil && e.buf.Empty()
}

// Arm starts the primary timer if it is idle and a block is available.
// Called by the runtime coordinator on CycleStart.
func (e *Executor) Arm() {
	if e.current != nil {
		return
	}
	if e.buf.Empty() {
		return
	}
	e.stepTimer.Start()
}

// cyclesForRate converts a steps/min rate into a timer reload value:
// cycles_per_step_event = 60 * TimerFrequencyHz / rate, saturated at the
// largest uint32 value.
func (e *Executor) cyclesForRate(rate float32) uint32 {
	if rate < e.cfg.MinimumStepsPerMinute {
		rate = e.cfg.MinimumStepsPerMinute
	}
	cycles := 60 * float32(e.cfg.TimerFrequencyHz) / rate
	if cycles >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(cycles)
}

func (e *Executor) loadBlock(blk *block.Block) {
	e.current = blk
	e.counter = [3]int32{blk.StepEventCount / 2, blk.StepEventCount / 2, blk.StepEventCount / 2}
	e.stepEventsCompleted = 0
	e.trapezoidPhase = phaseAccel
	e.minSafeRate = blk.RateDelta + blk.RateDelta/2
	e.trapezoidAdjustedRate = blk.InitialRate
	if e.trapezoidAdjustedRate < e.cfg.MinimumStepsPerMinute {
		e.trapezoidAdjustedRate = e.cfg.MinimumStepsPerMinute
	}
	// Midpoint rule: seed the tick counter at half a period so the first
	// rate adjustment lands symmetrically between step events instead of
	// right at the block boundary, critical to symmetric accel/decel.
	e.trapezoidTickCycleCounter = e.cyclesPerAccelTick / 2
	e.stepTimer.SetPeriod(e.cyclesForRate(e.trapezoidAdjustedRate))
}

// tick is the primary timer's callback: it fires once per step event. It
// steps whichever axes Bresenham selects, then advances the trapezoid
// rate by at most one RateDelta before reprogramming the timer for the
// next period.
func (e *Executor) tick() {
	if e.busy {
		return
	}
	e.busy = true
	defer func() { e.busy = false }()

	if e.current == nil {
		blk, ok := e.buf.PeekCurrent()
		if !ok {
			e.stepTimer.Stop()
			e.sys.Raise(sysstate.CycleStop)
			return
		}
		e.loadBlock(blk)
	}

	e.step()

	e.stepEventsCompleted++
	completedBlock := e.current
	if e.stepEventsCompleted >= completedBlock.StepEventCount {
		e.buf.DiscardCurrent()
		e.current = nil
	}

	if e.sys.Has(sysstate.FeedHold) {
		e.applyFeedHold()
	} else if e.current != nil {
		e.updateTrapezoid(completedBlock)
	}

	if e.current != nil {
		e.stepTimer.SetPeriod(e.cyclesForRate(e.trapezoidAdjustedRate))
	}
}

// step performs one Bresenham iteration: every axis whose accumulated
// error exceeds the block's major-axis event count gets pulsed, in the
// direction recorded on the block.
func (e *Executor) step() {
	e.outBits = e.current.DirectionBits & block.DirectionMask
	for axis := 0; axis < 3; axis++ {
		e.counter[axis] += e.current.Steps[axis]
		if e.counter[axis] >= e.current.StepEventCount {
			e.counter[axis] -= e.current.StepEventCount
			e.outBits |= block.StepBit(axis)
		}
	}

	for axis := 0; axis < 3; axis++ {
		dir := e.cfg.DirPins[axis]
		if dir == nil {
			continue
		}
		if e.outBits&block.DirBit(axis) != 0 {
			dir.High()
		} else {
			dir.Low()
		}
	}

	var sign [3]int32
	for axis := 0; axis < 3; axis++ {
		if e.outBits&block.DirBit(axis) != 0 {
			sign[axis] = -1
		} else {
			sign[axis] = 1
		}
	}

	for axis := 0; axis < 3; axis++ {
		if e.outBits&block.StepBit(axis) == 0 {
			continue
		}
		pin := e.cfg.StepPins[axis]
		if pin != nil {
			if e.cfg.InvertStep {
				pin.Low()
			} else {
				pin.High()
			}
		}
		e.sys.StepPosition(axis, sign[axis])
	}

	if e.outBits&block.StepMask != 0 {
		e.resetTimer.SetPeriod(e.cfg.StepPulseMicroseconds)
		e.resetTimer.Start()
	}
}

// resetPulse is the pulse-reset timer's callback: it returns every
// asserted step pin to its idle level.
func (e *Executor) resetPulse() {
	for axis := 0; axis < 3; axis++ {
		if e.outBits&block.StepBit(axis) == 0 {
			continue
		}
		pin := e.cfg.StepPins[axis]
		if pin == nil {
			continue
		}
		if e.cfg.InvertStep {
			pin.High()
		} else {
			pin.Low()
		}
	}
	e.resetTimer.Stop()
}

// updateTrapezoid advances trapezoid_adjusted_rate by at most one
// RateDelta per AccelerationTicksPerSecond of real time, choosing the
// accelerate/cruise/decelerate branch from the just-completed block's
// phase boundaries.
//
// The instant the phase first becomes decelerate, the tick counter is
// reseeded rather than left to the normal rollover: entering from
// cruise (trapezoid profile) restarts it at half a period, the same
// midpoint rule loadBlock applies at the start of the block; entering
// directly from accelerate (triangle profile, no cruise phase) instead
// carries the complement of whatever the counter already held, so the
// decel ramp picks up exactly where the accel ramp's ticking left off
// instead of resetting the phase.
func (e *Executor) updateTrapezoid(justCompleted *block.Block) {
	var newPhase trapezoidPhase
	switch {
	case e.stepEventsCompleted < justCompleted.AccelerateUntil:
		newPhase = phaseAccel
	case e.stepEventsCompleted >= justCompleted.DecelerateAfter:
		newPhase = phaseDecel
	default:
		newPhase = phaseCruise
	}

	enteringDecel := newPhase == phaseDecel && e.trapezoidPhase != phaseDecel
	tickDue := enteringDecel
	if enteringDecel {
		if e.trapezoidPhase == phaseCruise {
			e.trapezoidTickCycleCounter = e.cyclesPerAccelTick / 2
		} else {
			e.trapezoidTickCycleCounter = e.cyclesPerAccelTick - e.trapezoidTickCycleCounter
		}
	} else {
		cyclesThisEvent := e.cyclesForRate(e.trapezoidAdjustedRate)
		if e.trapezoidTickCycleCounter > cyclesThisEvent {
			e.trapezoidTickCycleCounter -= cyclesThisEvent
		} else {
			if e.trapezoidTickCycleCounter+e.cyclesPerAccelTick > cyclesThisEvent {
				e.trapezoidTickCycleCounter += e.cyclesPerAccelTick - cyclesThisEvent
			} else {
				// The step period spans more than a whole tick: tick again
				// on the next event rather than wrapping the counter.
				e.trapezoidTickCycleCounter = 0
			}
			tickDue = true
		}
	}
	e.trapezoidPhase = newPhase

	if !tickDue {
		return
	}

	switch newPhase {
	case phaseAccel:
		e.trapezoidAdjustedRate += justCompleted.RateDelta
		if e.trapezoidAdjustedRate > justCompleted.NominalRate {
			e.trapezoidAdjustedRate = justCompleted.NominalRate
		}
	case phaseDecel:
		if e.trapezoidAdjustedRate > e.minSafeRate {
			e.trapezoidAdjustedRate -= justCompleted.RateDelta
		} else {
			e.trapezoidAdjustedRate /= 2
		}
		if e.trapezoidAdjustedRate < justCompleted.FinalRate {
			e.trapezoidAdjustedRate = justCompleted.FinalRate
		}
	default:
		e.trapezoidAdjustedRate = justCompleted.NominalRate
	}
}

// applyFeedHold overrides the normal trapezoid policy to force
// deceleration regardless of block phase (scenario E). Once the rate has
// decayed to its own RateDelta (i.e. one more decrement would cross
// zero), the executor stops the timer and reports completion; the block
// is left loaded with stepEventsCompleted frozen so the caller can ask
// the planner to replan the remaining steps via
// Planner.CycleReinitialize and then Resume.
func (e *Executor) applyFeedHold() {
	if e.current == nil {
		e.stepTimer.Stop()
		e.sys.SetState(sysstate.Hold)
		e.sys.Raise(sysstate.FeedHoldComplete)
		e.sys.Raise(sysstate.CycleStop)
		return
	}
	rateDelta := e.current.RateDelta
	if rateDelta <= 0 {
		rateDelta = 1
	}
	if e.trapezoidAdjustedRate <= rateDelta {
		e.trapezoidAdjustedRate = 0
		e.stepTimer.Stop()
		e.sys.SetState(sysstate.Hold)
		e.sys.Raise(sysstate.FeedHoldComplete)
		e.sys.Raise(sysstate.CycleStop)
		return
	}
	e.trapezoidAdjustedRate -= rateDelta
}

// RemainingSteps returns how many step events the currently loaded block
// has left to execute, or 0 if no block is loaded. Used by the runtime
// coordinator to drive Planner.CycleReinitialize after a completed feed
// hold.
func (e *Executor) RemainingSteps() int32 {
	if e.current == nil {
		return 0
	}
	return e.current.StepEventCount - e.stepEventsCompleted
}

// Resume restarts the primary timer after a feed hold has completed and
// the planner has replanned the current block's remaining distance from
// rest. It re-seeds the trapezoid tracking and the Bresenham counters
// exactly as loadBlock does, since CycleReinitialize rewrote the
// current block's own fields (including the per-axis Steps, rescaled to
// the remaining distance) in place as if it were a fresh block.
func (e *Executor) Resume() {
	if e.current == nil {
		return
	}
	e.counter = [3]int32{e.current.StepEventCount / 2, e.current.StepEventCount / 2, e.current.StepEventCount / 2}
	e.stepEventsCompleted = 0
	e.trapezoidPhase = phaseAccel
	e.minSafeRate = e.current.RateDelta + e.current.RateDelta/2
	e.trapezoidAdjustedRate = e.current.InitialRate
	if e.trapezoidAdjustedRate < e.cfg.MinimumStepsPerMinute {
		e.trapezoidAdjustedRate = e.cfg.MinimumStepsPerMinute
	}
	e.trapezoidTickCycleCounter = e.cyclesPerAccelTick / 2
	e.stepTimer.SetPeriod(e.cyclesForRate(e.trapezoidAdjustedRate))
	e.stepTimer.Start()
}

// Disarm immediately stops both timers without waiting for the current
// pulse to clear; used on alarm (scenario F), which must disarm the
// stepper within one pulse period.
func (e *Executor) Disarm() {
	e.stepTimer.Stop()
	e.resetTimer.Stop()
	e.current = nil
}
