// Package sysstate holds the machine's singleton run state: the cycle
// state enum, the step-counted machine position, and the pending-action
// bitset that interrupts and the foreground use to hand off work.
//
// Position is mutated only by the stepper interrupt while a block is
// executing, and by homing; State transitions obey the machine in
// package coordinator. Pending is a word-wide bitset so it can be raised
// from interrupt context and drained from the foreground without a lock.
package sysstate

import "sync/atomic"

// State is the machine's top-level cycle state.
type State uint32

const (
	Init State = iota
	Idle
	Queued
	Cycle
	Hold
	Homing
	Alarm
	CheckMode
)

func (s State) String() string {
	switch s {
	case Init:
		return "Init"
	case Idle:
		return "Idle"
	case Queued:
		return "Queue"
	case Cycle:
		return "Run"
	case Hold:
		return "Hold"
	case Homing:
		return "Home"
	case Alarm:
		return "Alarm"
	case CheckMode:
		return "Check"
	default:
		return "Unknown"
	}
}

// Pending is a bitset of runtime actions raised by interrupts or the
// serial front-end and consumed by the runtime coordinator.
type Pending uint32

const (
	StatusReport Pending = 1 << iota
	CycleStart
	FeedHold
	CycleStop
	FeedHoldComplete
	ResetAlarm
	Abort
)

// System is the process-wide singleton machine state.
type System struct {
	state    atomic.Uint32
	position [3]atomic.Int32
	pending  atomic.Uint32

	// AutoStart is foreground-only; the coordinator is the sole owner.
	AutoStart bool
}

// New returns a System in the Init state.
func New() *System {
	s := &System{}
	s.state.Store(uint32(Init))
	return s
}

func (s *System) State() State { return State(s.state.Load()) }

func (s *System) SetState(st State) { s.state.Store(uint32(st)) }

// Position returns all three axes. Each axis is read atomically, but the
// three reads are separate: a step interrupt landing between them can
// leave the result mixing pre- and post-step values across axes.
func (s *System) Position() [3]int32 {
	return [3]int32{s.position[0].Load(), s.position[1].Load(), s.position[2].Load()}
}

// SetPosition overwrites all three axes at once. Used by homing.
func (s *System) SetPosition(pos [3]int32) {
	for i := range pos {
		s.position[i].Store(pos[i])
	}
}

// StepPosition advances axis i by one step in the given direction sign
// (+1 or -1). Called only from the stepper interrupt.
func (s *System) StepPosition(axis int, sign int32) {
	s.position[axis].Add(sign)
}

// Raise ORs flags into the pending bitset. Safe from interrupt context.
func (s *System) Raise(flags Pending) {
	for {
		old := s.pending.Load()
		next := old | uint32(flags)
		if next == old || s.pending.CompareAndSwap(old, next) {
			return
		}
	}
}

// Has reports whether all of flags are currently set.
func (s *System) Has(flags Pending) bool {
	return Pending(s.pending.Load())&flags == flags
}

// TestAndClear atomically clears flags and returns which of them were
// set beforehand. The runtime coordinator uses this to drain pending
// once per poll without losing a flag raised concurrently by an
// interrupt for a bit it isn't clearing.
func (s *System) TestAndClear(flags Pending) Pending {
	for {
		old := s.pending.Load()
		set := Pending(old) & flags
		if set == 0 {
			return 0
		}
		if s.pending.CompareAndSwap(old, old&^uint32(set)) {
			return set
		}
	}
}
