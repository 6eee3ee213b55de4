//go:build tinygo

package hal

import (
	"machine"
	"runtime/interrupt"
)

// MachinePin adapts a machine.Pin to hal.Pin. Pins must already be
// configured (machine.PinOutput) by the caller; bus and chip-select
// peripherals follow the same convention.
type MachinePin machine.Pin

func (p MachinePin) High() { machine.Pin(p).High() }
func (p MachinePin) Low()  { machine.Pin(p).Low() }

// InterruptCriticalSection replaces the portable mutex-based
// CriticalSection on a real target: it disables all interrupts for the
// duration of fn, which also covers the step interrupt for a consistent
// copy. The irq argument is accepted but not used; no single IRQ is
// masked on its own.
func InterruptCriticalSection(irq int, fn func()) {
	state := interrupt.Disable()
	defer interrupt.Restore(state)
	_ = irq
	fn()
}

// MachineTimer adapts one of the chip's hardware timer peripherals
// (machine.TCC0/TCC1/... depending on target) to hal.StepTimer. Each
// StepTimer the stepper package needs (the primary rate timer and the
// one-shot pulse-reset timer) gets its own MachineTimer bound to a
// distinct peripheral, since both must be free to reprogram
// independently while the other is running.
type MachineTimer struct {
	tcc *machine.TCC
}

// NewMachineTimer wraps an already-configured TCC peripheral. Configure
// (frequency, counter mode) is left to the caller, the same bring-up
// split applied to the bus and chip-select peripherals elsewhere in
// this package.
func NewMachineTimer(tcc *machine.TCC) *MachineTimer {
	return &MachineTimer{tcc: tcc}
}

func (t *MachineTimer) SetPeriod(cycles uint32) { t.tcc.SetTop(cycles) }

func (t *MachineTimer) SetCallback(fn func()) {
	t.tcc.SetInterrupt(func(machine.TCC) { fn() })
}

func (t *MachineTimer) Start() { t.tcc.Counter = 0 }
func (t *MachineTimer) Stop()  { t.tcc.SetTop(0) }
