// Package hal defines the hardware seams the motion core depends on:
// a digital output Pin and a reprogrammable periodic StepTimer, plus a
// CriticalSection mutual-exclusion primitive. No package in this module
// calls CriticalSection yet; the stepper guards its own callback with a
// busy flag.
//
// These interfaces play the role tinygo.org/x/drivers.SPI/UART play for
// chip drivers generally: callers wire a real tinygo backend
// (tinygo.go, //go:build tinygo) on hardware, or the software backend
// (sim.go) for host-side tests.
package hal

// Pin is a digital output: direction lines, step lines, and the
// stepper-enable line are all driven through it. Mirrors the minimal
// Pin interface tinygo.org/x/drivers/sharpmem declares for its chip
// select line.
type Pin interface {
	High()
	Low()
}

// StepTimer models one of the firmware's two cooperating periodic
// timers (the primary step timer and the one-shot pulse-reset timer).
// SetPeriod reprograms the reload value in timer clock cycles;
// implementations must tolerate it being called while the timer is
// running.
type StepTimer interface {
	SetPeriod(cycles uint32)
	SetCallback(fn func())
	Start()
	Stop()
}

// CriticalSection runs fn while holding a package-wide lock (a
// one-slot channel used as a mutex), so no two CriticalSection calls
// overlap. It does not mask interrupts, on any target; tinygo.go's
// InterruptCriticalSection is the variant that disables interrupts.
var crit = make(chan struct{}, 1)

func init() { crit <- struct{}{} }

func CriticalSection(fn func()) {
	<-crit
	defer func() { crit <- struct{}{} }()
	fn()
}
