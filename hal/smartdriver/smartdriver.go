// Package smartdriver drives a TMC2209 stepper driver over its UART
// register interface: current scaling, microstep resolution, and
// StealthChop/SpreadCycle mode selection, plus fault readback.
package smartdriver

import "github.com/go-cnc/cncfw/internal/clamp"

// CustomError is the allocation-free error idiom used for the hot-path
// communication errors below.
type CustomError string

func (e CustomError) Error() string { return string(e) }

const ErrNotResponding CustomError = "smartdriver: driver not responding"

// Config is the at-bring-up configuration Configure applies in one
// shot: current scaling (as a percentage of the driver's full-scale
// rating), microstep resolution, and the StealthChop/SpreadCycle mode.
// CoolStep is not configured.
type Config struct {
	RunCurrentPercent  uint8
	HoldCurrentPercent uint8
	HoldDelay          uint8

	// Microsteps must be a power of two from 1 (full step) to 256.
	Microsteps uint16

	// StealthChop selects silent PWM chopping instead of SpreadCycle;
	// SpreadCycle gives more torque headroom at the cost of audible
	// chopping noise.
	StealthChop bool
}

// Driver is a single TMC2209 on the UART bus, addressed by its
// slave-address pin strapping.
type Driver struct {
	comm    RegisterComm
	address uint8
}

// NewDriver binds a Driver to a communication interface and slave
// address. comm is typically a *UARTComm on real hardware.
func NewDriver(comm RegisterComm, address uint8) *Driver {
	return &Driver{comm: comm, address: address}
}

// Setup calls comm's own Setup method when it has one (as *UARTComm
// does); backends without one, such as the fakes used in tests, have no
// setup step.
func (d *Driver) Setup() error {
	if s, ok := d.comm.(interface{ Setup() error }); ok {
		return s.Setup()
	}
	return nil
}

// Verify reads the IOIN register's version field and confirms it
// matches the TMC2209's known silicon version before trusting any
// other register access.
func (d *Driver) Verify() error {
	var io Ioin
	if err := readRegister(d.comm, d.address, &io); err != nil {
		return err
	}
	if io.Version != expectedVersion {
		return ErrNotResponding
	}
	return nil
}

// Configure writes GCONF, CHOPCONF and IHOLD_IRUN from cfg in one pass.
func (d *Driver) Configure(cfg Config) error {
	gconf := Gconf{
		PdnDisable:     1,
		MstepRegSelect: 1,
		MultistepFilt:  1,
	}
	if !cfg.StealthChop {
		gconf.EnSpreadcycle = 1
	}
	if err := writeRegister(d.comm, d.address, &gconf); err != nil {
		return err
	}

	chopconf := Chopconf{
		Toff:   3,
		Hstrt:  5,
		Hend:   2,
		Tbl:    2,
		Intpol: 1,
		Mres:   microstepsToMres(cfg.Microsteps),
	}
	if err := writeRegister(d.comm, d.address, &chopconf); err != nil {
		return err
	}

	iholdIrun := IholdIrun{
		Ihold:      uint32(percentToCurrentSetting(cfg.HoldCurrentPercent)),
		Irun:       uint32(percentToCurrentSetting(cfg.RunCurrentPercent)),
		Iholddelay: uint32(cfg.HoldDelay),
	}
	return writeRegister(d.comm, d.address, &iholdIrun)
}

// Status reads back DRV_STATUS. A non-nil error means the read itself
// failed (comm fault); a zero ErrorFlags() on success means no latched
// fault.
func (d *Driver) Status() (DrvStatus, error) {
	var s DrvStatus
	err := readRegister(d.comm, d.address, &s)
	return s, err
}

// microstepsToMres converts a microsteps-per-step count (a power of two
// from 1 to 256) to the CHOPCONF MRES field by an exponent search (MRES
// counts down from 256 at 0 to full-step at 8).
func microstepsToMres(microsteps uint16) uint32 {
	if microsteps == 0 {
		microsteps = 1
	}
	exponent := uint32(0)
	for (uint16(1) << exponent) < microsteps {
		exponent++
	}
	if exponent > 8 {
		exponent = 8
	}
	return 8 - exponent
}

// percentToCurrentSetting maps a 0-100 current percentage to the 5-bit
// (0-31) scale IHOLD/IRUN actually store.
func percentToCurrentSetting(percent uint8) uint8 {
	p := clamp.Clip(percent, 0, 100)
	return uint8((uint32(p)*31 + 50) / 100)
}
