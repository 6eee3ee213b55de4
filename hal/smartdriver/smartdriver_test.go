package smartdriver_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/go-cnc/cncfw/hal/smartdriver"
)

// fakeComm is a software RegisterComm: a tiny map of address->value,
// standing in for a real UART link the way hal.FakeTimer stands in for
// a hardware timer peripheral.
type fakeComm struct {
	regs map[uint8]uint32
}

func newFakeComm() *fakeComm { return &fakeComm{regs: map[uint8]uint32{}} }

func (f *fakeComm) ReadRegister(reg, _ uint8) (uint32, error) {
	return f.regs[reg], nil
}

func (f *fakeComm) WriteRegister(reg uint8, value uint32, _ uint8) error {
	f.regs[reg] = value
	return nil
}

func TestConfigureWritesExpectedRegisters(t *testing.T) {
	c := qt.New(t)
	comm := newFakeComm()
	d := smartdriver.NewDriver(comm, 0)

	err := d.Configure(smartdriver.Config{
		RunCurrentPercent:  100,
		HoldCurrentPercent: 50,
		Microsteps:         16,
		StealthChop:        true,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(len(comm.regs) > 0, qt.IsTrue)
	// GCONF: pdn_disable, mstep_reg_select, multistep_filt; no spreadcycle.
	c.Assert(comm.regs[0x00], qt.Equals, uint32(0x1C0))
	// CHOPCONF: toff 3, hstrt 5, hend 2, tbl 2, mres 4 (16 microsteps), intpol.
	c.Assert(comm.regs[0x6C], qt.Equals, uint32(0x14010153))
	// IHOLD_IRUN: ihold 16 (50%), irun 31 (100%), delay 0.
	c.Assert(comm.regs[0x10], qt.Equals, uint32(0x3F0))
}

func TestVerifyRejectsWrongVersion(t *testing.T) {
	c := qt.New(t)
	comm := newFakeComm()
	comm.regs[0x06] = 0x00 << 24 // IOIN.Version == 0, not the expected silicon version
	d := smartdriver.NewDriver(comm, 0)

	c.Assert(d.Verify(), qt.Not(qt.IsNil))
}

func TestVerifyAcceptsExpectedVersion(t *testing.T) {
	c := qt.New(t)
	comm := newFakeComm()
	comm.regs[0x06] = 0x21 << 24
	d := smartdriver.NewDriver(comm, 0)

	c.Assert(d.Verify(), qt.IsNil)
}

func TestStatusReportsNoFaultOnCleanRead(t *testing.T) {
	c := qt.New(t)
	comm := newFakeComm()
	d := smartdriver.NewDriver(comm, 0)

	status, err := d.Status()
	c.Assert(err, qt.IsNil)
	c.Assert(status.ErrorFlags(), qt.Equals, uint32(0))
}

func TestChopconfRoundTrip(t *testing.T) {
	c := qt.New(t)
	in := smartdriver.Chopconf{Toff: 3, Hstrt: 5, Hend: 2, Tbl: 2, Mres: 4, Intpol: 1}
	packed := in.Pack()

	var out smartdriver.Chopconf
	out.Unpack(packed)
	c.Assert(out, qt.Equals, in)
}
