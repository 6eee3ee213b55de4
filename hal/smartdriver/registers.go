package smartdriver

// Register addresses actually exercised by Driver. The chip exposes many
// more (TSTEP, COOLCONF, stallguard, PWM autoscale diagnostics...); only
// the handful this firmware configures or reads back at runtime are
// modeled, the rest would need their own Register type added the same
// way before use.
const (
	addrGCONF      = 0x00
	addrIOIN       = 0x06
	addrIHOLD_IRUN = 0x10
	addrCHOPCONF   = 0x6C
	addrDRV_STATUS = 0x6F

	expectedVersion = 0x21
)

// RegisterComm is the wire-level seam a Driver talks through: a single
// addressed register read/write.
type RegisterComm interface {
	ReadRegister(register uint8, driverIndex uint8) (uint32, error)
	WriteRegister(register uint8, value uint32, driverIndex uint8) error
}

// Register is the Pack/Unpack/GetAddress idiom used for single-register
// bit layouts.
type Register interface {
	Pack() uint32
	Unpack(uint32)
	GetAddress() uint8
}

// Gconf is the GCONF register: only the bits Driver touches are
// modeled (spread-cycle vs stealthChop selection and the microstep
// register source).
type Gconf struct {
	IScaleAnalog   uint32
	EnSpreadcycle  uint32
	PdnDisable     uint32
	MstepRegSelect uint32
	MultistepFilt  uint32
}

func (g *Gconf) GetAddress() uint8 { return addrGCONF }

func (g *Gconf) Pack() uint32 {
	return (g.IScaleAnalog & 0x01) |
		((g.EnSpreadcycle & 0x01) << 2) |
		((g.PdnDisable & 0x01) << 6) |
		((g.MstepRegSelect & 0x01) << 7) |
		((g.MultistepFilt & 0x01) << 8)
}

func (g *Gconf) Unpack(bytes uint32) {
	g.IScaleAnalog = bytes & 0x01
	g.EnSpreadcycle = (bytes >> 2) & 0x01
	g.PdnDisable = (bytes >> 6) & 0x01
	g.MstepRegSelect = (bytes >> 7) & 0x01
	g.MultistepFilt = (bytes >> 8) & 0x01
}

// Chopconf is the CHOPCONF register: toff (driver enable/off time) and
// mres (microstep resolution, a power-of-two exponent from 256 down to
// full step) are the fields Driver configures.
type Chopconf struct {
	Toff   uint32
	Hstrt  uint32
	Hend   uint32
	Tbl    uint32
	Vsense uint32
	Mres   uint32
	Intpol uint32
}

func (c *Chopconf) GetAddress() uint8 { return addrCHOPCONF }

func (c *Chopconf) Pack() uint32 {
	return (c.Toff & 0x0F) |
		((c.Hstrt & 0x07) << 4) |
		((c.Hend & 0x0F) << 7) |
		((c.Tbl & 0x03) << 15) |
		((c.Vsense & 0x01) << 17) |
		((c.Mres & 0x0F) << 24) |
		((c.Intpol & 0x01) << 28)
}

func (c *Chopconf) Unpack(bytes uint32) {
	c.Toff = bytes & 0x0F
	c.Hstrt = (bytes >> 4) & 0x07
	c.Hend = (bytes >> 7) & 0x0F
	c.Tbl = (bytes >> 15) & 0x03
	c.Vsense = (bytes >> 17) & 0x01
	c.Mres = (bytes >> 24) & 0x0F
	c.Intpol = (bytes >> 28) & 0x01
}

// IholdIrun is the IHOLD_IRUN register: hold current, run current and
// the delay between them.
type IholdIrun struct {
	Ihold      uint32
	Irun       uint32
	Iholddelay uint32
}

func (r *IholdIrun) GetAddress() uint8 { return addrIHOLD_IRUN }

func (r *IholdIrun) Pack() uint32 {
	return (r.Ihold & 0x1F) |
		((r.Irun & 0x1F) << 5) |
		((r.Iholddelay & 0x0F) << 10)
}

func (r *IholdIrun) Unpack(bytes uint32) {
	r.Ihold = bytes & 0x1F
	r.Irun = (bytes >> 5) & 0x1F
	r.Iholddelay = (bytes >> 10) & 0x0F
}

// Ioin is the read-only IOIN register; Driver only reads Version out of
// it to verify it is actually talking to a TMC2209.
type Ioin struct {
	Version uint32
}

func (i *Ioin) GetAddress() uint8 { return addrIOIN }
func (i *Ioin) Pack() uint32      { return i.Version << 24 }
func (i *Ioin) Unpack(bytes uint32) {
	i.Version = (bytes >> 24) & 0xFF
}

// DrvStatus is the DRV_STATUS register: the fault/warning bits Status
// reports, plus the actual current scaling value.
type DrvStatus struct {
	Stst     uint32
	CsActual uint32
	Olb      uint32
	Ola      uint32
	S2vsb    uint32
	S2vsa    uint32
	S2gb     uint32
	S2ga     uint32
	Ot       uint32
	Otpw     uint32
}

func (d *DrvStatus) GetAddress() uint8 { return addrDRV_STATUS }

func (d *DrvStatus) Pack() uint32 {
	return (d.Stst & 0x01) |
		((d.CsActual & 0xFFFF) << 2) |
		((d.Olb & 0x01) << 22) |
		((d.Ola & 0x01) << 23) |
		((d.S2vsb & 0x01) << 24) |
		((d.S2vsa & 0x01) << 25) |
		((d.S2gb & 0x01) << 26) |
		((d.S2ga & 0x01) << 27) |
		((d.Ot & 0x01) << 28) |
		((d.Otpw & 0x01) << 29)
}

func (d *DrvStatus) Unpack(bytes uint32) {
	d.Stst = bytes & 0x01
	d.CsActual = (bytes >> 2) & 0xFFFF
	d.Olb = (bytes >> 22) & 0x01
	d.Ola = (bytes >> 23) & 0x01
	d.S2vsb = (bytes >> 24) & 0x01
	d.S2vsa = (bytes >> 25) & 0x01
	d.S2gb = (bytes >> 26) & 0x01
	d.S2ga = (bytes >> 27) & 0x01
	d.Ot = (bytes >> 28) & 0x01
	d.Otpw = (bytes >> 29) & 0x01
}

// ErrorFlags is the OR of DrvStatus's fault bits; non-zero means the
// driver has latched a fault condition.
func (d *DrvStatus) ErrorFlags() uint32 {
	return d.Ola | d.Olb | d.S2vsa | d.S2vsb | d.S2ga | d.S2gb | d.Ot
}

func readRegister(comm RegisterComm, driverIndex uint8, reg Register) error {
	v, err := comm.ReadRegister(reg.GetAddress(), driverIndex)
	if err != nil {
		return err
	}
	reg.Unpack(v)
	return nil
}

func writeRegister(comm RegisterComm, driverIndex uint8, reg Register) error {
	return comm.WriteRegister(reg.GetAddress(), reg.Pack(), driverIndex)
}
