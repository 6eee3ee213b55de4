// Package display drives a Sharp Memory LCD panel as an optional status
// banner: state name plus machine position, rendered with tinyfont. The
// frame buffer and SPI protocol handling (line-diffing, VCOM toggling,
// the 1-bit row-major buffer) covers the panel's wire format; the SKU
// table is trimmed to the two panels worth keeping as presets, and
// RenderStatus is added on top for this firmware's actual use: showing
// cycle state and position on a small attached panel instead of a
// generic bitmap surface.
package display

import (
	"errors"
	"image/color"

	"tinygo.org/x/tinyfont"

	"github.com/go-cnc/cncfw/hal"
)

const (
	bitWriteCmd uint8 = 0b00000001
	bitVcom     uint8 = 0b00000010
	bitClear    uint8 = 0b00000100
)

// Config presets for the two panel sizes this firmware's status banner
// has actually been laid out for; other Sharp Memory LCD SKUs work with
// the same protocol but need their own Config{Width,Height}.
var (
	ConfigLS011B7DH03 = Config{Width: 160, Height: 68}
	ConfigLS027B7DH01 = Config{Width: 400, Height: 240}
)

// SPI is the minimal bus the display needs: a single full-duplex
// transfer. tinygo.org/x/drivers.SPI satisfies this on real hardware.
type SPI interface {
	Tx(w, r []byte) error
}

// Device is a 1-bit Sharp Memory LCD frame buffer with line-invalidation
// optimizations, driven over SPI with a chip-select line from hal.Pin.
type Device struct {
	bus          SPI
	csPin        hal.Pin
	buffer       []byte
	txBuf        []byte
	lineDiff     []byte
	width        int16
	height       int16
	bytesPerLine int16
	vcom         uint8
	diffing      bool
}

type Config struct {
	Width, Height        int16
	DisableOptimizations bool
}

// New creates a device bound to an already-configured SPI bus and chip
// select pin.
func New(bus SPI, csPin hal.Pin) Device {
	return Device{bus: bus, csPin: csPin}
}

// Configure initializes the frame buffer for the given panel size.
func (d *Device) Configure(cfg Config) {
	if cfg.Width == 0 {
		cfg = ConfigLS011B7DH03
	}
	d.width = cfg.Width
	d.height = cfg.Height
	d.diffing = !cfg.DisableOptimizations
	d.initialize()
}

func (d *Device) initialize() {
	d.csPin.Low()
	d.vcom = bitVcom
	d.bytesPerLine = ceilDiv(d.width, 16) * 2
	d.buffer = make([]byte, d.bytesPerLine*d.height)
	for i := range d.buffer {
		d.buffer[i] = 0xff
	}
	d.txBuf = make([]byte, 2)
	if d.diffing {
		d.lineDiff = make([]byte, bitfieldBufLen(1+d.height))
	}
}

// SetPixel satisfies tinyfont.Displayer: a fully black pixel
// (color.RGBA{0,0,0,255}) clears the bit (a cleared bit is dark on the
// panel; the buffer starts and is cleared to all-set), anything else
// sets it.
func (d *Device) SetPixel(x, y int16, c color.RGBA) {
	if d.width == 0 || x < 0 || x >= d.width || y < 0 || y >= d.height {
		return
	}
	offset := y * d.bytesPerLine
	div := offset + x/8
	mod := uint8(x % 8)

	curr := !(c.R == 0 && c.G == 0 && c.B == 0 && c.A == 255)
	if hasBit(d.buffer[div], mod) == curr {
		return
	}
	if curr {
		d.buffer[div] = setBit(d.buffer[div], mod)
	} else {
		d.buffer[div] = unsetBit(d.buffer[div], mod)
	}
	if d.diffing {
		d.invalidateLine(y)
	}
}

// Size satisfies tinyfont.Displayer.
func (d *Device) Size() (x, y int16) { return d.width, d.height }

// RenderStatus clears the buffer and draws the machine's cycle state
// and position, then pushes the frame. Intended to be called from the
// runtime coordinator's poll loop at a throttled rate (a few Hz is
// plenty for a status banner), never from interrupt context.
func (d *Device) RenderStatus(state string, mposMM [3]float32) error {
	d.ClearBuffer()
	black := color.RGBA{A: 255}
	tinyfont.WriteLine(d, &tinyfont.TomThumb, 2, 8, state, black)
	tinyfont.WriteLine(d, &tinyfont.TomThumb, 2, 18,
		formatMPos(mposMM), black)
	return d.Display()
}

func formatMPos(mpos [3]float32) string {
	return "X" + ftoa(mpos[0]) + " Y" + ftoa(mpos[1]) + " Z" + ftoa(mpos[2])
}

// ftoa is a tiny fixed-point formatter (one decimal place) avoiding a
// dependency on fmt in the common status-refresh path; precision beyond
// one decimal isn't legible on a banner this size anyway.
func ftoa(v float32) string {
	neg := v < 0
	if neg {
		v = -v
	}
	whole := int32(v)
	frac := int32((v-float32(whole))*10 + 0.5)
	if frac >= 10 {
		whole++
		frac -= 10
	}
	s := itoa(whole) + "." + itoa(frac)
	if neg {
		s = "-" + s
	}
	return s
}

func itoa(v int32) string {
	if v == 0 {
		return "0"
	}
	var digits [10]byte
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	return string(digits[i:])
}

// Display, ClearBuffer, and the VCOM/line-diff machinery below implement
// the panel's wire protocol: a command byte plus per-line addressing,
// with optional diffing so unchanged lines are never retransmitted.

func (d *Device) Display() error {
	if d.width == 0 {
		return errors.New("display not configured")
	}
	if d.diffing {
		if !hasBit(d.lineDiff[0], 0) {
			return d.holdDisplay()
		}
		defer func() {
			for i := range d.lineDiff {
				d.lineDiff[i] = 0
			}
		}()
	}

	cmd := bitWriteCmd | d.vcom
	d.toggleVcom()

	var hiPad uint8
	if d.height >= 512 {
		hiPad = 6
	} else if d.height >= 256 {
		hiPad = 7
	}

	d.csPin.High()
	for i := int16(0); i < d.height; i++ {
		if d.diffing {
			linediv := (i + 1) / 8
			linemod := uint8((i + 1) % 8)
			if !hasBit(d.lineDiff[linediv], linemod) {
				continue
			}
		}
		hi := uint8((i+1)>>8) << hiPad
		d.txBuf[0] = cmd | hi
		d.txBuf[1] = uint8(i + 1)
		if err := d.bus.Tx(d.txBuf, nil); err != nil {
			return err
		}
		if err := d.bus.Tx(d.buffer[i*d.bytesPerLine:(i+1)*d.bytesPerLine], nil); err != nil {
			return err
		}
	}

	d.txBuf[0] = 0
	d.txBuf[1] = 0
	if err := d.bus.Tx(d.txBuf, nil); err != nil {
		return err
	}
	d.csPin.Low()
	return nil
}

func (d *Device) holdDisplay() error {
	d.txBuf[0] = d.vcom
	d.txBuf[1] = 0
	d.toggleVcom()
	d.csPin.High()
	err := d.bus.Tx(d.txBuf, nil)
	d.csPin.Low()
	return err
}

func (d *Device) ClearBuffer() {
	if d.width == 0 {
		return
	}
	if d.diffing {
		d.invalidateModifiedLines()
	}
	for i := range d.buffer {
		d.buffer[i] = 0xff
	}
}

func (d *Device) invalidateModifiedLines() {
	for y := int16(0); y < d.height; y++ {
		offset := y * d.bytesPerLine
		updateLine := false
		for x := int16(0); x < d.width; x++ {
			div := offset + x/8
			mod := uint8(x % 8)
			if !hasBit(d.buffer[div], mod) {
				updateLine = true
				break
			}
		}
		if updateLine {
			d.invalidateLine(y)
		}
	}
}

func (d *Device) invalidateLine(line int16) {
	d.lineDiff[0] = setBit(d.lineDiff[0], 0)
	linediv := (line + 1) / 8
	linemod := uint8((line + 1) % 8)
	d.lineDiff[linediv] = setBit(d.lineDiff[linediv], linemod)
}

func (d *Device) toggleVcom() {
	if d.vcom != 0 {
		d.vcom = 0
	} else {
		d.vcom = bitVcom
	}
}

func setBit(n, pos uint8) uint8   { return n | 1<<pos }
func unsetBit(n, pos uint8) uint8 { return n &^ (1 << pos) }
func hasBit(n, pos uint8) bool    { return n&(1<<pos) > 0 }

func bitfieldBufLen(bits int16) int16 { return 1 + (bits-1)/8 }
func ceilDiv(a, b int16) int16        { return 1 + (a-1)/b }
