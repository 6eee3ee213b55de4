package display

import (
	"image/color"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/go-cnc/cncfw/hal"
)

type mockBus struct{ b []byte }

func (m *mockBus) Tx(w, _ []byte) error {
	m.b = append(m.b, w...)
	return nil
}

func Test_setBit(t *testing.T) {
	c := qt.New(t)
	for i := uint8(0); i < 8; i++ {
		v := uint8(1) << i
		c.Assert(setBit(0x00, i), qt.Equals, v)
		c.Assert(setBit(0x00, (i+1)%8), qt.Not(qt.Equals), v)
	}
}

func Test_unsetBit(t *testing.T) {
	c := qt.New(t)
	for i := uint8(0); i < 8; i++ {
		v := uint8(1) << i
		c.Assert(unsetBit(v, i), qt.Equals, uint8(0x00))
	}
}

func Test_hasBit(t *testing.T) {
	c := qt.New(t)
	for i := uint8(0); i < 8; i++ {
		v := uint8(1) << i
		c.Assert(hasBit(v, i), qt.IsTrue)
		c.Assert(hasBit(v, (i+1)%8), qt.IsFalse)
	}
}

func TestDeviceConfigureAndDisplay(t *testing.T) {
	c := qt.New(t)
	spi := &mockBus{}
	pin := &hal.FakePin{}
	dev := New(spi, pin)

	for _, cfg := range []Config{ConfigLS011B7DH03, ConfigLS027B7DH01} {
		dev.Configure(cfg)
		x, y := dev.Size()
		c.Assert(x, qt.Equals, cfg.Width)
		c.Assert(y, qt.Equals, cfg.Height)

		dev.SetPixel(0, 0, color.RGBA{A: 255})
		c.Assert(dev.Display(), qt.IsNil)
	}
}

func TestRenderStatusDrawsWithoutError(t *testing.T) {
	c := qt.New(t)
	spi := &mockBus{}
	pin := &hal.FakePin{}
	dev := New(spi, pin)
	dev.Configure(ConfigLS011B7DH03)

	err := dev.RenderStatus("Run", [3]float32{10.5, 0, -2.25})
	c.Assert(err, qt.IsNil)
	c.Assert(len(spi.b) > 0, qt.IsTrue)
}

func TestFtoa(t *testing.T) {
	c := qt.New(t)
	c.Assert(ftoa(10.5), qt.Equals, "10.5")
	c.Assert(ftoa(-2.25), qt.Equals, "-2.3")
	c.Assert(ftoa(0), qt.Equals, "0.0")
}
