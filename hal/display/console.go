//go:build tinygo

package display

import (
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyterm"
)

// Console wraps a Device in a scrolling text terminal for echoing raw
// serial traffic to an attached panel, the same optional on-device
// console role tinyterm plays for other display-capable teacher
// examples. It is a separate surface from RenderStatus: a board wires
// one or the other to a given Device, never both at once, since they'd
// fight over the same frame buffer.
type Console struct {
	term *tinyterm.Terminal
}

// NewConsole builds a Console over an already-Configured Device.
func NewConsole(d *Device) *Console {
	term := tinyterm.NewTerminal(d)
	term.Configure(&tinyterm.Config{
		Font:       &tinyfont.TomThumb,
		FontHeight: 8,
		FontOffset: 6,
	})
	return &Console{term: term}
}

// Write satisfies io.Writer. serial.NewFrontend's write callback takes a
// string rather than an io.Writer, so it does not accept a Console as is.
func (c *Console) Write(p []byte) (int, error) {
	return c.term.Write(p)
}
