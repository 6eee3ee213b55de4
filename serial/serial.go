// Package serial implements the line-oriented/real-time hybrid serial
// protocol: g-code and `$` system-command lines are assembled byte by
// byte, while the four real-time single-byte commands are intercepted
// out of band, before they ever reach the line buffer.
package serial

import (
	"fmt"
	"strings"

	"github.com/go-cnc/cncfw/settings"
	"github.com/go-cnc/cncfw/sysstate"
)

// Real-time single-byte commands, processed the instant they arrive
// regardless of what's mid-buffer in the line assembler.
const (
	ByteCycleStart byte = '~'
	ByteFeedHold   byte = '!'
	ByteStatus     byte = '?'
	ByteReset      byte = 0x18
)

func logDebug(msg string) {
	// println("[DEBUG] " + msg)
}

func logError(msg string) {
	println("[ERROR] " + msg)
}

// LineHandler executes one already-classified g-code line and returns
// an error to be reported as `error: <msg>`, or nil for `ok`.
type LineHandler func(line string) error

// Frontend assembles incoming bytes into lines, intercepts real-time
// bytes, and dispatches g-code and `$` system-command lines; stored
// startup lines are run at boot through the same LineHandler.
type Frontend struct {
	sys   *sysstate.System
	set   *settings.Settings
	store settings.Store

	onGCodeLine LineHandler
	write       func(string)

	startupLines [2]string

	buf [128]byte
	pos int
}

// NewFrontend builds a Frontend. write is called with each complete
// response line (including its own CR/LF); onGCodeLine is invoked for
// every non-empty line that doesn't begin with '$', except while the
// machine is in Alarm, when such lines are rejected without calling it.
func NewFrontend(sys *sysstate.System, set *settings.Settings, store settings.Store, onGCodeLine LineHandler, write func(string)) *Frontend {
	return &Frontend{sys: sys, set: set, store: store, onGCodeLine: onGCodeLine, write: write}
}

// Feed processes one incoming byte. Real-time bytes never touch the
// line buffer; everything else accumulates until a line terminator.
func (f *Frontend) Feed(b byte) {
	switch b {
	case ByteCycleStart:
		f.sys.Raise(sysstate.CycleStart)
		return
	case ByteFeedHold:
		f.sys.Raise(sysstate.FeedHold)
		return
	case ByteStatus:
		f.write(f.StatusReport())
		return
	case ByteReset:
		f.sys.Raise(sysstate.Abort)
		return
	}

	if b == '\n' {
		f.dispatchLine()
		return
	}
	if b == '\r' {
		return
	}
	if f.pos >= len(f.buf) {
		logError("line buffer overflow")
		f.pos = 0
		return
	}
	f.buf[f.pos] = b
	f.pos++
}

func (f *Frontend) dispatchLine() {
	line := strings.TrimSpace(string(f.buf[:f.pos]))
	f.pos = 0
	if line == "" {
		f.write("ok\r\n")
		return
	}
	logDebug("GOT LINE " + line)

	if strings.HasPrefix(line, "$") {
		f.write(f.dispatchSystem(line))
		return
	}

	if f.sys.State() == sysstate.Alarm {
		f.write("error: alarm lock\r\n")
		return
	}

	if err := f.onGCodeLine(line); err != nil {
		f.write("error: " + err.Error() + "\r\n")
		return
	}
	f.write("ok\r\n")
}

// StatusReport formats the real-time status line: coordinates are
// converted from steps to the configured unit (mm or inches, per
// Flags.FlagReportInches) and printed to Settings.DecimalPlaces.
func (f *Frontend) StatusReport() string {
	pos := f.sys.Position()
	var mpos [3]float64
	for axis := 0; axis < 3; axis++ {
		mm := float64(pos[axis]) / float64(f.set.StepsPerMM[axis])
		if f.set.Flags.Has(settings.FlagReportInches) {
			mm /= 25.4
		}
		mpos[axis] = mm
	}
	prec := int(f.set.DecimalPlaces)
	return fmt.Sprintf("<%s,MPos:%.*f,%.*f,%.*f,WPos:%.*f,%.*f,%.*f>\r\n",
		f.sys.State().String(),
		prec, mpos[0], prec, mpos[1], prec, mpos[2],
		prec, mpos[0], prec, mpos[1], prec, mpos[2])
}
