package serial

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"github.com/go-cnc/cncfw/settings"
	"github.com/go-cnc/cncfw/sysstate"
)

// settingIndex maps the grbl-style `$<n>=<value>` numbering onto
// Settings fields, in the order listed below (which differs from the
// field order of the Settings struct).
const (
	idxStepsPerMMX = iota
	idxStepsPerMMY
	idxStepsPerMMZ
	idxPulseMicroseconds
	idxDefaultFeedRate
	idxDefaultSeekRate
	idxAcceleration
	idxJunctionDeviation
	idxStepperIdleLockTime
	idxInvertMask
	idxFlags
	idxMMPerArcSegment
	idxNArcCorrection
	idxDecimalPlaces
	idxHomingDirMask
	idxHomingFeedRate
	idxHomingSeekRate
	idxHomingDebounceDelay
	idxHomingPulloff
	settingCount
)

// dispatchSystem handles every `$`-prefixed system command. The
// response always ends in "ok\r\n" on success, mirroring the same
// acknowledgement g-code lines get.
func (f *Frontend) dispatchSystem(line string) string {
	switch {
	case line == "$$":
		return f.printSettings()
	case line == "$#":
		return f.printParams()
	case line == "$G":
		return f.printParserState()
	case line == "$N":
		return f.printStartupLines()
	case line == "$C":
		return f.toggleCheckMode()
	case line == "$X":
		return f.killAlarmLock()
	case line == "$H":
		return f.runHoming()
	case strings.HasPrefix(line, "$N") && strings.Contains(line, "="):
		return f.setStartupLine(line)
	case strings.HasPrefix(line, "$") && strings.Contains(line, "="):
		return f.setSetting(line)
	default:
		return "error: unsupported statement\r\n"
	}
}

func (f *Frontend) printSettings() string {
	var sb strings.Builder
	vals := f.settingValues()
	for i, v := range vals {
		fmt.Fprintf(&sb, "$%d=%v\r\n", i, v)
	}
	sb.WriteString("ok\r\n")
	return sb.String()
}

// settingValues returns every setting's current value in $-index order,
// formatted the same way they'd be accepted back by setSetting, so a
// `$$` capture followed by replaying each `$n=value` line round-trips
// (invariant 5).
func (f *Frontend) settingValues() [settingCount]string {
	s := f.set
	prec := int(s.DecimalPlaces)
	var v [settingCount]string
	v[idxStepsPerMMX] = fmt.Sprintf("%.*f", prec, s.StepsPerMM[0])
	v[idxStepsPerMMY] = fmt.Sprintf("%.*f", prec, s.StepsPerMM[1])
	v[idxStepsPerMMZ] = fmt.Sprintf("%.*f", prec, s.StepsPerMM[2])
	v[idxPulseMicroseconds] = strconv.Itoa(int(s.PulseMicroseconds))
	v[idxDefaultFeedRate] = fmt.Sprintf("%.*f", prec, s.DefaultFeedRate)
	v[idxDefaultSeekRate] = fmt.Sprintf("%.*f", prec, s.DefaultSeekRate)
	v[idxAcceleration] = fmt.Sprintf("%.*f", prec, s.Acceleration)
	v[idxJunctionDeviation] = fmt.Sprintf("%.*f", prec, s.JunctionDeviation)
	v[idxStepperIdleLockTime] = strconv.Itoa(int(s.StepperIdleLockTime))
	v[idxInvertMask] = strconv.Itoa(int(s.InvertMask))
	v[idxFlags] = strconv.Itoa(int(s.Flags))
	v[idxMMPerArcSegment] = fmt.Sprintf("%.*f", prec, s.MMPerArcSegment)
	v[idxNArcCorrection] = strconv.Itoa(int(s.NArcCorrection))
	v[idxDecimalPlaces] = strconv.Itoa(int(s.DecimalPlaces))
	v[idxHomingDirMask] = strconv.Itoa(int(s.HomingDirMask))
	v[idxHomingFeedRate] = fmt.Sprintf("%.*f", prec, s.HomingFeedRate)
	v[idxHomingSeekRate] = fmt.Sprintf("%.*f", prec, s.HomingSeekRate)
	v[idxHomingDebounceDelay] = strconv.Itoa(int(s.HomingDebounceDelay))
	v[idxHomingPulloff] = fmt.Sprintf("%.*f", prec, s.HomingPulloff)
	return v
}

func (f *Frontend) setSetting(line string) string {
	body := strings.TrimPrefix(line, "$")
	parts := strings.SplitN(body, "=", 2)
	if len(parts) != 2 {
		return "error: invalid statement\r\n"
	}
	idx, err := strconv.Atoi(parts[0])
	if err != nil || idx < 0 || idx >= settingCount {
		return "error: unsupported statement\r\n"
	}
	value, err := strconv.ParseFloat(parts[1], 32)
	if err != nil {
		return "error: invalid statement\r\n"
	}
	v := float32(value)

	s := f.set
	switch idx {
	case idxStepsPerMMX:
		s.StepsPerMM[0] = v
	case idxStepsPerMMY:
		s.StepsPerMM[1] = v
	case idxStepsPerMMZ:
		s.StepsPerMM[2] = v
	case idxPulseMicroseconds:
		if v < 3 {
			return "error: step pulse too small\r\n"
		}
		s.PulseMicroseconds = uint32(v)
	case idxDefaultFeedRate:
		s.DefaultFeedRate = v
	case idxDefaultSeekRate:
		s.DefaultSeekRate = v
	case idxAcceleration:
		s.Acceleration = v
	case idxJunctionDeviation:
		s.JunctionDeviation = v
	case idxStepperIdleLockTime:
		s.StepperIdleLockTime = uint32(v)
	case idxInvertMask:
		s.InvertMask = uint8(v)
	case idxFlags:
		s.Flags = settings.Flags(uint8(v))
	case idxMMPerArcSegment:
		s.MMPerArcSegment = v
	case idxNArcCorrection:
		s.NArcCorrection = uint8(v)
	case idxDecimalPlaces:
		s.DecimalPlaces = uint8(v)
	case idxHomingDirMask:
		s.HomingDirMask = uint8(v)
	case idxHomingFeedRate:
		s.HomingFeedRate = v
	case idxHomingSeekRate:
		s.HomingSeekRate = v
	case idxHomingDebounceDelay:
		s.HomingDebounceDelay = uint32(v)
	case idxHomingPulloff:
		s.HomingPulloff = v
	}

	if f.store != nil {
		if err := func() error {
			packed := s.Pack()
			return f.store.Write(packed)
		}(); err != nil {
			return "error: settings write failed\r\n"
		}
	}
	return "ok\r\n"
}

func (f *Frontend) printParams() string {
	// Coordinate system offsets (G54 etc.) are out of scope for this
	// minimal parser; report the single implicit machine coordinate
	// system so `$#` still returns a well-formed reply.
	return "[G54:0.000,0.000,0.000]\r\nok\r\n"
}

func (f *Frontend) printParserState() string {
	// Modal-group tracking lives in the (out-of-scope) g-code parser;
	// report the motion-only defaults this firmware actually executes.
	return "[G0 G54 G17 G21 G90 G94 M0]\r\nok\r\n"
}

func (f *Frontend) printStartupLines() string {
	var sb strings.Builder
	for i, line := range f.startupLines {
		fmt.Fprintf(&sb, "$N%d=%s\r\n", i, line)
	}
	sb.WriteString("ok\r\n")
	return sb.String()
}

// setStartupLine handles `$Nx=line`. A line that shlex cannot split
// (e.g. an unterminated quote) is rejected; RunStartupLines repeats the
// same check at boot.
func (f *Frontend) setStartupLine(line string) string {
	body := strings.TrimPrefix(line, "$N")
	parts := strings.SplitN(body, "=", 2)
	if len(parts) != 2 {
		return "error: invalid statement\r\n"
	}
	idx, err := strconv.Atoi(parts[0])
	if err != nil || idx < 0 || idx >= len(f.startupLines) {
		return "error: unsupported statement\r\n"
	}
	if _, err := shlex.Split(parts[1]); err != nil {
		return "error: invalid statement\r\n"
	}
	f.startupLines[idx] = parts[1]
	return "ok\r\n"
}

// RunStartupLines executes every stored startup line in order at boot.
// Each line is first checked with shlex.Split and skipped if it does not
// split; a line that passes is handed to onGCodeLine unchanged, not as
// shlex tokens.
func (f *Frontend) RunStartupLines() {
	for _, line := range f.startupLines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, err := shlex.Split(line); err != nil {
			logError("bad startup line: " + line)
			continue
		}
		if err := f.onGCodeLine(line); err != nil {
			logError("startup line failed: " + err.Error())
		}
	}
}

func (f *Frontend) toggleCheckMode() string {
	if f.sys.State() == sysstate.CheckMode {
		f.sys.SetState(sysstate.Idle)
	} else {
		f.sys.SetState(sysstate.CheckMode)
	}
	return "ok\r\n"
}

func (f *Frontend) killAlarmLock() string {
	if f.sys.State() == sysstate.Alarm {
		f.sys.Raise(sysstate.ResetAlarm)
		f.sys.SetState(sysstate.Idle)
	}
	return "ok\r\n"
}

func (f *Frontend) runHoming() string {
	f.sys.SetState(sysstate.Homing)
	return "ok\r\n"
}
