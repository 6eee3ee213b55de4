// Package settings defines the persistent configuration record and its
// wire encoding. Settings.Pack/Unpack follow a
// pack-into-a-fixed-width-word convention, generalized from a single
// 32-bit register to a whole versioned record.
package settings

import (
	"encoding/binary"
	"errors"
	"math"
)

// Version is written as the first byte of every packed record. A stored
// record whose version byte doesn't match forces a defaults-write.
const Version uint8 = 1

// Flag bits packed into Settings.Flags.
const (
	FlagReportInches Flags = 1 << iota
	FlagAutoStart
	FlagInvertStepEnable
	FlagHardLimitEnable
	FlagHomingEnable
)

type Flags uint8

func (f Flags) Has(bit Flags) bool { return f&bit == bit }

// Settings is the fixed persistent configuration record: at minimum
// steps_per_mm[3], pulse_microseconds, default_feed_rate,
// default_seek_rate, invert_mask, stepper_idle_lock_time, acceleration,
// junction_deviation, mm_per_arc_segment, n_arc_correction,
// decimal_places, the flag bits, and the homing parameters.
type Settings struct {
	StepsPerMM [3]float32

	PulseMicroseconds   uint32
	DefaultFeedRate     float32
	DefaultSeekRate     float32
	InvertMask          uint8
	StepperIdleLockTime uint32
	Acceleration        float32 // mm/min^2
	JunctionDeviation   float32
	MMPerArcSegment     float32
	NArcCorrection      uint8
	DecimalPlaces       uint8

	Flags Flags

	HomingDirMask        uint8
	HomingFeedRate       float32
	HomingSeekRate       float32
	HomingDebounceDelay  uint32
	HomingPulloff        float32
}

// Defaults returns a conservative, generally-safe starting record (100
// steps/mm, 10us pulses, modest feeds) suitable for a fresh or
// version-mismatched store.
func Defaults() Settings {
	return Settings{
		StepsPerMM:          [3]float32{100, 100, 100},
		PulseMicroseconds:   10,
		DefaultFeedRate:     500,
		DefaultSeekRate:     1500,
		InvertMask:          0,
		StepperIdleLockTime: 25,
		Acceleration:        36000,
		JunctionDeviation:   0.02,
		MMPerArcSegment:     0.1,
		NArcCorrection:      12,
		DecimalPlaces:       3,
		Flags:               FlagAutoStart,
		HomingDirMask:       0,
		HomingFeedRate:      25,
		HomingSeekRate:      500,
		HomingDebounceDelay: 250,
		HomingPulloff:       1,
	}
}

// packedSize is the fixed wire size of a packed record: 1 version byte
// plus each field's width in Pack order (11 float32, 3 uint32, 5 uint8,
// no padding), computed explicitly below rather than via unsafe.Sizeof,
// since field order and padding are exactly what this encoding controls.
const packedSize = 1 + 4*3 + 4 + 4 + 4 + 1 + 4 + 4 + 4 + 4 + 1 + 1 + 1 + 1 + 4 + 4 + 4 + 4

var ErrVersionMismatch = errors.New("settings: stored version mismatch")

// Pack encodes s into its fixed-width wire form, version byte first.
func (s *Settings) Pack() []byte {
	buf := make([]byte, packedSize)
	i := 0
	buf[i] = Version
	i++
	for axis := 0; axis < 3; axis++ {
		putFloat32(buf[i:], s.StepsPerMM[axis])
		i += 4
	}
	binary.LittleEndian.PutUint32(buf[i:], s.PulseMicroseconds)
	i += 4
	putFloat32(buf[i:], s.DefaultFeedRate)
	i += 4
	putFloat32(buf[i:], s.DefaultSeekRate)
	i += 4
	buf[i] = s.InvertMask
	i++
	binary.LittleEndian.PutUint32(buf[i:], s.StepperIdleLockTime)
	i += 4
	putFloat32(buf[i:], s.Acceleration)
	i += 4
	putFloat32(buf[i:], s.JunctionDeviation)
	i += 4
	putFloat32(buf[i:], s.MMPerArcSegment)
	i += 4
	buf[i] = s.NArcCorrection
	i++
	buf[i] = s.DecimalPlaces
	i++
	buf[i] = uint8(s.Flags)
	i++
	buf[i] = s.HomingDirMask
	i++
	putFloat32(buf[i:], s.HomingFeedRate)
	i += 4
	putFloat32(buf[i:], s.HomingSeekRate)
	i += 4
	binary.LittleEndian.PutUint32(buf[i:], s.HomingDebounceDelay)
	i += 4
	putFloat32(buf[i:], s.HomingPulloff)
	i += 4
	return buf
}

// Unpack decodes a packed record produced by Pack. It returns
// ErrVersionMismatch (and leaves s untouched) if the version byte does
// not match the current Version.
func (s *Settings) Unpack(buf []byte) error {
	if len(buf) < packedSize {
		return ErrVersionMismatch
	}
	if buf[0] != Version {
		return ErrVersionMismatch
	}
	var out Settings
	i := 1
	for axis := 0; axis < 3; axis++ {
		out.StepsPerMM[axis] = getFloat32(buf[i:])
		i += 4
	}
	out.PulseMicroseconds = binary.LittleEndian.Uint32(buf[i:])
	i += 4
	out.DefaultFeedRate = getFloat32(buf[i:])
	i += 4
	out.DefaultSeekRate = getFloat32(buf[i:])
	i += 4
	out.InvertMask = buf[i]
	i++
	out.StepperIdleLockTime = binary.LittleEndian.Uint32(buf[i:])
	i += 4
	out.Acceleration = getFloat32(buf[i:])
	i += 4
	out.JunctionDeviation = getFloat32(buf[i:])
	i += 4
	out.MMPerArcSegment = getFloat32(buf[i:])
	i += 4
	out.NArcCorrection = buf[i]
	i++
	out.DecimalPlaces = buf[i]
	i++
	out.Flags = Flags(buf[i])
	i++
	out.HomingDirMask = buf[i]
	i++
	out.HomingFeedRate = getFloat32(buf[i:])
	i += 4
	out.HomingSeekRate = getFloat32(buf[i:])
	i += 4
	out.HomingDebounceDelay = binary.LittleEndian.Uint32(buf[i:])
	i += 4
	out.HomingPulloff = getFloat32(buf[i:])
	i += 4

	*s = out
	return nil
}

// putFloat32/getFloat32 use math.Float32bits/Float32frombits: this is
// IEEE-754 bit reinterpretation, not arithmetic, so tinymath (which
// covers trig/sqrt/min/max for embedded targets) has nothing to offer
// here; the standard library's bit-punning helpers are the only
// reasonable tool for this step.
func putFloat32(buf []byte, v float32) {
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
}

func getFloat32(buf []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf))
}
