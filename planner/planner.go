// Package planner turns a stream of target positions and feed rates
// into fully-optimized Blocks in a block.Buffer: it computes each
// block's geometry and nominal speed at append time, then runs the
// reverse/forward look-ahead pass that sets every block's entry speed so
// consecutive segments join at the maximum safe junction speed without
// violating any block's acceleration limit.
package planner

import (
	"errors"

	"github.com/orsinium-labs/tinymath"

	"github.com/go-cnc/cncfw/block"
)

var (
	// ErrInvalidFeedRate is returned by AppendLine when feed_rate <= 0.
	ErrInvalidFeedRate = errors.New("planner: feed rate must be positive")
)

// Config holds the axis calibration and kinematic limits the planner
// needs to turn a millimeter displacement into step counts and
// step-rate-squared speeds.
type Config struct {
	StepsPerMM [3]float32

	// AccelerationMMPerMin2 is the configured (mm/min^2) acceleration
	// used both to derive each block's per-block acceleration and
	// directly in the junction-velocity formula.
	AccelerationMMPerMin2 float32

	// MaxAxisAccelerationMMPerMin2, if non-zero for an axis, caps the
	// block's acceleration so that no single axis is asked to
	// accelerate faster than it can; zero means "no per-axis limit
	// beyond AccelerationMMPerMin2".
	MaxAxisAccelerationMMPerMin2 [3]float32

	// JunctionDeviation (mm) is the small cornering-error distance δ
	// used to derive the maximum safe junction speed.
	JunctionDeviation float32

	// AccelerationTicksPerSecond is the stepper's acceleration-tick
	// frequency; rate_delta = acceleration / AccelerationTicksPerSecond.
	AccelerationTicksPerSecond float32

	// MinimumStepsPerMinute is the rate floor the stepper clamps to;
	// the planner uses it only to floor a degenerate nominal rate.
	MinimumStepsPerMinute float32
}

// Planner appends and re-optimizes Blocks in a shared block.Buffer. It
// owns a shadow of the target position in steps and the unit vector of
// the last appended move, both needed only for planning math — the
// authoritative machine position lives in sysstate.System and is
// advanced solely by the stepper interrupt.
type Planner struct {
	cfg Config
	buf *block.Buffer

	position           [3]int32
	previousUnitVector [3]float32
	havePrevUnitVector bool
	previousNominalSq  float32
}

// New constructs a Planner bound to buf. Init should be called before
// first use (or rely on the zero-value position/unit-vector state,
// which New already establishes).
func New(cfg Config, buf *block.Buffer) *Planner {
	return &Planner{cfg: cfg, buf: buf}
}

// Init empties the buffer and resets the planner's position shadow and
// previous-unit-vector so the next appended line is treated as if it
// followed no prior motion (its junction speed is zero: it starts from
// rest).
func (p *Planner) Init() {
	p.buf.Reinitialize()
	p.position = [3]int32{}
	p.previousUnitVector = [3]float32{}
	p.havePrevUnitVector = false
	p.previousNominalSq = 0
}

// CurrentTargetMM returns the planner's position shadow converted back
// to millimeters, i.e. where the machine will be once every already
// appended block finishes executing. Callers building the next motion
// line from modal state (an axis word not repeated means "unchanged")
// start from this rather than sysstate, since sysstate lags behind
// whatever is still queued.
func (p *Planner) CurrentTargetMM() [3]float32 {
	var out [3]float32
	for i := 0; i < 3; i++ {
		out[i] = float32(p.position[i]) / p.cfg.StepsPerMM[i]
	}
	return out
}

// GetCurrentBlock and DiscardCurrentBlock pass through to the buffer;
// they exist so callers never need to import block directly just to
// drain it.
func (p *Planner) GetCurrentBlock() (*block.Block, bool) { return p.buf.PeekCurrent() }
func (p *Planner) DiscardCurrentBlock()                  { p.buf.DiscardCurrent() }

// AppendLine reserves a slot, computes the block for a straight move to
// targetMM, commits it, and runs the look-ahead recalculation. A target
// identical to the planner's current position on every axis is silently
// dropped as a zero-length line. feedRate must be positive; when
// invertFeedRate is set, feedRate is the inverse-time
// value (moves complete in 1/feedRate minutes) rather than mm/min.
func (p *Planner) AppendLine(targetMM [3]float32, feedRate float32, invertFeedRate bool) error {
	if feedRate <= 0 {
		return ErrInvalidFeedRate
	}

	var deltaSteps [3]int32
	var deltaMM [3]float32
	anyMotion := false
	for i := 0; i < 3; i++ {
		targetSteps := roundToInt32(targetMM[i] * p.cfg.StepsPerMM[i])
		deltaSteps[i] = targetSteps - p.position[i]
		deltaMM[i] = float32(deltaSteps[i]) / p.cfg.StepsPerMM[i]
		if deltaSteps[i] != 0 {
			anyMotion = true
		}
	}
	if !anyMotion {
		return nil
	}

	blk, ok := p.buf.GetWriteSlot()
	for !ok {
		// Busy-wait: nothing here services pending flags or yields to
		// the coordinator; the wait ends only when the stepper interrupt
		// discards a block.
		blk, ok = p.buf.GetWriteSlot()
	}
	blk.Reset()

	var millimetersSq float32
	for i := 0; i < 3; i++ {
		blk.Steps[i] = abs32i(deltaSteps[i])
		if deltaSteps[i] < 0 {
			blk.DirectionBits |= block.DirBit(i)
		}
		millimetersSq += deltaMM[i] * deltaMM[i]
	}
	blk.Millimeters = tinymath.Sqrt(millimetersSq)
	blk.StepEventCount = maxInt32(blk.Steps[0], blk.Steps[1], blk.Steps[2])

	var unit [3]float32
	for i := 0; i < 3; i++ {
		unit[i] = deltaMM[i] / blk.Millimeters
	}

	nominalSpeedMMmin := feedRate
	if invertFeedRate {
		nominalSpeedMMmin = blk.Millimeters * feedRate
	}
	blk.NominalSpeedSq = nominalSpeedMMmin * nominalSpeedMMmin
	blk.NominalRate = nominalSpeedMMmin * float32(blk.StepEventCount) / blk.Millimeters
	if blk.NominalRate < p.cfg.MinimumStepsPerMinute {
		blk.NominalRate = p.cfg.MinimumStepsPerMinute
	}

	blk.Acceleration = p.blockAcceleration(unit, blk.StepEventCount, blk.Millimeters)
	blk.RateDelta = blk.Acceleration / p.cfg.AccelerationTicksPerSecond

	blk.MaxEntrySpeedSq = p.junctionSpeedSq(unit, blk.NominalSpeedSq)
	blk.EntrySpeedSq = 0
	blk.RecalculateFlag = true

	p.buf.CommitWrite()

	p.position = [3]int32{p.position[0] + deltaSteps[0], p.position[1] + deltaSteps[1], p.position[2] + deltaSteps[2]}
	p.previousUnitVector = unit
	p.havePrevUnitVector = true
	p.previousNominalSq = blk.NominalSpeedSq

	p.Recalculate()
	return nil
}

// blockAcceleration converts the configured mm/min^2 acceleration to
// steps/min^2 for this block's geometry, clipped to whichever axis's
// per-axis limit (projected onto the unit vector) is most restrictive.
func (p *Planner) blockAcceleration(unit [3]float32, stepEventCount int32, millimeters float32) float32 {
	accMMmin2 := p.cfg.AccelerationMMPerMin2
	for i := 0; i < 3; i++ {
		limit := p.cfg.MaxAxisAccelerationMMPerMin2[i]
		u := abs32(unit[i])
		if limit > 0 && u > 1e-6 {
			projected := limit / u
			if projected < accMMmin2 {
				accMMmin2 = projected
			}
		}
	}
	return accMMmin2 * float32(stepEventCount) / millimeters
}

// junctionSpeedSq computes max_entry_speed_sq for a block about to be
// appended with unit vector unit and nominal speed nominalSpeedSq,
// against the previously appended block's unit vector and nominal
// speed.
func (p *Planner) junctionSpeedSq(unit [3]float32, nominalSpeedSq float32) float32 {
	if !p.havePrevUnitVector {
		return 0
	}
	cosTheta := dot(p.previousUnitVector, unit)
	if cosTheta <= -0.95 {
		return 0
	}
	sinThetaD2 := tinymath.Sqrt((1 - cosTheta) / 2)
	if sinThetaD2 > 0.999999 {
		sinThetaD2 = 0.999999
	}
	r := p.cfg.JunctionDeviation * sinThetaD2 / (1 - sinThetaD2)
	vSq := p.cfg.AccelerationMMPerMin2 * r
	if vSq > p.previousNominalSq {
		vSq = p.previousNominalSq
	}
	if vSq > nominalSpeedSq {
		vSq = nominalSpeedSq
	}
	return vSq
}

// CycleReinitialize is called once a feed hold has brought the current
// block to a stop with remainingSteps steps left to run. It rewrites the
// current block in place as if it were a fresh move starting from rest,
// so the forward trapezoid pass (and the stepper, on resume) sees a
// block that accelerates cleanly from zero rather than from whatever
// speed it was decelerating through when the hold completed.
//
// The per-axis Steps are rescaled to the same remainingSteps/StepEventCount
// fraction before StepEventCount itself is shortened: Bresenham's minor
// axes step once every StepEventCount/Steps[i] major-axis events, so
// leaving Steps[i] at its original full-move value while shrinking only
// StepEventCount would step the minor axes far more often than the
// remaining distance calls for.
func (p *Planner) CycleReinitialize(remainingSteps int32) {
	cur, ok := p.buf.PeekCurrent()
	if !ok || remainingSteps <= 0 {
		return
	}
	if cur.StepEventCount > 0 && remainingSteps < cur.StepEventCount {
		for i := 0; i < 3; i++ {
			cur.Steps[i] = int32(int64(cur.Steps[i]) * int64(remainingSteps) / int64(cur.StepEventCount))
		}
	}
	cur.StepEventCount = remainingSteps
	cur.EntrySpeedSq = 0
	cur.InitialRate = 0
	exitSq := float32(0)
	if nxt := p.buf.Next(p.buf.Tail()); nxt != p.buf.Head() {
		exitSq = p.buf.At(nxt).EntrySpeedSq
	}
	p.deriveTrapezoid(cur, exitSq)
}

// Synchronize busy-waits until the buffer fully drains. Used before
// modal changes whose semantics depend on the machine's final position.
// yield is invoked on every spin so the foreground can keep servicing
// pending flags while it waits.
func (p *Planner) Synchronize(yield func()) {
	for !p.buf.Empty() {
		if yield != nil {
			yield()
		}
	}
}

func dot(a, b [3]float32) float32 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func abs32i(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func maxInt32(vs ...int32) int32 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func roundToInt32(v float32) int32 {
	if v >= 0 {
		return int32(v + 0.5)
	}
	return int32(v - 0.5)
}
