package planner_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/go-cnc/cncfw/block"
	"github.com/go-cnc/cncfw/planner"
)

func newTestPlanner() *planner.Planner {
	cfg := planner.Config{
		StepsPerMM:                 [3]float32{100, 100, 100},
		AccelerationMMPerMin2:      36000, // 10 mm/s^2
		JunctionDeviation:          0.02,
		AccelerationTicksPerSecond: 100,
		MinimumStepsPerMinute:      100,
	}
	return planner.New(cfg, block.NewBuffer(block.DefaultCapacity))
}

// Scenario A: single axis straight line produces the expected step
// count and reaches a real (non-degenerate) trapezoid.
func TestAppendLineSingleAxis(t *testing.T) {
	c := qt.New(t)
	p := newTestPlanner()

	err := p.AppendLine([3]float32{10, 0, 0}, 600, false)
	c.Assert(err, qt.IsNil)

	blk, ok := p.GetCurrentBlock()
	c.Assert(ok, qt.IsTrue)
	c.Assert(blk.Steps[0], qt.Equals, int32(1000))
	c.Assert(blk.StepEventCount, qt.Equals, int32(1000))
	c.Assert(blk.DirectionBits&block.DirBitX, qt.Equals, uint8(0))
	c.Assert(blk.AccelerateUntil >= 0, qt.IsTrue)
	c.Assert(blk.DecelerateAfter <= blk.StepEventCount, qt.IsTrue)
}

// Scenario B: an exact reversal between two collinear moves forces the
// junction speed to zero via the cos(theta) <= -0.95 tie-break, before
// the cornering-speed formula is ever evaluated.
func TestJunctionReversalForcesZero(t *testing.T) {
	c := qt.New(t)
	p := newTestPlanner()

	c.Assert(p.AppendLine([3]float32{10, 0, 0}, 1000, false), qt.IsNil)
	c.Assert(p.AppendLine([3]float32{0, 0, 0}, 1000, false), qt.IsNil)

	// The first block has no predecessor; the reversal junction belongs
	// to the second.
	p.DiscardCurrentBlock()
	blk, ok := p.GetCurrentBlock()
	c.Assert(ok, qt.IsTrue)
	c.Assert(blk.MaxEntrySpeedSq, qt.Equals, float32(0))
}

// Scenario C: a small-angle corner yields a strictly positive junction
// speed bounded by both adjacent blocks' nominal speeds.
func TestJunctionSmallAngle(t *testing.T) {
	c := qt.New(t)
	p := newTestPlanner()

	c.Assert(p.AppendLine([3]float32{10, 0, 0}, 3000, false), qt.IsNil)
	firstNominalSq := float32(3000 * 3000)

	c.Assert(p.AppendLine([3]float32{20, 0.1, 0}, 3000, false), qt.IsNil)

	// The corner is the second block's junction with the first.
	p.DiscardCurrentBlock()
	blk, ok := p.GetCurrentBlock()
	c.Assert(ok, qt.IsTrue)
	c.Assert(blk.MaxEntrySpeedSq > 0, qt.IsTrue)
	c.Assert(blk.MaxEntrySpeedSq <= firstNominalSq, qt.IsTrue)
	c.Assert(blk.MaxEntrySpeedSq <= blk.NominalSpeedSq, qt.IsTrue)
}

// Zero-length moves (identical target) are silently dropped rather than
// queued as a degenerate block.
func TestAppendLineZeroLengthDropped(t *testing.T) {
	c := qt.New(t)
	p := newTestPlanner()

	c.Assert(p.AppendLine([3]float32{0, 0, 0}, 600, false), qt.IsNil)
	_, ok := p.GetCurrentBlock()
	c.Assert(ok, qt.IsFalse)
}

func TestAppendLineRejectsNonPositiveFeed(t *testing.T) {
	c := qt.New(t)
	p := newTestPlanner()

	err := p.AppendLine([3]float32{1, 0, 0}, 0, false)
	c.Assert(err, qt.Equals, planner.ErrInvalidFeedRate)
}

// Invariant 4 (feed-hold idempotence) for a multi-axis move:
// CycleReinitialize must rescale every axis's Steps by the same
// remaining/original fraction as StepEventCount, or a minor axis steps
// more often than the remaining distance calls for once resumed.
func TestCycleReinitializeRescalesMinorAxisSteps(t *testing.T) {
	c := qt.New(t)
	p := newTestPlanner()

	c.Assert(p.AppendLine([3]float32{10, 5, 0}, 3000, false), qt.IsNil)
	blk, ok := p.GetCurrentBlock()
	c.Assert(ok, qt.IsTrue)
	c.Assert(blk.StepEventCount, qt.Equals, int32(1000))
	c.Assert(blk.Steps[1], qt.Equals, int32(500))

	p.CycleReinitialize(400)

	c.Assert(blk.StepEventCount, qt.Equals, int32(400))
	c.Assert(blk.Steps[1], qt.Equals, int32(200))
}

// Invariant 1 (first block only): after a burst of appends with no
// execution, the oldest queued block's entry speed does not exceed its
// junction maximum.
func TestRecalculateInvariant(t *testing.T) {
	c := qt.New(t)
	p := newTestPlanner()

	c.Assert(p.AppendLine([3]float32{5, 0, 0}, 3000, false), qt.IsNil)
	c.Assert(p.AppendLine([3]float32{10, 0, 0}, 3000, false), qt.IsNil)
	c.Assert(p.AppendLine([3]float32{10, 5, 0}, 3000, false), qt.IsNil)

	blk, ok := p.GetCurrentBlock()
	c.Assert(ok, qt.IsTrue)
	c.Assert(blk.EntrySpeedSq <= blk.MaxEntrySpeedSq, qt.IsTrue)
}
