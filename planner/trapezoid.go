package planner

import (
	"github.com/orsinium-labs/tinymath"

	"github.com/go-cnc/cncfw/block"
	"github.com/go-cnc/cncfw/internal/clamp"
)

// Recalculate re-optimizes every block in [planned, head): a reverse
// pass tightens each block's entry speed so it is always reachable from
// its successor's entry speed given its own deceleration limit, then a
// forward pass lowers any entry speed that the predecessor's
// acceleration (from its own entry speed, capped at its nominal speed)
// cannot reach, and a final pass derives each block's trapezoid now that entry and exit
// speeds are both settled. Blocks in [tail, planned) are already
// executing or already optimal and are left untouched.
func (p *Planner) Recalculate() {
	buf := p.buf
	head := buf.Head()
	planned := buf.Planned()
	if head == planned {
		return
	}

	// Reverse pass, newest block first. A block with no successor in the
	// open range must be able to decelerate to a full stop, so its
	// virtual successor entry speed is zero; this is always safe since
	// the forward pass only ever lowers entry speeds, never raising one
	// beyond what the reverse pass allows.
	nextEntrySq := float32(0)
	for i := prevIndex(buf, head); ; i = prevIndex(buf, i) {
		cur := buf.At(i)
		reachable := nextEntrySq + 2*cur.Acceleration*float32(cur.StepEventCount)
		if reachable < cur.MaxEntrySpeedSq {
			cur.EntrySpeedSq = reachable
		} else {
			cur.EntrySpeedSq = cur.MaxEntrySpeedSq
		}
		nextEntrySq = cur.EntrySpeedSq
		if i == planned {
			break
		}
	}

	// Forward pass, oldest open block first: lower an entry speed to what
	// the predecessor's own acceleration and nominal speed can reach.
	var prev *block.Block
	for i := planned; ; i = buf.Next(i) {
		cur := buf.At(i)
		if prev != nil {
			reachable := prev.EntrySpeedSq + 2*prev.Acceleration*float32(prev.StepEventCount)
			if reachable > prev.NominalSpeedSq {
				reachable = prev.NominalSpeedSq
			}
			if reachable < cur.EntrySpeedSq {
				cur.EntrySpeedSq = reachable
			}
		}
		cur.NominalLengthFlag = isNominalLength(cur)
		prev = cur
		if buf.Next(i) == head {
			break
		}
	}

	// Trapezoid pass: now that every entry speed in the open range is
	// final, each block's exit speed is simply its successor's entry
	// speed (continuity), or zero for the newest block.
	for i := planned; ; i = buf.Next(i) {
		cur := buf.At(i)
		nxt := buf.Next(i)
		exitSq := float32(0)
		if nxt != head {
			exitSq = buf.At(nxt).EntrySpeedSq
		}
		p.deriveTrapezoid(cur, exitSq)
		if nxt == head {
			break
		}
	}

	buf.SetPlanned(prevIndex(buf, head))
}

func prevIndex(buf *block.Buffer, i uint32) uint32 {
	if i == 0 {
		return uint32(buf.Cap()) - 1
	}
	return i - 1
}

// isNominalLength reports whether cur is long enough to accelerate from
// its entry speed all the way to nominal speed within its own length; a
// purely informational flag carried on the block for diagnostics and
// status reporting, not consulted by Recalculate itself.
func isNominalLength(cur *block.Block) bool {
	if cur.Acceleration <= 0 {
		return cur.EntrySpeedSq >= cur.NominalSpeedSq
	}
	accelDist := (cur.NominalSpeedSq - cur.EntrySpeedSq) / (2 * cur.Acceleration)
	return accelDist <= float32(cur.StepEventCount)
}

// deriveTrapezoid computes InitialRate, FinalRate, AccelerateUntil and
// DecelerateAfter for cur given its finalized entry speed and the
// provided exit speed-squared (the next block's entry speed, or zero).
// It first computes the standard two-segment trapezoid profile; if the
// accelerate and decelerate distances would overlap, the move is too
// short to ever reach nominal speed and collapses to a single-peak
// triangle, recomputing the exact intersection distance between the two
// ramps so they meet exactly once.
func (p *Planner) deriveTrapezoid(cur *block.Block, exitSpeedSq float32) {
	total := float32(cur.StepEventCount)
	cur.InitialRate = sqrtNonNeg(cur.EntrySpeedSq)
	cur.FinalRate = sqrtNonNeg(exitSpeedSq)

	if cur.Acceleration <= 0 || total <= 0 {
		cur.AccelerateUntil = 0
		cur.DecelerateAfter = cur.StepEventCount
		return
	}

	accelDist := clampDist((cur.NominalSpeedSq-cur.EntrySpeedSq)/(2*cur.Acceleration), total)
	decelDist := clampDist((cur.NominalSpeedSq-exitSpeedSq)/(2*cur.Acceleration), total)

	if accelDist+decelDist >= total {
		// Triangle: the two ramps overlap, so solve for the single
		// distance at which accelerating from entry speed and
		// decelerating to exit speed meet.
		peakDist := (2*cur.Acceleration*total + cur.EntrySpeedSq - exitSpeedSq) / (4 * cur.Acceleration)
		peakDist = clampDist(peakDist, total)
		cur.AccelerateUntil = int32(peakDist)
		cur.DecelerateAfter = cur.AccelerateUntil
		return
	}

	cur.AccelerateUntil = int32(accelDist)
	cur.DecelerateAfter = int32(total - decelDist)
}

func clampDist(d, total float32) float32 {
	return clamp.Clip(d, 0, total)
}

func sqrtNonNeg(v float32) float32 {
	if v <= 0 {
		return 0
	}
	return tinymath.Sqrt(v)
}
