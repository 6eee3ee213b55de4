// Package block defines the planned motion segment ("Block") and the
// fixed-capacity circular buffer that hands blocks from the planner
// (single producer, foreground) to the stepper executor (single
// consumer, interrupt context).
package block

// Per-axis bit positions shared by DirectionBits and the stepper's
// out_bits word. A set direction bit means "negative direction" on that
// axis; a set step bit in the upper half means "pulse this axis now".
const (
	DirBitX = 1 << iota
	DirBitY
	DirBitZ
)

const (
	StepBitX = 1 << (3 + iota)
	StepBitY
	StepBitZ
)

const DirectionMask = DirBitX | DirBitY | DirBitZ
const StepMask = StepBitX | StepBitY | StepBitZ

// DirBit and StepBit return the direction/step mask bit for axis i (0=X,
// 1=Y, 2=Z).
func DirBit(axis int) uint8  { return 1 << uint(axis) }
func StepBit(axis int) uint8 { return 1 << uint(3+axis) }

// Block is a planned constant-acceleration segment between two
// waypoints. Fields are grouped by who owns them: geometry is fixed at
// append time, the speed/trapezoid fields are owned by the planner and
// rewritten on every recalculate() pass until the block starts
// executing.
type Block struct {
	// Geometry, fixed at append time.
	Steps          [3]int32
	DirectionBits  uint8
	StepEventCount int32
	Millimeters    float32

	// Requested feed, fixed at append time.
	NominalSpeedSq float32
	NominalRate    float32
	Acceleration   float32 // steps/min^2
	RateDelta      float32 // steps/min per acceleration tick

	// Planner-owned, rewritten by recalculate().
	EntrySpeedSq      float32
	MaxEntrySpeedSq   float32
	NominalLengthFlag bool
	RecalculateFlag   bool

	// Trapezoid, derived from the above by the planner each time the
	// block's entry/exit speed changes.
	InitialRate     float32
	FinalRate       float32
	AccelerateUntil int32
	DecelerateAfter int32
}

// Reset zeroes a block in place so a discarded slot cannot leak stale
// trapezoid state into the next append.
func (b *Block) Reset() { *b = Block{} }
