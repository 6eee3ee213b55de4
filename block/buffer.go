package block

import "sync/atomic"

// DefaultCapacity is a typical block buffer depth: enough lookahead for
// junction-speed planning without unbounded queuing latency.
const DefaultCapacity = 18

// Buffer is a fixed-capacity single-producer/single-consumer ring of
// Blocks. The planner is the sole producer (writes block_buffer[head]);
// the stepper executor is the sole consumer (reads block_buffer[tail]).
// head/tail/planned are word-atomic so that index publication is visible
// across the foreground/interrupt boundary without a lock: CommitWrite
// stores head only after every field of the committed slot has been
// written, so PeekCurrent never observes a partially-initialized block.
type Buffer struct {
	slots   []Block
	head    atomic.Uint32
	tail    atomic.Uint32
	planned atomic.Uint32
}

// NewBuffer allocates a ring of the given capacity. Capacity must be at
// least 2 (one slot is always kept empty to disambiguate full from
// empty).
func NewBuffer(capacity int) *Buffer {
	if capacity < 2 {
		capacity = 2
	}
	return &Buffer{slots: make([]Block, capacity)}
}

func (b *Buffer) cap() uint32 { return uint32(len(b.slots)) }

func (b *Buffer) next(i uint32) uint32 {
	i++
	if i >= b.cap() {
		i = 0
	}
	return i
}

// Empty reports whether the buffer holds no committed blocks.
func (b *Buffer) Empty() bool {
	return b.head.Load() == b.tail.Load()
}

// Full reports whether the buffer has no free slot for a new write.
func (b *Buffer) Full() bool {
	return b.next(b.head.Load()) == b.tail.Load()
}

// GetWriteSlot returns a pointer to the slot the planner should fill
// next, or ok=false if the buffer is full. The planner is responsible
// for the cooperative busy-wait: it polls this (and the runtime
// coordinator) in a loop until a slot frees.
func (b *Buffer) GetWriteSlot() (slot *Block, ok bool) {
	if b.Full() {
		return nil, false
	}
	return &b.slots[b.head.Load()], true
}

// CommitWrite publishes the slot returned by the last GetWriteSlot call:
// it must only be called after every field of that slot has been
// written. Advancing head is the publication point.
func (b *Buffer) CommitWrite() {
	b.head.Store(b.next(b.head.Load()))
}

// PeekCurrent returns the oldest committed block without removing it, or
// ok=false if the buffer is empty. Only the stepper executor calls this.
func (b *Buffer) PeekCurrent() (cur *Block, ok bool) {
	if b.Empty() {
		return nil, false
	}
	return &b.slots[b.tail.Load()], true
}

// DiscardCurrent retires the block at tail. If tail advances past
// planned (the boundary the planner is still allowed to recompute),
// planned advances with it so the planner never rewrites a block that
// has already started executing.
func (b *Buffer) DiscardCurrent() {
	tail := b.tail.Load()
	if b.Empty() {
		return
	}
	b.slots[tail].Reset()
	newTail := b.next(tail)
	b.tail.Store(newTail)
	if b.planned.Load() == tail {
		b.planned.Store(newTail)
	}
}

// Planned returns the index of the first block the planner may still
// recompute; blocks in [tail, planned) are immutable, already executing
// or already optimal.
func (b *Buffer) Planned() uint32 { return b.planned.Load() }

// SetPlanned is called only by the planner's recalculate pass.
func (b *Buffer) SetPlanned(i uint32) { b.planned.Store(i) }

// Head and Tail expose the raw indices for range iteration by the
// planner's two-pass recalculation; callers must only read blocks in
// [tail, head).
func (b *Buffer) Head() uint32 { return b.head.Load() }
func (b *Buffer) Tail() uint32 { return b.tail.Load() }
func (b *Buffer) Cap() int     { return len(b.slots) }

// At returns a pointer to the raw slot at index i (mod capacity),
// without regard to head/tail. Used by the planner, which is the only
// caller permitted to index outside [tail, head).
func (b *Buffer) At(i uint32) *Block { return &b.slots[i%b.cap()] }

// Next is the public ring-arithmetic helper (see unexported next) used
// by the planner's recalculation loop.
func (b *Buffer) Next(i uint32) uint32 { return b.next(i) }

// Len returns the number of committed, unexecuted blocks.
func (b *Buffer) Len() int {
	h, t := b.head.Load(), b.tail.Load()
	if h >= t {
		return int(h - t)
	}
	return int(b.cap() - t + h)
}

// Reinitialize empties the buffer and clears every slot. Used by
// planner.Init and by alarm/reset recovery.
func (b *Buffer) Reinitialize() {
	for i := range b.slots {
		b.slots[i].Reset()
	}
	b.head.Store(0)
	b.tail.Store(0)
	b.planned.Store(0)
}
