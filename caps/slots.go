package caps

import (
	"fmt"

	"github.com/google/uuid"
)

// SlotAddr is one concrete capability-storage slot.
type SlotAddr struct {
	// Node identifies the owning storage node.
	Node uint64
	// Index is the slot's position within the node.
	Index uint64
}

// SlotPool is a contiguous block of free slots in a capability storage node.
// Reserving k slots consumes the pool value and returns the k concrete slot
// addresses plus a successor pool covering the rest of the block.
type SlotPool struct {
	node Context
	id   uint64
	base uint64
	free uint64
	gen  uuid.UUID
	m    *mark
}

// NewSlotPool wraps a run of free slots [base, base+count) in the node
// identified by id, valid in the local context.
func NewSlotPool(id, base, count uint64) *SlotPool {
	return &SlotPool{id: id, base: base, free: count, gen: newGen(), m: &mark{}}
}

// NewSlotPoolFor is NewSlotPool with an explicit execution context, for slot
// blocks living in a child's storage node.
func NewSlotPoolFor(ctx Context, id, base, count uint64) *SlotPool {
	p := NewSlotPool(id, base, count)
	p.node = ctx
	return p
}

// Node returns the owning storage node's identity.
func (p *SlotPool) Node() uint64 { return p.id }

// Base returns the index of the first free slot.
func (p *SlotPool) Base() uint64 { return p.base }

// Free returns the number of free slots remaining.
func (p *SlotPool) Free() uint64 { return p.free }

// Context returns the execution context the slots are valid in.
func (p *SlotPool) Context() Context { return p.node }

// Generation returns the pool's generation tag.
func (p *SlotPool) Generation() uuid.UUID { return p.gen }

// Spent reports whether the value has been consumed by a ledger operation.
func (p *SlotPool) Spent() bool { return p.m == nil || p.m.spent }

func (p *SlotPool) String() string {
	return fmt.Sprintf("slots(node %d, %d free at %d, %s)", p.id, p.free, p.base, p.node)
}

func (p *SlotPool) successor(base, free uint64) *SlotPool {
	return &SlotPool{node: p.node, id: p.id, base: base, free: free, gen: newGen(), m: &mark{}}
}
