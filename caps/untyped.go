package caps

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/auxoncorp/ferros/internal/abi"
)

// MemoryPool is an untyped memory region of a power-of-two size class. At
// most one live pool value may claim a given region at a time: splitting,
// quartering, or retyping consumes the value and returns successors covering
// disjoint sub-regions.
type MemoryPool struct {
	sizeBits uint8
	paddr    uint64
	device   bool
	ctx      Context
	gen      uuid.UUID
	m        *mark
}

// NewMemoryPool wraps an untyped region as a first-generation pool in the
// local context. The region's physical address must be aligned to its size
// class.
func NewMemoryPool(sizeBits uint8, paddr uint64, device bool) (*MemoryPool, error) {
	if sizeBits < abi.MinUntypedBits || sizeBits > abi.MaxUntypedBits {
		return nil, fmt.Errorf("caps: untyped size class %d outside [%d, %d]",
			sizeBits, abi.MinUntypedBits, abi.MaxUntypedBits)
	}
	if paddr&(1<<sizeBits-1) != 0 {
		return nil, fmt.Errorf("caps: region %#x misaligned for size class %d", paddr, sizeBits)
	}
	return &MemoryPool{
		sizeBits: sizeBits,
		paddr:    paddr,
		device:   device,
		gen:      newGen(),
		m:        &mark{},
	}, nil
}

// SizeBits returns the pool's size class.
func (p *MemoryPool) SizeBits() uint8 { return p.sizeBits }

// Bytes returns the pool's capacity in bytes.
func (p *MemoryPool) Bytes() uint64 { return 1 << p.sizeBits }

// Paddr returns the physical address of the region.
func (p *MemoryPool) Paddr() uint64 { return p.paddr }

// Device reports whether the region is device memory. Device memory cannot
// become arbitrary kernel objects, only frames.
func (p *MemoryPool) Device() bool { return p.device }

// Context returns the execution context the pool is valid in.
func (p *MemoryPool) Context() Context { return p.ctx }

// Generation returns the pool's generation tag.
func (p *MemoryPool) Generation() uuid.UUID { return p.gen }

// Spent reports whether the value has been consumed by a ledger operation.
func (p *MemoryPool) Spent() bool { return p.m == nil || p.m.spent }

func (p *MemoryPool) String() string {
	kind := "general"
	if p.device {
		kind = "device"
	}
	return fmt.Sprintf("untyped(%d bits, %s, %#x)", p.sizeBits, kind, p.paddr)
}

// successor derives a pool value covering a sub-region of p, carrying a
// fresh generation and consumption marker.
func (p *MemoryPool) successor(sizeBits uint8, paddr uint64) *MemoryPool {
	return &MemoryPool{
		sizeBits: sizeBits,
		paddr:    paddr,
		device:   p.device,
		ctx:      p.ctx,
		gen:      newGen(),
		m:        &mark{},
	}
}
