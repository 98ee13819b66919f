// Package buddy provides buddy allocation over memory pools. A Buddy wraps
// pools of assorted size classes and serves exact-class requests by
// splitting the smallest sufficient pool down, parking the intermediate
// halves for later requests. It is the memory source behind the allocation
// planner's per-size-class demand.
package buddy

import (
	"errors"
	"fmt"

	"github.com/auxoncorp/ferros/caps"
	"github.com/auxoncorp/ferros/internal/abi"
)

var (
	// ErrExhausted indicates no held pool is large enough for the request.
	ErrExhausted = errors.New("buddy: no pool large enough")

	// ErrDevicePool indicates an attempt to seed the buddy with device
	// memory, which cannot be split into general-purpose objects.
	ErrDevicePool = errors.New("buddy: device memory cannot be pooled")

	// ErrBadSizeClass indicates a request outside the untyped class range.
	ErrBadSizeClass = errors.New("buddy: size class out of range")
)

// Buddy holds free memory pools segregated by size class.
type Buddy struct {
	led   *caps.Ledger
	pools [abi.MaxUntypedBits + 1][]*caps.MemoryPool
}

// New returns a Buddy drawing splits from the given ledger, seeded with the
// given pools.
func New(led *caps.Ledger, seed ...*caps.MemoryPool) (*Buddy, error) {
	b := &Buddy{led: led}
	for _, p := range seed {
		if err := b.Add(p); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Add hands a pool to the buddy. The buddy owns it from here on: the caller
// must not use the value again.
func (b *Buddy) Add(p *caps.MemoryPool) error {
	if p.Device() {
		return ErrDevicePool
	}
	if p.Spent() {
		return caps.ErrPoolSpent
	}
	b.pools[p.SizeBits()] = append(b.pools[p.SizeBits()], p)
	return nil
}

// Alloc returns a pool of exactly the requested size class, splitting a
// larger pool down if no exact-class pool is parked. Intermediate halves are
// parked in their classes for later requests.
func (b *Buddy) Alloc(sizeBits uint8) (*caps.MemoryPool, error) {
	if sizeBits < abi.MinUntypedBits || sizeBits > abi.MaxUntypedBits {
		return nil, fmt.Errorf("%w: %d", ErrBadSizeClass, sizeBits)
	}

	src := b.take(sizeBits)
	if src == nil {
		return nil, fmt.Errorf("%w: class %d", ErrExhausted, sizeBits)
	}

	for src.SizeBits() > sizeBits {
		a, rest, err := b.led.Split(src)
		if err != nil {
			// Split rolled the input back; re-park it so the buddy
			// loses nothing.
			b.pools[src.SizeBits()] = append(b.pools[src.SizeBits()], src)
			return nil, err
		}
		b.pools[rest.SizeBits()] = append(b.pools[rest.SizeBits()], rest)
		src = a
	}
	return src, nil
}

// take pops the smallest parked pool of class >= sizeBits, or nil.
func (b *Buddy) take(sizeBits uint8) *caps.MemoryPool {
	for c := int(sizeBits); c <= abi.MaxUntypedBits; c++ {
		if n := len(b.pools[c]); n > 0 {
			p := b.pools[c][n-1]
			b.pools[c] = b.pools[c][:n-1]
			return p
		}
	}
	return nil
}

// Available returns the number of parked pools of exactly the given class.
func (b *Buddy) Available(sizeBits uint8) int {
	if sizeBits > abi.MaxUntypedBits {
		return 0
	}
	return len(b.pools[sizeBits])
}

// Snapshot returns the parked pool count per size class, indexed by class.
// The planner and the offline verifier run their admission arithmetic over
// this without touching the pools themselves.
func (b *Buddy) Snapshot() []int {
	counts := make([]int, abi.MaxUntypedBits+1)
	for c := range b.pools {
		counts[c] = len(b.pools[c])
	}
	return counts
}

// TotalBytes returns the capacity currently parked across all classes.
func (b *Buddy) TotalBytes() uint64 {
	var total uint64
	for c := range b.pools {
		total += uint64(len(b.pools[c])) << uint(c)
	}
	return total
}
