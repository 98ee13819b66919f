// Package bootstrap turns a platform boot descriptor into the
// first-generation capacity pools everything else consumes. The descriptor
// enumerates the untyped memory regions the platform handed over, the root
// storage node's free slot range, and the root address space's mapping
// capacity. The Allocator hands out whole regions on request, smallest
// sufficient first; it never splits anything, that is the ledger's job.
package bootstrap

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/auxoncorp/ferros/caps"
	"github.com/auxoncorp/ferros/internal/abi"
)

var (
	// ErrRegionSizeOutOfRange indicates a region's size class outside the
	// kernel's representable untyped range.
	ErrRegionSizeOutOfRange = errors.New("bootstrap: region size class out of range")

	// ErrMisalignedRegion indicates a region whose address is not aligned
	// to its size class.
	ErrMisalignedRegion = errors.New("bootstrap: region misaligned for its size class")

	// ErrSlotRangeInvalid indicates a root node slot range that does not
	// fit the node.
	ErrSlotRangeInvalid = errors.New("bootstrap: root node slot range invalid")

	// ErrNoMatchingRegion indicates no free region satisfies the request.
	ErrNoMatchingRegion = errors.New("bootstrap: no matching untyped region")
)

// Region describes one platform-supplied untyped memory region.
type Region struct {
	SizeBits uint8  `yaml:"size_bits"`
	Paddr    uint64 `yaml:"paddr"`
	Device   bool   `yaml:"device"`
}

// RootNode describes the root storage node's free slot range.
type RootNode struct {
	// Slots is the node's total slot count.
	Slots uint64 `yaml:"slots"`
	// FirstFree is the index of the first slot not already occupied by
	// system-provided capabilities.
	FirstFree uint64 `yaml:"first_free"`
}

// VSpace describes the root address space's free mapping capacity.
type VSpace struct {
	DirSlots   uint64 `yaml:"directory_slots"`
	TableSlots uint64 `yaml:"table_slots"`
}

// Descriptor is the platform boot descriptor, the sole input the core
// consumes from platform bring-up.
type Descriptor struct {
	Regions  []Region `yaml:"regions"`
	RootNode RootNode `yaml:"root_node"`
	VSpace   VSpace   `yaml:"vspace"`
}

// Parse decodes a YAML boot descriptor.
func Parse(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("bootstrap: parse descriptor: %w", err)
	}
	return &d, nil
}

// Load reads and decodes a YAML boot descriptor file.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: read descriptor: %w", err)
	}
	return Parse(data)
}

// Validate checks the descriptor against the kernel ABI's limits.
func (d *Descriptor) Validate() error {
	for i, r := range d.Regions {
		if r.SizeBits < abi.MinUntypedBits || r.SizeBits > abi.MaxUntypedBits {
			return fmt.Errorf("%w: region %d has class %d", ErrRegionSizeOutOfRange, i, r.SizeBits)
		}
		if r.Paddr&(1<<r.SizeBits-1) != 0 {
			return fmt.Errorf("%w: region %d at %#x", ErrMisalignedRegion, i, r.Paddr)
		}
	}
	if d.RootNode.FirstFree >= d.RootNode.Slots {
		return fmt.Errorf("%w: first free %d of %d slots",
			ErrSlotRangeInvalid, d.RootNode.FirstFree, d.RootNode.Slots)
	}
	return nil
}

// item tracks one discovered region and whether it has been handed out.
type item struct {
	pool *caps.MemoryPool
	free bool
}

// Allocator hands out whole first-generation memory pools discovered from
// the boot descriptor.
type Allocator struct {
	items []item
}

// Boot is the result of discovery: the untyped allocator plus the
// first-generation slot and address-slot pools. The pool fields follow the
// single-owner discipline; the caller takes them from here exactly once.
type Boot struct {
	Alloc     *Allocator
	RootSlots *caps.SlotPool
	AddrSlots *caps.AddrSlotPool
}

// rootNodeID identifies the root storage node and root address space in
// first-generation pools.
const rootNodeID = 0

// Discover validates the descriptor and produces the first-generation pools.
func Discover(d *Descriptor) (*Boot, error) {
	if err := abi.SelfCheck(); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	a := &Allocator{items: make([]item, 0, len(d.Regions))}
	for _, r := range d.Regions {
		p, err := caps.NewMemoryPool(r.SizeBits, r.Paddr, r.Device)
		if err != nil {
			return nil, err
		}
		a.items = append(a.items, item{pool: p, free: true})
	}

	return &Boot{
		Alloc: a,
		RootSlots: caps.NewSlotPool(rootNodeID, d.RootNode.FirstFree,
			d.RootNode.Slots-d.RootNode.FirstFree),
		AddrSlots: caps.NewAddrSlotPool(rootNodeID, d.VSpace.DirSlots, d.VSpace.TableSlots),
	}, nil
}

// GetUntyped hands out the smallest free general-memory region of at least
// the given size class. The region leaves the allocator for good.
func (a *Allocator) GetUntyped(sizeBits uint8) (*caps.MemoryPool, error) {
	return a.find(sizeBits, false, nil)
}

// GetDeviceUntyped hands out the device region of at least the given size
// class at the given physical address.
func (a *Allocator) GetDeviceUntyped(sizeBits uint8, paddr uint64) (*caps.MemoryPool, error) {
	return a.find(sizeBits, true, &paddr)
}

func (a *Allocator) find(sizeBits uint8, device bool, paddr *uint64) (*caps.MemoryPool, error) {
	// Linear scan per size class, smallest first. Inefficient, but this
	// runs a handful of times at startup.
	for bits := sizeBits; bits <= abi.MaxUntypedBits; bits++ {
		for i := range a.items {
			it := &a.items[i]
			if !it.free || it.pool.SizeBits() != bits || it.pool.Device() != device {
				continue
			}
			if paddr != nil && it.pool.Paddr() != *paddr {
				continue
			}
			it.free = false
			return it.pool, nil
		}
	}
	return nil, fmt.Errorf("%w: class >= %d, device=%t", ErrNoMatchingRegion, sizeBits, device)
}

// FreeRegions returns how many regions remain undistributed.
func (a *Allocator) FreeRegions() int {
	n := 0
	for _, it := range a.items {
		if it.free {
			n++
		}
	}
	return n
}
