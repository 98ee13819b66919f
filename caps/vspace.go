package caps

import (
	"fmt"

	"github.com/google/uuid"
)

// AddrSlotLevel distinguishes the two independently tracked mapping-slot
// magnitudes of an address space.
type AddrSlotLevel uint8

const (
	// LevelDirectory slots hold page tables.
	LevelDirectory AddrSlotLevel = iota + 1
	// LevelTable slots hold individual page mappings.
	LevelTable
)

func (l AddrSlotLevel) String() string {
	switch l {
	case LevelDirectory:
		return "directory"
	case LevelTable:
		return "table"
	}
	return "unknown"
}

// AddrSlot is one concrete mapping slot in an address space.
type AddrSlot struct {
	VSpace uint64
	Level  AddrSlotLevel
	Index  uint64
}

// AddrSlotPool tracks the free mapping slots of one address space. Directory
// and table slots are independent magnitudes, deducted independently by
// reservation.
type AddrSlotPool struct {
	vspace    uint64
	ctx       Context
	dirBase   uint64
	dirFree   uint64
	tableBase uint64
	tableFree uint64
	gen       uuid.UUID
	m         *mark
}

// NewAddrSlotPool wraps the free mapping slots of the address space
// identified by vspace, valid in the local context.
func NewAddrSlotPool(vspace, dirFree, tableFree uint64) *AddrSlotPool {
	return &AddrSlotPool{
		vspace:    vspace,
		dirFree:   dirFree,
		tableFree: tableFree,
		gen:       newGen(),
		m:         &mark{},
	}
}

// VSpace returns the owning address space's identity.
func (p *AddrSlotPool) VSpace() uint64 { return p.vspace }

// DirFree returns the number of free directory slots.
func (p *AddrSlotPool) DirFree() uint64 { return p.dirFree }

// TableFree returns the number of free table slots.
func (p *AddrSlotPool) TableFree() uint64 { return p.tableFree }

// Context returns the execution context the pool is valid in.
func (p *AddrSlotPool) Context() Context { return p.ctx }

// Generation returns the pool's generation tag.
func (p *AddrSlotPool) Generation() uuid.UUID { return p.gen }

// Spent reports whether the value has been consumed by a ledger operation.
func (p *AddrSlotPool) Spent() bool { return p.m == nil || p.m.spent }

func (p *AddrSlotPool) String() string {
	return fmt.Sprintf("addrslots(vspace %d, %d dir + %d table free, %s)",
		p.vspace, p.dirFree, p.tableFree, p.ctx)
}

func (p *AddrSlotPool) successor(dirBase, dirFree, tableBase, tableFree uint64) *AddrSlotPool {
	return &AddrSlotPool{
		vspace:    p.vspace,
		ctx:       p.ctx,
		dirBase:   dirBase,
		dirFree:   dirFree,
		tableBase: tableBase,
		tableFree: tableFree,
		gen:       newGen(),
		m:         &mark{},
	}
}
