// Package plan pre-computes the aggregate resource demand of a block of
// operations and performs the allocations before the block runs.
//
// A Block declares requests against named pool aliases, each request naming
// a placeholder instead of a concrete value. Plan statically scans the block
// (without running anything), totals the demand per alias and resource
// category, admits the block only if every total fits the supplied pools,
// then performs the minimum number of ledger operations and binds the
// results to the placeholders. Execute runs the caller's operations against
// the bound values.
//
// Admission is all-or-nothing: if any single (alias, category) demand
// exceeds availability, no allocation is performed, no operation runs, and
// the supplied pools are untouched.
//
//	block := &plan.Block{Requests: []plan.Request{
//		plan.Slots("cs", "ep_slots", 2),
//		plan.Memory("ut", "tcb_mem", 10),
//	}}
//	planned, err := plan.Plan(block, pools)
//	if err != nil {
//		return err // nothing consumed
//	}
//	final, err := planned.Execute(func(b *plan.Bindings) error {
//		// operations use b.Slots("ep_slots"), b.Memory("tcb_mem")
//		return nil
//	})
package plan

import (
	"errors"
	"fmt"

	"github.com/auxoncorp/ferros/caps"
	"github.com/auxoncorp/ferros/caps/buddy"
)

// Category identifies the resource category a request draws from.
type Category uint8

const (
	// CategoryMemory requests a memory pool of a specific size class.
	CategoryMemory Category = iota + 1
	// CategorySlots requests capability-storage slots.
	CategorySlots
	// CategoryAddrSlots requests address-space mapping slots.
	CategoryAddrSlots
)

func (c Category) String() string {
	switch c {
	case CategoryMemory:
		return "memory"
	case CategorySlots:
		return "slots"
	case CategoryAddrSlots:
		return "address-slots"
	}
	return "unknown"
}

var (
	// ErrUnknownAlias indicates a request against an alias with no pool of
	// the requested category.
	ErrUnknownAlias = errors.New("plan: alias not bound to a pool")

	// ErrDuplicateName indicates two placeholders with the same name in
	// one scope.
	ErrDuplicateName = errors.New("plan: duplicate placeholder name in scope")

	// ErrBadRequest indicates a request with a non-positive or out-of-range
	// demand.
	ErrBadRequest = errors.New("plan: malformed request")
)

// ExhaustionError indicates a (alias, category) demand exceeding the
// supplied pool's capacity. It is produced during admission, before any
// allocation or block operation.
type ExhaustionError struct {
	Alias    string
	Category Category
	// Level is set when an address-slot sub-count was the short one.
	Level     caps.AddrSlotLevel
	Demanded  uint64
	Available uint64
}

func (e *ExhaustionError) Error() string {
	if e.Level != 0 {
		return fmt.Sprintf("plan: alias %q demands %d %s %s, %d available",
			e.Alias, e.Demanded, e.Level, e.Category, e.Available)
	}
	return fmt.Sprintf("plan: alias %q demands %d %s, %d available",
		e.Alias, e.Demanded, e.Category, e.Available)
}

// AmbiguousAliasError indicates the same alias requested for the same
// category in both a scope and one of its nested scopes.
type AmbiguousAliasError struct {
	Alias    string
	Category Category
}

func (e *AmbiguousAliasError) Error() string {
	return fmt.Sprintf("plan: alias %q (%s) declared in both an enclosing and a nested scope",
		e.Alias, e.Category)
}

// Request is one placeholder: a named demand against a pool alias.
type Request struct {
	Alias    string
	Name     string
	Category Category

	// SizeBits is the requested size class for CategoryMemory.
	SizeBits uint8
	// Count is the slot count for CategorySlots.
	Count int
	// Dir and Table are the sub-counts for CategoryAddrSlots.
	Dir   int
	Table int
}

// Memory returns a request for a memory pool of the given size class.
func Memory(alias, name string, sizeBits uint8) Request {
	return Request{Alias: alias, Name: name, Category: CategoryMemory, SizeBits: sizeBits}
}

// Slots returns a request for k storage slots.
func Slots(alias, name string, k int) Request {
	return Request{Alias: alias, Name: name, Category: CategorySlots, Count: k}
}

// AddrSlots returns a request for kDir directory and kTable table mapping
// slots.
func AddrSlots(alias, name string, kDir, kTable int) Request {
	return Request{Alias: alias, Name: name, Category: CategoryAddrSlots, Dir: kDir, Table: kTable}
}

// Block is a scoped sequence of requests. Nested blocks are scanned
// recursively but keep their own placeholder namespace and their own demand
// counts; placeholders never cross scope boundaries.
type Block struct {
	Requests []Request
	Children []*Block
}

// Pools supplies the starting pool value for each alias, per category. The
// same alias name may appear in different categories; those demands are
// tracked independently.
type Pools struct {
	Memory map[string]*buddy.Buddy
	Slots  map[string]*caps.SlotPool
	Addr   map[string]*caps.AddrSlotPool
}
