package plan

import (
	"fmt"

	"github.com/auxoncorp/ferros/caps"
	"github.com/auxoncorp/ferros/internal/abi"
)

// demandKey identifies one independently tracked demand total.
type demandKey struct {
	alias string
	cat   Category
}

// demand aggregates the total requested quantity for one key.
type demand struct {
	// classes lists requested memory size classes in first-occurrence
	// order across the depth-first walk.
	classes []uint8
	slots   uint64
	dir     uint64
	table   uint64
}

// Demands is the result of the static scan: total demand per alias and
// category, with no pools touched.
type Demands struct {
	totals map[demandKey]*demand
	order  []demandKey
}

// Scan walks the block without executing anything and totals its demand.
// It validates request shape, per-scope placeholder uniqueness, and the
// nesting rule: an alias+category pair may not be requested by both a scope
// and one of its nested scopes.
func Scan(b *Block) (*Demands, error) {
	d := &Demands{totals: make(map[demandKey]*demand)}
	if err := d.scanScope(b, make(map[demandKey]bool)); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Demands) scanScope(b *Block, ancestors map[demandKey]bool) error {
	names := make(map[string]bool, len(b.Requests))
	scope := make(map[demandKey]bool)

	for _, r := range b.Requests {
		if r.Alias == "" || r.Name == "" {
			return fmt.Errorf("%w: alias and name required", ErrBadRequest)
		}
		if names[r.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateName, r.Name)
		}
		names[r.Name] = true

		key := demandKey{alias: r.Alias, cat: r.Category}
		if ancestors[key] {
			return &AmbiguousAliasError{Alias: r.Alias, Category: r.Category}
		}
		scope[key] = true

		t := d.total(key)
		switch r.Category {
		case CategoryMemory:
			if r.SizeBits < abi.MinUntypedBits || r.SizeBits > abi.MaxUntypedBits {
				return fmt.Errorf("%w: size class %d", ErrBadRequest, r.SizeBits)
			}
			t.classes = append(t.classes, r.SizeBits)
		case CategorySlots:
			if r.Count <= 0 {
				return fmt.Errorf("%w: slot count %d", ErrBadRequest, r.Count)
			}
			t.slots += uint64(r.Count)
		case CategoryAddrSlots:
			if r.Dir < 0 || r.Table < 0 || r.Dir+r.Table == 0 {
				return fmt.Errorf("%w: address slot counts %d/%d", ErrBadRequest, r.Dir, r.Table)
			}
			t.dir += uint64(r.Dir)
			t.table += uint64(r.Table)
		default:
			return fmt.Errorf("%w: category %d", ErrBadRequest, r.Category)
		}
	}

	// Nested scopes see this scope's keys as ancestors, but not their
	// siblings' keys: sibling scopes may legitimately draw on the same
	// alias, and their demands simply sum.
	for key := range scope {
		ancestors[key] = true
	}
	for _, child := range b.Children {
		if err := d.scanScope(child, ancestors); err != nil {
			return err
		}
	}
	for key := range scope {
		delete(ancestors, key)
	}
	return nil
}

func (d *Demands) total(key demandKey) *demand {
	t, ok := d.totals[key]
	if !ok {
		t = &demand{}
		d.totals[key] = t
		d.order = append(d.order, key)
	}
	return t
}

// Availability declares, per alias, the capacity admission checks demand
// against. The live planner derives it from the supplied pools; the offline
// verifier builds it from declared sizes.
type Availability struct {
	// MemoryCounts maps a memory alias to its free pool count per size
	// class, indexed by class.
	MemoryCounts map[string][]int
	// SlotCounts maps a slot alias to its free slot count.
	SlotCounts map[string]uint64
	// DirCounts and TableCounts map an address-slot alias to its free
	// sub-counts.
	DirCounts   map[string]uint64
	TableCounts map[string]uint64
}

// Admit checks every demand total against the declared availability. The
// first shortfall is returned as an ExhaustionError; an alias with no
// declared pool is ErrUnknownAlias. Admit performs no allocation and mutates
// nothing.
func (d *Demands) Admit(avail *Availability) error {
	for _, key := range d.order {
		t := d.totals[key]
		switch key.cat {
		case CategoryMemory:
			counts, ok := avail.MemoryCounts[key.alias]
			if !ok {
				return fmt.Errorf("%w: %q (%s)", ErrUnknownAlias, key.alias, key.cat)
			}
			if err := admitMemory(key.alias, counts, t.classes); err != nil {
				return err
			}
		case CategorySlots:
			free, ok := avail.SlotCounts[key.alias]
			if !ok {
				return fmt.Errorf("%w: %q (%s)", ErrUnknownAlias, key.alias, key.cat)
			}
			if t.slots > free {
				return &ExhaustionError{
					Alias:     key.alias,
					Category:  CategorySlots,
					Demanded:  t.slots,
					Available: free,
				}
			}
		case CategoryAddrSlots:
			dir, ok := avail.DirCounts[key.alias]
			if !ok {
				return fmt.Errorf("%w: %q (%s)", ErrUnknownAlias, key.alias, key.cat)
			}
			table := avail.TableCounts[key.alias]
			if t.dir > dir {
				return &ExhaustionError{
					Alias:     key.alias,
					Category:  CategoryAddrSlots,
					Level:     caps.LevelDirectory,
					Demanded:  t.dir,
					Available: dir,
				}
			}
			if t.table > table {
				return &ExhaustionError{
					Alias:     key.alias,
					Category:  CategoryAddrSlots,
					Level:     caps.LevelTable,
					Demanded:  t.table,
					Available: table,
				}
			}
		}
	}
	return nil
}

// admitMemory symbolically re-runs buddy allocation over a per-class count
// table: each requested class takes the smallest sufficient free pool and
// parks the halves produced on the way down. The table is copied; the
// caller's counts are untouched.
func admitMemory(alias string, counts []int, classes []uint8) error {
	free := make([]int, len(counts))
	copy(free, counts)

	classTotals := make(map[uint8]uint64)
	satisfied := make(map[uint8]uint64)
	for _, c := range classes {
		classTotals[c]++
	}

	for _, want := range classes {
		src := -1
		for c := int(want); c < len(free); c++ {
			if free[c] > 0 {
				src = c
				break
			}
		}
		if src == -1 {
			return &ExhaustionError{
				Alias:     alias,
				Category:  CategoryMemory,
				Demanded:  classTotals[want],
				Available: satisfied[want],
			}
		}
		free[src]--
		for c := src - 1; c >= int(want); c-- {
			free[c]++
		}
		satisfied[want]++
	}
	return nil
}
