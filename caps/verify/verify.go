// Package verify checks a planned block against declared pool capacities
// without touching a kernel or any live pool. It is meant for build-time
// checking: declare what the boot environment will provide, and find out
// before deployment whether every block the program plans will be admitted.
//
// All checks return *CheckError on failure so callers can extract the
// failing alias and quantities:
//
//	if err := verify.Check(block, capacity); err != nil {
//	    var cerr *verify.CheckError
//	    if errors.As(err, &cerr) {
//	        log.Fatalf("plan does not fit: %s", cerr)
//	    }
//	}
package verify

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/auxoncorp/ferros/caps/bootstrap"
	"github.com/auxoncorp/ferros/caps/plan"
	"github.com/auxoncorp/ferros/internal/abi"
)

// CheckError describes one verification failure.
type CheckError struct {
	Type    string
	Message string
	Details map[string]interface{}
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Capacity declares, per alias, what the boot environment will provide.
type Capacity struct {
	// Memory maps a memory alias to the size classes of its free regions.
	Memory map[string][]uint8 `yaml:"memory"`
	// Slots maps a slot alias to its free slot count.
	Slots map[string]uint64 `yaml:"slots"`
	// Addr maps an address-slot alias to its free sub-counts.
	Addr map[string]AddrCapacity `yaml:"addr"`
}

// AddrCapacity is the declared free directory and table slot count of one
// address space.
type AddrCapacity struct {
	Dir   uint64 `yaml:"dir"`
	Table uint64 `yaml:"table"`
}

// ParseCapacity decodes a YAML capacity declaration.
func ParseCapacity(data []byte) (*Capacity, error) {
	var c Capacity
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("verify: parsing capacity: %w", err)
	}
	for alias, classes := range c.Memory {
		for _, sb := range classes {
			if sb < abi.MinUntypedBits || sb > abi.MaxUntypedBits {
				return nil, &CheckError{
					Type:    "Capacity",
					Message: fmt.Sprintf("memory alias %q declares size class %d, valid range is %d..%d", alias, sb, abi.MinUntypedBits, abi.MaxUntypedBits),
					Details: map[string]interface{}{"alias": alias, "size_bits": sb},
				}
			}
		}
	}
	return &c, nil
}

// CapacityFromBoot derives a capacity declaration from a boot descriptor,
// binding its general memory regions, root node slots, and address space to
// the given aliases. Device regions are excluded: blocks draw general memory
// only.
func CapacityFromBoot(d *bootstrap.Descriptor, memAlias, slotAlias, addrAlias string) (*Capacity, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	c := &Capacity{
		Memory: map[string][]uint8{memAlias: nil},
		Slots:  map[string]uint64{slotAlias: d.RootNode.Slots - d.RootNode.FirstFree},
		Addr: map[string]AddrCapacity{addrAlias: {
			Dir:   d.VSpace.DirSlots,
			Table: d.VSpace.TableSlots,
		}},
	}
	for _, r := range d.Regions {
		if r.Device {
			continue
		}
		c.Memory[memAlias] = append(c.Memory[memAlias], r.SizeBits)
	}
	return c, nil
}

// Check scans the block and admits its demand totals against the declared
// capacity. It mutates nothing. A structural problem in the block (duplicate
// placeholder, ambiguous alias, malformed request) or a capacity shortfall
// is returned as *CheckError; nil means every demand fits.
func Check(block *plan.Block, c *Capacity) error {
	demands, err := plan.Scan(block)
	if err != nil {
		return classify("Block", err)
	}
	if err := demands.Admit(availability(c)); err != nil {
		return classify("Capacity", err)
	}
	return nil
}

func availability(c *Capacity) *plan.Availability {
	a := &plan.Availability{
		MemoryCounts: make(map[string][]int, len(c.Memory)),
		SlotCounts:   make(map[string]uint64, len(c.Slots)),
		DirCounts:    make(map[string]uint64, len(c.Addr)),
		TableCounts:  make(map[string]uint64, len(c.Addr)),
	}
	for alias, classes := range c.Memory {
		counts := make([]int, abi.MaxUntypedBits+1)
		for _, sb := range classes {
			counts[sb]++
		}
		a.MemoryCounts[alias] = counts
	}
	for alias, free := range c.Slots {
		a.SlotCounts[alias] = free
	}
	for alias, ac := range c.Addr {
		a.DirCounts[alias] = ac.Dir
		a.TableCounts[alias] = ac.Table
	}
	return a
}

func classify(typ string, err error) error {
	details := map[string]interface{}{}

	var ex *plan.ExhaustionError
	if errors.As(err, &ex) {
		details["alias"] = ex.Alias
		details["category"] = ex.Category.String()
		details["demanded"] = ex.Demanded
		details["available"] = ex.Available
	}
	var amb *plan.AmbiguousAliasError
	if errors.As(err, &amb) {
		details["alias"] = amb.Alias
		details["category"] = amb.Category.String()
	}

	return &CheckError{
		Type:    typ,
		Message: err.Error(),
		Details: details,
	}
}
