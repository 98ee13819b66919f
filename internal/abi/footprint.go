package abi

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind indicates a footprint lookup for a kind that has no
	// table entry, either because it is not directly retypable or because
	// the kind value is out of range.
	ErrUnknownKind = errors.New("abi: kind has no fixed footprint")

	// ErrBadRadix indicates a capability node radix outside the supported
	// range.
	ErrBadRadix = errors.New("abi: capnode radix out of range")
)

// footprints maps each directly retypable kind to the size class it consumes.
// Capability nodes are absent: their footprint depends on the radix chosen
// and is computed by CapNodeFootprintBits.
var footprints = map[ObjectKind]uint8{
	KindEndpoint:      4,
	KindNotification:  5,
	KindTCB:           9,
	KindPage:          PageBits,
	KindLargePage:     LargePageBits,
	KindPageTable:     PageTableBits,
	KindPageDirectory: PageDirectoryBits,
	KindASIDPool:      12,
}

// FootprintBits returns the size class one instance of the given kind
// consumes on retype.
func FootprintBits(kind ObjectKind) (uint8, error) {
	bits, ok := footprints[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return bits, nil
}

// CapNodeFootprintBits returns the size class a capability node of the given
// radix consumes. A node of radix R holds 2^R slots of 2^SlotBits bytes each.
func CapNodeFootprintBits(radix uint8) (uint8, error) {
	if radix == 0 || SlotBits+radix > MaxUntypedBits {
		return 0, fmt.Errorf("%w: %d", ErrBadRadix, radix)
	}
	return SlotBits + radix, nil
}

// Retypable reports whether the kind may be produced by a retype call.
func Retypable(kind ObjectKind) bool {
	if kind == KindCapNode {
		return true
	}
	_, ok := footprints[kind]
	return ok
}

// SelfCheck validates the footprint table against the retype granularity
// limits. It is intended to run once at startup: a table entry drifting out
// of the kernel's representable range would otherwise surface much later as
// a spurious capacity failure, or worse, an undersized instance.
func SelfCheck() error {
	for kind, bits := range footprints {
		if bits < MinUntypedBits || bits > MaxUntypedBits {
			return fmt.Errorf("abi: footprint of %s (%d bits) outside untyped range [%d, %d]",
				kind, bits, MinUntypedBits, MaxUntypedBits)
		}
	}
	if SlotBits+1 < MinUntypedBits {
		return fmt.Errorf("abi: minimal capnode (%d bits) below retype granularity %d",
			SlotBits+1, MinUntypedBits)
	}
	return nil
}
