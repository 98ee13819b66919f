// Package abi houses the fixed contract between this library and the
// underlying kernel: the enumeration of kernel object kinds, the footprint
// each kind consumes when carved out of raw memory, and the granularity
// limits of the retype primitive. The values are kept separate from the
// public API so higher-level packages can treat them as a lookup table
// rather than re-deriving them at every call site.
package abi

// ObjectKind identifies the kind of kernel object a capability refers to or
// that a retype operation produces.
type ObjectKind uint8

const (
	// KindUntyped is raw, as-yet-unretyped memory capacity.
	KindUntyped ObjectKind = iota + 1
	// KindCapNode is a capability storage node (a block of capability slots).
	KindCapNode
	// KindEndpoint is a synchronous messaging endpoint.
	KindEndpoint
	// KindNotification is an asynchronous signalling object.
	KindNotification
	// KindTCB is a thread control block.
	KindTCB
	// KindPage is a standard 4 KiB frame.
	KindPage
	// KindLargePage is a 64 KiB large frame.
	KindLargePage
	// KindPageTable is a leaf-level address translation table.
	KindPageTable
	// KindPageDirectory is a top-level address translation structure.
	KindPageDirectory
	// KindASIDPool is a pool of address-space identifiers.
	KindASIDPool
)

const (
	// MinUntypedBits is the smallest representable untyped size class.
	// Regions below this granularity cannot be addressed by retype and are
	// unrecoverable once stranded.
	MinUntypedBits = 4

	// MaxUntypedBits is the largest untyped size class the kernel will
	// describe in its boot enumeration.
	MaxUntypedBits = 32

	// SlotBits is the log2 size in bytes of a single capability slot, so a
	// capability node of radix R occupies 2^(SlotBits+R) bytes.
	SlotBits = 4

	// RetypeFanOutLimit is the maximum number of objects a single retype
	// call may produce. Mirrors the kernel build configuration and must be
	// kept in lockstep with it.
	RetypeFanOutLimit = 256

	// PageBits is the size class of a standard frame.
	PageBits = 12

	// LargePageBits is the size class of a large frame.
	LargePageBits = 16

	// PageTableBits is the size class of a leaf translation table.
	PageTableBits = 10

	// PageDirectoryBits is the size class of a top-level translation
	// structure.
	PageDirectoryBits = 14

	// PageTableSlots is the number of mapping slots a single leaf table
	// provides.
	PageTableSlots = 256

	// PageDirectorySlots is the number of table slots a directory provides.
	PageDirectorySlots = 4096
)

// String returns the short mnemonic for the kind.
func (k ObjectKind) String() string {
	switch k {
	case KindUntyped:
		return "untyped"
	case KindCapNode:
		return "capnode"
	case KindEndpoint:
		return "endpoint"
	case KindNotification:
		return "notification"
	case KindTCB:
		return "tcb"
	case KindPage:
		return "page"
	case KindLargePage:
		return "largepage"
	case KindPageTable:
		return "pagetable"
	case KindPageDirectory:
		return "pagedirectory"
	case KindASIDPool:
		return "asidpool"
	}
	return "unknown"
}
