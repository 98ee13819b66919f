// Package kernel models the system-call boundary the capability ledger sits
// on. Every consuming ledger operation performs at most one call through the
// Caller interface, and that call either fully succeeds or fully fails; the
// ledger relies on this to roll back its bookkeeping without partial state.
//
// The in-memory Sim implementation stands in for a real kernel. It
// independently tracks which byte ranges have been turned into live objects,
// so a ledger bug that double-spends capacity surfaces here as an
// overlapping-claim failure rather than silent corruption.
package kernel

import (
	"errors"

	"github.com/auxoncorp/ferros/internal/abi"
)

// CPtr is a capability pointer: an offset into the calling context's root
// capability node.
type CPtr uint64

// Error codes mirroring the kernel ABI's system-call failure enumeration.
var (
	ErrInvalidArgument   = errors.New("kernel: invalid argument")
	ErrInvalidCapability = errors.New("kernel: invalid capability")
	ErrIllegalOperation  = errors.New("kernel: illegal operation")
	ErrRangeError        = errors.New("kernel: range error")
	ErrAlignmentError    = errors.New("kernel: alignment error")
	ErrFailedLookup      = errors.New("kernel: failed lookup")
	ErrDeleteFirst       = errors.New("kernel: delete first")
	ErrRevokeFirst       = errors.New("kernel: revoke first")
	ErrNotEnoughMemory   = errors.New("kernel: not enough memory")
)

// RetypeRequest describes a single retype invocation: carve Count objects of
// the given kind out of the untyped region rooted at Region.
type RetypeRequest struct {
	// Region is the physical address of the source untyped region.
	Region uint64
	// SizeBits is the size class of the source region.
	SizeBits uint8
	// Kind of object to produce. KindUntyped subdivides capacity without
	// creating live objects (the split primitive).
	Kind abi.ObjectKind
	// ObjectBits is the per-object size class of the produced objects.
	ObjectBits uint8
	// Count of objects to produce.
	Count int
	// Dest is the capability pointer the first produced object will be
	// addressable at; subsequent objects follow contiguously.
	Dest CPtr
}

// Caller is the system-call surface the ledger drives. Implementations must
// make each call atomic: on error, no object may have been created.
type Caller interface {
	// Retype instantiates req.Count kernel objects from raw capacity.
	Retype(req RetypeRequest) error

	// Copy duplicates the capability at src into dest.
	Copy(src, dest CPtr) error

	// Revoke destroys every object previously produced by the retype call
	// whose first destination was c, releasing its claim on the source
	// region's capacity.
	Revoke(c CPtr) error
}
