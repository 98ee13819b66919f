package caps

import (
	"errors"
	"fmt"

	"github.com/auxoncorp/ferros/internal/abi"
)

var (
	// ErrInsufficientSizeClass indicates a split or quarter of a pool too
	// small to subdivide at the retype granularity.
	ErrInsufficientSizeClass = errors.New("caps: size class too small to subdivide")

	// ErrPoolSpent indicates a pool value was used after a consuming
	// operation already took ownership of it. This is always a caller bug:
	// the successor returned by that operation is the only live value.
	ErrPoolSpent = errors.New("caps: pool value already consumed")

	// ErrBadCount indicates a non-positive object or slot count.
	ErrBadCount = errors.New("caps: requested count must be positive")

	// ErrDeviceRetype indicates an attempt to retype device memory into
	// anything other than a frame.
	ErrDeviceRetype = errors.New("caps: device memory can only become pages")
)

// InsufficientCapacityError indicates a retype whose total footprint exceeds
// the pool's size class.
type InsufficientCapacityError struct {
	Kind          abi.ObjectKind
	Count         int
	FootprintBits uint8
	PoolBits      uint8
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("caps: %d %s objects (%d bits each) do not fit a %d-bit pool",
		e.Count, e.Kind, e.FootprintBits, e.PoolBits)
}

// SlotExhaustionError indicates a slot reservation exceeding the pool's free
// count.
type SlotExhaustionError struct {
	Node      uint64
	Requested uint64
	Available uint64
}

func (e *SlotExhaustionError) Error() string {
	return fmt.Sprintf("caps: node %d has %d free slots, %d requested",
		e.Node, e.Available, e.Requested)
}

// AddrSpaceExhaustionError indicates an address-slot reservation exceeding
// one of the pool's sub-counts. Level names which sub-count ran out.
type AddrSpaceExhaustionError struct {
	VSpace    uint64
	Level     AddrSlotLevel
	Requested uint64
	Available uint64
}

func (e *AddrSpaceExhaustionError) Error() string {
	return fmt.Sprintf("caps: vspace %d has %d free %s slots, %d requested",
		e.VSpace, e.Available, e.Level, e.Requested)
}

// ContextMismatchError indicates a handle or pool used outside the execution
// context it is valid in.
type ContextMismatchError struct {
	Op   string
	Want Context
	Got  Context
}

func (e *ContextMismatchError) Error() string {
	return fmt.Sprintf("caps: %s requires %s context, value is tagged %s",
		e.Op, e.Want, e.Got)
}

// UnderlyingCallError wraps a kernel-call failure. The operation that
// produced it consumed nothing: the input pool value remains valid.
type UnderlyingCallError struct {
	Op  string
	Err error
}

func (e *UnderlyingCallError) Error() string {
	return fmt.Sprintf("caps: %s: underlying call failed: %v", e.Op, e.Err)
}

func (e *UnderlyingCallError) Unwrap() error { return e.Err }
