// Package caps provides capability handles and capacity-pool accounting for
// kernel-object resources.
//
// # Overview
//
// Three pool variants share one contract: a pool value represents the
// remaining allocatable quantity of a single resource, and every consuming
// operation takes the pool value, deducts from it, and returns a successor
// value carrying the reduced capacity. The input value is dead the moment
// the operation succeeds.
//
//   - MemoryPool: an untyped memory region of a power-of-two size class.
//     Split in half, quartered, or retyped into live kernel objects.
//   - SlotPool: a block of free capability-storage slots. Reserved in runs.
//   - AddrSlotPool: free mapping slots in an address space, with directory
//     and table slots tracked independently.
//
// # Single-owner discipline
//
// Capacity bookkeeping is correct if and only if every pool value is the
// input of at most one consuming operation. Go cannot enforce a move at the
// type level, so each pool value carries a private consumption marker: using
// a value that has already been consumed fails immediately with ErrPoolSpent,
// before any kernel call is made. The caps/verify package closes the
// remaining gap at build time by symbolically re-running planned allocations
// against declared pool sizes.
//
// # Ledger operations
//
//	led := caps.New(kernel.NewSim())
//
//	a, b, err := led.Split(pool)          // two pools one class down
//	q, err := led.Quarter(pool)           // four pools two classes down
//	hs, rem, err := led.Retype(pool, abi.KindPage, 4)
//	addrs, rest, err := led.ReserveSlots(slots, 3)
//
// Each consuming operation performs at most one kernel call. If that call
// fails, the input pool is rolled back and returned to the caller unchanged;
// nothing is ever partially deducted.
//
// # Contexts
//
// Handles and pools are tagged with the execution context they are valid in:
// the local context, or a specific child context. Ledger operations scoped
// to the local context reject child-context values with a
// ContextMismatchError rather than producing a handle that cannot work.
//
// # Related packages
//
//   - github.com/auxoncorp/ferros/caps/plan: pre-scans a block of operations
//     and performs its allocations up front
//   - github.com/auxoncorp/ferros/caps/buddy: buddy allocation over memory
//     pools
//   - github.com/auxoncorp/ferros/caps/bootstrap: first-generation pools
//     from a platform boot descriptor
//   - github.com/auxoncorp/ferros/caps/verify: offline exhaustion checking
package caps
