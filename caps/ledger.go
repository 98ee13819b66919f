package caps

import (
	"math/bits"

	"go.uber.org/zap"

	"github.com/auxoncorp/ferros/internal/abi"
	"github.com/auxoncorp/ferros/internal/kernel"
)

// Ledger performs consuming operations over capacity pools. Every operation
// validates its preconditions before consuming anything, performs at most one
// kernel call, and on call failure rolls the input pool back so the caller
// still holds it unchanged.
//
// A Ledger is not safe for concurrent use. Callers introducing threads must
// partition the pool hierarchy first; the single-owner discipline makes a
// shared ledger pointless anyway, since a pool value can only live on one
// side of a partition.
type Ledger struct {
	k     kernel.Caller
	log   *zap.Logger
	next  kernel.CPtr
	stats Stats
}

// Stats counts ledger activity, including capacity stranded below retype
// granularity by the remainder policy.
type Stats struct {
	Splits       uint64
	Quarters     uint64
	Retypes      uint64
	SlotReserves uint64
	AddrReserves uint64
	Copies       uint64
	// DeadBytes is capacity lost to sub-granularity retype remainders. It
	// is unrecoverable: the kernel cannot re-address it.
	DeadBytes uint64
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger installs a trace logger. Operations log at debug level.
func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithCPtrBase sets the first capability pointer the ledger will assign to
// produced objects. Defaults to 1; pointer 0 is reserved for null.
func WithCPtrBase(c kernel.CPtr) Option {
	return func(l *Ledger) { l.next = c }
}

// New returns a Ledger driving the given kernel caller.
func New(k kernel.Caller, opts ...Option) *Ledger {
	l := &Ledger{k: k, log: zap.NewNop(), next: 1}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Stats returns a snapshot of the ledger's counters.
func (l *Ledger) Stats() Stats { return l.stats }

// nextCPtrs reserves a contiguous run of n capability pointers.
func (l *Ledger) nextCPtrs(n int) kernel.CPtr {
	c := l.next
	l.next += kernel.CPtr(n)
	return c
}

func requireLocal(op string, ctx Context) error {
	if !ctx.IsLocal() {
		return &ContextMismatchError{Op: op, Want: Local(), Got: ctx}
	}
	return nil
}

// Split divides a memory pool into two pools one size class down, covering
// the two halves of the original region. The input value is consumed; the
// returned pools are its sole successors.
func (l *Ledger) Split(p *MemoryPool) (*MemoryPool, *MemoryPool, error) {
	if err := requireLocal("split", p.ctx); err != nil {
		return nil, nil, err
	}
	// A spent (or zero-value) pool is dead regardless of its size class.
	if p.Spent() {
		return nil, nil, ErrPoolSpent
	}
	if p.sizeBits < abi.MinUntypedBits+1 {
		return nil, nil, ErrInsufficientSizeClass
	}
	if err := p.m.consume(); err != nil {
		return nil, nil, err
	}

	half := p.sizeBits - 1
	err := l.k.Retype(kernel.RetypeRequest{
		Region:     p.paddr,
		SizeBits:   p.sizeBits,
		Kind:       abi.KindUntyped,
		ObjectBits: half,
		Count:      2,
		Dest:       l.nextCPtrs(2),
	})
	if err != nil {
		p.m.rollback()
		return nil, nil, &UnderlyingCallError{Op: "split", Err: err}
	}

	l.stats.Splits++
	l.log.Debug("split pool",
		zap.Uint8("size_bits", p.sizeBits),
		zap.Uint64("paddr", p.paddr))
	return p.successor(half, p.paddr), p.successor(half, p.paddr+1<<half), nil
}

// Quarter divides a memory pool into four pools two size classes down. It is
// the two-level composition of Split performed as a single kernel call, with
// the same failure mode.
func (l *Ledger) Quarter(p *MemoryPool) ([4]*MemoryPool, error) {
	var out [4]*MemoryPool
	if err := requireLocal("quarter", p.ctx); err != nil {
		return out, err
	}
	if p.Spent() {
		return out, ErrPoolSpent
	}
	if p.sizeBits < abi.MinUntypedBits+2 {
		return out, ErrInsufficientSizeClass
	}
	if err := p.m.consume(); err != nil {
		return out, err
	}

	quarterBits := p.sizeBits - 2
	err := l.k.Retype(kernel.RetypeRequest{
		Region:     p.paddr,
		SizeBits:   p.sizeBits,
		Kind:       abi.KindUntyped,
		ObjectBits: quarterBits,
		Count:      4,
		Dest:       l.nextCPtrs(4),
	})
	if err != nil {
		p.m.rollback()
		return out, &UnderlyingCallError{Op: "quarter", Err: err}
	}

	l.stats.Quarters++
	for i := range out {
		out[i] = p.successor(quarterBits, p.paddr+uint64(i)<<quarterBits)
	}
	l.log.Debug("quartered pool",
		zap.Uint8("size_bits", p.sizeBits),
		zap.Uint64("paddr", p.paddr))
	return out, nil
}

// Retype converts raw capacity into count live kernel objects of the given
// kind. Leftover capacity comes back as a remainder pool only when it is an
// exact supported size class; anything below retype granularity, or not a
// whole class, is stranded and accounted as dead capacity.
func (l *Ledger) Retype(p *MemoryPool, kind abi.ObjectKind, count int) (HandleRange, *MemoryPool, error) {
	if err := requireLocal("retype", p.ctx); err != nil {
		return HandleRange{}, nil, err
	}
	if count <= 0 {
		return HandleRange{}, nil, ErrBadCount
	}
	if p.device && kind != abi.KindPage && kind != abi.KindLargePage {
		return HandleRange{}, nil, ErrDeviceRetype
	}
	fp, err := abi.FootprintBits(kind)
	if err != nil {
		return HandleRange{}, nil, err
	}

	need := uint64(count) << fp
	if need > p.Bytes() {
		return HandleRange{}, nil, &InsufficientCapacityError{
			Kind:          kind,
			Count:         count,
			FootprintBits: fp,
			PoolBits:      p.sizeBits,
		}
	}
	if err := p.m.consume(); err != nil {
		return HandleRange{}, nil, err
	}

	dest := l.nextCPtrs(count)
	err = l.k.Retype(kernel.RetypeRequest{
		Region:     p.paddr,
		SizeBits:   p.sizeBits,
		Kind:       kind,
		ObjectBits: fp,
		Count:      count,
		Dest:       dest,
	})
	if err != nil {
		p.m.rollback()
		return HandleRange{}, nil, &UnderlyingCallError{Op: "retype", Err: err}
	}

	l.stats.Retypes++
	hs := HandleRange{kind: kind, ctx: p.ctx, start: dest, count: count, gen: p.gen}
	rem := l.remainder(p, need)
	l.log.Debug("retyped pool",
		zap.Stringer("kind", kind),
		zap.Int("count", count),
		zap.Uint8("size_bits", p.sizeBits),
		zap.Bool("remainder", rem != nil))
	return hs, rem, nil
}

// remainder applies the retype granularity policy to the capacity left after
// consuming need bytes from the front of p.
func (l *Ledger) remainder(p *MemoryPool, need uint64) *MemoryPool {
	left := p.Bytes() - need
	if left == 0 {
		return nil
	}
	if left&(left-1) != 0 || left < 1<<abi.MinUntypedBits {
		l.stats.DeadBytes += left
		return nil
	}
	remBits := uint8(bits.Len64(left) - 1)
	remAddr := p.paddr + need
	if remAddr&(1<<remBits-1) != 0 {
		// A power-of-two leftover the kernel still cannot re-address.
		l.stats.DeadBytes += left
		return nil
	}
	return p.successor(remBits, remAddr)
}

// RetypeCapNode converts a memory pool into a capability storage node of the
// given radix, returning the node's handle and a slot pool over its free
// slots. Slot 0 is reserved for null, so a radix-R node yields 2^R - 1 free
// slots starting at 1.
func (l *Ledger) RetypeCapNode(p *MemoryPool, radix uint8) (Handle, *SlotPool, *MemoryPool, error) {
	return l.retypeCapNode(p, radix, Local())
}

// RetypeCapNodeForChild is RetypeCapNode with the produced slot block tagged
// for the given child context. The node handle itself remains locally held;
// the slots it provides are only usable for that child's capabilities.
func (l *Ledger) RetypeCapNodeForChild(p *MemoryPool, radix uint8, child uint32) (Handle, *SlotPool, *MemoryPool, error) {
	return l.retypeCapNode(p, radix, Child(child))
}

func (l *Ledger) retypeCapNode(p *MemoryPool, radix uint8, slotCtx Context) (Handle, *SlotPool, *MemoryPool, error) {
	if err := requireLocal("retype capnode", p.ctx); err != nil {
		return Handle{}, nil, nil, err
	}
	if p.device {
		return Handle{}, nil, nil, ErrDeviceRetype
	}
	fp, err := abi.CapNodeFootprintBits(radix)
	if err != nil {
		return Handle{}, nil, nil, err
	}
	if uint64(1)<<fp > p.Bytes() {
		return Handle{}, nil, nil, &InsufficientCapacityError{
			Kind:          abi.KindCapNode,
			Count:         1,
			FootprintBits: fp,
			PoolBits:      p.sizeBits,
		}
	}
	if err := p.m.consume(); err != nil {
		return Handle{}, nil, nil, err
	}

	dest := l.nextCPtrs(1)
	err = l.k.Retype(kernel.RetypeRequest{
		Region:     p.paddr,
		SizeBits:   p.sizeBits,
		Kind:       abi.KindCapNode,
		ObjectBits: fp,
		Count:      1,
		Dest:       dest,
	})
	if err != nil {
		p.m.rollback()
		return Handle{}, nil, nil, &UnderlyingCallError{Op: "retype capnode", Err: err}
	}

	l.stats.Retypes++
	h := Handle{kind: abi.KindCapNode, ctx: p.ctx, cptr: dest, gen: p.gen}
	slots := NewSlotPoolFor(slotCtx, uint64(dest), 1, 1<<radix-1)
	rem := l.remainder(p, 1<<fp)
	l.log.Debug("retyped capnode",
		zap.Uint8("radix", radix),
		zap.Stringer("slot_ctx", slotCtx))
	return h, slots, rem, nil
}

// ReserveSlots takes k slots from the front of a slot pool, returning their
// concrete addresses and the successor pool. Pure bookkeeping: slot carving
// requires no kernel call.
func (l *Ledger) ReserveSlots(p *SlotPool, k int) ([]SlotAddr, *SlotPool, error) {
	if k <= 0 {
		return nil, nil, ErrBadCount
	}
	if uint64(k) > p.free {
		return nil, nil, &SlotExhaustionError{
			Node:      p.id,
			Requested: uint64(k),
			Available: p.free,
		}
	}
	if err := p.m.consume(); err != nil {
		return nil, nil, err
	}

	addrs := make([]SlotAddr, k)
	for i := range addrs {
		addrs[i] = SlotAddr{Node: p.id, Index: p.base + uint64(i)}
	}
	l.stats.SlotReserves++
	return addrs, p.successor(p.base+uint64(k), p.free-uint64(k)), nil
}

// ReserveAddrSlots takes kDir directory slots and kTable table slots from an
// address-slot pool. The two magnitudes are deducted independently; if either
// is short, nothing is deducted and the error names the exhausted level.
func (l *Ledger) ReserveAddrSlots(p *AddrSlotPool, kDir, kTable int) ([]AddrSlot, []AddrSlot, *AddrSlotPool, error) {
	if kDir < 0 || kTable < 0 || kDir+kTable == 0 {
		return nil, nil, nil, ErrBadCount
	}
	if uint64(kDir) > p.dirFree {
		return nil, nil, nil, &AddrSpaceExhaustionError{
			VSpace:    p.vspace,
			Level:     LevelDirectory,
			Requested: uint64(kDir),
			Available: p.dirFree,
		}
	}
	if uint64(kTable) > p.tableFree {
		return nil, nil, nil, &AddrSpaceExhaustionError{
			VSpace:    p.vspace,
			Level:     LevelTable,
			Requested: uint64(kTable),
			Available: p.tableFree,
		}
	}
	if err := p.m.consume(); err != nil {
		return nil, nil, nil, err
	}

	dirs := make([]AddrSlot, kDir)
	for i := range dirs {
		dirs[i] = AddrSlot{VSpace: p.vspace, Level: LevelDirectory, Index: p.dirBase + uint64(i)}
	}
	tables := make([]AddrSlot, kTable)
	for i := range tables {
		tables[i] = AddrSlot{VSpace: p.vspace, Level: LevelTable, Index: p.tableBase + uint64(i)}
	}

	l.stats.AddrReserves++
	succ := p.successor(
		p.dirBase+uint64(kDir), p.dirFree-uint64(kDir),
		p.tableBase+uint64(kTable), p.tableFree-uint64(kTable),
	)
	return dirs, tables, succ, nil
}

// CopyToChild copies a locally held handle into a child's slot pool,
// producing a handle valid in that child's context. One slot is consumed
// from the pool.
func (l *Ledger) CopyToChild(h Handle, slots *SlotPool) (Handle, *SlotPool, error) {
	if !h.ctx.IsLocal() {
		return Handle{}, nil, &ContextMismatchError{Op: "copy to child", Want: Local(), Got: h.ctx}
	}
	childID, ok := slots.node.ChildID()
	if !ok {
		return Handle{}, nil, &ContextMismatchError{Op: "copy to child", Want: Child(0), Got: slots.node}
	}
	if slots.free < 1 {
		return Handle{}, nil, &SlotExhaustionError{Node: slots.id, Requested: 1, Available: 0}
	}
	if err := slots.m.consume(); err != nil {
		return Handle{}, nil, err
	}

	dest := kernel.CPtr(slots.base)
	if err := l.k.Copy(h.cptr, dest); err != nil {
		slots.m.rollback()
		return Handle{}, nil, &UnderlyingCallError{Op: "copy to child", Err: err}
	}

	l.stats.Copies++
	child := Handle{kind: h.kind, ctx: Child(childID), cptr: dest, gen: h.gen}
	l.log.Debug("copied handle to child",
		zap.Stringer("kind", h.kind),
		zap.Uint32("child", childID))
	return child, slots.successor(slots.base+1, slots.free-1), nil
}
