package plan

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auxoncorp/ferros/caps"
)

// Bindings holds the concrete values bound to one scope's placeholders.
// Nested scopes get their own Bindings, reachable through Child; outer
// placeholders are not visible inside them.
type Bindings struct {
	memory   map[string]*caps.MemoryPool
	slots    map[string][]caps.SlotAddr
	dirs     map[string][]caps.AddrSlot
	tables   map[string][]caps.AddrSlot
	children []*Bindings
}

// Memory returns the pool bound to a memory placeholder, or nil if the name
// is not bound in this scope.
func (b *Bindings) Memory(name string) *caps.MemoryPool { return b.memory[name] }

// Slots returns the slot addresses bound to a slot placeholder.
func (b *Bindings) Slots(name string) []caps.SlotAddr { return b.slots[name] }

// AddrSlots returns the directory and table slots bound to an address-slot
// placeholder.
func (b *Bindings) AddrSlots(name string) (dirs, tables []caps.AddrSlot) {
	return b.dirs[name], b.tables[name]
}

// Child returns the bindings of the i-th nested scope.
func (b *Bindings) Child(i int) *Bindings { return b.children[i] }

// Planned is an admitted block with every placeholder bound and every
// up-front allocation performed.
type Planned struct {
	id       uuid.UUID
	log      *zap.Logger
	bindings *Bindings
	final    *Pools
}

// Option configures planning.
type Option func(*config)

type config struct {
	log *zap.Logger
}

// WithLogger installs a trace logger for planning decisions.
func WithLogger(log *zap.Logger) Option {
	return func(c *config) { c.log = log }
}

// Plan scans the block, admits it against the supplied pools, performs the
// up-front allocations through the ledger, and binds the results.
//
// On an admission failure nothing is consumed: the supplied pools remain
// exactly as passed. After successful admission the only remaining failure
// mode is a kernel call failing during memory carving; in that case slot and
// address pools are untouched and the memory buddies keep all their
// capacity, but the error aborts planning and no operation runs.
func Plan(led *caps.Ledger, block *Block, pools *Pools, opts ...Option) (*Planned, error) {
	cfg := config{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	demands, err := Scan(block)
	if err != nil {
		return nil, err
	}
	if err := demands.Admit(availabilityOf(pools)); err != nil {
		return nil, err
	}

	p := &Planned{
		id:  uuid.New(),
		log: cfg.log,
		final: &Pools{
			Memory: pools.Memory,
			Slots:  make(map[string]*caps.SlotPool, len(pools.Slots)),
			Addr:   make(map[string]*caps.AddrSlotPool, len(pools.Addr)),
		},
	}
	for alias, sp := range pools.Slots {
		p.final.Slots[alias] = sp
	}
	for alias, ap := range pools.Addr {
		p.final.Addr[alias] = ap
	}

	cur := make(map[demandKey]*cursor, len(demands.order))

	// Memory first: buddy carving is the only step that can still fail
	// (on a kernel fault), and failing here leaves every slot and
	// address pool untouched.
	for _, key := range demands.order {
		if key.cat != CategoryMemory {
			continue
		}
		t := demands.totals[key]
		c := &cursor{}
		cur[key] = c
		for _, class := range t.classes {
			mp, err := pools.Memory[key.alias].Alloc(class)
			if err != nil {
				restoreMemory(pools, cur)
				return nil, err
			}
			c.mem = append(c.mem, mp)
		}
		cfg.log.Debug("planned memory demand",
			zap.String("plan", p.id.String()),
			zap.String("alias", key.alias),
			zap.Int("pools", len(c.mem)))
	}

	// Slot and address demands are satisfied with one reservation each;
	// admission already proved they fit.
	for _, key := range demands.order {
		t := demands.totals[key]
		switch key.cat {
		case CategorySlots:
			addrs, rest, err := led.ReserveSlots(pools.Slots[key.alias], int(t.slots))
			if err != nil {
				return nil, err
			}
			p.final.Slots[key.alias] = rest
			cur[key] = &cursor{slots: addrs}
			cfg.log.Debug("planned slot demand",
				zap.String("plan", p.id.String()),
				zap.String("alias", key.alias),
				zap.Uint64("slots", t.slots))
		case CategoryAddrSlots:
			dirs, tables, rest, err := led.ReserveAddrSlots(
				pools.Addr[key.alias], int(t.dir), int(t.table))
			if err != nil {
				return nil, err
			}
			p.final.Addr[key.alias] = rest
			cur[key] = &cursor{dirs: dirs, tables: tables}
			cfg.log.Debug("planned address-slot demand",
				zap.String("plan", p.id.String()),
				zap.String("alias", key.alias),
				zap.Uint64("dir", t.dir),
				zap.Uint64("table", t.table))
		}
	}

	p.bindings = bindScope(block, cur)
	return p, nil
}

// restoreMemory returns every pool already carved out of a buddy to that
// buddy, so an aborted plan conserves the caller's capacity. The pools are
// live unspent values; Add cannot refuse them.
func restoreMemory(pools *Pools, cur map[demandKey]*cursor) {
	for key, c := range cur {
		if key.cat != CategoryMemory {
			continue
		}
		for _, mp := range c.mem {
			_ = pools.Memory[key.alias].Add(mp)
		}
		c.mem = nil
	}
}

// cursor walks one demand's allocation results while binding placeholders
// in first-occurrence order.
type cursor struct {
	mem    []*caps.MemoryPool
	slots  []caps.SlotAddr
	dirs   []caps.AddrSlot
	tables []caps.AddrSlot
}

func bindScope(b *Block, cur map[demandKey]*cursor) *Bindings {
	out := &Bindings{
		memory: make(map[string]*caps.MemoryPool),
		slots:  make(map[string][]caps.SlotAddr),
		dirs:   make(map[string][]caps.AddrSlot),
		tables: make(map[string][]caps.AddrSlot),
	}
	for _, r := range b.Requests {
		c := cur[demandKey{alias: r.Alias, cat: r.Category}]
		switch r.Category {
		case CategoryMemory:
			out.memory[r.Name] = c.mem[0]
			c.mem = c.mem[1:]
		case CategorySlots:
			out.slots[r.Name] = c.slots[:r.Count]
			c.slots = c.slots[r.Count:]
		case CategoryAddrSlots:
			out.dirs[r.Name] = c.dirs[:r.Dir]
			c.dirs = c.dirs[r.Dir:]
			out.tables[r.Name] = c.tables[:r.Table]
			c.tables = c.tables[r.Table:]
		}
	}
	for _, child := range b.Children {
		out.children = append(out.children, bindScope(child, cur))
	}
	return out
}

// availabilityOf snapshots the supplied pools' capacities for admission.
func availabilityOf(pools *Pools) *Availability {
	a := &Availability{
		MemoryCounts: make(map[string][]int, len(pools.Memory)),
		SlotCounts:   make(map[string]uint64, len(pools.Slots)),
		DirCounts:    make(map[string]uint64, len(pools.Addr)),
		TableCounts:  make(map[string]uint64, len(pools.Addr)),
	}
	for alias, b := range pools.Memory {
		a.MemoryCounts[alias] = b.Snapshot()
	}
	for alias, sp := range pools.Slots {
		a.SlotCounts[alias] = sp.Free()
	}
	for alias, ap := range pools.Addr {
		a.DirCounts[alias] = ap.DirFree()
		a.TableCounts[alias] = ap.TableFree()
	}
	return a
}

// ID returns the plan's diagnostic identifier.
func (p *Planned) ID() uuid.UUID { return p.id }

// Bindings returns the bound placeholder table.
func (p *Planned) Bindings() *Bindings { return p.bindings }

// Execute runs the block's operations against the bound placeholders and
// returns the final pool value for each alias alongside fn's error. The
// final pools are valid even when fn fails: the planner's allocations have
// already happened, and fn's operations consume only bound values.
func (p *Planned) Execute(fn func(*Bindings) error) (*Pools, error) {
	p.log.Debug("executing planned block", zap.String("plan", p.id.String()))
	err := fn(p.bindings)
	return p.final, err
}
