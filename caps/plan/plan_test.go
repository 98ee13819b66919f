package plan

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/auxoncorp/ferros/caps"
	"github.com/auxoncorp/ferros/caps/buddy"
	"github.com/auxoncorp/ferros/internal/kernel"
)

func testPools(t *testing.T, slotFree uint64, memBits uint8) (*caps.Ledger, *Pools, *kernel.Sim) {
	t.Helper()
	sim := kernel.NewSim()
	led := caps.New(sim)

	pools := &Pools{
		Slots: map[string]*caps.SlotPool{"cs": caps.NewSlotPool(0, 0, slotFree)},
		Addr:  map[string]*caps.AddrSlotPool{"vs": caps.NewAddrSlotPool(0, 2, 10)},
	}
	if memBits > 0 {
		mp, err := caps.NewMemoryPool(memBits, 0, false)
		require.NoError(t, err)
		b, err := buddy.New(led, mp)
		require.NoError(t, err)
		pools.Memory = map[string]*buddy.Buddy{"ut": b}
	}
	return led, pools, sim
}

// A 4-slot pool cannot admit a block demanding 2 + 3 slots, and nothing
// happens.
func Test_Plan_SlotDemandExceedsAvailability(t *testing.T) {
	led, pools, sim := testPools(t, 4, 0)

	block := &Block{Requests: []Request{
		Slots("cs", "first", 2),
		Slots("cs", "second", 3),
	}}

	_, err := Plan(led, block, pools)
	var ex *ExhaustionError
	require.ErrorAs(t, err, &ex)
	require.Equal(t, "cs", ex.Alias)
	require.Equal(t, CategorySlots, ex.Category)
	require.Equal(t, uint64(5), ex.Demanded)
	require.Equal(t, uint64(4), ex.Available)

	// All-or-nothing: the pool is exactly as it was.
	require.False(t, pools.Slots["cs"].Spent())
	require.Equal(t, uint64(4), pools.Slots["cs"].Free())
	require.Equal(t, 0, sim.Calls())
}

func Test_Plan_BindsInFirstOccurrenceOrder(t *testing.T) {
	led, pools, _ := testPools(t, 16, 0)

	block := &Block{Requests: []Request{
		Slots("cs", "a", 2),
		Slots("cs", "b", 3),
	}}

	planned, err := Plan(led, block, pools)
	require.NoError(t, err)

	b := planned.Bindings()
	require.Equal(t, uint64(0), b.Slots("a")[0].Index)
	require.Equal(t, uint64(1), b.Slots("a")[1].Index)
	require.Equal(t, uint64(2), b.Slots("b")[0].Index)
	require.Equal(t, uint64(4), b.Slots("b")[2].Index)

	final, err := planned.Execute(func(*Bindings) error { return nil })
	require.NoError(t, err)
	require.Equal(t, uint64(11), final.Slots["cs"].Free())
	// One reservation call served the whole alias demand.
	require.Equal(t, uint64(1), led.Stats().SlotReserves)
}

func Test_Plan_MemoryDemandThroughBuddy(t *testing.T) {
	led, pools, _ := testPools(t, 4, 18)

	block := &Block{Requests: []Request{
		Memory("ut", "tcb_mem", 16),
		Memory("ut", "ep_mem", 16),
		Slots("cs", "s", 1),
	}}

	planned, err := Plan(led, block, pools)
	require.NoError(t, err)

	b := planned.Bindings()
	require.Equal(t, uint8(16), b.Memory("tcb_mem").SizeBits())
	require.Equal(t, uint8(16), b.Memory("ep_mem").SizeBits())
	require.Nil(t, b.Memory("missing"))
}

func Test_Plan_MemoryExhaustion(t *testing.T) {
	led, pools, _ := testPools(t, 4, 18)

	// An 18-bit region holds four class-16 pools; five cannot be admitted.
	reqs := []Request{
		Memory("ut", "m0", 16),
		Memory("ut", "m1", 16),
		Memory("ut", "m2", 16),
		Memory("ut", "m3", 16),
		Memory("ut", "m4", 16),
	}
	_, err := Plan(led, &Block{Requests: reqs}, pools)
	var ex *ExhaustionError
	require.ErrorAs(t, err, &ex)
	require.Equal(t, CategoryMemory, ex.Category)
	require.Equal(t, uint64(5), ex.Demanded)
	require.Equal(t, uint64(4), ex.Available)

	// Admission is symbolic: the buddy still holds its whole region.
	require.Equal(t, uint64(1)<<18, pools.Memory["ut"].TotalBytes())
}

func Test_Plan_AddrSlotsSingleReservation(t *testing.T) {
	led, pools, _ := testPools(t, 4, 0)

	block := &Block{Requests: []Request{
		AddrSlots("vs", "stack_map", 1, 4),
		AddrSlots("vs", "heap_map", 1, 4),
	}}

	planned, err := Plan(led, block, pools)
	require.NoError(t, err)

	dirs, tables := planned.Bindings().AddrSlots("heap_map")
	require.Len(t, dirs, 1)
	require.Len(t, tables, 4)

	final, err := planned.Execute(func(*Bindings) error { return nil })
	require.NoError(t, err)
	require.Equal(t, uint64(0), final.Addr["vs"].DirFree())
	require.Equal(t, uint64(2), final.Addr["vs"].TableFree())
	require.Equal(t, uint64(1), led.Stats().AddrReserves)
}

func Test_Plan_NestedScopesCountIndependently(t *testing.T) {
	led, pools, _ := testPools(t, 16, 0)

	block := &Block{
		Requests: []Request{Slots("cs", "outer", 2)},
		Children: []*Block{
			{Requests: []Request{AddrSlots("vs", "inner_map", 1, 1)}},
		},
	}

	planned, err := Plan(led, block, pools)
	require.NoError(t, err)

	b := planned.Bindings()
	require.Len(t, b.Slots("outer"), 2)
	// Outer placeholders are invisible in the nested scope and vice versa.
	require.Nil(t, b.Slots("inner_map"))
	dirs, _ := b.Child(0).AddrSlots("inner_map")
	require.Len(t, dirs, 1)
	require.Nil(t, b.Child(0).Slots("outer"))
}

func Test_Plan_SiblingScopesAggregate(t *testing.T) {
	led, pools, _ := testPools(t, 5, 0)

	block := &Block{Children: []*Block{
		{Requests: []Request{Slots("cs", "a", 2)}},
		{Requests: []Request{Slots("cs", "b", 3)}},
	}}

	planned, err := Plan(led, block, pools)
	require.NoError(t, err)
	final, err := planned.Execute(func(*Bindings) error { return nil })
	require.NoError(t, err)
	require.Equal(t, uint64(0), final.Slots["cs"].Free())
}

func Test_Scan_AmbiguousAliasAcrossNesting(t *testing.T) {
	block := &Block{
		Requests: []Request{Slots("cs", "outer", 1)},
		Children: []*Block{
			{Requests: []Request{Slots("cs", "inner", 1)}},
		},
	}

	_, err := Scan(block)
	var amb *AmbiguousAliasError
	require.ErrorAs(t, err, &amb)
	require.Equal(t, "cs", amb.Alias)
	require.Equal(t, CategorySlots, amb.Category)
}

func Test_Scan_SameAliasDifferentCategoryIsFine(t *testing.T) {
	block := &Block{
		Requests: []Request{Slots("r", "outer", 1)},
		Children: []*Block{
			{Requests: []Request{AddrSlots("r", "inner", 1, 0)}},
		},
	}

	_, err := Scan(block)
	require.NoError(t, err)
}

func Test_Scan_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		block *Block
		want  error
	}{
		{
			name:  "duplicate placeholder",
			block: &Block{Requests: []Request{Slots("cs", "x", 1), Slots("cs", "x", 2)}},
			want:  ErrDuplicateName,
		},
		{
			name:  "zero slot count",
			block: &Block{Requests: []Request{Slots("cs", "x", 0)}},
			want:  ErrBadRequest,
		},
		{
			name:  "empty alias",
			block: &Block{Requests: []Request{Slots("", "x", 1)}},
			want:  ErrBadRequest,
		},
		{
			name:  "memory class out of range",
			block: &Block{Requests: []Request{Memory("ut", "x", 2)}},
			want:  ErrBadRequest,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Scan(c.block)
			require.True(t, errors.Is(err, c.want), "got %v", err)
		})
	}
}

func Test_Plan_UnknownAlias(t *testing.T) {
	led, pools, _ := testPools(t, 4, 0)

	_, err := Plan(led, &Block{Requests: []Request{Slots("nope", "x", 1)}}, pools)
	require.True(t, errors.Is(err, ErrUnknownAlias))
}

// Planning two structurally identical blocks against identical pools must
// bind the same counts and leave the same capacities.
func Test_Plan_IdempotentReplanning(t *testing.T) {
	run := func() (finalFree uint64, snapshot []int, bound int) {
		led, pools, _ := testPools(t, 8, 18)
		block := &Block{Requests: []Request{
			Slots("cs", "a", 3),
			Memory("ut", "m", 16),
			Memory("ut", "n", 17),
		}}
		planned, err := Plan(led, block, pools)
		require.NoError(t, err)
		final, err := planned.Execute(func(b *Bindings) error {
			bound = len(b.Slots("a"))
			return nil
		})
		require.NoError(t, err)
		return final.Slots["cs"].Free(), final.Memory["ut"].Snapshot(), bound
	}

	free1, snap1, bound1 := run()
	free2, snap2, bound2 := run()

	require.Equal(t, free1, free2)
	require.Equal(t, bound1, bound2)
	if diff := cmp.Diff(snap1, snap2); diff != "" {
		t.Fatalf("buddy snapshots diverge (-first +second):\n%s", diff)
	}
}

// A kernel fault while carving memory must not strand pools the planner
// already took from a buddy: the aborted plan hands everything back, and a
// retry can use it.
func Test_Plan_KernelFaultConservesBuddyCapacity(t *testing.T) {
	sim := kernel.NewSim()
	led := caps.New(&kernel.FaultInjector{Inner: sim, FailAt: 1})

	p16, err := caps.NewMemoryPool(16, 0, false)
	require.NoError(t, err)
	p20, err := caps.NewMemoryPool(20, 0x100000, false)
	require.NoError(t, err)
	bud, err := buddy.New(led, p16, p20)
	require.NoError(t, err)

	pools := &Pools{Memory: map[string]*buddy.Buddy{"ut": bud}}
	total := bud.TotalBytes()

	// The first class-16 pool is parked and costs no kernel call; the
	// second forces a split of the class-20 region, which faults.
	block := &Block{Requests: []Request{
		Memory("ut", "a", 16),
		Memory("ut", "b", 16),
	}}
	_, err = Plan(led, block, pools)
	require.Error(t, err)
	require.Equal(t, total, bud.TotalBytes())

	planned, err := Plan(led, block, pools)
	require.NoError(t, err)
	require.Equal(t, uint8(16), planned.Bindings().Memory("a").SizeBits())
	require.Equal(t, uint8(16), planned.Bindings().Memory("b").SizeBits())
}

func Test_Execute_PropagatesBlockError(t *testing.T) {
	led, pools, _ := testPools(t, 4, 0)

	planned, err := Plan(led, &Block{Requests: []Request{Slots("cs", "a", 1)}}, pools)
	require.NoError(t, err)

	sentinel := errors.New("block failed")
	final, err := planned.Execute(func(*Bindings) error { return sentinel })
	require.True(t, errors.Is(err, sentinel))
	// Allocations already happened; the final pools are still handed back.
	require.Equal(t, uint64(3), final.Slots["cs"].Free())
}
