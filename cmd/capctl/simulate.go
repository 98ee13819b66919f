package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/auxoncorp/ferros/caps"
	"github.com/auxoncorp/ferros/caps/bootstrap"
	"github.com/auxoncorp/ferros/caps/buddy"
	"github.com/auxoncorp/ferros/caps/plan"
	"github.com/auxoncorp/ferros/caps/verify"
	"github.com/auxoncorp/ferros/internal/kernel"
)

var (
	simBootPath  string
	simMemAlias  string
	simSlotAlias string
	simAddrAlias string
)

func init() {
	cmd := newSimulateCmd()
	cmd.Flags().StringVar(&simBootPath, "boot", "", "Boot descriptor to simulate against (required)")
	cmd.Flags().StringVar(&simMemAlias, "mem-alias", "ut", "Alias bound to general memory regions")
	cmd.Flags().StringVar(&simSlotAlias, "slot-alias", "cs", "Alias bound to root node slots")
	cmd.Flags().StringVar(&simAddrAlias, "addr-alias", "vs", "Alias bound to the address space")
	_ = cmd.MarkFlagRequired("boot")
	rootCmd.AddCommand(cmd)
}

func newSimulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate <plan>",
		Short: "Plan a block against a simulated kernel and report the cost",
		Long: `The simulate command discovers pools from a boot descriptor, plans
the block against a simulated kernel, and reports what the plan would cost:
kernel calls issued, memory carved, slots consumed, and bytes dead to
sub-granularity leftovers.

Example:
  capctl simulate plan.yaml --boot boot.yaml
  capctl simulate plan.yaml --boot boot.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(args)
		},
	}
}

func runSimulate(args []string) error {
	planPath := args[0]

	data, err := os.ReadFile(planPath)
	if err != nil {
		return err
	}
	block, err := verify.ParseBlock(data)
	if err != nil {
		return err
	}

	d, err := bootstrap.Load(simBootPath)
	if err != nil {
		return err
	}

	printVerbose("Discovering pools from %s\n", simBootPath)

	sim := kernel.NewSim()
	led := caps.New(sim)
	boot, err := bootstrap.Discover(d)
	if err != nil {
		return err
	}

	// Seed one buddy with every general region the platform handed over.
	bud, err := buddy.New(led)
	if err != nil {
		return err
	}
	for {
		p, err := boot.Alloc.GetUntyped(0)
		if err != nil {
			break
		}
		if err := bud.Add(p); err != nil {
			return err
		}
	}

	pools := &plan.Pools{
		Memory: map[string]*buddy.Buddy{simMemAlias: bud},
		Slots:  map[string]*caps.SlotPool{simSlotAlias: boot.RootSlots},
		Addr:   map[string]*caps.AddrSlotPool{simAddrAlias: boot.AddrSlots},
	}

	planned, err := plan.Plan(led, block, pools)
	if err != nil {
		return err
	}
	final, err := planned.Execute(func(*plan.Bindings) error { return nil })
	if err != nil {
		return err
	}

	stats := led.Stats()
	result := map[string]interface{}{
		"plan":            planPath,
		"id":              planned.ID().String(),
		"kernel_calls":    sim.Calls(),
		"splits":          stats.Splits,
		"slot_reserves":   stats.SlotReserves,
		"addr_reserves":   stats.AddrReserves,
		"dead_bytes":      stats.DeadBytes,
		"slots_remaining": final.Slots[simSlotAlias].Free(),
		"bytes_remaining": final.Memory[simMemAlias].TotalBytes(),
	}

	if jsonOut {
		return printJSON(result)
	}

	printInfo("Plan %s admitted and simulated\n\n", planPath)
	printInfo("  Kernel calls:    %d\n", sim.Calls())
	printInfo("  Memory splits:   %d\n", stats.Splits)
	printInfo("  Slot reserves:   %d\n", stats.SlotReserves)
	printInfo("  Addr reserves:   %d\n", stats.AddrReserves)
	printInfo("  Dead bytes:      %d\n", stats.DeadBytes)
	printInfo("\n  Slots remaining: %d\n", final.Slots[simSlotAlias].Free())
	printInfo("  Bytes remaining: %d\n", final.Memory[simMemAlias].TotalBytes())
	return nil
}
