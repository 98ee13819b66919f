package main

import (
	"github.com/spf13/cobra"

	"github.com/auxoncorp/ferros/internal/abi"
)

func init() {
	rootCmd.AddCommand(newFootprintsCmd())
}

func newFootprintsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "footprints",
		Short: "Print the kernel object footprint table",
		Long: `The footprints command prints the memory footprint, in size-class
bits and bytes, of every retypable kernel object kind. These are the
figures capacity checks and retype accounting are based on.

Example:
  capctl footprints
  capctl footprints --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFootprints()
		},
	}
}

var footprintKinds = []abi.ObjectKind{
	abi.KindEndpoint,
	abi.KindNotification,
	abi.KindTCB,
	abi.KindPage,
	abi.KindLargePage,
	abi.KindPageTable,
	abi.KindPageDirectory,
	abi.KindASIDPool,
}

func runFootprints() error {
	if err := abi.SelfCheck(); err != nil {
		return err
	}

	if jsonOut {
		table := make(map[string]interface{}, len(footprintKinds))
		for _, k := range footprintKinds {
			bits, err := abi.FootprintBits(k)
			if err != nil {
				return err
			}
			table[k.String()] = map[string]interface{}{
				"size_bits": bits,
				"bytes":     uint64(1) << bits,
			}
		}
		return printJSON(table)
	}

	printInfo("%-16s %-10s %s\n", "KIND", "SIZE BITS", "BYTES")
	for _, k := range footprintKinds {
		bits, err := abi.FootprintBits(k)
		if err != nil {
			return err
		}
		printInfo("%-16s %-10d %d\n", k, bits, uint64(1)<<bits)
	}
	printInfo("\nStorage nodes: %d + radix bits\n", abi.SlotBits)
	return nil
}
