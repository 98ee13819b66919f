package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/auxoncorp/ferros/caps/bootstrap"
	"github.com/auxoncorp/ferros/caps/verify"
)

var (
	verifyBootPath     string
	verifyCapacityPath string
	verifyMemAlias     string
	verifySlotAlias    string
	verifyAddrAlias    string
)

func init() {
	cmd := newVerifyCmd()
	cmd.Flags().StringVar(&verifyBootPath, "boot", "", "Boot descriptor to derive capacities from")
	cmd.Flags().StringVar(&verifyCapacityPath, "capacity", "", "Explicit capacity declaration")
	cmd.Flags().StringVar(&verifyMemAlias, "mem-alias", "ut", "Alias bound to general memory regions")
	cmd.Flags().StringVar(&verifySlotAlias, "slot-alias", "cs", "Alias bound to root node slots")
	cmd.Flags().StringVar(&verifyAddrAlias, "addr-alias", "vs", "Alias bound to the address space")
	rootCmd.AddCommand(cmd)
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <plan>",
		Short: "Verify a plan's demand against declared capacities",
		Long: `The verify command scans a plan declaration, totals its demand per
alias, and checks that every total fits the declared capacities. Nothing
is allocated; the result says whether planning the block at runtime would
be admitted.

Capacities come from exactly one of:
  --boot      derive them from a boot descriptor
  --capacity  read an explicit capacity declaration

Example:
  capctl verify plan.yaml --boot boot.yaml
  capctl verify plan.yaml --capacity capacity.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(args)
		},
	}
}

func runVerify(args []string) error {
	planPath := args[0]

	capacity, err := loadCapacity()
	if err != nil {
		return err
	}

	printVerbose("Verifying plan: %s\n", planPath)

	data, err := os.ReadFile(planPath)
	if err != nil {
		return err
	}
	block, err := verify.ParseBlock(data)
	if err != nil {
		return err
	}

	checkErr := verify.Check(block, capacity)

	result := map[string]interface{}{
		"plan":     planPath,
		"admitted": checkErr == nil,
	}
	var cerr *verify.CheckError
	if errors.As(checkErr, &cerr) {
		result["error"] = cerr.Message
		result["details"] = cerr.Details
	}

	if jsonOut {
		if err := printJSON(result); err != nil {
			return err
		}
		return checkErr
	}

	if checkErr != nil {
		printInfo("✗ NOT ADMITTED: %v\n", checkErr)
		return checkErr
	}
	printInfo("✓ ADMITTED: every demand fits the declared capacities\n")
	return nil
}

// loadCapacity resolves the --boot / --capacity flags into a capacity
// declaration.
func loadCapacity() (*verify.Capacity, error) {
	switch {
	case verifyBootPath != "" && verifyCapacityPath != "":
		return nil, fmt.Errorf("--boot and --capacity are mutually exclusive")
	case verifyBootPath != "":
		d, err := bootstrap.Load(verifyBootPath)
		if err != nil {
			return nil, err
		}
		return verify.CapacityFromBoot(d, verifyMemAlias, verifySlotAlias, verifyAddrAlias)
	case verifyCapacityPath != "":
		data, err := os.ReadFile(verifyCapacityPath)
		if err != nil {
			return nil, err
		}
		return verify.ParseCapacity(data)
	default:
		return nil, fmt.Errorf("one of --boot or --capacity is required")
	}
}
