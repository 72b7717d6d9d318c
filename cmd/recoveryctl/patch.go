package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kodaktechie/recoveryd/internal/model"
	"github.com/spf13/cobra"
)

// parseStep parses and range-checks a step number argument.
func parseStep(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > model.StepCount {
		return 0, fmt.Errorf("invalid step %q (must be 1-%d)", arg, model.StepCount)
	}
	return n, nil
}

func applyPatch(identityID string, patch model.ProgressPatch) error {
	p, err := recoveryClient.PatchProgress(context.Background(), identityID, patch)
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(p)
		return nil
	}
	printProgressTable(p)
	return nil
}

var setFeeCmd = &cobra.Command{
	Use:     "set-fee <identity> <step> <amount>",
	Short:   "Override the fee for a step",
	GroupID: "progress",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		step, err := parseStep(args[1])
		if err != nil {
			return err
		}
		amount, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q", args[2])
		}

		var patch model.ProgressPatch
		switch step {
		case 1:
			patch.Step1Fee = &amount
		case 2:
			patch.Step2Fee = &amount
		case 3:
			patch.Step3Fee = &amount
		}
		return applyPatch(args[0], patch)
	},
}

var markPaidCmd = &cobra.Command{
	Use:     "mark-paid <identity> <step>",
	Short:   "Mark a step's fee as paid",
	GroupID: "progress",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		step, err := parseStep(args[1])
		if err != nil {
			return err
		}

		paid := true
		var patch model.ProgressPatch
		switch step {
		case 1:
			patch.Step1Completed = &paid
		case 2:
			patch.Step2Completed = &paid
		case 3:
			patch.Step3Completed = &paid
		}
		return applyPatch(args[0], patch)
	},
}

var setRemitCmd = &cobra.Command{
	Use:     "set-remit <identity> <wallet>",
	Short:   "Override the remit wallet shown to a user",
	GroupID: "progress",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch := model.ProgressPatch{RemitWallet: &args[1]}
		if network, _ := cmd.Flags().GetString("network"); network != "" {
			patch.RemitNetwork = &network
		}
		return applyPatch(args[0], patch)
	},
}

func init() {
	setRemitCmd.Flags().String("network", "", "settlement network label (e.g. USDT-TRC20)")
}
