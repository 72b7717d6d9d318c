package main

import (
	"context"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:     "show <identity>",
	Short:   "Show a progress record",
	GroupID: "progress",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := recoveryClient.GetProgress(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(p)
			return nil
		}
		printProgressTable(p)
		return nil
	},
}
