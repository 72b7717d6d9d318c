package main

import (
	"os"

	"github.com/kodaktechie/recoveryd/internal/client"
	"github.com/kodaktechie/recoveryd/internal/ui"
	"github.com/spf13/cobra"
)

var (
	serverURL     string
	operatorToken string
	jsonOutput    bool

	recoveryClient client.RecoveryClient
)

func defaultServerURL() string {
	if s := os.Getenv("RECOVERYCTL_URL"); s != "" {
		return s
	}
	if u := activeRemoteURL(); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultToken() string {
	if s := os.Getenv("RECOVERYCTL_TOKEN"); s != "" {
		return s
	}
	return activeRemoteToken()
}

var rootCmd = &cobra.Command{
	Use:   "recoveryctl <command>",
	Short: "Operator CLI for the recovery workflow server",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		recoveryClient = client.NewHTTPClient(serverURL, operatorToken)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if recoveryClient != nil {
			recoveryClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", defaultServerURL(), "server URL")
	rootCmd.PersistentFlags().StringVar(&operatorToken, "token", defaultToken(), "operator bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "progress", Title: "Progress:"},
		&cobra.Group{ID: "sessions", Title: "Sessions:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	if !ui.ShouldUseColor() {
		ui.ForceNoColor()
	}

	// Progress
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(setFeeCmd)
	rootCmd.AddCommand(markPaidCmd)
	rootCmd.AddCommand(setRemitCmd)
	rootCmd.AddCommand(watchCmd)

	// Sessions
	rootCmd.AddCommand(issueSessionCmd)

	// System
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
