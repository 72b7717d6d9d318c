package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/kodaktechie/recoveryd/internal/client"
	"github.com/kodaktechie/recoveryd/internal/ui"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Tail workflow events from the server",
	GroupID: "progress",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topics, _ := cmd.Flags().GetStringSlice("topic")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		return recoveryClient.Watch(ctx, topics, printStreamEvent)
	},
}

func printStreamEvent(evt client.StreamEvent) {
	ts := time.Now().Format("15:04:05")
	if jsonOutput {
		out, err := json.Marshal(map[string]any{
			"topic": evt.Topic,
			"data":  evt.Data,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling event: %v\n", err)
			return
		}
		fmt.Println(string(out))
		return
	}
	fmt.Printf("%s %s %s\n",
		ui.RenderMuted(ts),
		ui.RenderAccent(evt.Topic),
		summarizeEvent(evt),
	)
}

// summarizeEvent extracts the identity from an event payload for the
// one-line display, falling back to the raw JSON.
func summarizeEvent(evt client.StreamEvent) string {
	var peek struct {
		IdentityID string `json:"identity_id"`
		Progress   *struct {
			IdentityID string `json:"identity_id"`
		} `json:"progress"`
	}
	if err := json.Unmarshal(evt.Data, &peek); err == nil {
		if peek.IdentityID != "" {
			return peek.IdentityID
		}
		if peek.Progress != nil && peek.Progress.IdentityID != "" {
			return peek.Progress.IdentityID
		}
	}
	return string(evt.Data)
}

func init() {
	watchCmd.Flags().StringSlice("topic", []string{"recovery.>"}, "topic patterns to subscribe to")
}
