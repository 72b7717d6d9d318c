package main

import (
	"context"
	"fmt"
	"time"

	"github.com/kodaktechie/recoveryd/internal/client"
	"github.com/spf13/cobra"
)

var issueSessionCmd = &cobra.Command{
	Use:     "issue-session <identity>",
	Short:   "Mint a signed session token for a user",
	GroupID: "sessions",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		req := &client.IssueSessionRequest{
			IdentityID: args[0],
			Email:      email,
		}
		if ttl > 0 {
			req.TTLSeconds = int64(ttl / time.Second)
		}

		resp, err := recoveryClient.IssueSession(context.Background(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(resp)
			return nil
		}
		fmt.Println(resp.Token)
		fmt.Printf("expires in %s\n", time.Duration(resp.ExpiresIn)*time.Second)
		return nil
	},
}

func init() {
	issueSessionCmd.Flags().String("email", "", "email recorded on the session")
	issueSessionCmd.Flags().Duration("ttl", 0, "token lifetime (server default when unset)")
}
