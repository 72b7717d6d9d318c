package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kodaktechie/recoveryd/internal/model"
	"github.com/kodaktechie/recoveryd/internal/ui"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// formatFee renders a fee in whole currency units, or "-" when unassigned.
func formatFee(fee *int64) string {
	if fee == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *fee)
}

// stepMark renders a per-step completion marker.
func stepMark(done bool) string {
	if done {
		return ui.RenderDone("paid")
	}
	return ui.RenderPending("due")
}

func progressSummary(p *model.Progress) string {
	if p.AllCompleted() {
		return ui.RenderDone("complete")
	}
	return ui.RenderPending(fmt.Sprintf("step %d", p.FirstIncompleteStep()))
}

func printProgressTable(p *model.Progress) {
	fmt.Printf("Identity:     %s\n", p.IdentityID)
	fmt.Printf("Progress:     %s\n", progressSummary(p))
	if p.DestinationWallet != "" {
		fmt.Printf("Destination:  %s\n", p.DestinationWallet)
	}
	fmt.Printf("Remit To:     %s (%s)\n", p.RemitWallet, p.RemitNetwork)
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tNAME\tFEE\tSTATUS")
	for _, s := range model.Steps {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			s.Number,
			s.Name,
			formatFee(p.Fee(s.Number)),
			stepMark(p.StepCompleted(s.Number)),
		)
	}
	w.Flush()
	fmt.Println()
	if !p.CreatedAt.IsZero() {
		fmt.Printf("Created At:   %s\n", p.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if !p.UpdatedAt.IsZero() {
		fmt.Printf("Updated At:   %s\n", p.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}

func printProgressListTable(records []*model.Progress, total int) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tPROGRESS\tSTEP1\tSTEP2\tSTEP3\tDESTINATION")
	for _, p := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.IdentityID,
			progressSummary(p),
			stepMark(p.StepCompleted(1)),
			stepMark(p.StepCompleted(2)),
			stepMark(p.StepCompleted(3)),
			p.DestinationWallet,
		)
	}
	w.Flush()
	fmt.Printf("\n%d records (%d total)\n", len(records), total)
}
