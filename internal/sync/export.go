package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/kodaktechie/recoveryd/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version       string    `json:"version"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	ProgressCount int       `json:"progress_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every Progress record from the store as JSONL to w,
// sorted by identity id.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	records, err := s.ListProgress(ctx)
	if err != nil {
		return fmt.Errorf("list progress: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].IdentityID < records[j].IdentityID
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:       "1",
		Type:          "header",
		Timestamp:     time.Now().UTC(),
		ProgressCount: len(records),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, p := range records {
		if err := enc.Encode(record{Type: "progress", Data: p}); err != nil {
			return fmt.Errorf("encode progress %s: %w", p.IdentityID, err)
		}
	}

	return nil
}
