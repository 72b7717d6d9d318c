package store

import (
	"context"
	"errors"

	"github.com/kodaktechie/recoveryd/internal/model"
)

// Error taxonomy for the progress store. Implementations wrap these
// sentinels so callers can branch with errors.Is.
var (
	// ErrNotFound means no Progress record exists for the identity;
	// the caller recovers by creating one.
	ErrNotFound = errors.New("progress record not found")

	// ErrConflict means a concurrent write lost a race; the caller
	// re-fetches before retrying.
	ErrConflict = errors.New("progress record write conflict")

	// ErrUnavailable means the store is unreachable; the caller surfaces
	// a retryable error without assuming any mutation happened.
	ErrUnavailable = errors.New("progress store unavailable")
)

// Defaults holds the system-owned values stamped into a freshly created
// Progress record. Completion flags start false and fees start unset.
type Defaults struct {
	RemitWallet  string
	RemitNetwork string
}

// Store is the persistence interface for Progress records. The record is
// the single source of truth for workflow state; everything a controller
// holds locally is a cache reconciled against these results.
type Store interface {
	// GetProgress returns the record for the identity, or ErrNotFound.
	GetProgress(ctx context.Context, identityID string) (*model.Progress, error)

	// CreateProgressIfAbsent inserts a fresh record unless one already
	// exists, and returns whichever record is current afterwards. Safe
	// under concurrent invocation for the same identity: at most one
	// record is created and every caller observes it.
	CreateProgressIfAbsent(ctx context.Context, identityID string, defaults Defaults) (*model.Progress, error)

	// UpdateProgress applies a partial patch and returns the updated
	// record. Fields not set in the patch are untouched. Completion
	// flags may only be raised.
	UpdateProgress(ctx context.Context, identityID string, patch model.ProgressPatch) (*model.Progress, error)

	// EnsureFeeAssigned atomically assigns defaultFee to the step's fee
	// if it is unset, and returns the record with whatever fee is now
	// stored. Concurrent callers for the same identity and step converge
	// on a single value.
	EnsureFeeAssigned(ctx context.Context, identityID string, step int, defaultFee int64) (*model.Progress, error)

	// ListProgress returns every record, ordered by identity id. Feeds
	// the snapshot exporter and the operator console.
	ListProgress(ctx context.Context) ([]*model.Progress, error)

	// Lifecycle
	Close() error
}
