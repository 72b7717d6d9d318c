// Package client provides a transport-agnostic interface for the recovery
// service's operator API and an HTTP/JSON implementation that talks to the
// recoveryd REST surface.
package client

import (
	"context"
	"encoding/json"

	"github.com/kodaktechie/recoveryd/internal/model"
)

// RecoveryClient is the interface recoveryctl commands use to talk to the
// server. It is implemented by HTTPClient and can be backed by any transport.
type RecoveryClient interface {
	// Progress records (operator surface)
	ListProgress(ctx context.Context) (*ListProgressResponse, error)
	GetProgress(ctx context.Context, identityID string) (*model.Progress, error)
	PatchProgress(ctx context.Context, identityID string, patch model.ProgressPatch) (*model.Progress, error)

	// Sessions
	IssueSession(ctx context.Context, req *IssueSessionRequest) (*IssueSessionResponse, error)

	// Watch tails the server's event stream, invoking fn for each event
	// until ctx is canceled or the stream ends.
	Watch(ctx context.Context, topics []string, fn func(StreamEvent)) error

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// ListProgressResponse is the response from ListProgress.
type ListProgressResponse struct {
	Progress []*model.Progress `json:"progress"`
	Total    int               `json:"total"`
}

// IssueSessionRequest holds parameters for minting a session token.
type IssueSessionRequest struct {
	IdentityID string `json:"identity_id"`
	Email      string `json:"email,omitempty"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`
}

// IssueSessionResponse is the response from IssueSession.
type IssueSessionResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// StreamEvent is one event read off the server's SSE stream.
type StreamEvent struct {
	ID    string
	Topic string
	Data  json.RawMessage
}
