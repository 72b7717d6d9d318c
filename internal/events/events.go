package events

import (
	"context"

	"github.com/kodaktechie/recoveryd/internal/model"
)

// Event topic constants
const (
	TopicProgressCreated = "recovery.progress.created"
	TopicProgressUpdated = "recovery.progress.updated"

	// Session lifecycle events (consumed by the operator console's watch).
	TopicSessionExpired   = "recovery.session.expired"
	TopicSessionSignedOut = "recovery.session.signedout"

	// recordTopicPrefix is the prefix for per-record subjects; the change
	// notifier subscribes to one record's subject at a time.
	recordTopicPrefix = "recovery.progress.record."
)

// RecordTopic returns the per-record subject carrying full Progress
// snapshots for one identity.
func RecordTopic(identityID string) string {
	return recordTopicPrefix + identityID
}

// Event types

type ProgressCreated struct {
	Progress *model.Progress `json:"progress"`
}

// ProgressUpdated carries the full record after a mutation. Change
// notifier subscribers reconcile against Progress; Changes names the
// fields the writer touched, for operator tooling.
type ProgressUpdated struct {
	Progress *model.Progress `json:"progress"`
	Changes  map[string]any  `json:"changes,omitempty"`
	Actor    string          `json:"actor,omitempty"` // "user" or "operator"
}

type SessionExpired struct {
	IdentityID string `json:"identity_id"`
	Step       int    `json:"step"`
}

type SessionSignedOut struct {
	IdentityID string `json:"identity_id"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
