package workflow

import (
	"context"
	"log/slog"

	"github.com/kodaktechie/recoveryd/internal/idgen"
	"github.com/kodaktechie/recoveryd/internal/model"
	"github.com/kodaktechie/recoveryd/internal/session"
	"github.com/kodaktechie/recoveryd/internal/store"
)

// Completion is the read-only terminal view: no fees, no deadline, no
// mutation. It exists to confirm the workflow finished and show where
// funds were directed. Reference and DisplayKey are cosmetic, generated
// per render and never persisted.
type Completion struct {
	State      State           `json:"state"`
	Redirect   model.Route     `json:"redirect,omitempty"`
	Progress   *model.Progress `json:"progress,omitempty"`
	Reference  string          `json:"reference,omitempty"`
	DisplayKey string          `json:"display_key,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Complete builds the completion view for an identity. An unauthenticated
// caller routes to login; an identity with incomplete steps routes back to
// its first incomplete step rather than seeing a false success screen.
func Complete(ctx context.Context, st store.Store, identity session.Identity) Completion {
	if identity.IsZero() {
		return Completion{State: StateBlocked, Redirect: model.RouteLogin}
	}

	p, err := st.GetProgress(ctx, identity.ID)
	if err != nil {
		slog.Warn("completion view fetch failed", "identity", identity.ID, "error", err)
		return Completion{State: StateError, Error: "progress is temporarily unavailable; try again"}
	}

	if !p.AllCompleted() {
		return Completion{
			State:    StateBlocked,
			Redirect: model.StepRoute(p.FirstIncompleteStep()),
		}
	}

	ref, err := idgen.Reference()
	if err != nil {
		slog.Warn("reference generation failed", "error", err)
	}
	key, err := idgen.DisplayKey()
	if err != nil {
		slog.Warn("display key generation failed", "error", err)
	}

	return Completion{State: StateReady, Progress: p, Reference: ref, DisplayKey: key}
}
