package workflow

import (
	"time"

	"github.com/kodaktechie/recoveryd/internal/model"
)

// State is the step controller's position in its lifecycle.
type State string

const (
	// StateLoading covers entry: gate check, fetch-or-create, fee assignment.
	StateLoading State = "loading"
	// StateBlocked means the caller may not view this step; Redirect says
	// where to go instead. Terminal.
	StateBlocked State = "blocked"
	// StateReady means the step is rendered and awaiting the payment assertion.
	StateReady State = "ready"
	// StateSubmitting means a confirm is in flight; further confirms are rejected.
	StateSubmitting State = "submitting"
	// StateAdvanced means the step completed; Redirect names the next
	// destination. Terminal.
	StateAdvanced State = "advanced"
	// StateError means a transient failure; recoverable by re-entering the step.
	StateError State = "error"
)

// Terminal reports whether the controller is finished with this step.
func (s State) Terminal() bool {
	return s == StateAdvanced || s == StateBlocked
}

// Snapshot is one render of a controller: everything the hosting shell
// needs, including the single navigation decision (Redirect empty = stay).
type Snapshot struct {
	Step     int         `json:"step"`
	State    State       `json:"state"`
	Redirect model.Route `json:"redirect,omitempty"`

	// Render data, meaningful in Ready/Submitting. Fee is the stored
	// value verbatim; the client never recomputes it.
	Fee               *int64 `json:"fee,omitempty"`
	RemitWallet       string `json:"remit_wallet,omitempty"`
	RemitNetwork      string `json:"remit_network,omitempty"`
	DestinationWallet string `json:"destination_wallet,omitempty"`

	// FieldError is an inline validation message (missing wallet); the
	// step stays Ready. Error is a retryable step-scoped failure.
	FieldError string `json:"field_error,omitempty"`
	Error      string `json:"error,omitempty"`

	Remaining time.Duration `json:"remaining_ns,omitempty"`
}
