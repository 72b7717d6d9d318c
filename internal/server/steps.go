package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/kodaktechie/recoveryd/internal/events"
	"github.com/kodaktechie/recoveryd/internal/model"
	"github.com/kodaktechie/recoveryd/internal/session"
	"github.com/kodaktechie/recoveryd/internal/store"
	"github.com/kodaktechie/recoveryd/internal/workflow"
)

// stepFromRequest resolves the {n} path segment into a step definition.
func stepFromRequest(r *http.Request) (model.Step, error) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		return model.Step{}, errors.New("step must be a number")
	}
	return model.StepByNumber(n)
}

// handleMountStep handles GET /v1/recovery/steps/{n}: mount (or remount)
// the step controller and return its snapshot. Redirects are data, not
// HTTP 3xx — the hosting shell performs navigation.
func (s *RecoveryServer) handleMountStep(w http.ResponseWriter, r *http.Request) {
	step, err := stepFromRequest(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	identity, token := s.identityFromRequest(r)
	c := s.registry.Mount(r.Context(), s.controllerConfig(step, identity, token))
	writeJSON(w, http.StatusOK, c.Snapshot())
}

// handleConfirmStep handles POST /v1/recovery/steps/{n}/confirm.
func (s *RecoveryServer) handleConfirmStep(w http.ResponseWriter, r *http.Request) {
	step, err := stepFromRequest(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	identity, token := s.identityFromRequest(r)
	if identity.IsZero() {
		writeError(w, http.StatusUnauthorized, "session required")
		return
	}

	var in struct {
		DestinationWallet string `json:"destination_wallet"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	c := s.registry.Get(identity.ID, step.Number)
	if c == nil {
		c = s.registry.Mount(r.Context(), s.controllerConfig(step, identity, token))
	}

	snap := c.ConfirmPayment(r.Context(), in.DestinationWallet)
	switch {
	case snap.State == workflow.StateAdvanced:
		s.metrics.stepsCompleted.WithLabelValues(strconv.Itoa(step.Number)).Inc()
	case snap.FieldError != "":
		s.metrics.confirmsRejected.WithLabelValues("missing_wallet").Inc()
	case snap.State == workflow.StateError:
		s.metrics.confirmsRejected.WithLabelValues("write_failed").Inc()
	case snap.State == workflow.StateBlocked:
		s.metrics.confirmsRejected.WithLabelValues("blocked").Inc()
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleComplete handles GET /v1/recovery/complete.
func (s *RecoveryServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	identity, _ := s.identityFromRequest(r)
	writeJSON(w, http.StatusOK, workflow.Complete(r.Context(), s.store, identity))
}

// handleProgress handles GET /v1/recovery/progress: the caller's own
// record, for dashboards.
func (s *RecoveryServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	identity, _ := s.identityFromRequest(r)
	if identity.IsZero() {
		writeError(w, http.StatusUnauthorized, "session required")
		return
	}

	p, err := s.store.GetProgress(r.Context(), identity.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleSignOut handles POST /v1/session/signout: revoke the token and
// drop the caller's live controller.
func (s *RecoveryServer) handleSignOut(w http.ResponseWriter, r *http.Request) {
	identity, token := s.identityFromRequest(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "session required")
		return
	}

	s.gate.SignOut(token)
	if !identity.IsZero() {
		s.registry.Drop(identity.ID)
		s.publishEvent(r.Context(), events.TopicSessionSignedOut, events.SessionSignedOut{
			IdentityID: identity.ID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

func (s *RecoveryServer) controllerConfig(step model.Step, identity session.Identity, token string) workflow.Config {
	return workflow.Config{
		Step:      step,
		Identity:  identity,
		Token:     token,
		Store:     s.store,
		Publisher: s.publisher,
		Notifier:  s.notifier,
		Gate:      s.gate,
		Defaults:  s.defaults,
		Deadline:  s.stepDeadline,
		OnExpire: func(string, int) {
			s.metrics.sessionsExpired.Inc()
		},
	}
}

// writeStoreError maps the store error taxonomy onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "progress record not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "write conflict; re-fetch and retry")
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	case errors.Is(err, model.ErrFlagLowered), errors.Is(err, model.ErrInvalidPatch):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
