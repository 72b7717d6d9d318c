package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/kodaktechie/recoveryd/internal/events"
	"github.com/kodaktechie/recoveryd/internal/model"
	"github.com/kodaktechie/recoveryd/internal/session"
)

// handleAdminListProgress handles GET /v1/admin/progress.
func (s *RecoveryServer) handleAdminListProgress(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListProgress(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if records == nil {
		records = []*model.Progress{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"progress": records,
		"total":    len(records),
	})
}

// handleAdminGetProgress handles GET /v1/admin/progress/{id}.
func (s *RecoveryServer) handleAdminGetProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	p, err := s.store.GetProgress(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleAdminPatchProgress handles PATCH /v1/admin/progress/{id}: the
// out-of-band mutation surface. Fee overrides, remit rewiring and
// completion flags raised here flow through the same publish path as
// user writes, so watching controllers reconcile immediately.
func (s *RecoveryServer) handleAdminPatchProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	var patch model.ProgressPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if patch.IsZero() {
		writeError(w, http.StatusBadRequest, "empty patch")
		return
	}

	updated, err := s.store.UpdateProgress(r.Context(), id, patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	evt := events.ProgressUpdated{
		Progress: updated,
		Changes:  patchChanges(patch),
		Actor:    "operator",
	}
	s.publishEvent(r.Context(), events.RecordTopic(id), evt)
	s.publishEvent(r.Context(), events.TopicProgressUpdated, evt)

	for n := 1; n <= model.StepCount; n++ {
		if c := patch.Completed(n); c != nil && *c {
			s.metrics.stepsCompleted.WithLabelValues(strconv.Itoa(n)).Inc()
		}
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleAdminIssueSession handles POST /v1/admin/sessions: mint a session
// token for an identity. This is the embedded stand-in for an external
// identity provider.
func (s *RecoveryServer) handleAdminIssueSession(w http.ResponseWriter, r *http.Request) {
	var in struct {
		IdentityID string `json:"identity_id"`
		Email      string `json:"email"`
		TTLSeconds int64  `json:"ttl_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if in.IdentityID == "" {
		writeError(w, http.StatusBadRequest, "identity_id is required")
		return
	}

	ttl := s.sessionTTL
	if in.TTLSeconds > 0 {
		ttl = time.Duration(in.TTLSeconds) * time.Second
	}

	token, err := s.gate.Issue(session.Identity{ID: in.IdentityID, Email: in.Email}, ttl)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"token":      token,
		"expires_in": int64(ttl.Seconds()),
	})
}

// patchChanges names the fields a patch touches, for operator tooling
// reading the event stream.
func patchChanges(patch model.ProgressPatch) map[string]any {
	changes := make(map[string]any)
	if patch.DestinationWallet != nil {
		changes["destination_wallet"] = *patch.DestinationWallet
	}
	if patch.Step1Completed != nil {
		changes["step1_completed"] = *patch.Step1Completed
	}
	if patch.Step2Completed != nil {
		changes["step2_completed"] = *patch.Step2Completed
	}
	if patch.Step3Completed != nil {
		changes["step3_completed"] = *patch.Step3Completed
	}
	if patch.Step1Fee != nil {
		changes["step1_fee"] = *patch.Step1Fee
	}
	if patch.Step2Fee != nil {
		changes["step2_fee"] = *patch.Step2Fee
	}
	if patch.Step3Fee != nil {
		changes["step3_fee"] = *patch.Step3Fee
	}
	if patch.RemitWallet != nil {
		changes["remit_wallet"] = *patch.RemitWallet
	}
	if patch.RemitNetwork != nil {
		changes["remit_network"] = *patch.RemitNetwork
	}
	return changes
}
