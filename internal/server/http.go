package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kodaktechie/recoveryd/internal/session"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// User endpoints carry the session token as Authorization: Bearer; a
// missing or invalid token is not an HTTP error on the step surface —
// the controller answers with a Blocked(login) snapshot instead.
// Admin endpoints require the operator token.
func (s *RecoveryServer) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/recovery/steps/{n}", s.handleMountStep)
	mux.HandleFunc("POST /v1/recovery/steps/{n}/confirm", s.handleConfirmStep)
	mux.HandleFunc("GET /v1/recovery/complete", s.handleComplete)
	mux.HandleFunc("GET /v1/recovery/progress", s.handleProgress)
	mux.HandleFunc("POST /v1/session/signout", s.handleSignOut)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/admin/progress", s.requireOperator(s.handleAdminListProgress))
	mux.HandleFunc("GET /v1/admin/progress/{id}", s.requireOperator(s.handleAdminGetProgress))
	mux.HandleFunc("PATCH /v1/admin/progress/{id}", s.requireOperator(s.handleAdminPatchProgress))
	mux.HandleFunc("POST /v1/admin/sessions", s.requireOperator(s.handleAdminIssueSession))
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.handler())
	return mux
}

// handleHealth handles GET /v1/health.
func (s *RecoveryServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// identityFromRequest resolves the caller's identity through the session
// gate. A zero identity means unauthenticated.
func (s *RecoveryServer) identityFromRequest(r *http.Request) (session.Identity, string) {
	token := bearerToken(r)
	if token == "" {
		return session.Identity{}, ""
	}
	identity, ok := s.gate.Identify(token)
	if !ok {
		return session.Identity{}, ""
	}
	return identity, token
}

// requireOperator guards the admin surface. An unset operator token
// closes the surface entirely rather than opening it.
func (s *RecoveryServer) requireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opToken == "" {
			writeError(w, http.StatusForbidden, "operator surface disabled")
			return
		}
		provided := bearerToken(r)
		if provided == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.opToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
