package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/usagedeck/usagedeck-console/internal/analytics"
	"github.com/usagedeck/usagedeck-console/internal/auth"
)

// loginRequest is the request body for POST /api/auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin exchanges credentials for a session via the auth controller.
// The token itself never appears in the response; the UI only needs the
// identity, and the credential stays inside the console.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	sess, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrLoginSuperseded) {
			writeUnauthorized(w, "login superseded by logout")
			return
		}
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// handleLogout tears down the session. Always succeeds locally even when
// the backend is unreachable.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// handleSession reports the auth state and, when authenticated, the
// identity. The UI polls this on startup while restore settles.
func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"state": string(s.auth.State()),
	}
	if sess := s.auth.Session(); sess != nil {
		resp["session"] = sess
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUsage refreshes analytics for the requested range, scoped to the
// caller's role and tenant, and returns the committed snapshot.
//
// A refresh that lost the race to a newer range selection answers with the
// newer selection's published snapshot instead of its own discarded result.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	sess := s.auth.Session()
	if sess == nil {
		// Gate admitted but the session vanished mid-request (401 burst).
		writeUnauthorized(w, "session no longer valid")
		return
	}

	sel := analytics.ParseRangeSelector(r.URL.Query().Get("range"))

	snap, err := s.refresh.Refresh(r.Context(), sel, sess.Role, sess.CustomerID)
	if err != nil {
		if errors.Is(err, ErrSuperseded) {
			writeJSON(w, http.StatusOK, s.refresh.Snapshot())
			return
		}
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// handleCustomers lists all tenants. Route is gated SUPERADMIN; the backend
// enforces the same rule authoritatively.
func (s *Server) handleCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.backend.Customers(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}
