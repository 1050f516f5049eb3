package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/usagedeck/usagedeck-console/internal/gate"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Health check (no gate)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		// Auth endpoints (no gate: login must work without a session,
		// logout and session-read must work in any state)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)
		r.Get("/auth/session", s.handleSession)

		// Any authenticated user
		r.Group(func(r chi.Router) {
			r.Use(s.requireAccess(gate.RequireSession))

			r.Get("/analytics/usage", s.handleUsage)
			r.Post("/auth/ws-ticket", s.handleWSTicket)
		})

		// Tenant-crossing views
		r.Group(func(r chi.Router) {
			r.Use(s.requireAccess(gate.RequireSuperadmin))

			r.Get("/analytics/customers", s.handleCustomers)
		})
	})

	// WebSocket (auth via single-use ticket, validated in handler)
	r.Get(s.wsCfg.Path, s.handleWebSocket)

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"state":   string(s.auth.State()),
	})
}
