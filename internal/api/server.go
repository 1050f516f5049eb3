// Package api provides the local HTTP and WebSocket server the dashboard UI
// talks to.
//
// It exposes login/logout/session endpoints backed by the auth controller,
// gated analytics endpoints backed by the refresh coordinator, and a
// WebSocket channel that pushes freshly normalised view models and auth
// state changes to connected dashboards.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/usagedeck/usagedeck-console/internal/auth"
	"github.com/usagedeck/usagedeck-console/internal/backend"
	"github.com/usagedeck/usagedeck-console/internal/infrastructure/config"
	"github.com/usagedeck/usagedeck-console/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Refresh config.RefreshConfig
	Logger  *logging.Logger
	Auth    *auth.Controller
	Backend *backend.Client
	Version string
}

// Server is the local HTTP server for Usagedeck Console.
//
// It manages the HTTP listener, routes, middleware, WebSocket hub, and the
// analytics refresh coordinator. The server is created with New() and
// started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	refCfg  config.RefreshConfig
	logger  *logging.Logger
	auth    *auth.Controller
	backend *backend.Client
	version string

	server  *http.Server
	hub     *Hub
	refresh *Coordinator
	tickets *ticketStore
	cancel  context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth controller is required")
	}
	if deps.Backend == nil {
		return nil, fmt.Errorf("backend client is required")
	}

	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		refCfg:  deps.Refresh,
		logger:  deps.Logger,
		auth:    deps.Auth,
		backend: deps.Backend,
		version: deps.Version,
		tickets: newTicketStore(),
	}
	s.hub = NewHub(deps.WS, deps.Logger)
	s.refresh = NewCoordinator(deps.Backend, deps.Logger, s.hub, deps.Refresh)

	// Auth state changes flow to connected dashboards so every open tab
	// reacts to a logout or expiry at once.
	deps.Auth.OnChange(func(state auth.State) {
		s.hub.Broadcast(ChannelAuthState, map[string]any{"state": string(state)})
		if state == auth.StateUnauthenticated {
			s.hub.Broadcast(ChannelSessionExpired, nil)
		}
	})

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, the ticket cleanup loop, and the periodic
// analytics refresh, then launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)
	go s.refreshLoop(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.server.Addr)
	return nil
}

// refreshLoop refreshes analytics on the configured interval while a
// session is active. A zero interval disables the loop.
func (s *Server) refreshLoop(ctx context.Context) {
	interval := time.Duration(s.refCfg.Interval) * time.Second
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sess := s.auth.Session()
			if sess == nil {
				continue
			}
			s.refresh.Refresh(ctx, s.refresh.Selection(), sess.Role, sess.CustomerID)
		}
	}
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
