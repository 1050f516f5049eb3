package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/usagedeck/usagedeck-console/internal/backend"
	"github.com/usagedeck/usagedeck-console/internal/gateway"
	"github.com/usagedeck/usagedeck-console/internal/infrastructure/logging"
	"github.com/usagedeck/usagedeck-console/internal/session"
)

// State is the controller's authentication state.
type State string

const (
	// StateInitializing means startup restore has not finished yet.
	// Access decisions wait rather than redirect while in this state.
	StateInitializing State = "initializing"

	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// logoutTimeout bounds the best-effort backend notification during logout.
// Local state is cleared regardless of whether the backend answered.
const logoutTimeout = 3 * time.Second

// ErrLoginSuperseded is returned when a logout arrived while a login was
// still in flight. The login result is discarded, not persisted.
var ErrLoginSuperseded = errors.New("login superseded by logout")

// API is the slice of the backend client the controller needs.
type API interface {
	Login(ctx context.Context, email, password string) (*backend.LoginResponse, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*backend.Profile, error)
}

// Controller drives the authentication state machine.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Controller struct {
	store  session.Store
	api    API
	logger *logging.Logger

	mu       sync.RWMutex
	state    State
	current  *session.Session
	epoch    uint64 // bumped by Logout; detects logins overtaken by a logout
	handlers []func(State)
}

// NewController creates a controller in the initializing state. Call
// Restore before serving requests.
func NewController(store session.Store, api API, logger *logging.Logger) *Controller {
	return &Controller{
		store:  store,
		api:    api,
		logger: logger,
		state:  StateInitializing,
	}
}

// State returns the current authentication state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Session returns a copy of the active session, or nil when there is none.
func (c *Controller) Session() *session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil
	}
	copied := *c.current
	return &copied
}

// OnChange registers a handler invoked after every state transition.
// Handlers run on the transitioning goroutine and must not block.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// Restore loads the persisted session, if any, and resolves the
// initializing state. A found session is trusted immediately so the UI can
// render, then validated against the backend in the background; only a
// definitive rejection tears it down.
func (c *Controller) Restore(ctx context.Context) {
	sess, err := c.store.Get(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			c.logger.Error("failed to read persisted session", "error", err)
		}
		c.transition(StateUnauthenticated, nil)
		return
	}

	c.logger.Info("restored persisted session", "user_id", sess.UserID, "role", string(sess.Role))
	c.transition(StateAuthenticated, sess)

	go c.validate(context.WithoutCancel(ctx), c.currentEpoch())
}

// validate checks a restored session against the backend. Network trouble
// is tolerated; only an explicit 401 invalidates the session.
func (c *Controller) validate(ctx context.Context, epoch uint64) {
	profile, err := c.api.Me(ctx)
	if err != nil {
		if backend.IsUnauthorized(err) {
			c.logger.Info("persisted session rejected by backend")
			c.clearLocal(ctx, epoch)
			return
		}
		c.logger.Warn("session validation inconclusive", "error", err)
		return
	}

	// Refresh profile fields in case they changed while the console was down.
	c.mu.Lock()
	if c.epoch == epoch && c.current != nil {
		c.current.Email = profile.Email
		c.current.FullName = profile.FullName
		c.current.Role = session.ParseRole(profile.Role)
		c.current.CustomerID = profile.CustomerID
		c.current.CustomerName = profile.CustomerName
	}
	c.mu.Unlock()
}

// Login exchanges credentials for a session and persists it. A logout that
// lands while the backend call is in flight wins; the stale login result is
// discarded and ErrLoginSuperseded returned.
func (c *Controller) Login(ctx context.Context, email, password string) (*session.Session, error) {
	epoch := c.currentEpoch()

	resp, err := c.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	sess := &session.Session{
		Token:        resp.Token,
		UserID:       resp.UserID,
		Email:        resp.Email,
		FullName:     resp.FullName,
		Role:         session.ParseRole(resp.Role),
		CustomerID:   resp.CustomerID,
		CustomerName: resp.CustomerName,
		ExpiresIn:    resp.ExpiresIn,
		CreatedAt:    time.Now().UTC(),
	}

	if c.currentEpoch() != epoch {
		return nil, ErrLoginSuperseded
	}

	if err := c.store.Set(ctx, sess); err != nil {
		return nil, err
	}

	// Re-check the epoch and commit under one lock hold: a logout that
	// landed while the session row was being written must still win. Its
	// clear ran before our Set, so roll the row back before reporting the
	// login as superseded.
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			c.logger.Error("failed to clear superseded login", "error", clearErr)
		}
		return nil, ErrLoginSuperseded
	}
	c.state = StateAuthenticated
	c.current = sess
	handlers := make([]func(State), len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	c.logger.Info("login succeeded", "user_id", sess.UserID, "role", string(sess.Role))
	for _, fn := range handlers {
		fn(StateAuthenticated)
	}

	copied := *sess
	return &copied, nil
}

// Logout tears down the session. Local state is cleared and the
// Unauthenticated transition observed before this returns; the backend
// notification happens in the background with the token captured here,
// since the store no longer has it.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	var token string
	if c.current != nil {
		token = c.current.Token
	}
	c.mu.Unlock()

	c.clearLocal(ctx, epoch)
	c.logger.Info("logged out")

	if token == "" {
		return
	}
	go func() {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
		defer cancel()
		if err := c.api.Logout(gateway.WithToken(notifyCtx, token)); err != nil {
			c.logger.Warn("backend logout notification failed", "error", err)
		}
	}()
}

// HandleUnauthorized reacts to the gateway's 401 signal. The gateway has
// already cleared the persisted session; this resolves the in-memory state.
func (c *Controller) HandleUnauthorized() {
	c.mu.Lock()
	c.epoch++
	c.mu.Unlock()

	c.logger.Info("session expired")
	c.transition(StateUnauthenticated, nil)
}

func (c *Controller) clearLocal(ctx context.Context, epoch uint64) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error("failed to clear session store", "error", err)
	}

	c.mu.Lock()
	stale := c.epoch != epoch
	c.mu.Unlock()
	if stale {
		return
	}
	c.transition(StateUnauthenticated, nil)
}

func (c *Controller) currentEpoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

func (c *Controller) transition(to State, sess *session.Session) {
	c.mu.Lock()
	c.state = to
	c.current = sess
	handlers := make([]func(State), len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(to)
	}
}
