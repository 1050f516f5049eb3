package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/usagedeck/usagedeck-console/internal/infrastructure/logging"
	"github.com/usagedeck/usagedeck-console/internal/session"
)

// Transport is an http.RoundTripper that authorises outgoing backend
// requests. It reads the current session from the store on every request,
// so a login or logout between two requests is always reflected.
//
// Thread Safety:
//   - Safe for concurrent use from multiple goroutines.
type Transport struct {
	// Base performs the actual request. Defaults to http.DefaultTransport.
	Base http.RoundTripper

	// Sessions supplies the bearer credential. Required.
	Sessions session.Store

	// Limiter throttles outgoing requests. Optional.
	Limiter *rate.Limiter

	// OnUnauthorized is invoked at most once per rejection burst when the
	// backend answers 401. The flag is re-armed by the next success.
	// Optional.
	OnUnauthorized func()

	Logger *logging.Logger

	// unauthorized is set on a 401 and cleared by the next success so that
	// a burst of concurrent rejections notifies only once.
	unauthorized atomic.Bool
}

// ctxKey is a private type for the transport's context markers.
type ctxKey int

const (
	ctxKeyCredentialExchange ctxKey = iota
	ctxKeyTokenOverride
)

// MarkCredentialExchange flags a request that trades user credentials for a
// new session. A 401 on such a request means the submitted credentials were
// rejected, not that the stored session expired, so the transport leaves
// the stored session and the unauthorized hook alone.
func MarkCredentialExchange(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeyCredentialExchange, true)
}

func isCredentialExchange(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKeyCredentialExchange).(bool)
	return v
}

// WithToken pins the bearer token for requests carrying this context,
// bypassing the store. Teardown calls use it to authenticate after the
// local session row is already gone.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxKeyTokenOverride, token)
}

func tokenOverride(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyTokenOverride).(string)
	return v, ok
}

// RoundTrip implements http.RoundTripper.
//
// On 401 the current session is cleared before the response is returned to
// the caller, so no later request can reuse the rejected credential. The
// 401 response itself is passed through untouched. Requests marked as a
// credential exchange are exempt: their 401 is a validation failure for the
// caller alone and changes no local state.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	// Per-request credential read. RoundTrippers must not mutate the
	// original request, so clone before attaching the header.
	if token, ok := tokenOverride(ctx); ok {
		if token != "" {
			req = req.Clone(ctx)
			req.Header.Set("Authorization", "Bearer "+token)
		}
	} else {
		sess, err := t.Sessions.Get(ctx)
		if err == nil && sess.Token != "" {
			req = req.Clone(ctx)
			req.Header.Set("Authorization", "Bearer "+sess.Token)
		} else if err != nil && !errors.Is(err, session.ErrNoSession) {
			return nil, err
		}
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if !isCredentialExchange(ctx) {
			t.handleUnauthorized(req)
		}
	} else {
		t.unauthorized.Store(false)
	}

	return resp, nil
}

func (t *Transport) handleUnauthorized(req *http.Request) {
	if err := t.Sessions.Clear(req.Context()); err != nil && t.Logger != nil {
		t.Logger.Error("failed to clear session after 401", "error", err)
	}

	if t.unauthorized.CompareAndSwap(false, true) {
		if t.Logger != nil {
			t.Logger.Warn("backend rejected credential", "path", req.URL.Path)
		}
		if t.OnUnauthorized != nil {
			t.OnUnauthorized()
		}
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
