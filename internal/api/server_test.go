package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/usagedeck/usagedeck-console/internal/auth"
	"github.com/usagedeck/usagedeck-console/internal/backend"
	"github.com/usagedeck/usagedeck-console/internal/gateway"
	"github.com/usagedeck/usagedeck-console/internal/infrastructure/config"
	"github.com/usagedeck/usagedeck-console/internal/infrastructure/logging"
	"github.com/usagedeck/usagedeck-console/internal/session"
)

// fakeBackend is a minimal stand-in for the remote Usagedeck API.
// Tokens are opaque strings; "tok-valid" is the only accepted credential.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password != "correct" {
			w.WriteHeader(http.StatusUnauthorized)
			//nolint:errcheck // test fixture
			w.Write([]byte(`{"error": {"message": "invalid email or password"}}`))
			return
		}
		role := "USER"
		if strings.HasPrefix(req.Email, "admin") {
			role = "ADMIN"
		}
		if strings.HasPrefix(req.Email, "root") {
			role = "SUPERADMIN"
		}
		//nolint:errcheck // test fixture
		json.NewEncoder(w).Encode(map[string]any{
			"token":      "tok-valid",
			"tokenType":  "Bearer",
			"userId":     "u-1",
			"email":      req.Email,
			"role":       role,
			"customerId": "cust-acme",
			"expiresIn":  3600,
		})
	})

	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/analytics/usage", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-valid" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		// Deliberately partial payload; the normaliser fills the rest.
		//nolint:errcheck // test fixture
		json.NewEncoder(w).Encode(map[string]any{
			"totalRequests":    1000,
			"totalCost":        42.5,
			"requestsByVendor": map[string]int64{"anthropic": 750, "openai": 250},
		})
	})

	mux.HandleFunc("GET /api/analytics/customers", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-valid" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		//nolint:errcheck // test fixture
		json.NewEncoder(w).Encode([]map[string]string{
			{"id": "cust-acme", "name": "Acme"},
			{"id": "cust-globex", "name": "Globex"},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// testServer wires a full console stack against a fake backend and returns
// the router for direct handler testing.
func testServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()

	upstream := fakeBackend(t)

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
	store := session.NewMemoryStore()

	client := backend.New(upstream.URL, &http.Client{
		Transport: &gateway.Transport{Sessions: store, Logger: log},
	})
	controller := auth.NewController(store, client, log)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Refresh: config.RefreshConfig{FetchTimeout: 5},
		Logger:  log,
		Auth:    controller,
		Backend: client,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return srv, srv.buildRouter()
}

// login authenticates through the router and fails the test on error.
func login(t *testing.T, router http.Handler, email string) {
	t.Helper()

	body := strings.NewReader(`{"email": "` + email + `", "password": "correct"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin(t *testing.T) {
	srv, router := testServer(t)
	srv.auth.Restore(context.Background())

	login(t, router, "admin@acme.test")

	if srv.auth.State() != auth.StateAuthenticated {
		t.Errorf("state = %q, want authenticated", srv.auth.State())
	}
	sess := srv.auth.Session()
	if sess == nil || sess.Role != session.RoleAdmin {
		t.Errorf("unexpected session: %+v", sess)
	}
}

func TestHandleLogin_NeverLeaksToken(t *testing.T) {
	srv, router := testServer(t)
	srv.auth.Restore(context.Background())

	body := strings.NewReader(`{"email": "ana@acme.test", "password": "correct"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if strings.Contains(rec.Body.String(), "tok-valid") {
		t.Errorf("credential leaked in login response: %s", rec.Body.String())
	}
}

func TestHandleLogin_BadCredentials(t *testing.T) {
	srv, router := testServer(t)
	srv.auth.Restore(context.Background())

	body := strings.NewReader(`{"email": "ana@acme.test", "password": "wrong"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	var apiErr Error
	if err := json.Unmarshal(rec.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("response is not a structured error: %v", err)
	}
	if apiErr.Message != "invalid email or password" {
		t.Errorf("message = %q, want backend message passed through", apiErr.Message)
	}
	if srv.auth.State() != auth.StateUnauthenticated {
		t.Errorf("state = %q, want unauthenticated", srv.auth.State())
	}
}

func TestHandleLogin_MissingFields(t *testing.T) {
	srv, router := testServer(t)
	srv.auth.Restore(context.Background())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email": "a@b.test"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleLogout(t *testing.T) {
	srv, router := testServer(t)
	srv.auth.Restore(context.Background())
	login(t, router, "ana@acme.test")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if srv.auth.State() != auth.StateUnauthenticated {
		t.Errorf("state = %q, want unauthenticated", srv.auth.State())
	}
}

func TestHandleSession(t *testing.T) {
	srv, router := testServer(t)
	srv.auth.Restore(context.Background())
	login(t, router, "ana@acme.test")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp struct {
		State   string           `json:"state"`
		Session *session.Session `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding session response: %v", err)
	}
	if resp.State != string(auth.StateAuthenticated) {
		t.Errorf("state = %q, want authenticated", resp.State)
	}
	if resp.Session == nil || resp.Session.Email != "ana@acme.test" {
		t.Errorf("unexpected session payload: %+v", resp.Session)
	}
}

func TestGate_UnauthenticatedRedirectsToLogin(t *testing.T) {
	srv, router := testServer(t)
	srv.auth.Restore(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/usage?range=7days", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/login?from=") {
		t.Errorf("Location = %q, want /login?from=...", loc)
	}
	if !strings.Contains(loc, "usage") {
		t.Errorf("Location = %q, original location not remembered", loc)
	}
}

func TestGate_InitializingAnswersRetryable(t *testing.T) {
	_, router := testServer(t)
	// Restore deliberately not called: state is still initializing.

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/usage", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestGate_UnderPrivilegedRedirectsToRoot(t *testing.T) {
	srv, router := testServer(t)
	srv.auth.Restore(context.Background())
	login(t, router, "admin@acme.test") // ADMIN, not SUPERADMIN

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/customers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
}

func TestHandleUsage(t *testing.T) {
	srv, router := testServer(t)
	srv.auth.Restore(context.Background())
	login(t, router, "ana@acme.test")

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/usage?range=7days", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if snap.View == nil {
		t.Fatal("snapshot has no view")
	}
	if snap.View.TotalRequests != 1000 {
		t.Errorf("TotalRequests = %d, want 1000", snap.View.TotalRequests)
	}
	// Absent fields arrive fully defaulted.
	if snap.View.TimeSeries == nil || snap.View.RequestsByModel == nil {
		t.Error("view model not fully defaulted")
	}
	if snap.View.VendorShare["anthropic"] != 75 {
		t.Errorf("VendorShare[anthropic] = %v, want 75", snap.View.VendorShare["anthropic"])
	}
}

func TestHandleCustomers_Superadmin(t *testing.T) {
	srv, router := testServer(t)
	srv.auth.Restore(context.Background())
	login(t, router, "root@usagedeck.test")

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/customers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var customers []backend.Customer
	if err := json.Unmarshal(rec.Body.Bytes(), &customers); err != nil {
		t.Fatalf("decoding customers: %v", err)
	}
	if len(customers) != 2 {
		t.Errorf("got %d customers, want 2", len(customers))
	}
}

func TestHandleWSTicket(t *testing.T) {
	srv, router := testServer(t)
	srv.auth.Restore(context.Background())
	login(t, router, "ana@acme.test")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/ws-ticket", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Ticket string `json:"ticket"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding ticket: %v", err)
	}
	if resp.Ticket == "" {
		t.Fatal("empty ticket")
	}

	// Tickets are single-use.
	entry, ok := srv.tickets.consume(resp.Ticket)
	if !ok {
		t.Fatal("issued ticket did not validate")
	}
	if entry.userID != "u-1" {
		t.Errorf("ticket userID = %q, want u-1", entry.userID)
	}
	if _, ok := srv.tickets.consume(resp.Ticket); ok {
		t.Error("ticket validated twice")
	}
}

func TestHandleWebSocket_RequiresTicket(t *testing.T) {
	srv, router := testServer(t)
	srv.auth.Restore(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHubBroadcast_OnlyReachesSubscribers(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
	hub := NewHub(config.WebSocketConfig{}, log)

	subscribed := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 1),
		subscriptions: map[string]struct{}{ChannelAnalytics: {}},
	}
	other := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 1),
		subscriptions: map[string]struct{}{},
	}
	hub.Register(subscribed)
	hub.Register(other)

	hub.Broadcast(ChannelAnalytics, map[string]any{"hello": "world"})

	select {
	case data := <-subscribed.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("broadcast payload: %v", err)
		}
		if msg.EventType != ChannelAnalytics {
			t.Errorf("eventType = %q, want %q", msg.EventType, ChannelAnalytics)
		}
	default:
		t.Fatal("subscribed client received nothing")
	}

	select {
	case <-other.send:
		t.Error("unsubscribed client received a broadcast")
	default:
	}
}

func TestHubBroadcast_SurvivesConcurrentDisconnect(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
	hub := NewHub(config.WebSocketConfig{}, log)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 1),
		subscriptions: map[string]struct{}{ChannelAnalytics: {}},
		userID:        "u-1",
	}
	hub.Register(client)

	// A disconnect can land between the broadcast's client snapshot and
	// the send. Sending on the closed channel must not take down the
	// broadcasting goroutine.
	hub.Unregister(client)
	client.trySend([]byte(`{"type":"event"}`))

	hub.Broadcast(ChannelAnalytics, map[string]any{"hello": "world"})
}
