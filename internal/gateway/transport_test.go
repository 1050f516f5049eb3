package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"golang.org/x/time/rate"

	"github.com/usagedeck/usagedeck-console/internal/session"
)

func seededStore(t *testing.T, token string) session.Store {
	t.Helper()

	store := session.NewMemoryStore()
	err := store.Set(context.Background(), &session.Session{
		Token:  token,
		UserID: "user-1",
		Role:   session.RoleUser,
	})
	if err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
	return store
}

func TestTransport_AttachesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client := &http.Client{Transport: &Transport{Sessions: seededStore(t, "tok-abc")}}

	resp, err := client.Get(srv.URL + "/api/analytics/usage")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer tok-abc" {
		t.Errorf("Authorization = %q, want Bearer tok-abc", gotAuth)
	}
}

func TestTransport_NoSessionSendsNoHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client := &http.Client{Transport: &Transport{Sessions: session.NewMemoryStore()}}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty", gotAuth)
	}
}

func TestTransport_ReadsCredentialPerRequest(t *testing.T) {
	var headers []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = append(headers, r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	store := seededStore(t, "first")
	client := &http.Client{Transport: &Transport{Sessions: store}}

	resp, _ := client.Get(srv.URL)
	resp.Body.Close()

	if err := store.Set(context.Background(), &session.Session{Token: "second", UserID: "user-1"}); err != nil {
		t.Fatalf("failed to rotate token: %v", err)
	}

	resp, _ = client.Get(srv.URL)
	resp.Body.Close()

	want := []string{"Bearer first", "Bearer second"}
	for i, h := range headers {
		if h != want[i] {
			t.Errorf("request %d Authorization = %q, want %q", i, h, want[i])
		}
	}
}

func TestTransport_UnauthorizedClearsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := seededStore(t, "expired")
	notified := 0
	client := &http.Client{Transport: &Transport{
		Sessions:       store,
		OnUnauthorized: func() { notified++ },
	}}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	// Caller still sees the original 401.
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	if _, err := store.Get(context.Background()); err != session.ErrNoSession {
		t.Errorf("session survived a 401: err = %v", err)
	}
	if notified != 1 {
		t.Errorf("OnUnauthorized fired %d times, want 1", notified)
	}
}

func TestTransport_RejectedLoginLeavesSessionAlone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := seededStore(t, "tok-valid")
	notified := 0
	tr := &Transport{
		Sessions:       store,
		OnUnauthorized: func() { notified++ },
	}

	// A credential exchange answering 401 means the submitted credentials
	// were wrong, not that the stored session expired.
	ctx := MarkCredentialExchange(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/api/auth/login", nil)

	resp, err := tr.RoundTrip(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	sess, err := store.Get(context.Background())
	if err != nil || sess.Token != "tok-valid" {
		t.Errorf("stored session disturbed by rejected login: sess = %+v, err = %v", sess, err)
	}
	if notified != 0 {
		t.Errorf("OnUnauthorized fired %d times for a rejected login, want 0", notified)
	}
}

func TestTransport_WithTokenOverridesStore(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	// Store is empty, as after a logout; the pinned token still goes out.
	tr := &Transport{Sessions: session.NewMemoryStore()}

	ctx := WithToken(context.Background(), "tok-pinned")
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/api/auth/logout", nil)

	resp, err := tr.RoundTrip(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer tok-pinned" {
		t.Errorf("Authorization = %q, want Bearer tok-pinned", gotAuth)
	}
}

func TestTransport_NotifiesOncePerBurst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var mu sync.Mutex
	notified := 0
	client := &http.Client{Transport: &Transport{
		Sessions: seededStore(t, "expired"),
		OnUnauthorized: func() {
			mu.Lock()
			notified++
			mu.Unlock()
		},
	}}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Get(srv.URL)
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if notified != 1 {
		t.Errorf("OnUnauthorized fired %d times during burst, want 1", notified)
	}
}

func TestTransport_SuccessRearmsNotification(t *testing.T) {
	fail := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	store := session.NewMemoryStore()
	notified := 0
	client := &http.Client{Transport: &Transport{
		Sessions:       store,
		OnUnauthorized: func() { notified++ },
	}}

	do := func() {
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
	}

	do() // 401, notify
	fail = false
	do() // success, re-arm
	fail = true
	do() // 401 again, notify again

	if notified != 2 {
		t.Errorf("OnUnauthorized fired %d times, want 2", notified)
	}
}

func TestTransport_RespectsRateLimiterContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	// A limiter with no burst can never admit a request.
	tr := &Transport{
		Sessions: session.NewMemoryStore(),
		Limiter:  rate.NewLimiter(rate.Limit(1), 0),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if _, err := tr.RoundTrip(req); err == nil {
		t.Error("expected error from cancelled limiter wait")
	}
}
