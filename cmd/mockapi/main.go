// Usagedeck Mock API - local stand-in for the Usagedeck backend.
//
// Serves the subset of the backend the console talks to, with fixed users
// and generated analytics, so the console can be developed and demoed
// without access to a real deployment:
//
//	go run ./cmd/mockapi -addr 127.0.0.1:9080
//	USAGEDECK_BACKEND_URL=http://127.0.0.1:9080 go run ./cmd/usagedeck
//
// Tokens are real HS256 JWTs with a process-local random secret, so a
// restart invalidates every outstanding session, exercising the console's
// expiry handling.
package main

import (
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/usagedeck/usagedeck-console/internal/infrastructure/config"
	"github.com/usagedeck/usagedeck-console/internal/infrastructure/logging"
)

// tokenTTL is the lifetime of issued JWTs.
const tokenTTL = time.Hour

// mockUser is a fixed development account.
type mockUser struct {
	Password     string
	UserID       string
	FullName     string
	Role         string
	CustomerID   string
	CustomerName string
}

// users covers both tenants and all three roles.
var users = map[string]mockUser{
	"ana@acme.test": {
		Password: "password", UserID: "u-ana", FullName: "Ana Torres",
		Role: "ADMIN", CustomerID: "cust-acme", CustomerName: "Acme Corp",
	},
	"sam@acme.test": {
		Password: "password", UserID: "u-sam", FullName: "Sam Reed",
		Role: "USER", CustomerID: "cust-acme", CustomerName: "Acme Corp",
	},
	"gil@globex.test": {
		Password: "password", UserID: "u-gil", FullName: "Gil Mora",
		Role: "USER", CustomerID: "cust-globex", CustomerName: "Globex Ltd",
	},
	"root@usagedeck.test": {
		Password: "password", UserID: "u-root", FullName: "Platform Operator",
		Role: "SUPERADMIN", CustomerID: "", CustomerName: "",
	},
}

var customers = []map[string]string{
	{"id": "cust-acme", "name": "Acme Corp"},
	{"id": "cust-globex", "name": "Globex Ltd"},
}

type mockServer struct {
	secret []byte
	log    *logging.Logger
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9080", "listen address")
	flag.Parse()

	log := logging.New(config.LoggingConfig{Level: "debug", Format: "text", Output: "stdout"}, "mockapi")

	secret := make([]byte, 32)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(secret)

	s := &mockServer{secret: secret, log: log}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)
		r.Get("/auth/me", s.handleMe)
		r.Get("/analytics/usage", s.handleUsage)
		r.Get("/analytics/customers", s.handleCustomers)
	})

	log.Info("mock backend listening", "address", *addr, "users", len(users))
	if err := http.ListenAndServe(*addr, r); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (s *mockServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, ok := users[strings.ToLower(req.Email)]
	if !ok || user.Password != req.Password {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	claims := jwt.MapClaims{
		"sub":  user.UserID,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(tokenTTL).Unix(),
		"role": user.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	s.log.Info("login", "email", req.Email, "role", user.Role)

	writeJSON(w, http.StatusOK, map[string]any{
		"token":        signed,
		"tokenType":    "Bearer",
		"userId":       user.UserID,
		"email":        strings.ToLower(req.Email),
		"fullName":     user.FullName,
		"role":         user.Role,
		"customerId":   user.CustomerID,
		"customerName": user.CustomerName,
		"expiresIn":    int64(tokenTTL.Seconds()),
	})
}

func (s *mockServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Stateless tokens; logout only acknowledges.
	if _, ok := s.authenticate(r); !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *mockServer) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":       user.UserID,
		"email":        emailOf(user),
		"fullName":     user.FullName,
		"role":         user.Role,
		"customerId":   user.CustomerID,
		"customerName": user.CustomerName,
	})
}

// handleUsage returns generated analytics. The payload is deliberately
// sparse on some fields so the console's defaulting paths get exercised
// during development.
func (s *mockServer) handleUsage(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	q := r.URL.Query()
	customerID := q.Get("customerId")
	if user.Role != "SUPERADMIN" && customerID != user.CustomerID {
		writeError(w, http.StatusForbidden, "customer scope not permitted")
		return
	}

	// Scale figures by the window length so range switches are visible.
	days := int64(30)
	if start, err := time.Parse("2006-01-02", q.Get("startDate")); err == nil {
		if end, err := time.Parse("2006-01-02", q.Get("endDate")); err == nil {
			days = int64(end.Sub(start).Hours()/24) + 1
		}
	}

	requests := days * constPerDay(customerID)

	writeJSON(w, http.StatusOK, map[string]any{
		"totalRequests": requests,
		"totalTokens":   requests * 1200,
		"totalCost":     float64(requests) * 0.0042,
		"requestsByVendor": map[string]int64{
			"anthropic": requests * 6 / 10,
			"openai":    requests * 3 / 10,
			"google":    requests / 10,
		},
		"requestsByModel": map[string]int64{
			"claude-sonnet-4-5": requests / 2,
			"gpt-4o":            requests / 4,
		},
		"timeSeries": timeSeries(q.Get("startDate"), days, constPerDay(customerID)),
	})
}

func (s *mockServer) handleCustomers(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	if user.Role != "SUPERADMIN" {
		writeError(w, http.StatusForbidden, "superadmin required")
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

// authenticate validates the bearer token and resolves the mock user.
func (s *mockServer) authenticate(r *http.Request) (mockUser, bool) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return mockUser{}, false
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return mockUser{}, false
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return mockUser{}, false
	}
	for _, u := range users {
		if u.UserID == sub {
			return u, true
		}
	}
	return mockUser{}, false
}

func emailOf(user mockUser) string {
	for email, u := range users {
		if u.UserID == user.UserID {
			return email
		}
	}
	return ""
}

// constPerDay gives each tenant a distinct daily volume.
func constPerDay(customerID string) int64 {
	switch customerID {
	case "cust-globex":
		return 40
	case "cust-acme":
		return 110
	default: // all tenants combined
		return 150
	}
}

func timeSeries(startDate string, days, perDay int64) []map[string]any {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		start = time.Now().UTC().AddDate(0, 0, -int(days))
	}

	points := make([]map[string]any, 0, days)
	for i := int64(0); i < days; i++ {
		// Small deterministic wobble so charts are not flat lines.
		n := perDay + (i%7)*3 - 9
		points = append(points, map[string]any{
			"date":     start.AddDate(0, 0, int(i)).Format("2006-01-02"),
			"requests": n,
			"tokens":   n * 1200,
			"cost":     float64(n) * 0.0042,
		})
	}
	return points
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write to response
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"message": message},
	})
}
