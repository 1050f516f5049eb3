package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/usagedeck/usagedeck-console/internal/analytics"
	"github.com/usagedeck/usagedeck-console/internal/gateway"
)

// maxErrorBody caps how much of an error response body is read when
// decoding the backend's error envelope.
const maxErrorBody = 64 * 1024

// APIError is a non-2xx answer from the backend. Status is the HTTP status
// code; Message is the backend's human-readable explanation, falling back
// to the standard status text when the body carried none.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: %d %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the backend, however
// deeply wrapped.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the backend's answer to a successful login.
type LoginResponse struct {
	Token        string `json:"token"`
	TokenType    string `json:"tokenType"`
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	FullName     string `json:"fullName"`
	Role         string `json:"role"`
	CustomerID   string `json:"customerId"`
	CustomerName string `json:"customerName"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Profile is the backend's view of the authenticated user, from
// GET /api/auth/me.
type Profile struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	FullName     string `json:"fullName"`
	Role         string `json:"role"`
	CustomerID   string `json:"customerId"`
	CustomerName string `json:"customerName"`
}

// Customer is one tenant, from the superadmin-only customer listing.
type Customer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client talks to the Usagedeck backend API.
//
// Thread Safety:
//   - Safe for concurrent use from multiple goroutines.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a backend client. httpClient should carry the gateway
// transport so requests are authorised and rate limited; nil falls back to
// a plain client with a 30 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Login exchanges credentials for a session. The request is marked as a
// credential exchange so a 401 here reads as rejected credentials for the
// caller, not as an expired stored session.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	ctx = gateway.MarkCredentialExchange(ctx)
	err := c.do(ctx, http.MethodPost, "/api/auth/login", LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout tells the backend to invalidate the current token. A failure here
// is reported but not fatal; the local session is cleared regardless by the
// caller.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// Me fetches the profile for the current credential. Used to validate a
// restored session against the backend.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Usage fetches aggregated usage figures for the query's window and scope.
// The response arrives sparse; callers normalise it before display.
func (c *Client) Usage(ctx context.Context, q analytics.Query) (*analytics.UsageResponse, error) {
	params := url.Values{}
	params.Set("startDate", q.StartDate.Format("2006-01-02"))
	params.Set("endDate", q.EndDate.Format("2006-01-02"))
	if q.Period != "" {
		params.Set("period", q.Period)
	}
	if q.CustomerID != "" {
		params.Set("customerId", q.CustomerID)
	}
	if q.UserID != "" {
		params.Set("userId", q.UserID)
	}
	if q.Vendor != "" {
		params.Set("vendor", q.Vendor)
	}

	var out analytics.UsageResponse
	if err := c.do(ctx, http.MethodGet, "/api/analytics/usage?"+params.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Customers lists all tenants. The backend enforces SUPERADMIN on this
// route; lower roles receive a 403.
func (c *Client) Customers(ctx context.Context) ([]Customer, error) {
	var out []Customer
	if err := c.do(ctx, http.MethodGet, "/api/analytics/customers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError builds an *APIError from a non-2xx response. The backend's
// error envelope is {"error": {"code": ..., "message": ...}}; bodies that
// do not match it still yield a usable error.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if json.Unmarshal(buf, &envelope) == nil {
		if envelope.Error.Message != "" {
			apiErr.Message = envelope.Error.Message
		} else {
			apiErr.Message = envelope.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
