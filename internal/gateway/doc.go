// Package gateway provides the authorising HTTP transport used for every
// backend call. It attaches the current session's bearer token, enforces a
// client-side rate limit, and converts 401 responses into a session clear
// plus a single notification per rejection burst.
package gateway
