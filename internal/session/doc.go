// Package session holds the authenticated identity and credential for the
// current Usagedeck login.
//
// At most one session exists at a time: a new login overwrites the prior one,
// and logout or a backend rejection removes it entirely. The session survives
// process restarts via a SQLite-backed store so the console does not demand a
// fresh login on every launch.
//
// The credential (bearer token) is opaque — it is attached to outbound
// requests by the gateway and never parsed locally.
//
// Atomicity: credential and identity are written and cleared together. A row
// missing either half is reported as "no session", never as a partial login.
package session
