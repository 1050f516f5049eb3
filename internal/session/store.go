package session

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Store defines read/write/clear access to the single current session.
//
// Implementations must guarantee that Set and Clear are atomic with respect
// to Get: a reader never observes a credential without its identity or vice
// versa.
type Store interface {
	Set(ctx context.Context, s *Session) error
	Get(ctx context.Context) (*Session, error)
	Clear(ctx context.Context) error
}

// currentRow is the fixed primary key of the single session row.
// Writes replace it; there is never more than one session.
const currentRow = 1

// SQLiteStore persists the session in the console's local SQLite database so
// it survives restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed session store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Set stores the session, replacing any prior one. Credential and identity
// are written in a single statement so they are never observable apart.
func (s *SQLiteStore) Set(ctx context.Context, sess *Session) error {
	if sess == nil || sess.Token == "" || sess.UserID == "" {
		return fmt.Errorf("session requires a token and an identity")
	}

	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO session
		 (id, token, user_id, email, full_name, role, customer_id, customer_name, expires_in, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		currentRow, sess.Token, sess.UserID, sess.Email, sess.FullName,
		string(sess.Role), sess.CustomerID, sess.CustomerName, sess.ExpiresIn,
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// Get returns the current session, or ErrNoSession when none exists.
// A row missing either the token or the identity reads as absent.
func (s *SQLiteStore) Get(ctx context.Context) (*Session, error) {
	var sess Session
	var role, createdAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, email, full_name, role, customer_id, customer_name, expires_in, created_at
		 FROM session WHERE id = ?`, currentRow,
	).Scan(&sess.Token, &sess.UserID, &sess.Email, &sess.FullName,
		&role, &sess.CustomerID, &sess.CustomerName, &sess.ExpiresIn, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}

	if sess.Token == "" || sess.UserID == "" {
		return nil, ErrNoSession
	}

	sess.Role = ParseRole(role)
	sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &sess, nil
}

// Clear removes the session. Removing the row deletes credential and
// identity together.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM session WHERE id = ?", currentRow)
	if err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store for tests and ephemeral runs where
// persistence across restarts is not wanted.
type MemoryStore struct {
	mu   sync.RWMutex
	sess *Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Set stores a copy of the session.
func (m *MemoryStore) Set(_ context.Context, sess *Session) error {
	if sess == nil || sess.Token == "" || sess.UserID == "" {
		return fmt.Errorf("session requires a token and an identity")
	}
	cp := *sess
	m.mu.Lock()
	m.sess = &cp
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current session, or ErrNoSession.
func (m *MemoryStore) Get(_ context.Context) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sess == nil {
		return nil, ErrNoSession
	}
	cp := *m.sess
	return &cp, nil
}

// Clear removes the session.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.sess = nil
	m.mu.Unlock()
	return nil
}
