// Package session owns the authentication session lifecycle: creation,
// validity, expiry, and teardown. Sessions live in an explicit store with
// expiry checked on read; there is no background sweep and no global state.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-extract-catalog/config"
	"github.com/aluiziolira/go-extract-catalog/distributor"
	"github.com/aluiziolira/go-extract-catalog/models"
	"github.com/aluiziolira/go-extract-catalog/workqueue"
)

// Credentials carries one portal login.
type Credentials struct {
	Email    string
	Password string
}

// Store maps distributor identifiers to their live session. Expired or
// invalidated sessions are dropped on read.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*models.AuthSession
	now      func() time.Time
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*models.AuthSession),
		now:      time.Now,
	}
}

// Get returns the live session for a distributor, or nil. An expired entry
// is removed as a side effect.
func (s *Store) Get(identifier string) *models.AuthSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[identifier]
	if !ok {
		return nil
	}
	if !sess.Alive(s.now()) {
		delete(s.sessions, identifier)
		return nil
	}
	return sess
}

// Put stores a session, replacing any prior one for the distributor.
func (s *Store) Put(sess *models.AuthSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Distributor] = sess
}

// Invalidate drops a distributor's session.
func (s *Store) Invalidate(identifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[identifier]; ok {
		sess.Valid = false
		delete(s.sessions, identifier)
	}
}

// Manager ensures a valid session exists before any listing or detail call.
// Authentication failures are surfaced immediately; retries for transient
// network failures during login belong to the work queue wrapping the call.
type Manager struct {
	store *Store
}

// NewManager builds a manager over a fresh store.
func NewManager() *Manager {
	return &Manager{store: NewStore()}
}

// EnsureSession returns the cached session when still valid, otherwise
// authenticates through the adapter under the queue's retry policy.
func (m *Manager) EnsureSession(ctx context.Context, profile *config.DistributorProfile, creds Credentials, adapter distributor.Adapter, queue *workqueue.Queue) (*models.AuthSession, error) {
	if cached := m.store.Get(profile.Identifier); cached != nil {
		slog.Debug("reusing cached session",
			slog.String("distributor", profile.Identifier),
			slog.Time("expires_at", cached.ExpiresAt),
		)
		return cached, nil
	}

	var sess *models.AuthSession
	err := queue.Do(ctx, "authenticate", func(ctx context.Context) error {
		var err error
		sess, err = adapter.Authenticate(ctx, creds.Email, creds.Password)
		return err
	})
	if err != nil {
		return nil, err
	}

	if sess.ExpiresAt.IsZero() {
		now := time.Now()
		sess.IssuedAt = now
		sess.ExpiresAt = now.Add(profile.SessionTTL)
		sess.Valid = true
	}
	m.store.Put(sess)

	slog.Info("authenticated",
		slog.String("distributor", profile.Identifier),
		slog.Time("expires_at", sess.ExpiresAt),
	)
	return sess, nil
}

// Invalidate drops the distributor's session, forcing re-auth on next use.
func (m *Manager) Invalidate(identifier string) {
	m.store.Invalidate(identifier)
}
