// Package memory holds in-process adapters for single-instance deployments
// and local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samirrijal/geodash/internal/core/domain"
)

type sessionEntry struct {
	session   domain.Session
	expiresAt time.Time
}

// SessionStore implements ports.SessionStore in memory. Sessions do not
// survive a restart and are not shared between replicas.
type SessionStore struct {
	mu      sync.RWMutex
	entries map[string]sessionEntry
	now     func() time.Time
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{entries: make(map[string]sessionEntry), now: time.Now}
}

func (s *SessionStore) Save(ctx context.Context, sess *domain.Session, ttl time.Duration) error {
	if ttl <= 0 {
		return domain.ErrInvalidInput
	}
	cp := *sess
	if sess.Geolocation != nil {
		g := *sess.Geolocation
		if g.Location != nil {
			loc := *g.Location
			g.Location = &loc
		}
		cp.Geolocation = &g
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sess.ID] = sessionEntry{session: cp, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		_ = s.Delete(ctx, id)
		return nil, domain.ErrNotFound
	}
	sess := entry.session
	return &sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// DeleteByPrincipal drops every session of principalID except keepID.
func (s *SessionStore) DeleteByPrincipal(ctx context.Context, principalID, keepID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entries {
		if id != keepID && e.session.PrincipalID == principalID {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

// Sweep drops expired sessions and returns how many were removed.
func (s *SessionStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (s *SessionStore) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}
