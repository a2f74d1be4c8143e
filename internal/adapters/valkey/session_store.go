package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samirrijal/geodash/internal/core/domain"
)

const (
	sessionPrefix   = "session:"
	principalPrefix = "principal-sessions:"
)

// SessionStore implements ports.SessionStore on top of a Cache. Sessions are
// stored as JSON and expire server side with the key TTL. A set per principal
// indexes its session ids; it lives at least as long as the newest session
// and may hold ids that already expired.
type SessionStore struct {
	cache *Cache
}

// NewSessionStore wraps c.
func NewSessionStore(c *Cache) *SessionStore {
	return &SessionStore{cache: c}
}

func (s *SessionStore) Save(ctx context.Context, sess *domain.Session, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("session ttl %s: %w", ttl, domain.ErrInvalidInput)
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.cache.setEx(ctx, sessionPrefix+sess.ID, data, ttl); err != nil {
		return err
	}
	if sess.PrincipalID == "" {
		return nil
	}
	return s.index(ctx, sess.PrincipalID, sess.ID, ttl)
}

func (s *SessionStore) index(ctx context.Context, principalID, id string, ttl time.Duration) error {
	c := s.cache.client
	key := principalPrefix + principalID
	res := c.DoMulti(ctx,
		c.B().Sadd().Key(key).Member(id).Build(),
		c.B().Pttl().Key(key).Build(),
	)
	if err := res[0].Error(); err != nil {
		return fmt.Errorf("valkey sadd %s: %w", key, err)
	}
	left, err := res[1].AsInt64()
	if err != nil {
		return fmt.Errorf("valkey pttl %s: %w", key, err)
	}
	if left >= ttl.Milliseconds() {
		return nil
	}
	if err := c.Do(ctx, c.B().Pexpire().Key(key).Milliseconds(ttl.Milliseconds()).Build()).Error(); err != nil {
		return fmt.Errorf("valkey pexpire %s: %w", key, err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	data, err := s.cache.Get(ctx, sessionPrefix+id)
	if err != nil {
		return nil, err
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// A corrupt entry is treated like a missing one so the user logs in again.
		_ = s.cache.Delete(ctx, sessionPrefix+id)
		return nil, errors.Join(domain.ErrNotFound, err)
	}
	return &sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, sessionPrefix+id)
}

// DeleteByPrincipal drops every indexed session of principalID except keepID.
// Ids whose session already expired are pruned from the index without being
// counted.
func (s *SessionStore) DeleteByPrincipal(ctx context.Context, principalID, keepID string) (int, error) {
	c := s.cache.client
	key := principalPrefix + principalID
	ids, err := c.Do(ctx, c.B().Smembers().Key(key).Build()).AsStrSlice()
	if err != nil {
		return 0, fmt.Errorf("valkey smembers %s: %w", key, err)
	}
	n := 0
	for _, id := range ids {
		if id == keepID {
			continue
		}
		res := c.DoMulti(ctx,
			c.B().Del().Key(sessionPrefix+id).Build(),
			c.B().Srem().Key(key).Member(id).Build(),
		)
		deleted, err := res[0].AsInt64()
		if err != nil {
			return n, fmt.Errorf("valkey del session: %w", err)
		}
		if err := res[1].Error(); err != nil {
			return n, fmt.Errorf("valkey srem %s: %w", key, err)
		}
		n += int(deleted)
	}
	return n, nil
}
