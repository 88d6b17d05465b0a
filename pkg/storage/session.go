package storage

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Session is a session-scoped store. Entries optionally expire after an idle
// period; Clear drops everything, like a browser starting a new tab session.
type Session struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewSession creates a session store. A zero ttl keeps entries until Clear.
func NewSession(ttl time.Duration) *Session {
	expiration := cache.NoExpiration
	cleanup := 10 * time.Minute

	if ttl > 0 {
		expiration = ttl
		cleanup = ttl
	}

	return &Session{
		cache: cache.New(expiration, cleanup),
		ttl:   expiration,
	}
}

func (s *Session) Get(_ context.Context, key string) (string, error) {
	value, found := s.cache.Get(key)
	if !found {
		return "", ErrNotFound
	}

	str, ok := value.(string)
	if !ok {
		return "", ErrNotFound
	}

	return str, nil
}

func (s *Session) Set(_ context.Context, key, value string) error {
	s.cache.Set(key, value, cache.DefaultExpiration)

	return nil
}

func (s *Session) Remove(_ context.Context, key string) error {
	s.cache.Delete(key)

	return nil
}

// Clear ends the session.
func (s *Session) Clear() {
	s.cache.Flush()
}
