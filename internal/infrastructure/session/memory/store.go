package memory

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/infrastructure/session"
)

// Store keeps encoded sessions in process memory. Each Load decodes a fresh
// copy, so callers never share a *domain.Session. Saves follow the same
// version check as the Redis store.
type Store struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	cleanup := ttl / 6
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &Store{cache: cache.New(ttl, cleanup)}
}

func (s *Store) Load(_ context.Context, id string) (*domain.Session, error) {
	x, found := s.cache.Get(id)
	if !found {
		return nil, session.NotFound(id)
	}
	raw, ok := x.([]byte)
	if !ok {
		return nil, session.NotFound(id)
	}
	return session.Decode(raw)
}

func (s *Store) Save(_ context.Context, sess *domain.Session) error {
	raw, version, err := session.Next(sess)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if x, found := s.cache.Get(sess.ID); found {
		if current, ok := x.([]byte); ok {
			stored, err := session.StoredVersion(current)
			if err != nil {
				return err
			}
			if stored != sess.Version {
				return session.Conflict(sess.ID)
			}
		}
	}
	s.cache.Set(sess.ID, raw, cache.DefaultExpiration)
	sess.Version = version
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}

func (s *Store) Len() int {
	return s.cache.ItemCount()
}
