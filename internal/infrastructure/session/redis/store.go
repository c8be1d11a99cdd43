package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/support-assistant/internal/infrastructure/session"
)

// Store keeps sessions in Redis with a sliding TTL refreshed on every save.
// Saves are compare-and-set on the session version, so replicas sharing one
// Redis cannot overwrite each other's turns.
type Store struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
	exec   *resilience.Executor
}

func NewFromURL(url string, ttl time.Duration) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := goredis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, ttl), nil
}

func New(rdb goredis.UniversalClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{
		rdb:    rdb,
		prefix: session.DefaultKeyPrefix,
		ttl:    ttl,
		exec:   resilience.NewExecutor(resilience.StoreConfig(2 * time.Second)),
	}
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

func (s *Store) Load(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := resilience.Call(ctx, s.exec, "redis.session.get", func(attemptCtx context.Context) ([]byte, error) {
		return s.rdb.Get(attemptCtx, s.key(id)).Bytes()
	}, classifyRedisError)
	if errors.Is(err, goredis.Nil) {
		return nil, session.NotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	return session.Decode(raw)
}

func (s *Store) Save(ctx context.Context, sess *domain.Session) error {
	raw, version, err := session.Next(sess)
	if err != nil {
		return err
	}
	key := s.key(sess.ID)
	err = s.exec.Execute(ctx, "redis.session.set", func(attemptCtx context.Context) error {
		return s.rdb.Watch(attemptCtx, func(tx *goredis.Tx) error {
			if err := checkVersion(attemptCtx, tx, key, sess.Version); err != nil {
				return err
			}
			_, err := tx.TxPipelined(attemptCtx, func(pipe goredis.Pipeliner) error {
				pipe.Set(attemptCtx, key, raw, s.ttl)
				return nil
			})
			return err
		}, key)
	}, classifyRedisError)
	if isConflict(err) {
		return session.Conflict(sess.ID)
	}
	if err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	sess.Version = version
	return nil
}

// A missing key accepts any version: the session expired or was never saved.
func checkVersion(ctx context.Context, tx *goredis.Tx, key string, expected int64) error {
	current, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	stored, err := session.StoredVersion(current)
	if err != nil {
		return err
	}
	if stored != expected {
		return session.ErrConflict
	}
	return nil
}

func isConflict(err error) bool {
	return errors.Is(err, session.ErrConflict) || errors.Is(err, goredis.TxFailedErr)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// A missing key or a lost version race is a normal outcome and must not trip
// the breaker.
func classifyRedisError(err error) resilience.ErrorClassification {
	if errors.Is(err, goredis.Nil) || isConflict(err) {
		return resilience.ErrorClassification{}
	}
	return resilience.ClassifyTransient(err)
}
