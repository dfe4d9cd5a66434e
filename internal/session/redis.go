package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"

	// DefaultTTL expires idle sessions after a day. Reads and writes both
	// refresh it.
	DefaultTTL = 24 * time.Hour
)

// RedisStore persists sessions in Redis with a sliding TTL. Optimistic
// locking rides on WATCH/MULTI/EXEC so concurrent updates from different
// replicas conflict instead of overwriting each other.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A non-positive ttl falls back
// to DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	now := time.Now()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	sess.Version = 1

	val, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(sess.ID), val, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("creating session %s: %w", sess.ID, err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	val, err := s.client.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("unmarshaling session %s: %w", id, err)
	}

	// Sliding expiry; a failed refresh is not worth failing the read.
	_ = s.client.Expire(ctx, s.key(id), s.ttl).Err()

	return &sess, nil
}

func (s *RedisStore) Update(ctx context.Context, sess *Session) error {
	key := s.key(sess.ID)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading session %s: %w", sess.ID, err)
		}

		var stored Session
		if err := json.Unmarshal([]byte(val), &stored); err != nil {
			return fmt.Errorf("unmarshaling session %s: %w", sess.ID, err)
		}
		if stored.Version != sess.Version {
			return ErrVersionConflict
		}

		sess.Version++
		sess.UpdatedAt = time.Now()

		newVal, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("marshaling session %s: %w", sess.ID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return sessionKeyPrefix + id
}

var _ Store = (*RedisStore)(nil)
