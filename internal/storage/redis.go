package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// maxUpdateAttempts bounds optimistic retries of Update under contention.
const maxUpdateAttempts = 10

// ErrUpdateConflict is returned when Update keeps losing to other writers.
var ErrUpdateConflict = errors.New("update conflict")

// RedisStore implements Store on a Redis server. All keys are namespaced
// under prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// OpenRedis connects to addr and verifies the connection with a PING.
func OpenRedis(ctx context.Context, addr string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisStore(client, prefix), nil
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

// Get fetches all keys with a single MGET.
func (s *RedisStore) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	return s.mget(ctx, s.client, keys)
}

func (s *RedisStore) mget(ctx context.Context, c redis.Cmdable, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	vals, err := c.MGet(ctx, s.keys(keys)...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}

	for i, v := range vals {
		switch val := v.(type) {
		case nil:
			// missing key
		case string:
			out[keys[i]] = []byte(val)
		default:
			return nil, fmt.Errorf("unexpected value type %T for %s", v, keys[i])
		}
	}

	return out, nil
}

func (s *RedisStore) keys(keys []string) []string {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	return full
}

// Set writes all values inside a MULTI/EXEC transaction.
func (s *RedisStore) Set(ctx context.Context, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, s.key(k), v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set: %w", err)
	}
	return nil
}

// Remove deletes keys with a single DEL.
func (s *RedisStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := s.client.Del(ctx, s.keys(keys)...).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

// Update watches keys, reads them and applies fn's Changes in a MULTI/EXEC
// that fails if any watched key changed meanwhile. A failed transaction is
// retried from the read, calling fn again.
func (s *RedisStore) Update(ctx context.Context, keys []string, fn UpdateFunc) error {
	txf := func(tx *redis.Tx) error {
		current, err := s.mget(ctx, tx, keys)
		if err != nil {
			return err
		}
		changes, err := fn(current)
		if err != nil {
			return err
		}
		if changes.Empty() {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for k, v := range changes.Set {
				pipe.Set(ctx, s.key(k), v, 0)
			}
			if len(changes.Remove) > 0 {
				pipe.Del(ctx, s.keys(changes.Remove)...)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, s.keys(keys)...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %d keys: %w", len(keys), ErrUpdateConflict)
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
