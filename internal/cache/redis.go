package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix is prepended to every key written to Redis.
const DefaultRedisPrefix = "weatherdesk:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379/0")
	URL string

	// Prefix namespaces keys inside a shared Redis (defaults to "weatherdesk:")
	Prefix string
}

// RedisStore implements Store on Redis, for several shell instances sharing
// one cache. Records carry the same JSON shape as the file backend and also
// expire server-side after TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	opts   options
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, opts ...Option) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	store := NewRedisStoreWithClient(client, cfg.Prefix, opts...)
	store.opts.logger.Info("redis cache connected", "prefix", store.prefix)
	return store, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, opts ...Option) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		opts:   buildOptions(opts),
	}
}

func (s *RedisStore) redisKey(namespace, key string) string {
	return s.prefix + namespace + ":" + key
}

// Get retrieves an entry. redis.Nil, connection errors and stale records are misses.
func (s *RedisStore) Get(ctx context.Context, namespace, key string) (json.RawMessage, bool) {
	raw, err := s.client.Get(ctx, s.redisKey(namespace, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.opts.logger.Warn("cache read failed", "namespace", namespace, "key", key, "error", err)
		}
		return nil, false
	}
	return decodeRecord(raw, s.opts.now())
}

// Put stores an entry with a server-side expiry of TTL.
func (s *RedisStore) Put(ctx context.Context, namespace, key string, payload any) {
	data, err := encodeRecord(s.opts.now(), payload)
	if err != nil {
		s.opts.logger.Warn("cache write dropped", "namespace", namespace, "key", key, "error", err)
		return
	}
	if err := s.client.Set(ctx, s.redisKey(namespace, key), data, TTL).Err(); err != nil {
		s.opts.logger.Warn("cache write dropped", "namespace", namespace, "key", key, "error", err)
	}
}

// Clear deletes every key under the known namespaces.
func (s *RedisStore) Clear(ctx context.Context) error {
	for _, ns := range Namespaces {
		iter := s.client.Scan(ctx, 0, s.prefix+ns+":*", 100).Iterator()
		var batch []string
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == 100 {
				if err := s.client.Del(ctx, batch...).Err(); err != nil {
					return fmt.Errorf("failed to clear redis cache: %w", err)
				}
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to scan redis cache: %w", err)
		}
		if len(batch) > 0 {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("failed to clear redis cache: %w", err)
			}
		}
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
