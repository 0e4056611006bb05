package cache

import (
	"context"
	"fmt"
)

// Backend types.
const (
	TypeLocal = "local"
	TypeRedis = "redis"
)

// Config selects and configures a backend.
type Config struct {
	// Type is "local" (default) or "redis".
	Type string
	// Dir is the directory of the local backend.
	Dir string
	// Redis configures the redis backend.
	Redis RedisConfig
}

// New creates the Store described by cfg.
func New(ctx context.Context, cfg Config, opts ...Option) (Store, error) {
	switch cfg.Type {
	case "", TypeLocal:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("cache directory is required for the local cache")
		}
		return NewLocalStore(cfg.Dir, opts...), nil
	case TypeRedis:
		if cfg.Redis.URL == "" {
			return nil, fmt.Errorf("redis URL is required for the redis cache")
		}
		return NewRedisStore(ctx, cfg.Redis, opts...)
	default:
		return nil, fmt.Errorf("unknown cache type: %s (valid: local, redis)", cfg.Type)
	}
}
