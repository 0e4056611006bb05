// Package cache provides the namespaced, time-boxed cache in front of the
// weather endpoints. Backends are a local directory of JSON files and Redis.
//
// Caching is best-effort: a Store never returns read or write failures to its
// caller. Unreadable, malformed or expired records are reported as misses and
// failed writes are logged and dropped.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// TTL is how long an entry stays valid after it was written. It is uniform
// across namespaces.
const TTL = 1800 * time.Second

// Namespaces used by the weather provider.
const (
	NamespaceCity     = "city"
	NamespaceWeather  = "weather"
	NamespaceForecast = "forecast"
	NamespaceIndex    = "index"
)

// Namespaces lists every namespace the provider writes.
var Namespaces = []string{NamespaceCity, NamespaceWeather, NamespaceForecast, NamespaceIndex}

// Store defines the interface for cache storage.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the payload stored for (namespace, key) if it exists and
	// is no older than TTL.
	Get(ctx context.Context, namespace, key string) (json.RawMessage, bool)

	// Put stores payload for (namespace, key) stamped with the current time,
	// replacing any previous entry.
	Put(ctx context.Context, namespace, key string, payload any)

	// Clear removes every entry in the known namespaces.
	Clear(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Option configures a Store.
type Option func(*options)

type options struct {
	now    func() time.Time
	logger *slog.Logger
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock overrides the wall clock used for stamping and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger used for dropped writes and unreadable records.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
