// Package qweather implements the weather data-access layer against the
// QWeather city lookup, current conditions, 3-day forecast and life index
// endpoints. Every operation follows the same shape: serve from cache when
// fresh, otherwise fetch with retries, check the application code, validate,
// cache and return.
package qweather

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"weatherdesk/internal/cache"
	"weatherdesk/internal/core"
)

// Default endpoint hosts.
const (
	DefaultGeoBaseURL = "https://geoapi.qweather.com"
	DefaultBaseURL    = "https://devapi.qweather.com"
	DefaultLang       = "zh"
	DefaultUnit       = "m"
)

const (
	cityLookupPath = "/v2/city/lookup"
	weatherNowPath = "/v7/weather/now"
	forecastPath   = "/v7/weather/3d"
	indicesPath    = "/v7/indices/1d"
)

// successCode is the application-level code of a successful response.
const successCode = "200"

var validate = validator.New()

// Fetcher retrieves a JSON document. *fetch.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, params url.Values) (json.RawMessage, error)
}

// Config holds the upstream connection settings.
type Config struct {
	APIKey     string
	GeoBaseURL string
	BaseURL    string
	Lang       string
	Unit       string
}

// Hooks receives cache and upstream notifications. Nil fields are skipped.
type Hooks struct {
	OnCacheLookup   func(namespace string, hit bool)
	OnUpstreamError func(namespace string, code string)
}

// Option configures a Provider.
type Option func(*Provider)

// WithHooks installs observability hooks.
func WithHooks(h Hooks) Option {
	return func(p *Provider) { p.hooks = h }
}

// WithLogger sets the provider's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// Provider implements core.Provider.
type Provider struct {
	config  Config
	cache   cache.Store
	fetcher Fetcher
	hooks   Hooks
	logger  *slog.Logger
	group   singleflight.Group
}

var _ core.Provider = (*Provider)(nil)

// New creates a Provider. Empty config fields take the package defaults.
func New(cfg Config, store cache.Store, fetcher Fetcher, opts ...Option) *Provider {
	if cfg.GeoBaseURL == "" {
		cfg.GeoBaseURL = DefaultGeoBaseURL
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Lang == "" {
		cfg.Lang = DefaultLang
	}
	if cfg.Unit == "" {
		cfg.Unit = DefaultUnit
	}
	cfg.GeoBaseURL = strings.TrimRight(cfg.GeoBaseURL, "/")
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	p := &Provider{
		config:  cfg,
		cache:   store,
		fetcher: fetcher,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// load serves (namespace, key) from the cache when a fresh entry passes
// check, and otherwise runs fetch and caches its result. Concurrent misses
// for the same entry share one fetch.
func load[T any](ctx context.Context, p *Provider, namespace, key string, check func(T) error, fetch func(context.Context) (T, error)) (T, error) {
	if cached, ok := lookup(ctx, p, namespace, key, check); ok {
		p.cacheLookup(namespace, true)
		return cached, nil
	}
	p.cacheLookup(namespace, false)

	// The shared fetch outlives a caller that gives up; each attempt is
	// still bounded by the fetcher's own deadline.
	shared := context.WithoutCancel(ctx)
	ch := p.group.DoChan(namespace+"/"+key, func() (any, error) {
		// A fetch that finished between our miss and joining the group has
		// already refreshed the entry.
		if cached, ok := lookup(shared, p, namespace, key, check); ok {
			return cached, nil
		}
		value, err := fetch(shared)
		if err != nil {
			return value, err
		}
		if err := check(value); err != nil {
			if core.KindOf(err) != "" {
				return value, err
			}
			return value, core.NewUpstreamError(successCode, "malformed "+namespace+" payload: "+err.Error())
		}
		p.cache.Put(shared, namespace, key, value)
		return value, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, core.NewTimeoutError("", ctx.Err())
		}
		return zero, core.NewNetworkError("request canceled", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func lookup[T any](ctx context.Context, p *Provider, namespace, key string, check func(T) error) (T, bool) {
	var cached T
	raw, ok := p.cache.Get(ctx, namespace, key)
	if !ok {
		return cached, false
	}
	if err := json.Unmarshal(raw, &cached); err != nil || check(cached) != nil {
		p.logger.Debug("discarding unusable cache entry", "namespace", namespace, "key", key)
		var zero T
		return zero, false
	}
	return cached, true
}

// get issues a request and decodes the envelope into out.
func (p *Provider) get(ctx context.Context, rawURL string, params url.Values, out any) error {
	params.Set("key", p.config.APIKey)
	body, err := p.fetcher.Fetch(ctx, rawURL, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return core.NewUpstreamError("", "failed to decode response: "+err.Error())
	}
	return nil
}

func (p *Provider) cacheLookup(namespace string, hit bool) {
	if p.hooks.OnCacheLookup != nil {
		p.hooks.OnCacheLookup(namespace, hit)
	}
}

func (p *Provider) upstreamError(namespace, code string) {
	if p.hooks.OnUpstreamError != nil {
		p.hooks.OnUpstreamError(namespace, code)
	}
}

// codeMessages describes the documented application codes.
var codeMessages = map[string]string{
	"204": "no data for the requested location",
	"400": "invalid request parameters",
	"401": "authentication failed, check the API key",
	"402": "request quota exceeded",
	"403": "access denied",
	"404": "location not found",
	"429": "too many requests",
	"500": "upstream service timeout",
}

// describeCode returns message, or a description of code when message is empty.
func describeCode(code, message string) string {
	if message != "" {
		return message
	}
	if desc, ok := codeMessages[code]; ok {
		return desc
	}
	return ""
}
