// Package fetch issues GET requests against JSON APIs with a bounded number
// of attempts, a fixed delay between attempts and a per-attempt timeout.
package fetch

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"weatherdesk/internal/core"
	"weatherdesk/internal/httpclient"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// Config holds the retry budget of a Fetcher.
type Config struct {
	// MaxAttempts is the total number of attempts per call (default: 3)
	MaxAttempts int
	// RetryDelay is the fixed pause between attempts (default: 1s)
	RetryDelay time.Duration
	// Timeout bounds a single attempt (default: 5s)
	Timeout time.Duration
}

// DefaultConfig returns the default retry budget.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		RetryDelay:  time.Second,
		Timeout:     5 * time.Second,
	}
}

// Outcome labels the result of a single attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeTimeout Outcome = "timeout"
	OutcomeNetwork Outcome = "network_error"
	OutcomeStatus  Outcome = "http_status"
)

// Hooks receives per-attempt notifications. Nil fields are skipped.
type Hooks struct {
	OnAttempt func(endpoint string, attempt int, outcome Outcome, duration time.Duration)
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHooks installs observability hooks.
func WithHooks(h Hooks) Option {
	return func(f *Fetcher) { f.hooks = h }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.httpClient = c
		}
	}
}

// Fetcher performs retrying JSON GETs. It is safe for concurrent use.
type Fetcher struct {
	httpClient *http.Client
	config     Config
	hooks      Hooks
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a Fetcher. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config, opts ...Option) *Fetcher {
	def := DefaultConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	f := &Fetcher{
		httpClient: httpclient.NewDefaultHTTPClient(),
		config:     cfg,
		logger:     slog.Default(),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Config returns the effective retry budget.
func (f *Fetcher) Config() Config {
	return f.config
}

// Fetch GETs rawURL with params and returns the decoded JSON body of a 200
// response. Timeouts and transport failures are retried up to MaxAttempts;
// any non-200 status is terminal. Errors are *core.WeatherError values.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, params url.Values) (json.RawMessage, error) {
	target, err := buildURL(rawURL, params)
	if err != nil {
		return nil, core.NewInvalidInputError("invalid request URL: " + err.Error())
	}
	endpoint := endpointLabel(target)

	var lastErr error
	for attempt := 1; attempt <= f.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := f.sleep(ctx, f.config.RetryDelay); err != nil {
				return nil, contextError(err)
			}
		}

		start := time.Now()
		body, err := f.attempt(ctx, target)
		outcome := classify(err)
		if f.hooks.OnAttempt != nil {
			f.hooks.OnAttempt(endpoint, attempt, outcome, time.Since(start))
		}

		if err == nil {
			return body, nil
		}
		if outcome == OutcomeStatus {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, contextError(ctx.Err())
		}

		lastErr = err
		if attempt < f.config.MaxAttempts {
			f.logger.Debug("fetch attempt failed, retrying",
				"endpoint", endpoint,
				"attempt", attempt,
				"max_attempts", f.config.MaxAttempts,
				"error", err,
				"request_id", core.GetRequestID(ctx),
			)
		}
	}

	f.logger.Warn("fetch failed after all attempts",
		"endpoint", endpoint,
		"attempts", f.config.MaxAttempts,
		"error", lastErr,
		"request_id", core.GetRequestID(ctx),
	)
	return nil, lastErr
}

// attempt performs a single GET under its own deadline.
func (f *Fetcher) attempt(ctx context.Context, target string) (json.RawMessage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		err = withoutURL(err)
		return nil, core.NewNetworkError("failed to create request: "+err.Error(), err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br, gzip")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, core.NewHTTPStatusError(resp.StatusCode)
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, transportError(err)
	}
	if !json.Valid(body) {
		return nil, core.NewNetworkError("response is not valid JSON", nil)
	}
	return json.RawMessage(body), nil
}

// readBody reads the response, undoing any content encoding the server applied.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip body: %w", err)
		}
		defer func() {
			_ = gz.Close()
		}()
		reader = gz
	}
	return io.ReadAll(io.LimitReader(reader, maxBodyBytes))
}

func transportError(err error) error {
	err = withoutURL(err)
	if isTimeout(err) {
		return core.NewTimeoutError("", err)
	}
	return core.NewNetworkError(err.Error(), err)
}

// withoutURL unwraps a *url.Error, whose text embeds the full request URL
// and with it the API key.
func withoutURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// contextError maps cancellation of the caller's context.
func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewTimeoutError("", err)
	}
	return core.NewNetworkError("request canceled", err)
}

func classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	switch core.KindOf(err) {
	case core.ErrorKindTimeout:
		return OutcomeTimeout
	case core.ErrorKindUpstream:
		return OutcomeStatus
	default:
		return OutcomeNetwork
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func buildURL(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute URL", rawURL)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// endpointLabel returns host+path, which never carries the API key.
func endpointLabel(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return "unknown"
	}
	return u.Host + u.Path
}
