// Package app provides the main application struct for centralized dependency management
// and lifecycle control of weatherdesk.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"weatherdesk/config"
	"weatherdesk/internal/cache"
	"weatherdesk/internal/fetch"
	"weatherdesk/internal/httpclient"
	"weatherdesk/internal/observability"
	"weatherdesk/internal/qweather"
	"weatherdesk/internal/scheduler"
	"weatherdesk/internal/server"
	"weatherdesk/internal/service"
	"weatherdesk/internal/state"
)

const startupShutdownTimeout = 10 * time.Second

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config    *config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	cache     cache.Store
	state     *state.Result
	provider  *qweather.Provider
	service   *service.Service
	scheduler *scheduler.Scheduler
	server    *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig holds the loaded application configuration produced by config.Load.
	AppConfig *config.LoadResult

	// Logger is used by every component; nil uses slog.Default().
	Logger *slog.Logger
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if cfg.AppConfig.Config == nil {
		return nil, fmt.Errorf("app config contains nil Config")
	}

	appCfg := cfg.AppConfig.Config
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{
		config: appCfg,
		logger: logger,
	}

	for _, w := range cfg.AppConfig.Warnings {
		logger.Warn("configuration warning", "detail", w)
	}

	var fetchOpts []fetch.Option
	var providerOpts []qweather.Option
	if appCfg.Metrics.Enabled {
		app.registry = prometheus.NewRegistry()
		app.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		app.metrics = observability.NewMetrics(app.registry)
		fetchOpts = append(fetchOpts, fetch.WithHooks(app.metrics.FetchHooks()))
		providerOpts = append(providerOpts, qweather.WithHooks(app.metrics.ProviderHooks()))
	}

	store, err := cache.New(ctx, cache.Config{
		Type: appCfg.Cache.Type,
		Dir:  appCfg.Cache.Dir,
		Redis: cache.RedisConfig{
			URL:    appCfg.Cache.Redis.URL,
			Prefix: appCfg.Cache.Redis.Prefix,
		},
	}, cache.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	app.cache = store

	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = seconds(appCfg.HTTP.Timeout)
	clientCfg.ResponseHeaderTimeout = seconds(appCfg.HTTP.ResponseHeaderTimeout)

	fetchOpts = append(fetchOpts,
		fetch.WithHTTPClient(httpclient.NewHTTPClient(&clientCfg)),
		fetch.WithLogger(logger),
	)
	fetcher := fetch.New(fetch.Config{
		MaxAttempts: appCfg.Fetch.MaxAttempts,
		RetryDelay:  seconds(appCfg.Fetch.RetryDelay),
		Timeout:     seconds(appCfg.Fetch.Timeout),
	}, fetchOpts...)

	providerOpts = append(providerOpts, qweather.WithLogger(logger))
	app.provider = qweather.New(qweather.Config{
		APIKey:     appCfg.QWeather.APIKey,
		GeoBaseURL: appCfg.QWeather.GeoBaseURL,
		BaseURL:    appCfg.QWeather.BaseURL,
		Lang:       appCfg.QWeather.Lang,
		Unit:       appCfg.QWeather.Unit,
	}, store, fetcher, providerOpts...)

	stateResult, err := state.New(ctx, appCfg, logger)
	if err != nil {
		closeErr := store.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("failed to initialize state: %w (also: cache close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize state: %w", err)
	}
	app.state = stateResult

	app.service = service.New(app.provider, stateResult.Store, store, logger)

	if appCfg.Refresh.Enabled {
		var onResult func(error)
		if app.metrics != nil {
			onResult = app.metrics.RefreshResult
		}
		interval := time.Duration(appCfg.Refresh.Interval) * time.Minute
		app.scheduler = scheduler.New(app.service, interval, logger, onResult)
	}

	serverCfg := &server.Config{
		MasterKey:       appCfg.Server.MasterKey,
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		Logger:          logger,
	}
	if app.registry != nil {
		serverCfg.Gatherer = app.registry
	}
	app.server = server.New(app.service, serverCfg)

	return app, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Service returns the service layer shared by the CLI and the HTTP API.
func (a *App) Service() *service.Service {
	return a.service
}

// Server returns the HTTP server.
func (a *App) Server() *server.Server {
	return a.server
}

// Start starts background refresh, if enabled, and the HTTP server on the
// given address. This is a blocking call that returns when the server stops.
// When startup fails, every component is shut down before Start returns.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}

	a.logStartupInfo()

	if a.scheduler != nil {
		if err := a.scheduler.Start(); err != nil {
			a.releaseAfterFailedStart()
			return fmt.Errorf("failed to start background refresh: %w", err)
		}
	}

	a.logger.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			a.logger.Info("server stopped gracefully")
			return nil
		}
		a.releaseAfterFailedStart()
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

func (a *App) releaseAfterFailedStart() {
	ctx, cancel := context.WithTimeout(context.Background(), startupShutdownTimeout)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		a.logger.Error("shutdown after failed start", "error", err)
	}
}

// Shutdown gracefully tears down app components in dependency order.
// Order:
// 1. HTTP server shutdown, honoring the passed context timeout/cancellation.
// 2. Background refresh stop.
// 3. State store close.
// 4. Cache close.
//
// Shutdown is idempotent; after the first call, subsequent calls are no-ops.
// It attempts every close step and returns a joined error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	a.logger.Debug("shutting down application")

	var errs []error

	// 1. Shutdown HTTP server first (stop accepting new requests)
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	// 2. Stop background refresh
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	// 3. Close state store
	if a.state != nil {
		if err := a.state.Close(); err != nil {
			a.logger.Error("state close error", "error", err)
			errs = append(errs, fmt.Errorf("state close: %w", err))
		}
	}

	// 4. Close cache
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("cache close error", "error", err)
			errs = append(errs, fmt.Errorf("cache close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	a.logger.Debug("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	if cfg.Server.MasterKey == "" {
		a.logger.Warn("WEATHERDESK_MASTER_KEY not set, the API accepts unauthenticated requests")
	} else {
		a.logger.Info("authentication enabled", "mode", "master_key")
	}

	if cfg.Metrics.Enabled {
		a.logger.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		a.logger.Info("prometheus metrics disabled")
	}

	a.logger.Info("cache configured", "type", cfg.Cache.Type, "ttl", cache.TTL.String())
	a.logger.Info("state configured", "type", cfg.State.Type, "max_history", cfg.State.MaxHistory)

	if cfg.Refresh.Enabled {
		a.logger.Info("background refresh enabled", "interval_minutes", cfg.Refresh.Interval)
	} else {
		a.logger.Info("background refresh disabled")
	}
}
