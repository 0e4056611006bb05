package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"weatherdesk/config"
	"weatherdesk/internal/storage"
)

// Result holds the initialized state store and its database connection.
// The caller is responsible for calling Close() to release resources.
type Result struct {
	Store   Store
	Storage storage.Storage
}

// Close releases all resources held by the state store.
// Safe to call multiple times.
func (r *Result) Close() error {
	var errs []error
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
		r.Storage = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New creates the state store selected by cfg.State. The file backend keeps
// its records next to the cache entries in cfg.Cache.Dir.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Result, error) {
	maxHistory := cfg.State.MaxHistory

	if cfg.State.Type == "" || cfg.State.Type == config.StateTypeFile {
		return &Result{Store: NewFileStore(cfg.Cache.Dir, maxHistory, logger)}, nil
	}

	store, err := storage.New(ctx, buildStorageConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	stateStore, err := createStateStore(ctx, store, maxHistory)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Result{Store: stateStore, Storage: store}, nil
}

func buildStorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Type: cfg.State.Type,
		SQLite: storage.SQLiteConfig{
			Path: cfg.State.SQLite.Path,
		},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.State.PostgreSQL.URL,
			MaxConns: cfg.State.PostgreSQL.MaxConns,
		},
	}
}

func createStateStore(ctx context.Context, store storage.Storage, maxHistory int) (Store, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(store.SQLiteDB(), maxHistory)
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(ctx, store.PostgreSQLPool(), maxHistory)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", store.Type())
	}
}
