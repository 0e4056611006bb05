// Package service implements the shell-level flows shared by the CLI and the
// HTTP API: looking a city up, refreshing the last city and reading the
// recent-queries list.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"weatherdesk/internal/cache"
	"weatherdesk/internal/core"
	"weatherdesk/internal/state"
)

// Result is a resolved city with its weather snapshot.
type Result struct {
	City     core.City      `json:"city"`
	Snapshot *core.Snapshot `json:"snapshot"`
}

// HistoryView is the recent-queries list and the last city, if any.
type HistoryView struct {
	History  []string   `json:"history"`
	LastCity *core.City `json:"last_city,omitempty"`
}

// Service coordinates the provider with local state.
type Service struct {
	provider core.Provider
	state    state.Store
	cache    cache.Store
	logger   *slog.Logger
}

// New creates a Service.
func New(provider core.Provider, st state.Store, store cache.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{provider: provider, state: st, cache: store, logger: logger}
}

// Lookup resolves name, records it, and returns the city's snapshot. Failing
// to record history or the last city is logged and does not fail the lookup.
func (s *Service) Lookup(ctx context.Context, name string) (*Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.NewInvalidInputError("city name is required")
	}

	city, err := s.provider.ResolveCity(ctx, name)
	if err != nil {
		return nil, err
	}

	if _, err := s.state.AddHistory(ctx, city.Name); err != nil {
		s.logger.Warn("failed to record history", "city", city.Name, "error", err)
	}
	if err := s.state.SetLastCity(ctx, city); err != nil {
		s.logger.Warn("failed to record last city", "city", city.Name, "error", err)
	}

	return &Result{City: city, Snapshot: s.provider.Snapshot(ctx, city.ID)}, nil
}

// Refresh returns a snapshot for the last resolved city.
func (s *Service) Refresh(ctx context.Context) (*Result, error) {
	city, ok, err := s.state.LastCity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read last city: %w", err)
	}
	if !ok {
		return nil, core.NewNotFoundError("no city has been looked up yet")
	}
	return &Result{City: city, Snapshot: s.provider.Snapshot(ctx, city.ID)}, nil
}

// History returns the recent-queries list and the last city.
func (s *Service) History(ctx context.Context) (*HistoryView, error) {
	history, err := s.state.History(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	view := &HistoryView{History: history}

	city, ok, err := s.state.LastCity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read last city: %w", err)
	}
	if ok {
		view.LastCity = &city
	}
	return view, nil
}

// ClearCache removes every cached response. Local state is kept.
func (s *Service) ClearCache(ctx context.Context) error {
	if err := s.cache.Clear(ctx); err != nil {
		return core.NewCacheIOError("failed to clear cache", err)
	}
	s.logger.Info("cache cleared")
	return nil
}

// Provider returns the underlying data provider.
func (s *Service) Provider() core.Provider {
	return s.provider
}
