// Package scheduler keeps the cache warm by periodically refreshing the
// last looked-up city.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"weatherdesk/internal/core"
	"weatherdesk/internal/service"
)

// DefaultInterval matches the cache lifetime.
const DefaultInterval = 30 * time.Minute

// runTimeout bounds one refresh run.
const runTimeout = 2 * time.Minute

// Refresher is the part of service.Service the scheduler needs.
type Refresher interface {
	Refresh(ctx context.Context) (*service.Result, error)
}

// Scheduler periodically refreshes the last city.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	interval  time.Duration
	logger    *slog.Logger
	onResult  func(error)
}

// New creates a Scheduler. onResult, when non-nil, is called after every run.
func New(refresher Refresher, interval time.Duration, logger *slog.Logger, onResult func(error)) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		refresher: refresher,
		interval:  interval,
		logger:    logger,
		onResult:  onResult,
	}
}

// Start schedules the refresh job and starts the underlying scheduler.
// The first run happens immediately.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.interval).Do(s.run); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info("background refresh scheduled", "interval", s.interval.String())
	return nil
}

// Stop stops the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	result, err := s.refresher.Refresh(ctx)
	switch {
	case core.IsKind(err, core.ErrorKindNotFound):
		s.logger.Debug("background refresh skipped, no last city")
		err = nil
	case err != nil:
		s.logger.Warn("background refresh failed", "error", err)
	case !result.Snapshot.Complete():
		s.logger.Warn("background refresh incomplete", "city", result.City.Name, "errors", result.Snapshot.Errors)
	default:
		s.logger.Info("background refresh completed", "city", result.City.Name)
	}

	if s.onResult != nil {
		s.onResult(err)
	}
}
