// Package observability exports Prometheus metrics for the data-access layer.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"weatherdesk/internal/fetch"
	"weatherdesk/internal/qweather"
)

// Metrics holds the collectors fed by fetcher and provider hooks.
type Metrics struct {
	CacheLookups   *prometheus.CounterVec
	FetchAttempts  *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
	UpstreamErrors *prometheus.CounterVec
	RefreshRuns    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherdesk",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by namespace and result (hit or miss).",
		}, []string{"namespace", "result"}),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherdesk",
			Name:      "fetch_attempts_total",
			Help:      "Upstream request attempts by endpoint, attempt number and outcome.",
		}, []string{"endpoint", "attempt", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "weatherdesk",
			Name:      "fetch_attempt_duration_seconds",
			Help:      "Duration of single upstream request attempts.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"endpoint"}),
		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherdesk",
			Name:      "upstream_errors_total",
			Help:      "Non-200 application codes returned by the upstream API.",
		}, []string{"namespace", "code"}),
		RefreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherdesk",
			Name:      "refresh_runs_total",
			Help:      "Background refresh runs by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.CacheLookups, m.FetchAttempts, m.FetchDuration, m.UpstreamErrors, m.RefreshRuns)
	return m
}

// FetchHooks returns hooks for fetch.Fetcher.
func (m *Metrics) FetchHooks() fetch.Hooks {
	return fetch.Hooks{
		OnAttempt: func(endpoint string, attempt int, outcome fetch.Outcome, d time.Duration) {
			m.FetchAttempts.WithLabelValues(endpoint, strconv.Itoa(attempt), string(outcome)).Inc()
			m.FetchDuration.WithLabelValues(endpoint).Observe(d.Seconds())
		},
	}
}

// ProviderHooks returns hooks for qweather.Provider.
func (m *Metrics) ProviderHooks() qweather.Hooks {
	return qweather.Hooks{
		OnCacheLookup: func(namespace string, hit bool) {
			result := "miss"
			if hit {
				result = "hit"
			}
			m.CacheLookups.WithLabelValues(namespace, result).Inc()
		},
		OnUpstreamError: func(namespace, code string) {
			m.UpstreamErrors.WithLabelValues(namespace, code).Inc()
		},
	}
}

// RefreshResult records the outcome of one background refresh run.
func (m *Metrics) RefreshResult(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.RefreshRuns.WithLabelValues(result).Inc()
}
