// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package syncmetrics records the outcome of synchronization transfers per
// source over a sliding window.
package syncmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"k8s.io/utils/clock"
)

// Config contains configurable values for synchronization metrics.
type Config struct {
	Window time.Duration `help:"window over which source rates are computed" default:"1h0m0s"`
}

type event struct {
	at    time.Time
	value float64
}

// series is a list of events ordered by time.
type series []event

func (s series) trim(cutoff time.Time) series {
	i := 0
	for i < len(s) && !s[i].at.After(cutoff) {
		i++
	}
	return s[i:]
}

func (s series) sum() (total float64) {
	for _, e := range s {
		total += e.value
	}
	return total
}

type source struct {
	success  series
	failure  series
	transfer series
}

// Registry keeps windowed transfer statistics per source and exports the
// totals as Prometheus counters. It implements ranking.MetricsProvider.
type Registry struct {
	clock  clock.PassiveClock
	window time.Duration

	mu      sync.Mutex
	sources map[string]*source

	successes   *prometheus.CounterVec
	failures    *prometheus.CounterVec
	transferred *prometheus.CounterVec
}

// NewRegistry creates a registry registering its counters in registerer.
func NewRegistry(clk clock.PassiveClock, registerer prometheus.Registerer, config Config) *Registry {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Registry{
		clock:   clk,
		window:  config.Window,
		sources: make(map[string]*source),

		successes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keeper_sync_downloads_succeeded_total",
			Help: "Total number of successful downloads per source",
		}, []string{"source"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keeper_sync_downloads_failed_total",
			Help: "Total number of failed downloads per source",
		}, []string{"source"}),
		transferred: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keeper_sync_transferred_bytes_total",
			Help: "Total number of bytes downloaded per source",
		}, []string{"source"}),
	}
}

func (registry *Registry) source(id string) *source {
	s, ok := registry.sources[id]
	if !ok {
		s = &source{}
		registry.sources[id] = s
	}
	return s
}

// MarkSuccess records a successful download from sourceID.
func (registry *Registry) MarkSuccess(sourceID string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	s := registry.source(sourceID)
	s.success = append(s.success, event{at: registry.clock.Now(), value: 1})
	registry.successes.WithLabelValues(sourceID).Inc()
}

// MarkFailure records a failed download from sourceID.
func (registry *Registry) MarkFailure(sourceID string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	s := registry.source(sourceID)
	s.failure = append(s.failure, event{at: registry.clock.Now(), value: 1})
	registry.failures.WithLabelValues(sourceID).Inc()
}

// MarkTransfer records bytes downloaded from sourceID.
func (registry *Registry) MarkTransfer(sourceID string, bytes int64) {
	if bytes < 0 {
		return
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	s := registry.source(sourceID)
	s.transfer = append(s.transfer, event{at: registry.clock.Now(), value: float64(bytes)})
	registry.transferred.WithLabelValues(sourceID).Add(float64(bytes))
}

// SuccessRate returns successful downloads per second within the window.
func (registry *Registry) SuccessRate(sourceID string) (float64, bool) {
	return registry.rate(sourceID, func(s *source) *series { return &s.success })
}

// FailureRate returns failed downloads per second within the window.
func (registry *Registry) FailureRate(sourceID string) (float64, bool) {
	return registry.rate(sourceID, func(s *source) *series { return &s.failure })
}

// TransferRate returns downloaded bytes per second within the window.
func (registry *Registry) TransferRate(sourceID string) (float64, bool) {
	return registry.rate(sourceID, func(s *source) *series { return &s.transfer })
}

func (registry *Registry) rate(sourceID string, pick func(*source) *series) (float64, bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	s, ok := registry.sources[sourceID]
	if !ok {
		return 0, false
	}

	events := pick(s)
	*events = events.trim(registry.clock.Now().Add(-registry.window))
	if len(*events) == 0 || registry.window <= 0 {
		return 0, false
	}
	return events.sum() / registry.window.Seconds(), true
}
