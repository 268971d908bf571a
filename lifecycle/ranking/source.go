// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package ranking scores the upstream sources of synchronizers by their
// recent throughput and reliability.
package ranking

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var (
	mon = monkit.Package()

	// Error is the default ranking errs class.
	Error = errs.Class("ranking")
	// ErrNotFound is returned when a source or synchronizer does not exist.
	ErrNotFound = errs.Class("ranking: not found")
)

// Credentials authenticate against a source.
type Credentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Source is a remote endpoint products are synchronized from.
type Source struct {
	ID                     string      `json:"id"`
	URL                    string      `json:"url"`
	Credentials            Credentials `json:"credentials"`
	MaxConcurrentDownloads int         `json:"max_concurrent_downloads"`
	LastUsed               time.Time   `json:"last_used"`
	Cursor                 string      `json:"cursor,omitempty"`
	Listable               bool        `json:"listable"`
}

// Synchronizer is a synchronization policy pulling from a set of sources.
type Synchronizer struct {
	ID        string   `json:"id"`
	SourceIDs []string `json:"source_ids"`
}

// SourceDB stores sources.
type SourceDB interface {
	// Get returns the source with the given id.
	Get(ctx context.Context, id string) (Source, error)
	// List returns all sources ordered by id.
	List(ctx context.Context) ([]Source, error)
	// Put inserts or replaces a source.
	Put(ctx context.Context, source Source) error
	// Delete removes a source.
	Delete(ctx context.Context, id string) error
}

// SynchronizerDB stores synchronizers.
type SynchronizerDB interface {
	// Get returns the synchronizer with the given id.
	Get(ctx context.Context, id string) (Synchronizer, error)
	// List returns all synchronizers ordered by id.
	List(ctx context.Context) ([]Synchronizer, error)
	// Put inserts or replaces a synchronizer.
	Put(ctx context.Context, sync Synchronizer) error
	// Delete removes a synchronizer.
	Delete(ctx context.Context, id string) error
}

// Sink receives the ranked source ids of a synchronizer, best first.
type Sink interface {
	SetRanking(ctx context.Context, synchronizerID string, sourceIDs []string) error
}

// RankingDB is a Sink that keeps the latest ranking of every synchronizer.
type RankingDB interface {
	Sink
	// Ranking returns the latest ranking of synchronizerID, nil when it
	// was never ranked.
	Ranking(ctx context.Context, synchronizerID string) ([]string, error)
}

// MetricsProvider reports windowed rates of a source. The boolean result is
// false when there is no data for the window.
type MetricsProvider interface {
	SuccessRate(sourceID string) (float64, bool)
	FailureRate(sourceID string) (float64, bool)
	TransferRate(sourceID string) (float64, bool)
}

// ConnectivityProbe checks whether a source is reachable.
type ConnectivityProbe interface {
	// CheckConnection returns the status code answered by url.
	CheckConnection(ctx context.Context, url string, creds Credentials) (int, error)
}
