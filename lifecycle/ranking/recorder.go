// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package ranking

import (
	"context"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"storj.io/keeper/internal/sync2"
)

// MetricsRecorder receives the outcomes of downloads from sources.
type MetricsRecorder interface {
	MarkSuccess(sourceID string)
	MarkFailure(sourceID string)
	MarkTransfer(sourceID string, bytes int64)
}

// Download is the outcome of one download from a source by a synchronizer.
type Download struct {
	SourceID string
	Failed   bool
	Bytes    int64
	// Cursor is the listing position reached, empty to keep the stored one.
	Cursor string
}

// Recorder is the entry point for synchronizers. It feeds download outcomes
// into the windowed metrics and stores when each source was last used, both
// of which the Ranker scores on.
type Recorder struct {
	log     *zap.Logger
	sources SourceDB
	metrics MetricsRecorder
	clock   clock.PassiveClock

	keys sync2.KeyMutex[string]
}

// NewRecorder creates a recorder updating sources and metrics.
func NewRecorder(log *zap.Logger, sources SourceDB, metrics MetricsRecorder, clk clock.PassiveClock) *Recorder {
	return &Recorder{
		log:     log,
		sources: sources,
		metrics: metrics,
		clock:   clk,
	}
}

// Record registers download and marks its source used now.
func (recorder *Recorder) Record(ctx context.Context, download Download) (err error) {
	defer mon.Task()(&ctx)(&err)

	if download.Failed {
		recorder.metrics.MarkFailure(download.SourceID)
	} else {
		recorder.metrics.MarkSuccess(download.SourceID)
	}
	if download.Bytes > 0 {
		recorder.metrics.MarkTransfer(download.SourceID, download.Bytes)
	}

	unlock := recorder.keys.Lock(download.SourceID)
	defer unlock()

	source, err := recorder.sources.Get(ctx, download.SourceID)
	if err != nil {
		if ErrNotFound.Has(err) {
			recorder.log.Warn("download recorded for unknown source", zap.String("Source", download.SourceID))
			return err
		}
		return Error.Wrap(err)
	}

	source.LastUsed = recorder.clock.Now()
	if download.Cursor != "" {
		source.Cursor = download.Cursor
	}
	return Error.Wrap(recorder.sources.Put(ctx, source))
}
