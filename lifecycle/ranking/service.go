// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package ranking

import (
	"context"

	"go.uber.org/zap"

	"storj.io/keeper/internal/sync2"
)

var rankedCycles = mon.Counter("ranking_cycles")

// Service periodically ranks the sources of every synchronizer and hands
// the result to the sink.
//
// architecture: Chore
type Service struct {
	log           *zap.Logger
	ranker        *Ranker
	synchronizers SynchronizerDB
	sources       SourceDB
	sink          Sink

	Loop *sync2.Cycle
}

// NewService creates a new ranking chore.
func NewService(log *zap.Logger, ranker *Ranker, synchronizers SynchronizerDB, sources SourceDB, sink Sink, config Config) *Service {
	return &Service{
		log:           log,
		ranker:        ranker,
		synchronizers: synchronizers,
		sources:       sources,
		sink:          sink,
		Loop:          sync2.NewCycle(config.Interval),
	}
}

// Run ranks sources on every cycle until ctx is canceled.
func (service *Service) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return service.Loop.Run(ctx, func(ctx context.Context) error {
		if err := service.RankAll(ctx); err != nil {
			service.log.Error("ranking sources failed", zap.Error(err))
		}
		return nil
	})
}

// RankAll ranks the sources of every synchronizer once.
func (service *Service) RankAll(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	synchronizers, err := service.synchronizers.List(ctx)
	if err != nil {
		return Error.Wrap(err)
	}

	for _, sync := range synchronizers {
		if err := ctx.Err(); err != nil {
			return err
		}

		ids, err := service.RankSynchronizer(ctx, sync)
		if err != nil {
			service.log.Warn("unable to rank synchronizer sources", zap.String("Synchronizer", sync.ID), zap.Error(err))
			continue
		}
		service.log.Debug("sources ranked", zap.String("Synchronizer", sync.ID), zap.Strings("Sources", ids))
	}
	rankedCycles.Inc(1)
	return nil
}

// RankSynchronizer ranks the sources of sync, stores the result in the sink
// and returns it.
func (service *Service) RankSynchronizer(ctx context.Context, sync Synchronizer) (_ []string, err error) {
	defer mon.Task()(&ctx)(&err)

	var sources []Source
	for _, id := range sync.SourceIDs {
		source, err := service.sources.Get(ctx, id)
		if err != nil {
			if ErrNotFound.Has(err) {
				service.log.Warn("synchronizer references missing source", zap.String("Synchronizer", sync.ID), zap.String("Source", id))
				continue
			}
			return nil, Error.Wrap(err)
		}
		sources = append(sources, source)
	}

	ranked, err := service.ranker.Rank(ctx, sources)
	if err != nil {
		return nil, err
	}

	ids := IDs(ranked)
	if err := service.sink.SetRanking(ctx, sync.ID, ids); err != nil {
		return nil, Error.Wrap(err)
	}
	return ids, nil
}

// Close stops the chore.
func (service *Service) Close() error {
	service.Loop.Close()
	return nil
}
