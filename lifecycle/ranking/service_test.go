// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package ranking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/keeper/internal/testcontext"
	"storj.io/keeper/lifecycle/ranking"
	"storj.io/keeper/storage/boltdb"
	"storj.io/keeper/storage/boltdb/boltdbtest"
)

func TestService_RankAll(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, db.Sources().Put(ctx, source(id)))
		}
		require.NoError(t, db.Synchronizers().Put(ctx, ranking.Synchronizer{ID: "sync", SourceIDs: []string{"a", "b", "missing", "c"}}))

		m := metrics{
			"a": {success: value(1), failure: value(1), transfer: value(10)},
			"b": {success: value(1), failure: value(0), transfer: value(10)},
		}
		ranker := newRanker(t, m, allReachable("a", "b", "c"))
		config := ranking.Config{Interval: time.Hour}
		service := ranking.NewService(zaptest.NewLogger(t), ranker, db.Synchronizers(), db.Sources(), db.Rankings(), config)
		defer ctx.Check(service.Close)

		require.NoError(t, service.RankAll(ctx))

		ids, err := db.Rankings().Ranking(ctx, "sync")
		require.NoError(t, err)
		require.Equal(t, []string{"c", "b", "a"}, ids)
	})
}

func TestService_Run(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		require.NoError(t, db.Sources().Put(ctx, source("a")))
		require.NoError(t, db.Synchronizers().Put(ctx, ranking.Synchronizer{ID: "sync", SourceIDs: []string{"a"}}))

		ranker := newRanker(t, metrics{}, allReachable("a"))
		service := ranking.NewService(zaptest.NewLogger(t), ranker, db.Synchronizers(), db.Sources(), db.Rankings(), ranking.Config{Interval: time.Hour})

		ctx.Go(func() error { return service.Run(ctx) })
		service.Loop.TriggerWait()
		require.NoError(t, service.Close())

		ids, err := db.Rankings().Ranking(ctx, "sync")
		require.NoError(t, err)
		require.Equal(t, []string{"a"}, ids)
	})
}
