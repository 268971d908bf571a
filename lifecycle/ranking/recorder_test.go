// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package ranking_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	clocktesting "k8s.io/utils/clock/testing"

	"storj.io/keeper/internal/testcontext"
	"storj.io/keeper/lifecycle/ranking"
	"storj.io/keeper/lifecycle/ranking/syncmetrics"
	"storj.io/keeper/storage/boltdb"
	"storj.io/keeper/storage/boltdb/boltdbtest"
)

func TestRecorder(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		clock := clocktesting.NewFakeClock(now)
		metrics := syncmetrics.NewRegistry(clock, prometheus.NewRegistry(), syncmetrics.Config{Window: time.Hour})
		recorder := ranking.NewRecorder(zaptest.NewLogger(t), db.Sources(), metrics, clock)

		var sources []ranking.Source
		for _, id := range []string{"a", "b"} {
			source := ranking.Source{ID: id, URL: "https://" + id, Listable: true, Cursor: "start"}
			require.NoError(t, db.Sources().Put(ctx, source))
			sources = append(sources, source)
		}

		ranker := ranking.NewRanker(zaptest.NewLogger(t), metrics, allReachable("a", "b"), clock, ranking.Config{
			ProbeTimeout: 100 * time.Millisecond,
			RetryDelay:   time.Hour,
		})

		ranked, err := ranker.Rank(ctx, sources)
		require.NoError(t, err)
		for _, r := range ranked {
			require.True(t, r.Forced, "never used sources are tried first")
		}

		require.NoError(t, recorder.Record(ctx, ranking.Download{SourceID: "a", Bytes: 1000, Cursor: "page-2"}))
		require.NoError(t, recorder.Record(ctx, ranking.Download{SourceID: "a", Bytes: 1000}))
		require.NoError(t, recorder.Record(ctx, ranking.Download{SourceID: "b", Bytes: 100}))
		require.NoError(t, recorder.Record(ctx, ranking.Download{SourceID: "b", Failed: true}))

		err = recorder.Record(ctx, ranking.Download{SourceID: "missing"})
		require.True(t, ranking.ErrNotFound.Has(err), err)

		a, err := db.Sources().Get(ctx, "a")
		require.NoError(t, err)
		require.True(t, a.LastUsed.Equal(now))
		require.Equal(t, "page-2", a.Cursor)

		b, err := db.Sources().Get(ctx, "b")
		require.NoError(t, err)
		require.Equal(t, "start", b.Cursor)

		ranked, err = ranker.Rank(ctx, []ranking.Source{b, a})
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, ranking.IDs(ranked))
		for _, r := range ranked {
			require.False(t, r.Forced, r.Source.ID)
		}
		require.InDelta(t, 1.0, ranked[0].Score, 1e-9)
	})
}
