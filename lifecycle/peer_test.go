// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package lifecycle_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/keeper/internal/testcontext"
	"storj.io/keeper/lifecycle"
	"storj.io/keeper/lifecycle/eviction"
	"storj.io/keeper/lifecycle/fetchorder"
	"storj.io/keeper/lifecycle/product"
	"storj.io/keeper/lifecycle/quota"
	"storj.io/keeper/lifecycle/ranking"
	"storj.io/keeper/lifecycle/ranking/syncmetrics"
	"storj.io/keeper/pkg/process"
	"storj.io/keeper/storage/boltdb"
	"storj.io/keeper/storage/boltdb/boltdbtest"
	"storj.io/keeper/storage/redis"
)

func testConfig(dir string) lifecycle.Config {
	return lifecycle.Config{
		Debug: process.DebugConfig{Address: "127.0.0.1:0"},
		Product: product.Config{
			Dir:           filepath.Join(dir, "stores"),
			QuarantineDir: filepath.Join(dir, "quarantine"),
		},
		Eviction: eviction.Config{TrashPath: filepath.Join(dir, "trash")},
		FetchOrder: fetchorder.Config{
			MaxConcurrentFetches: 2,
			PollInterval:         time.Hour,
			Retention:            time.Hour,
		},
		Ranking: ranking.Config{
			Interval:     time.Hour,
			ProbeTimeout: time.Second,
			RetryDelay:   time.Hour,
		},
		SyncMetrics: syncmetrics.Config{Window: time.Hour},
	}
}

// runPeer starts peer and returns a func stopping it.
func runPeer(ctx *testcontext.Context, t *testing.T, peer *lifecycle.Peer) func() {
	require.NoError(t, peer.Init(ctx))

	runCtx, cancel := context.WithCancel(ctx)
	ctx.Go(func() error { return peer.Run(runCtx) })
	return func() {
		cancel()
		require.NoError(t, peer.Close())
	}
}

func TestPeer_EvictAndRestore(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		dir := ctx.Dir("peer")
		config := testConfig(dir)

		peer, err := lifecycle.New(zaptest.NewLogger(t), db, nil, prometheus.NewRegistry(), config)
		require.NoError(t, err)
		require.NotNil(t, peer.Debug.Server)
		defer runPeer(ctx, t, peer)()

		old := time.Now().Add(-48 * time.Hour)
		p, err := peer.Products.Add(ctx, product.Product{
			Name:       "scene",
			Collection: "sentinel",
			CreatedAt:  old,
			ModifiedAt: old,
			Stores:     []string{"disk"},
		}, []byte("payload"))
		require.NoError(t, err)

		_, err = peer.Eviction.Service.Create(ctx, eviction.Policy{
			Name:       "expire",
			BaseDate:   eviction.ModificationDate,
			KeepPeriod: 24 * time.Hour,
		})
		require.NoError(t, err)

		queued, err := peer.Eviction.Service.DoEvict(ctx, "expire")
		require.NoError(t, err)
		require.True(t, queued)
		peer.Eviction.Service.Worker.WaitUntilEmpty()

		policy, err := peer.Eviction.Service.Get(ctx, "expire")
		require.NoError(t, err)
		require.Equal(t, eviction.Stopped, policy.Status)
		require.NotNil(t, policy.LastRun)
		require.Equal(t, 1, policy.LastRun.Evicted)

		require.NoFileExists(t, filepath.Join(config.Product.Dir, "disk", p.ID))
		require.FileExists(t, filepath.Join(config.Eviction.TrashPath, "disk", p.ID))

		order, err := peer.FetchOrder.Service.Fetch(ctx, fetchorder.FetchRequest{Store: "disk", ObjectID: p.ID, Requester: "alice"})
		require.NoError(t, err)
		require.Equal(t, fetchorder.Pending, order.Status)

		peer.FetchOrder.Poller.Loop.TriggerWait()

		order, err = peer.FetchOrder.Service.Get(ctx, "disk", p.ID)
		require.NoError(t, err)
		require.Equal(t, fetchorder.Completed, order.Status)

		data, err := os.ReadFile(filepath.Join(config.Product.Dir, "disk", p.ID))
		require.NoError(t, err)
		require.Equal(t, "payload", string(data))
	})
}

func TestPeer_SharedQuotas(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		server := miniredis.RunT(t)
		client, err := redis.NewClientFrom(zaptest.NewLogger(t), "redis://"+server.Addr())
		require.NoError(t, err)
		defer ctx.Check(client.Close)

		config := testConfig(ctx.Dir("peer"))
		config.Debug.Address = ""
		config.FetchOrder.MaxConcurrentFetches = 1

		peer, err := lifecycle.New(zaptest.NewLogger(t), db, client.Quotas(), nil, config)
		require.NoError(t, err)
		require.Nil(t, peer.Debug.Server)

		for _, id := range []string{"a", "b"} {
			path := filepath.Join(config.Eviction.TrashPath, "tape", id)
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
			require.NoError(t, os.WriteFile(path, []byte(id), 0600))
		}

		_, err = peer.FetchOrder.Service.Fetch(ctx, fetchorder.FetchRequest{Store: "tape", ObjectID: "a", Requester: "alice"})
		require.NoError(t, err)

		_, err = peer.FetchOrder.Service.Fetch(ctx, fetchorder.FetchRequest{Store: "tape", ObjectID: "b", Requester: "alice"})
		require.True(t, quota.ErrQuotaExceeded.Has(err), "%+v", err)

		count, err := client.Quotas().Count(ctx, quota.Key{Store: "tape", Quota: quota.AsyncFetch, Owner: "alice"})
		require.NoError(t, err)
		require.Equal(t, 1, count)

		require.NoError(t, peer.Close())
	})
}
