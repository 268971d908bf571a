// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package quota_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/errs"
	"go.uber.org/zap/zaptest"

	"storj.io/keeper/internal/testcontext"
	"storj.io/keeper/lifecycle/quota"
	"storj.io/keeper/storage/boltdb"
	"storj.io/keeper/storage/boltdb/boltdbtest"
)

var key = quota.Key{Store: "tape", Quota: quota.AsyncFetch, Owner: "u1"}

func admission(objectID string, limit int, perform func(ctx context.Context) error) quota.Operation {
	return quota.Operation{
		PreUpdate: func(ctx context.Context, tx quota.Tx) error {
			return tx.Insert(ctx, quota.Entry{Key: key, ObjectID: objectID, Timestamp: time.Now()})
		},
		PreCheck: quota.AtMost(key, limit),
		Perform:  perform,
	}
}

func succeed(context.Context) error { return nil }

func TestGate_AtMostN(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		gate := quota.NewGate(zaptest.NewLogger(t), db.Quotas())

		const limit = 3
		for i := 0; i < limit; i++ {
			require.NoError(t, gate.PerformQuotaCappedOperation(ctx, key, admission(fmt.Sprint(i), limit, succeed)))
		}

		performed := false
		err := gate.PerformQuotaCappedOperation(ctx, key, admission("overflow", limit, func(context.Context) error {
			performed = true
			return nil
		}))
		require.True(t, quota.ErrQuotaExceeded.Has(err), err)
		require.False(t, performed)

		count, err := gate.Count(ctx, key)
		require.NoError(t, err)
		require.Equal(t, limit, count, "rejected admission must not leak")

		require.NoError(t, gate.Release(ctx, key, "0"))
		require.NoError(t, gate.PerformQuotaCappedOperation(ctx, key, admission("overflow", limit, succeed)))
	})
}

func TestGate_Unlimited(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		gate := quota.NewGate(zaptest.NewLogger(t), db.Quotas())

		for i := 0; i < 10; i++ {
			require.NoError(t, gate.PerformQuotaCappedOperation(ctx, key, admission(fmt.Sprint(i), 0, succeed)))
		}
		count, err := gate.Count(ctx, key)
		require.NoError(t, err)
		require.Equal(t, 10, count)
	})
}

func TestGate_RollbackOnPerformFailure(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		gate := quota.NewGate(zaptest.NewLogger(t), db.Quotas())

		failure := errs.New("data store unavailable")
		err := gate.PerformQuotaCappedOperation(ctx, key, admission("a", 5, func(context.Context) error {
			return failure
		}))
		require.ErrorIs(t, err, failure)

		count, err := gate.Count(ctx, key)
		require.NoError(t, err)
		require.Zero(t, count)
	})
}

func TestGate_RollbackOnPostUpdateFailure(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		quotas := db.Quotas()
		gate := quota.NewGate(zaptest.NewLogger(t), quotas)

		// an entry replaced by PreUpdate is restored
		original := quota.Entry{Key: key, ObjectID: "a", Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		require.NoError(t, quotas.Insert(ctx, original))
		// an entry removed by PostUpdate is restored
		removed := quota.Entry{Key: key, ObjectID: "b", Timestamp: original.Timestamp}
		require.NoError(t, quotas.Insert(ctx, removed))

		op := admission("a", 5, succeed)
		op.PostUpdate = func(ctx context.Context, tx quota.Tx) error {
			if err := tx.Insert(ctx, quota.Entry{Key: key, ObjectID: "c", Timestamp: time.Now()}); err != nil {
				return err
			}
			if err := tx.Delete(ctx, key, "b"); err != nil {
				return err
			}
			return errs.New("bookkeeping failed")
		}
		require.Error(t, gate.PerformQuotaCappedOperation(ctx, key, op))

		entries, err := quotas.List(ctx, key)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, "a", entries[0].ObjectID)
		require.True(t, entries[0].Timestamp.Equal(original.Timestamp))
		require.Equal(t, "b", entries[1].ObjectID)
	})
}

func TestGate_RequiresPreCheckAndPerform(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		gate := quota.NewGate(zaptest.NewLogger(t), db.Quotas())

		require.Error(t, gate.PerformQuotaCappedOperation(ctx, key, quota.Operation{Perform: succeed}))
		require.Error(t, gate.PerformQuotaCappedOperation(ctx, key, quota.Operation{PreCheck: quota.AtMost(key, 1)}))
	})
}

func TestGate_Concurrent(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		gate := quota.NewGate(zaptest.NewLogger(t), db.Quotas())

		const limit = 4
		const attempts = 20

		var admitted, rejected int64
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := gate.PerformQuotaCappedOperation(ctx, key, admission(fmt.Sprint(i), limit, succeed))
				switch {
				case err == nil:
					atomic.AddInt64(&admitted, 1)
				case quota.ErrQuotaExceeded.Has(err):
					atomic.AddInt64(&rejected, 1)
				default:
					t.Error(err)
				}
			}()
		}
		wg.Wait()

		require.EqualValues(t, limit, admitted)
		require.EqualValues(t, attempts-limit, rejected)

		count, err := gate.Count(ctx, key)
		require.NoError(t, err)
		require.Equal(t, limit, count)
	})
}

func TestGate_ReleaseObject(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		gate := quota.NewGate(zaptest.NewLogger(t), db.Quotas())

		require.NoError(t, gate.PerformQuotaCappedOperation(ctx, key, admission("a", 2, succeed)))
		require.NoError(t, gate.PerformQuotaCappedOperation(ctx, key, admission("b", 2, succeed)))

		released, err := gate.ReleaseObject(ctx, quota.AsyncFetch, "a")
		require.NoError(t, err)
		require.Equal(t, 1, released)

		count, err := gate.Count(ctx, key)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})
}
