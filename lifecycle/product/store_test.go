// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package product_test

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	clocktesting "k8s.io/utils/clock/testing"

	"storj.io/keeper/internal/testcontext"
	"storj.io/keeper/lifecycle/product"
	"storj.io/keeper/storage/boltdb"
	"storj.io/keeper/storage/boltdb/boltdbtest"
)

var now = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

func newStore(ctx *testcontext.Context, t *testing.T, db *boltdb.DB, trash bool) *product.Store {
	config := product.Config{
		Dir:           ctx.Dir("stores"),
		QuarantineDir: ctx.Dir("quarantine"),
	}
	trashDir := ""
	if trash {
		trashDir = ctx.Dir("trash")
	}
	return product.NewStore(zaptest.NewLogger(t), db.Products(), config, trashDir, clocktesting.NewFakePassiveClock(now))
}

// fill adds count products of the given size to dataStores, the first one
// modified the longest ago.
func fill(ctx *testcontext.Context, t *testing.T, store *product.Store, prefix string, count int, size int, dataStores ...string) []product.Product {
	var added []product.Product
	for i := 0; i < count; i++ {
		modified := now.Add(-time.Duration(count-i) * time.Hour)
		p, err := store.Add(ctx, product.Product{
			ID:         fmt.Sprintf("%s-%02d", prefix, i),
			Name:       fmt.Sprintf("%s product %d", prefix, i),
			Collection: prefix,
			CreatedAt:  modified,
			ModifiedAt: modified,
			Stores:     dataStores,
		}, make([]byte, size))
		require.NoError(t, err)
		added = append(added, p)
	}
	return added
}

func exists(t *testing.T, path string) bool {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestStore_AddOpen(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		store := newStore(ctx, t, db, false)

		p, err := store.Add(ctx, product.Product{Name: "generated", Stores: []string{"hot", "cold"}}, []byte("hello"))
		require.NoError(t, err)
		require.NotEmpty(t, p.ID)
		require.EqualValues(t, 5, p.Size)
		require.True(t, p.CreatedAt.Equal(now))
		require.True(t, p.ModifiedAt.Equal(now))

		for _, dataStore := range p.Stores {
			rc, err := store.Open(ctx, dataStore, p.ID)
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			require.Equal(t, "hello", string(data))
		}

		_, err = store.Open(ctx, "archive", p.ID)
		require.True(t, product.ErrNotFound.Has(err), err)

		usage, err := store.Usage(ctx, "hot")
		require.NoError(t, err)
		require.EqualValues(t, 5, usage)
	})
}

func TestStore_EvictProducts(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		store := newStore(ctx, t, db, false)
		fill(ctx, t, store, "s2", 6, 10, "hot", "cold")
		fill(ctx, t, store, "s1", 2, 10, "hot")

		count, err := store.EvictProducts(ctx, product.All, product.ModifiedAsc, "s2", 4, false, product.DestinationNone, "test", false)
		require.NoError(t, err)
		require.Equal(t, 4, count)

		all, err := db.Products().List(ctx)
		require.NoError(t, err)

		var ids []string
		for _, p := range all {
			ids = append(ids, p.ID)
		}
		require.Equal(t, []string{"s1-00", "s1-01", "s2-04", "s2-05"}, ids, "least recently modified evicted first")

		for i := 0; i < 4; i++ {
			for _, dataStore := range []string{"hot", "cold"} {
				require.False(t, exists(t, filepath.Join(ctx.Dir("stores"), dataStore, fmt.Sprintf("s2-%02d", i))))
			}
		}
	})
}

func TestStore_EvictAtLeast(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		store := newStore(ctx, t, db, false)
		fill(ctx, t, store, "p", 5, 100, "hot", "cold")

		reclaimed, err := store.EvictAtLeast(ctx, 250, "hot", product.All, product.ModifiedAsc, "", 0, false, product.DestinationNone, "test", false)
		require.NoError(t, err)
		require.EqualValues(t, 300, reclaimed)

		usage, err := store.Usage(ctx, "hot")
		require.NoError(t, err)
		require.EqualValues(t, 200, usage)

		// bytes in other stores are kept
		usage, err = store.Usage(ctx, "cold")
		require.NoError(t, err)
		require.EqualValues(t, 500, usage)

		evicted, err := db.Products().Get(ctx, "p-00")
		require.NoError(t, err)
		require.Equal(t, []string{"cold"}, evicted.Stores)

		// bounded by count
		reclaimed, err = store.EvictAtLeast(ctx, math.MaxInt64, "cold", product.All, product.SizeDesc, "", 2, false, product.DestinationNone, "test", false)
		require.NoError(t, err)
		require.EqualValues(t, 200, reclaimed)

		_, err = db.Products().Get(ctx, "p-00")
		require.True(t, product.ErrNotFound.Has(err), err)
	})
}

func TestStore_SoftEviction(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		store := newStore(ctx, t, db, false)
		fill(ctx, t, store, "p", 3, 10, "hot")

		count, err := store.EvictProducts(ctx, product.All, "", "", 0, true, product.DestinationNone, "test", false)
		require.NoError(t, err)
		require.Equal(t, 3, count)

		for i := 0; i < 3; i++ {
			id := fmt.Sprintf("p-%02d", i)
			p, err := db.Products().Get(ctx, id)
			require.NoError(t, err)
			require.True(t, p.Evicted)
			require.True(t, exists(t, filepath.Join(ctx.Dir("stores"), "hot", id)))
		}

		// evicted products are no longer candidates
		count, err = store.EvictProducts(ctx, product.All, "", "", 0, true, product.DestinationNone, "test", false)
		require.NoError(t, err)
		require.Zero(t, count)
	})
}

func TestStore_Destinations(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		store := newStore(ctx, t, db, true)
		fill(ctx, t, store, "p", 2, 10, "hot")

		// trash wins over quarantine
		_, err := store.EvictProducts(ctx, product.All, "", "", 1, false, product.DestinationTrash, "test", true)
		require.NoError(t, err)
		require.True(t, exists(t, filepath.Join(ctx.Dir("trash"), "hot", "p-00")))

		// safe mode without trash keeps a copy in quarantine
		_, err = store.EvictProducts(ctx, product.All, "", "", 1, false, product.DestinationNone, "test", true)
		require.NoError(t, err)
		require.True(t, exists(t, filepath.Join(ctx.Dir("quarantine"), "hot", "p-01")))
		require.False(t, exists(t, filepath.Join(ctx.Dir("stores"), "hot", "p-01")))
	})
}

func TestStore_Filter(t *testing.T) {
	boltdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB) {
		store := newStore(ctx, t, db, false)
		fill(ctx, t, store, "p", 4, 10, "hot")

		odd := func(p *product.Product) bool {
			return p.ID == "p-01" || p.ID == "p-03"
		}
		count, err := store.EvictProducts(ctx, odd, "", "", 0, false, product.DestinationNone, "test", false)
		require.NoError(t, err)
		require.Equal(t, 2, count)

		_, err = db.Products().Get(ctx, "p-00")
		require.NoError(t, err)
		_, err = db.Products().Get(ctx, "p-01")
		require.True(t, product.ErrNotFound.Has(err), err)

		_, err = store.EvictProducts(ctx, product.All, "largest", "", 0, false, product.DestinationNone, "test", false)
		require.Error(t, err)
	})
}
