// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package product

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

var (
	evictedCount = mon.Counter("products_evicted")
	evictedBytes = mon.Counter("products_evicted_bytes")
)

// Config defines the data store layout on disk.
type Config struct {
	Dir           string `help:"directory holding one sub-directory per data store" default:"$CONFDIR/stores"`
	QuarantineDir string `help:"directory receiving bytes removed by safe mode evictions" default:"$CONFDIR/quarantine"`
}

// Store keeps product bytes as one file per product inside a directory per
// data store, with the catalogue kept in DB.
//
// architecture: Service
type Store struct {
	log      *zap.Logger
	db       DB
	config   Config
	trashDir string
	clock    clock.PassiveClock
}

// NewStore creates a new product store. Evictions with DestinationTrash are
// moved into trashDir.
func NewStore(log *zap.Logger, db DB, config Config, trashDir string, clk clock.PassiveClock) *Store {
	return &Store{
		log:      log,
		db:       db,
		config:   config,
		trashDir: trashDir,
		clock:    clk,
	}
}

func (store *Store) path(dataStore, id string) string {
	return filepath.Join(store.config.Dir, dataStore, id)
}

// Add writes data into every data store listed by p and registers p in the
// catalogue. A missing ID is generated.
func (store *Store) Add(ctx context.Context, p Product, data []byte) (_ Product, err error) {
	defer mon.Task()(&ctx)(&err)

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := store.clock.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.ModifiedAt.IsZero() {
		p.ModifiedAt = p.CreatedAt
	}
	p.Size = int64(len(data))

	for _, dataStore := range p.Stores {
		path := store.path(dataStore, p.ID)
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return Product{}, Error.Wrap(err)
		}
		if err := os.WriteFile(path, data, 0600); err != nil {
			return Product{}, Error.Wrap(err)
		}
	}

	return p, Error.Wrap(store.db.Put(ctx, p))
}

// Open opens the bytes of product id in dataStore.
func (store *Store) Open(ctx context.Context, dataStore, id string) (_ io.ReadCloser, err error) {
	defer mon.Task()(&ctx)(&err)

	file, err := os.Open(store.path(dataStore, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound.New("%s in %s", id, dataStore)
		}
		return nil, Error.Wrap(err)
	}
	return file, nil
}

// Usage returns the number of bytes of non evicted products held by dataStore.
func (store *Store) Usage(ctx context.Context, dataStore string) (total int64, err error) {
	defer mon.Task()(&ctx)(&err)

	products, err := store.db.List(ctx)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	for i := range products {
		if !products[i].Evicted && products[i].InStore(dataStore) {
			total += products[i].Size
		}
	}
	return total, nil
}

// EvictAtLeast evicts products of dataStore ordered by orderBy until at least
// size bytes are reclaimed or maxCount products are evicted. A maxCount of
// zero or less is unlimited. It returns the number of bytes reclaimed.
func (store *Store) EvictAtLeast(ctx context.Context, size int64, dataStore string, filter Predicate, orderBy OrderBy, targetCollection string, maxCount int, soft bool, dest Destination, cause string, safeMode bool) (reclaimed int64, err error) {
	defer mon.Task()(&ctx)(&err)

	candidates, err := store.candidates(ctx, filter, orderBy, targetCollection, dataStore)
	if err != nil {
		return 0, err
	}

	var count int
	for i := range candidates {
		if reclaimed >= size || (maxCount > 0 && count >= maxCount) {
			break
		}
		if err := ctx.Err(); err != nil {
			return reclaimed, err
		}

		freed, err := store.evict(ctx, &candidates[i], []string{dataStore}, soft, dest, cause, safeMode)
		if err != nil {
			return reclaimed, err
		}
		reclaimed += freed
		count++
	}
	return reclaimed, nil
}

// EvictProducts evicts matching products from every data store ordered by
// orderBy until maxCount products are evicted. A maxCount of zero or less is
// unlimited. It returns the number of products evicted.
func (store *Store) EvictProducts(ctx context.Context, filter Predicate, orderBy OrderBy, targetCollection string, maxCount int, soft bool, dest Destination, cause string, safeMode bool) (count int, err error) {
	defer mon.Task()(&ctx)(&err)

	candidates, err := store.candidates(ctx, filter, orderBy, targetCollection, "")
	if err != nil {
		return 0, err
	}

	for i := range candidates {
		if maxCount > 0 && count >= maxCount {
			break
		}
		if err := ctx.Err(); err != nil {
			return count, err
		}

		stores := append([]string(nil), candidates[i].Stores...)
		if _, err := store.evict(ctx, &candidates[i], stores, soft, dest, cause, safeMode); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (store *Store) candidates(ctx context.Context, filter Predicate, orderBy OrderBy, targetCollection, dataStore string) ([]Product, error) {
	if err := orderBy.Validate(); err != nil {
		return nil, err
	}
	if filter == nil {
		filter = All
	}

	products, err := store.db.List(ctx)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	candidates := products[:0]
	for _, p := range products {
		switch {
		case p.Evicted:
		case targetCollection != "" && p.Collection != targetCollection:
		case dataStore != "" && !p.InStore(dataStore):
		case !filter(&p):
		default:
			candidates = append(candidates, p)
		}
	}
	Sort(candidates, orderBy)
	return candidates, nil
}

// evict removes the bytes of p from the given data stores and persists the
// catalogue change. Every product is committed on its own so an interrupted
// run leaves the catalogue consistent.
func (store *Store) evict(ctx context.Context, p *Product, dataStores []string, soft bool, dest Destination, cause string, safeMode bool) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	log := store.log.With(
		zap.String("Product", p.ID),
		zap.String("Cause", cause),
		zap.Stringer("Destination", dest),
		zap.Bool("Soft", soft),
		zap.Bool("Safe Mode", safeMode))

	if soft {
		p.Evicted = true
		if err := store.db.Put(ctx, *p); err != nil {
			return 0, Error.Wrap(err)
		}
		log.Debug("product marked evicted")
		evictedCount.Inc(1)
		return p.Size, nil
	}

	var group errs.Group
	remaining := p.Stores[:0]
	for _, dataStore := range p.Stores {
		if !contains(dataStores, dataStore) {
			remaining = append(remaining, dataStore)
			continue
		}
		group.Add(store.removeBytes(dataStore, p.ID, dest, safeMode))
	}
	if err := group.Err(); err != nil {
		return 0, Error.Wrap(err)
	}
	p.Stores = remaining

	if len(p.Stores) == 0 {
		err = store.db.Delete(ctx, p.ID)
	} else {
		err = store.db.Put(ctx, *p)
	}
	if err != nil {
		return 0, Error.Wrap(err)
	}

	log.Debug("product evicted", zap.Strings("Data Stores", dataStores))
	evictedCount.Inc(1)
	evictedBytes.Inc(p.Size)
	return p.Size, nil
}

func (store *Store) removeBytes(dataStore, id string, dest Destination, safeMode bool) error {
	path := store.path(dataStore, id)

	var target string
	switch {
	case dest == DestinationTrash && store.trashDir != "":
		target = filepath.Join(store.trashDir, dataStore, id)
	case safeMode:
		target = filepath.Join(store.config.QuarantineDir, dataStore, id)
	}

	if target == "" {
		err := os.Remove(path)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return err
	}
	err := os.Rename(path, target)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
