// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package boltdb

import (
	"context"

	"github.com/boltdb/bolt"

	"storj.io/keeper/lifecycle/ranking"
)

// sources implements ranking.SourceDB.
type sources struct {
	db *bolt.DB
}

// Get returns the source with the given id.
func (db *sources) Get(ctx context.Context, id string) (_ ranking.Source, err error) {
	defer mon.Task()(&ctx)(&err)

	var source ranking.Source
	err = view(ctx, db.db, func(tx *bolt.Tx) error {
		found, err := get(tx.Bucket(sourceBucket), []byte(id), &source)
		if err != nil {
			return err
		}
		if !found {
			return ranking.ErrNotFound.New("source %q", id)
		}
		return nil
	})
	return source, err
}

// List returns all sources ordered by id.
func (db *sources) List(ctx context.Context) (all []ranking.Source, err error) {
	defer mon.Task()(&ctx)(&err)

	err = view(ctx, db.db, func(tx *bolt.Tx) error {
		all, err = list[ranking.Source](tx.Bucket(sourceBucket))
		return err
	})
	return all, err
}

// Put inserts or replaces a source.
func (db *sources) Put(ctx context.Context, source ranking.Source) (err error) {
	defer mon.Task()(&ctx)(&err)

	if source.ID == "" {
		return Error.New("source without id")
	}
	return update(ctx, db.db, func(tx *bolt.Tx) error {
		return put(tx.Bucket(sourceBucket), []byte(source.ID), source)
	})
}

// Delete removes a source.
func (db *sources) Delete(ctx context.Context, id string) (err error) {
	defer mon.Task()(&ctx)(&err)

	return update(ctx, db.db, func(tx *bolt.Tx) error {
		bucket := tx.Bucket(sourceBucket)
		if bucket.Get([]byte(id)) == nil {
			return ranking.ErrNotFound.New("source %q", id)
		}
		return Error.Wrap(bucket.Delete([]byte(id)))
	})
}

// synchronizers implements ranking.SynchronizerDB.
type synchronizers struct {
	db *bolt.DB
}

// Get returns the synchronizer with the given id.
func (db *synchronizers) Get(ctx context.Context, id string) (_ ranking.Synchronizer, err error) {
	defer mon.Task()(&ctx)(&err)

	var sync ranking.Synchronizer
	err = view(ctx, db.db, func(tx *bolt.Tx) error {
		found, err := get(tx.Bucket(synchronizerBucket), []byte(id), &sync)
		if err != nil {
			return err
		}
		if !found {
			return ranking.ErrNotFound.New("synchronizer %q", id)
		}
		return nil
	})
	return sync, err
}

// List returns all synchronizers ordered by id.
func (db *synchronizers) List(ctx context.Context) (all []ranking.Synchronizer, err error) {
	defer mon.Task()(&ctx)(&err)

	err = view(ctx, db.db, func(tx *bolt.Tx) error {
		all, err = list[ranking.Synchronizer](tx.Bucket(synchronizerBucket))
		return err
	})
	return all, err
}

// Put inserts or replaces a synchronizer.
func (db *synchronizers) Put(ctx context.Context, sync ranking.Synchronizer) (err error) {
	defer mon.Task()(&ctx)(&err)

	if sync.ID == "" {
		return Error.New("synchronizer without id")
	}
	return update(ctx, db.db, func(tx *bolt.Tx) error {
		return put(tx.Bucket(synchronizerBucket), []byte(sync.ID), sync)
	})
}

// Delete removes a synchronizer and its ranking.
func (db *synchronizers) Delete(ctx context.Context, id string) (err error) {
	defer mon.Task()(&ctx)(&err)

	return update(ctx, db.db, func(tx *bolt.Tx) error {
		bucket := tx.Bucket(synchronizerBucket)
		if bucket.Get([]byte(id)) == nil {
			return ranking.ErrNotFound.New("synchronizer %q", id)
		}
		if err := tx.Bucket(rankingBucket).Delete([]byte(id)); err != nil {
			return Error.Wrap(err)
		}
		return Error.Wrap(bucket.Delete([]byte(id)))
	})
}

// rankings stores the latest ranking of every synchronizer. It implements
// ranking.Sink.
type rankings struct {
	db *bolt.DB
}

// SetRanking stores the ranked source ids of a synchronizer.
func (db *rankings) SetRanking(ctx context.Context, synchronizerID string, sourceIDs []string) (err error) {
	defer mon.Task()(&ctx)(&err)

	return update(ctx, db.db, func(tx *bolt.Tx) error {
		return put(tx.Bucket(rankingBucket), []byte(synchronizerID), sourceIDs)
	})
}

// Ranking returns the latest ranked source ids of a synchronizer. A
// synchronizer that was never ranked has an empty ranking.
func (db *rankings) Ranking(ctx context.Context, synchronizerID string) (ids []string, err error) {
	defer mon.Task()(&ctx)(&err)

	err = view(ctx, db.db, func(tx *bolt.Tx) error {
		_, err := get(tx.Bucket(rankingBucket), []byte(synchronizerID), &ids)
		return err
	})
	return ids, err
}
