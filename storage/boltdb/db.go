// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

// Package boltdb implements the keeper databases on a single bolt file.
package boltdb

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/keeper/lifecycle/eviction"
	"storj.io/keeper/lifecycle/fetchorder"
	"storj.io/keeper/lifecycle/product"
	"storj.io/keeper/lifecycle/quota"
	"storj.io/keeper/lifecycle/ranking"
)

var (
	mon = monkit.Package()

	// Error is the default boltdb errs class.
	Error = errs.Class("boltdb")

	defaultTimeout = 1 * time.Second
)

const (
	// fileMode sets permissions so owner can read and write
	fileMode = 0600
)

var (
	policyBucket       = []byte("policies")
	orderBucket        = []byte("orders")
	quotaBucket        = []byte("quotas")
	productBucket      = []byte("products")
	sourceBucket       = []byte("sources")
	synchronizerBucket = []byte("synchronizers")
	rankingBucket      = []byte("rankings")
)

// DB is the bolt backed database of keeper.
type DB struct {
	log  *zap.Logger
	db   *bolt.DB
	Path string
}

// Open opens or creates the database at path.
func Open(log *zap.Logger, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, Error.Wrap(err)
	}

	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: defaultTimeout})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{policyBucket, orderBucket, quotaBucket, productBucket, sourceBucket, synchronizerBucket, rankingBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Combine(Error.Wrap(err), db.Close())
	}

	log.Debug("database opened", zap.String("Path", path))
	return &DB{log: log, db: db, Path: path}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return Error.Wrap(db.db.Close())
}

// Policies returns the eviction policy database.
func (db *DB) Policies() eviction.DB { return &policies{db: db.db} }

// Orders returns the fetch order database.
func (db *DB) Orders() fetchorder.DB { return &orders{db: db.db} }

// Quotas returns the quota entry database.
func (db *DB) Quotas() quota.DB { return &quotas{db: db.db} }

// Products returns the product catalogue.
func (db *DB) Products() product.DB { return &products{db: db.db} }

// Sources returns the source database.
func (db *DB) Sources() ranking.SourceDB { return &sources{db: db.db} }

// Synchronizers returns the synchronizer database.
func (db *DB) Synchronizers() ranking.SynchronizerDB { return &synchronizers{db: db.db} }

// Rankings returns the store of the latest source rankings.
func (db *DB) Rankings() ranking.RankingDB { return &rankings{db: db.db} }

// view runs fn in a read transaction.
func view(ctx context.Context, db *bolt.DB, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.View(fn)
}

// update runs fn in a write transaction.
func update(ctx context.Context, db *bolt.DB, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.Update(fn)
}

func get(bucket *bolt.Bucket, key []byte, value interface{}) (bool, error) {
	data := bucket.Get(key)
	if data == nil {
		return false, nil
	}
	return true, Error.Wrap(json.Unmarshal(data, value))
}

func put(bucket *bolt.Bucket, key []byte, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(bucket.Put(key, data))
}

func list[T any](bucket *bolt.Bucket) ([]T, error) {
	var values []T
	err := bucket.ForEach(func(key, data []byte) error {
		var value T
		if err := json.Unmarshal(data, &value); err != nil {
			return Error.New("%q: %v", key, err)
		}
		values = append(values, value)
		return nil
	})
	return values, err
}
