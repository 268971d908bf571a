// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package boltdb

import (
	"context"
	"sort"

	"github.com/boltdb/bolt"

	"storj.io/keeper/lifecycle/fetchorder"
)

// orders implements fetchorder.DB.
type orders struct {
	db *bolt.DB
}

func orderKey(key fetchorder.Key) []byte {
	return []byte(key.Store + "\x00" + key.ObjectID)
}

// Get returns the order stored under key.
func (db *orders) Get(ctx context.Context, key fetchorder.Key) (_ fetchorder.Order, err error) {
	defer mon.Task()(&ctx)(&err)

	var order fetchorder.Order
	err = view(ctx, db.db, func(tx *bolt.Tx) error {
		found, err := get(tx.Bucket(orderBucket), orderKey(key), &order)
		if err != nil {
			return err
		}
		if !found {
			return fetchorder.ErrNotFound.New("%s in %s", key.ObjectID, key.Store)
		}
		return nil
	})
	return order, err
}

// Update atomically loads, modifies and stores the order under key.
func (db *orders) Update(ctx context.Context, key fetchorder.Key, fn func(order *fetchorder.Order, found bool) error) (_ fetchorder.Order, err error) {
	defer mon.Task()(&ctx)(&err)

	var order fetchorder.Order
	err = update(ctx, db.db, func(tx *bolt.Tx) error {
		bucket := tx.Bucket(orderBucket)
		found, err := get(bucket, orderKey(key), &order)
		if err != nil {
			return err
		}
		if !found {
			order = fetchorder.Order{Key: key}
		}
		if err := fn(&order, found); err != nil {
			return err
		}
		order.Key = key
		return put(bucket, orderKey(key), order)
	})
	if err != nil {
		return fetchorder.Order{}, err
	}
	return order, nil
}

// FindByObject returns the orders of objectID in every store.
func (db *orders) FindByObject(ctx context.Context, objectID string) (_ []fetchorder.Order, err error) {
	defer mon.Task()(&ctx)(&err)

	all, err := db.all(ctx)
	if err != nil {
		return nil, err
	}
	var found []fetchorder.Order
	for _, order := range all {
		if order.ObjectID == objectID {
			found = append(found, order)
		}
	}
	return found, nil
}

// Delete removes the order under key.
func (db *orders) Delete(ctx context.Context, key fetchorder.Key) (err error) {
	defer mon.Task()(&ctx)(&err)

	return update(ctx, db.db, func(tx *bolt.Tx) error {
		bucket := tx.Bucket(orderBucket)
		if bucket.Get(orderKey(key)) == nil {
			return fetchorder.ErrNotFound.New("%s in %s", key.ObjectID, key.Store)
		}
		return Error.Wrap(bucket.Delete(orderKey(key)))
	})
}

// List returns the orders matching opts ordered by creation.
func (db *orders) List(ctx context.Context, opts fetchorder.ListOptions) (_ []fetchorder.Order, err error) {
	defer mon.Task()(&ctx)(&err)

	all, err := db.all(ctx)
	if err != nil {
		return nil, err
	}

	matched := all[:0]
	for i := range all {
		if opts.Match(&all[i]) {
			matched = append(matched, all[i])
		}
	}
	sort.SliceStable(matched, func(i, k int) bool {
		return matched[i].CreatedAt.Before(matched[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

func (db *orders) all(ctx context.Context) (all []fetchorder.Order, err error) {
	err = view(ctx, db.db, func(tx *bolt.Tx) error {
		all, err = list[fetchorder.Order](tx.Bucket(orderBucket))
		return err
	})
	return all, err
}
