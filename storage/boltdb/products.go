// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package boltdb

import (
	"context"

	"github.com/boltdb/bolt"

	"storj.io/keeper/lifecycle/product"
)

// products implements product.DB.
type products struct {
	db *bolt.DB
}

// Put inserts or replaces a product.
func (db *products) Put(ctx context.Context, p product.Product) (err error) {
	defer mon.Task()(&ctx)(&err)

	if p.ID == "" {
		return Error.New("product without id")
	}
	return update(ctx, db.db, func(tx *bolt.Tx) error {
		return put(tx.Bucket(productBucket), []byte(p.ID), p)
	})
}

// Get returns the product with the given id.
func (db *products) Get(ctx context.Context, id string) (_ product.Product, err error) {
	defer mon.Task()(&ctx)(&err)

	var p product.Product
	err = view(ctx, db.db, func(tx *bolt.Tx) error {
		found, err := get(tx.Bucket(productBucket), []byte(id), &p)
		if err != nil {
			return err
		}
		if !found {
			return product.ErrNotFound.New("%q", id)
		}
		return nil
	})
	return p, err
}

// Delete removes the product with the given id.
func (db *products) Delete(ctx context.Context, id string) (err error) {
	defer mon.Task()(&ctx)(&err)

	return update(ctx, db.db, func(tx *bolt.Tx) error {
		bucket := tx.Bucket(productBucket)
		if bucket.Get([]byte(id)) == nil {
			return product.ErrNotFound.New("%q", id)
		}
		return Error.Wrap(bucket.Delete([]byte(id)))
	})
}

// List returns all products ordered by id.
func (db *products) List(ctx context.Context) (all []product.Product, err error) {
	defer mon.Task()(&ctx)(&err)

	err = view(ctx, db.db, func(tx *bolt.Tx) error {
		all, err = list[product.Product](tx.Bucket(productBucket))
		return err
	})
	return all, err
}
