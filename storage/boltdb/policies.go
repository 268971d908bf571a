// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package boltdb

import (
	"context"

	"github.com/boltdb/bolt"

	"storj.io/keeper/lifecycle/eviction"
)

// policies implements eviction.DB.
type policies struct {
	db *bolt.DB
}

// List returns all policies ordered by name.
func (db *policies) List(ctx context.Context) (_ []eviction.Policy, err error) {
	defer mon.Task()(&ctx)(&err)

	var all []eviction.Policy
	err = view(ctx, db.db, func(tx *bolt.Tx) error {
		all, err = list[eviction.Policy](tx.Bucket(policyBucket))
		return err
	})
	return all, err
}

// Get returns the policy with the given name.
func (db *policies) Get(ctx context.Context, name string) (_ eviction.Policy, err error) {
	defer mon.Task()(&ctx)(&err)

	var policy eviction.Policy
	err = view(ctx, db.db, func(tx *bolt.Tx) error {
		found, err := get(tx.Bucket(policyBucket), []byte(name), &policy)
		if err != nil {
			return err
		}
		if !found {
			return eviction.ErrNotFound.New("%q", name)
		}
		return nil
	})
	return policy, err
}

// Create stores a new policy.
func (db *policies) Create(ctx context.Context, policy eviction.Policy) (err error) {
	defer mon.Task()(&ctx)(&err)

	return update(ctx, db.db, func(tx *bolt.Tx) error {
		bucket := tx.Bucket(policyBucket)
		if bucket.Get([]byte(policy.Name)) != nil {
			return eviction.ErrExists.New("%q", policy.Name)
		}
		return put(bucket, []byte(policy.Name), policy)
	})
}

// Update atomically modifies the named policy.
func (db *policies) Update(ctx context.Context, name string, fn func(policy *eviction.Policy) error) (_ eviction.Policy, err error) {
	defer mon.Task()(&ctx)(&err)

	var policy eviction.Policy
	err = update(ctx, db.db, func(tx *bolt.Tx) error {
		bucket := tx.Bucket(policyBucket)
		found, err := get(bucket, []byte(name), &policy)
		if err != nil {
			return err
		}
		if !found {
			return eviction.ErrNotFound.New("%q", name)
		}
		if err := fn(&policy); err != nil {
			return err
		}
		policy.Name = name
		return put(bucket, []byte(name), policy)
	})
	if err != nil {
		return eviction.Policy{}, err
	}
	return policy, nil
}

// Delete removes the named policy.
func (db *policies) Delete(ctx context.Context, name string) (err error) {
	defer mon.Task()(&ctx)(&err)

	return update(ctx, db.db, func(tx *bolt.Tx) error {
		bucket := tx.Bucket(policyBucket)
		if bucket.Get([]byte(name)) == nil {
			return eviction.ErrNotFound.New("%q", name)
		}
		return Error.Wrap(bucket.Delete([]byte(name)))
	})
}
