// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package boltdb

import (
	"bytes"
	"context"

	"github.com/boltdb/bolt"

	"storj.io/keeper/lifecycle/quota"
)

// quotas implements quota.DB. Entries are keyed by
// store, quota, owner and object id so that the entries of a quota key are
// adjacent.
type quotas struct {
	db *bolt.DB
}

func quotaPrefix(key quota.Key) []byte {
	return []byte(key.Store + "\x00" + key.Quota + "\x00" + key.Owner + "\x00")
}

func quotaKey(key quota.Key, objectID string) []byte {
	return append(quotaPrefix(key), objectID...)
}

// Insert inserts or replaces an entry.
func (db *quotas) Insert(ctx context.Context, entry quota.Entry) (err error) {
	defer mon.Task()(&ctx)(&err)

	return update(ctx, db.db, func(tx *bolt.Tx) error {
		return put(tx.Bucket(quotaBucket), quotaKey(entry.Key, entry.ObjectID), entry)
	})
}

// Delete removes the entry of key for objectID.
func (db *quotas) Delete(ctx context.Context, key quota.Key, objectID string) (err error) {
	defer mon.Task()(&ctx)(&err)

	return update(ctx, db.db, func(tx *bolt.Tx) error {
		return Error.Wrap(tx.Bucket(quotaBucket).Delete(quotaKey(key, objectID)))
	})
}

// Count returns the number of entries of key.
func (db *quotas) Count(ctx context.Context, key quota.Key) (count int, err error) {
	defer mon.Task()(&ctx)(&err)

	prefix := quotaPrefix(key)
	err = view(ctx, db.db, func(tx *bolt.Tx) error {
		cursor := tx.Bucket(quotaBucket).Cursor()
		for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Exists returns whether key has an entry for objectID.
func (db *quotas) Exists(ctx context.Context, key quota.Key, objectID string) (exists bool, err error) {
	defer mon.Task()(&ctx)(&err)

	err = view(ctx, db.db, func(tx *bolt.Tx) error {
		exists = tx.Bucket(quotaBucket).Get(quotaKey(key, objectID)) != nil
		return nil
	})
	return exists, err
}

// List returns the entries of key.
func (db *quotas) List(ctx context.Context, key quota.Key) (entries []quota.Entry, err error) {
	defer mon.Task()(&ctx)(&err)

	prefix := quotaPrefix(key)
	err = view(ctx, db.db, func(tx *bolt.Tx) error {
		cursor := tx.Bucket(quotaBucket).Cursor()
		for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
			var entry quota.Entry
			if _, err := get(tx.Bucket(quotaBucket), k, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// DeleteObject removes every entry of the named quota for objectID.
func (db *quotas) DeleteObject(ctx context.Context, name, objectID string) (count int, err error) {
	defer mon.Task()(&ctx)(&err)

	err = update(ctx, db.db, func(tx *bolt.Tx) error {
		bucket := tx.Bucket(quotaBucket)
		all, err := list[quota.Entry](bucket)
		if err != nil {
			return err
		}
		for _, entry := range all {
			if entry.Quota != name || entry.ObjectID != objectID {
				continue
			}
			if err := bucket.Delete(quotaKey(entry.Key, entry.ObjectID)); err != nil {
				return Error.Wrap(err)
			}
			count++
		}
		return nil
	})
	return count, err
}
