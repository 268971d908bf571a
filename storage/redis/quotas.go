// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package redis

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/go-redis/redis"
	"go.uber.org/zap"

	"storj.io/keeper/lifecycle/quota"
)

// Quotas stores quota entries so that several processes share admission
// counts. The entries of a key live in one hash field-indexed by object id,
// and a set per quota and object lists the hashes holding the object.
type Quotas Client

var _ quota.DB = (*Quotas)(nil)

// Quotas returns the quota database of the client.
func (client *Client) Quotas() *Quotas { return (*Quotas)(client) }

func entriesKey(key quota.Key) string {
	return "quota:" + key.Store + ":" + key.Quota + ":" + key.Owner
}

func objectKey(name, objectID string) string {
	return "quota-object:" + name + ":" + objectID
}

// Insert inserts or replaces an entry.
func (db *Quotas) Insert(ctx context.Context, entry quota.Entry) (err error) {
	defer mon.Task()(&ctx)(&err)

	data, err := json.Marshal(entry)
	if err != nil {
		return Error.Wrap(err)
	}

	hash := entriesKey(entry.Key)
	_, err = db.db.WithContext(ctx).TxPipelined(func(pipe redis.Pipeliner) error {
		pipe.HSet(hash, entry.ObjectID, data)
		pipe.SAdd(objectKey(entry.Quota, entry.ObjectID), hash)
		return nil
	})
	return Error.Wrap(err)
}

// Delete removes the entry of key for objectID.
func (db *Quotas) Delete(ctx context.Context, key quota.Key, objectID string) (err error) {
	defer mon.Task()(&ctx)(&err)

	hash := entriesKey(key)
	_, err = db.db.WithContext(ctx).TxPipelined(func(pipe redis.Pipeliner) error {
		pipe.HDel(hash, objectID)
		pipe.SRem(objectKey(key.Quota, objectID), hash)
		return nil
	})
	return Error.Wrap(err)
}

// Count returns the number of entries of key.
func (db *Quotas) Count(ctx context.Context, key quota.Key) (_ int, err error) {
	defer mon.Task()(&ctx)(&err)

	count, err := db.db.WithContext(ctx).HLen(entriesKey(key)).Result()
	return int(count), Error.Wrap(err)
}

// Exists returns whether key has an entry for objectID.
func (db *Quotas) Exists(ctx context.Context, key quota.Key, objectID string) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	exists, err := db.db.WithContext(ctx).HExists(entriesKey(key), objectID).Result()
	return exists, Error.Wrap(err)
}

// List returns the entries of key ordered by object id.
func (db *Quotas) List(ctx context.Context, key quota.Key) (_ []quota.Entry, err error) {
	defer mon.Task()(&ctx)(&err)

	fields, err := db.db.WithContext(ctx).HGetAll(entriesKey(key)).Result()
	if err != nil {
		return nil, Error.Wrap(err)
	}

	entries := make([]quota.Entry, 0, len(fields))
	for objectID, data := range fields {
		var entry quota.Entry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, Error.New("entry %q: %v", objectID, err)
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, k int) bool {
		return entries[i].ObjectID < entries[k].ObjectID
	})
	return entries, nil
}

// DeleteObject removes every entry of the named quota for objectID.
func (db *Quotas) DeleteObject(ctx context.Context, name, objectID string) (_ int, err error) {
	defer mon.Task()(&ctx)(&err)

	client := db.db.WithContext(ctx)
	index := objectKey(name, objectID)

	hashes, err := client.SMembers(index).Result()
	if err != nil {
		return 0, Error.Wrap(err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	var deletes []*redis.IntCmd
	_, err = client.TxPipelined(func(pipe redis.Pipeliner) error {
		for _, hash := range hashes {
			deletes = append(deletes, pipe.HDel(hash, objectID))
		}
		pipe.Del(index)
		return nil
	})
	if err != nil {
		return 0, Error.Wrap(err)
	}

	count := 0
	for _, cmd := range deletes {
		count += int(cmd.Val())
	}
	if count > 0 {
		db.log.Debug("released quota entries", zap.String("Quota", name), zap.String("Object", objectID), zap.Int("Count", count))
	}
	return count, nil
}
