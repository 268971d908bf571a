// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package quota bounds the number of concurrent operations per owner.
//
// Every admitted operation is recorded as an Entry. The number of entries
// under a Key is the current concurrency of that key.
package quota

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var (
	mon = monkit.Package()

	// Error is the default quota errs class.
	Error = errs.Class("quota")
	// ErrQuotaExceeded is returned when an operation would exceed its cap.
	ErrQuotaExceeded = errs.Class("quota exceeded")
)

// AsyncFetch is the quota name under which asynchronous fetches are admitted.
const AsyncFetch = "async-fetch"

// Key identifies a quota counter.
type Key struct {
	Store string
	Quota string
	Owner string
}

// Entry is one admitted concurrent unit.
type Entry struct {
	Key
	ObjectID  string
	Timestamp time.Time
}

// DB stores quota entries.
type DB interface {
	// Insert inserts or replaces an entry.
	Insert(ctx context.Context, entry Entry) error
	// Delete removes the entry of key for objectID. Deleting a missing entry is not an error.
	Delete(ctx context.Context, key Key, objectID string) error
	// Count returns the number of entries of key.
	Count(ctx context.Context, key Key) (int, error)
	// Exists returns whether key has an entry for objectID.
	Exists(ctx context.Context, key Key, objectID string) (bool, error)
	// List returns the entries of key.
	List(ctx context.Context, key Key) ([]Entry, error)
	// DeleteObject removes every entry named quota for objectID, across all
	// stores and owners, and returns how many were removed.
	DeleteObject(ctx context.Context, quota, objectID string) (int, error)
}
