// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package quota

import (
	"context"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/keeper/internal/sync2"
)

var rejected = mon.Counter("quota_rejected")

// Tx is the view of the quota entries handed to the steps of an Operation.
// Mutations made through Tx are undone when the operation fails.
type Tx interface {
	Insert(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key Key, objectID string) error
	Count(ctx context.Context, key Key) (int, error)
	Exists(ctx context.Context, key Key, objectID string) (bool, error)
}

// Operation is a quota capped operation.
//
// PreUpdate and PostUpdate are optional.
type Operation struct {
	PreUpdate  func(ctx context.Context, tx Tx) error
	PreCheck   func(ctx context.Context, tx Tx) (bool, error)
	Perform    func(ctx context.Context) error
	PostUpdate func(ctx context.Context, tx Tx) error
}

// AtMost returns a PreCheck that passes while key holds at most limit
// entries. A limit of zero or less never rejects.
func AtMost(key Key, limit int) func(ctx context.Context, tx Tx) (bool, error) {
	return func(ctx context.Context, tx Tx) (bool, error) {
		if limit <= 0 {
			return true, nil
		}
		count, err := tx.Count(ctx, key)
		if err != nil {
			return false, err
		}
		return count <= limit, nil
	}
}

// Gate admits quota capped operations.
//
// architecture: Service
type Gate struct {
	log   *zap.Logger
	db    DB
	locks sync2.KeyMutex[Key]
}

// NewGate creates a new gate storing its entries in db.
func NewGate(log *zap.Logger, db DB) *Gate {
	return &Gate{
		log: log,
		db:  db,
	}
}

// PerformQuotaCappedOperation runs op under the lock of key.
//
// PreUpdate runs first, then PreCheck. Perform and PostUpdate only run when
// PreCheck passes; a failing PreCheck returns ErrQuotaExceeded. When any
// step fails every mutation done through Tx is rolled back so that no
// admission leaks.
func (gate *Gate) PerformQuotaCappedOperation(ctx context.Context, key Key, op Operation) (err error) {
	defer mon.Task()(&ctx)(&err)

	if op.PreCheck == nil || op.Perform == nil {
		return Error.New("operation requires PreCheck and Perform")
	}

	unlock := gate.locks.Lock(key)
	defer unlock()

	tx := &journal{db: gate.db}
	defer func() {
		if err == nil {
			return
		}
		if rollbackErr := tx.rollback(context.WithoutCancel(ctx)); rollbackErr != nil {
			gate.log.Error("quota rollback failed",
				zap.String("Store", key.Store),
				zap.String("Quota", key.Quota),
				zap.String("Owner", key.Owner),
				zap.Error(rollbackErr))
			err = errs.Combine(err, rollbackErr)
		}
	}()

	if op.PreUpdate != nil {
		if err := op.PreUpdate(ctx, tx); err != nil {
			return Error.Wrap(err)
		}
	}

	ok, err := op.PreCheck(ctx, tx)
	if err != nil {
		return err
	}
	if !ok {
		rejected.Inc(1)
		return ErrQuotaExceeded.New("store %q, quota %q, owner %q", key.Store, key.Quota, key.Owner)
	}

	if err := op.Perform(ctx); err != nil {
		return err
	}

	if op.PostUpdate != nil {
		if err := op.PostUpdate(ctx, tx); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

// Count returns the current concurrency of key.
func (gate *Gate) Count(ctx context.Context, key Key) (_ int, err error) {
	defer mon.Task()(&ctx)(&err)
	count, err := gate.db.Count(ctx, key)
	return count, Error.Wrap(err)
}

// Release removes the entry of key for objectID.
func (gate *Gate) Release(ctx context.Context, key Key, objectID string) (err error) {
	defer mon.Task()(&ctx)(&err)

	unlock := gate.locks.Lock(key)
	defer unlock()

	return Error.Wrap(gate.db.Delete(ctx, key, objectID))
}

// ReleaseObject removes every entry of quota registered for objectID.
func (gate *Gate) ReleaseObject(ctx context.Context, quota, objectID string) (_ int, err error) {
	defer mon.Task()(&ctx)(&err)
	count, err := gate.db.DeleteObject(ctx, quota, objectID)
	return count, Error.Wrap(err)
}

// journal forwards to DB and remembers how to undo every mutation.
type journal struct {
	db   DB
	undo []func(ctx context.Context) error
}

func (tx *journal) Insert(ctx context.Context, entry Entry) error {
	previous, found, err := tx.find(ctx, entry.Key, entry.ObjectID)
	if err != nil {
		return err
	}
	if err := tx.db.Insert(ctx, entry); err != nil {
		return err
	}
	tx.undo = append(tx.undo, func(ctx context.Context) error {
		if found {
			return tx.db.Insert(ctx, previous)
		}
		return tx.db.Delete(ctx, entry.Key, entry.ObjectID)
	})
	return nil
}

func (tx *journal) Delete(ctx context.Context, key Key, objectID string) error {
	previous, found, err := tx.find(ctx, key, objectID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := tx.db.Delete(ctx, key, objectID); err != nil {
		return err
	}
	tx.undo = append(tx.undo, func(ctx context.Context) error {
		return tx.db.Insert(ctx, previous)
	})
	return nil
}

func (tx *journal) Count(ctx context.Context, key Key) (int, error) {
	return tx.db.Count(ctx, key)
}

func (tx *journal) Exists(ctx context.Context, key Key, objectID string) (bool, error) {
	return tx.db.Exists(ctx, key, objectID)
}

func (tx *journal) find(ctx context.Context, key Key, objectID string) (Entry, bool, error) {
	entries, err := tx.db.List(ctx, key)
	if err != nil {
		return Entry{}, false, err
	}
	for _, entry := range entries {
		if entry.ObjectID == objectID {
			return entry, true, nil
		}
	}
	return Entry{}, false, nil
}

// rollback undoes the recorded mutations in reverse order.
func (tx *journal) rollback(ctx context.Context) error {
	var group errs.Group
	for i := len(tx.undo) - 1; i >= 0; i-- {
		group.Add(tx.undo[i](ctx))
	}
	tx.undo = nil
	return group.Err()
}
