// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package boltdbtest

// This package should be referenced only in test files!

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"storj.io/keeper/internal/testcontext"
	"storj.io/keeper/storage/boltdb"
)

// Run opens a fresh database in a temporary directory and runs test with it.
func Run(t *testing.T, test func(ctx *testcontext.Context, t *testing.T, db *boltdb.DB)) {
	t.Helper()

	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db, err := boltdb.Open(zaptest.NewLogger(t), ctx.File("keeper.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Check(db.Close)

	test(ctx, t, db)
}
