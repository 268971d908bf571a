// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package redistest runs tests against an in-memory redis server.
package redistest

// This package should be referenced only in test files!

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap/zaptest"

	"storj.io/keeper/internal/testcontext"
	"storj.io/keeper/storage/redis"
)

// Run starts a miniredis server, connects a client to it and runs test.
func Run(t *testing.T, test func(ctx *testcontext.Context, t *testing.T, client *redis.Client, server *miniredis.Miniredis)) {
	t.Helper()

	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := miniredis.RunT(t)

	client, err := redis.NewClientFrom(zaptest.NewLogger(t), "redis://"+server.Addr()+"?db=0")
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Check(client.Close)

	test(ctx, t, client, server)
}
