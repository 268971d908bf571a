// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package eviction_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/keeper/internal/testcontext"
	"storj.io/keeper/lifecycle/eviction"
)

func TestWorker_Order(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var mu sync.Mutex
	var performed []string
	worker := eviction.NewWorker(zaptest.NewLogger(t), func(ctx context.Context, name string) {
		mu.Lock()
		defer mu.Unlock()
		performed = append(performed, name)
	})

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, worker.Submit(name))
	}
	require.Equal(t, 3, worker.Len())

	ctx.Go(func() error { return worker.Run(ctx) })
	worker.WaitUntilEmpty()
	require.NoError(t, worker.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"a", "b", "c"}, performed)

	require.Error(t, worker.Submit("d"))
}

func TestWorker_RunAfterClose(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	worker := eviction.NewWorker(zaptest.NewLogger(t), func(context.Context, string) {})
	require.NoError(t, worker.Close())
	require.Error(t, worker.Run(ctx))
}

func TestWorker_Canceled(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	worker := eviction.NewWorker(zaptest.NewLogger(t), func(context.Context, string) {})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- worker.Run(runCtx) }()
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	require.Error(t, worker.Submit("a"))
}
