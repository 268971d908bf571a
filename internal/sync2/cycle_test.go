// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package sync2_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/keeper/internal/sync2"
	"storj.io/keeper/internal/testcontext"
)

func TestCycle_Basic(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var count int64
	cycle := sync2.NewCycle(time.Hour)
	ctx.Go(func() error {
		return cycle.Run(ctx, func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		})
	})

	cycle.TriggerWait()
	cycle.TriggerWait()
	require.GreaterOrEqual(t, atomic.LoadInt64(&count), int64(3))

	cycle.Close()
}

func TestCycle_StopCancelled(t *testing.T) {
	cycle := sync2.NewCycle(time.Hour)
	cycle.Stop()
	cycle.Close()

	// control methods must not block after stop
	cycle.Trigger()
	cycle.TriggerWait()
	cycle.Pause()
}

func TestCycle_Ticks(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	ticked := make(chan struct{}, 10)
	cycle := sync2.NewCycle(time.Millisecond)
	ctx.Go(func() error {
		return cycle.Run(ctx, func(ctx context.Context) error {
			select {
			case ticked <- struct{}{}:
			default:
			}
			return nil
		})
	})

	for i := 0; i < 3; i++ {
		<-ticked
	}
	cycle.Close()
}
