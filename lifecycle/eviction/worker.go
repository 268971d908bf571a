// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package eviction

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Worker executes queued policy runs one at a time in submission order.
//
// architecture: Worker
type Worker struct {
	log     *zap.Logger
	perform func(ctx context.Context, name string)

	cond    sync.Cond
	queue   []string
	working bool

	closedOnce sync.Once
	closed     chan struct{}
	started    bool
}

// NewWorker creates a worker calling perform for every submitted policy.
func NewWorker(log *zap.Logger, perform func(ctx context.Context, name string)) *Worker {
	return &Worker{
		log:     log,
		perform: perform,
		cond:    *sync.NewCond(&sync.Mutex{}),
		closed:  make(chan struct{}),
	}
}

// Submit queues a run of the named policy.
func (worker *Worker) Submit(name string) error {
	worker.cond.L.Lock()
	defer worker.cond.L.Unlock()

	select {
	case <-worker.closed:
		return Error.New("eviction worker is closed")
	default:
	}

	worker.queue = append(worker.queue, name)
	worker.log.Debug("eviction run queued", zap.String("Policy", name), zap.Int("Queue Length", len(worker.queue)))
	worker.cond.Broadcast()
	return nil
}

// Run processes queued runs until ctx is canceled or the worker is closed.
func (worker *Worker) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	worker.cond.L.Lock()
	defer worker.cond.L.Unlock()

	if worker.started {
		return Error.New("eviction worker already started")
	}
	worker.started = true

	select {
	case <-worker.closed:
		return Error.New("eviction worker closed")
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, func() {
		worker.cond.L.Lock()
		defer worker.cond.L.Unlock()
		worker.closedOnce.Do(func() { close(worker.closed) })
		worker.cond.Broadcast()
	})
	defer stop()

	for {
		select {
		case <-worker.closed:
			worker.queue = nil
			worker.cond.Broadcast()
			return ctx.Err()
		default:
		}

		if len(worker.queue) == 0 {
			worker.cond.Wait()
			continue
		}

		name := worker.queue[0]
		worker.queue = worker.queue[1:]
		worker.working = true

		worker.cond.L.Unlock()
		worker.perform(ctx, name)
		worker.cond.L.Lock()

		worker.working = false
		worker.cond.Broadcast()
	}
}

// Len returns the number of runs waiting in the queue.
func (worker *Worker) Len() int {
	worker.cond.L.Lock()
	defer worker.cond.L.Unlock()
	return len(worker.queue)
}

// WaitUntilEmpty blocks until the queue is empty and no run is executing.
func (worker *Worker) WaitUntilEmpty() {
	worker.cond.L.Lock()
	defer worker.cond.L.Unlock()

	for len(worker.queue) > 0 || worker.working {
		select {
		case <-worker.closed:
			return
		default:
		}
		worker.cond.Wait()
	}
}

// Close stops the worker. Queued runs are dropped.
func (worker *Worker) Close() error {
	worker.cond.L.Lock()
	defer worker.cond.L.Unlock()

	worker.closedOnce.Do(func() { close(worker.closed) })
	worker.cond.Broadcast()
	return nil
}
