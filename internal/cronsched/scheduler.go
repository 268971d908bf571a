// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package cronsched runs callbacks on cron expressions.
package cronsched

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var (
	mon = monkit.Package()

	// Error is the default cronsched errs class.
	Error = errs.Class("cron scheduler")
)

// Parser accepts standard five field expressions and descriptors such as
// @daily or @every 1h.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate returns an error when spec is not a valid cron expression.
func Validate(spec string) error {
	_, err := Parser.Parse(spec)
	return Error.Wrap(err)
}

// Scheduler keeps at most one cron entry per id.
//
// architecture: Service
type Scheduler struct {
	log  *zap.Logger
	cron *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID
}

// New creates a scheduler. Options such as cron.WithLocation are passed to
// the underlying cron runner.
func New(log *zap.Logger, options ...cron.Option) *Scheduler {
	options = append([]cron.Option{cron.WithParser(Parser)}, options...)
	return &Scheduler{
		log:     log,
		cron:    cron.New(options...),
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
	}
}

// Validate returns an error when spec cannot be scheduled.
func (scheduler *Scheduler) Validate(spec string) error {
	return Validate(spec)
}

// Schedule registers fn to be called on spec, replacing any entry of id.
func (scheduler *Scheduler) Schedule(id, spec string, fn func(ctx context.Context)) error {
	schedule, err := Parser.Parse(spec)
	if err != nil {
		return Error.New("invalid cron expression %q: %v", spec, err)
	}

	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()

	if entry, ok := scheduler.entries[id]; ok {
		scheduler.cron.Remove(entry)
	}
	scheduler.entries[id] = scheduler.cron.Schedule(schedule, cron.FuncJob(func() {
		scheduler.mu.Lock()
		ctx := scheduler.ctx
		scheduler.mu.Unlock()

		scheduler.log.Debug("cron triggered", zap.String("ID", id))
		fn(ctx)
	}))
	return nil
}

// Unschedule removes the entry of id. Unknown ids are ignored.
func (scheduler *Scheduler) Unschedule(id string) {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()

	if entry, ok := scheduler.entries[id]; ok {
		scheduler.cron.Remove(entry)
		delete(scheduler.entries, id)
	}
}

// Scheduled returns whether id has an entry.
func (scheduler *Scheduler) Scheduled(id string) bool {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	_, ok := scheduler.entries[id]
	return ok
}

// Run fires entries until ctx is canceled and waits for running callbacks
// to return. Callbacks receive ctx.
func (scheduler *Scheduler) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	scheduler.mu.Lock()
	scheduler.ctx = ctx
	scheduler.mu.Unlock()

	scheduler.cron.Start()
	<-ctx.Done()
	<-scheduler.cron.Stop().Done()
	return nil
}
