// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package fetchorder

import (
	"context"

	"go.uber.org/zap"

	"storj.io/keeper/internal/sync2"
	"storj.io/keeper/lifecycle/quota"
)

// Poller refreshes unfinished orders from their data stores and deletes
// finished orders once their retention has passed.
//
// architecture: Chore
type Poller struct {
	log     *zap.Logger
	service *Service

	Loop *sync2.Cycle
}

// NewPoller creates a new fetch order poller.
func NewPoller(log *zap.Logger, service *Service, config Config) *Poller {
	return &Poller{
		log:     log,
		service: service,
		Loop:    sync2.NewCycle(config.PollInterval),
	}
}

// Run runs the poller until ctx is canceled.
func (poller *Poller) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return poller.Loop.Run(ctx, func(ctx context.Context) error {
		if err := poller.Poll(ctx); err != nil {
			poller.log.Error("polling fetch orders failed", zap.Error(err))
		}
		return nil
	})
}

// Poll refreshes every order once. Orders whose job is unknown to the data
// store are failed.
func (poller *Poller) Poll(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	service := poller.service
	orders, err := service.db.List(ctx, ListOptions{})
	if err != nil {
		return Error.Wrap(err)
	}

	now := service.clock.Now()
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return err
		}

		log := poller.log.With(zap.String("Store", order.Store), zap.String("Object", order.ObjectID))

		if order.Status.Finished() {
			if now.Sub(order.UpdatedAt) > service.config.Retention {
				if err := service.Delete(ctx, order.ObjectID); err != nil {
					log.Warn("unable to delete expired fetch order", zap.Error(err))
				}
			}
			continue
		}

		if order.JobID == "" || service.fetcher == nil {
			continue
		}

		state, err := service.fetcher.JobStatus(ctx, order.Store, order.JobID)
		switch {
		case ErrNotFound.Has(err):
			log.Warn("fetch job no longer exists", zap.String("Job", order.JobID), zap.Error(err))
			state = JobState{Status: Failed, Message: "fetch job no longer exists"}
		case err != nil:
			log.Warn("unable to poll fetch job", zap.String("Job", order.JobID), zap.Error(err))
			continue
		}

		updated, err := service.RefreshOrCreate(ctx, order.ObjectID, order.Store, order.JobID, state.Status, state.EstimatedCompletion, state.Message)
		if err != nil {
			log.Warn("unable to refresh fetch order", zap.Error(err))
			continue
		}

		if updated.Status.Finished() {
			released, err := service.gate.ReleaseObject(ctx, quota.AsyncFetch, order.ObjectID)
			if err != nil {
				log.Warn("unable to release fetch admissions", zap.Error(err))
				continue
			}
			log.Info("fetch order finished", zap.String("Status", string(updated.Status)), zap.Int("Released", released))
		}
	}
	return nil
}

// Close stops the poller.
func (poller *Poller) Close() error {
	poller.Loop.Close()
	return nil
}
