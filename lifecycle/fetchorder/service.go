// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package fetchorder

import (
	"context"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"storj.io/keeper/internal/sync2"
	"storj.io/keeper/lifecycle/quota"
)

// Config defines parameters for fetch order tracking.
type Config struct {
	MaxConcurrentFetches int           `help:"how many products a requester may fetch concurrently from one data store (0 for unlimited)" default:"4"`
	PollInterval         time.Duration `help:"how frequently unfinished fetch orders are polled" default:"1m0s"`
	Retention            time.Duration `help:"how long finished fetch orders are kept" default:"24h0m0s"`
	ArchiveDir           string        `help:"directory products are restored from, one sub-directory per data store (defaults to the eviction trash path)" default:""`
	RestoreDelay         time.Duration `help:"how long a restore from the archive takes before the bytes are copied back" default:"0s"`
}

// JobState is the state of a retrieval job as reported by the data store.
type JobState struct {
	Status              Status
	EstimatedCompletion *time.Time
	Message             string
}

// Fetcher starts and inspects retrieval jobs of a data store.
type Fetcher interface {
	// StartFetch starts retrieving objectID and returns the job handle.
	StartFetch(ctx context.Context, store, objectID string) (jobID string, eta *time.Time, err error)
	// JobStatus returns the current state of a job.
	JobStatus(ctx context.Context, store, jobID string) (JobState, error)
}

// FetchRequest is a request by a requester to make a product available.
type FetchRequest struct {
	Store     string
	ObjectID  string
	Requester string
}

// Service tracks fetch orders.
//
// architecture: Service
type Service struct {
	log     *zap.Logger
	db      DB
	gate    *quota.Gate
	fetcher Fetcher
	clock   clock.PassiveClock
	config  Config

	keys sync2.KeyMutex[Key]
}

// NewService creates a new fetch order service.
func NewService(log *zap.Logger, db DB, gate *quota.Gate, fetcher Fetcher, clk clock.PassiveClock, config Config) *Service {
	return &Service{
		log:     log,
		db:      db,
		gate:    gate,
		fetcher: fetcher,
		clock:   clk,
		config:  config,
	}
}

// Fetch makes the product of req available. When an order already exists
// the requester joins its owners, otherwise a new job is admitted against
// the requester's quota and started. A failed order is retried the same way.
func (service *Service) Fetch(ctx context.Context, req FetchRequest) (order Order, err error) {
	defer mon.Task()(&ctx)(&err)

	key := Key{Store: req.Store, ObjectID: req.ObjectID}
	unlock := service.keys.Lock(key)
	defer unlock()

	order, err = service.db.Get(ctx, key)
	switch {
	case err == nil && order.Status != Failed:
		return service.AddOwner(ctx, order, req.Requester)
	case err != nil && !ErrNotFound.Has(err):
		return Order{}, Error.Wrap(err)
	}
	retry := err == nil

	if service.fetcher == nil {
		return Order{}, Error.New("data store %q does not support asynchronous fetches", req.Store)
	}

	quotaKey := quota.Key{Store: req.Store, Quota: quota.AsyncFetch, Owner: req.Requester}
	err = service.gate.PerformQuotaCappedOperation(ctx, quotaKey, quota.Operation{
		PreUpdate: func(ctx context.Context, tx quota.Tx) error {
			return tx.Insert(ctx, quota.Entry{
				Key:       quotaKey,
				ObjectID:  req.ObjectID,
				Timestamp: service.clock.Now(),
			})
		},
		PreCheck: quota.AtMost(quotaKey, service.config.MaxConcurrentFetches),
		Perform: func(ctx context.Context) error {
			jobID, eta, err := service.fetcher.StartFetch(ctx, req.Store, req.ObjectID)
			if err != nil {
				return Error.Wrap(err)
			}
			order, err = service.RefreshOrCreate(ctx, req.ObjectID, req.Store, jobID, Pending, eta, "fetch requested")
			if err != nil {
				return err
			}
			order, err = service.AddOwner(ctx, order, req.Requester)
			return err
		},
	})
	if err != nil {
		return Order{}, err
	}

	message := "fetch order created"
	if retry {
		message = "failed fetch order restarted"
	}
	service.log.Info(message,
		zap.String("Store", req.Store),
		zap.String("Object", req.ObjectID),
		zap.String("Requester", req.Requester),
		zap.String("Job", order.JobID))
	return order, nil
}

// RefreshOrCreate stores the state reported by the data store for the order
// of objectID in store, creating the order when there is none.
func (service *Service) RefreshOrCreate(ctx context.Context, objectID, store, jobID string, status Status, eta *time.Time, message string) (_ Order, err error) {
	defer mon.Task()(&ctx)(&err)

	now := service.clock.Now()
	order, err := service.db.Update(ctx, Key{Store: store, ObjectID: objectID}, func(order *Order, found bool) error {
		if !found {
			order.CreatedAt = now
		}
		order.JobID = jobID
		order.Status = status
		order.EstimatedCompletion = eta
		order.StatusMessage = message
		order.UpdatedAt = now
		return nil
	})
	return order, Error.Wrap(err)
}

// SetRunning marks the orders of objectID as running. It returns false when
// there is no order for objectID, meaning the object is not being fetched.
func (service *Service) SetRunning(ctx context.Context, objectID, jobID string, eta *time.Time, message string) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	orders, err := service.db.FindByObject(ctx, objectID)
	if err != nil {
		return false, Error.Wrap(err)
	}

	now := service.clock.Now()
	var updated bool
	for _, order := range orders {
		_, err := service.db.Update(ctx, order.Key, func(current *Order, found bool) error {
			if !found {
				return ErrNotFound.New("%s in %s", order.ObjectID, order.Store)
			}
			if jobID != "" {
				current.JobID = jobID
			}
			current.Status = Running
			current.EstimatedCompletion = eta
			current.StatusMessage = message
			current.UpdatedAt = now
			return nil
		})
		if err != nil {
			if ErrNotFound.Has(err) {
				service.log.Warn("fetch order vanished while marking running", zap.String("Object", objectID), zap.String("Store", order.Store))
				continue
			}
			return updated, Error.Wrap(err)
		}
		updated = true
	}
	return updated, nil
}

// AddOwner adds requester to the owners of order. The order is read again
// before the change so that concurrent additions are not lost.
func (service *Service) AddOwner(ctx context.Context, order Order, requester string) (_ Order, err error) {
	defer mon.Task()(&ctx)(&err)

	updated, err := service.db.Update(ctx, order.Key, func(current *Order, found bool) error {
		if !found {
			return ErrNotFound.New("%s in %s", order.ObjectID, order.Store)
		}
		if !current.OwnedBy(requester) {
			current.Owners = append(current.Owners, requester)
		}
		return nil
	})
	if err != nil {
		if ErrNotFound.Has(err) {
			service.log.Warn("fetch order vanished while adding owner",
				zap.String("Object", order.ObjectID),
				zap.String("Store", order.Store),
				zap.String("Requester", requester))
			return order, nil
		}
		return order, Error.Wrap(err)
	}
	return updated, nil
}

// Get returns the order of objectID in store.
func (service *Service) Get(ctx context.Context, store, objectID string) (_ Order, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Get(ctx, Key{Store: store, ObjectID: objectID})
}

// List returns the orders matching opts. A limit of zero or less returns
// nothing.
func (service *Service) List(ctx context.Context, opts ListOptions) (_ []Order, err error) {
	defer mon.Task()(&ctx)(&err)

	if opts.Limit <= 0 {
		return nil, nil
	}
	orders, err := service.db.List(ctx, opts)
	return orders, Error.Wrap(err)
}

// Delete removes the orders of objectID and releases the fetch admissions
// held for it.
func (service *Service) Delete(ctx context.Context, objectID string) (err error) {
	defer mon.Task()(&ctx)(&err)

	orders, err := service.db.FindByObject(ctx, objectID)
	if err != nil {
		return Error.Wrap(err)
	}
	for _, order := range orders {
		if err := service.db.Delete(ctx, order.Key); err != nil && !ErrNotFound.Has(err) {
			return Error.Wrap(err)
		}
	}

	released, err := service.gate.ReleaseObject(ctx, quota.AsyncFetch, objectID)
	if err != nil {
		return Error.Wrap(err)
	}

	service.log.Debug("fetch orders deleted",
		zap.String("Object", objectID),
		zap.Int("Orders", len(orders)),
		zap.Int("Released", released))
	return nil
}
