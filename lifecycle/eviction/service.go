// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package eviction runs eviction policies that reclaim capacity of data
// stores.
package eviction

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"storj.io/keeper/lifecycle/eviction/filter"
	"storj.io/keeper/lifecycle/product"
)

var (
	mon = monkit.Package()

	runsStarted  = mon.Counter("eviction_runs_started")
	runsFailed   = mon.Counter("eviction_runs_failed")
	runsCanceled = mon.Counter("eviction_runs_canceled")

	// Error is the default eviction errs class.
	Error = errs.Class("eviction")
	// ErrNotFound is returned when a policy does not exist.
	ErrNotFound = errs.Class("eviction policy not found")
	// ErrExists is returned when creating a policy whose name is taken.
	ErrExists = errs.Class("eviction policy exists")
	// ErrInvalidPolicy is returned for policies that cannot be executed.
	ErrInvalidPolicy = errs.Class("invalid eviction policy")
)

// Backend removes products from data stores.
type Backend interface {
	// EvictAtLeast evicts products of dataStore until size bytes are
	// reclaimed or maxCount products are evicted, returning the bytes reclaimed.
	EvictAtLeast(ctx context.Context, size int64, dataStore string, filter product.Predicate, orderBy product.OrderBy, targetCollection string, maxCount int, soft bool, dest product.Destination, cause string, safeMode bool) (int64, error)
	// EvictProducts evicts up to maxCount matching products, returning the
	// number of products evicted.
	EvictProducts(ctx context.Context, filter product.Predicate, orderBy product.OrderBy, targetCollection string, maxCount int, soft bool, dest product.Destination, cause string, safeMode bool) (int, error)
}

// Scheduler triggers callbacks on cron schedules.
type Scheduler interface {
	// Schedule registers fn under id, replacing any previous registration.
	Schedule(id, spec string, fn func(ctx context.Context)) error
	// Unschedule removes the registration of id, if any.
	Unschedule(id string)
	// Validate returns an error when spec cannot be scheduled.
	Validate(spec string) error
}

// Config contains configurable values for eviction.
type Config struct {
	TrashPath string `help:"directory receiving evicted bytes, when empty evicted bytes are deleted" default:""`
}

// Service manages eviction policies and executes their runs on a single
// worker.
//
// architecture: Service
type Service struct {
	log       *zap.Logger
	db        DB
	backend   Backend
	scheduler Scheduler
	clock     clock.PassiveClock
	config    Config

	Worker *Worker

	mu      sync.Mutex
	filters map[string]*filter.Filter
}

// NewService creates a new eviction service. scheduler may be nil, in which
// case policies only run on demand.
func NewService(log *zap.Logger, db DB, backend Backend, scheduler Scheduler, clk clock.PassiveClock, config Config) *Service {
	service := &Service{
		log:       log,
		db:        db,
		backend:   backend,
		scheduler: scheduler,
		clock:     clk,
		config:    config,
		filters:   make(map[string]*filter.Filter),
	}
	service.Worker = NewWorker(log.Named("worker"), service.performEviction)
	return service
}

// Init resets policies left QUEUED or STARTED by a previous process to
// STOPPED and registers the cron schedules of all policies.
func (service *Service) Init(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	policies, err := service.db.List(ctx)
	if err != nil {
		return Error.Wrap(err)
	}

	var group errs.Group
	for _, policy := range policies {
		if policy.Status == Queued || policy.Status == Started {
			_, err := service.db.Update(ctx, policy.Name, func(policy *Policy) error {
				if policy.Status == Queued || policy.Status == Started {
					policy.Status = Stopped
				}
				return nil
			})
			if err != nil {
				group.Add(err)
				continue
			}
			service.log.Info("reset interrupted eviction policy", zap.String("Policy", policy.Name), zap.String("Status", string(policy.Status)))
		}

		if err := service.register(policy); err != nil {
			service.log.Warn("unable to schedule eviction policy", zap.String("Policy", policy.Name), zap.Error(err))
		}
	}
	return Error.Wrap(group.Err())
}

// Run executes queued eviction runs until ctx is canceled.
func (service *Service) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return service.Worker.Run(ctx)
}

// Close stops the worker.
func (service *Service) Close() error {
	return service.Worker.Close()
}

// List returns all policies.
func (service *Service) List(ctx context.Context) (_ []Policy, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.List(ctx)
}

// Get returns the named policy.
func (service *Service) Get(ctx context.Context, name string) (_ Policy, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.Get(ctx, name)
}

// Create stores a new policy and registers its schedule.
func (service *Service) Create(ctx context.Context, policy Policy) (_ Policy, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := service.validate(policy); err != nil {
		return Policy{}, err
	}

	policy.Status = Stopped
	policy.LastRun = nil
	if err := service.db.Create(ctx, policy); err != nil {
		return Policy{}, err
	}

	if err := service.register(policy); err != nil {
		return Policy{}, errs.Combine(ErrInvalidPolicy.Wrap(err), service.db.Delete(context.WithoutCancel(ctx), policy.Name))
	}
	service.log.Info("eviction policy created", zap.String("Policy", policy.Name))
	return policy, nil
}

// Update replaces the configurable fields of a policy and re-registers its
// schedule. Status and last run are kept.
func (service *Service) Update(ctx context.Context, policy Policy) (_ Policy, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := service.validate(policy); err != nil {
		return Policy{}, err
	}

	updated, err := service.db.Update(ctx, policy.Name, func(current *Policy) error {
		status, lastRun := current.Status, current.LastRun
		*current = policy
		current.Status, current.LastRun = status, lastRun
		return nil
	})
	if err != nil {
		return Policy{}, err
	}

	if err := service.register(updated); err != nil {
		return updated, ErrInvalidPolicy.Wrap(err)
	}
	service.log.Info("eviction policy updated", zap.String("Policy", policy.Name))
	return updated, nil
}

// Delete unregisters and removes a policy.
func (service *Service) Delete(ctx context.Context, name string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if service.scheduler != nil {
		service.scheduler.Unschedule(name)
	}
	if err := service.db.Delete(ctx, name); err != nil {
		return err
	}
	service.log.Info("eviction policy deleted", zap.String("Policy", name))
	return nil
}

// DoEvict queues a run of the named policy. It returns false when the policy
// is already queued.
func (service *Service) DoEvict(ctx context.Context, name string) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	queued := false
	_, err = service.db.Update(ctx, name, func(policy *Policy) error {
		if policy.Status == Queued {
			return nil
		}
		policy.Status = Queued
		queued = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !queued {
		service.log.Debug("eviction policy already queued", zap.String("Policy", name))
		return false, nil
	}

	if err := service.Worker.Submit(name); err != nil {
		_, revertErr := service.db.Update(context.WithoutCancel(ctx), name, func(policy *Policy) error {
			if policy.Status == Queued {
				policy.Status = Stopped
			}
			return nil
		})
		return false, errs.Combine(err, revertErr)
	}
	return true, nil
}

// Cancel marks a queued or started policy CANCELED. A queued run is skipped,
// a started run completes.
func (service *Service) Cancel(ctx context.Context, name string) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	canceled := false
	_, err = service.db.Update(ctx, name, func(policy *Policy) error {
		if policy.Status == Queued || policy.Status == Started {
			policy.Status = Canceled
			canceled = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if canceled {
		service.log.Info("eviction policy canceled", zap.String("Policy", name))
	}
	return canceled, nil
}

// GetEvictionDate returns the earliest date a scheduled policy would evict p
// at, or nil when no scheduled policy applies to p.
func (service *Service) GetEvictionDate(ctx context.Context, p *product.Product) (_ *time.Time, err error) {
	defer mon.Task()(&ctx)(&err)

	policies, err := service.db.List(ctx)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	now := service.clock.Now()
	var earliest *time.Time
	for i := range policies {
		policy := &policies[i]
		if !policy.Scheduled() {
			continue
		}
		if policy.TargetCollection != "" && policy.TargetCollection != p.Collection {
			continue
		}
		if policy.TargetDataStore != "" && !p.InStore(policy.TargetDataStore) {
			continue
		}

		f, err := service.compile(policy.Filter)
		if err != nil {
			service.log.Warn("skipping policy with invalid filter", zap.String("Policy", policy.Name), zap.Error(err))
			continue
		}
		if matched, err := f.Match(p, now); err != nil || !matched {
			continue
		}

		candidate := p.ModifiedAt.Add(policy.KeepPeriod)
		if earliest == nil || candidate.Before(*earliest) {
			earliest = &candidate
		}
	}
	return earliest, nil
}

// validate checks policy, including its cron expression, before it is stored.
func (service *Service) validate(policy Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	if policy.Cron == nil || !policy.Cron.Active {
		return nil
	}
	if service.scheduler == nil {
		return ErrInvalidPolicy.New("%s: scheduling is disabled", policy.Name)
	}
	if err := service.scheduler.Validate(policy.Cron.Expression); err != nil {
		return ErrInvalidPolicy.New("%s: %v", policy.Name, err)
	}
	return nil
}

// register registers or unregisters the cron schedule of policy.
func (service *Service) register(policy Policy) error {
	if service.scheduler == nil {
		return nil
	}
	if !policy.Scheduled() {
		service.scheduler.Unschedule(policy.Name)
		return nil
	}

	name := policy.Name
	return service.scheduler.Schedule(name, policy.Cron.Expression, func(ctx context.Context) {
		log := service.log.With(zap.String("Policy", name))
		queued, err := service.DoEvict(ctx, name)
		switch {
		case ErrNotFound.Has(err):
			log.Warn("scheduled eviction policy no longer exists")
		case err != nil:
			log.Error("unable to queue scheduled eviction", zap.Error(err))
		case !queued:
			log.Info("scheduled eviction skipped, policy is already queued")
		}
	})
}

func (service *Service) compile(source string) (*filter.Filter, error) {
	service.mu.Lock()
	defer service.mu.Unlock()

	if f, ok := service.filters[source]; ok {
		return f, nil
	}
	f, err := filter.Compile(source)
	if err != nil {
		return nil, err
	}
	service.filters[source] = f
	return f, nil
}

// performEviction executes one run of the named policy. Whatever happens the
// policy is left STOPPED, unless another run was queued meanwhile.
func (service *Service) performEviction(ctx context.Context, name string) {
	var err error
	defer mon.Task()(&ctx)(&err)

	log := service.log.With(zap.String("Policy", name))
	run := Run{StartedAt: service.clock.Now()}

	started, canceled := false, false
	defer func() {
		ctx := context.WithoutCancel(ctx)
		run.FinishedAt = service.clock.Now()
		if err != nil {
			run.Error = err.Error()
		}

		_, cleanupErr := service.db.Update(ctx, name, func(policy *Policy) error {
			if !started || policy.Status != Queued {
				policy.Status = Stopped
			}
			if started {
				policy.LastRun = &run
			}
			return nil
		})
		if cleanupErr != nil && !ErrNotFound.Has(cleanupErr) {
			log.Error("unable to stop eviction policy", zap.Error(cleanupErr))
		}
	}()

	policy, err := service.db.Update(ctx, name, func(policy *Policy) error {
		if policy.Status == Canceled {
			canceled = true
			return nil
		}
		policy.Status = Started
		return nil
	})
	if err != nil {
		if ErrNotFound.Has(err) {
			log.Warn("queued eviction policy no longer exists")
			err = nil
			return
		}
		log.Error("unable to start eviction run", zap.Error(err))
		return
	}
	if canceled {
		runsCanceled.Inc(1)
		log.Info("eviction run canceled before start")
		return
	}
	started = true
	runsStarted.Inc(1)

	err = service.evict(ctx, &policy, &run)
	if err != nil {
		runsFailed.Inc(1)
		log.Error("eviction run failed", zap.Error(err))
		return
	}
	log.Info("eviction run finished",
		zap.Int("Evicted", run.Evicted),
		zap.Int64("Reclaimed", run.Reclaimed),
		zap.Duration("Duration", service.clock.Since(run.StartedAt)))
}

func (service *Service) evict(ctx context.Context, policy *Policy, run *Run) (err error) {
	defer mon.Task()(&ctx)(&err)

	f, err := service.compile(policy.Filter)
	if err != nil {
		return ErrInvalidPolicy.Wrap(err)
	}

	cutoff := run.StartedAt.Add(-policy.KeepPeriod)
	old := product.Predicate(func(p *product.Product) bool {
		return policy.baseDate(p).Before(cutoff)
	})
	predicate := old.And(f.Predicate(service.clock.Now))

	dest := product.DestinationNone
	if service.config.TrashPath != "" {
		dest = product.DestinationTrash
	}
	cause := "eviction policy " + policy.Name

	if policy.TargetDataStore != "" {
		size := policy.TargetSize
		if size <= 0 {
			size = math.MaxInt64
		}
		run.Reclaimed, err = service.backend.EvictAtLeast(ctx, size, policy.TargetDataStore, predicate,
			policy.OrderBy, policy.TargetCollection, policy.MaxEvictedObjects, policy.SoftEviction, dest, cause, policy.SafeMode)
		return err
	}

	run.Evicted, err = service.backend.EvictProducts(ctx, predicate,
		policy.OrderBy, policy.TargetCollection, policy.MaxEvictedObjects, policy.SoftEviction, dest, cause, policy.SafeMode)
	return err
}
