// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package eviction

import (
	"context"
	"time"

	"storj.io/keeper/lifecycle/eviction/filter"
	"storj.io/keeper/lifecycle/product"
)

// Status is the execution state of a policy.
type Status string

const (
	// Stopped policies are idle.
	Stopped Status = "STOPPED"
	// Queued policies wait for the eviction worker.
	Queued Status = "QUEUED"
	// Started policies are being executed.
	Started Status = "STARTED"
	// Canceled policies were canceled by an administrator and will not
	// start, or finish their current run.
	Canceled Status = "CANCELED"
)

// BaseDate selects the product date the keep period is counted from.
type BaseDate string

const (
	// CreationDate counts from the creation of the product.
	CreationDate BaseDate = "CreationDate"
	// ModificationDate counts from the last modification of the product.
	ModificationDate BaseDate = "ModificationDate"
)

// Cron is the schedule of a policy.
type Cron struct {
	Expression string `json:"expression"`
	Active     bool   `json:"active"`
}

// Run summarizes the last execution of a policy.
type Run struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Evicted    int       `json:"evicted"`
	Reclaimed  int64     `json:"reclaimed"`
	Error      string    `json:"error,omitempty"`
}

// Policy describes which products are evicted and when.
//
// Status and LastRun are owned by the engine and ignored on create and
// update.
type Policy struct {
	Name              string          `json:"name"`
	Cron              *Cron           `json:"cron,omitempty"`
	BaseDate          BaseDate        `json:"base_date"`
	Filter            string          `json:"filter,omitempty"`
	OrderBy           product.OrderBy `json:"order_by,omitempty"`
	TargetCollection  string          `json:"target_collection,omitempty"`
	MaxEvictedObjects int             `json:"max_evicted_objects"`
	SoftEviction      bool            `json:"soft_eviction"`
	SafeMode          bool            `json:"safe_mode"`
	TargetDataStore   string          `json:"target_data_store,omitempty"`
	TargetSize        int64           `json:"target_size,omitempty"`
	KeepPeriod        time.Duration   `json:"keep_period"`

	Status  Status `json:"status"`
	LastRun *Run   `json:"last_run,omitempty"`
}

// Scheduled returns whether the policy has an active cron schedule.
func (policy *Policy) Scheduled() bool {
	return policy.Cron != nil && policy.Cron.Active && policy.Cron.Expression != ""
}

// Validate checks the configurable fields of the policy.
func (policy *Policy) Validate() error {
	if policy.Name == "" {
		return ErrInvalidPolicy.New("name is required")
	}
	switch policy.BaseDate {
	case "", CreationDate, ModificationDate:
	default:
		return ErrInvalidPolicy.New("%s: unknown base date %q", policy.Name, policy.BaseDate)
	}
	if err := policy.OrderBy.Validate(); err != nil {
		return ErrInvalidPolicy.New("%s: %v", policy.Name, err)
	}
	if policy.KeepPeriod < 0 {
		return ErrInvalidPolicy.New("%s: negative keep period", policy.Name)
	}
	if policy.MaxEvictedObjects < 0 {
		return ErrInvalidPolicy.New("%s: negative max evicted objects", policy.Name)
	}
	if _, err := filter.Compile(policy.Filter); err != nil {
		return ErrInvalidPolicy.New("%s: %v", policy.Name, err)
	}
	return nil
}

// baseDate returns the date of p the keep period is counted from.
func (policy *Policy) baseDate(p *product.Product) time.Time {
	if policy.BaseDate == CreationDate {
		return p.CreatedAt
	}
	return p.ModifiedAt
}

// DB stores eviction policies together with their status.
type DB interface {
	// List returns all policies ordered by name.
	List(ctx context.Context) ([]Policy, error)
	// Get returns the policy with the given name.
	Get(ctx context.Context, name string) (Policy, error)
	// Create stores a new policy, failing with ErrExists when the name is taken.
	Create(ctx context.Context, policy Policy) error
	// Update atomically loads the named policy, passes it to fn and stores
	// the result. When fn returns an error nothing is written.
	Update(ctx context.Context, name string, fn func(policy *Policy) error) (Policy, error)
	// Delete removes the named policy.
	Delete(ctx context.Context, name string) error
}
