// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package fetchorder tracks asynchronous retrievals of products from data
// stores that cannot serve them instantly.
package fetchorder

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var (
	mon = monkit.Package()

	// Error is the default fetch order errs class.
	Error = errs.Class("fetch order")
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errs.Class("fetch order not found")
)

// Status is the state of a fetch order.
type Status string

const (
	// Pending orders are accepted by the data store but not started.
	Pending Status = "PENDING"
	// Running orders are being retrieved.
	Running Status = "RUNNING"
	// Completed orders have their product available.
	Completed Status = "COMPLETED"
	// Failed orders could not be retrieved.
	Failed Status = "FAILED"
)

// Finished returns whether no further transition is expected.
func (status Status) Finished() bool {
	return status == Completed || status == Failed
}

// Key identifies an order. There is at most one order per key.
type Key struct {
	Store    string `json:"store"`
	ObjectID string `json:"object_id"`
}

// Order is an asynchronous retrieval job.
type Order struct {
	Key

	JobID               string     `json:"job_id,omitempty"`
	Status              Status     `json:"status"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
	StatusMessage       string     `json:"status_message,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	Owners              []string   `json:"owners,omitempty"`
}

// OwnedBy returns whether requester is one of the owners of the order.
func (order *Order) OwnedBy(requester string) bool {
	for _, owner := range order.Owners {
		if owner == requester {
			return true
		}
	}
	return false
}

// ListOptions restricts List results.
type ListOptions struct {
	// Owner restricts to orders owned by this requester.
	Owner string
	// Store restricts to orders of this data store.
	Store string
	// Status restricts to orders in this status.
	Status Status

	Offset int
	Limit  int
}

// Match returns whether order satisfies the restrictions of opts.
func (opts *ListOptions) Match(order *Order) bool {
	switch {
	case opts.Owner != "" && !order.OwnedBy(opts.Owner):
		return false
	case opts.Store != "" && order.Store != opts.Store:
		return false
	case opts.Status != "" && order.Status != opts.Status:
		return false
	}
	return true
}

// DB stores fetch orders.
type DB interface {
	// Get returns the order stored under key.
	Get(ctx context.Context, key Key) (Order, error)
	// Update atomically loads the order under key, passes it to fn and
	// stores the result. found reports whether the order existed, a new
	// order only has its Key set. When fn returns an error nothing is written.
	Update(ctx context.Context, key Key, fn func(order *Order, found bool) error) (Order, error)
	// FindByObject returns the orders of objectID in every store.
	FindByObject(ctx context.Context, objectID string) ([]Order, error)
	// Delete removes the order stored under key.
	Delete(ctx context.Context, key Key) error
	// List returns orders matching opts ordered by creation. A limit of zero
	// or less is unlimited.
	List(ctx context.Context, opts ListOptions) ([]Order, error)
}
