// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package product defines stored products and the file backed storage that
// holds their bytes across data stores.
package product

import (
	"context"
	"sort"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var (
	mon = monkit.Package()

	// Error is the default product errs class.
	Error = errs.Class("product")
	// ErrNotFound is returned when a product does not exist in the catalogue.
	ErrNotFound = errs.Class("product not found")
)

// Product is an immutable data object stored in one or more data stores.
type Product struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Collection string            `json:"collection,omitempty"`
	Size       int64             `json:"size"`
	CreatedAt  time.Time         `json:"created_at"`
	ModifiedAt time.Time         `json:"modified_at"`
	Stores     []string          `json:"stores,omitempty"`
	Evicted    bool              `json:"evicted,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// InStore returns whether the product has bytes in the named data store.
func (p *Product) InStore(name string) bool {
	for _, store := range p.Stores {
		if store == name {
			return true
		}
	}
	return false
}

// DB is the product catalogue.
type DB interface {
	// Put inserts or replaces a product.
	Put(ctx context.Context, p Product) error
	// Get returns the product with the given id.
	Get(ctx context.Context, id string) (Product, error)
	// Delete removes the product with the given id.
	Delete(ctx context.Context, id string) error
	// List returns all products of the catalogue.
	List(ctx context.Context) ([]Product, error)
}

// Predicate selects products.
type Predicate func(p *Product) bool

// All matches every product.
func All(*Product) bool { return true }

// And returns a predicate that matches when both predicates match.
func (pred Predicate) And(other Predicate) Predicate {
	if pred == nil {
		return other
	}
	if other == nil {
		return pred
	}
	return func(p *Product) bool {
		return pred(p) && other(p)
	}
}

// OrderBy defines the order in which eviction candidates are considered.
type OrderBy string

const (
	// CreatedAsc orders oldest created first.
	CreatedAsc OrderBy = "created_asc"
	// CreatedDesc orders newest created first.
	CreatedDesc OrderBy = "created_desc"
	// ModifiedAsc orders least recently modified first.
	ModifiedAsc OrderBy = "modified_asc"
	// ModifiedDesc orders most recently modified first.
	ModifiedDesc OrderBy = "modified_desc"
	// SizeAsc orders smallest first.
	SizeAsc OrderBy = "size_asc"
	// SizeDesc orders largest first.
	SizeDesc OrderBy = "size_desc"
)

// Validate returns an error when order is not a known ordering.
// The empty ordering is valid and means ModifiedAsc.
func (order OrderBy) Validate() error {
	switch order {
	case "", CreatedAsc, CreatedDesc, ModifiedAsc, ModifiedDesc, SizeAsc, SizeDesc:
		return nil
	}
	return Error.New("unknown order %q", string(order))
}

func (order OrderBy) less(a, b *Product) bool {
	switch order {
	case CreatedAsc:
		return a.CreatedAt.Before(b.CreatedAt)
	case CreatedDesc:
		return a.CreatedAt.After(b.CreatedAt)
	case ModifiedDesc:
		return a.ModifiedAt.After(b.ModifiedAt)
	case SizeAsc:
		return a.Size < b.Size
	case SizeDesc:
		return a.Size > b.Size
	default:
		return a.ModifiedAt.Before(b.ModifiedAt)
	}
}

// Sort sorts products in place, ties keep the catalogue order.
func Sort(products []Product, order OrderBy) {
	sort.SliceStable(products, func(i, k int) bool {
		return order.less(&products[i], &products[k])
	})
}

// Destination is where evicted bytes go.
type Destination int

const (
	// DestinationNone deletes evicted bytes.
	DestinationNone Destination = iota
	// DestinationTrash moves evicted bytes into the trash directory.
	DestinationTrash
)

// String implements fmt.Stringer.
func (dest Destination) String() string {
	switch dest {
	case DestinationNone:
		return "NONE"
	case DestinationTrash:
		return "TRASH"
	default:
		return "INVALID"
	}
}
