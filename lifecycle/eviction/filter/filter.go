// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package filter compiles the product filter expressions of eviction
// policies.
//
// Expressions are boolean expressions over the fields of Env, for example
//
//	Collection == "sentinel-2" && Size > 1000000
//	Attributes["platform"] == "S1A" || "cold" in Stores
//	Now.Sub(CreatedAt) > Days(30)
package filter

import (
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/zeebo/errs"

	"storj.io/keeper/lifecycle/product"
)

// Error is the default filter errs class.
var Error = errs.Class("filter")

// Env is the environment filter expressions are evaluated in.
type Env struct {
	ID         string
	Name       string
	Collection string
	Size       int64
	CreatedAt  time.Time
	ModifiedAt time.Time
	Stores     []string
	Attributes map[string]string
	Now        time.Time
}

// Days returns a duration of n days.
func (Env) Days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

// Hours returns a duration of n hours.
func (Env) Hours(n int) time.Duration { return time.Duration(n) * time.Hour }

// Filter is a compiled filter expression.
type Filter struct {
	source  string
	program *vm.Program
}

// Compile compiles source. An empty source matches every product.
func Compile(source string) (*Filter, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return &Filter{}, nil
	}

	program, err := expr.Compile(source, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, Error.New("invalid expression %q: %v", source, err)
	}
	return &Filter{source: source, program: program}, nil
}

// String returns the source of the filter.
func (filter *Filter) String() string { return filter.source }

// Match evaluates the filter for p at the given time.
func (filter *Filter) Match(p *product.Product, now time.Time) (bool, error) {
	if filter.program == nil {
		return true, nil
	}

	out, err := expr.Run(filter.program, Env{
		ID:         p.ID,
		Name:       p.Name,
		Collection: p.Collection,
		Size:       p.Size,
		CreatedAt:  p.CreatedAt,
		ModifiedAt: p.ModifiedAt,
		Stores:     p.Stores,
		Attributes: p.Attributes,
		Now:        now,
	})
	if err != nil {
		return false, Error.Wrap(err)
	}
	matched, _ := out.(bool)
	return matched, nil
}

// Predicate returns a predicate evaluating the filter at the time returned
// by now. Products the expression fails on do not match.
func (filter *Filter) Predicate(now func() time.Time) product.Predicate {
	if filter.program == nil {
		return product.All
	}
	return func(p *product.Product) bool {
		matched, err := filter.Match(p, now())
		return err == nil && matched
	}
}
