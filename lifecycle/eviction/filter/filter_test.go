// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package filter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/keeper/lifecycle/eviction/filter"
	"storj.io/keeper/lifecycle/product"
)

func TestFilter(t *testing.T) {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	p := &product.Product{
		ID:         "p1",
		Name:       "S2A_MSIL1C_20260901",
		Collection: "sentinel-2",
		Size:       2048,
		CreatedAt:  now.Add(-40 * 24 * time.Hour),
		ModifiedAt: now.Add(-10 * 24 * time.Hour),
		Stores:     []string{"hot", "cold"},
		Attributes: map[string]string{"platform": "S2A"},
	}

	for _, tt := range []struct {
		source  string
		matched bool
	}{
		{"", true},
		{"   ", true},
		{`Collection == "sentinel-2"`, true},
		{`Collection == "sentinel-1"`, false},
		{`Size > 1024 && Size < 4096`, true},
		{`Attributes["platform"] == "S2A"`, true},
		{`Attributes["missing"] == "x"`, false},
		{`"cold" in Stores`, true},
		{`"archive" in Stores`, false},
		{`Name startsWith "S2A"`, true},
		{`CreatedAt < Now`, true},
		{`Now.Sub(CreatedAt) > Days(30)`, true},
		{`Now.Sub(ModifiedAt) > Days(30)`, false},
	} {
		f, err := filter.Compile(tt.source)
		require.NoError(t, err, tt.source)

		matched, err := f.Match(p, now)
		require.NoError(t, err, tt.source)
		require.Equal(t, tt.matched, matched, tt.source)

		pred := f.Predicate(func() time.Time { return now })
		require.Equal(t, tt.matched, pred(p), tt.source)
	}
}

func TestFilter_Invalid(t *testing.T) {
	for _, source := range []string{
		`Size >`,
		`Size + 1`,
		`Unknown == 1`,
	} {
		_, err := filter.Compile(source)
		require.Error(t, err, source)
		require.True(t, filter.Error.Has(err), source)
	}
}
