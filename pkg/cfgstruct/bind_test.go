// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package cfgstruct

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

type order string

type nested struct {
	TrashPath string        `help:"trash" default:"$CONFDIR/trash"`
	Interval  time.Duration `help:"interval" default:"5m0s" testDefault:"1s"`
	Order     order         `default:"modified_asc"`
}

type Embedded struct {
	Verbose bool `default:"true"`
}

func TestBind(t *testing.T) {
	var config struct {
		Embedded
		Database  string `help:"database path" default:"$CONFDIR/keeper.db"`
		MaxCount  int    `default:"4"`
		Limit     int64
		Ratio     float64 `default:"0.5"`
		Secret    string  `hidden:"true"`
		Eviction  nested
		unexposed int
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Bind(flags, &config, ConfDir("/etc/keeper"))

	require.Equal(t, "/etc/keeper/keeper.db", config.Database)
	require.Equal(t, 4, config.MaxCount)
	require.Equal(t, int64(0), config.Limit)
	require.Equal(t, 0.5, config.Ratio)
	require.True(t, config.Verbose)
	require.Equal(t, "/etc/keeper/trash", config.Eviction.TrashPath)
	require.Equal(t, 5*time.Minute, config.Eviction.Interval)
	require.Equal(t, order("modified_asc"), config.Eviction.Order)

	require.NotNil(t, flags.Lookup("verbose"))
	require.NotNil(t, flags.Lookup("max-count"))
	require.NotNil(t, flags.Lookup("eviction.trash-path"))
	require.Nil(t, flags.Lookup("unexposed"))
	require.Equal(t, []string{"true"}, flags.Lookup("secret").Annotations["hidden"])

	require.NoError(t, flags.Parse([]string{"--eviction.interval=1h", "--max-count=7", "--eviction.order=size_desc"}))
	require.Equal(t, time.Hour, config.Eviction.Interval)
	require.Equal(t, 7, config.MaxCount)
	require.Equal(t, order("size_desc"), config.Eviction.Order)
}

func TestBind_TestDefaults(t *testing.T) {
	var config nested
	Bind(pflag.NewFlagSet("test", pflag.ContinueOnError), &config, UseTestDefaults())
	require.Equal(t, time.Second, config.Interval)
}

func TestBind_Invalid(t *testing.T) {
	require.Panics(t, func() {
		var config nested
		Bind(pflag.NewFlagSet("test", pflag.ContinueOnError), config)
	})
	require.Panics(t, func() {
		var config struct {
			Count int `default:"many"`
		}
		Bind(pflag.NewFlagSet("test", pflag.ContinueOnError), &config)
	})
	require.Panics(t, func() {
		var config struct {
			Tags []string
		}
		Bind(pflag.NewFlagSet("test", pflag.ContinueOnError), &config)
	})
}

func TestHyphenate(t *testing.T) {
	for in, out := range map[string]string{
		"Database":             "database",
		"TrashPath":            "trash-path",
		"MaxConcurrentFetches": "max-concurrent-fetches",
		"ID":                   "id",
		"HTTPProbe":            "http-probe",
		"MaxTTL":               "max-ttl",
	} {
		require.Equal(t, out, hyphenate(in), in)
	}
}

func TestFindConfigDir(t *testing.T) {
	require.Equal(t, "/default", FindConfigDir([]string{"run", "--log.level", "debug"}, "/default"))
	require.Equal(t, "/custom", FindConfigDir([]string{"run", "--config-dir", "/custom", "--unknown=1"}, "/default"))
	require.Equal(t, "/custom", FindConfigDir([]string{"--config-dir=/custom"}, "/default"))
}
