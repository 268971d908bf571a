// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/keeper/internal/errs2"
	"storj.io/keeper/lifecycle"
	"storj.io/keeper/lifecycle/quota"
	"storj.io/keeper/pkg/cfgstruct"
	"storj.io/keeper/pkg/process"
	"storj.io/keeper/storage/boltdb"
	"storj.io/keeper/storage/redis"
)

var (
	rootCmd = &cobra.Command{
		Use:   "lifecycled",
		Short: "Product lifecycle service",
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the lifecycle service",
		RunE:  cmdRun,
	}
	setupCmd = &cobra.Command{
		Use:         "setup",
		Short:       "Create config files",
		RunE:        cmdSetup,
		Annotations: map[string]string{"type": "setup"},
	}

	runCfg   lifecycle.Config
	setupCfg struct {
		Overwrite bool `default:"false" help:"whether to overwrite pre-existing configuration files"`
	}

	confDir string
)

func defaultConfDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".lifecycle")
	}
	return filepath.Join(dir, "lifecycle")
}

func main() {
	confDir = cfgstruct.FindConfigDir(os.Args[1:], defaultConfDir())
	rootCmd.PersistentFlags().StringVar(&confDir, "config-dir", confDir, "main directory for lifecycled configuration")
	defaults := cfgstruct.ConfDir(confDir)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(statusCmd)

	process.Bind(runCmd, &runCfg, defaults)
	process.Bind(setupCmd, &setupCfg, defaults)
	bindAdmin(defaults)

	process.Exec(rootCmd)
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx := process.Ctx(cmd)
	log := zap.L()

	peer, cleanup, err := openPeer(ctx, log, runCfg)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, cleanup()) }()

	if err := peer.Init(ctx); err != nil {
		return err
	}

	log.Info("lifecycle service started", zap.String("Database", runCfg.Database))
	if peer.Debug.Server != nil {
		log.Info("debug endpoints", zap.Stringer("Address", peer.Debug.Server.Addr()))
	}
	return errs2.IgnoreCanceled(peer.Run(ctx))
}

// openPeer opens the databases of config and creates a peer on them. The
// returned cleanup closes the peer and the databases.
func openPeer(ctx context.Context, log *zap.Logger, config lifecycle.Config) (_ *lifecycle.Peer, cleanup func() error, err error) {
	db, err := boltdb.Open(log.Named("db"), config.Database)
	if err != nil {
		return nil, nil, errs.New("unable to open %q (is another lifecycled running?): %v", config.Database, err)
	}

	var closers []func() error
	closers = append(closers, db.Close)
	cleanup = func() error {
		var group errs.Group
		for i := len(closers) - 1; i >= 0; i-- {
			group.Add(closers[i]())
		}
		return group.Err()
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, cleanup())
		}
	}()

	var quotas quota.DB
	if config.QuotaURL != "" {
		client, err := redis.NewClientFrom(log.Named("redis"), config.QuotaURL)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, client.Close)
		quotas = client.Quotas()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	peer, err := lifecycle.New(log, db, quotas, registry, config)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, peer.Close)
	return peer, cleanup, nil
}

func cmdSetup(cmd *cobra.Command, args []string) (err error) {
	path := filepath.Join(confDir, process.ConfigFile)

	if _, err := os.Stat(path); err == nil && !setupCfg.Overwrite {
		fmt.Printf("A lifecycled configuration already exists at %s. Rerun with --overwrite\n", path)
		return nil
	}
	if err := os.MkdirAll(confDir, 0700); err != nil {
		return err
	}

	if err := process.SaveConfig(runCmd, path, nil); err != nil {
		return err
	}
	fmt.Println("configuration written to", path)
	return nil
}
