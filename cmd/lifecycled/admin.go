// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/keeper/lifecycle"
	"storj.io/keeper/lifecycle/eviction"
	"storj.io/keeper/lifecycle/fetchorder"
	"storj.io/keeper/lifecycle/product"
	"storj.io/keeper/lifecycle/ranking"
	"storj.io/keeper/pkg/cfgstruct"
	"storj.io/keeper/pkg/process"
)

var (
	policyCmd = &cobra.Command{
		Use:   "policy",
		Short: "Manage eviction policies",
	}
	policyCreateCmd = &cobra.Command{
		Use:   "create <name>",
		Short: "Create or replace an eviction policy",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdPolicyCreate,
	}
	policyDeleteCmd = &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an eviction policy",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdPolicyDelete,
	}
	policyEvictCmd = &cobra.Command{
		Use:   "evict <name>",
		Short: "Run an eviction policy now and wait for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdPolicyEvict,
	}

	sourceCmd = &cobra.Command{
		Use:   "source",
		Short: "Manage synchronization sources",
	}
	sourcePutCmd = &cobra.Command{
		Use:   "put <id> <url>",
		Short: "Create or replace a source",
		Args:  cobra.ExactArgs(2),
		RunE:  cmdSourcePut,
	}
	synchronizerPutCmd = &cobra.Command{
		Use:   "synchronizer <id> <source-id>...",
		Short: "Create or replace a synchronizer pulling from the given sources",
		Args:  cobra.MinimumNArgs(2),
		RunE:  cmdSynchronizerPut,
	}
	rankCmd = &cobra.Command{
		Use:   "rank",
		Short: "Rank the sources of every synchronizer now",
		RunE:  cmdRank,
	}

	fetchCmd = &cobra.Command{
		Use:   "fetch <store> <object-id>",
		Short: "Request an asynchronous fetch of a product",
		Args:  cobra.ExactArgs(2),
		RunE:  cmdFetch,
	}

	adminCfg lifecycle.Config

	policyCfg struct {
		Cron              string        `help:"cron expression triggering the policy, empty for manual runs only" default:""`
		Inactive          bool          `help:"keep the cron expression but do not schedule it" default:"false"`
		BaseDate          string        `help:"date the keep period counts from: CreationDate or ModificationDate" default:"ModificationDate"`
		Filter            string        `help:"expression selecting products, e.g. 'Collection == \"s2\" && Size > 1024'" default:""`
		OrderBy           string        `help:"order products are evicted in" default:"modified_asc"`
		Collection        string        `help:"only evict products of this collection" default:""`
		MaxEvictedObjects int           `help:"maximum number of products evicted per run (0 for unlimited)" default:"0"`
		Soft              bool          `help:"mark products evicted without removing their bytes" default:"false"`
		SafeMode          bool          `help:"quarantine removed bytes instead of deleting them" default:"false"`
		DataStore         string        `help:"only evict from this data store" default:""`
		TargetSize        int64         `help:"bytes to reclaim from the data store (0 for unlimited)" default:"0"`
		KeepPeriod        time.Duration `help:"how long products are kept after their base date" default:"720h0m0s"`
	}

	sourceCfg struct {
		Username               string `help:"user name for basic authentication" default:""`
		Password               string `help:"password for basic authentication" default:""`
		MaxConcurrentDownloads int    `help:"maximum concurrent downloads from the source" default:"4"`
		Listable               bool   `help:"whether the source can be listed" default:"true"`
	}

	fetchCfg struct {
		Requester string `help:"identity the fetch is requested for" default:"admin"`
	}
)

func bindAdmin(defaults cfgstruct.BindOpt) {
	policyCmd.AddCommand(policyCreateCmd, policyDeleteCmd, policyEvictCmd)
	sourceCmd.AddCommand(sourcePutCmd, synchronizerPutCmd, rankCmd)

	for _, cmd := range []*cobra.Command{policyCreateCmd, policyDeleteCmd, policyEvictCmd, sourcePutCmd, synchronizerPutCmd, rankCmd, fetchCmd, statusCmd} {
		process.Bind(cmd, &adminCfg, defaults)
	}
	process.Bind(policyCreateCmd, &policyCfg, defaults)
	process.Bind(sourcePutCmd, &sourceCfg, defaults)
	process.Bind(fetchCmd, &fetchCfg, defaults)
}

// withPeer runs fn with a peer on the configured databases. Debug endpoints
// are not served by administrative commands.
func withPeer(cmd *cobra.Command, fn func(peer *lifecycle.Peer) error) (err error) {
	config := adminCfg
	config.Debug.Address = ""

	peer, cleanup, err := openPeer(process.Ctx(cmd), zap.L(), config)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, cleanup()) }()

	return fn(peer)
}

func cmdPolicyCreate(cmd *cobra.Command, args []string) error {
	ctx := process.Ctx(cmd)

	policy := eviction.Policy{
		Name:              args[0],
		BaseDate:          eviction.BaseDate(policyCfg.BaseDate),
		Filter:            policyCfg.Filter,
		OrderBy:           product.OrderBy(policyCfg.OrderBy),
		TargetCollection:  policyCfg.Collection,
		MaxEvictedObjects: policyCfg.MaxEvictedObjects,
		SoftEviction:      policyCfg.Soft,
		SafeMode:          policyCfg.SafeMode,
		TargetDataStore:   policyCfg.DataStore,
		TargetSize:        policyCfg.TargetSize,
		KeepPeriod:        policyCfg.KeepPeriod,
	}
	if policyCfg.Cron != "" {
		policy.Cron = &eviction.Cron{Expression: policyCfg.Cron, Active: !policyCfg.Inactive}
	}

	return withPeer(cmd, func(peer *lifecycle.Peer) error {
		service := peer.Eviction.Service
		_, err := service.Get(ctx, policy.Name)
		switch {
		case err == nil:
			policy, err = service.Update(ctx, policy)
		case eviction.ErrNotFound.Has(err):
			policy, err = service.Create(ctx, policy)
		}
		if err != nil {
			return err
		}
		fmt.Printf("policy %q saved\n", policy.Name)
		return nil
	})
}

func cmdPolicyDelete(cmd *cobra.Command, args []string) error {
	ctx := process.Ctx(cmd)
	return withPeer(cmd, func(peer *lifecycle.Peer) error {
		if err := peer.Eviction.Service.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("policy %q deleted\n", args[0])
		return nil
	})
}

func cmdPolicyEvict(cmd *cobra.Command, args []string) error {
	ctx := process.Ctx(cmd)
	return withPeer(cmd, func(peer *lifecycle.Peer) error {
		service := peer.Eviction.Service
		if err := peer.Init(ctx); err != nil {
			return err
		}

		queued, err := service.DoEvict(ctx, args[0])
		if err != nil {
			return err
		}
		if !queued {
			return errs.New("policy %q is already queued", args[0])
		}

		done := make(chan error, 1)
		go func() { done <- service.Run(ctx) }()
		service.Worker.WaitUntilEmpty()
		if err := service.Close(); err != nil {
			return err
		}
		if err := <-done; err != nil {
			return err
		}

		policy, err := service.Get(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(renderPolicies([]eviction.Policy{policy}))
		if policy.LastRun != nil && policy.LastRun.Error != "" {
			return errs.New("eviction failed: %s", policy.LastRun.Error)
		}
		return nil
	})
}

func cmdSourcePut(cmd *cobra.Command, args []string) error {
	ctx := process.Ctx(cmd)
	source := ranking.Source{
		ID:  args[0],
		URL: args[1],
		Credentials: ranking.Credentials{
			Username: sourceCfg.Username,
			Password: sourceCfg.Password,
		},
		MaxConcurrentDownloads: sourceCfg.MaxConcurrentDownloads,
		Listable:               sourceCfg.Listable,
	}
	return withPeer(cmd, func(peer *lifecycle.Peer) error {
		if err := peer.DB.Sources().Put(ctx, source); err != nil {
			return err
		}
		fmt.Printf("source %q saved\n", source.ID)
		return nil
	})
}

func cmdSynchronizerPut(cmd *cobra.Command, args []string) error {
	ctx := process.Ctx(cmd)
	sync := ranking.Synchronizer{ID: args[0], SourceIDs: args[1:]}
	return withPeer(cmd, func(peer *lifecycle.Peer) error {
		if err := peer.DB.Synchronizers().Put(ctx, sync); err != nil {
			return err
		}
		fmt.Printf("synchronizer %q saved\n", sync.ID)
		return nil
	})
}

func cmdRank(cmd *cobra.Command, args []string) error {
	ctx := process.Ctx(cmd)
	return withPeer(cmd, func(peer *lifecycle.Peer) error {
		if err := peer.Ranking.Service.RankAll(ctx); err != nil {
			return err
		}
		syncs, err := peer.DB.Synchronizers().List(ctx)
		if err != nil {
			return err
		}
		rankings, err := loadRankings(ctx, peer.DB.Rankings(), syncs)
		if err != nil {
			return err
		}
		fmt.Println(renderRankings(rankings))
		return nil
	})
}

func cmdFetch(cmd *cobra.Command, args []string) error {
	ctx := process.Ctx(cmd)
	return withPeer(cmd, func(peer *lifecycle.Peer) error {
		order, err := peer.FetchOrder.Service.Fetch(ctx, fetchorder.FetchRequest{
			Store:     args[0],
			ObjectID:  args[1],
			Requester: fetchCfg.Requester,
		})
		if err != nil {
			return err
		}
		fmt.Println(renderOrders([]fetchorder.Order{order}))
		return nil
	})
}
