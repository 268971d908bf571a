// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package lifecycle wires the product lifecycle services into a single
// process.
package lifecycle

import (
	"context"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"storj.io/keeper/internal/cronsched"
	"storj.io/keeper/internal/errs2"
	"storj.io/keeper/lifecycle/eviction"
	"storj.io/keeper/lifecycle/fetchorder"
	"storj.io/keeper/lifecycle/product"
	"storj.io/keeper/lifecycle/quota"
	"storj.io/keeper/lifecycle/ranking"
	"storj.io/keeper/lifecycle/ranking/syncmetrics"
	"storj.io/keeper/pkg/process"
)

var (
	mon = monkit.Package()

	// Error is the default peer errs class.
	Error = errs.Class("lifecycle peer")
)

// DB is the persistent state of the peer.
type DB interface {
	Policies() eviction.DB
	Orders() fetchorder.DB
	Quotas() quota.DB
	Products() product.DB
	Sources() ranking.SourceDB
	Synchronizers() ranking.SynchronizerDB
	Rankings() ranking.RankingDB
}

// Config is all the configuration parameters of the peer.
type Config struct {
	Database string `help:"path of the bolt database" default:"$CONFDIR/lifecycle.db"`
	QuotaURL string `help:"redis url holding quota entries shared between processes, e.g. redis://localhost:6379?db=0 (empty keeps them in the database)" default:""`

	Debug       process.DebugConfig
	Product     product.Config
	Eviction    eviction.Config
	FetchOrder  fetchorder.Config
	Ranking     ranking.Config
	SyncMetrics syncmetrics.Config
}

// Peer is the product lifecycle process.
type Peer struct {
	Log   *zap.Logger
	DB    DB
	Clock clock.Clock

	Debug struct {
		Listener net.Listener
		Server   *process.DebugServer
	}

	Products *product.Store

	Eviction struct {
		Scheduler *cronsched.Scheduler
		Service   *eviction.Service
	}

	Quota *quota.Gate

	FetchOrder struct {
		Fetcher *fetchorder.ArchiveFetcher
		Service *fetchorder.Service
		Poller  *fetchorder.Poller
	}

	Ranking struct {
		Metrics  *syncmetrics.Registry
		Recorder *ranking.Recorder
		Service  *ranking.Service
	}
}

// New creates the peer. quotas overrides the quota entries of db when not
// nil. registry receives the Prometheus metrics and also serves them on the
// debug endpoint.
func New(log *zap.Logger, db DB, quotas quota.DB, registry *prometheus.Registry, config Config) (*Peer, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	peer := &Peer{
		Log:   log,
		DB:    db,
		Clock: clock.RealClock{},
	}

	var err error

	{ // setup debug
		if config.Debug.Address != "" {
			peer.Debug.Listener, err = net.Listen("tcp", config.Debug.Address)
			if err != nil {
				return nil, errs.Combine(Error.Wrap(err), peer.Close())
			}
			peer.Debug.Server = process.NewDebugServer(log.Named("debug"), peer.Debug.Listener, monkit.Default, registry)
		}
	}

	{ // setup products
		peer.Products = product.NewStore(log.Named("products"), db.Products(), config.Product, config.Eviction.TrashPath, peer.Clock)
	}

	{ // setup eviction
		peer.Eviction.Scheduler = cronsched.New(log.Named("eviction:cron"))
		peer.Eviction.Service = eviction.NewService(log.Named("eviction"),
			db.Policies(),
			peer.Products,
			peer.Eviction.Scheduler,
			peer.Clock,
			config.Eviction,
		)
	}

	{ // setup quota
		if quotas == nil {
			quotas = db.Quotas()
		}
		peer.Quota = quota.NewGate(log.Named("quota"), quotas)
	}

	{ // setup fetch orders
		archive := config.FetchOrder.ArchiveDir
		if archive == "" {
			archive = config.Eviction.TrashPath
		}

		var fetcher fetchorder.Fetcher
		if archive != "" {
			peer.FetchOrder.Fetcher = fetchorder.NewArchiveFetcher(log.Named("fetchorder:archive"), archive, config.Product.Dir, config.FetchOrder.RestoreDelay, peer.Clock)
			fetcher = peer.FetchOrder.Fetcher
		}

		peer.FetchOrder.Service = fetchorder.NewService(log.Named("fetchorder"), db.Orders(), peer.Quota, fetcher, peer.Clock, config.FetchOrder)
		peer.FetchOrder.Poller = fetchorder.NewPoller(log.Named("fetchorder:poller"), peer.FetchOrder.Service, config.FetchOrder)
	}

	{ // setup ranking
		peer.Ranking.Metrics = syncmetrics.NewRegistry(peer.Clock, registry, config.SyncMetrics)
		peer.Ranking.Recorder = ranking.NewRecorder(log.Named("ranking:recorder"), db.Sources(), peer.Ranking.Metrics, peer.Clock)
		ranker := ranking.NewRanker(log.Named("ranking:ranker"), peer.Ranking.Metrics, &ranking.HTTPProbe{}, peer.Clock, config.Ranking)
		peer.Ranking.Service = ranking.NewService(log.Named("ranking"),
			ranker,
			db.Synchronizers(),
			db.Sources(),
			db.Rankings(),
			config.Ranking,
		)
	}

	return peer, nil
}

// Init recovers the state left by a previous process. It must be called
// before Run and before any request is served.
func (peer *Peer) Init(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := peer.Eviction.Service.Init(ctx); err != nil {
		if errs2.IsCanceled(err) {
			return err
		}
		peer.Log.Warn("eviction policies not fully recovered", zap.Error(err))
	}
	return nil
}

// Run runs the peer until it's either closed or it errors.
func (peer *Peer) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return errs2.IgnoreCanceled(peer.Eviction.Scheduler.Run(ctx))
	})
	group.Go(func() error {
		return errs2.IgnoreCanceled(peer.Eviction.Service.Run(ctx))
	})
	group.Go(func() error {
		return errs2.IgnoreCanceled(peer.FetchOrder.Poller.Run(ctx))
	})
	group.Go(func() error {
		return errs2.IgnoreCanceled(peer.Ranking.Service.Run(ctx))
	})
	if peer.Debug.Server != nil {
		group.Go(func() error {
			return errs2.IgnoreCanceled(peer.Debug.Server.Run(ctx))
		})
	}

	return group.Wait()
}

// Close closes all the resources.
func (peer *Peer) Close() error {
	var errlist errs.Group

	// close services in reverse initialization order
	if peer.Ranking.Service != nil {
		errlist.Add(peer.Ranking.Service.Close())
	}
	if peer.FetchOrder.Poller != nil {
		errlist.Add(peer.FetchOrder.Poller.Close())
	}
	if peer.Eviction.Service != nil {
		errlist.Add(peer.Eviction.Service.Close())
	}

	// close servers
	if peer.Debug.Server != nil {
		errlist.Add(peer.Debug.Server.Close())
	} else if peer.Debug.Listener != nil {
		errlist.Add(peer.Debug.Listener.Close())
	}

	return errlist.Err()
}
