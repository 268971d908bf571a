// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/spacemonkeygo/monkit/v3/present"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DebugConfig configures the debug endpoints.
type DebugConfig struct {
	Address string `help:"address to listen on for debug endpoints, empty to disable" default:"127.0.0.1:0"`
}

// DebugServer serves pprof, monkit and Prometheus endpoints.
//
// architecture: Endpoint
type DebugServer struct {
	log      *zap.Logger
	listener net.Listener
	server   http.Server
}

// NewDebugServer creates a debug server listening on listener. Prometheus
// metrics are read from gatherer.
func NewDebugServer(log *zap.Logger, listener net.Listener, registry *monkit.Registry, gatherer prometheus.Gatherer) *DebugServer {
	var mux http.ServeMux
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/mon/", http.StripPrefix("/mon", present.HTTP(registry)))
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	})

	return &DebugServer{
		log:      log,
		listener: listener,
		server:   http.Server{Handler: &mux},
	}
}

// Addr returns the address the server listens on.
func (server *DebugServer) Addr() net.Addr { return server.listener.Addr() }

// Run serves requests until ctx is canceled.
func (server *DebugServer) Run(ctx context.Context) error {
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		return server.server.Shutdown(context.Background())
	})
	group.Go(func() error {
		server.log.Debug("debug server listening", zap.Stringer("Address", server.Addr()))
		err := server.server.Serve(server.listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	return group.Wait()
}

// Close stops the server.
func (server *DebugServer) Close() error {
	return server.server.Close()
}
