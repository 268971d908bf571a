// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package ranking_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/keeper/internal/testcontext"
	"storj.io/keeper/lifecycle/ranking"
)

func TestHTTPProbe(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		user, password, ok := r.BasicAuth()
		if !ok || user != "alice" || password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	probe := &ranking.HTTPProbe{Client: server.Client()}

	status, err := probe.CheckConnection(ctx, server.URL, ranking.Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	status, err = probe.CheckConnection(ctx, server.URL, ranking.Credentials{})
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, status)

	_, err = probe.CheckConnection(ctx, "://invalid", ranking.Credentials{})
	require.Error(t, err)
}
