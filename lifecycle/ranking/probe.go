// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package ranking

import (
	"context"
	"io"
	"net/http"
)

// HTTPProbe checks sources with an authenticated HEAD request.
type HTTPProbe struct {
	Client *http.Client
}

// CheckConnection implements ConnectivityProbe.
func (probe *HTTPProbe) CheckConnection(ctx context.Context, url string, creds Credentials) (_ int, err error) {
	defer mon.Task()(&ctx)(&err)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	if creds.Username != "" || creds.Password != "" {
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	client := probe.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, Error.Wrap(resp.Body.Close())
}
