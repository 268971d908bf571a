// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package ranking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/errs"
	"go.uber.org/zap/zaptest"
	clocktesting "k8s.io/utils/clock/testing"

	"storj.io/keeper/internal/testcontext"
	"storj.io/keeper/lifecycle/ranking"
)

var now = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

type rates struct {
	success, failure, transfer *float64
}

// metrics serves fixed rates, a nil rate means no data.
type metrics map[string]rates

func value(v float64) *float64 { return &v }

func lookup(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

func (m metrics) SuccessRate(id string) (float64, bool)  { return lookup(m[id].success) }
func (m metrics) FailureRate(id string) (float64, bool)  { return lookup(m[id].failure) }
func (m metrics) TransferRate(id string) (float64, bool) { return lookup(m[id].transfer) }

// probe answers fixed status codes per url.
type probe struct {
	mu     sync.Mutex
	status map[string]int
	block  map[string]bool
	probed []string
}

func (p *probe) CheckConnection(ctx context.Context, url string, creds ranking.Credentials) (int, error) {
	p.mu.Lock()
	p.probed = append(p.probed, url)
	block := p.block[url]
	status, ok := p.status[url]
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if !ok {
		return 0, errs.New("connection refused")
	}
	return status, nil
}

func source(id string) ranking.Source {
	return ranking.Source{ID: id, URL: "https://" + id, Listable: true, LastUsed: now.Add(-time.Minute)}
}

func newRanker(t *testing.T, m ranking.MetricsProvider, p ranking.ConnectivityProbe) *ranking.Ranker {
	return ranking.NewRanker(zaptest.NewLogger(t), m, p, clocktesting.NewFakePassiveClock(now), ranking.Config{
		ProbeTimeout: 100 * time.Millisecond,
		RetryDelay:   time.Hour,
	})
}

func allReachable(ids ...string) *probe {
	p := &probe{status: make(map[string]int), block: make(map[string]bool)}
	for _, id := range ids {
		p.status["https://"+id] = 200
	}
	return p
}

func TestRank_Scores(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	m := metrics{
		"fast":     {success: value(9), failure: value(1), transfer: value(1000)},
		"slow":     {success: value(9), failure: value(1), transfer: value(250)},
		"flaky":    {success: value(1), failure: value(1), transfer: value(1000)},
		"failures": {success: value(0), failure: value(0), transfer: value(500)},
	}
	ranker := newRanker(t, m, allReachable("fast", "slow", "flaky", "failures"))

	ranked, err := ranker.Rank(ctx, []ranking.Source{source("slow"), source("failures"), source("flaky"), source("fast")})
	require.NoError(t, err)
	require.Equal(t, []string{"fast", "flaky", "slow", "failures"}, ranking.IDs(ranked))

	scores := map[string]float64{}
	for _, r := range ranked {
		require.False(t, r.Forced)
		scores[r.Source.ID] = r.Score
	}
	require.InDelta(t, 1.0, scores["fast"], 1e-9)
	require.InDelta(t, (1.0+0.5/0.9)/2, scores["flaky"], 1e-9)
	require.InDelta(t, (0.25+1.0)/2, scores["slow"], 1e-9)
	require.InDelta(t, (0.5+0)/2, scores["failures"], 1e-9, "both-zero ratio is zero")
}

func TestRank_SingleSourceNormalized(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	m := metrics{"only": {success: value(3), failure: value(1), transfer: value(42)}}
	ranked, err := newRanker(t, m, allReachable("only")).Rank(ctx, []ranking.Source{source("only")})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	require.InDelta(t, 1.0, ranked[0].Score, 1e-9)
}

func TestRank_IdleSourcesNormalized(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	m := metrics{
		"a": {success: value(0), failure: value(0), transfer: value(0)},
		"b": {success: value(0), failure: value(0), transfer: value(0)},
	}
	ranked, err := newRanker(t, m, allReachable("a", "b")).Rank(ctx, []ranking.Source{source("a"), source("b")})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ranking.IDs(ranked), "ties keep input order")
	for _, r := range ranked {
		require.InDelta(t, 0.5, r.Score, 1e-9)
	}
}

func TestRank_Forced(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	m := metrics{
		"best":        {success: value(100), failure: value(0), transfer: value(1e9)},
		"no-transfer": {success: value(100), failure: value(0)},
		"only-fail":   {failure: value(1), transfer: value(1)},
		"overdue":     {success: value(1), failure: value(9), transfer: value(1)},
	}
	overdue := source("overdue")
	overdue.LastUsed = now.Add(-2 * time.Hour)

	ranker := newRanker(t, m, allReachable("best", "new", "no-transfer", "only-fail", "overdue"))
	ranked, err := ranker.Rank(ctx, []ranking.Source{source("best"), source("new"), source("no-transfer"), source("only-fail"), overdue})
	require.NoError(t, err)

	require.Equal(t, []string{"new", "no-transfer", "overdue", "best", "only-fail"}, ranking.IDs(ranked))
	for _, r := range ranked[:3] {
		require.True(t, r.Forced, r.Source.ID)
		require.Equal(t, ranking.ForcedScore, r.Score)
	}
	require.False(t, ranked[3].Forced)
	require.Less(t, ranked[3].Score, ranking.ForcedScore)
}

func TestRank_Unreachable(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	p := allReachable("up")
	p.status["https://forbidden"] = 403
	p.block["https://hanging"] = true

	notListable := source("not-listable")
	notListable.Listable = false
	p.status["https://not-listable"] = 200

	ranker := newRanker(t, metrics{}, p)
	ranked, err := ranker.Rank(ctx, []ranking.Source{source("up"), source("forbidden"), source("down"), source("hanging"), notListable})
	require.NoError(t, err)
	require.Equal(t, []string{"up"}, ranking.IDs(ranked))

	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotContains(t, p.probed, "https://not-listable")
	require.Len(t, p.probed, 4)
}

func TestRank_Empty(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	ranked, err := newRanker(t, metrics{}, allReachable()).Rank(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, ranked)
}
