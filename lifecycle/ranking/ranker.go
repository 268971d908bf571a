// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package ranking

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
)

// ForcedScore is assigned to sources that must be tried this round. It is
// above any computed score.
const ForcedScore = 1.1

// Config contains configurable values for source ranking.
type Config struct {
	Interval     time.Duration `help:"how frequently sources are ranked" default:"5m0s"`
	ProbeTimeout time.Duration `help:"how long a connectivity check may take" default:"10s"`
	RetryDelay   time.Duration `help:"sources unused for longer than this are retried first" default:"1h0m0s"`
}

// Ranked is a source with its score.
type Ranked struct {
	Source Source
	Score  float64
	Forced bool
}

// IDs returns the ids of ranked in order.
func IDs(ranked []Ranked) []string {
	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.Source.ID)
	}
	return ids
}

// Ranker scores sources.
type Ranker struct {
	log     *zap.Logger
	metrics MetricsProvider
	probe   ConnectivityProbe
	clock   clock.PassiveClock
	config  Config
}

// NewRanker creates a new ranker.
func NewRanker(log *zap.Logger, metrics MetricsProvider, probe ConnectivityProbe, clk clock.PassiveClock, config Config) *Ranker {
	return &Ranker{
		log:     log,
		metrics: metrics,
		probe:   probe,
		clock:   clk,
		config:  config,
	}
}

// Rank returns the listable and reachable sources ordered by descending
// score. Sources without metrics, or not used within the retry delay, come
// first with ForcedScore. Equal scores keep the input order.
func (ranker *Ranker) Rank(ctx context.Context, sources []Source) (_ []Ranked, err error) {
	defer mon.Task()(&ctx)(&err)

	var listable []Source
	for _, source := range sources {
		if source.Listable {
			listable = append(listable, source)
		}
	}

	reachable := make([]bool, len(listable))
	var group errgroup.Group
	for i := range listable {
		i := i
		group.Go(func() error {
			reachable[i] = ranker.reachable(ctx, &listable[i])
			return nil
		})
	}
	_ = group.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type scored struct {
		Ranked
		rate, ratio float64
	}

	now := ranker.clock.Now()
	var all []scored
	var maxRate, maxRatio float64
	for i, source := range listable {
		if !reachable[i] {
			continue
		}

		success, hasSuccess := ranker.metrics.SuccessRate(source.ID)
		failure, hasFailure := ranker.metrics.FailureRate(source.ID)
		rate, hasRate := ranker.metrics.TransferRate(source.ID)

		entry := scored{Ranked: Ranked{Source: source}}
		switch {
		case !hasSuccess && !hasFailure:
			entry.Forced = true
		case !hasRate:
			entry.Forced = true
		case now.Sub(source.LastUsed) > ranker.config.RetryDelay:
			entry.Forced = true
		}
		if entry.Forced {
			entry.Score = ForcedScore
			all = append(all, entry)
			continue
		}

		if success+failure > 0 {
			entry.ratio = success / (success + failure)
		}
		entry.rate = rate
		if entry.rate > maxRate {
			maxRate = entry.rate
		}
		if entry.ratio > maxRatio {
			maxRatio = entry.ratio
		}
		all = append(all, entry)
	}

	ranked := make([]Ranked, 0, len(all))
	for _, entry := range all {
		if !entry.Forced {
			rateScore, ratioScore := 1.0, 1.0
			if maxRate > 0 {
				rateScore = entry.rate / maxRate
			}
			if maxRatio > 0 {
				ratioScore = entry.ratio / maxRatio
			}
			entry.Score = (rateScore + ratioScore) / 2
		}
		ranked = append(ranked, entry.Ranked)
	}

	sort.SliceStable(ranked, func(i, k int) bool {
		return ranked[i].Score > ranked[k].Score
	})
	return ranked, nil
}

func (ranker *Ranker) reachable(ctx context.Context, source *Source) bool {
	log := ranker.log.With(zap.String("Source", source.ID))

	if ranker.config.ProbeTimeout > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, ranker.config.ProbeTimeout)
		defer cancel()
	}

	status, err := ranker.probe.CheckConnection(ctx, source.URL, source.Credentials)
	if err != nil {
		log.Warn("source unreachable", zap.Error(err))
		return false
	}
	if status < 200 || status > 299 {
		log.Warn("source rejected connectivity check", zap.Int("Status", status))
		return false
	}
	return true
}
