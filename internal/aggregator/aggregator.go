// Package aggregator drives all enabled adapters concurrently, fuses
// their results by NormalizedKey, and produces the ranked FusedKeyword
// output plus the raw-records index, per spec.md §4.4.
package aggregator

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"trendaggr/internal/adapter"
	"trendaggr/internal/observability/metrics"
	"trendaggr/internal/observability/tracing"
	"trendaggr/internal/resilience/retry"
	"trendaggr/internal/trend"
	"trendaggr/internal/trenderr"
)

// Config tunes the Aggregator's concurrency and deadlines.
type Config struct {
	MaxRetries         int
	RetryDelay         time.Duration
	AdapterTimeout     time.Duration
	AggregationTimeout time.Duration
	TopCap             int
	MinSources         int
}

// DefaultConfig returns spec.md §6.1's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:         3,
		RetryDelay:         1 * time.Second,
		AdapterTimeout:     30 * time.Second,
		AggregationTimeout: 120 * time.Second,
		TopCap:             100,
		MinSources:         2,
	}
}

// Result is the output of one Aggregator run.
type Result struct {
	AllRaw   []trend.RawTrend
	Ranked   []trend.FusedKeyword
	RawIndex map[trend.NormalizedKey][]trend.RawTrend
	Warning  error // non-nil only for the all-adapters-failed case
}

// Aggregator drives a fixed, deterministically ordered adapter list.
type Aggregator struct {
	adapters []adapter.Adapter
	cfg      Config
}

// New constructs an Aggregator over adapters in the given order. The
// order is preserved verbatim as the deterministic adapter order
// required by spec.md §5 for stable first-seen canonical forms.
func New(adapters []adapter.Adapter, cfg Config) *Aggregator {
	return &Aggregator{adapters: adapters, cfg: cfg}
}

type adapterOutcome struct {
	index int
	items []trend.RawTrend
	err   error
}

// Collect runs one full aggregation pass: concurrent fan-out with
// per-adapter retry and a hard deadline, then deterministic-order
// fusion per spec.md §4.4 steps 3-6.
func (a *Aggregator) Collect(ctx context.Context, perSourceLimit int) Result {
	ctx, span := tracing.GetTracer().Start(ctx, "aggregator.Collect")
	defer span.End()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.AggregationTimeout)
	defer cancel()

	outcomes := make([]adapterOutcome, len(a.adapters))
	var g errgroup.Group
	if len(a.adapters) > 0 {
		g.SetLimit(len(a.adapters))
	}

	for i, ad := range a.adapters {
		i, ad := i, ad
		g.Go(func() error {
			items, err := a.runOneAdapter(ctx, ad, perSourceLimit)
			outcomes[i] = adapterOutcome{index: i, items: items, err: err}
			return nil // adapter failures are isolated, never propagated to the group
		})
	}
	g.Wait()

	var allRaw []trend.RawTrend
	successCount := 0
	for i, outcome := range outcomes {
		name := a.adapters[i].Name()
		if outcome.err != nil {
			slog.Warn("adapter failed", slog.String("adapter", name), slog.Any("error", outcome.err))
			continue
		}
		successCount++
		allRaw = append(allRaw, outcome.items...)
	}

	if successCount == 0 {
		metrics.RecordAggregation(time.Since(start), 0)
		return Result{
			AllRaw:   []trend.RawTrend{},
			Ranked:   []trend.FusedKeyword{},
			RawIndex: map[trend.NormalizedKey][]trend.RawTrend{},
			Warning:  &trenderr.AggregationError{Reason: "all sources failed"},
		}
	}

	ranked, rawIndex := a.fuse(allRaw)
	metrics.RecordAggregation(time.Since(start), len(ranked))
	return Result{AllRaw: allRaw, Ranked: ranked, RawIndex: rawIndex}
}

func (a *Aggregator) runOneAdapter(ctx context.Context, ad adapter.Adapter, limit int) ([]trend.RawTrend, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "aggregator.adapter."+ad.Name())
	defer span.End()

	adapterCtx, cancel := context.WithTimeout(ctx, a.cfg.AdapterTimeout)
	defer cancel()
	fetchStart := time.Now()

	retryCfg := retry.Config{
		MaxAttempts:    a.cfg.MaxRetries,
		InitialDelay:   a.cfg.RetryDelay,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}

	var items []trend.RawTrend
	err := retry.WithBackoff(adapterCtx, retryCfg, func() error {
		result, err := ad.Fetch(adapterCtx, limit)
		if err != nil {
			return err
		}
		items = result
		return nil
	})
	metrics.RecordAdapterFetch(ad.Name(), err == nil, time.Since(fetchStart))
	return items, err
}

type accumulator struct {
	canonical     string
	sources       map[trend.Source]struct{}
	score         int
	urls          []string
	urlSet        map[string]struct{}
	perSourceRank map[trend.Source]int
}

// fuse implements spec.md §4.4 steps 3-6: the primary fusion
// algorithm over all_raw in deterministic adapter order.
func (a *Aggregator) fuse(allRaw []trend.RawTrend) ([]trend.FusedKeyword, map[trend.NormalizedKey][]trend.RawTrend) {
	order := make([]trend.NormalizedKey, 0)
	accumulators := make(map[trend.NormalizedKey]*accumulator)
	rawIndex := make(map[trend.NormalizedKey][]trend.RawTrend)

	for _, r := range allRaw {
		k := trend.Normalize(r.Keyword)
		acc, ok := accumulators[k]
		if !ok {
			acc = &accumulator{
				canonical:     r.Keyword,
				sources:       map[trend.Source]struct{}{},
				urlSet:        map[string]struct{}{},
				perSourceRank: map[trend.Source]int{},
			}
			accumulators[k] = acc
			order = append(order, k)
		}

		acc.sources[r.Source] = struct{}{}
		acc.score += scoreContribution(r)

		if r.URL != "" {
			if _, seen := acc.urlSet[r.URL]; !seen {
				acc.urlSet[r.URL] = struct{}{}
				acc.urls = append(acc.urls, r.URL)
			}
		}

		if r.Rank != nil {
			if _, recorded := acc.perSourceRank[r.Source]; !recorded {
				acc.perSourceRank[r.Source] = *r.Rank
			}
		}

		rawIndex[k] = append(rawIndex[k], r)
	}

	now := time.Now()
	fused := make([]trend.FusedKeyword, 0, len(order))
	for _, k := range order {
		acc := accumulators[k]
		fused = append(fused, trend.FusedKeyword{
			Keyword:       acc.canonical,
			Sources:       acc.sources,
			Score:         acc.score,
			PerSourceRank: acc.perSourceRank,
			URLs:          acc.urls,
			Timestamp:     now,
		})
	}

	sortFused(fused)

	if len(fused) > a.cfg.TopCap {
		fused = fused[:a.cfg.TopCap]
	}
	for i := range fused {
		fused[i].Rank = i + 1
	}

	return fused, rawIndex
}

// sortFused sorts by order(fk) = score * |sources| descending, with a
// stable tie-break by first-seen insertion order (sort.SliceStable
// preserves original order for equal keys, and fused is already in
// insertion order going in).
func sortFused(fused []trend.FusedKeyword) {
	sort.SliceStable(fused, func(i, j int) bool {
		oi := fused[i].Score * len(fused[i].Sources)
		oj := fused[j].Score * len(fused[j].Sources)
		return oi > oj
	})
}

// CombinePortals implements the alternative "combined portal"
// projection of spec.md §4.4: score = Σ max(21-rank_s, 1) over sources,
// filtered to |sources| ≥ minSources.
func CombinePortals(allRaw []trend.RawTrend, minSources, topCap int) []trend.FusedKeyword {
	order := make([]trend.NormalizedKey, 0)
	accumulators := make(map[trend.NormalizedKey]*accumulator)

	for _, r := range allRaw {
		if r.Rank == nil {
			continue
		}
		k := trend.Normalize(r.Keyword)
		acc, ok := accumulators[k]
		if !ok {
			acc = &accumulator{
				canonical: r.Keyword,
				sources:   map[trend.Source]struct{}{},
				urlSet:    map[string]struct{}{},
			}
			accumulators[k] = acc
			order = append(order, k)
		}
		acc.sources[r.Source] = struct{}{}
		acc.score += portalRankScore(*r.Rank)
		if r.URL != "" {
			if _, seen := acc.urlSet[r.URL]; !seen {
				acc.urlSet[r.URL] = struct{}{}
				acc.urls = append(acc.urls, r.URL)
			}
		}
	}

	now := time.Now()
	fused := make([]trend.FusedKeyword, 0, len(order))
	for _, k := range order {
		acc := accumulators[k]
		if len(acc.sources) < minSources {
			continue
		}
		fused = append(fused, trend.FusedKeyword{
			Keyword:   acc.canonical,
			Sources:   acc.sources,
			Score:     acc.score,
			URLs:      acc.urls,
			Timestamp: now,
		})
	}

	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })

	if topCap > 0 && len(fused) > topCap {
		fused = fused[:topCap]
	}
	for i := range fused {
		fused[i].Rank = i + 1
	}
	return fused
}

// scoreContribution implements spec.md §4.3's family-specific scoring
// formulas that are "derived in the Aggregator, not the adapter": for
// portal sources (ranked but scoreless) the contribution is
// max(21-rank, 1); for the public-trends realtime listing (which
// shares trend.SourcePublicTrends with the always-scored RSS feed, so
// is distinguished here by Score being nil) it is 21-rank, unclamped.
// Every other source falls back to the generic rule of spec.md §4.4
// step 4: r.score if present, else a flat 50.
func scoreContribution(r trend.RawTrend) int {
	if r.Score != nil {
		return *r.Score
	}
	if r.Rank == nil {
		return 50
	}
	switch r.Source {
	case trend.SourcePortalNaver, trend.SourcePortalDaum, trend.SourcePortalZum, trend.SourcePortalNate:
		return portalRankScore(*r.Rank)
	case trend.SourcePublicTrends:
		return 21 - *r.Rank
	default:
		return 50
	}
}

// portalRankScore implements max(21-rank, 1); rank=0 is never passed
// here since RawTrend.Rank is nil-checked by callers (spec.md §9(c)).
func portalRankScore(rank int) int {
	score := 21 - rank
	if score < 1 {
		return 1
	}
	return score
}
