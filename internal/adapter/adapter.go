// Package adapter defines the capability every concrete source
// adapter (video, portal, news, public trends) satisfies: a single
// fetch method returning raw trend records under a uniform contract,
// per spec.md's "Adapter-as-capability" design note.
package adapter

import (
	"context"

	"trendaggr/internal/trend"
)

// Adapter converts one external source's response into RawTrend
// values. Implementations MUST NOT let a transport or parsing failure
// escape as a panic; Fetch returning a non-nil error is the only
// failure channel, and the Aggregator treats it as "empty result,
// logged".
type Adapter interface {
	// Name identifies the adapter for logging, metrics, and the
	// deterministic adapter ordering required by the concurrency model.
	Name() string

	// Fetch returns up to limit RawTrend records. Implementations
	// deduplicate by NormalizedKey within a single call, keeping the
	// best (lowest) rank for repeated keywords.
	Fetch(ctx context.Context, limit int) ([]trend.RawTrend, error)
}

// DedupeByBestRank collapses items sharing a NormalizedKey, keeping
// whichever has the lower rank (nil rank loses to any concrete rank,
// and among two concrete ranks the lower number wins). Order of first
// appearance is preserved for the winners.
func DedupeByBestRank(items []trend.RawTrend) []trend.RawTrend {
	order := make([]trend.NormalizedKey, 0, len(items))
	best := make(map[trend.NormalizedKey]trend.RawTrend, len(items))

	for _, item := range items {
		k := trend.Normalize(item.Keyword)
		existing, seen := best[k]
		if !seen {
			order = append(order, k)
			best[k] = item
			continue
		}
		if betterRank(item.Rank, existing.Rank) {
			best[k] = item
		}
	}

	out := make([]trend.RawTrend, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

func betterRank(candidate, current *int) bool {
	if candidate == nil {
		return false
	}
	if current == nil {
		return true
	}
	return *candidate < *current
}

// IntPtr is a small convenience constructor adapters use when
// populating RawTrend.Score/Rank from a concrete value.
func IntPtr(v int) *int { return &v }
