// Package portal implements the portal-search adapter family: one
// adapter per supported portal, each returning a ranked keyword list
// via either a JSON endpoint or HTML scraping, per spec.md §4.3. The
// Aggregator (not this package) derives score from rank.
package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"trendaggr/internal/adapter"
	"trendaggr/internal/adapter/pagefetcher"
	"trendaggr/internal/httpclient"
	"trendaggr/internal/resilience/circuitbreaker"
	"trendaggr/internal/resilience/retry"
	"trendaggr/internal/trend"
)

// Strategy is satisfied by either the JSON or HTML fetch strategy for
// a given portal.
type Strategy interface {
	fetch(ctx context.Context, client *http.Client, limit int) ([]trend.RawTrend, error)
}

// Adapter wraps a portal's chosen Strategy behind the common Adapter
// contract, attaching the portal's Source identity and resilience
// policy uniformly regardless of strategy.
type Adapter struct {
	name     string
	source   trend.Source
	client   *http.Client
	strategy Strategy
	retryCfg retry.Config
	breaker  *circuitbreaker.CircuitBreaker
}

// New builds a portal adapter. name is used for logging/metrics;
// source is the RawTrend.Source identity this portal populates.
func New(name string, source trend.Source, client *http.Client, strategy Strategy) *Adapter {
	return &Adapter{
		name:     name,
		source:   source,
		client:   client,
		strategy: strategy,
		retryCfg: retry.WebScraperConfig(),
		breaker:  circuitbreaker.New(circuitbreaker.WebScraperConfig()),
	}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Fetch(ctx context.Context, limit int) ([]trend.RawTrend, error) {
	var items []trend.RawTrend
	err := retry.WithBackoff(ctx, a.retryCfg, func() error {
		result, cbErr := a.breaker.Execute(func() (interface{}, error) {
			return a.strategy.fetch(ctx, a.client, limit)
		})
		if cbErr != nil {
			return cbErr
		}
		items = result.([]trend.RawTrend)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("portal fetch %s: %w", a.name, err)
	}

	now := time.Now()
	for i := range items {
		items[i].Source = a.source
		if items[i].CollectedAt.IsZero() {
			items[i].CollectedAt = now
		}
	}
	return adapter.DedupeByBestRank(items), nil
}

// JSONStrategy fetches a portal's JSON hot-search endpoint when one is
// available. rankingPath decodes a provider-specific shape through
// extract.
type JSONStrategy struct {
	endpoint string
	extract  func([]byte) ([]RankedItem, error)
}

type RankedItem struct {
	Keyword string
	Rank    int
	Delta   int
}

func NewJSONStrategy(endpoint string, extract func([]byte) ([]RankedItem, error)) *JSONStrategy {
	return &JSONStrategy{endpoint: endpoint, extract: extract}
}

func (s *JSONStrategy) fetch(ctx context.Context, client *http.Client, limit int) ([]trend.RawTrend, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	ranked, err := s.extract(buf)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]trend.RawTrend, 0, len(ranked))
	for _, r := range ranked {
		md := trend.Metadata{}.WithDelta(r.Delta)
		out = append(out, trend.RawTrend{
			Keyword:  r.Keyword,
			Rank:     adapter.IntPtr(r.Rank),
			Metadata: md,
		})
	}
	return out, nil
}

// HTMLStrategy scrapes a portal's ranking page via a documented CSS
// selector contract when no JSON endpoint is available, rendering
// through the shared PageFetcher rather than a bare http.Client so
// bot-sensitive portal pages get the Fetcher's retry/backoff/user-agent
// rotation policy.
type HTMLStrategy struct {
	pageURL string
	itemSel string
	textSel string
	pf      pagefetcher.PageFetcher
}

// NewHTMLStrategy builds an HTMLStrategy backed by a fresh
// pagefetcher.StaticHTML. Falls back to pagefetcher.NotSupported (an
// always-failing stub) if the underlying Fetcher cannot be
// constructed, so a bad proxy config surfaces on first Fetch instead
// of panicking at startup.
func NewHTMLStrategy(pageURL, itemSel, textSel string) *HTMLStrategy {
	pf, err := pagefetcher.NewStaticHTML(httpclient.Config{})
	if err != nil {
		return &HTMLStrategy{pageURL: pageURL, itemSel: itemSel, textSel: textSel, pf: pagefetcher.NotSupported{}}
	}
	return &HTMLStrategy{pageURL: pageURL, itemSel: itemSel, textSel: textSel, pf: pf}
}

func (s *HTMLStrategy) fetch(ctx context.Context, client *http.Client, limit int) ([]trend.RawTrend, error) {
	selectors := pagefetcher.Selectors{Item: s.itemSel, Fields: map[string]string{"text": s.textSel}}
	rows, err := s.pf.RenderAndExtract(ctx, s.pageURL, selectors)
	if err != nil {
		return nil, err
	}

	var out []trend.RawTrend
	for idx, row := range rows {
		if limit > 0 && idx >= limit {
			break
		}
		text := row["text"]
		if text == "" {
			continue
		}
		out = append(out, trend.RawTrend{
			Keyword: text,
			Rank:    adapter.IntPtr(idx + 1),
		})
	}
	return out, nil
}
