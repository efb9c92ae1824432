// Package publictrends implements the Public Trends adapter: a daily
// RSS listing plus an optional realtime listing, per spec.md §4.3.
package publictrends

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"trendaggr/internal/adapter"
	"trendaggr/internal/resilience/circuitbreaker"
	"trendaggr/internal/resilience/retry"
	"trendaggr/internal/trend"
)

// RSSScoreConfig parameterizes the `max(base - step*idx, 0)` curve for
// the daily RSS listing. Independently configurable from the
// news-RSS curve (spec.md §9(b)); the public-trends default matches
// spec.md §4.3 (score = max(100 − 5·idx, 0)).
type RSSScoreConfig struct {
	Base int
	Step int
}

func DefaultRSSScoreConfig() RSSScoreConfig {
	return RSSScoreConfig{Base: 100, Step: 5}
}

func (c RSSScoreConfig) scoreAt(idx int) int {
	s := c.Base - c.Step*idx
	if s < 0 {
		return 0
	}
	return s
}

// RSSAdapter fetches the daily trends RSS feed.
type RSSAdapter struct {
	feedURL  string
	client   *http.Client
	scoreCfg RSSScoreConfig
	retryCfg retry.Config
	breaker  *circuitbreaker.CircuitBreaker
}

func NewRSSAdapter(feedURL string, client *http.Client, scoreCfg RSSScoreConfig) *RSSAdapter {
	return &RSSAdapter{
		feedURL:  feedURL,
		client:   client,
		scoreCfg: scoreCfg,
		retryCfg: retry.FeedFetchConfig(),
		breaker:  circuitbreaker.New(circuitbreaker.FeedFetchConfig()),
	}
}

func (a *RSSAdapter) Name() string { return string(trend.SourcePublicTrends) + "_rss" }

func (a *RSSAdapter) Fetch(ctx context.Context, limit int) ([]trend.RawTrend, error) {
	var feed *gofeed.Feed
	err := retry.WithBackoff(ctx, a.retryCfg, func() error {
		result, cbErr := a.breaker.Execute(func() (interface{}, error) {
			fp := gofeed.NewParser()
			fp.Client = a.client
			return fp.ParseURLWithContext(a.feedURL, ctx)
		})
		if cbErr != nil {
			return cbErr
		}
		feed = result.(*gofeed.Feed)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("public trends rss fetch: %w", err)
	}

	items := feed.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	now := time.Now()
	out := make([]trend.RawTrend, 0, len(items))
	for idx, it := range items {
		out = append(out, trend.RawTrend{
			Keyword:     it.Title,
			Source:      trend.SourcePublicTrends,
			Score:       adapter.IntPtr(a.scoreCfg.scoreAt(idx)),
			URL:         it.Link,
			CollectedAt: now,
		})
	}
	return adapter.DedupeByBestRank(out), nil
}

// RealtimeAdapter fetches the realtime listing, scored with
// `score = 21 - rank` semantics matching the portal-combine curve.
type RealtimeAdapter struct {
	listingURL string
	itemSel    string
	client     *http.Client
	retryCfg   retry.Config
	breaker    *circuitbreaker.CircuitBreaker
}

func NewRealtimeAdapter(listingURL, itemSel string, client *http.Client) *RealtimeAdapter {
	return &RealtimeAdapter{
		listingURL: listingURL,
		itemSel:    itemSel,
		client:     client,
		retryCfg:   retry.WebScraperConfig(),
		breaker:    circuitbreaker.New(circuitbreaker.WebScraperConfig()),
	}
}

func (a *RealtimeAdapter) Name() string { return string(trend.SourcePublicTrends) + "_realtime" }

func (a *RealtimeAdapter) Fetch(ctx context.Context, limit int) ([]trend.RawTrend, error) {
	var doc *goquery.Document
	err := retry.WithBackoff(ctx, a.retryCfg, func() error {
		result, cbErr := a.breaker.Execute(func() (interface{}, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.listingURL, nil)
			if err != nil {
				return nil, err
			}
			resp, err := a.client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			return goquery.NewDocumentFromReader(resp.Body)
		})
		if cbErr != nil {
			return cbErr
		}
		doc = result.(*goquery.Document)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("public trends realtime fetch: %w", err)
	}

	now := time.Now()
	var out []trend.RawTrend
	idx := 0
	doc.Find(a.itemSel).Each(func(_ int, s *goquery.Selection) {
		if limit > 0 && idx >= limit {
			return
		}
		keyword := s.Text()
		if keyword == "" {
			return
		}
		rank := idx + 1
		out = append(out, trend.RawTrend{
			Keyword:     keyword,
			Source:      trend.SourcePublicTrends,
			Rank:        adapter.IntPtr(rank),
			CollectedAt: now,
		})
		idx++
	})
	return adapter.DedupeByBestRank(out), nil
}
