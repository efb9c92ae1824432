// Package news implements the News Feed adapter family: an RSS
// wire-news submode, a ranking-HTML portal submode, and a
// keyword-search submode, per spec.md §4.3.
package news

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"github.com/sony/gobreaker"

	"trendaggr/internal/adapter"
	"trendaggr/internal/resilience/circuitbreaker"
	"trendaggr/internal/resilience/retry"
	"trendaggr/internal/trend"
)

// maxEnrichBodyBytes bounds how much of an article page ContentEnricher
// reads before handing it to Readability, the same size-limiting
// posture the teacher's ReadabilityFetcher applies to untrusted pages.
const maxEnrichBodyBytes = 2 << 20 // 2 MiB

// ScoreConfig parameterizes the `max(base - step*idx, 0)` score curve
// used by the RSS submode. Kept distinct and independently
// configurable from the public-trends RSS curve per spec.md §9(b).
type ScoreConfig struct {
	Base int
	Step int
}

// DefaultRSSScoreConfig matches spec.md §4.3's news-RSS formula
// (score = max(80 − 2·idx, 0)).
func DefaultRSSScoreConfig() ScoreConfig {
	return ScoreConfig{Base: 80, Step: 2}
}

func (c ScoreConfig) scoreAt(idx int) int {
	s := c.Base - c.Step*idx
	if s < 0 {
		return 0
	}
	return s
}

// RSSAdapter implements the wire-news RSS submode: parse XML
// item/title|link|description, scored by position.
type RSSAdapter struct {
	name           string
	feedURL        string
	client         *http.Client
	scoreCfg       ScoreConfig
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryCfg       retry.Config
}

// NewRSSAdapter builds an adapter for a single wire-news RSS feed.
func NewRSSAdapter(name, feedURL string, client *http.Client, scoreCfg ScoreConfig) *RSSAdapter {
	return &RSSAdapter{
		name:           name,
		feedURL:        feedURL,
		client:         client,
		scoreCfg:       scoreCfg,
		circuitBreaker: circuitbreaker.New(circuitbreaker.FeedFetchConfig()),
		retryCfg:       retry.FeedFetchConfig(),
	}
}

func (a *RSSAdapter) Name() string { return a.name }

func (a *RSSAdapter) Fetch(ctx context.Context, limit int) ([]trend.RawTrend, error) {
	var feed *gofeed.Feed

	err := retry.WithBackoff(ctx, a.retryCfg, func() error {
		result, cbErr := a.circuitBreaker.Execute(func() (interface{}, error) {
			fp := gofeed.NewParser()
			fp.Client = a.client
			return fp.ParseURLWithContext(a.feedURL, ctx)
		})
		if cbErr != nil {
			if errors.Is(cbErr, gobreaker.ErrOpenState) {
				slog.Warn("news rss circuit breaker open", slog.String("adapter", a.name))
			}
			return cbErr
		}
		feed = result.(*gofeed.Feed)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("news rss fetch %s: %w", a.name, err)
	}

	items := feed.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	now := time.Now()
	out := make([]trend.RawTrend, 0, len(items))
	for idx, it := range items {
		score := a.scoreCfg.scoreAt(idx)
		md := trend.Metadata{}
		if it.Description != "" {
			md = md.WithDescription(it.Description)
		}
		out = append(out, trend.RawTrend{
			Keyword:     it.Title,
			Source:      trend.SourceNewsRSS,
			Score:       adapter.IntPtr(score),
			URL:         it.Link,
			Metadata:    md,
			CollectedAt: now,
		})
	}
	return adapter.DedupeByBestRank(out), nil
}

// HTMLRankingAdapter implements the ranking-HTML-page submode: parse
// a news portal's list page via documented CSS selectors, extracting
// title/link/press/thumbnail/description/published_time/category.
type HTMLRankingAdapter struct {
	name      string
	pageURL   string
	source    trend.Source
	client    *http.Client
	selectors HTMLSelectors
	retryCfg  retry.Config
	breaker   *circuitbreaker.CircuitBreaker
	enricher  *ContentEnricher
}

// WithContentEnrichment attaches a ContentEnricher that backfills a
// ranked item's description by fetching its article page and running
// Mozilla Readability, for ranking pages whose list selectors don't
// expose a description snippet. Returns the adapter itself for chaining.
func (a *HTMLRankingAdapter) WithContentEnrichment(enricher *ContentEnricher) *HTMLRankingAdapter {
	a.enricher = enricher
	return a
}

// HTMLSelectors documents the CSS selector contract a portal's
// ranking page must satisfy.
type HTMLSelectors struct {
	Item        string
	Title       string
	Link        string
	Press       string
	Thumbnail   string
	Description string
	Category    string
}

// NewHTMLRankingAdapter builds an adapter scraping a news portal's
// ranking HTML page under the given selector contract.
func NewHTMLRankingAdapter(name, pageURL string, source trend.Source, client *http.Client, selectors HTMLSelectors) *HTMLRankingAdapter {
	return &HTMLRankingAdapter{
		name:      name,
		pageURL:   pageURL,
		source:    source,
		client:    client,
		selectors: selectors,
		retryCfg:  retry.WebScraperConfig(),
		breaker:   circuitbreaker.New(circuitbreaker.WebScraperConfig()),
	}
}

func (a *HTMLRankingAdapter) Name() string { return a.name }

func (a *HTMLRankingAdapter) Fetch(ctx context.Context, limit int) ([]trend.RawTrend, error) {
	var doc *goquery.Document

	err := retry.WithBackoff(ctx, a.retryCfg, func() error {
		result, cbErr := a.breaker.Execute(func() (interface{}, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.pageURL, nil)
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
		return nil, fmt.Errorf("news html ranking fetch %s: %w", a.name, err)
	}

	now := time.Now()
	var out []trend.RawTrend
	idx := 0
	doc.Find(a.selectors.Item).Each(func(_ int, s *goquery.Selection) {
		if limit > 0 && idx >= limit {
			return
		}
		title := textOf(s, a.selectors.Title)
		if title == "" {
			return
		}
		link, _ := s.Find(a.selectors.Link).Attr("href")
		md := trend.Metadata{}
		if press := textOf(s, a.selectors.Press); press != "" {
			md = md.WithPress(press)
		}
		if thumb, ok := s.Find(a.selectors.Thumbnail).Attr("src"); ok {
			md = md.WithThumbnail(thumb)
		}
		if desc := textOf(s, a.selectors.Description); desc != "" {
			md = md.WithDescription(desc)
		}
		if cat := textOf(s, a.selectors.Category); cat != "" {
			md = md.WithCategory(cat)
		}
		rank := idx + 1
		out = append(out, trend.RawTrend{
			Keyword:     title,
			Source:      a.source,
			URL:         link,
			Rank:        adapter.IntPtr(rank),
			Metadata:    md,
			CollectedAt: now,
		})
		idx++
	})

	if a.enricher != nil {
		for i := range out {
			if desc, _ := out[i].Metadata["description"].(string); desc != "" || out[i].URL == "" {
				continue
			}
			content, err := a.enricher.Extract(ctx, out[i].URL)
			if err != nil {
				slog.Debug("news content enrichment failed", slog.String("adapter", a.name), slog.String("url", out[i].URL), slog.Any("error", err))
				continue
			}
			out[i].Metadata = out[i].Metadata.WithDescription(content)
		}
	}

	return adapter.DedupeByBestRank(out), nil
}

// ContentEnricher fetches an article page and extracts clean article
// text via Mozilla Readability, the same algorithm and size/timeout
// posture as the teacher's infra/fetcher.ReadabilityFetcher, scoped
// down to a single best-effort backfill call per ranked item rather
// than a dedicated content-fetching service.
type ContentEnricher struct {
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
}

// NewContentEnricher builds a ContentEnricher over client, bounding
// each fetch to timeout (or 10s if zero).
func NewContentEnricher(client *http.Client, timeout time.Duration) *ContentEnricher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ContentEnricher{
		client:  client,
		breaker: circuitbreaker.New(circuitbreaker.FeedFetchConfig()),
		timeout: timeout,
	}
}

// Extract fetches rawURL and returns its Readability-extracted plain
// text content.
func (e *ContentEnricher) Extract(ctx context.Context, rawURL string) (string, error) {
	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.doExtract(ctx, rawURL)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (e *ContentEnricher) doExtract(ctx context.Context, rawURL string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "TrendAggrBot/1.0")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("content enrich: HTTP %d for %s", resp.StatusCode, rawURL)
	}

	limited := io.LimitReader(resp.Body, maxEnrichBodyBytes+1)
	htmlBytes, err := io.ReadAll(limited)
	if err != nil {
		return "", err
	}
	if int64(len(htmlBytes)) > maxEnrichBodyBytes {
		return "", fmt.Errorf("content enrich: response exceeds %d bytes", maxEnrichBodyBytes)
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		parsedURL = nil
	}
	article, err := readability.FromReader(bytes.NewReader(htmlBytes), parsedURL)
	if err != nil {
		return "", fmt.Errorf("content enrich: readability: %w", err)
	}
	if article.TextContent != "" {
		return article.TextContent, nil
	}
	if article.Content != "" {
		return article.Content, nil
	}
	return "", fmt.Errorf("content enrich: no readable content found for %s", rawURL)
}

func textOf(s *goquery.Selection, sel string) string {
	if sel == "" {
		return ""
	}
	return trimSpace(s.Find(sel).First().Text())
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// KeywordSearchAdapter implements the keyword-search submode: items
// scored purely by provider sort order (no explicit score), fetched
// from a portal's search API or HTML results page.
type KeywordSearchAdapter struct {
	name   string
	search func(ctx context.Context, query string, limit int) ([]trend.RawTrend, error)
	query  string
}

// NewKeywordSearchAdapter wraps a provider-specific search function
// (JSON API or HTML scrape) satisfying the Adapter contract.
func NewKeywordSearchAdapter(name, query string, search func(ctx context.Context, query string, limit int) ([]trend.RawTrend, error)) *KeywordSearchAdapter {
	return &KeywordSearchAdapter{name: name, query: query, search: search}
}

func (a *KeywordSearchAdapter) Name() string { return a.name }

func (a *KeywordSearchAdapter) Fetch(ctx context.Context, limit int) ([]trend.RawTrend, error) {
	items, err := a.search(ctx, a.query, limit)
	if err != nil {
		return nil, fmt.Errorf("news keyword search %s: %w", a.name, err)
	}
	return adapter.DedupeByBestRank(items), nil
}
