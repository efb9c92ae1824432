// Package pagefetcher declares the PageFetcher capability: an
// injectable interface for adapters that would otherwise depend on a
// headless browser to render JavaScript pages, per spec.md §9's
// design note. No example repo in the corpus depends on a headless
// browser library, so only a static-HTML implementation and a
// not-supported stub exist here; a real browser-backed implementation
// is a future PageFetcher, not part of this system's core.
package pagefetcher

import (
	"bytes"
	"context"
	"errors"

	"github.com/PuerkitoBio/goquery"

	"trendaggr/internal/httpclient"
)

// ErrBrowserUnavailable is returned by NotSupported for any request
// that genuinely requires JS execution.
var ErrBrowserUnavailable = errors.New("page fetcher: headless rendering not available in this build")

// Selectors documents the CSS fields an adapter expects back per
// matched element.
type Selectors struct {
	Item   string
	Fields map[string]string // field name -> CSS selector, relative to Item
}

// PageFetcher renders url (if necessary) and extracts a list of field
// maps per matched element.
type PageFetcher interface {
	RenderAndExtract(ctx context.Context, url string, selectors Selectors) ([]map[string]string, error)
}

// StaticHTML implements PageFetcher against plain server-rendered
// HTML via goquery, with no JS execution. Adequate for any adapter
// whose target page doesn't require client-side rendering. Fetching
// goes through the Fetcher's retry/backoff/user-agent-rotation policy
// rather than a bare http.Client, since the portal/news pages this
// feeds are the same bot-sensitive targets the Fetcher was built for.
type StaticHTML struct {
	Fetcher *httpclient.Fetcher
}

// NewStaticHTML builds a StaticHTML renderer over a Fetcher configured
// with cfg, or httpclient.DefaultConfig() if cfg is the zero value.
func NewStaticHTML(cfg httpclient.Config) (*StaticHTML, error) {
	if cfg == (httpclient.Config{}) {
		cfg = httpclient.DefaultConfig()
	}
	fetcher, err := httpclient.New(cfg)
	if err != nil {
		return nil, err
	}
	return &StaticHTML{Fetcher: fetcher}, nil
}

func (s *StaticHTML) RenderAndExtract(ctx context.Context, url string, selectors Selectors) ([]map[string]string, error) {
	resp, err := s.Fetcher.Get(ctx, url, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, err
	}

	var out []map[string]string
	doc.Find(selectors.Item).Each(func(_ int, item *goquery.Selection) {
		row := make(map[string]string, len(selectors.Fields))
		for field, sel := range selectors.Fields {
			if sel == "" {
				row[field] = item.Text()
				continue
			}
			row[field] = item.Find(sel).First().Text()
		}
		out = append(out, row)
	})
	return out, nil
}

// NotSupported is injected wherever an adapter would need genuine JS
// rendering; it always fails so the gap is visible rather than
// silently returning empty results.
type NotSupported struct{}

func (NotSupported) RenderAndExtract(ctx context.Context, url string, selectors Selectors) ([]map[string]string, error) {
	return nil, ErrBrowserUnavailable
}
