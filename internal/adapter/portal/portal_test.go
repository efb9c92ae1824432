package portal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendaggr/internal/adapter/pagefetcher"
	"trendaggr/internal/trend"
)

func TestAdapter_JSONStrategy_FetchAssignsSourceAndCollectedAt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"keyword": "alpha", "rank": 1, "delta": 2},
			{"keyword": "beta", "rank": 2, "delta": -1},
		})
	}))
	defer srv.Close()

	extract := func(buf []byte) ([]RankedItem, error) {
		var raw []struct {
			Keyword string `json:"keyword"`
			Rank    int    `json:"rank"`
			Delta   int    `json:"delta"`
		}
		if err := json.Unmarshal(buf, &raw); err != nil {
			return nil, err
		}
		out := make([]RankedItem, len(raw))
		for i, r := range raw {
			out[i] = RankedItem{Keyword: r.Keyword, Rank: r.Rank, Delta: r.Delta}
		}
		return out, nil
	}

	strategy := NewJSONStrategy(srv.URL, extract)
	a := New("test_portal", trend.SourcePortalNaver, srv.Client(), strategy)

	items, err := a.Fetch(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, trend.SourcePortalNaver, item.Source)
		assert.False(t, item.CollectedAt.IsZero())
	}
	assert.Equal(t, "alpha", items[0].Keyword)
	assert.Equal(t, 2, items[0].Metadata["delta"])
}

func TestAdapter_JSONStrategy_RespectsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"keyword": "a", "rank": 1},
			{"keyword": "b", "rank": 2},
			{"keyword": "c", "rank": 3},
		})
	}))
	defer srv.Close()

	extract := func(buf []byte) ([]RankedItem, error) {
		var raw []struct {
			Keyword string `json:"keyword"`
			Rank    int    `json:"rank"`
		}
		if err := json.Unmarshal(buf, &raw); err != nil {
			return nil, err
		}
		out := make([]RankedItem, len(raw))
		for i, r := range raw {
			out[i] = RankedItem{Keyword: r.Keyword, Rank: r.Rank}
		}
		return out, nil
	}

	a := New("test_portal", trend.SourcePortalDaum, srv.Client(), NewJSONStrategy(srv.URL, extract))
	items, err := a.Fetch(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestAdapter_PropagatesStrategyError(t *testing.T) {
	extract := func(buf []byte) ([]RankedItem, error) { return nil, errors.New("bad payload") }
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("irrelevant"))
	}))
	defer srv.Close()

	a := New("test_portal", trend.SourcePortalZum, srv.Client(), NewJSONStrategy(srv.URL, extract))
	_, err := a.Fetch(context.Background(), 0)
	assert.Error(t, err)
}

type fakePageFetcher struct {
	rows []map[string]string
	err  error
}

func (f *fakePageFetcher) RenderAndExtract(ctx context.Context, url string, selectors pagefetcher.Selectors) ([]map[string]string, error) {
	return f.rows, f.err
}

func TestHTMLStrategy_FetchRanksByPosition(t *testing.T) {
	strategy := &HTMLStrategy{
		pageURL: "https://example.com/ranking",
		itemSel: "li",
		textSel: "span",
		pf: &fakePageFetcher{rows: []map[string]string{
			{"text": "first"},
			{"text": ""}, // skipped: empty text
			{"text": "third"},
		}},
	}

	items, err := strategy.fetch(context.Background(), nil, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first", items[0].Keyword)
	assert.Equal(t, 1, *items[0].Rank)
	assert.Equal(t, "third", items[1].Keyword)
	assert.Equal(t, 3, *items[1].Rank)
}

func TestHTMLStrategy_FetchPropagatesPageFetcherError(t *testing.T) {
	strategy := &HTMLStrategy{
		pf: &fakePageFetcher{err: errors.New("render failed")},
	}

	_, err := strategy.fetch(context.Background(), nil, 0)
	assert.Error(t, err)
}

func TestNewHTMLStrategy_ConstructsWithoutError(t *testing.T) {
	s := NewHTMLStrategy("https://example.com", "li", "span")
	assert.NotNil(t, s.pf)
}
