package publictrends

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>Daily Trends</title>
<item><title>alpha</title><link>http://x/alpha</link></item>
<item><title>beta</title><link>http://x/beta</link></item>
<item><title>gamma</title><link>http://x/gamma</link></item>
</channel></rss>`

const sampleListing = `<html><body>
<ul class="rank-list">
<li class="item">first</li>
<li class="item">second</li>
<li class="item"></li>
<li class="item">third</li>
</ul>
</body></html>`

func TestRSSScoreConfig_ScoreAtClampsToZero(t *testing.T) {
	cfg := DefaultRSSScoreConfig()
	assert.Equal(t, 100, cfg.scoreAt(0))
	assert.Equal(t, 95, cfg.scoreAt(1))
	assert.Equal(t, 0, cfg.scoreAt(100))
}

func TestRSSAdapter_Fetch_AssignsDescendingScoreByPosition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	a := NewRSSAdapter(srv.URL, http.DefaultClient, DefaultRSSScoreConfig())
	out, err := a.Fetch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, out, 3)

	require.NotNil(t, out[0].Score)
	require.NotNil(t, out[1].Score)
	assert.Equal(t, 100, *out[0].Score)
	assert.Equal(t, 95, *out[1].Score)
	assert.Nil(t, out[0].Rank, "RSS records carry a score, never a rank")
}

func TestRSSAdapter_Fetch_RespectsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	a := NewRSSAdapter(srv.URL, http.DefaultClient, DefaultRSSScoreConfig())
	out, err := a.Fetch(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestRealtimeAdapter_Fetch_RanksByPositionAndSkipsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleListing))
	}))
	defer srv.Close()

	a := NewRealtimeAdapter(srv.URL, ".rank-list .item", http.DefaultClient)
	out, err := a.Fetch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, out, 3, "the empty <li> must be skipped")

	require.NotNil(t, out[0].Rank)
	assert.Equal(t, 1, *out[0].Rank)
	assert.Equal(t, "first", out[0].Keyword)
	assert.Nil(t, out[0].Score, "realtime records carry a rank, never a score")

	require.NotNil(t, out[1].Rank)
	assert.Equal(t, 2, *out[1].Rank)

	require.NotNil(t, out[2].Rank)
	assert.Equal(t, 3, *out[2].Rank, "rank must count real items only, skipping the blank entry")
}

func TestRealtimeAdapter_Fetch_RespectsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleListing))
	}))
	defer srv.Close()

	a := NewRealtimeAdapter(srv.URL, ".rank-list .item", http.DefaultClient)
	out, err := a.Fetch(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
