package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendaggr/internal/adapter"
	"trendaggr/internal/aggregator"
	"trendaggr/internal/refresh"
	"trendaggr/internal/trend"
)

type fixedAdapter struct{ items []trend.RawTrend }

func (f *fixedAdapter) Name() string { return "fixed" }
func (f *fixedAdapter) Fetch(ctx context.Context, limit int) ([]trend.RawTrend, error) {
	return f.items, nil
}

func newTestController(t *testing.T, items ...trend.RawTrend) *refresh.Controller {
	t.Helper()
	agg := aggregator.New([]adapter.Adapter{&fixedAdapter{items: items}}, aggregator.Config{
		MaxRetries:         1,
		RetryDelay:         time.Millisecond,
		AdapterTimeout:     time.Second,
		AggregationTimeout: 5 * time.Second,
		TopCap:             100,
		MinSources:         1,
	})
	c := refresh.New(agg, nil, nil, refresh.Config{
		RefreshInterval: time.Hour,
		StaleThreshold:  time.Hour,
		ShutdownGrace:   2 * time.Second,
		ClusterTopN:     10,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()
	_, err := c.RefreshNow(reqCtx)
	require.NoError(t, err)
	return c
}

func dialTestServer(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandler_SendsConnectedEventOnUpgrade(t *testing.T) {
	c := newTestController(t, trend.RawTrend{Keyword: "alpha", Source: trend.SourcePortalNaver, Rank: adapter.IntPtr(1)})
	srv := httptest.NewServer(NewHandler(c))
	defer srv.Close()

	conn := dialTestServer(t, srv)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg event
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "connected", msg.Type)
}

func TestHandler_RespondsToRequestUpdate(t *testing.T) {
	c := newTestController(t, trend.RawTrend{Keyword: "alpha", Source: trend.SourcePortalNaver, Rank: adapter.IntPtr(1)})
	srv := httptest.NewServer(NewHandler(c))
	defer srv.Close()

	conn := dialTestServer(t, srv)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var connected event
	require.NoError(t, conn.ReadJSON(&connected))

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "request_update"}))

	var update event
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, "trends_update", update.Type)

	raw, err := json.Marshal(update.Data)
	require.NoError(t, err)
	var payload trend.UpdateEvent
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Len(t, payload.HotKeywords, 1)
	assert.Equal(t, "alpha", payload.HotKeywords[0].Keyword)
}

func TestHandler_ClosesOnClientDisconnect(t *testing.T) {
	c := newTestController(t)
	srv := httptest.NewServer(NewHandler(c))
	defer srv.Close()

	conn := dialTestServer(t, srv)
	assert.NoError(t, conn.Close())
}
