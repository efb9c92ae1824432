package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendaggr/internal/trenderr"
)

func testConfig() Config {
	return Config{MaxRetries: 3, BaseDelay: time.Millisecond, Timeout: 5 * time.Second, RotateUserAgent: true}
}

func TestFetcher_Get_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f, err := New(testConfig())
	require.NoError(t, err)

	resp, err := f.Get(context.Background(), srv.URL, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", resp.Text())
}

func TestFetcher_Get_RetriesRetryableStatusThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f, err := New(testConfig())
	require.NoError(t, err)

	resp, err := f.Get(context.Background(), srv.URL, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestFetcher_Get_NonRetryableStatusFailsImmediately(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f, err := New(testConfig())
	require.NoError(t, err)

	_, err = f.Get(context.Background(), srv.URL, nil, nil, nil)
	require.Error(t, err)
	var netErr *trenderr.NetworkError
	assert.ErrorAs(t, err, &netErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts), "a non-retryable status must not be retried")
}

func TestFetcher_Get_QueryAndHeadersApplied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bar", r.URL.Query().Get("foo"))
		assert.Equal(t, "custom", r.Header.Get("X-Custom"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f, err := New(testConfig())
	require.NoError(t, err)

	_, err = f.Get(context.Background(), srv.URL, map[string]string{"foo": "bar"}, map[string]string{"X-Custom": "custom"}, nil)
	require.NoError(t, err)
}

func TestFetcher_GetMany_PreservesInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(r.URL.Query().Get("i")))
	}))
	defer srv.Close()

	f, err := New(testConfig())
	require.NoError(t, err)

	urls := make([]string, 5)
	for i := range urls {
		urls[i] = srv.URL + "?i=" + string(rune('0'+i))
	}

	results := f.GetMany(context.Background(), urls)
	require.Len(t, results, 5)
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, string(rune('0'+i)), r.Response.Text())
	}
}

func TestNew_InvalidProxyURLReturnsConfigError(t *testing.T) {
	cfg := testConfig()
	cfg.ProxyURL = "://bad-url"

	_, err := New(cfg)
	require.Error(t, err)
	var cfgErr *trenderr.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
