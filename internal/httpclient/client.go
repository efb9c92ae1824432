// Package httpclient implements the HTTP Fetcher: a single outbound
// GET with retry, exponential backoff with jitter, a rotating
// browser-like identification header, and proxy support.
package httpclient

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"trendaggr/internal/resilience/retry"
	"trendaggr/internal/trenderr"
)

// userAgents is a fixed pool of browser-like identification strings
// rotated per attempt to avoid naive bot-blocking on upstream sites.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:89.0) Gecko/20100101 Firefox/89.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.212 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (iPad; CPU OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
}

// Config configures a Fetcher.
type Config struct {
	MaxRetries     int
	BaseDelay      time.Duration
	Timeout        time.Duration
	ProxyURL       string
	RotateUserAgent bool
}

// DefaultConfig returns the spec-mandated defaults: 3 retries, 1s base
// delay, 10s per-attempt timeout.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		BaseDelay:       1 * time.Second,
		Timeout:         10 * time.Second,
		RotateUserAgent: true,
	}
}

// Response is the decoded result of a successful Get.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Text returns the response body decoded as UTF-8 text.
func (r *Response) Text() string { return string(r.Body) }

// Fetcher issues GET requests under the Fetcher policy.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

// New constructs a Fetcher from cfg, building an *http.Client with the
// configured proxy and per-attempt timeout.
func New(cfg Config) (*Fetcher, error) {
	transport := &http.Transport{}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, &trenderr.ConfigError{Key: "http.proxy", Cause: err}
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}, nil
}

func retryableStatuses() map[int]bool {
	return map[int]bool{408: true, 429: true, 500: true, 502: true, 503: true, 504: true}
}

// Get performs a single GET, retrying per the Fetcher policy. The
// identification header is rotated on every attempt.
func (f *Fetcher) Get(ctx context.Context, rawURL string, query map[string]string, headers map[string]string, cookies map[string]string) (*Response, error) {
	retryCfg := retry.Config{
		MaxAttempts:    f.cfg.MaxRetries,
		InitialDelay:   f.cfg.BaseDelay,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.5,
	}

	var result *Response
	attempt := 0
	err := retry.WithBackoff(ctx, retryCfg, func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		if len(query) > 0 {
			q := req.URL.Query()
			for k, v := range query {
				q.Set(k, v)
			}
			req.URL.RawQuery = q.Encode()
		}
		f.applyHeaders(req, headers, cookies)

		resp, err := f.client.Do(req)
		if err != nil {
			slog.Warn("fetch attempt failed", slog.String("url", rawURL), slog.Int("attempt", attempt), slog.Any("error", err))
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode >= 400 {
			if retryableStatuses()[resp.StatusCode] {
				return &retry.HTTPError{StatusCode: resp.StatusCode, Message: rawURL}
			}
			return &trenderr.NetworkError{URL: rawURL, StatusCode: resp.StatusCode, Cause: &retry.HTTPError{StatusCode: resp.StatusCode, Message: "non-retryable status"}}
		}

		result = &Response{StatusCode: resp.StatusCode, Body: body, Header: resp.Header}
		return nil
	})

	if err != nil {
		var netErr *trenderr.NetworkError
		if ok := asNetworkError(err, &netErr); ok {
			return nil, netErr
		}
		return nil, &trenderr.NetworkError{URL: rawURL, Cause: err}
	}
	return result, nil
}

func asNetworkError(err error, target **trenderr.NetworkError) bool {
	for err != nil {
		if ne, ok := err.(*trenderr.NetworkError); ok {
			*target = ne
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (f *Fetcher) applyHeaders(req *http.Request, headers, cookies map[string]string) {
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("DNT", "1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	if f.cfg.RotateUserAgent {
		req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

// GetResult is one slot of a GetMany call, preserving input order.
type GetResult struct {
	Response *Response
	Err      error
}

// GetMany fetches urls concurrently, preserving input order in the
// returned slice regardless of completion order.
func (f *Fetcher) GetMany(ctx context.Context, urls []string) []GetResult {
	results := make([]GetResult, len(urls))
	done := make(chan int, len(urls))
	for i, u := range urls {
		go func(i int, u string) {
			resp, err := f.Get(ctx, u, nil, nil, nil)
			results[i] = GetResult{Response: resp, Err: err}
			done <- i
		}(i, u)
	}
	for range urls {
		<-done
	}
	return results
}
