// Package video implements the video platform adapter: given an API
// credential and region code, returns the "most popular" listing,
// scored by view count, per spec.md §4.3.
package video

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"trendaggr/internal/adapter"
	"trendaggr/internal/resilience/circuitbreaker"
	"trendaggr/internal/resilience/retry"
	"trendaggr/internal/trend"
	"trendaggr/internal/trenderr"
)

const apiName = "video_platform"

// Config configures the video platform adapter.
type Config struct {
	APIKey   string
	Region   string
	Category string
	Endpoint string
}

// Adapter implements adapter.Adapter for the video platform's "most
// popular" listing endpoint.
type Adapter struct {
	cfg      Config
	client   *http.Client
	retryCfg retry.Config
	breaker  *circuitbreaker.CircuitBreaker
}

// New constructs the adapter. Per spec.md §4.3, a missing credential
// means the adapter is disabled — callers check Enabled() before
// wiring it into the Aggregator's adapter list.
func New(cfg Config, client *http.Client) *Adapter {
	return &Adapter{
		cfg:      cfg,
		client:   client,
		retryCfg: retry.AIAPIConfig(),
		breaker:  circuitbreaker.New(circuitbreaker.DefaultConfig(apiName)),
	}
}

// Enabled reports whether a credential is configured.
func (a *Adapter) Enabled() bool { return a.cfg.APIKey != "" }

func (a *Adapter) Name() string { return string(trend.SourceVideo) }

type videoListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			ChannelName string `json:"channelTitle"`
			Description string `json:"description"`
			PublishedAt string `json:"publishedAt"`
			Thumbnail   string `json:"thumbnailUrl"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Fetch requests up to limit items from the most-popular listing. A
// quota or authorization error from the upstream API is treated as a
// soft failure: an empty result is returned with a warning-level
// ApiError, never an adapter crash.
func (a *Adapter) Fetch(ctx context.Context, limit int) ([]trend.RawTrend, error) {
	if !a.Enabled() {
		return nil, nil
	}

	endpoint := a.cfg.Endpoint
	q := url.Values{}
	q.Set("key", a.cfg.APIKey)
	q.Set("regionCode", a.cfg.Region)
	if a.cfg.Category != "" {
		q.Set("videoCategoryId", a.cfg.Category)
	}
	q.Set("maxResults", fmt.Sprintf("%d", limit))

	var parsed videoListResponse
	err := retry.WithBackoff(ctx, a.retryCfg, func() error {
		result, cbErr := a.breaker.Execute(func() (interface{}, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
			if err != nil {
				return nil, err
			}
			resp, err := a.client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			var body videoListResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return nil, &trenderr.ParsingError{Source: apiName, Field: "body", Cause: err}
			}
			return body, nil
		})
		if cbErr != nil {
			return cbErr
		}
		parsed = result.(videoListResponse)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("video adapter fetch: %w", err)
	}

	if parsed.Error != nil {
		return nil, &trenderr.ApiError{
			APIName:  apiName,
			Endpoint: endpoint,
			Code:     fmt.Sprintf("%d", parsed.Error.Code),
			Cause:    fmt.Errorf("%s", parsed.Error.Message),
		}
	}

	now := time.Now()
	out := make([]trend.RawTrend, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		viewCount := parseInt64(item.Statistics.ViewCount)
		md := trend.Metadata{}.
			WithChannel(item.Snippet.ChannelName).
			WithViewCount(viewCount).
			WithDescription(item.Snippet.Description).
			WithThumbnail(item.Snippet.Thumbnail)
		if pub, perr := time.Parse(time.RFC3339, item.Snippet.PublishedAt); perr == nil {
			md = md.WithPublishedAt(pub)
		}
		out = append(out, trend.RawTrend{
			Keyword:     item.Snippet.Title,
			Source:      trend.SourceVideo,
			Score:       adapter.IntPtr(int(viewCount / 10_000)),
			URL:         "https://www.youtube.com/watch?v=" + item.ID,
			Metadata:    md,
			CollectedAt: now,
		})
	}
	return adapter.DedupeByBestRank(out), nil
}

func parseInt64(s string) int64 {
	var n int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int64(c-'0')
	}
	return n
}
