// Command aggregator runs the trend aggregation daemon: it wires the
// configured source adapters into the Aggregator, drives the Refresh
// Controller's background loop, and serves the HTTP and push-stream
// surfaces until SIGINT/SIGTERM. Modeled on the teacher's cmd/worker
// and cmd/api entrypoints: structured JSON logging via slog, a
// cancellable root context, and a signal-triggered graceful shutdown.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trendaggr/internal/adapter"
	"trendaggr/internal/adapter/news"
	"trendaggr/internal/adapter/portal"
	"trendaggr/internal/adapter/publictrends"
	"trendaggr/internal/adapter/video"
	"trendaggr/internal/aggregator"
	"trendaggr/internal/cache"
	"trendaggr/internal/clusterer"
	"trendaggr/internal/config"
	_ "trendaggr/docs"
	httpmw "trendaggr/internal/handler/http"
	"trendaggr/internal/handler/http/middleware"
	"trendaggr/internal/query"
	"trendaggr/internal/refresh"
	"trendaggr/internal/transport/httpapi"
	"trendaggr/internal/transport/ws"
	"trendaggr/internal/trend"
	"trendaggr/pkg/ratelimit"
)

// @title		Trend Aggregator API
// @version		1.0
// @description	Real-time multi-source trend aggregation and topic clustering.
// @host		localhost:8080
// @BasePath	/
func main() {
	logger := initLogger()
	slog.SetDefault(logger)

	cfg, err := config.LoadFromFile(os.Getenv("CONFIG_FILE"), config.DefaultConfig())
	if err != nil {
		logger.Error("invalid configuration file", slog.Any("error", err))
		os.Exit(1)
	}
	cfg = config.LoadFromEnvOverlay(logger, cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newHTTPClient()
	cacheStore := buildCacheStore(cfg, logger)
	adapters := buildAdapters(cfg, client)
	for i, a := range adapters {
		adapters[i] = adapter.WithCache(a, cacheStore, cfg.CacheTTL)
	}
	agg := aggregator.New(adapters, aggregator.Config{
		MaxRetries:         cfg.MaxRetries,
		RetryDelay:         cfg.RetryDelay,
		AdapterTimeout:     cfg.AdapterTimeout,
		AggregationTimeout: 120 * time.Second,
		TopCap:             cfg.TopCap,
		MinSources:         cfg.MinSources,
	})

	clust := buildClusterer(cfg)
	store := refresh.NewPersister(cfg.SnapshotPath)

	controller := refresh.New(agg, clust, store, refresh.Config{
		RefreshInterval: cfg.RefreshInterval,
		StaleThreshold:  cfg.StaleThreshold,
		ShutdownGrace:   cfg.ShutdownGrace,
		ClusterTopN:     cfg.ClusterTopN,
	})

	go controller.Run(ctx)

	facade := query.New(controller, query.NewMockHistoryProvider())
	apiKeyConfigured := cfg.ClusterAPIKey != ""

	refreshLimiter, refreshStore := buildRefreshLimiter()
	go httpmw.StartRateLimitCleanup(ctx, refreshStore, 5*time.Minute, time.Minute, "refresh")

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewServer(facade, controller, apiKeyConfigured, 10*time.Second, refreshLimiter),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	wsSrv := &http.Server{
		Addr:              cfg.WSAddr,
		Handler:           refreshLimiter.Middleware()(ws.NewHandler(controller)),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go runServer(logger, "http", httpSrv)
	go runServer(logger, "ws", wsSrv)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := controller.Shutdown(shutdownCtx); err != nil {
		logger.Error("controller shutdown failed", slog.Any("error", err))
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", slog.Any("error", err))
	}
	if err := wsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ws server shutdown failed", slog.Any("error", err))
	}
	cacheStore.Close()
	cancel()
	logger.Info("shutdown complete")
}

func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func runServer(logger *slog.Logger, name string, srv *http.Server) {
	logger.Info("server starting", slog.String("server", name), slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", slog.String("server", name), slog.Any("error", err))
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 15 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
}

func buildAdapters(cfg config.Config, client *http.Client) []adapter.Adapter {
	var adapters []adapter.Adapter

	if cfg.Sources.VideoPlatform {
		videoAdapter := video.New(video.Config{
			APIKey: cfg.VideoAPIKey,
		}, client)
		if videoAdapter.Enabled() {
			adapters = append(adapters, videoAdapter)
		}
	}

	if cfg.Sources.PortalNaver {
		adapters = append(adapters, portal.New("portal_naver", trend.SourcePortalNaver, client,
			portal.NewHTMLStrategy("https://datalab.naver.com/keyword/realtimeList.naver", "li.rank_wrap", "span.title")))
	}
	if cfg.Sources.PortalDaum {
		adapters = append(adapters, portal.New("portal_daum", trend.SourcePortalDaum, client,
			portal.NewHTMLStrategy("https://www.daum.net", "li.item_issue", "span.txt_issue")))
	}
	if cfg.Sources.PortalZum {
		adapters = append(adapters, portal.New("portal_zum", trend.SourcePortalZum, client,
			portal.NewHTMLStrategy("https://zum.com", "li.issue_item", "span.txt")))
	}
	if cfg.Sources.PortalNate {
		adapters = append(adapters, portal.New("portal_nate", trend.SourcePortalNate, client,
			portal.NewHTMLStrategy("https://www.nate.com", "li.rank_list", "span.txt")))
	}

	if cfg.Sources.NewsRSS {
		adapters = append(adapters, news.NewRSSAdapter("news_rss", "https://news.google.com/rss?hl=ko&gl=KR&ceid=KR:ko",
			client, news.DefaultRSSScoreConfig()))
	}
	if cfg.Sources.NewsPortal {
		portalAdapter := news.NewHTMLRankingAdapter("news_portal_naver", "https://news.naver.com/main/ranking/popularDay.naver",
			trend.SourceNewsPortalNaver, client, news.HTMLSelectors{
				Item:  "li.as_pick",
				Title: "strong.list_title",
				Link:  "a",
			})
		adapters = append(adapters, portalAdapter.WithContentEnrichment(news.NewContentEnricher(client, 10*time.Second)))
	}

	if cfg.Sources.PublicTrends {
		adapters = append(adapters, publictrends.NewRSSAdapter("https://trends.google.com/trends/trendingsearches/daily/rss?geo=KR",
			client, publictrends.DefaultRSSScoreConfig()))
	}

	return adapters
}

// buildCacheStore constructs the Cache Layer backend named by
// cfg.CacheBackend. A file-backend construction failure falls back to
// an in-memory store rather than aborting startup, matching the
// fail-open posture of the rest of cfg's env loading.
func buildCacheStore(cfg config.Config, logger *slog.Logger) cache.Store {
	if cfg.CacheBackend == "file" {
		store, err := cache.NewFile(cfg.CacheDir, cfg.CacheCleanup)
		if err != nil {
			logger.Warn("falling back to in-memory cache", slog.Any("error", err))
		} else {
			return store
		}
	}
	return cache.NewMemory(cfg.CacheCleanup)
}

// buildRefreshLimiter constructs the per-IP rate limiter guarding
// POST /refresh and the websocket upgrade, the same sliding-window +
// circuit-breaker engine the teacher's middleware package wires
// around any expensive, directly-triggerable endpoint. It returns the
// underlying store too, since the caller also needs it for the
// periodic cleanup goroutine.
func buildRefreshLimiter() (*middleware.IPRateLimiter, *ratelimit.InMemoryRateLimitStore) {
	store := ratelimit.NewInMemoryRateLimitStore(ratelimit.DefaultInMemoryStoreConfig())
	limiter := middleware.NewIPRateLimiter(
		middleware.IPRateLimiterConfig{Limit: 20, Window: time.Minute, Enabled: true},
		buildIPExtractor(),
		store,
		ratelimit.NewSlidingWindowAlgorithm(nil),
		ratelimit.NewPrometheusMetrics(),
		ratelimit.NewCircuitBreaker(ratelimit.CircuitBreakerConfig{LimiterType: "refresh"}),
	)
	return limiter, store
}

// buildIPExtractor picks the rate limiter's client-IP strategy. By
// default it trusts only the TCP connection's own address, immune to
// header spoofing. Operators running behind a reverse proxy opt in to
// X-Forwarded-For/X-Real-IP extraction via RATE_LIMIT_TRUST_PROXY, and
// must whitelist the proxy's own address in RATE_LIMIT_TRUSTED_PROXIES
// or the limiter refuses to start.
func buildIPExtractor() middleware.IPExtractor {
	proxyCfg, err := middleware.LoadTrustedProxyConfig()
	if err != nil {
		slog.Error("invalid trusted proxy configuration, falling back to RemoteAddr extraction", slog.Any("error", err))
		return &middleware.RemoteAddrExtractor{}
	}
	if !proxyCfg.Enabled {
		return &middleware.RemoteAddrExtractor{}
	}
	return middleware.NewTrustedProxyExtractor(*proxyCfg)
}

func buildClusterer(cfg config.Config) *clusterer.Clusterer {
	if !cfg.ClusterEnabled || cfg.ClusterAPIKey == "" {
		return clusterer.New(nil, false, cfg.HooksPerTopic)
	}

	var backend clusterer.Backend
	switch cfg.ClusterBackend {
	case "openai":
		backend = clusterer.NewOpenAIBackend(cfg.ClusterAPIKey, cfg.ClusterModel)
	default:
		model := cfg.ClusterModel
		if model == "" {
			model = "claude-3-5-haiku-latest"
		}
		backend = clusterer.NewClaudeBackend(cfg.ClusterAPIKey, model)
	}
	backend = clusterer.NewRateLimitedBackend(backend, 1, 2)
	return clusterer.New(backend, true, cfg.HooksPerTopic)
}
