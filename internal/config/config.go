// Package config loads and validates the aggregator daemon and CLI's
// configuration, following the same fail-open env-loading strategy as
// the teacher's internal/infra/worker config: start from defaults,
// overlay environment variables, validate each field individually,
// and fall back to the default with a logged warning rather than
// refusing to start, per spec.md §6.1.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	pkgconfig "trendaggr/internal/pkg/config"
)

// Sources toggles which adapter families are active, per spec.md §6.1.
type Sources struct {
	VideoPlatform bool
	PortalNaver   bool
	PortalDaum    bool
	PortalZum     bool
	PortalNate    bool
	NewsRSS       bool
	NewsPortal    bool
	PublicTrends  bool
}

// Config is the top-level aggregate binding every option spec.md §6.1
// documents: source toggles, per-family limits, aggregation tuning,
// clusterer credentials, refresh timing, cache settings, and the HTTP
// and push-stream listener addresses.
type Config struct {
	Sources Sources

	PerSourceLimit int
	MaxRetries     int
	RetryDelay     time.Duration
	AdapterTimeout time.Duration
	TopCap         int
	MinSources     int

	RefreshInterval time.Duration
	StaleThreshold  time.Duration
	ShutdownGrace   time.Duration

	ClusterEnabled   bool
	ClusterBackend   string // "claude" or "openai"
	ClusterAPIKey    string
	ClusterModel     string
	HooksPerTopic    int
	ClusterTopN      int

	CacheBackend    string // "memory" or "file"
	CacheDir        string
	CacheTTL        time.Duration
	CacheCleanup    time.Duration

	SnapshotPath string

	HTTPAddr string
	WSAddr   string

	VideoAPIKey string
}

// DefaultConfig returns spec.md §6.1's documented defaults.
func DefaultConfig() Config {
	return Config{
		Sources: Sources{
			VideoPlatform: true,
			PortalNaver:   true,
			PortalDaum:    true,
			PortalZum:     false,
			PortalNate:    false,
			NewsRSS:       true,
			NewsPortal:    false,
			PublicTrends:  true,
		},
		PerSourceLimit:  20,
		MaxRetries:      3,
		RetryDelay:      1 * time.Second,
		AdapterTimeout:  30 * time.Second,
		TopCap:          100,
		MinSources:      2,
		RefreshInterval: 300 * time.Second,
		StaleThreshold:  3600 * time.Second,
		ShutdownGrace:   10 * time.Second,
		ClusterEnabled:  false,
		ClusterBackend:  "claude",
		HooksPerTopic:   3,
		ClusterTopN:     30,
		CacheBackend:    "memory",
		CacheDir:        "./data/cache",
		CacheTTL:        10 * time.Minute,
		CacheCleanup:    5 * time.Minute,
		SnapshotPath:    "./data/snapshot.json",
		HTTPAddr:        ":8080",
		WSAddr:          ":8081",
	}
}

// Validate checks every field using the reusable validators from
// internal/pkg/config, collecting all failures instead of stopping at
// the first one.
func (c *Config) Validate() error {
	var errs []error

	if err := pkgconfig.ValidateIntRange(c.PerSourceLimit, 1, 500); err != nil {
		errs = append(errs, fmt.Errorf("per_source_limit: %w", err))
	}
	if err := pkgconfig.ValidateIntRange(c.MaxRetries, 0, 10); err != nil {
		errs = append(errs, fmt.Errorf("max_retries: %w", err))
	}
	if err := pkgconfig.ValidatePositiveDuration(c.AdapterTimeout); err != nil {
		errs = append(errs, fmt.Errorf("adapter_timeout: %w", err))
	}
	if err := pkgconfig.ValidateIntRange(c.TopCap, 1, 1000); err != nil {
		errs = append(errs, fmt.Errorf("top_cap: %w", err))
	}
	if err := pkgconfig.ValidateIntRange(c.MinSources, 1, 10); err != nil {
		errs = append(errs, fmt.Errorf("min_sources: %w", err))
	}
	if err := pkgconfig.ValidateDuration(c.RefreshInterval, 10*time.Second, 24*time.Hour); err != nil {
		errs = append(errs, fmt.Errorf("refresh_interval: %w", err))
	}
	if err := pkgconfig.ValidatePositiveDuration(c.StaleThreshold); err != nil {
		errs = append(errs, fmt.Errorf("stale_threshold: %w", err))
	}
	if c.ClusterBackend != "claude" && c.ClusterBackend != "openai" {
		errs = append(errs, fmt.Errorf("cluster_backend: must be \"claude\" or \"openai\", got %q", c.ClusterBackend))
	}
	if c.CacheBackend != "memory" && c.CacheBackend != "file" {
		errs = append(errs, fmt.Errorf("cache_backend: must be \"memory\" or \"file\", got %q", c.CacheBackend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %v", errs)
	}
	return nil
}

// fileOverlay is the optional YAML config-file shape: every field is a
// pointer or a plain string so an absent key in the file leaves the
// base Config value untouched. Durations are strings parsed with
// time.ParseDuration rather than yaml's native (non-existent) duration
// support.
type fileOverlay struct {
	Sources *Sources `yaml:"sources"`

	PerSourceLimit *int    `yaml:"per_source_limit"`
	MaxRetries     *int    `yaml:"max_retries"`
	AdapterTimeout string  `yaml:"adapter_timeout"`
	TopCap         *int    `yaml:"top_cap"`
	MinSources     *int    `yaml:"min_sources"`

	RefreshInterval string `yaml:"refresh_interval"`
	StaleThreshold  string `yaml:"stale_threshold"`
	ShutdownGrace   string `yaml:"shutdown_grace"`

	ClusterBackend string `yaml:"cluster_backend"`
	ClusterModel   string `yaml:"cluster_model"`
	HooksPerTopic  *int   `yaml:"hooks_per_topic"`
	ClusterTopN    *int   `yaml:"cluster_top_n"`

	CacheBackend string `yaml:"cache_backend"`
	CacheDir     string `yaml:"cache_dir"`

	SnapshotPath string `yaml:"snapshot_path"`
	HTTPAddr     string `yaml:"http_addr"`
	WSAddr       string `yaml:"ws_addr"`
}

// LoadFromFile reads an optional YAML config file as the base layer
// beneath environment variables, per spec.md §6.1's "environment
// overrides file" precedence. A missing path is not an error: it
// simply leaves base unchanged, so callers can pass an empty path
// unconditionally.
func LoadFromFile(path string, base Config) (Config, error) {
	if path == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return base, nil
	}
	if err != nil {
		return base, fmt.Errorf("read config file: %w", err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return base, fmt.Errorf("parse config file: %w", err)
	}

	cfg := base
	if overlay.Sources != nil {
		cfg.Sources = *overlay.Sources
	}
	if overlay.PerSourceLimit != nil {
		cfg.PerSourceLimit = *overlay.PerSourceLimit
	}
	if overlay.MaxRetries != nil {
		cfg.MaxRetries = *overlay.MaxRetries
	}
	if overlay.TopCap != nil {
		cfg.TopCap = *overlay.TopCap
	}
	if overlay.MinSources != nil {
		cfg.MinSources = *overlay.MinSources
	}
	if overlay.HooksPerTopic != nil {
		cfg.HooksPerTopic = *overlay.HooksPerTopic
	}
	if overlay.ClusterTopN != nil {
		cfg.ClusterTopN = *overlay.ClusterTopN
	}
	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{overlay.AdapterTimeout, &cfg.AdapterTimeout},
		{overlay.RefreshInterval, &cfg.RefreshInterval},
		{overlay.StaleThreshold, &cfg.StaleThreshold},
		{overlay.ShutdownGrace, &cfg.ShutdownGrace},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return base, fmt.Errorf("parse config file duration %q: %w", d.raw, err)
		}
		*d.dst = parsed
	}
	if overlay.ClusterBackend != "" {
		cfg.ClusterBackend = overlay.ClusterBackend
	}
	if overlay.ClusterModel != "" {
		cfg.ClusterModel = overlay.ClusterModel
	}
	if overlay.CacheBackend != "" {
		cfg.CacheBackend = overlay.CacheBackend
	}
	if overlay.CacheDir != "" {
		cfg.CacheDir = overlay.CacheDir
	}
	if overlay.SnapshotPath != "" {
		cfg.SnapshotPath = overlay.SnapshotPath
	}
	if overlay.HTTPAddr != "" {
		cfg.HTTPAddr = overlay.HTTPAddr
	}
	if overlay.WSAddr != "" {
		cfg.WSAddr = overlay.WSAddr
	}
	return cfg, nil
}

// LoadFromEnv overlays environment variables onto DefaultConfig(),
// following the fail-open strategy: an invalid value falls back to
// the default with a logged warning instead of aborting startup.
func LoadFromEnv(logger *slog.Logger) Config {
	return LoadFromEnvOverlay(logger, DefaultConfig())
}

// LoadFromEnvOverlay overlays environment variables onto base (itself
// usually DefaultConfig() or the result of LoadFromFile), so a config
// file and the environment compose: file sets the base, environment
// always wins per spec.md §6.1.
func LoadFromEnvOverlay(logger *slog.Logger, base Config) Config {
	cfg := base

	cfg.Sources.VideoPlatform = boolEnv("SOURCE_VIDEO_PLATFORM", cfg.Sources.VideoPlatform, logger)
	cfg.Sources.PortalNaver = boolEnv("SOURCE_PORTAL_NAVER", cfg.Sources.PortalNaver, logger)
	cfg.Sources.PortalDaum = boolEnv("SOURCE_PORTAL_DAUM", cfg.Sources.PortalDaum, logger)
	cfg.Sources.PortalZum = boolEnv("SOURCE_PORTAL_ZUM", cfg.Sources.PortalZum, logger)
	cfg.Sources.PortalNate = boolEnv("SOURCE_PORTAL_NATE", cfg.Sources.PortalNate, logger)
	cfg.Sources.NewsRSS = boolEnv("SOURCE_NEWS_RSS", cfg.Sources.NewsRSS, logger)
	cfg.Sources.NewsPortal = boolEnv("SOURCE_NEWS_PORTAL", cfg.Sources.NewsPortal, logger)
	cfg.Sources.PublicTrends = boolEnv("SOURCE_PUBLIC_TRENDS", cfg.Sources.PublicTrends, logger)

	cfg.PerSourceLimit = intEnv("PER_SOURCE_LIMIT", cfg.PerSourceLimit, 1, 500, logger)
	cfg.MaxRetries = intEnv("MAX_RETRIES", cfg.MaxRetries, 0, 10, logger)
	cfg.AdapterTimeout = durationEnv("ADAPTER_TIMEOUT", cfg.AdapterTimeout, 1*time.Second, 5*time.Minute, logger)
	cfg.TopCap = intEnv("TOP_CAP", cfg.TopCap, 1, 1000, logger)
	cfg.MinSources = intEnv("MIN_SOURCES", cfg.MinSources, 1, 10, logger)

	cfg.RefreshInterval = durationEnv("REFRESH_INTERVAL", cfg.RefreshInterval, 10*time.Second, 24*time.Hour, logger)
	cfg.StaleThreshold = durationEnv("STALE_THRESHOLD", cfg.StaleThreshold, 1*time.Minute, 7*24*time.Hour, logger)
	cfg.ShutdownGrace = durationEnv("SHUTDOWN_GRACE", cfg.ShutdownGrace, 1*time.Second, 5*time.Minute, logger)

	cfg.ClusterEnabled = boolEnv("CLUSTER_ENABLED", cfg.ClusterEnabled, logger)
	cfg.ClusterBackend = pkgconfig.LoadEnvString("CLUSTER_BACKEND", cfg.ClusterBackend)
	cfg.ClusterAPIKey = pkgconfig.LoadEnvString("CLUSTER_API_KEY", cfg.ClusterAPIKey)
	cfg.ClusterModel = pkgconfig.LoadEnvString("CLUSTER_MODEL", cfg.ClusterModel)
	cfg.HooksPerTopic = intEnv("HOOKS_PER_TOPIC", cfg.HooksPerTopic, 1, 10, logger)
	cfg.ClusterTopN = intEnv("CLUSTER_TOP_N", cfg.ClusterTopN, 5, 200, logger)

	cfg.CacheBackend = pkgconfig.LoadEnvString("CACHE_BACKEND", cfg.CacheBackend)
	cfg.CacheDir = pkgconfig.LoadEnvString("CACHE_DIR", cfg.CacheDir)
	cfg.CacheTTL = durationEnv("CACHE_TTL", cfg.CacheTTL, 1*time.Second, 24*time.Hour, logger)
	cfg.CacheCleanup = durationEnv("CACHE_CLEANUP", cfg.CacheCleanup, 1*time.Second, 24*time.Hour, logger)

	cfg.SnapshotPath = pkgconfig.LoadEnvString("SNAPSHOT_PATH", cfg.SnapshotPath)
	cfg.HTTPAddr = pkgconfig.LoadEnvString("HTTP_ADDR", cfg.HTTPAddr)
	cfg.WSAddr = pkgconfig.LoadEnvString("WS_ADDR", cfg.WSAddr)
	cfg.VideoAPIKey = pkgconfig.LoadEnvString("VIDEO_API_KEY", cfg.VideoAPIKey)

	return cfg
}

func boolEnv(key string, def bool, logger *slog.Logger) bool {
	result := pkgconfig.LoadEnvBool(key, def)
	return result.Value.(bool)
}

func intEnv(key string, def, min, max int, logger *slog.Logger) int {
	result := pkgconfig.LoadEnvInt(key, def, func(v int) error {
		return pkgconfig.ValidateIntRange(v, min, max)
	})
	if result.FallbackApplied {
		for _, w := range result.Warnings {
			logger.Warn("configuration fallback applied", slog.String("field", key), slog.String("warning", w))
		}
	}
	return result.Value.(int)
}

func durationEnv(key string, def, min, max time.Duration, logger *slog.Logger) time.Duration {
	result := pkgconfig.LoadEnvDuration(key, def, func(d time.Duration) error {
		return pkgconfig.ValidateDuration(d, min, max)
	})
	if result.FallbackApplied {
		for _, w := range result.Warnings {
			logger.Warn("configuration fallback applied", slog.String("field", key), slog.String("warning", w))
		}
	}
	return result.Value.(time.Duration)
}
