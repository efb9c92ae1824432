// Command trendctl is the one-shot/daemon CLI surface named in
// spec.md §6.5: source toggles, per-family overrides, and output
// formatting over a single aggregation run or a periodic loop. Built
// on the standard library flag package the way the teacher's small
// cmd/ai/* binaries are, with the same exit-code discipline (0
// success, 1 configuration error, 2 unrecoverable aggregation failure
// for a one-shot run — daemon mode never exits 2).
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"trendaggr/internal/adapter"
	"trendaggr/internal/adapter/news"
	"trendaggr/internal/adapter/portal"
	"trendaggr/internal/adapter/publictrends"
	"trendaggr/internal/adapter/video"
	"trendaggr/internal/aggregator"
	"trendaggr/internal/config"
	"trendaggr/internal/trend"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		flagVideo        = flag.Bool("video", false, "enable the video platform source")
		flagNews         = flag.Bool("news", false, "enable the news RSS source")
		flagPortal       = flag.Bool("portal", false, "enable portal realtime-search sources")
		flagPublicTrends = flag.Bool("public-trends", false, "enable the public trends source")
		flagAll          = flag.Bool("all", false, "enable every source")
		minSources       = flag.Int("min-sources", 2, "minimum contributing sources for a keyword to be kept")
		limit            = flag.Int("limit", 20, "per-source result limit")

		output  = flag.String("output", "", "write results to PATH instead of stdout")
		format  = flag.String("format", "json", "output format: json, csv, or xlsx")
		pretty  = flag.Bool("pretty", false, "pretty-print JSON output")

		daemon   = flag.Bool("daemon", false, "run periodically instead of once")
		interval = flag.Int("interval", 300, "seconds between runs in daemon mode")
		cronExpr = flag.String("cron", "", "cron expression for daemon mode, alternative to --interval")
		runs     = flag.Int("runs", 0, "number of daemon runs before exiting (0 = unbounded)")
		verbose  = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	logger := initLogger(*verbose)

	if *format != "json" && *format != "csv" && *format != "xlsx" {
		fmt.Fprintf(os.Stderr, "invalid --format %q: must be json, csv, or xlsx\n", *format)
		return 1
	}

	cfg := config.DefaultConfig()
	if *flagAll {
		cfg.Sources.VideoPlatform = true
		cfg.Sources.PortalNaver = true
		cfg.Sources.PortalDaum = true
		cfg.Sources.NewsRSS = true
		cfg.Sources.PublicTrends = true
	} else {
		cfg.Sources.VideoPlatform = *flagVideo
		cfg.Sources.PortalNaver = *flagPortal
		cfg.Sources.PortalDaum = *flagPortal
		cfg.Sources.NewsRSS = *flagNews
		cfg.Sources.PublicTrends = *flagPublicTrends
	}
	cfg.MinSources = *minSources
	cfg.VideoAPIKey = os.Getenv("VIDEO_API_KEY")

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	client := newHTTPClient()
	adapters := buildAdapters(cfg, client)
	if len(adapters) == 0 {
		fmt.Fprintln(os.Stderr, "configuration error: no sources enabled")
		return 1
	}

	agg := aggregator.New(adapters, aggregator.Config{
		MaxRetries:         cfg.MaxRetries,
		RetryDelay:         cfg.RetryDelay,
		AdapterTimeout:     cfg.AdapterTimeout,
		AggregationTimeout: 120 * time.Second,
		TopCap:             cfg.TopCap,
		MinSources:         cfg.MinSources,
	})

	if *daemon {
		if *cronExpr != "" {
			if err := runDaemonCron(logger, agg, *limit, *cronExpr, *runs, *output, *format, *pretty); err != nil {
				fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
				return 1
			}
			return 0
		}
		runDaemon(logger, agg, *limit, time.Duration(*interval)*time.Second, *runs, *output, *format, *pretty)
		return 0
	}

	return runOnce(logger, agg, *limit, *output, *format, *pretty)
}

func runOnce(logger *slog.Logger, agg *aggregator.Aggregator, limit int, output, format string, pretty bool) int {
	result := agg.Collect(context.Background(), limit)
	if result.Warning != nil {
		logger.Error("aggregation run failed", slog.Any("error", result.Warning))
		return 2
	}
	if err := writeOutput(result.Ranked, output, format, pretty); err != nil {
		logger.Error("failed to write output", slog.Any("error", err))
		return 2
	}
	return 0
}

func runDaemon(logger *slog.Logger, agg *aggregator.Aggregator, limit int, interval time.Duration, runs int, output, format string, pretty bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	count := 0
	for {
		result := agg.Collect(context.Background(), limit)
		if result.Warning != nil {
			logger.Error("aggregation run failed, continuing", slog.Any("error", result.Warning))
		} else if err := writeOutput(result.Ranked, output, format, pretty); err != nil {
			logger.Error("failed to write output, continuing", slog.Any("error", err))
		} else {
			logger.Info("run complete", slog.Int("keywords", len(result.Ranked)))
		}

		count++
		if runs > 0 && count >= runs {
			return
		}
		<-ticker.C
	}
}

// runDaemonCron is the cron-expression alternative to runDaemon's
// plain ticker loop, for operators who want runs pinned to wall-clock
// boundaries (e.g. "0 */4 * * *") rather than a fixed interval since
// process start.
func runDaemonCron(logger *slog.Logger, agg *aggregator.Aggregator, limit int, expr string, runs int, output, format string, pretty bool) error {
	count := 0
	done := make(chan struct{})

	c := cron.New()
	_, err := c.AddFunc(expr, func() {
		result := agg.Collect(context.Background(), limit)
		if result.Warning != nil {
			logger.Error("aggregation run failed, continuing", slog.Any("error", result.Warning))
		} else if err := writeOutput(result.Ranked, output, format, pretty); err != nil {
			logger.Error("failed to write output, continuing", slog.Any("error", err))
		} else {
			logger.Info("run complete", slog.Int("keywords", len(result.Ranked)))
		}

		count++
		if runs > 0 && count >= runs {
			close(done)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid --cron expression %q: %w", expr, err)
	}

	c.Start()
	defer c.Stop()

	if runs > 0 {
		<-done
		return nil
	}
	select {}
}

func writeOutput(ranked []trend.FusedKeyword, output, format string, pretty bool) error {
	w := os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		return encode(f, ranked, format, pretty)
	}
	return encode(w, ranked, format, pretty)
}

func encode(w *os.File, ranked []trend.FusedKeyword, format string, pretty bool) error {
	switch format {
	case "csv":
		return encodeCSV(w, ranked)
	case "xlsx":
		return encodeXLSX(w, ranked)
	default:
		enc := json.NewEncoder(w)
		if pretty {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(ranked)
	}
}

func encodeCSV(w *os.File, ranked []trend.FusedKeyword) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"rank", "keyword", "score", "sources"}); err != nil {
		return err
	}
	for _, fk := range ranked {
		if err := cw.Write([]string{
			strconv.Itoa(fk.Rank),
			fk.Keyword,
			strconv.Itoa(fk.Score),
			strconv.Itoa(len(fk.Sources)),
		}); err != nil {
			return err
		}
	}
	return nil
}

func initLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

func buildAdapters(cfg config.Config, client *http.Client) []adapter.Adapter {
	var adapters []adapter.Adapter

	if cfg.Sources.VideoPlatform {
		va := video.New(video.Config{APIKey: cfg.VideoAPIKey}, client)
		if va.Enabled() {
			adapters = append(adapters, va)
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
	if cfg.Sources.NewsRSS {
		adapters = append(adapters, news.NewRSSAdapter("news_rss", "https://news.google.com/rss?hl=ko&gl=KR&ceid=KR:ko",
			client, news.DefaultRSSScoreConfig()))
	}
	if cfg.Sources.PublicTrends {
		adapters = append(adapters, publictrends.NewRSSAdapter("https://trends.google.com/trends/trendingsearches/daily/rss?geo=KR",
			client, publictrends.DefaultRSSScoreConfig()))
	}
	return adapters
}
