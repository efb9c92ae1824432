// Package refresh implements the Refresh Controller: the single
// background actor that owns the latest Snapshot, drives periodic
// aggregation, coalesces manual refresh requests, and broadcasts
// compact update events to subscribers, per spec.md §4.6/§4.7.
package refresh

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"trendaggr/internal/aggregator"
	"trendaggr/internal/clusterer"
	"trendaggr/internal/observability/metrics"
	"trendaggr/internal/trend"
)

// State is one of the Refresh Controller's state machine states.
type State int

const (
	StateIdle State = iota
	StateRefreshing
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config tunes the Refresh Controller's timing.
type Config struct {
	RefreshInterval time.Duration
	StaleThreshold  time.Duration
	ShutdownGrace   time.Duration
	TopicKeywords   []string // reserved: which fused keywords feed the clusterer; nil means top-N by rank
	ClusterTopN     int
}

// DefaultConfig returns spec.md §6.1's documented defaults.
func DefaultConfig() Config {
	return Config{
		RefreshInterval: 300 * time.Second,
		StaleThreshold:  3600 * time.Second,
		ShutdownGrace:   10 * time.Second,
		ClusterTopN:     30,
	}
}

// Controller is the single owning actor. All its mutable state (the
// current snapshot, state machine, subscriber list) is only ever
// touched from the owner goroutine started by Run; readers go through
// atomic.Pointer or the guarded subscriber list.
type Controller struct {
	cfg        Config
	aggregator *aggregator.Aggregator
	clusterer  *clusterer.Clusterer
	store      *Persister

	snapshot atomic.Pointer[trend.Snapshot]
	state    atomic.Int32

	refreshNow chan chan *trend.Snapshot
	shutdown   chan chan struct{}

	broadcaster *Broadcaster

	startedAt time.Time
}

// New constructs a Controller. Run must be called to start the
// background actor; until then Snapshot() returns an empty snapshot.
func New(agg *aggregator.Aggregator, clust *clusterer.Clusterer, store *Persister, cfg Config) *Controller {
	c := &Controller{
		cfg:         cfg,
		aggregator:  agg,
		clusterer:   clust,
		store:       store,
		refreshNow:  make(chan chan *trend.Snapshot),
		shutdown:    make(chan chan struct{}),
		broadcaster: NewBroadcaster(),
	}
	c.snapshot.Store(trend.Empty())
	c.state.Store(int32(StateIdle))
	return c
}

// Snapshot returns the current, immutable snapshot. Safe for
// concurrent use by any number of readers.
func (c *Controller) Snapshot() *trend.Snapshot {
	return c.snapshot.Load()
}

// State returns the controller's current state machine state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Subscribe registers a new push-stream subscriber and returns a
// channel of update events plus an unsubscribe function.
func (c *Controller) Subscribe(buffer int) (<-chan trend.UpdateEvent, func()) {
	return c.broadcaster.Subscribe(buffer)
}

// CurrentUpdate derives a trends_update event from the current
// snapshot without triggering a refresh, used to answer a
// push-stream client's request_update event.
func (c *Controller) CurrentUpdate() trend.UpdateEvent {
	return c.Snapshot().ToUpdateEvent(10, 5)
}

// RefreshNow requests an immediate refresh, coalescing with any
// in-flight run. Returns the snapshot produced by whichever
// aggregation run services this request.
func (c *Controller) RefreshNow(ctx context.Context) (*trend.Snapshot, error) {
	reply := make(chan *trend.Snapshot, 1)
	select {
	case c.refreshNow <- reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown signals the owner loop to stop, persists the last
// snapshot, and waits up to cfg.ShutdownGrace for it to exit.
func (c *Controller) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case c.shutdown <- done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-time.After(c.cfg.ShutdownGrace):
		return context.DeadlineExceeded
	}
}

// Run is the owner loop: the only goroutine that ever writes
// c.snapshot or c.state. Bootstraps from disk, optionally performs a
// synchronous refresh if the bootstrapped snapshot is stale or
// absent, then services ticks, refresh-now requests, and shutdown.
//
// A running aggregation is itself performed in a helper goroutine so
// the owner loop keeps selecting on refreshNow while Refreshing: that
// is what lets concurrent refresh_now() calls coalesce onto the
// single in-flight run instead of queuing up one run each.
func (c *Controller) Run(ctx context.Context) {
	c.startedAt = time.Now()
	c.bootstrap(ctx)

	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	var pendingReplies []chan *trend.Snapshot
	refreshDone := make(chan *trend.Snapshot, 1)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	startRefresh := func() {
		c.state.Store(int32(StateRefreshing))
		go func() {
			refreshDone <- c.runRefresh(runCtx)
		}()
	}

	for {
		select {
		case <-ticker.C:
			if c.State() == StateIdle {
				startRefresh()
			}

		case reply := <-c.refreshNow:
			pendingReplies = append(pendingReplies, reply)
			if c.State() == StateIdle {
				startRefresh()
			}

		case snap := <-refreshDone:
			c.state.Store(int32(StateIdle))
			for _, reply := range pendingReplies {
				reply <- snap
			}
			pendingReplies = nil
			ticker.Reset(c.cfg.RefreshInterval)

		case done := <-c.shutdown:
			c.state.Store(int32(StateStopping))
			if c.State() == StateRefreshing {
				cancelRun()
				select {
				case <-refreshDone:
				case <-time.After(c.cfg.ShutdownGrace):
					slog.Warn("in-flight refresh did not exit within shutdown grace")
				}
			}
			if c.store != nil {
				if err := c.store.Save(c.Snapshot()); err != nil {
					slog.Error("failed to persist snapshot on shutdown", slog.Any("error", err))
				}
			}
			c.state.Store(int32(StateStopped))
			close(done)
			return
		}
	}
}

func (c *Controller) bootstrap(ctx context.Context) {
	if c.store != nil {
		if snap, err := c.store.Load(); err == nil && snap != nil {
			c.snapshot.Store(snap)
			if time.Since(snap.Timestamp) <= c.cfg.StaleThreshold {
				return
			}
			slog.Info("bootstrapped snapshot is stale, refreshing before serving reads",
				slog.Time("snapshot_timestamp", snap.Timestamp))
		}
	}
	c.state.Store(int32(StateRefreshing))
	c.runRefresh(ctx)
	c.state.Store(int32(StateIdle))
}

// runRefresh performs one aggregation pass and, on success, publishes
// a new snapshot and broadcasts it. On total adapter failure the prior
// snapshot is retained and returned unchanged, matching spec.md §4.6's
// Refreshing—[total_failure]→Idle transition.
func (c *Controller) runRefresh(ctx context.Context) *trend.Snapshot {
	result := c.aggregator.Collect(ctx, 0)

	if result.Warning != nil {
		slog.Warn("aggregation run produced no usable results", slog.Any("error", result.Warning))
		metrics.RecordRefresh(false)
		return c.Snapshot()
	}

	var topics []trend.Topic
	if c.clusterer != nil {
		topics = c.clusterer.Cluster(ctx, topKeywords(result.Ranked, c.cfg.ClusterTopN))
	}

	snap := &trend.Snapshot{
		HotKeywords: result.Ranked,
		Topics:      topics,
		RawIndex:    result.RawIndex,
		Timestamp:   time.Now(),
	}
	c.snapshot.Store(snap)
	c.broadcaster.Publish(snap.ToUpdateEvent(10, 5))
	metrics.RecordRefresh(true)
	return snap
}

func topKeywords(ranked []trend.FusedKeyword, n int) []string {
	if n <= 0 || n > len(ranked) {
		n = len(ranked)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].Keyword
	}
	return out
}

// Status mirrors spec.md §4.7's status() accessor.
type Status struct {
	IsCollecting      bool
	LastUpdate        *time.Time
	TotalKeywords     int
	TotalTopics       int
	APIKeyConfigured  bool
}

func (c *Controller) StatusFor(apiKeyConfigured bool) Status {
	snap := c.Snapshot()
	var lastUpdate *time.Time
	if !snap.Timestamp.IsZero() {
		t := snap.Timestamp
		lastUpdate = &t
	}
	return Status{
		IsCollecting:     c.State() == StateRefreshing,
		LastUpdate:       lastUpdate,
		TotalKeywords:    len(snap.HotKeywords),
		TotalTopics:      len(snap.Topics),
		APIKeyConfigured: apiKeyConfigured,
	}
}
