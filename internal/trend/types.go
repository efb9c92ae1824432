// Package trend defines the core data model shared by every adapter,
// the aggregator, the clusterer, and the refresh controller: raw
// observations, the fused keyword universe, topics, and the immutable
// snapshot published to readers.
package trend

import (
	"strings"
	"time"
)

// Source identifies the external origin of a RawTrend.
type Source string

const (
	SourceVideo           Source = "video"
	SourcePortalNaver     Source = "portal_n"
	SourcePortalDaum      Source = "portal_d"
	SourcePortalZum       Source = "portal_z"
	SourcePortalNate      Source = "portal_t"
	SourceNewsRSS         Source = "news_rss"
	SourceNewsPortalNaver Source = "news_portal_n"
	SourceNewsPortalDaum  Source = "news_portal_d"
	SourcePublicTrends    Source = "public_trends"
)

// NormalizedKey is the case-folded, whitespace-collapsed form of a
// keyword used for equality and indexing. It is never used for
// display.
type NormalizedKey string

// Normalize collapses internal whitespace runs to a single space,
// trims the ends, and lower-cases the result.
func Normalize(keyword string) NormalizedKey {
	fields := strings.Fields(keyword)
	return NormalizedKey(strings.ToLower(strings.Join(fields, " ")))
}

// Metadata is the open mapping carried by a RawTrend. Adapters
// populate it through the With* builders below rather than raw map
// literals so that decoded upstream shapes never leak past the
// adapter boundary unnormalized.
type Metadata map[string]any

func (m Metadata) with(key string, value any) Metadata {
	if m == nil {
		m = Metadata{}
	}
	m[key] = value
	return m
}

func (m Metadata) WithViewCount(n int64) Metadata       { return m.with("view_count", n) }
func (m Metadata) WithChannel(name string) Metadata     { return m.with("channel", name) }
func (m Metadata) WithDescription(d string) Metadata    { return m.with("description", d) }
func (m Metadata) WithThumbnail(url string) Metadata    { return m.with("thumbnail", url) }
func (m Metadata) WithPublishedAt(t time.Time) Metadata { return m.with("published_at", t) }
func (m Metadata) WithPress(press string) Metadata      { return m.with("press", press) }
func (m Metadata) WithCategory(category string) Metadata {
	return m.with("category", category)
}
func (m Metadata) WithDelta(delta int) Metadata { return m.with("delta", delta) }

// RawTrend is one raw observation from one source, prior to
// normalization or fusion.
type RawTrend struct {
	Keyword     string
	Source      Source
	Score       *int // nil means "no explicit score"; see Aggregator fusion rule
	URL         string
	Rank        *int // nil means "no rank" (rank=0 from an adapter is also treated as no-rank, never as "best rank")
	Metadata    Metadata
	CollectedAt time.Time
}

// FusedKeyword is one entry in the aggregator's ranked output.
type FusedKeyword struct {
	Keyword       string
	Sources       map[Source]struct{}
	Score         int
	Rank          int
	PerSourceRank map[Source]int
	URLs          []string
	Timestamp     time.Time
}

// SourceList returns the keyword's observed sources as a stable,
// sorted slice, suitable for JSON encoding or display.
func (fk FusedKeyword) SourceList() []Source {
	out := make([]Source, 0, len(fk.Sources))
	for s := range fk.Sources {
		out = append(out, s)
	}
	return out
}

// Topic is one output cluster of the Topic Clusterer.
type Topic struct {
	ID        string
	TopicName string
	Keywords  []string
	Hooks     []string
	CreatedAt time.Time
}

// Snapshot is the atomic, immutable unit the system publishes. Once
// constructed it is never mutated; a refresh produces a brand new
// Snapshot and replaces the prior one by whole reference.
type Snapshot struct {
	HotKeywords []FusedKeyword
	Topics      []Topic
	RawIndex    map[NormalizedKey][]RawTrend
	Timestamp   time.Time
}

// Empty returns a zero-value Snapshot with non-nil collections, used
// for the pre-bootstrap and all-adapters-failed cases so callers never
// have to nil-check.
func Empty() *Snapshot {
	return &Snapshot{
		HotKeywords: []FusedKeyword{},
		Topics:      []Topic{},
		RawIndex:    map[NormalizedKey][]RawTrend{},
		Timestamp:   time.Time{},
	}
}

// UpdateEvent is the compact payload broadcast to push-stream
// subscribers on each successful publish.
type UpdateEvent struct {
	HotKeywords []FusedKeyword `json:"hot_keywords"`
	Topics      []Topic        `json:"topics"`
	Timestamp   time.Time      `json:"timestamp"`
}

// ToUpdateEvent truncates the snapshot to the first keywordN keywords
// and topicN topics for push-stream delivery.
func (s *Snapshot) ToUpdateEvent(keywordN, topicN int) UpdateEvent {
	kws := s.HotKeywords
	if len(kws) > keywordN {
		kws = kws[:keywordN]
	}
	tops := s.Topics
	if len(tops) > topicN {
		tops = tops[:topicN]
	}
	return UpdateEvent{HotKeywords: kws, Topics: tops, Timestamp: s.Timestamp}
}
