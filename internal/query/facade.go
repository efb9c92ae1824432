// Package query implements the Query Facade: a thin, read-only
// service over the Refresh Controller's current snapshot, providing
// the accessor operations spec.md §4.7 names (hot_keywords, topics,
// topic, keyword_details, status).
package query

import (
	"fmt"

	"trendaggr/internal/refresh"
	"trendaggr/internal/trend"
)

// Service is the Query Facade. It holds no state of its own beyond
// the controller reference and (optionally) a HistoryProvider for the
// keyword_details trend-history field.
type Service struct {
	controller *refresh.Controller
	history    HistoryProvider
}

func New(controller *refresh.Controller, history HistoryProvider) *Service {
	return &Service{controller: controller, history: history}
}

// HotKeywords returns the top n fused keywords by rank, or all of
// them if n <= 0.
func (s *Service) HotKeywords(n int) []trend.FusedKeyword {
	all := s.controller.Snapshot().HotKeywords
	if n <= 0 || n > len(all) {
		return all
	}
	return all[:n]
}

// Topics returns the top n topics, or all of them if n <= 0.
func (s *Service) Topics(n int) []trend.Topic {
	all := s.controller.Snapshot().Topics
	if n <= 0 || n > len(all) {
		return all
	}
	return all
}

// Topic looks up a single topic by ID.
func (s *Service) Topic(id string) (trend.Topic, bool) {
	for _, t := range s.controller.Snapshot().Topics {
		if t.ID == id {
			return t, true
		}
	}
	return trend.Topic{}, false
}

// KeywordDetail is the keyword_details response shape: the fused
// record, its contributing raw records, and (if a HistoryProvider is
// configured) a recent score history series.
type KeywordDetail struct {
	Fused   trend.FusedKeyword
	Raw     []trend.RawTrend
	History []HistoryPoint
}

// KeywordDetails looks up a keyword's fused record, contributing raw
// records, and history series. Returns an error if the keyword isn't
// present in the current snapshot.
func (s *Service) KeywordDetails(keyword string) (KeywordDetail, error) {
	snap := s.controller.Snapshot()
	k := trend.Normalize(keyword)

	var fused trend.FusedKeyword
	found := false
	for _, fk := range snap.HotKeywords {
		if trend.Normalize(fk.Keyword) == k {
			fused = fk
			found = true
			break
		}
	}
	if !found {
		return KeywordDetail{}, fmt.Errorf("query: keyword %q not found in current snapshot", keyword)
	}

	detail := KeywordDetail{
		Fused: fused,
		Raw:   snap.RawIndex[k],
	}
	if s.history != nil {
		detail.History = s.history.History(keyword)
	}
	return detail, nil
}

// Status reports the controller's operational status, per spec.md
// §4.7.
func (s *Service) Status(apiKeyConfigured bool) refresh.Status {
	return s.controller.StatusFor(apiKeyConfigured)
}
