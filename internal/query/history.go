package query

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

// HistoryPoint is one sample in a keyword's score history series.
type HistoryPoint struct {
	Timestamp time.Time
	Score     int
}

// HistoryProvider supplies a recent score history series for a
// keyword, used by KeywordDetails. No example repo or original_source
// implementation persists per-keyword time series (the Python
// original only ever held the latest data_cache snapshot), so this is
// a synthetic provider: a deterministic, keyword-seeded sine wave with
// noise, stable across calls for the same keyword.
type HistoryProvider interface {
	History(keyword string) []HistoryPoint
}

// MockHistoryProvider generates a synthetic history series. The
// keyword's FNV hash seeds a dedicated rand.Rand so repeated calls for
// the same keyword return the same series within a process, without
// any backing store.
type MockHistoryProvider struct {
	Points int           // number of samples to generate, default 24
	Step   time.Duration // spacing between samples, default 1h
}

func NewMockHistoryProvider() *MockHistoryProvider {
	return &MockHistoryProvider{Points: 24, Step: time.Hour}
}

func (m *MockHistoryProvider) History(keyword string) []HistoryPoint {
	points := m.Points
	if points <= 0 {
		points = 24
	}
	step := m.Step
	if step <= 0 {
		step = time.Hour
	}

	h := fnv.New64a()
	h.Write([]byte(keyword))
	seed := int64(h.Sum64())
	rng := rand.New(rand.NewSource(seed))

	baseline := 200 + rng.Intn(600)
	amplitude := 50 + rng.Intn(150)
	phase := rng.Float64() * 2 * math.Pi

	now := time.Now()
	out := make([]HistoryPoint, points)
	for i := 0; i < points; i++ {
		t := now.Add(-time.Duration(points-1-i) * step)
		wave := amplitude * int(math.Sin(phase+float64(i)*0.4))
		noise := rng.Intn(31) - 15
		score := baseline + wave + noise
		if score < 0 {
			score = 0
		}
		out[i] = HistoryPoint{Timestamp: t, Score: score}
	}
	return out
}
