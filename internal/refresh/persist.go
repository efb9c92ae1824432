package refresh

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"trendaggr/internal/observability/metrics"
	"trendaggr/internal/trend"
)

// snapshotFile is the on-disk shape of the single JSON snapshot-cache
// file per spec.md §6.4. Field presence alone distinguishes versions:
// a file written before topics existed simply omits that key, and this
// type tolerates that via the omitempty tags below.
type snapshotFile struct {
	HotKeywords []trend.FusedKeyword `json:"hot_keywords"`
	Topics      []trend.Topic        `json:"topics,omitempty"`
	LastUpdate  time.Time            `json:"last_update"`
}

// Persister saves and loads the Refresh Controller's snapshot to a
// single file, using the same write-to-temp-then-rename atomicity the
// file cache backend uses so a crash mid-write never leaves a
// truncated or half-written file behind.
type Persister struct {
	path string
}

func NewPersister(path string) *Persister {
	return &Persister{path: path}
}

// Save writes snap to disk atomically. A nil or empty snapshot is
// still written, so a freshly started controller that shut down
// before its first successful refresh persists that fact rather than
// leaving a stale file from a previous run.
func (p *Persister) Save(snap *trend.Snapshot) error {
	if snap == nil {
		snap = trend.Empty()
	}

	out := snapshotFile{
		HotKeywords: snap.HotKeywords,
		Topics:      snap.Topics,
		LastUpdate:  snap.Timestamp,
	}
	if out.HotKeywords == nil {
		out.HotKeywords = []trend.FusedKeyword{}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		metrics.RecordSnapshotPersistError()
		return fmt.Errorf("persist: marshal snapshot: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		metrics.RecordSnapshotPersistError()
		return fmt.Errorf("persist: create directory: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		metrics.RecordSnapshotPersistError()
		return fmt.Errorf("persist: write temp file: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		metrics.RecordSnapshotPersistError()
		return fmt.Errorf("persist: rename temp file: %w", err)
	}
	return nil
}

// Load reads the snapshot file back. A missing file is not an error:
// callers treat it the same as an empty, never-yet-refreshed snapshot.
func (p *Persister) Load() (*trend.Snapshot, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return trend.Empty(), nil
		}
		return nil, fmt.Errorf("persist: read snapshot file: %w", err)
	}

	var in snapshotFile
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("persist: unmarshal snapshot file: %w", err)
	}

	rawIndex := make(map[trend.NormalizedKey][]trend.RawTrend, len(in.HotKeywords))
	return &trend.Snapshot{
		HotKeywords: in.HotKeywords,
		Topics:      in.Topics,
		RawIndex:    rawIndex,
		Timestamp:   in.LastUpdate,
	}, nil
}
