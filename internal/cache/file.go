package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"trendaggr/internal/observability/metrics"
	"trendaggr/internal/trenderr"
)

// File is the on-disk backend: one file per key inside dir, named by
// a stable 128-bit-class hash of the key string. Writes go through a
// temp file plus os.Rename so a reader never observes a partial
// write. Corrupt files are deleted on read.
type File struct {
	dir  string
	mu   sync.Mutex
	stop chan struct{}
}

// NewFile constructs a File store rooted at dir, creating it if
// necessary, and starts its background sweep goroutine.
func NewFile(dir string, cleanupInterval time.Duration) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &trenderr.CacheError{Op: "mkdir", Key: dir, Cause: err}
	}
	f := &File{dir: dir, stop: make(chan struct{})}
	if cleanupInterval > 0 {
		StartSweeper(f, cleanupInterval, f.stop)
	}
	return f, nil
}

// fileHash derives the stable file name for key: two seeded xxhash64
// passes concatenated into a 128-bit-class hex name.
func fileHash(key string) string {
	h1 := xxhash.Sum64String(key)
	h2 := xxhash.Sum64String(key + "\x00salt")
	return fmt.Sprintf("%016x%016x", h1, h2)
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, fileHash(key)+".cache")
}

func (f *File) Get(key string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		metrics.RecordCacheMiss("file")
		return nil, false
	}

	var entry Entry
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&entry); err != nil {
		slog.Warn("corrupt cache file, removing", slog.String("path", path), slog.Any("error", err))
		os.Remove(path)
		metrics.RecordCacheMiss("file")
		return nil, false
	}

	if entry.expired(time.Now()) {
		os.Remove(path)
		metrics.RecordCacheMiss("file")
		return nil, false
	}

	entry.LastAccessed = time.Now()
	f.writeEntry(path, entry)
	metrics.RecordCacheHit("file")
	return entry.Value, true
}

func (f *File) Set(key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	entry := Entry{
		Value:        value,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
		LastAccessed: now,
	}
	return f.writeEntry(f.path(key), entry)
}

func (f *File) writeEntry(path string, entry Entry) error {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(entry); err != nil {
		return &trenderr.CacheError{Op: "encode", Key: path, Cause: err}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return &trenderr.CacheError{Op: "write", Key: path, Cause: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &trenderr.CacheError{Op: "rename", Key: path, Cause: err}
	}
	return nil
}

func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return &trenderr.CacheError{Op: "delete", Key: key, Cause: err}
	}
	return nil
}

func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return &trenderr.CacheError{Op: "clear", Key: f.dir, Cause: err}
	}
	for _, e := range entries {
		os.Remove(filepath.Join(f.dir, e.Name()))
	}
	return nil
}

func (f *File) Cleanup() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, &trenderr.CacheError{Op: "cleanup", Key: f.dir, Cause: err}
	}

	now := time.Now()
	removed := 0
	for _, e := range entries {
		path := filepath.Join(f.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry Entry
		dec := gob.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&entry); err != nil {
			os.Remove(path)
			removed++
			continue
		}
		if entry.expired(now) {
			os.Remove(path)
			removed++
		}
	}
	return removed, nil
}

func (f *File) Close() {
	close(f.stop)
}
