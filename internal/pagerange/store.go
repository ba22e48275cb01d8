// Package pagerange learns, per entity, how large a search range must be to
// retrieve that entity's full result set in one request. Knowledge persists
// across runs so a high-volume technician is never re-excluded by a
// too-small default range.
package pagerange

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Store is the pagination-knowledge contract. The production implementation
// is JSON-file backed; tests may swap in an in-memory fake.
type Store interface {
	RangeFor(key string) (offset, limit int)
	Observe(key, name string, count int)
	Persist() error
}

// Size tiers for range limits. An observed count is rounded up to the next
// tier so the range keeps headroom over the last observation.
var tiers = []int{100, 200, 500, 1000, 2000, 3000, 5000, 7500, 10000, 15000, 20000}

const (
	defaultLimit  = 200
	generousLimit = 5000
	ceilingLimit  = 20000
)

// Stat is one persisted entity record.
type Stat struct {
	Name              string    `json:"name"`
	LastObservedCount int       `json:"lastObservedCount"`
	OptimalRangeLimit int       `json:"optimalRangeLimit"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

// FileStore is the JSON-file-backed Store. A missing file is not an error;
// a failing disk degrades the store to memory-only operation.
type FileStore struct {
	mu         sync.RWMutex
	path       string
	entries    map[string]*Stat
	highVolume map[string]bool
	dirty      bool
}

// NewFileStore loads existing knowledge from path. Entities listed in
// highVolume start with a generous limit instead of the conservative default.
func NewFileStore(path string, highVolume []string) *FileStore {
	s := &FileStore{
		path:       path,
		entries:    make(map[string]*Stat),
		highVolume: make(map[string]bool, len(highVolume)),
	}
	for _, key := range highVolume {
		s.highVolume[key] = true
	}
	s.load()
	return s
}

func (s *FileStore) load() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.path).Msg("Failed to read pagination store, starting empty")
		}
		return
	}
	var entries map[string]*Stat
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Pagination store is corrupt, starting empty")
		return
	}
	s.entries = entries
	log.Info().Int("entities", len(entries)).Str("path", s.path).Msg("Loaded pagination knowledge")
}

// RangeFor returns the range to use for the entity's next query. Known
// entities get their learned limit; unknown ones get a conservative default
// unless flagged as high-volume.
func (s *FileStore) RangeFor(key string) (offset, limit int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[key]; ok && e.OptimalRangeLimit > 0 {
		return 0, e.OptimalRangeLimit
	}
	if s.highVolume[key] {
		return 0, generousLimit
	}
	return 0, defaultLimit
}

// Observe records a fresh count for the entity. The stored limit only ever
// grows within a session; Sweep handles shrinking stale entries.
func (s *FileStore) Observe(key, name string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &Stat{}
		s.entries[key] = e
	}
	if name != "" {
		e.Name = name
	}
	e.LastObservedCount = count
	e.LastUpdated = time.Now()

	if limit := limitFor(count); limit > e.OptimalRangeLimit {
		e.OptimalRangeLimit = limit
		log.Debug().Str("entity", key).Int("count", count).Int("limit", limit).Msg("Grew pagination range")
	}
	s.dirty = true
}

// Snapshot returns a copy of the current knowledge for observability.
func (s *FileStore) Snapshot() map[string]Stat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Stat, len(s.entries))
	for k, v := range s.entries {
		out[k] = *v
	}
	return out
}

// Persist writes the store to disk atomically. Failures are reported but the
// store keeps serving from memory.
func (s *FileStore) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" || !s.dirty {
		return nil
	}

	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Failed to persist pagination store, continuing in memory")
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		log.Warn().Err(err).Str("path", s.path).Msg("Failed to persist pagination store, continuing in memory")
		return err
	}

	s.dirty = false
	log.Debug().Int("entities", len(s.entries)).Str("path", s.path).Msg("Persisted pagination knowledge")
	return nil
}

// Sweep shrinks entries not updated within maxAge back to the tier implied
// by their last observed count. This is the only place limits shrink.
func (s *FileStore) Sweep(maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for key, e := range s.entries {
		if e.LastUpdated.After(cutoff) {
			continue
		}
		if limit := limitFor(e.LastObservedCount); limit < e.OptimalRangeLimit {
			e.OptimalRangeLimit = limit
			s.dirty = true
			log.Debug().Str("entity", key).Int("limit", limit).Msg("Shrunk stale pagination range")
		}
	}
}

// limitFor rounds a count up to the next tier, clamped to the ceiling. The
// result is always strictly greater than the count to keep headroom.
func limitFor(count int) int {
	for _, tier := range tiers {
		if tier > count {
			return tier
		}
	}
	return ceilingLimit
}
