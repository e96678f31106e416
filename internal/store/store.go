// Package store holds the latest known numeric value for every named data
// source: raw webhook feeds and computed monitors alike. It is the single
// owner of Source records; every other component holds only ids into it.
package store

import (
	"sort"
	"sync"
	"time"

	"pulseboard/internal/models"
)

// Store is safe for concurrent use. Propagation passes additionally
// serialize through the engine, so one pass never observes interleaved
// external writes. See Snapshot.
type Store struct {
	mu      sync.RWMutex
	sources map[string]*models.Source
}

// New creates an empty value store.
func New() *Store {
	return &Store{sources: make(map[string]*models.Source)}
}

// Register creates the Source record for id if it does not exist yet. The
// value stays absent until the first Set.
func (s *Store) Register(id string, kind models.SourceKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[id]; !ok {
		s.sources[id] = &models.Source{ID: id, Kind: kind}
	}
}

// Set records a new value for id, creating a raw Source record on first
// sight of an unknown id (webhook feeds appear implicitly on first ingest).
func (s *Store) Set(id string, value float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		src = &models.Source{ID: id, Kind: models.KindRaw}
		s.sources[id] = src
	}
	src.Value = value
	src.HasValue = true
	src.UpdatedAt = ts
	src.LastGoodAt = ts
}

// MarkStale bumps UpdatedAt without touching the value, recording that a
// recomputation was attempted and failed. LastGoodAt is left behind, which
// is what the dashboard's stale flag reads.
func (s *Store) MarkStale(id string, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src, ok := s.sources[id]; ok {
		src.UpdatedAt = ts
	}
}

// Get returns the current value of id, if one has been recorded.
func (s *Store) Get(id string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	if !ok || !src.HasValue {
		return 0, false
	}
	return src.Value, true
}

// Source returns a copy of the full Source record.
func (s *Store) Source(id string) (models.Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	if !ok {
		return models.Source{}, false
	}
	return *src, true
}

// Delete removes the Source record for id.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, id)
}

// List returns copies of all Source records sorted by id.
func (s *Store) List() []models.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, *src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot captures an immutable view of every current value. One propagation
// pass recomputes and evaluates against a single snapshot, so external
// updates arriving mid-pass never interleave.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := make(map[string]float64, len(s.sources))
	for id, src := range s.sources {
		if src.HasValue {
			values[id] = src.Value
		}
	}
	return Snapshot{values: values}
}

// Snapshot is a point-in-time view of the store. The engine writes freshly
// recomputed monitor values into its own snapshot as the pass walks the
// graph, then commits the successes back to the store.
type Snapshot struct {
	values map[string]float64
}

// Get implements expr.Values.
func (s Snapshot) Get(id string) (float64, bool) {
	v, ok := s.values[id]
	return v, ok
}

// Put records a recomputed value inside this pass's view.
func (s Snapshot) Put(id string, value float64) {
	s.values[id] = value
}
