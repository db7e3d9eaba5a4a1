// Package snapstore implements the Snapshot Store (spec component A): a
// concurrent latest-write-wins map from symbol to the most recent
// RawSnapshot. It mirrors the teacher's engine.MarketEngine price map:
// a sync.RWMutex-guarded map with a point-in-time AllXxx-style read.
package snapstore

import (
	"sync"

	"github.com/nrandal/microlab/internal/model"
)

// Store is a single-writer-per-key, many-reader latest-value map.
type Store struct {
	mu    sync.RWMutex
	latest map[string]model.RawSnapshot
}

// New creates an empty Store.
func New() *Store {
	return &Store{latest: make(map[string]model.RawSnapshot)}
}

// Put overwrites the latest snapshot for symbol. No failure mode.
func (s *Store) Put(snapshot model.RawSnapshot) {
	s.mu.Lock()
	s.latest[snapshot.Symbol] = snapshot
	s.mu.Unlock()
}

// Get returns the latest snapshot for symbol and whether one is present.
// Absent symbols read as the zero value, false.
func (s *Store) Get(symbol string) (model.RawSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.latest[symbol]
	return snap, ok
}

// IterLatest returns a point-in-time copy of every (symbol, snapshot) pair.
// Different entries may reflect different ingest moments; this is expected
// (spec.md §4.1).
func (s *Store) IterLatest() []model.RawSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RawSnapshot, 0, len(s.latest))
	for _, snap := range s.latest {
		out = append(out, snap)
	}
	return out
}
