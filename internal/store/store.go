// Package store holds the latest known record per facility.
package store

import (
	"sort"
	"sync"

	"github.com/openelectricity/emissionfeed/internal/models"
)

// Store maps facility_id to its most recent canonical Record. It is safe
// for one background writer and any number of reader snapshots: mutation
// is mutex-guarded and reads are copy-on-read. Entries are never deleted
// during a run; Reset is only for an explicit manual reload.
type Store struct {
	mu      sync.RWMutex
	entries map[string]models.Record
}

// New creates an empty store.
func New() *Store {
	return &Store{
		entries: make(map[string]models.Record),
	}
}

// Upsert inserts or replaces the entry for rec's facility. An existing
// entry is replaced iff rec.EventTime >= existing.EventTime, so an equal
// timestamp still overwrites (last-write-wins). Records without a usable
// event time are ignored. Returns true when the store changed.
func (s *Store) Upsert(rec models.Record) bool {
	if rec.FacilityID == "" || !rec.HasEventTime() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[rec.FacilityID]
	if ok && rec.EventTime.Before(existing.EventTime) {
		return false
	}
	s.entries[rec.FacilityID] = rec
	return true
}

// Snapshot returns an independent copy of all current entries, sorted by
// facility_id so readers see a stable order.
func (s *Store) Snapshot() []models.Record {
	s.mu.RLock()
	out := make([]models.Record, 0, len(s.entries))
	for _, rec := range s.entries {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].FacilityID < out[j].FacilityID
	})
	return out
}

// Len returns the number of facilities tracked.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Totals returns the running power and emissions sums across all tracked
// facilities, absent values counted as 0.
func (s *Store) Totals() (powerMW, emissionsTonnes float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.entries {
		powerMW += rec.PowerOrZero()
		emissionsTonnes += rec.EmissionsOrZero()
	}
	return powerMW, emissionsTonnes
}

// Reset clears all entries. Used by the manual reload path only.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]models.Record)
}
