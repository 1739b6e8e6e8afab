package usecase

import (
	"sync"
	"time"

	"github.com/vitos/swap_monitor/internal/domain"
)

// InstrumentStore is the bounded concurrent map of per-instrument aggregates.
// All mutation goes through its single mutex; callers never see the live
// records.
type InstrumentStore struct {
	mu       sync.Mutex
	data     map[string]*domain.Instrument
	capacity int

	timeNow func() time.Time // for testing
}

func NewInstrumentStore(capacity int) *InstrumentStore {
	return &InstrumentStore{
		data:     make(map[string]*domain.Instrument),
		capacity: capacity,
		timeNow:  time.Now,
	}
}

// Merge combines the partial update with the existing record (or a fresh one)
// and stamps the merge time. Inserting a new key at capacity evicts the single
// entry with the oldest merge time.
func (s *InstrumentStore) Merge(symbol string, u domain.InstrumentUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timeNow()

	rec, ok := s.data[symbol]
	if !ok {
		if s.capacity > 0 && len(s.data) >= s.capacity {
			s.evictOldestLocked()
		}
		rec = domain.NewInstrument(symbol)
		s.data[symbol] = rec
	}

	rec.Apply(u, now)
}

func (s *InstrumentStore) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for key, rec := range s.data {
		if first || rec.LastMerge.Before(oldest) {
			oldestKey = key
			oldest = rec.LastMerge
			first = false
		}
	}
	if !first {
		delete(s.data, oldestKey)
	}
}

// Get returns a copy of one record.
func (s *InstrumentStore) Get(symbol string) (domain.Instrument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[symbol]
	if !ok {
		return domain.Instrument{}, false
	}
	out := *rec
	out.VolumeFreshness = domain.ClassifyFreshness(out.VolumeUpdatedAt, s.timeNow())
	return out, true
}

// Snapshot returns copies of all records with freshness reclassified against
// the current clock. The internal map is never exposed.
func (s *InstrumentStore) Snapshot() []domain.Instrument {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timeNow()
	out := make([]domain.Instrument, 0, len(s.data))
	for _, rec := range s.data {
		cp := *rec
		cp.VolumeFreshness = domain.ClassifyFreshness(cp.VolumeUpdatedAt, now)
		out = append(out, cp)
	}
	return out
}

// SweepExpired removes entries not merged within maxAge and reports how many
// were dropped. Called periodically, never from the merge path.
func (s *InstrumentStore) SweepExpired(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timeNow()
	removed := 0
	for key, rec := range s.data {
		if now.Sub(rec.LastMerge) > maxAge {
			delete(s.data, key)
			removed++
		}
	}
	return removed
}

func (s *InstrumentStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]*domain.Instrument)
}

func (s *InstrumentStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
