// Package eventstore implements the append-only, capacity-bounded
// event ring that fronts the HTTP/WebSocket dashboard API, per
// spec.md §3/§4.8.
package eventstore

import (
	"sort"
	"sync"
	"time"

	"guardian-amm/internal/domain"
)

// DefaultCapacity is the documented default retention (spec.md §6's
// event_store_capacity).
const DefaultCapacity = 10000

// Store is a mutex-protected, id-ordered ring buffer of Events. It is
// the single owner of its buffer; all reads/writes go through its own
// lock, matching spec.md §9's single-owner-synchronization design note.
type Store struct {
	mu       sync.RWMutex
	capacity int
	nextID   int64
	events   []domain.Event // ordered oldest-first; len <= capacity

	subscribers map[int]*subscriber
	nextSubID   int
}

// New builds a Store with the given capacity (DefaultCapacity if <= 0).
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity:    capacity,
		subscribers: make(map[int]*subscriber),
	}
}

// Append assigns the next strictly-increasing id, stores the event,
// evicting the oldest if at capacity, and fans it out to subscribers.
// Timestamps are always recorded in UTC per spec.md §9.
func (s *Store) Append(e domain.Event) domain.Event {
	s.mu.Lock()
	s.nextID++
	e.ID = s.nextID
	e.Timestamp = e.Timestamp.UTC()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	s.events = append(s.events, e)
	if len(s.events) > s.capacity {
		s.events = s.events[len(s.events)-s.capacity:]
	}

	subs := make([]*subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(e)
	}
	return e
}

// ByIDRange returns events with id > fromID, oldest-first, up to limit.
// events is id-ordered, so the first qualifying index is found by
// binary search (O(log n)) rather than a linear scan.
func (s *Store) ByIDRange(fromID int64, limit int) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].ID > fromID
	})

	end := len(s.events)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	if start >= end {
		return nil
	}

	out := make([]domain.Event, end-start)
	copy(out, s.events[start:end])
	return out
}

// ByTimeRange returns events with Timestamp in [from, to], oldest-first.
func (s *Store) ByTimeRange(from, to time.Time, limit int) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Event
	for _, e := range s.events {
		if (e.Timestamp.Equal(from) || e.Timestamp.After(from)) && (e.Timestamp.Equal(to) || e.Timestamp.Before(to)) {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// ByKind returns the most recent `limit` events whose Kind is in kinds
// (or all kinds if empty), newest-first — the natural order for a
// dashboard's "recent threats"/"recent actions" panels.
func (s *Store) ByKind(kinds []domain.EventKind, limit int) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[domain.EventKind]struct{}, len(kinds))
	for _, k := range kinds {
		want[k] = struct{}{}
	}

	var out []domain.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if len(want) > 0 {
			if _, ok := want[e.Kind]; !ok {
				continue
			}
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Recent returns the most recent `limit` events, newest-first.
func (s *Store) Recent(limit int) []domain.Event {
	return s.ByKind(nil, limit)
}

// Len reports the number of events currently retained (bounded by
// capacity, not the lifetime total-events counter).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// TotalAppended reports the lifetime count of appended events,
// monotone even across evictions.
func (s *Store) TotalAppended() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID
}
