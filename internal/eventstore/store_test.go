package eventstore

import (
	"testing"
	"time"

	"guardian-amm/internal/domain"
)

func TestAppendAssignsStrictlyIncreasingIDs(t *testing.T) {
	s := New(10)
	var lastID int64
	for i := 0; i < 5; i++ {
		e := s.Append(domain.Event{Kind: domain.EventLifecycle})
		if e.ID <= lastID {
			t.Fatalf("event id %d is not strictly increasing after %d", e.ID, lastID)
		}
		lastID = e.ID
	}
}

func TestAppendEvictsOldestAtCapacity(t *testing.T) {
	s := New(3)
	for i := 0; i < 5; i++ {
		s.Append(domain.Event{Kind: domain.EventLifecycle})
	}
	if s.Len() != 3 {
		t.Fatalf("expected ring bounded to capacity 3, got %d", s.Len())
	}
	if s.TotalAppended() != 5 {
		t.Fatalf("expected lifetime total of 5 despite eviction, got %d", s.TotalAppended())
	}

	recent := s.ByIDRange(0, 0)
	if recent[0].ID != 3 {
		t.Fatalf("expected oldest retained id to be 3 (ids 1,2 evicted), got %d", recent[0].ID)
	}
}

func TestByIDRangeIsExclusiveOfFromID(t *testing.T) {
	s := New(10)
	for i := 0; i < 5; i++ {
		s.Append(domain.Event{Kind: domain.EventLifecycle})
	}
	got := s.ByIDRange(2, 0)
	if len(got) != 3 || got[0].ID != 3 {
		t.Fatalf("expected ids 3,4,5 strictly after 2, got %v", idsOf(got))
	}
}

func TestByKindFiltersAndOrdersNewestFirst(t *testing.T) {
	s := New(10)
	s.Append(domain.Event{Kind: domain.EventObservation})
	s.Append(domain.Event{Kind: domain.EventReasoning})
	s.Append(domain.Event{Kind: domain.EventReasoning})

	got := s.ByKind([]domain.EventKind{domain.EventReasoning}, 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 reasoning events, got %d", len(got))
	}
	if got[0].ID < got[1].ID {
		t.Fatal("expected newest-first ordering")
	}
}

func TestSubscribeReceivesLiveAppends(t *testing.T) {
	s := New(10)
	sub := s.Subscribe()
	defer sub.Unsubscribe()

	s.Append(domain.Event{Kind: domain.EventLifecycle})

	select {
	case e := <-sub.Events():
		if e.Kind != domain.EventLifecycle {
			t.Fatalf("unexpected kind %s", e.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event delivery")
	}
}

func TestSlowSubscriberIsDroppedNotBlocking(t *testing.T) {
	s := New(10)
	sub := s.Subscribe()

	for i := 0; i < subscriberBufferSize+10; i++ {
		s.Append(domain.Event{Kind: domain.EventLifecycle})
	}

	select {
	case <-sub.Closed():
	default:
		t.Fatal("expected subscriber to be dropped once its buffer overflowed")
	}
}

func idsOf(events []domain.Event) []int64 {
	out := make([]int64, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}
