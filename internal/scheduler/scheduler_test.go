package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunInvokesTickRepeatedly(t *testing.T) {
	s := New(Options{Interval: 20 * time.Millisecond}, zerolog.Nop())

	var count int64
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
	defer cancel()

	_ = s.Run(ctx, func(ctx context.Context, at time.Time) error {
		atomic.AddInt64(&count, 1)
		return nil
	})

	if atomic.LoadInt64(&count) < 2 {
		t.Fatalf("expected at least 2 ticks in 90ms at a 20ms interval, got %d", count)
	}
}

func TestSetIntervalTakesEffect(t *testing.T) {
	s := New(Options{Interval: time.Second}, zerolog.Nop())
	s.SetInterval(10 * time.Millisecond)
	if s.Interval() != 10*time.Millisecond {
		t.Fatalf("expected interval to update to 10ms, got %v", s.Interval())
	}
}

func TestSetIntervalIgnoresNonPositive(t *testing.T) {
	s := New(Options{Interval: time.Second}, zerolog.Nop())
	s.SetInterval(0)
	if s.Interval() != time.Second {
		t.Fatalf("expected interval to stay at 1s, got %v", s.Interval())
	}
}
