package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every scheduled interval with the tick's
// nominal timestamp.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
}

// Scheduler drives periodic execution of the observation loop. Interval
// is mutable between runs via SetInterval so the caller can slow polling
// down under a degraded chain connection without restarting the loop.
type Scheduler struct {
	intervalNS   int64
	alignToStart bool
	startupDelay time.Duration
	logger       zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{
		intervalNS:   int64(opts.Interval),
		alignToStart: opts.AlignToStart,
		startupDelay: opts.StartupDelay,
		logger:       logger.With().Str("component", "scheduler").Logger(),
	}
}

// SetInterval changes the tick interval, effective from the next
// scheduled tick onward.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	atomic.StoreInt64(&s.intervalNS, int64(d))
}

func (s *Scheduler) Interval() time.Duration {
	return time.Duration(atomic.LoadInt64(&s.intervalNS))
}

// Run blocks, invoking the tick function at each interval until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.startupDelay > 0 {
		timer := time.NewTimer(s.startupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		at := s.tickTime(next)
		if err := tick(ctx, at); err != nil {
			s.logger.Error().Err(err).Time("at", at).Msg("tick execution failed")
		}

		next = next.Add(s.Interval())
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	interval := s.Interval()
	if !s.alignToStart {
		return now.Add(interval)
	}
	bucket := now.Truncate(interval)
	if !bucket.After(now) {
		bucket = bucket.Add(interval)
	}
	return bucket
}

func (s *Scheduler) tickTime(t time.Time) time.Time {
	if !s.alignToStart {
		return t
	}
	return t.Truncate(s.Interval())
}
