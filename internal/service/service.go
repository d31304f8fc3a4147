// Package service orchestrates one monitoring cycle end to end:
// Observer -> Anomaly Filter -> Reasoner -> Decider -> Actor, with
// every stage's result mirrored to the Event Store/Bus (a cycle the
// filter does not flag records no ReasoningEvent) and, when
// configured, the optional storage and alerting side channels.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"guardian-amm/internal/alerting"
	"guardian-amm/internal/decider"
	"guardian-amm/internal/domain"
	"guardian-amm/internal/eventstore"
	"guardian-amm/internal/filter"
	"guardian-amm/internal/reasoner"
	"guardian-amm/internal/restore"
	"guardian-amm/internal/scheduler"
	"guardian-amm/internal/storage"
)

// Observer is the subset of internal/observer.Observer the Service
// depends on.
type Observer interface {
	Tick(ctx context.Context) (domain.Snapshot, bool, error)
}

// Reasoner is the subset of internal/reasoner.Reasoner the Service
// depends on.
type Reasoner interface {
	Classify(ctx context.Context, snap domain.Snapshot, signal domain.AnomalySignal, signalPresent bool) reasoner.Result
}

// degradeAfterFailures is the consecutive-observation-failure count
// spec.md §7 names before escalating to AgentLifecycleEvent{DEGRADED}
// and slowing the poll interval.
const degradeAfterFailures = 10

// degradeSlowdownFactor multiplies the configured poll interval while
// degraded.
const degradeSlowdownFactor = 10

// Service wires the full observe/classify/decide/act pipeline and owns
// the runtime health (DEGRADED/RECOVERED) state machine.
type Service struct {
	sched    *scheduler.Scheduler
	obs      Observer
	filt     filter.Filter
	reason   Reasoner
	dec      decider.Decider
	events   *eventstore.Store
	notifier alerting.Notifier

	actionStore storage.ActionStore
	obsStore    storage.ObservationStore
	locker      storage.AdvisoryLocker
	lockKey     int64

	logger       zerolog.Logger
	baseInterval time.Duration

	// actor and restoreSched are set after construction via SetActor /
	// SetRestoreScheduler, since both need a callback bound to this
	// Service — see internal/app's wiring for why this is two phases.
	mu           sync.Mutex
	actor        Actor
	restoreSched RestoreScheduler

	cycleIndex          int64
	consecutiveFailures int
	degraded            bool
	lastObsHour         time.Time
	lastSnapshot        domain.Snapshot
	haveSnapshot        bool
}

// Actor is the subset of internal/actor.Actor the Service depends on.
type Actor interface {
	Submit(ctx context.Context, intent domain.Intent, state decider.OnChainState)
}

// RestoreScheduler is the subset of internal/restore.Scheduler the
// Service depends on.
type RestoreScheduler interface {
	Arm(parent context.Context, triggeredBy int64, wethReserve, usdcReserve, oraclePrice decimal.Decimal)
}

// Options configures ambient Service behavior beyond its wired
// components.
type Options struct {
	ActionStore storage.ActionStore
	ObsStore    storage.ObservationStore
	Locker      storage.AdvisoryLocker
	LockKey     int64
	Notifier    alerting.Notifier
}

// New builds a Service. The Actor and Restore Scheduler are supplied
// afterward via SetActor/SetRestoreScheduler since they each need a
// callback bound to this Service instance.
func New(sched *scheduler.Scheduler, obs Observer, filt filter.Filter, reason Reasoner, dec decider.Decider, events *eventstore.Store, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		sched:       sched,
		obs:         obs,
		filt:        filt,
		reason:      reason,
		dec:         dec,
		events:      events,
		notifier:    opts.Notifier,
		actionStore: opts.ActionStore,
		obsStore:    opts.ObsStore,
		locker:      opts.Locker,
		lockKey:     opts.LockKey,
		logger:      logger.With().Str("component", "service").Logger(),
	}
}

// SetActor wires the Actor after construction.
func (s *Service) SetActor(a Actor) { s.actor = a }

// SetRestoreScheduler wires the Restore Scheduler after construction.
func (s *Service) SetRestoreScheduler(r RestoreScheduler) { s.restoreSched = r }

// Run begins the scheduled observation loop. It blocks until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	s.events.Append(domain.Event{Kind: domain.EventLifecycle, Lifecycle: &domain.LifecycleEvent{
		Severity: domain.LifecycleInfo, Message: "monitor started",
	}})
	return s.sched.Run(ctx, s.Tick)
}

// Tick runs exactly one observe/classify/decide/act cycle. Per-cycle
// errors never escape the loop — spec.md §7's containment policy — they
// are logged and folded into the DEGRADED/RECOVERED health state.
func (s *Service) Tick(ctx context.Context, at time.Time) error {
	unlock, canAct := s.acquireLock(ctx)
	if unlock != nil {
		defer unlock()
	}

	snap, ok, err := s.obs.Tick(ctx)
	if err != nil || !ok {
		s.recordObservationFailure(err)
		return nil
	}
	s.recordObservationSuccess()

	s.mu.Lock()
	s.cycleIndex++
	cycle := s.cycleIndex
	s.lastSnapshot = snap
	s.haveSnapshot = true
	s.mu.Unlock()

	block := snap.BlockNumber
	s.events.Append(domain.Event{Cycle: cycle, Block: block, Kind: domain.EventObservation, Observation: &domain.ObservationEvent{Snapshot: snap}})
	s.maybePersistObservation(ctx, snap)

	signal, present := s.filt.ShouldReason(snap)
	s.events.Append(domain.Event{Cycle: cycle, Block: block, Kind: domain.EventAnomaly, Anomaly: &domain.AnomalyEvent{Signal: signal, Flagged: present}})

	result := s.reason.Classify(ctx, snap, signal, present)
	if present {
		// a deterministic skip (no filter signal) records no ReasoningEvent
		s.events.Append(domain.Event{Cycle: cycle, Block: block, Kind: domain.EventReasoning, Reasoning: &domain.ReasoningEvent{
			Classification: result.Classification, ParseFailed: result.ParseFailed,
		}})
	}

	state := decider.OnChainState{
		AMMPaused:           snap.Flags.AMMPaused,
		VaultPaused:         snap.Flags.VaultPaused,
		LiquidationsBlocked: snap.Flags.LiquidationsBlocked,
	}
	intent := s.dec.Decide(result.Classification, state)
	s.events.Append(domain.Event{Cycle: cycle, Block: block, Kind: domain.EventDecision, Decision: &domain.DecisionEvent{Intent: intent}})

	if !canAct {
		s.logger.Debug().Time("at", at).Msg("advisory lock held elsewhere; observing only")
		return nil
	}
	if s.actor != nil {
		s.actor.Submit(ctx, intent, state)
	}
	return nil
}

// OnActionComplete is the Actor's completion callback: it mirrors the
// ActionRecord to the Event Store, the optional storage audit log, and
// alerting, then arms a restore task for any pause that actually took
// effect.
func (s *Service) OnActionComplete(rec domain.ActionRecord) {
	ctx := context.Background()
	now := time.Now().UTC()

	s.mu.Lock()
	block := s.lastSnapshot.BlockNumber
	s.mu.Unlock()

	ev := s.events.Append(domain.Event{Block: block, Kind: domain.EventAction, Action: &domain.ActionEvent{Record: rec}})

	if s.actionStore != nil {
		if _, err := s.actionStore.InsertActionEvent(ctx, rec, now); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist action event")
		}
	}

	if rec.Intent.Action != domain.ActionNone && s.notifier != nil {
		note := alerting.Notification{At: now, Action: rec.Intent.Action, Severity: alerting.SeverityFor(rec.Intent.Action), Record: rec}
		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Msg("failed to dispatch alert")
		}
	}

	if !rec.Success || rec.TxHash == "" {
		// failed, or an idempotent skip that sent no transaction
		return
	}
	if rec.Intent.Action != domain.ActionPauseAMM && rec.Intent.Action != domain.ActionPauseVault {
		return
	}
	if s.restoreSched == nil {
		return
	}

	s.mu.Lock()
	snap := s.lastSnapshot
	have := s.haveSnapshot
	s.mu.Unlock()
	if !have {
		return
	}
	s.restoreSched.Arm(ctx, ev.ID, snap.WETHReserve, snap.USDCReserve, snap.OraclePrice)
}

// OnRestoreComplete is the Restore Scheduler's completion callback.
func (s *Service) OnRestoreComplete(result restore.Result, triggeredBy int64) {
	s.mu.Lock()
	block := s.lastSnapshot.BlockNumber
	s.mu.Unlock()

	s.events.Append(domain.Event{Block: block, Kind: domain.EventRestore, Restore: &domain.RestoreEvent{
		Success:       result.Success,
		NewPrice:      result.NewPrice.String(),
		TxHash:        result.TxHash,
		FailureReason: result.FailureReason,
		TriggeredBy:   triggeredBy,
	}})
}

func (s *Service) recordObservationFailure(err error) {
	s.mu.Lock()
	s.consecutiveFailures++
	failures := s.consecutiveFailures
	alreadyDegraded := s.degraded
	if failures >= degradeAfterFailures && !alreadyDegraded {
		s.degraded = true
	}
	degraded := s.degraded
	s.mu.Unlock()

	s.logger.Error().Err(err).Int("consecutive_failures", failures).Msg("observation cycle failed")

	if degraded && !alreadyDegraded {
		s.sched.SetInterval(s.baseInterval * degradeSlowdownFactor)
		s.events.Append(domain.Event{Kind: domain.EventLifecycle, Lifecycle: &domain.LifecycleEvent{
			Severity: domain.LifecycleDegraded,
			Message:  fmt.Sprintf("%d consecutive observation failures; slowing poll interval", failures),
		}})
	}
}

func (s *Service) recordObservationSuccess() {
	s.mu.Lock()
	wasDegraded := s.degraded
	s.consecutiveFailures = 0
	s.degraded = false
	s.mu.Unlock()

	if wasDegraded {
		s.sched.SetInterval(s.baseInterval)
		s.events.Append(domain.Event{Kind: domain.EventLifecycle, Lifecycle: &domain.LifecycleEvent{
			Severity: domain.LifecycleRecovered,
			Message:  "observation cycle recovered; restoring configured poll interval",
		}})
	}
}

func (s *Service) maybePersistObservation(ctx context.Context, snap domain.Snapshot) {
	if s.obsStore == nil {
		return
	}
	hour := snap.Timestamp.UTC().Truncate(time.Hour)
	s.mu.Lock()
	due := hour.After(s.lastObsHour)
	if due {
		s.lastObsHour = hour
	}
	s.mu.Unlock()
	if !due {
		return
	}

	sample := storage.ObservationSample{
		Bucket:       hour,
		BlockNumber:  int64(snap.BlockNumber),
		OraclePrice:  snap.OraclePrice,
		AMMPrice:     snap.AMMPrice,
		DeviationPct: snap.DeviationPct(),
	}
	if err := s.obsStore.UpsertObservationSample(ctx, sample); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist observation sample")
	}
}

// acquireLock tries the configured advisory lock, if any. With no
// locker configured every instance is allowed to act (single-instance
// deployment, the default).
func (s *Service) acquireLock(ctx context.Context) (unlock func(), canAct bool) {
	if s.locker == nil || s.lockKey == 0 {
		return nil, true
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to acquire advisory lock; acting without exclusivity")
		return nil, true
	}
	return unlock, acquired
}

// SetBaseInterval records the configured (non-degraded) poll interval
// so DEGRADED/RECOVERED transitions know what to restore to.
func (s *Service) SetBaseInterval(d time.Duration) { s.baseInterval = d }
