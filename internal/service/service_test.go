package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"guardian-amm/internal/decider"
	"guardian-amm/internal/domain"
	"guardian-amm/internal/eventstore"
	"guardian-amm/internal/filter"
	"guardian-amm/internal/reasoner"
	"guardian-amm/internal/restore"
	"guardian-amm/internal/scheduler"
)

func noopLogger() zerolog.Logger { return zerolog.Nop() }

type fakeObserver struct {
	snap domain.Snapshot
	ok   bool
	err  error
}

func (f *fakeObserver) Tick(ctx context.Context) (domain.Snapshot, bool, error) {
	return f.snap, f.ok, f.err
}

type fakeReasoner struct {
	result reasoner.Result
}

func (f *fakeReasoner) Classify(ctx context.Context, snap domain.Snapshot, signal domain.AnomalySignal, signalPresent bool) reasoner.Result {
	return f.result
}

type fakeActor struct {
	submits []domain.Intent
}

func (f *fakeActor) Submit(ctx context.Context, intent domain.Intent, state decider.OnChainState) {
	f.submits = append(f.submits, intent)
}

type fakeRestore struct {
	armed bool
}

func (f *fakeRestore) Arm(parent context.Context, triggeredBy int64, wethReserve, usdcReserve, oraclePrice decimal.Decimal) {
	f.armed = true
}

func validSnapshot() domain.Snapshot {
	return domain.Snapshot{
		CycleIndex:  1,
		BlockNumber: 100,
		OraclePrice: decimal.NewFromInt(2000),
		AMMPrice:    decimal.NewFromInt(2000),
		WETHReserve: decimal.NewFromInt(1000),
		USDCReserve: decimal.NewFromInt(2000000),
		Valid:       true,
	}
}

func newTestService(obs Observer, reason Reasoner, act Actor) *Service {
	sched := scheduler.New(scheduler.Options{Interval: time.Second}, noopLogger())
	svc := New(sched, obs, filter.New(filter.Thresholds{}), reason, decider.New(decider.Thresholds{}), eventstore.New(10), Options{}, noopLogger())
	svc.SetBaseInterval(time.Second)
	svc.SetActor(act)
	return svc
}

func TestTickQuietCycleProducesNoActionAndAppendsEvents(t *testing.T) {
	obs := &fakeObserver{snap: validSnapshot(), ok: true}
	reason := &fakeReasoner{result: reasoner.Result{Classification: domain.NaturalSkip(domain.SourceDeterministicSkip, "quiet")}}
	act := &fakeActor{}
	svc := newTestService(obs, reason, act)

	if err := svc.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(act.submits) != 1 || act.submits[0].Action != domain.ActionNone {
		t.Fatalf("expected a single NONE submission, got %v", act.submits)
	}
	if svc.events.Len() != 3 {
		t.Fatalf("expected observation+anomaly+decision events, got %d", svc.events.Len())
	}
}

func TestTickAnomalyDrivesPauseSubmission(t *testing.T) {
	obs := &fakeObserver{snap: validSnapshot(), ok: true}
	reason := &fakeReasoner{result: reasoner.Result{Classification: domain.Classification{
		Kind: domain.KindFlashLoanAttack, Confidence: 0.95, Source: domain.SourceLLM,
	}}}
	act := &fakeActor{}
	svc := newTestService(obs, reason, act)

	if err := svc.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(act.submits) != 1 || act.submits[0].Action != domain.ActionPauseAMM {
		t.Fatalf("expected a PAUSE_AMM submission, got %v", act.submits)
	}
}

func TestObservationFailureDoesNotPropagateAndDegradesAfterThreshold(t *testing.T) {
	obs := &fakeObserver{err: errBoom{}}
	svc := newTestService(obs, &fakeReasoner{}, &fakeActor{})

	for i := 0; i < degradeAfterFailures; i++ {
		if err := svc.Tick(context.Background(), time.Now()); err != nil {
			t.Fatalf("tick must never propagate observation errors, got %v", err)
		}
	}
	if !svc.degraded {
		t.Fatal("expected service to be marked degraded after threshold consecutive failures")
	}
	if svc.sched.Interval() != svc.baseInterval*degradeSlowdownFactor {
		t.Fatalf("expected poll interval slowed by %dx, got %v", degradeSlowdownFactor, svc.sched.Interval())
	}
}

func TestObservationRecoveryRestoresInterval(t *testing.T) {
	obs := &fakeObserver{err: errBoom{}}
	svc := newTestService(obs, &fakeReasoner{}, &fakeActor{})
	for i := 0; i < degradeAfterFailures; i++ {
		svc.Tick(context.Background(), time.Now())
	}

	obs.err = nil
	obs.ok = true
	obs.snap = validSnapshot()
	if err := svc.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.degraded {
		t.Fatal("expected recovery to clear degraded state")
	}
	if svc.sched.Interval() != svc.baseInterval {
		t.Fatalf("expected poll interval restored to base, got %v", svc.sched.Interval())
	}
}

func TestOnActionCompleteArmsRestoreForSuccessfulPause(t *testing.T) {
	svc := newTestService(&fakeObserver{}, &fakeReasoner{}, &fakeActor{})
	fr := &fakeRestore{}
	svc.SetRestoreScheduler(fr)

	svc.mu.Lock()
	svc.lastSnapshot = validSnapshot()
	svc.haveSnapshot = true
	svc.mu.Unlock()

	svc.OnActionComplete(domain.ActionRecord{
		Intent:  domain.Intent{Action: domain.ActionPauseAMM},
		Success: true,
		TxHash:  "0xabc",
	})
	if !fr.armed {
		t.Fatal("expected a successful PAUSE_AMM to arm the restore scheduler")
	}
}

func TestOnActionCompleteDoesNotArmRestoreOnFailure(t *testing.T) {
	svc := newTestService(&fakeObserver{}, &fakeReasoner{}, &fakeActor{})
	fr := &fakeRestore{}
	svc.SetRestoreScheduler(fr)

	svc.OnActionComplete(domain.ActionRecord{
		Intent:        domain.Intent{Action: domain.ActionPauseAMM},
		Success:       false,
		FailureReason: "reverted",
	})
	if fr.armed {
		t.Fatal("expected a failed pause to never arm the restore scheduler")
	}
}

func TestOnRestoreCompleteAppendsRestoreEvent(t *testing.T) {
	svc := newTestService(&fakeObserver{}, &fakeReasoner{}, &fakeActor{})
	svc.OnRestoreComplete(restore.Result{Success: true, NewPrice: decimal.NewFromInt(2000), TxHash: "0xdead"}, 7)

	events := svc.events.ByKind([]domain.EventKind{domain.EventRestore}, 0)
	if len(events) != 1 || events[0].Restore.TriggeredBy != 7 {
		t.Fatalf("expected one restore event triggered by action 7, got %v", events)
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
