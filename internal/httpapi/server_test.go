package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"guardian-amm/internal/attacksim"
	"guardian-amm/internal/domain"
	"guardian-amm/internal/eventstore"
	"guardian-amm/internal/restore"
)

func noopLogger() zerolog.Logger { return zerolog.Nop() }

type fakeAttacker struct {
	result  attacksim.Result
	gotFrac decimal.Decimal
}

func (f *fakeAttacker) RunWithFraction(ctx context.Context, fractionPct decimal.Decimal) attacksim.Result {
	f.gotFrac = fractionPct
	return f.result
}

type fakeRestorer struct {
	result  restore.Result
	gotWETH decimal.Decimal
}

func (f *fakeRestorer) FireNow(ctx context.Context, wethReserve, usdcReserve, oraclePrice decimal.Decimal) restore.Result {
	f.gotWETH = wethReserve
	return f.result
}

func sampleSnapshot() domain.Snapshot {
	return domain.Snapshot{
		BlockNumber: 500,
		Timestamp:   time.Now().UTC(),
		OraclePrice: decimal.NewFromInt(2000),
		AMMPrice:    decimal.NewFromInt(1900),
		WETHReserve: decimal.NewFromInt(1000),
		USDCReserve: decimal.NewFromInt(2000000),
	}
}

func TestHandleStatsReflectsLatestSnapshotAndCounts(t *testing.T) {
	store := eventstore.New(100)
	store.Append(domain.Event{Kind: domain.EventObservation, Observation: &domain.ObservationEvent{Snapshot: sampleSnapshot()}})
	store.Append(domain.Event{Kind: domain.EventReasoning, Reasoning: &domain.ReasoningEvent{
		Classification: domain.Classification{Kind: domain.KindFlashLoanAttack, Confidence: 0.9, Source: domain.SourceLLM},
	}})
	store.Append(domain.Event{Kind: domain.EventAction, Action: &domain.ActionEvent{Record: domain.ActionRecord{
		Intent: domain.Intent{Action: domain.ActionPauseAMM}, Success: true,
	}}})

	srv := New(store, nil, nil, noopLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["threats_detected"].(float64) != 1 {
		t.Fatalf("expected 1 threat detected, got %v", body["threats_detected"])
	}
	if body["actions_taken"].(float64) != 1 {
		t.Fatalf("expected 1 action taken, got %v", body["actions_taken"])
	}
	if body["amm_paused"] != false {
		t.Fatalf("expected amm_paused false from snapshot flags, got %v", body["amm_paused"])
	}
}

func TestHandleEventsReturnsRecentEventsNewestFirst(t *testing.T) {
	store := eventstore.New(100)
	store.Append(domain.Event{Kind: domain.EventObservation, Observation: &domain.ObservationEvent{Snapshot: sampleSnapshot()}})
	store.Append(domain.Event{Kind: domain.EventAnomaly, Anomaly: &domain.AnomalyEvent{}})

	srv := New(store, nil, nil, noopLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/events?limit=10", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var events []wireEvent
	if err := json.NewDecoder(rec.Body).Decode(&events); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != string(domain.EventAnomaly) {
		t.Fatalf("expected newest-first order, got %s first", events[0].Kind)
	}
}

func TestHandleThreatsFiltersOutNaturalClassifications(t *testing.T) {
	store := eventstore.New(100)
	store.Append(domain.Event{Kind: domain.EventReasoning, Reasoning: &domain.ReasoningEvent{
		Classification: domain.NaturalSkip(domain.SourceDeterministicSkip, "quiet"),
	}})
	store.Append(domain.Event{Kind: domain.EventReasoning, Reasoning: &domain.ReasoningEvent{
		Classification: domain.Classification{Kind: domain.KindSandwich, Confidence: 0.8, Source: domain.SourceLLM},
	}})

	srv := New(store, nil, nil, noopLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/events/threats", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var events []wireEvent
	json.NewDecoder(rec.Body).Decode(&events)
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 non-natural threat, got %d", len(events))
	}
}

func TestHandleSimulateAttackReturns503WhenNotConfigured(t *testing.T) {
	srv := New(eventstore.New(10), nil, nil, noopLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/admin/simulate-attack", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHandleSimulateAttackDelegatesToAttacker(t *testing.T) {
	attacker := &fakeAttacker{result: attacksim.Result{Success: true, Blocked: true, Message: "defended", TxHash: "0xabc"}}
	srv := New(eventstore.New(10), attacker, nil, noopLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/admin/simulate-attack", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var body map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&body)
	if body["blocked"] != true {
		t.Fatalf("expected blocked=true, got %v", body)
	}
}

func TestHandleSimulateAttackRejectsInvalidOverride(t *testing.T) {
	attacker := &fakeAttacker{}
	srv := New(eventstore.New(10), attacker, nil, noopLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/admin/simulate-attack", strings.NewReader(`{"swap_fraction_pct": 500}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an out-of-range override, got %d", rec.Code)
	}
}

func TestHandleResetAMMUsesLatestSnapshotReserves(t *testing.T) {
	store := eventstore.New(10)
	store.Append(domain.Event{Kind: domain.EventObservation, Observation: &domain.ObservationEvent{Snapshot: sampleSnapshot()}})
	restorer := &fakeRestorer{result: restore.Result{Success: true, NewPrice: decimal.NewFromInt(2000), TxHash: "0xdead"}}
	srv := New(store, nil, restorer, noopLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/reset-amm", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !restorer.gotWETH.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected the handler to pass the snapshot's WETH reserve, got %s", restorer.gotWETH)
	}
}

func TestHandleResetAMMReturns409WithNoSnapshotYet(t *testing.T) {
	restorer := &fakeRestorer{}
	srv := New(eventstore.New(10), nil, restorer, noopLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/admin/reset-amm", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleHealthReportsOK(t *testing.T) {
	srv := New(eventstore.New(10), nil, nil, noopLogger())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
