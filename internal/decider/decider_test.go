package decider

import (
	"testing"

	"guardian-amm/internal/domain"
)

func TestDecideNatural(t *testing.T) {
	d := New(DefaultThresholds())
	intent := d.Decide(domain.Classification{Kind: domain.KindNatural}, OnChainState{})
	if intent.Action != domain.ActionNone {
		t.Fatalf("expected NONE, got %s", intent.Action)
	}
}

func TestDecideBelowMinimumConfidence(t *testing.T) {
	d := New(DefaultThresholds())
	intent := d.Decide(domain.Classification{Kind: domain.KindFlashLoanAttack, Confidence: 0.3}, OnChainState{})
	if intent.Action != domain.ActionNone {
		t.Fatalf("expected NONE below 0.50, got %s", intent.Action)
	}
}

func TestDecideFlashLoanAttackHighConfidencePausesAMM(t *testing.T) {
	d := New(DefaultThresholds())
	intent := d.Decide(domain.Classification{Kind: domain.KindFlashLoanAttack, Confidence: 0.92}, OnChainState{})
	if intent.Action != domain.ActionPauseAMM {
		t.Fatalf("expected PAUSE_AMM, got %s", intent.Action)
	}
}

func TestDecideConfidenceBoundaryIsInclusive(t *testing.T) {
	d := New(DefaultThresholds())
	intent := d.Decide(domain.Classification{Kind: domain.KindFlashLoanAttack, Confidence: 0.75}, OnChainState{})
	if intent.Action != domain.ActionPauseAMM {
		t.Fatalf("confidence == 0.75 must be inclusive (>=), got %s", intent.Action)
	}
}

func TestDecideFlashLoanAttackAlreadyPausedIsIdempotent(t *testing.T) {
	d := New(DefaultThresholds())
	intent := d.Decide(domain.Classification{Kind: domain.KindFlashLoanAttack, Confidence: 0.92}, OnChainState{AMMPaused: true})
	if intent.Action != domain.ActionNone {
		t.Fatalf("expected NONE (idempotent) when AMM already paused, got %s", intent.Action)
	}
}

func TestDecideFlashLoanAttackModerateConfidenceBlocksLiquidations(t *testing.T) {
	d := New(DefaultThresholds())
	intent := d.Decide(domain.Classification{Kind: domain.KindFlashLoanAttack, Confidence: 0.6}, OnChainState{})
	if intent.Action != domain.ActionBlockLiquidations {
		t.Fatalf("expected BLOCK_LIQUIDATIONS, got %s", intent.Action)
	}
}

func TestDecideOracleManipulationBlocksLiquidations(t *testing.T) {
	d := New(DefaultThresholds())
	intent := d.Decide(domain.Classification{Kind: domain.KindOracleManipulation, Confidence: 0.55}, OnChainState{})
	if intent.Action != domain.ActionBlockLiquidations {
		t.Fatalf("expected BLOCK_LIQUIDATIONS, got %s", intent.Action)
	}
}

func TestDecideOracleManipulationAlreadyBlockedIsIdempotent(t *testing.T) {
	d := New(DefaultThresholds())
	intent := d.Decide(domain.Classification{Kind: domain.KindOracleManipulation, Confidence: 0.9}, OnChainState{LiquidationsBlocked: true})
	if intent.Action != domain.ActionNone {
		t.Fatalf("expected NONE, liquidations already blocked, got %s", intent.Action)
	}
}

func TestDecideSandwichPausesAMM(t *testing.T) {
	d := New(DefaultThresholds())
	intent := d.Decide(domain.Classification{Kind: domain.KindSandwich, Confidence: 0.8}, OnChainState{})
	if intent.Action != domain.ActionPauseAMM {
		t.Fatalf("expected PAUSE_AMM, got %s", intent.Action)
	}
}

func TestDecideUnknownAnomalyRequiresVeryHighConfidence(t *testing.T) {
	d := New(DefaultThresholds())
	low := d.Decide(domain.Classification{Kind: domain.KindUnknownAnomaly, Confidence: 0.8}, OnChainState{})
	if low.Action != domain.ActionNone {
		t.Fatalf("expected NONE at 0.80 confidence, got %s", low.Action)
	}
	high := d.Decide(domain.Classification{Kind: domain.KindUnknownAnomaly, Confidence: 0.95}, OnChainState{})
	if high.Action != domain.ActionPauseVault {
		t.Fatalf("expected PAUSE_VAULT at 0.95 confidence, got %s", high.Action)
	}
}

func TestDecideIsPure(t *testing.T) {
	d := New(DefaultThresholds())
	c := domain.Classification{Kind: domain.KindSandwich, Confidence: 0.8}
	state := OnChainState{}
	first := d.Decide(c, state)
	second := d.Decide(c, state)
	if first.Action != second.Action || first.Rationale != second.Rationale {
		t.Fatal("Decide must be a pure function of its inputs")
	}
}
