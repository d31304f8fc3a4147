package filter

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"guardian-amm/internal/domain"
)

func baseSnapshot() domain.Snapshot {
	return domain.Snapshot{
		CycleIndex:  1,
		Timestamp:   time.Unix(0, 0).UTC(),
		BlockNumber: 100,
		OraclePrice: decimal.NewFromInt(2000),
		AMMPrice:    decimal.NewFromInt(2000),
		WETHReserve: decimal.NewFromInt(1000),
		USDCReserve: decimal.NewFromInt(2000000),
		Valid:       true,
	}
}

func TestShouldReasonQuietMarket(t *testing.T) {
	f := New(DefaultThresholds())
	snap := baseSnapshot()
	snap.AMMPrice = decimal.NewFromInt(2002)

	if _, ok := f.ShouldReason(snap); ok {
		t.Fatal("0.10% deviation should not trigger reasoning")
	}
}

func TestShouldReasonDeviationBoundaryIsNotAnomaly(t *testing.T) {
	f := New(DefaultThresholds())
	snap := baseSnapshot()
	snap.AMMPrice = decimal.NewFromInt(2100) // exactly 5.00% deviation

	if sig, ok := f.ShouldReason(snap); ok {
		t.Fatalf("deviation == threshold must be strict >, got signal %s", sig)
	}
}

func TestShouldReasonLargeDeviation(t *testing.T) {
	f := New(DefaultThresholds())
	snap := baseSnapshot()
	snap.AMMPrice = decimal.NewFromInt(1200) // 40% deviation

	sig, ok := f.ShouldReason(snap)
	if !ok || sig != domain.SignalLargeDeviation {
		t.Fatalf("expected LARGE_DEVIATION, got %v ok=%v", sig, ok)
	}
}

func TestShouldReasonMultipleOracleUpdates(t *testing.T) {
	f := New(DefaultThresholds())
	snap := baseSnapshot()
	snap.OracleUpdateCount = 2

	sig, ok := f.ShouldReason(snap)
	if !ok || sig != domain.SignalMultipleOracleUpdates {
		t.Fatalf("expected MULTIPLE_ORACLE_UPDATES, got %v ok=%v", sig, ok)
	}
}

func TestShouldReasonSwapCountBoundaryIsNotAnomaly(t *testing.T) {
	f := New(DefaultThresholds())
	snap := baseSnapshot()
	snap.SwapCount = 3

	if _, ok := f.ShouldReason(snap); ok {
		t.Fatal("swap_count == 3 must be strict >, not an anomaly")
	}
}

func TestShouldReasonAttackSwapPatternBySwapCount(t *testing.T) {
	f := New(DefaultThresholds())
	snap := baseSnapshot()
	snap.SwapCount = 4

	sig, ok := f.ShouldReason(snap)
	if !ok || sig != domain.SignalAttackSwapPattern {
		t.Fatalf("expected ATTACK_SWAP_PATTERN, got %v ok=%v", sig, ok)
	}
}

func TestShouldReasonAttackSwapPatternByLargeSwap(t *testing.T) {
	f := New(DefaultThresholds())
	snap := baseSnapshot()
	snap.LargestSwapWETH = decimal.NewFromInt(50)

	sig, ok := f.ShouldReason(snap)
	if !ok || sig != domain.SignalAttackSwapPattern {
		t.Fatalf("expected ATTACK_SWAP_PATTERN, got %v ok=%v", sig, ok)
	}
}

func TestShouldReasonSameBlockRecovery(t *testing.T) {
	f := New(DefaultThresholds())
	snap := baseSnapshot()
	snap.OraclePrice = decimal.NewFromInt(2000) // p[n]
	snap.History = []domain.PricePoint{
		{Price: decimal.NewFromInt(2300), BlockNumber: 99}, // p[n-1], +15% vs p[n-2]
		{Price: decimal.NewFromInt(2000), BlockNumber: 98}, // p[n-2]
	}

	sig, ok := f.ShouldReason(snap)
	if !ok || sig != domain.SignalSameBlockRecovery {
		t.Fatalf("expected SAME_BLOCK_RECOVERY, got %v ok=%v", sig, ok)
	}
}

func TestShouldReasonUnfairLiquidation(t *testing.T) {
	f := New(DefaultThresholds())
	snap := baseSnapshot()
	snap.AMMPrice = decimal.NewFromInt(1200) // 40% deviation
	snap.Flags.LiquidationSeen = true

	sig, ok := f.ShouldReason(snap)
	if !ok {
		t.Fatal("expected a signal")
	}
	// Rule 1 (large deviation) fires before rule 5 in evaluation order;
	// either is a legitimate "reason about this" signal for this state.
	if sig != domain.SignalLargeDeviation && sig != domain.SignalUnfairLiquidation {
		t.Fatalf("unexpected signal %s", sig)
	}
}

func TestShouldReasonExtremeMove(t *testing.T) {
	f := New(DefaultThresholds())
	snap := baseSnapshot()
	snap.OraclePrice = decimal.NewFromInt(2300)
	snap.AMMPrice = decimal.NewFromInt(2300)
	snap.History = []domain.PricePoint{
		{Price: decimal.NewFromInt(2000), BlockNumber: 99},
	}

	sig, ok := f.ShouldReason(snap)
	if !ok || sig != domain.SignalExtremeMove {
		t.Fatalf("expected EXTREME_MOVE, got %v ok=%v", sig, ok)
	}
}

func TestShouldReasonInvalidSnapshotNeverReasons(t *testing.T) {
	f := New(DefaultThresholds())
	snap := baseSnapshot()
	snap.Valid = false
	snap.AMMPrice = decimal.NewFromInt(100) // would otherwise be a huge deviation

	if _, ok := f.ShouldReason(snap); ok {
		t.Fatal("an invalid snapshot must never trigger reasoning")
	}
}
