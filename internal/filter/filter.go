// Package filter implements the deterministic anomaly predicate that
// gates whether a Snapshot is worth the Reasoner's LLM call.
package filter

import (
	"github.com/shopspring/decimal"

	"guardian-amm/internal/domain"
)

// Thresholds holds the filter's configurable rule parameters, sourced
// from config defaults matching spec.md §6.
type Thresholds struct {
	PriceDeviationPct decimal.Decimal // rule 1, default 5.0
	ExtremeMovePct    decimal.Decimal // rule 6, default 10.0
	LargeSwapWETH     decimal.Decimal // rule 3, default 10
}

// DefaultThresholds returns the documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PriceDeviationPct: decimal.NewFromFloat(5.0),
		ExtremeMovePct:    decimal.NewFromFloat(10.0),
		LargeSwapWETH:     decimal.NewFromInt(10),
	}
}

// fixed rule-4/rule-5 bounds: spec.md §4.3 does not expose these as
// config, unlike rules 1/3/6.
var (
	recoveryNearPct    = decimal.NewFromFloat(1.0)
	recoveryExtremePct = decimal.NewFromFloat(10.0)
	unfairDeviationPct = decimal.NewFromFloat(5.0)
)

// Filter evaluates the six deterministic anomaly rules against a
// caller-supplied threshold configuration.
type Filter struct {
	Thresholds Thresholds
}

// New builds a Filter from thresholds; zero-value Thresholds fields
// fall back to the documented defaults.
func New(t Thresholds) Filter {
	d := DefaultThresholds()
	if t.PriceDeviationPct.IsZero() {
		t.PriceDeviationPct = d.PriceDeviationPct
	}
	if t.ExtremeMovePct.IsZero() {
		t.ExtremeMovePct = d.ExtremeMovePct
	}
	if t.LargeSwapWETH.IsZero() {
		t.LargeSwapWETH = d.LargeSwapWETH
	}
	return Filter{Thresholds: t}
}

// ShouldReason is the pure predicate spec.md §4.3 names
// should_reason(snapshot, previous_snapshot). It never mutates its
// arguments and never touches float64 — every comparison goes through
// decimal.Decimal.
//
// An invalid snapshot (fresh-deploy zero reserves, or a reserve/price
// mismatch caught by the Observer) always returns no signal: there is
// nothing meaningful to reason about yet.
func (f Filter) ShouldReason(snap domain.Snapshot) (domain.AnomalySignal, bool) {
	if !snap.Valid {
		return domain.SignalNone, false
	}

	if sig, ok := f.checkLargeDeviation(snap); ok {
		return sig, true
	}
	if sig, ok := f.checkMultipleOracleUpdates(snap); ok {
		return sig, true
	}
	if sig, ok := f.checkAttackSwapPattern(snap); ok {
		return sig, true
	}
	if sig, ok := f.checkSameBlockRecovery(snap); ok {
		return sig, true
	}
	if sig, ok := f.checkUnfairLiquidation(snap); ok {
		return sig, true
	}
	if sig, ok := f.checkExtremeMove(snap); ok {
		return sig, true
	}
	return domain.SignalNone, false
}

func (f Filter) checkLargeDeviation(snap domain.Snapshot) (domain.AnomalySignal, bool) {
	if snap.DeviationPct().Abs().GreaterThan(f.Thresholds.PriceDeviationPct) {
		return domain.SignalLargeDeviation, true
	}
	return domain.SignalNone, false
}

func (f Filter) checkMultipleOracleUpdates(snap domain.Snapshot) (domain.AnomalySignal, bool) {
	if snap.OracleUpdateCount > 1 {
		return domain.SignalMultipleOracleUpdates, true
	}
	return domain.SignalNone, false
}

func (f Filter) checkAttackSwapPattern(snap domain.Snapshot) (domain.AnomalySignal, bool) {
	if snap.SwapCount > 3 {
		return domain.SignalAttackSwapPattern, true
	}
	if snap.LargestSwapWETH.GreaterThan(f.Thresholds.LargeSwapWETH) {
		return domain.SignalAttackSwapPattern, true
	}
	return domain.SignalNone, false
}

// checkSameBlockRecovery implements rule 4: within a 3-block window
// |p[n-2] - p[n]| / p[n-2] < 1% AND |p[n-1] - p[n-2]| / p[n-2] > 10%.
// snap.History is most-recent-first and never includes snap's own
// price, so History[0] is p[n-1] and History[1] is p[n-2].
func (f Filter) checkSameBlockRecovery(snap domain.Snapshot) (domain.AnomalySignal, bool) {
	if len(snap.History) < 2 {
		return domain.SignalNone, false
	}
	pN := snap.OraclePrice
	pNMinus1 := snap.History[0].Price
	pNMinus2 := snap.History[1].Price
	if pNMinus2.IsZero() {
		return domain.SignalNone, false
	}

	near := pNMinus2.Sub(pN).Abs().Div(pNMinus2).Mul(decimal.NewFromInt(100))
	extreme := pNMinus1.Sub(pNMinus2).Abs().Div(pNMinus2).Mul(decimal.NewFromInt(100))

	if near.LessThan(recoveryNearPct) && extreme.GreaterThan(recoveryExtremePct) {
		return domain.SignalSameBlockRecovery, true
	}
	return domain.SignalNone, false
}

func (f Filter) checkUnfairLiquidation(snap domain.Snapshot) (domain.AnomalySignal, bool) {
	if snap.Flags.LiquidationSeen && snap.DeviationPct().Abs().GreaterThan(unfairDeviationPct) {
		return domain.SignalUnfairLiquidation, true
	}
	return domain.SignalNone, false
}

// checkExtremeMove implements rule 6: |p[n] - p[n-1]| / p[n-1] > 10%.
func (f Filter) checkExtremeMove(snap domain.Snapshot) (domain.AnomalySignal, bool) {
	if len(snap.History) < 1 {
		return domain.SignalNone, false
	}
	pNMinus1 := snap.History[0].Price
	if pNMinus1.IsZero() {
		return domain.SignalNone, false
	}
	move := snap.OraclePrice.Sub(pNMinus1).Abs().Div(pNMinus1).Mul(decimal.NewFromInt(100))
	if move.GreaterThan(f.Thresholds.ExtremeMovePct) {
		return domain.SignalExtremeMove, true
	}
	return domain.SignalNone, false
}
