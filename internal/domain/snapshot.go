// Package domain holds the tagged record types shared across the
// observation, reasoning, and decision pipeline. Every cross-package
// value exchanged by this module is one of these explicit structs —
// no untyped maps cross a package boundary.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceScale is the fixed-point scale (number of implied decimals)
// used for oracle and AMM spot prices throughout the pipeline.
const PriceScale = 8

// PricePoint is one historical oracle/AMM price observation, used by
// the Anomaly Filter's same-block-recovery and extreme-move checks.
type PricePoint struct {
	Price       decimal.Decimal
	BlockNumber uint64
}

// Flags captures the on-chain pause/block state observed alongside a
// snapshot.
type Flags struct {
	LiquidationSeen     bool
	AMMPaused           bool
	VaultPaused         bool
	LiquidationsBlocked bool
}

// Snapshot is the immutable per-cycle market record produced by the
// Observer. Any field not listed here is derivable from these and
// MUST be computed, never stored redundantly.
type Snapshot struct {
	CycleIndex   int64
	Timestamp    time.Time
	BlockNumber  uint64

	OraclePrice decimal.Decimal
	AMMPrice    decimal.Decimal
	WETHReserve decimal.Decimal
	USDCReserve decimal.Decimal

	SwapCount         int
	OracleUpdateCount int
	// LargestSwapWETH is the largest single swap's WETH-equivalent input
	// size seen since the last snapshot; zero if SwapCount is zero.
	LargestSwapWETH decimal.Decimal

	// LiquidationUser and LiquidationBlock identify the most recent
	// liquidation observed this cycle, when Flags.LiquidationSeen is
	// true. Used by the Reasoner to build the "liq:{user}:{block}"
	// dedup key.
	LiquidationUser  string
	LiquidationBlock uint64

	Flags Flags

	// History is the rolling window of the most recent price points,
	// most-recent-first, used for the recovery/extreme-move rules.
	// It never includes the current snapshot's own price.
	History []PricePoint

	// Valid is false when reserves are both zero (fresh deploy) or the
	// constant-product invariant does not hold within reserve
	// precision; an invalid snapshot is still emitted but is always
	// classified NATURAL without invoking the filter's other rules.
	Valid bool
}

// DeviationPct returns the signed percent deviation of the AMM price
// from the oracle price: (oracle - amm) / oracle * 100. Callers that
// need the anomaly-filter's absolute-value semantics call .Abs() on
// the result themselves — the sign is preserved here because it is
// meaningful to operators (over- vs under-priced AMM).
func (s Snapshot) DeviationPct() decimal.Decimal {
	if s.OraclePrice.IsZero() {
		return decimal.Zero
	}
	return s.OraclePrice.Sub(s.AMMPrice).Div(s.OraclePrice).Mul(decimal.NewFromInt(100))
}

// ImpliedAMMPrice recomputes spot price from reserves: usdc/weth. Used
// to validate the snapshot's invariant against the reported AMM price.
func ImpliedAMMPrice(wethReserve, usdcReserve decimal.Decimal) decimal.Decimal {
	if wethReserve.IsZero() {
		return decimal.Zero
	}
	return usdcReserve.Div(wethReserve)
}
