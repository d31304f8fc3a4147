// Package restore schedules and performs the post-defense price
// restoration sequence: unpause the AMM, counter-swap its reserves
// back toward the oracle price, and optionally re-pause, per
// spec.md §4.7.
package restore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"guardian-amm/internal/chain"
)

// wethDecimals/usdcDecimals are the on-chain token scales (matching
// original_source/agent/observer.py's 18-decimal WETH / 6-decimal USDC
// convention), used to convert a reserve-unit trade delta into the
// integer wei/unit amount the swap functions expect.
const (
	wethDecimals int32 = 18
	usdcDecimals int32 = 6
)

// ChainAdapter is the subset of internal/chain.Adapter the Restore
// Scheduler needs.
type ChainAdapter interface {
	Submit(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (string, *types.Receipt, error)
}

// Addresses names the AMM contract the restore swap targets.
type Addresses struct {
	AMM common.Address
}

// Options configures a Scheduler.
type Options struct {
	Delay               time.Duration // default 5s
	RepauseAfterRestore bool          // Open Question #1: default false
}

// Result describes the outcome of one restore task.
type Result struct {
	Success       bool
	NewPrice      decimal.Decimal
	TxHash        string
	FailureReason string
}

// Scheduler owns at most one active, cancellable restore task.
// Arming a new one while a prior task is still pending cancels the
// prior task — only one restore is ever in flight.
type Scheduler struct {
	chain  ChainAdapter
	addrs  Addresses
	opts   Options
	logger zerolog.Logger

	onComplete func(result Result, triggeredBy int64)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New builds a Scheduler. onComplete is invoked once the armed task
// fires (or is itself superseded/cancelled, in which case it is never
// called for the cancelled task).
func New(adapter ChainAdapter, addrs Addresses, opts Options, logger zerolog.Logger, onComplete func(Result, int64)) *Scheduler {
	if opts.Delay == 0 {
		opts.Delay = 5 * time.Second
	}
	return &Scheduler{
		chain:      adapter,
		addrs:      addrs,
		opts:       opts,
		logger:     logger.With().Str("component", "restore_scheduler").Logger(),
		onComplete: onComplete,
	}
}

// Arm schedules a restore task for triggeredBy (the id of the pause
// ActionEvent) at now+Delay, against the given reserves/oracle target.
// Any previously armed, not-yet-fired task is cancelled first.
func (s *Scheduler) Arm(parent context.Context, triggeredBy int64, wethReserve, usdcReserve, oraclePrice decimal.Decimal) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx, triggeredBy, wethReserve, usdcReserve, oraclePrice)
}

// FireNow runs the restore sequence synchronously, bypassing the
// configured delay and any in-flight armed task. It is the admin-
// triggered path behind POST /api/admin/reset-amm; unlike Arm it does
// not go through onComplete, since the HTTP handler reports the
// Result directly to its caller.
func (s *Scheduler) FireNow(ctx context.Context, wethReserve, usdcReserve, oraclePrice decimal.Decimal) Result {
	s.Cancel()
	return s.fire(ctx, wethReserve, usdcReserve, oraclePrice)
}

// Cancel aborts any pending restore task. Safe to call with none armed.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Scheduler) run(ctx context.Context, triggeredBy int64, wethReserve, usdcReserve, oraclePrice decimal.Decimal) {
	timer := time.NewTimer(s.opts.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return // superseded by a newer attack or shut down before firing
	case <-timer.C:
	}

	result := s.fire(ctx, wethReserve, usdcReserve, oraclePrice)

	s.mu.Lock()
	s.cancel = nil
	s.mu.Unlock()

	if s.onComplete != nil {
		s.onComplete(result, triggeredBy)
	}
}

func (s *Scheduler) fire(ctx context.Context, wethReserve, usdcReserve, oraclePrice decimal.Decimal) Result {
	if _, _, err := s.chain.Submit(ctx, s.addrs.AMM, chain.AMMABI, "unpause"); err != nil {
		return Result{Success: false, FailureReason: fmt.Sprintf("unpause failed: %v", err)}
	}

	delta, sellWETH, err := CounterSwap(wethReserve, usdcReserve, oraclePrice)
	if err != nil {
		return Result{Success: false, FailureReason: err.Error()}
	}

	var (
		txHash string
		subErr error
	)
	if delta.IsZero() {
		// already at target price within precision; nothing to trade
	} else if sellWETH {
		amount := delta.Shift(wethDecimals).BigInt()
		txHash, _, subErr = s.submitSwap(ctx, "swapWethForUsdc", amount)
	} else {
		amount := delta.Shift(usdcDecimals).BigInt()
		txHash, _, subErr = s.submitSwap(ctx, "swapUsdcForWeth", amount)
	}
	if subErr != nil {
		return Result{Success: false, FailureReason: fmt.Sprintf("counter-swap failed: %v", subErr)}
	}

	if s.opts.RepauseAfterRestore {
		if _, _, err := s.chain.Submit(ctx, s.addrs.AMM, chain.AMMABI, "pause"); err != nil {
			s.logger.Warn().Err(err).Msg("re-pause after restore failed")
		}
	}

	return Result{Success: true, NewPrice: oraclePrice, TxHash: txHash}
}

func (s *Scheduler) submitSwap(ctx context.Context, method string, amount interface{}) (string, *types.Receipt, error) {
	return s.chain.Submit(ctx, s.addrs.AMM, chain.AMMABI, method, amount)
}

// CounterSwap solves the constant-product counter-swap spec.md §4.7
// names: given reserves (x=weth, y=usdc) with invariant x*y=k, find the
// trade that drives the post-trade spot price y'/x' to pTarget. It
// returns the trade size (in the selling asset's own units) and which
// side must be sold.
//
// Deriving x' from x*y = k and y'/x' = pTarget: y' = pTarget * x', so
// k = x' * pTarget * x' = pTarget * x'^2, giving x' = sqrt(k/pTarget).
func CounterSwap(wethReserve, usdcReserve, pTarget decimal.Decimal) (delta decimal.Decimal, sellWETH bool, err error) {
	if wethReserve.IsZero() || usdcReserve.IsZero() {
		return decimal.Zero, false, fmt.Errorf("cannot counter-swap against a zero reserve")
	}
	if pTarget.IsZero() || pTarget.IsNegative() {
		return decimal.Zero, false, fmt.Errorf("invalid target price %s", pTarget.String())
	}

	k := wethReserve.Mul(usdcReserve)
	xPrime := sqrtDecimal(k.Div(pTarget))
	if xPrime.IsZero() {
		return decimal.Zero, false, fmt.Errorf("counter-swap solution degenerate for target price %s", pTarget.String())
	}

	if xPrime.GreaterThan(wethReserve) {
		// weth reserve must grow: sell WETH into the pool for USDC.
		return xPrime.Sub(wethReserve), true, nil
	}
	// weth reserve must shrink: sell USDC into the pool for WETH.
	yPrime := k.Div(xPrime)
	return yPrime.Sub(usdcReserve).Abs(), false, nil
}

// sqrtDecimal computes a square root via Newton's method, stopping once
// two successive guesses differ by less than 1e-18 (or after 64
// iterations); each step's division is rounded to decimal's default
// division precision.
func sqrtDecimal(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() || v.IsZero() {
		return decimal.Zero
	}
	guess := v
	two := decimal.NewFromInt(2)
	for i := 0; i < 64; i++ {
		next := guess.Add(v.Div(guess)).Div(two)
		if next.Sub(guess).Abs().LessThan(decimal.New(1, -18)) {
			return next
		}
		guess = next
	}
	return guess
}
