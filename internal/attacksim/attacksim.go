// Package attacksim implements the admin-triggered attack rehearsal
// routine behind POST /api/admin/simulate-attack. It performs a single
// oversized swap against the AMM to manufacture the same kind of
// reserve imbalance a real flash-loan/oracle-manipulation attack would,
// then reports whether the monitor's own defenses engaged before the
// call returned.
package attacksim

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"guardian-amm/internal/chain"
)

const wethDecimals int32 = 18

// ChainAdapter is the subset of internal/chain.Adapter the simulator
// needs: a view call to read reserves/pause state and a write call to
// submit the manipulating swap.
type ChainAdapter interface {
	CallView(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error)
	Submit(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (string, *types.Receipt, error)
}

// Addresses names the contracts the simulator inspects and drives.
type Addresses struct {
	AMM   common.Address
	Vault common.Address
}

// Options tunes the rehearsal.
type Options struct {
	// SwapFractionPct is the percentage of the AMM's WETH reserve sold
	// into the pool in one shot, large enough to move the spot price
	// well past any sane deviation threshold. Default 40.
	SwapFractionPct decimal.Decimal
	// SettleDelay is how long the simulator waits after submitting the
	// swap before checking whether the monitor's defenses engaged,
	// giving at least one observation cycle time to react. Default 6s.
	SettleDelay time.Duration
}

// Result mirrors the HTTP admin endpoint's response shape.
type Result struct {
	Success     bool
	Blocked     bool
	Message     string
	TxHash      string
	PriceBefore decimal.Decimal
	PriceAfter  decimal.Decimal
}

// Simulator drives one rehearsal at a time; callers serialize via the
// HTTP handler's own request handling (no concurrent overlapping runs
// are expected from the dashboard).
type Simulator struct {
	chain  ChainAdapter
	addrs  Addresses
	opts   Options
	logger zerolog.Logger
}

// New builds a Simulator.
func New(adapter ChainAdapter, addrs Addresses, opts Options, logger zerolog.Logger) *Simulator {
	if opts.SwapFractionPct.IsZero() {
		opts.SwapFractionPct = decimal.NewFromInt(40)
	}
	if opts.SettleDelay == 0 {
		opts.SettleDelay = 6 * time.Second
	}
	return &Simulator{chain: adapter, addrs: addrs, opts: opts, logger: logger.With().Str("component", "attacksim").Logger()}
}

// Run executes one rehearsal at the configured default swap fraction.
func (s *Simulator) Run(ctx context.Context) Result {
	return s.RunWithFraction(ctx, decimal.Zero)
}

// RunWithFraction executes one rehearsal: reads current reserves/spot
// price, sells a large fraction of the WETH reserve into the pool,
// waits for the monitor to react, then reports whether it paused the
// AMM or vault (or blocked liquidations) before the call returned.
// fractionPct overrides the configured default when positive.
func (s *Simulator) RunWithFraction(ctx context.Context, fractionPct decimal.Decimal) Result {
	if !fractionPct.IsPositive() {
		fractionPct = s.opts.SwapFractionPct
	}

	before, err := s.spotPrice(ctx)
	if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("failed to read pre-attack price: %v", err)}
	}

	reserves, err := s.chain.CallView(ctx, s.addrs.AMM, chain.AMMABI, "getReserves")
	if err != nil || len(reserves) < 2 {
		return Result{Success: false, Message: fmt.Sprintf("failed to read reserves: %v", err)}
	}
	wethReserve := decimal.NewFromBigInt(reserves[0].(*big.Int), -wethDecimals)
	amount := wethReserve.Mul(fractionPct).Div(decimal.NewFromInt(100))
	if !amount.IsPositive() {
		return Result{Success: false, Message: "computed swap amount is non-positive; AMM reserves look empty"}
	}

	txHash, _, err := s.chain.Submit(ctx, s.addrs.AMM, chain.AMMABI, "swapWethForUsdc", amount.Shift(wethDecimals).BigInt())
	if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("attack swap failed: %v", err), PriceBefore: before}
	}

	select {
	case <-ctx.Done():
	case <-time.After(s.opts.SettleDelay):
	}

	blocked, err := s.defensesEngaged(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read post-attack defense state")
	}

	after, err := s.spotPrice(ctx)
	if err != nil {
		after = before
	}

	return Result{
		Success:     true,
		Blocked:     blocked,
		Message:     rehearsalMessage(blocked),
		TxHash:      txHash,
		PriceBefore: before,
		PriceAfter:  after,
	}
}

func rehearsalMessage(blocked bool) string {
	if blocked {
		return "attack swap submitted; the monitor engaged a defense before this call returned"
	}
	return "attack swap submitted; no defense engaged within the settle window"
}

func (s *Simulator) spotPrice(ctx context.Context) (decimal.Decimal, error) {
	out, err := s.chain.CallView(ctx, s.addrs.AMM, chain.AMMABI, "getReserves")
	if err != nil || len(out) < 3 {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(out[2].(*big.Int), -chainPriceScale), nil
}

// chainPriceScale matches domain.PriceScale; duplicated as an untyped
// constant to avoid an import solely for one literal.
const chainPriceScale = 8

func (s *Simulator) defensesEngaged(ctx context.Context) (bool, error) {
	ammOut, err := s.chain.CallView(ctx, s.addrs.AMM, chain.AMMABI, "paused")
	if err != nil {
		return false, err
	}
	if paused, ok := ammOut[0].(bool); ok && paused {
		return true, nil
	}

	vaultOut, err := s.chain.CallView(ctx, s.addrs.Vault, chain.VaultABI, "paused")
	if err != nil {
		return false, err
	}
	if paused, ok := vaultOut[0].(bool); ok && paused {
		return true, nil
	}

	blockedOut, err := s.chain.CallView(ctx, s.addrs.Vault, chain.VaultABI, "liquidationsBlocked")
	if err != nil {
		return false, err
	}
	blocked, _ := blockedOut[0].(bool)
	return blocked, nil
}
