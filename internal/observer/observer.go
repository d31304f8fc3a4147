// Package observer builds one domain.Snapshot per tick from Chain
// Adapter calls, per spec.md §4.2.
package observer

import (
	"context"
	"math/big"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"guardian-amm/internal/chain"
	"guardian-amm/internal/domain"
)

// ChainAdapter is the subset of internal/chain.Adapter the Observer
// needs.
type ChainAdapter interface {
	CurrentBlock(ctx context.Context) (uint64, error)
	CallView(ctx context.Context, contract common.Address, contractABI gethabi.ABI, method string, args ...interface{}) ([]interface{}, error)
	FetchLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error)
}

// Addresses names every contract the Observer reads.
type Addresses struct {
	Oracle common.Address
	AMM    common.Address
	Vault  common.Address
}

// historyDepth is the number of prior price points retained on each
// Snapshot for the Anomaly Filter's recovery/extreme-move rules.
const historyDepth = 3

// Observer owns the rolling last-observed-block cursor and price
// history; it is the sole producer of Snapshots.
type Observer struct {
	chain  ChainAdapter
	addrs  Addresses
	logger zerolog.Logger

	cycleIndex int64
	lastBlock  uint64
	haveBlock  bool
	history    []domain.PricePoint // most-recent-first, len <= historyDepth
}

// New builds an Observer.
func New(adapter ChainAdapter, addrs Addresses, logger zerolog.Logger) *Observer {
	return &Observer{
		chain:  adapter,
		addrs:  addrs,
		logger: logger.With().Str("component", "observer").Logger(),
	}
}

// Tick runs one observation cycle. It returns ok=false (no Snapshot)
// when a transient log-fetch failure aborts the tick per spec.md
// §4.2's "no partial snapshot is emitted" policy; the caller should
// retry at the next scheduled tick.
func (o *Observer) Tick(ctx context.Context) (domain.Snapshot, bool, error) {
	block, err := o.chain.CurrentBlock(ctx)
	if err != nil {
		return domain.Snapshot{}, false, err
	}

	oraclePrice, err := o.readOraclePrice(ctx)
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	wethReserve, usdcReserve, ammPrice, err := o.readReserves(ctx)
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	ammPaused, vaultPaused, liqBlocked, err := o.readFlags(ctx)
	if err != nil {
		return domain.Snapshot{}, false, err
	}

	fromBlock := block
	if o.haveBlock {
		fromBlock = o.lastBlock + 1
	}

	swapCount := 0
	var largestSwap decimal.Decimal
	oracleUpdates := 0
	liquidationSeen := false
	var liquidationUser string
	var liquidationBlock uint64

	// Block lag: current == last means no new blocks to scan; emit a
	// snapshot with zero swap/update counts rather than skipping.
	if o.haveBlock && fromBlock > block {
		// nothing new since the last tick
	} else {
		logs, err := o.chain.FetchLogs(ctx, fromBlock, block, []common.Address{o.addrs.AMM, o.addrs.Oracle, o.addrs.Vault}, nil)
		if err != nil {
			// Transient log-fetch failure: abort the tick, no partial
			// snapshot, retry next tick.
			return domain.Snapshot{}, false, err
		}

		for _, lg := range logs {
			switch {
			case isEvent(lg, chain.AMMABI, "Swap"):
				swapCount++
				if amt, ok := swapAmount(lg, chain.AMMABI); ok && amt.GreaterThan(largestSwap) {
					largestSwap = amt
				}
			case isEvent(lg, chain.OracleABI, "PriceUpdated"):
				oracleUpdates++
			case isEvent(lg, chain.VaultABI, "Liquidation"):
				liquidationSeen = true
				liquidationBlock = lg.BlockNumber
				if len(lg.Topics) > 2 {
					liquidationUser = lg.Topics[2].Hex()
				}
			}
		}
	}

	valid := true
	if wethReserve.IsZero() && usdcReserve.IsZero() {
		valid = false
	} else if wethReserve.IsZero() {
		valid = false
	} else {
		implied := domain.ImpliedAMMPrice(wethReserve, usdcReserve)
		// allow small rounding slack; anything beyond that is an
		// invariant violation per spec.md §3.
		diff := implied.Sub(ammPrice).Abs()
		tolerance := ammPrice.Mul(decimal.NewFromFloat(0.0001))
		if diff.GreaterThan(tolerance) && !ammPrice.IsZero() {
			valid = false
		}
	}

	o.cycleIndex++
	snap := domain.Snapshot{
		CycleIndex:        o.cycleIndex,
		BlockNumber:       block,
		OraclePrice:       oraclePrice,
		AMMPrice:          ammPrice,
		WETHReserve:       wethReserve,
		USDCReserve:       usdcReserve,
		SwapCount:         swapCount,
		OracleUpdateCount: oracleUpdates,
		LargestSwapWETH:   largestSwap,
		LiquidationUser:   liquidationUser,
		LiquidationBlock:  liquidationBlock,
		Flags: domain.Flags{
			LiquidationSeen:     liquidationSeen,
			AMMPaused:           ammPaused,
			VaultPaused:         vaultPaused,
			LiquidationsBlocked: liqBlocked,
		},
		History: append([]domain.PricePoint(nil), o.history...),
		Valid:   valid,
	}

	o.pushHistory(domain.PricePoint{Price: oraclePrice, BlockNumber: block})
	o.lastBlock = block
	o.haveBlock = true

	return snap, true, nil
}

func (o *Observer) pushHistory(p domain.PricePoint) {
	o.history = append([]domain.PricePoint{p}, o.history...)
	if len(o.history) > historyDepth {
		o.history = o.history[:historyDepth]
	}
}

func (o *Observer) readOraclePrice(ctx context.Context) (decimal.Decimal, error) {
	out, err := o.chain.CallView(ctx, o.addrs.Oracle, chain.OracleABI, "getPrice")
	if err != nil {
		return decimal.Zero, err
	}
	return decimalFromU256Scaled(out[0], domain.PriceScale), nil
}

func (o *Observer) readReserves(ctx context.Context) (weth, usdc, spot decimal.Decimal, err error) {
	out, err := o.chain.CallView(ctx, o.addrs.AMM, chain.AMMABI, "getReserves")
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	weth = decimalFromU256Scaled(out[0], 18) // WETH: 18 decimals
	usdc = decimalFromU256Scaled(out[1], 6)  // USDC: 6 decimals
	spot = decimalFromU256Scaled(out[2], domain.PriceScale)
	return weth, usdc, spot, nil
}

func (o *Observer) readFlags(ctx context.Context) (ammPaused, vaultPaused, liqBlocked bool, err error) {
	ammOut, err := o.chain.CallView(ctx, o.addrs.AMM, chain.AMMABI, "paused")
	if err != nil {
		return false, false, false, err
	}
	vaultPausedOut, err := o.chain.CallView(ctx, o.addrs.Vault, chain.VaultABI, "paused")
	if err != nil {
		return false, false, false, err
	}
	liqOut, err := o.chain.CallView(ctx, o.addrs.Vault, chain.VaultABI, "liquidationsBlocked")
	if err != nil {
		return false, false, false, err
	}
	return ammOut[0].(bool), vaultPausedOut[0].(bool), liqOut[0].(bool), nil
}

func decimalFromU256(v interface{}) decimal.Decimal {
	bi, ok := v.(*big.Int)
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(bi, 0)
}

func decimalFromU256Scaled(v interface{}, scale int32) decimal.Decimal {
	bi, ok := v.(*big.Int)
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(bi, -scale)
}

func isEvent(lg types.Log, contractABI gethabi.ABI, name string) bool {
	event, ok := contractABI.Events[name]
	if !ok || len(lg.Topics) == 0 {
		return false
	}
	return lg.Topics[0] == event.ID
}

func swapAmount(lg types.Log, contractABI gethabi.ABI) (decimal.Decimal, bool) {
	event, ok := contractABI.Events["Swap"]
	if !ok {
		return decimal.Zero, false
	}
	values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil || len(values) == 0 {
		return decimal.Zero, false
	}
	bi, ok := values[0].(*big.Int) // amountIn
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromBigInt(bi, -18), true
}
