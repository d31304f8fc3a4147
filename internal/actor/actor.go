// Package actor executes decider Intents against the chain, enforcing
// idempotency against observed on-chain state and serializing all
// submissions through a single in-flight slot with depth-1 coalescing,
// per spec.md §4.6.
package actor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"guardian-amm/internal/chain"
	"guardian-amm/internal/decider"
	"guardian-amm/internal/domain"
)

// ChainAdapter is the subset of internal/chain.Adapter the Actor
// needs; accepted as an interface so tests can substitute a fake.
type ChainAdapter interface {
	Submit(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (string, *types.Receipt, error)
}

// Addresses names the contracts the Actor writes to.
type Addresses struct {
	AMM   common.Address
	Vault common.Address
}

// Actor is the execution component. At most one Intent is in flight at
// a time; a second Submit while busy coalesces into a single pending
// slot (depth 1), replacing the prior pending intent only if the new
// one is at least as severe.
type Actor struct {
	chain  ChainAdapter
	addrs  Addresses
	logger zerolog.Logger

	onComplete func(domain.ActionRecord)

	mu      sync.Mutex
	busy    bool
	pending *pendingWork
}

type pendingWork struct {
	intent domain.Intent
	state  decider.OnChainState
}

// New builds an Actor. onComplete is invoked (from a background
// goroutine) once per executed Intent, including coalesced ones.
func New(adapter ChainAdapter, addrs Addresses, logger zerolog.Logger, onComplete func(domain.ActionRecord)) *Actor {
	return &Actor{
		chain:      adapter,
		addrs:      addrs,
		logger:     logger.With().Str("component", "actor").Logger(),
		onComplete: onComplete,
	}
}

// Submit enqueues an Intent for execution. If the Actor is idle, it
// begins executing immediately on a background goroutine. If busy, the
// intent is coalesced into the single pending slot per the depth-1
// rule: a lower-severity pending intent is replaced by a higher- or
// equal-severity one; a higher-severity pending intent is kept.
func (a *Actor) Submit(ctx context.Context, intent domain.Intent, state decider.OnChainState) {
	a.mu.Lock()
	if a.busy {
		if a.pending == nil || !domain.MoreSevere(a.pending.intent.Action, intent.Action) {
			a.pending = &pendingWork{intent: intent, state: state}
		}
		a.mu.Unlock()
		return
	}
	a.busy = true
	a.mu.Unlock()

	go a.runLoop(ctx, intent, state)
}

func (a *Actor) runLoop(ctx context.Context, intent domain.Intent, state decider.OnChainState) {
	for {
		record := a.Execute(ctx, intent, state)
		if a.onComplete != nil {
			a.onComplete(record)
		}

		a.mu.Lock()
		next := a.pending
		a.pending = nil
		if next == nil {
			a.busy = false
			a.mu.Unlock()
			return
		}
		a.mu.Unlock()

		intent, state = next.intent, next.state
	}
}

// Execute runs one Intent synchronously against the chain and returns
// its ActionRecord. Callers that need serialization guarantees should
// go through Submit; Execute itself does not acquire the busy lock, so
// it is also suitable for direct synchronous use (e.g. a restore
// scheduler driving its own, independent action).
func (a *Actor) Execute(ctx context.Context, intent domain.Intent, state decider.OnChainState) (record domain.ActionRecord) {
	started := time.Now()
	correlationID := domain.NewCorrelationID()
	defer func() { record.CorrelationID = correlationID }()

	if intent.Action == domain.ActionNone {
		return domain.ActionRecord{Intent: intent, Success: true, Duration: time.Since(started)}
	}

	if alreadyInTargetState(intent.Action, state) {
		return domain.ActionRecord{
			Intent:        intent,
			Success:       true,
			FailureReason: "already in target state",
			Duration:      time.Since(started),
		}
	}

	contractAddr, contractABI, method, args := a.mapIntent(intent)
	var (
		txHash  string
		receipt *types.Receipt
	)
	err := chain.Retry(ctx, chain.DefaultRetryOptions(), func(ctx context.Context) error {
		var submitErr error
		txHash, receipt, submitErr = a.chain.Submit(ctx, contractAddr, contractABI, method, args...)
		return submitErr
	})
	duration := time.Since(started)

	if err != nil {
		if chain.IsAlreadyInTargetState(err) {
			return domain.ActionRecord{Intent: intent, Success: true, FailureReason: "already in target state", Duration: duration}
		}

		var transient *chain.TransientChainError
		if errors.As(err, &transient) {
			// chain.Retry above already retried the submission with
			// backoff; surfacing here means retries were exhausted.
			return domain.ActionRecord{Intent: intent, Success: false, FailureReason: err.Error(), Duration: duration}
		}

		return domain.ActionRecord{Intent: intent, Success: false, FailureReason: err.Error(), Duration: duration}
	}

	var block uint64
	if receipt != nil && receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	return domain.ActionRecord{
		Intent:        intent,
		Success:       true,
		TxHash:        txHash,
		BlockIncluded: block,
		Duration:      duration,
	}
}

func alreadyInTargetState(action domain.Action, state decider.OnChainState) bool {
	switch action {
	case domain.ActionPauseAMM:
		return state.AMMPaused
	case domain.ActionBlockLiquidations:
		return state.LiquidationsBlocked
	case domain.ActionPauseVault:
		return state.VaultPaused
	default:
		return false
	}
}

func (a *Actor) mapIntent(intent domain.Intent) (common.Address, abi.ABI, string, []interface{}) {
	switch intent.Action {
	case domain.ActionPauseAMM:
		return a.addrs.AMM, chain.AMMABI, "pause", nil
	case domain.ActionBlockLiquidations:
		return a.addrs.Vault, chain.VaultABI, "blockLiquidations", nil
	case domain.ActionPauseVault:
		return a.addrs.Vault, chain.VaultABI, "pause", []interface{}{intent.Rationale}
	default:
		return common.Address{}, abi.ABI{}, "", nil
	}
}
