package actor

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"guardian-amm/internal/decider"
	"guardian-amm/internal/domain"
)

func noopLogger() zerolog.Logger { return zerolog.Nop() }

type fakeChain struct {
	mu       sync.Mutex
	submits  int
	txHash   string
	err      error
	blockNum uint64
}

func (f *fakeChain) Submit(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (string, *types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.err != nil {
		return "", nil, f.err
	}
	return f.txHash, &types.Receipt{BlockNumber: new(big.Int).SetUint64(f.blockNum)}, nil
}

func TestExecuteIdempotentAlreadyPaused(t *testing.T) {
	fake := &fakeChain{txHash: "0xabc"}
	a := New(fake, Addresses{}, noopLogger(), nil)

	record := a.Execute(context.Background(), domain.Intent{Action: domain.ActionPauseAMM}, decider.OnChainState{AMMPaused: true})
	if !record.Success || record.TxHash != "" {
		t.Fatalf("expected idempotent success with no tx hash, got %+v", record)
	}
	if record.FailureReason != "already in target state" {
		t.Fatalf("expected reason %q, got %q", "already in target state", record.FailureReason)
	}
	if fake.submits != 0 {
		t.Fatalf("expected no chain submission for an already-paused target state, got %d", fake.submits)
	}
}

func TestExecuteNoneIsAlwaysSuccessNoop(t *testing.T) {
	fake := &fakeChain{}
	a := New(fake, Addresses{}, noopLogger(), nil)

	record := a.Execute(context.Background(), domain.Intent{Action: domain.ActionNone}, decider.OnChainState{})
	if !record.Success || record.TxHash != "" {
		t.Fatalf("expected NONE to be a no-op success, got %+v", record)
	}
}

func TestExecuteSubmitsPauseAMM(t *testing.T) {
	fake := &fakeChain{txHash: "0xdead", blockNum: 123}
	a := New(fake, Addresses{}, noopLogger(), nil)

	record := a.Execute(context.Background(), domain.Intent{Action: domain.ActionPauseAMM}, decider.OnChainState{AMMPaused: false})
	if !record.Success || record.TxHash != "0xdead" || record.BlockIncluded != 123 {
		t.Fatalf("unexpected record %+v", record)
	}
	if fake.submits != 1 {
		t.Fatalf("expected exactly 1 submission, got %d", fake.submits)
	}
}

func TestSubmitCoalescesPendingIntents(t *testing.T) {
	fake := &fakeChain{txHash: "0x1"}
	var mu sync.Mutex
	var completed []domain.Action
	a := New(fake, Addresses{}, noopLogger(), func(r domain.ActionRecord) {
		mu.Lock()
		completed = append(completed, r.Intent.Action)
		mu.Unlock()
	})

	a.Submit(context.Background(), domain.Intent{Action: domain.ActionBlockLiquidations}, decider.OnChainState{})
	a.Submit(context.Background(), domain.Intent{Action: domain.ActionPauseAMM}, decider.OnChainState{})
	a.Submit(context.Background(), domain.Intent{Action: domain.ActionNone}, decider.OnChainState{}) // lower severity, dropped

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(completed)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(completed) != 2 {
		t.Fatalf("expected 2 completed actions (first + coalesced pending), got %v", completed)
	}
	if completed[1] != domain.ActionPauseAMM {
		t.Fatalf("expected the higher-severity PAUSE_AMM to win coalescing, got %v", completed[1])
	}
}
