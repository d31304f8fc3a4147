// Package chain provides read-only and signed-write access to the
// monitored chain endpoint: block height, contract view calls, log
// filtering, and transaction submission, with the
// transient/permanent error taxonomy and retry/nonce discipline
// spec.md §4.1 requires.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// Addresses collects the frozen contract addresses this module talks to.
type Addresses struct {
	WETH   common.Address
	USDC   common.Address
	Oracle common.Address
	AMM    common.Address
	Vault  common.Address
}

// Options configures an Adapter.
type Options struct {
	RPCURL     string
	SignerKey  string // hex-encoded ECDSA private key, no 0x prefix required
	Addresses  Addresses
	GasCapWei  *big.Int
	CallTimeout time.Duration
}

// Adapter is the read/write chain access layer. All outgoing
// transactions from the signer are serialized through txMu; the
// adapter never pipelines transactions.
type Adapter struct {
	opts   Options
	logger zerolog.Logger

	client *ethclient.Client

	signer     *ecdsa.PrivateKey
	signerAddr common.Address
	chainID    *big.Int

	txMu      sync.Mutex
	nextNonce *uint64 // nil until first fetched; refetched after any permanent error
}

// New dials the RPC endpoint and loads the signer key. Dialing is
// itself subject to the caller's retry policy — New returns a
// TransientChainError on connection failure so callers can retry
// startup.
func New(ctx context.Context, opts Options, logger zerolog.Logger) (*Adapter, error) {
	client, err := ethclient.DialContext(ctx, opts.RPCURL)
	if err != nil {
		return nil, &TransientChainError{Op: "dial", Err: err}
	}

	a := &Adapter{
		opts:   opts,
		logger: logger.With().Str("component", "chain_adapter").Logger(),
		client: client,
	}

	if opts.SignerKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(opts.SignerKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse signer key: %w", err)
		}
		a.signer = key
		a.signerAddr = crypto.PubkeyToAddress(key.PublicKey)

		chainID, err := client.ChainID(ctx)
		if err != nil {
			return nil, &TransientChainError{Op: "chain_id", Err: err}
		}
		a.chainID = chainID
	}

	return a, nil
}

// CurrentBlock returns the latest block number.
func (a *Adapter) CurrentBlock(ctx context.Context) (uint64, error) {
	block, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, classifyReadError("current_block", err)
	}
	return block, nil
}

// CallView invokes a read-only contract method and unpacks its
// outputs into the target ABI's return types.
func (a *Adapter) CallView(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if a.opts.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, a.opts.CallTimeout)
		defer cancel()
	}

	payload, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, &PermanentChainError{Op: method, Err: fmt.Errorf("pack args: %w", err)}
	}

	res, err := a.client.CallContract(callCtx, ethereum.CallMsg{To: &contract, Data: payload}, nil)
	if err != nil {
		return nil, classifyReadError(method, err)
	}

	outputs, err := contractABI.Unpack(method, res)
	if err != nil {
		return nil, &PermanentChainError{Op: method, Err: fmt.Errorf("unpack result: %w", err)}
	}
	return outputs, nil
}

// FetchLogs retrieves logs in [fromBlock, toBlock] for the given
// addresses and topic sets.
func (a *Adapter) FetchLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
		Topics:    topics,
	}
	logs, err := a.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, classifyReadError("fetch_logs", err)
	}
	return logs, nil
}

// SignerAddress returns the address controlled by the injected signer key.
func (a *Adapter) SignerAddress() common.Address { return a.signerAddr }

// Submit builds, signs (EIP-1559), and broadcasts a contract call,
// serialized through the single-signer nonce lock. It returns the tx
// hash and the mined receipt.
func (a *Adapter) Submit(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (string, *types.Receipt, error) {
	if a.signer == nil {
		return "", nil, &PermanentChainError{Op: method, Err: fmt.Errorf("no signer configured")}
	}

	a.txMu.Lock()
	defer a.txMu.Unlock()

	payload, err := contractABI.Pack(method, args...)
	if err != nil {
		a.nextNonce = nil
		return "", nil, &PermanentChainError{Op: method, Err: fmt.Errorf("pack args: %w", err)}
	}

	nonce, err := a.currentNonceLocked(ctx)
	if err != nil {
		return "", nil, err
	}

	tipCap, feeCap, err := a.feeCapsLocked(ctx)
	if err != nil {
		return "", nil, err
	}

	gasLimit, err := a.estimateGasLocked(ctx, contract, payload)
	if err != nil {
		a.nextNonce = nil
		return "", nil, err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   a.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &contract,
		Data:      payload,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(a.chainID), a.signer)
	if err != nil {
		a.nextNonce = nil
		return "", nil, &PermanentChainError{Op: method, Err: fmt.Errorf("sign tx: %w", err)}
	}

	if err := a.client.SendTransaction(ctx, signed); err != nil {
		if permanentSendError(err) {
			// nonce exhaustion / rejection: refetch from chain next time
			a.nextNonce = nil
			return "", nil, &PermanentChainError{Op: method, Err: err, Revert: decodeRevert(err)}
		}
		return "", nil, &TransientChainError{Op: method, Err: err}
	}

	// advance our cached cursor optimistically; a permanent error on a
	// future call forces a refetch.
	next := nonce + 1
	a.nextNonce = &next

	receipt, err := bind.WaitMined(ctx, a.client, signed)
	if err != nil {
		return signed.Hash().Hex(), nil, &TransientChainError{Op: method + ":wait_mined", Err: err}
	}
	if receipt.Status == types.ReceiptStatusFailed {
		a.nextNonce = nil
		return signed.Hash().Hex(), receipt, &PermanentChainError{Op: method, Err: fmt.Errorf("transaction reverted"), Revert: decodeRevert(err)}
	}

	return signed.Hash().Hex(), receipt, nil
}

func (a *Adapter) currentNonceLocked(ctx context.Context) (uint64, error) {
	if a.nextNonce != nil {
		return *a.nextNonce, nil
	}
	nonce, err := a.client.PendingNonceAt(ctx, a.signerAddr)
	if err != nil {
		return 0, &TransientChainError{Op: "nonce", Err: err}
	}
	return nonce, nil
}

func (a *Adapter) feeCapsLocked(ctx context.Context) (tipCap, feeCap *big.Int, err error) {
	tipCap, err = a.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, &TransientChainError{Op: "suggest_tip", Err: err}
	}
	head, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, &TransientChainError{Op: "header", Err: err}
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000) // 1 gwei fallback for non-EIP-1559 chains
	}
	feeCap = new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tipCap)
	return tipCap, feeCap, nil
}

func (a *Adapter) estimateGasLocked(ctx context.Context, contract common.Address, payload []byte) (uint64, error) {
	estimate, err := a.client.EstimateGas(ctx, ethereum.CallMsg{From: a.signerAddr, To: &contract, Data: payload})
	if err != nil {
		return 0, &PermanentChainError{Op: "estimate_gas", Err: err, Revert: decodeRevert(err)}
	}
	withHeadroom := estimate + estimate/4 // +25%
	if a.opts.GasCapWei != nil && a.opts.GasCapWei.IsUint64() {
		if cap := a.opts.GasCapWei.Uint64(); withHeadroom > cap {
			withHeadroom = cap
		}
	}
	return withHeadroom, nil
}

func classifyReadError(op string, err error) error {
	if isTransientRPCError(err) {
		return &TransientChainError{Op: op, Err: err}
	}
	return &PermanentChainError{Op: op, Err: err, Revert: decodeRevert(err)}
}

func isTransientRPCError(err error) bool {
	msg := err.Error()
	return containsAny(msg, "timeout", "connection refused", "EOF", "rate limit", "429", "temporarily unavailable", "i/o timeout")
}

func permanentSendError(err error) bool {
	msg := err.Error()
	return containsAny(msg, "revert", "nonce too low", "nonce too high", "already known", "insufficient funds", "execution reverted")
}

func decodeRevert(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
