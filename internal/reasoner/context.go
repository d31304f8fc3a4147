package reasoner

import (
	"crypto/sha256"
	"encoding/json"

	"guardian-amm/internal/domain"
)

// reasonContext is the deterministic, key-sorted object hashed for
// content-based dedup and sent to the LLM as the prompt's market-state
// section. encoding/json already marshals struct fields in a fixed
// (declaration) order and map keys in sorted order, which is what
// spec.md §4.4 means by "deterministic, sort keys".
type reasonContext struct {
	BlockNumber   uint64               `json:"block_number"`
	OraclePrice   string               `json:"oracle_price"`
	AMMPrice      string               `json:"amm_price"`
	DeviationPct  string               `json:"deviation_pct"`
	Signal        domain.AnomalySignal `json:"signal"`
	RecentPrices  []string             `json:"recent_prices"` // up to 3, most-recent-first
	SwapCount     int                  `json:"swap_count"`
	LiquidationOn bool                 `json:"liquidation_seen"`
}

func buildContext(snap domain.Snapshot, signal domain.AnomalySignal) reasonContext {
	recent := make([]string, 0, 3)
	for i, p := range snap.History {
		if i >= 3 {
			break
		}
		recent = append(recent, p.Price.String())
	}
	return reasonContext{
		BlockNumber:   snap.BlockNumber,
		OraclePrice:   snap.OraclePrice.String(),
		AMMPrice:      snap.AMMPrice.String(),
		DeviationPct:  snap.DeviationPct().String(),
		Signal:        signal,
		RecentPrices:  recent,
		SwapCount:     snap.SwapCount,
		LiquidationOn: snap.Flags.LiquidationSeen,
	}
}

// digest computes a 128-bit (16-byte) truncated sha256 over the
// context's canonical JSON encoding.
func (rc reasonContext) digest() ([16]byte, error) {
	encoded, err := json.Marshal(rc)
	if err != nil {
		return [16]byte{}, err
	}
	sum := sha256.Sum256(encoded)
	var out [16]byte
	copy(out[:], sum[:16])
	return out, nil
}
