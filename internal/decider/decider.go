// Package decider maps a Classification plus the currently observed
// on-chain pause state onto an Intent. The Decide function is pure:
// same inputs, same output, always.
package decider

import (
	"fmt"

	"guardian-amm/internal/domain"
)

// Thresholds holds the decider's confidence cutoffs, sourced from
// config defaults matching spec.md §6.
type Thresholds struct {
	PauseConfidence            float64 // default 0.75
	BlockLiquidationConfidence float64 // default 0.50
}

// DefaultThresholds returns the documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{PauseConfidence: 0.75, BlockLiquidationConfidence: 0.50}
}

// OnChainState is the subset of current contract state the policy
// table needs to decide idempotently.
type OnChainState struct {
	AMMPaused           bool
	VaultPaused         bool
	LiquidationsBlocked bool
}

// Decider evaluates the policy table of spec.md §4.5.
type Decider struct {
	Thresholds Thresholds
}

// New builds a Decider from thresholds; zero-value fields fall back
// to the documented defaults.
func New(t Thresholds) Decider {
	d := DefaultThresholds()
	if t.PauseConfidence == 0 {
		t.PauseConfidence = d.PauseConfidence
	}
	if t.BlockLiquidationConfidence == 0 {
		t.BlockLiquidationConfidence = d.BlockLiquidationConfidence
	}
	return Decider{Thresholds: t}
}

// Decide is the pure policy function. Every candidate rule that
// matches is collected, then the most restrictive action wins
// (PAUSE_VAULT > PAUSE_AMM > BLOCK_LIQUIDATIONS > RESTORE > NONE);
// ties are impossible since MoreSevere is a strict order.
func (d Decider) Decide(c domain.Classification, state OnChainState) domain.Intent {
	candidates := d.candidates(c, state)

	best := domain.Intent{Action: domain.ActionNone, Rationale: "no rule matched; default none", MinConfidence: 0}
	for _, cand := range candidates {
		if domain.MoreSevere(cand.Action, best.Action) || best.Action == domain.ActionNone {
			best = cand
		}
	}
	return best
}

func (d Decider) candidates(c domain.Classification, state OnChainState) []domain.Intent {
	if c.Kind == domain.KindNatural {
		return []domain.Intent{{Action: domain.ActionNone, Rationale: "classification is NATURAL", MinConfidence: 0}}
	}
	if c.Confidence < d.Thresholds.BlockLiquidationConfidence {
		return []domain.Intent{{
			Action:        domain.ActionNone,
			Rationale:     fmt.Sprintf("confidence %.2f below minimum threshold %.2f", c.Confidence, d.Thresholds.BlockLiquidationConfidence),
			MinConfidence: d.Thresholds.BlockLiquidationConfidence,
		}}
	}

	var out []domain.Intent

	switch c.Kind {
	case domain.KindFlashLoanAttack:
		if c.Confidence >= d.Thresholds.PauseConfidence {
			if state.AMMPaused {
				out = append(out, domain.Intent{
					Action:        domain.ActionNone,
					Rationale:     "flash loan attack but AMM already paused (idempotent)",
					MinConfidence: d.Thresholds.PauseConfidence,
				})
			} else {
				out = append(out, domain.Intent{
					Action:        domain.ActionPauseAMM,
					Rationale:     "flash loan attack, high confidence, AMM not yet paused",
					MinConfidence: d.Thresholds.PauseConfidence,
				})
			}
		} else if !state.AMMPaused {
			out = append(out, domain.Intent{
				Action:        domain.ActionBlockLiquidations,
				Rationale:     "flash loan attack, moderate confidence: block liquidations pending confirmation",
				MinConfidence: d.Thresholds.BlockLiquidationConfidence,
			})
		}

	case domain.KindOracleManipulation:
		if c.Confidence >= d.Thresholds.BlockLiquidationConfidence && !state.LiquidationsBlocked {
			out = append(out, domain.Intent{
				Action:        domain.ActionBlockLiquidations,
				Rationale:     "suspected oracle manipulation: block liquidations",
				MinConfidence: d.Thresholds.BlockLiquidationConfidence,
			})
		}

	case domain.KindSandwich:
		if c.Confidence >= d.Thresholds.PauseConfidence && !state.AMMPaused {
			out = append(out, domain.Intent{
				Action:        domain.ActionPauseAMM,
				Rationale:     "sandwich attack, high confidence: pause AMM",
				MinConfidence: d.Thresholds.PauseConfidence,
			})
		}

	case domain.KindUnknownAnomaly:
		if c.Confidence >= 0.90 && !state.AMMPaused && !state.VaultPaused {
			out = append(out, domain.Intent{
				Action:        domain.ActionPauseVault,
				Rationale:     "unrecognized anomaly, very high confidence: pause vault pending review",
				MinConfidence: 0.90,
			})
		}
	}

	if len(out) == 0 {
		out = append(out, domain.Intent{
			Action:        domain.ActionNone,
			Rationale:     fmt.Sprintf("classification %s confidence %.2f did not clear any action rule given current state", c.Kind, c.Confidence),
			MinConfidence: c.Confidence,
		})
	}
	return out
}
