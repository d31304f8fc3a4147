package domain

import "time"

// ActionRecord is the Actor's report of executing (or skipping) an
// Intent.
type ActionRecord struct {
	Intent        Intent
	Success       bool
	TxHash        string // empty on skip/failure
	FailureReason string // empty on success, except the idempotent-skip case ("already in target state")
	BlockIncluded uint64
	Duration      time.Duration
	// CorrelationID is a fresh identifier generated per executed
	// Intent, for operator debugging; it is not shared with the
	// Classification that led to the action, so it does not link this
	// record to the cycle's ReasoningEvent. Not used for any
	// control-flow decision.
	CorrelationID string
}
