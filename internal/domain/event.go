package domain

import "time"

// EventKind discriminates the Event tagged union.
type EventKind string

const (
	EventObservation EventKind = "OBSERVATION"
	EventAnomaly     EventKind = "ANOMALY"
	EventReasoning   EventKind = "REASONING"
	EventDecision    EventKind = "DECISION"
	EventAction      EventKind = "ACTION"
	EventRestore     EventKind = "RESTORE"
	EventLifecycle   EventKind = "AGENT_LIFECYCLE"
)

// LifecycleSeverity labels an AgentLifecycleEvent.
type LifecycleSeverity string

const (
	LifecycleInfo     LifecycleSeverity = "INFO"
	LifecycleError    LifecycleSeverity = "ERROR"
	LifecycleDegraded LifecycleSeverity = "DEGRADED"
	LifecycleRecovered LifecycleSeverity = "RECOVERED"
)

// Event is one append-only record in the Event Store. Exactly one of
// the Kind-tagged payload fields is populated, matching Kind. This is
// a closed tagged union on purpose — no bag-of-fields `any` payload —
// so every consumer (HTTP handlers, WS encoder, storage mirror) can
// switch exhaustively on Kind.
type Event struct {
	ID        int64
	Timestamp time.Time
	Cycle     int64
	Block     uint64
	Kind      EventKind

	Observation *ObservationEvent `json:"observation,omitempty"`
	Anomaly     *AnomalyEvent     `json:"anomaly,omitempty"`
	Reasoning   *ReasoningEvent   `json:"reasoning,omitempty"`
	Decision    *DecisionEvent    `json:"decision,omitempty"`
	Action      *ActionEvent      `json:"action,omitempty"`
	Restore     *RestoreEvent     `json:"restore,omitempty"`
	Lifecycle   *LifecycleEvent   `json:"lifecycle,omitempty"`
}

// ObservationEvent records one Observer cycle.
type ObservationEvent struct {
	Snapshot Snapshot
}

// AnomalyEvent records the Anomaly Filter's verdict for a cycle.
type AnomalyEvent struct {
	Signal  AnomalySignal
	Flagged bool
}

// AnomalySignal is re-declared here (rather than imported from the
// filter package) to keep domain free of a dependency on filter;
// filter.ShouldReason returns this type directly.
type AnomalySignal string

const (
	SignalNone                  AnomalySignal = ""
	SignalLargeDeviation        AnomalySignal = "LARGE_DEVIATION"
	SignalMultipleOracleUpdates AnomalySignal = "MULTIPLE_ORACLE_UPDATES"
	SignalAttackSwapPattern     AnomalySignal = "ATTACK_SWAP_PATTERN"
	SignalSameBlockRecovery     AnomalySignal = "SAME_BLOCK_RECOVERY"
	SignalUnfairLiquidation     AnomalySignal = "UNFAIR_LIQUIDATION"
	SignalExtremeMove           AnomalySignal = "EXTREME_MOVE"
)

// ReasoningEvent records the Reasoner's Classification for a cycle.
type ReasoningEvent struct {
	Classification Classification
	ParseFailed    bool
}

// DecisionEvent records the Decider's Intent for a cycle.
type DecisionEvent struct {
	Intent Intent
}

// ActionEvent records the Actor's ActionRecord for a cycle.
type ActionEvent struct {
	Record ActionRecord
}

// RestoreEvent records the outcome of a restore task.
type RestoreEvent struct {
	Success     bool
	NewPrice    string
	TxHash      string
	FailureReason string
	TriggeredBy int64 // id of the pause ActionEvent that armed this restore
}

// LifecycleEvent records process-level health transitions.
type LifecycleEvent struct {
	Severity LifecycleSeverity
	Message  string
}
