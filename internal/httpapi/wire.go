package httpapi

import (
	"time"

	"guardian-amm/internal/domain"
)

// wireEvent is the dashboard-facing JSON shape for a domain.Event:
// id, iso timestamp, block, kind, plus exactly the kind-specific
// payload for Kind, per spec.md §6.
type wireEvent struct {
	ID        int64       `json:"id"`
	Timestamp string      `json:"timestamp"`
	Block     uint64      `json:"block"`
	Cycle     int64       `json:"cycle"`
	Kind      string      `json:"kind"`
	Data      interface{} `json:"data,omitempty"`
}

func toWireEvent(e domain.Event) wireEvent {
	w := wireEvent{
		ID:        e.ID,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		Block:     e.Block,
		Cycle:     e.Cycle,
		Kind:      string(e.Kind),
	}
	switch e.Kind {
	case domain.EventObservation:
		w.Data = e.Observation
	case domain.EventAnomaly:
		w.Data = e.Anomaly
	case domain.EventReasoning:
		w.Data = e.Reasoning
	case domain.EventDecision:
		w.Data = e.Decision
	case domain.EventAction:
		w.Data = e.Action
	case domain.EventRestore:
		w.Data = e.Restore
	case domain.EventLifecycle:
		w.Data = e.Lifecycle
	}
	return w
}

func toWireEvents(events []domain.Event) []wireEvent {
	out := make([]wireEvent, 0, len(events))
	for _, e := range events {
		out = append(out, toWireEvent(e))
	}
	return out
}
