package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"guardian-amm/internal/domain"
)

// ActionEvent mirrors one committed ActionRecord to the audit log.
type ActionEvent struct {
	ID            int64
	Timestamp     time.Time
	Action        string
	Rationale     string
	Success       bool
	TxHash        string
	FailureReason string
	BlockIncluded *int64
	DurationMS    int64
	CreatedAt     time.Time
}

// ObservationSample is an hourly-decimated snapshot of chain state, kept
// for historical price charting rather than every tick.
type ObservationSample struct {
	Bucket       time.Time
	BlockNumber  int64
	OraclePrice  decimal.Decimal
	AMMPrice     decimal.Decimal
	DeviationPct decimal.Decimal
	CreatedAt    time.Time
}

func actionEventFromRecord(rec domain.ActionRecord, at time.Time) ActionEvent {
	ev := ActionEvent{
		Timestamp:     at,
		Action:        string(rec.Intent.Action),
		Rationale:     rec.Intent.Rationale,
		Success:       rec.Success,
		TxHash:        rec.TxHash,
		FailureReason: rec.FailureReason,
		DurationMS:    rec.Duration.Milliseconds(),
	}
	if rec.BlockIncluded > 0 {
		b := int64(rec.BlockIncluded)
		ev.BlockIncluded = &b
	}
	return ev
}
