package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"guardian-amm/internal/domain"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	// Every caller treats this as "storage disabled", not a fatal error.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertActionEventSQL = `INSERT INTO action_events (
        ts,
        action,
        rationale,
        success,
        tx_hash,
        failure_reason,
        block_included,
        duration_ms
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    ) RETURNING id, created_at;`

	listRecentActionEventsSQL = `SELECT
        id, ts, action, rationale, success, tx_hash, failure_reason,
        block_included, duration_ms, created_at
    FROM action_events
    ORDER BY ts DESC
    LIMIT $1;`

	upsertObservationSampleSQL = `INSERT INTO observation_samples (
        bucket_ts,
        block_number,
        oracle_price,
        amm_price,
        deviation_pct
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (bucket_ts) DO UPDATE
    SET block_number = EXCLUDED.block_number,
        oracle_price = EXCLUDED.oracle_price,
        amm_price    = EXCLUDED.amm_price,
        deviation_pct = EXCLUDED.deviation_pct;`

	listSamplesBetweenSQL = `SELECT
        bucket_ts, block_number, oracle_price, amm_price, deviation_pct, created_at
    FROM observation_samples
    WHERE bucket_ts >= $1 AND bucket_ts < $2
    ORDER BY bucket_ts;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ActionStore defines operations for the committed-action audit log.
type ActionStore interface {
	InsertActionEvent(ctx context.Context, rec domain.ActionRecord, at time.Time) (ActionEvent, error)
	ListRecentActionEvents(ctx context.Context, limit int) ([]ActionEvent, error)
}

// ObservationStore defines operations for decimated price-history
// persistence.
type ObservationStore interface {
	UpsertObservationSample(ctx context.Context, sample ObservationSample) error
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]ObservationSample, error)
}

// AdvisoryLocker exposes advisory lock helpers, used to keep at most one
// monitor instance actively submitting transactions against a shared
// protocol deployment.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the optional audit-log mirror. A nil pool (storage.dsn unset)
// makes every method a no-op returning ErrNotConfigured — the decision
// path never blocks on this.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and
// returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// best effort; the lock also expires when the connection closes
		}
		conn.Release()
	}
	return unlock, true, nil
}

// InsertActionEvent mirrors a committed ActionRecord to the audit log.
func (s *Store) InsertActionEvent(ctx context.Context, rec domain.ActionRecord, at time.Time) (ActionEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return ActionEvent{}, err
	}

	ev := actionEventFromRecord(rec, at)

	var block interface{}
	if ev.BlockIncluded != nil {
		block = *ev.BlockIncluded
	}

	row := pool.QueryRow(ctx, insertActionEventSQL,
		ev.Timestamp,
		ev.Action,
		ev.Rationale,
		ev.Success,
		ev.TxHash,
		ev.FailureReason,
		block,
		ev.DurationMS,
	)
	if scanErr := row.Scan(&ev.ID, &ev.CreatedAt); scanErr != nil {
		return ActionEvent{}, fmt.Errorf("insert action event: %w", scanErr)
	}
	return ev, nil
}

// ListRecentActionEvents lists the most recently committed actions.
func (s *Store) ListRecentActionEvents(ctx context.Context, limit int) ([]ActionEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentActionEventsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent action events: %w", queryErr)
	}
	defer rows.Close()

	events := make([]ActionEvent, 0, limit)
	for rows.Next() {
		var ev ActionEvent
		var block sql.NullInt64
		if err := rows.Scan(
			&ev.ID, &ev.Timestamp, &ev.Action, &ev.Rationale, &ev.Success,
			&ev.TxHash, &ev.FailureReason, &block, &ev.DurationMS, &ev.CreatedAt,
		); err != nil {
			return nil, err
		}
		if block.Valid {
			b := block.Int64
			ev.BlockIncluded = &b
		}
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// UpsertObservationSample persists or updates one hourly-decimated
// price-history bucket.
func (s *Store) UpsertObservationSample(ctx context.Context, sample ObservationSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertObservationSampleSQL,
		sample.Bucket,
		sample.BlockNumber,
		sample.OraclePrice.String(),
		sample.AMMPrice.String(),
		sample.DeviationPct.String(),
	)
	if execErr != nil {
		return fmt.Errorf("upsert observation sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists decimated samples within a time window.
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]ObservationSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]ObservationSample, 0)
	for rows.Next() {
		sample, scanErr := scanObservationSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanObservationSample(rows scanner) (ObservationSample, error) {
	var (
		bucket       time.Time
		blockNumber  int64
		oracleStr    string
		ammStr       string
		deviationStr string
		createdAt    time.Time
	)

	if err := rows.Scan(&bucket, &blockNumber, &oracleStr, &ammStr, &deviationStr, &createdAt); err != nil {
		return ObservationSample{}, err
	}

	oracle, err := decimal.NewFromString(oracleStr)
	if err != nil {
		return ObservationSample{}, fmt.Errorf("parse oracle price: %w", err)
	}
	amm, err := decimal.NewFromString(ammStr)
	if err != nil {
		return ObservationSample{}, fmt.Errorf("parse amm price: %w", err)
	}
	deviation, err := decimal.NewFromString(deviationStr)
	if err != nil {
		return ObservationSample{}, fmt.Errorf("parse deviation pct: %w", err)
	}

	return ObservationSample{
		Bucket:       bucket,
		BlockNumber:  blockNumber,
		OraclePrice:  oracle,
		AMMPrice:     amm,
		DeviationPct: deviation,
		CreatedAt:    createdAt,
	}, nil
}
