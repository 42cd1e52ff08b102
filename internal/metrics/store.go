package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"one-plate/internal/optimistic"
)

// MutationMetric records the outcome of one dispatched mutation.
type MutationMetric struct {
	Store     string
	Op        string
	Outcome   string
	ErrorKind string
	LatencyMS int64
	Timestamp time.Time
}

// FromOutcome converts a dispatcher outcome.
func FromOutcome(o optimistic.Outcome) MutationMetric {
	m := MutationMetric{
		Store:     o.Store,
		Op:        o.Op,
		Outcome:   o.State.String(),
		LatencyMS: o.Latency.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
	if o.Err != nil {
		m.ErrorKind = o.Kind.String()
	}
	return m
}

// Store handles persistence of metrics to SQLite.
type Store struct {
	db *sql.DB

	once    sync.Once
	pending chan MutationMetric
	done    chan struct{}
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record saves a metric to the database.
func (s *Store) Record(ctx context.Context, m MutationMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mutation_metrics (store, op, outcome, error_kind, latency_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.Store, m.Op, m.Outcome, m.ErrorKind, m.LatencyMS, ts)
	if err != nil {
		return fmt.Errorf("failed to insert mutation metric: %w", err)
	}
	return nil
}

// Observer returns a dispatcher observer that records outcomes in the
// background. Outcomes are dropped if the writer falls behind.
func (s *Store) Observer() optimistic.Observer {
	s.once.Do(func() {
		s.pending = make(chan MutationMetric, 256)
		s.done = make(chan struct{})
		go s.drain()
	})
	return func(o optimistic.Outcome) {
		select {
		case s.pending <- FromOutcome(o):
		default:
			slog.Warn("metrics buffer full, dropping outcome", "store", o.Store, "op", o.Op)
		}
	}
}

func (s *Store) drain() {
	defer close(s.done)
	for m := range s.pending {
		if err := s.Record(context.Background(), m); err != nil {
			slog.Warn("failed to record mutation metric", "error", err)
		}
	}
}

// Close flushes buffered outcomes. Observers must not be called afterwards.
// The database itself is owned by the caller.
func (s *Store) Close() error {
	if s.pending != nil {
		close(s.pending)
		<-s.done
	}
	return nil
}

// OpSummary aggregates outcomes for one store operation.
type OpSummary struct {
	Store        string
	Op           string
	Confirmed    int
	RolledBack   int
	AvgLatencyMS int64
}

// Summary aggregates outcomes of the last N days.
func (s *Store) Summary(ctx context.Context, days int) ([]OpSummary, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.db.QueryContext(ctx, `
		SELECT store, op,
		       SUM(CASE WHEN outcome = 'confirmed' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN outcome = 'rolled_back' THEN 1 ELSE 0 END),
		       CAST(AVG(latency_ms) AS INTEGER)
		FROM mutation_metrics
		WHERE timestamp >= ?
		GROUP BY store, op
		ORDER BY store, op`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query mutation metrics: %w", err)
	}
	defer rows.Close()

	var results []OpSummary
	for rows.Next() {
		var u OpSummary
		if err := rows.Scan(&u.Store, &u.Op, &u.Confirmed, &u.RolledBack, &u.AvgLatencyMS); err != nil {
			return nil, fmt.Errorf("failed to scan mutation metric: %w", err)
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// Cleanup removes records older than the specified number of days.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	threshold := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM mutation_metrics WHERE timestamp < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up mutation metrics: %w", err)
	}
	return res.RowsAffected()
}
