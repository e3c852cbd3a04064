package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/JakeHuneau/wazuh-agent/internal/domain"
	"github.com/JakeHuneau/wazuh-agent/internal/ports"
)

// PostgresEventStore is the relational PersistentEventQueue variant,
// grounded on the teacher's database/sql + lib/pq sink adapter
// (internal/adapters/sink/timescale_sink.go) but reworked from an
// append-only insert sink into the full pending/processing/dispatched
// state machine spec.md §4.A requires.
type PostgresEventStore struct {
	db    *sql.DB
	table string
}

// NewPostgresEventStore wraps an already-open *sql.DB (driver
// "postgres").
func NewPostgresEventStore(db *sql.DB, table string) *PostgresEventStore {
	if table == "" {
		table = defaultTable
	}
	return &PostgresEventStore{db: db, table: table}
}

func pgPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

func (s *PostgresEventStore) Create(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGINT PRIMARY KEY,
		payload BYTEA NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("eventstore: create table: %w", err)
	}
	return s.recoverProcessing(ctx)
}

// recoverProcessing is the startup recovery step: any event left in
// StatusProcessing belonged to a worker that never finished, so it is
// reset to StatusPending (spec.md §3, §8 invariant 2).
func (s *PostgresEventStore) recoverProcessing(ctx context.Context) error {
	q := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE status = $2`, s.table)
	_, err := s.db.ExecContext(ctx, q, string(domain.StatusPending), string(domain.StatusProcessing))
	if err != nil {
		return fmt.Errorf("eventstore: recover processing: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) Insert(ctx context.Context, id uint64, payload []byte, typ string) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, payload, type, status) VALUES ($1, $2, $3, $4)`, s.table)
	_, err := s.db.ExecContext(ctx, q, id, payload, typ, string(domain.StatusPending))
	if err != nil {
		if isPgUniqueViolation(err) {
			return ports.ErrDuplicateID
		}
		return fmt.Errorf("eventstore: insert: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) PendingCount(ctx context.Context) (int, error) {
	q := fmt.Sprintf(`SELECT count(*) FROM %s WHERE status = $1`, s.table)
	var n int
	if err := s.db.QueryRowContext(ctx, q, string(domain.StatusPending)).Scan(&n); err != nil {
		return 0, fmt.Errorf("eventstore: pending count: %w", err)
	}
	return n, nil
}

// FetchAndMarkPending selects and transitions in a single statement
// using FOR UPDATE SKIP LOCKED, so two concurrent callers never select
// the same row (spec.md §8 invariant 3). The updated rows are returned
// ordered by id.
func (s *PostgresEventStore) FetchAndMarkPending(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`
		WITH sel AS (
			SELECT id FROM %[1]s
			WHERE status = $1
			ORDER BY id ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		, upd AS (
			UPDATE %[1]s SET status = $3
			WHERE id IN (SELECT id FROM sel)
			RETURNING id, payload, type, status, created_at
		)
		SELECT id, payload, type, status, created_at FROM upd ORDER BY id ASC
	`, s.table)
	rows, err := s.db.QueryContext(ctx, q, string(domain.StatusPending), limit, string(domain.StatusProcessing))
	if err != nil {
		return nil, fmt.Errorf("eventstore: fetch and mark pending: %w", err)
	}
	return scanEvents(rows)
}

func (s *PostgresEventStore) UpdateStatus(ctx context.Context, ids []uint64, newStatus domain.Status) error {
	if len(ids) == 0 {
		return nil
	}
	inClause, args := idsIn(ids, func(n int) string { return pgPlaceholder(n + 2) })
	args = append([]any{string(newStatus), string(domain.StatusProcessing)}, args...)
	q := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE status = $2 AND id IN (%s)`, s.table, inClause)
	_, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("eventstore: update status: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) DeleteByStatus(ctx context.Context, status domain.Status) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE status = $1`, s.table)
	_, err := s.db.ExecContext(ctx, q, string(status))
	if err != nil {
		return fmt.Errorf("eventstore: delete by status: %w", err)
	}
	return nil
}

// pgUniqueViolation is SQLSTATE 23505, the code Postgres raises on a
// primary-key or unique-index conflict.
const pgUniqueViolation = "23505"

func isPgUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return false
}

var _ ports.EventStore = (*PostgresEventStore)(nil)
