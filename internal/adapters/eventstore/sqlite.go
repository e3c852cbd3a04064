package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/JakeHuneau/wazuh-agent/internal/domain"
	"github.com/JakeHuneau/wazuh-agent/internal/ports"
)

// SQLiteEventStore is the embedded PersistentEventQueue variant: a
// pure-Go SQLite engine (modernc.org/sqlite, no cgo), for single-binary
// agent deployments with no external database. Grounded on
// bureau-foundation-bureau's sqlitepool package for the pure-Go
// embeddable SQL engine pattern, adapted here to the plain
// database/sql surface so it can share scanEvents/idsIn with
// PostgresEventStore.
type SQLiteEventStore struct {
	db    *sql.DB
	table string
}

// NewSQLiteEventStore wraps an already-open *sql.DB (driver "sqlite").
// Callers typically open it with sql.Open("sqlite", "file:path.db?_pragma=busy_timeout(5000)").
func NewSQLiteEventStore(db *sql.DB, table string) *SQLiteEventStore {
	if table == "" {
		table = defaultTable
	}
	return &SQLiteEventStore{db: db, table: table}
}

func sqlitePlaceholder(int) string { return "?" }

func (s *SQLiteEventStore) Create(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY,
		payload BLOB NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("eventstore: create table: %w", err)
	}
	return s.recoverProcessing(ctx)
}

func (s *SQLiteEventStore) recoverProcessing(ctx context.Context) error {
	q := fmt.Sprintf(`UPDATE %s SET status = ? WHERE status = ?`, s.table)
	_, err := s.db.ExecContext(ctx, q, string(domain.StatusPending), string(domain.StatusProcessing))
	if err != nil {
		return fmt.Errorf("eventstore: recover processing: %w", err)
	}
	return nil
}

func (s *SQLiteEventStore) Insert(ctx context.Context, id uint64, payload []byte, typ string) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, payload, type, status) VALUES (?, ?, ?, ?)`, s.table)
	_, err := s.db.ExecContext(ctx, q, id, payload, typ, string(domain.StatusPending))
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ports.ErrDuplicateID
		}
		return fmt.Errorf("eventstore: insert: %w", err)
	}
	return nil
}

func (s *SQLiteEventStore) PendingCount(ctx context.Context) (int, error) {
	q := fmt.Sprintf(`SELECT count(*) FROM %s WHERE status = ?`, s.table)
	var n int
	if err := s.db.QueryRowContext(ctx, q, string(domain.StatusPending)).Scan(&n); err != nil {
		return 0, fmt.Errorf("eventstore: pending count: %w", err)
	}
	return n, nil
}

// FetchAndMarkPending runs inside a single BEGIN IMMEDIATE transaction
// held on one dedicated connection (via sql.Conn — a plain *sql.DB
// ExecContext call would return its connection to the pool between
// statements, letting a second caller's statements interleave on a
// different connection and defeating the lock entirely): SQLite only
// ever allows one writer, so taking the write lock up front (rather
// than at first write) is what gives two concurrent callers the same
// exclusion FOR UPDATE SKIP LOCKED gives Postgres (spec.md §8
// invariant 3).
func (s *SQLiteEventStore) FetchAndMarkPending(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		return nil, nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("eventstore: acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, fmt.Errorf("eventstore: begin immediate: %w", err)
	}
	events, err := s.fetchAndMarkPendingLocked(ctx, conn, limit)
	if err != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, fmt.Errorf("eventstore: commit: %w", err)
	}
	return events, nil
}

func (s *SQLiteEventStore) fetchAndMarkPendingLocked(ctx context.Context, conn *sql.Conn, limit int) ([]domain.Event, error) {
	selQ := fmt.Sprintf(`SELECT id FROM %s WHERE status = ? ORDER BY id ASC LIMIT ?`, s.table)
	rows, err := conn.QueryContext(ctx, selQ, string(domain.StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("eventstore: select pending: %w", err)
	}
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("eventstore: scan pending id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}

	inClause, args := idsIn(ids, sqlitePlaceholder)
	updQ := fmt.Sprintf(`UPDATE %s SET status = ? WHERE id IN (%s)`, s.table, inClause)
	if _, err := conn.ExecContext(ctx, updQ, append([]any{string(domain.StatusProcessing)}, args...)...); err != nil {
		return nil, fmt.Errorf("eventstore: mark processing: %w", err)
	}

	selFullQ := fmt.Sprintf(`SELECT id, payload, type, status, created_at FROM %s WHERE id IN (%s) ORDER BY id ASC`, s.table, inClause)
	full, err := conn.QueryContext(ctx, selFullQ, args...)
	if err != nil {
		return nil, fmt.Errorf("eventstore: reselect marked: %w", err)
	}
	return scanEvents(full)
}

func (s *SQLiteEventStore) UpdateStatus(ctx context.Context, ids []uint64, newStatus domain.Status) error {
	if len(ids) == 0 {
		return nil
	}
	inClause, args := idsIn(ids, sqlitePlaceholder)
	args = append([]any{string(newStatus), string(domain.StatusProcessing)}, args...)
	q := fmt.Sprintf(`UPDATE %s SET status = ? WHERE status = ? AND id IN (%s)`, s.table, inClause)
	_, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("eventstore: update status: %w", err)
	}
	return nil
}

func (s *SQLiteEventStore) DeleteByStatus(ctx context.Context, status domain.Status) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE status = ?`, s.table)
	_, err := s.db.ExecContext(ctx, q, string(status))
	if err != nil {
		return fmt.Errorf("eventstore: delete by status: %w", err)
	}
	return nil
}

func isSQLiteUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "constraint failed: UNIQUE")
}

var _ ports.EventStore = (*SQLiteEventStore)(nil)
