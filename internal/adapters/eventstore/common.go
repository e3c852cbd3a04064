// Package eventstore implements the two PersistentEventQueue variants
// spec.md calls for: an embedded, pure-Go SQLite-backed store and a
// Postgres-backed store for deployments with a shared manager-side
// database. Both share the same schema and satisfy ports.EventStore.
package eventstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/JakeHuneau/wazuh-agent/internal/domain"
)

const defaultTable = "events"

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			e         domain.Event
			status    string
			createdAt time.Time
		)
		if err := rows.Scan(&e.ID, &e.Payload, &e.Type, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("eventstore: scan row: %w", err)
		}
		e.Status = domain.Status(status)
		e.CreatedAt = createdAt
		out = append(out, e)
	}
	return out, rows.Err()
}

// idsIn renders one placeholder per id, joined by commas ("?,?,?" or
// "$1,$2,$3", depending on placeholder, which receives 1-based
// positions), and the matching argument slice for an IN (...) clause.
func idsIn(ids []uint64, placeholder func(n int) string) (string, []any) {
	parts := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		parts[i] = placeholder(i + 1)
		args[i] = id
	}
	return strings.Join(parts, ","), args
}
