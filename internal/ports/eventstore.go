package ports

import (
	"context"
	"errors"

	"github.com/JakeHuneau/wazuh-agent/internal/domain"
)

// ErrDuplicateID is returned by Insert when the id already exists in
// the store.
var ErrDuplicateID = errors.New("eventstore: duplicate id")

// EventStore is the durable, ordered store backing the
// PersistentEventQueue. Implementations must make FetchAndMarkPending
// atomic with respect to concurrent callers: no two callers may ever
// observe the same event transitioned to StatusProcessing.
type EventStore interface {
	// Create idempotently ensures the schema exists and resets any
	// event left in StatusProcessing back to StatusPending (crash
	// recovery).
	Create(ctx context.Context) error

	// Insert records a new pending event. Returns ErrDuplicateID if id
	// already exists.
	Insert(ctx context.Context, id uint64, payload []byte, typ string) error

	// PendingCount returns the exact number of pending events.
	PendingCount(ctx context.Context) (int, error)

	// FetchAndMarkPending selects up to limit oldest pending events,
	// atomically transitions them to StatusProcessing, and returns
	// them in insertion order. May return fewer than limit, including
	// zero.
	FetchAndMarkPending(ctx context.Context, limit int) ([]domain.Event, error)

	// UpdateStatus transitions the listed ids from StatusProcessing to
	// newStatus. Unknown ids are ignored.
	UpdateStatus(ctx context.Context, ids []uint64, newStatus domain.Status) error

	// DeleteByStatus removes all events currently in the given status.
	DeleteByStatus(ctx context.Context, status domain.Status) error
}
