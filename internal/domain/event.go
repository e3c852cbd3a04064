package domain

import "time"

// Status is one of the three states an Event can occupy in the
// PersistentEventQueue. Transitions form a DAG: Pending -> Processing
// -> (Dispatched | Pending).
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDispatched Status = "dispatched"
)

// Event is a single durable unit in the PersistentEventQueue. Ids are
// monotonic and unique within a store; once written they are never
// reused.
type Event struct {
	ID        uint64
	Payload   []byte
	Type      string
	Status    Status
	CreatedAt time.Time
}
