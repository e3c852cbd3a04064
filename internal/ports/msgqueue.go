package ports

import (
	"context"

	"github.com/JakeHuneau/wazuh-agent/internal/domain"
)

// MessageQueue is the in-memory, per-kind FIFO feeding the network
// side. Implementations must be safe for concurrent use by multiple
// producers and up to two consumers per lane (the stateful/stateless
// request loops on their own lanes, the command dispatcher on the
// COMMAND lane).
type MessageQueue interface {
	// Push enqueues messages and returns the number accepted.
	Push(msgs ...domain.Message) int

	// IsEmpty reports whether kind's lane currently holds no messages.
	IsEmpty(kind domain.MessageKind) bool

	// GetNext peeks the oldest message of kind without removing it. The
	// second return value is false if the lane is empty.
	GetNext(kind domain.MessageKind) (domain.Message, bool)

	// GetNextN cooperatively waits until at least one message of kind
	// is available, or ctx is done, then returns up to n oldest
	// messages without removing them.
	GetNextN(ctx context.Context, kind domain.MessageKind, n int) ([]domain.Message, error)

	// PopN removes up to n oldest messages of kind and returns the
	// number actually removed.
	PopN(kind domain.MessageKind, n int) int
}
