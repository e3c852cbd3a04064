// Package msgqueue implements the in-memory typed multi-queue:
// one FIFO lane per domain.MessageKind, generalized from the teacher's
// single-lane MemQueue (internal/adapters/queue/memqueue.go).
package msgqueue

import (
	"context"
	"sync"

	"github.com/JakeHuneau/wazuh-agent/internal/domain"
)

type lane struct {
	mu     sync.Mutex
	data   []domain.Message
	notify chan struct{} // closed and replaced whenever data becomes non-empty
}

func newLane() *lane {
	return &lane{notify: make(chan struct{})}
}

// MemQueue is the default MessageQueue implementation: a set of
// unbounded FIFO lanes, one per kind (created on first use for kinds
// other than the three well-known ones), guarded by per-lane mutexes,
// safe for multiple producers and up to two consumers per lane.
type MemQueue struct {
	mu    sync.Mutex
	lanes map[domain.MessageKind]*lane
}

// NewMemQueue constructs an empty queue with a lane for each of the
// three well-known kinds pre-created, so callers never race on
// first-touch lane creation.
func NewMemQueue() *MemQueue {
	q := &MemQueue{lanes: make(map[domain.MessageKind]*lane, 3)}
	for _, k := range []domain.MessageKind{domain.KindStateful, domain.KindStateless, domain.KindCommand} {
		q.lanes[k] = newLane()
	}
	return q
}

func (q *MemQueue) laneFor(kind domain.MessageKind) *lane {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.lanes[kind]
	if !ok {
		l = newLane()
		q.lanes[kind] = l
	}
	return l
}

func (q *MemQueue) Push(msgs ...domain.Message) int {
	if len(msgs) == 0 {
		return 0
	}

	byKind := make(map[domain.MessageKind][]domain.Message, 3)
	for _, m := range msgs {
		byKind[m.Kind] = append(byKind[m.Kind], m)
	}

	var accepted int
	for kind, group := range byKind {
		l := q.laneFor(kind)
		l.mu.Lock()
		wasEmpty := len(l.data) == 0
		l.data = append(l.data, group...)
		if wasEmpty && len(l.data) > 0 {
			close(l.notify)
			l.notify = make(chan struct{})
		}
		l.mu.Unlock()
		accepted += len(group)
	}
	return accepted
}

func (q *MemQueue) IsEmpty(kind domain.MessageKind) bool {
	l := q.laneFor(kind)
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.data) == 0
}

func (q *MemQueue) GetNext(kind domain.MessageKind) (domain.Message, bool) {
	l := q.laneFor(kind)
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.data) == 0 {
		return domain.Message{}, false
	}
	return l.data[0], true
}

// GetNextN cooperatively waits for at least one message of kind, then
// peeks up to n oldest without removing them. Cancellation via ctx is
// a normal, non-error early return path for the caller's loop, but is
// still surfaced as ctx.Err() so callers can distinguish "cancelled"
// from "got data".
func (q *MemQueue) GetNextN(ctx context.Context, kind domain.MessageKind, n int) ([]domain.Message, error) {
	l := q.laneFor(kind)
	for {
		l.mu.Lock()
		if len(l.data) > 0 {
			if n <= 0 || n > len(l.data) {
				n = len(l.data)
			}
			out := make([]domain.Message, n)
			copy(out, l.data[:n])
			l.mu.Unlock()
			return out, nil
		}
		waitCh := l.notify
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-waitCh:
		}
	}
}

func (q *MemQueue) PopN(kind domain.MessageKind, n int) int {
	l := q.laneFor(kind)
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.data) == 0 || n <= 0 {
		return 0
	}
	if n > len(l.data) {
		n = len(l.data)
	}
	l.data = append(l.data[:0], l.data[n:]...)
	return n
}
