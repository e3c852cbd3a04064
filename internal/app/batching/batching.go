// Package batching implements the bodyProducer shared by the stateful
// and stateless RequestLoops: it drains a MessageQueue lane into the
// newline-delimited framed body spec.md §4.H describes, bounded by a
// configured byte budget.
package batching

import (
	"context"
	"encoding/json"

	"github.com/JakeHuneau/wazuh-agent/internal/domain"
	"github.com/JakeHuneau/wazuh-agent/internal/ports"
)

// Queue is the subset of msgqueue.MemQueue the Producer needs.
type Queue interface {
	GetNextN(ctx context.Context, kind domain.MessageKind, n int) ([]domain.Message, error)
	PopN(kind domain.MessageKind, n int) int
}

// Producer builds request bodies for one MessageKind lane.
type Producer struct {
	queue       Queue
	kind        domain.MessageKind
	agentInfo   ports.AgentInfoProvider
	maxBytes    int
	lastDrained int
}

// NewProducer returns a Producer draining kind, framing each batch
// with agentInfo's global-metadata snapshot, bounded by maxBytes.
func NewProducer(queue Queue, kind domain.MessageKind, agentInfo ports.AgentInfoProvider, maxBytes int) *Producer {
	return &Producer{queue: queue, kind: kind, agentInfo: agentInfo, maxBytes: maxBytes}
}

// allAvailable is passed to GetNextN to mean "as many as are currently
// queued" — GetNextN blocks until at least one message is available,
// then returns up to this many without removing them.
const allAvailable = 1 << 30

// Produce implements ports.BodyProducerFunc: it cooperatively waits
// for at least one message, then bounds how many of those already-
// available messages it frames so the payload stays within maxBytes.
// When even the oldest message alone does not fit, it is framed and
// sent on its own, and that body is larger than maxBytes.
func (p *Producer) Produce(ctx context.Context) ([]byte, error) {
	msgs, err := p.queue.GetNextN(ctx, p.kind, allAvailable)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		p.lastDrained = 0
		return nil, nil
	}

	globalMeta, err := json.Marshal(p.agentInfo.Snapshot())
	if err != nil {
		return nil, err
	}
	moduleMeta := []byte(msgs[0].Metadata)
	if len(moduleMeta) == 0 {
		moduleMeta = []byte("{}")
	}

	count := p.boundedCount(msgs, globalMeta, moduleMeta)
	if count == 0 {
		count = 1 // always send at least the one message GetNextN guaranteed
	}

	frame, err := frameBody(globalMeta, moduleMeta, msgs[:count])
	if err != nil {
		return nil, err
	}

	p.lastDrained = count
	return frame, nil
}

// boundedCount returns, trying from len(msgs) downwards, the length of
// the largest prefix of msgs whose framed payload fits within
// maxBytes, or 0 when none does. msgs is the already-peeked batch;
// this never asks the queue for more messages.
func (p *Producer) boundedCount(msgs []domain.Message, globalMeta, moduleMeta []byte) int {
	if p.maxBytes <= 0 {
		return len(msgs)
	}
	for n := len(msgs); n >= 1; n-- {
		frame, err := frameBody(globalMeta, moduleMeta, msgs[:n])
		if err == nil && len(frame) <= p.maxBytes {
			return n
		}
	}
	return 0
}

func frameBody(globalMeta, moduleMeta []byte, msgs []domain.Message) ([]byte, error) {
	data := make([]string, 0, len(msgs))
	for _, m := range msgs {
		data = append(data, m.Data...)
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(globalMeta)+len(moduleMeta)+len(dataJSON)+2)
	out = append(out, globalMeta...)
	out = append(out, '\n')
	out = append(out, moduleMeta...)
	out = append(out, '\n')
	out = append(out, dataJSON...)
	return out, nil
}

// PopDrained removes exactly the messages the most recent Produce call
// framed into a body — nothing fewer, nothing more — per spec.md
// §4.H's pop-on-success contract.
func (p *Producer) PopDrained() {
	if p.lastDrained <= 0 {
		return
	}
	p.queue.PopN(p.kind, p.lastDrained)
	p.lastDrained = 0
}
