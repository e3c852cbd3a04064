package batching

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/JakeHuneau/wazuh-agent/internal/adapters/agentinfo"
	"github.com/JakeHuneau/wazuh-agent/internal/adapters/msgqueue"
	"github.com/JakeHuneau/wazuh-agent/internal/domain"
)

func TestProducerFramesSingleMessage(t *testing.T) {
	q := msgqueue.NewMemQueue()
	q.Push(domain.Message{Kind: domain.KindStateful, Data: []string{"hello"}, Metadata: `{"id":1}`})

	info := agentinfo.StaticAgentInfo{"agent_id": "abc"}
	p := NewProducer(q, domain.KindStateful, info, 0)

	body, err := p.Produce(context.Background())
	if err != nil {
		t.Fatalf("produce: %v", err)
	}

	lines := strings.SplitN(string(body), "\n", 3)
	if len(lines) != 3 {
		t.Fatalf("expected 3 framed lines, got %d: %q", len(lines), body)
	}

	var global map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &global); err != nil {
		t.Fatalf("global metadata not valid json: %v", err)
	}
	if global["agent_id"] != "abc" {
		t.Fatalf("unexpected global metadata: %+v", global)
	}

	var moduleMeta map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &moduleMeta); err != nil {
		t.Fatalf("module metadata not valid json: %v", err)
	}
	if moduleMeta["id"] != float64(1) {
		t.Fatalf("unexpected module metadata: %+v", moduleMeta)
	}

	var data []string
	if err := json.Unmarshal([]byte(lines[2]), &data); err != nil {
		t.Fatalf("data array not valid json: %v", err)
	}
	if len(data) != 1 || data[0] != "hello" {
		t.Fatalf("unexpected data array: %+v", data)
	}
}

func TestProducerPopDrainedRemovesExactlyFramedMessages(t *testing.T) {
	q := msgqueue.NewMemQueue()
	q.Push(
		domain.Message{Kind: domain.KindStateless, Data: []string{"a"}, Metadata: "{}"},
		domain.Message{Kind: domain.KindStateless, Data: []string{"b"}, Metadata: "{}"},
		domain.Message{Kind: domain.KindStateless, Data: []string{"c"}, Metadata: "{}"},
	)

	info := agentinfo.StaticAgentInfo{}
	p := NewProducer(q, domain.KindStateless, info, 0)

	if _, err := p.Produce(context.Background()); err != nil {
		t.Fatalf("produce: %v", err)
	}
	p.PopDrained()

	if !q.IsEmpty(domain.KindStateless) {
		t.Fatalf("expected all 3 messages popped, lane still has data")
	}
}

func TestProducerBoundsByMaxBytes(t *testing.T) {
	q := msgqueue.NewMemQueue()
	q.Push(
		domain.Message{Kind: domain.KindStateful, Data: []string{"aaaaaaaaaa"}, Metadata: "{}"},
		domain.Message{Kind: domain.KindStateful, Data: []string{"bbbbbbbbbb"}, Metadata: "{}"},
		domain.Message{Kind: domain.KindStateful, Data: []string{"cccccccccc"}, Metadata: "{}"},
	)

	info := agentinfo.StaticAgentInfo{}
	// A tight budget that can only fit the metadata lines plus one
	// short data array.
	p := NewProducer(q, domain.KindStateful, info, 40)

	body, err := p.Produce(context.Background())
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if len(body) > 40 {
		t.Fatalf("expected framed body within budget, got %d bytes: %q", len(body), body)
	}
	p.PopDrained()

	if q.IsEmpty(domain.KindStateful) {
		t.Fatalf("expected some messages to remain unpopped under a tight byte budget")
	}
}
