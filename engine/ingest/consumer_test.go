package ingest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
)

type capturePublisher struct {
	mu   sync.Mutex
	msgs []*nats.Msg
}

func (c *capturePublisher) PublishMsg(msg *nats.Msg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *capturePublisher) on(subject string) []*nats.Msg {
	var out []*nats.Msg
	for _, m := range c.msgs {
		if m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}

func newConsumer(r *Reindexer) (*consumer, *capturePublisher) {
	pub := &capturePublisher{}
	return &consumer{pub: pub, r: r, logger: slog.Default()}, pub
}

func trigger(t *testing.T, req Request, retries string) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	msg := nats.NewMsg(ReindexSubject)
	msg.Data = data
	if retries != "" {
		msg.Header.Set(RetryHeader, retries)
	}
	return msg
}

func TestConsumer_PublishesProgress(t *testing.T) {
	r, _ := newReindexer(seeded(), &mockEmbedder{})
	c, pub := newConsumer(r)

	c.handle(trigger(t, Request{PageSize: 2}, ""))

	events := pub.on(ProgressSubject)
	if len(events) < 2 {
		t.Fatalf("expected page and final events, got %d", len(events))
	}
	var last ProgressEvent
	if err := json.Unmarshal(events[len(events)-1].Data, &last); err != nil {
		t.Fatal(err)
	}
	if !last.Done || last.Processed != 5 || last.Success != 5 || last.RunID == "" {
		t.Errorf("final event = %+v", last)
	}
	if len(pub.on(ReindexSubject)) != 0 || len(pub.on(DLQSubject)) != 0 {
		t.Error("successful run should not retry")
	}
}

func TestConsumer_RetriesWithHeader(t *testing.T) {
	store := seeded()
	store.SetFailure(errors.New("connection reset"))
	r, _ := newReindexer(store, &mockEmbedder{})
	c, pub := newConsumer(r)

	c.handle(trigger(t, Request{}, ""))

	retries := pub.on(ReindexSubject)
	if len(retries) != 1 {
		t.Fatalf("expected one retry, got %d", len(retries))
	}
	if got := retries[0].Header.Get(RetryHeader); got != "1" {
		t.Errorf("retry header = %q", got)
	}
	var last ProgressEvent
	events := pub.on(ProgressSubject)
	if err := json.Unmarshal(events[len(events)-1].Data, &last); err != nil {
		t.Fatal(err)
	}
	if !last.Done || last.Error == "" {
		t.Errorf("final event = %+v", last)
	}
}

func TestConsumer_DeadLettersAfterMaxRetries(t *testing.T) {
	store := seeded()
	store.SetFailure(errors.New("connection reset"))
	r, _ := newReindexer(store, &mockEmbedder{})
	c, pub := newConsumer(r)

	c.handle(trigger(t, Request{Fingerprints: false, PageSize: 10}, "2"))

	if len(pub.on(ReindexSubject)) != 0 {
		t.Error("should not retry past MaxRetries")
	}
	dlq := pub.on(DLQSubject)
	if len(dlq) != 1 {
		t.Fatalf("expected one DLQ message, got %d", len(dlq))
	}
	var dm dlqMessage
	if err := json.Unmarshal(dlq[0].Data, &dm); err != nil {
		t.Fatal(err)
	}
	if dm.Retries != MaxRetries || dm.Request.PageSize != 10 || dm.Error == "" {
		t.Errorf("dlq message = %+v", dm)
	}
}

func TestConsumer_DropsMalformed(t *testing.T) {
	r, _ := newReindexer(seeded(), &mockEmbedder{})
	c, pub := newConsumer(r)

	msg := nats.NewMsg(ReindexSubject)
	msg.Data = []byte("{not json")
	c.handle(msg)

	if len(pub.msgs) != 0 {
		t.Errorf("expected nothing published, got %d", len(pub.msgs))
	}
}
