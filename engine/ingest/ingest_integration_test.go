//go:build integration

package ingest

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/congress-qa/pkg/natsutil"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestConsumer_EndToEnd(t *testing.T) {
	nc, err := nats.Connect(envOr("NATS_URL", nats.DefaultURL))
	if err != nil {
		t.Fatalf("nats connect: %v", err)
	}
	defer nc.Close()

	r, vs := newReindexer(seeded(), &mockEmbedder{})
	sub, err := StartConsumer(nc, r)
	if err != nil {
		t.Fatalf("StartConsumer: %v", err)
	}
	defer sub.Unsubscribe()

	done := make(chan ProgressEvent, 1)
	psub, err := nc.Subscribe(ProgressSubject, func(m *nats.Msg) {
		var ev ProgressEvent
		if json.Unmarshal(m.Data, &ev) == nil && ev.Done {
			done <- ev
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer psub.Unsubscribe()

	if err := natsutil.Publish(context.Background(), nc, ReindexSubject, Request{PageSize: 2}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case ev := <-done:
		if ev.Error != "" || ev.Success != 5 {
			t.Fatalf("unexpected final event: %+v", ev)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for reindex")
	}
	if vs.Len() != 5 {
		t.Errorf("expected 5 vectors, got %d", vs.Len())
	}
}
