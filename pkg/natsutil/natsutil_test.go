package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type testMsg struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type capture struct {
	msgs []*nats.Msg
	err  error
}

func (c *capture) PublishMsg(msg *nats.Msg) error {
	c.msgs = append(c.msgs, msg)
	return c.err
}

func TestNatsHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)

	carrier.Set("traceparent", "00-abc-def-01")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("expected traceparent, got %q", got)
	}

	keys := carrier.Keys()
	if len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestNatsHeaderCarrierNilHeader(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)

	if got := carrier.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if keys := carrier.Keys(); keys != nil {
		t.Fatalf("expected nil keys, got %v", keys)
	}
}

func TestPublishSerializesJSON(t *testing.T) {
	var c capture
	if err := Publish(context.Background(), &c, "test.subject", testMsg{Name: "test", Value: 42}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(c.msgs) != 1 || c.msgs[0].Subject != "test.subject" {
		t.Fatalf("unexpected messages: %+v", c.msgs)
	}
	var decoded testMsg
	if err := json.Unmarshal(c.msgs[0].Data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Name != "test" || decoded.Value != 42 {
		t.Fatalf("unexpected: %+v", decoded)
	}
}

func TestPublishReturnsPublisherError(t *testing.T) {
	c := capture{err: nats.ErrConnectionClosed}
	if err := Publish(context.Background(), &c, "x", testMsg{}); !errors.Is(err, nats.ErrConnectionClosed) {
		t.Fatalf("expected connection closed, got %v", err)
	}
}

func TestPublishRejectsUnencodable(t *testing.T) {
	var c capture
	if err := Publish(context.Background(), &c, "x", func() {}); err == nil {
		t.Fatal("expected marshal error")
	}
	if len(c.msgs) != 0 {
		t.Fatal("nothing should be published")
	}
}

func TestTraceContextRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))

	msg, err := NewMsg(ctx, "x", testMsg{Name: "traced"})
	if err != nil {
		t.Fatalf("NewMsg: %v", err)
	}
	if msg.Header.Get("traceparent") == "" {
		t.Fatal("expected traceparent header")
	}
	got := trace.SpanContextFromContext(Context(msg))
	if got.TraceID() != traceID {
		t.Fatalf("trace id = %s, want %s", got.TraceID(), traceID)
	}
}
