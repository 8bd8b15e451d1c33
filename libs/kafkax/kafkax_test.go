package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestEventMetaRoundTrip(t *testing.T) {
	msg := kafka.Message{Topic: "t", Key: []byte("k"), Headers: EventMeta{EventID: "e1", EventType: "x.v1"}.Headers()}
	got := ExtractEventMeta(msg)
	if got.EventID != "e1" || got.EventType != "x.v1" {
		t.Fatalf("unexpected meta %+v", got)
	}
	if fallback := ExtractEventMeta(kafka.Message{Topic: "t", Key: []byte("k")}); fallback.EventID != "k" || fallback.EventType != "t" {
		t.Fatalf("unexpected fallback %+v", fallback)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092,")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}

func TestInjectTraceHeadersAppends(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	carrier := &headerCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	if carrier.Get("traceparent") == "" {
		t.Fatal("expected traceparent to be set on the carrier")
	}
	extracted := trace.SpanContextFromContext(propagation.TraceContext{}.Extract(context.Background(), carrier))
	if extracted.TraceID() != sc.TraceID() {
		t.Fatalf("trace id mismatch: %s", extracted.TraceID())
	}
}
