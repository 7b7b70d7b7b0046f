package kafkax

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka:9092, ,kafka2:9092 ")
	if len(got) != 2 || got[0] != "kafka:9092" || got[1] != "kafka2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}

func TestReadyCheck_ReportsEveryUnreachableBroker(t *testing.T) {
	if err := ReadyCheck(" , ")(context.Background()); err == nil {
		t.Fatalf("expected an error without brokers")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := ReadyCheck("127.0.0.1:1,127.0.0.1:2")(ctx)
	if err == nil {
		t.Fatalf("expected an error for unreachable brokers")
	}
	if msg := err.Error(); !strings.Contains(msg, "127.0.0.1:1") || !strings.Contains(msg, "127.0.0.1:2") {
		t.Fatalf("expected both brokers in %q", msg)
	}
}

func TestTopic(t *testing.T) {
	if got := Topic("slotbook.", "booking.cancelled"); got != "slotbook.booking.cancelled" {
		t.Fatalf("unexpected topic %q", got)
	}
	if got := Topic("", "booking.cancelled"); got != "booking.cancelled" {
		t.Fatalf("unexpected topic %q", got)
	}
}

func TestInjectTraceHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: "kind", Value: []byte("booking.confirmed")}})
	var found bool
	for _, h := range headers {
		if h.Key == "traceparent" {
			found = true
		}
	}
	if !found || len(headers) != 2 {
		t.Fatalf("expected traceparent header, got %+v", headers)
	}
}
