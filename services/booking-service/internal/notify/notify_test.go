package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaNotifier_Notify(t *testing.T) {
	w := &fakeWriter{}
	n := newKafkaNotifier(w, "slotbook", slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	n.now = func() time.Time { return time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC) }

	if err := n.Notify(context.Background(), KindBookingConfirmed, "ada@example.com", map[string]string{"booking_id": "b1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != "slotbook.booking.confirmed" || string(msg.Key) != "ada@example.com" {
		t.Fatalf("unexpected topic/key %q %q", msg.Topic, msg.Key)
	}
	var env struct {
		Kind      string            `json:"kind"`
		Recipient string            `json:"recipient"`
		Payload   map[string]string `json:"payload"`
	}
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Kind != "booking.confirmed" || env.Payload["booking_id"] != "b1" {
		t.Fatalf("unexpected envelope %+v", env)
	}

	w.err = errors.New("broker down")
	if err := n.Notify(context.Background(), KindBookingCancelled, "x", nil); err == nil {
		t.Fatalf("expected writer error to propagate")
	}
}

type fakeChannel struct {
	exchange, key string
	msg           amqp.Publishing
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func TestAMQPNotifier_Notify(t *testing.T) {
	ch := &fakeChannel{}
	n := newAMQPNotifier(ch, nil)

	if err := n.Notify(context.Background(), KindBookingRescheduled, "prov-1", map[string]string{"old": "a", "new": "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.exchange != ExchangeName || ch.key != "booking.rescheduled" {
		t.Fatalf("unexpected routing %q %q", ch.exchange, ch.key)
	}
	if ch.msg.ContentType != "application/json" || ch.msg.MessageId == "" {
		t.Fatalf("unexpected publishing %+v", ch.msg)
	}
	if ch.msg.Headers["recipient"] != "prov-1" {
		t.Fatalf("expected recipient header, got %v", ch.msg.Headers)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))
	if err := n.Notify(context.Background(), KindBookingCreated, "prov-1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "booking.created") {
		t.Fatalf("expected kind in log, got %s", buf.String())
	}
}
