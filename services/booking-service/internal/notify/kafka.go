package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes one message per notification to "<prefix>.<kind>", keyed by recipient.
type KafkaNotifier struct {
	writer      messageWriter
	topicPrefix string
	logger      *slog.Logger
	now         func() time.Time
}

func NewKafkaNotifier(brokers, topicPrefix string, logger *slog.Logger) (*KafkaNotifier, error) {
	list := kafkax.SplitBrokers(brokers)
	if len(list) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      list,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	})
	return newKafkaNotifier(writer, topicPrefix, logger), nil
}

func newKafkaNotifier(w messageWriter, topicPrefix string, logger *slog.Logger) *KafkaNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaNotifier{writer: w, topicPrefix: topicPrefix, logger: logger, now: time.Now}
}

func (n *KafkaNotifier) Notify(ctx context.Context, kind Kind, recipient string, payload any) error {
	env, body, err := encode(kind, recipient, payload, n.now())
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Topic: kafkax.Topic(n.topicPrefix, string(kind)),
		Key:   []byte(recipient),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(env.ID)},
			{Key: "event_type", Value: []byte(kind)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	n.logger.Debug("notification published", "kind", kind, "topic", msg.Topic, "event_id", env.ID)
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
