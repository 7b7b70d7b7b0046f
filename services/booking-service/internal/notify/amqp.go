package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeName is the topic exchange notifications are published to; the routing key is the kind.
const ExchangeName = "slotbook.notifications"

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type AMQPNotifier struct {
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
	logger   *slog.Logger
	now      func() time.Time
	mu       sync.Mutex
}

func NewAMQPNotifier(url string, logger *slog.Logger) (*AMQPNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	logger.Info("rabbitmq notifier connected", "exchange", ExchangeName)

	n := newAMQPNotifier(ch, logger)
	n.conn = conn
	return n, nil
}

func newAMQPNotifier(ch amqpChannel, logger *slog.Logger) *AMQPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPNotifier{channel: ch, exchange: ExchangeName, logger: logger, now: time.Now}
}

func (n *AMQPNotifier) Notify(ctx context.Context, kind Kind, recipient string, payload any) error {
	env, body, err := encode(kind, recipient, payload, n.now())
	if err != nil {
		return err
	}
	headers := amqp.Table{"recipient": recipient}
	if tp := otelx.Traceparent(ctx); tp != "" {
		headers["traceparent"] = tp
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	return n.channel.PublishWithContext(ctx, n.exchange, string(kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Timestamp:    env.OccurredAt,
		Headers:      headers,
		Body:         body,
	})
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.channel != nil {
		if err := n.channel.Close(); err != nil {
			n.logger.Warn("error closing channel", "err", err)
		}
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
