package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each executed order as a JSON message keyed by
// "<user>|<symbol>", so one user's orders for a symbol stay on one partition.
type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaPublisher builds a publisher on a kafka-go writer.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}

	// Orders are written one at a time from the request path, so a batch of
	// one goes out without waiting for BatchTimeout.
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaPublisher{w: w}, nil
}

func (p *KafkaPublisher) PublishOrder(ctx context.Context, ev OrderExecuted) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: marshal order %s: %w", ev.Order.ID, err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Order.UserID + "|" + ev.Order.Symbol),
		Value: b,
		Time:  ev.Order.CreatedAt,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write order %s: %w", ev.Order.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
