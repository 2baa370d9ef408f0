package events

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
	"github.com/segmentio/kafka-go"
	"strings"
)

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes order events to a Kafka topic, keyed by order so all
// events of one order land on the same partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(writer *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// messageKey returns keys such as order-created-1 or order-payment_updated-1.
func messageKey(event entity.OrderEvent) []byte {
	return []byte(fmt.Sprintf("order-%s-%d", strings.TrimPrefix(event.Type, "order."), event.OrderID))
}

func (p *KafkaPublisher) Publish(ctx context.Context, event entity.OrderEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:     messageKey(event),
		Value:   value,
		Headers: []kafka.Header{{Key: "event-type", Value: []byte(event.Type)}},
		Time:    event.OccurredAt,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", event.Type, err)
	}
	return nil
}
