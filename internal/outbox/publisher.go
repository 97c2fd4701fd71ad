package outbox

import (
	"context"
	"fmt"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/segmentio/kafka-go"
)

// Publisher hands a batch of events to the broker. A nil error means every
// event in the batch was accepted.
type Publisher interface {
	Publish(ctx context.Context, events []domain.OutboxEvent) error
}

// KafkaPublisher writes events to one topic, keyed by aggregate id so the
// events of an order stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events []domain.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		msgs = append(msgs, Message(e))
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d outbox events: %w", len(msgs), err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Message is the wire form of an outbox event.
func Message(e domain.OutboxEvent) kafka.Message {
	return kafka.Message{
		Key:   []byte(e.AggregateID),
		Value: e.Payload,
		Time:  e.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType)},
			{Key: "event_id", Value: []byte(e.EventID)},
			{Key: "tenant_id", Value: []byte(e.TenantID)},
		},
	}
}
