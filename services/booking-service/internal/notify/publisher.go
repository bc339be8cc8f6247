package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/detailbook/detailbook/libs/kafkax"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

// Topic maps a notification type to its Kafka topic.
func Topic(t model.NotificationType) string {
	return fmt.Sprintf("booking.%s.v1", t)
}

type eventPayload struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Type       string    `json:"type"`
	ResourceID string    `json:"resource_id,omitempty"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per notification, keyed by resource id.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, n model.Notification) error {
	msg, err := buildMessage(ctx, n)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func buildMessage(ctx context.Context, n model.Notification) (kafka.Message, error) {
	payload, err := json.Marshal(eventPayload{
		ID:         n.ID,
		TenantID:   n.TenantID,
		Type:       string(n.Type),
		ResourceID: n.ResourceID,
		Message:    n.Message,
		CreatedAt:  n.CreatedAt.UTC(),
	})
	if err != nil {
		return kafka.Message{}, err
	}
	key := n.ResourceID
	if key == "" {
		key = n.ID
	}
	meta := kafkax.EventMeta{EventID: n.ID, EventType: Topic(n.Type), TenantID: n.TenantID}
	return kafka.Message{
		Topic:   Topic(n.Type),
		Key:     []byte(key),
		Value:   payload,
		Headers: kafkax.InjectTraceHeaders(ctx, meta.Headers()),
	}, nil
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, model.Notification) error { return nil }
