package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smartprice/api/internal/services"
)

// kafkaMessageWriter abstracts kafka.Writer for tests.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventPublisher writes events to a Kafka topic keyed by the event key, so every event for
// one quotation lands on the same partition.
type KafkaEventPublisher struct {
	writer kafkaMessageWriter
}

var _ services.EventPublisher = (*KafkaEventPublisher)(nil)

// NewKafkaEventPublisher creates a synchronous writer that waits for all in-sync replicas.
func NewKafkaEventPublisher(brokers []string, topic string) (*KafkaEventPublisher, error) {
	addrs := make([]string, 0, len(brokers))
	for _, broker := range brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			addrs = append(addrs, broker)
		}
	}
	if len(addrs) == 0 {
		return nil, errors.New("kafka event publisher: at least one broker is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka event publisher: topic is required")
	}
	return &KafkaEventPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        strings.TrimSpace(topic),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}}, nil
}

func newKafkaEventPublisherWith(w kafkaMessageWriter) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: w}
}

// Publish writes one message. Attributes become record headers.
func (k *KafkaEventPublisher) Publish(ctx context.Context, event services.Event) error {
	value, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}
	attrs := eventAttributes(event)
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	headers := make([]kafka.Header, 0, len(keys))
	for _, key := range keys {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(attrs[key])})
	}

	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.Key),
		Value:   value,
		Headers: headers,
	}); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaEventPublisher) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
