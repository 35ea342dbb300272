// Package jobs delivers domain events to message brokers.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/smartprice/api/internal/platform/textutil"
	"github.com/smartprice/api/internal/services"
)

// PubSubEventPublisher publishes events to a Pub/Sub topic. The event type and key travel as
// attributes so subscriptions can filter without decoding the payload.
type PubSubEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.EventPublisher = (*PubSubEventPublisher)(nil)

// NewPubSubEventPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubEventPublisher(topic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	return &PubSubEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// Publish blocks until the server acknowledges the message.
func (p *PubSubEventPublisher) Publish(ctx context.Context, event services.Event) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: eventAttributes(event),
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}

// Stop flushes pending messages. Called once during shutdown.
func (p *PubSubEventPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func eventAttributes(event services.Event) map[string]string {
	return textutil.CompactStringMap(event.Attributes, map[string]string{
		"eventType": event.Type,
		"key":       event.Key,
	})
}
