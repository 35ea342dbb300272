package jobs

import (
	"context"

	"github.com/smartprice/api/internal/services"
)

// PublishObserver records quotation and delivery telemetry.
type PublishObserver interface {
	ObserveQuotation(tier string)
	ObservePublishFailure()
}

// ObservedEventPublisher counts quotation events before handing them to the next publisher.
type ObservedEventPublisher struct {
	next     services.EventPublisher
	observer PublishObserver
}

var _ services.EventPublisher = (*ObservedEventPublisher)(nil)

// NewObservedEventPublisher wraps next. A nil next behaves like NoopEventPublisher.
func NewObservedEventPublisher(next services.EventPublisher, observer PublishObserver) *ObservedEventPublisher {
	if next == nil {
		next = NoopEventPublisher{}
	}
	return &ObservedEventPublisher{next: next, observer: observer}
}

func (o *ObservedEventPublisher) Publish(ctx context.Context, event services.Event) error {
	if o.observer != nil && event.Type == services.EventQuotationCreated {
		o.observer.ObserveQuotation(event.Attributes["tier"])
	}
	err := o.next.Publish(ctx, event)
	if err != nil && o.observer != nil {
		o.observer.ObservePublishFailure()
	}
	return err
}
