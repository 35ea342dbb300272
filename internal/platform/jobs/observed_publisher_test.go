package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/smartprice/api/internal/services"
)

type countingObserver struct {
	tiers    []string
	failures int
}

func (c *countingObserver) ObserveQuotation(tier string) { c.tiers = append(c.tiers, tier) }
func (c *countingObserver) ObservePublishFailure()       { c.failures++ }

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, services.Event) error { return f.err }

func TestObservedEventPublisherCountsQuotations(t *testing.T) {
	observer := &countingObserver{}
	publisher := NewObservedEventPublisher(nil, observer)

	event := services.Event{Type: services.EventQuotationCreated, Attributes: map[string]string{"tier": "retail"}}
	if err := publisher.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := publisher.Publish(context.Background(), services.Event{Type: "other"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(observer.tiers) != 1 || observer.tiers[0] != "retail" {
		t.Fatalf("expected one retail quotation, got %v", observer.tiers)
	}
	if observer.failures != 0 {
		t.Fatalf("expected no failures, got %d", observer.failures)
	}
}

func TestObservedEventPublisherRecordsFailures(t *testing.T) {
	observer := &countingObserver{}
	boom := errors.New("broker down")
	publisher := NewObservedEventPublisher(failingPublisher{err: boom}, observer)

	err := publisher.Publish(context.Background(), services.Event{Type: services.EventQuotationCreated})
	if !errors.Is(err, boom) {
		t.Fatalf("expected broker error, got %v", err)
	}
	if observer.failures != 1 {
		t.Fatalf("expected one failure, got %d", observer.failures)
	}
}
