package jobs

import (
	"context"

	"github.com/smartprice/api/internal/services"
)

// NoopEventPublisher drops events. Used when no broker is configured.
type NoopEventPublisher struct{}

var _ services.EventPublisher = NoopEventPublisher{}

func (NoopEventPublisher) Publish(context.Context, services.Event) error { return nil }
