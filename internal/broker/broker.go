package broker

import (
	"context"

	"tokopos/internal/domain"
)

// Publisher emits domain events to the message broker. Sale events are
// informational (receipt printers, downstream analytics); a publish
// failure must never fail the checkout that produced it.
type Publisher interface {
	PublishSaleCompleted(ctx context.Context, event domain.SaleCompletedEvent) error
}

type NoopPublisher struct{}

func (NoopPublisher) PublishSaleCompleted(_ context.Context, _ domain.SaleCompletedEvent) error {
	return nil
}
