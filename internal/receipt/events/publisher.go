// Package events publishes goods receipt lifecycle events.
package events

import (
	"context"

	"github.com/stockbridge/stockbridge-backend/pkg/logger"
	"github.com/stockbridge/stockbridge-backend/pkg/messaging"
)

// Publisher emits receipt document events. Publishing is best effort: a
// broker failure is logged and never fails the workflow.
type Publisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewPublisher creates an event publisher for receipts.
func NewPublisher(p *messaging.Publisher, log *logger.Logger) *Publisher {
	return &Publisher{
		publisher: p,
		logger:    log.WithComponent("receipt-events"),
	}
}

// StatusChanged publishes a workflow transition event.
func (p *Publisher) StatusChanged(ctx context.Context, eventType string, event messaging.DocumentStatusChangedEvent) {
	if err := p.publisher.Publish(ctx, eventType, event); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("document_id", event.DocumentID).
			Msg("failed to publish status event")
	}
}

// Posted publishes a successful ERP post.
func (p *Publisher) Posted(ctx context.Context, event messaging.DocumentPostedEvent) {
	if err := p.publisher.Publish(ctx, messaging.EventReceiptPosted, event); err != nil {
		p.logger.Error().Err(err).
			Str("document_id", event.DocumentID).
			Msg("failed to publish posted event")
	}
}
