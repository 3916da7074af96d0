package interfaces

import (
	"context"

	"github.com/customeros/mailprobe/internal/models"
)

type EventPublisher interface {
	PublishValidationBatch(ctx context.Context, message models.BatchMessage) error
	Close() error
}

// EventListener handles the raw body of one delivery. A returned error
// dead-letters the message.
type EventListener interface {
	Handle(ctx context.Context, body []byte) error
	GetEventType() string
	GetQueueName() string
}

type EventSubscriber interface {
	RegisterListener(listener EventListener)
	ListenQueue(queueName string) error
	Close() error
}

// ResultNotifier broadcasts progress snapshots. Delivery is best effort.
type ResultNotifier interface {
	Publish(ctx context.Context, payload any)
}
