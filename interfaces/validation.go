package interfaces

import (
	"context"

	"github.com/customeros/mailprobe/internal/models"
)

type EmailValidator interface {
	Validate(ctx context.Context, email string, flags models.ValidationFlags) *models.ValidationResult
}

type CircuitBreakerAdmin interface {
	IsOpen(ctx context.Context) bool
	Metrics(ctx context.Context) (*models.CircuitBreakerMetrics, error)
	Reset(ctx context.Context) error
}

// BatchAggregator recomputes a multi-batch request from its children.
type BatchAggregator interface {
	Aggregate(ctx context.Context, requestId string) (*models.MultiBatchRequest, error)
}
