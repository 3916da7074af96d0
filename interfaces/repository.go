package interfaces

import (
	"context"

	"github.com/customeros/mailprobe/internal/models"
)

// BatchRepository stores batch snapshots, multi-batch requests and the
// child-to-parent index. Lookups return nil without error when the key is absent.
type BatchRepository interface {
	SaveProgress(ctx context.Context, progress *models.BatchProgress) error
	GetProgress(ctx context.Context, batchId string) (*models.BatchProgress, error)
	ListProgress(ctx context.Context) ([]*models.BatchProgress, error)
	MarkStalled(ctx context.Context, batchId, lastUpdated string) (bool, error)
	SaveMultiBatch(ctx context.Context, request *models.MultiBatchRequest) error
	GetMultiBatch(ctx context.Context, requestId string) (*models.MultiBatchRequest, error)
	SetParent(ctx context.Context, batchId, requestId string) error
	GetParent(ctx context.Context, batchId string) (string, error)
}
