package interfaces

import (
	"context"

	"github.com/customeros/mailprobe/internal/models"
)

type ValidationSubmitter interface {
	ValidateOne(ctx context.Context, email string, flags models.ValidationFlags) *models.ValidationResult
	Submit(ctx context.Context, emails []string, flags models.ValidationFlags) (*models.SubmissionHandle, error)
	Status(ctx context.Context, id string) (*models.BatchStatusResponse, error)
}

type CacheAdmin interface {
	View(ctx context.Context, namespace string) (map[string]string, error)
	Clear(ctx context.Context, namespace string) (int, error)
}

type ProgressSource interface {
	Subscribe(ctx context.Context) (<-chan []byte, error)
}
