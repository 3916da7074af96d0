package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailprobe/interfaces"
	"github.com/customeros/mailprobe/internal/models"
	"github.com/customeros/mailprobe/internal/tracing"
)

const (
	progressKeyPrefix   = "validation_results:"
	multiBatchKeyPrefix = "multi_batch:"
	parentKeyPrefix     = "batch_parent:"
	scanBatchSize       = 200
)

type batchRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewBatchRepository(client redis.UniversalClient, ttl time.Duration) interfaces.BatchRepository {
	return &batchRepository{client: client, ttl: ttl}
}

func ProgressKey(batchId string) string {
	return progressKeyPrefix + batchId
}

func MultiBatchKey(requestId string) string {
	return multiBatchKeyPrefix + requestId
}

func ParentKey(batchId string) string {
	return parentKeyPrefix + batchId
}

// SaveProgress overwrites the snapshot and refreshes its expiry.
func (r *batchRepository) SaveProgress(ctx context.Context, progress *models.BatchProgress) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "batchRepository.SaveProgress")
	defer span.Finish()
	tracing.TagComponentRedisRepository(span)

	if progress == nil || progress.BatchId == "" {
		return ErrInvalidInput
	}
	tracing.TagBatch(span, progress.BatchId)

	if err := r.setJSON(ctx, ProgressKey(progress.BatchId), progress); err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to save batch progress: %w", err)
	}
	return nil
}

func (r *batchRepository) GetProgress(ctx context.Context, batchId string) (*models.BatchProgress, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "batchRepository.GetProgress")
	defer span.Finish()
	tracing.TagComponentRedisRepository(span)
	tracing.TagBatch(span, batchId)

	var progress models.BatchProgress
	found, err := r.getJSON(ctx, ProgressKey(batchId), &progress)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get batch progress: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &progress, nil
}

// ListProgress scans every stored batch snapshot. Keys that expire during the
// scan are skipped.
func (r *batchRepository) ListProgress(ctx context.Context) ([]*models.BatchProgress, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "batchRepository.ListProgress")
	defer span.Finish()
	tracing.TagComponentRedisRepository(span)

	var result []*models.BatchProgress
	iter := r.client.Scan(ctx, 0, progressKeyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		var progress models.BatchProgress
		found, err := r.getJSON(ctx, iter.Val(), &progress)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, fmt.Errorf("failed to read batch progress %s: %w", iter.Val(), err)
		}
		if found {
			result = append(result, &progress)
		}
	}
	if err := iter.Err(); err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to scan batch progress: %w", err)
	}
	return result, nil
}

// MarkStalled sets the stalled flag on a processing snapshot, but only while it
// is still the one last updated at lastUpdated. A snapshot rewritten in the
// meantime is left alone and false is returned.
func (r *batchRepository) MarkStalled(ctx context.Context, batchId, lastUpdated string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "batchRepository.MarkStalled")
	defer span.Finish()
	tracing.TagComponentRedisRepository(span)
	tracing.TagBatch(span, batchId)

	if batchId == "" {
		return false, ErrInvalidInput
	}

	key := ProgressKey(batchId)
	marked := false
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var progress models.BatchProgress
		if err := json.Unmarshal(payload, &progress); err != nil {
			return errors.Wrapf(err, "unmarshal %s", key)
		}
		if progress.IsComplete || progress.Stalled || progress.LastUpdated != lastUpdated {
			return nil
		}

		progress.Stalled = true
		updated, err := json.Marshal(&progress)
		if err != nil {
			return errors.Wrap(err, "marshal")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, r.ttl)
			return nil
		})
		if err == nil {
			marked = true
		}
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return false, fmt.Errorf("failed to mark batch stalled: %w", err)
	}
	return marked, nil
}

func (r *batchRepository) SaveMultiBatch(ctx context.Context, request *models.MultiBatchRequest) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "batchRepository.SaveMultiBatch")
	defer span.Finish()
	tracing.TagComponentRedisRepository(span)

	if request == nil || request.RequestId == "" {
		return ErrInvalidInput
	}
	span.SetTag(tracing.SpanTagRequestId, request.RequestId)

	if err := r.setJSON(ctx, MultiBatchKey(request.RequestId), request); err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to save multi-batch request: %w", err)
	}
	return nil
}

func (r *batchRepository) GetMultiBatch(ctx context.Context, requestId string) (*models.MultiBatchRequest, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "batchRepository.GetMultiBatch")
	defer span.Finish()
	tracing.TagComponentRedisRepository(span)
	span.SetTag(tracing.SpanTagRequestId, requestId)

	var request models.MultiBatchRequest
	found, err := r.getJSON(ctx, MultiBatchKey(requestId), &request)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get multi-batch request: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &request, nil
}

func (r *batchRepository) SetParent(ctx context.Context, batchId, requestId string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "batchRepository.SetParent")
	defer span.Finish()
	tracing.TagComponentRedisRepository(span)
	tracing.TagBatch(span, batchId)

	if batchId == "" || requestId == "" {
		return ErrInvalidInput
	}
	if err := r.client.Set(ctx, ParentKey(batchId), requestId, r.ttl).Err(); err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to save batch parent: %w", err)
	}
	return nil
}

// GetParent returns an empty id when the batch has no parent request.
func (r *batchRepository) GetParent(ctx context.Context, batchId string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "batchRepository.GetParent")
	defer span.Finish()
	tracing.TagComponentRedisRepository(span)
	tracing.TagBatch(span, batchId)

	requestId, err := r.client.Get(ctx, ParentKey(batchId)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return "", fmt.Errorf("failed to get batch parent: %w", err)
	}
	return requestId, nil
}

func (r *batchRepository) setJSON(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	return r.client.Set(ctx, key, payload, r.ttl).Err()
}

func (r *batchRepository) getJSON(ctx context.Context, key string, target any) (bool, error) {
	payload, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return false, errors.Wrapf(err, "unmarshal %s", key)
	}
	return true, nil
}
