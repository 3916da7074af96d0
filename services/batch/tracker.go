package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailprobe/interfaces"
	"github.com/customeros/mailprobe/internal/enum"
	mperrors "github.com/customeros/mailprobe/internal/errors"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/models"
	"github.com/customeros/mailprobe/internal/tracing"
)

// Tracker maintains the aggregate view of a request split into several batches.
type Tracker struct {
	log      logger.Logger
	repo     interfaces.BatchRepository
	notifier interfaces.ResultNotifier
}

func NewTracker(repo interfaces.BatchRepository, notifier interfaces.ResultNotifier, log logger.Logger) *Tracker {
	return &Tracker{log: log, repo: repo, notifier: notifier}
}

// Create stores the request record and the child-to-parent index.
func (t *Tracker) Create(ctx context.Context, requestId string, batchIds []string, totalEmails int) (*models.MultiBatchRequest, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Tracker.Create")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag(tracing.SpanTagRequestId, requestId)

	now := timestamp()
	request := &models.MultiBatchRequest{
		RequestId:       requestId,
		BatchIds:        batchIds,
		TotalEmails:     totalEmails,
		ProcessedEmails: 0,
		Status:          enum.BatchProcessing,
		CreatedAt:       now,
		LastUpdated:     now,
	}
	if err := t.repo.SaveMultiBatch(ctx, request); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	for _, batchId := range batchIds {
		if err := t.repo.SetParent(ctx, batchId, requestId); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	}
	return request, nil
}

// Aggregate recomputes the request from its children, stores it and broadcasts
// it. A child without a stored snapshot counts as processing with no progress.
func (t *Tracker) Aggregate(ctx context.Context, requestId string) (*models.MultiBatchRequest, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Tracker.Aggregate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag(tracing.SpanTagRequestId, requestId)

	request, err := t.repo.GetMultiBatch(ctx, requestId)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if request == nil {
		return nil, errors.Wrapf(mperrors.ErrBatchNotFound, "request %s", requestId)
	}

	processed := 0
	allComplete := true
	summaries := make([]models.BatchSummary, 0, len(request.BatchIds))
	for _, batchId := range request.BatchIds {
		progress, err := t.repo.GetProgress(ctx, batchId)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if progress == nil {
			allComplete = false
			summaries = append(summaries, models.BatchSummary{BatchId: batchId, Status: enum.BatchProcessing})
			continue
		}

		status := enum.BatchCompleted
		if !progress.IsComplete {
			status = enum.BatchProcessing
			allComplete = false
		}
		processed += progress.ProcessedCount
		summaries = append(summaries, models.BatchSummary{
			BatchId:         batchId,
			Status:          status,
			ProcessedEmails: progress.ProcessedCount,
			TotalEmails:     progress.TotalEmails,
		})
	}

	request.ProcessedEmails = processed
	request.Batches = summaries
	request.Status = enum.BatchProcessing
	if allComplete {
		request.Status = enum.BatchCompleted
	}
	request.Progress = progressLabel(processed, request.TotalEmails)
	request.LastUpdated = timestamp()

	if err := t.repo.SaveMultiBatch(ctx, request); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	t.notifier.Publish(ctx, request)

	return request, nil
}

func progressLabel(processed, total int) string {
	if total <= 0 {
		return ""
	}
	return fmt.Sprintf("%d/%d (%d%%)", processed, total, processed*100/total)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
