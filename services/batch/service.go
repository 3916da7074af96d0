package batch

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/customeros/mailprobe/config"
	"github.com/customeros/mailprobe/interfaces"
	"github.com/customeros/mailprobe/internal/enum"
	mperrors "github.com/customeros/mailprobe/internal/errors"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/metrics"
	"github.com/customeros/mailprobe/internal/models"
	"github.com/customeros/mailprobe/internal/tracing"
	"github.com/customeros/mailprobe/internal/utils"
)

const inProgressMessage = "Validation in progress"

// Service accepts single and batch submissions and answers status lookups.
type Service struct {
	log            logger.Logger
	smallThreshold int
	validator      interfaces.EmailValidator
	publisher      interfaces.EventPublisher
	repo           interfaces.BatchRepository
	tracker        *Tracker
}

func NewService(cfg *config.AppConfig, validator interfaces.EmailValidator, publisher interfaces.EventPublisher,
	repo interfaces.BatchRepository, tracker *Tracker, log logger.Logger) *Service {
	return &Service{
		log:            log,
		smallThreshold: cfg.SmallBatchThreshold,
		validator:      validator,
		publisher:      publisher,
		repo:           repo,
		tracker:        tracker,
	}
}

func (s *Service) ValidateOne(ctx context.Context, email string, flags models.ValidationFlags) *models.ValidationResult {
	return s.validator.Validate(ctx, email, flags)
}

// Submit validates small uploads inline and queues everything else.
func (s *Service) Submit(ctx context.Context, emails []string, flags models.ValidationFlags) (*models.SubmissionHandle, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "BatchService.Submit")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(log.Int("emails", len(emails)))

	if len(emails) == 0 {
		return nil, mperrors.ErrNoEmails
	}

	if len(emails) <= s.smallThreshold {
		results := s.validateInline(ctx, emails, flags)
		metrics.BatchEvent("inline")
		return &models.SubmissionHandle{
			BatchId:         utils.GenerateBatchID(),
			Status:          enum.BatchCompleted,
			TotalEmails:     len(emails),
			ProcessedEmails: len(results),
			Results:         results,
		}, nil
	}

	batches := Split(emails)
	if len(batches) == 1 {
		batchId := utils.GenerateBatchID()
		tracing.TagBatch(span, batchId)
		if err := s.enqueue(ctx, batchId, "", batches[0], flags); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		return s.queuedHandle(batchId, len(emails)), nil
	}

	requestId := utils.GenerateRequestID()
	span.SetTag(tracing.SpanTagRequestId, requestId)
	batchIds := make([]string, len(batches))
	for i := range batches {
		batchIds[i] = utils.GenerateBatchID()
	}
	if _, err := s.tracker.Create(ctx, requestId, batchIds, len(emails)); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("unable to create tracking for request %s: %v", requestId, err)
		return nil, errors.Wrap(err, "create multi-batch tracking")
	}
	for i, chunk := range batches {
		if err := s.enqueue(ctx, batchIds[i], requestId, chunk, flags); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	}
	s.log.Infof("request %s split into %d batches (%d emails)", requestId, len(batches), len(emails))

	return s.queuedHandle(requestId, len(emails)), nil
}

// Status resolves a request id, a child batch id or a single batch id.
func (s *Service) Status(ctx context.Context, id string) (*models.BatchStatusResponse, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "BatchService.Status")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagBatch(span, id)

	request, err := s.repo.GetMultiBatch(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if request != nil {
		return s.aggregateStatus(ctx, id)
	}

	parentId, err := s.repo.GetParent(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if parentId != "" {
		return s.aggregateStatus(ctx, parentId)
	}

	progress, err := s.repo.GetProgress(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if progress == nil {
		return &models.BatchStatusResponse{
			BatchId: id,
			Status:  enum.BatchProcessing,
			Message: inProgressMessage,
		}, nil
	}

	status := progress.Status
	if progress.IsComplete {
		status = enum.BatchCompleted
	} else if status == "" {
		status = enum.BatchProcessing
	}
	return &models.BatchStatusResponse{
		BatchId:         id,
		Status:          status,
		TotalEmails:     progress.TotalEmails,
		ProcessedEmails: progress.ProcessedCount,
		Results:         progress.ValidatedEmails,
		LastUpdated:     progress.LastUpdated,
		Stalled:         progress.Stalled,
	}, nil
}

func (s *Service) aggregateStatus(ctx context.Context, requestId string) (*models.BatchStatusResponse, error) {
	request, err := s.tracker.Aggregate(ctx, requestId)
	if err != nil {
		return nil, err
	}
	return &models.BatchStatusResponse{
		BatchId:         requestId,
		Status:          request.Status,
		TotalEmails:     request.TotalEmails,
		ProcessedEmails: request.ProcessedEmails,
		LastUpdated:     request.LastUpdated,
		MultiBatch:      request,
	}, nil
}

func (s *Service) validateInline(ctx context.Context, emails []string, flags models.ValidationFlags) []*models.ValidationResult {
	slots := make([]*models.ValidationResult, len(emails))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.smallThreshold)
	for i, email := range emails {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.log.Errorf("validation of %s panicked: %v", email, r)
				}
			}()
			slots[i] = s.validator.Validate(gctx, email, flags)
			return nil
		})
	}
	_ = g.Wait()

	results := make([]*models.ValidationResult, 0, len(slots))
	for _, result := range slots {
		if result != nil {
			results = append(results, result)
		}
	}
	return results
}

// enqueue stores a queued snapshot for the batch and publishes it.
func (s *Service) enqueue(ctx context.Context, batchId, requestId string, emails []string, flags models.ValidationFlags) error {
	snapshot := &models.BatchProgress{
		BatchId:         batchId,
		RequestId:       requestId,
		Status:          enum.BatchQueued,
		ValidatedEmails: []*models.ValidationResult{},
		TotalEmails:     len(emails),
		LastUpdated:     timestamp(),
	}
	if err := s.repo.SaveProgress(ctx, snapshot); err != nil {
		s.log.Warnf("unable to store queued snapshot for batch %s: %v", batchId, err)
	}

	message := models.BatchMessage{BatchId: batchId, Emails: emails, ValidationFlags: flags}
	if err := s.publisher.PublishValidationBatch(ctx, message); err != nil {
		s.log.Errorf("unable to queue batch %s: %v", batchId, err)
		return errors.Wrapf(mperrors.ErrQueueUnavailable, "batch %s: %v", batchId, err)
	}
	metrics.BatchEvent("queued")
	return nil
}

func (s *Service) queuedHandle(id string, total int) *models.SubmissionHandle {
	return &models.SubmissionHandle{
		BatchId:         id,
		Status:          enum.BatchProcessing,
		TotalEmails:     total,
		ProcessedEmails: 0,
		EstimatedTime:   EstimatedTime(total),
	}
}

func EstimatedTime(total int) string {
	return fmt.Sprintf("%d minutes", total/10+1)
}
