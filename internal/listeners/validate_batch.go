package listeners

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/customeros/mailprobe/config"
	"github.com/customeros/mailprobe/interfaces"
	"github.com/customeros/mailprobe/internal/enum"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/metrics"
	"github.com/customeros/mailprobe/internal/models"
	"github.com/customeros/mailprobe/internal/tracing"
	"github.com/customeros/mailprobe/internal/utils"
	"github.com/customeros/mailprobe/services/events"
)

type ValidateBatchListener struct {
	events.BaseEventListener
	chunkSize    int
	resetBreaker bool
	validator    interfaces.EmailValidator
	repo         interfaces.BatchRepository
	notifier     interfaces.ResultNotifier
	aggregator   interfaces.BatchAggregator
	breaker      interfaces.CircuitBreakerAdmin
}

func NewValidateBatchListener(
	logger logger.Logger,
	cfg *config.WorkerConfig,
	queueName string,
	validator interfaces.EmailValidator,
	repo interfaces.BatchRepository,
	notifier interfaces.ResultNotifier,
	aggregator interfaces.BatchAggregator,
	breaker interfaces.CircuitBreakerAdmin,
) *ValidateBatchListener {
	chunkSize := cfg.BatchSize
	if chunkSize <= 0 {
		chunkSize = 1
	}
	return &ValidateBatchListener{
		BaseEventListener: events.NewBaseEventListener(
			logger,
			events.GetEventType[models.BatchMessage](),
			queueName,
		),
		chunkSize:    chunkSize,
		resetBreaker: cfg.ResetBreakerOnBatchEnd,
		validator:    validator,
		repo:         repo,
		notifier:     notifier,
		aggregator:   aggregator,
		breaker:      breaker,
	}
}

// Handle validates one queued batch chunk by chunk. A snapshot is stored and
// broadcast after every chunk and once more when the batch is complete. Only a
// malformed message or a failed final write is returned as an error.
func (l *ValidateBatchListener) Handle(ctx context.Context, body []byte) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ValidateBatchListener.Handle")
	defer span.Finish()
	tracing.TagComponentListener(span)

	message, err := events.DecodeMessage[models.BatchMessage](ctx, body)
	if err != nil {
		l.Logger().Errorf("Invalid batch message: %v", err)
		tracing.TraceErr(span, err)
		return err
	}
	ctx = utils.SetBatchIdInContext(ctx, message.BatchId)
	tracing.TagBatch(span, message.BatchId)

	started := time.Now()
	metrics.BatchEvent("started")
	l.Logger().Infof("Processing batch %s with %d emails", message.BatchId, len(message.Emails))

	requestId, err := l.repo.GetParent(ctx, message.BatchId)
	if err != nil {
		l.Logger().Warnf("Unable to resolve parent request of batch %s: %v", message.BatchId, err)
	}

	progress := &models.BatchProgress{
		BatchId:         message.BatchId,
		RequestId:       requestId,
		Status:          enum.BatchProcessing,
		ValidatedEmails: []*models.ValidationResult{},
		TotalEmails:     len(message.Emails),
	}

	chunks := utils.Chunk(message.Emails, l.chunkSize)
	for i, chunk := range chunks {
		if l.breaker.IsOpen(ctx) {
			l.Logger().Warnf("Circuit breaker is open for chunk %d/%d of batch %s, falling back to DNS validation",
				i+1, len(chunks), message.BatchId)
		}

		results := l.validateChunk(ctx, chunk, message.ValidationFlags)
		progress.ValidatedEmails = append(progress.ValidatedEmails, results...)
		progress.ProcessedCount += len(chunk)
		progress.LastUpdated = time.Now().UTC().Format(time.RFC3339)

		if err := l.repo.SaveProgress(ctx, progress); err != nil {
			l.Logger().Errorf("Unable to store progress of batch %s: %v", message.BatchId, err)
		}
		l.notifier.Publish(ctx, progress)
		l.Logger().Debugf("Processed chunk %d/%d for batch %s", i+1, len(chunks), message.BatchId)
	}

	progress.IsComplete = true
	progress.Status = enum.BatchCompleted
	progress.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	if err := l.repo.SaveProgress(ctx, progress); err != nil {
		tracing.TraceErr(span, err)
		metrics.BatchEvent("failed")
		return errors.Wrapf(err, "store final results of batch %s", message.BatchId)
	}
	l.notifier.Publish(ctx, progress)

	if requestId != "" {
		if _, err := l.aggregator.Aggregate(ctx, requestId); err != nil {
			l.Logger().Warnf("Unable to aggregate request %s: %v", requestId, err)
		}
	}

	l.finishBreaker(ctx, message.BatchId)

	metrics.BatchEvent("completed")
	l.Logger().Infof("Completed batch %s: %d/%d validated in %s", message.BatchId,
		len(progress.ValidatedEmails), progress.TotalEmails, time.Since(started).Round(time.Millisecond))
	return nil
}

// validateChunk runs the chunk concurrently. An email whose validation panics
// is left out of the results.
func (l *ValidateBatchListener) validateChunk(ctx context.Context, chunk []string, flags models.ValidationFlags) []*models.ValidationResult {
	slots := make([]*models.ValidationResult, len(chunk))
	var g errgroup.Group
	for i, email := range chunk {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					l.Logger().Errorf("Error processing email %s: %v", email, r)
				}
			}()
			slots[i] = l.validator.Validate(ctx, email, flags)
			return nil
		})
	}
	_ = g.Wait()

	results := make([]*models.ValidationResult, 0, len(chunk))
	for _, result := range slots {
		if result != nil {
			results = append(results, result)
		}
	}
	return results
}

func (l *ValidateBatchListener) finishBreaker(ctx context.Context, batchId string) {
	breakerMetrics, err := l.breaker.Metrics(ctx)
	if err != nil {
		l.Logger().Warnf("Unable to read circuit breaker metrics: %v", err)
	} else {
		l.Logger().Infof("Batch %s completed. Circuit breaker status: %s, Consecutive timeouts: %d",
			batchId, breakerMetrics.Status, breakerMetrics.ConsecutiveSMTPTimeouts)
	}

	if !l.resetBreaker {
		return
	}
	if err := l.breaker.Reset(ctx); err != nil {
		l.Logger().Warnf("Unable to reset circuit breaker: %v", err)
	}
}
