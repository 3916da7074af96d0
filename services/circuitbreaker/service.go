package circuitbreaker

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailprobe/config"
	"github.com/customeros/mailprobe/internal/enum"
	mperrors "github.com/customeros/mailprobe/internal/errors"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/metrics"
	"github.com/customeros/mailprobe/internal/models"
	"github.com/customeros/mailprobe/internal/tracing"
)

const (
	keyFailures       = "smtp_timeout_failures"
	keyStatus         = "smtp_circuit_status"
	keyLastTimeout    = "smtp_last_timeout"
	keyTotalTimeouts  = "smtp_total_timeouts_historical"
	keyTotalFallbacks = "smtp_total_dns_fallbacks_historical"

	maxTxRetries = 50
)

// Service is the shared SMTP circuit breaker. State lives in Redis so that every
// worker process sees the same counters.
type Service struct {
	log       logger.Logger
	client    redis.UniversalClient
	threshold int64
	expiry    time.Duration
	forceOpen bool
}

func NewService(cfg *config.ValidationConfig, client redis.UniversalClient, log logger.Logger) *Service {
	threshold := int64(cfg.CircuitBreakerThreshold)
	if threshold <= 0 {
		threshold = 10
	}
	return &Service{
		log:       log,
		client:    client,
		threshold: threshold,
		expiry:    time.Duration(cfg.CircuitBreakerExpiry) * time.Second,
		forceOpen: cfg.DNSOnlyModeEnabled,
	}
}

// IsOpen reports whether SMTP probing must be skipped. An unreachable store
// reads as closed.
func (s *Service) IsOpen(ctx context.Context) bool {
	if s.forceOpen {
		return true
	}
	if s.client == nil {
		return false
	}
	status, err := s.client.Get(ctx, keyStatus).Result()
	if err != nil && err != redis.Nil {
		s.log.Warnf("circuit breaker status unavailable: %v", err)
		return false
	}
	open := status == string(enum.CircuitOpen)
	metrics.CircuitOpen(open)
	return open
}

// RecordFailure counts one SMTP transport failure and opens the circuit once the
// consecutive count reaches the threshold. The read-modify-write runs inside a
// WATCH transaction and is retried on conflict.
func (s *Service) RecordFailure(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CircuitBreaker.RecordFailure")
	defer span.Finish()
	tracing.SetDefaultRedisRepositorySpanTags(ctx, span)

	if s.client == nil {
		return mperrors.ErrCircuitStoreUnavailable
	}

	var failures int64
	var opened bool
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, keyFailures).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		status, err := tx.Get(ctx, keyStatus).Result()
		if err != nil && err != redis.Nil {
			return err
		}

		failures = current + 1
		opened = failures >= s.threshold && status != string(enum.CircuitOpen)
		now := time.Now().UTC().Format(time.RFC3339)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, keyFailures, failures, s.expiry)
			pipe.Set(ctx, keyLastTimeout, now, s.expiry)
			pipe.Incr(ctx, keyTotalTimeouts)
			if opened {
				pipe.Set(ctx, keyStatus, string(enum.CircuitOpen), s.expiry)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, keyFailures, keyStatus)
		if err == nil {
			span.LogFields(log.Int64("failures", failures), log.Bool("opened", opened))
			if opened {
				metrics.CircuitOpen(true)
				s.log.Warnf("SMTP failure threshold reached (%d/%d), circuit opened", failures, s.threshold)
			} else {
				s.log.Infof("SMTP failure recorded (%d/%d)", failures, s.threshold)
			}
			return nil
		}
		if err == redis.TxFailedErr {
			s.log.Debugf("circuit breaker transaction conflict, retrying (attempt %d)", attempt+1)
			continue
		}
		tracing.TraceErr(span, err)
		return errors.Wrap(mperrors.ErrCircuitStoreUnavailable, err.Error())
	}

	err := errors.New("circuit breaker transaction retries exhausted")
	tracing.TraceErr(span, err)
	return err
}

// RecordSuccess clears the consecutive counter while the circuit is closed.
func (s *Service) RecordSuccess(ctx context.Context) error {
	if s.client == nil {
		return mperrors.ErrCircuitStoreUnavailable
	}
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		status, err := tx.Get(ctx, keyStatus).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if status == string(enum.CircuitOpen) {
			return nil
		}
		current, err := tx.Get(ctx, keyFailures).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if current == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, keyFailures, 0, s.expiry)
			return nil
		})
		return err
	}, keyFailures, keyStatus)
}

func (s *Service) RecordFallback(ctx context.Context) {
	if s.client == nil {
		return
	}
	if err := s.client.Incr(ctx, keyTotalFallbacks).Err(); err != nil {
		s.log.Warnf("failed to record dns fallback: %v", err)
	}
}

// Open forces the circuit open until Reset or key expiry.
func (s *Service) Open(ctx context.Context) error {
	if s.client == nil {
		return mperrors.ErrCircuitStoreUnavailable
	}
	s.log.Warn("Opening circuit breaker, switching to DNS-only validation")
	if err := s.client.Set(ctx, keyStatus, string(enum.CircuitOpen), s.expiry).Err(); err != nil {
		return errors.Wrap(err, "opening circuit")
	}
	metrics.CircuitOpen(true)
	return nil
}

// Reset closes the circuit and zeroes the consecutive counter. Lifetime
// counters are kept.
func (s *Service) Reset(ctx context.Context) error {
	if s.client == nil {
		return mperrors.ErrCircuitStoreUnavailable
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keyFailures, 0, s.expiry)
		pipe.Set(ctx, keyStatus, string(enum.CircuitClosed), s.expiry)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "resetting circuit")
	}
	metrics.CircuitOpen(false)
	s.log.Info("Circuit breaker reset")
	return nil
}

func (s *Service) Metrics(ctx context.Context) (*models.CircuitBreakerMetrics, error) {
	result := &models.CircuitBreakerMetrics{
		Status:           enum.CircuitClosed,
		TimeoutThreshold: s.threshold,
	}
	if s.forceOpen {
		result.Status = enum.CircuitOpen
	}
	if s.client == nil {
		return result, mperrors.ErrCircuitStoreUnavailable
	}

	values, err := s.client.MGet(ctx, keyFailures, keyStatus, keyLastTimeout, keyTotalTimeouts, keyTotalFallbacks).Result()
	if err != nil {
		return result, errors.Wrap(mperrors.ErrCircuitStoreUnavailable, err.Error())
	}
	result.ConsecutiveSMTPTimeouts = toInt64(values[0])
	if status, ok := values[1].(string); ok && status == string(enum.CircuitOpen) {
		result.Status = enum.CircuitOpen
	}
	if last, ok := values[2].(string); ok {
		result.LastTimeout = last
	}
	result.TotalTimeouts = toInt64(values[3])
	result.TotalDNSFallbacks = toInt64(values[4])
	return result, nil
}

func toInt64(value interface{}) int64 {
	s, ok := value.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
