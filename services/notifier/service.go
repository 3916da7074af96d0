package notifier

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/tracing"
)

// Service fans progress snapshots out over a Redis channel.
type Service struct {
	log     logger.Logger
	client  redis.UniversalClient
	channel string
}

func NewService(client redis.UniversalClient, channel string, log logger.Logger) *Service {
	return &Service{log: log, client: client, channel: channel}
}

func (s *Service) Channel() string {
	return s.channel
}

// Publish marshals payload and sends it to the channel. Failures are logged.
func (s *Service) Publish(ctx context.Context, payload any) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NotifierService.Publish")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if s.client == nil {
		return
	}
	message, err := json.Marshal(payload)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("unable to marshal progress payload: %v", err)
		return
	}
	if err := s.client.Publish(ctx, s.channel, message).Err(); err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("unable to publish progress to %s: %v", s.channel, err)
	}
}

// Subscribe streams raw payloads until ctx is cancelled. The returned channel
// is closed when the subscription ends.
func (s *Service) Subscribe(ctx context.Context) (<-chan []byte, error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// ProgressKey extracts the batch and request ids from a payload so
// subscribers can filter without a full decode.
func ProgressKey(payload []byte) (batchId, requestId string) {
	var ids struct {
		BatchId   string `json:"batchId"`
		RequestId string `json:"requestId"`
	}
	if err := json.Unmarshal(payload, &ids); err != nil {
		return "", ""
	}
	return ids.BatchId, ids.RequestId
}
