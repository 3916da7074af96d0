package events

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/tracing"
	"github.com/customeros/mailprobe/internal/utils"
)

// BaseEventListener provides common functionality for all listeners
type BaseEventListener struct {
	logger    logger.Logger
	eventType string
	queueName string
}

func NewBaseEventListener(logger logger.Logger, eventType, queueName string) BaseEventListener {
	return BaseEventListener{
		logger:    logger,
		eventType: eventType,
		queueName: queueName,
	}
}

func (b BaseEventListener) GetEventType() string {
	return b.eventType
}

func (b BaseEventListener) GetQueueName() string {
	return b.queueName
}

func (b BaseEventListener) Logger() logger.Logger {
	return b.logger
}

// DecodeMessage unmarshals a delivery body and runs struct validation on it.
func DecodeMessage[T any](ctx context.Context, body []byte) (T, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Listener.DecodeMessage")
	defer span.Finish()
	tracing.TagComponentListener(span)

	var decoded T
	if len(body) == 0 {
		err := errors.New("message body is empty")
		tracing.TraceErr(span, err)
		return decoded, err
	}

	if err := json.Unmarshal(body, &decoded); err != nil {
		tracing.TraceErr(span, err)
		return decoded, errors.Wrap(err, "failed to unmarshal message")
	}

	if err := utils.ValidateStruct(decoded); err != nil {
		tracing.TraceErr(span, err)
		return decoded, errors.Wrap(err, "invalid message")
	}

	return decoded, nil
}

func GetEventType[T any]() string {
	var t T
	eventType := reflect.TypeOf(t)
	if eventType.Kind() == reflect.Ptr {
		eventType = eventType.Elem()
	}
	return eventType.Name()
}
