package events

import (
	"context"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailprobe/config"
	"github.com/customeros/mailprobe/internal/models"
)

func TestQueueArguments_DeadLetterToDLQ(t *testing.T) {
	args := queueArguments("email_validation_dlq")

	assert.Equal(t, "", args["x-dead-letter-exchange"])
	assert.Equal(t, "email_validation_dlq", args["x-dead-letter-routing-key"])
	require.NoError(t, args.Validate())
}

func TestTraceIdFromHeaders(t *testing.T) {
	assert.Equal(t, "abc:def:0:1", traceIdFromHeaders(amqp091.Table{"uber-trace-id": "abc:def:0:1"}))
	assert.Empty(t, traceIdFromHeaders(nil))
	assert.Empty(t, traceIdFromHeaders(amqp091.Table{"uber-trace-id": 42}))
}

func TestTopologyFromConfig(t *testing.T) {
	topology := TopologyFromConfig(&config.RabbitMQConfig{Queue: "q", DLQ: "q_dlq"})

	assert.Equal(t, QueueTopology{Queue: "q", DLQ: "q_dlq"}, topology)
}

func TestGetEventType(t *testing.T) {
	assert.Equal(t, "BatchMessage", GetEventType[models.BatchMessage]())
	assert.Equal(t, "BatchMessage", GetEventType[*models.BatchMessage]())
}

func TestDecodeMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		body := []byte(`{"batchId":"b-1","emails":["a@x.io"],"validation_flags":{"check_mx":true,"check_smtp":false}}`)

		message, err := DecodeMessage[models.BatchMessage](ctx, body)

		require.NoError(t, err)
		assert.Equal(t, "b-1", message.BatchId)
		assert.Equal(t, []string{"a@x.io"}, message.Emails)
		assert.True(t, message.ValidationFlags.CheckMX)
		assert.False(t, message.ValidationFlags.CheckSMTP)
	})

	t.Run("missing batch id", func(t *testing.T) {
		_, err := DecodeMessage[models.BatchMessage](ctx, []byte(`{"emails":["a@x.io"]}`))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "batchid is required")
	})

	t.Run("no emails", func(t *testing.T) {
		_, err := DecodeMessage[models.BatchMessage](ctx, []byte(`{"batchId":"b","emails":[]}`))

		assert.Error(t, err)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := DecodeMessage[models.BatchMessage](ctx, []byte(`nope`))

		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := DecodeMessage[models.BatchMessage](ctx, nil)

		assert.Error(t, err)
	})
}

func TestNewBackoff(t *testing.T) {
	retry := newBackoff(100*time.Millisecond, 400*time.Millisecond)

	for i := 0; i < 6; i++ {
		wait := retry.Duration()
		assert.GreaterOrEqual(t, wait, 100*time.Millisecond)
		assert.LessOrEqual(t, wait, 400*time.Millisecond)
	}

	retry.Reset()
	assert.Equal(t, float64(0), retry.Attempt())
}

func TestNewBackoff_Defaults(t *testing.T) {
	retry := newBackoff(0, 0)

	assert.Equal(t, DefaultReconnectBackoff, retry.Min)
	assert.Equal(t, DefaultMaxReconnectBackoff, retry.Max)
}
