package events

import (
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"
)

const (
	// Rejected deliveries are routed through the default exchange to the DLQ.
	deadLetterExchange = ""

	headerUberTraceId = "uber-trace-id"
	contentTypeJSON   = "application/json"
)

// QueueTopology names the work queue and its dead-letter queue.
type QueueTopology struct {
	Queue string
	DLQ   string
}

func queueArguments(dlq string) amqp091.Table {
	return amqp091.Table{
		"x-dead-letter-exchange":    deadLetterExchange,
		"x-dead-letter-routing-key": dlq,
	}
}

// declare is idempotent. Publisher and subscriber both call it so either side
// can start first.
func (t QueueTopology) declare(channel *amqp091.Channel) error {
	_, err := channel.QueueDeclare(
		t.DLQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return errors.Wrapf(err, "Failed to declare DLQ %s", t.DLQ)
	}

	_, err = channel.QueueDeclare(
		t.Queue,
		true,
		false,
		false,
		false,
		queueArguments(t.DLQ),
	)
	if err != nil {
		return errors.Wrapf(err, "Failed to declare queue %s", t.Queue)
	}
	return nil
}

func traceIdFromHeaders(headers amqp091.Table) string {
	if headers == nil {
		return ""
	}
	value, ok := headers[headerUberTraceId].(string)
	if !ok {
		return ""
	}
	return value
}

// newBackoff doubles from min up to max with jitter.
func newBackoff(min, max time.Duration) *backoff.Backoff {
	if min <= 0 {
		min = DefaultReconnectBackoff
	}
	if max < min {
		max = DefaultMaxReconnectBackoff
	}
	return &backoff.Backoff{Min: min, Max: max, Factor: 2, Jitter: true}
}
