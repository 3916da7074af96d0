package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/customeros/mailprobe/interfaces"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/tracing"
)

type SubscriberConfig struct {
	PrefetchCount       int
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration
}

// RabbitMQSubscriber dispatches deliveries to the listener registered for the
// queue. Each ListenQueue call is an independent consumer with its own channel.
type RabbitMQSubscriber struct {
	connection      *amqp091.Connection
	connectionMutex sync.Mutex
	url             string
	topology        QueueTopology
	logger          logger.Logger
	config          SubscriberConfig
	listeners       map[string]interfaces.EventListener
	listenerMutex   sync.RWMutex
	closed          atomic.Bool
	consumers       sync.WaitGroup
}

func NewRabbitMQSubscriber(rabbitmqURL string, topology QueueTopology, logger logger.Logger, config *SubscriberConfig) (*RabbitMQSubscriber, error) {
	if config == nil {
		config = &SubscriberConfig{
			PrefetchCount:       1,
			ReconnectBackoff:    time.Second,
			MaxReconnectBackoff: time.Second * 30,
		}
	}
	if config.PrefetchCount <= 0 {
		config.PrefetchCount = 1
	}

	subscriber := &RabbitMQSubscriber{
		url:       rabbitmqURL,
		topology:  topology,
		logger:    logger,
		config:    *config,
		listeners: make(map[string]interfaces.EventListener),
	}

	if err := subscriber.connect(); err != nil {
		return nil, err
	}

	return subscriber, nil
}

func (r *RabbitMQSubscriber) RegisterListener(listener interfaces.EventListener) {
	r.listenerMutex.Lock()
	defer r.listenerMutex.Unlock()

	r.listeners[listener.GetQueueName()] = listener
	r.logger.Infof("Registered listener for event type: %s on queue: %s",
		listener.GetEventType(), listener.GetQueueName())
}

// ListenQueue starts one consumer on the queue and returns immediately.
func (r *RabbitMQSubscriber) ListenQueue(queueName string) error {
	r.listenerMutex.RLock()
	_, exists := r.listeners[queueName]
	r.listenerMutex.RUnlock()
	if !exists {
		return errors.Errorf("no listener registered for queue %s", queueName)
	}

	r.consumers.Add(1)
	go r.consume(queueName)
	return nil
}

func (r *RabbitMQSubscriber) consume(queueName string) {
	defer r.consumers.Done()
	retry := newBackoff(r.config.ReconnectBackoff, r.config.MaxReconnectBackoff)

	for !r.closed.Load() {
		channel, err := r.openConsumerChannel()
		if err != nil {
			wait := retry.Duration()
			r.logger.Errorf("Failed to open channel for queue %s: %v. Retrying in %v", queueName, err, wait)
			time.Sleep(wait)
			continue
		}

		msgs, err := channel.Consume(
			queueName, // queue
			"",        // consumer tag
			false,     // auto-ack
			false,     // exclusive
			false,     // no-local
			false,     // no-wait
			nil,       // args
		)
		if err != nil {
			channel.Close()
			wait := retry.Duration()
			r.logger.Errorf("Failed to register consumer on queue %s: %v. Retrying in %v", queueName, err, wait)
			time.Sleep(wait)
			continue
		}

		retry.Reset()
		r.logger.Infof("Listening for messages on queue %s", queueName)

		for d := range msgs {
			r.handleMessage(d, queueName)
		}
		channel.Close()

		if r.closed.Load() {
			return
		}
		r.logger.Warnf("Connection lost for queue %s. Reconnecting...", queueName)
		time.Sleep(retry.Duration())
	}
}

func (r *RabbitMQSubscriber) openConsumerChannel() (*amqp091.Channel, error) {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	if r.closed.Load() {
		return nil, errors.New("subscriber closed")
	}
	if r.connection == nil || r.connection.IsClosed() {
		if err := r.dial(); err != nil {
			return nil, err
		}
	}

	channel, err := r.connection.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to open channel")
	}
	if err := channel.Qos(r.config.PrefetchCount, 0, false); err != nil {
		channel.Close()
		return nil, errors.Wrap(err, "Failed to set prefetch")
	}
	return channel, nil
}

func (r *RabbitMQSubscriber) handleMessage(d amqp091.Delivery, queueName string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf("Listener on queue %s panicked: %v", queueName, rec)
			r.retryAckNack(d, false)
		}
	}()

	err := r.processMessage(d, queueName)
	if err != nil {
		r.logger.Errorf("Failed to process message on queue %s: %v", queueName, err)
		r.retryAckNack(d, false)
	} else {
		r.retryAckNack(d, true)
	}
}

func (r *RabbitMQSubscriber) processMessage(d amqp091.Delivery, queueName string) error {
	ctx, span := tracing.StartRabbitMQMessageTracerSpanWithHeader(context.Background(),
		"RabbitMQSubscriber.ProcessMessage", traceIdFromHeaders(d.Headers))
	defer span.Finish()
	tracing.TagComponentListener(span)
	span.LogKV("queue_name", queueName, "message_type", d.Type)

	r.listenerMutex.RLock()
	listener, exists := r.listeners[queueName]
	r.listenerMutex.RUnlock()
	if !exists {
		return errors.Errorf("no listener for queue %s", queueName)
	}

	if d.Type != "" && d.Type != listener.GetEventType() {
		err := errors.Errorf("unexpected message type %s on queue %s", d.Type, queueName)
		tracing.TraceErr(span, err)
		return err
	}

	if err := listener.Handle(ctx, d.Body); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *RabbitMQSubscriber) connect() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()
	return r.dial()
}

// dial expects connectionMutex to be held.
func (r *RabbitMQSubscriber) dial() error {
	connection, err := amqp091.Dial(r.url)
	if err != nil {
		return errors.Wrap(err, "Failed to connect to RabbitMQ")
	}

	channel, err := connection.Channel()
	if err != nil {
		connection.Close()
		return errors.Wrap(err, "Failed to open channel for queue setup")
	}
	defer channel.Close()
	if err := r.topology.declare(channel); err != nil {
		connection.Close()
		return err
	}

	r.connection = connection
	return nil
}

// retryAckNack rejects without requeue so failed deliveries land in the DLQ.
func (r *RabbitMQSubscriber) retryAckNack(d amqp091.Delivery, ack bool) {
	maxRetries := 5
	retryDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		var err error
		if ack {
			err = d.Ack(false)
		} else {
			err = d.Nack(false, false)
		}

		if err == nil {
			return
		}

		time.Sleep(retryDelay)
	}

	r.logger.Errorf("Failed to %s message after %d attempts",
		map[bool]string{true: "acknowledge", false: "negative acknowledge"}[ack],
		maxRetries)
}

// Close stops every consumer and waits for in-flight deliveries to finish.
func (r *RabbitMQSubscriber) Close() error {
	r.closed.Store(true)

	r.connectionMutex.Lock()
	var err error
	if r.connection != nil && !r.connection.IsClosed() {
		err = r.connection.Close()
	}
	r.connectionMutex.Unlock()

	r.consumers.Wait()
	return err
}
