package server

import (
	"context"
	"net/http"
	"time"

	"github.com/customeros/mailprobe/interfaces"
	"github.com/customeros/mailprobe/internal/listeners"
	"github.com/customeros/mailprobe/internal/metrics"
	"github.com/customeros/mailprobe/services"
	"github.com/customeros/mailprobe/services/events"
)

// Worker runs competing batch consumers in one process, each on its own
// channel.
type Worker struct {
	runtime       *Runtime
	consumers     int
	services      *services.Services
	subscriber    interfaces.EventSubscriber
	metricsServer *http.Server
}

func NewWorker(rt *Runtime, consumers int) (*Worker, error) {
	cfg := rt.Config
	if consumers <= 0 {
		consumers = cfg.WorkerConfig.Concurrency
	}
	if consumers <= 0 {
		consumers = 1
	}

	svcs := services.InitCoreServices(cfg, rt.Redis, rt.Repositories, rt.Log)

	subscriber, err := events.NewRabbitMQSubscriber(
		cfg.RabbitMQConfig.ConnectionURL(),
		events.TopologyFromConfig(cfg.RabbitMQConfig),
		rt.Log,
		&events.SubscriberConfig{
			PrefetchCount:       cfg.WorkerConfig.PrefetchCount,
			ReconnectBackoff:    events.DefaultReconnectBackoff,
			MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
		},
	)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.AppConfig.MetricsPath, metrics.Handler())

	return &Worker{
		runtime:    rt,
		consumers:  consumers,
		services:   svcs,
		subscriber: subscriber,
		metricsServer: &http.Server{
			Addr:              ":" + cfg.WorkerConfig.MetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (w *Worker) Run() error {
	cfg := w.runtime.Config
	log := w.runtime.Log

	listener := listeners.NewValidateBatchListener(
		log,
		cfg.WorkerConfig,
		cfg.RabbitMQConfig.Queue,
		w.services.ValidationService,
		w.runtime.Repositories.BatchRepository,
		w.services.Notifier,
		w.services.Tracker,
		w.services.CircuitBreaker,
	)
	w.subscriber.RegisterListener(listener)

	for i := 0; i < w.consumers; i++ {
		if err := w.subscriber.ListenQueue(listener.GetQueueName()); err != nil {
			return err
		}
	}
	log.Infof("Started %d consumers on queue %s", w.consumers, listener.GetQueueName())

	go wrapGoroutine(log, "worker_metrics", func() {
		if err := w.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Metrics server error: %v", err)
		}
	})

	waitForSignal()
	return w.shutdown()
}

func (w *Worker) shutdown() error {
	log := w.runtime.Log
	defer recoverWithJaeger(log, "worker_shutdown")
	log.Info("Stopping consumers...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := w.metricsServer.Shutdown(ctx); err != nil {
		log.Warnf("Metrics server shutdown error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- w.subscriber.Close() }()

	select {
	case err := <-done:
		if err != nil {
			log.Warnf("Subscriber close error: %v", err)
		}
		log.Info("Consumers stopped")
	case <-ctx.Done():
		log.Warn("Consumer stop timed out, forcing exit")
	}
	return nil
}
