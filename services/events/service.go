package events

import (
	"fmt"

	"github.com/customeros/mailprobe/config"
	"github.com/customeros/mailprobe/internal/logger"
)

type EventsService struct {
	Publisher *RabbitMQPublisher
}

func TopologyFromConfig(cfg *config.RabbitMQConfig) QueueTopology {
	return QueueTopology{Queue: cfg.Queue, DLQ: cfg.DLQ}
}

func NewEventsService(cfg *config.RabbitMQConfig, log logger.Logger, publisherConfig *PublisherConfig) (*EventsService, error) {
	publisher, err := NewRabbitMQPublisher(cfg.ConnectionURL(), TopologyFromConfig(cfg), log, publisherConfig)
	if err != nil {
		return nil, err
	}

	return &EventsService{
		Publisher: publisher,
	}, nil
}

func (s *EventsService) Close() error {
	var errs []error

	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing events service: %v", errs)
	}

	return nil
}
