package services

import (
	"github.com/go-redis/redis/v8"

	"github.com/customeros/mailprobe/config"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/repository"
	"github.com/customeros/mailprobe/services/batch"
	"github.com/customeros/mailprobe/services/blacklist"
	"github.com/customeros/mailprobe/services/cache"
	"github.com/customeros/mailprobe/services/circuitbreaker"
	"github.com/customeros/mailprobe/services/dns"
	"github.com/customeros/mailprobe/services/events"
	"github.com/customeros/mailprobe/services/notifier"
	"github.com/customeros/mailprobe/services/smtp"
	"github.com/customeros/mailprobe/services/validation"
)

type Services struct {
	CacheService      *cache.Service
	DNSService        *dns.Service
	BlacklistService  *blacklist.Service
	CircuitBreaker    *circuitbreaker.Service
	ValidationService *validation.Service
	Notifier          *notifier.Service
	Tracker           *batch.Tracker
	BatchService      *batch.Service
	EventsService     *events.EventsService
}

// InitCoreServices builds everything that validates and tracks batches. It
// needs no broker connection, so CLI commands and tests can use it directly.
func InitCoreServices(cfg *config.Config, client redis.UniversalClient, repos *repository.Repositories, log logger.Logger) *Services {
	cacheService := cache.NewService(cfg.CacheConfig, client, log)
	resolver := dns.NewClient(cfg.ValidationConfig, log)
	dnsService := dns.NewService(resolver)
	blacklistService := blacklist.NewService(cfg.BlacklistConfig, resolver, log)
	breaker := circuitbreaker.NewService(cfg.ValidationConfig, client, log)
	prober := smtp.NewProber(cfg.ValidationConfig, log)

	validationService := validation.NewService(log, validation.DefaultCatalog(), dnsService, blacklistService,
		prober, breaker, cacheService)

	notifierService := notifier.NewService(client, cfg.RedisConfig.ResultChannel, log)
	tracker := batch.NewTracker(repos.BatchRepository, notifierService, log)

	return &Services{
		CacheService:      cacheService,
		DNSService:        dnsService,
		BlacklistService:  blacklistService,
		CircuitBreaker:    breaker,
		ValidationService: validationService,
		Notifier:          notifierService,
		Tracker:           tracker,
	}
}

// InitServices adds the queue publisher and the submission service on top of
// the core services.
func InitServices(cfg *config.Config, client redis.UniversalClient, repos *repository.Repositories, log logger.Logger) (*Services, error) {
	services := InitCoreServices(cfg, client, repos, log)

	publisherConfig := &events.PublisherConfig{
		MaxRetries:          events.DefaultMaxRetries,
		PublishTimeout:      events.DefaultPublishTimeout,
		ReconnectBackoff:    events.DefaultReconnectBackoff,
		MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
	}
	eventsService, err := events.NewEventsService(cfg.RabbitMQConfig, log, publisherConfig)
	if err != nil {
		return nil, err
	}

	services.EventsService = eventsService
	services.BatchService = batch.NewService(cfg.AppConfig, services.ValidationService, eventsService.Publisher,
		repos.BatchRepository, services.Tracker, log)
	return services, nil
}
