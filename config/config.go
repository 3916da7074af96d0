package config

import (
	"fmt"
	"net/url"
	"time"
)

type AppConfig struct {
	APIPort             string `env:"PORT" envDefault:"12222"`
	APIKey              string `env:"API_KEY"`
	SmallBatchThreshold int    `env:"SMALL_BATCH_THRESHOLD" envDefault:"5"`
	MetricsPath         string `env:"METRICS_PATH" envDefault:"/metrics"`
}

type RabbitMQConfig struct {
	URL      string `env:"RABBITMQ_URL"`
	Host     string `env:"RABBITMQ_HOST" envDefault:"localhost"`
	Port     int    `env:"RABBITMQ_PORT" envDefault:"5672"`
	User     string `env:"RABBITMQ_USER" envDefault:"guest"`
	Password string `env:"RABBITMQ_PASS" envDefault:"guest"`
	VHost    string `env:"RABBITMQ_VHOST" envDefault:"/"`
	Queue    string `env:"RABBITMQ_QUEUE" envDefault:"email_validation"`
	DLQ      string `env:"RABBITMQ_DLQ" envDefault:"email_validation_dlq"`
}

// ConnectionURL prefers RABBITMQ_URL and otherwise builds one from the parts.
func (c *RabbitMQConfig) ConnectionURL() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + url.PathEscape(trimLeadingSlash(c.VHost)),
	}
	return u.String()
}

func trimLeadingSlash(s string) string {
	for len(s) > 0 && s[0] == '/' {
		s = s[1:]
	}
	return s
}

type RedisConfig struct {
	Host          string `env:"REDIS_HOST" envDefault:"localhost"`
	Port          int    `env:"REDIS_PORT" envDefault:"6379"`
	DB            int    `env:"REDIS_DB" envDefault:"0"`
	Password      string `env:"REDIS_PASSWORD"`
	ResultExpiry  int    `env:"REDIS_RESULT_EXPIRY" envDefault:"3600"`
	ResultChannel string `env:"REDIS_RESULT_CHANNEL" envDefault:"email_validation_results"`
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *RedisConfig) ResultTTL() time.Duration {
	return time.Duration(c.ResultExpiry) * time.Second
}

type ValidationConfig struct {
	DNSTimeout               int      `env:"DNS_TIMEOUT" envDefault:"10"`
	DNSServers               []string `env:"DNS_SERVERS" envDefault:"8.8.8.8:53,1.1.1.1:53"`
	SMTPTimeout              int      `env:"SMTP_TIMEOUT" envDefault:"30"`
	SMTPPort                 int      `env:"SMTP_PORT" envDefault:"25"`
	SMTPHeloDomain           string   `env:"SMTP_HELO_DOMAIN" envDefault:"test.com"`
	SMTPMailFrom             string   `env:"SMTP_MAIL_FROM" envDefault:"test@test.com"`
	MaxConcurrentValidations int      `env:"MAX_CONCURRENT_VALIDATIONS" envDefault:"5"`
	DNSOnlyModeEnabled       bool     `env:"DNS_ONLY_MODE_ENABLED" envDefault:"false"`
	CircuitBreakerThreshold  int      `env:"CIRCUIT_BREAKER_THRESHOLD" envDefault:"10"`
	CircuitBreakerExpiry     int      `env:"CIRCUIT_BREAKER_EXPIRY" envDefault:"3600"`
}

func (c *ValidationConfig) DNSTimeoutDuration() time.Duration {
	return time.Duration(c.DNSTimeout) * time.Second
}

func (c *ValidationConfig) SMTPTimeoutDuration() time.Duration {
	return time.Duration(c.SMTPTimeout) * time.Second
}

type CacheConfig struct {
	KeyPrefix             string `env:"CACHE_KEY_PREFIX" envDefault:"email_validation:"`
	TTLFullResult         int    `env:"CACHE_TTL_FULL_RESULT" envDefault:"86400"`
	TTLMXRecords          int    `env:"CACHE_TTL_MX_RECORDS" envDefault:"172800"`
	TTLBlacklist          int    `env:"CACHE_TTL_BLACKLIST" envDefault:"21600"`
	TTLDisposable         int    `env:"CACHE_TTL_DISPOSABLE" envDefault:"604800"`
	TTLCatchAll           int    `env:"CACHE_TTL_CATCH_ALL" envDefault:"86400"`
	EnableResultCache     bool   `env:"ENABLE_RESULT_CACHE" envDefault:"true"`
	EnableMXCache         bool   `env:"ENABLE_MX_CACHE" envDefault:"true"`
	EnableBlacklistCache  bool   `env:"ENABLE_BLACKLIST_CACHE" envDefault:"true"`
	EnableDisposableCache bool   `env:"ENABLE_DISPOSABLE_CACHE" envDefault:"true"`
	EnableCatchAllCache   bool   `env:"ENABLE_CATCH_ALL_CACHE" envDefault:"true"`
	EnableLocalCache      bool   `env:"ENABLE_LOCAL_CACHE" envDefault:"true"`
	LocalCacheSize        int    `env:"LOCAL_CACHE_SIZE" envDefault:"10000"`
}

type WorkerConfig struct {
	BatchSize              int    `env:"WORKER_BATCH_SIZE" envDefault:"5"`
	PrefetchCount          int    `env:"WORKER_PREFETCH_COUNT" envDefault:"1"`
	Concurrency            int    `env:"WORKER_CONCURRENCY" envDefault:"1"`
	ResetBreakerOnBatchEnd bool   `env:"WORKER_RESET_BREAKER_ON_BATCH_END" envDefault:"true"`
	MetricsPort            string `env:"WORKER_METRICS_PORT" envDefault:"9101"`
	StaleBatchAfter        int    `env:"STALE_BATCH_AFTER" envDefault:"1800"`
}

type BlacklistConfig struct {
	DomainZones   []string `env:"BLACKLIST_DOMAIN_ZONES" envDefault:"zen.spamhaus.org,bl.spamcop.net"`
	IPZones       []string `env:"BLACKLIST_IP_ZONES" envDefault:"sbl.spamhaus.org,xbl.spamhaus.org"`
	LookupTimeout int      `env:"BLACKLIST_LOOKUP_TIMEOUT" envDefault:"2"`
	ExtendedScan  bool     `env:"BLACKLIST_EXTENDED_SCAN" envDefault:"false"`
}
