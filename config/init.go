package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	cron_config "github.com/customeros/mailprobe/internal/cron/config"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/tracing"
)

type Config struct {
	AppConfig        *AppConfig
	Logger           *logger.Config
	Tracing          *tracing.JaegerConfig
	RabbitMQConfig   *RabbitMQConfig
	RedisConfig      *RedisConfig
	ValidationConfig *ValidationConfig
	CacheConfig      *CacheConfig
	WorkerConfig     *WorkerConfig
	BlacklistConfig  *BlacklistConfig
	CronConfig       *cron_config.Config
}

func InitConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	config := newEmptyConfig()
	if err := env.Parse(config); err != nil {
		return nil, err
	}

	return config, nil
}

func newEmptyConfig() *Config {
	return &Config{
		AppConfig:        &AppConfig{},
		Logger:           &logger.Config{},
		Tracing:          &tracing.JaegerConfig{},
		RabbitMQConfig:   &RabbitMQConfig{},
		RedisConfig:      &RedisConfig{},
		ValidationConfig: &ValidationConfig{},
		CacheConfig:      &CacheConfig{},
		WorkerConfig:     &WorkerConfig{},
		BlacklistConfig:  &BlacklistConfig{},
		CronConfig:       &cron_config.Config{},
	}
}
