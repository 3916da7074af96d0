package server

import (
	"context"
	"io"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailprobe/config"
	"github.com/customeros/mailprobe/internal/database"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/repository"
	"github.com/customeros/mailprobe/internal/tracing"
)

// Runtime holds the process-wide dependencies shared by the server, the
// worker and the admin commands.
type Runtime struct {
	Config       *config.Config
	Log          logger.Logger
	Redis        *redis.Client
	Repositories *repository.Repositories
	tracerCloser io.Closer
}

func NewRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		log.Fatalf("Could not initialize jaeger tracer: %s", err.Error())
	}
	opentracing.SetGlobalTracer(tracer)

	// Redis failures are soft: the client keeps retrying and callers degrade.
	client, err := database.InitRedis(ctx, cfg.RedisConfig)
	if err != nil {
		if client == nil {
			return nil, err
		}
		appLogger.Warnf("Redis is not reachable yet: %v", err)
	}

	return &Runtime{
		Config:       cfg,
		Log:          appLogger,
		Redis:        client,
		Repositories: repository.InitRepositories(client, cfg.RedisConfig.ResultTTL()),
		tracerCloser: closer,
	}, nil
}

func (r *Runtime) Close() {
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			r.Log.Warnf("Redis close error: %v", err)
		}
	}
	if r.tracerCloser != nil {
		_ = r.tracerCloser.Close()
	}
	_ = r.Log.Sync()
}
