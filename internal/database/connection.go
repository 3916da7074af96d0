package database

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/customeros/mailprobe/config"
)

const pingTimeout = 5 * time.Second

func NewRedisClient(redisConfig *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         redisConfig.Addr(),
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     20,
	})
}

// InitRedis connects and pings. The client is returned even when the ping fails so
// callers that soft-fail on Redis errors can keep running.
func InitRedis(ctx context.Context, redisConfig *config.RedisConfig) (*redis.Client, error) {
	if redisConfig == nil {
		return nil, errors.New("redis config is nil")
	}
	client := NewRedisClient(redisConfig)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return client, errors.Wrapf(err, "failed to ping redis at %s", redisConfig.Addr())
	}
	return client, nil
}
