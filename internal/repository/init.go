package repository

import (
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/customeros/mailprobe/interfaces"
)

type Repositories struct {
	BatchRepository interfaces.BatchRepository
}

func InitRepositories(client redis.UniversalClient, resultTTL time.Duration) *Repositories {
	return &Repositories{
		BatchRepository: NewBatchRepository(client, resultTTL),
	}
}
