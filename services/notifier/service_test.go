package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailprobe/internal/logger"
)

func newTestNotifier(t *testing.T) *Service {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	log.InitLogger()
	return NewService(client, "email_validation_results", log)
}

func TestPublishSubscribe(t *testing.T) {
	// Arrange
	svc := newTestNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := svc.Subscribe(ctx)
	require.NoError(t, err)

	// Act
	svc.Publish(ctx, map[string]any{"batchId": "b-1", "processedCount": 3})

	// Assert
	select {
	case payload := <-stream:
		batchId, requestId := ProgressKey(payload)
		assert.Equal(t, "b-1", batchId)
		assert.Empty(t, requestId)
		assert.Contains(t, string(payload), `"processedCount":3`)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestSubscribe_ClosesOnCancel(t *testing.T) {
	svc := newTestNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := svc.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-stream:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed")
	}
}

func TestProgressKey_InvalidPayload(t *testing.T) {
	batchId, requestId := ProgressKey([]byte("not json"))
	assert.Empty(t, batchId)
	assert.Empty(t, requestId)
}

func TestPublish_NilClient(t *testing.T) {
	log := logger.NewAppLogger(nil)
	log.InitLogger()
	svc := NewService(nil, "ch", log)

	assert.NotPanics(t, func() { svc.Publish(context.Background(), "x") })
}
