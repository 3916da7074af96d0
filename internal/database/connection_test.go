package database

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailprobe/config"
)

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client, err := InitRedis(context.Background(), &config.RedisConfig{Host: mr.Host(), Port: port})

	require.NoError(t, err)
	require.NotNil(t, client)
	assert.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	stored, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", stored)
}

func TestInitRedis_Unreachable(t *testing.T) {
	client, err := InitRedis(context.Background(), &config.RedisConfig{Host: "127.0.0.1", Port: 1})

	assert.Error(t, err)
	assert.NotNil(t, client)
}

func TestInitRedis_NilConfig(t *testing.T) {
	_, err := InitRedis(context.Background(), nil)
	assert.Error(t, err)
}
