package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisConfigValidate(t *testing.T) {
	cfg := DefaultRedisConfig()
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		modify func(*RedisConfig)
	}{
		{"пустой адрес", func(c *RedisConfig) { c.Addr = "" }},
		{"пустой канал", func(c *RedisConfig) { c.Channel = "" }},
		{"история без размера", func(c *RedisConfig) { c.HistorySize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRedisConfig()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	// Без истории размер не важен
	cfg.HistoryKey = ""
	cfg.HistorySize = 0
	assert.NoError(t, cfg.Validate())
}

func TestNewRedisSinkUnreachable(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "127.0.0.1:1"

	sink, err := NewRedisSink(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, sink)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}
