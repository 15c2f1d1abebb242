package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig параметры приемника Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Channel канал PUBLISH
	Channel string
	// HistoryKey список последних событий; пустое значение отключает историю
	HistoryKey string
	// HistorySize сколько событий хранить в истории
	HistorySize int64
	// HistoryTTL время жизни списка истории
	HistoryTTL time.Duration

	Logger *slog.Logger
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:        "localhost:6379",
		Channel:     "callkit:events",
		HistoryKey:  "callkit:events:recent",
		HistorySize: 100,
		HistoryTTL:  time.Hour,
	}
}

// Validate проверяет корректность конфигурации
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("redis address is required")
	}
	if c.Channel == "" {
		return errors.New("redis channel is required")
	}
	if c.HistoryKey != "" && c.HistorySize <= 0 {
		return errors.New("history size must be positive")
	}
	return nil
}

// RedisSink публикует события в канал Redis и хранит короткую историю
type RedisSink struct {
	client *redis.Client
	cfg    RedisConfig
	logger *slog.Logger
}

// NewRedisSink подключается к Redis и проверяет соединение
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("connected to redis", slog.String("addr", cfg.Addr), slog.String("channel", cfg.Channel))

	return &RedisSink{
		client: rdb,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "redis_sink")),
	}, nil
}

// Name имя приемника
func (s *RedisSink) Name() string {
	return "redis"
}

// Publish публикует событие и добавляет его в историю
func (s *RedisSink) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := s.client.Publish(ctx, s.cfg.Channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if s.cfg.HistoryKey == "" {
		return nil
	}

	// Новые события в начале списка
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.cfg.HistoryKey, data)
		pipe.LTrim(ctx, s.cfg.HistoryKey, 0, s.cfg.HistorySize-1)
		if s.cfg.HistoryTTL > 0 {
			pipe.Expire(ctx, s.cfg.HistoryKey, s.cfg.HistoryTTL)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to store event history", slog.String("event", e.Name), slog.Any("error", err))
	}
	return nil
}

// History возвращает сохраненные события от старых к новым
func (s *RedisSink) History(ctx context.Context) ([]Event, error) {
	if s.cfg.HistoryKey == "" {
		return nil, nil
	}

	data, err := s.client.LRange(ctx, s.cfg.HistoryKey, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Event{}, nil
		}
		return nil, fmt.Errorf("failed to get event history: %w", err)
	}

	events := make([]Event, 0, len(data))
	for i := len(data) - 1; i >= 0; i-- {
		var e Event
		if err := json.Unmarshal([]byte(data[i]), &e); err != nil {
			s.logger.Warn("failed to unmarshal event", slog.Any("error", err))
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Close закрывает соединение с Redis
func (s *RedisSink) Close() error {
	return s.client.Close()
}
