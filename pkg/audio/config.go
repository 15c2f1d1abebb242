package audio

import (
	"fmt"
	"log/slog"
	"time"
)

// Значения по умолчанию
const (
	DefaultRingbackOn  = 2000 * time.Millisecond
	DefaultRingbackOff = 2000 * time.Millisecond
	DefaultWakeLockTag = "callkit:keepalive"
)

// FailureObserver получает каждую неудачную попытку вызова платформы
type FailureObserver func(op string, err error)

// KeepAliveConfig конфигурация удержания аудиоресурсов
type KeepAliveConfig struct {
	// Длительность гудка и паузы между гудками
	RingbackOn  time.Duration
	RingbackOff time.Duration

	// Тег wake lock, видимый в диагностике платформы
	WakeLockTag string

	Logger    *slog.Logger
	OnFailure FailureObserver
}

// DefaultKeepAliveConfig возвращает конфигурацию по умолчанию
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		RingbackOn:  DefaultRingbackOn,
		RingbackOff: DefaultRingbackOff,
		WakeLockTag: DefaultWakeLockTag,
	}
}

// Validate проверяет корректность конфигурации
func (c KeepAliveConfig) Validate() error {
	if c.RingbackOn <= 0 {
		return fmt.Errorf("ringback on duration must be positive, got %v", c.RingbackOn)
	}
	if c.RingbackOff < 0 {
		return fmt.Errorf("ringback off duration must not be negative, got %v", c.RingbackOff)
	}
	if c.WakeLockTag == "" {
		return fmt.Errorf("wake lock tag is required")
	}
	return nil
}

// RouteConfig конфигурация контроллера маршрутов
type RouteConfig struct {
	Logger    *slog.Logger
	OnFailure FailureObserver
}

func componentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("component", component))
}
