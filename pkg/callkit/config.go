package callkit

import (
	"fmt"
	"log/slog"

	"github.com/arzzra/callkit/pkg/audio"
)

// Config конфигурация координатора
type Config struct {
	// APILevel уровень API платформы, по которому выбираются возможности аудио
	APILevel int

	// KeepAlive параметры удержания аудиоресурсов
	KeepAlive audio.KeepAliveConfig

	// LaunchAction действие, с которым интерфейс выводится на передний план при ответе
	LaunchAction string

	Logger  *slog.Logger
	Metrics *Metrics
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		APILevel:     audio.APICommunicationDevice,
		KeepAlive:    audio.DefaultKeepAliveConfig(),
		LaunchAction: launchActionAccept,
	}
}

// Validate проверяет корректность конфигурации
func (c Config) Validate() error {
	if c.APILevel <= 0 {
		return fmt.Errorf("%w: api level must be positive, got %d", ErrInvalidArgument, c.APILevel)
	}
	if c.LaunchAction == "" {
		return fmt.Errorf("%w: launch action is required", ErrInvalidArgument)
	}
	if err := c.KeepAlive.Validate(); err != nil {
		return fmt.Errorf("%w: keepalive: %v", ErrInvalidArgument, err)
	}
	return nil
}

// Dependencies внешние зависимости координатора
type Dependencies struct {
	Notifications NotificationService
	Events        EventBus
	Telephony     TelephonyRegistrationService
	// UI необязателен
	UI UILauncher

	Audio audio.AudioManager
	Power audio.PowerManager
	// Tones необязателен, без него гудки исходящего вызова не играют
	Tones audio.TonePlayerFactory
}

func (d Dependencies) validate() error {
	switch {
	case d.Notifications == nil:
		return fmt.Errorf("%w: notification service is required", ErrInvalidArgument)
	case d.Events == nil:
		return fmt.Errorf("%w: event bus is required", ErrInvalidArgument)
	case d.Telephony == nil:
		return fmt.Errorf("%w: telephony registration service is required", ErrInvalidArgument)
	case d.Audio == nil:
		return fmt.Errorf("%w: audio manager is required", ErrInvalidArgument)
	case d.Power == nil:
		return fmt.Errorf("%w: power manager is required", ErrInvalidArgument)
	}
	return nil
}
