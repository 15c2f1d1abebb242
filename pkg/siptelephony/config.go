package siptelephony

import (
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Config конфигурация SIP адаптера
type Config struct {
	// ListenAddr адрес прослушивания host:port
	ListenAddr string
	// Transport "udp" или "tcp"
	Transport string
	UserAgent string
	// Domain хост в Contact и в URI учетной записи
	Domain string

	// MediaHost адрес в SDP ответе
	MediaHost string
	// MediaPort порт аудио в SDP ответе. 0 отклоняет медиапотоки:
	// звук обеспечивает платформа, адаптер отвечает только за сигнализацию.
	MediaPort int

	// ByeTimeout ограничение ожидания ответа на BYE
	ByeTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		ListenAddr: "127.0.0.1:5060",
		Transport:  "udp",
		UserAgent:  "callkitd",
		Domain:     "localhost",
		MediaHost:  "127.0.0.1",
		ByeTimeout: 5 * time.Second,
	}
}

// Validate проверяет корректность конфигурации
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen address is required")
	}
	switch strings.ToLower(c.Transport) {
	case "udp", "tcp":
	default:
		return errors.Errorf("unsupported transport %q", c.Transport)
	}
	if c.Domain == "" {
		return errors.New("domain is required")
	}
	if c.MediaPort < 0 || c.MediaPort > 65535 {
		return errors.Errorf("invalid media port %d", c.MediaPort)
	}
	if c.ByeTimeout <= 0 {
		return errors.New("bye timeout must be positive")
	}
	return nil
}
