// Package config конфигурация демона из переменных окружения.
package config

import (
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config конфигурация callkitd
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	APILevel     int           `env:"API_LEVEL" envDefault:"31"`
	LaunchAction string        `env:"LAUNCH_ACTION" envDefault:"accept"`
	RingbackOn   time.Duration `env:"RINGBACK_ON" envDefault:"2s"`
	RingbackOff  time.Duration `env:"RINGBACK_OFF" envDefault:"2s"`
	WakeLockTag  string        `env:"WAKE_LOCK_TAG" envDefault:"callkit:keepalive"`

	EventQueueSize int      `env:"EVENT_QUEUE_SIZE" envDefault:"256"`
	AllowedOrigins []string `env:"WS_ALLOWED_ORIGINS" envSeparator:","`

	SIP   SIP   `envPrefix:"SIP_"`
	Redis Redis `envPrefix:"REDIS_"`
}

// SIP параметры SIP адаптера телефонии
type SIP struct {
	Enabled    bool   `env:"ENABLED" envDefault:"true"`
	ListenAddr string `env:"LISTEN_ADDR" envDefault:"127.0.0.1:5060"`
	Transport  string `env:"TRANSPORT" envDefault:"udp"`
	UserAgent  string `env:"USER_AGENT" envDefault:"callkitd"`
	Domain     string `env:"DOMAIN" envDefault:"localhost"`
}

// Redis параметры публикации событий в Redis
type Redis struct {
	Enabled  bool   `env:"ENABLED" envDefault:"false"`
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Channel  string `env:"CHANNEL" envDefault:"callkit:events"`
}

// New загружает конфигурацию произвольного типа из переменных окружения
func New[T any]() (*T, error) {
	cfg := new(T)
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	return cfg, nil
}

// LoadEnv загружает переменные из ENV_FILE, а если он не задан, из .env
func LoadEnv() error {
	envfile := os.Getenv("ENV_FILE")
	if envfile == "" {
		return godotenv.Load()
	}
	return errors.Wrapf(godotenv.Load(envfile), "load %s", envfile)
}

// Load загружает .env (при наличии), разбирает окружение и проверяет результат
func Load() (*Config, error) {
	if err := LoadEnv(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg, err := New[Config]()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("HTTP_ADDR is required")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return errors.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	if c.APILevel <= 0 {
		return errors.Errorf("API_LEVEL must be positive, got %d", c.APILevel)
	}
	if c.RingbackOn <= 0 || c.RingbackOff <= 0 {
		return errors.New("ringback durations must be positive")
	}
	if c.EventQueueSize <= 0 {
		return errors.New("EVENT_QUEUE_SIZE must be positive")
	}
	if c.SIP.Enabled {
		switch strings.ToLower(c.SIP.Transport) {
		case "udp", "tcp":
		default:
			return errors.Errorf("unsupported SIP_TRANSPORT %q", c.SIP.Transport)
		}
		if c.SIP.ListenAddr == "" {
			return errors.New("SIP_LISTEN_ADDR is required")
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("REDIS_ADDR is required when redis is enabled")
	}
	return nil
}

// SlogLevel разбирает LOG_LEVEL
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, errors.Wrapf(err, "invalid LOG_LEVEL %q", c.LogLevel)
	}
	return level, nil
}

// CheckOrigin возвращает проверку источника websocket подключений.
// Пустой список разрешает любой источник.
func (c *Config) CheckOrigin() func(origin string) bool {
	if len(c.AllowedOrigins) == 0 {
		return func(string) bool { return true }
	}
	allowed := make(map[string]struct{}, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		allowed[strings.TrimSpace(o)] = struct{}{}
	}
	return func(origin string) bool {
		_, ok := allowed[origin]
		return ok
	}
}
