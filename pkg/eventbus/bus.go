// Package eventbus доставляет события звонков приложению.
//
// Bus принимает события от координатора без блокировки и в отдельной
// горутине раздает их подписчикам в процессе и внешним приемникам
// (websocket клиентам через Hub, каналу Redis через RedisSink).
package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event событие, доставляемое приложению
type Event struct {
	ID        string         `json:"event_id"`
	Name      string         `json:"event"`
	Body      map[string]any `json:"body"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink внешний приемник событий
type Sink interface {
	Name() string
	Publish(ctx context.Context, e Event) error
}

// Config конфигурация шины
type Config struct {
	// QueueSize размер очереди необработанных событий
	QueueSize int
	// PublishTimeout ограничение на доставку одного события одному приемнику
	PublishTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		QueueSize:      256,
		PublishTimeout: 2 * time.Second,
	}
}

// Validate проверяет корректность конфигурации
func (c Config) Validate() error {
	if c.QueueSize <= 0 {
		return errors.New("queue size must be positive")
	}
	if c.PublishTimeout <= 0 {
		return errors.New("publish timeout must be positive")
	}
	return nil
}

// Bus шина событий
type Bus struct {
	cfg    Config
	logger *slog.Logger

	queue chan Event

	mu     sync.RWMutex
	sinks  []Sink
	subs   map[uint64]chan Event
	nextID uint64
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New создает шину. Доставка начинается после Start.
func New(cfg Config) (*Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Bus{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "eventbus")),
		queue:  make(chan Event, cfg.QueueSize),
		subs:   make(map[uint64]chan Event),
		done:   make(chan struct{}),
	}, nil
}

// AddSink подключает внешний приемник
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sinks = append(b.sinks, s)
}

// Subscribe возвращает канал событий и функцию отписки.
// События для переполненного подписчика отбрасываются.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Emit ставит событие в очередь. Не блокируется: при переполненной
// очереди событие отбрасывается с предупреждением.
func (b *Bus) Emit(name string, payload map[string]any) {
	e := Event{
		ID:        uuid.NewString(),
		Name:      name,
		Body:      maps.Clone(payload),
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Debug("event dropped: bus closed", slog.String("event", name))
		return
	}

	select {
	case b.queue <- e:
	default:
		b.logger.Warn("event queue full, dropping event", slog.String("event", name))
	}
}

// Start запускает доставку событий
func (b *Bus) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.run(ctx)
}

func (b *Bus) run(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			b.drain(ctx)
			return
		case <-b.done:
			b.drain(ctx)
			return
		case e := <-b.queue:
			b.dispatch(ctx, e)
		}
	}
}

// drain доставляет события, оставшиеся в очереди на момент остановки
func (b *Bus) drain(ctx context.Context) {
	for {
		select {
		case e := <-b.queue:
			b.dispatch(context.WithoutCancel(ctx), e)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, e Event) {
	b.mu.RLock()
	sinks := append([]Sink(nil), b.sinks...)
	for _, sub := range b.subs {
		select {
		case sub <- e:
		default:
			b.logger.Warn("subscriber full, dropping event", slog.String("event", e.Name))
		}
	}
	b.mu.RUnlock()

	for _, s := range sinks {
		pctx, cancel := context.WithTimeout(ctx, b.cfg.PublishTimeout)
		err := s.Publish(pctx, e)
		cancel()
		if err != nil {
			b.logger.Error("sink publish failed",
				slog.String("sink", s.Name()),
				slog.String("event", e.Name),
				slog.Any("error", err))
		}
	}
}

// Close останавливает доставку, дожидаясь отправки очереди,
// и закрывает каналы подписчиков
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub)
	}
}
