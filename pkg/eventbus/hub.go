package eventbus

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client получатель событий, подключенный к Hub
type Client interface {
	ID() string
	Send(e Event) error
	Close() error
}

// Hub раздает события подключенным websocket клиентам.
// Реализует Sink.
type Hub struct {
	logger *slog.Logger

	mu       sync.Mutex
	clients  map[Client]bool
	upgrader websocket.Upgrader

	broadcast  chan Event
	register   chan Client
	unregister chan Client
	quit       chan struct{}
	stopOnce   sync.Once
}

// NewHub создает хаб. checkOrigin nil разрешает любой источник.
func NewHub(logger *slog.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	return &Hub{
		logger:  logger.With(slog.String("component", "ws_hub")),
		clients: make(map[Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		broadcast:  make(chan Event, 64),
		register:   make(chan Client),
		unregister: make(chan Client),
		quit:       make(chan struct{}),
	}
}

// Name имя приемника
func (h *Hub) Name() string {
	return "websocket"
}

// Publish передает событие в цикл рассылки. Не блокируется.
func (h *Hub) Publish(ctx context.Context, e Event) error {
	select {
	case h.broadcast <- e:
	default:
		h.logger.Warn("broadcast channel full, dropping event", slog.String("event", e.Name))
	}
	return nil
}

// Run цикл хаба. Возвращается после Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("client registered", slog.String("client_id", client.ID()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
				h.logger.Info("client unregistered", slog.String("client_id", client.ID()))
			}
			h.mu.Unlock()

		case e := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.Send(e); err != nil {
					h.logger.Warn("send failed, dropping client",
						slog.String("client_id", client.ID()),
						slog.Any("error", err))
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register подключает клиента
func (h *Hub) Register(c Client) {
	select {
	case h.register <- c:
	case <-h.quit:
		c.Close()
	}
}

// Unregister отключает клиента
func (h *Hub) Unregister(c Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Stop останавливает цикл и закрывает все соединения
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
	})
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// ServeHTTP переводит запрос в websocket и подписывает клиента на события.
// Входящие сообщения клиента игнорируются; чтение нужно для обработки
// закрытия соединения.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", slog.Any("error", err))
		return
	}

	client := &wsClient{id: uuid.NewString(), conn: conn}
	h.Register(client)

	defer h.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error",
					slog.String("client_id", client.id),
					slog.Any("error", err))
			}
			return
		}
	}
}

type wsClient struct {
	id   string
	conn *websocket.Conn
}

func (c *wsClient) ID() string {
	return c.id
}

func (c *wsClient) Send(e Event) error {
	return c.conn.WriteJSON(e)
}

func (c *wsClient) Close() error {
	return c.conn.Close()
}
