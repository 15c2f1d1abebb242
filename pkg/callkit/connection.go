package callkit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/looplab/fsm"

	"github.com/arzzra/callkit/pkg/audio"
)

// State состояние соединения
type State string

const (
	StateInitializing State = "Initializing"
	StateDialing      State = "Dialing"
	StateRinging      State = "Ringing"
	StateActive       State = "Active"
	StateHolding      State = "Holding"
	StateDisconnected State = "Disconnected"
)

// String возвращает строковое представление состояния
func (s State) String() string {
	return string(s)
}

// Terminal сообщает, что из состояния нет переходов
func (s State) Terminal() bool {
	return s == StateDisconnected
}

// formEventName формирует имя события перехода "SRC->DST"
func formEventName(src, dst State) string {
	return string(src) + "->" + string(dst)
}

// transitions допустимые переходы соединения. Active и Holding достижимы
// из любого нетерминального состояния, так как исключительность может
// принудительно активировать или удержать соединение на любом этапе.
var transitions = map[State][]State{
	StateInitializing: {StateDialing, StateRinging, StateActive, StateHolding, StateDisconnected},
	StateDialing:      {StateActive, StateHolding, StateDisconnected},
	StateRinging:      {StateActive, StateHolding, StateDisconnected},
	StateActive:       {StateHolding, StateDisconnected},
	StateHolding:      {StateActive, StateDisconnected},
}

func connectionEvents() fsm.Events {
	var events fsm.Events
	for src, dsts := range transitions {
		for _, dst := range dsts {
			events = append(events, fsm.EventDesc{
				Name: formEventName(src, dst),
				Src:  []string{string(src)},
				Dst:  string(dst),
			})
		}
	}
	return events
}

// connectionHooks наблюдатели соединения, задаваемые координатором
type connectionHooks struct {
	onTransition func(c *Connection, from, to State)
	onFailure    func(op string, err error)
}

/*
Connection локальное состояние одного соединения сессии.

Диаграмма переходов:
[Initializing] → [Dialing | Ringing] → [Active] ⇄ [Holding] → [Disconnected]

Локальное состояние меняется первым, затем вызывается дескриптор ОС.
Ошибка ОС логируется и не откатывает локальный переход.
*/
type Connection struct {
	id        string
	direction Direction
	leg       Leg

	// mu сериализует проверку текущего состояния и переход
	mu  sync.Mutex
	fsm *fsm.FSM

	hooks  connectionHooks
	logger *slog.Logger
}

func newConnection(id string, direction Direction, leg Leg, hooks connectionHooks, logger *slog.Logger) *Connection {
	c := &Connection{
		id:        id,
		direction: direction,
		leg:       leg,
		hooks:     hooks,
		logger:    logger.With(slog.String("session_id", id)),
	}
	c.fsm = fsm.NewFSM(
		string(StateInitializing),
		connectionEvents(),
		fsm.Callbacks{
			"after_event": c.afterStateChange,
		},
	)
	return c
}

func (c *Connection) afterStateChange(ctx context.Context, e *fsm.Event) {
	from, to := State(e.Src), State(e.Dst)
	c.logger.Debug("connection state changed", slog.String("from", e.Src), slog.String("state", e.Dst))
	if c.hooks.onTransition != nil {
		c.hooks.onTransition(c, from, to)
	}
}

// ID возвращает идентификатор сессии соединения
func (c *Connection) ID() string {
	return c.id
}

// Direction возвращает направление звонка
func (c *Connection) Direction() Direction {
	return c.direction
}

// Leg возвращает дескриптор ОС
func (c *Connection) Leg() Leg {
	return c.leg
}

// State возвращает текущее состояние
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State(c.fsm.Current())
}

// transition выполняет локальный переход. Возвращает false, если соединение
// уже в состоянии dst, завершено или переход недопустим.
func (c *Connection) transition(dst State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := State(c.fsm.Current())
	if cur == dst || cur.Terminal() {
		return false
	}

	if err := c.fsm.Event(context.Background(), formEventName(cur, dst)); err != nil {
		c.logger.Warn("connection transition rejected",
			slog.String("state", string(cur)),
			slog.String("target", string(dst)),
			slog.Any("error", err))
		return false
	}
	return true
}

// Ring переводит новое входящее соединение в Ringing
func (c *Connection) Ring() bool {
	return c.transition(StateRinging)
}

// Dial переводит новое исходящее соединение в Dialing
func (c *Connection) Dial() bool {
	return c.transition(StateDialing)
}

// SetActive активирует соединение и сообщает об этом ОС
func (c *Connection) SetActive() bool {
	if !c.transition(StateActive) {
		return false
	}
	c.call("leg_set_active", func() error { return c.leg.SetActive() })
	return true
}

// SetOnHold удерживает соединение и сообщает об этом ОС
func (c *Connection) SetOnHold() bool {
	if !c.transition(StateHolding) {
		return false
	}
	c.call("leg_set_on_hold", func() error { return c.leg.SetOnHold() })
	return true
}

// MarkHeldByOS фиксирует удержание, выполненное самой ОС.
// ОС повторно не вызывается.
func (c *Connection) MarkHeldByOS() bool {
	return c.transition(StateHolding)
}

// MarkActiveByOS фиксирует снятие удержания, выполненное самой ОС
func (c *Connection) MarkActiveByOS() bool {
	return c.transition(StateActive)
}

// Disconnect завершает соединение и освобождает дескриптор ОС.
// Повторный вызов ничего не делает и возвращает false.
func (c *Connection) Disconnect(cause DisconnectCause) bool {
	if !c.transition(StateDisconnected) {
		return false
	}
	c.call("leg_set_disconnected", func() error { return c.leg.SetDisconnected(cause) })
	c.call("leg_destroy", func() error { return c.leg.Destroy() })
	return true
}

// MarkDisconnectedByOS фиксирует завершение, выполненное самой ОС
func (c *Connection) MarkDisconnectedByOS() bool {
	return c.transition(StateDisconnected)
}

// SetAudioRoute передает ОС выбранный маршрут звука
func (c *Connection) SetAudioRoute(route audio.Route) {
	if c.State().Terminal() {
		return
	}
	c.call("leg_set_audio_route", func() error { return c.leg.SetAudioRoute(route) })
}

func (c *Connection) call(op string, fn func() error) {
	if c.leg == nil {
		return
	}
	if err := fn(); err != nil {
		c.logger.Error("leg call failed", slog.String("op", op), slog.Any("error", err))
		if c.hooks.onFailure != nil {
			c.hooks.onFailure(op, err)
		}
	}
}
