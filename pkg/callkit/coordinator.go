package callkit

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/arzzra/callkit/pkg/audio"
	"github.com/arzzra/callkit/pkg/registry"
)

// registration этап регистрации звонка в системной телефонии
type registration int

const (
	registrationNone registration = iota
	registrationPending
	registrationDone
)

// callRecord данные сессии, видимые приложению
type callRecord struct {
	id           string
	direction    Direction
	meta         Metadata
	accepted     bool
	onHold       bool
	registration registration
}

// outbox действия, накопленные под блокировкой координатора и
// выполняемые после ее освобождения
type outbox []func()

func (o *outbox) add(fn func()) {
	*o = append(*o, fn)
}

func (o *outbox) flush() {
	for _, fn := range *o {
		fn()
	}
	*o = nil
}

// AudioState снимок состояния аудиоресурсов
type AudioState struct {
	Capabilities audio.Capabilities   `json:"capabilities"`
	KeepAlive    audio.KeepAliveState `json:"keepalive"`
	Route        audio.RouteState     `json:"route"`
}

// Coordinator единая точка координации звонков. Все операции
// линеаризуются мьютексом координатора. Уведомления и события,
// порожденные операцией, отправляются после освобождения мьютекса.
type Coordinator struct {
	mu sync.Mutex

	cfg     Config
	logger  *slog.Logger
	metrics *Metrics

	sessions    *registry.Registry[*Connection]
	calls       map[string]*callRecord
	order       []string
	exclusivity *Exclusivity

	keepAlive KeepAlive
	router    AudioRouter
	audioKA   *audio.KeepAlive
	audioRC   *audio.RouteController
	caps      audio.Capabilities

	notifications NotificationService
	events        EventBus
	telephony     TelephonyRegistrationService
	ui            UILauncher

	started bool
	closed  bool
}

// New создает координатор с внедренными зависимостями
func New(cfg Config, deps Dependencies) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	base := cfg.Logger
	if base == nil {
		base = slog.Default()
	}

	c := &Coordinator{
		cfg:           cfg,
		logger:        base.With(slog.String("component", "callkit")),
		metrics:       cfg.Metrics,
		sessions:      registry.New[*Connection](),
		calls:         make(map[string]*callRecord),
		notifications: deps.Notifications,
		events:        deps.Events,
		telephony:     deps.Telephony,
		ui:            deps.UI,
		caps:          audio.DetectCapabilities(cfg.APILevel),
	}

	kaCfg := cfg.KeepAlive
	kaCfg.Logger = base
	kaCfg.OnFailure = c.platformFailed
	ka, err := audio.NewKeepAlive(deps.Audio, deps.Power, deps.Tones, c.caps, kaCfg)
	if err != nil {
		return nil, fmt.Errorf("create keepalive: %w", err)
	}

	rc, err := audio.NewRouteController(deps.Audio, c.caps, ka, c.sessions, audio.RouteConfig{
		Logger:    base,
		OnFailure: c.platformFailed,
	})
	if err != nil {
		return nil, fmt.Errorf("create route controller: %w", err)
	}
	ka.OnRelease(rc.ReleaseRoute)

	c.audioKA, c.audioRC = ka, rc
	c.keepAlive, c.router = ka, rc
	c.exclusivity = NewExclusivity(c.sessions, holdTracker{c}, base)

	c.logger.Info("coordinator created",
		slog.Int("api_level", cfg.APILevel),
		slog.String("audio_path", c.caps.Path.String()))
	return c, nil
}

// Init регистрирует учетную запись в системной телефонии
func (c *Coordinator) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return newClosedError()
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.telephony.RegisterAccount(ctx); err != nil {
		c.metrics.osCallFailed("register_account")
		return fmt.Errorf("register telephony account: %w", err)
	}

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()

	c.logger.Info("coordinator initialized")
	return nil
}

// Close завершает все звонки, освобождает аудиоресурсы и снимает
// регистрацию учетной записи. Повторный вызов ничего не делает.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.EndAll(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.closed = true
	started := c.started
	c.mu.Unlock()

	if !started {
		return nil
	}
	if err := c.telephony.UnregisterAccount(ctx); err != nil {
		c.metrics.osCallFailed("unregister_account")
		return fmt.Errorf("unregister telephony account: %w", err)
	}

	c.logger.Info("coordinator closed")
	return nil
}

// Register регистрирует новую сессию и передает ее системной телефонии
func (c *Coordinator) Register(ctx context.Context, id string, direction Direction, meta Metadata) error {
	if id == "" {
		return newInvalidError("", "session id is required")
	}
	if !direction.Valid() {
		return newInvalidError(id, "unknown direction")
	}

	meta = meta.Clone()
	if err := c.createSession(id, direction, meta); err != nil {
		return err
	}

	var err error
	if direction == DirectionIncoming {
		err = c.telephony.RegisterIncoming(ctx, id, meta)
	} else {
		err = c.telephony.RegisterOutgoing(ctx, id, meta)
	}
	c.finishRegistration(id, direction, err)
	return nil
}

func (c *Coordinator) createSession(id string, direction Direction, meta Metadata) error {
	var out outbox
	defer out.flush()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return newClosedError()
	}
	if _, ok := c.calls[id]; ok {
		c.logger.Warn("session already registered", slog.String("session_id", id))
		return newExistsError(id)
	}

	c.addRecordLocked(&callRecord{
		id:           id,
		direction:    direction,
		meta:         meta,
		registration: registrationPending,
	})

	payload := meta.payload(id)
	switch direction {
	case DirectionIncoming:
		out.add(func() { c.notifications.ShowIncoming(meta) })
		c.emitLater(&out, EventIncoming, payload)
	case DirectionOutgoing:
		c.keepAlive.Ensure(audio.Ringing)
		out.add(func() { c.notifications.ShowOngoing(meta) })
		c.emitLater(&out, EventStart, payload)
	}

	c.logger.Info("session registered",
		slog.String("session_id", id),
		slog.String("direction", direction.String()))
	return nil
}

func (c *Coordinator) finishRegistration(id string, direction Direction, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.calls[id]
	if !ok {
		return
	}

	if err != nil {
		op := "register_" + direction.String()
		c.logger.Error("telephony registration failed",
			slog.String("session_id", id),
			slog.String("op", op),
			slog.Any("error", err))
		c.metrics.osCallFailed(op)
		if rec.registration == registrationPending {
			rec.registration = registrationNone
		}
		return
	}
	if rec.registration == registrationPending {
		rec.registration = registrationDone
	}
}

// OnConnectionCreated регистрирует соединение, созданное системной телефонией
func (c *Coordinator) OnConnectionCreated(id string, direction Direction, leg Leg) error {
	if id == "" {
		return newInvalidError("", "session id is required")
	}
	if leg == nil {
		return newInvalidError(id, "connection handle is required")
	}
	if !direction.Valid() {
		return newInvalidError(id, "unknown direction")
	}

	var out outbox
	defer out.flush()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return newClosedError()
	}

	conn := newConnection(id, direction, leg, c.connectionHooks(), c.logger)
	if direction == DirectionIncoming {
		conn.Ring()
	} else {
		conn.Dial()
	}
	c.sessions.Register(id, conn)

	rec, ok := c.calls[id]
	if !ok {
		rec = &callRecord{id: id, direction: direction}
		c.addRecordLocked(rec)
		c.logger.Info("session created by telephony", slog.String("session_id", id))
	}
	rec.registration = registrationDone

	// Соединение для уже принятого звонка сразу становится активным
	if rec.accepted {
		c.activateLocked(&out, id)
	}

	c.logger.Debug("connection registered",
		slog.String("session_id", id),
		slog.Int("connections", c.sessions.Count(id)))
	return nil
}

// Answer принимает звонок: сессия становится активной, остальные удерживаются
func (c *Coordinator) Answer(ctx context.Context, id string) error {
	var out outbox
	defer out.flush()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return newClosedError()
	}
	sid, ok := c.resolveLocked(id)
	if !ok {
		c.logger.Warn("answer for unknown session", slog.String("session_id", id))
		return newNotFoundError(id)
	}

	c.answerLocked(&out, sid)
	return nil
}

// OnAnswer обрабатывает ответ на звонок из системного интерфейса
func (c *Coordinator) OnAnswer(id string, leg Leg) {
	var out outbox
	defer out.flush()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.calls[id]; !ok {
		c.logger.Warn("telephony answer for unknown session", slog.String("session_id", id))
		return
	}
	if c.findConnectionLocked(id, leg) == nil {
		c.logger.Warn("telephony answer from unknown connection", slog.String("session_id", id))
	}

	c.answerLocked(&out, id)
}

func (c *Coordinator) answerLocked(out *outbox, id string) {
	rec := c.calls[id]
	if rec.accepted {
		c.logger.Debug("session already accepted", slog.String("session_id", id))
		return
	}
	rec.accepted = true

	c.activateLocked(out, id)
	c.keepAlive.Ensure(audio.InCall)

	meta := rec.meta
	c.emitLater(out, EventAccept, meta.payload(id))
	out.add(func() {
		c.notifications.ClearIncoming(meta)
		c.notifications.ShowOngoing(meta)
	})
	out.add(func() { c.launchUI(id, meta) })

	c.logger.Info("session accepted", slog.String("session_id", id))
}

// Connected сообщает, что удаленная сторона ответила на исходящий звонок
func (c *Coordinator) Connected(ctx context.Context, id string) error {
	var out outbox
	defer out.flush()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return newClosedError()
	}
	sid, ok := c.resolveLocked(id)
	if !ok {
		c.logger.Warn("connected for unknown session", slog.String("session_id", id))
		return newNotFoundError(id)
	}

	rec := c.calls[sid]
	if rec.accepted {
		return nil
	}
	rec.accepted = true

	c.activateLocked(&out, sid)
	c.keepAlive.Ensure(audio.InCall)
	c.emitLater(&out, EventConnected, rec.meta.payload(sid))

	c.logger.Info("session connected", slog.String("session_id", sid))
	return nil
}

// Hold удерживает сессию или снимает удержание. Снятие удержания
// удерживает все остальные сессии и допустимо только для принятой сессии.
// Если ни одна сессия не сменила флаг удержания, отправляется общее
// событие переключения удержания.
func (c *Coordinator) Hold(ctx context.Context, id string, onHold bool) error {
	var out outbox
	defer out.flush()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return newClosedError()
	}
	sid, ok := c.resolveLocked(id)
	if !ok {
		c.logger.Warn("hold for unknown session", slog.String("session_id", id))
		return newNotFoundError(id)
	}

	rec := c.calls[sid]
	notify := c.holdNotifier(&out)
	if !onHold {
		if !rec.accepted {
			c.logger.Warn("unhold for unanswered session", slog.String("session_id", sid))
			return newInvalidError(sid, "session is not answered")
		}
		if !c.activateLocked(&out, sid) {
			notify(sid, false)
		}
		return nil
	}

	conns := c.sessions.GetAll(sid)
	if len(conns) == 0 {
		rec.onHold = true
		notify(sid, true)
		return nil
	}

	for _, conn := range conns {
		conn.SetOnHold()
	}
	if c.syncHoldLocked(sid, true) {
		notify(sid, true)
	}
	return nil
}

// OnHold фиксирует удержание, выполненное системной телефонией
func (c *Coordinator) OnHold(id string, leg Leg) {
	var out outbox
	defer out.flush()

	c.mu.Lock()
	defer c.mu.Unlock()

	conn := c.findConnectionLocked(id, leg)
	if conn == nil {
		c.logger.Warn("telephony hold for unknown connection", slog.String("session_id", id))
		return
	}

	conn.MarkHeldByOS()
	if c.syncHoldLocked(id, true) {
		c.holdNotifier(&out)(id, true)
	}
}

// OnUnhold фиксирует снятие удержания, выполненное системной телефонией.
// Другие активные соединения локально помечаются удержанными без
// обращения к ОС, чтобы не было двух активных сессий.
func (c *Coordinator) OnUnhold(id string, leg Leg) {
	var out outbox
	defer out.flush()

	c.mu.Lock()
	defer c.mu.Unlock()

	conn := c.findConnectionLocked(id, leg)
	if conn == nil {
		c.logger.Warn("telephony unhold for unknown connection", slog.String("session_id", id))
		return
	}

	notify := c.holdNotifier(&out)
	conn.MarkActiveByOS()

	snapshot := c.sessions.Snapshot()
	others := make([]string, 0, len(snapshot))
	for other := range snapshot {
		if other != id {
			others = append(others, other)
		}
	}
	slices.Sort(others)

	for _, other := range others {
		demoted := false
		for _, oc := range snapshot[other] {
			if oc.State() == StateActive && oc.MarkHeldByOS() {
				demoted = true
			}
		}
		if demoted && c.syncHoldLocked(other, true) {
			notify(other, true)
		}
	}
	c.holdDetachedLocked(notify, id)

	if c.syncHoldLocked(id, false) {
		notify(id, false)
	}
}

// Disconnect завершает все соединения сессии и удаляет ее.
// Повторный вызов для той же сессии возвращает ErrSessionNotFound
// и не порождает событий.
func (c *Coordinator) Disconnect(ctx context.Context, id string, cause DisconnectCause) error {
	var out outbox
	defer out.flush()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return newClosedError()
	}
	sid, ok := c.resolveLocked(id)
	if !ok {
		c.logger.Warn("disconnect for unknown session", slog.String("session_id", id))
		return newNotFoundError(id)
	}

	c.endSessionLocked(&out, sid, cause, true)
	c.releaseIfIdleLocked()
	return nil
}

// OnDisconnect фиксирует завершение соединения системной телефонией.
// Сессия завершается, когда у нее не остается соединений.
func (c *Coordinator) OnDisconnect(id string, leg Leg) {
	var out outbox
	defer out.flush()

	c.mu.Lock()
	defer c.mu.Unlock()

	conn := c.findConnectionLocked(id, leg)
	if conn == nil {
		c.logger.Debug("telephony disconnect for unknown connection", slog.String("session_id", id))
		return
	}

	conn.MarkDisconnectedByOS()
	c.sessions.RemoveHandle(id, conn)
	if c.sessions.Count(id) > 0 {
		return
	}
	if _, ok := c.calls[id]; !ok {
		return
	}

	c.endSessionLocked(&out, id, CauseRemote, false)
	c.releaseIfIdleLocked()
}

// EndAll завершает все сессии и сбрасывает аудиоресурсы
func (c *Coordinator) EndAll(ctx context.Context) error {
	var out outbox
	defer out.flush()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return newClosedError()
	}

	for _, id := range slices.Clone(c.order) {
		c.endSessionLocked(&out, id, CauseLocal, true)
	}

	// Соединения, оставшиеся без записи сессии
	for id, conns := range c.sessions.Snapshot() {
		for _, conn := range conns {
			conn.Disconnect(CauseLocal)
			c.sessions.RemoveHandle(id, conn)
		}
	}

	c.keepAlive.Release()
	c.logger.Info("all sessions ended")
	return nil
}

func (c *Coordinator) endSessionLocked(out *outbox, id string, cause DisconnectCause, disconnectLegs bool) {
	for _, conn := range c.sessions.GetAll(id) {
		if disconnectLegs {
			conn.Disconnect(cause)
		} else {
			conn.MarkDisconnectedByOS()
		}
		c.sessions.RemoveHandle(id, conn)
	}

	rec, ok := c.calls[id]
	if !ok {
		return
	}
	c.removeRecordLocked(id)

	if rec.direction == DirectionOutgoing && !rec.accepted {
		c.keepAlive.StopRingback()
	}

	meta := rec.meta
	payload := meta.payload(id)
	payload["cause"] = cause.String()

	out.add(func() { c.notifications.ClearIncoming(meta) })
	switch {
	case cause == CauseMissed:
		out.add(func() { c.notifications.ShowMissed(meta) })
		c.emitLater(out, EventTimeout, payload)
	case rec.accepted:
		c.emitLater(out, EventEnded, payload)
	default:
		c.emitLater(out, EventDecline, payload)
	}

	c.logger.Info("session ended",
		slog.String("session_id", id),
		slog.String("cause", cause.String()),
		slog.Bool("accepted", rec.accepted))
}

func (c *Coordinator) releaseIfIdleLocked() {
	if len(c.calls) == 0 && c.sessions.Len() == 0 {
		c.keepAlive.Release()
	}
}

// SetAudioRoute переключает маршрут звука сессии. Возвращает false,
// если у сессии нет соединений или маршрут недоступен.
func (c *Coordinator) SetAudioRoute(ctx context.Context, id string, route audio.Route) bool {
	var out outbox
	defer out.flush()

	if !route.Valid() {
		c.logger.Warn("unknown audio route", slog.String("session_id", id), slog.Int("route", int(route)))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	sid, ok := c.resolveLocked(id)
	var conns []*Connection
	if ok {
		conns = c.sessions.GetAll(sid)
	}
	if len(conns) == 0 {
		c.logger.Warn("audio route for session without connections", slog.String("session_id", id))
		c.metrics.routeRequested(route.String(), false)
		c.audioLog(&out, "warn", fmt.Sprintf("setAudioRoute skipped: no active connection for id=%s", id), id, route)
		return false
	}

	for _, conn := range conns {
		conn.SetAudioRoute(route)
	}
	applied := c.router.RequestRoute(sid, route)

	c.metrics.routeRequested(route.String(), applied)
	c.audioLog(&out, "info", fmt.Sprintf("setAudioRoute completed id=%s route=%s applied=%t", sid, route, applied), sid, route)
	return applied
}

// ActiveSessions возвращает сводку по сессиям в порядке регистрации
func (c *Coordinator) ActiveSessions() []SessionSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	summaries := make([]SessionSummary, 0, len(c.order))
	for _, id := range c.order {
		rec := c.calls[id]
		conns := c.sessions.GetAll(id)
		summaries = append(summaries, SessionSummary{
			ID:          id,
			Direction:   rec.direction.String(),
			State:       sessionState(rec, conns),
			Accepted:    rec.accepted,
			OnHold:      rec.onHold,
			Registered:  rec.registration == registrationDone,
			Connections: len(conns),
			Metadata:    rec.meta.Clone(),
		})
	}
	return summaries
}

// Session возвращает сводку по одной сессии
func (c *Coordinator) Session(id string) (SessionSummary, error) {
	c.mu.Lock()
	sid, ok := c.resolveLocked(id)
	c.mu.Unlock()
	if !ok {
		return SessionSummary{}, newNotFoundError(id)
	}

	for _, s := range c.ActiveSessions() {
		if s.ID == sid {
			return s, nil
		}
	}
	return SessionSummary{}, newNotFoundError(id)
}

// AudioState возвращает снимок состояния аудиоресурсов
func (c *Coordinator) AudioState() AudioState {
	return AudioState{
		Capabilities: c.caps,
		KeepAlive:    c.audioKA.State(),
		Route:        c.audioRC.State(),
	}
}

// sessionState состояние сессии: состояние последнего соединения,
// а для сессии без соединений ОС выводится из флагов записи
func sessionState(rec *callRecord, conns []*Connection) State {
	if len(conns) > 0 {
		return conns[len(conns)-1].State()
	}
	switch {
	case rec.accepted && rec.onHold:
		return StateHolding
	case rec.accepted:
		return StateActive
	case rec.direction == DirectionOutgoing:
		return StateDialing
	default:
		return StateRinging
	}
}

// resolveLocked находит сессию по id или по альтернативным
// идентификаторам из дополнительных данных
func (c *Coordinator) resolveLocked(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	if _, ok := c.calls[id]; ok {
		return id, true
	}
	for _, sid := range c.order {
		if c.calls[sid].meta.matchesAltID(id) {
			return sid, true
		}
	}
	return "", false
}

func (c *Coordinator) findConnectionLocked(id string, leg Leg) *Connection {
	for _, conn := range c.sessions.GetAll(id) {
		if conn.leg == leg {
			return conn
		}
	}
	return nil
}

func (c *Coordinator) addRecordLocked(rec *callRecord) {
	c.calls[rec.id] = rec
	c.order = append(c.order, rec.id)
	c.metrics.setSessions(len(c.calls))
}

func (c *Coordinator) removeRecordLocked(id string) {
	delete(c.calls, id)
	c.order = slices.DeleteFunc(c.order, func(s string) bool { return s == id })
	c.metrics.setSessions(len(c.calls))
}

// syncHoldLocked записывает флаг удержания сессии. Неизвестная сессия
// считается изменившейся, чтобы первое наблюдение всегда доходило до приложения.
func (c *Coordinator) syncHoldLocked(id string, onHold bool) bool {
	rec, ok := c.calls[id]
	if !ok {
		return true
	}
	changed := rec.onHold != onHold
	rec.onHold = onHold
	return changed
}

// activateLocked делает сессию id единственной активной. Возвращает
// true, если отправлено хотя бы одно событие удержания.
func (c *Coordinator) activateLocked(out *outbox, id string) bool {
	notify := c.holdNotifier(out)
	emitted := c.exclusivity.SetActiveAndHoldOthers(id, notify)
	if c.holdDetachedLocked(notify, id) {
		emitted = true
	}
	return emitted
}

// holdDetachedLocked удерживает принятые сессии без соединений ОС, кроме
// activeID. Exclusivity видит только реестр, состояние таких сессий
// выводится из флагов записи.
func (c *Coordinator) holdDetachedLocked(notify HoldNotifier, activeID string) bool {
	emitted := false
	for _, id := range c.order {
		rec := c.calls[id]
		if !rec.accepted || c.sessions.Count(id) > 0 {
			continue
		}
		onHold := id != activeID
		if c.syncHoldLocked(id, onHold) {
			notify(id, onHold)
			emitted = true
		}
	}
	return emitted
}

func (c *Coordinator) holdNotifier(out *outbox) HoldNotifier {
	return func(id string, onHold bool) {
		payload := map[string]any{"id": id}
		if rec, ok := c.calls[id]; ok {
			payload = rec.meta.payload(id)
		}
		payload["isOnHold"] = onHold
		c.emitLater(out, EventToggleHold, payload)
	}
}

func (c *Coordinator) emitLater(out *outbox, name string, payload map[string]any) {
	out.add(func() {
		c.events.Emit(name, payload)
		c.metrics.eventEmitted(name)
	})
}

func (c *Coordinator) audioLog(out *outbox, level, message, id string, route audio.Route) {
	c.emitLater(out, EventAudioLog, map[string]any{
		"source":  audioLogSource,
		"level":   level,
		"message": message,
		"id":      id,
		"route":   route.String(),
	})
}

func (c *Coordinator) launchUI(id string, meta Metadata) {
	if c.ui == nil {
		c.logger.Warn("no foreground launcher configured", slog.String("session_id", id))
		return
	}
	if err := c.ui.LaunchForeground(c.cfg.LaunchAction, meta); err != nil {
		c.logger.Warn("foreground launch failed", slog.String("session_id", id), slog.Any("error", err))
	}
}

func (c *Coordinator) connectionHooks() connectionHooks {
	return connectionHooks{
		onTransition: func(_ *Connection, from, to State) { c.metrics.transition(from, to) },
		onFailure:    c.platformFailed,
	}
}

func (c *Coordinator) platformFailed(op string, _ error) {
	c.metrics.osCallFailed(op)
}

// holdTracker отдает Exclusivity флаги удержания записей координатора.
// Вызывается только под блокировкой координатора.
type holdTracker struct {
	c *Coordinator
}

func (h holdTracker) SyncHold(id string, onHold bool) bool {
	return h.c.syncHoldLocked(id, onHold)
}
