// Package siptelephony системная телефония поверх SIP.
//
// Адаптер играет роль ОС для координатора: входящий INVITE становится
// входящим соединением, BYE и CANCEL завершают его со стороны ОС, а
// переходы соединения координатора отражаются ответами 200/486/603 и
// запросом BYE. Re-INVITE с направлением sendonly или inactive
// сообщается координатору как удержание со стороны ОС.
package siptelephony

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/pkg/errors"

	"github.com/arzzra/callkit/pkg/callkit"
)

// Sink точки входа координатора, вызываемые адаптером
type Sink interface {
	Register(ctx context.Context, id string, direction callkit.Direction, meta callkit.Metadata) error
	OnConnectionCreated(id string, direction callkit.Direction, leg callkit.Leg) error
	OnHold(id string, leg callkit.Leg)
	OnUnhold(id string, leg callkit.Leg)
	OnDisconnect(id string, leg callkit.Leg)
	Disconnect(ctx context.Context, id string, cause callkit.DisconnectCause) error
}

// ExtraSIPFrom ключ дополнительных данных с URI вызывающего
const ExtraSIPFrom = "sipFrom"

// ErrNoSink адаптер получил вызов до SetSink
var ErrNoSink = errors.New("sip adapter: sink is not set")

// requestSender отправка запроса и ожидание финального ответа
type requestSender func(ctx context.Context, req *sip.Request) (*sip.Response, error)

// Adapter SIP адаптер телефонии. Реализует
// callkit.TelephonyRegistrationService.
type Adapter struct {
	cfg    Config
	logger *slog.Logger

	ua     *sipgo.UserAgent
	server *sipgo.Server
	client *sipgo.Client
	send   requestSender

	mu         sync.Mutex
	sink       Sink
	legs       map[string]*inviteLeg
	inviting   map[string]*inviteLeg
	registered bool
	closed     bool
}

// New создает адаптер. Прослушивание начинается в ListenAndServe.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid sip config")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	host, _, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "parse listen address %q", cfg.ListenAddr)
	}

	ua, err := sipgo.NewUA(
		sipgo.WithUserAgent(cfg.UserAgent),
		sipgo.WithUserAgentHostname(host),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create user agent")
	}

	server, err := sipgo.NewServer(ua)
	if err != nil {
		ua.Close()
		return nil, errors.Wrap(err, "create server")
	}

	client, err := sipgo.NewClient(ua, sipgo.WithClientHostname(host))
	if err != nil {
		ua.Close()
		return nil, errors.Wrap(err, "create client")
	}

	a := &Adapter{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "sip_telephony")),
		ua:     ua,
		server: server,
		client: client,
		legs:     make(map[string]*inviteLeg),
		inviting: make(map[string]*inviteLeg),
	}
	a.send = func(ctx context.Context, req *sip.Request) (*sip.Response, error) {
		return client.Do(ctx, req)
	}
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.server.OnInvite(func(req *sip.Request, tx sip.ServerTransaction) { a.handleInvite(req, tx) })
	a.server.OnAck(func(req *sip.Request, tx sip.ServerTransaction) { a.handleAck(req) })
	a.server.OnBye(func(req *sip.Request, tx sip.ServerTransaction) { a.handleBye(req, tx) })
	a.server.OnCancel(func(req *sip.Request, tx sip.ServerTransaction) { a.handleCancel(req, tx) })
	a.server.OnOptions(func(req *sip.Request, tx sip.ServerTransaction) { a.handleOptions(req, tx) })
}

// SetSink задает координатор. Вызывается до ListenAndServe, так как
// координатор и адаптер ссылаются друг на друга.
func (a *Adapter) SetSink(s Sink) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sink = s
}

// ListenAndServe принимает SIP запросы до отмены ctx
func (a *Adapter) ListenAndServe(ctx context.Context) error {
	network := strings.ToLower(a.cfg.Transport)
	a.logger.Info("starting sip listener",
		slog.String("network", network),
		slog.String("address", a.cfg.ListenAddr))

	if err := a.server.ListenAndServe(ctx, network, a.cfg.ListenAddr); err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "sip listen")
	}
	return nil
}

// Close освобождает транспорт
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	return a.ua.Close()
}

// RegisterAccount включает прием входящих вызовов
func (a *Adapter) RegisterAccount(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errors.New("sip adapter is closed")
	}
	a.registered = true
	a.logger.Info("phone account registered", slog.String("domain", a.cfg.Domain))
	return nil
}

// UnregisterAccount выключает прием входящих вызовов
func (a *Adapter) UnregisterAccount(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.registered = false
	a.logger.Info("phone account unregistered")
	return nil
}

// RegisterIncoming создает соединение для входящего звонка. Если звонок
// пришел по SIP, используется его INVITE, иначе соединение виртуальное.
func (a *Adapter) RegisterIncoming(ctx context.Context, id string, meta callkit.Metadata) error {
	sink, err := a.sinkOrErr()
	if err != nil {
		return err
	}

	a.mu.Lock()
	leg, ok := a.inviting[id]
	if !ok {
		leg, ok = a.legs[id]
	}
	attach := ok && !leg.attached
	if attach {
		if leg.currentState() == legEnded {
			a.mu.Unlock()
			return errors.Wrap(ErrLegEnded, "attach sip connection")
		}
		leg.attached = true
	}
	a.mu.Unlock()

	if attach {
		err := sink.OnConnectionCreated(id, callkit.DirectionIncoming, leg)
		a.settle(sink, id, leg)
		return errors.Wrap(err, "attach sip connection")
	}
	return errors.Wrap(sink.OnConnectionCreated(id, callkit.DirectionIncoming, a.newVirtualLeg(id)), "attach virtual connection")
}

// RegisterOutgoing создает соединение исходящего звонка. Исходящие
// звонки адаптер не отправляет в сеть, соединение виртуальное.
func (a *Adapter) RegisterOutgoing(ctx context.Context, id string, meta callkit.Metadata) error {
	sink, err := a.sinkOrErr()
	if err != nil {
		return err
	}
	return errors.Wrap(sink.OnConnectionCreated(id, callkit.DirectionOutgoing, a.newVirtualLeg(id)), "attach virtual connection")
}

// PendingCount количество SIP соединений, известных адаптеру
func (a *Adapter) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.legs)
}

func (a *Adapter) sinkOrErr() (Sink, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sink == nil {
		return nil, ErrNoSink
	}
	return a.sink, nil
}

// attachLeg помечает соединение переданным координатору.
// Завершенное сетью соединение не передается.
func (a *Adapter) attachLeg(leg *inviteLeg) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if leg.attached || leg.currentState() == legEnded {
		return false
	}
	leg.attached = true
	return true
}

// settle сообщает координатору о завершении соединения, если сеть
// завершила вызов, пока соединение передавалось координатору
func (a *Adapter) settle(sink Sink, id string, leg *inviteLeg) {
	if leg.currentState() == legEnded {
		sink.OnDisconnect(id, leg)
	}
}

func (a *Adapter) leg(id string) *inviteLeg {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.legs[id]
}

// removeLeg удаляет соединение, если под id зарегистрировано именно оно
func (a *Adapter) removeLeg(id string, leg *inviteLeg) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.legs[id] == leg {
		delete(a.legs, id)
	}
}

// contactURI адрес адаптера для заголовка Contact
func (a *Adapter) contactURI() sip.Uri {
	host, portStr, _ := net.SplitHostPort(a.cfg.ListenAddr)
	port, _ := strconv.Atoi(portStr)
	return sip.Uri{
		User: a.cfg.UserAgent,
		Host: host,
		Port: port,
	}
}
