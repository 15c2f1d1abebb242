package siptelephony

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/arzzra/callkit/pkg/audio"
	"github.com/arzzra/callkit/pkg/callkit"
)

// Коды ответов SIP
const (
	statusOK                     = 200
	statusRinging                = 180
	statusBadRequest             = 400
	statusTemporarilyUnavailable = 480
	statusTransactionNotExist    = 481
	statusLoopDetected           = 482
	statusBusyHere               = 486
	statusRequestTerminated      = 487
	statusServerError            = 500
	statusServiceUnavailable     = 503
	statusDecline                = 603
)

// ErrLegEnded операция над завершенным соединением
var ErrLegEnded = errors.New("sip leg already ended")

// responder серверная транзакция, которой можно ответить
type responder interface {
	Respond(res *sip.Response) error
}

type legState int

const (
	legRinging legState = iota
	legAnswered
	legEnded
)

// inviteLeg соединение, созданное входящим INVITE
type inviteLeg struct {
	a     *Adapter
	id    string
	req   *sip.Request
	tx    responder
	toTag string
	offer []byte

	// attached защищен мьютексом адаптера
	attached bool

	mu    sync.Mutex
	state legState
}

func newInviteLeg(a *Adapter, id string, req *sip.Request, tx responder) *inviteLeg {
	return &inviteLeg{
		a:     a,
		id:    id,
		req:   req,
		tx:    tx,
		toTag: uuid.NewString(),
		offer: req.Body(),
	}
}

// response формирует ответ на INVITE с нашим To tag
func (l *inviteLeg) response(code int, reason string, body []byte) *sip.Response {
	res := sip.NewResponseFromRequest(l.req, code, reason, body)
	if to := res.To(); to != nil {
		if to.Params == nil {
			to.Params = sip.NewParams()
		}
		to.Params = to.Params.Add("tag", l.toTag)
	}
	return res
}

// ringing отправляет 180 Ringing
func (l *inviteLeg) ringing() error {
	return errors.Wrap(l.tx.Respond(l.response(statusRinging, "Ringing", nil)), "respond 180")
}

// SetActive отвечает 200 OK на INVITE. Для уже отвеченного вызова
// снятие удержания не сигнализируется.
func (l *inviteLeg) SetActive() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case legEnded:
		return ErrLegEnded
	case legAnswered:
		return nil
	}

	body, err := l.a.answerFor(l.offer)
	if err != nil {
		return err
	}
	res := l.response(statusOK, "OK", body)
	res.AppendHeader(&sip.ContactHeader{Address: l.a.contactURI(), Params: sip.NewParams()})
	if len(body) > 0 {
		res.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	}
	if err := l.tx.Respond(res); err != nil {
		return errors.Wrap(err, "respond 200")
	}

	l.state = legAnswered
	l.a.logger.Info("sip call answered", slog.String("session_id", l.id))
	return nil
}

// SetOnHold удержание по инициативе приложения не сигнализируется в сеть
func (l *inviteLeg) SetOnHold() error {
	l.a.logger.Debug("local hold", slog.String("session_id", l.id))
	return nil
}

// SetDisconnected отклоняет неотвеченный INVITE или отправляет BYE
func (l *inviteLeg) SetDisconnected(cause callkit.DisconnectCause) error {
	l.mu.Lock()
	state := l.state
	l.state = legEnded
	l.mu.Unlock()

	switch state {
	case legRinging:
		code, reason := rejectStatus(cause)
		if err := l.tx.Respond(l.response(code, reason, nil)); err != nil {
			return errors.Wrapf(err, "respond %d", code)
		}
		l.a.logger.Info("sip call rejected",
			slog.String("session_id", l.id),
			slog.Int("status", code))
	case legAnswered:
		// Вызывается под блокировкой координатора, ответ на BYE не ждем
		go l.a.sendBye(l)
	}
	return nil
}

// Destroy удаляет соединение из адаптера
func (l *inviteLeg) Destroy() error {
	l.a.removeLeg(l.id, l)
	return nil
}

// SetAudioRoute маршрут звука не влияет на сигнализацию
func (l *inviteLeg) SetAudioRoute(route audio.Route) error {
	l.a.logger.Debug("audio route", slog.String("session_id", l.id), slog.String("route", route.String()))
	return nil
}

// end помечает соединение завершенным удаленной стороной.
// Возвращает предыдущее состояние.
func (l *inviteLeg) end() legState {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.state
	l.state = legEnded
	return prev
}

func (l *inviteLeg) currentState() legState {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state
}

// rejectStatus ответ на неотвеченный INVITE по причине завершения
func rejectStatus(cause callkit.DisconnectCause) (int, string) {
	switch cause {
	case callkit.CauseRejected:
		return statusDecline, "Decline"
	case callkit.CauseBusy:
		return statusBusyHere, "Busy Here"
	case callkit.CauseMissed, callkit.CauseCanceled:
		return statusRequestTerminated, "Request Terminated"
	case callkit.CauseError:
		return statusServerError, "Server Internal Error"
	default:
		return statusTemporarilyUnavailable, "Temporarily Unavailable"
	}
}

// answerFor SDP ответ на предложение INVITE
func (a *Adapter) answerFor(offerBody []byte) ([]byte, error) {
	offer, err := parseOffer(offerBody)
	if err != nil {
		return nil, err
	}
	return buildAnswer(offer, a.cfg.MediaHost, a.cfg.MediaPort)
}

// sendBye завершает установленный диалог со стороны адаптера
func (a *Adapter) sendBye(l *inviteLeg) {
	req := l.req
	from, to := req.From(), req.To()
	if from == nil || to == nil {
		a.logger.Error("cannot build BYE: INVITE without From/To", slog.String("session_id", l.id))
		return
	}

	target := from.Address
	if contact := req.Contact(); contact != nil {
		target = contact.Address
	}

	bye := sip.NewRequest(sip.BYE, target)

	localFrom := &sip.FromHeader{Address: to.Address, Params: sip.NewParams()}
	localFrom.Params = localFrom.Params.Add("tag", l.toTag)
	bye.AppendHeader(localFrom)

	remoteTo := &sip.ToHeader{DisplayName: from.DisplayName, Address: from.Address, Params: sip.NewParams()}
	if tag, ok := from.Params.Get("tag"); ok {
		remoteTo.Params = remoteTo.Params.Add("tag", tag)
	}
	bye.AppendHeader(remoteTo)

	callID := sip.CallIDHeader(l.id)
	bye.AppendHeader(&callID)
	bye.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.BYE})
	bye.SetTransport(strings.ToUpper(a.cfg.Transport))

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ByeTimeout)
	defer cancel()

	res, err := a.send(ctx, bye)
	if err != nil {
		a.logger.Error("BYE failed",
			slog.String("session_id", l.id),
			slog.Any("error", errors.Wrap(err, "send BYE")))
		return
	}
	a.logger.Info("sip call ended locally",
		slog.String("session_id", l.id),
		slog.Int("status", int(res.StatusCode)))
}

// virtualLeg соединение без сетевой сигнализации: звонки, созданные
// приложением, и исходящие вызовы
type virtualLeg struct {
	id     string
	logger *slog.Logger

	mu    sync.Mutex
	ops   []string
	ended bool
}

func (a *Adapter) newVirtualLeg(id string) *virtualLeg {
	return &virtualLeg{id: id, logger: a.logger}
}

func (v *virtualLeg) record(op string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.ended && op != "destroy" {
		return ErrLegEnded
	}
	v.ops = append(v.ops, op)
	v.logger.Debug("virtual connection", slog.String("session_id", v.id), slog.String("op", op))
	return nil
}

func (v *virtualLeg) SetActive() error { return v.record("active") }

func (v *virtualLeg) SetOnHold() error { return v.record("hold") }

func (v *virtualLeg) SetDisconnected(cause callkit.DisconnectCause) error {
	if err := v.record("disconnected:" + cause.String()); err != nil {
		return err
	}
	v.mu.Lock()
	v.ended = true
	v.mu.Unlock()
	return nil
}

func (v *virtualLeg) Destroy() error { return v.record("destroy") }

func (v *virtualLeg) SetAudioRoute(route audio.Route) error {
	return v.record("route:" + route.String())
}

// Ops журнал операций соединения
func (v *virtualLeg) Ops() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	return append([]string(nil), v.ops...)
}
