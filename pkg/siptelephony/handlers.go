package siptelephony

import (
	"context"
	"log/slog"

	"github.com/emiago/sipgo/sip"
	"github.com/pkg/errors"

	"github.com/arzzra/callkit/pkg/callkit"
)

// respond отправляет ответ без To tag и логирует ошибку отправки
func (a *Adapter) respond(req *sip.Request, tx responder, code int, reason string) {
	res := sip.NewResponseFromRequest(req, code, reason, nil)
	if err := tx.Respond(res); err != nil {
		a.logger.Error("failed to respond",
			slog.String("method", req.Method.String()),
			slog.Int("status", code),
			slog.Any("error", err))
	}
}

func toTag(req *sip.Request) string {
	to := req.To()
	if to == nil {
		return ""
	}
	tag, _ := to.Params.Get("tag")
	return tag
}

func callID(req *sip.Request) (string, bool) {
	h := req.CallID()
	if h == nil || *h == "" {
		return "", false
	}
	return string(*h), true
}

// metadataFromRequest данные звонка из заголовка From
func metadataFromRequest(req *sip.Request) callkit.Metadata {
	meta := callkit.Metadata{}
	if from := req.From(); from != nil {
		meta.CallerName = from.DisplayName
		meta.Handle = from.Address.User
		meta.Extra = map[string]any{ExtraSIPFrom: from.Address.String()}
	}
	if meta.CallerName == "" {
		meta.CallerName = meta.Handle
	}
	return meta
}

// handleInvite обрабатывает входящий INVITE и re-INVITE
func (a *Adapter) handleInvite(req *sip.Request, tx responder) {
	id, ok := callID(req)
	if !ok {
		a.respond(req, tx, statusBadRequest, "Missing Call-ID")
		return
	}

	if tag := toTag(req); tag != "" {
		a.handleReinvite(id, tag, req, tx)
		return
	}

	a.mu.Lock()
	switch {
	case a.closed || a.sink == nil:
		a.mu.Unlock()
		a.respond(req, tx, statusServiceUnavailable, "Service Unavailable")
		return
	case !a.registered:
		a.mu.Unlock()
		a.respond(req, tx, statusTemporarilyUnavailable, "Temporarily Unavailable")
		return
	}
	_, exists := a.legs[id]
	if _, inviting := a.inviting[id]; exists || inviting {
		a.mu.Unlock()
		a.respond(req, tx, statusLoopDetected, "Loop Detected")
		return
	}
	leg := newInviteLeg(a, id, req, tx)
	a.legs[id] = leg
	a.inviting[id] = leg
	sink := a.sink
	a.mu.Unlock()

	if err := leg.ringing(); err != nil {
		a.logger.Error("failed to send ringing", slog.String("session_id", id), slog.Any("error", err))
		a.finishInvite(id, leg)
		a.removeLeg(id, leg)
		return
	}

	meta := metadataFromRequest(req)
	a.logger.Info("incoming sip call",
		slog.String("session_id", id),
		slog.String("from", meta.Handle))

	ctx := context.Background()
	err := sink.Register(ctx, id, callkit.DirectionIncoming, meta)
	orphaned := a.finishInvite(id, leg)

	switch {
	case err == nil:
		if orphaned {
			// Сеть завершила вызов до передачи соединения координатору
			a.logger.Info("sip call ended before registration", slog.String("session_id", id))
			if derr := sink.Disconnect(ctx, id, callkit.CauseRemote); derr != nil && !errors.Is(derr, callkit.ErrSessionNotFound) {
				a.logger.Warn("failed to end session", slog.String("session_id", id), slog.Any("error", derr))
			}
		}
		return
	case errors.Is(err, callkit.ErrSessionExists):
		// Звонок уже зарегистрирован приложением, INVITE становится
		// еще одним соединением той же сессии
		if !a.attachLeg(leg) {
			a.logger.Info("sip call ended before attach", slog.String("session_id", id))
			return
		}
		err = sink.OnConnectionCreated(id, callkit.DirectionIncoming, leg)
		a.settle(sink, id, leg)
		if err == nil {
			return
		}
	}

	a.logger.Warn("incoming call rejected by coordinator",
		slog.String("session_id", id),
		slog.Any("error", err))
	prev := leg.end()
	a.removeLeg(id, leg)
	if prev == legEnded {
		return
	}
	if rerr := tx.Respond(leg.response(statusBusyHere, "Busy Here", nil)); rerr != nil {
		a.logger.Error("failed to reject call", slog.String("session_id", id), slog.Any("error", rerr))
	}
}

// finishInvite снимает отметку обработки INVITE. Возвращает true, если
// сеть завершила вызов, а соединение так и не попало к координатору.
func (a *Adapter) finishInvite(id string, leg *inviteLeg) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.inviting[id] == leg {
		delete(a.inviting, id)
	}
	return !leg.attached && leg.currentState() == legEnded
}

// handleReinvite изменение направления медиа внутри диалога
func (a *Adapter) handleReinvite(id, tag string, req *sip.Request, tx responder) {
	leg := a.leg(id)
	if leg == nil || leg.toTag != tag || leg.currentState() != legAnswered {
		a.respond(req, tx, statusTransactionNotExist, "Call/Transaction Does Not Exist")
		return
	}

	offer, err := parseOffer(req.Body())
	if err != nil {
		a.logger.Warn("bad re-INVITE offer", slog.String("session_id", id), slog.Any("error", err))
		a.respond(req, tx, statusBadRequest, "Bad SDP")
		return
	}

	body, err := buildAnswer(offer, a.cfg.MediaHost, a.cfg.MediaPort)
	if err != nil {
		a.logger.Error("failed to build answer", slog.String("session_id", id), slog.Any("error", err))
		a.respond(req, tx, statusServerError, "Server Internal Error")
		return
	}

	res := sip.NewResponseFromRequest(req, statusOK, "OK", body)
	if len(body) > 0 {
		res.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	}
	if err := tx.Respond(res); err != nil {
		a.logger.Error("failed to respond to re-INVITE", slog.String("session_id", id), slog.Any("error", err))
		return
	}

	sink, err := a.sinkOrErr()
	if err != nil {
		return
	}

	if offerDirection(offer).holds() {
		a.logger.Info("remote hold", slog.String("session_id", id))
		sink.OnHold(id, leg)
		return
	}
	a.logger.Info("remote unhold", slog.String("session_id", id))
	sink.OnUnhold(id, leg)
}

// handleBye завершение диалога удаленной стороной
func (a *Adapter) handleBye(req *sip.Request, tx responder) {
	id, ok := callID(req)
	if !ok {
		a.respond(req, tx, statusBadRequest, "Missing Call-ID")
		return
	}

	leg := a.leg(id)
	if leg == nil {
		a.respond(req, tx, statusTransactionNotExist, "Call/Transaction Does Not Exist")
		return
	}

	a.respond(req, tx, statusOK, "OK")
	a.finishRemote(id, leg)
}

// handleCancel отмена неотвеченного INVITE
func (a *Adapter) handleCancel(req *sip.Request, tx responder) {
	id, ok := callID(req)
	if !ok {
		a.respond(req, tx, statusBadRequest, "Missing Call-ID")
		return
	}

	leg := a.leg(id)
	if leg == nil {
		a.respond(req, tx, statusTransactionNotExist, "Call/Transaction Does Not Exist")
		return
	}

	a.respond(req, tx, statusOK, "OK")

	if leg.currentState() != legRinging {
		// Вызов уже отвечен или завершен, CANCEL опоздал
		return
	}
	if err := leg.tx.Respond(leg.response(statusRequestTerminated, "Request Terminated", nil)); err != nil {
		a.logger.Error("failed to terminate INVITE", slog.String("session_id", id), slog.Any("error", err))
	}
	a.finishRemote(id, leg)
}

// finishRemote сообщает координатору о завершении вызова сетью
func (a *Adapter) finishRemote(id string, leg *inviteLeg) {
	a.mu.Lock()
	leg.end()
	attached := leg.attached
	sink := a.sink
	if a.legs[id] == leg {
		delete(a.legs, id)
	}
	a.mu.Unlock()

	a.logger.Info("sip call ended by remote", slog.String("session_id", id))

	if attached && sink != nil {
		sink.OnDisconnect(id, leg)
	}
}

func (a *Adapter) handleAck(req *sip.Request) {
	id, _ := callID(req)
	a.logger.Debug("ACK received", slog.String("session_id", id))
}

func (a *Adapter) handleOptions(req *sip.Request, tx responder) {
	res := sip.NewResponseFromRequest(req, statusOK, "OK", nil)
	res.AppendHeader(sip.NewHeader("Allow", "INVITE, ACK, BYE, CANCEL, OPTIONS"))
	if err := tx.Respond(res); err != nil {
		a.logger.Error("failed to respond to OPTIONS", slog.Any("error", err))
	}
}
