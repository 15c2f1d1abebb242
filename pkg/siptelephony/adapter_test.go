package siptelephony

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/arzzra/callkit/pkg/audio/simaudio"
	"github.com/arzzra/callkit/pkg/callkit"
)

const offerSendRecv = "v=0\r\n" +
	"o=- 1 1 IN IP4 10.0.0.1\r\n" +
	"s=-\r\n" +
	"c=IN IP4 10.0.0.1\r\n" +
	"t=0 0\r\n" +
	"m=audio 4000 RTP/AVP 0 101\r\n" +
	"a=rtpmap:0 PCMU/8000\r\n" +
	"a=rtpmap:101 telephone-event/8000\r\n" +
	"a=sendrecv\r\n"

var offerSendOnly = strings.Replace(offerSendRecv, "a=sendrecv", "a=sendonly", 1)

// recordingTx серверная транзакция, запоминающая ответы
type recordingTx struct {
	mu        sync.Mutex
	responses []*sip.Response
}

func (tx *recordingTx) Respond(res *sip.Response) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.responses = append(tx.responses, res)
	return nil
}

func (tx *recordingTx) codes() []int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	codes := make([]int, 0, len(tx.responses))
	for _, r := range tx.responses {
		codes = append(codes, int(r.StatusCode))
	}
	return codes
}

func (tx *recordingTx) last() *sip.Response {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if len(tx.responses) == 0 {
		return nil
	}
	return tx.responses[len(tx.responses)-1]
}

type nopNotifier struct{}

func (nopNotifier) ShowIncoming(callkit.Metadata)  {}
func (nopNotifier) ClearIncoming(callkit.Metadata) {}
func (nopNotifier) ShowOngoing(callkit.Metadata)   {}
func (nopNotifier) ShowMissed(callkit.Metadata)    {}

type nopEvents struct{}

func (nopEvents) Emit(string, map[string]any) {}

func remoteURI() sip.Uri {
	return sip.Uri{User: "alice", Host: "example.com"}
}

func localURI() sip.Uri {
	return sip.Uri{User: "callkitd", Host: "127.0.0.1", Port: 5060}
}

// newRequest собирает запрос внутри вызова callID от alice
func newRequest(method sip.RequestMethod, callID, toTag, body string) *sip.Request {
	req := sip.NewRequest(method, localURI())

	req.AppendHeader(&sip.ViaHeader{
		ProtocolName:    "SIP",
		ProtocolVersion: "2.0",
		Transport:       "UDP",
		Host:            "10.0.0.1",
		Port:            5070,
		Params:          sip.NewParams().Add("branch", "z9hG4bK-"+callID+"-"+string(method)),
	})

	from := &sip.FromHeader{DisplayName: "Alice", Address: remoteURI(), Params: sip.NewParams()}
	from.Params = from.Params.Add("tag", "alice-tag")
	req.AppendHeader(from)

	to := &sip.ToHeader{Address: localURI(), Params: sip.NewParams()}
	if toTag != "" {
		to.Params = to.Params.Add("tag", toTag)
	}
	req.AppendHeader(to)

	if callID != "" {
		cid := sip.CallIDHeader(callID)
		req.AppendHeader(&cid)
	}
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: method})
	req.AppendHeader(&sip.ContactHeader{
		Address: sip.Uri{User: "alice", Host: "10.0.0.1", Port: 5070},
		Params:  sip.NewParams(),
	})

	if body != "" {
		req.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
		req.SetBody([]byte(body))
	}
	return req
}

func responseTag(res *sip.Response) string {
	if res == nil || res.To() == nil {
		return ""
	}
	tag, _ := res.To().Params.Get("tag")
	return tag
}

// interceptingSink координатор, перед которым выполняется действие сети.
// Моделирует CANCEL, пришедший во время передачи вызова координатору.
type interceptingSink struct {
	*callkit.Coordinator

	mu             sync.Mutex
	beforeRegister func()
	beforeConnect  func()
}

func (s *interceptingSink) take(fn *func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := *fn
	*fn = nil
	return f
}

func (s *interceptingSink) Register(ctx context.Context, id string, direction callkit.Direction, meta callkit.Metadata) error {
	if f := s.take(&s.beforeRegister); f != nil {
		f()
	}
	return s.Coordinator.Register(ctx, id, direction, meta)
}

func (s *interceptingSink) OnConnectionCreated(id string, direction callkit.Direction, leg callkit.Leg) error {
	if f := s.take(&s.beforeConnect); f != nil {
		f()
	}
	return s.Coordinator.OnConnectionCreated(id, direction, leg)
}

type AdapterTestSuite struct {
	suite.Suite

	adapter *Adapter
	coord   *callkit.Coordinator
	byes    chan *sip.Request
}

func (s *AdapterTestSuite) SetupTest() {
	cfg := DefaultConfig()
	cfg.MediaPort = 4002
	adapter, err := New(cfg)
	s.Require().NoError(err)

	s.byes = make(chan *sip.Request, 4)
	adapter.send = func(ctx context.Context, req *sip.Request) (*sip.Response, error) {
		s.byes <- req
		return sip.NewResponseFromRequest(req, statusOK, "OK", nil), nil
	}

	platform := simaudio.New()
	coord, err := callkit.New(callkit.DefaultConfig(), callkit.Dependencies{
		Notifications: nopNotifier{},
		Events:        nopEvents{},
		Telephony:     adapter,
		Audio:         platform,
		Power:         platform,
		Tones:         platform.NewTonePlayer,
	})
	s.Require().NoError(err)
	adapter.SetSink(coord)
	s.Require().NoError(coord.Init(context.Background()))

	s.adapter = adapter
	s.coord = coord
}

func (s *AdapterTestSuite) TearDownTest() {
	_ = s.coord.Close(context.Background())
	_ = s.adapter.Close()
}

// invite доставляет INVITE и возвращает его транзакцию
func (s *AdapterTestSuite) invite(callID string) *recordingTx {
	tx := &recordingTx{}
	s.adapter.handleInvite(newRequest(sip.INVITE, callID, "", offerSendRecv), tx)
	return tx
}

func (s *AdapterTestSuite) answer(callID string) (*recordingTx, string) {
	tx := s.invite(callID)
	s.Require().NoError(s.coord.Answer(context.Background(), callID))
	s.Require().Equal([]int{statusRinging, statusOK}, tx.codes())
	return tx, responseTag(tx.last())
}

func (s *AdapterTestSuite) state(id string) callkit.State {
	summary, err := s.coord.Session(id)
	s.Require().NoError(err)
	return summary.State
}

func (s *AdapterTestSuite) TestIncomingInviteRings() {
	tx := s.invite("call-1")

	s.Equal([]int{statusRinging}, tx.codes())
	s.NotEmpty(responseTag(tx.last()), "Ответ должен содержать To tag")
	s.Equal(1, s.adapter.PendingCount())

	summary, err := s.coord.Session("call-1")
	s.Require().NoError(err)
	s.Equal(callkit.StateRinging, summary.State)
	s.Equal("Alice", summary.Metadata.CallerName)
	s.Equal("alice", summary.Metadata.Handle)
	s.Contains(summary.Metadata.Extra[ExtraSIPFrom], "alice@example.com")
	s.Equal(1, summary.Connections)
}

func (s *AdapterTestSuite) TestAnswerSendsOKWithSDP() {
	tx, tag := s.answer("call-1")

	ringTag := responseTag(tx.responses[0])
	s.Equal(ringTag, tag, "180 и 200 должны нести один To tag")

	ok := tx.last()
	s.NotNil(ok.Contact())
	body := string(ok.Body())
	s.Contains(body, "m=audio 4002 RTP/AVP 0")
	s.Contains(body, "a=rtpmap:0 PCMU/8000")
	s.Contains(body, "a=sendrecv")
	s.Equal(callkit.StateActive, s.state("call-1"))

	// Повторный ответ не отправляет второй 200
	s.Require().NoError(s.coord.Answer(context.Background(), "call-1"))
	s.Len(tx.codes(), 2)
}

func (s *AdapterTestSuite) TestLocalHangupSendsBye() {
	_, tag := s.answer("call-1")

	s.Require().NoError(s.coord.Disconnect(context.Background(), "call-1", callkit.CauseLocal))

	select {
	case bye := <-s.byes:
		s.Equal(sip.BYE, bye.Method)
		s.Equal("10.0.0.1", bye.Recipient.Host, "BYE отправляется на Contact")
		s.Equal("call-1", string(*bye.CallID()))
		fromTag, _ := bye.From().Params.Get("tag")
		s.Equal(tag, fromTag)
		toTag, _ := bye.To().Params.Get("tag")
		s.Equal("alice-tag", toTag)
	case <-time.After(time.Second):
		s.Fail("BYE не отправлен")
	}

	s.Equal(0, s.adapter.PendingCount())
}

func (s *AdapterTestSuite) TestRejectStatuses() {
	tests := []struct {
		cause callkit.DisconnectCause
		code  int
	}{
		{callkit.CauseRejected, statusDecline},
		{callkit.CauseBusy, statusBusyHere},
		{callkit.CauseMissed, statusRequestTerminated},
		{callkit.CauseLocal, statusTemporarilyUnavailable},
	}
	for _, tt := range tests {
		id := "call-" + tt.cause.String()
		tx := s.invite(id)
		s.Require().NoError(s.coord.Disconnect(context.Background(), id, tt.cause))
		s.Equal([]int{statusRinging, tt.code}, tx.codes(), tt.cause.String())
	}
	s.Equal(0, s.adapter.PendingCount())
	s.Empty(s.byes, "Неотвеченный вызов не завершается BYE")
}

func (s *AdapterTestSuite) TestRemoteBye() {
	s.answer("call-1")

	byeTx := &recordingTx{}
	s.adapter.handleBye(newRequest(sip.BYE, "call-1", "x", ""), byeTx)

	s.Equal([]int{statusOK}, byeTx.codes())
	_, err := s.coord.Session("call-1")
	s.ErrorIs(err, callkit.ErrSessionNotFound)
	s.Equal(0, s.adapter.PendingCount())
	s.Empty(s.byes, "Ответный BYE не отправляется")
}

func (s *AdapterTestSuite) TestCancelBeforeAnswer() {
	inviteTx := s.invite("call-1")

	cancelTx := &recordingTx{}
	s.adapter.handleCancel(newRequest(sip.CANCEL, "call-1", "", ""), cancelTx)

	s.Equal([]int{statusOK}, cancelTx.codes())
	s.Equal([]int{statusRinging, statusRequestTerminated}, inviteTx.codes())
	_, err := s.coord.Session("call-1")
	s.ErrorIs(err, callkit.ErrSessionNotFound)
}

func (s *AdapterTestSuite) cancel(callID string) {
	s.adapter.handleCancel(newRequest(sip.CANCEL, callID, "", ""), &recordingTx{})
}

func (s *AdapterTestSuite) TestCancelBeforeRegistration() {
	sink := &interceptingSink{Coordinator: s.coord}
	sink.beforeRegister = func() { s.cancel("call-1") }
	s.adapter.SetSink(sink)

	inviteTx := s.invite("call-1")

	s.Equal([]int{statusRinging, statusRequestTerminated}, inviteTx.codes())
	_, err := s.coord.Session("call-1")
	s.ErrorIs(err, callkit.ErrSessionNotFound, "Сессия завершенного вызова не остается в координаторе")
	s.Empty(s.coord.ActiveSessions())
	s.Equal(0, s.adapter.PendingCount())
}

func (s *AdapterTestSuite) TestCancelDuringAttach() {
	sink := &interceptingSink{Coordinator: s.coord}
	sink.beforeConnect = func() { s.cancel("call-1") }
	s.adapter.SetSink(sink)

	inviteTx := s.invite("call-1")

	s.Equal([]int{statusRinging, statusRequestTerminated}, inviteTx.codes())
	_, err := s.coord.Session("call-1")
	s.ErrorIs(err, callkit.ErrSessionNotFound, "Завершенное соединение не остается в реестре")
	s.Equal(0, s.adapter.PendingCount())
}

func (s *AdapterTestSuite) TestCancelBeforeAttachToExistingSession() {
	ctx := context.Background()
	s.Require().NoError(s.coord.Register(ctx, "push-1", callkit.DirectionIncoming, callkit.Metadata{Handle: "bob"}))

	sink := &interceptingSink{Coordinator: s.coord}
	sink.beforeRegister = func() { s.cancel("push-1") }
	s.adapter.SetSink(sink)

	inviteTx := s.invite("push-1")

	s.Equal([]int{statusRinging, statusRequestTerminated}, inviteTx.codes())
	summary, err := s.coord.Session("push-1")
	s.Require().NoError(err, "Сессия приложения сохраняется")
	s.Equal(1, summary.Connections)
	s.Equal(0, s.adapter.PendingCount())
}

func (s *AdapterTestSuite) TestCancelAfterAnswerIgnored() {
	inviteTx, _ := s.answer("call-1")

	cancelTx := &recordingTx{}
	s.adapter.handleCancel(newRequest(sip.CANCEL, "call-1", "", ""), cancelTx)

	s.Equal([]int{statusOK}, cancelTx.codes())
	s.Len(inviteTx.codes(), 2)
	s.Equal(callkit.StateActive, s.state("call-1"))
}

func (s *AdapterTestSuite) TestReinviteHoldAndResume() {
	_, tag := s.answer("call-1")

	holdTx := &recordingTx{}
	s.adapter.handleInvite(newRequest(sip.INVITE, "call-1", tag, offerSendOnly), holdTx)
	s.Require().Equal([]int{statusOK}, holdTx.codes())
	s.Contains(string(holdTx.last().Body()), "a=recvonly")

	summary, err := s.coord.Session("call-1")
	s.Require().NoError(err)
	s.Equal(callkit.StateHolding, summary.State)
	s.True(summary.OnHold)

	resumeTx := &recordingTx{}
	s.adapter.handleInvite(newRequest(sip.INVITE, "call-1", tag, offerSendRecv), resumeTx)
	s.Require().Equal([]int{statusOK}, resumeTx.codes())
	s.Equal(callkit.StateActive, s.state("call-1"))
}

func (s *AdapterTestSuite) TestReinviteUnknownDialog() {
	s.answer("call-1")

	tx := &recordingTx{}
	s.adapter.handleInvite(newRequest(sip.INVITE, "call-1", "wrong-tag", offerSendOnly), tx)
	s.Equal([]int{statusTransactionNotExist}, tx.codes())

	tx = &recordingTx{}
	s.adapter.handleInvite(newRequest(sip.INVITE, "call-2", "any", offerSendOnly), tx)
	s.Equal([]int{statusTransactionNotExist}, tx.codes())
}

func (s *AdapterTestSuite) TestRejectedRequests() {
	tx := &recordingTx{}
	s.adapter.handleInvite(newRequest(sip.INVITE, "", "", ""), tx)
	s.Equal([]int{statusBadRequest}, tx.codes(), "INVITE без Call-ID")

	tx = &recordingTx{}
	s.adapter.handleBye(newRequest(sip.BYE, "missing", "x", ""), tx)
	s.Equal([]int{statusTransactionNotExist}, tx.codes(), "BYE для неизвестного вызова")

	tx = &recordingTx{}
	s.adapter.handleCancel(newRequest(sip.CANCEL, "missing", "", ""), tx)
	s.Equal([]int{statusTransactionNotExist}, tx.codes(), "CANCEL для неизвестного вызова")

	s.invite("call-1")
	tx = s.invite("call-1")
	s.Equal([]int{statusLoopDetected}, tx.codes(), "Повторный INVITE без To tag")
}

func (s *AdapterTestSuite) TestUnregisteredAccountRejectsCalls() {
	s.Require().NoError(s.adapter.UnregisterAccount(context.Background()))

	tx := s.invite("call-1")
	s.Equal([]int{statusTemporarilyUnavailable}, tx.codes())
	s.Empty(s.coord.ActiveSessions())
}

func (s *AdapterTestSuite) TestAppRegisteredCallsUseVirtualLegs() {
	ctx := context.Background()
	s.Require().NoError(s.coord.Register(ctx, "push-1", callkit.DirectionIncoming, callkit.Metadata{Handle: "bob"}))
	s.Require().NoError(s.coord.Register(ctx, "out-1", callkit.DirectionOutgoing, callkit.Metadata{Handle: "carol"}))

	s.Equal(callkit.StateRinging, s.state("push-1"))
	s.Equal(callkit.StateDialing, s.state("out-1"))
	s.Equal(0, s.adapter.PendingCount(), "Виртуальные соединения не попадают в таблицу SIP")

	// INVITE для уже зарегистрированного звонка добавляет второе соединение
	tx := s.invite("push-1")
	s.Equal([]int{statusRinging}, tx.codes())
	summary, err := s.coord.Session("push-1")
	s.Require().NoError(err)
	s.Equal(2, summary.Connections)
}

func (s *AdapterTestSuite) TestOptions() {
	tx := &recordingTx{}
	s.adapter.handleOptions(newRequest(sip.OPTIONS, "opt-1", "", ""), tx)
	s.Equal([]int{statusOK}, tx.codes())
	s.NotNil(tx.last().GetHeader("Allow"))
}

func TestAdapterTestSuite(t *testing.T) {
	suite.Run(t, new(AdapterTestSuite))
}

func TestAdapterWithoutSink(t *testing.T) {
	adapter, err := New(DefaultConfig())
	require.NoError(t, err)
	defer adapter.Close()

	err = adapter.RegisterIncoming(context.Background(), "c1", callkit.Metadata{})
	assert.ErrorIs(t, err, ErrNoSink)
	err = adapter.RegisterOutgoing(context.Background(), "c1", callkit.Metadata{})
	assert.ErrorIs(t, err, ErrNoSink)

	tx := &recordingTx{}
	adapter.handleInvite(newRequest(sip.INVITE, "c1", "", ""), tx)
	assert.Equal(t, []int{statusServiceUnavailable}, tx.codes())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"пустой адрес", func(c *Config) { c.ListenAddr = "" }},
		{"неизвестный транспорт", func(c *Config) { c.Transport = "sctp" }},
		{"пустой домен", func(c *Config) { c.Domain = "" }},
		{"порт вне диапазона", func(c *Config) { c.MediaPort = 70000 }},
		{"нулевой таймаут BYE", func(c *Config) { c.ByeTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}
