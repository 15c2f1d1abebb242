package callkit

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/callkit/pkg/audio"
	"github.com/arzzra/callkit/pkg/audio/simaudio"
)

// recordedEvent событие, полученное шиной
type recordedEvent struct {
	Name    string
	Payload map[string]any
}

// eventRecorder шина событий, запоминающая все события
type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) Emit(name string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Name: name, Payload: maps.Clone(payload)})
}

func (r *eventRecorder) Named(name string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []recordedEvent
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (r *eventRecorder) Count(name string) int {
	return len(r.Named(name))
}

// ForSession возвращает события name для сессии id
func (r *eventRecorder) ForSession(name, id string) []recordedEvent {
	var out []recordedEvent
	for _, e := range r.Named(name) {
		if e.Payload["id"] == id {
			out = append(out, e)
		}
	}
	return out
}

// WaitForEvent ждет появления события с таймаутом
func (r *eventRecorder) WaitForEvent(name string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.Count(name) > 0 {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func (r *eventRecorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// fakeNotifier запоминает вызовы уведомлений в виде "вид:id"
type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *fakeNotifier) record(kind string, meta Metadata) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, kind+":"+meta.Handle)
}

func (n *fakeNotifier) ShowIncoming(meta Metadata)  { n.record("incoming", meta) }
func (n *fakeNotifier) ClearIncoming(meta Metadata) { n.record("clear", meta) }
func (n *fakeNotifier) ShowOngoing(meta Metadata)   { n.record("ongoing", meta) }
func (n *fakeNotifier) ShowMissed(meta Metadata)    { n.record("missed", meta) }

func (n *fakeNotifier) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

// fakeLeg дескриптор ОС с журналом вызовов и внедряемыми сбоями
type fakeLeg struct {
	mu     sync.Mutex
	name   string
	calls  []string
	failOn map[string]error
}

func newFakeLeg(name string) *fakeLeg {
	return &fakeLeg{name: name, failOn: make(map[string]error)}
}

func (l *fakeLeg) record(op string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, op)
	return l.failOn[op]
}

func (l *fakeLeg) Fail(op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failOn[op] = err
}

func (l *fakeLeg) SetActive() error { return l.record("active") }
func (l *fakeLeg) SetOnHold() error { return l.record("hold") }
func (l *fakeLeg) SetDisconnected(cause DisconnectCause) error {
	return l.record("disconnected:" + cause.String())
}
func (l *fakeLeg) Destroy() error { return l.record("destroy") }
func (l *fakeLeg) SetAudioRoute(route audio.Route) error {
	return l.record("route:" + route.String())
}

func (l *fakeLeg) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *fakeLeg) CallCount(op string) int {
	n := 0
	for _, c := range l.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

// fakeTelephony системная телефония, создающая соединение на каждую регистрацию
type fakeTelephony struct {
	mu          sync.Mutex
	coordinator *Coordinator
	autoConnect bool
	registerErr error
	legs        map[string]*fakeLeg
	account     []string
}

func newFakeTelephony() *fakeTelephony {
	return &fakeTelephony{autoConnect: true, legs: make(map[string]*fakeLeg)}
}

func (f *fakeTelephony) register(id string, direction Direction) error {
	f.mu.Lock()
	if f.registerErr != nil {
		err := f.registerErr
		f.mu.Unlock()
		return err
	}
	if !f.autoConnect {
		f.mu.Unlock()
		return nil
	}
	leg := newFakeLeg(id)
	f.legs[id] = leg
	c := f.coordinator
	f.mu.Unlock()

	return c.OnConnectionCreated(id, direction, leg)
}

func (f *fakeTelephony) RegisterIncoming(ctx context.Context, id string, meta Metadata) error {
	return f.register(id, DirectionIncoming)
}

func (f *fakeTelephony) RegisterOutgoing(ctx context.Context, id string, meta Metadata) error {
	return f.register(id, DirectionOutgoing)
}

func (f *fakeTelephony) RegisterAccount(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.account = append(f.account, "register")
	return nil
}

func (f *fakeTelephony) UnregisterAccount(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.account = append(f.account, "unregister")
	return nil
}

func (f *fakeTelephony) Leg(id string) *fakeLeg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.legs[id]
}

// fakeUI запоминает запуски интерфейса
type fakeUI struct {
	mu       sync.Mutex
	err      error
	launches []string
}

func (u *fakeUI) LaunchForeground(action string, meta Metadata) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.launches = append(u.launches, action+":"+meta.Handle)
	return u.err
}

func (u *fakeUI) Launches() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.launches...)
}

// harness координатор с фейковым окружением
type harness struct {
	c         *Coordinator
	events    *eventRecorder
	notes     *fakeNotifier
	telephony *fakeTelephony
	ui        *fakeUI
	platform  *simaudio.Platform
	registry  *prometheus.Registry
}

func newHarness(t *testing.T, mutate ...func(*Config, *Dependencies)) *harness {
	t.Helper()

	h := &harness{
		events:    &eventRecorder{},
		notes:     &fakeNotifier{},
		telephony: newFakeTelephony(),
		ui:        &fakeUI{},
		platform:  simaudio.New(),
		registry:  prometheus.NewRegistry(),
	}

	cfg := DefaultConfig()
	cfg.Metrics = NewMetrics(h.registry, "callkit")
	deps := Dependencies{
		Notifications: h.notes,
		Events:        h.events,
		Telephony:     h.telephony,
		UI:            h.ui,
		Audio:         h.platform,
		Power:         h.platform,
		Tones:         h.platform.NewTonePlayer,
	}
	for _, m := range mutate {
		m(&cfg, &deps)
	}

	c, err := New(cfg, deps)
	require.NoError(t, err)
	h.telephony.coordinator = c
	h.c = c

	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return h
}

func (h *harness) register(t *testing.T, id string, direction Direction) {
	t.Helper()
	meta := Metadata{CallerName: "Caller " + id, Handle: id}
	require.NoError(t, h.c.Register(context.Background(), id, direction, meta))
}

// state возвращает состояние последнего соединения сессии
func (h *harness) state(id string) State {
	conn, ok := h.c.sessions.Get(id)
	if !ok {
		return ""
	}
	return conn.State()
}

// activeCount считает сессии в состоянии Active. Учитывает и сессии без
// соединений ОС, состояние которых выводится из флагов записи.
func (h *harness) activeCount() int {
	n := 0
	for _, summary := range h.c.ActiveSessions() {
		if summary.State == StateActive {
			n++
		}
	}
	return n
}

func sessionIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("c%d", i+1)
	}
	return ids
}
