// Package simaudio моделирует аудиоподсистему и управление питанием
// устройства в памяти. Используется демоном на хосте без реальной
// аудиоподсистемы и в тестах.
package simaudio

import (
	"errors"
	"slices"
	"sync"

	"github.com/arzzra/callkit/pkg/audio"
)

// ErrInjected ошибка, возвращаемая операцией с внедренным сбоем
var ErrInjected = errors.New("simaudio: injected failure")

// Platform состояние симулированного устройства
type Platform struct {
	mu sync.Mutex

	mode         audio.Mode
	focus        []audio.FocusRequest
	outputs      []audio.Device
	commDevice   *audio.Device
	speaker      bool
	scoOn        bool
	scoStarted   bool
	scoOffCall   bool
	rejectDevice map[int]bool

	wakeLocks []*WakeLock
	tones     []*TonePlayer

	failures map[string]error
	calls    []string
}

// New создает устройство со встроенными разговорным динамиком и громкой связью
func New() *Platform {
	return &Platform{
		mode: audio.ModeNormal,
		outputs: []audio.Device{
			{ID: 1, Type: audio.DeviceBuiltinEarpiece, Name: "earpiece"},
			{ID: 2, Type: audio.DeviceBuiltinSpeaker, Name: "speaker"},
		},
		rejectDevice: make(map[int]bool),
		failures:     make(map[string]error),
	}
}

// AddDevice подключает устройство
func (p *Platform) AddDevice(d audio.Device) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.outputs = append(p.outputs, d)
}

// RemoveDevice отключает устройство по идентификатору
func (p *Platform) RemoveDevice(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.outputs = slices.DeleteFunc(p.outputs, func(d audio.Device) bool { return d.ID == id })
	if p.commDevice != nil && p.commDevice.ID == id {
		p.commDevice = nil
	}
}

// SetScoAvailableOffCall задает доступность SCO вне звонка
func (p *Platform) SetScoAvailableOffCall(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.scoOffCall = v
}

// RejectDevice заставляет платформу отклонять выбор устройства
func (p *Platform) RejectDevice(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rejectDevice[id] = true
}

// Fail внедряет сбой для операции op. nil снимает сбой.
func (p *Platform) Fail(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

// Calls возвращает журнал вызовов
func (p *Platform) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.calls)
}

// CallCount возвращает число вызовов операции op
func (p *Platform) CallCount(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, c := range p.calls {
		if c == op {
			n++
		}
	}
	return n
}

// FocusRequests возвращает удерживаемые запросы фокуса
func (p *Platform) FocusRequests() []audio.FocusRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.focus)
}

// Snapshot состояние устройства для проверок
type Snapshot struct {
	Mode         audio.Mode
	FocusHeld    bool
	CommDevice   *audio.Device
	Speaker      bool
	ScoOn        bool
	ScoStarted   bool
	WakeLocks    int
	TonesStarted int
}

// Snapshot возвращает текущее состояние устройства
func (p *Platform) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{
		Mode:       p.mode,
		FocusHeld:  len(p.focus) > 0,
		Speaker:    p.speaker,
		ScoOn:      p.scoOn,
		ScoStarted: p.scoStarted,
	}
	if p.commDevice != nil {
		d := *p.commDevice
		s.CommDevice = &d
	}
	for _, wl := range p.wakeLocks {
		if wl.held {
			s.WakeLocks++
		}
	}
	for _, t := range p.tones {
		s.TonesStarted += t.started
	}
	return s
}

func (p *Platform) enter(op string) error {
	p.calls = append(p.calls, op)
	return p.failures[op]
}

// Mode реализует audio.AudioManager
func (p *Platform) Mode() (audio.Mode, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter("get_mode"); err != nil {
		return 0, err
	}
	return p.mode, nil
}

// SetMode реализует audio.AudioManager
func (p *Platform) SetMode(mode audio.Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter("set_mode"); err != nil {
		return err
	}
	p.mode = mode
	return nil
}

// RequestFocus реализует audio.AudioManager
func (p *Platform) RequestFocus(req audio.FocusRequest) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter("request_focus"); err != nil {
		return false, err
	}
	p.focus = append(p.focus, req)
	return true, nil
}

// AbandonFocus реализует audio.AudioManager
func (p *Platform) AbandonFocus(req audio.FocusRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter("abandon_focus"); err != nil {
		return err
	}
	if i := slices.Index(p.focus, req); i >= 0 {
		p.focus = slices.Delete(p.focus, i, i+1)
	}
	return nil
}

// OutputDevices реализует audio.AudioManager
func (p *Platform) OutputDevices() ([]audio.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter("output_devices"); err != nil {
		return nil, err
	}
	return slices.Clone(p.outputs), nil
}

// AvailableCommunicationDevices реализует audio.AudioManager.
// A2DP и BLE динамики не годятся для голосовой связи.
func (p *Platform) AvailableCommunicationDevices() ([]audio.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter("available_communication_devices"); err != nil {
		return nil, err
	}
	var out []audio.Device
	for _, d := range p.outputs {
		if d.Type == audio.DeviceBluetoothA2DP || d.Type == audio.DeviceBLESpeaker {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// CommunicationDevice реализует audio.AudioManager
func (p *Platform) CommunicationDevice() (*audio.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter("communication_device"); err != nil {
		return nil, err
	}
	if p.commDevice == nil {
		return nil, nil
	}
	d := *p.commDevice
	return &d, nil
}

// SetCommunicationDevice реализует audio.AudioManager
func (p *Platform) SetCommunicationDevice(d audio.Device) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter("set_communication_device"); err != nil {
		return false, err
	}
	if p.rejectDevice[d.ID] {
		return false, nil
	}
	if !slices.ContainsFunc(p.outputs, func(o audio.Device) bool { return o.ID == d.ID }) {
		return false, nil
	}
	p.commDevice = &d
	return true, nil
}

// ClearCommunicationDevice реализует audio.AudioManager
func (p *Platform) ClearCommunicationDevice() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter("clear_communication_device"); err != nil {
		return err
	}
	p.commDevice = nil
	return nil
}

// SpeakerphoneOn реализует audio.AudioManager
func (p *Platform) SpeakerphoneOn() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter("speakerphone_on"); err != nil {
		return false, err
	}
	return p.speaker, nil
}

// SetSpeakerphoneOn реализует audio.AudioManager
func (p *Platform) SetSpeakerphoneOn(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter("set_speakerphone_on"); err != nil {
		return err
	}
	p.speaker = on
	return nil
}

// BluetoothScoOn реализует audio.AudioManager
func (p *Platform) BluetoothScoOn() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter("bluetooth_sco_on"); err != nil {
		return false, err
	}
	return p.scoOn, nil
}

// SetBluetoothScoOn реализует audio.AudioManager
func (p *Platform) SetBluetoothScoOn(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter("set_bluetooth_sco_on"); err != nil {
		return err
	}
	p.scoOn = on
	return nil
}

// BluetoothScoAvailableOffCall реализует audio.AudioManager
func (p *Platform) BluetoothScoAvailableOffCall() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, "sco_available_off_call")
	return p.scoOffCall
}

// StartBluetoothSco реализует audio.AudioManager
func (p *Platform) StartBluetoothSco() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter("start_bluetooth_sco"); err != nil {
		return err
	}
	p.scoStarted = true
	return nil
}

// StopBluetoothSco реализует audio.AudioManager
func (p *Platform) StopBluetoothSco() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter("stop_bluetooth_sco"); err != nil {
		return err
	}
	p.scoStarted = false
	return nil
}

// NewWakeLock реализует audio.PowerManager
func (p *Platform) NewWakeLock(tag string) (audio.WakeLock, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter("wake_lock_new"); err != nil {
		return nil, err
	}
	wl := &WakeLock{p: p, tag: tag}
	p.wakeLocks = append(p.wakeLocks, wl)
	return wl, nil
}

// NewTonePlayer фабрика проигрывателей, совместимая с audio.TonePlayerFactory
func (p *Platform) NewTonePlayer() (audio.TonePlayer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter("tone_player_new"); err != nil {
		return nil, err
	}
	t := &TonePlayer{p: p}
	p.tones = append(p.tones, t)
	return t, nil
}

// WakeLock симулированная блокировка сна
type WakeLock struct {
	p    *Platform
	tag  string
	held bool
}

// Acquire реализует audio.WakeLock
func (w *WakeLock) Acquire() error {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()

	if err := w.p.enter("wake_lock_acquire"); err != nil {
		return err
	}
	w.held = true
	return nil
}

// Release реализует audio.WakeLock
func (w *WakeLock) Release() error {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()

	if err := w.p.enter("wake_lock_release"); err != nil {
		return err
	}
	w.held = false
	return nil
}

// Held реализует audio.WakeLock
func (w *WakeLock) Held() bool {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()

	return w.held
}

// TonePlayer симулированный проигрыватель тонов. Считает начатые гудки.
type TonePlayer struct {
	p       *Platform
	started int
	playing bool
	closed  bool
}

// StartTone реализует audio.TonePlayer
func (t *TonePlayer) StartTone() error {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()

	if err := t.p.enter("tone_start"); err != nil {
		return err
	}
	if t.closed {
		return errors.New("simaudio: tone player closed")
	}
	t.started++
	t.playing = true
	return nil
}

// StopTone реализует audio.TonePlayer
func (t *TonePlayer) StopTone() error {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()

	if err := t.p.enter("tone_stop"); err != nil {
		return err
	}
	t.playing = false
	return nil
}

// Close реализует audio.TonePlayer
func (t *TonePlayer) Close() error {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()

	if err := t.p.enter("tone_close"); err != nil {
		return err
	}
	t.closed = true
	return nil
}

var (
	_ audio.AudioManager = (*Platform)(nil)
	_ audio.PowerManager = (*Platform)(nil)
	_ audio.WakeLock     = (*WakeLock)(nil)
	_ audio.TonePlayer   = (*TonePlayer)(nil)
)
