package audio

import (
	"errors"
	"log/slog"
	"sync"
)

// KeepAliveMode режим удержания ресурсов
type KeepAliveMode int

const (
	// Ringing исходящий вызов ожидает ответа, играют гудки
	Ringing KeepAliveMode = iota
	// InCall идет разговор
	InCall
)

// String возвращает строковое представление режима
func (m KeepAliveMode) String() string {
	if m == InCall {
		return "in_call"
	}
	return "ringing"
}

// KeepAliveState снимок состояния удерживаемых ресурсов
type KeepAliveState struct {
	WakeLockHeld    bool
	FocusHeld       bool
	ModeSaved       bool
	PreviousMode    Mode
	RingbackPlaying bool
}

// KeepAlive удерживает wake lock, аудиофокус и режим аудиоподсистемы,
// пока жив хотя бы один звонок. Каждое изменение режима сохраняет прежнее
// значение один раз, поэтому Release восстанавливает ровно один уровень.
type KeepAlive struct {
	mu sync.Mutex

	am    AudioManager
	power PowerManager
	caps  Capabilities
	cfg   KeepAliveConfig

	logger *slog.Logger

	wakeLock  WakeLock
	focusHeld bool
	focusReq  FocusRequest
	prevMode  Mode
	modeSaved bool
	ringback  *ringback

	hooks []func()
}

// NewKeepAlive создает менеджер удержания ресурсов
func NewKeepAlive(am AudioManager, power PowerManager, tones TonePlayerFactory, caps Capabilities, cfg KeepAliveConfig) (*KeepAlive, error) {
	if am == nil {
		return nil, errors.New("audio manager is required")
	}
	if power == nil {
		return nil, errors.New("power manager is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	k := &KeepAlive{
		am:     am,
		power:  power,
		caps:   caps,
		cfg:    cfg,
		logger: componentLogger(cfg.Logger, "audio_keepalive"),
	}
	k.ringback = newRingback(&k.mu, tones, cfg.RingbackOn, cfg.RingbackOff, k.logger, k.fail)
	return k, nil
}

// OnRelease добавляет обработчик, вызываемый после каждого Release.
// Обработчики выполняются без удержания блокировки KeepAlive.
func (k *KeepAlive) OnRelease(fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.hooks = append(k.hooks, fn)
}

// Ensure захватывает ресурсы для указанного режима. Повторный вызов
// не захватывает уже удерживаемые ресурсы.
func (k *KeepAlive) Ensure(mode KeepAliveMode) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.logger.Debug("ensure keepalive", slog.String("mode", mode.String()))

	k.acquireWakeLockLocked()

	switch mode {
	case InCall:
		k.ringback.stopLocked()
		k.requestFocusLocked()
		k.setModeLocked(ModeInCommunication)
	case Ringing:
		k.setModeLocked(ModeNormal)
		k.ringback.startLocked()
	}
}

// EnsureCommunicationMode переводит аудиоподсистему в режим связи,
// сохраняя прежний режим, если он еще не сохранен.
func (k *KeepAlive) EnsureCommunicationMode() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.setModeLocked(ModeInCommunication)
}

// StopRingback прекращает гудки и отменяет уже запланированный следующий гудок
func (k *KeepAlive) StopRingback() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.ringback.stopLocked()
}

// Release освобождает все удерживаемые ресурсы и восстанавливает режим.
// Вызов без предшествующего Ensure ничего не делает.
func (k *KeepAlive) Release() {
	k.mu.Lock()

	k.ringback.stopLocked()

	if k.focusHeld {
		req := k.focusReq
		if err := attempt("abandon_focus", func() error { return k.am.AbandonFocus(req) }); err != nil {
			k.fail("abandon_focus", err)
		}
		k.focusHeld = false
	}

	if k.modeSaved {
		prev := k.prevMode
		if err := attempt("set_mode", func() error { return k.am.SetMode(prev) }); err != nil {
			k.fail("set_mode", err)
		}
		k.modeSaved = false
		k.prevMode = ModeNormal
	}

	if k.wakeLock != nil {
		wl := k.wakeLock
		if wl.Held() {
			if err := attempt("wake_lock_release", wl.Release); err != nil {
				k.fail("wake_lock_release", err)
			}
		}
		k.wakeLock = nil
	}

	hooks := make([]func(), len(k.hooks))
	copy(hooks, k.hooks)
	k.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
}

// State возвращает снимок состояния
func (k *KeepAlive) State() KeepAliveState {
	k.mu.Lock()
	defer k.mu.Unlock()

	return KeepAliveState{
		WakeLockHeld:    k.wakeLock != nil && k.wakeLock.Held(),
		FocusHeld:       k.focusHeld,
		ModeSaved:       k.modeSaved,
		PreviousMode:    k.prevMode,
		RingbackPlaying: k.ringback.playing,
	}
}

// Capabilities возвращает возможности платформы
func (k *KeepAlive) Capabilities() Capabilities {
	return k.caps
}

func (k *KeepAlive) acquireWakeLockLocked() {
	if k.wakeLock != nil && k.wakeLock.Held() {
		return
	}

	if k.wakeLock == nil {
		var wl WakeLock
		err := attempt("wake_lock_new", func() error {
			var err error
			wl, err = k.power.NewWakeLock(k.cfg.WakeLockTag)
			return err
		})
		if err != nil {
			k.fail("wake_lock_new", err)
			return
		}
		k.wakeLock = wl
	}

	if err := attempt("wake_lock_acquire", k.wakeLock.Acquire); err != nil {
		k.fail("wake_lock_acquire", err)
	}
}

func (k *KeepAlive) requestFocusLocked() {
	if k.focusHeld {
		return
	}

	req := k.caps.focusRequest(FocusVoiceCommunication)
	var granted bool
	err := attempt("request_focus", func() error {
		var err error
		granted, err = k.am.RequestFocus(req)
		return err
	})
	if err != nil {
		k.fail("request_focus", err)
		return
	}
	if !granted {
		k.logger.Warn("audio focus not granted", slog.Bool("legacy", req.Legacy))
		return
	}

	k.focusHeld = true
	k.focusReq = req
}

func (k *KeepAlive) setModeLocked(mode Mode) {
	if !k.modeSaved {
		var current Mode
		err := attempt("get_mode", func() error {
			var err error
			current, err = k.am.Mode()
			return err
		})
		if err != nil {
			k.fail("get_mode", err)
		} else {
			k.prevMode = current
			k.modeSaved = true
		}
	}

	if err := attempt("set_mode", func() error { return k.am.SetMode(mode) }); err != nil {
		k.fail("set_mode", err)
	}
}

func (k *KeepAlive) fail(op string, err error) {
	k.logger.Error("platform call failed", slog.String("op", op), slog.Any("error", err))
	if k.cfg.OnFailure != nil {
		k.cfg.OnFailure(op, err)
	}
}
