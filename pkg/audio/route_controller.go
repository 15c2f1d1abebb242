package audio

import (
	"errors"
	"log/slog"
	"sync"
)

// ConnectionCounter сообщает число зарегистрированных соединений сессии
type ConnectionCounter interface {
	Count(id string) int
}

// ModeEnsurer переводит аудиоподсистему в режим связи. Реализуется KeepAlive.
type ModeEnsurer interface {
	EnsureCommunicationMode()
}

// RouteState снимок состояния контроллера маршрутов
type RouteState struct {
	Route          Route
	Routed         bool
	PreviousSaved  bool
	PreviousDevice *Device
	ScoStarted     bool
}

// RouteController переключает вывод звука звонка на устройство выбранной
// категории. Прежнее устройство и флаги запоминаются при первом изменении
// и восстанавливаются в ReleaseRoute.
type RouteController struct {
	mu sync.Mutex

	am       AudioManager
	caps     Capabilities
	mode     ModeEnsurer
	sessions ConnectionCounter

	logger    *slog.Logger
	onFailure FailureObserver

	route  Route
	routed bool

	prevDevice      *Device
	prevDeviceSaved bool

	prevSpeaker bool
	prevSco     bool
	flagsSaved  bool
	scoStarted  bool
}

// NewRouteController создает контроллер маршрутов
func NewRouteController(am AudioManager, caps Capabilities, mode ModeEnsurer, sessions ConnectionCounter, cfg RouteConfig) (*RouteController, error) {
	if am == nil {
		return nil, errors.New("audio manager is required")
	}
	if sessions == nil {
		return nil, errors.New("connection counter is required")
	}

	return &RouteController{
		am:        am,
		caps:      caps,
		mode:      mode,
		sessions:  sessions,
		logger:    componentLogger(cfg.Logger, "audio_route").With(slog.String("path", caps.Path.String())),
		onFailure: cfg.OnFailure,
	}, nil
}

// RequestRoute переключает вывод звука сессии sessionID на маршрут route.
// Возвращает false без изменения состояния, если у сессии нет соединений
// или подходящее устройство недоступно.
func (c *RouteController) RequestRoute(sessionID string, route Route) bool {
	logger := c.logger.With(slog.String("session_id", sessionID), slog.String("route", route.String()))

	if !route.Valid() {
		logger.Warn("unknown route requested")
		return false
	}
	if c.sessions.Count(sessionID) == 0 {
		logger.Warn("route request for session without connections")
		return false
	}

	// Режим выставляется до захвата собственной блокировки, чтобы
	// блокировки KeepAlive и контроллера не вкладывались
	if c.mode != nil {
		c.mode.EnsureCommunicationMode()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var applied bool
	if c.caps.Path == PathCommunicationDevice {
		applied = c.applyCommunicationLocked(route, logger)
	} else {
		applied = c.applyLegacyLocked(route, logger)
	}

	if applied {
		c.route = route
		c.routed = true
		logger.Info("audio route applied")
	}
	return applied
}

// ReleaseRoute восстанавливает устройство и флаги, сохраненные при первом
// изменении маршрута. Без предшествующих изменений ничего не делает.
func (c *RouteController) ReleaseRoute() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.prevDeviceSaved {
		if c.prevDevice != nil {
			prev := *c.prevDevice
			err := attempt("set_communication_device", func() error {
				_, err := c.am.SetCommunicationDevice(prev)
				return err
			})
			if err != nil {
				c.fail("set_communication_device", err)
			}
		} else if err := attempt("clear_communication_device", c.am.ClearCommunicationDevice); err != nil {
			c.fail("clear_communication_device", err)
		}
	}

	if c.flagsSaved {
		if c.scoStarted && !c.prevSco {
			if err := attempt("stop_bluetooth_sco", c.am.StopBluetoothSco); err != nil {
				c.fail("stop_bluetooth_sco", err)
			}
		}
		prevSco := c.prevSco
		if err := attempt("set_bluetooth_sco_on", func() error { return c.am.SetBluetoothScoOn(prevSco) }); err != nil {
			c.fail("set_bluetooth_sco_on", err)
		}
		prevSpeaker := c.prevSpeaker
		if err := attempt("set_speakerphone_on", func() error { return c.am.SetSpeakerphoneOn(prevSpeaker) }); err != nil {
			c.fail("set_speakerphone_on", err)
		}
	}

	if c.prevDeviceSaved || c.flagsSaved {
		c.logger.Debug("audio route released")
	}

	c.prevDevice = nil
	c.prevDeviceSaved = false
	c.flagsSaved = false
	c.scoStarted = false
	c.routed = false
}

// State возвращает снимок состояния
func (c *RouteController) State() RouteState {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := RouteState{
		Route:         c.route,
		Routed:        c.routed,
		PreviousSaved: c.prevDeviceSaved,
		ScoStarted:    c.scoStarted,
	}
	if c.prevDevice != nil {
		d := *c.prevDevice
		st.PreviousDevice = &d
	}
	return st
}

func (c *RouteController) applyCommunicationLocked(route Route, logger *slog.Logger) bool {
	devices, err := c.communicationDevicesLocked()
	if err != nil {
		c.fail("available_communication_devices", err)
		return false
	}

	target, ok := c.pick(devices, route, true)
	if !ok {
		logger.Info("no communication device for route", slog.Int("visible", len(devices)))
		return false
	}

	if !c.prevDeviceSaved {
		var current *Device
		err := attempt("communication_device", func() error {
			var err error
			current, err = c.am.CommunicationDevice()
			return err
		})
		if err != nil {
			c.fail("communication_device", err)
		}
		c.prevDevice = current
		c.prevDeviceSaved = true
	}
	c.saveFlagsLocked()

	var set bool
	err = attempt("set_communication_device", func() error {
		var err error
		set, err = c.am.SetCommunicationDevice(target)
		return err
	})
	if err != nil {
		c.fail("set_communication_device", err)
		return false
	}
	if !set {
		logger.Warn("communication device rejected", slog.String("device", target.String()))
		return false
	}

	if route != RouteBluetooth {
		c.setSpeakerLocked(route == RouteSpeaker)
	}
	return true
}

func (c *RouteController) applyLegacyLocked(route Route, logger *slog.Logger) bool {
	if route == RouteBluetooth {
		if !c.am.BluetoothScoAvailableOffCall() && !c.hasOutputLocked(route, logger) {
			logger.Info("bluetooth sco unavailable")
			return false
		}

		c.saveFlagsLocked()
		scoOn, err := c.scoOnLocked()
		if err != nil {
			c.fail("bluetooth_sco_on", err)
		}
		if !scoOn {
			if err := attempt("start_bluetooth_sco", c.am.StartBluetoothSco); err != nil {
				c.fail("start_bluetooth_sco", err)
			} else {
				c.scoStarted = true
			}
		}
		if err := attempt("set_bluetooth_sco_on", func() error { return c.am.SetBluetoothScoOn(true) }); err != nil {
			c.fail("set_bluetooth_sco_on", err)
		}
		return true
	}

	// Встроенные динамики есть всегда, проводную гарнитуру без запроса
	// списка устройств подтвердить нельзя
	if c.caps.DeviceQuery || route == RouteWiredHeadset {
		if !c.hasOutputLocked(route, logger) {
			logger.Info("no output device for route")
			return false
		}
	}

	c.saveFlagsLocked()
	c.setSpeakerLocked(route == RouteSpeaker)

	scoOn, err := c.scoOnLocked()
	if err != nil {
		c.fail("bluetooth_sco_on", err)
	}
	if scoOn {
		if err := attempt("stop_bluetooth_sco", c.am.StopBluetoothSco); err != nil {
			c.fail("stop_bluetooth_sco", err)
		}
		if err := attempt("set_bluetooth_sco_on", func() error { return c.am.SetBluetoothScoOn(false) }); err != nil {
			c.fail("set_bluetooth_sco_on", err)
		}
		c.scoStarted = false
	}
	return true
}

func (c *RouteController) communicationDevicesLocked() ([]Device, error) {
	if c.caps.Path != PathCommunicationDevice {
		return nil, unsupported("available_communication_devices")
	}

	var devices []Device
	err := attempt("available_communication_devices", func() error {
		var err error
		devices, err = c.am.AvailableCommunicationDevices()
		return err
	})
	return devices, err
}

func (c *RouteController) hasOutputLocked(route Route, logger *slog.Logger) bool {
	if !c.caps.DeviceQuery {
		logger.Debug("output device query skipped", slog.Any("error", unsupported("output_devices")))
		return false
	}

	var devices []Device
	err := attempt("output_devices", func() error {
		var err error
		devices, err = c.am.OutputDevices()
		return err
	})
	if err != nil {
		c.fail("output_devices", err)
		return false
	}

	_, ok := c.pick(devices, route, false)
	return ok
}

// pick выбирает первое устройство категории маршрута. BLE устройства
// учитываются только если платформа их различает.
func (c *RouteController) pick(devices []Device, route Route, communication bool) (Device, bool) {
	for _, d := range devices {
		if d.Type.IsBLE() && !c.caps.BLEDevices {
			continue
		}
		if route.Matches(d.Type, communication) {
			return d, true
		}
	}
	return Device{}, false
}

func (c *RouteController) saveFlagsLocked() {
	if c.flagsSaved {
		return
	}

	speaker, err := c.speakerOnLocked()
	if err != nil {
		c.fail("speakerphone_on", err)
	}
	sco, err := c.scoOnLocked()
	if err != nil {
		c.fail("bluetooth_sco_on", err)
	}

	c.prevSpeaker = speaker
	c.prevSco = sco
	c.flagsSaved = true
}

func (c *RouteController) setSpeakerLocked(on bool) {
	if err := attempt("set_speakerphone_on", func() error { return c.am.SetSpeakerphoneOn(on) }); err != nil {
		c.fail("set_speakerphone_on", err)
	}
}

func (c *RouteController) speakerOnLocked() (bool, error) {
	var on bool
	err := attempt("speakerphone_on", func() error {
		var err error
		on, err = c.am.SpeakerphoneOn()
		return err
	})
	return on, err
}

func (c *RouteController) scoOnLocked() (bool, error) {
	var on bool
	err := attempt("bluetooth_sco_on", func() error {
		var err error
		on, err = c.am.BluetoothScoOn()
		return err
	})
	return on, err
}

func (c *RouteController) fail(op string, err error) {
	c.logger.Error("platform call failed", slog.String("op", op), slog.Any("error", err))
	if c.onFailure != nil {
		c.onFailure(op, err)
	}
}
