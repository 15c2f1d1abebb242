package audio

import (
	"fmt"
	"strings"
)

// Route абстрактный маршрут вывода звука
type Route int

const (
	// RouteEarpiece разговорный динамик
	RouteEarpiece Route = iota
	// RouteSpeaker громкая связь
	RouteSpeaker
	// RouteBluetooth bluetooth гарнитура (SCO или BLE)
	RouteBluetooth
	// RouteWiredHeadset проводная гарнитура или наушники
	RouteWiredHeadset
)

var routeNames = map[Route]string{
	RouteEarpiece:     "earpiece",
	RouteSpeaker:      "speaker",
	RouteBluetooth:    "bluetooth",
	RouteWiredHeadset: "wired",
}

// String возвращает строковое представление маршрута
func (r Route) String() string {
	if name, ok := routeNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Route(%d)", int(r))
}

// Valid проверяет, что значение маршрута известно
func (r Route) Valid() bool {
	_, ok := routeNames[r]
	return ok
}

// ParseRoute разбирает имя маршрута. Помимо имен принимает числовые коды 0..3.
func ParseRoute(s string) (Route, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range routeNames {
		if name == s || fmt.Sprint(int(r)) == s {
			return r, nil
		}
	}
	switch s {
	case "wired_headset", "wiredheadset", "headset":
		return RouteWiredHeadset, nil
	case "bt":
		return RouteBluetooth, nil
	}
	return 0, fmt.Errorf("unknown audio route %q", s)
}

// DeviceType тип физического аудиоустройства
type DeviceType int

const (
	DeviceUnknown DeviceType = iota
	DeviceBuiltinEarpiece
	DeviceBuiltinSpeaker
	DeviceWiredHeadset
	DeviceWiredHeadphones
	DeviceUSBHeadset
	DeviceBluetoothSCO
	DeviceBluetoothA2DP
	DeviceBLEHeadset
	DeviceBLESpeaker
)

// String возвращает строковое представление типа устройства
func (t DeviceType) String() string {
	switch t {
	case DeviceBuiltinEarpiece:
		return "builtin_earpiece"
	case DeviceBuiltinSpeaker:
		return "builtin_speaker"
	case DeviceWiredHeadset:
		return "wired_headset"
	case DeviceWiredHeadphones:
		return "wired_headphones"
	case DeviceUSBHeadset:
		return "usb_headset"
	case DeviceBluetoothSCO:
		return "bluetooth_sco"
	case DeviceBluetoothA2DP:
		return "bluetooth_a2dp"
	case DeviceBLEHeadset:
		return "ble_headset"
	case DeviceBLESpeaker:
		return "ble_speaker"
	default:
		return "unknown"
	}
}

// IsBLE возвращает true для устройств Bluetooth LE Audio
func (t DeviceType) IsBLE() bool {
	return t == DeviceBLEHeadset || t == DeviceBLESpeaker
}

// Device описание аудиоустройства, видимого платформе
type Device struct {
	ID   int
	Type DeviceType
	Name string
}

// String возвращает краткое описание устройства для логов
func (d Device) String() string {
	if d.Name == "" {
		return fmt.Sprintf("%s#%d", d.Type, d.ID)
	}
	return fmt.Sprintf("%s#%d(%s)", d.Type, d.ID, d.Name)
}

// Matches проверяет принадлежность типа устройства категории маршрута.
// communication=true сужает bluetooth категорию до устройств, пригодных
// для голосовой связи (SCO и BLE гарнитура). Для запроса списка выходов
// категория включает также A2DP и BLE динамики.
func (r Route) Matches(t DeviceType, communication bool) bool {
	switch r {
	case RouteEarpiece:
		return t == DeviceBuiltinEarpiece
	case RouteSpeaker:
		return t == DeviceBuiltinSpeaker
	case RouteWiredHeadset:
		return t == DeviceWiredHeadset || t == DeviceWiredHeadphones || t == DeviceUSBHeadset
	case RouteBluetooth:
		if t == DeviceBluetoothSCO || t == DeviceBLEHeadset {
			return true
		}
		return !communication && (t == DeviceBluetoothA2DP || t == DeviceBLESpeaker)
	}
	return false
}

// Mode режим аудиоподсистемы устройства
type Mode int

const (
	ModeNormal Mode = iota
	ModeRingtone
	ModeInCall
	ModeInCommunication
)

// String возвращает строковое представление режима
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeRingtone:
		return "ringtone"
	case ModeInCall:
		return "in_call"
	case ModeInCommunication:
		return "in_communication"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}
