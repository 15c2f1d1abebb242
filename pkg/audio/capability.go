package audio

// Path вариант управления маршрутом, выбираемый один раз при старте
type Path int

const (
	// PathLegacy флаги громкой связи и SCO
	PathLegacy Path = iota
	// PathCommunicationDevice явный выбор устройства связи
	PathCommunicationDevice
)

// String возвращает строковое представление пути
func (p Path) String() string {
	if p == PathCommunicationDevice {
		return "communication_device"
	}
	return "legacy"
}

// Уровни API платформы, с которых доступны соответствующие вызовы
const (
	APIOutputDevices       = 23
	APIFocusRequest        = 26
	APICommunicationDevice = 31
)

// Capabilities набор возможностей платформы
type Capabilities struct {
	Path Path
	// DeviceQuery доступен список устройств вывода
	DeviceQuery bool
	// FocusRequest доступен объектный запрос фокуса, иначе используется устаревший
	FocusRequest bool
	// BLEDevices платформа различает BLE Audio устройства
	BLEDevices bool
}

// DetectCapabilities выбирает возможности по уровню API платформы
func DetectCapabilities(apiLevel int) Capabilities {
	caps := Capabilities{
		Path:         PathLegacy,
		DeviceQuery:  apiLevel >= APIOutputDevices,
		FocusRequest: apiLevel >= APIFocusRequest,
		BLEDevices:   apiLevel >= APICommunicationDevice,
	}
	if apiLevel >= APICommunicationDevice {
		caps.Path = PathCommunicationDevice
	}
	return caps
}

func (c Capabilities) focusRequest(usage FocusUsage) FocusRequest {
	return FocusRequest{Usage: usage, Legacy: !c.FocusRequest}
}
