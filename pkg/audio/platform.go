package audio

// FocusUsage назначение запроса аудиофокуса
type FocusUsage int

const (
	// FocusVoiceCommunication голосовая связь
	FocusVoiceCommunication FocusUsage = iota
	// FocusRingtone вызывной сигнал
	FocusRingtone
)

// FocusRequest параметры запроса аудиофокуса.
// Legacy означает запрос через устаревший потоковый API платформы.
type FocusRequest struct {
	Usage  FocusUsage
	Legacy bool
}

// AudioManager интерфейс аудиоподсистемы платформы.
// Каждый вызов синхронный и может завершиться ошибкой.
type AudioManager interface {
	Mode() (Mode, error)
	SetMode(mode Mode) error

	RequestFocus(req FocusRequest) (granted bool, err error)
	AbandonFocus(req FocusRequest) error

	// OutputDevices список текущих устройств вывода
	OutputDevices() ([]Device, error)

	// Вызовы пути "communication device"
	AvailableCommunicationDevices() ([]Device, error)
	CommunicationDevice() (*Device, error)
	SetCommunicationDevice(d Device) (bool, error)
	ClearCommunicationDevice() error

	// Устаревшие флаги громкой связи и SCO
	SpeakerphoneOn() (bool, error)
	SetSpeakerphoneOn(on bool) error
	BluetoothScoOn() (bool, error)
	SetBluetoothScoOn(on bool) error
	BluetoothScoAvailableOffCall() bool
	StartBluetoothSco() error
	StopBluetoothSco() error
}

// WakeLock блокировка, не дающая устройству уснуть
type WakeLock interface {
	Acquire() error
	Release() error
	Held() bool
}

// PowerManager фабрика wake lock
type PowerManager interface {
	NewWakeLock(tag string) (WakeLock, error)
}

// TonePlayer проигрыватель служебных тонов
type TonePlayer interface {
	// StartTone начинает воспроизведение гудка
	StartTone() error
	// StopTone прекращает текущее воспроизведение
	StopTone() error
	// Close освобождает проигрыватель
	Close() error
}

// TonePlayerFactory создает проигрыватель тонов по требованию
type TonePlayerFactory func() (TonePlayer, error)
