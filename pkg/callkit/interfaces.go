package callkit

import (
	"context"

	"github.com/arzzra/callkit/pkg/audio"
)

// NotificationService отображение уведомлений о звонках
type NotificationService interface {
	ShowIncoming(meta Metadata)
	ClearIncoming(meta Metadata)
	ShowOngoing(meta Metadata)
	ShowMissed(meta Metadata)
}

// EventBus доставка событий приложению. Emit не блокируется
// и не сообщает об ошибках доставки.
type EventBus interface {
	Emit(name string, payload map[string]any)
}

// TelephonyRegistrationService регистрация звонков в системной телефонии
type TelephonyRegistrationService interface {
	RegisterIncoming(ctx context.Context, id string, meta Metadata) error
	RegisterOutgoing(ctx context.Context, id string, meta Metadata) error
	RegisterAccount(ctx context.Context) error
	UnregisterAccount(ctx context.Context) error
}

// UILauncher выводит интерфейс приложения на передний план
type UILauncher interface {
	LaunchForeground(action string, meta Metadata) error
}

// Leg дескриптор соединения, принадлежащий системной телефонии.
// Вызовы выполняются под блокировкой координатора, поэтому реализация
// не должна синхронно обращаться к координатору.
type Leg interface {
	SetActive() error
	SetOnHold() error
	SetDisconnected(cause DisconnectCause) error
	Destroy() error
	SetAudioRoute(route audio.Route) error
}

// KeepAlive удержание аудиоресурсов на время звонков
type KeepAlive interface {
	Ensure(mode audio.KeepAliveMode)
	StopRingback()
	Release()
}

// AudioRouter переключение маршрута звука
type AudioRouter interface {
	RequestRoute(sessionID string, route audio.Route) bool
}
