package callkit

// Имена событий, отправляемых в EventBus
const (
	EventIncoming   = "call.incoming"
	EventStart      = "call.start"
	EventAccept     = "call.accept"
	EventDecline    = "call.decline"
	EventEnded      = "call.ended"
	EventTimeout    = "call.timeout"
	EventConnected  = "call.connected"
	EventToggleHold = "call.toggle_hold"
	EventAudioLog   = "call.custom"
)

// Источник журнальных событий маршрутизации звука
const audioLogSource = "audio"

// Действие, с которым приложение выводится на передний план при ответе
const launchActionAccept = "accept"
