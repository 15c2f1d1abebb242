package callkit

import (
	"fmt"
	"maps"
	"strings"
)

// Direction направление звонка
type Direction int

const (
	DirectionIncoming Direction = iota
	DirectionOutgoing
)

// String возвращает строковое представление направления
func (d Direction) String() string {
	switch d {
	case DirectionIncoming:
		return "incoming"
	case DirectionOutgoing:
		return "outgoing"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Valid проверяет, что направление известно
func (d Direction) Valid() bool {
	return d == DirectionIncoming || d == DirectionOutgoing
}

// ParseDirection разбирает строковое направление
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "incoming", "in":
		return DirectionIncoming, nil
	case "outgoing", "out":
		return DirectionOutgoing, nil
	}
	return 0, fmt.Errorf("%w: unknown direction %q", ErrInvalidArgument, s)
}

// Ключи дополнительных данных, по которым звонок можно найти вместо id
const (
	ExtraCallID         = "callId"
	ExtraEmbeddedCallID = "deviceEmbeddedCallId"
)

// Metadata данные звонка, переданные при регистрации
type Metadata struct {
	CallerName string         `json:"nameCaller,omitempty"`
	Handle     string         `json:"handle,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Clone возвращает копию метаданных
func (m Metadata) Clone() Metadata {
	m.Extra = maps.Clone(m.Extra)
	return m
}

// payload формирует поля события для сессии id
func (m Metadata) payload(id string) map[string]any {
	p := map[string]any{
		"id":         id,
		"nameCaller": m.CallerName,
		"handle":     m.Handle,
	}
	if len(m.Extra) > 0 {
		p["extra"] = maps.Clone(m.Extra)
	}
	return p
}

func (m Metadata) matchesAltID(id string) bool {
	for _, key := range []string{ExtraCallID, ExtraEmbeddedCallID} {
		if v, ok := m.Extra[key].(string); ok && v != "" && v == id {
			return true
		}
	}
	return false
}

// DisconnectCause причина завершения соединения
type DisconnectCause int

const (
	CauseLocal DisconnectCause = iota
	CauseRemote
	CauseRejected
	CauseMissed
	CauseCanceled
	CauseBusy
	CauseError
)

var causeNames = map[DisconnectCause]string{
	CauseLocal:    "local",
	CauseRemote:   "remote",
	CauseRejected: "rejected",
	CauseMissed:   "missed",
	CauseCanceled: "canceled",
	CauseBusy:     "busy",
	CauseError:    "error",
}

// String возвращает строковое представление причины
func (c DisconnectCause) String() string {
	if name, ok := causeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("DisconnectCause(%d)", int(c))
}

// ParseCause разбирает причину завершения. Пустая строка означает CauseLocal.
func ParseCause(s string) (DisconnectCause, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CauseLocal, nil
	}
	for c, name := range causeNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown disconnect cause %q", ErrInvalidArgument, s)
}

// SessionSummary сводка по активной сессии
type SessionSummary struct {
	ID          string   `json:"id"`
	Direction   string   `json:"direction"`
	State       State    `json:"state"`
	Accepted    bool     `json:"accepted"`
	OnHold      bool     `json:"isOnHold"`
	Registered  bool     `json:"registered"`
	Connections int      `json:"connections"`
	Metadata    Metadata `json:"metadata"`
}
