package callkit

import (
	"log/slog"
	"sort"

	"github.com/arzzra/callkit/pkg/registry"
)

// HoldStateTracker хранит наблюдаемый приложением флаг удержания сессий
type HoldStateTracker interface {
	// SyncHold записывает флаг и сообщает, изменился ли он.
	// Неизвестная сессия считается изменившейся.
	SyncHold(id string, onHold bool) (changed bool)
}

// HoldNotifier получает событие смены флага удержания сессии
type HoldNotifier func(id string, onHold bool)

// Exclusivity поддерживает инвариант "активна не более одной сессии"
type Exclusivity struct {
	sessions *registry.Registry[*Connection]
	holds    HoldStateTracker
	logger   *slog.Logger
}

// NewExclusivity создает координатор исключительности
func NewExclusivity(sessions *registry.Registry[*Connection], holds HoldStateTracker, logger *slog.Logger) *Exclusivity {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exclusivity{
		sessions: sessions,
		holds:    holds,
		logger:   logger.With(slog.String("component", "exclusivity")),
	}
}

// SetActiveAndHoldOthers активирует все соединения сессии targetID и
// удерживает соединения остальных сессий. Для каждой сессии, флаг удержания
// которой изменился, notify вызывается ровно один раз. Возвращает true,
// если было отправлено хотя бы одно уведомление.
func (x *Exclusivity) SetActiveAndHoldOthers(targetID string, notify HoldNotifier) bool {
	snapshot := x.sessions.Snapshot()

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	emitted := false
	for _, id := range ids {
		onHold := id != targetID
		for _, conn := range snapshot[id] {
			if onHold {
				conn.SetOnHold()
			} else {
				conn.SetActive()
			}
		}

		if x.holds.SyncHold(id, onHold) {
			notify(id, onHold)
			emitted = true
		}
	}

	x.logger.Debug("exclusivity resolved",
		slog.String("session_id", targetID),
		slog.Int("sessions", len(ids)),
		slog.Bool("emitted", emitted))
	return emitted
}
