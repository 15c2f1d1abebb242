// Package registry хранит соответствие идентификатора сессии и списка
// зарегистрированных для нее соединений.
//
// Одному идентификатору может временно соответствовать несколько соединений
// (например, ОС пересоздала соединение, а старое еще не удалено). Сессия
// существует в реестре тогда и только тогда, когда ее список не пуст.
//
// Все мутации и снимок состояния сериализуются одним мьютексом. Методы чтения
// возвращают копии, поэтому вызывающий код может итерироваться по результату
// без удержания блокировки.
package registry

import (
	"slices"
	"sort"
	"sync"
)

// Registry реестр сессий. H - непрозрачный дескриптор соединения, принадлежащий
// внешней подсистеме; реестр только ссылается на него и никогда им не владеет.
type Registry[H comparable] struct {
	mu       sync.Mutex
	sessions map[string][]H
}

// New создает пустой реестр
func New[H comparable]() *Registry[H] {
	return &Registry[H]{
		sessions: make(map[string][]H),
	}
}

// Register добавляет дескриптор в конец списка сессии id, создавая сессию при
// необходимости. Повторная регистрация того же дескриптора не отсекается.
func (r *Registry[H]) Register(id string, h H) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[id] = append(r.sessions[id], h)
}

// Get возвращает последний зарегистрированный дескриптор сессии
func (r *Registry[H]) Get(id string) (H, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.sessions[id]
	if len(list) == 0 {
		var zero H
		return zero, false
	}
	return list[len(list)-1], true
}

// GetAll возвращает копию полного списка дескрипторов сессии.
// Для неизвестной сессии возвращает nil.
func (r *Registry[H]) GetAll(id string) []H {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.sessions[id])
}

// Count возвращает количество дескрипторов сессии
func (r *Registry[H]) Count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions[id])
}

// Len возвращает количество сессий в реестре
func (r *Registry[H]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// IDs возвращает отсортированный список идентификаторов сессий
func (r *Registry[H]) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot возвращает согласованную копию всего реестра.
// Последующие мутации реестра не видны в снимке.
func (r *Registry[H]) Snapshot() map[string][]H {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(map[string][]H, len(r.sessions))
	for id, list := range r.sessions {
		snapshot[id] = slices.Clone(list)
	}
	return snapshot
}

// Remove удаляет сессию вместе со всеми дескрипторами.
// Возвращает удаленные дескрипторы.
func (r *Registry[H]) Remove(id string) []H {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	return list
}

// RemoveHandle удаляет один дескриптор сессии. Сессия удаляется, когда ее
// список становится пустым. Возвращает true, если дескриптор был найден.
func (r *Registry[H]) RemoveHandle(id string, h H) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, ok := r.sessions[id]
	if !ok {
		return false
	}

	idx := slices.Index(list, h)
	if idx < 0 {
		return false
	}

	list = slices.Delete(list, idx, idx+1)
	if len(list) == 0 {
		delete(r.sessions, id)
		return true
	}
	r.sessions[id] = list
	return true
}
