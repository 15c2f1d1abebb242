package callkit

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics метрики координатора. Нулевой указатель допустим и ничего не считает.
type Metrics struct {
	sessionsActive prometheus.Gauge
	transitions    *prometheus.CounterVec
	events         *prometheus.CounterVec
	routeRequests  *prometheus.CounterVec
	osFailures     *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg. При reg == nil возвращает nil.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		return nil
	}

	factory := promauto.With(reg)
	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of call sessions currently tracked",
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_transitions_total",
			Help:      "Total number of connection state transitions",
		}, []string{"from", "to"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Total number of events emitted to the application",
		}, []string{"event"}),
		routeRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_requests_total",
			Help:      "Total number of audio route requests",
		}, []string{"route", "result"}),
		osFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "os_call_failures_total",
			Help:      "Total number of failed platform calls",
		}, []string{"op"}),
	}
}

func (m *Metrics) setSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

func (m *Metrics) transition(from, to State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) eventEmitted(name string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(name).Inc()
}

func (m *Metrics) routeRequested(route string, applied bool) {
	if m == nil {
		return
	}
	m.routeRequests.WithLabelValues(route, strconv.FormatBool(applied)).Inc()
}

func (m *Metrics) osCallFailed(op string) {
	if m == nil {
		return
	}
	m.osFailures.WithLabelValues(op).Inc()
}
