package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	WaitingSessions   prometheus.Gauge
	ConnectedSessions prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	GatewayMessages   *prometheus.CounterVec
	ClaimWait         prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		WaitingSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "waiting_sessions",
			Help:      "Number of users waiting for an operator.",
		}),
		ConnectedSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_sessions",
			Help:      "Number of users connected to an operator.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		Deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Outbound deliveries by kind and result.",
		}, []string{"kind", "result"}),
		GatewayMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_messages_total",
			Help:      "Gateway websocket frames by direction and type.",
		}, []string{"direction", "type"}),
		ClaimWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "claim_wait_seconds",
			Help:      "Time a user waited before an operator claimed them.",
			Buckets:   []float64{5, 15, 30, 60, 120, 180, 300, 600},
		}),
	}
}

// The helpers below accept a nil receiver so components can run without metrics.

func (m *Metrics) SetQueue(waiting, connected int) {
	if m == nil {
		return
	}
	m.WaitingSessions.Set(float64(waiting))
	m.ConnectedSessions.Set(float64(connected))
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveDelivery(kind, result string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveGatewayMessage(direction, messageType string) {
	if m == nil {
		return
	}
	m.GatewayMessages.WithLabelValues(direction, messageType).Inc()
}

func (m *Metrics) ObserveClaimWait(d time.Duration) {
	if m == nil {
		return
	}
	m.ClaimWait.Observe(d.Seconds())
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
