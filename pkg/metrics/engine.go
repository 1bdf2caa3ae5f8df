package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fulfillment outcomes used as the outcome label.
const (
	OutcomeSuccess          = "success"
	OutcomeStockConflict    = "stock_conflict"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeBusy             = "busy"
	OutcomeInvalid          = "invalid"
	OutcomeNotFound         = "not_found"
	OutcomeError            = "error"
)

// EngineMetrics records fulfillment, inventory and order lifecycle activity.
// A zero or nil value is a no-op.
type EngineMetrics struct {
	fulfillments *prometheus.CounterVec
	reservation  prometheus.Histogram
	transitions  *prometheus.CounterVec
	dropped      *prometheus.CounterVec
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	fulfillments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmacy_fulfillment_total",
		Help: "Fulfillment attempts by outcome.",
	}, []string{"outcome"})
	reservation := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pharmacy_reservation_duration_seconds",
		Help:    "Time spent inside the fulfillment transaction, locks included.",
		Buckets: prometheus.DefBuckets,
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmacy_order_transitions_total",
		Help: "Committed order status transitions.",
	}, []string{"from", "to"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmacy_notifications_dropped_total",
		Help: "Notifications discarded because the emitter queue was full or closed.",
	}, []string{"kind"})
	reg.MustRegister(fulfillments, reservation, transitions, dropped)
	return &EngineMetrics{
		fulfillments: fulfillments,
		reservation:  reservation,
		transitions:  transitions,
		dropped:      dropped,
	}
}

// IncFulfillment counts one fulfillment attempt with the given outcome.
func (m *EngineMetrics) IncFulfillment(outcome string) {
	if m == nil || m.fulfillments == nil {
		return
	}
	m.fulfillments.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *EngineMetrics) ObserveReservation(d time.Duration) {
	if m == nil || m.reservation == nil {
		return
	}
	m.reservation.Observe(d.Seconds())
}

func (m *EngineMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *EngineMetrics) IncNotificationDropped(kind string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(kind)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
