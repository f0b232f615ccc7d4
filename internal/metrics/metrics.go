package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for the booking engine. A nil
// *BookingMetrics is valid and records nothing.
type BookingMetrics struct {
	created        *prometheus.CounterVec
	conflicts      *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	feesCents      prometheus.Counter
	recurrence     *prometheus.CounterVec
	droppedEvents  *prometheus.CounterVec
	dispatchErrors *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courtbook",
			Subsystem: "ledger",
			Name:      "bookings_created_total",
			Help:      "Bookings created by kind",
		}, []string{"kind"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courtbook",
			Subsystem: "ledger",
			Name:      "conflicts_total",
			Help:      "Create requests rejected because the interval was held",
		}, []string{"detected_by"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courtbook",
			Subsystem: "ledger",
			Name:      "transitions_total",
			Help:      "Booking status transitions",
		}, []string{"from", "to"}),
		feesCents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "courtbook",
			Subsystem: "ledger",
			Name:      "cancellation_fees_cents_total",
			Help:      "Cancellation fees charged, in cents",
		}),
		recurrence: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courtbook",
			Subsystem: "recurrence",
			Name:      "occurrences_total",
			Help:      "Recurring occurrences by outcome",
		}, []string{"outcome", "reason"}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courtbook",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Side-effect events dropped because the queue was full",
		}, []string{"type"}),
		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courtbook",
			Subsystem: "events",
			Name:      "handler_errors_total",
			Help:      "Side-effect handler failures",
		}, []string{"type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.created, m.conflicts, m.transitions, m.feesCents, m.recurrence, m.droppedEvents, m.dispatchErrors)
	return m
}

func (m *BookingMetrics) ObserveCreated(kind string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(kind).Inc()
}

// ObserveConflict records a rejected create; detectedBy is "check" or "store".
func (m *BookingMetrics) ObserveConflict(detectedBy string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(detectedBy).Inc()
}

func (m *BookingMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *BookingMetrics) ObserveFee(cents int64) {
	if m == nil || cents <= 0 {
		return
	}
	m.feesCents.Add(float64(cents))
}

func (m *BookingMetrics) ObserveOccurrence(outcome, reason string) {
	if m == nil {
		return
	}
	m.recurrence.WithLabelValues(outcome, reason).Inc()
}

func (m *BookingMetrics) ObserveDropped(eventType string) {
	if m == nil {
		return
	}
	m.droppedEvents.WithLabelValues(eventType).Inc()
}

func (m *BookingMetrics) ObserveDispatchError(eventType string) {
	if m == nil {
		return
	}
	m.dispatchErrors.WithLabelValues(eventType).Inc()
}
