package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBookingMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveCreated("open-play")
	m.ObserveCreated("open-play")
	m.ObserveConflict("check")
	m.ObserveTransition("scheduled", "confirmed")
	m.ObserveFee(1000)
	m.ObserveFee(0)
	m.ObserveOccurrence("skipped", "slot_unavailable")
	m.ObserveDropped("booking-created")
	m.ObserveDispatchError("reminder")

	if got := testutil.ToFloat64(m.created.WithLabelValues("open-play")); got != 2 {
		t.Fatalf("created = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.feesCents); got != 1000 {
		t.Fatalf("fees = %v, want 1000", got)
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveCreated("class")
	m.ObserveConflict("store")
	m.ObserveTransition("confirmed", "in-progress")
	m.ObserveFee(500)
	m.ObserveOccurrence("created", "")
	m.ObserveDropped("reminder")
	m.ObserveDispatchError("reminder")
}
