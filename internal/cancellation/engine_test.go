package cancellation

import (
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/models"
)

func bookingAt(start time.Time, status models.BookingStatus, price int64) models.Booking {
	return models.Booking{
		ID:         "b1",
		Start:      start,
		End:        start.Add(time.Hour),
		Status:     status,
		PriceCents: price,
	}
}

func percent(v int64) *int64 {
	return &v
}

func TestEvaluateNoticeWindow(t *testing.T) {
	start := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	policy := models.CancellationPolicy{MinNoticeHours: 24, FeeCents: 1000}
	engine := NewEngine()

	early := engine.Evaluate(bookingAt(start, models.StatusConfirmed, 8000), policy, start.Add(-72*time.Hour))
	if !early.Allowed || early.FeeCents != 0 {
		t.Fatalf("72h notice = %+v, want allowed with no fee", early)
	}
	if early.RefundCents != 8000 {
		t.Fatalf("72h notice refund = %d, want 8000", early.RefundCents)
	}

	late := engine.Evaluate(bookingAt(start, models.StatusConfirmed, 8000), policy, start.Add(-2*time.Hour))
	if !late.Allowed || late.FeeCents != 1000 {
		t.Fatalf("2h notice = %+v, want allowed with fee 1000", late)
	}
	if late.RefundCents != 7000 || !late.InsideWindow {
		t.Fatalf("2h notice refund = %d inside=%t, want 7000 inside", late.RefundCents, late.InsideWindow)
	}
}

func TestEvaluateExactThresholdIsFree(t *testing.T) {
	start := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	policy := models.CancellationPolicy{MinNoticeHours: 24, FeeCents: 1000}

	got := NewEngine().Evaluate(bookingAt(start, models.StatusScheduled, 8000), policy, start.Add(-24*time.Hour))
	if !got.Allowed || got.FeeCents != 0 || got.InsideWindow {
		t.Fatalf("exact threshold = %+v, want free", got)
	}
}

func TestEvaluateBlocksInsideWindow(t *testing.T) {
	start := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	policy := models.CancellationPolicy{MinNoticeHours: 4, BlockInsideWindow: true, FeeCents: 1000}

	got := NewEngine().Evaluate(bookingAt(start, models.StatusConfirmed, 8000), policy, start.Add(-time.Hour))
	if got.Allowed || got.FeeCents != 0 {
		t.Fatalf("blocked policy = %+v, want disallowed", got)
	}
	if got.Reason == "" {
		t.Fatalf("expected a reason")
	}
}

func TestFeePercentPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		price  int64
		policy models.CancellationPolicy
		want   int64
	}{
		{name: "flat", price: 8000, policy: models.CancellationPolicy{FeeCents: 1000}, want: 1000},
		{name: "percent_wins", price: 8000, policy: models.CancellationPolicy{FeeCents: 1000, FeePercent: percent(50)}, want: 4000},
		{name: "percent_rounds", price: 999, policy: models.CancellationPolicy{FeePercent: percent(50)}, want: 500},
		{name: "capped_at_price", price: 500, policy: models.CancellationPolicy{FeeCents: 1000}, want: 500},
		{name: "free_booking", price: 0, policy: models.CancellationPolicy{FeeCents: 1000}, want: 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Fee(test.price, test.policy); got != test.want {
				t.Fatalf("Fee = %d, want %d", got, test.want)
			}
		})
	}
}

func TestEvaluateScheduledHasNoRefund(t *testing.T) {
	start := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	policy := models.CancellationPolicy{MinNoticeHours: 24, FeeCents: 1000}

	got := NewEngine().Evaluate(bookingAt(start, models.StatusScheduled, 8000), policy, start.Add(-2*time.Hour))
	if got.FeeCents != 1000 || got.RefundCents != 0 {
		t.Fatalf("scheduled booking = %+v, want fee 1000 and no refund", got)
	}
}

func TestEvaluateRejectsTerminal(t *testing.T) {
	start := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	got := NewEngine().Evaluate(bookingAt(start, models.StatusCompleted, 8000), models.CancellationPolicy{}, start.Add(-48*time.Hour))
	if got.Allowed {
		t.Fatalf("completed booking should not be cancellable")
	}
}
