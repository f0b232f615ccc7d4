// internal/cancellation/engine.go
package cancellation

import (
	"fmt"
	"time"

	"github.com/codr1/courtbook/internal/models"
)

// Decision is the financial consequence of cancelling a booking at a given time.
type Decision struct {
	Allowed         bool    `json:"allowed"`
	FeeCents        int64   `json:"feeCents"`
	RefundCents     int64   `json:"refundCents"`
	HoursUntilStart float64 `json:"hoursUntilStart"`
	InsideWindow    bool    `json:"insideWindow"`
	Reason          string  `json:"reason"`
}

// Engine evaluates cancellation requests. It has no state and no side effects.
type Engine struct{}

func NewEngine() Engine {
	return Engine{}
}

// Evaluate applies policy to booking at now. Notice at or above the policy's
// minimum is free. Inside the window the policy either blocks the request or
// charges its fee: a percentage of the price when configured, otherwise the
// flat amount, never more than the price.
func (Engine) Evaluate(booking models.Booking, policy models.CancellationPolicy, now time.Time) Decision {
	hours := booking.Start.Sub(now).Hours()
	decision := Decision{HoursUntilStart: hours}

	if booking.Status != models.StatusScheduled && booking.Status != models.StatusConfirmed {
		decision.Reason = fmt.Sprintf("booking is %s", booking.Status)
		return decision
	}

	if hours >= float64(policy.MinNoticeHours) {
		decision.Allowed = true
		decision.RefundCents = refund(booking, 0)
		decision.Reason = "outside notice window"
		return decision
	}

	decision.InsideWindow = true
	if policy.BlockInsideWindow {
		decision.Reason = fmt.Sprintf("cancellation requires at least %d hours notice", policy.MinNoticeHours)
		return decision
	}

	decision.Allowed = true
	decision.FeeCents = Fee(booking.PriceCents, policy)
	decision.RefundCents = refund(booking, decision.FeeCents)
	if decision.FeeCents > 0 {
		decision.Reason = fmt.Sprintf("cancelled with less than %d hours notice", policy.MinNoticeHours)
	} else {
		decision.Reason = "inside notice window, no fee configured"
	}
	return decision
}

// Fee computes the in-window fee for a booking price.
func Fee(priceCents int64, policy models.CancellationPolicy) int64 {
	fee := policy.FeeCents
	if policy.FeePercent != nil {
		fee = (priceCents*(*policy.FeePercent) + 50) / 100
	}
	if fee > priceCents {
		fee = priceCents
	}
	if fee < 0 {
		fee = 0
	}
	return fee
}

// refund returns what goes back to the payer of a paid-equivalent booking.
func refund(booking models.Booking, fee int64) int64 {
	if !booking.Status.PaidEquivalent() {
		return 0
	}
	if fee >= booking.PriceCents {
		return 0
	}
	return booking.PriceCents - fee
}
