// internal/ledger/cancel.go
package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/codr1/courtbook/internal/cancellation"
	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/events"
	"github.com/codr1/courtbook/internal/models"
)

// CancellationOutcome carries the cancelled booking and the fee/refund the
// caller settles with the payment collaborator.
type CancellationOutcome struct {
	Booking  models.Booking        `json:"booking"`
	Decision cancellation.Decision `json:"decision"`
}

// Cancel evaluates the cancellation policy and cancels the booking within the
// same serialized section. A blocked request returns PolicyViolation and
// leaves the booking unchanged.
func (l *Ledger) Cancel(ctx context.Context, id string, requestedBy int64) (CancellationOutcome, error) {
	var decision cancellation.Decision
	booking, err := l.mutate(ctx, id, "cancel booking", func(b *models.Booking, s scope) (bool, []events.Event, error) {
		if !models.CanTransition(b.Status, models.StatusCancelled) {
			return false, nil, &models.TransitionError{BookingID: b.ID, From: b.Status, To: models.StatusCancelled}
		}
		decision = l.policy.Evaluate(*b, s.policy, s.now)
		if !decision.Allowed {
			return false, nil, &models.PolicyError{Reason: decision.Reason}
		}

		paid := b.Status.PaidEquivalent()
		if err := transition(b, models.StatusCancelled); err != nil {
			return false, nil, err
		}
		at := l.clock.Now().UTC()
		by := requestedBy
		b.CancelledBy = &by
		b.CancelledAt = &at
		b.CancellationFeeCents = decision.FeeCents

		evs := []events.Event{events.For(events.BookingCancelled, *b, at)}
		evs[0].Reason = decision.Reason
		// A paid booking keeps the fee out of its refund; only unpaid ones are charged.
		if !paid && decision.FeeCents > 0 {
			charge := events.For(events.PaymentCharge, *b, at)
			charge.AmountCents = decision.FeeCents
			charge.Reason = "cancellation fee"
			evs = append(evs, charge)
		}
		if paid && decision.RefundCents > 0 {
			refund := events.For(events.PaymentRefund, *b, at)
			refund.AmountCents = decision.RefundCents
			refund.Reason = "cancellation refund"
			evs = append(evs, refund)
		}
		return true, evs, nil
	})

	logger := l.logger(ctx).With().Str("booking_id", id).Int64("requested_by", requestedBy).Logger()
	if err != nil {
		if errors.Is(err, models.ErrPolicyViolation) {
			logger.Info().
				Float64("hours_until_start", decision.HoursUntilStart).
				Str("decision", "blocked").
				Msg("Cancellation blocked by policy")
		}
		return CancellationOutcome{}, err
	}

	l.metrics.ObserveFee(decision.FeeCents)
	logger.Info().
		Int64("fee_cents", decision.FeeCents).
		Int64("refund_cents", decision.RefundCents).
		Str("decision", "cancelled").
		Msg("Booking cancelled")
	return CancellationOutcome{Booking: booking, Decision: decision}, nil
}

// SeriesOutcome reports what happened to one occurrence in CancelSeries.
type SeriesOutcome struct {
	BookingID string `json:"bookingId"`
	Date      string `json:"date"`
	Cancelled bool   `json:"cancelled"`
	FeeCents  int64  `json:"feeCents"`
	Reason    string `json:"reason,omitempty"`
}

// ReasonAlreadyStarted marks series occurrences left alone because they began.
const ReasonAlreadyStarted = "already started"

// CancelSeries cancels every not yet started scheduled or confirmed
// occurrence of a recurrence group. Started occurrences, ones the policy
// blocks and ones that changed concurrently are reported uncancelled; store
// failures abort.
func (l *Ledger) CancelSeries(ctx context.Context, groupID string, requestedBy int64) ([]SeriesOutcome, error) {
	if _, err := l.RecurrenceGroup(ctx, groupID); err != nil {
		return nil, err
	}

	occurrences, err := l.db.Queries.ListBookings(ctx, db.BookingFilter{
		RecurrenceGroupID: groupID,
		Statuses:          []models.BookingStatus{models.StatusScheduled, models.StatusConfirmed},
		SkipParticipants:  true,
	})
	if err != nil {
		return nil, storeErr("list recurrence occurrences", err)
	}

	outcomes := make([]SeriesOutcome, 0, len(occurrences))
	for _, occurrence := range occurrences {
		_, unit, err := l.catalog.Lookup(ctx, occurrence.ResourceID)
		if err != nil {
			return outcomes, err
		}
		outcome := SeriesOutcome{BookingID: occurrence.ID, Date: occurrence.Date}
		if !occurrence.Start.After(l.localNow(unit)) {
			outcome.Reason = ReasonAlreadyStarted
			outcomes = append(outcomes, outcome)
			continue
		}

		result, err := l.Cancel(ctx, occurrence.ID, requestedBy)
		switch {
		case err == nil:
			outcome.Cancelled = true
			outcome.FeeCents = result.Decision.FeeCents
		case errors.Is(err, models.ErrCollaboratorUnavailable):
			return outcomes, err
		default:
			outcome.Reason = err.Error()
		}
		outcomes = append(outcomes, outcome)
	}

	logger := l.logger(ctx)
	logger.Info().
		Str("recurrence_group_id", groupID).
		Int("occurrences", len(outcomes)).
		Str("decision", "series_cancelled").
		Msg("Recurrence series cancelled")
	return outcomes, nil
}

func (l *Ledger) RecurrenceGroup(ctx context.Context, groupID string) (models.RecurrenceGroup, error) {
	group, err := l.db.Queries.GetRecurrenceGroup(ctx, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RecurrenceGroup{}, &models.NotFoundError{Entity: "recurrence group", ID: groupID}
	}
	if err != nil {
		return models.RecurrenceGroup{}, storeErr("load recurrence group", err)
	}
	return group, nil
}

// AttachRecurrenceGroup persists group and links its origin booking to it.
func (l *Ledger) AttachRecurrenceGroup(ctx context.Context, group models.RecurrenceGroup) (models.Booking, error) {
	origin, err := l.Get(ctx, group.OriginBookingID)
	if err != nil {
		return models.Booking{}, err
	}

	unlock := l.locks.Lock(origin.ResourceID)
	defer unlock()

	var result models.Booking
	err = l.db.RunInTx(ctx, func(tx *db.DB) error {
		if err := tx.Queries.InsertRecurrenceGroup(ctx, group); err != nil {
			return err
		}
		stored, err := tx.Queries.GetBooking(ctx, group.OriginBookingID)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(group.OriginBookingID)
		}
		if err != nil {
			return err
		}
		next := stored.Clone()
		groupID := group.ID
		next.RecurrenceGroupID = &groupID
		next.Version = stored.Version + 1
		next.UpdatedAt = l.clock.Now().UTC()
		if err := tx.Queries.UpdateBooking(ctx, next, stored.Version); err != nil {
			if errors.Is(err, db.ErrStaleVersion) {
				return errors.Join(models.ErrVersionConflict, err)
			}
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return models.Booking{}, storeErr("attach recurrence group", err)
	}
	return result, nil
}
