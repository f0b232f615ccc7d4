// internal/ledger/create.go
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/codr1/courtbook/internal/availability"
	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/events"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/slots"
)

// CreateRequest asks for a new booking. Start and End are unit-local wall
// times. A nil PriceCents prices the booking from the resource's table.
type CreateRequest struct {
	ResourceID        int64
	RequesterID       int64
	RequesterName     string
	StaffID           *int64
	Start             time.Time
	End               time.Time
	Kind              models.BookingKind
	Participants      []models.Participant
	PriceCents        *int64
	PaymentMethod     string
	Notes             string
	RecurrenceGroupID *string
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// sameDay accepts intervals that end on the start date or exactly at the
// following midnight.
func sameDay(interval models.Interval) bool {
	if models.SameDate(interval.Start, interval.End) {
		return true
	}
	return interval.End.Equal(models.DateOf(interval.Start).AddDate(0, 0, 1))
}

func validateShape(req CreateRequest) error {
	if req.RequesterID <= 0 {
		return models.InvalidField("requesterId", "must be positive")
	}
	if !req.Kind.Valid() {
		return models.InvalidField("kind", "must be class, open-play, training or event")
	}
	interval := models.Interval{Start: req.Start, End: req.End}
	if !interval.Valid() {
		return models.InvalidField("interval", "end must be after start")
	}
	if !sameDay(interval) {
		return models.InvalidField("interval", "must start and end on the same date")
	}
	if req.PriceCents != nil && *req.PriceCents < 0 {
		return models.InvalidField("price", "must not be negative")
	}
	return nil
}

// placement checks that interval fits the resource's operating window and,
// unless sub-slot bookings are allowed, its slot boundaries.
func placement(resource models.Resource, interval models.Interval) ([]models.TimeSlot, error) {
	date := models.DateOf(interval.Start)
	window, ok := slots.Window(resource, date)
	if !ok {
		return nil, models.InvalidField("interval", "resource is closed on "+date.Weekday().String())
	}
	if !window.Contains(interval) {
		return nil, models.InvalidField("interval", "outside operating hours "+window.String())
	}
	daySlots := slots.Generate(resource, date, resource.SlotMinutes)
	if len(slots.Covering(daySlots, interval)) == 0 {
		return nil, models.InvalidField("interval", "does not cover any bookable slot")
	}
	if !resource.AllowSubSlot && !slots.Aligned(daySlots, interval) {
		return nil, models.InvalidField("interval", "must start and end on slot boundaries")
	}
	return daySlots, nil
}

func participantsFor(req CreateRequest) ([]models.Participant, error) {
	participants := req.Participants
	if len(participants) == 0 {
		participants = []models.Participant{{
			UserID:    req.RequesterID,
			Name:      req.RequesterName,
			Role:      models.RoleOrganizer,
			Confirmed: true,
		}}
	}
	if err := models.ValidateParticipants(participants); err != nil {
		return nil, err
	}
	return append([]models.Participant(nil), participants...), nil
}

func advanceRules(unit models.Unit, start, now time.Time) error {
	if start.Before(now) {
		return models.InvalidField("start", "must not be in the past")
	}
	if unit.MinAdvanceHours > 0 && start.Before(now.Add(time.Duration(unit.MinAdvanceHours)*time.Hour)) {
		return models.InvalidField("start", fmt.Sprintf("must be at least %d hours ahead", unit.MinAdvanceHours))
	}
	if unit.MaxAdvanceDays > 0 && start.After(now.AddDate(0, 0, int(unit.MaxAdvanceDays))) {
		return models.InvalidField("start", fmt.Sprintf("must be within %d days", unit.MaxAdvanceDays))
	}
	return nil
}

// Create validates a request and persists a scheduled booking. The conflict
// check and the insert run in one transaction inside the resource's
// exclusive section, and the insert re-checks overlap in the store.
func (l *Ledger) Create(ctx context.Context, req CreateRequest) (models.Booking, error) {
	logger := l.logger(ctx).With().Int64("resource_id", req.ResourceID).Logger()

	resource, unit, err := l.catalog.Lookup(ctx, req.ResourceID)
	if err != nil {
		return models.Booking{}, err
	}
	if !resource.Status.Bookable() {
		return models.Booking{}, models.InvalidField("resourceId", "resource is "+string(resource.Status))
	}
	if err := validateShape(req); err != nil {
		return models.Booking{}, err
	}
	interval := models.Interval{Start: req.Start, End: req.End}
	daySlots, err := placement(resource, interval)
	if err != nil {
		return models.Booking{}, err
	}
	participants, err := participantsFor(req)
	if err != nil {
		return models.Booking{}, err
	}
	if err := advanceRules(unit, req.Start, l.localNow(unit)); err != nil {
		return models.Booking{}, err
	}

	price := int64(0)
	if req.PriceCents != nil {
		price = *req.PriceCents
	} else if price, err = availability.PriceFor(resource, daySlots, interval); err != nil {
		return models.Booking{}, err
	}

	now := l.clock.Now().UTC()
	booking := models.Booking{
		ID:                uuid.NewString(),
		ResourceID:        resource.ID,
		UnitID:            resource.UnitID,
		RequesterID:       req.RequesterID,
		StaffID:           req.StaffID,
		Date:              models.FormatDate(req.Start),
		Start:             req.Start,
		End:               req.End,
		Kind:              req.Kind,
		Status:            models.StatusScheduled,
		Participants:      participants,
		PriceCents:        price,
		PaymentMethod:     req.PaymentMethod,
		RecurrenceGroupID: req.RecurrenceGroupID,
		Notes:             req.Notes,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	unlock := l.locks.Lock(resource.ID)
	err = l.db.RunInTx(ctx, func(tx *db.DB) error {
		existing, err := tx.Queries.DayBookings(ctx, resource.ID, booking.Date)
		if err != nil {
			return err
		}
		if conflicts := availability.Conflicts(interval, existing); len(conflicts) > 0 {
			l.metrics.ObserveConflict("check")
			ids := make([]string, len(conflicts))
			for i, c := range conflicts {
				ids[i] = c.ID
			}
			return &models.SlotUnavailableError{ResourceID: resource.ID, Interval: interval, ConflictingIDs: ids}
		}

		if !unit.AllowMultipleBookings {
			held, err := tx.Queries.ListBookings(ctx, db.BookingFilter{
				From:             booking.Date,
				To:               booking.Date,
				UnitID:           unit.ID,
				RequesterID:      req.RequesterID,
				Statuses:         []models.BookingStatus{models.StatusScheduled, models.StatusConfirmed, models.StatusInProgress},
				SkipParticipants: true,
			})
			if err != nil {
				return err
			}
			if len(held) > 0 {
				return models.InvalidField("requesterId", "unit allows one booking per requester per day")
			}
		}

		if err := tx.Queries.InsertBooking(ctx, booking); err != nil {
			if errors.Is(err, db.ErrOverlap) {
				l.metrics.ObserveConflict("store")
				return &models.SlotUnavailableError{ResourceID: resource.ID, Interval: interval}
			}
			return err
		}
		return nil
	})
	unlock()

	if err != nil {
		err = storeErr("create booking", err)
		switch {
		case errors.Is(err, models.ErrSlotUnavailable):
			logger.Info().Str("interval", interval.String()).Str("decision", "slot_unavailable").Msg("Booking rejected")
		case errors.Is(err, models.ErrCollaboratorUnavailable):
			logger.Error().Err(err).Msg("Failed to persist booking")
		}
		return models.Booking{}, err
	}

	l.metrics.ObserveCreated(string(booking.Kind))
	l.committed(booking.ResourceID, booking.Date)
	l.emitter.Emit(ctx, events.For(events.BookingCreated, booking, now))
	logger.Info().
		Str("booking_id", booking.ID).
		Str("interval", interval.String()).
		Str("decision", "created").
		Msg("Booking created")
	return booking, nil
}
