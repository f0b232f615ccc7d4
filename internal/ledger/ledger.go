// internal/ledger/ledger.go
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"hash/maphash"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/cancellation"
	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/events"
	"github.com/codr1/courtbook/internal/metrics"
	"github.com/codr1/courtbook/internal/models"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Catalog is the read-only view of resources and policies the ledger needs.
type Catalog interface {
	Lookup(ctx context.Context, resourceID int64) (models.Resource, models.Unit, error)
	Policy(ctx context.Context, resource models.Resource) (models.CancellationPolicy, error)
}

// CommitObserver is told which resource/date a committed write touched.
type CommitObserver func(resourceID int64, date string)

type Options struct {
	Emitter events.Emitter
	Metrics *metrics.BookingMetrics
	Clock   Clock
	Policy  cancellation.Engine
}

// Ledger owns booking lifecycle. Every write against a resource runs inside
// that resource's exclusive section and a single store transaction.
type Ledger struct {
	db      *db.DB
	catalog Catalog
	emitter events.Emitter
	metrics *metrics.BookingMetrics
	clock   Clock
	policy  cancellation.Engine
	locks   *stripedLock

	mu        sync.RWMutex
	observers []CommitObserver
}

func New(database *db.DB, catalog Catalog, opts Options) *Ledger {
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Emitter == nil {
		opts.Emitter = &events.Recorder{}
	}
	return &Ledger{
		db:      database,
		catalog: catalog,
		emitter: opts.Emitter,
		metrics: opts.Metrics,
		clock:   opts.Clock,
		policy:  opts.Policy,
		locks:   newStripedLock(),
	}
}

func (l *Ledger) OnCommit(fn CommitObserver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, fn)
}

func (l *Ledger) committed(resourceID int64, date string) {
	l.mu.RLock()
	observers := append([]CommitObserver(nil), l.observers...)
	l.mu.RUnlock()
	for _, fn := range observers {
		fn(resourceID, date)
	}
}

// localNow reads the clock as wall time of the unit.
func (l *Ledger) localNow(unit models.Unit) time.Time {
	return models.WallClock(l.clock.Now(), unit.Location())
}

func (l *Ledger) logger(ctx context.Context) zerolog.Logger {
	return log.Ctx(ctx).With().Str("component", "booking_ledger").Logger()
}

// storeErr passes domain errors through and marks everything else as a
// collaborator failure.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if models.Kind(err) != nil {
		return err
	}
	return &models.CollaboratorError{Op: op, Err: err}
}

func notFound(id string) error {
	return &models.NotFoundError{Entity: "booking", ID: id}
}

func (l *Ledger) Get(ctx context.Context, id string) (models.Booking, error) {
	booking, err := l.db.Queries.GetBooking(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Booking{}, notFound(id)
	}
	if err != nil {
		return models.Booking{}, storeErr("load booking", err)
	}
	return booking, nil
}

// List returns every booking of a resource on date, cancelled ones included.
func (l *Ledger) List(ctx context.Context, resourceID int64, date time.Time) ([]models.Booking, error) {
	label := models.FormatDate(date)
	bookings, err := l.db.Queries.ListBookings(ctx, db.BookingFilter{
		From:        label,
		To:          label,
		ResourceIDs: []int64{resourceID},
	})
	if err != nil {
		return nil, storeErr("list bookings", err)
	}
	return bookings, nil
}

// DayBookings satisfies availability.BookingSource against committed state.
func (l *Ledger) DayBookings(ctx context.Context, resourceID int64, date string) ([]models.Booking, error) {
	return l.db.Queries.DayBookings(ctx, resourceID, date)
}

// scope is what a mutation may consult besides the booking itself. It is
// resolved before the resource section is entered.
type scope struct {
	resource models.Resource
	unit     models.Unit
	policy   models.CancellationPolicy
	now      time.Time
}

// mutation applies a change to a freshly loaded booking. It returns false
// when the booking should be left untouched.
type mutation func(b *models.Booking, s scope) (bool, []events.Event, error)

// mutate runs fn inside the booking's resource section and commits the result
// with a version compare-and-swap.
func (l *Ledger) mutate(ctx context.Context, id, op string, fn mutation) (models.Booking, error) {
	current, err := l.Get(ctx, id)
	if err != nil {
		return models.Booking{}, err
	}
	resource, unit, err := l.catalog.Lookup(ctx, current.ResourceID)
	if err != nil {
		return models.Booking{}, err
	}
	policy, err := l.catalog.Policy(ctx, resource)
	if err != nil {
		return models.Booking{}, err
	}

	unlock := l.locks.Lock(current.ResourceID)
	defer unlock()

	s := scope{resource: resource, unit: unit, policy: policy, now: l.localNow(unit)}
	var (
		result  models.Booking
		from    models.BookingStatus
		changed bool
		evs     []events.Event
	)
	err = l.db.RunInTx(ctx, func(tx *db.DB) error {
		stored, err := tx.Queries.GetBooking(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(id)
		}
		if err != nil {
			return err
		}
		from = stored.Status
		next := stored.Clone()
		changed, evs, err = fn(&next, s)
		if err != nil {
			return err
		}
		if !changed {
			result = stored
			return nil
		}
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
		return models.Booking{}, storeErr(op, err)
	}
	if changed {
		if result.Status != from {
			l.metrics.ObserveTransition(string(from), string(result.Status))
		}
		l.committed(result.ResourceID, result.Date)
		if len(evs) > 0 {
			l.emitter.Emit(ctx, evs...)
		}
	}
	return result, nil
}

func transition(b *models.Booking, to models.BookingStatus) error {
	if !models.CanTransition(b.Status, to) {
		return &models.TransitionError{BookingID: b.ID, From: b.Status, To: to}
	}
	b.Status = to
	return nil
}

// Confirm moves a booking from scheduled to confirmed.
func (l *Ledger) Confirm(ctx context.Context, id string) (models.Booking, error) {
	booking, err := l.mutate(ctx, id, "confirm booking", func(b *models.Booking, _ scope) (bool, []events.Event, error) {
		if err := transition(b, models.StatusConfirmed); err != nil {
			return false, nil, err
		}
		return true, []events.Event{events.For(events.BookingConfirmed, *b, l.clock.Now().UTC())}, nil
	})
	if err != nil {
		return models.Booking{}, err
	}
	logger := l.logger(ctx)
	logger.Info().Str("booking_id", id).Str("decision", "confirmed").Msg("Booking confirmed")
	return booking, nil
}

// MarkNoShow moves a confirmed booking whose start has passed to no-show.
func (l *Ledger) MarkNoShow(ctx context.Context, id string, requestedBy int64) (models.Booking, error) {
	booking, err := l.mutate(ctx, id, "mark no-show", func(b *models.Booking, s scope) (bool, []events.Event, error) {
		if b.Status == models.StatusConfirmed && s.now.Before(b.Start) {
			return false, nil, &models.TransitionError{
				BookingID: b.ID, From: b.Status, To: models.StatusNoShow,
				Reason: "booking has not started yet",
			}
		}
		if err := transition(b, models.StatusNoShow); err != nil {
			return false, nil, err
		}
		ev := events.For(events.BookingNoShow, *b, l.clock.Now().UTC())
		return true, []events.Event{ev}, nil
	})
	if err != nil {
		return models.Booking{}, err
	}
	logger := l.logger(ctx)
	logger.Info().
		Str("booking_id", id).
		Int64("requested_by", requestedBy).
		Str("decision", "no_show").
		Msg("Booking marked as no-show")
	return booking, nil
}

// MarkAttendance records whether a participant attended. The booking is
// first advanced to its lifecycle state at the current time; attendance is
// only accepted once it is in-progress or completed.
func (l *Ledger) MarkAttendance(ctx context.Context, id string, participantID int64, attended bool) (models.Booking, error) {
	booking, err := l.mutate(ctx, id, "mark attendance", func(b *models.Booking, s scope) (bool, []events.Event, error) {
		advance(b, s.now)
		if b.Status != models.StatusInProgress && b.Status != models.StatusCompleted {
			return false, nil, &models.TransitionError{
				BookingID: b.ID, From: b.Status, To: b.Status,
				Reason: "attendance can only be recorded once the booking is in progress",
			}
		}
		participant, ok := b.Participant(participantID)
		if !ok {
			return false, nil, &models.NotFoundError{Entity: "participant", ID: formatID(participantID)}
		}
		participant.Attended = attended
		return true, nil, nil
	})
	if err != nil {
		return models.Booking{}, err
	}
	logger := l.logger(ctx)
	logger.Debug().
		Str("booking_id", id).
		Int64("participant_id", participantID).
		Bool("attended", attended).
		Msg("Attendance recorded")
	return booking, nil
}

// advance moves b forward as far as now allows. It reports whether b changed.
func advance(b *models.Booking, now time.Time) bool {
	changed := false
	if b.Status == models.StatusConfirmed && !now.Before(b.Start) {
		_ = transition(b, models.StatusInProgress)
		changed = true
	}
	if b.Status == models.StatusInProgress && !now.Before(b.End) {
		_ = transition(b, models.StatusCompleted)
		changed = true
	}
	return changed
}

// AdvanceLifecycle applies the time-driven transitions confirmed ->
// in-progress -> completed for now, a unit-local wall time. Applying it again
// with the same now changes nothing.
func (l *Ledger) AdvanceLifecycle(ctx context.Context, id string, now time.Time) (models.Booking, error) {
	return l.mutate(ctx, id, "advance lifecycle", func(b *models.Booking, _ scope) (bool, []events.Event, error) {
		return advance(b, now), nil, nil
	})
}

// AdvanceDue advances every confirmed or in-progress booking of unitID (0 for
// all units) that has started by now. It returns how many bookings changed.
func (l *Ledger) AdvanceDue(ctx context.Context, unitID int64, now time.Time) (int, error) {
	due, err := l.db.Queries.ListBookings(ctx, db.BookingFilter{
		To:               models.FormatDate(now),
		UnitID:           unitID,
		Statuses:         []models.BookingStatus{models.StatusConfirmed, models.StatusInProgress},
		SkipParticipants: true,
	})
	if err != nil {
		return 0, storeErr("list due bookings", err)
	}

	logger := l.logger(ctx)
	advanced := 0
	var errs []error
	for _, booking := range due {
		if now.Before(booking.Start) {
			continue
		}
		if booking.Status == models.StatusInProgress && now.Before(booking.End) {
			continue
		}
		updated, err := l.AdvanceLifecycle(ctx, booking.ID, now)
		if err != nil {
			logger.Error().Err(err).Str("booking_id", booking.ID).Msg("Failed to advance booking lifecycle")
			errs = append(errs, err)
			continue
		}
		if updated.Status != booking.Status {
			advanced++
		}
	}
	return advanced, errors.Join(errs...)
}

// DueForReminder lists scheduled or confirmed bookings of unitID (0 for all)
// starting in [from, to).
func (l *Ledger) DueForReminder(ctx context.Context, unitID int64, from, to time.Time) ([]models.Booking, error) {
	bookings, err := l.db.Queries.ListBookings(ctx, db.BookingFilter{
		From:             models.FormatDate(from),
		To:               models.FormatDate(to),
		UnitID:           unitID,
		Statuses:         []models.BookingStatus{models.StatusScheduled, models.StatusConfirmed},
		SkipParticipants: true,
	})
	if err != nil {
		return nil, storeErr("list reminder bookings", err)
	}
	var out []models.Booking
	for _, b := range bookings {
		if !b.Start.Before(from) && b.Start.Before(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

// stripedLock is a fixed set of mutexes keyed by resource id. Distinct
// resources may share a stripe.
type stripedLock struct {
	seed    maphash.Seed
	stripes [64]sync.Mutex
}

func newStripedLock() *stripedLock {
	return &stripedLock{seed: maphash.MakeSeed()}
}

func (s *stripedLock) Lock(key int64) func() {
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(key >> (8 * i))
	}
	m := &s.stripes[maphash.Bytes(s.seed, buf[:])%uint64(len(s.stripes))]
	m.Lock()
	return m.Unlock
}
