package recurrence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/courtbook/internal/ledger"
	"github.com/codr1/courtbook/internal/metrics"
	"github.com/codr1/courtbook/internal/models"
)

// Booker is the part of the ledger a series needs.
type Booker interface {
	Create(ctx context.Context, req ledger.CreateRequest) (models.Booking, error)
	AttachRecurrenceGroup(ctx context.Context, group models.RecurrenceGroup) (models.Booking, error)
}

type Outcome string

const (
	OutcomeCreated      Outcome = "created"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeNotAttempted Outcome = "not-attempted"
)

// OccurrenceOutcome reports one occurrence. Reason carries the error kind of
// a skipped occurrence, e.g. SlotUnavailable.
type OccurrenceOutcome struct {
	Date      string  `json:"date"`
	Start     string  `json:"start"`
	End       string  `json:"end"`
	Outcome   Outcome `json:"outcome"`
	BookingID string  `json:"bookingId,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Detail    string  `json:"detail,omitempty"`
}

type Result struct {
	Group       models.RecurrenceGroup `json:"group"`
	Origin      models.Booking         `json:"origin"`
	Occurrences []OccurrenceOutcome    `json:"occurrences"`
}

// Created counts occurrences that became bookings, the origin included.
func (r Result) Created() int {
	n := 0
	for _, o := range r.Occurrences {
		if o.Outcome == OutcomeCreated {
			n++
		}
	}
	return n
}

type Options struct {
	Workers        int
	MaxOccurrences int
	Metrics        *metrics.BookingMetrics
	Now            func() time.Time
}

type Expander struct {
	booker  Booker
	workers int
	max     int
	metrics *metrics.BookingMetrics
	now     func() time.Time
}

func NewExpander(booker Booker, opts Options) *Expander {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxOccurrences <= 0 {
		opts.MaxOccurrences = MaxOccurrences
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Expander{
		booker:  booker,
		workers: opts.Workers,
		max:     opts.MaxOccurrences,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
}

func outcomeFor(o Occurrence) OccurrenceOutcome {
	return OccurrenceOutcome{
		Date:  o.Date(),
		Start: models.FormatClock(models.MinuteOfDay(o.Start)),
		End:   models.FormatClock(models.MinuteOfDay(o.Start) + int(o.End.Sub(o.Start)/time.Minute)),
	}
}

// Submit books req as the origin of a series and then every further
// occurrence of cfg. The origin must succeed. Later occurrences that fail
// validation or conflict are skipped and reported; a store failure stops the
// series and is returned together with the partial result. Once the origin is
// booked every returned Result carries it, errors included.
func (e *Expander) Submit(ctx context.Context, req ledger.CreateRequest, cfg models.RecurrenceConfig) (Result, error) {
	logger := log.Ctx(ctx).With().
		Str("component", "recurrence_expander").
		Int64("resource_id", req.ResourceID).
		Logger()

	occurrences, err := Expand(Occurrence{Start: req.Start, End: req.End}, cfg, e.max)
	if err != nil {
		return Result{}, err
	}

	req.RecurrenceGroupID = nil
	origin, err := e.booker.Create(ctx, req)
	if err != nil {
		return Result{}, err
	}

	group := models.RecurrenceGroup{
		ID:              uuid.NewString(),
		OriginBookingID: origin.ID,
		ResourceID:      origin.ResourceID,
		Config:          cfg,
		CreatedAt:       e.now(),
	}
	linked, err := e.booker.AttachRecurrenceGroup(ctx, group)
	if err != nil {
		logger.Error().Err(err).Str("booking_id", origin.ID).Msg("Recurrence origin booked but group not attached")
		outcome := outcomeFor(occurrences[0])
		outcome.Outcome = OutcomeCreated
		outcome.BookingID = origin.ID
		return Result{Origin: origin, Occurrences: []OccurrenceOutcome{outcome}}, fmt.Errorf("attach recurrence group: %w", err)
	}
	origin = linked
	logger = logger.With().Str("recurrence_group_id", group.ID).Logger()

	outcomes := make([]OccurrenceOutcome, len(occurrences))
	for i, o := range occurrences {
		outcomes[i] = outcomeFor(o)
		outcomes[i].Outcome = OutcomeNotAttempted
	}
	outcomes[0].Outcome = OutcomeCreated
	outcomes[0].BookingID = origin.ID
	e.metrics.ObserveOccurrence(string(OutcomeCreated), "")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := 1; i < len(occurrences); i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			next := req
			next.Start = occurrences[i].Start
			next.End = occurrences[i].End
			next.RecurrenceGroupID = &group.ID
			next.Participants = append([]models.Participant(nil), req.Participants...)

			booking, err := e.booker.Create(gctx, next)
			if err == nil {
				outcomes[i].Outcome = OutcomeCreated
				outcomes[i].BookingID = booking.ID
				e.metrics.ObserveOccurrence(string(OutcomeCreated), "")
				return nil
			}
			if errors.Is(err, models.ErrCollaboratorUnavailable) || models.Kind(err) == nil {
				return fmt.Errorf("occurrence %s: %w", outcomes[i].Date, err)
			}
			reason := models.Code(err)
			outcomes[i].Outcome = OutcomeSkipped
			outcomes[i].Reason = reason
			outcomes[i].Detail = err.Error()
			e.metrics.ObserveOccurrence(string(OutcomeSkipped), reason)
			logger.Debug().
				Str("date", outcomes[i].Date).
				Str("reason", reason).
				Str("decision", "skipped").
				Msg("Recurrence occurrence skipped")
			return nil
		})
	}
	err = g.Wait()

	result := Result{Group: group, Origin: origin, Occurrences: outcomes}
	if err != nil {
		logger.Error().Err(err).Msg("Recurrence series aborted")
		return result, err
	}
	logger.Info().
		Int("occurrences", len(outcomes)).
		Int("created", result.Created()).
		Msg("Recurrence series submitted")
	return result, nil
}
