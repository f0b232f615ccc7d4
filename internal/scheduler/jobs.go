package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/events"
	"github.com/codr1/courtbook/internal/models"
)

const (
	LifecycleSweepJob = "booking_lifecycle_sweep"
	RemindersJob      = "booking_reminders"

	jobTimeout = 2 * time.Minute
)

// Ledger is the part of the booking ledger the jobs drive.
type Ledger interface {
	AdvanceDue(ctx context.Context, unitID int64, now time.Time) (int, error)
	DueForReminder(ctx context.Context, unitID int64, from, to time.Time) ([]models.Booking, error)
}

type UnitLister interface {
	Units(ctx context.Context) ([]models.Unit, error)
}

type JobsOptions struct {
	// ReminderLead is how long before the start a reminder goes out.
	ReminderLead time.Duration
	// ReminderCron is the reminder job schedule. Each run covers the starts
	// between this run and the next, so consecutive runs never overlap.
	ReminderCron string
	Now          func() time.Time
}

// Jobs holds the periodic booking tasks.
type Jobs struct {
	ledger   Ledger
	units    UnitLister
	emitter  events.Emitter
	lead     time.Duration
	schedule cron.Schedule
	now      func() time.Time
}

func NewJobs(ledger Ledger, units UnitLister, emitter events.Emitter, opts JobsOptions) (*Jobs, error) {
	if ledger == nil || units == nil || emitter == nil {
		return nil, fmt.Errorf("booking jobs require ledger, units and emitter")
	}
	if opts.ReminderCron == "" {
		opts.ReminderCron = "0 * * * *"
	}
	schedule, err := cron.ParseStandard(opts.ReminderCron)
	if err != nil {
		return nil, fmt.Errorf("parse reminder cron %q: %w", opts.ReminderCron, err)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Jobs{
		ledger:   ledger,
		units:    units,
		emitter:  emitter,
		lead:     opts.ReminderLead,
		schedule: schedule,
		now:      opts.Now,
	}, nil
}

// SweepLifecycle advances due bookings of every unit using the unit's local
// wall clock. It returns how many bookings changed.
func (j *Jobs) SweepLifecycle(ctx context.Context) (int, error) {
	logger := log.Ctx(ctx)
	units, err := j.units.Units(ctx)
	if err != nil {
		return 0, fmt.Errorf("list units: %w", err)
	}

	total := 0
	var errs []error
	for _, unit := range units {
		now := models.WallClock(j.now(), unit.Location())
		n, err := j.ledger.AdvanceDue(ctx, unit.ID, now)
		total += n
		if err != nil {
			logger.Error().Err(err).Int64("unit_id", unit.ID).Msg("Lifecycle sweep failed for unit")
			errs = append(errs, err)
			continue
		}
		if n > 0 {
			logger.Info().Int64("unit_id", unit.ID).Int("advanced", n).Msg("Advanced booking lifecycles")
		}
	}
	return total, errors.Join(errs...)
}

// SendReminders emits a reminder event for every scheduled or confirmed
// booking starting between lead after this run and lead after the next run.
func (j *Jobs) SendReminders(ctx context.Context) (int, error) {
	logger := log.Ctx(ctx)
	units, err := j.units.Units(ctx)
	if err != nil {
		return 0, fmt.Errorf("list units: %w", err)
	}

	// Runs fire on minute boundaries; truncating keeps windows contiguous.
	instant := j.now().UTC().Truncate(time.Minute)
	next := j.schedule.Next(instant)
	sent := 0
	var errs []error
	for _, unit := range units {
		loc := unit.Location()
		from := models.WallClock(instant.Add(j.lead), loc)
		to := models.WallClock(next.Add(j.lead), loc)

		due, err := j.ledger.DueForReminder(ctx, unit.ID, from, to)
		if err != nil {
			logger.Error().Err(err).Int64("unit_id", unit.ID).Msg("Failed to load bookings for reminders")
			errs = append(errs, err)
			continue
		}
		if len(due) == 0 {
			continue
		}
		reminders := make([]events.Event, 0, len(due))
		for _, booking := range due {
			reminders = append(reminders, events.For(events.Reminder, booking, instant))
		}
		j.emitter.Emit(ctx, reminders...)
		sent += len(reminders)
		logger.Info().
			Int64("unit_id", unit.ID).
			Int("reminders", len(reminders)).
			Time("window_start", from).
			Time("window_end", to).
			Msg("Booking reminders emitted")
	}
	return sent, errors.Join(errs...)
}

// RegisterBookingJobs adds the lifecycle sweep and the reminder job to svc.
func RegisterBookingJobs(svc *Service, jobs *Jobs, lifecycleCron, reminderCron string) error {
	if svc == nil {
		return ErrNotInitialized
	}
	if jobs == nil {
		return fmt.Errorf("booking jobs are required")
	}

	tasks := []struct {
		name string
		cron string
		run  func(ctx context.Context) (int, error)
	}{
		{LifecycleSweepJob, lifecycleCron, jobs.SweepLifecycle},
		{RemindersJob, reminderCron, jobs.SendReminders},
	}
	for _, task := range tasks {
		jobLogger := log.With().
			Str("component", task.name+"_job").
			Str("job_name", task.name).
			Str("cron", task.cron).
			Logger()
		_, err := svc.AddJob(task.name, task.cron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			ctx = jobLogger.WithContext(ctx)

			n, err := task.run(ctx)
			if err != nil {
				jobLogger.Error().Err(err).Int("processed", n).Msg("Scheduler job finished with errors")
				return
			}
			jobLogger.Debug().Int("processed", n).Msg("Scheduler job finished")
		}, gocron.WithSingletonMode(gocron.LimitModeReschedule))
		if err != nil {
			return fmt.Errorf("add %s job: %w", task.name, err)
		}
	}
	return nil
}
