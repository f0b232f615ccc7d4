package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/catalog"
	"github.com/codr1/courtbook/internal/events"
	"github.com/codr1/courtbook/internal/ledger"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/testutil"
)

type advanceCall struct {
	unitID int64
	now    time.Time
}

type fakeLedger struct {
	mu       sync.Mutex
	advances []advanceCall
	windows  [][2]time.Time
	due      []models.Booking
	err      error
}

func (f *fakeLedger) AdvanceDue(_ context.Context, unitID int64, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advances = append(f.advances, advanceCall{unitID: unitID, now: now})
	return 1, f.err
}

func (f *fakeLedger) DueForReminder(_ context.Context, _ int64, from, to time.Time) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, [2]time.Time{from, to})
	return f.due, f.err
}

type fakeUnits []models.Unit

func (u fakeUnits) Units(context.Context) ([]models.Unit, error) {
	return u, nil
}

func TestSweepLifecycleUsesUnitWallClock(t *testing.T) {
	fake := &fakeLedger{}
	units := fakeUnits{
		{ID: 1, Timezone: "UTC"},
		{ID: 2, Timezone: "America/New_York"},
	}
	instant := time.Date(2026, 7, 1, 16, 0, 0, 0, time.UTC)
	jobs, err := NewJobs(fake, units, &events.Recorder{}, JobsOptions{Now: func() time.Time { return instant }})
	if err != nil {
		t.Fatalf("new jobs: %v", err)
	}

	n, err := jobs.SweepLifecycle(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("sweep = %d, %v", n, err)
	}
	if !fake.advances[0].now.Equal(instant) {
		t.Fatalf("utc unit now = %s", fake.advances[0].now)
	}
	if want := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC); !fake.advances[1].now.Equal(want) {
		t.Fatalf("new york unit now = %s, want %s", fake.advances[1].now, want)
	}
}

func TestSweepLifecycleReportsUnitFailures(t *testing.T) {
	fake := &fakeLedger{err: errors.New("db locked")}
	jobs, err := NewJobs(fake, fakeUnits{{ID: 1}, {ID: 2}}, &events.Recorder{}, JobsOptions{})
	if err != nil {
		t.Fatalf("new jobs: %v", err)
	}
	if _, err := jobs.SweepLifecycle(context.Background()); err == nil {
		t.Fatalf("expected joined error")
	}
	if len(fake.advances) != 2 {
		t.Fatalf("a failing unit stopped the sweep: %d calls", len(fake.advances))
	}
}

func TestSendRemindersWindowsAreContiguous(t *testing.T) {
	fake := &fakeLedger{due: []models.Booking{{ID: "b-1", ResourceID: 3, UnitID: 1}}}
	recorder := &events.Recorder{}
	instant := time.Date(2026, 3, 1, 8, 0, 2, 0, time.UTC)
	jobs, err := NewJobs(fake, fakeUnits{{ID: 1, Timezone: "UTC"}}, recorder, JobsOptions{
		ReminderLead: 24 * time.Hour,
		ReminderCron: "*/15 * * * *",
		Now:          func() time.Time { return instant },
	})
	if err != nil {
		t.Fatalf("new jobs: %v", err)
	}

	sent, err := jobs.SendReminders(context.Background())
	if err != nil || sent != 1 {
		t.Fatalf("send = %d, %v", sent, err)
	}
	instant = instant.Add(15 * time.Minute)
	if _, err := jobs.SendReminders(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	first, second := fake.windows[0], fake.windows[1]
	if want := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC); !first[0].Equal(want) {
		t.Fatalf("window start = %s, want %s", first[0], want)
	}
	if !first[1].Equal(second[0]) {
		t.Fatalf("windows not contiguous: %s then %s", first[1], second[0])
	}
	if first[1].Sub(first[0]) != 15*time.Minute {
		t.Fatalf("window = %s", first[1].Sub(first[0]))
	}

	reminders := recorder.OfType(events.Reminder)
	if len(reminders) != 2 || reminders[0].BookingID != "b-1" {
		t.Fatalf("unexpected reminders %+v", reminders)
	}
}

func TestNewJobsRejectsBadCron(t *testing.T) {
	if _, err := NewJobs(&fakeLedger{}, fakeUnits{}, &events.Recorder{}, JobsOptions{ReminderCron: "every hour"}); err == nil {
		t.Fatalf("expected cron parse error")
	}
	if _, err := NewJobs(nil, fakeUnits{}, &events.Recorder{}, JobsOptions{}); err == nil {
		t.Fatalf("expected error for missing ledger")
	}
}

func TestRegisterBookingJobs(t *testing.T) {
	svc, err := NewService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop() })

	jobs, err := NewJobs(&fakeLedger{}, fakeUnits{}, &events.Recorder{}, JobsOptions{})
	if err != nil {
		t.Fatalf("new jobs: %v", err)
	}
	if err := RegisterBookingJobs(svc, jobs, "*/5 * * * *", "0 * * * *"); err != nil {
		t.Fatalf("register: %v", err)
	}
	names := map[string]bool{}
	for _, job := range svc.Jobs() {
		names[job.Name()] = true
	}
	if !names[LifecycleSweepJob] || !names[RemindersJob] {
		t.Fatalf("registered jobs = %v", names)
	}

	if _, err := svc.AddJob("", "* * * * *", func() {}); !errors.Is(err, ErrEmptyJobName) {
		t.Fatalf("expected ErrEmptyJobName, got %v", err)
	}
	if _, err := svc.AddJob("noop", " ", func() {}); !errors.Is(err, ErrEmptyCronExpr) {
		t.Fatalf("expected ErrEmptyCronExpr, got %v", err)
	}
	if _, err := svc.AddJob("seconds", "0 */5 * * * *", func() {}); err == nil {
		t.Fatalf("six-field cron accepted")
	}
	if err := RegisterBookingJobs(nil, jobs, "* * * * *", "* * * * *"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestSweepAdvancesStoredBookings(t *testing.T) {
	database := testutil.NewTestDB(t)
	unit := testutil.SeedUnit(t, database)
	resource := testutil.SeedResource(t, database, unit.ID, 1)
	cat := catalog.New(database, catalog.Defaults{SlotMinutes: 60})
	clock := &testutil.FixedClock{T: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	l := ledger.New(database, cat, ledger.Options{Clock: clock})
	ctx := context.Background()

	booking, err := l.Create(ctx, ledger.CreateRequest{
		ResourceID: resource.ID, RequesterID: 7, Kind: models.KindOpenPlay,
		Start: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := l.Confirm(ctx, booking.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	jobs, err := NewJobs(l, cat, &events.Recorder{}, JobsOptions{
		Now: func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new jobs: %v", err)
	}
	n, err := jobs.SweepLifecycle(ctx)
	if err != nil || n != 1 {
		t.Fatalf("sweep = %d, %v", n, err)
	}
	got, err := l.Get(ctx, booking.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusInProgress {
		t.Fatalf("status = %s, want in-progress", got.Status)
	}
	if n, _ := jobs.SweepLifecycle(ctx); n != 0 {
		t.Fatalf("second sweep advanced %d bookings", n)
	}
}
