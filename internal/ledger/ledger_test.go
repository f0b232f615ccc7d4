package ledger_test

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

type fixture struct {
	ledger   *ledger.Ledger
	clock    *testutil.FixedClock
	recorder *events.Recorder
	resource models.Resource
	unit     models.Unit
	catalog  *catalog.Catalog
}

var baseNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) fixture {
	t.Helper()

	database := testutil.NewTestDB(t)
	unit := testutil.SeedUnit(t, database)
	resource := testutil.SeedResource(t, database, unit.ID, 1)
	cat := catalog.New(database, catalog.Defaults{
		SlotMinutes: 60,
		Policy:      models.CancellationPolicy{MinNoticeHours: 24, FeeCents: 1000},
	})
	clock := &testutil.FixedClock{T: baseNow}
	recorder := &events.Recorder{}
	l := ledger.New(database, cat, ledger.Options{Emitter: recorder, Clock: clock})
	return fixture{ledger: l, clock: clock, recorder: recorder, resource: resource, unit: unit, catalog: cat}
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, time.UTC)
}

func request(resourceID int64, start, end time.Time) ledger.CreateRequest {
	return ledger.CreateRequest{
		ResourceID:    resourceID,
		RequesterID:   7,
		RequesterName: "Sam",
		Start:         start,
		End:           end,
		Kind:          models.KindOpenPlay,
	}
}

func TestCreateRejectsOverlapAllowsAdjacent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 9, 0), at(4, 10, 0)))
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	if first.Status != models.StatusScheduled || first.Version != 1 {
		t.Fatalf("unexpected booking %+v", first)
	}
	if first.PriceCents != 8000 {
		t.Fatalf("price = %d, want 8000", first.PriceCents)
	}

	if _, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 10, 0), at(4, 11, 0))); err != nil {
		t.Fatalf("adjacent booking rejected: %v", err)
	}
	if _, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 9, 0), at(4, 11, 0))); !errors.Is(err, models.ErrSlotUnavailable) {
		t.Fatalf("expected slot unavailable, got %v", err)
	}

	var slotErr *models.SlotUnavailableError
	_, err = f.ledger.Create(ctx, request(f.resource.ID, at(4, 9, 0), at(4, 10, 0)))
	if !errors.As(err, &slotErr) || len(slotErr.ConflictingIDs) != 1 || slotErr.ConflictingIDs[0] != first.ID {
		t.Fatalf("expected conflict with %s, got %v", first.ID, err)
	}
}

func TestCreateSubSlotOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.resource.AllowSubSlot = true
	if _, err := f.catalog.SaveResource(ctx, f.resource); err != nil {
		t.Fatalf("save resource: %v", err)
	}

	if _, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 9, 0), at(4, 10, 0))); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 9, 30), at(4, 10, 30))); !errors.Is(err, models.ErrSlotUnavailable) {
		t.Fatalf("expected slot unavailable for 09:30-10:30, got %v", err)
	}
	if _, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 10, 0), at(4, 11, 0))); err != nil {
		t.Fatalf("10:00-11:00 rejected: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  ledger.CreateRequest
		want error
	}{
		{"unknown resource", request(999, at(4, 9, 0), at(4, 10, 0)), models.ErrNotFound},
		{"end before start", request(f.resource.ID, at(4, 10, 0), at(4, 9, 0)), models.ErrInvalidRequest},
		{"outside hours", request(f.resource.ID, at(4, 5, 0), at(4, 6, 0)), models.ErrInvalidRequest},
		{"misaligned", request(f.resource.ID, at(4, 9, 15), at(4, 10, 15)), models.ErrInvalidRequest},
		{"past", request(f.resource.ID, at(1, 6, 0), at(1, 7, 0)), models.ErrInvalidRequest},
		{"crosses midnight", request(f.resource.ID, at(4, 21, 0), at(5, 1, 0)), models.ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.ledger.Create(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	bad := request(f.resource.ID, at(4, 9, 0), at(4, 10, 0))
	bad.Kind = "squash"
	if _, err := f.ledger.Create(ctx, bad); !errors.Is(err, models.ErrInvalidRequest) {
		t.Fatalf("expected invalid kind, got %v", err)
	}
	if len(f.recorder.Events()) != 0 {
		t.Fatalf("rejected requests emitted events: %v", f.recorder.Events())
	}
}

func TestCreateDefaultsOrganizer(t *testing.T) {
	f := newFixture(t)
	booking, err := f.ledger.Create(context.Background(), request(f.resource.ID, at(4, 9, 0), at(4, 10, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(booking.Participants) != 1 || booking.Participants[0].Role != models.RoleOrganizer || booking.Participants[0].UserID != 7 {
		t.Fatalf("unexpected participants %+v", booking.Participants)
	}
	if got := f.recorder.OfType(events.BookingCreated); len(got) != 1 || got[0].BookingID != booking.ID {
		t.Fatalf("expected one created event, got %v", got)
	}
}

func TestConcurrentCreatesNeverOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 9, 0), at(4, 10, 0)))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("succeeded = %d, want exactly 1", succeeded)
	}
	for _, err := range failures {
		if !errors.Is(err, models.ErrSlotUnavailable) {
			t.Fatalf("unexpected failure kind: %v", err)
		}
	}

	stored, err := f.ledger.List(ctx, f.resource.ID, at(4, 0, 0))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored %d bookings, want 1", len(stored))
	}
}

func TestLifecycleAdvanceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 9, 0), at(4, 10, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Scheduled bookings are never advanced by time.
	unchanged, err := f.ledger.AdvanceLifecycle(ctx, booking.ID, at(4, 11, 0))
	if err != nil {
		t.Fatalf("advance scheduled: %v", err)
	}
	if unchanged.Status != models.StatusScheduled || unchanged.Version != booking.Version {
		t.Fatalf("scheduled booking changed: %+v", unchanged)
	}

	if _, err := f.ledger.Confirm(ctx, booking.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	running, err := f.ledger.AdvanceLifecycle(ctx, booking.ID, at(4, 9, 30))
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if running.Status != models.StatusInProgress {
		t.Fatalf("status = %s, want in-progress", running.Status)
	}
	again, err := f.ledger.AdvanceLifecycle(ctx, booking.ID, at(4, 9, 30))
	if err != nil {
		t.Fatalf("advance again: %v", err)
	}
	if again.Status != running.Status || again.Version != running.Version {
		t.Fatalf("second advance changed booking: %+v vs %+v", again, running)
	}

	done, err := f.ledger.AdvanceLifecycle(ctx, booking.ID, at(4, 10, 0))
	if err != nil {
		t.Fatalf("advance to end: %v", err)
	}
	if done.Status != models.StatusCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
}

func TestAdvanceDueSkipsJumpsToCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 9, 0), at(4, 10, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.ledger.Confirm(ctx, booking.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	n, err := f.ledger.AdvanceDue(ctx, 0, at(4, 12, 0))
	if err != nil {
		t.Fatalf("advance due: %v", err)
	}
	if n != 1 {
		t.Fatalf("advanced = %d, want 1", n)
	}
	got, err := f.ledger.Get(ctx, booking.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}

	n, err = f.ledger.AdvanceDue(ctx, 0, at(4, 12, 0))
	if err != nil || n != 0 {
		t.Fatalf("second sweep advanced %d (err %v)", n, err)
	}
}

func TestCancelFeeDependsOnNotice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	early, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 9, 0), at(4, 10, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	outcome, err := f.ledger.Cancel(ctx, early.ID, 7)
	if err != nil {
		t.Fatalf("cancel early: %v", err)
	}
	if outcome.Decision.FeeCents != 0 || outcome.Booking.Status != models.StatusCancelled {
		t.Fatalf("72h notice should be free: %+v", outcome)
	}
	if outcome.Booking.CancelledBy == nil || *outcome.Booking.CancelledBy != 7 {
		t.Fatalf("cancelled by not recorded: %+v", outcome.Booking)
	}

	late, err := f.ledger.Create(ctx, request(f.resource.ID, at(1, 10, 0), at(1, 11, 0)))
	if err != nil {
		t.Fatalf("create late: %v", err)
	}
	outcome, err = f.ledger.Cancel(ctx, late.ID, 7)
	if err != nil {
		t.Fatalf("cancel late: %v", err)
	}
	if outcome.Decision.FeeCents != 1000 || outcome.Booking.CancellationFeeCents != 1000 {
		t.Fatalf("2h notice fee = %d, want 1000", outcome.Decision.FeeCents)
	}
	if charges := f.recorder.OfType(events.PaymentCharge); len(charges) != 1 || charges[0].AmountCents != 1000 {
		t.Fatalf("expected one 1000 charge event, got %v", charges)
	}
	if refunds := f.recorder.OfType(events.PaymentRefund); len(refunds) != 0 {
		t.Fatalf("scheduled booking produced refunds: %v", refunds)
	}

	if _, err := f.ledger.Cancel(ctx, late.ID, 7); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("cancelling twice: expected invalid transition, got %v", err)
	}
}

func TestCancelConfirmedRefundsNetOfFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking, err := f.ledger.Create(ctx, request(f.resource.ID, at(1, 10, 0), at(1, 11, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.ledger.Confirm(ctx, booking.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	outcome, err := f.ledger.Cancel(ctx, booking.ID, 7)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if outcome.Decision.FeeCents != 1000 || outcome.Decision.RefundCents != 7000 {
		t.Fatalf("decision = %+v, want fee 1000 refund 7000", outcome.Decision)
	}

	var charged, refunded int64
	for _, ev := range f.recorder.OfType(events.PaymentCharge) {
		charged += ev.AmountCents
	}
	for _, ev := range f.recorder.OfType(events.PaymentRefund) {
		refunded += ev.AmountCents
	}
	if charged != 0 || refunded != 7000 {
		t.Fatalf("charged %d refunded %d, want 0 and 7000", charged, refunded)
	}
	if kept := booking.PriceCents + charged - refunded; kept != outcome.Decision.FeeCents {
		t.Fatalf("payer lost %d, want the %d fee", kept, outcome.Decision.FeeCents)
	}
}

func TestCancelBlockedInsideWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.catalog.SavePolicy(ctx, models.CancellationPolicy{
		UnitID:            f.unit.ID,
		MinNoticeHours:    24,
		BlockInsideWindow: true,
	}); err != nil {
		t.Fatalf("save policy: %v", err)
	}

	booking, err := f.ledger.Create(ctx, request(f.resource.ID, at(1, 10, 0), at(1, 11, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.ledger.Cancel(ctx, booking.ID, 7); !errors.Is(err, models.ErrPolicyViolation) {
		t.Fatalf("expected policy violation, got %v", err)
	}
	stored, err := f.ledger.Get(ctx, booking.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != models.StatusScheduled || stored.Version != booking.Version {
		t.Fatalf("blocked cancellation changed booking: %+v", stored)
	}
}

func TestCancelFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 9, 0), at(4, 10, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.ledger.Cancel(ctx, booking.ID, 7); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 9, 0), at(4, 10, 0))); err != nil {
		t.Fatalf("rebooking freed slot: %v", err)
	}
}

func TestTransitionRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 9, 0), at(4, 10, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.ledger.MarkNoShow(ctx, booking.ID, 1); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("no-show from scheduled: expected invalid transition, got %v", err)
	}
	if _, err := f.ledger.MarkAttendance(ctx, booking.ID, 7, true); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("attendance before start: expected invalid transition, got %v", err)
	}

	confirmed, err := f.ledger.Confirm(ctx, booking.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Version != booking.Version+1 {
		t.Fatalf("version = %d, want %d", confirmed.Version, booking.Version+1)
	}
	if _, err := f.ledger.Confirm(ctx, booking.ID); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("confirm twice: expected invalid transition, got %v", err)
	}
	if _, err := f.ledger.MarkNoShow(ctx, booking.ID, 1); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("no-show before start: expected invalid transition, got %v", err)
	}

	f.clock.Set(at(4, 9, 20))
	attended, err := f.ledger.MarkAttendance(ctx, booking.ID, 7, true)
	if err != nil {
		t.Fatalf("attendance: %v", err)
	}
	if attended.Status != models.StatusInProgress || !attended.Participants[0].Attended {
		t.Fatalf("unexpected booking after attendance: %+v", attended)
	}
	if _, err := f.ledger.MarkAttendance(ctx, booking.ID, 99, true); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("unknown participant: expected not found, got %v", err)
	}
	if _, err := f.ledger.Cancel(ctx, booking.ID, 7); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("cancel in-progress: expected invalid transition, got %v", err)
	}

	if _, err := f.ledger.Get(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMarkNoShowAfterStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 9, 0), at(4, 10, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.ledger.Confirm(ctx, booking.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.clock.Set(at(4, 9, 15))
	noShow, err := f.ledger.MarkNoShow(ctx, booking.ID, 1)
	if err != nil {
		t.Fatalf("no-show: %v", err)
	}
	if noShow.Status != models.StatusNoShow {
		t.Fatalf("status = %s, want no-show", noShow.Status)
	}
	if got := f.recorder.OfType(events.BookingNoShow); len(got) != 1 {
		t.Fatalf("expected one no-show event, got %v", got)
	}
	if _, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 12, 0), at(4, 13, 0))); err != nil {
		t.Fatalf("create later: %v", err)
	}
}

func TestNoShowKeepsIntervalBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 9, 0), at(4, 11, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.ledger.Confirm(ctx, booking.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.clock.Set(at(4, 9, 5))
	if _, err := f.ledger.MarkNoShow(ctx, booking.ID, 1); err != nil {
		t.Fatalf("no-show: %v", err)
	}

	var slotErr *models.SlotUnavailableError
	_, err = f.ledger.Create(ctx, request(f.resource.ID, at(4, 10, 0), at(4, 11, 0)))
	if !errors.As(err, &slotErr) || len(slotErr.ConflictingIDs) != 1 || slotErr.ConflictingIDs[0] != booking.ID {
		t.Fatalf("expected conflict with no-show %s, got %v", booking.ID, err)
	}
}

func TestCommitObserversSeeWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var touched []string
	f.ledger.OnCommit(func(resourceID int64, date string) {
		touched = append(touched, date)
	})

	booking, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 9, 0), at(4, 10, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 9, 0), at(4, 10, 0))); err == nil {
		t.Fatalf("expected conflict")
	}
	if _, err := f.ledger.Confirm(ctx, booking.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if len(touched) != 2 || touched[0] != "2026-03-04" || touched[1] != "2026-03-04" {
		t.Fatalf("observers saw %v", touched)
	}
}

func TestOneBookingPerDayWhenConfigured(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.unit.AllowMultipleBookings = false
	if _, err := f.catalog.SaveUnit(ctx, f.unit); err != nil {
		t.Fatalf("save unit: %v", err)
	}
	other, err := f.catalog.SaveResource(ctx, models.Resource{
		UnitID:      f.unit.ID,
		Number:      2,
		Name:        "Court 2",
		Capacity:    4,
		Status:      models.ResourceAvailable,
		SlotMinutes: 60,
		Prices:      testutil.HourlyPrices(6, 22, 8000),
	})
	if err != nil {
		t.Fatalf("save resource: %v", err)
	}

	if _, err := f.ledger.Create(ctx, request(f.resource.ID, at(4, 9, 0), at(4, 10, 0))); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if _, err := f.ledger.Create(ctx, request(other.ID, at(4, 12, 0), at(4, 13, 0))); !errors.Is(err, models.ErrInvalidRequest) {
		t.Fatalf("expected second booking rejected, got %v", err)
	}
	if _, err := f.ledger.Create(ctx, request(other.ID, at(5, 12, 0), at(5, 13, 0))); err != nil {
		t.Fatalf("next day booking: %v", err)
	}
}

func TestCancelSeriesReportsStarted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	origin, err := f.ledger.Create(ctx, request(f.resource.ID, at(2, 9, 0), at(2, 10, 0)))
	if err != nil {
		t.Fatalf("create origin: %v", err)
	}
	group := models.RecurrenceGroup{
		ID:              "series-1",
		OriginBookingID: origin.ID,
		ResourceID:      f.resource.ID,
		Config:          models.RecurrenceConfig{Frequency: models.FrequencyDaily, Interval: 1, Count: 3},
		CreatedAt:       baseNow,
	}
	linked, err := f.ledger.AttachRecurrenceGroup(ctx, group)
	if err != nil {
		t.Fatalf("attach group: %v", err)
	}
	if linked.RecurrenceGroupID == nil || *linked.RecurrenceGroupID != group.ID {
		t.Fatalf("origin not linked: %+v", linked)
	}

	for _, day := range []int{3, 4} {
		req := request(f.resource.ID, at(day, 9, 0), at(day, 10, 0))
		req.RecurrenceGroupID = &group.ID
		if _, err := f.ledger.Create(ctx, req); err != nil {
			t.Fatalf("create occurrence %d: %v", day, err)
		}
	}

	f.clock.Set(at(2, 9, 30))
	outcomes, err := f.ledger.CancelSeries(ctx, group.ID, 7)
	if err != nil {
		t.Fatalf("cancel series: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %+v, want every open occurrence reported", outcomes)
	}
	started := outcomes[0]
	if started.BookingID != origin.ID || started.Date != "2026-03-02" || started.Cancelled || started.Reason != ledger.ReasonAlreadyStarted {
		t.Fatalf("started origin outcome = %+v", started)
	}
	for _, o := range outcomes[1:] {
		if !o.Cancelled {
			t.Fatalf("occurrence not cancelled: %+v", o)
		}
	}
	if outcomes[1].FeeCents != 1000 || outcomes[2].FeeCents != 0 {
		t.Fatalf("fees = %d, %d; want 1000, 0", outcomes[1].FeeCents, outcomes[2].FeeCents)
	}

	stored, err := f.ledger.Get(ctx, origin.ID)
	if err != nil {
		t.Fatalf("get origin: %v", err)
	}
	if stored.Status != models.StatusScheduled {
		t.Fatalf("started origin was cancelled: %s", stored.Status)
	}

	if _, err := f.ledger.CancelSeries(ctx, "missing", 7); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
