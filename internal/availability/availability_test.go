package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/catalog"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/slots"
	"github.com/codr1/courtbook/internal/testutil"
)

var day = time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)

func court() models.Resource {
	prices := testutil.HourlyPrices(6, 22, 8000)
	prices["18:00"] = models.PriceEntry{PriceCents: 12000}
	prices["07:00"] = models.PriceEntry{PriceCents: 6000, Promotional: true}
	return models.Resource{
		ID:          1,
		UnitID:      1,
		Status:      models.ResourceAvailable,
		Hours:       testutil.EveryDay("06:00", "22:00"),
		SlotMinutes: 60,
		Prices:      prices,
	}
}

func booking(id string, status models.BookingStatus, startMinute, endMinute int) models.Booking {
	return models.Booking{
		ID:         id,
		ResourceID: 1,
		Date:       models.FormatDate(day),
		Start:      models.At(day, startMinute),
		End:        models.At(day, endMinute),
		Status:     status,
	}
}

func TestConflictsHalfOpen(t *testing.T) {
	existing := []models.Booking{booking("a", models.StatusConfirmed, 9*60, 10*60)}

	overlapping := models.Interval{Start: models.At(day, 9*60+30), End: models.At(day, 10*60+30)}
	if got := Conflicts(overlapping, existing); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("expected conflict with a, got %+v", got)
	}

	adjacent := models.Interval{Start: models.At(day, 10*60), End: models.At(day, 11*60)}
	if got := Conflicts(adjacent, existing); len(got) != 0 {
		t.Fatalf("adjacent interval should not conflict, got %+v", got)
	}
}

func TestConflictsIgnoreOnlyCancelled(t *testing.T) {
	candidate := models.Interval{Start: models.At(day, 9*60), End: models.At(day, 10*60)}
	for _, status := range models.AllStatuses {
		got := Conflicts(candidate, []models.Booking{booking("a", status, 9*60, 10*60)})
		want := status != models.StatusCancelled
		if want != (len(got) == 1) {
			t.Fatalf("status %s: want conflict=%t, got %d", status, want, len(got))
		}
		if status.Blocking() != want {
			t.Fatalf("status %s: Blocking() = %t, want %t", status, status.Blocking(), want)
		}
	}
}

func TestBuildTagsAndPrices(t *testing.T) {
	resource := court()
	bookings := []models.Booking{
		booking("a", models.StatusConfirmed, 7*60, 8*60),
		booking("b", models.StatusScheduled, 18*60, 18*60+30),
		booking("c", models.StatusCancelled, 9*60, 10*60),
	}

	got, err := Build(resource, slots.Generate(resource, day, 60), bookings)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(got.Slots) != 16 {
		t.Fatalf("len = %d, want 16", len(got.Slots))
	}

	bySlot := map[string]SlotAvailability{}
	for _, slot := range got.Slots {
		bySlot[slot.Slot.Label] = slot
	}

	seven := bySlot["07:00"]
	if seven.Tag != Occupied || len(seven.BookingIDs) != 1 || seven.BookingIDs[0] != "a" {
		t.Fatalf("07:00 = %+v, want occupied by a", seven)
	}
	if seven.PriceCents != 6000 || !seven.Promotional {
		t.Fatalf("07:00 price = %d promo=%t, want 6000 promotional", seven.PriceCents, seven.Promotional)
	}
	if got := bySlot["18:00"]; got.Tag != Partial || got.PriceCents != 12000 {
		t.Fatalf("18:00 = %+v, want partial priced 12000", got)
	}
	if got := bySlot["09:00"]; got.Tag != Free {
		t.Fatalf("09:00 = %+v, want free (cancelled booking)", got)
	}
	if got.OccupiedSlots() != 2 {
		t.Fatalf("OccupiedSlots = %d, want 2", got.OccupiedSlots())
	}
}

func TestBuildAdjacentSubSlotsFillSlot(t *testing.T) {
	resource := court()
	bookings := []models.Booking{
		booking("a", models.StatusConfirmed, 9*60, 9*60+30),
		booking("b", models.StatusConfirmed, 9*60+30, 10*60),
	}
	got, err := Build(resource, slots.Generate(resource, day, 60), bookings)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, slot := range got.Slots {
		if slot.Slot.Label == "09:00" && slot.Tag != Occupied {
			t.Fatalf("09:00 = %s, want occupied", slot.Tag)
		}
	}
}

func TestBuildMissingPrice(t *testing.T) {
	resource := court()
	delete(resource.Prices, "12:00")
	_, err := Build(resource, slots.Generate(resource, day, 60), nil)
	if !errors.Is(err, catalog.ErrPriceNotCovered) {
		t.Fatalf("expected ErrPriceNotCovered, got %v", err)
	}
}

func TestPriceFor(t *testing.T) {
	resource := court()
	generated := slots.Generate(resource, day, 60)

	tests := []struct {
		name     string
		interval models.Interval
		want     int64
	}{
		{name: "one_slot", interval: models.Interval{Start: models.At(day, 9*60), End: models.At(day, 10*60)}, want: 8000},
		{name: "peak_and_before", interval: models.Interval{Start: models.At(day, 17*60), End: models.At(day, 19*60)}, want: 20000},
		{name: "half_slot", interval: models.Interval{Start: models.At(day, 9*60), End: models.At(day, 9*60+30)}, want: 4000},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := PriceFor(resource, generated, test.interval)
			if err != nil {
				t.Fatalf("PriceFor: %v", err)
			}
			if got != test.want {
				t.Fatalf("PriceFor = %d, want %d", got, test.want)
			}
		})
	}
}

type stubResources struct{ resource models.Resource }

func (s stubResources) Resource(context.Context, int64) (models.Resource, error) {
	return s.resource, nil
}

type stubBookings struct {
	bookings []models.Booking
	err      error
}

func (s stubBookings) DayBookings(context.Context, int64, string) ([]models.Booking, error) {
	return s.bookings, s.err
}

func TestIndexCheckAvailability(t *testing.T) {
	ix := NewIndex(stubResources{court()}, stubBookings{bookings: []models.Booking{
		booking("a", models.StatusConfirmed, 9*60, 10*60),
	}})
	ctx := context.Background()

	check, err := ix.CheckAvailability(ctx, 1, models.Interval{Start: models.At(day, 9*60+30), End: models.At(day, 10*60+30)})
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if check.Free || len(check.ConflictingIDs) != 1 {
		t.Fatalf("expected conflict, got %+v", check)
	}

	check, err = ix.CheckAvailability(ctx, 1, models.Interval{Start: models.At(day, 10*60), End: models.At(day, 11*60)})
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if !check.Free {
		t.Fatalf("expected 10:00-11:00 free, got %+v", check)
	}

	if _, err := ix.CheckAvailability(ctx, 1, models.Interval{Start: models.At(day, 10*60), End: models.At(day, 10*60)}); !errors.Is(err, models.ErrInvalidRequest) {
		t.Fatalf("expected invalid request for empty interval, got %v", err)
	}
}

func TestIndexSurfacesStoreFailure(t *testing.T) {
	ix := NewIndex(stubResources{court()}, stubBookings{err: errors.New("disk I/O error")})
	_, err := ix.Day(context.Background(), 1, day)
	if !errors.Is(err, models.ErrCollaboratorUnavailable) {
		t.Fatalf("expected collaborator unavailable, got %v", err)
	}
}
