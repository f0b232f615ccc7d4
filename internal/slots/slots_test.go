package slots

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/models"
)

func court(hours models.WeeklyHours) models.Resource {
	return models.Resource{ID: 1, UnitID: 1, Hours: hours, SlotMinutes: 60, Status: models.ResourceAvailable}
}

func everyDay(opens, closes string) models.WeeklyHours {
	hours := models.WeeklyHours{}
	for day := time.Sunday; day <= time.Saturday; day++ {
		hours[day] = models.DayHours{Opens: opens, Closes: closes}
	}
	return hours
}

func TestGenerateHourly(t *testing.T) {
	date := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)
	got := Generate(court(everyDay("06:00", "22:00")), date, 60)

	if len(got) != 16 {
		t.Fatalf("len = %d, want 16", len(got))
	}
	if got[0].Label != "06:00" || got[15].Label != "21:00" {
		t.Fatalf("unexpected labels %s..%s", got[0].Label, got[15].Label)
	}
	if !got[15].End.Equal(models.At(date, 22*60)) {
		t.Fatalf("last slot ends %s, want 22:00", got[15].End)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Start.Equal(got[i-1].End) {
			t.Fatalf("gap between slot %d and %d", i-1, i)
		}
		if got[i].Interval().Overlaps(got[i-1].Interval()) {
			t.Fatalf("slot %d overlaps slot %d", i, i-1)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	resource := court(everyDay("07:30", "21:00"))
	date := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)

	first := Generate(resource, date, 45)
	firstJSON, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again := Generate(resource, date, 45)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs", i)
		}
		againJSON, err := json.Marshal(again)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(firstJSON) != string(againJSON) {
			t.Fatalf("run %d is not byte-identical", i)
		}
	}
}

func TestGenerateClosedWeekday(t *testing.T) {
	hours := models.WeeklyHours{time.Monday: {Opens: "08:00", Closes: "12:00"}}
	sunday := time.Date(2025, 7, 6, 0, 0, 0, 0, time.UTC)

	got := Generate(court(hours), sunday, 60)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil sequence, got %#v", got)
	}
}

func TestGenerateDropsTrailingRemainder(t *testing.T) {
	date := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)
	got := Generate(court(everyDay("08:00", "10:30")), date, 60)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !got[1].End.Equal(models.At(date, 10*60)) {
		t.Fatalf("last slot ends %s, want 10:00", got[1].End)
	}
}

func TestGenerateUsesResourceGranularity(t *testing.T) {
	resource := court(everyDay("08:00", "10:00"))
	resource.SlotMinutes = 30
	date := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)

	if got := Generate(resource, date, 0); len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
}

func TestGenerateUntilMidnight(t *testing.T) {
	date := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)
	got := Generate(court(everyDay("22:00", "24:00")), date, 60)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].Date != "2025-07-10" || got[1].Label != "23:00" {
		t.Fatalf("unexpected last slot %+v", got[1])
	}
}

func TestAligned(t *testing.T) {
	date := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)
	generated := Generate(court(everyDay("06:00", "22:00")), date, 60)

	aligned := models.Interval{Start: models.At(date, 9*60), End: models.At(date, 11*60)}
	if !Aligned(generated, aligned) {
		t.Fatalf("expected 09:00-11:00 to be aligned")
	}
	mid := models.Interval{Start: models.At(date, 9*60+30), End: models.At(date, 10*60+30)}
	if Aligned(generated, mid) {
		t.Fatalf("expected 09:30-10:30 to be misaligned")
	}
	if got := Covering(generated, mid); len(got) != 2 {
		t.Fatalf("Covering = %d slots, want 2", len(got))
	}
}
