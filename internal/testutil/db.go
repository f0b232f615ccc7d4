package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/models"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// EveryDay returns the same window for all seven weekdays.
func EveryDay(opens, closes string) models.WeeklyHours {
	hours := models.WeeklyHours{}
	for day := time.Sunday; day <= time.Saturday; day++ {
		hours[day] = models.DayHours{Opens: opens, Closes: closes}
	}
	return hours
}

// HourlyPrices prices every hourly slot between opens and closes (hours).
func HourlyPrices(opens, closes int, cents int64) models.PriceTable {
	prices := models.PriceTable{}
	for hour := opens; hour < closes; hour++ {
		prices[models.FormatClock(hour*60)] = models.PriceEntry{PriceCents: cents}
	}
	return prices
}

// SeedUnit inserts a unit open 06:00-22:00 every day and returns it with its id.
func SeedUnit(t *testing.T, database *db.DB) models.Unit {
	t.Helper()

	unit := models.Unit{
		Name:                  "Test Unit",
		Timezone:              "UTC",
		Email:                 "front-desk@example.com",
		Hours:                 EveryDay("06:00", "22:00"),
		AllowMultipleBookings: true,
	}
	ctx := context.Background()
	id, err := database.Queries.CreateUnit(ctx, unit)
	if err != nil {
		t.Fatalf("seed unit: %v", err)
	}
	unit.ID = id
	if err := database.Queries.ReplaceOperatingHours(ctx, id, nil, unit.Hours); err != nil {
		t.Fatalf("seed unit hours: %v", err)
	}
	return unit
}

// SeedResource inserts an hourly court priced at 80.00 per slot for unitID.
func SeedResource(t *testing.T, database *db.DB, unitID, number int64) models.Resource {
	t.Helper()

	resource := models.Resource{
		UnitID:      unitID,
		Number:      number,
		Name:        "Court",
		Capacity:    4,
		Status:      models.ResourceAvailable,
		SlotMinutes: 60,
		Prices:      HourlyPrices(6, 22, 8000),
	}
	ctx := context.Background()
	id, err := database.Queries.CreateResource(ctx, resource)
	if err != nil {
		t.Fatalf("seed resource: %v", err)
	}
	resource.ID = id
	if err := database.Queries.ReplaceResourcePrices(ctx, id, resource.Prices); err != nil {
		t.Fatalf("seed resource prices: %v", err)
	}
	return resource
}

// FixedClock always reports the same instant.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time {
	return c.T
}

func (c *FixedClock) Set(t time.Time) {
	c.T = t
}
