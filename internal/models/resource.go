// internal/models/resource.go
package models

import (
	"fmt"
	"time"
)

type ResourceStatus string

const (
	ResourceAvailable   ResourceStatus = "available"
	ResourceOccupied    ResourceStatus = "occupied"
	ResourceMaintenance ResourceStatus = "maintenance"
	ResourceUnavailable ResourceStatus = "unavailable"
)

func (s ResourceStatus) Valid() bool {
	switch s {
	case ResourceAvailable, ResourceOccupied, ResourceMaintenance, ResourceUnavailable:
		return true
	}
	return false
}

// Bookable reports whether new bookings may be placed on the resource.
// "occupied" is a display status and does not gate writes.
func (s ResourceStatus) Bookable() bool {
	return s == ResourceAvailable || s == ResourceOccupied
}

type DayHours struct {
	Opens  string `json:"opens" yaml:"opens"`
	Closes string `json:"closes" yaml:"closes"`
}

// Minutes returns the window as minutes since midnight.
func (h DayHours) Minutes() (int, int, error) {
	opens, err := ParseClock(h.Opens)
	if err != nil {
		return 0, 0, fmt.Errorf("opens: %w", err)
	}
	closes, err := ParseClock(h.Closes)
	if err != nil {
		return 0, 0, fmt.Errorf("closes: %w", err)
	}
	if closes <= opens {
		return 0, 0, fmt.Errorf("closes %s must be after opens %s", h.Closes, h.Opens)
	}
	return opens, closes, nil
}

// WeeklyHours maps weekdays to operating windows. A missing weekday is closed.
type WeeklyHours map[time.Weekday]DayHours

func (w WeeklyHours) For(day time.Weekday) (DayHours, bool) {
	if w == nil {
		return DayHours{}, false
	}
	hours, ok := w[day]
	return hours, ok
}

func (w WeeklyHours) Validate() error {
	for day, hours := range w {
		if day < time.Sunday || day > time.Saturday {
			return fmt.Errorf("invalid weekday %d", day)
		}
		if _, _, err := hours.Minutes(); err != nil {
			return fmt.Errorf("%s: %w", day, err)
		}
	}
	return nil
}

type PriceEntry struct {
	PriceCents  int64 `json:"priceCents"`
	Promotional bool  `json:"promotional"`
}

// PriceTable is keyed by slot start label ("HH:MM").
type PriceTable map[string]PriceEntry

func (p PriceTable) Lookup(label string) (PriceEntry, bool) {
	entry, ok := p[label]
	return entry, ok
}

type Unit struct {
	ID                    int64       `json:"id"`
	Name                  string      `json:"name"`
	Timezone              string      `json:"timezone"`
	Email                 string      `json:"email,omitempty"`
	Hours                 WeeklyHours `json:"hours"`
	MinAdvanceHours       int64       `json:"minAdvanceHours"`
	MaxAdvanceDays        int64       `json:"maxAdvanceDays"`
	AllowMultipleBookings bool        `json:"allowMultipleBookings"`
}

// Location loads the unit's IANA time zone, falling back to UTC.
func (u Unit) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Resource struct {
	ID           int64          `json:"id"`
	UnitID       int64          `json:"unitId"`
	Number       int64          `json:"number"`
	Name         string         `json:"name"`
	Capacity     int64          `json:"capacity"`
	Status       ResourceStatus `json:"status"`
	Hours        WeeklyHours    `json:"hours,omitempty"`
	SlotMinutes  int            `json:"slotMinutes"`
	AllowSubSlot bool           `json:"allowSubSlot"`
	Prices       PriceTable     `json:"prices"`
}

// TimeSlot is a generated, never persisted, half-open candidate interval.
type TimeSlot struct {
	Date  string    `json:"date"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

func (s TimeSlot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

type CancellationPolicy struct {
	ID                int64  `json:"id"`
	UnitID            int64  `json:"unitId"`
	ResourceID        *int64 `json:"resourceId,omitempty"`
	MinNoticeHours    int64  `json:"minNoticeHours"`
	BlockInsideWindow bool   `json:"blockInsideWindow"`
	FeeCents          int64  `json:"feeCents"`
	FeePercent        *int64 `json:"feePercent,omitempty"`
}

func (p CancellationPolicy) Validate() error {
	if p.MinNoticeHours < 0 {
		return InvalidField("minNoticeHours", "must be >= 0")
	}
	if p.FeeCents < 0 {
		return InvalidField("feeCents", "must be >= 0")
	}
	if p.FeePercent != nil && (*p.FeePercent < 0 || *p.FeePercent > 100) {
		return InvalidField("feePercent", "must be between 0 and 100")
	}
	return nil
}
