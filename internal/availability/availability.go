// internal/availability/availability.go
package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/codr1/courtbook/internal/catalog"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/slots"
)

type Tag string

const (
	Free     Tag = "free"
	Occupied Tag = "occupied"
	Partial  Tag = "partial"
)

type SlotAvailability struct {
	Slot        models.TimeSlot `json:"slot"`
	Tag         Tag             `json:"tag"`
	BookingIDs  []string        `json:"bookingIds,omitempty"`
	PriceCents  int64           `json:"priceCents"`
	Promotional bool            `json:"promotional"`
}

type DayAvailability struct {
	ResourceID int64              `json:"resourceId"`
	Date       string             `json:"date"`
	Slots      []SlotAvailability `json:"slots"`
}

// OccupiedSlots counts slots tagged occupied or partial.
func (d DayAvailability) OccupiedSlots() int {
	n := 0
	for _, slot := range d.Slots {
		if slot.Tag != Free {
			n++
		}
	}
	return n
}

// Overlaps is the conflict predicate for every write path:
// a.Start < b.End && b.Start < a.End. Equal endpoints do not conflict.
func Overlaps(a, b models.Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Conflicts returns the blocking bookings whose interval overlaps candidate.
func Conflicts(candidate models.Interval, bookings []models.Booking) []models.Booking {
	var out []models.Booking
	for _, booking := range bookings {
		if !booking.Status.Blocking() {
			continue
		}
		if Overlaps(candidate, booking.Interval()) {
			out = append(out, booking)
		}
	}
	return out
}

func conflictIDs(bookings []models.Booking) []string {
	ids := make([]string, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
	}
	return ids
}

// Build tags every slot as free, occupied or partial and attaches its price.
// Prices are looked up for every slot regardless of occupancy.
func Build(resource models.Resource, daySlots []models.TimeSlot, bookings []models.Booking) (DayAvailability, error) {
	day := DayAvailability{ResourceID: resource.ID, Slots: make([]SlotAvailability, 0, len(daySlots))}
	if len(daySlots) > 0 {
		day.Date = daySlots[0].Date
	}
	for _, slot := range daySlots {
		entry, ok := resource.Prices.Lookup(slot.Label)
		if !ok {
			weekday := time.Weekday(0)
			if date, err := models.ParseDate(slot.Date); err == nil {
				weekday = date.Weekday()
			}
			return DayAvailability{}, &catalog.PriceCoverageError{ResourceID: resource.ID, Weekday: weekday, Label: slot.Label}
		}

		holding := Conflicts(slot.Interval(), bookings)
		tag := Free
		if len(holding) > 0 {
			tag = Partial
			if covered(slot.Interval(), holding) >= slot.End.Sub(slot.Start) {
				tag = Occupied
			}
		}
		day.Slots = append(day.Slots, SlotAvailability{
			Slot:        slot,
			Tag:         tag,
			BookingIDs:  conflictIDs(holding),
			PriceCents:  entry.PriceCents,
			Promotional: entry.Promotional,
		})
	}
	return day, nil
}

// covered returns how much of window the bookings hold, counting shared time once.
func covered(window models.Interval, bookings []models.Booking) time.Duration {
	parts := make([]models.Interval, 0, len(bookings))
	for _, b := range bookings {
		start, end := b.Start, b.End
		if start.Before(window.Start) {
			start = window.Start
		}
		if end.After(window.End) {
			end = window.End
		}
		if end.After(start) {
			parts = append(parts, models.Interval{Start: start, End: end})
		}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Start.Before(parts[j].Start) })

	var (
		total   time.Duration
		current models.Interval
	)
	for i, part := range parts {
		if i == 0 {
			current = part
			continue
		}
		if !part.Start.After(current.End) {
			if part.End.After(current.End) {
				current.End = part.End
			}
			continue
		}
		total += current.Duration()
		current = part
	}
	if len(parts) > 0 {
		total += current.Duration()
	}
	return total
}

// PriceFor sums the prices of the slots an interval covers. A slot covered in
// part contributes in proportion to the minutes covered.
func PriceFor(resource models.Resource, daySlots []models.TimeSlot, interval models.Interval) (int64, error) {
	var total int64
	for _, slot := range slots.Covering(daySlots, interval) {
		entry, ok := resource.Prices.Lookup(slot.Label)
		if !ok {
			return 0, fmt.Errorf("price slot %s: %w", slot.Label, catalog.ErrPriceNotCovered)
		}
		start, end := slot.Start, slot.End
		if interval.Start.After(start) {
			start = interval.Start
		}
		if interval.End.Before(end) {
			end = interval.End
		}
		part := int64(end.Sub(start) / time.Minute)
		whole := int64(slot.End.Sub(slot.Start) / time.Minute)
		total += entry.PriceCents * part / whole
	}
	return total, nil
}

type ResourceSource interface {
	Resource(ctx context.Context, id int64) (models.Resource, error)
}

// BookingSource reads committed bookings for one resource and date.
type BookingSource interface {
	DayBookings(ctx context.Context, resourceID int64, date string) ([]models.Booking, error)
}

type Check struct {
	Free           bool     `json:"free"`
	ConflictingIDs []string `json:"conflictingIds,omitempty"`
}

// Index answers availability queries against the committed store. It never
// mutates and is safe for concurrent use.
type Index struct {
	resources ResourceSource
	bookings  BookingSource
}

func NewIndex(resources ResourceSource, bookings BookingSource) *Index {
	return &Index{resources: resources, bookings: bookings}
}

func (ix *Index) CheckAvailability(ctx context.Context, resourceID int64, interval models.Interval) (Check, error) {
	if !interval.Valid() {
		return Check{}, models.InvalidField("interval", "end must be after start")
	}
	bookings, err := ix.bookings.DayBookings(ctx, resourceID, models.FormatDate(interval.Start))
	if err != nil {
		return Check{}, &models.CollaboratorError{Op: "load bookings", Err: err}
	}
	conflicts := Conflicts(interval, bookings)
	return Check{Free: len(conflicts) == 0, ConflictingIDs: conflictIDs(conflicts)}, nil
}

func (ix *Index) Day(ctx context.Context, resourceID int64, date time.Time) (DayAvailability, error) {
	resource, err := ix.resources.Resource(ctx, resourceID)
	if err != nil {
		return DayAvailability{}, err
	}
	label := models.FormatDate(date)
	bookings, err := ix.bookings.DayBookings(ctx, resourceID, label)
	if err != nil {
		return DayAvailability{}, &models.CollaboratorError{Op: "load bookings", Err: err}
	}
	day, err := Build(resource, slots.Generate(resource, date, resource.SlotMinutes), bookings)
	if err != nil {
		return DayAvailability{}, err
	}
	day.Date = label
	return day, nil
}
