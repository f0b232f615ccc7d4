// Package slots derives the bookable time slots of a resource for a date.
//
// Generation is a pure function of (resource, date, granularity): the same
// inputs always produce the same ordered sequence.
package slots

import (
	"time"

	"github.com/codr1/courtbook/internal/models"
)

// DefaultMinutes is used when neither the caller nor the resource sets a granularity.
const DefaultMinutes = 60

// Window returns the resource's operating window on date. ok is false when
// the resource is closed that weekday or its hours are malformed.
func Window(resource models.Resource, date time.Time) (models.Interval, bool) {
	hours, ok := resource.Hours.For(date.Weekday())
	if !ok {
		return models.Interval{}, false
	}
	opens, closes, err := hours.Minutes()
	if err != nil {
		return models.Interval{}, false
	}
	return models.Interval{
		Start: models.At(date, opens),
		End:   models.At(date, closes),
	}, true
}

// Granularity resolves the slot length in minutes for resource.
func Granularity(resource models.Resource, granularity int) int {
	if granularity > 0 {
		return granularity
	}
	if resource.SlotMinutes > 0 {
		return resource.SlotMinutes
	}
	return DefaultMinutes
}

// Generate partitions the operating window of resource on date into
// consecutive half-open slots of granularity minutes. A trailing remainder
// shorter than the granularity yields no slot. A closed weekday yields an
// empty sequence.
func Generate(resource models.Resource, date time.Time, granularity int) []models.TimeSlot {
	window, ok := Window(resource, date)
	if !ok {
		return []models.TimeSlot{}
	}
	step := time.Duration(Granularity(resource, granularity)) * time.Minute
	label := models.FormatDate(date)

	out := make([]models.TimeSlot, 0, int(window.Duration()/step))
	for start := window.Start; !start.Add(step).After(window.End); start = start.Add(step) {
		out = append(out, models.TimeSlot{
			Date:  label,
			Start: start,
			End:   start.Add(step),
			Label: models.FormatClock(models.MinuteOfDay(start)),
		})
	}
	return out
}

// Aligned reports whether interval starts and ends on slot boundaries of slots.
func Aligned(slots []models.TimeSlot, interval models.Interval) bool {
	startOK, endOK := false, false
	for _, slot := range slots {
		if slot.Start.Equal(interval.Start) {
			startOK = true
		}
		if slot.End.Equal(interval.End) {
			endOK = true
		}
	}
	return startOK && endOK
}

// Covering returns the slots that overlap interval, in order.
func Covering(slots []models.TimeSlot, interval models.Interval) []models.TimeSlot {
	var out []models.TimeSlot
	for _, slot := range slots {
		if slot.Interval().Overlaps(interval) {
			out = append(out, slot)
		}
	}
	return out
}
