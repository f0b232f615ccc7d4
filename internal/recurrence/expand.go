// Package recurrence turns a recurring booking request into concrete
// occurrences and submits each one to the ledger independently.
package recurrence

import (
	"sort"
	"time"

	"github.com/codr1/courtbook/internal/models"
)

// MaxOccurrences bounds every expansion.
const MaxOccurrences = 365

// Occurrence is one concrete interval of a series. All occurrences share the
// origin's time of day and duration.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

func (o Occurrence) Date() string {
	return models.FormatDate(o.Start)
}

func (o Occurrence) Interval() models.Interval {
	return models.Interval{Start: o.Start, End: o.End}
}

// on moves o to date keeping its offset from midnight and its duration.
func (o Occurrence) on(date time.Time) Occurrence {
	offset := o.Start.Sub(models.DateOf(o.Start))
	start := models.DateOf(date).Add(offset)
	return Occurrence{Start: start, End: start.Add(o.End.Sub(o.Start))}
}

// Expand lists the occurrences of cfg starting with origin. It is a pure
// function of its inputs. max <= 0 or above MaxOccurrences uses MaxOccurrences.
func Expand(origin Occurrence, cfg models.RecurrenceConfig, max int) ([]Occurrence, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !origin.Interval().Valid() {
		return nil, models.InvalidField("interval", "end must be after start")
	}

	limit := max
	if limit <= 0 || limit > MaxOccurrences {
		limit = MaxOccurrences
	}
	if cfg.Count > 0 && cfg.Count < limit {
		limit = cfg.Count
	}

	first := models.DateOf(origin.Start)
	var until time.Time
	if cfg.Until != nil {
		until = models.DateOf(*cfg.Until)
		if until.Before(first) {
			return nil, models.InvalidField("recurrence.until", "must not be before the first occurrence")
		}
	}

	out := []Occurrence{origin}
	// add appends date and reports whether expansion should continue.
	add := func(date time.Time) bool {
		if cfg.Until != nil && date.After(until) {
			return false
		}
		out = append(out, origin.on(date))
		return len(out) < limit
	}
	if len(out) >= limit {
		return out, nil
	}

	switch cfg.Frequency {
	case models.FrequencyDaily:
		for k := 1; add(first.AddDate(0, 0, k*cfg.Interval)); k++ {
		}
	case models.FrequencyWeekly:
		if len(cfg.Weekdays) == 0 {
			for k := 1; add(first.AddDate(0, 0, 7*k*cfg.Interval)); k++ {
			}
			break
		}
		expandWeekdays(first, cfg, add)
	case models.FrequencyMonthly:
		expandMonthly(first, cfg, limit, add)
	}
	return out, nil
}

func weekdays(days []time.Weekday) []time.Weekday {
	seen := make(map[time.Weekday]bool, len(days))
	var out []time.Weekday
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// expandWeekdays walks every interval-th Sunday-started week from the
// origin's week and yields the listed weekdays after the origin.
func expandWeekdays(first time.Time, cfg models.RecurrenceConfig, add func(time.Time) bool) {
	days := weekdays(cfg.Weekdays)
	week := models.WeekStart(first)
	for {
		for _, day := range days {
			date := week.AddDate(0, 0, int(day))
			if !date.After(first) {
				continue
			}
			if !add(date) {
				return
			}
		}
		week = week.AddDate(0, 0, 7*cfg.Interval)
	}
}

// expandMonthly keeps the origin's day of month and skips months that do
// not have it.
func expandMonthly(first time.Time, cfg models.RecurrenceConfig, limit int, add func(time.Time) bool) {
	day := first.Day()
	// A day of month recurs at least once every 12 steps of any interval.
	for k, misses := 1, 0; misses < 12*limit; k++ {
		month := time.Date(first.Year(), first.Month()+time.Month(k*cfg.Interval), 1, 0, 0, 0, 0, time.UTC)
		if cfg.Until != nil && month.After(models.DateOf(*cfg.Until)) {
			return
		}
		if daysIn(month) < day {
			misses++
			continue
		}
		if !add(month.AddDate(0, 0, day-1)) {
			return
		}
	}
}

func daysIn(month time.Time) int {
	return month.AddDate(0, 1, -1).Day()
}
