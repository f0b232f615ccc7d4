// Package stats aggregates booking counts, revenue and occupancy over a date
// range. It reads committed ledger state and never writes it.
package stats

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/availability"
	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/slots"
)

// MaxRangeDays bounds a single query.
const MaxRangeDays = 366

type Filter struct {
	From        time.Time
	To          time.Time
	UnitID      int64
	ResourceIDs []int64
}

func (f Filter) Validate() error {
	if f.From.IsZero() || f.To.IsZero() {
		return models.InvalidField("range", "from and to are required")
	}
	from, to := models.DateOf(f.From), models.DateOf(f.To)
	if to.Before(from) {
		return models.InvalidField("range", "to must not be before from")
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > MaxRangeDays {
		return models.InvalidField("range", "must not exceed 366 days")
	}
	return nil
}

// ResourceDay is the rollup of one resource on one date. It is the unit the
// cache stores and invalidates.
type ResourceDay struct {
	ResourceID    int64          `json:"resourceId"`
	Date          string         `json:"date"`
	Counts        map[string]int `json:"counts"`
	RevenueCents  int64          `json:"revenueCents"`
	FeeCents      int64          `json:"feeCents"`
	OccupiedSlots int            `json:"occupiedSlots"`
	TotalSlots    int            `json:"totalSlots"`
}

type Rollup struct {
	Period           string         `json:"period"`
	Bookings         int            `json:"bookings"`
	Counts           map[string]int `json:"counts"`
	RevenueCents     int64          `json:"revenueCents"`
	FeeCents         int64          `json:"feeCents"`
	OccupiedSlots    int            `json:"occupiedSlots"`
	TotalSlots       int            `json:"totalSlots"`
	OccupancyPercent float64        `json:"occupancyPercent"`
}

type Report struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	Totals Rollup   `json:"totals"`
	Daily  []Rollup `json:"daily"`
	Weekly []Rollup `json:"weekly"`
}

func newCounts() map[string]int {
	counts := make(map[string]int, len(models.AllStatuses))
	for _, status := range models.AllStatuses {
		counts[string(status)] = 0
	}
	return counts
}

// Occupancy is occupied/total as a percentage rounded to one decimal.
func Occupancy(occupied, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(occupied)*1000/float64(total)) / 10
}

func (r *Rollup) add(day ResourceDay) {
	for status, n := range day.Counts {
		r.Counts[status] += n
		r.Bookings += n
	}
	r.RevenueCents += day.RevenueCents
	r.FeeCents += day.FeeCents
	r.OccupiedSlots += day.OccupiedSlots
	r.TotalSlots += day.TotalSlots
	r.OccupancyPercent = Occupancy(r.OccupiedSlots, r.TotalSlots)
}

// Compute builds the rollup of resource on date from every booking of that
// resource and date, whatever their status. Partially covered slots count as
// occupied.
func Compute(resource models.Resource, date time.Time, bookings []models.Booking) (ResourceDay, error) {
	day := ResourceDay{
		ResourceID: resource.ID,
		Date:       models.FormatDate(date),
		Counts:     newCounts(),
	}
	for _, b := range bookings {
		day.Counts[string(b.Status)]++
		if b.Status.PaidEquivalent() {
			day.RevenueCents += b.PriceCents
		}
		day.FeeCents += b.CancellationFeeCents
	}

	daySlots := slots.Generate(resource, date, resource.SlotMinutes)
	grid, err := availability.Build(resource, daySlots, bookings)
	if err != nil {
		return ResourceDay{}, err
	}
	day.TotalSlots = len(daySlots)
	day.OccupiedSlots = grid.OccupiedSlots()
	return day, nil
}

func days(from, to time.Time) []time.Time {
	var out []time.Time
	for d := models.DateOf(from); !d.After(models.DateOf(to)); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// assemble folds resource-days into a report. Weekly periods start on Sunday.
func assemble(from, to time.Time, resourceDays []ResourceDay) Report {
	report := Report{
		From:   models.FormatDate(from),
		To:     models.FormatDate(to),
		Totals: Rollup{Period: "total", Counts: newCounts()},
	}
	daily := make(map[string]*Rollup)
	weekly := make(map[string]*Rollup)
	for _, d := range days(from, to) {
		label := models.FormatDate(d)
		daily[label] = &Rollup{Period: label, Counts: newCounts()}
		week := models.FormatDate(models.WeekStart(d))
		if _, ok := weekly[week]; !ok {
			weekly[week] = &Rollup{Period: week, Counts: newCounts()}
		}
	}
	for _, day := range resourceDays {
		rollup, ok := daily[day.Date]
		if !ok {
			continue
		}
		rollup.add(day)
		date, _ := models.ParseDate(day.Date)
		weekly[models.FormatDate(models.WeekStart(date))].add(day)
		report.Totals.add(day)
	}
	report.Daily = sorted(daily)
	report.Weekly = sorted(weekly)
	return report
}

func sorted(rollups map[string]*Rollup) []Rollup {
	out := make([]Rollup, 0, len(rollups))
	for _, r := range rollups {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

type key struct {
	resourceID int64
	date       string
}

func group(bookings []models.Booking) map[key][]models.Booking {
	out := make(map[key][]models.Booking)
	for _, b := range bookings {
		k := key{b.ResourceID, b.Date}
		out[k] = append(out[k], b)
	}
	return out
}

// Naive recomputes a report straight from resources and bookings.
func Naive(from, to time.Time, resources []models.Resource, bookings []models.Booking) (Report, error) {
	byDay := group(bookings)
	var resourceDays []ResourceDay
	for _, resource := range resources {
		for _, d := range days(from, to) {
			day, err := Compute(resource, d, byDay[key{resource.ID, models.FormatDate(d)}])
			if err != nil {
				return Report{}, err
			}
			resourceDays = append(resourceDays, day)
		}
	}
	return assemble(from, to, resourceDays), nil
}

type ResourceSource interface {
	Resources(ctx context.Context, unitID int64) ([]models.Resource, error)
}

type BookingSource interface {
	ListBookings(ctx context.Context, filter db.BookingFilter) ([]models.Booking, error)
}

// Aggregator answers stats queries from cached resource-day rollups,
// recomputing the ones missing from the cache.
type Aggregator struct {
	resources ResourceSource
	bookings  BookingSource
	cache     RollupCache
}

func NewAggregator(resources ResourceSource, bookings BookingSource, cache RollupCache) *Aggregator {
	if cache == nil {
		cache = NewMemoryCache(0)
	}
	return &Aggregator{resources: resources, bookings: bookings, cache: cache}
}

// Resources lists the resources a filter selects.
func (a *Aggregator) Resources(ctx context.Context, filter Filter) ([]models.Resource, error) {
	resources, err := a.resources.Resources(ctx, filter.UnitID)
	if err != nil {
		return nil, err
	}
	if len(filter.ResourceIDs) == 0 {
		return resources, nil
	}
	wanted := make(map[int64]bool, len(filter.ResourceIDs))
	for _, id := range filter.ResourceIDs {
		wanted[id] = true
	}
	selected := resources[:0]
	for _, r := range resources {
		if wanted[r.ID] {
			selected = append(selected, r)
		}
	}
	return selected, nil
}

func (a *Aggregator) Query(ctx context.Context, filter Filter) (Report, error) {
	if err := filter.Validate(); err != nil {
		return Report{}, err
	}
	logger := log.Ctx(ctx).With().Str("component", "stats_aggregator").Logger()

	resources, err := a.Resources(ctx, filter)
	if err != nil {
		return Report{}, err
	}
	span := days(filter.From, filter.To)

	// Generations are read before the store so a commit landing in between
	// keeps the recomputed rollup out of the cache.
	var (
		resourceDays []ResourceDay
		missing      = make(map[int64][]pendingDay)
	)
	for _, resource := range resources {
		for _, d := range span {
			day, gen, ok, err := a.cache.Get(ctx, resource.ID, models.FormatDate(d))
			if err != nil {
				logger.Warn().Err(err).Int64("resource_id", resource.ID).Msg("Stats cache read failed")
				gen = -1
			}
			if ok {
				resourceDays = append(resourceDays, day)
				continue
			}
			missing[resource.ID] = append(missing[resource.ID], pendingDay{date: d, gen: gen})
		}
	}

	if len(missing) > 0 {
		ids := make([]int64, 0, len(missing))
		for id := range missing {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		bookings, err := a.bookings.ListBookings(ctx, db.BookingFilter{
			From:             models.FormatDate(filter.From),
			To:               models.FormatDate(filter.To),
			ResourceIDs:      ids,
			SkipParticipants: true,
		})
		if err != nil {
			return Report{}, &models.CollaboratorError{Op: "list bookings for stats", Err: err}
		}
		byDay := group(bookings)
		for _, resource := range resources {
			for _, p := range missing[resource.ID] {
				day, err := Compute(resource, p.date, byDay[key{resource.ID, models.FormatDate(p.date)}])
				if err != nil {
					return Report{}, err
				}
				if p.gen < 0 {
					resourceDays = append(resourceDays, day)
					continue
				}
				stored, err := a.cache.Set(ctx, day, p.gen)
				if err != nil {
					logger.Warn().Err(err).Int64("resource_id", resource.ID).Msg("Stats cache write failed")
				} else if !stored {
					logger.Debug().Int64("resource_id", resource.ID).Str("date", day.Date).Msg("Stats rollup invalidated during query")
				}
				resourceDays = append(resourceDays, day)
			}
		}
	}

	logger.Debug().
		Int("resources", len(resources)).
		Int("days", len(span)).
		Int("recomputed", countDays(missing)).
		Msg("Stats query served")
	return assemble(filter.From, filter.To, resourceDays), nil
}

type pendingDay struct {
	date time.Time
	gen  Generation
}

func countDays(missing map[int64][]pendingDay) int {
	n := 0
	for _, d := range missing {
		n += len(d)
	}
	return n
}

// Invalidate drops the cached rollup of a resource-day. It matches the
// ledger's commit observer signature.
func (a *Aggregator) Invalidate(resourceID int64, date string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.cache.Invalidate(ctx, resourceID, date); err != nil {
		log.Error().
			Err(err).
			Str("component", "stats_aggregator").
			Int64("resource_id", resourceID).
			Str("date", date).
			Msg("Failed to invalidate stats rollup")
	}
}
