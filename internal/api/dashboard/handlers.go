// internal/api/dashboard/handlers.go
package dashboard

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/stats"
)

const (
	dashboardQueryTimeout = 15 * time.Second
	defaultRangeDays      = 30
	dateRangeToday        = "today"
	dateRangeLast7Days    = "last_7_days"
	dateRangeLast30Days   = "last_30_days"
	dateRangeThisMonth    = "this_month"
	dateRangeThisYear     = "this_year"
	dateRangeCustom       = "custom"
)

// UnitSource resolves a unit so presets follow its local calendar.
type UnitSource interface {
	Unit(ctx context.Context, id int64) (models.Unit, error)
}

var (
	aggregator *stats.Aggregator
	units      UnitSource
	nowFunc    = func() time.Time { return time.Now().UTC() }
	statsOnce  sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(agg *stats.Aggregator, u UnitSource) {
	if agg == nil || u == nil {
		log.Warn().Msg("InitHandlers called without aggregator; stats handlers will be unavailable")
		return
	}
	statsOnce.Do(func() {
		aggregator = agg
		units = u
	})
}

type statsResponse struct {
	DateRange string `json:"dateRange"`
	stats.Report
}

// GET /api/v1/stats?from=&to=&unit_id=&resource_id=
//
// date_range accepts the presets today, last_7_days, last_30_days,
// this_month and this_year, or custom together with from and to. Without
// any range the last 30 days are reported.
func HandleStats(w http.ResponseWriter, r *http.Request) {
	if aggregator == nil || units == nil {
		log.Ctx(r.Context()).Error().Msg("Stats handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if !apiutil.RequireAction(w, r, authz.ActionViewStats) {
		return
	}
	logger := log.Ctx(r.Context())
	user := authz.UserFromContext(r.Context())
	query := r.URL.Query()

	var filter stats.Filter
	if raw := strings.TrimSpace(query.Get("unit_id")); raw != "" {
		unitID, err := apiutil.ParsePositiveInt64Field(raw, "unit_id")
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		filter.UnitID = unitID
	} else if user.Role == authz.RoleStaff && user.UnitID != nil {
		filter.UnitID = *user.UnitID
	}
	if filter.UnitID == 0 && user.Role != authz.RoleAdmin {
		apiutil.WriteError(w, r, models.InvalidField("unit_id", "is required"))
		return
	}
	if filter.UnitID != 0 && !apiutil.RequireUnitAccess(w, r, filter.UnitID) {
		return
	}
	resourceIDs, err := apiutil.ParseIDList(r, "resource_id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	filter.ResourceIDs = resourceIDs

	ctx, cancel := context.WithTimeout(r.Context(), dashboardQueryTimeout)
	defer cancel()

	loc := time.UTC
	if filter.UnitID != 0 {
		unit, err := units.Unit(ctx, filter.UnitID)
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		loc = unit.Location()
	}

	from, to, preset, err := parseDateRange(r, models.DateOf(models.WallClock(nowFunc(), loc)))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	filter.From, filter.To = from, to

	report, err := aggregator.Query(ctx, filter)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, statsResponse{DateRange: preset, Report: report}); err != nil {
		logger.Error().Err(err).Int64("unit_id", filter.UnitID).Msg("Failed to write stats response")
	}
}

// parseDateRange returns the inclusive first and last date of the request's
// range and the preset it resolved to. today is the unit-local date.
func parseDateRange(r *http.Request, today time.Time) (time.Time, time.Time, string, error) {
	query := r.URL.Query()
	preset := strings.ToLower(strings.TrimSpace(query.Get("date_range")))
	fromRaw := strings.TrimSpace(query.Get("from"))
	toRaw := strings.TrimSpace(query.Get("to"))

	if preset == "" && fromRaw == "" && toRaw == "" {
		preset = dateRangeLast30Days
	}
	if preset == "" {
		preset = dateRangeCustom
	}

	if preset != dateRangeCustom {
		from, to := presetDateRange(preset, today)
		if from.IsZero() {
			return time.Time{}, time.Time{}, "", models.InvalidField("date_range", "unknown preset "+preset)
		}
		return from, to, preset, nil
	}

	from, err := apiutil.ParseDateField(fromRaw, "from")
	if err != nil {
		return time.Time{}, time.Time{}, "", err
	}
	to, err := apiutil.ParseDateField(toRaw, "to")
	if err != nil {
		return time.Time{}, time.Time{}, "", err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, "", models.InvalidField("to", "must not be before from")
	}
	return from, to, dateRangeCustom, nil
}

func presetDateRange(preset string, today time.Time) (time.Time, time.Time) {
	switch preset {
	case dateRangeToday:
		return today, today
	case dateRangeLast7Days:
		return today.AddDate(0, 0, -6), today
	case dateRangeLast30Days:
		return today.AddDate(0, 0, -(defaultRangeDays - 1)), today
	case dateRangeThisMonth:
		return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC), today
	case dateRangeThisYear:
		return time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), today
	default:
		return time.Time{}, time.Time{}
	}
}
