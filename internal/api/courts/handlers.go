// internal/api/courts/handlers.go
package courts

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/availability"
	"github.com/codr1/courtbook/internal/models"
)

// Catalog is the part of the resource catalog the court views read.
type Catalog interface {
	Lookup(ctx context.Context, resourceID int64) (models.Resource, models.Unit, error)
	Resources(ctx context.Context, unitID int64) ([]models.Resource, error)
}

var (
	index           *availability.Index
	resourceCatalog Catalog
	indexOnce       sync.Once
)

const courtsQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(ix *availability.Index, c Catalog) {
	if ix == nil || c == nil {
		return
	}
	indexOnce.Do(func() {
		index = ix
		resourceCatalog = c
	})
}

func ready(w http.ResponseWriter, r *http.Request) bool {
	if index == nil || resourceCatalog == nil {
		log.Ctx(r.Context()).Error().Msg("Court handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return false
	}
	return true
}

// GET /api/v1/resources?unit_id=
func HandleResourcesList(w http.ResponseWriter, r *http.Request) {
	if !ready(w, r) || !apiutil.RequireAction(w, r, authz.ActionViewAvailability) {
		return
	}
	unitID, err := apiutil.ParsePositiveInt64Field(r.URL.Query().Get("unit_id"), "unit_id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if !apiutil.RequireUnitAccess(w, r, unitID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	resources, err := resourceCatalog.Resources(ctx, unitID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if resources == nil {
		resources = []models.Resource{}
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{"resources": resources}); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Int64("unit_id", unitID).Msg("Failed to write resources response")
	}
}

// GET /api/v1/resources/{id}/availability?date=YYYY-MM-DD[&start=HH:MM&end=HH:MM]
//
// Without start and end the whole day is tagged slot by slot. With both, the
// response answers whether that interval is free.
func HandleAvailability(w http.ResponseWriter, r *http.Request) {
	if !ready(w, r) || !apiutil.RequireAction(w, r, authz.ActionViewAvailability) {
		return
	}
	logger := log.Ctx(r.Context())

	resourceID, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	query := r.URL.Query()
	date, err := apiutil.ParseDateField(query.Get("date"), "date")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	_, unit, err := resourceCatalog.Lookup(ctx, resourceID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if !apiutil.RequireUnitAccess(w, r, unit.ID) {
		return
	}

	rawStart, rawEnd := strings.TrimSpace(query.Get("start")), strings.TrimSpace(query.Get("end"))
	if rawStart != "" || rawEnd != "" {
		start, err := apiutil.ParseLocalTime(date, rawStart, "start")
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		end, err := apiutil.ParseLocalTime(date, rawEnd, "end")
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		check, err := index.CheckAvailability(ctx, resourceID, models.Interval{Start: start, End: end})
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		if err := apiutil.WriteJSON(w, http.StatusOK, check); err != nil {
			logger.Error().Err(err).Int64("resource_id", resourceID).Msg("Failed to write availability check")
		}
		return
	}

	day, err := index.Day(ctx, resourceID, date)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if day.Slots == nil {
		day.Slots = []availability.SlotAvailability{}
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, day); err != nil {
		logger.Error().Err(err).Int64("resource_id", resourceID).Msg("Failed to write availability response")
	}
}
