// internal/api/bookings/handlers.go
package bookings

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/ledger"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/recurrence"
)

var (
	bookingLedger *ledger.Ledger
	expander      *recurrence.Expander
	directory     Directory
	handlersOnce  sync.Once
)

const bookingRequestTimeout = 10 * time.Second

// Directory resolves the unit a resource belongs to.
type Directory interface {
	Lookup(ctx context.Context, resourceID int64) (models.Resource, models.Unit, error)
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(l *ledger.Ledger, e *recurrence.Expander, d Directory) {
	if l == nil || e == nil || d == nil {
		return
	}
	handlersOnce.Do(func() {
		bookingLedger = l
		expander = e
		directory = d
	})
}

func ready(w http.ResponseWriter, r *http.Request) bool {
	if bookingLedger == nil || expander == nil || directory == nil {
		log.Ctx(r.Context()).Error().Msg("Booking handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return false
	}
	return true
}

type participantRequest struct {
	UserID    int64  `json:"userId"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Confirmed bool   `json:"confirmed"`
}

type recurrenceRequest struct {
	Frequency string `json:"frequency"`
	Interval  int    `json:"interval"`
	Weekdays  []int  `json:"weekdays"`
	Until     string `json:"until"`
	Count     int    `json:"count"`
}

type createRequest struct {
	ResourceID    int64                `json:"resourceId"`
	Date          string               `json:"date"`
	Start         string               `json:"start"`
	End           string               `json:"end"`
	Kind          string               `json:"kind"`
	RequesterID   int64                `json:"requesterId"`
	RequesterName string               `json:"requesterName"`
	Participants  []participantRequest `json:"participants"`
	Price         *int64               `json:"price"`
	PaymentMethod string               `json:"paymentMethod"`
	Notes         string               `json:"notes"`
	Recurrence    *recurrenceRequest   `json:"recurrence"`
}

func (req createRequest) toLedger(user *authz.AuthUser) (ledger.CreateRequest, error) {
	if req.ResourceID <= 0 {
		return ledger.CreateRequest{}, models.InvalidField("resourceId", "must be greater than 0")
	}
	date, err := apiutil.ParseDateField(req.Date, "date")
	if err != nil {
		return ledger.CreateRequest{}, err
	}
	start, err := apiutil.ParseLocalTime(date, req.Start, "start")
	if err != nil {
		return ledger.CreateRequest{}, err
	}
	end, err := apiutil.ParseLocalTime(date, req.End, "end")
	if err != nil {
		return ledger.CreateRequest{}, err
	}

	out := ledger.CreateRequest{
		ResourceID:    req.ResourceID,
		RequesterID:   user.ID,
		RequesterName: strings.TrimSpace(req.RequesterName),
		Start:         start,
		End:           end,
		Kind:          models.BookingKind(strings.TrimSpace(req.Kind)),
		PriceCents:    req.Price,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Notes:         strings.TrimSpace(req.Notes),
	}
	if req.RequesterID != 0 && req.RequesterID != user.ID {
		if !authz.Can(user, authz.ActionBookOnBehalf) {
			return ledger.CreateRequest{}, apiutil.HandlerError{Status: http.StatusForbidden, Message: "cannot book on behalf of another user", Err: authz.ErrForbidden}
		}
		out.RequesterID = req.RequesterID
	}
	if authz.IsStaff(user) {
		staffID := user.ID
		out.StaffID = &staffID
	}
	for _, p := range req.Participants {
		out.Participants = append(out.Participants, models.Participant{
			UserID:    p.UserID,
			Name:      strings.TrimSpace(p.Name),
			Role:      models.ParticipantRole(strings.TrimSpace(p.Role)),
			Confirmed: p.Confirmed,
		})
	}
	return out, nil
}

func (req recurrenceRequest) toConfig() (models.RecurrenceConfig, error) {
	cfg := models.RecurrenceConfig{
		Frequency: models.Frequency(strings.ToLower(strings.TrimSpace(req.Frequency))),
		Interval:  req.Interval,
		Count:     req.Count,
	}
	if cfg.Interval == 0 {
		cfg.Interval = 1
	}
	for _, day := range req.Weekdays {
		cfg.Weekdays = append(cfg.Weekdays, time.Weekday(day))
	}
	if strings.TrimSpace(req.Until) != "" {
		until, err := apiutil.ParseDateField(req.Until, "recurrence.until")
		if err != nil {
			return models.RecurrenceConfig{}, err
		}
		cfg.Until = &until
	}
	return cfg, cfg.Validate()
}

// POST /api/v1/bookings
func HandleBookingCreate(w http.ResponseWriter, r *http.Request) {
	if !ready(w, r) || !apiutil.RequireAction(w, r, authz.ActionCreateBooking) {
		return
	}
	logger := log.Ctx(r.Context())
	user := authz.UserFromContext(r.Context())

	var body createRequest
	if err := apiutil.DecodeJSON(r, &body); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("body", err))
		return
	}
	req, err := body.toLedger(user)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingRequestTimeout)
	defer cancel()

	_, unit, err := directory.Lookup(ctx, req.ResourceID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if !apiutil.RequireUnitAccess(w, r, unit.ID) {
		return
	}

	if body.Recurrence == nil {
		booking, err := bookingLedger.Create(ctx, req)
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		if err := apiutil.WriteJSON(w, http.StatusCreated, booking); err != nil {
			logger.Error().Err(err).Str("booking_id", booking.ID).Msg("Failed to write booking response")
		}
		return
	}

	cfg, err := body.Recurrence.toConfig()
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	result, err := expander.Submit(ctx, req, cfg)
	if err != nil {
		if result.Origin.ID != "" {
			apiutil.WriteErrorWith(w, r, err, map[string]any{"result": result})
			return
		}
		apiutil.WriteError(w, r, err)
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusCreated, result); err != nil {
		logger.Error().Err(err).Str("recurrence_group_id", result.Group.ID).Msg("Failed to write series response")
	}
}

// GET /api/v1/bookings?resource_id=&date=
func HandleBookingsList(w http.ResponseWriter, r *http.Request) {
	if !ready(w, r) || !apiutil.RequireAction(w, r, authz.ActionViewBooking) {
		return
	}
	query := r.URL.Query()
	resourceID, err := apiutil.ParsePositiveInt64Field(query.Get("resource_id"), "resource_id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	date, err := apiutil.ParseDateField(query.Get("date"), "date")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingRequestTimeout)
	defer cancel()

	_, unit, err := directory.Lookup(ctx, resourceID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if !apiutil.RequireUnitAccess(w, r, unit.ID) {
		return
	}

	bookings, err := bookingLedger.List(ctx, resourceID, date)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{"bookings": bookings}); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write bookings response")
	}
}

// loadBooking fetches the {id} booking and checks unit access.
func loadBooking(ctx context.Context, w http.ResponseWriter, r *http.Request) (models.Booking, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		apiutil.WriteError(w, r, models.InvalidField("id", "is required"))
		return models.Booking{}, false
	}
	booking, err := bookingLedger.Get(ctx, id)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return models.Booking{}, false
	}
	if !apiutil.RequireUnitAccess(w, r, booking.UnitID) {
		return models.Booking{}, false
	}
	return booking, true
}

// ownsBooking reports whether user requested or organizes booking.
func ownsBooking(user *authz.AuthUser, booking models.Booking) bool {
	if user == nil {
		return false
	}
	if booking.RequesterID == user.ID {
		return true
	}
	p, ok := booking.Participant(user.ID)
	return ok && p.Role == models.RoleOrganizer
}

// GET /api/v1/bookings/{id}
func HandleBookingGet(w http.ResponseWriter, r *http.Request) {
	if !ready(w, r) || !apiutil.RequireAction(w, r, authz.ActionViewBooking) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), bookingRequestTimeout)
	defer cancel()

	booking, ok := loadBooking(ctx, w, r)
	if !ok {
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, booking); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("booking_id", booking.ID).Msg("Failed to write booking response")
	}
}

// POST /api/v1/bookings/{id}/confirm
func HandleBookingConfirm(w http.ResponseWriter, r *http.Request) {
	if !ready(w, r) || !apiutil.RequireAction(w, r, authz.ActionConfirmBooking) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), bookingRequestTimeout)
	defer cancel()

	booking, ok := loadBooking(ctx, w, r)
	if !ok {
		return
	}
	updated, err := bookingLedger.Confirm(ctx, booking.ID)
	writeBooking(w, r, updated, err)
}

// POST /api/v1/bookings/{id}/cancel
func HandleBookingCancel(w http.ResponseWriter, r *http.Request) {
	if !ready(w, r) || !apiutil.RequireAction(w, r, authz.ActionCancelBooking) {
		return
	}
	user := authz.UserFromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), bookingRequestTimeout)
	defer cancel()

	booking, ok := loadBooking(ctx, w, r)
	if !ok {
		return
	}
	if !ownsBooking(user, booking) && !authz.Can(user, authz.ActionCancelAny) {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusForbidden, Message: "only the requester or organizer may cancel", Err: authz.ErrForbidden})
		return
	}

	outcome, err := bookingLedger.Cancel(ctx, booking.ID, user.ID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, outcome); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("booking_id", booking.ID).Msg("Failed to write cancellation response")
	}
}

// POST /api/v1/bookings/{id}/no-show
func HandleBookingNoShow(w http.ResponseWriter, r *http.Request) {
	if !ready(w, r) || !apiutil.RequireAction(w, r, authz.ActionMarkNoShow) {
		return
	}
	user := authz.UserFromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), bookingRequestTimeout)
	defer cancel()

	booking, ok := loadBooking(ctx, w, r)
	if !ok {
		return
	}
	updated, err := bookingLedger.MarkNoShow(ctx, booking.ID, user.ID)
	writeBooking(w, r, updated, err)
}

type attendanceRequest struct {
	ParticipantID int64 `json:"participantId"`
	Attended      *bool `json:"attended"`
}

// POST /api/v1/bookings/{id}/attendance
func HandleBookingAttendance(w http.ResponseWriter, r *http.Request) {
	if !ready(w, r) || !apiutil.RequireAction(w, r, authz.ActionMarkAttendance) {
		return
	}
	var body attendanceRequest
	if err := apiutil.DecodeJSON(r, &body); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("body", err))
		return
	}
	if body.ParticipantID <= 0 {
		apiutil.WriteError(w, r, models.InvalidField("participantId", "must be greater than 0"))
		return
	}
	if body.Attended == nil {
		apiutil.WriteError(w, r, models.InvalidField("attended", "is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingRequestTimeout)
	defer cancel()

	booking, ok := loadBooking(ctx, w, r)
	if !ok {
		return
	}
	updated, err := bookingLedger.MarkAttendance(ctx, booking.ID, body.ParticipantID, *body.Attended)
	writeBooking(w, r, updated, err)
}

// POST /api/v1/recurrence-groups/{id}/cancel
func HandleSeriesCancel(w http.ResponseWriter, r *http.Request) {
	if !ready(w, r) || !apiutil.RequireAction(w, r, authz.ActionCancelBooking) {
		return
	}
	user := authz.UserFromContext(r.Context())
	groupID := strings.TrimSpace(r.PathValue("id"))
	if groupID == "" {
		apiutil.WriteError(w, r, models.InvalidField("id", "is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingRequestTimeout)
	defer cancel()

	// Ownership and unit access are checked against the series origin.
	if !authz.Can(user, authz.ActionCancelAny) || user.UnitID != nil {
		origin, err := seriesOrigin(ctx, groupID)
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		if !apiutil.RequireUnitAccess(w, r, origin.UnitID) {
			return
		}
		if !ownsBooking(user, origin) && !authz.Can(user, authz.ActionCancelAny) {
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusForbidden, Message: "only the requester or organizer may cancel", Err: authz.ErrForbidden})
			return
		}
	}

	outcomes, err := bookingLedger.CancelSeries(ctx, groupID, user.ID)
	if err != nil {
		if len(outcomes) > 0 {
			apiutil.WriteErrorWith(w, r, err, map[string]any{"outcomes": outcomes})
			return
		}
		apiutil.WriteError(w, r, err)
		return
	}
	if outcomes == nil {
		outcomes = []ledger.SeriesOutcome{}
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes}); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("recurrence_group_id", groupID).Msg("Failed to write series cancellation response")
	}
}

func seriesOrigin(ctx context.Context, groupID string) (models.Booking, error) {
	group, err := bookingLedger.RecurrenceGroup(ctx, groupID)
	if err != nil {
		return models.Booking{}, err
	}
	return bookingLedger.Get(ctx, group.OriginBookingID)
}

func writeBooking(w http.ResponseWriter, r *http.Request, booking models.Booking, err error) {
	if err != nil {
		if !errors.Is(err, models.ErrCollaboratorUnavailable) {
			log.Ctx(r.Context()).Debug().Err(err).Str("code", models.Code(err)).Msg("Booking request rejected")
		}
		apiutil.WriteError(w, r, err)
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, booking); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("booking_id", booking.ID).Msg("Failed to write booking response")
	}
}
