package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/models"
)

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

// ErrorBody is the JSON shape of every failed response.
type ErrorBody struct {
	Code           string   `json:"code"`
	Message        string   `json:"message"`
	Field          string   `json:"field,omitempty"`
	ConflictingIDs []string `json:"conflictingIds,omitempty"`
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

var statusByKind = map[error]int{
	models.ErrSlotUnavailable:         http.StatusConflict,
	models.ErrInvalidRequest:          http.StatusBadRequest,
	models.ErrInvalidTransition:       http.StatusConflict,
	models.ErrNotFound:                http.StatusNotFound,
	models.ErrPolicyViolation:         http.StatusUnprocessableEntity,
	models.ErrVersionConflict:         http.StatusConflict,
	models.ErrCollaboratorUnavailable: http.StatusServiceUnavailable,
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	var herr HandlerError
	if errors.As(err, &herr) {
		return herr.Status
	}
	if status, ok := statusByKind[models.Kind(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorBodyFor classifies err for the wire. Unclassified errors keep their
// message out of the body.
func ErrorBodyFor(err error) ErrorBody {
	body := ErrorBody{Code: models.Code(err), Message: err.Error()}

	var herr HandlerError
	if errors.As(err, &herr) && models.Kind(err) == nil {
		body.Code = http.StatusText(herr.Status)
		body.Message = herr.Message
	}
	var fieldErr *models.FieldError
	if errors.As(err, &fieldErr) {
		body.Field = fieldErr.Field
	}
	var slotErr *models.SlotUnavailableError
	if errors.As(err, &slotErr) {
		body.ConflictingIDs = slotErr.ConflictingIDs
	}
	if StatusFor(err) == http.StatusInternalServerError {
		body.Message = "internal error"
	}
	return body
}

// WriteError renders err as {"error": ErrorBody}. Server-side failures are logged.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	WriteErrorWith(w, r, err, nil)
}

// WriteErrorWith is WriteError with extra top-level fields in the body.
func WriteErrorWith(w http.ResponseWriter, r *http.Request, err error, extra map[string]any) {
	status := StatusFor(err)
	body := ErrorBodyFor(err)
	if status >= http.StatusInternalServerError {
		log.Ctx(r.Context()).Error().Err(err).Str("code", body.Code).Msg("Request failed")
	}

	payload := map[string]any{"error": body}
	for key, value := range extra {
		payload[key] = value
	}
	if werr := WriteJSON(w, status, payload); werr != nil {
		log.Ctx(r.Context()).Error().Err(werr).Msg("Failed to write error response")
	}
}

// BadRequest wraps a parse failure so WriteError reports it as InvalidRequest.
func BadRequest(field string, err error) error {
	return models.InvalidField(field, err.Error())
}

// RequireAction writes 401 or 403 and returns false when the caller may not
// perform action.
func RequireAction(w http.ResponseWriter, r *http.Request, action authz.Action) bool {
	return deny(w, r, authz.RequireAction(r.Context(), action), "action", string(action))
}

func RequireUnitAccess(w http.ResponseWriter, r *http.Request, unitID int64) bool {
	return deny(w, r, authz.RequireUnitAccess(r.Context(), unitID), "unit_id", fmt.Sprint(unitID))
}

func deny(w http.ResponseWriter, r *http.Request, err error, key, value string) bool {
	if err == nil {
		return true
	}
	logger := log.Ctx(r.Context())
	user := authz.UserFromContext(r.Context())
	logEvent := logger.Warn().Str(key, value)
	if user != nil {
		logEvent = logEvent.Int64("user_id", user.ID)
	}
	switch {
	case errors.Is(err, authz.ErrUnauthenticated):
		logEvent.Msg("Access denied: unauthenticated")
		WriteError(w, r, HandlerError{Status: http.StatusUnauthorized, Message: "authentication required", Err: err})
	case errors.Is(err, authz.ErrForbidden):
		logEvent.Msg("Access denied: forbidden")
		WriteError(w, r, HandlerError{Status: http.StatusForbidden, Message: "forbidden", Err: err})
	default:
		logger.Error().Err(err).Str(key, value).Msg("Access check failed")
		WriteError(w, r, err)
	}
	return false
}
