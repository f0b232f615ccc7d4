package authz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
	HeaderUnitID = "X-Unit-ID"
)

type Role string

const (
	RoleMember Role = "member"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

type Action string

const (
	ActionCreateBooking    Action = "booking:create"
	ActionViewBooking      Action = "booking:view"
	ActionCancelBooking    Action = "booking:cancel"
	ActionCancelAny        Action = "booking:cancel-any"
	ActionConfirmBooking   Action = "booking:confirm"
	ActionMarkNoShow       Action = "booking:no-show"
	ActionMarkAttendance   Action = "booking:attendance"
	ActionBookOnBehalf     Action = "booking:on-behalf"
	ActionViewAvailability Action = "availability:view"
	ActionViewStats        Action = "stats:view"
)

var permissions = map[Role]map[Action]bool{
	RoleMember: {
		ActionCreateBooking:    true,
		ActionViewBooking:      true,
		ActionCancelBooking:    true,
		ActionViewAvailability: true,
	},
	RoleStaff: {
		ActionCreateBooking:    true,
		ActionViewBooking:      true,
		ActionCancelBooking:    true,
		ActionCancelAny:        true,
		ActionConfirmBooking:   true,
		ActionMarkNoShow:       true,
		ActionMarkAttendance:   true,
		ActionBookOnBehalf:     true,
		ActionViewAvailability: true,
		ActionViewStats:        true,
	},
}

// AuthUser is the caller identity forwarded by the gateway. A staff UnitID
// pins the user to one unit; admins are never pinned.
type AuthUser struct {
	ID     int64
	Role   Role
	UnitID *int64
}

type userContextKey struct{}

func ContextWithUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves the AuthUser stored in ctx.
// It returns nil if ctx is nil, if no user is stored, or if the stored value has a different type.
func UserFromContext(ctx context.Context) *AuthUser {
	if ctx == nil {
		return nil
	}

	user, ok := ctx.Value(userContextKey{}).(*AuthUser)
	if !ok {
		return nil
	}

	return user
}

// UserFromHeaders parses the identity headers. It returns nil, nil when no
// user id is present.
func UserFromHeaders(h http.Header) (*AuthUser, error) {
	rawID := strings.TrimSpace(h.Get(HeaderUserID))
	if rawID == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%s must be a positive integer", HeaderUserID)
	}

	role := Role(strings.ToLower(strings.TrimSpace(h.Get(HeaderRole))))
	switch role {
	case "":
		role = RoleMember
	case RoleMember, RoleStaff, RoleAdmin:
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}

	user := &AuthUser{ID: id, Role: role}
	if rawUnit := strings.TrimSpace(h.Get(HeaderUnitID)); rawUnit != "" {
		unitID, err := strconv.ParseInt(rawUnit, 10, 64)
		if err != nil || unitID <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", HeaderUnitID)
		}
		user.UnitID = &unitID
	}
	return user, nil
}

// IsStaff reports whether user acts for the front desk.
func IsStaff(user *AuthUser) bool {
	return user != nil && (user.Role == RoleStaff || user.Role == RoleAdmin)
}

// Can reports whether user may perform action. Admins may do everything.
func Can(user *AuthUser, action Action) bool {
	if user == nil {
		return false
	}
	if user.Role == RoleAdmin {
		return true
	}
	return permissions[user.Role][action]
}

func RequireAction(ctx context.Context, action Action) error {
	user := UserFromContext(ctx)
	if user == nil {
		return ErrUnauthenticated
	}
	if !Can(user, action) {
		return ErrForbidden
	}
	return nil
}

// RequireUnitAccess rejects staff pinned to a different unit.
func RequireUnitAccess(ctx context.Context, unitID int64) error {
	user := UserFromContext(ctx)
	if user == nil {
		return ErrUnauthenticated
	}

	if user.Role == RoleStaff && user.UnitID != nil && *user.UnitID != unitID {
		return ErrForbidden
	}

	return nil
}
