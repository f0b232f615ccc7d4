package authz

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestCanRoleTable(t *testing.T) {
	member := &AuthUser{ID: 1, Role: RoleMember}
	staff := &AuthUser{ID: 2, Role: RoleStaff}
	admin := &AuthUser{ID: 3, Role: RoleAdmin}

	tests := []struct {
		name   string
		user   *AuthUser
		action Action
		want   bool
	}{
		{"member creates", member, ActionCreateBooking, true},
		{"member cancels own", member, ActionCancelBooking, true},
		{"member cancels any", member, ActionCancelAny, false},
		{"member confirms", member, ActionConfirmBooking, false},
		{"member stats", member, ActionViewStats, false},
		{"staff no-show", staff, ActionMarkNoShow, true},
		{"staff attendance", staff, ActionMarkAttendance, true},
		{"staff stats", staff, ActionViewStats, true},
		{"admin anything", admin, ActionBookOnBehalf, true},
		{"nil user", nil, ActionViewAvailability, false},
	}
	for _, tc := range tests {
		if got := Can(tc.user, tc.action); got != tc.want {
			t.Fatalf("%s: Can = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRequireActionUnauthenticated(t *testing.T) {
	err := RequireAction(context.Background(), ActionCreateBooking)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestRequireActionForbidden(t *testing.T) {
	ctx := ContextWithUser(context.Background(), &AuthUser{ID: 10, Role: RoleMember})

	err := RequireAction(ctx, ActionConfirmBooking)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRequireUnitAccess(t *testing.T) {
	homeUnitID := int64(2)
	ctx := ContextWithUser(context.Background(), &AuthUser{
		ID:     10,
		Role:   RoleStaff,
		UnitID: &homeUnitID,
	})

	if err := RequireUnitAccess(ctx, 1); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := RequireUnitAccess(ctx, 2); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	memberCtx := ContextWithUser(context.Background(), &AuthUser{ID: 11, Role: RoleMember})
	if err := RequireUnitAccess(memberCtx, 1); err != nil {
		t.Fatalf("expected nil for member, got %v", err)
	}
	if err := RequireUnitAccess(context.Background(), 1); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestUserFromHeaders(t *testing.T) {
	h := http.Header{}
	user, err := UserFromHeaders(h)
	if err != nil || user != nil {
		t.Fatalf("expected anonymous, got %+v, %v", user, err)
	}

	h.Set(HeaderUserID, "42")
	user, err = UserFromHeaders(h)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if user.ID != 42 || user.Role != RoleMember || user.UnitID != nil {
		t.Fatalf("unexpected user %+v", user)
	}

	h.Set(HeaderRole, "Staff")
	h.Set(HeaderUnitID, "3")
	user, err = UserFromHeaders(h)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if user.Role != RoleStaff || user.UnitID == nil || *user.UnitID != 3 || !IsStaff(user) {
		t.Fatalf("unexpected user %+v", user)
	}

	h.Set(HeaderRole, "owner")
	if _, err := UserFromHeaders(h); err == nil {
		t.Fatalf("expected unknown role error")
	}
	h.Set(HeaderRole, "member")
	h.Set(HeaderUserID, "-1")
	if _, err := UserFromHeaders(h); err == nil {
		t.Fatalf("expected invalid id error")
	}
}
