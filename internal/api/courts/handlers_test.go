package courts

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/availability"
	"github.com/codr1/courtbook/internal/catalog"
	"github.com/codr1/courtbook/internal/ledger"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/testutil"
)

func setupCourtsTest(t *testing.T) (*ledger.Ledger, models.Resource) {
	t.Helper()

	database := testutil.NewTestDB(t)
	unit := testutil.SeedUnit(t, database)
	resource := testutil.SeedResource(t, database, unit.ID, 1)
	cat := catalog.New(database, catalog.Defaults{SlotMinutes: 60})
	clock := &testutil.FixedClock{T: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	l := ledger.New(database, cat, ledger.Options{Clock: clock})

	index = nil
	resourceCatalog = nil
	indexOnce = sync.Once{}
	InitHandlers(availability.NewIndex(cat, l), cat)

	t.Cleanup(func() {
		index = nil
		resourceCatalog = nil
		indexOnce = sync.Once{}
	})

	return l, resource
}

func withMember(req *http.Request) *http.Request {
	user := &authz.AuthUser{ID: 7, Role: authz.RoleMember}
	return req.WithContext(authz.ContextWithUser(req.Context(), user))
}

func availabilityRequest(resourceID int64, query string) *http.Request {
	id := strconv.FormatInt(resourceID, 10)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/resources/"+id+"/availability?"+query, nil)
	req.SetPathValue("id", id)
	return withMember(req)
}

func TestHandleAvailabilityDay(t *testing.T) {
	l, resource := setupCourtsTest(t)

	booking, err := l.Create(context.Background(), ledger.CreateRequest{
		ResourceID:  resource.ID,
		RequesterID: 7,
		Start:       time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC),
		End:         time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
		Kind:        models.KindOpenPlay,
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}

	recorder := httptest.NewRecorder()
	HandleAvailability(recorder, availabilityRequest(resource.ID, "date=2026-03-04"))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}

	var day availability.DayAvailability
	if err := json.NewDecoder(recorder.Body).Decode(&day); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if day.Date != "2026-03-04" || len(day.Slots) != 16 {
		t.Fatalf("unexpected day %s with %d slots", day.Date, len(day.Slots))
	}
	for _, slot := range day.Slots {
		booked := slot.Slot.Start.Hour() == 9
		switch {
		case booked && (slot.Tag != availability.Occupied || len(slot.BookingIDs) != 1 || slot.BookingIDs[0] != booking.ID):
			t.Fatalf("09:00 slot not occupied by %s: %+v", booking.ID, slot)
		case !booked && slot.Tag != availability.Free:
			t.Fatalf("slot %s should be free: %+v", slot.Slot.Label, slot)
		}
		if slot.PriceCents != 8000 {
			t.Fatalf("slot %s price = %d", slot.Slot.Label, slot.PriceCents)
		}
	}
}

func TestHandleAvailabilityCheck(t *testing.T) {
	l, resource := setupCourtsTest(t)

	if _, err := l.Create(context.Background(), ledger.CreateRequest{
		ResourceID:  resource.ID,
		RequesterID: 7,
		Start:       time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC),
		End:         time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
		Kind:        models.KindOpenPlay,
	}); err != nil {
		t.Fatalf("create booking: %v", err)
	}

	tests := []struct {
		query string
		free  bool
	}{
		{"date=2026-03-04&start=09:30&end=10:30", false},
		{"date=2026-03-04&start=10:00&end=11:00", true},
		{"date=2026-03-04&start=08:00&end=09:00", true},
	}
	for _, tc := range tests {
		recorder := httptest.NewRecorder()
		HandleAvailability(recorder, availabilityRequest(resource.ID, tc.query))
		if recorder.Code != http.StatusOK {
			t.Fatalf("%s: status %d", tc.query, recorder.Code)
		}
		var check availability.Check
		if err := json.NewDecoder(recorder.Body).Decode(&check); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if check.Free != tc.free {
			t.Fatalf("%s: free = %v, want %v", tc.query, check.Free, tc.free)
		}
	}
}

func TestHandleAvailabilityErrors(t *testing.T) {
	_, resource := setupCourtsTest(t)

	tests := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"missing date", availabilityRequest(resource.ID, ""), http.StatusBadRequest},
		{"half interval", availabilityRequest(resource.ID, "date=2026-03-04&start=09:00"), http.StatusBadRequest},
		{"unknown resource", availabilityRequest(resource.ID+100, "date=2026-03-04"), http.StatusNotFound},
	}
	for _, tc := range tests {
		recorder := httptest.NewRecorder()
		HandleAvailability(recorder, tc.req)
		if recorder.Code != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.name, tc.status, recorder.Code)
		}
	}

	anonymous := httptest.NewRequest(http.MethodGet, "/api/v1/resources/1/availability?date=2026-03-04", nil)
	anonymous.SetPathValue("id", "1")
	recorder := httptest.NewRecorder()
	HandleAvailability(recorder, anonymous)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected status %d, got %d", http.StatusUnauthorized, recorder.Code)
	}
}

func TestHandleResourcesList(t *testing.T) {
	_, resource := setupCourtsTest(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/resources?unit_id="+strconv.FormatInt(resource.UnitID, 10), nil)
	recorder := httptest.NewRecorder()
	HandleResourcesList(recorder, withMember(req))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	var body struct {
		Resources []models.Resource `json:"resources"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Resources) != 1 || body.Resources[0].ID != resource.ID {
		t.Fatalf("unexpected resources %+v", body.Resources)
	}
}
