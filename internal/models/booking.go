// internal/models/booking.go
package models

import (
	"time"
)

type BookingStatus string

const (
	StatusScheduled  BookingStatus = "scheduled"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusInProgress BookingStatus = "in-progress"
	StatusCompleted  BookingStatus = "completed"
	StatusCancelled  BookingStatus = "cancelled"
	StatusNoShow     BookingStatus = "no-show"
)

var AllStatuses = []BookingStatus{
	StatusScheduled,
	StatusConfirmed,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
}

var transitions = map[BookingStatus][]BookingStatus{
	StatusScheduled:  {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

// Blocking reports whether a booking in this status holds its interval. Only
// a cancellation releases it; a no-show keeps the court it never used.
func (s BookingStatus) Blocking() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// PaidEquivalent reports whether the booking's price counts as revenue.
func (s BookingStatus) PaidEquivalent() bool {
	switch s {
	case StatusConfirmed, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type BookingKind string

const (
	KindClass    BookingKind = "class"
	KindOpenPlay BookingKind = "open-play"
	KindTraining BookingKind = "training"
	KindEvent    BookingKind = "event"
)

func (k BookingKind) Valid() bool {
	switch k {
	case KindClass, KindOpenPlay, KindTraining, KindEvent:
		return true
	}
	return false
}

type ParticipantRole string

const (
	RoleOrganizer   ParticipantRole = "organizer"
	RoleParticipant ParticipantRole = "participant"
	RoleGuest       ParticipantRole = "guest"
)

func (r ParticipantRole) Valid() bool {
	return r == RoleOrganizer || r == RoleParticipant || r == RoleGuest
}

type Participant struct {
	UserID    int64           `json:"userId"`
	Name      string          `json:"name"`
	Confirmed bool            `json:"confirmed"`
	Attended  bool            `json:"attended"`
	Role      ParticipantRole `json:"role"`
}

// ValidateParticipants requires known roles, unique users and exactly one organizer.
func ValidateParticipants(participants []Participant) error {
	organizers := 0
	seen := make(map[int64]struct{}, len(participants))
	for _, p := range participants {
		if p.UserID <= 0 {
			return InvalidField("participants", "user id must be positive")
		}
		if !p.Role.Valid() {
			return InvalidField("participants", "unknown role "+string(p.Role))
		}
		if _, dup := seen[p.UserID]; dup {
			return InvalidField("participants", "duplicate participant")
		}
		seen[p.UserID] = struct{}{}
		if p.Role == RoleOrganizer {
			organizers++
		}
	}
	if organizers != 1 {
		return InvalidField("participants", "exactly one organizer is required")
	}
	return nil
}

type Booking struct {
	ID                   string        `json:"id"`
	ResourceID           int64         `json:"resourceId"`
	UnitID               int64         `json:"unitId"`
	RequesterID          int64         `json:"requesterId"`
	StaffID              *int64        `json:"staffId,omitempty"`
	Date                 string        `json:"date"`
	Start                time.Time     `json:"start"`
	End                  time.Time     `json:"end"`
	Kind                 BookingKind   `json:"kind"`
	Status               BookingStatus `json:"status"`
	Participants         []Participant `json:"participants"`
	PriceCents           int64         `json:"price"`
	PaymentMethod        string        `json:"paymentMethod,omitempty"`
	RecurrenceGroupID    *string       `json:"recurrenceGroupId,omitempty"`
	Notes                string        `json:"notes,omitempty"`
	CancellationFeeCents int64         `json:"cancellationFee,omitempty"`
	CancelledBy          *int64        `json:"cancelledBy,omitempty"`
	CancelledAt          *time.Time    `json:"cancelledAt,omitempty"`
	Version              int64         `json:"version"`
	CreatedAt            time.Time     `json:"createdAt"`
	UpdatedAt            time.Time     `json:"updatedAt"`
}

func (b Booking) Interval() Interval {
	return Interval{Start: b.Start, End: b.End}
}

// Participant returns a pointer into the booking's participant list.
func (b *Booking) Participant(userID int64) (*Participant, bool) {
	for i := range b.Participants {
		if b.Participants[i].UserID == userID {
			return &b.Participants[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (b Booking) Clone() Booking {
	out := b
	if b.Participants != nil {
		out.Participants = append([]Participant(nil), b.Participants...)
	}
	if b.StaffID != nil {
		v := *b.StaffID
		out.StaffID = &v
	}
	if b.RecurrenceGroupID != nil {
		v := *b.RecurrenceGroupID
		out.RecurrenceGroupID = &v
	}
	if b.CancelledBy != nil {
		v := *b.CancelledBy
		out.CancelledBy = &v
	}
	if b.CancelledAt != nil {
		v := *b.CancelledAt
		out.CancelledAt = &v
	}
	return out
}

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// RecurrenceConfig ends on Until (inclusive) or after Count occurrences, never both.
type RecurrenceConfig struct {
	Frequency Frequency      `json:"frequency"`
	Interval  int            `json:"interval"`
	Weekdays  []time.Weekday `json:"weekdays,omitempty"`
	Until     *time.Time     `json:"until,omitempty"`
	Count     int            `json:"count,omitempty"`
}

func (c RecurrenceConfig) Validate() error {
	switch c.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return InvalidField("recurrence.frequency", "must be daily, weekly or monthly")
	}
	if c.Interval < 1 {
		return InvalidField("recurrence.interval", "must be >= 1")
	}
	if len(c.Weekdays) > 0 && c.Frequency != FrequencyWeekly {
		return InvalidField("recurrence.weekdays", "only allowed for weekly frequency")
	}
	for _, day := range c.Weekdays {
		if day < time.Sunday || day > time.Saturday {
			return InvalidField("recurrence.weekdays", "invalid weekday")
		}
	}
	hasUntil := c.Until != nil
	hasCount := c.Count > 0
	if c.Count < 0 {
		return InvalidField("recurrence.count", "must be positive")
	}
	if hasUntil == hasCount {
		return InvalidField("recurrence", "exactly one of until or count is required")
	}
	return nil
}

type RecurrenceGroup struct {
	ID              string           `json:"id"`
	OriginBookingID string           `json:"originBookingId"`
	ResourceID      int64            `json:"resourceId"`
	Config          RecurrenceConfig `json:"config"`
	CreatedAt       time.Time        `json:"createdAt"`
}
