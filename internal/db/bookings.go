// internal/db/bookings.go
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/codr1/courtbook/internal/models"
)

const bookingColumns = `id, resource_id, unit_id, requester_id, staff_id, booking_date, start_minute,
	end_minute, kind, status, price_cents, payment_method, recurrence_group_id, notes,
	cancellation_fee_cents, cancelled_by, cancelled_at, version, created_at, updated_at`

// blockingStatuses must match models.BookingStatus.Blocking.
const blockingStatuses = `('scheduled', 'confirmed', 'in-progress', 'completed', 'no-show')`

func scanBooking(row interface{ Scan(...any) error }) (models.Booking, error) {
	var (
		booking     models.Booking
		staffID     sql.NullInt64
		startMinute int
		endMinute   int
		kind        string
		status      string
		groupID     sql.NullString
		cancelledBy sql.NullInt64
		cancelledAt sql.NullTime
	)
	err := row.Scan(&booking.ID, &booking.ResourceID, &booking.UnitID, &booking.RequesterID, &staffID,
		&booking.Date, &startMinute, &endMinute, &kind, &status, &booking.PriceCents,
		&booking.PaymentMethod, &groupID, &booking.Notes, &booking.CancellationFeeCents, &cancelledBy,
		&cancelledAt, &booking.Version, &booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return models.Booking{}, err
	}
	date, err := models.ParseDate(booking.Date)
	if err != nil {
		return models.Booking{}, fmt.Errorf("booking %s: %w", booking.ID, err)
	}
	booking.Start = models.At(date, startMinute)
	booking.End = models.At(date, endMinute)
	booking.StaffID = int64Ptr(staffID)
	booking.Kind = models.BookingKind(kind)
	booking.Status = models.BookingStatus(status)
	booking.RecurrenceGroupID = stringPtr(groupID)
	booking.CancelledBy = int64Ptr(cancelledBy)
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		booking.CancelledAt = &at
	}
	booking.CreatedAt = booking.CreatedAt.UTC()
	booking.UpdatedAt = booking.UpdatedAt.UTC()
	return booking, nil
}

// minutesOf returns the stored start and end minutes for a booking interval.
// An interval ending at the following midnight is stored as minute 1440.
func minutesOf(b models.Booking) (int, int) {
	start := models.MinuteOfDay(b.Start)
	end := models.MinuteOfDay(b.End)
	if end == 0 && b.End.After(b.Start) {
		end = models.MinutesPerDay
	}
	return start, end
}

// InsertBooking persists a booking and its participants. The insert re-checks
// overlap against blocking bookings on the same resource and date, so callers
// that run it inside a write transaction cannot double-book. It returns
// ErrOverlap when the interval is already held.
func (q *Queries) InsertBooking(ctx context.Context, b models.Booking) error {
	start, end := minutesOf(b)
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM bookings
			WHERE resource_id = ? AND booking_date = ?
			  AND status IN `+blockingStatuses+`
			  AND start_minute < ? AND end_minute > ?
		)`,
		b.ID, b.ResourceID, b.UnitID, b.RequesterID, nullInt64(b.StaffID), b.Date, start, end,
		string(b.Kind), string(b.Status), b.PriceCents, b.PaymentMethod, nullString(b.RecurrenceGroupID),
		b.Notes, b.CancellationFeeCents, nullInt64(b.CancelledBy), nullTime(b.CancelledAt), b.Version,
		b.CreatedAt, b.UpdatedAt,
		b.ResourceID, b.Date, end, start)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	if n == 0 {
		return ErrOverlap
	}
	return q.replaceParticipants(ctx, b.ID, b.Participants)
}

// UpdateBooking writes the mutable fields of b when the stored version equals
// expectedVersion, bumping the version to b.Version. It returns
// ErrStaleVersion when another writer got there first.
func (q *Queries) UpdateBooking(ctx context.Context, b models.Booking, expectedVersion int64) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, price_cents = ?, payment_method = ?, recurrence_group_id = ?, notes = ?,
		    cancellation_fee_cents = ?, cancelled_by = ?, cancelled_at = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(b.Status), b.PriceCents, b.PaymentMethod, nullString(b.RecurrenceGroupID), b.Notes,
		b.CancellationFeeCents, nullInt64(b.CancelledBy), nullTime(b.CancelledAt), b.Version, b.UpdatedAt,
		b.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	if n == 0 {
		return ErrStaleVersion
	}
	return q.replaceParticipants(ctx, b.ID, b.Participants)
}

func (q *Queries) replaceParticipants(ctx context.Context, bookingID string, participants []models.Participant) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM booking_participants WHERE booking_id = ?`, bookingID); err != nil {
		return fmt.Errorf("delete participants: %w", err)
	}
	for i, p := range participants {
		if _, err := q.db.ExecContext(ctx, `
			INSERT INTO booking_participants (booking_id, user_id, name, role, confirmed, attended, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			bookingID, p.UserID, p.Name, string(p.Role), boolToInt(p.Confirmed), boolToInt(p.Attended), i); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	return nil
}

func (q *Queries) GetBooking(ctx context.Context, id string) (models.Booking, error) {
	booking, err := scanBooking(q.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if err != nil {
		return models.Booking{}, err
	}
	participants, err := q.listParticipants(ctx, []string{booking.ID})
	if err != nil {
		return models.Booking{}, err
	}
	booking.Participants = participants[booking.ID]
	return booking, nil
}

// BookingFilter narrows ListBookings. Zero values do not filter.
// From and To are inclusive civil dates.
type BookingFilter struct {
	From              string
	To                string
	UnitID            int64
	ResourceIDs       []int64
	RequesterID       int64
	RecurrenceGroupID string
	Statuses          []models.BookingStatus
	SkipParticipants  bool
}

// ListBookings returns bookings ordered by date, resource and start.
func (q *Queries) ListBookings(ctx context.Context, filter BookingFilter) ([]models.Booking, error) {
	var (
		where []string
		args  []any
	)
	if filter.From != "" {
		where = append(where, "booking_date >= ?")
		args = append(args, filter.From)
	}
	if filter.To != "" {
		where = append(where, "booking_date <= ?")
		args = append(args, filter.To)
	}
	if filter.UnitID != 0 {
		where = append(where, "unit_id = ?")
		args = append(args, filter.UnitID)
	}
	if len(filter.ResourceIDs) > 0 {
		where = append(where, "resource_id IN ("+placeholders(len(filter.ResourceIDs))+")")
		for _, id := range filter.ResourceIDs {
			args = append(args, id)
		}
	}
	if filter.RequesterID != 0 {
		where = append(where, "requester_id = ?")
		args = append(args, filter.RequesterID)
	}
	if filter.RecurrenceGroupID != "" {
		where = append(where, "recurrence_group_id = ?")
		args = append(args, filter.RecurrenceGroupID)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY booking_date, resource_id, start_minute, id"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if filter.SkipParticipants || len(bookings) == 0 {
		return bookings, nil
	}
	ids := make([]string, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
	}
	participants, err := q.listParticipants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range bookings {
		bookings[i].Participants = participants[bookings[i].ID]
	}
	return bookings, nil
}

// participantBatch keeps IN lists under SQLite's default variable limit.
const participantBatch = 500

func (q *Queries) listParticipants(ctx context.Context, bookingIDs []string) (map[string][]models.Participant, error) {
	out := make(map[string][]models.Participant, len(bookingIDs))
	for len(bookingIDs) > 0 {
		batch := bookingIDs
		if len(batch) > participantBatch {
			batch = batch[:participantBatch]
		}
		bookingIDs = bookingIDs[len(batch):]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		rows, err := q.db.QueryContext(ctx, `
			SELECT booking_id, user_id, name, role, confirmed, attended
			FROM booking_participants
			WHERE booking_id IN (`+placeholders(len(batch))+`)
			ORDER BY booking_id, position`, args...)
		if err != nil {
			return nil, fmt.Errorf("list participants: %w", err)
		}
		for rows.Next() {
			var (
				bookingID string
				p         models.Participant
				role      string
				confirmed int64
				attended  int64
			)
			if err := rows.Scan(&bookingID, &p.UserID, &p.Name, &role, &confirmed, &attended); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan participant: %w", err)
			}
			p.Role = models.ParticipantRole(role)
			p.Confirmed = confirmed != 0
			p.Attended = attended != 0
			out[bookingID] = append(out[bookingID], p)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (q *Queries) InsertRecurrenceGroup(ctx context.Context, group models.RecurrenceGroup) error {
	config, err := json.Marshal(group.Config)
	if err != nil {
		return fmt.Errorf("encode recurrence config: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, `
		INSERT INTO recurrence_groups (id, origin_booking_id, resource_id, config, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		group.ID, group.OriginBookingID, group.ResourceID, string(config), group.CreatedAt); err != nil {
		return fmt.Errorf("insert recurrence group: %w", err)
	}
	return nil
}

func (q *Queries) GetRecurrenceGroup(ctx context.Context, id string) (models.RecurrenceGroup, error) {
	var (
		group  models.RecurrenceGroup
		config string
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, origin_booking_id, resource_id, config, created_at
		FROM recurrence_groups WHERE id = ?`, id).
		Scan(&group.ID, &group.OriginBookingID, &group.ResourceID, &config, &group.CreatedAt)
	if err != nil {
		return models.RecurrenceGroup{}, err
	}
	if err := json.Unmarshal([]byte(config), &group.Config); err != nil {
		return models.RecurrenceGroup{}, fmt.Errorf("decode recurrence config: %w", err)
	}
	group.CreatedAt = group.CreatedAt.UTC()
	return group, nil
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

// DayBookings returns every booking of a resource on a civil date.
func (q *Queries) DayBookings(ctx context.Context, resourceID int64, date string) ([]models.Booking, error) {
	return q.ListBookings(ctx, BookingFilter{
		From:             date,
		To:               date,
		ResourceIDs:      []int64{resourceID},
		SkipParticipants: true,
	})
}
