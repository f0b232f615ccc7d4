// internal/db/catalog.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/codr1/courtbook/internal/models"
)

const unitColumns = `id, name, timezone, email, min_advance_hours, max_advance_days, allow_multiple_bookings`

func scanUnit(row interface{ Scan(...any) error }) (models.Unit, error) {
	var (
		unit     models.Unit
		multiple int64
	)
	err := row.Scan(&unit.ID, &unit.Name, &unit.Timezone, &unit.Email,
		&unit.MinAdvanceHours, &unit.MaxAdvanceDays, &multiple)
	unit.AllowMultipleBookings = multiple != 0
	return unit, err
}

// CreateUnit inserts a unit and returns its id.
func (q *Queries) CreateUnit(ctx context.Context, unit models.Unit) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO units (name, timezone, email, min_advance_hours, max_advance_days, allow_multiple_bookings)
		VALUES (?, ?, ?, ?, ?, ?)`,
		unit.Name, unit.Timezone, unit.Email, unit.MinAdvanceHours, unit.MaxAdvanceDays,
		boolToInt(unit.AllowMultipleBookings))
	if err != nil {
		return 0, fmt.Errorf("insert unit: %w", err)
	}
	return res.LastInsertId()
}

// UpdateUnit returns sql.ErrNoRows when the unit does not exist.
func (q *Queries) UpdateUnit(ctx context.Context, unit models.Unit) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE units
		SET name = ?, timezone = ?, email = ?, min_advance_hours = ?, max_advance_days = ?,
		    allow_multiple_bookings = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		unit.Name, unit.Timezone, unit.Email, unit.MinAdvanceHours, unit.MaxAdvanceDays,
		boolToInt(unit.AllowMultipleBookings), unit.ID)
	if err != nil {
		return fmt.Errorf("update unit: %w", err)
	}
	return requireAffected(res)
}

func (q *Queries) GetUnit(ctx context.Context, id int64) (models.Unit, error) {
	unit, err := scanUnit(q.db.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id = ?`, id))
	if err != nil {
		return models.Unit{}, err
	}
	unit.Hours, err = q.ListOperatingHours(ctx, unit.ID, nil)
	if err != nil {
		return models.Unit{}, err
	}
	return unit, nil
}

func (q *Queries) ListUnits(ctx context.Context) ([]models.Unit, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+unitColumns+` FROM units ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	var units []models.Unit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range units {
		units[i].Hours, err = q.ListOperatingHours(ctx, units[i].ID, nil)
		if err != nil {
			return nil, err
		}
	}
	return units, nil
}

// ReplaceOperatingHours swaps the weekly hours owned by a unit (resourceID nil)
// or a resource override.
func (q *Queries) ReplaceOperatingHours(ctx context.Context, unitID int64, resourceID *int64, hours models.WeeklyHours) error {
	if _, err := q.db.ExecContext(ctx, `
		DELETE FROM operating_hours
		WHERE unit_id = ? AND COALESCE(resource_id, 0) = COALESCE(?, 0)`,
		unitID, nullInt64(resourceID)); err != nil {
		return fmt.Errorf("delete operating hours: %w", err)
	}
	for day, window := range hours {
		if _, err := q.db.ExecContext(ctx, `
			INSERT INTO operating_hours (unit_id, resource_id, day_of_week, opens_at, closes_at)
			VALUES (?, ?, ?, ?, ?)`,
			unitID, nullInt64(resourceID), int64(day), window.Opens, window.Closes); err != nil {
			return fmt.Errorf("insert operating hours: %w", err)
		}
	}
	return nil
}

func (q *Queries) ListOperatingHours(ctx context.Context, unitID int64, resourceID *int64) (models.WeeklyHours, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT day_of_week, opens_at, closes_at
		FROM operating_hours
		WHERE unit_id = ? AND COALESCE(resource_id, 0) = COALESCE(?, 0)
		ORDER BY day_of_week`,
		unitID, nullInt64(resourceID))
	if err != nil {
		return nil, fmt.Errorf("list operating hours: %w", err)
	}
	defer rows.Close()

	hours := models.WeeklyHours{}
	for rows.Next() {
		var (
			day    int64
			window models.DayHours
		)
		if err := rows.Scan(&day, &window.Opens, &window.Closes); err != nil {
			return nil, fmt.Errorf("scan operating hours: %w", err)
		}
		hours[time.Weekday(day)] = window
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(hours) == 0 {
		return nil, nil
	}
	return hours, nil
}

const resourceColumns = `id, unit_id, number, name, capacity, status, slot_minutes, allow_sub_slot`

func scanResource(row interface{ Scan(...any) error }) (models.Resource, error) {
	var (
		resource models.Resource
		status   string
		subSlot  int64
	)
	err := row.Scan(&resource.ID, &resource.UnitID, &resource.Number, &resource.Name,
		&resource.Capacity, &status, &resource.SlotMinutes, &subSlot)
	resource.Status = models.ResourceStatus(status)
	resource.AllowSubSlot = subSlot != 0
	return resource, err
}

func (q *Queries) CreateResource(ctx context.Context, resource models.Resource) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO resources (unit_id, number, name, capacity, status, slot_minutes, allow_sub_slot)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		resource.UnitID, resource.Number, resource.Name, resource.Capacity, string(resource.Status),
		resource.SlotMinutes, boolToInt(resource.AllowSubSlot))
	if err != nil {
		return 0, fmt.Errorf("insert resource: %w", err)
	}
	return res.LastInsertId()
}

func (q *Queries) UpdateResource(ctx context.Context, resource models.Resource) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE resources
		SET unit_id = ?, number = ?, name = ?, capacity = ?, status = ?, slot_minutes = ?,
		    allow_sub_slot = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		resource.UnitID, resource.Number, resource.Name, resource.Capacity, string(resource.Status),
		resource.SlotMinutes, boolToInt(resource.AllowSubSlot), resource.ID)
	if err != nil {
		return fmt.Errorf("update resource: %w", err)
	}
	return requireAffected(res)
}

// GetResource loads a resource with its own hours override and price table.
// Hours are nil when the resource inherits its unit's hours.
func (q *Queries) GetResource(ctx context.Context, id int64) (models.Resource, error) {
	resource, err := scanResource(q.db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id))
	if err != nil {
		return models.Resource{}, err
	}
	if err := q.loadResourceDetails(ctx, &resource); err != nil {
		return models.Resource{}, err
	}
	return resource, nil
}

// ListResources returns every resource of a unit, or all resources when unitID is 0.
func (q *Queries) ListResources(ctx context.Context, unitID int64) ([]models.Resource, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+resourceColumns+`
		FROM resources
		WHERE (? = 0 OR unit_id = ?)
		ORDER BY unit_id, number, id`,
		unitID, unitID)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var resources []models.Resource
	for rows.Next() {
		resource, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		resources = append(resources, resource)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range resources {
		if err := q.loadResourceDetails(ctx, &resources[i]); err != nil {
			return nil, err
		}
	}
	return resources, nil
}

func (q *Queries) loadResourceDetails(ctx context.Context, resource *models.Resource) error {
	id := resource.ID
	hours, err := q.ListOperatingHours(ctx, resource.UnitID, &id)
	if err != nil {
		return err
	}
	resource.Hours = hours
	prices, err := q.ListResourcePrices(ctx, resource.ID)
	if err != nil {
		return err
	}
	resource.Prices = prices
	return nil
}

func (q *Queries) ReplaceResourcePrices(ctx context.Context, resourceID int64, prices models.PriceTable) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM resource_prices WHERE resource_id = ?`, resourceID); err != nil {
		return fmt.Errorf("delete resource prices: %w", err)
	}
	for label, entry := range prices {
		if _, err := q.db.ExecContext(ctx, `
			INSERT INTO resource_prices (resource_id, slot_label, price_cents, promotional)
			VALUES (?, ?, ?, ?)`,
			resourceID, label, entry.PriceCents, boolToInt(entry.Promotional)); err != nil {
			return fmt.Errorf("insert resource price: %w", err)
		}
	}
	return nil
}

func (q *Queries) ListResourcePrices(ctx context.Context, resourceID int64) (models.PriceTable, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT slot_label, price_cents, promotional
		FROM resource_prices
		WHERE resource_id = ?`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list resource prices: %w", err)
	}
	defer rows.Close()

	prices := models.PriceTable{}
	for rows.Next() {
		var (
			label string
			entry models.PriceEntry
			promo int64
		)
		if err := rows.Scan(&label, &entry.PriceCents, &promo); err != nil {
			return nil, fmt.Errorf("scan resource price: %w", err)
		}
		entry.Promotional = promo != 0
		prices[label] = entry
	}
	return prices, rows.Err()
}

const policyColumns = `id, unit_id, resource_id, min_notice_hours, block_inside_window, fee_cents, fee_percent`

func scanPolicy(row interface{ Scan(...any) error }) (models.CancellationPolicy, error) {
	var (
		policy     models.CancellationPolicy
		resourceID sql.NullInt64
		block      int64
		percent    sql.NullInt64
	)
	err := row.Scan(&policy.ID, &policy.UnitID, &resourceID, &policy.MinNoticeHours, &block,
		&policy.FeeCents, &percent)
	policy.ResourceID = int64Ptr(resourceID)
	policy.BlockInsideWindow = block != 0
	policy.FeePercent = int64Ptr(percent)
	return policy, err
}

// UpsertCancellationPolicy stores the policy for its unit/resource scope and
// returns the row id.
func (q *Queries) UpsertCancellationPolicy(ctx context.Context, policy models.CancellationPolicy) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, `
		SELECT id FROM cancellation_policies
		WHERE unit_id = ? AND COALESCE(resource_id, 0) = COALESCE(?, 0)`,
		policy.UnitID, nullInt64(policy.ResourceID)).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := q.db.ExecContext(ctx, `
			INSERT INTO cancellation_policies (unit_id, resource_id, min_notice_hours, block_inside_window, fee_cents, fee_percent)
			VALUES (?, ?, ?, ?, ?, ?)`,
			policy.UnitID, nullInt64(policy.ResourceID), policy.MinNoticeHours,
			boolToInt(policy.BlockInsideWindow), policy.FeeCents, nullInt64(policy.FeePercent))
		if err != nil {
			return 0, fmt.Errorf("insert cancellation policy: %w", err)
		}
		return res.LastInsertId()
	case err != nil:
		return 0, fmt.Errorf("lookup cancellation policy: %w", err)
	}

	if _, err := q.db.ExecContext(ctx, `
		UPDATE cancellation_policies
		SET min_notice_hours = ?, block_inside_window = ?, fee_cents = ?, fee_percent = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		policy.MinNoticeHours, boolToInt(policy.BlockInsideWindow), policy.FeeCents,
		nullInt64(policy.FeePercent), id); err != nil {
		return 0, fmt.Errorf("update cancellation policy: %w", err)
	}
	return id, nil
}

// GetCancellationPolicy returns the policy scoped to the resource when one
// exists, else the unit-wide policy, else sql.ErrNoRows.
func (q *Queries) GetCancellationPolicy(ctx context.Context, unitID, resourceID int64) (models.CancellationPolicy, error) {
	return scanPolicy(q.db.QueryRowContext(ctx, `
		SELECT `+policyColumns+`
		FROM cancellation_policies
		WHERE unit_id = ? AND (resource_id = ? OR resource_id IS NULL)
		ORDER BY resource_id IS NULL
		LIMIT 1`,
		unitID, resourceID))
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
