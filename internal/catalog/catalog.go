// internal/catalog/catalog.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/slots"
)

var ErrPriceNotCovered = errors.New("price table does not cover slot")

// PriceCoverageError names the first generated slot without a price entry.
type PriceCoverageError struct {
	ResourceID int64
	Weekday    time.Weekday
	Label      string
}

func (e *PriceCoverageError) Error() string {
	return fmt.Sprintf("resource %d: no price for %s slot %s", e.ResourceID, e.Weekday, e.Label)
}

func (e *PriceCoverageError) Unwrap() error {
	return ErrPriceNotCovered
}

// referenceSunday anchors the seven weekdays checked by ValidatePriceTable.
var referenceSunday = time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)

// ValidatePriceTable checks that every slot the resource can generate on any
// weekday has a price entry. resource.Hours must already be resolved.
func ValidatePriceTable(resource models.Resource, granularity int) error {
	for offset := 0; offset < 7; offset++ {
		date := referenceSunday.AddDate(0, 0, offset)
		for _, slot := range slots.Generate(resource, date, granularity) {
			if _, ok := resource.Prices.Lookup(slot.Label); !ok {
				return &PriceCoverageError{ResourceID: resource.ID, Weekday: date.Weekday(), Label: slot.Label}
			}
		}
	}
	return nil
}

type Defaults struct {
	SlotMinutes int
	Policy      models.CancellationPolicy
}

// Catalog reads resources, units and cancellation policies. The booking
// engine treats everything it returns as read-only.
type Catalog struct {
	db       *db.DB
	defaults Defaults
}

func New(database *db.DB, defaults Defaults) *Catalog {
	if defaults.SlotMinutes <= 0 {
		defaults.SlotMinutes = slots.DefaultMinutes
	}
	return &Catalog{db: database, defaults: defaults}
}

func (c *Catalog) SlotMinutes() int {
	return c.defaults.SlotMinutes
}

func storeError(op string, err error) error {
	return &models.CollaboratorError{Op: op, Err: err}
}

// Lookup returns a resource with effective hours and slot minutes resolved,
// together with its unit.
func (c *Catalog) Lookup(ctx context.Context, id int64) (models.Resource, models.Unit, error) {
	resource, err := c.db.Queries.GetResource(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Resource{}, models.Unit{}, &models.NotFoundError{Entity: "resource", ID: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return models.Resource{}, models.Unit{}, storeError("load resource", err)
	}
	unit, err := c.Unit(ctx, resource.UnitID)
	if err != nil {
		return models.Resource{}, models.Unit{}, err
	}
	resource = c.resolve(resource, unit)
	if err := ValidatePriceTable(resource, resource.SlotMinutes); err != nil {
		log.Ctx(ctx).Error().
			Str("component", "resource_catalog").
			Int64("resource_id", resource.ID).
			Err(err).
			Msg("Resource price table is incomplete")
		return models.Resource{}, models.Unit{}, err
	}
	return resource, unit, nil
}

func (c *Catalog) Resource(ctx context.Context, id int64) (models.Resource, error) {
	resource, _, err := c.Lookup(ctx, id)
	return resource, err
}

func (c *Catalog) resolve(resource models.Resource, unit models.Unit) models.Resource {
	if resource.Hours == nil {
		resource.Hours = unit.Hours
	}
	if resource.SlotMinutes <= 0 {
		resource.SlotMinutes = c.defaults.SlotMinutes
	}
	return resource
}

func (c *Catalog) Unit(ctx context.Context, id int64) (models.Unit, error) {
	unit, err := c.db.Queries.GetUnit(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Unit{}, &models.NotFoundError{Entity: "unit", ID: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return models.Unit{}, storeError("load unit", err)
	}
	return unit, nil
}

func (c *Catalog) Units(ctx context.Context) ([]models.Unit, error) {
	units, err := c.db.Queries.ListUnits(ctx)
	if err != nil {
		return nil, storeError("list units", err)
	}
	return units, nil
}

// Resources lists resources with effective hours; unitID 0 lists every unit.
func (c *Catalog) Resources(ctx context.Context, unitID int64) ([]models.Resource, error) {
	resources, err := c.db.Queries.ListResources(ctx, unitID)
	if err != nil {
		return nil, storeError("list resources", err)
	}
	units := make(map[int64]models.Unit)
	for i, resource := range resources {
		unit, ok := units[resource.UnitID]
		if !ok {
			unit, err = c.Unit(ctx, resource.UnitID)
			if err != nil {
				return nil, err
			}
			units[resource.UnitID] = unit
		}
		resources[i] = c.resolve(resource, unit)
	}
	return resources, nil
}

// Policy resolves the cancellation policy for a resource: a resource policy
// overrides its unit's, and the configured default applies when neither exists.
func (c *Catalog) Policy(ctx context.Context, resource models.Resource) (models.CancellationPolicy, error) {
	policy, err := c.db.Queries.GetCancellationPolicy(ctx, resource.UnitID, resource.ID)
	if errors.Is(err, sql.ErrNoRows) {
		policy = c.defaults.Policy
		policy.UnitID = resource.UnitID
		return policy, nil
	}
	if err != nil {
		return models.CancellationPolicy{}, storeError("load cancellation policy", err)
	}
	return policy, nil
}

func (c *Catalog) SaveUnit(ctx context.Context, unit models.Unit) (models.Unit, error) {
	if unit.Name == "" {
		return models.Unit{}, models.InvalidField("name", "is required")
	}
	if unit.Timezone == "" {
		unit.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(unit.Timezone); err != nil {
		return models.Unit{}, models.InvalidField("timezone", err.Error())
	}
	if err := unit.Hours.Validate(); err != nil {
		return models.Unit{}, models.InvalidField("hours", err.Error())
	}
	if unit.MinAdvanceHours < 0 || unit.MaxAdvanceDays < 0 {
		return models.Unit{}, models.InvalidField("advance", "must not be negative")
	}

	err := c.db.RunInTx(ctx, func(tx *db.DB) error {
		if unit.ID == 0 {
			id, err := tx.Queries.CreateUnit(ctx, unit)
			if err != nil {
				return err
			}
			unit.ID = id
		} else if err := tx.Queries.UpdateUnit(ctx, unit); err != nil {
			return err
		}
		return tx.Queries.ReplaceOperatingHours(ctx, unit.ID, nil, unit.Hours)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.Unit{}, &models.NotFoundError{Entity: "unit", ID: strconv.FormatInt(unit.ID, 10)}
	}
	if err != nil {
		return models.Unit{}, storeError("save unit", err)
	}
	return unit, nil
}

// SaveResource validates the resource against its unit's hours and stores it
// with its price table and optional hours override.
func (c *Catalog) SaveResource(ctx context.Context, resource models.Resource) (models.Resource, error) {
	if resource.Status == "" {
		resource.Status = models.ResourceAvailable
	}
	if !resource.Status.Valid() {
		return models.Resource{}, models.InvalidField("status", "unknown status "+string(resource.Status))
	}
	if resource.Capacity <= 0 {
		return models.Resource{}, models.InvalidField("capacity", "must be positive")
	}
	if resource.SlotMinutes < 0 {
		return models.Resource{}, models.InvalidField("slotMinutes", "must not be negative")
	}
	if err := resource.Hours.Validate(); err != nil {
		return models.Resource{}, models.InvalidField("hours", err.Error())
	}
	unit, err := c.Unit(ctx, resource.UnitID)
	if err != nil {
		return models.Resource{}, err
	}
	effective := c.resolve(resource, unit)
	if err := ValidatePriceTable(effective, effective.SlotMinutes); err != nil {
		return models.Resource{}, models.InvalidField("prices", err.Error())
	}

	err = c.db.RunInTx(ctx, func(tx *db.DB) error {
		if resource.ID == 0 {
			id, err := tx.Queries.CreateResource(ctx, resource)
			if err != nil {
				return err
			}
			resource.ID = id
		} else if err := tx.Queries.UpdateResource(ctx, resource); err != nil {
			return err
		}
		if err := tx.Queries.ReplaceResourcePrices(ctx, resource.ID, resource.Prices); err != nil {
			return err
		}
		id := resource.ID
		return tx.Queries.ReplaceOperatingHours(ctx, resource.UnitID, &id, resource.Hours)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.Resource{}, &models.NotFoundError{Entity: "resource", ID: strconv.FormatInt(resource.ID, 10)}
	}
	if err != nil {
		return models.Resource{}, storeError("save resource", err)
	}
	return resource, nil
}

func (c *Catalog) SavePolicy(ctx context.Context, policy models.CancellationPolicy) (models.CancellationPolicy, error) {
	if err := policy.Validate(); err != nil {
		return models.CancellationPolicy{}, err
	}
	if policy.BlockInsideWindow && policy.MinNoticeHours == 0 {
		return models.CancellationPolicy{}, models.InvalidField("minNoticeHours", "must be positive when blocking")
	}
	id, err := c.db.Queries.UpsertCancellationPolicy(ctx, policy)
	if err != nil {
		return models.CancellationPolicy{}, storeError("save cancellation policy", err)
	}
	policy.ID = id
	return policy, nil
}
