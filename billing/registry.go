package billing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// REGISTRY - properties, tenants, readings and expenses
// =============================================================================

// Registry maintains the records the billing engine reads: properties with
// their unit occupancy, tenants, monthly water readings and expenses.
type Registry struct {
	store  Store
	clock  Clock
	logger *zap.Logger
}

func NewRegistry(store Store, clock Clock, logger *zap.Logger) *Registry {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, clock: clock, logger: logger}
}

// -----------------------------------------------------------------------------
// Properties
// -----------------------------------------------------------------------------

// CreateProperty stores a new property. Every unit starts vacant.
func (r *Registry) CreateProperty(ctx context.Context, p Property) (*Property, error) {
	for gi := range p.UnitGroups {
		for ui := range p.UnitGroups[gi].Units {
			p.UnitGroups[gi].Units[ui].Status = UnitVacant
			p.UnitGroups[gi].Units[ui].TenantID = ""
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	now := r.clock.Now()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := r.store.SaveProperty(ctx, p); err != nil {
		return nil, fmt.Errorf("save property: %w", err)
	}
	return &p, nil
}

// UpdateProperty replaces a property's details. Occupancy is owned by
// tenant lifecycle, so surviving units keep their current state and an
// occupied unit cannot be removed.
func (r *Registry) UpdateProperty(ctx context.Context, id string, p Property) (*Property, error) {
	prev, err := r.store.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, notFound("property", id, ErrPropertyNotFound)
	}

	for gi := range p.UnitGroups {
		for ui := range p.UnitGroups[gi].Units {
			p.UnitGroups[gi].Units[ui].Status = UnitVacant
			p.UnitGroups[gi].Units[ui].TenantID = ""
		}
	}
	p.carryOccupancy(prev)
	for _, u := range prev.Units() {
		if u.Status != UnitOccupied {
			continue
		}
		if _, ok := p.FindUnit(u.UnitID); !ok {
			return nil, &ConflictError{Reason: "cannot remove occupied unit " + u.UnitID, Err: ErrUnitOccupied}
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	p.ID = prev.ID
	p.CreatedAt = prev.CreatedAt
	p.UpdatedAt = r.clock.Now()
	if err := r.store.SaveProperty(ctx, p); err != nil {
		return nil, fmt.Errorf("save property: %w", err)
	}
	return &p, nil
}

// DeleteProperty removes a property that no tenant references.
func (r *Registry) DeleteProperty(ctx context.Context, id string) error {
	p, err := r.store.GetProperty(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return notFound("property", id, ErrPropertyNotFound)
	}
	tenants, err := r.store.ListTenants(ctx, TenantFilter{PropertyID: id})
	if err != nil {
		return err
	}
	if len(tenants) > 0 {
		return &ConflictError{
			Reason: fmt.Sprintf("property has %d tenant(s); remove them first", len(tenants)),
			Err:    ErrPropertyHasTenants,
		}
	}
	return r.store.DeleteProperty(ctx, id)
}

// -----------------------------------------------------------------------------
// Tenants
// -----------------------------------------------------------------------------

// CreateTenant stores the tenant and marks its unit occupied in one
// transaction.
func (r *Registry) CreateTenant(ctx context.Context, t Tenant) (*Tenant, error) {
	if strings.TrimSpace(t.Name) == "" {
		return nil, invalid("name", "is required", ErrInvalidInput)
	}
	if t.LeaseStartDate.IsZero() {
		t.LeaseStartDate = r.clock.Now()
	}
	if t.InitialWaterReading != nil && t.InitialWaterReading.IsNegative() {
		return nil, invalid("initialWaterReading", "cannot be negative", ErrInvalidInput)
	}

	t.ID = uuid.NewString()
	t.CreatedAt = r.clock.Now()

	err := r.store.WithTx(ctx, func(tx Store) error {
		property, err := tx.GetProperty(ctx, t.PropertyID)
		if err != nil {
			return err
		}
		if property == nil {
			return notFound("property", t.PropertyID, ErrPropertyNotFound)
		}
		unit, ok := property.FindUnit(t.UnitID)
		if !ok {
			return notFound("unit", t.UnitID, ErrUnitNotFound)
		}
		t.UnitID = unit.UnitID

		if err := property.SetUnitStatus(unit.UnitID, UnitOccupied, t.ID); err != nil {
			return err
		}
		if err := tx.SaveTenant(ctx, t); err != nil {
			return fmt.Errorf("save tenant: %w", err)
		}
		property.UpdatedAt = t.CreatedAt
		return tx.SaveProperty(ctx, *property)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("tenant created",
		zap.String("tenant_id", t.ID),
		zap.String("property_id", t.PropertyID),
		zap.String("unit_id", t.UnitID))
	return &t, nil
}

// DeleteTenant ends the lease and frees the unit.
func (r *Registry) DeleteTenant(ctx context.Context, id string) error {
	return r.store.WithTx(ctx, func(tx Store) error {
		t, err := tx.GetTenant(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return notFound("tenant", id, ErrTenantNotFound)
		}
		if err := tx.DeleteTenant(ctx, id); err != nil {
			return err
		}

		property, err := tx.GetProperty(ctx, t.PropertyID)
		if err != nil {
			return err
		}
		if property == nil {
			return nil
		}
		if unit, ok := property.FindUnit(t.UnitID); ok && unit.TenantID != "" && unit.TenantID != id {
			// Unit already re-let; leave it alone.
			return nil
		}
		if err := property.SetUnitStatus(t.UnitID, UnitVacant, ""); err != nil {
			if IsNotFound(err) {
				return nil
			}
			return err
		}
		property.UpdatedAt = r.clock.Now()
		return tx.SaveProperty(ctx, *property)
	})
}

// -----------------------------------------------------------------------------
// Water readings
// -----------------------------------------------------------------------------

// RecordWaterReading stores a property's monthly meter snapshot.
func (r *Registry) RecordWaterReading(ctx context.Context, propertyID string, readingDate time.Time, readings []UnitReading) (*WaterReading, error) {
	if readingDate.IsZero() {
		return nil, invalid("readingDate", "is required", ErrInvalidInput)
	}
	if len(readings) == 0 {
		return nil, invalid("readings", "at least one unit reading is required", ErrInvalidInput)
	}
	for _, rd := range readings {
		if strings.TrimSpace(rd.UnitID) == "" {
			return nil, invalid("readings.unitId", "is required", ErrInvalidInput)
		}
		if rd.Value.IsNegative() {
			return nil, invalid("readings.readingValue", "cannot be negative", ErrInvalidInput)
		}
	}

	property, err := r.store.GetProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if property == nil {
		return nil, notFound("property", propertyID, ErrPropertyNotFound)
	}

	w := WaterReading{
		ID:          uuid.NewString(),
		PropertyID:  propertyID,
		ReadingDate: readingDate.UTC(),
		Readings:    readings,
		CreatedAt:   r.clock.Now(),
	}
	if err := r.store.SaveWaterReading(ctx, w); err != nil {
		return nil, err
	}
	return &w, nil
}

// ReadingWithConsumption is a snapshot plus per-unit usage since the
// previous snapshot.
type ReadingWithConsumption struct {
	WaterReading
	Consumption []UnitConsumption `json:"consumption"`
}

// ListWaterReadings returns every snapshot newest first, each with its
// consumption against the one before it.
func (r *Registry) ListWaterReadings(ctx context.Context, propertyID string) ([]ReadingWithConsumption, error) {
	readings, err := r.store.LatestWaterReadings(ctx, propertyID, 0)
	if err != nil {
		return nil, err
	}
	out := make([]ReadingWithConsumption, len(readings))
	for i := range readings {
		var prev *WaterReading
		if i+1 < len(readings) {
			prev = &readings[i+1]
		}
		out[i] = ReadingWithConsumption{
			WaterReading: readings[i],
			Consumption:  SnapshotConsumption(readings[i], prev),
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Expenses
// -----------------------------------------------------------------------------

func (r *Registry) RecordExpense(ctx context.Context, propertyID string, amount decimal.Decimal, description string, date time.Time) (*Expense, error) {
	if !amount.IsPositive() {
		return nil, invalid("amount", "must be positive", ErrInvalidInput)
	}
	if strings.TrimSpace(description) == "" {
		return nil, invalid("description", "is required", ErrInvalidInput)
	}
	if date.IsZero() {
		return nil, invalid("date", "is required", ErrInvalidInput)
	}
	e := Expense{
		ID:          uuid.NewString(),
		PropertyID:  propertyID,
		Amount:      amount,
		Description: strings.TrimSpace(description),
		Date:        date,
		CreatedAt:   r.clock.Now(),
	}
	if err := r.store.SaveExpense(ctx, e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Registry) ListExpenses(ctx context.Context, propertyID string) ([]Expense, error) {
	expenses, err := r.store.ListExpenses(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(expenses, func(i, j int) bool { return expenses[i].Date.After(expenses[j].Date) })
	return expenses, nil
}
