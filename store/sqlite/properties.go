package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/prosuite/rent-ledger/billing"
)

// =============================================================================
// PROPERTY OPERATIONS
// =============================================================================

// SaveProperty upserts the property row and rewrites its unit groups and
// units in one transaction.
func (s *Store) SaveProperty(ctx context.Context, p billing.Property) error {
	defer s.lock()()

	return s.atomically(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO properties (id, name, address, property_type, service_rate_model, service_rate_value,
				payment_details_json, landlord_json, water_mode, water_rate, garbage_fee, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				address = excluded.address,
				property_type = excluded.property_type,
				service_rate_model = excluded.service_rate_model,
				service_rate_value = excluded.service_rate_value,
				payment_details_json = excluded.payment_details_json,
				landlord_json = excluded.landlord_json,
				water_mode = excluded.water_mode,
				water_rate = excluded.water_rate,
				garbage_fee = excluded.garbage_fee,
				updated_at = excluded.updated_at
		`, p.ID, p.Name, p.Address, p.PropertyType, string(p.ServiceRate.Model), p.ServiceRate.Value.String(),
			marshalJSON(p.PaymentDetails), marshalJSON(p.Landlord), string(p.Utilities.Water),
			p.Utilities.WaterRate.String(), p.Utilities.Garbage.String(),
			formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to save property: %w", err)
		}

		if _, err := q.ExecContext(ctx, `DELETE FROM units WHERE property_id = ?`, p.ID); err != nil {
			return fmt.Errorf("failed to clear units: %w", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM unit_groups WHERE property_id = ?`, p.ID); err != nil {
			return fmt.Errorf("failed to clear unit groups: %w", err)
		}

		for gi, g := range p.UnitGroups {
			_, err := q.ExecContext(ctx, `
				INSERT INTO unit_groups (property_id, group_index, unit_type, rent, deposit)
				VALUES (?, ?, ?, ?, ?)
			`, p.ID, gi, g.Type, g.Rent.String(), g.Deposit.String())
			if err != nil {
				return fmt.Errorf("failed to save unit group: %w", err)
			}
			for ui, u := range g.Units {
				_, err := q.ExecContext(ctx, `
					INSERT INTO units (property_id, group_index, position, unit_id, status, tenant_id)
					VALUES (?, ?, ?, ?, ?, ?)
				`, p.ID, gi, ui, u.UnitID, string(u.Status), nullString(u.TenantID))
				if err != nil {
					if isUniqueConstraintError(err) {
						return &billing.ConflictError{Reason: "duplicate unit id " + u.UnitID, Err: billing.ErrDuplicateUnit}
					}
					return fmt.Errorf("failed to save unit: %w", err)
				}
			}
		}
		return nil
	})
}

// GetProperty retrieves a property with its units.
func (s *Store) GetProperty(ctx context.Context, id string) (*billing.Property, error) {
	defer s.rlock()()

	row := s.q.QueryRowContext(ctx, propertySelect+` WHERE id = ?`, id)
	p, err := scanProperty(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	if err := s.loadUnits(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListProperties returns all properties ordered by name.
func (s *Store) ListProperties(ctx context.Context) ([]billing.Property, error) {
	defer s.rlock()()

	rows, err := s.q.QueryContext(ctx, propertySelect+` ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	var properties []billing.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		properties = append(properties, *p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Units are loaded after the cursor closes; the pool has one connection.
	for i := range properties {
		if err := s.loadUnits(ctx, &properties[i]); err != nil {
			return nil, err
		}
	}
	return properties, nil
}

// DeleteProperty removes the property. Groups and units cascade.
func (s *Store) DeleteProperty(ctx context.Context, id string) error {
	defer s.lock()()

	_, err := s.q.ExecContext(ctx, `DELETE FROM properties WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete property: %w", err)
	}
	return nil
}

const propertySelect = `
	SELECT id, name, address, property_type, service_rate_model, service_rate_value,
		payment_details_json, landlord_json, water_mode, water_rate, garbage_fee, created_at, updated_at
	FROM properties`

func scanProperty(row scanner) (*billing.Property, error) {
	var p billing.Property
	var rateModel, rateValue, paymentJSON, landlordJSON, waterMode, waterRate, garbage, createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Name, &p.Address, &p.PropertyType, &rateModel, &rateValue,
		&paymentJSON, &landlordJSON, &waterMode, &waterRate, &garbage, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.ServiceRate = billing.ServiceRate{Model: billing.ServiceRateModel(rateModel), Value: parseDecimal(rateValue)}
	if err := json.Unmarshal([]byte(paymentJSON), &p.PaymentDetails); err != nil {
		return nil, fmt.Errorf("decode payment details: %w", err)
	}
	if err := json.Unmarshal([]byte(landlordJSON), &p.Landlord); err != nil {
		return nil, fmt.Errorf("decode landlord: %w", err)
	}
	p.Utilities = billing.Utilities{
		Water:     billing.WaterMode(waterMode),
		WaterRate: parseDecimal(waterRate),
		Garbage:   parseDecimal(garbage),
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (s *Store) loadUnits(ctx context.Context, p *billing.Property) error {
	rows, err := s.q.QueryContext(ctx, `
		SELECT group_index, unit_type, rent, deposit
		FROM unit_groups WHERE property_id = ? ORDER BY group_index
	`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to load unit groups: %w", err)
	}
	groups := make(map[int]int)
	p.UnitGroups = nil
	for rows.Next() {
		var idx int
		var g billing.UnitGroup
		var rent, deposit string
		if err := rows.Scan(&idx, &g.Type, &rent, &deposit); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan unit group: %w", err)
		}
		g.Rent = parseDecimal(rent)
		g.Deposit = parseDecimal(deposit)
		groups[idx] = len(p.UnitGroups)
		p.UnitGroups = append(p.UnitGroups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.q.QueryContext(ctx, `
		SELECT group_index, unit_id, status, tenant_id
		FROM units WHERE property_id = ? ORDER BY group_index, position
	`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to load units: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var idx int
		var u billing.Unit
		var status string
		var tenantID sql.NullString
		if err := rows.Scan(&idx, &u.UnitID, &status, &tenantID); err != nil {
			return fmt.Errorf("failed to scan unit: %w", err)
		}
		u.Status = billing.UnitStatus(status)
		u.TenantID = tenantID.String
		if gi, ok := groups[idx]; ok {
			p.UnitGroups[gi].Units = append(p.UnitGroups[gi].Units, u)
		}
	}
	return rows.Err()
}
