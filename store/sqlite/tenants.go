package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/prosuite/rent-ledger/billing"
)

// =============================================================================
// TENANT OPERATIONS
// =============================================================================

func (s *Store) SaveTenant(ctx context.Context, t billing.Tenant) error {
	defer s.lock()()

	var initial sql.NullString
	if t.InitialWaterReading != nil {
		initial = sql.NullString{String: t.InitialWaterReading.String(), Valid: true}
	}
	var contact sql.NullString
	if t.EmergencyContact != nil {
		contact = sql.NullString{String: marshalJSON(t.EmergencyContact), Valid: true}
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO tenants (id, property_id, unit_id, name, phone, email, id_number, rent, deposit,
			lease_start_date, initial_water_reading, notes, occupation, gender, emergency_contact_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			property_id = excluded.property_id,
			unit_id = excluded.unit_id,
			name = excluded.name,
			phone = excluded.phone,
			email = excluded.email,
			id_number = excluded.id_number,
			rent = excluded.rent,
			deposit = excluded.deposit,
			lease_start_date = excluded.lease_start_date,
			initial_water_reading = excluded.initial_water_reading,
			notes = excluded.notes,
			occupation = excluded.occupation,
			gender = excluded.gender,
			emergency_contact_json = excluded.emergency_contact_json
	`, t.ID, t.PropertyID, t.UnitID, t.Name, t.Phone, t.Email, t.IDNumber, t.Rent.String(), t.Deposit.String(),
		formatTime(t.LeaseStartDate), initial, t.Notes, t.Occupation, t.Gender, contact, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*billing.Tenant, error) {
	defer s.rlock()()

	row := s.q.QueryRowContext(ctx, tenantSelect+` WHERE id = ?`, id)
	t, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

func (s *Store) ListTenants(ctx context.Context, filter billing.TenantFilter) ([]billing.Tenant, error) {
	defer s.rlock()()

	query := tenantSelect + ` WHERE 1=1`
	var args []any
	if filter.PropertyID != "" {
		query += ` AND property_id = ?`
		args = append(args, filter.PropertyID)
	}
	if filter.UnitID != "" {
		query += ` AND unit_id = ? COLLATE NOCASE`
		args = append(args, strings.TrimSpace(filter.UnitID))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query += ` AND (LOWER(name) LIKE ? OR LOWER(phone) LIKE ? OR LOWER(id_number) LIKE ?)`
		args = append(args, like, like, like)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []billing.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	defer s.lock()()

	if _, err := s.q.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	return nil
}

const tenantSelect = `
	SELECT id, property_id, unit_id, name, phone, email, id_number, rent, deposit,
		lease_start_date, initial_water_reading, notes, occupation, gender, emergency_contact_json, created_at
	FROM tenants`

func scanTenant(row scanner) (*billing.Tenant, error) {
	var t billing.Tenant
	var rent, deposit, leaseStart, createdAt string
	var initial, contact sql.NullString
	err := row.Scan(&t.ID, &t.PropertyID, &t.UnitID, &t.Name, &t.Phone, &t.Email, &t.IDNumber, &rent, &deposit,
		&leaseStart, &initial, &t.Notes, &t.Occupation, &t.Gender, &contact, &createdAt)
	if err != nil {
		return nil, err
	}
	t.Rent = parseDecimal(rent)
	t.Deposit = parseDecimal(deposit)
	t.LeaseStartDate = parseTime(leaseStart)
	t.CreatedAt = parseTime(createdAt)
	if initial.Valid {
		v := parseDecimal(initial.String)
		t.InitialWaterReading = &v
	}
	if contact.Valid {
		var ec billing.EmergencyContact
		if err := json.Unmarshal([]byte(contact.String), &ec); err != nil {
			return nil, fmt.Errorf("decode emergency contact: %w", err)
		}
		t.EmergencyContact = &ec
	}
	return &t, nil
}

// =============================================================================
// WATER READING OPERATIONS
// =============================================================================

func (s *Store) SaveWaterReading(ctx context.Context, r billing.WaterReading) error {
	defer s.lock()()

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO water_readings (id, property_id, reading_date, reading_month, readings_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.PropertyID, formatTime(r.ReadingDate), billing.PeriodOf(r.ReadingDate).String(),
		marshalJSON(r.Readings), formatTime(r.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return &billing.ConflictError{
				Reason: "a reading already exists for " + billing.PeriodOf(r.ReadingDate).Label(),
				Err:    billing.ErrDuplicateReading,
			}
		}
		return fmt.Errorf("failed to save water reading: %w", err)
	}
	return nil
}

func (s *Store) LatestWaterReadings(ctx context.Context, propertyID string, limit int) ([]billing.WaterReading, error) {
	defer s.rlock()()

	query := `
		SELECT id, property_id, reading_date, readings_json, created_at
		FROM water_readings WHERE property_id = ?
		ORDER BY reading_date DESC, created_at DESC`
	args := []any{propertyID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list water readings: %w", err)
	}
	defer rows.Close()

	var readings []billing.WaterReading
	for rows.Next() {
		var r billing.WaterReading
		var readingDate, readingsJSON, createdAt string
		if err := rows.Scan(&r.ID, &r.PropertyID, &readingDate, &readingsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan water reading: %w", err)
		}
		if err := json.Unmarshal([]byte(readingsJSON), &r.Readings); err != nil {
			return nil, fmt.Errorf("decode readings: %w", err)
		}
		r.ReadingDate = parseTime(readingDate)
		r.CreatedAt = parseTime(createdAt)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// =============================================================================
// EXPENSE OPERATIONS
// =============================================================================

func (s *Store) SaveExpense(ctx context.Context, e billing.Expense) error {
	defer s.lock()()

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO expenses (id, property_id, amount, description, spent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.PropertyID, e.Amount.String(), e.Description, formatTime(e.Date), formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save expense: %w", err)
	}
	return nil
}

func (s *Store) ListExpenses(ctx context.Context, propertyID string) ([]billing.Expense, error) {
	defer s.rlock()()

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, property_id, amount, description, spent_at, created_at
		FROM expenses WHERE property_id = ?
		ORDER BY spent_at DESC
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []billing.Expense
	for rows.Next() {
		var e billing.Expense
		var amount, spentAt, createdAt string
		if err := rows.Scan(&e.ID, &e.PropertyID, &amount, &e.Description, &spentAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		e.Amount = parseDecimal(amount)
		e.Date = parseTime(spentAt)
		e.CreatedAt = parseTime(createdAt)
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// sumDecimals adds TEXT-encoded amounts exactly.
func sumDecimals(values []string) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(parseDecimal(v))
	}
	return total
}
