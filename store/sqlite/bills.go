package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/prosuite/rent-ledger/billing"
)

// =============================================================================
// BILL OPERATIONS
// =============================================================================

// UpsertBill writes the bill for its key. On conflict the stored id,
// payment links and created_at survive and the version is bumped.
func (s *Store) UpsertBill(ctx context.Context, b billing.Bill) (billing.Bill, error) {
	defer s.lock()()

	var stored *billing.Bill
	err := s.atomically(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO bills (id, property_id, tenant_id, unit_id, period, rent, garbage_fee,
				water_prev, water_current, water_consumed, water_rate, water_amount, other_charges_json,
				total_due, payments_received, balance, overpayment, carried_balance, carried_overpayment,
				status, payment_ids_json, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
			ON CONFLICT(tenant_id, unit_id, property_id, period) DO UPDATE SET
				rent = excluded.rent,
				garbage_fee = excluded.garbage_fee,
				water_prev = excluded.water_prev,
				water_current = excluded.water_current,
				water_consumed = excluded.water_consumed,
				water_rate = excluded.water_rate,
				water_amount = excluded.water_amount,
				other_charges_json = excluded.other_charges_json,
				total_due = excluded.total_due,
				payments_received = excluded.payments_received,
				balance = excluded.balance,
				overpayment = excluded.overpayment,
				carried_balance = excluded.carried_balance,
				carried_overpayment = excluded.carried_overpayment,
				status = excluded.status,
				version = bills.version + 1,
				updated_at = excluded.updated_at
		`, b.ID, b.PropertyID, b.TenantID, b.UnitID, b.Period.String(), b.Rent.String(), b.GarbageFee.String(),
			b.Water.PrevReading.String(), b.Water.CurrentReading.String(), b.Water.Consumed.String(),
			b.Water.Rate.String(), b.Water.Amount.String(), chargesJSON(b.OtherCharges),
			b.TotalDue.String(), b.PaymentsReceived.String(), b.Balance.String(), b.Overpayment.String(),
			b.CarriedBalance.String(), b.CarriedOverpayment.String(), string(b.Status),
			idsJSON(b.Payments), formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert bill: %w", err)
		}

		stored, err = scanBill(q.QueryRowContext(ctx, billSelect+`
			WHERE property_id = ? AND tenant_id = ? AND unit_id = ? AND period = ?
		`, b.PropertyID, b.TenantID, b.UnitID, b.Period.String()))
		if err != nil {
			return fmt.Errorf("failed to reload bill: %w", err)
		}
		return nil
	})
	if err != nil {
		return billing.Bill{}, err
	}
	return *stored, nil
}

func (s *Store) GetBill(ctx context.Context, key billing.BillKey) (*billing.Bill, error) {
	defer s.rlock()()

	b, err := scanBill(s.q.QueryRowContext(ctx, billSelect+`
		WHERE property_id = ? AND tenant_id = ? AND unit_id = ? AND period = ?
	`, key.PropertyID, key.TenantID, key.UnitID, key.Period.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return b, nil
}

func (s *Store) GetBillByID(ctx context.Context, id string) (*billing.Bill, error) {
	defer s.rlock()()

	b, err := scanBill(s.q.QueryRowContext(ctx, billSelect+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return b, nil
}

// UpdateBill is a compare-and-swap on the version column.
func (s *Store) UpdateBill(ctx context.Context, b billing.Bill, expectedVersion int64) error {
	defer s.lock()()

	res, err := s.q.ExecContext(ctx, `
		UPDATE bills SET
			rent = ?, garbage_fee = ?,
			water_prev = ?, water_current = ?, water_consumed = ?, water_rate = ?, water_amount = ?,
			other_charges_json = ?, total_due = ?, payments_received = ?, balance = ?, overpayment = ?,
			carried_balance = ?, carried_overpayment = ?, status = ?, payment_ids_json = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, b.Rent.String(), b.GarbageFee.String(),
		b.Water.PrevReading.String(), b.Water.CurrentReading.String(), b.Water.Consumed.String(),
		b.Water.Rate.String(), b.Water.Amount.String(),
		chargesJSON(b.OtherCharges), b.TotalDue.String(), b.PaymentsReceived.String(), b.Balance.String(),
		b.Overpayment.String(), b.CarriedBalance.String(), b.CarriedOverpayment.String(), string(b.Status),
		idsJSON(b.Payments), formatTime(b.UpdatedAt), b.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update bill: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bills WHERE id = ?`, b.ID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return billing.ErrBillNotFound
	}
	return billing.ErrConcurrentModification
}

func (s *Store) ListBills(ctx context.Context, filter billing.BillFilter) ([]billing.Bill, error) {
	defer s.rlock()()

	query := billSelect + ` WHERE 1=1`
	var args []any
	if filter.PropertyID != "" {
		query += ` AND property_id = ?`
		args = append(args, filter.PropertyID)
	}
	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.Period != "" {
		query += ` AND period = ?`
		args = append(args, filter.Period.String())
	}
	query += ` ORDER BY period, unit_id`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	defer rows.Close()

	var bills []billing.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bills = append(bills, *b)
	}
	return bills, rows.Err()
}

const billSelect = `
	SELECT id, property_id, tenant_id, unit_id, period, rent, garbage_fee,
		water_prev, water_current, water_consumed, water_rate, water_amount, other_charges_json,
		total_due, payments_received, balance, overpayment, carried_balance, carried_overpayment,
		status, payment_ids_json, version, created_at, updated_at
	FROM bills`

func scanBill(row scanner) (*billing.Bill, error) {
	var b billing.Bill
	var period, rent, garbage, wPrev, wCur, wConsumed, wRate, wAmount, chargesRaw string
	var totalDue, received, balance, over, carriedBal, carriedOver, status, idsRaw, createdAt, updatedAt string
	err := row.Scan(&b.ID, &b.PropertyID, &b.TenantID, &b.UnitID, &period, &rent, &garbage,
		&wPrev, &wCur, &wConsumed, &wRate, &wAmount, &chargesRaw,
		&totalDue, &received, &balance, &over, &carriedBal, &carriedOver,
		&status, &idsRaw, &b.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	b.Period = billing.Period(period)
	b.Rent = parseDecimal(rent)
	b.GarbageFee = parseDecimal(garbage)
	b.Water = billing.WaterCharge{
		PrevReading:    parseDecimal(wPrev),
		CurrentReading: parseDecimal(wCur),
		Consumed:       parseDecimal(wConsumed),
		Rate:           parseDecimal(wRate),
		Amount:         parseDecimal(wAmount),
	}
	if err := json.Unmarshal([]byte(chargesRaw), &b.OtherCharges); err != nil {
		return nil, fmt.Errorf("decode other charges: %w", err)
	}
	if err := json.Unmarshal([]byte(idsRaw), &b.Payments); err != nil {
		return nil, fmt.Errorf("decode payment ids: %w", err)
	}
	b.TotalDue = parseDecimal(totalDue)
	b.PaymentsReceived = parseDecimal(received)
	b.Balance = parseDecimal(balance)
	b.Overpayment = parseDecimal(over)
	b.CarriedBalance = parseDecimal(carriedBal)
	b.CarriedOverpayment = parseDecimal(carriedOver)
	b.Status = billing.BillStatus(status)
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}

func chargesJSON(charges []billing.OtherCharge) string {
	if len(charges) == 0 {
		return "[]"
	}
	return marshalJSON(charges)
}

func idsJSON(ids []string) string {
	if len(ids) == 0 {
		return "[]"
	}
	return marshalJSON(ids)
}
