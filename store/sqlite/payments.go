package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/prosuite/rent-ledger/billing"
)

// =============================================================================
// PAYMENT OPERATIONS
// =============================================================================

// SavePayment inserts an immutable payment. A second deposit for the same
// tenant and unit trips idx_payments_unique_deposit.
func (s *Store) SavePayment(ctx context.Context, p billing.Payment) error {
	defer s.lock()()

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payments (id, property_id, tenant_id, unit_id, amount, paid_at, method, reference,
			payment_type, period, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.PropertyID, p.TenantID, p.UnitID, p.Amount.String(), formatTime(p.Date), string(p.Method),
		p.Reference, string(p.Type), p.Period.String(), formatTime(p.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return &billing.ConflictError{Reason: "deposit already recorded", Err: billing.ErrDuplicateDeposit}
		}
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

// GetDeposit returns the tenant's deposit. An empty unitID matches any unit.
func (s *Store) GetDeposit(ctx context.Context, tenantID, unitID string) (*billing.Payment, error) {
	defer s.rlock()()

	query := paymentSelect + ` WHERE payment_type = ? AND tenant_id = ?`
	args := []any{string(billing.PaymentDeposit), tenantID}
	if unitID != "" {
		query += ` AND unit_id = ?`
		args = append(args, unitID)
	}
	query += ` ORDER BY paid_at LIMIT 1`

	p, err := scanPayment(s.q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	return p, nil
}

// SumRentPayments totals rent for one bill key. Amounts are TEXT, so the
// sum happens in Go to stay exact.
func (s *Store) SumRentPayments(ctx context.Context, key billing.BillKey) (decimal.Decimal, error) {
	defer s.rlock()()

	rows, err := s.q.QueryContext(ctx, `
		SELECT amount FROM payments
		WHERE property_id = ? AND tenant_id = ? AND unit_id = ? AND period = ? AND payment_type = ?
	`, key.PropertyID, key.TenantID, key.UnitID, key.Period.String(), string(billing.PaymentRent))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payments: %w", err)
	}
	defer rows.Close()

	var amounts []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return decimal.Zero, err
		}
		amounts = append(amounts, a)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, err
	}
	return sumDecimals(amounts), nil
}

func (s *Store) ListPayments(ctx context.Context, filter billing.PaymentFilter) ([]billing.Payment, error) {
	defer s.rlock()()

	query := paymentSelect + ` WHERE 1=1`
	var args []any
	if filter.PropertyID != "" {
		query += ` AND property_id = ?`
		args = append(args, filter.PropertyID)
	}
	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.Type != "" {
		query += ` AND payment_type = ?`
		args = append(args, string(filter.Type))
	}
	query += ` ORDER BY paid_at DESC, created_at DESC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []billing.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

const paymentSelect = `
	SELECT id, property_id, tenant_id, unit_id, amount, paid_at, method, reference, payment_type, period, created_at
	FROM payments`

func scanPayment(row scanner) (*billing.Payment, error) {
	var p billing.Payment
	var amount, paidAt, method, paymentType, period, createdAt string
	err := row.Scan(&p.ID, &p.PropertyID, &p.TenantID, &p.UnitID, &amount, &paidAt, &method,
		&p.Reference, &paymentType, &period, &createdAt)
	if err != nil {
		return nil, err
	}
	p.Amount = parseDecimal(amount)
	p.Date = parseTime(paidAt)
	p.Method = billing.PaymentMethod(method)
	p.Type = billing.PaymentType(paymentType)
	p.Period = billing.Period(period)
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}
