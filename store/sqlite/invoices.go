package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prosuite/rent-ledger/billing"
)

// =============================================================================
// INVOICE OPERATIONS
// =============================================================================

func (s *Store) CreateInvoice(ctx context.Context, inv billing.Invoice) error {
	defer s.lock()()

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO invoices (id, invoice_number, property_id, tenant_id, unit_id, bill_id, period,
			issue_date, due_date, status, line_items_json, total_due, amount_paid,
			sent_email, sent_whatsapp, sent_at, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.ID, inv.InvoiceNumber, inv.PropertyID, inv.TenantID, inv.UnitID, inv.BillID, inv.Period.String(),
		formatTime(inv.IssueDate), formatTime(inv.DueDate), string(inv.Status), lineItemsJSON(inv.LineItems),
		inv.TotalDue.String(), inv.AmountPaid.String(), inv.Sent.Email, inv.Sent.WhatsApp, nullTime(inv.Sent.SentAt),
		inv.Notes, formatTime(inv.CreatedAt), formatTime(inv.UpdatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return &billing.ConflictError{Reason: "invoice already exists for bill " + inv.BillID, Err: billing.ErrDuplicateInvoice}
		}
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*billing.Invoice, error) {
	return s.getInvoice(ctx, ` WHERE id = ?`, id)
}

func (s *Store) GetInvoiceByBill(ctx context.Context, billID string) (*billing.Invoice, error) {
	return s.getInvoice(ctx, ` WHERE bill_id = ?`, billID)
}

func (s *Store) FindInvoice(ctx context.Context, tenantID, unitID string, period billing.Period) (*billing.Invoice, error) {
	return s.getInvoice(ctx, ` WHERE tenant_id = ? AND unit_id = ? AND period = ? ORDER BY created_at DESC LIMIT 1`,
		tenantID, unitID, period.String())
}

func (s *Store) getInvoice(ctx context.Context, where string, args ...any) (*billing.Invoice, error) {
	defer s.rlock()()

	inv, err := scanInvoice(s.q.QueryRowContext(ctx, invoiceSelect+where, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// UpdateInvoice rewrites the mutable invoice fields.
func (s *Store) UpdateInvoice(ctx context.Context, inv billing.Invoice) error {
	defer s.lock()()

	res, err := s.q.ExecContext(ctx, `
		UPDATE invoices SET
			due_date = ?, status = ?, line_items_json = ?, total_due = ?, amount_paid = ?,
			sent_email = ?, sent_whatsapp = ?, sent_at = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`, formatTime(inv.DueDate), string(inv.Status), lineItemsJSON(inv.LineItems), inv.TotalDue.String(),
		inv.AmountPaid.String(), inv.Sent.Email, inv.Sent.WhatsApp, nullTime(inv.Sent.SentAt), inv.Notes,
		formatTime(inv.UpdatedAt), inv.ID)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrInvoiceNotFound
	}
	return nil
}

// DeleteInvoice reports whether an invoice of the property was removed.
func (s *Store) DeleteInvoice(ctx context.Context, propertyID, id string) (bool, error) {
	defer s.lock()()

	res, err := s.q.ExecContext(ctx, `DELETE FROM invoices WHERE id = ? AND property_id = ?`, id, propertyID)
	if err != nil {
		return false, fmt.Errorf("failed to delete invoice: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ListInvoices(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	defer s.rlock()()

	query := invoiceSelect + ` WHERE 1=1`
	var args []any
	if filter.PropertyID != "" {
		query += ` AND property_id = ?`
		args = append(args, filter.PropertyID)
	}
	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

const invoiceSelect = `
	SELECT id, invoice_number, property_id, tenant_id, unit_id, bill_id, period,
		issue_date, due_date, status, line_items_json, total_due, amount_paid,
		sent_email, sent_whatsapp, sent_at, notes, created_at, updated_at
	FROM invoices`

func scanInvoice(row scanner) (*billing.Invoice, error) {
	var inv billing.Invoice
	var period, issueDate, dueDate, status, itemsRaw, totalDue, amountPaid, createdAt, updatedAt string
	var sentAt sql.NullString
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.PropertyID, &inv.TenantID, &inv.UnitID, &inv.BillID, &period,
		&issueDate, &dueDate, &status, &itemsRaw, &totalDue, &amountPaid,
		&inv.Sent.Email, &inv.Sent.WhatsApp, &sentAt, &inv.Notes, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(itemsRaw), &inv.LineItems); err != nil {
		return nil, fmt.Errorf("decode line items: %w", err)
	}
	inv.Period = billing.Period(period)
	inv.IssueDate = parseTime(issueDate)
	inv.DueDate = parseTime(dueDate)
	inv.Status = billing.InvoiceStatus(status)
	inv.TotalDue = parseDecimal(totalDue)
	inv.AmountPaid = parseDecimal(amountPaid)
	if sentAt.Valid {
		t := parseTime(sentAt.String)
		inv.Sent.SentAt = &t
	}
	inv.CreatedAt = parseTime(createdAt)
	inv.UpdatedAt = parseTime(updatedAt)
	return &inv, nil
}

func lineItemsJSON(items []billing.LineItem) string {
	if len(items) == 0 {
		return "[]"
	}
	return marshalJSON(items)
}
