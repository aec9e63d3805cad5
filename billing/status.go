/*
status.go - The single home for payment-state derivation

PURPOSE:
  Bill Generator, Payment Poster and Invoice Synchronizer all decide
  "how paid is this?" through the pure functions here.

RULES:
  Settle (bills):
    paid >= due  -> balance 0, overpayment paid-due, Paid or Overpaid
    paid <  due  -> balance due-paid, overpayment 0, Partially Paid or Unpaid

  InvoiceStatusFor (invoices):
    Paid/Cancelled        -> unchanged (terminal)
    amountPaid >= total   -> Paid
    amountPaid > 0        -> Partially Paid
    now past due date     -> Overdue
    otherwise             -> Unpaid
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settlement is the derived payment position of a bill.
type Settlement struct {
	Balance     decimal.Decimal
	Overpayment decimal.Decimal
	Status      BillStatus
}

// Settle nets payments against the total due. Exactly one of Balance and
// Overpayment can be positive.
func Settle(totalDue, paid decimal.Decimal) Settlement {
	if paid.GreaterThanOrEqual(totalDue) {
		over := paid.Sub(totalDue)
		status := BillPaid
		if over.IsPositive() {
			status = BillOverpaid
		}
		return Settlement{Balance: decimal.Zero, Overpayment: over, Status: status}
	}

	status := BillUnpaid
	if paid.IsPositive() {
		status = BillPartiallyPaid
	}
	return Settlement{Balance: totalDue.Sub(paid), Overpayment: decimal.Zero, Status: status}
}

// Apply writes the settlement onto the bill.
func (s Settlement) Apply(b *Bill) {
	b.Balance = s.Balance
	b.Overpayment = s.Overpayment
	b.Status = s.Status
}

// InvoiceStatusFor derives an invoice's status from its payment state.
func InvoiceStatusFor(amountPaid, totalDue decimal.Decimal, dueDate time.Time, current InvoiceStatus, now time.Time) InvoiceStatus {
	if current.Terminal() {
		return current
	}
	switch {
	case amountPaid.GreaterThanOrEqual(totalDue):
		return InvoicePaid
	case amountPaid.IsPositive():
		return InvoicePartiallyPaid
	case !dueDate.IsZero() && now.After(dueDate):
		return InvoiceOverdue
	default:
		return InvoiceUnpaid
	}
}

// ManualInvoiceStatus resolves an operator status update. An explicit status
// overrides everything; without one only the Overdue promotion applies.
func ManualInvoiceStatus(inv Invoice, requested *InvoiceStatus, now time.Time) (InvoiceStatus, error) {
	if requested != nil && *requested != "" {
		if !requested.Valid() {
			return "", invalid("status", ErrInvalidStatus.Error(), ErrInvalidStatus)
		}
		return *requested, nil
	}
	if inv.DueDate.Before(now) && (inv.Status == InvoiceUnpaid || inv.Status == InvoicePartiallyPaid) {
		return InvoiceOverdue, nil
	}
	return inv.Status, nil
}

// refresh re-derives amountPaid and status against totalDue. Reports
// whether anything changed.
func (inv *Invoice) refresh(paymentsReceived, totalDue decimal.Decimal, now time.Time) bool {
	status := InvoiceStatusFor(paymentsReceived, totalDue, inv.DueDate, inv.Status, now)
	changed := !inv.AmountPaid.Equal(paymentsReceived) || status != inv.Status
	inv.AmountPaid = paymentsReceived
	inv.Status = status
	return changed
}
