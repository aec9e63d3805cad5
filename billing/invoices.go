/*
invoices.go - Invoice Synchronizer

PURPOSE:
  Derives line-itemized invoices from bills and keeps their status in step
  with payment state.

ENTRY POINTS:
  CreateForPeriod: one invoice per bill of a property/period that has none
  Sweep:           periodic re-derivation for Unpaid/Partially Paid/Overdue
  UpdateStatus:    operator override (explicit status) or Overdue promotion
  Send:            render and deliver an invoice, record the send audit
  Delete:          remove an invoice scoped to its property

LINE ITEMS (in order):
  Rent
  Water                    only if amount > 0, with a reading detail
  Garbage                  only if > 0
  Other: <label>           each ad-hoc charge
  Carried Forward Balance  if nonzero
  Carried Overpayment      negative, if positive

  Invoice totalDue is the sum of its line items, computed independently
  of Bill.totalDue. After issue, status follows Bill.totalDue so charges
  added later keep the invoice open.

SEE ALSO:
  - status.go:    InvoiceStatusFor, ManualInvoiceStatus
  - generator.go: syncInvoice on bill regeneration
*/
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultDueDays is the gap between issue and due date.
const DefaultDueDays = 5

// InvoiceSynchronizer owns invoice creation and status reconciliation.
type InvoiceSynchronizer struct {
	store    Store
	clock    Clock
	logger   *zap.Logger
	dueDays  int
	sender   Sender
	renderer Renderer
}

// InvoiceOption configures an InvoiceSynchronizer.
type InvoiceOption func(*InvoiceSynchronizer)

func WithDueDays(days int) InvoiceOption {
	return func(s *InvoiceSynchronizer) {
		if days > 0 {
			s.dueDays = days
		}
	}
}

func WithDelivery(sender Sender, renderer Renderer) InvoiceOption {
	return func(s *InvoiceSynchronizer) {
		s.sender = sender
		s.renderer = renderer
	}
}

func NewInvoiceSynchronizer(store Store, clock Clock, logger *zap.Logger, opts ...InvoiceOption) *InvoiceSynchronizer {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &InvoiceSynchronizer{store: store, clock: clock, logger: logger, dueDays: DefaultDueDays}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// BULK CREATE
// =============================================================================

// CreateForPeriod issues invoices for every bill of the period that lacks
// one and returns only the newly created invoices. A bill whose invoice
// cannot be checked or stored is logged and skipped.
func (s *InvoiceSynchronizer) CreateForPeriod(ctx context.Context, propertyID, period string) ([]Invoice, error) {
	p, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}

	bills, err := s.store.ListBills(ctx, BillFilter{PropertyID: propertyID, Period: p})
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	if len(bills) == 0 {
		return nil, &NotFoundError{Resource: "bills", ID: propertyID + "/" + string(p), Err: ErrBillNotFound}
	}

	created := []Invoice{}
	failed := 0
	for _, bill := range bills {
		log := s.logger.With(zap.String("bill_id", bill.ID), zap.String("tenant_id", bill.TenantID))

		existing, err := s.store.GetInvoiceByBill(ctx, bill.ID)
		if err != nil {
			log.Error("check invoice for bill failed", zap.Error(err))
			failed++
			continue
		}
		if existing != nil {
			continue
		}

		inv := s.newInvoice(bill)
		if err := s.store.CreateInvoice(ctx, inv); err != nil {
			if errors.Is(err, ErrDuplicateInvoice) {
				continue
			}
			log.Error("create invoice failed", zap.Error(err))
			failed++
			continue
		}
		created = append(created, inv)
	}

	s.logger.Info("invoices created",
		zap.String("property_id", propertyID),
		zap.String("period", string(p)),
		zap.Int("count", len(created)),
		zap.Int("failed", failed))
	return created, nil
}

func (s *InvoiceSynchronizer) newInvoice(bill Bill) Invoice {
	now := s.clock.Now()
	items := BuildLineItems(bill)

	inv := Invoice{
		ID:            uuid.NewString(),
		InvoiceNumber: InvoiceNumber(bill.ID, now),
		PropertyID:    bill.PropertyID,
		TenantID:      bill.TenantID,
		UnitID:        bill.UnitID,
		BillID:        bill.ID,
		Period:        bill.Period,
		IssueDate:     now,
		DueDate:       now.AddDate(0, 0, s.dueDays),
		Status:        InvoiceUnpaid,
		LineItems:     items,
		TotalDue:      SumLineItems(items),
		AmountPaid:    decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inv.refresh(bill.PaymentsReceived, inv.TotalDue, now)
	return inv
}

// InvoiceNumber is INV-<unix millis>-<last 5 chars of the bill id>.
func InvoiceNumber(billID string, at time.Time) string {
	tail := billID
	if len(tail) > 5 {
		tail = tail[len(tail)-5:]
	}
	return fmt.Sprintf("INV-%d-%s", at.UnixMilli(), tail)
}

// BuildLineItems itemizes a bill.
func BuildLineItems(bill Bill) []LineItem {
	items := []LineItem{{Label: "Rent", Amount: bill.Rent}}

	if bill.Water.Amount.IsPositive() {
		items = append(items, LineItem{
			Label:  "Water",
			Amount: bill.Water.Amount,
			Detail: fmt.Sprintf("Prev: %s, Curr: %s, Consumed: %s, Rate: %s",
				bill.Water.PrevReading, bill.Water.CurrentReading, bill.Water.Consumed, bill.Water.Rate),
		})
	}
	if bill.GarbageFee.IsPositive() {
		items = append(items, LineItem{Label: "Garbage", Amount: bill.GarbageFee})
	}
	for _, c := range bill.OtherCharges {
		items = append(items, LineItem{Label: "Other: " + c.Label, Amount: c.Amount})
	}
	if !bill.CarriedBalance.IsZero() {
		items = append(items, LineItem{Label: "Carried Forward Balance", Amount: bill.CarriedBalance})
	}
	if bill.CarriedOverpayment.IsPositive() {
		items = append(items, LineItem{Label: "Carried Overpayment", Amount: bill.CarriedOverpayment.Neg()})
	}
	return items
}

func SumLineItems(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Amount)
	}
	return total
}

// =============================================================================
// SWEEP
// =============================================================================

// SweepResult counts what one sweep did.
type SweepResult struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Sweep re-derives the status of every open invoice from its bill. Failures
// on one invoice are logged and never stop the rest of the batch.
func (s *InvoiceSynchronizer) Sweep(ctx context.Context) (SweepResult, error) {
	invoices, err := s.store.ListInvoices(ctx, InvoiceFilter{
		Statuses: []InvoiceStatus{InvoiceUnpaid, InvoicePartiallyPaid, InvoiceOverdue},
	})
	if err != nil {
		return SweepResult{}, fmt.Errorf("list open invoices: %w", err)
	}

	var result SweepResult
	now := s.clock.Now()

	for _, inv := range invoices {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Checked++
		log := s.logger.With(zap.String("invoice_id", inv.ID), zap.String("invoice_number", inv.InvoiceNumber))

		bill, err := s.store.GetBillByID(ctx, inv.BillID)
		if err != nil {
			log.Error("sweep: load bill failed", zap.Error(err))
			result.Failed++
			continue
		}
		if bill == nil {
			log.Warn("sweep: no bill found for invoice", zap.String("bill_id", inv.BillID))
			result.Skipped++
			continue
		}

		if !inv.refresh(bill.PaymentsReceived, bill.TotalDue, now) {
			continue
		}
		inv.UpdatedAt = now
		if err := s.store.UpdateInvoice(ctx, inv); err != nil {
			log.Error("sweep: update invoice failed", zap.Error(err))
			result.Failed++
			continue
		}
		result.Updated++
	}

	s.logger.Info("invoice sweep finished",
		zap.Int("checked", result.Checked),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

// =============================================================================
// OPERATOR ACTIONS
// =============================================================================

// UpdateStatus applies an operator status change. A nil or empty status
// only promotes past-due Unpaid/Partially Paid invoices to Overdue.
func (s *InvoiceSynchronizer) UpdateStatus(ctx context.Context, invoiceID string, status *InvoiceStatus) (*Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, notFound("invoice", invoiceID, ErrInvoiceNotFound)
	}

	now := s.clock.Now()
	next, err := ManualInvoiceStatus(*inv, status, now)
	if err != nil {
		return nil, err
	}
	inv.Status = next
	inv.UpdatedAt = now
	if err := s.store.UpdateInvoice(ctx, *inv); err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}
	return inv, nil
}

// Delete removes an invoice belonging to propertyID.
func (s *InvoiceSynchronizer) Delete(ctx context.Context, propertyID, invoiceID string) error {
	ok, err := s.store.DeleteInvoice(ctx, propertyID, invoiceID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("invoice", invoiceID, ErrInvoiceNotFound)
	}
	return nil
}

// SendRequest asks for an invoice to be delivered.
type SendRequest struct {
	Method  string
	Subject string
	Message string
}

// Send renders the invoice, emails it to the tenant, and records the send.
// Only the "email" method is supported.
func (s *InvoiceSynchronizer) Send(ctx context.Context, propertyID, invoiceID string, req SendRequest) (*Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil || inv.PropertyID != propertyID {
		return nil, notFound("invoice", invoiceID, ErrInvoiceNotFound)
	}

	property, err := s.store.GetProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if property == nil {
		return nil, notFound("property", propertyID, ErrPropertyNotFound)
	}

	if !strings.EqualFold(req.Method, "email") {
		return nil, invalid("method", `only "email" is supported`, ErrInvalidInput)
	}
	if s.sender == nil || s.renderer == nil {
		return nil, errors.New("invoice delivery is not configured")
	}

	tenant, err := s.store.GetTenant(ctx, inv.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil || strings.TrimSpace(tenant.Email) == "" {
		return nil, invalid("email", "tenant email not found", ErrInvalidInput)
	}

	doc, err := s.renderer.Render(InvoiceDocument{
		Invoice:        *inv,
		TenantName:     tenant.Name,
		PropertyName:   property.Name,
		PaymentDetails: property.PaymentDetails,
	})
	if err != nil {
		return nil, fmt.Errorf("render invoice: %w", err)
	}

	subject := req.Subject
	if subject == "" {
		subject = "Invoice " + inv.InvoiceNumber
	}
	body := req.Message
	if body == "" {
		body = "Please find your invoice attached."
	}

	if err := s.sender.Send(ctx, Message{
		To:          tenant.Email,
		FromName:    property.Name,
		Subject:     subject,
		Body:        body,
		Attachments: []Attachment{doc},
	}); err != nil {
		return nil, fmt.Errorf("send invoice: %w", err)
	}

	now := s.clock.Now()
	inv.Sent.Email = true
	inv.Sent.SentAt = &now
	inv.UpdatedAt = now
	if err := s.store.UpdateInvoice(ctx, *inv); err != nil {
		return nil, fmt.Errorf("record send: %w", err)
	}

	s.logger.Info("invoice sent",
		zap.String("invoice_id", inv.ID),
		zap.String("tenant_id", tenant.ID))
	return inv, nil
}
