/*
payments.go - Payment Poster

PURPOSE:
  Records a payment and, for Rent, folds it into the matching bill.

STEPS:
  1. Deposit: reject a second deposit for the same tenant and unit.
  2. Derive the period from the payment date (UTC).
  3. Persist the payment.
  4. Rent: if the bill for (tenant, unit, property, period) exists, set
     paymentsReceived from the recorded Rent payments, re-settle, link the
     payment id, and write with a version check. Then refresh the bill's
     invoice if one was issued.
  A missing bill is not an error. The payment waits for the next
  generation run.

SOURCE OF TRUTH:
  Payment records. The stored paymentsReceived is always re-aggregated
  from them, so posting and regeneration converge on the same number.
*/
package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentPoster records payments and applies Rent payments to bills.
type PaymentPoster struct {
	store  Store
	locks  *KeyedMutex
	clock  Clock
	logger *zap.Logger
}

func NewPaymentPoster(store Store, locks *KeyedMutex, clock Clock, logger *zap.Logger) *PaymentPoster {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentPoster{store: store, locks: locks, clock: clock, logger: logger}
}

// PaymentInput is a payment as submitted by an operator.
type PaymentInput struct {
	TenantID  string
	UnitID    string
	Amount    decimal.Decimal
	Date      time.Time
	Method    PaymentMethod
	Type      PaymentType
	Reference string
}

// PostResult is the recorded payment and, when one was updated, its bill.
type PostResult struct {
	Payment Payment  `json:"payment"`
	Bill    *Bill    `json:"bill,omitempty"`
	Invoice *Invoice `json:"invoice,omitempty"`
}

func (in PaymentInput) validate() error {
	if strings.TrimSpace(in.TenantID) == "" {
		return invalid("tenantId", "is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.UnitID) == "" {
		return invalid("unitId", "is required", ErrInvalidInput)
	}
	if !in.Amount.IsPositive() {
		return invalid("amount", "must be positive", ErrInvalidInput)
	}
	if in.Date.IsZero() {
		return invalid("date", "is required", ErrInvalidInput)
	}
	switch in.Method {
	case MethodMpesa, MethodBank, MethodCash:
	default:
		return invalid("method", "must be one of mpesa, bank, cash", ErrInvalidInput)
	}
	switch in.Type {
	case PaymentRent, PaymentDeposit:
	default:
		return invalid("type", "must be Rent or Deposit", ErrInvalidInput)
	}
	return nil
}

// Record persists a payment and applies it to its bill.
func (pp *PaymentPoster) Record(ctx context.Context, propertyID string, in PaymentInput) (PostResult, error) {
	if err := in.validate(); err != nil {
		return PostResult{}, err
	}

	period := PeriodOf(in.Date)
	unlock := pp.locks.Lock(periodLockKey(propertyID, period))
	defer unlock()

	if in.Type == PaymentDeposit {
		existing, err := pp.store.GetDeposit(ctx, in.TenantID, in.UnitID)
		if err != nil {
			return PostResult{}, fmt.Errorf("check deposit: %w", err)
		}
		if existing != nil {
			return PostResult{}, &ConflictError{Err: ErrDuplicateDeposit}
		}
	}

	now := pp.clock.Now()
	payment := Payment{
		ID:         uuid.NewString(),
		PropertyID: propertyID,
		TenantID:   in.TenantID,
		UnitID:     in.UnitID,
		Amount:     in.Amount,
		Date:       in.Date,
		Method:     in.Method,
		Reference:  in.Reference,
		Type:       in.Type,
		Period:     period,
		CreatedAt:  now,
	}

	if err := pp.store.SavePayment(ctx, payment); err != nil {
		if IsClientError(err) || IsConflict(err) {
			return PostResult{}, &ConflictError{Err: err}
		}
		return PostResult{}, fmt.Errorf("save payment: %w", err)
	}

	result := PostResult{Payment: payment}
	if payment.Type != PaymentRent {
		return result, nil
	}

	key := BillKey{PropertyID: propertyID, TenantID: in.TenantID, UnitID: in.UnitID, Period: period}
	bill, err := pp.applyToBill(ctx, key, payment.ID)
	if err != nil {
		// The payment is durable; the next generation run re-aggregates it.
		pp.logger.Error("payment recorded but bill update failed",
			zap.String("payment_id", payment.ID), zap.Error(err))
		return result, nil
	}
	if bill == nil {
		pp.logger.Info("no bill yet for rent payment, deferring",
			zap.String("payment_id", payment.ID),
			zap.String("tenant_id", key.TenantID),
			zap.String("period", string(period)))
		return result, nil
	}
	result.Bill = bill

	inv, err := syncInvoice(ctx, pp.store, *bill, pp.clock.Now())
	if err != nil {
		pp.logger.Warn("invoice refresh after payment failed",
			zap.String("bill_id", bill.ID), zap.Error(err))
		return result, nil
	}
	result.Invoice = inv
	return result, nil
}

// applyToBill re-aggregates rent onto the bill with optimistic locking.
// Returns nil when no bill exists for the key.
func (pp *PaymentPoster) applyToBill(ctx context.Context, key BillKey, paymentID string) (*Bill, error) {
	var updated *Bill
	err := WithRetry(ctx, DefaultMaxRetries, func(ctx context.Context) error {
		bill, err := pp.store.GetBill(ctx, key)
		if err != nil {
			return err
		}
		if bill == nil {
			updated = nil
			return nil
		}

		paid, err := pp.store.SumRentPayments(ctx, key)
		if err != nil {
			return err
		}

		expected := bill.Version
		bill.PaymentsReceived = paid
		Settle(bill.TotalDue, paid).Apply(bill)
		if !bill.HasPayment(paymentID) {
			bill.Payments = append(bill.Payments, paymentID)
		}
		bill.UpdatedAt = pp.clock.Now()

		if err := pp.store.UpdateBill(ctx, *bill, expected); err != nil {
			return err
		}
		bill.Version = expected + 1
		updated = bill
		return nil
	})
	return updated, err
}
