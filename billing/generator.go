/*
generator.go - Bill Generator

PURPOSE:
  Produces one Bill per occupied tenant/unit for a property and period:

    totalDue = rent + garbage + water + other charges + prior carry-over
    paymentsReceived = sum of Rent payments recorded for the period
    balance/overpayment/status = Settle(totalDue, paymentsReceived)

ALGORITHM (per tenant):
  1. Skip if the lease starts after the period.
  2. Skip if the unit is missing or not occupied.
  3. Price water through ResolveConsumption.
  4. Carry prior.balance - prior.overpayment from period-1.
  5. Aggregate Rent payments for the key.
  6. Upsert the bill and refresh any invoice already issued for it.

CONCURRENCY:
  One run per (property, period) at a time via KeyedMutex. The Payment
  Poster takes the same key, so generation and posting for one period
  never interleave in this process. Version checks cover the rest.

IDEMPOTENCE:
  Re-running a period with no new payments yields identical totals,
  balances and overpayments. Only timestamps and versions move.

SEE ALSO:
  - consumption.go: Water pricing
  - status.go:      Settle, InvoiceStatusFor
  - payments.go:    Payment Poster
*/
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BillGenerator runs the monthly billing reconciliation.
type BillGenerator struct {
	store  Store
	locks  *KeyedMutex
	clock  Clock
	logger *zap.Logger
}

func NewBillGenerator(store Store, locks *KeyedMutex, clock Clock, logger *zap.Logger) *BillGenerator {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillGenerator{store: store, locks: locks, clock: clock, logger: logger}
}

// GenerateResult summarizes one generation run.
type GenerateResult struct {
	PropertyID string `json:"propertyId"`
	Period     Period `json:"period"`
	Generated  int    `json:"generated"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Bills      []Bill `json:"bills"`
}

// Generate computes and upserts bills for every eligible tenant.
// No eligible tenants is not an error.
func (g *BillGenerator) Generate(ctx context.Context, propertyID, period string) (GenerateResult, error) {
	p, err := ParsePeriod(period)
	if err != nil {
		return GenerateResult{}, err
	}

	unlock := g.locks.Lock(periodLockKey(propertyID, p))
	defer unlock()

	property, err := g.store.GetProperty(ctx, propertyID)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("load property: %w", err)
	}
	if property == nil {
		return GenerateResult{}, notFound("property", propertyID, ErrPropertyNotFound)
	}

	tenants, err := g.store.ListTenants(ctx, TenantFilter{PropertyID: propertyID})
	if err != nil {
		return GenerateResult{}, fmt.Errorf("list tenants: %w", err)
	}

	readings, err := g.store.LatestWaterReadings(ctx, propertyID, 2)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("load water readings: %w", err)
	}
	var latest, previous *WaterReading
	if len(readings) > 0 {
		latest = &readings[0]
	}
	if len(readings) > 1 {
		previous = &readings[1]
	}

	result := GenerateResult{PropertyID: propertyID, Period: p, Bills: []Bill{}}
	log := g.logger.With(zap.String("property_id", propertyID), zap.String("period", string(p)))

	for _, tenant := range tenants {
		if tenant.LeasePeriod().After(p) {
			result.Skipped++
			continue
		}

		unit, ok := property.FindUnit(tenant.UnitID)
		if !ok || unit.Status != UnitOccupied {
			log.Warn("skipping tenant: unit missing or not occupied",
				zap.String("tenant_id", tenant.ID), zap.String("unit_id", tenant.UnitID))
			result.Skipped++
			continue
		}

		bill, err := g.generateOne(ctx, property, tenant, unit, p, latest, previous)
		if err != nil {
			log.Error("bill generation failed for tenant",
				zap.String("tenant_id", tenant.ID), zap.Error(err))
			result.Failed++
			continue
		}
		result.Generated++
		result.Bills = append(result.Bills, bill)
	}

	log.Info("bills generated",
		zap.Int("generated", result.Generated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (g *BillGenerator) generateOne(
	ctx context.Context,
	property *Property,
	tenant Tenant,
	unit UnitDetails,
	period Period,
	latest, previous *WaterReading,
) (Bill, error) {
	key := BillKey{PropertyID: property.ID, TenantID: tenant.ID, UnitID: tenant.UnitID, Period: period}

	water := ResolveConsumption(ConsumptionInput{
		UnitID:   tenant.UnitID,
		Mode:     property.Utilities.Water,
		Rate:     property.Utilities.WaterRate,
		Period:   period,
		Latest:   latest,
		Previous: previous,
		Tenant:   tenant,
	})

	priorKey := key
	priorKey.Period = period.Prev()
	prior, err := g.store.GetBill(ctx, priorKey)
	if err != nil {
		return Bill{}, fmt.Errorf("load prior bill: %w", err)
	}
	carriedBalance, carriedOverpayment := decimal.Zero, decimal.Zero
	if prior != nil {
		carriedBalance = prior.Balance
		carriedOverpayment = prior.Overpayment
	}

	existing, err := g.store.GetBill(ctx, key)
	if err != nil {
		return Bill{}, fmt.Errorf("load bill: %w", err)
	}
	var others []OtherCharge
	if existing != nil {
		others = existing.OtherCharges
	}

	garbage := property.Utilities.Garbage
	totalDue := unit.Rent.
		Add(garbage).
		Add(water.Amount).
		Add(sumOtherCharges(others)).
		Add(carriedBalance.Sub(carriedOverpayment))

	paid, err := g.store.SumRentPayments(ctx, key)
	if err != nil {
		return Bill{}, fmt.Errorf("sum rent payments: %w", err)
	}

	now := g.clock.Now()
	bill := Bill{
		ID:                 uuid.NewString(),
		PropertyID:         key.PropertyID,
		TenantID:           key.TenantID,
		UnitID:             key.UnitID,
		Period:             period,
		Rent:               unit.Rent,
		GarbageFee:         garbage,
		Water:              water,
		OtherCharges:       others,
		TotalDue:           totalDue,
		PaymentsReceived:   paid,
		CarriedBalance:     carriedBalance,
		CarriedOverpayment: carriedOverpayment,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	Settle(totalDue, paid).Apply(&bill)

	stored, err := g.store.UpsertBill(ctx, bill)
	if err != nil {
		return Bill{}, fmt.Errorf("upsert bill: %w", err)
	}

	if _, err := syncInvoice(ctx, g.store, stored, now); err != nil {
		return Bill{}, err
	}
	return stored, nil
}

// syncInvoice keeps an already issued invoice in step with the bill's
// payment total. Status is judged against the bill's total, which includes
// charges added after the invoice was issued. Returns the invoice when one
// exists.
func syncInvoice(ctx context.Context, store InvoiceStore, bill Bill, now time.Time) (*Invoice, error) {
	inv, err := store.FindInvoice(ctx, bill.TenantID, bill.UnitID, bill.Period)
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	if inv == nil {
		return nil, nil
	}
	if !inv.refresh(bill.PaymentsReceived, bill.TotalDue, now) {
		return inv, nil
	}
	inv.UpdatedAt = now
	if err := store.UpdateInvoice(ctx, *inv); err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}
	return inv, nil
}

// AddOtherCharge attaches an ad-hoc charge to an existing bill and
// re-settles it.
func (g *BillGenerator) AddOtherCharge(ctx context.Context, billID string, charge OtherCharge) (*Bill, error) {
	if charge.Label == "" {
		return nil, invalid("label", "is required", ErrInvalidInput)
	}
	if !charge.Amount.IsPositive() {
		return nil, invalid("amount", "must be positive", ErrInvalidInput)
	}

	var updated Bill
	err := WithRetry(ctx, DefaultMaxRetries, func(ctx context.Context) error {
		bill, err := g.store.GetBillByID(ctx, billID)
		if err != nil {
			return err
		}
		if bill == nil {
			return notFound("bill", billID, ErrBillNotFound)
		}
		expected := bill.Version
		bill.OtherCharges = append(bill.OtherCharges, charge)
		bill.TotalDue = bill.TotalDue.Add(charge.Amount)
		Settle(bill.TotalDue, bill.PaymentsReceived).Apply(bill)
		bill.UpdatedAt = g.clock.Now()
		if err := g.store.UpdateBill(ctx, *bill, expected); err != nil {
			return err
		}
		bill.Version = expected + 1
		updated = *bill
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func sumOtherCharges(charges []OtherCharge) decimal.Decimal {
	total := decimal.Zero
	for _, c := range charges {
		total = total.Add(c.Amount)
	}
	return total
}
