package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prosuite/rent-ledger/billing"
	"github.com/prosuite/rent-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var jan1 = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func testProperty() billing.Property {
	return billing.Property{
		ID:   "prop-1",
		Name: "Sunset Court",
		Utilities: billing.Utilities{
			Water:     billing.WaterMetered,
			WaterRate: decimal.NewFromInt(50),
			Garbage:   decimal.NewFromInt(200),
		},
		PaymentDetails: billing.PaymentDetails{Bank: "KCB", Deadline: 5},
		UnitGroups: []billing.UnitGroup{
			{
				Type: "1BR",
				Rent: decimal.NewFromInt(4000),
				Units: []billing.Unit{
					{UnitID: "A1", Status: billing.UnitVacant},
					{UnitID: "A2", Status: billing.UnitOccupied, TenantID: "tenant-1"},
				},
			},
		},
		CreatedAt: jan1,
		UpdatedAt: jan1,
	}
}

func testBill(version int64) billing.Bill {
	return billing.Bill{
		ID:         "bill-1",
		PropertyID: "prop-1",
		TenantID:   "tenant-1",
		UnitID:     "A2",
		Period:     "2025-01",
		Rent:       decimal.NewFromInt(4000),
		GarbageFee: decimal.NewFromInt(200),
		Water: billing.WaterCharge{
			PrevReading:    decimal.NewFromInt(100),
			CurrentReading: decimal.NewFromInt(120),
			Consumed:       decimal.NewFromInt(20),
			Rate:           decimal.NewFromInt(50),
			Amount:         decimal.NewFromInt(1000),
		},
		TotalDue:  decimal.NewFromInt(5200),
		Balance:   decimal.NewFromInt(5200),
		Status:    billing.BillUnpaid,
		Version:   version,
		CreatedAt: jan1,
		UpdatedAt: jan1,
	}
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestStore_PropertyRoundTrip(t *testing.T) {
	// GIVEN: A property with one group of two units
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveProperty(ctx, testProperty()))

	// WHEN: It is read back
	got, err := store.GetProperty(ctx, "prop-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	// THEN: Units, pricing and nested details survive
	assert.Equal(t, "Sunset Court", got.Name)
	assert.True(t, got.Utilities.WaterRate.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "KCB", got.PaymentDetails.Bank)
	require.Len(t, got.UnitGroups, 1)
	require.Len(t, got.UnitGroups[0].Units, 2)
	assert.Equal(t, "tenant-1", got.UnitGroups[0].Units[1].TenantID)
	assert.True(t, got.UnitGroups[0].Rent.Equal(decimal.NewFromInt(4000)))
}

func TestStore_GetProperty_MissingReturnsNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetProperty(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_SaveProperty_DuplicateUnitIgnoresCase(t *testing.T) {
	// GIVEN: Two units whose ids differ only by case
	store := newTestStore(t)
	p := testProperty()
	p.UnitGroups[0].Units[1].UnitID = "a1"

	// WHEN: Saving
	err := store.SaveProperty(context.Background(), p)

	// THEN: The unique index rejects it
	assert.True(t, errors.Is(err, billing.ErrDuplicateUnit))
}

func TestStore_SaveProperty_ReplacesUnits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := testProperty()
	require.NoError(t, store.SaveProperty(ctx, p))

	p.UnitGroups[0].Units = p.UnitGroups[0].Units[:1]
	require.NoError(t, store.SaveProperty(ctx, p))

	got, err := store.GetProperty(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.UnitCount())
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestStore_DuplicateDeposit_Rejected(t *testing.T) {
	// GIVEN: A deposit already recorded for tenant-1 on A2
	store := newTestStore(t)
	ctx := context.Background()
	deposit := billing.Payment{
		ID: "pay-1", PropertyID: "prop-1", TenantID: "tenant-1", UnitID: "A2",
		Amount: decimal.NewFromInt(4000), Date: jan1, Method: billing.MethodCash,
		Type: billing.PaymentDeposit, Period: "2025-01", CreatedAt: jan1,
	}
	require.NoError(t, store.SavePayment(ctx, deposit))

	// WHEN: A second deposit arrives
	deposit.ID = "pay-2"
	err := store.SavePayment(ctx, deposit)

	// THEN: The partial unique index rejects it
	assert.True(t, errors.Is(err, billing.ErrDuplicateDeposit))

	got, err := store.GetDeposit(ctx, "tenant-1", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "pay-1", got.ID)
}

func TestStore_SumRentPayments_OnlyMatchingKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rent := func(id string, amount int64, period billing.Period, typ billing.PaymentType) billing.Payment {
		return billing.Payment{
			ID: id, PropertyID: "prop-1", TenantID: "tenant-1", UnitID: "A2",
			Amount: decimal.NewFromInt(amount), Date: jan1, Method: billing.MethodMpesa,
			Type: typ, Period: period, CreatedAt: jan1,
		}
	}
	require.NoError(t, store.SavePayment(ctx, rent("p1", 3000, "2025-01", billing.PaymentRent)))
	require.NoError(t, store.SavePayment(ctx, rent("p2", 2500, "2025-01", billing.PaymentRent)))
	require.NoError(t, store.SavePayment(ctx, rent("p3", 1000, "2025-02", billing.PaymentRent)))
	require.NoError(t, store.SavePayment(ctx, rent("p4", 4000, "2025-01", billing.PaymentDeposit)))

	sum, err := store.SumRentPayments(ctx, billing.BillKey{
		PropertyID: "prop-1", TenantID: "tenant-1", UnitID: "A2", Period: "2025-01",
	})
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(5500)), "got %s", sum)
}

// =============================================================================
// BILLS
// =============================================================================

func TestStore_UpsertBill_KeepsIdentityAndBumpsVersion(t *testing.T) {
	// GIVEN: A bill already stored with a payment link
	store := newTestStore(t)
	ctx := context.Background()
	first, err := store.UpsertBill(ctx, testBill(0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)

	first.Payments = []string{"pay-1"}
	require.NoError(t, store.UpdateBill(ctx, first, 1))

	// WHEN: The same key is upserted again under a fresh id
	again := testBill(0)
	again.ID = "bill-other"
	again.TotalDue = decimal.NewFromInt(6000)
	again.CreatedAt = jan1.AddDate(0, 1, 0)
	stored, err := store.UpsertBill(ctx, again)
	require.NoError(t, err)

	// THEN: The original id, payment links and creation time survive
	assert.Equal(t, "bill-1", stored.ID)
	assert.Equal(t, []string{"pay-1"}, stored.Payments)
	assert.True(t, stored.CreatedAt.Equal(jan1), "created %s", stored.CreatedAt)
	assert.Equal(t, int64(3), stored.Version)
	assert.True(t, stored.TotalDue.Equal(decimal.NewFromInt(6000)))
}

func TestStore_UpdateBill_StaleVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	b, err := store.UpsertBill(ctx, testBill(0))
	require.NoError(t, err)

	require.NoError(t, store.UpdateBill(ctx, b, b.Version))

	// Second writer still holds the old version
	err = store.UpdateBill(ctx, b, b.Version)
	assert.True(t, errors.Is(err, billing.ErrConcurrentModification))

	b.ID = "missing"
	err = store.UpdateBill(ctx, b, 1)
	assert.True(t, errors.Is(err, billing.ErrBillNotFound))
}

func TestStore_ListBills_OrderedByPeriodThenUnit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	feb := testBill(0)
	feb.ID, feb.Period = "bill-feb", "2025-02"
	janB := testBill(0)
	janB.ID, janB.UnitID = "bill-jan-b", "B1"
	for _, b := range []billing.Bill{feb, janB, testBill(0)} {
		_, err := store.UpsertBill(ctx, b)
		require.NoError(t, err)
	}

	bills, err := store.ListBills(ctx, billing.BillFilter{PropertyID: "prop-1"})
	require.NoError(t, err)
	require.Len(t, bills, 3)
	assert.Equal(t, "bill-1", bills[0].ID)
	assert.Equal(t, "bill-jan-b", bills[1].ID)
	assert.Equal(t, "bill-feb", bills[2].ID)
}

// =============================================================================
// INVOICES
// =============================================================================

func TestStore_Invoice_OnePerBill(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	inv := billing.Invoice{
		ID: "inv-1", InvoiceNumber: "INV-1-00001", PropertyID: "prop-1", TenantID: "tenant-1",
		UnitID: "A2", BillID: "bill-1", Period: "2025-01", IssueDate: jan1, DueDate: jan1.AddDate(0, 0, 5),
		Status:    billing.InvoiceUnpaid,
		LineItems: []billing.LineItem{{Label: "Rent", Amount: decimal.NewFromInt(4000)}},
		TotalDue:  decimal.NewFromInt(4000), CreatedAt: jan1, UpdatedAt: jan1,
	}
	require.NoError(t, store.CreateInvoice(ctx, inv))

	dup := inv
	dup.ID, dup.InvoiceNumber = "inv-2", "INV-2-00001"
	assert.True(t, errors.Is(store.CreateInvoice(ctx, dup), billing.ErrDuplicateInvoice))

	got, err := store.FindInvoice(ctx, "tenant-1", "A2", "2025-01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "inv-1", got.ID)
	require.Len(t, got.LineItems, 1)

	// Status filter
	open, err := store.ListInvoices(ctx, billing.InvoiceFilter{
		Statuses: []billing.InvoiceStatus{billing.InvoiceUnpaid, billing.InvoiceOverdue},
	})
	require.NoError(t, err)
	assert.Len(t, open, 1)

	// Delete is scoped to the property
	deleted, err := store.DeleteInvoice(ctx, "other-prop", "inv-1")
	require.NoError(t, err)
	assert.False(t, deleted)
	deleted, err = store.DeleteInvoice(ctx, "prop-1", "inv-1")
	require.NoError(t, err)
	assert.True(t, deleted)
}

// =============================================================================
// READINGS AND TRANSACTIONS
// =============================================================================

func TestStore_WaterReading_OnePerMonth(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	r := billing.WaterReading{
		ID: "wr-1", PropertyID: "prop-1", ReadingDate: jan1.AddDate(0, 0, 2),
		Readings:  []billing.UnitReading{{UnitID: "A2", Value: decimal.NewFromInt(120)}},
		CreatedAt: jan1,
	}
	require.NoError(t, store.SaveWaterReading(ctx, r))

	r.ID, r.ReadingDate = "wr-2", jan1.AddDate(0, 0, 20)
	assert.True(t, errors.Is(store.SaveWaterReading(ctx, r), billing.ErrDuplicateReading))

	r.ID, r.ReadingDate = "wr-3", jan1.AddDate(0, 1, 1)
	require.NoError(t, store.SaveWaterReading(ctx, r))

	latest, err := store.LatestWaterReadings(ctx, "prop-1", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "wr-3", latest[0].ID)
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that saves a tenant then fails
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx billing.Store) error {
		if err := tx.SaveTenant(ctx, billing.Tenant{
			ID: "tenant-1", PropertyID: "prop-1", UnitID: "A2", Name: "Jane",
			LeaseStartDate: jan1, CreatedAt: jan1,
		}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	// THEN: Nothing was persisted
	got, err := store.GetTenant(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
