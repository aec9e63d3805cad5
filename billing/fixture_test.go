package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/prosuite/rent-ledger/billing"
	"github.com/prosuite/rent-ledger/billing/store"
	"github.com/prosuite/rent-ledger/notify"
)

// =============================================================================
// TEST FIXTURE
// =============================================================================

// testClock is a settable clock shared by every service in a fixture.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	ctx       context.Context
	store     *store.Memory
	clock     *testClock
	registry  *billing.Registry
	generator *billing.BillGenerator
	poster    *billing.PaymentPoster
	invoices  *billing.InvoiceSynchronizer
	reports   *billing.Reports
	outbox    *notify.LogSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemory()
	clock := &testClock{now: date(2025, time.January, 31)}
	locks := billing.NewKeyedMutex()
	outbox := notify.NewLogSender(nil)

	return &fixture{
		ctx:       context.Background(),
		store:     s,
		clock:     clock,
		registry:  billing.NewRegistry(s, clock, nil),
		generator: billing.NewBillGenerator(s, locks, clock, nil),
		poster:    billing.NewPaymentPoster(s, locks, clock, nil),
		invoices:  billing.NewInvoiceSynchronizer(s, clock, nil, billing.WithDelivery(outbox, notify.NewTextRenderer())),
		reports:   billing.NewReports(s, clock),
		outbox:    outbox,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

// createProperty creates a metered property: water 50/unit, no garbage fee,
// units A1 and A2 renting at 4000.
func (f *fixture) createProperty(t *testing.T) *billing.Property {
	t.Helper()
	p, err := f.registry.CreateProperty(f.ctx, billing.Property{
		Name: "Sunset Court",
		Utilities: billing.Utilities{
			Water:     billing.WaterMetered,
			WaterRate: dec(50),
		},
		PaymentDetails: billing.PaymentDetails{AccountName: "Sunset Court Ltd", Bank: "KCB", AccountNumber: "0011"},
		UnitGroups: []billing.UnitGroup{{
			Type:    "1BR",
			Rent:    dec(4000),
			Deposit: dec(4000),
			Units:   []billing.Unit{{UnitID: "A1"}, {UnitID: "A2"}},
		}},
	})
	require.NoError(t, err)
	return p
}

// createTenant leases unitID from leaseStart with an initial meter reading of 100.
func (f *fixture) createTenant(t *testing.T, propertyID, unitID string, leaseStart time.Time) *billing.Tenant {
	t.Helper()
	tenant, err := f.registry.CreateTenant(f.ctx, billing.Tenant{
		PropertyID:          propertyID,
		UnitID:              unitID,
		Name:                "Jane Wanjiru",
		Phone:               "0700000001",
		Email:               "jane@example.com",
		LeaseStartDate:      leaseStart,
		InitialWaterReading: decPtr(100),
	})
	require.NoError(t, err)
	return tenant
}

func (f *fixture) recordReading(t *testing.T, propertyID string, on time.Time, readings ...billing.UnitReading) {
	t.Helper()
	_, err := f.registry.RecordWaterReading(f.ctx, propertyID, on, readings)
	require.NoError(t, err)
}

// januaryBill sets up the common scenario: one tenant in A1 from
// 2025-01-05 (initial reading 100), a January reading of 120, and a
// generated January bill of 4000 rent + 20 * 50 water = 5000.
func (f *fixture) januaryBill(t *testing.T) (*billing.Property, *billing.Tenant, billing.Bill) {
	t.Helper()
	p := f.createProperty(t)
	tenant := f.createTenant(t, p.ID, "A1", date(2025, time.January, 5))
	f.recordReading(t, p.ID, date(2025, time.January, 28), billing.UnitReading{UnitID: "A1", Value: dec(120)})

	result, err := f.generator.Generate(f.ctx, p.ID, "2025-01")
	require.NoError(t, err)
	require.Equal(t, 1, result.Generated)
	return p, tenant, result.Bills[0]
}

func (f *fixture) pay(t *testing.T, p *billing.Property, tenant *billing.Tenant, amount int64, on time.Time) billing.PostResult {
	t.Helper()
	result, err := f.poster.Record(f.ctx, p.ID, billing.PaymentInput{
		TenantID: tenant.ID,
		UnitID:   tenant.UnitID,
		Amount:   dec(amount),
		Date:     on,
		Method:   billing.MethodMpesa,
		Type:     billing.PaymentRent,
	})
	require.NoError(t, err)
	return result
}
