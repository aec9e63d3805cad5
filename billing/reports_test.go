package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prosuite/rent-ledger/billing"
)

// =============================================================================
// REPORTS
// =============================================================================

func TestReports_Balances(t *testing.T) {
	f := newFixture(t)
	p, tenant, _ := f.januaryBill(t)
	f.pay(t, p, tenant, 3000, date(2025, time.January, 10))

	lines, err := f.reports.Balances(f.ctx, p.ID)
	require.NoError(t, err)

	require.Len(t, lines, 1)
	assert.Equal(t, "Jane Wanjiru", lines[0].Tenant)
	assert.Equal(t, "A1", lines[0].Unit)
	assert.True(t, lines[0].Balance.Equal(dec(2000)))
	assert.Equal(t, "Due", lines[0].Status)
}

func TestReports_Occupancy(t *testing.T) {
	// GIVEN: Two units, one leased from January
	f := newFixture(t)
	p := f.createProperty(t)
	f.createTenant(t, p.ID, "A1", date(2025, time.January, 5))
	f.clock.Set(date(2025, time.February, 15))

	// WHEN: Three months are reported
	lines, err := f.reports.Occupancy(f.ctx, p.ID, 3)
	require.NoError(t, err)

	// THEN: December empty, January and February half full
	require.Len(t, lines, 3)
	assert.Equal(t, "December 2024", lines[0].Month)
	assert.True(t, lines[0].Occupancy.IsZero())
	assert.True(t, lines[0].Vacancy.Equal(dec(100)))
	assert.Equal(t, billing.Period("2025-02"), lines[2].Period)
	assert.True(t, lines[2].Occupancy.Equal(dec(50)))
	assert.True(t, lines[2].Vacancy.Equal(dec(50)))

	_, err = f.reports.Occupancy(f.ctx, "missing", 3)
	assert.True(t, billing.IsNotFound(err))
}

func TestReports_UtilitiesAndStats(t *testing.T) {
	f := newFixture(t)
	p, tenant, _ := f.januaryBill(t)
	f.pay(t, p, tenant, 5000, date(2025, time.January, 10))
	f.recordReading(t, p.ID, date(2025, time.February, 27), billing.UnitReading{UnitID: "A1", Value: dec(130)})
	_, err := f.generator.Generate(f.ctx, p.ID, "2025-02")
	require.NoError(t, err)

	usage, err := f.reports.Utilities(f.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, usage.UsageByTenantUnit, 1)
	assert.True(t, usage.UsageByTenantUnit[0].WaterUsage.Equal(dec(30)))
	assert.True(t, usage.TotalWaterUsage.Equal(dec(30)))

	stats, err := f.reports.BillingStats(f.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, billing.Period("2025-01"), stats[0].Period)
	assert.True(t, stats[0].PaidAmount.Equal(dec(5000)))
	assert.Equal(t, 0, stats[0].OverdueBills)
	assert.True(t, stats[1].BilledAmount.Equal(dec(4500)))
	assert.Equal(t, 1, stats[1].OverdueBills)
}

func TestReports_Financials(t *testing.T) {
	f := newFixture(t)
	p, tenant, _ := f.januaryBill(t)
	f.pay(t, p, tenant, 3000, date(2025, time.January, 10))
	_, err := f.registry.RecordExpense(f.ctx, p.ID, dec(800), "Plumbing", date(2025, time.January, 12))
	require.NoError(t, err)

	lines, err := f.reports.Financials(f.ctx, p.ID)
	require.NoError(t, err)

	require.Len(t, lines, 1)
	assert.True(t, lines[0].Rent.Equal(dec(4000)))
	assert.True(t, lines[0].Payments.Equal(dec(3000)))
	assert.True(t, lines[0].Expenses.Equal(dec(800)))
	assert.True(t, lines[0].NetIncome.Equal(dec(2200)))
}
