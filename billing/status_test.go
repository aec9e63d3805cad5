package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prosuite/rent-ledger/billing"
)

func TestSettle(t *testing.T) {
	tests := []struct {
		name        string
		due, paid   int64
		balance     int64
		overpayment int64
		status      billing.BillStatus
	}{
		{"nothing paid", 5000, 0, 5000, 0, billing.BillUnpaid},
		{"partial", 5000, 3000, 2000, 0, billing.BillPartiallyPaid},
		{"exact", 5000, 5000, 0, 0, billing.BillPaid},
		{"over", 5000, 5500, 0, 500, billing.BillOverpaid},
		{"credit covers everything", -500, 0, 0, 500, billing.BillOverpaid},
		{"zero due zero paid", 0, 0, 0, 0, billing.BillPaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := billing.Settle(dec(tt.due), dec(tt.paid))
			assert.True(t, s.Balance.Equal(dec(tt.balance)), "balance %s", s.Balance)
			assert.True(t, s.Overpayment.Equal(dec(tt.overpayment)), "overpayment %s", s.Overpayment)
			assert.Equal(t, tt.status, s.Status)
		})
	}
}

func TestInvoiceStatusFor(t *testing.T) {
	due := date(2025, time.February, 5)
	before := date(2025, time.February, 1)
	after := date(2025, time.February, 6)

	tests := []struct {
		name    string
		paid    int64
		current billing.InvoiceStatus
		now     time.Time
		want    billing.InvoiceStatus
	}{
		{"unpaid before due", 0, billing.InvoiceUnpaid, before, billing.InvoiceUnpaid},
		{"unpaid after due", 0, billing.InvoiceUnpaid, after, billing.InvoiceOverdue},
		{"partial after due stays partial", 100, billing.InvoiceOverdue, after, billing.InvoicePartiallyPaid},
		{"fully paid", 5000, billing.InvoiceOverdue, after, billing.InvoicePaid},
		{"paid is terminal", 0, billing.InvoicePaid, after, billing.InvoicePaid},
		{"cancelled is terminal", 5000, billing.InvoiceCancelled, before, billing.InvoiceCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := billing.InvoiceStatusFor(dec(tt.paid), dec(5000), due, tt.current, tt.now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestManualInvoiceStatus(t *testing.T) {
	inv := billing.Invoice{Status: billing.InvoicePartiallyPaid, DueDate: date(2025, time.February, 5)}

	got, err := billing.ManualInvoiceStatus(inv, nil, date(2025, time.February, 10))
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceOverdue, got)

	empty := billing.InvoiceStatus("")
	got, err = billing.ManualInvoiceStatus(inv, &empty, date(2025, time.February, 1))
	require.NoError(t, err)
	assert.Equal(t, billing.InvoicePartiallyPaid, got)

	paid := billing.InvoicePaid
	got, err = billing.ManualInvoiceStatus(inv, &paid, date(2025, time.February, 1))
	require.NoError(t, err)
	assert.Equal(t, billing.InvoicePaid, got)
}

// =============================================================================
// PERIOD
// =============================================================================

func TestParsePeriod(t *testing.T) {
	for _, ok := range []string{"2025-01", "1999-12"} {
		p, err := billing.ParsePeriod(ok)
		require.NoError(t, err, ok)
		assert.Equal(t, ok, p.String())
	}
	for _, bad := range []string{"", "2025-1", "2025-13", "2025-00", "25-01", "2025/01", "2025-01-01"} {
		_, err := billing.ParsePeriod(bad)
		assert.ErrorIs(t, err, billing.ErrInvalidPeriod, bad)
		assert.True(t, billing.IsClientError(err), bad)
	}
}

func TestPeriodArithmetic(t *testing.T) {
	jan := billing.Period("2025-01")

	assert.Equal(t, billing.Period("2024-12"), jan.Prev())
	assert.Equal(t, billing.Period("2025-02"), jan.Next())
	assert.Equal(t, billing.Period("2024-07"), jan.AddMonths(-6))
	assert.True(t, jan.Before("2025-02"))
	assert.True(t, jan.After("2024-12"))
	assert.Equal(t, "January 2025", jan.Label())
	assert.True(t, jan.Contains(date(2025, time.January, 31)))
	assert.False(t, jan.Contains(date(2025, time.February, 1)))
}

func TestPeriodOf_UsesUTC(t *testing.T) {
	nairobi := time.FixedZone("EAT", 3*60*60)
	// 01:00 on Feb 1 in Nairobi is still January in UTC.
	local := time.Date(2025, time.February, 1, 1, 0, 0, 0, nairobi)

	assert.Equal(t, billing.Period("2025-01"), billing.PeriodOf(local))
}

// =============================================================================
// CONSUMPTION
// =============================================================================

func TestResolveConsumption(t *testing.T) {
	latest := &billing.WaterReading{Readings: []billing.UnitReading{{UnitID: "A1", Value: dec(150)}}}
	previous := &billing.WaterReading{Readings: []billing.UnitReading{{UnitID: "A1", Value: dec(130)}}}
	longTenant := billing.Tenant{LeaseStartDate: date(2024, time.June, 1)}
	newTenant := billing.Tenant{LeaseStartDate: date(2025, time.March, 3), InitialWaterReading: decPtr(140)}

	tests := []struct {
		name     string
		in       billing.ConsumptionInput
		consumed int64
		amount   int64
	}{
		{
			name:     "previous snapshot is the baseline",
			in:       billing.ConsumptionInput{Tenant: longTenant, Latest: latest, Previous: previous},
			consumed: 20, amount: 1000,
		},
		{
			name:     "lease month uses the initial reading",
			in:       billing.ConsumptionInput{Tenant: newTenant, Latest: latest, Previous: previous},
			consumed: 10, amount: 500,
		},
		{
			name: "lease month without initial reading starts at zero",
			in: billing.ConsumptionInput{
				Tenant: billing.Tenant{LeaseStartDate: date(2025, time.March, 3)},
				Latest: latest,
			},
			consumed: 150, amount: 7500,
		},
		{
			name: "meter reset clamps to zero",
			in: billing.ConsumptionInput{
				Tenant:   longTenant,
				Latest:   &billing.WaterReading{Readings: []billing.UnitReading{{UnitID: "A1", Value: dec(5)}}},
				Previous: previous,
			},
			consumed: 0, amount: 0,
		},
		{
			name:     "no snapshots",
			in:       billing.ConsumptionInput{Tenant: longTenant},
			consumed: 0, amount: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			in.UnitID = "A1"
			in.Mode = billing.WaterMetered
			in.Rate = dec(50)
			in.Period = "2025-03"

			got := billing.ResolveConsumption(in)

			assert.True(t, got.Consumed.Equal(dec(tt.consumed)), "consumed %s", got.Consumed)
			assert.True(t, got.Amount.Equal(dec(tt.amount)), "amount %s", got.Amount)
		})
	}
}

func TestResolveConsumption_FlatWaterIsFree(t *testing.T) {
	got := billing.ResolveConsumption(billing.ConsumptionInput{
		UnitID: "A1",
		Mode:   billing.WaterFlat,
		Rate:   dec(50),
		Period: "2025-03",
		Latest: &billing.WaterReading{Readings: []billing.UnitReading{{UnitID: "A1", Value: dec(150)}}},
	})

	assert.True(t, got.Amount.IsZero())
	assert.True(t, got.Consumed.IsZero())
}

func TestSnapshotConsumption(t *testing.T) {
	cur := billing.WaterReading{Readings: []billing.UnitReading{
		{UnitID: "A1", Value: dec(150)},
		{UnitID: "A2", Value: dec(10)},
	}}
	prev := &billing.WaterReading{Readings: []billing.UnitReading{{UnitID: "A1", Value: dec(130)}}}

	got := billing.SnapshotConsumption(cur, prev)
	require.Len(t, got, 2)
	assert.True(t, got[0].Consumption.Equal(dec(20)))
	assert.True(t, got[1].Consumption.Equal(dec(10)))

	oldest := billing.SnapshotConsumption(cur, nil)
	assert.True(t, oldest[0].Consumption.IsZero())
}
