package billing_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prosuite/rent-ledger/billing"
)

// =============================================================================
// PAYMENT POSTER
// =============================================================================

func TestRecordPayment_PartialThenOverpaid(t *testing.T) {
	// GIVEN: A January bill of 5000
	f := newFixture(t)
	p, tenant, _ := f.januaryBill(t)

	// WHEN: 3000 is paid
	first := f.pay(t, p, tenant, 3000, date(2025, time.January, 10))

	// THEN: The bill is partially paid with 2000 outstanding
	require.NotNil(t, first.Bill)
	assert.True(t, first.Bill.PaymentsReceived.Equal(dec(3000)))
	assert.True(t, first.Bill.Balance.Equal(dec(2000)))
	assert.Equal(t, billing.BillPartiallyPaid, first.Bill.Status)
	assert.Equal(t, billing.Period("2025-01"), first.Payment.Period)

	// WHEN: Another 2500 is paid
	second := f.pay(t, p, tenant, 2500, date(2025, time.January, 25))

	// THEN: 5500 received, nothing due, 500 over
	require.NotNil(t, second.Bill)
	assert.True(t, second.Bill.PaymentsReceived.Equal(dec(5500)))
	assert.True(t, second.Bill.Balance.IsZero())
	assert.True(t, second.Bill.Overpayment.Equal(dec(500)))
	assert.Equal(t, billing.BillOverpaid, second.Bill.Status)
	assert.Len(t, second.Bill.Payments, 2)
}

func TestRecordPayment_ExactAmountIsPaid(t *testing.T) {
	f := newFixture(t)
	p, tenant, _ := f.januaryBill(t)

	result := f.pay(t, p, tenant, 5000, date(2025, time.January, 10))

	require.NotNil(t, result.Bill)
	assert.Equal(t, billing.BillPaid, result.Bill.Status)
	assert.True(t, result.Bill.Balance.IsZero())
	assert.True(t, result.Bill.Overpayment.IsZero())
}

func TestRecordPayment_OtherPeriodDoesNotTouchBill(t *testing.T) {
	// GIVEN: A January bill
	f := newFixture(t)
	p, tenant, bill := f.januaryBill(t)

	// WHEN: A payment dated in February is recorded
	result := f.pay(t, p, tenant, 1000, date(2025, time.February, 2))

	// THEN: No bill for February yet; January is unchanged
	assert.Nil(t, result.Bill)
	jan, err := f.store.GetBillByID(f.ctx, bill.ID)
	require.NoError(t, err)
	assert.True(t, jan.PaymentsReceived.IsZero())
}

func TestRecordPayment_DuplicateDeposit(t *testing.T) {
	// GIVEN: A deposit already paid for the unit
	f := newFixture(t)
	p, tenant, _ := f.januaryBill(t)
	deposit := billing.PaymentInput{
		TenantID: tenant.ID,
		UnitID:   tenant.UnitID,
		Amount:   dec(4000),
		Date:     date(2025, time.January, 5),
		Method:   billing.MethodBank,
		Type:     billing.PaymentDeposit,
	}
	result, err := f.poster.Record(f.ctx, p.ID, deposit)
	require.NoError(t, err)
	assert.Nil(t, result.Bill, "deposits never touch bills")

	// WHEN: A second deposit is recorded
	_, err = f.poster.Record(f.ctx, p.ID, deposit)

	// THEN: It is rejected as a client error
	require.Error(t, err)
	assert.True(t, errors.Is(err, billing.ErrDuplicateDeposit))
	assert.True(t, billing.IsClientError(err))

	payments, err := f.store.ListPayments(f.ctx, billing.PaymentFilter{TenantID: tenant.ID})
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestRecordPayment_Validation(t *testing.T) {
	f := newFixture(t)
	valid := billing.PaymentInput{
		TenantID: "t1",
		UnitID:   "A1",
		Amount:   dec(100),
		Date:     date(2025, time.January, 5),
		Method:   billing.MethodCash,
		Type:     billing.PaymentRent,
	}

	tests := []struct {
		name   string
		mutate func(*billing.PaymentInput)
	}{
		{"zero amount", func(in *billing.PaymentInput) { in.Amount = dec(0) }},
		{"negative amount", func(in *billing.PaymentInput) { in.Amount = dec(-5) }},
		{"missing tenant", func(in *billing.PaymentInput) { in.TenantID = "" }},
		{"missing date", func(in *billing.PaymentInput) { in.Date = time.Time{} }},
		{"unknown method", func(in *billing.PaymentInput) { in.Method = "cheque" }},
		{"unknown type", func(in *billing.PaymentInput) { in.Type = "Fee" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := f.poster.Record(f.ctx, "prop", in)
			assert.True(t, billing.IsClientError(err), "got %v", err)
		})
	}
}

func TestRecordPayment_RefreshesIssuedInvoice(t *testing.T) {
	// GIVEN: An invoice issued for the January bill
	f := newFixture(t)
	p, tenant, _ := f.januaryBill(t)
	_, err := f.invoices.CreateForPeriod(f.ctx, p.ID, "2025-01")
	require.NoError(t, err)

	// WHEN: Part of it is paid
	result := f.pay(t, p, tenant, 3000, date(2025, time.January, 10))

	// THEN: The invoice follows
	require.NotNil(t, result.Invoice)
	assert.True(t, result.Invoice.AmountPaid.Equal(dec(3000)))
	assert.Equal(t, billing.InvoicePartiallyPaid, result.Invoice.Status)
}

func TestRecordPayment_InvoiceJudgedAgainstBillAfterLateCharge(t *testing.T) {
	// GIVEN: A 5000 invoice, then a 300 repair charge added to the bill
	f := newFixture(t)
	p, tenant, bill := f.januaryBill(t)
	_, err := f.invoices.CreateForPeriod(f.ctx, p.ID, "2025-01")
	require.NoError(t, err)
	_, err = f.generator.AddOtherCharge(f.ctx, bill.ID, billing.OtherCharge{Label: "Repairs", Amount: dec(300)})
	require.NoError(t, err)

	// WHEN: The original invoice amount is paid
	result := f.pay(t, p, tenant, 5000, date(2025, time.January, 20))

	// THEN: The bill still owes 300 and the invoice stays open
	require.NotNil(t, result.Bill)
	assert.True(t, result.Bill.Balance.Equal(dec(300)), "balance %s", result.Bill.Balance)
	assert.Equal(t, billing.BillPartiallyPaid, result.Bill.Status)
	require.NotNil(t, result.Invoice)
	assert.True(t, result.Invoice.AmountPaid.Equal(dec(5000)))
	assert.Equal(t, billing.InvoicePartiallyPaid, result.Invoice.Status)

	// AND: Paying the charge closes it
	result = f.pay(t, p, tenant, 300, date(2025, time.January, 21))
	require.NotNil(t, result.Invoice)
	assert.Equal(t, billing.InvoicePaid, result.Invoice.Status)
}
