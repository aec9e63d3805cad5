package billing_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prosuite/rent-ledger/billing"
	"github.com/prosuite/rent-ledger/billing/store"
)

// =============================================================================
// INVOICE SYNCHRONIZER
// =============================================================================

func TestCreateForPeriod_OneInvoicePerBill(t *testing.T) {
	// GIVEN: A January bill of 5000
	f := newFixture(t)
	p, _, bill := f.januaryBill(t)

	// WHEN: Invoices are created twice
	created, err := f.invoices.CreateForPeriod(f.ctx, p.ID, "2025-01")
	require.NoError(t, err)
	again, err := f.invoices.CreateForPeriod(f.ctx, p.ID, "2025-01")
	require.NoError(t, err)

	// THEN: Exactly one invoice exists
	require.Len(t, created, 1)
	assert.Empty(t, again)

	inv := created[0]
	assert.Equal(t, bill.ID, inv.BillID)
	assert.Equal(t, billing.InvoiceUnpaid, inv.Status)
	assert.True(t, strings.HasPrefix(inv.InvoiceNumber, "INV-"))
	assert.True(t, strings.HasSuffix(inv.InvoiceNumber, bill.ID[len(bill.ID)-5:]))
	assert.Equal(t, inv.IssueDate.AddDate(0, 0, billing.DefaultDueDays), inv.DueDate)
}

// lockedBillStore fails invoice lookups for one bill.
type lockedBillStore struct {
	*store.Memory
	billID string
}

func (s *lockedBillStore) GetInvoiceByBill(ctx context.Context, billID string) (*billing.Invoice, error) {
	if billID == s.billID {
		return nil, errors.New("database is locked")
	}
	return s.Memory.GetInvoiceByBill(ctx, billID)
}

func TestCreateForPeriod_ContinuesPastFailedBill(t *testing.T) {
	// GIVEN: Both units billed for January, and the store failing on A1's bill
	f := newFixture(t)
	p := f.createProperty(t)
	f.createTenant(t, p.ID, "A1", date(2025, time.January, 5))
	_, err := f.registry.CreateTenant(f.ctx, billing.Tenant{
		PropertyID:     p.ID,
		UnitID:         "A2",
		Name:           "Otieno Kamau",
		Email:          "otieno@example.com",
		LeaseStartDate: date(2025, time.January, 3),
	})
	require.NoError(t, err)
	result, err := f.generator.Generate(f.ctx, p.ID, "2025-01")
	require.NoError(t, err)
	require.Len(t, result.Bills, 2)

	var failing, healthy billing.Bill
	for _, b := range result.Bills {
		if b.UnitID == "A1" {
			failing = b
		} else {
			healthy = b
		}
	}
	invoices := billing.NewInvoiceSynchronizer(&lockedBillStore{Memory: f.store, billID: failing.ID}, f.clock, nil)

	// WHEN: Invoices are created
	created, err := invoices.CreateForPeriod(f.ctx, p.ID, "2025-01")

	// THEN: The healthy bill still gets its invoice
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, healthy.ID, created[0].BillID)

	// AND: The failed bill is picked up on the next run
	created, err = f.invoices.CreateForPeriod(f.ctx, p.ID, "2025-01")
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, failing.ID, created[0].BillID)
}

func TestCreateForPeriod_LineItems(t *testing.T) {
	f := newFixture(t)
	p, _, _ := f.januaryBill(t)

	created, err := f.invoices.CreateForPeriod(f.ctx, p.ID, "2025-01")
	require.NoError(t, err)
	require.Len(t, created, 1)
	items := created[0].LineItems

	require.Len(t, items, 2, "no garbage fee and nothing carried")
	assert.Equal(t, "Rent", items[0].Label)
	assert.True(t, items[0].Amount.Equal(dec(4000)))
	assert.Equal(t, "Water", items[1].Label)
	assert.True(t, items[1].Amount.Equal(dec(1000)))
	assert.Contains(t, items[1].Detail, "Consumed: 20")
	assert.True(t, created[0].TotalDue.Equal(dec(5000)))
}

func TestBuildLineItems_CarriedAmounts(t *testing.T) {
	bill := billing.Bill{
		Rent:               dec(4000),
		GarbageFee:         dec(200),
		OtherCharges:       []billing.OtherCharge{{Label: "Repairs", Amount: dec(300)}},
		CarriedBalance:     dec(700),
		CarriedOverpayment: dec(100),
	}

	items := billing.BuildLineItems(bill)

	labels := make([]string, len(items))
	for i, it := range items {
		labels[i] = it.Label
	}
	assert.Equal(t, []string{"Rent", "Garbage", "Other: Repairs", "Carried Forward Balance", "Carried Overpayment"}, labels)
	assert.True(t, items[4].Amount.Equal(dec(-100)))
	assert.True(t, billing.SumLineItems(items).Equal(dec(5100)))
}

func TestCreateForPeriod_NoBills(t *testing.T) {
	f := newFixture(t)
	p := f.createProperty(t)

	_, err := f.invoices.CreateForPeriod(f.ctx, p.ID, "2025-01")
	assert.True(t, billing.IsNotFound(err))

	_, err = f.invoices.CreateForPeriod(f.ctx, p.ID, "January")
	assert.True(t, billing.IsClientError(err))
}

func TestSweep_OverdueThenPaidThenTerminal(t *testing.T) {
	// GIVEN: An unpaid invoice
	f := newFixture(t)
	p, _, bill := f.januaryBill(t)
	created, err := f.invoices.CreateForPeriod(f.ctx, p.ID, "2025-01")
	require.NoError(t, err)
	inv := created[0]

	// WHEN: The sweep runs after the due date
	f.clock.Set(inv.DueDate.Add(24 * time.Hour))
	result, err := f.invoices.Sweep(f.ctx)
	require.NoError(t, err)

	// THEN: The invoice is overdue
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 1, result.Updated)
	got, err := f.store.GetInvoice(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceOverdue, got.Status)

	// WHEN: The bill becomes fully paid behind the invoice's back and the sweep runs
	stored, err := f.store.GetBillByID(f.ctx, bill.ID)
	require.NoError(t, err)
	stored.PaymentsReceived = dec(5000)
	require.NoError(t, f.store.UpdateBill(f.ctx, *stored, stored.Version))
	result, err = f.invoices.Sweep(f.ctx)
	require.NoError(t, err)

	// THEN: Overdue moves to Paid
	assert.Equal(t, 1, result.Updated)
	got, err = f.store.GetInvoice(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoicePaid, got.Status)
	assert.True(t, got.AmountPaid.Equal(dec(5000)))

	// AND: Paid invoices are no longer swept
	result, err = f.invoices.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Checked)
}

func TestSweep_SkipsInvoiceWithoutBill(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateInvoice(f.ctx, billing.Invoice{
		ID:            "inv-orphan",
		InvoiceNumber: "INV-1-xxxxx",
		PropertyID:    "prop",
		BillID:        "gone",
		Status:        billing.InvoiceUnpaid,
		DueDate:       date(2025, time.January, 5),
	}))

	result, err := f.invoices.Sweep(f.ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Updated)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	p, _, _ := f.januaryBill(t)
	created, err := f.invoices.CreateForPeriod(f.ctx, p.ID, "2025-01")
	require.NoError(t, err)
	inv := created[0]

	t.Run("no status before due date keeps Unpaid", func(t *testing.T) {
		got, err := f.invoices.UpdateStatus(f.ctx, inv.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, billing.InvoiceUnpaid, got.Status)
	})

	t.Run("no status after due date promotes to Overdue", func(t *testing.T) {
		f.clock.Set(inv.DueDate.Add(time.Hour))
		got, err := f.invoices.UpdateStatus(f.ctx, inv.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, billing.InvoiceOverdue, got.Status)
	})

	t.Run("explicit status wins", func(t *testing.T) {
		status := billing.InvoiceCancelled
		got, err := f.invoices.UpdateStatus(f.ctx, inv.ID, &status)
		require.NoError(t, err)
		assert.Equal(t, billing.InvoiceCancelled, got.Status)
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		status := billing.InvoiceStatus("Lost")
		_, err := f.invoices.UpdateStatus(f.ctx, inv.ID, &status)
		assert.True(t, billing.IsClientError(err))
	})

	t.Run("missing invoice", func(t *testing.T) {
		_, err := f.invoices.UpdateStatus(f.ctx, "missing", nil)
		assert.True(t, billing.IsNotFound(err))
	})
}

func TestSend_EmailsRenderedInvoice(t *testing.T) {
	// GIVEN: An issued invoice for a tenant with an email address
	f := newFixture(t)
	p, _, _ := f.januaryBill(t)
	created, err := f.invoices.CreateForPeriod(f.ctx, p.ID, "2025-01")
	require.NoError(t, err)
	inv := created[0]

	// WHEN: It is sent by email
	sent, err := f.invoices.Send(f.ctx, p.ID, inv.ID, billing.SendRequest{Method: "email"})
	require.NoError(t, err)

	// THEN: The message carries the rendered invoice and the send is recorded
	assert.True(t, sent.Sent.Email)
	require.NotNil(t, sent.Sent.SentAt)

	messages := f.outbox.Sent()
	require.Len(t, messages, 1)
	msg := messages[0]
	assert.Equal(t, "jane@example.com", msg.To)
	assert.Equal(t, "Invoice "+inv.InvoiceNumber, msg.Subject)
	assert.Equal(t, "Sunset Court", msg.FromName)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "invoice-"+inv.InvoiceNumber+".txt", msg.Attachments[0].Filename)
	assert.Contains(t, string(msg.Attachments[0].Content), "5000.00")
}

func TestSend_Rejections(t *testing.T) {
	f := newFixture(t)
	p, _, _ := f.januaryBill(t)
	created, err := f.invoices.CreateForPeriod(f.ctx, p.ID, "2025-01")
	require.NoError(t, err)
	inv := created[0]

	_, err = f.invoices.Send(f.ctx, p.ID, inv.ID, billing.SendRequest{Method: "whatsapp"})
	assert.True(t, billing.IsClientError(err))

	_, err = f.invoices.Send(f.ctx, "other-property", inv.ID, billing.SendRequest{Method: "email"})
	assert.True(t, billing.IsNotFound(err))

	assert.Empty(t, f.outbox.Sent())
}

func TestDelete_ScopedToProperty(t *testing.T) {
	f := newFixture(t)
	p, _, _ := f.januaryBill(t)
	created, err := f.invoices.CreateForPeriod(f.ctx, p.ID, "2025-01")
	require.NoError(t, err)
	inv := created[0]

	err = f.invoices.Delete(f.ctx, "other-property", inv.ID)
	assert.True(t, billing.IsNotFound(err))

	require.NoError(t, f.invoices.Delete(f.ctx, p.ID, inv.ID))
	got, err := f.store.GetInvoice(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
