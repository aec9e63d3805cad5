// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/prosuite/rent-ledger/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every record in maps guarded by one RWMutex. Values are
// copied on the way in and out so callers never share state with the store.
type Memory struct {
	mu         sync.RWMutex
	properties map[string]billing.Property
	tenants    map[string]billing.Tenant
	readings   map[string][]billing.WaterReading // by property
	payments   []billing.Payment
	bills      map[string]billing.Bill // by id
	billKeys   map[billing.BillKey]string
	invoices   map[string]billing.Invoice // by id
	expenses   []billing.Expense
}

var _ billing.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		properties: make(map[string]billing.Property),
		tenants:    make(map[string]billing.Tenant),
		readings:   make(map[string][]billing.WaterReading),
		bills:      make(map[string]billing.Bill),
		billKeys:   make(map[billing.BillKey]string),
		invoices:   make(map[string]billing.Invoice),
	}
}

// WithTx runs fn directly against the memory store. Each call is atomic on
// its own; fn as a whole is not isolated from concurrent writers.
func (m *Memory) WithTx(_ context.Context, fn func(billing.Store) error) error {
	return fn(m)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func (m *Memory) SaveProperty(_ context.Context, p billing.Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.properties[p.ID] = cloneProperty(p)
	return nil
}

func (m *Memory) GetProperty(_ context.Context, id string) (*billing.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.properties[id]
	if !ok {
		return nil, nil
	}
	c := cloneProperty(p)
	return &c, nil
}

func (m *Memory) ListProperties(_ context.Context) ([]billing.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]billing.Property, 0, len(m.properties))
	for _, p := range m.properties {
		out = append(out, cloneProperty(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) DeleteProperty(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.properties, id)
	return nil
}

func cloneProperty(p billing.Property) billing.Property {
	groups := make([]billing.UnitGroup, len(p.UnitGroups))
	for i, g := range p.UnitGroups {
		groups[i] = g
		groups[i].Units = append([]billing.Unit(nil), g.Units...)
	}
	p.UnitGroups = groups
	return p
}

// =============================================================================
// TENANTS
// =============================================================================

func (m *Memory) SaveTenant(_ context.Context, t billing.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = t
	return nil
}

func (m *Memory) GetTenant(_ context.Context, id string) (*billing.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) ListTenants(_ context.Context, f billing.TenantFilter) ([]billing.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	var out []billing.Tenant
	for _, t := range m.tenants {
		if f.PropertyID != "" && t.PropertyID != f.PropertyID {
			continue
		}
		if f.UnitID != "" && !strings.EqualFold(t.UnitID, f.UnitID) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Name), search) &&
			!strings.Contains(strings.ToLower(t.Phone), search) &&
			!strings.Contains(strings.ToLower(t.IDNumber), search) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) DeleteTenant(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tenants, id)
	return nil
}

// =============================================================================
// WATER READINGS
// =============================================================================

func (m *Memory) SaveWaterReading(_ context.Context, r billing.WaterReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	month := billing.PeriodOf(r.ReadingDate)
	for _, existing := range m.readings[r.PropertyID] {
		if billing.PeriodOf(existing.ReadingDate) == month {
			return billing.ErrDuplicateReading
		}
	}
	r.Readings = append([]billing.UnitReading(nil), r.Readings...)
	m.readings[r.PropertyID] = append(m.readings[r.PropertyID], r)
	return nil
}

func (m *Memory) LatestWaterReadings(_ context.Context, propertyID string, limit int) ([]billing.WaterReading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]billing.WaterReading(nil), m.readings[propertyID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ReadingDate.After(out[j].ReadingDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (m *Memory) SavePayment(_ context.Context, p billing.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Type == billing.PaymentDeposit {
		for _, existing := range m.payments {
			if existing.Type == billing.PaymentDeposit && existing.TenantID == p.TenantID && existing.UnitID == p.UnitID {
				return billing.ErrDuplicateDeposit
			}
		}
	}
	m.payments = append(m.payments, p)
	return nil
}

func (m *Memory) GetDeposit(_ context.Context, tenantID, unitID string) (*billing.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.Type != billing.PaymentDeposit || p.TenantID != tenantID {
			continue
		}
		if unitID != "" && p.UnitID != unitID {
			continue
		}
		c := p
		return &c, nil
	}
	return nil, nil
}

func (m *Memory) SumRentPayments(_ context.Context, key billing.BillKey) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := decimal.Zero
	for _, p := range m.payments {
		if p.Type == billing.PaymentRent &&
			p.PropertyID == key.PropertyID &&
			p.TenantID == key.TenantID &&
			p.UnitID == key.UnitID &&
			p.Period == key.Period {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

func (m *Memory) ListPayments(_ context.Context, f billing.PaymentFilter) ([]billing.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.Payment
	for _, p := range m.payments {
		if f.PropertyID != "" && p.PropertyID != f.PropertyID {
			continue
		}
		if f.TenantID != "" && p.TenantID != f.TenantID {
			continue
		}
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// =============================================================================
// BILLS
// =============================================================================

func (m *Memory) UpsertBill(_ context.Context, b billing.Bill) (billing.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := b.Key()
	if id, ok := m.billKeys[key]; ok {
		existing := m.bills[id]
		b.ID = existing.ID
		b.Payments = existing.Payments
		b.CreatedAt = existing.CreatedAt
		b.Version = existing.Version + 1
	} else {
		b.Version = 1
		m.billKeys[key] = b.ID
	}
	b = cloneBill(b)
	m.bills[b.ID] = b
	return cloneBill(b), nil
}

func (m *Memory) GetBill(_ context.Context, key billing.BillKey) (*billing.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.billKeys[key]
	if !ok {
		return nil, nil
	}
	b := cloneBill(m.bills[id])
	return &b, nil
}

func (m *Memory) GetBillByID(_ context.Context, id string) (*billing.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bills[id]
	if !ok {
		return nil, nil
	}
	c := cloneBill(b)
	return &c, nil
}

func (m *Memory) UpdateBill(_ context.Context, b billing.Bill, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.bills[b.ID]
	if !ok {
		return billing.ErrBillNotFound
	}
	if existing.Version != expectedVersion {
		return billing.ErrConcurrentModification
	}
	b.Version = expectedVersion + 1
	m.bills[b.ID] = cloneBill(b)
	return nil
}

func (m *Memory) ListBills(_ context.Context, f billing.BillFilter) ([]billing.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.Bill
	for _, b := range m.bills {
		if f.PropertyID != "" && b.PropertyID != f.PropertyID {
			continue
		}
		if f.TenantID != "" && b.TenantID != f.TenantID {
			continue
		}
		if f.Period != "" && b.Period != f.Period {
			continue
		}
		out = append(out, cloneBill(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		return out[i].UnitID < out[j].UnitID
	})
	return out, nil
}

func cloneBill(b billing.Bill) billing.Bill {
	b.OtherCharges = append([]billing.OtherCharge(nil), b.OtherCharges...)
	b.Payments = append([]string(nil), b.Payments...)
	return b
}

// =============================================================================
// INVOICES
// =============================================================================

func (m *Memory) CreateInvoice(_ context.Context, inv billing.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.invoices {
		if existing.BillID == inv.BillID || existing.InvoiceNumber == inv.InvoiceNumber {
			return billing.ErrDuplicateInvoice
		}
	}
	m.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (m *Memory) GetInvoice(_ context.Context, id string) (*billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, nil
	}
	c := cloneInvoice(inv)
	return &c, nil
}

func (m *Memory) GetInvoiceByBill(_ context.Context, billID string) (*billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inv := range m.invoices {
		if inv.BillID == billID {
			c := cloneInvoice(inv)
			return &c, nil
		}
	}
	return nil, nil
}

func (m *Memory) FindInvoice(_ context.Context, tenantID, unitID string, period billing.Period) (*billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inv := range m.invoices {
		if inv.TenantID == tenantID && inv.UnitID == unitID && inv.Period == period {
			c := cloneInvoice(inv)
			return &c, nil
		}
	}
	return nil, nil
}

func (m *Memory) UpdateInvoice(_ context.Context, inv billing.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoices[inv.ID]; !ok {
		return billing.ErrInvoiceNotFound
	}
	m.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (m *Memory) DeleteInvoice(_ context.Context, propertyID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || inv.PropertyID != propertyID {
		return false, nil
	}
	delete(m.invoices, id)
	return true, nil
}

func (m *Memory) ListInvoices(_ context.Context, f billing.InvoiceFilter) ([]billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.Invoice
	for _, inv := range m.invoices {
		if f.PropertyID != "" && inv.PropertyID != f.PropertyID {
			continue
		}
		if f.TenantID != "" && inv.TenantID != f.TenantID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, inv.Status) {
			continue
		}
		out = append(out, cloneInvoice(inv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func containsStatus(statuses []billing.InvoiceStatus, s billing.InvoiceStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func cloneInvoice(inv billing.Invoice) billing.Invoice {
	inv.LineItems = append([]billing.LineItem(nil), inv.LineItems...)
	return inv
}

// =============================================================================
// EXPENSES
// =============================================================================

func (m *Memory) SaveExpense(_ context.Context, e billing.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expenses = append(m.expenses, e)
	return nil
}

func (m *Memory) ListExpenses(_ context.Context, propertyID string) ([]billing.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.Expense
	for _, e := range m.expenses {
		if e.PropertyID == propertyID {
			out = append(out, e)
		}
	}
	return out, nil
}
