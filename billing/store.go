/*
store.go - Persistence interfaces for the billing engine

PURPOSE:
  Defines the boundary between the billing logic and the database. The
  engine only depends on these interfaces; implementations live in
  store/sqlite (durable) and billing/store (in-memory).

KEY INTERFACES:
  PropertyStore: Property aggregates with their unit groups
  TenantStore:   Leases
  ReadingStore:  Monthly water snapshots (one per property per month)
  PaymentStore:  Immutable payments plus the rent aggregation query
  BillStore:     Upsert per BillKey and version-checked updates
  InvoiceStore:  Invoices, unique per bill and per invoice number
  ExpenseStore:  Property expenses for financial reports
  Store:         All of the above plus WithTx

CONVENTIONS:
  - Get* methods return (nil, nil) when the record does not exist.
  - Uniqueness violations map to the sentinel errors in errors.go.
  - UpdateBill is a conditional write: it fails with
    ErrConcurrentModification unless the stored version equals
    expectedVersion, and bumps the version on success.

SEE ALSO:
  - store/sqlite/sqlite.go: Durable implementation
  - billing/store/memory.go: In-memory implementation
*/
package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

type PropertyStore interface {
	SaveProperty(ctx context.Context, p Property) error
	GetProperty(ctx context.Context, id string) (*Property, error)
	ListProperties(ctx context.Context) ([]Property, error)
	DeleteProperty(ctx context.Context, id string) error
}

type TenantStore interface {
	SaveTenant(ctx context.Context, t Tenant) error
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	ListTenants(ctx context.Context, filter TenantFilter) ([]Tenant, error)
	DeleteTenant(ctx context.Context, id string) error
}

// TenantFilter narrows ListTenants. Empty fields match everything.
type TenantFilter struct {
	PropertyID string
	UnitID     string
	Search     string // case-insensitive match on name, phone or id number
}

type ReadingStore interface {
	// SaveWaterReading fails with ErrDuplicateReading when the property
	// already has a reading in the same calendar month.
	SaveWaterReading(ctx context.Context, r WaterReading) error
	// LatestWaterReadings returns up to limit readings, newest first.
	// A limit <= 0 returns all of them.
	LatestWaterReadings(ctx context.Context, propertyID string, limit int) ([]WaterReading, error)
}

type PaymentStore interface {
	// SavePayment fails with ErrDuplicateDeposit for a second Deposit on
	// the same tenant and unit.
	SavePayment(ctx context.Context, p Payment) error
	GetDeposit(ctx context.Context, tenantID, unitID string) (*Payment, error)
	// SumRentPayments totals Rent payments recorded for the bill key.
	SumRentPayments(ctx context.Context, key BillKey) (decimal.Decimal, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)
}

// PaymentFilter narrows ListPayments. Results are newest first.
type PaymentFilter struct {
	PropertyID string
	TenantID   string
	Type       PaymentType
}

type BillStore interface {
	// UpsertBill inserts or replaces the bill for its BillKey, keeping the
	// stored id and payment links, and returns the stored bill.
	UpsertBill(ctx context.Context, b Bill) (Bill, error)
	GetBill(ctx context.Context, key BillKey) (*Bill, error)
	GetBillByID(ctx context.Context, id string) (*Bill, error)
	UpdateBill(ctx context.Context, b Bill, expectedVersion int64) error
	ListBills(ctx context.Context, filter BillFilter) ([]Bill, error)
}

// BillFilter narrows ListBills. Results are ordered by period then unit.
type BillFilter struct {
	PropertyID string
	TenantID   string
	Period     Period
}

type InvoiceStore interface {
	// CreateInvoice fails with ErrDuplicateInvoice if the bill already has one.
	CreateInvoice(ctx context.Context, inv Invoice) error
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	GetInvoiceByBill(ctx context.Context, billID string) (*Invoice, error)
	FindInvoice(ctx context.Context, tenantID, unitID string, period Period) (*Invoice, error)
	UpdateInvoice(ctx context.Context, inv Invoice) error
	DeleteInvoice(ctx context.Context, propertyID, id string) (bool, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
}

// InvoiceFilter narrows ListInvoices. Results are newest first.
type InvoiceFilter struct {
	PropertyID string
	TenantID   string
	Statuses   []InvoiceStatus
}

type ExpenseStore interface {
	SaveExpense(ctx context.Context, e Expense) error
	ListExpenses(ctx context.Context, propertyID string) ([]Expense, error)
}

// Store is the full persistence surface used by the engine.
type Store interface {
	PropertyStore
	TenantStore
	ReadingStore
	PaymentStore
	BillStore
	InvoiceStore
	ExpenseStore

	// WithTx runs fn against a store bound to one transaction. Returning an
	// error rolls everything back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
