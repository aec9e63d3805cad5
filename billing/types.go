/*
Package billing provides the monthly billing engine for the property ledger.

PURPOSE:
  Turns raw property state (leases, meter readings, payments, prior bills)
  into one Bill per tenant per period, derives itemized Invoices from those
  bills, and keeps both in step as payments arrive.

KEY CONCEPTS IN THIS FILE (types.go):
  - Property:     Aggregate owning unit groups and their occupancy
  - Tenant:       A lease on exactly one unit of one property
  - WaterReading: One meter snapshot per property per month
  - Bill:         Per (property, tenant, unit, period) financial statement
  - Invoice:      Line-itemized document derived 1:1 from a Bill
  - Payment:      Immutable receipt, Rent or Deposit

MONEY:
  All amounts and meter values are decimal.Decimal. Floats never touch
  money.

SEE ALSO:
  - generator.go: Bill Generator
  - invoices.go:  Invoice Synchronizer
  - payments.go:  Payment Poster
  - store.go:     Persistence interfaces
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PROPERTY
// =============================================================================

type UnitStatus string

const (
	UnitVacant   UnitStatus = "vacant"
	UnitOccupied UnitStatus = "occupied"
)

type WaterMode string

const (
	WaterMetered WaterMode = "Metered"
	WaterFlat    WaterMode = "Flat"
)

type ServiceRateModel string

const (
	ServiceRatePercent ServiceRateModel = "Percent"
	ServiceRateFixed   ServiceRateModel = "Fixed"
)

// Property is the aggregate root for units and their occupancy.
// Unit state is only changed through SetUnitStatus.
type Property struct {
	ID             string         `json:"id"`
	Name           string         `json:"propertyName"`
	Address        string         `json:"address"`
	PropertyType   string         `json:"propertyType"`
	ServiceRate    ServiceRate    `json:"serviceRate"`
	PaymentDetails PaymentDetails `json:"paymentDetails"`
	Landlord       Landlord       `json:"landlord"`
	Utilities      Utilities      `json:"utilities"`
	UnitGroups     []UnitGroup    `json:"units"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

type ServiceRate struct {
	Model ServiceRateModel `json:"model"`
	Value decimal.Decimal  `json:"value"`
}

type PaymentDetails struct {
	AccountName   string `json:"accountName,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
	Bank          string `json:"bank,omitempty"`
	Deadline      int    `json:"deadline"`
}

type Landlord struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

type Utilities struct {
	Water     WaterMode       `json:"water"`
	WaterRate decimal.Decimal `json:"waterRate"`
	Garbage   decimal.Decimal `json:"garbage"`
}

// UnitGroup is a set of units sharing a type and pricing.
type UnitGroup struct {
	Type    string          `json:"type"`
	Rent    decimal.Decimal `json:"rent"`
	Deposit decimal.Decimal `json:"deposit"`
	Units   []Unit          `json:"unitIds"`
}

type Unit struct {
	UnitID   string     `json:"unitId"`
	Status   UnitStatus `json:"status"`
	TenantID string     `json:"tenant,omitempty"`
}

// UnitDetails is a flattened view of one unit and its group pricing.
type UnitDetails struct {
	UnitID   string
	UnitType string
	Rent     decimal.Decimal
	Deposit  decimal.Decimal
	Status   UnitStatus
	TenantID string
}

// =============================================================================
// TENANT
// =============================================================================

type Tenant struct {
	ID                  string            `json:"id"`
	PropertyID          string            `json:"propertyId"`
	UnitID              string            `json:"unitId"`
	Name                string            `json:"name"`
	Phone               string            `json:"phone"`
	Email               string            `json:"email,omitempty"`
	IDNumber            string            `json:"idNumber"`
	Rent                decimal.Decimal   `json:"rent"`
	Deposit             decimal.Decimal   `json:"deposit"`
	LeaseStartDate      time.Time         `json:"leaseStartDate"`
	InitialWaterReading *decimal.Decimal  `json:"initialWaterReading,omitempty"`
	Notes               string            `json:"notes,omitempty"`
	Occupation          string            `json:"occupation,omitempty"`
	Gender              string            `json:"gender,omitempty"`
	EmergencyContact    *EmergencyContact `json:"emergencyContact,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
}

// LeasePeriod is the billing period in which the lease starts.
func (t Tenant) LeasePeriod() Period {
	return PeriodOf(t.LeaseStartDate)
}

// =============================================================================
// WATER READINGS
// =============================================================================

// WaterReading is a property-wide meter snapshot. At most one per month.
type WaterReading struct {
	ID          string        `json:"id"`
	PropertyID  string        `json:"propertyId"`
	ReadingDate time.Time     `json:"readingDate"`
	Readings    []UnitReading `json:"readings"`
	CreatedAt   time.Time     `json:"createdAt"`
}

type UnitReading struct {
	UnitID string          `json:"unitId"`
	Value  decimal.Decimal `json:"readingValue"`
}

// ValueFor returns the reading for a unit and whether it was present.
func (w *WaterReading) ValueFor(unitID string) (decimal.Decimal, bool) {
	if w == nil {
		return decimal.Zero, false
	}
	for _, r := range w.Readings {
		if r.UnitID == unitID {
			return r.Value, true
		}
	}
	return decimal.Zero, false
}

// =============================================================================
// BILL
// =============================================================================

type BillStatus string

const (
	BillUnpaid        BillStatus = "Unpaid"
	BillPartiallyPaid BillStatus = "Partially Paid"
	BillPaid          BillStatus = "Paid"
	BillOverpaid      BillStatus = "Overpaid"
)

// BillKey identifies the single bill a tenant can have per unit and period.
type BillKey struct {
	PropertyID string
	TenantID   string
	UnitID     string
	Period     Period
}

type Bill struct {
	ID                 string          `json:"id"`
	PropertyID         string          `json:"propertyId"`
	TenantID           string          `json:"tenantId"`
	UnitID             string          `json:"unitId"`
	Period             Period          `json:"period"`
	Rent               decimal.Decimal `json:"rent"`
	GarbageFee         decimal.Decimal `json:"garbageFee"`
	Water              WaterCharge     `json:"water"`
	OtherCharges       []OtherCharge   `json:"otherCharges,omitempty"`
	TotalDue           decimal.Decimal `json:"totalDue"`
	PaymentsReceived   decimal.Decimal `json:"paymentsReceived"`
	Balance            decimal.Decimal `json:"balance"`
	Overpayment        decimal.Decimal `json:"overpayment"`
	CarriedBalance     decimal.Decimal `json:"carriedBalance"`
	CarriedOverpayment decimal.Decimal `json:"carriedOverpayment"`
	Status             BillStatus      `json:"status"`
	Payments           []string        `json:"payments,omitempty"`
	Version            int64           `json:"version"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

func (b Bill) Key() BillKey {
	return BillKey{PropertyID: b.PropertyID, TenantID: b.TenantID, UnitID: b.UnitID, Period: b.Period}
}

// NetCarryOver is what this bill pushes into the next period.
// Negative values are a credit.
func (b Bill) NetCarryOver() decimal.Decimal {
	return b.Balance.Sub(b.Overpayment)
}

// HasPayment reports whether a payment id is already linked.
func (b Bill) HasPayment(paymentID string) bool {
	for _, id := range b.Payments {
		if id == paymentID {
			return true
		}
	}
	return false
}

type WaterCharge struct {
	PrevReading    decimal.Decimal `json:"prevReading"`
	CurrentReading decimal.Decimal `json:"currentReading"`
	Consumed       decimal.Decimal `json:"consumed"`
	Rate           decimal.Decimal `json:"rate"`
	Amount         decimal.Decimal `json:"amount"`
}

type OtherCharge struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// =============================================================================
// INVOICE
// =============================================================================

type InvoiceStatus string

const (
	InvoiceUnpaid        InvoiceStatus = "Unpaid"
	InvoicePartiallyPaid InvoiceStatus = "Partially Paid"
	InvoicePaid          InvoiceStatus = "Paid"
	InvoiceOverdue       InvoiceStatus = "Overdue"
	InvoiceCancelled     InvoiceStatus = "Cancelled"
)

// InvoiceStatuses lists every accepted invoice status.
var InvoiceStatuses = []InvoiceStatus{
	InvoiceUnpaid, InvoicePartiallyPaid, InvoicePaid, InvoiceOverdue, InvoiceCancelled,
}

func (s InvoiceStatus) Valid() bool {
	for _, v := range InvoiceStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal statuses are never changed by automatic reconciliation.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoicePaid || s == InvoiceCancelled
}

type Invoice struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoiceNumber"`
	PropertyID    string          `json:"propertyId"`
	TenantID      string          `json:"tenantId"`
	UnitID        string          `json:"unitId"`
	BillID        string          `json:"bill"`
	Period        Period          `json:"period"`
	IssueDate     time.Time       `json:"issueDate"`
	DueDate       time.Time       `json:"dueDate"`
	Status        InvoiceStatus   `json:"status"`
	LineItems     []LineItem      `json:"lineItems"`
	TotalDue      decimal.Decimal `json:"totalDue"`
	AmountPaid    decimal.Decimal `json:"amountPaid"`
	Sent          SentRecord      `json:"sent"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type LineItem struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
	Detail string          `json:"detail,omitempty"`
}

type SentRecord struct {
	Email    bool       `json:"email"`
	WhatsApp bool       `json:"whatsapp"`
	SentAt   *time.Time `json:"sentAt,omitempty"`
}

// =============================================================================
// PAYMENT
// =============================================================================

type PaymentType string

const (
	PaymentRent    PaymentType = "Rent"
	PaymentDeposit PaymentType = "Deposit"
)

type PaymentMethod string

const (
	MethodMpesa PaymentMethod = "mpesa"
	MethodBank  PaymentMethod = "bank"
	MethodCash  PaymentMethod = "cash"
)

// Payment is immutable once recorded.
type Payment struct {
	ID         string          `json:"id"`
	PropertyID string          `json:"propertyId"`
	TenantID   string          `json:"tenantId"`
	UnitID     string          `json:"unitId"`
	Amount     decimal.Decimal `json:"amount"`
	Date       time.Time       `json:"date"`
	Method     PaymentMethod   `json:"method"`
	Reference  string          `json:"paymentReference,omitempty"`
	Type       PaymentType     `json:"type"`
	Period     Period          `json:"period"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// =============================================================================
// EXPENSE
// =============================================================================

type Expense struct {
	ID          string          `json:"id"`
	PropertyID  string          `json:"propertyId"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	CreatedAt   time.Time       `json:"createdAt"`
}
