/*
dto.go - Request bodies and response wrappers for the HTTP API

PURPOSE:
  Decouples the JSON contract from the billing domain types. Requests are
  validated with go-playground/validator struct tags before they reach the
  domain; amounts decode straight into decimal.Decimal (number or string).

NAMING CONVENTION:
  - *Request:  Request body types from clients
  - *Response: Response wrappers
  Domain types (billing.Bill, billing.Invoice, ...) are returned as-is; their
  json tags are the public contract.

DATES:
  Date fields accept "2006-01-02" or RFC 3339 and are interpreted in UTC.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/types.go: Domain JSON shapes
*/
package api

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/prosuite/rent-ledger/billing"
)

// =============================================================================
// PROPERTY
// =============================================================================

type PropertyRequest struct {
	Name           string                 `json:"propertyName" validate:"required"`
	Address        string                 `json:"address"`
	PropertyType   string                 `json:"propertyType"`
	ServiceRate    ServiceRateRequest     `json:"serviceRate"`
	PaymentDetails billing.PaymentDetails `json:"paymentDetails"`
	Landlord       LandlordRequest        `json:"landlord"`
	Utilities      UtilitiesRequest       `json:"utilities"`
	Units          []UnitGroupRequest     `json:"units" validate:"dive"`
}

type ServiceRateRequest struct {
	Model string          `json:"model" validate:"omitempty,oneof=Percent Fixed"`
	Value decimal.Decimal `json:"value"`
}

type LandlordRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email" validate:"omitempty,email"`
}

type UtilitiesRequest struct {
	Water     string          `json:"water" validate:"required,oneof=Metered Flat"`
	WaterRate decimal.Decimal `json:"waterRate"`
	Garbage   decimal.Decimal `json:"garbage"`
}

// UnitGroupRequest lists unit ids only. Occupancy is never client-set.
type UnitGroupRequest struct {
	Type    string          `json:"type" validate:"required"`
	Rent    decimal.Decimal `json:"rent"`
	Deposit decimal.Decimal `json:"deposit"`
	UnitIDs []string        `json:"unitIds" validate:"min=1,dive,required"`
}

func (req PropertyRequest) toProperty() billing.Property {
	p := billing.Property{
		Name:         strings.TrimSpace(req.Name),
		Address:      req.Address,
		PropertyType: req.PropertyType,
		ServiceRate: billing.ServiceRate{
			Model: billing.ServiceRateModel(req.ServiceRate.Model),
			Value: req.ServiceRate.Value,
		},
		PaymentDetails: req.PaymentDetails,
		Landlord:       billing.Landlord(req.Landlord),
		Utilities: billing.Utilities{
			Water:     billing.WaterMode(req.Utilities.Water),
			WaterRate: req.Utilities.WaterRate,
			Garbage:   req.Utilities.Garbage,
		},
	}
	for _, g := range req.Units {
		group := billing.UnitGroup{Type: g.Type, Rent: g.Rent, Deposit: g.Deposit}
		for _, id := range g.UnitIDs {
			group.Units = append(group.Units, billing.Unit{UnitID: id, Status: billing.UnitVacant})
		}
		p.UnitGroups = append(p.UnitGroups, group)
	}
	return p
}

// =============================================================================
// TENANT
// =============================================================================

type TenantRequest struct {
	PropertyID          string                    `json:"propertyId" validate:"required"`
	UnitID              string                    `json:"unitId" validate:"required"`
	Name                string                    `json:"name" validate:"required"`
	Phone               string                    `json:"phone" validate:"required"`
	Email               string                    `json:"email" validate:"omitempty,email"`
	IDNumber            string                    `json:"idNumber"`
	Rent                decimal.Decimal           `json:"rent"`
	Deposit             decimal.Decimal           `json:"deposit"`
	LeaseStartDate      string                    `json:"leaseStartDate"`
	InitialWaterReading *decimal.Decimal          `json:"initialWaterReading"`
	Notes               string                    `json:"notes"`
	Occupation          string                    `json:"occupation"`
	Gender              string                    `json:"gender"`
	EmergencyContact    *billing.EmergencyContact `json:"emergencyContact"`
}

func (req TenantRequest) toTenant() (billing.Tenant, error) {
	t := billing.Tenant{
		PropertyID:          req.PropertyID,
		UnitID:              req.UnitID,
		Name:                strings.TrimSpace(req.Name),
		Phone:               req.Phone,
		Email:               req.Email,
		IDNumber:            req.IDNumber,
		Rent:                req.Rent,
		Deposit:             req.Deposit,
		InitialWaterReading: req.InitialWaterReading,
		Notes:               req.Notes,
		Occupation:          req.Occupation,
		Gender:              req.Gender,
		EmergencyContact:    req.EmergencyContact,
	}
	if req.LeaseStartDate != "" {
		d, err := parseDate("leaseStartDate", req.LeaseStartDate)
		if err != nil {
			return billing.Tenant{}, err
		}
		t.LeaseStartDate = d
	}
	return t, nil
}

// =============================================================================
// READINGS, BILLS, INVOICES
// =============================================================================

type WaterReadingRequest struct {
	ReadingDate string                `json:"readingDate" validate:"required"`
	Readings    []billing.UnitReading `json:"readings" validate:"min=1"`
}

type GenerateBillsRequest struct {
	Period string `json:"period" validate:"required"`
}

type OtherChargeRequest struct {
	Label  string          `json:"label" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type BulkInvoiceRequest struct {
	Period string `json:"period" validate:"required"`
}

type InvoiceStatusRequest struct {
	Status *billing.InvoiceStatus `json:"status"`
}

type SendInvoiceRequest struct {
	Method  string `json:"method" validate:"required"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type BulkInvoiceResponse struct {
	Created  int               `json:"created"`
	Invoices []billing.Invoice `json:"invoices"`
}

// =============================================================================
// PAYMENTS AND EXPENSES
// =============================================================================

type PaymentRequest struct {
	TenantID  string          `json:"tenantId" validate:"required"`
	UnitID    string          `json:"unitId" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Date      string          `json:"date" validate:"required"`
	Method    string          `json:"method" validate:"required,oneof=mpesa bank cash"`
	Type      string          `json:"type" validate:"required,oneof=Rent Deposit"`
	Reference string          `json:"paymentReference"`
}

func (req PaymentRequest) toInput() (billing.PaymentInput, error) {
	d, err := parseDate("date", req.Date)
	if err != nil {
		return billing.PaymentInput{}, err
	}
	return billing.PaymentInput{
		TenantID:  req.TenantID,
		UnitID:    req.UnitID,
		Amount:    req.Amount,
		Date:      d,
		Method:    billing.PaymentMethod(req.Method),
		Type:      billing.PaymentType(req.Type),
		Reference: req.Reference,
	}, nil
}

type ExpenseRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required"`
	Date        string          `json:"date" validate:"required"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// =============================================================================
// VALIDATION
// =============================================================================

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError turns validator output into the billing validation error
// so the handler maps it like any other bad input.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := "failed " + fe.Tag()
		switch fe.Tag() {
		case "required":
			reason = "is required"
		case "oneof":
			reason = "must be one of: " + fe.Param()
		case "email":
			reason = "must be a valid email"
		case "min":
			reason = "must have at least " + fe.Param() + " item(s)"
		}
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		return &billing.ValidationError{Field: field, Reason: reason, Err: billing.ErrInvalidInput}
	}
	return &billing.ValidationError{Reason: err.Error(), Err: billing.ErrInvalidInput}
}

func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &billing.ValidationError{
		Field:  field,
		Reason: "must be a date (YYYY-MM-DD or RFC 3339)",
		Err:    billing.ErrInvalidInput,
	}
}
