/*
handlers.go - HTTP API handlers for the rent ledger

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to the billing services.

ENDPOINTS:
  Properties:
    GET    /api/properties                         List properties
    POST   /api/properties                         Create property
    GET    /api/properties/{propertyId}            Get property
    PUT    /api/properties/{propertyId}            Update property
    DELETE /api/properties/{propertyId}            Delete property (409 with tenants)

  Tenants:
    GET    /api/tenants?propertyId=&search=        List tenants
    POST   /api/tenants                            Create tenant, occupy unit
    GET    /api/tenants/{id}                       Get tenant
    DELETE /api/tenants/{id}                       Remove tenant, vacate unit

  Per property:
    POST|GET /api/properties/{propertyId}/water-readings
    POST|GET /api/properties/{propertyId}/payments
    POST|GET /api/properties/{propertyId}/expenses
    POST     /api/properties/{propertyId}/invoices/bulk
    GET      /api/properties/{propertyId}/invoices
    DELETE   /api/properties/{propertyId}/invoices/{id}
    PATCH    /api/properties/{propertyId}/invoices/{id}/status
    POST     /api/properties/{propertyId}/invoices/{id}/send

  Billing:
    POST   /api/billing/generate/{propertyId}      Generate bills for a period
    GET    /api/billing/{propertyId}?period=       Bills of a period
    GET    /api/billing/tenant/{tenantId}          Bills of a tenant
    POST   /api/billing/bills/{billId}/charges     Add an ad-hoc charge

  Tenant views:
    GET    /api/invoices/tenant/{tenantId}
    GET    /api/payments/tenant/{tenantId}
    GET    /api/payments/tenant/{tenantId}/deposit

  Reports (/api/reports/{propertyId}/...):
    balances, occupancy?months=, utilities, billing-stats, financials

  Admin:
    POST   /api/admin/sweep                        Run the invoice sweep now

ERROR HANDLING:
  Errors are returned as JSON {error, details} with:
  - 400: Validation errors, invalid input, duplicate deposit
  - 404: Resource not found
  - 409: Conflicts (duplicates, occupied unit, lost update)
  - 500: Internal errors

SECURITY NOTE:
  No authentication. Deploy behind an authenticating proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/prosuite/rent-ledger/billing"
	"github.com/prosuite/rent-ledger/logging"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     billing.Store
	Registry  *billing.Registry
	Generator *billing.BillGenerator
	Invoices  *billing.InvoiceSynchronizer
	Payments  *billing.PaymentPoster
	Reports   *billing.Reports
	Scheduler *SweepScheduler
	Metrics   *Metrics

	logger   *zap.Logger
	validate *validator.Validate
}

// HandlerConfig wires a Handler. Clock, Logger and Metrics are optional.
type HandlerConfig struct {
	Store          billing.Store
	Clock          billing.Clock
	Logger         *zap.Logger
	Metrics        *Metrics
	InvoiceOptions []billing.InvoiceOption
}

// NewHandler builds the billing services over one store. The generator and
// the poster share a lock set so they serialize per property and period.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = billing.SystemClock
	}
	locks := billing.NewKeyedMutex()

	return &Handler{
		Store:     cfg.Store,
		Registry:  billing.NewRegistry(cfg.Store, clock, logger),
		Generator: billing.NewBillGenerator(cfg.Store, locks, clock, logger),
		Invoices:  billing.NewInvoiceSynchronizer(cfg.Store, clock, logger, cfg.InvoiceOptions...),
		Payments:  billing.NewPaymentPoster(cfg.Store, locks, clock, logger),
		Reports:   billing.NewReports(cfg.Store, clock),
		Metrics:   cfg.Metrics,
		logger:    logger,
		validate:  newValidator(),
	}
}

// =============================================================================
// PROPERTY HANDLERS
// =============================================================================

func (h *Handler) ListProperties(w http.ResponseWriter, r *http.Request) {
	properties, err := h.Store.ListProperties(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(properties))
}

func (h *Handler) CreateProperty(w http.ResponseWriter, r *http.Request) {
	var req PropertyRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Registry.CreateProperty(r.Context(), req.toProperty())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) GetProperty(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "propertyId")
	p, err := h.Store.GetProperty(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Property not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdateProperty(w http.ResponseWriter, r *http.Request) {
	var req PropertyRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Registry.UpdateProperty(r.Context(), chi.URLParam(r, "propertyId"), req.toProperty())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeleteProperty(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.DeleteProperty(r.Context(), chi.URLParam(r, "propertyId")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TENANT HANDLERS
// =============================================================================

func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenants, err := h.Store.ListTenants(r.Context(), billing.TenantFilter{
		PropertyID: q.Get("propertyId"),
		Search:     q.Get("search"),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(tenants))
}

func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req TenantRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := req.toTenant()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	created, err := h.Registry.CreateTenant(r.Context(), t)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.Store.GetTenant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "Tenant not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.DeleteTenant(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// WATER READING HANDLERS
// =============================================================================

func (h *Handler) CreateWaterReading(w http.ResponseWriter, r *http.Request) {
	var req WaterReadingRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseDate("readingDate", req.ReadingDate)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	reading, err := h.Registry.RecordWaterReading(r.Context(), chi.URLParam(r, "propertyId"), date, req.Readings)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reading)
}

func (h *Handler) ListWaterReadings(w http.ResponseWriter, r *http.Request) {
	readings, err := h.Registry.ListWaterReadings(r.Context(), chi.URLParam(r, "propertyId"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(readings))
}

// =============================================================================
// BILL HANDLERS
// =============================================================================

func (h *Handler) GenerateBills(w http.ResponseWriter, r *http.Request) {
	var req GenerateBillsRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.Generator.Generate(r.Context(), chi.URLParam(r, "propertyId"), req.Period)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.observeGeneration(result.Generated)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("period")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "period query parameter is required", nil)
		return
	}
	period, err := billing.ParsePeriod(raw)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	bills, err := h.Store.ListBills(r.Context(), billing.BillFilter{
		PropertyID: chi.URLParam(r, "propertyId"),
		Period:     period,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(bills))
}

func (h *Handler) ListTenantBills(w http.ResponseWriter, r *http.Request) {
	bills, err := h.Store.ListBills(r.Context(), billing.BillFilter{TenantID: chi.URLParam(r, "tenantId")})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(bills))
}

func (h *Handler) AddBillCharge(w http.ResponseWriter, r *http.Request) {
	var req OtherChargeRequest
	if !h.decode(w, r, &req) {
		return
	}
	bill, err := h.Generator.AddOtherCharge(r.Context(), chi.URLParam(r, "billId"), billing.OtherCharge{
		Label:  req.Label,
		Amount: req.Amount,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

func (h *Handler) BulkCreateInvoices(w http.ResponseWriter, r *http.Request) {
	var req BulkInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	created, err := h.Invoices.CreateForPeriod(r.Context(), chi.URLParam(r, "propertyId"), req.Period)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.observeInvoices(len(created))
	}
	writeJSON(w, http.StatusCreated, BulkInvoiceResponse{Created: len(created), Invoices: orEmpty(created)})
}

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.Store.ListInvoices(r.Context(), billing.InvoiceFilter{PropertyID: chi.URLParam(r, "propertyId")})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(invoices))
}

func (h *Handler) ListTenantInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.Store.ListInvoices(r.Context(), billing.InvoiceFilter{TenantID: chi.URLParam(r, "tenantId")})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(invoices))
}

func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	err := h.Invoices.Delete(r.Context(), chi.URLParam(r, "propertyId"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	var req InvoiceStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	existing, err := h.Store.GetInvoice(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if existing == nil || existing.PropertyID != chi.URLParam(r, "propertyId") {
		writeError(w, http.StatusNotFound, "Invoice not found", nil)
		return
	}
	inv, err := h.Invoices.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) SendInvoice(w http.ResponseWriter, r *http.Request) {
	var req SendInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.Invoices.Send(r.Context(), chi.URLParam(r, "propertyId"), chi.URLParam(r, "id"), billing.SendRequest{
		Method:  req.Method,
		Subject: req.Subject,
		Message: req.Message,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	result, err := h.Payments.Record(r.Context(), chi.URLParam(r, "propertyId"), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.observePayment(string(in.Type))
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Store.ListPayments(r.Context(), billing.PaymentFilter{PropertyID: chi.URLParam(r, "propertyId")})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(payments))
}

func (h *Handler) ListTenantPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Store.ListPayments(r.Context(), billing.PaymentFilter{TenantID: chi.URLParam(r, "tenantId")})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if len(payments) == 0 {
		writeError(w, http.StatusNotFound, "No payments found for this tenant", nil)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (h *Handler) GetTenantDeposit(w http.ResponseWriter, r *http.Request) {
	deposit, err := h.Store.GetDeposit(r.Context(), chi.URLParam(r, "tenantId"), r.URL.Query().Get("unitId"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if deposit == nil {
		writeError(w, http.StatusNotFound, "No deposit found for this tenant", nil)
		return
	}
	writeJSON(w, http.StatusOK, deposit)
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	e, err := h.Registry.RecordExpense(r.Context(), chi.URLParam(r, "propertyId"), req.Amount, req.Description, date)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.Registry.ListExpenses(r.Context(), chi.URLParam(r, "propertyId"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(expenses))
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

func (h *Handler) BalancesReport(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Reports.Balances(r.Context(), chi.URLParam(r, "propertyId"))
	respondReport(h, w, r, lines, err)
}

func (h *Handler) OccupancyReport(w http.ResponseWriter, r *http.Request) {
	months := 6
	if raw := r.URL.Query().Get("months"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 60 {
			writeError(w, http.StatusBadRequest, "months must be an integer between 1 and 60", nil)
			return
		}
		months = n
	}
	lines, err := h.Reports.Occupancy(r.Context(), chi.URLParam(r, "propertyId"), months)
	respondReport(h, w, r, lines, err)
}

func (h *Handler) UtilitiesReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.Reports.Utilities(r.Context(), chi.URLParam(r, "propertyId"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) BillingStatsReport(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Reports.BillingStats(r.Context(), chi.URLParam(r, "propertyId"))
	respondReport(h, w, r, stats, err)
}

func (h *Handler) FinancialsReport(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Reports.Financials(r.Context(), chi.URLParam(r, "propertyId"))
	respondReport(h, w, r, lines, err)
}

func respondReport[T any](h *Handler, w http.ResponseWriter, r *http.Request, lines []T, err error) {
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(lines))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerSweep runs the invoice sweep immediately.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler != nil {
		run := h.Scheduler.RunNow(r.Context())
		if run.Error != "" {
			writeError(w, http.StatusInternalServerError, "Invoice sweep failed", errors.New(run.Error))
			return
		}
		writeJSON(w, http.StatusOK, run)
		return
	}

	start := time.Now()
	result, err := h.Invoices.Sweep(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepRun{StartedAt: start.UTC(), Duration: time.Since(start).String(), Result: result})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Store: "ok"}
	if p, ok := h.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			resp.Status, resp.Store = "degraded", err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeDomainError(w, r, validationError(err))
		return false
	}
	return true
}

// writeDomainError maps billing errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case billing.IsConflict(err), billing.IsRetryable(err):
		writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		logging.FromContext(r.Context(), h.logger).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// orEmpty keeps list endpoints from returning null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
