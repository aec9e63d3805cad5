/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logging:    Structured request log (zap), request-scoped logger in ctx
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Metrics:    Prometheus request metrics
  6. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/properties/*  Properties and everything scoped to one
  /api/tenants/*     Tenant lifecycle
  /api/billing/*     Bill generation and queries
  /api/invoices/*    Tenant invoice view
  /api/payments/*    Tenant payment views
  /api/reports/*     Read-only aggregates
  /api/admin/*       Operator actions
  /healthz, /metrics

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/prosuite/rent-ledger/logging"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	if h.Metrics != nil {
		r.Use(h.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/properties", func(r chi.Router) {
			r.Get("/", h.ListProperties)
			r.Post("/", h.CreateProperty)

			r.Route("/{propertyId}", func(r chi.Router) {
				r.Get("/", h.GetProperty)
				r.Put("/", h.UpdateProperty)
				r.Delete("/", h.DeleteProperty)

				r.Post("/water-readings", h.CreateWaterReading)
				r.Get("/water-readings", h.ListWaterReadings)

				r.Post("/payments", h.RecordPayment)
				r.Get("/payments", h.ListPayments)

				r.Post("/expenses", h.CreateExpense)
				r.Get("/expenses", h.ListExpenses)

				r.Route("/invoices", func(r chi.Router) {
					r.Get("/", h.ListInvoices)
					r.Post("/bulk", h.BulkCreateInvoices)
					r.Delete("/{id}", h.DeleteInvoice)
					r.Patch("/{id}/status", h.UpdateInvoiceStatus)
					r.Post("/{id}/send", h.SendInvoice)
				})
			})
		})

		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", h.ListTenants)
			r.Post("/", h.CreateTenant)
			r.Get("/{id}", h.GetTenant)
			r.Delete("/{id}", h.DeleteTenant)
		})

		r.Route("/billing", func(r chi.Router) {
			r.Post("/generate/{propertyId}", h.GenerateBills)
			r.Get("/tenant/{tenantId}", h.ListTenantBills)
			r.Post("/bills/{billId}/charges", h.AddBillCharge)
			r.Get("/{propertyId}", h.ListBills)
		})

		r.Get("/invoices/tenant/{tenantId}", h.ListTenantInvoices)

		r.Route("/payments/tenant/{tenantId}", func(r chi.Router) {
			r.Get("/", h.ListTenantPayments)
			r.Get("/deposit", h.GetTenantDeposit)
		})

		r.Route("/reports/{propertyId}", func(r chi.Router) {
			r.Get("/balances", h.BalancesReport)
			r.Get("/occupancy", h.OccupancyReport)
			r.Get("/utilities", h.UtilitiesReport)
			r.Get("/billing-stats", h.BillingStatsReport)
			r.Get("/financials", h.FinancialsReport)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.TriggerSweep)
		})
	})

	return r
}

// requestLogger logs one line per request and stores a logger tagged with
// the request id in the request context.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(logging.WithContext(r.Context(), reqLogger)))

			reqLogger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", r.RemoteAddr))
		})
	}
}
