package billing

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REPORTS - read-only aggregates over bills, tenants and expenses
// =============================================================================

type Reports struct {
	store Store
	clock Clock
}

func NewReports(store Store, clock Clock) *Reports {
	if clock == nil {
		clock = SystemClock
	}
	return &Reports{store: store, clock: clock}
}

type BalanceLine struct {
	TenantID string          `json:"tenantId"`
	Tenant   string          `json:"tenant"`
	Unit     string          `json:"unit"`
	Balance  decimal.Decimal `json:"balance"`
	Status   string          `json:"status"`
	Period   Period          `json:"period"`
}

// Balances lists every bill's outstanding position.
func (r *Reports) Balances(ctx context.Context, propertyID string) ([]BalanceLine, error) {
	bills, err := r.store.ListBills(ctx, BillFilter{PropertyID: propertyID})
	if err != nil {
		return nil, err
	}
	names, err := r.tenantNames(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	out := make([]BalanceLine, 0, len(bills))
	for _, b := range bills {
		status := "Settled"
		switch {
		case b.Balance.IsPositive():
			status = "Due"
		case b.Overpayment.IsPositive():
			status = "Overpaid"
		}
		name := names[b.TenantID]
		if name == "" {
			name = "N/A"
		}
		out = append(out, BalanceLine{
			TenantID: b.TenantID,
			Tenant:   name,
			Unit:     b.UnitID,
			Balance:  b.NetCarryOver(),
			Status:   status,
			Period:   b.Period,
		})
	}
	return out, nil
}

type OccupancyLine struct {
	Month     string          `json:"month"`
	Period    Period          `json:"period"`
	Occupancy decimal.Decimal `json:"occupancy"`
	Vacancy   decimal.Decimal `json:"vacancy"`
}

// Occupancy reports the share of units leased in each of the last months.
// A tenant counts for a month once its lease started by the month's end.
func (r *Reports) Occupancy(ctx context.Context, propertyID string, months int) ([]OccupancyLine, error) {
	if months <= 0 {
		months = 6
	}
	property, err := r.store.GetProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if property == nil {
		return nil, notFound("property", propertyID, ErrPropertyNotFound)
	}
	tenants, err := r.store.ListTenants(ctx, TenantFilter{PropertyID: propertyID})
	if err != nil {
		return nil, err
	}

	total := decimal.NewFromInt(int64(property.UnitCount()))
	hundred := decimal.NewFromInt(100)
	current := PeriodOf(r.clock.Now())

	out := make([]OccupancyLine, 0, months)
	for i := months - 1; i >= 0; i-- {
		p := current.AddMonths(-i)
		occupied := 0
		for _, t := range tenants {
			if _, ok := property.FindUnit(t.UnitID); ok && !t.LeasePeriod().After(p) {
				occupied++
			}
		}
		rate := decimal.Zero
		if total.IsPositive() {
			rate = decimal.NewFromInt(int64(occupied)).Div(total).Mul(hundred).Round(2)
		}
		out = append(out, OccupancyLine{
			Month:     p.Label(),
			Period:    p,
			Occupancy: rate,
			Vacancy:   hundred.Sub(rate),
		})
	}
	return out, nil
}

type UsageLine struct {
	TenantID   string          `json:"tenantId"`
	Tenant     string          `json:"tenant"`
	Unit       string          `json:"unit"`
	WaterUsage decimal.Decimal `json:"waterUsage"`
}

type UtilityReport struct {
	UsageByTenantUnit []UsageLine     `json:"usageByTenantUnit"`
	TotalWaterUsage   decimal.Decimal `json:"totalWaterUsage"`
}

// Utilities totals billed water consumption per tenant/unit.
func (r *Reports) Utilities(ctx context.Context, propertyID string) (UtilityReport, error) {
	bills, err := r.store.ListBills(ctx, BillFilter{PropertyID: propertyID})
	if err != nil {
		return UtilityReport{}, err
	}
	names, err := r.tenantNames(ctx, propertyID)
	if err != nil {
		return UtilityReport{}, err
	}

	type key struct{ tenant, unit string }
	usage := make(map[key]decimal.Decimal)
	var order []key
	total := decimal.Zero
	for _, b := range bills {
		k := key{b.TenantID, b.UnitID}
		if _, seen := usage[k]; !seen {
			order = append(order, k)
		}
		usage[k] = usage[k].Add(b.Water.Consumed)
		total = total.Add(b.Water.Consumed)
	}

	report := UtilityReport{UsageByTenantUnit: []UsageLine{}, TotalWaterUsage: total}
	for _, k := range order {
		report.UsageByTenantUnit = append(report.UsageByTenantUnit, UsageLine{
			TenantID:   k.tenant,
			Tenant:     names[k.tenant],
			Unit:       k.unit,
			WaterUsage: usage[k],
		})
	}
	return report, nil
}

type BillingStat struct {
	Period            Period          `json:"month"`
	BilledAmount      decimal.Decimal `json:"billedAmount"`
	PaidAmount        decimal.Decimal `json:"paidAmount"`
	OutstandingAmount decimal.Decimal `json:"outstandingAmount"`
	TotalBills        int             `json:"totalBills"`
	OverdueBills      int             `json:"overdueBills"`
}

// BillingStats groups bills by period, oldest first.
func (r *Reports) BillingStats(ctx context.Context, propertyID string) ([]BillingStat, error) {
	bills, err := r.store.ListBills(ctx, BillFilter{PropertyID: propertyID})
	if err != nil {
		return nil, err
	}
	byPeriod := make(map[Period]*BillingStat)
	for _, b := range bills {
		s, ok := byPeriod[b.Period]
		if !ok {
			s = &BillingStat{Period: b.Period}
			byPeriod[b.Period] = s
		}
		s.BilledAmount = s.BilledAmount.Add(b.TotalDue)
		s.PaidAmount = s.PaidAmount.Add(b.PaymentsReceived)
		s.OutstandingAmount = s.OutstandingAmount.Add(b.Balance)
		s.TotalBills++
		if b.Balance.IsPositive() {
			s.OverdueBills++
		}
	}

	out := make([]BillingStat, 0, len(byPeriod))
	for _, s := range byPeriod {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}

type FinancialLine struct {
	Period    Period          `json:"period"`
	Rent      decimal.Decimal `json:"rent"`
	Payments  decimal.Decimal `json:"payments"`
	Expenses  decimal.Decimal `json:"expenses"`
	NetIncome decimal.Decimal `json:"netIncome"`
}

// Financials compares rent billed, rent collected and expenses per period.
func (r *Reports) Financials(ctx context.Context, propertyID string) ([]FinancialLine, error) {
	bills, err := r.store.ListBills(ctx, BillFilter{PropertyID: propertyID})
	if err != nil {
		return nil, err
	}
	payments, err := r.store.ListPayments(ctx, PaymentFilter{PropertyID: propertyID, Type: PaymentRent})
	if err != nil {
		return nil, err
	}
	expenses, err := r.store.ListExpenses(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	lines := make(map[Period]*FinancialLine)
	line := func(p Period) *FinancialLine {
		l, ok := lines[p]
		if !ok {
			l = &FinancialLine{Period: p}
			lines[p] = l
		}
		return l
	}
	for _, b := range bills {
		l := line(b.Period)
		l.Rent = l.Rent.Add(b.Rent)
	}
	for _, p := range payments {
		l := line(p.Period)
		l.Payments = l.Payments.Add(p.Amount)
	}
	for _, e := range expenses {
		l := line(PeriodOf(e.Date))
		l.Expenses = l.Expenses.Add(e.Amount)
	}

	out := make([]FinancialLine, 0, len(lines))
	for _, l := range lines {
		l.NetIncome = l.Payments.Sub(l.Expenses)
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}

func (r *Reports) tenantNames(ctx context.Context, propertyID string) (map[string]string, error) {
	tenants, err := r.store.ListTenants(ctx, TenantFilter{PropertyID: propertyID})
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(tenants))
	for _, t := range tenants {
		names[t.ID] = t.Name
	}
	return names, nil
}
