package billing

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// CONSUMPTION RESOLVER
// =============================================================================

// ConsumptionInput is everything needed to price one unit's water for a period.
type ConsumptionInput struct {
	UnitID   string
	Mode     WaterMode
	Rate     decimal.Decimal
	Period   Period
	Latest   *WaterReading // most recent snapshot, may be nil
	Previous *WaterReading // second most recent snapshot, may be nil
	Tenant   Tenant
}

// ResolveConsumption computes the water charge for one unit.
//
// In the tenant's lease-start month the baseline is the tenant's initial
// reading, even when an earlier snapshot exists. Otherwise the baseline is
// the previous snapshot. Missing values count as zero and consumption is
// clamped at zero, so a meter reset never produces a credit.
func ResolveConsumption(in ConsumptionInput) WaterCharge {
	charge := WaterCharge{
		PrevReading:    decimal.Zero,
		CurrentReading: decimal.Zero,
		Consumed:       decimal.Zero,
		Rate:           in.Rate,
		Amount:         decimal.Zero,
	}
	if in.Mode != WaterMetered {
		return charge
	}

	current, _ := in.Latest.ValueFor(in.UnitID)

	var previous decimal.Decimal
	if in.Tenant.LeasePeriod() == in.Period {
		if in.Tenant.InitialWaterReading != nil {
			previous = *in.Tenant.InitialWaterReading
		}
	} else {
		previous, _ = in.Previous.ValueFor(in.UnitID)
	}

	consumed := current.Sub(previous)
	if consumed.IsNegative() {
		consumed = decimal.Zero
	}

	charge.PrevReading = previous
	charge.CurrentReading = current
	charge.Consumed = consumed
	charge.Amount = consumed.Mul(in.Rate)
	return charge
}

// UnitConsumption is one unit's usage between two consecutive snapshots.
type UnitConsumption struct {
	UnitID      string          `json:"unitId"`
	Consumption decimal.Decimal `json:"consumption"`
}

// SnapshotConsumption diffs a snapshot against the one before it. The
// oldest snapshot (prev == nil) reports zero for every unit.
func SnapshotConsumption(cur WaterReading, prev *WaterReading) []UnitConsumption {
	out := make([]UnitConsumption, 0, len(cur.Readings))
	for _, r := range cur.Readings {
		c := decimal.Zero
		if prev != nil {
			p, _ := prev.ValueFor(r.UnitID)
			c = r.Value.Sub(p)
			if c.IsNegative() {
				c = decimal.Zero
			}
		}
		out = append(out, UnitConsumption{UnitID: r.UnitID, Consumption: c})
	}
	return out
}
