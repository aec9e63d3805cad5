package billing

import (
	"strings"
)

// =============================================================================
// PROPERTY AGGREGATE - unit lookup and occupancy transitions
// =============================================================================

func normalizeUnitID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// locate returns the group and unit index for unitID, matching trimmed and
// case-insensitively.
func (p *Property) locate(unitID string) (int, int, bool) {
	want := normalizeUnitID(unitID)
	for gi := range p.UnitGroups {
		for ui := range p.UnitGroups[gi].Units {
			if normalizeUnitID(p.UnitGroups[gi].Units[ui].UnitID) == want {
				return gi, ui, true
			}
		}
	}
	return 0, 0, false
}

// FindUnit resolves a unit together with its group pricing.
func (p *Property) FindUnit(unitID string) (UnitDetails, bool) {
	gi, ui, ok := p.locate(unitID)
	if !ok {
		return UnitDetails{}, false
	}
	g := p.UnitGroups[gi]
	u := g.Units[ui]
	return UnitDetails{
		UnitID:   u.UnitID,
		UnitType: g.Type,
		Rent:     g.Rent,
		Deposit:  g.Deposit,
		Status:   u.Status,
		TenantID: u.TenantID,
	}, true
}

// SetUnitStatus moves a unit between vacant and occupied. An occupied unit
// is claimed by exactly one tenant: occupying a unit already held by a
// different tenant fails with ErrUnitOccupied.
func (p *Property) SetUnitStatus(unitID string, status UnitStatus, tenantID string) error {
	gi, ui, ok := p.locate(unitID)
	if !ok {
		return notFound("unit", unitID, ErrUnitNotFound)
	}
	u := &p.UnitGroups[gi].Units[ui]

	switch status {
	case UnitOccupied:
		if tenantID == "" {
			return invalid("tenantId", "occupied unit requires a tenant", ErrInvalidInput)
		}
		if u.Status == UnitOccupied && u.TenantID != "" && u.TenantID != tenantID {
			return &ConflictError{Reason: "unit " + u.UnitID + " is occupied by another tenant", Err: ErrUnitOccupied}
		}
		u.Status = UnitOccupied
		u.TenantID = tenantID
	case UnitVacant:
		u.Status = UnitVacant
		u.TenantID = ""
	default:
		return invalid("status", "unit status must be vacant or occupied", ErrInvalidStatus)
	}
	return nil
}

// Units flattens every unit across groups.
func (p *Property) Units() []UnitDetails {
	var out []UnitDetails
	for _, g := range p.UnitGroups {
		for _, u := range g.Units {
			out = append(out, UnitDetails{
				UnitID:   u.UnitID,
				UnitType: g.Type,
				Rent:     g.Rent,
				Deposit:  g.Deposit,
				Status:   u.Status,
				TenantID: u.TenantID,
			})
		}
	}
	return out
}

// UnitCount is the total number of units across groups.
func (p *Property) UnitCount() int {
	n := 0
	for _, g := range p.UnitGroups {
		n += len(g.Units)
	}
	return n
}

// IsMetered reports whether water is billed from meter readings.
func (p *Property) IsMetered() bool {
	return p.Utilities.Water == WaterMetered
}

// Validate checks the aggregate's structural invariants.
func (p *Property) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("propertyName", "is required", ErrInvalidInput)
	}
	if p.Utilities.Water != "" && p.Utilities.Water != WaterMetered && p.Utilities.Water != WaterFlat {
		return invalid("utilities.water", "must be Metered or Flat", ErrInvalidInput)
	}
	if p.Utilities.WaterRate.IsNegative() || p.Utilities.Garbage.IsNegative() {
		return invalid("utilities", "rates cannot be negative", ErrInvalidInput)
	}

	seen := make(map[string]bool)
	for gi := range p.UnitGroups {
		g := &p.UnitGroups[gi]
		if g.Rent.IsNegative() || g.Deposit.IsNegative() {
			return invalid("units", "rent and deposit cannot be negative", ErrInvalidInput)
		}
		for ui := range g.Units {
			u := &g.Units[ui]
			u.UnitID = strings.TrimSpace(u.UnitID)
			key := normalizeUnitID(u.UnitID)
			if key == "" {
				return invalid("unitId", "is required", ErrInvalidInput)
			}
			if seen[key] {
				return &ConflictError{Reason: "duplicate unit id " + u.UnitID, Err: ErrDuplicateUnit}
			}
			seen[key] = true
			if u.Status == "" {
				u.Status = UnitVacant
			}
			if u.Status == UnitOccupied && u.TenantID == "" {
				return invalid("unitId", "occupied unit "+u.UnitID+" has no tenant", ErrInvalidInput)
			}
		}
	}
	if p.PaymentDetails.Deadline == 0 {
		p.PaymentDetails.Deadline = 5
	}
	return nil
}

// carryOccupancy copies occupancy from prev for units that still exist.
func (p *Property) carryOccupancy(prev *Property) {
	for gi := range p.UnitGroups {
		for ui := range p.UnitGroups[gi].Units {
			u := &p.UnitGroups[gi].Units[ui]
			if d, ok := prev.FindUnit(u.UnitID); ok {
				u.Status = d.Status
				u.TenantID = d.TenantID
			}
		}
	}
}
