// Package pricing derives cost and completeness figures from a proposal.
// Every function is pure and total: invalid inputs are treated as zero and
// empty collections produce zero values.
package pricing

import (
	"math"

	"bidline/api/internal/proposal"
)

// HoursPerYear is the billable-hours basis for hourly rates.
const HoursPerYear = 1920

// RateMultiplier folds the indirect and profit rates into one burden factor.
// Fringe and overhead load direct labor, G&A applies to that loaded total,
// and profit applies last.
func RateMultiplier(rates proposal.Rates) float64 {
	r := rates.Sanitized()
	return (1 + r.Fringe + r.Overhead) * (1 + r.GAndA) * (1 + r.Profit)
}

// costMultiplier is RateMultiplier without profit.
func costMultiplier(rates proposal.Rates) float64 {
	r := rates.Sanitized()
	return (1 + r.Fringe + r.Overhead) * (1 + r.GAndA)
}

// EscalationFactor compounds rate once per year from the base year.
func EscalationFactor(yearsFromBase int, rate float64) float64 {
	if yearsFromBase <= 0 {
		return 1
	}
	return math.Pow(1+proposal.NonNegative(rate), float64(yearsFromBase))
}

// YearsFromBase is the escalation exponent of slot for an entity active in
// years. The base year is 0 and each active option year adds one, so skipped
// option years do not count. Inactive and unknown slots return -1.
func YearsFromBase(years []proposal.YearSlot, slot proposal.YearSlot) int {
	if !activeIn(years, slot) || !slot.Valid() {
		return -1
	}
	if slot == proposal.YearBase {
		return 0
	}
	n := 0
	for _, candidate := range proposal.AllYearSlots[1:] {
		if activeIn(years, candidate) {
			n++
		}
		if candidate == slot {
			break
		}
	}
	return n
}

// HourlyRate is the burdened hourly rate for a salary, with or without profit.
func HourlyRate(baseSalary float64, rates proposal.Rates, includeProfit bool) float64 {
	multiplier := costMultiplier(rates)
	if includeProfit {
		multiplier = RateMultiplier(rates)
	}
	return proposal.NonNegative(baseSalary) * multiplier / HoursPerYear
}

// RoleYearCost is the role's cost in one year, or 0 when the role is not
// active in that year.
func RoleYearCost(role proposal.Role, slot proposal.YearSlot, rates proposal.Rates) float64 {
	exponent := YearsFromBase(role.Years, slot)
	if exponent < 0 {
		return 0
	}
	salary := proposal.NonNegative(role.BaseSalary)
	fte := proposal.NonNegative(role.FTE)
	return salary * RateMultiplier(rates) * EscalationFactor(exponent, rates.Escalation) * fte
}

// RoleCost sums RoleYearCost over every active year.
func RoleCost(role proposal.Role, rates proposal.Rates) float64 {
	total := 0.0
	for _, slot := range proposal.AllYearSlots {
		total += RoleYearCost(role, slot, rates)
	}
	return total
}

// SubcontractorYearCost is billed rate × HoursPerYear × FTE, escalated like labor.
func SubcontractorYearCost(sub proposal.Subcontractor, slot proposal.YearSlot, escalation float64) float64 {
	exponent := YearsFromBase(sub.Years, slot)
	if exponent < 0 {
		return 0
	}
	rate := proposal.NonNegative(sub.BilledRate)
	fte := proposal.NonNegative(sub.FTE)
	return rate * HoursPerYear * fte * EscalationFactor(exponent, escalation)
}

func SubcontractorCost(sub proposal.Subcontractor, escalation float64) float64 {
	total := 0.0
	for _, slot := range proposal.AllYearSlots {
		total += SubcontractorYearCost(sub, slot, escalation)
	}
	return total
}

func LaborTotal(p proposal.Proposal) float64 {
	total := 0.0
	for _, role := range p.Roles {
		total += RoleCost(role, p.Rates)
	}
	return total
}

func SubcontractorTotal(p proposal.Proposal) float64 {
	total := 0.0
	for _, sub := range p.Subcontractors {
		total += SubcontractorCost(sub, p.Rates.Escalation)
	}
	return total
}

// TotalValue is the contract value: every role and subcontractor across
// every active year.
func TotalValue(p proposal.Proposal) float64 {
	return LaborTotal(p) + SubcontractorTotal(p)
}

// YearCost is one column of the cost-by-year table.
type YearCost struct {
	Year           proposal.YearSlot `json:"year"`
	Label          string            `json:"label"`
	Labor          float64           `json:"labor"`
	Subcontractors float64           `json:"subcontractors"`
	Total          float64           `json:"total"`
}

// YearBreakdown returns one entry per year slot in contract order.
func YearBreakdown(p proposal.Proposal) []YearCost {
	out := make([]YearCost, 0, len(proposal.AllYearSlots))
	for _, slot := range proposal.AllYearSlots {
		entry := YearCost{Year: slot, Label: slot.Label()}
		for _, role := range p.Roles {
			entry.Labor += RoleYearCost(role, slot, p.Rates)
		}
		for _, sub := range p.Subcontractors {
			entry.Subcontractors += SubcontractorYearCost(sub, slot, p.Rates.Escalation)
		}
		entry.Total = entry.Labor + entry.Subcontractors
		out = append(out, entry)
	}
	return out
}

// ODCTotal sums quantity × unit cost over the other direct costs.
func ODCTotal(p proposal.Proposal) float64 {
	total := 0.0
	for _, item := range p.ODCs {
		total += proposal.NonNegative(item.Quantity) * proposal.NonNegative(item.UnitCost)
	}
	return total
}

// PerDiemTotal sums (lodging + M&IE) × days × trips × staff.
func PerDiemTotal(p proposal.Proposal) float64 {
	total := 0.0
	for _, item := range p.PerDiem {
		daily := proposal.NonNegative(item.Lodging) + proposal.NonNegative(item.MIE)
		total += daily * proposal.NonNegative(item.Days) * proposal.NonNegative(item.Trips) * proposal.NonNegative(item.Staff)
	}
	return total
}

// TeamSize counts staffed positions: roles plus subcontractors.
func TeamSize(p proposal.Proposal) int {
	return len(p.Roles) + len(p.Subcontractors)
}

func activeIn(years []proposal.YearSlot, slot proposal.YearSlot) bool {
	for _, year := range years {
		if year == slot {
			return true
		}
	}
	return false
}
