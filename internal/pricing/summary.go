package pricing

import (
	"math"
	"time"

	"bidline/api/internal/proposal"
)

// Summarize builds the record written to the remote store: solicitation
// metadata plus the derived aggregates.
func Summarize(p proposal.Proposal, now time.Time) proposal.Summary {
	return proposal.Summary{
		ID:                  p.ID,
		Title:               p.Solicitation.Title,
		Solicitation:        p.Solicitation.Number,
		Client:              p.Solicitation.ClientAgency,
		ContractType:        p.Solicitation.ContractType,
		DueDate:             p.Solicitation.DueDate,
		TotalValue:          roundCents(TotalValue(p)),
		TeamSize:            TeamSize(p),
		PeriodOfPerformance: FormatPeriod(p.Solicitation.Period),
		Progress:            Progress(p),
		UpdatedAt:           now.UTC(),
	}
}

// Report is the full pricing view handed to UI collaborators.
type Report struct {
	TotalValue          float64    `json:"totalValue"`
	LaborTotal          float64    `json:"laborTotal"`
	SubcontractorTotal  float64    `json:"subcontractorTotal"`
	ODCTotal            float64    `json:"odcTotal"`
	PerDiemTotal        float64    `json:"perDiemTotal"`
	RateMultiplier      float64    `json:"rateMultiplier"`
	TeamSize            int        `json:"teamSize"`
	Progress            int        `json:"progress"`
	PeriodOfPerformance string     `json:"periodOfPerformance"`
	Years               []YearCost `json:"years"`
	Roles               []RoleLine `json:"roles"`
}

type RoleLine struct {
	RoleID           string  `json:"roleId"`
	Title            string  `json:"title"`
	HourlyCost       float64 `json:"hourlyCost"`
	HourlyBillRate   float64 `json:"hourlyBillRate"`
	TotalCost        float64 `json:"totalCost"`
	HasJustification bool    `json:"hasJustification"`
}

func BuildReport(p proposal.Proposal) Report {
	report := Report{
		TotalValue:          TotalValue(p),
		LaborTotal:          LaborTotal(p),
		SubcontractorTotal:  SubcontractorTotal(p),
		ODCTotal:            ODCTotal(p),
		PerDiemTotal:        PerDiemTotal(p),
		RateMultiplier:      RateMultiplier(p.Rates),
		TeamSize:            TeamSize(p),
		Progress:            Progress(p),
		PeriodOfPerformance: FormatPeriod(p.Solicitation.Period),
		Years:               YearBreakdown(p),
		Roles:               make([]RoleLine, 0, len(p.Roles)),
	}
	for _, role := range p.Roles {
		_, justified := p.RateJustifications[role.ID]
		report.Roles = append(report.Roles, RoleLine{
			RoleID:           role.ID,
			Title:            role.Title,
			HourlyCost:       HourlyRate(role.BaseSalary, p.Rates, false),
			HourlyBillRate:   HourlyRate(role.BaseSalary, p.Rates, true),
			TotalCost:        RoleCost(role, p.Rates),
			HasJustification: justified,
		})
	}
	return report
}

func roundCents(value float64) float64 {
	return math.Round(value*100) / 100
}
