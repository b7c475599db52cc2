package proposal

import (
	"strings"

	"bidline/api/internal/util"
)

const (
	UntitledRole        = "Untitled Role"
	UntitledRequirement = "Untitled Requirement"
)

// ExtractedRole is a candidate role produced by document extraction. Any
// field may be missing.
type ExtractedRole struct {
	Title         string   `json:"title"`
	LaborCategory string   `json:"laborCategory"`
	BaseSalary    *float64 `json:"baseSalary"`
	FTE           *float64 `json:"fte"`
	Years         []string `json:"years"`
}

// ExtractedRequirement is a candidate requirement produced by document extraction.
type ExtractedRequirement struct {
	Reference   string `json:"reference"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// NewRole applies the same defaults as the interactive "add role" path.
func NewRole(title string) Role {
	return Role{
		ID:    util.NewID("role"),
		Title: firstNonBlank(title, UntitledRole),
		FTE:   1,
		Years: []YearSlot{YearBase},
	}
}

func NewSubcontractor(name string) Subcontractor {
	return Subcontractor{
		ID:    util.NewID("sub"),
		Name:  strings.TrimSpace(name),
		FTE:   1,
		Years: []YearSlot{YearBase},
	}
}

func NewWBSElement(code, title string) WBSElement {
	return WBSElement{
		ID:    util.NewID("wbs"),
		Code:  strings.TrimSpace(code),
		Title: strings.TrimSpace(title),
	}
}

// RoleFromExtracted converts a partial extraction record. Missing title gets
// a placeholder, missing or invalid money becomes 0, missing FTE becomes 1
// and missing years become the base year. Year values that cannot be read are
// returned as rejected; when every listed year is rejected the role gets no
// years rather than a guessed base year.
func RoleFromExtracted(record ExtractedRole) (role Role, rejected []string) {
	role = NewRole(record.Title)
	role.LaborCategory = strings.TrimSpace(record.LaborCategory)
	if record.BaseSalary != nil {
		role.BaseSalary = NonNegative(*record.BaseSalary)
	}
	if record.FTE != nil {
		role.FTE = NonNegative(*record.FTE)
	}
	if len(record.Years) == 0 {
		return role, nil
	}
	years := make([]YearSlot, 0, len(record.Years))
	for _, raw := range record.Years {
		slot, ok := ParseYearSlot(raw)
		if !ok {
			rejected = append(rejected, raw)
			continue
		}
		years = append(years, slot)
	}
	role.Years = NormalizeYears(years)
	return role, rejected
}

func RequirementFromExtracted(record ExtractedRequirement) Requirement {
	return Requirement{
		ID:          util.NewID("req"),
		Reference:   strings.TrimSpace(record.Reference),
		Title:       firstNonBlank(record.Title, UntitledRequirement),
		Description: strings.TrimSpace(record.Description),
		Category:    strings.TrimSpace(record.Category),
	}
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
