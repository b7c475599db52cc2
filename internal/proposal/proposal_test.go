package proposal

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsDefaultReset(t *testing.T) {
	p := New("prop_1")

	assert.Equal(t, "prop_1", p.ID)
	assert.Empty(t, p.Roles)
	assert.NotNil(t, p.Roles)
	assert.NotNil(t, p.RateJustifications)
	assert.Equal(t, Solicitation{}, p.Solicitation)
	assert.Equal(t, DefaultRates(), p.Rates)
}

func TestNormalizeYears(t *testing.T) {
	years := NormalizeYears([]YearSlot{YearOption2, "bogus", YearBase, YearOption2})
	assert.Equal(t, []YearSlot{YearBase, YearOption2}, years)

	assert.NotNil(t, NormalizeYears(nil))
}

func TestParseYearSlot(t *testing.T) {
	cases := map[string]YearSlot{
		"base":          YearBase,
		"Base Year":     YearBase,
		"OY1":           YearOption1,
		"option 3":      YearOption3,
		"Option-Year-4": YearOption4,
	}
	for raw, want := range cases {
		got, ok := ParseYearSlot(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}

	_, ok := ParseYearSlot("option5")
	assert.False(t, ok)
}

func TestSanitizeClampsInvalidValues(t *testing.T) {
	p := Proposal{
		Roles: []Role{{BaseSalary: -10, FTE: math.NaN(), Years: []YearSlot{"x", YearBase}}},
		Subcontractors: []Subcontractor{{BilledRate: math.Inf(1), FTE: 2}},
		Rates:          Rates{Fringe: -0.1, Escalation: 0.03},
	}
	p.Solicitation.Period.OptionYears = 9

	p.Sanitize()

	assert.Zero(t, p.Roles[0].BaseSalary)
	assert.Zero(t, p.Roles[0].FTE)
	assert.Equal(t, []YearSlot{YearBase}, p.Roles[0].Years)
	assert.Zero(t, p.Subcontractors[0].BilledRate)
	assert.Equal(t, 2.0, p.Subcontractors[0].FTE)
	assert.NotNil(t, p.Subcontractors[0].Years)
	assert.Zero(t, p.Rates.Fringe)
	assert.Equal(t, 0.03, p.Rates.Escalation)
	assert.Equal(t, MaxOptionYears, p.Solicitation.Period.OptionYears)
	assert.NotNil(t, p.ODCs)
	assert.NotNil(t, p.RateJustifications)
}

func TestCloneDoesNotShareState(t *testing.T) {
	p := New("prop_1")
	p.Roles = append(p.Roles, Role{ID: "r1", Years: []YearSlot{YearBase}})
	p.RateJustifications["r1"] = RateJustification{Method: "survey"}

	clone := p.Clone()
	clone.Roles[0].Years[0] = YearOption1
	clone.RateJustifications["r1"] = RateJustification{Method: "changed"}

	assert.Equal(t, YearBase, p.Roles[0].Years[0])
	assert.Equal(t, "survey", p.RateJustifications["r1"].Method)
}

func TestPeriodSlots(t *testing.T) {
	assert.Equal(t, []YearSlot{YearBase, YearOption1, YearOption2}, PeriodOfPerformance{BaseYear: true, OptionYears: 2}.Slots())
	assert.Equal(t, []YearSlot{YearOption1}, PeriodOfPerformance{OptionYears: 1}.Slots())
	assert.Empty(t, PeriodOfPerformance{}.Slots())
}

func TestRoleFromExtractedAppliesDefaults(t *testing.T) {
	role, rejected := RoleFromExtracted(ExtractedRole{})
	assert.Empty(t, rejected)

	assert.Equal(t, UntitledRole, role.Title)
	assert.Zero(t, role.BaseSalary)
	assert.Equal(t, 1.0, role.FTE)
	assert.Equal(t, []YearSlot{YearBase}, role.Years)
	assert.True(t, strings.HasPrefix(role.ID, "role_"))
}

func TestRoleFromExtractedKeepsValidFields(t *testing.T) {
	salary := 120000.0
	fte := 0.5
	role, rejected := RoleFromExtracted(ExtractedRole{
		Title:         "  Program Manager ",
		LaborCategory: "PM III",
		BaseSalary:    &salary,
		FTE:           &fte,
		Years:         []string{"OY2", "base", "nonsense"},
	})

	assert.Equal(t, "Program Manager", role.Title)
	assert.Equal(t, "PM III", role.LaborCategory)
	assert.Equal(t, 120000.0, role.BaseSalary)
	assert.Equal(t, 0.5, role.FTE)
	assert.Equal(t, []YearSlot{YearBase, YearOption2}, role.Years)
	assert.Equal(t, []string{"nonsense"}, rejected)
}

func TestRoleFromExtractedWithOnlyUnreadableYears(t *testing.T) {
	role, rejected := RoleFromExtracted(ExtractedRole{Title: "Analyst", Years: []string{"option7", "later"}})

	assert.Empty(t, role.Years)
	assert.NotNil(t, role.Years)
	assert.Equal(t, []string{"option7", "later"}, rejected)
}

func TestRoleFromExtractedRejectsNegativeSalary(t *testing.T) {
	salary := -5.0
	role, _ := RoleFromExtracted(ExtractedRole{Title: "Analyst", BaseSalary: &salary})
	assert.Zero(t, role.BaseSalary)
}

func TestRequirementFromExtracted(t *testing.T) {
	req := RequirementFromExtracted(ExtractedRequirement{Reference: "L.4.2"})
	assert.Equal(t, UntitledRequirement, req.Title)
	assert.Equal(t, "L.4.2", req.Reference)
	assert.NotEmpty(t, req.ID)
}
