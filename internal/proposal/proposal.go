// Package proposal holds the bid aggregate shared by the pricing and sync layers.
package proposal

import (
	"math"
	"strings"
	"time"
)

// YearSlot names one contract year. A role or subcontractor is active in a
// year iff the slot is present in its Years.
type YearSlot string

const (
	YearBase    YearSlot = "base"
	YearOption1 YearSlot = "option1"
	YearOption2 YearSlot = "option2"
	YearOption3 YearSlot = "option3"
	YearOption4 YearSlot = "option4"
)

// MaxOptionYears is the largest number of option years a period can carry.
const MaxOptionYears = 4

// AllYearSlots lists the slots in contract order.
var AllYearSlots = []YearSlot{YearBase, YearOption1, YearOption2, YearOption3, YearOption4}

// Offset is the number of years between the base year and s.
// It returns -1 for unknown slots.
func (s YearSlot) Offset() int {
	for i, slot := range AllYearSlots {
		if slot == s {
			return i
		}
	}
	return -1
}

func (s YearSlot) Valid() bool {
	return s.Offset() >= 0
}

// Label is the short column heading used by the UI and summaries.
func (s YearSlot) Label() string {
	switch s {
	case YearBase:
		return "Base Year"
	case YearOption1:
		return "Option Year 1"
	case YearOption2:
		return "Option Year 2"
	case YearOption3:
		return "Option Year 3"
	case YearOption4:
		return "Option Year 4"
	default:
		return ""
	}
}

// ParseYearSlot accepts the canonical names plus a few spellings produced by
// the extraction collaborator ("Base", "OY1", "option 2").
func ParseYearSlot(raw string) (YearSlot, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(normalized)
	switch normalized {
	case "base", "baseyear", "by", "0":
		return YearBase, true
	case "option1", "oy1", "optionyear1", "1":
		return YearOption1, true
	case "option2", "oy2", "optionyear2", "2":
		return YearOption2, true
	case "option3", "oy3", "optionyear3", "3":
		return YearOption3, true
	case "option4", "oy4", "optionyear4", "4":
		return YearOption4, true
	default:
		return "", false
	}
}

// NormalizeYears drops unknown slots and duplicates and returns the rest in
// contract order. The result is never nil.
func NormalizeYears(years []YearSlot) []YearSlot {
	seen := make(map[YearSlot]bool, len(years))
	for _, year := range years {
		if year.Valid() {
			seen[year] = true
		}
	}
	out := make([]YearSlot, 0, len(seen))
	for _, slot := range AllYearSlots {
		if seen[slot] {
			out = append(out, slot)
		}
	}
	return out
}

// PeriodOfPerformance is a base year plus zero to four option years.
type PeriodOfPerformance struct {
	BaseYear    bool `json:"baseYear"`
	OptionYears int  `json:"optionYears"`
}

// Slots returns the year slots covered by the period.
func (p PeriodOfPerformance) Slots() []YearSlot {
	slots := make([]YearSlot, 0, 1+MaxOptionYears)
	if p.BaseYear {
		slots = append(slots, YearBase)
	}
	for i := 1; i <= clampOptionYears(p.OptionYears); i++ {
		slots = append(slots, AllYearSlots[i])
	}
	return slots
}

type Solicitation struct {
	Title        string              `json:"title"`
	Number       string              `json:"number"`
	ClientAgency string              `json:"clientAgency"`
	ContractType string              `json:"contractType"`
	DueDate      string              `json:"dueDate"`
	Period       PeriodOfPerformance `json:"period"`
}

type Role struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	LaborCategory string     `json:"laborCategory"`
	BaseSalary    float64    `json:"baseSalary"`
	FTE           float64    `json:"fte"`
	Years         []YearSlot `json:"years"`
}

type Subcontractor struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Role       string     `json:"role"`
	BilledRate float64    `json:"billedRate"`
	FTE        float64    `json:"fte"`
	Years      []YearSlot `json:"years"`
}

type TeamingPartner struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	WorkShare    float64 `json:"workShare"`
	Capabilities string  `json:"capabilities"`
}

type WBSElement struct {
	ID          string  `json:"id"`
	Code        string  `json:"code"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Hours       float64 `json:"hours"`
	RoleID      string  `json:"roleId,omitempty"`
}

type RateJustification struct {
	Method    string `json:"method"`
	Source    string `json:"source"`
	Narrative string `json:"narrative"`
}

// ODC is an other direct cost line (travel excluded, see PerDiem).
type ODC struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Quantity    float64 `json:"quantity"`
	UnitCost    float64 `json:"unitCost"`
}

type PerDiem struct {
	ID       string  `json:"id"`
	Location string  `json:"location"`
	Lodging  float64 `json:"lodging"`
	MIE      float64 `json:"mie"`
	Days     float64 `json:"days"`
	Trips    float64 `json:"trips"`
	Staff    float64 `json:"staff"`
}

// Requirement is a solicitation requirement captured from extraction.
type Requirement struct {
	ID          string `json:"id"`
	Reference   string `json:"reference"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Rates are the indirect and profit rates applied to direct labor, plus the
// annual escalation rate. All values are fractions (0.30 == 30%).
type Rates struct {
	Fringe     float64 `json:"fringe"`
	Overhead   float64 `json:"overhead"`
	GAndA      float64 `json:"gAndA"`
	Profit     float64 `json:"profit"`
	Escalation float64 `json:"escalation"`
}

func DefaultRates() Rates {
	return Rates{
		Fringe:     0.30,
		Overhead:   0.50,
		GAndA:      0.10,
		Profit:     0.08,
		Escalation: 0.03,
	}
}

// Proposal is the root aggregate for one bid.
type Proposal struct {
	ID                 string                       `json:"id"`
	Solicitation       Solicitation                 `json:"solicitation"`
	Roles              []Role                       `json:"roles"`
	Subcontractors     []Subcontractor              `json:"subcontractors"`
	TeamingPartners    []TeamingPartner             `json:"teamingPartners"`
	WBSElements        []WBSElement                 `json:"wbsElements"`
	RateJustifications map[string]RateJustification `json:"rateJustifications"`
	ODCs               []ODC                        `json:"odcs"`
	PerDiem            []PerDiem                    `json:"perDiem"`
	Requirements       []Requirement                `json:"requirements"`
	Rates              Rates                        `json:"rates"`
}

// New returns the default-reset proposal used when a bid has neither a
// remote record nor a cached snapshot.
func New(id string) Proposal {
	return Proposal{
		ID:                 id,
		Roles:              []Role{},
		Subcontractors:     []Subcontractor{},
		TeamingPartners:    []TeamingPartner{},
		WBSElements:        []WBSElement{},
		RateJustifications: map[string]RateJustification{},
		ODCs:               []ODC{},
		PerDiem:            []PerDiem{},
		Requirements:       []Requirement{},
		Rates:              DefaultRates(),
	}
}

// Clone returns a deep copy so callers never share slices with engine state.
func (p Proposal) Clone() Proposal {
	out := p
	out.Roles = make([]Role, len(p.Roles))
	for i, role := range p.Roles {
		role.Years = append([]YearSlot{}, role.Years...)
		out.Roles[i] = role
	}
	out.Subcontractors = make([]Subcontractor, len(p.Subcontractors))
	for i, sub := range p.Subcontractors {
		sub.Years = append([]YearSlot{}, sub.Years...)
		out.Subcontractors[i] = sub
	}
	out.TeamingPartners = append([]TeamingPartner{}, p.TeamingPartners...)
	out.WBSElements = append([]WBSElement{}, p.WBSElements...)
	out.ODCs = append([]ODC{}, p.ODCs...)
	out.PerDiem = append([]PerDiem{}, p.PerDiem...)
	out.Requirements = append([]Requirement{}, p.Requirements...)
	out.RateJustifications = make(map[string]RateJustification, len(p.RateJustifications))
	for key, value := range p.RateJustifications {
		out.RateJustifications[key] = value
	}
	return out
}

// Sanitize forces money and rates to be non-negative and finite, normalizes year
// sets, and replaces nil collections with empty ones.
func (p *Proposal) Sanitize() {
	p.Solicitation.Period.OptionYears = clampOptionYears(p.Solicitation.Period.OptionYears)
	if p.Roles == nil {
		p.Roles = []Role{}
	}
	for i := range p.Roles {
		p.Roles[i].BaseSalary = NonNegative(p.Roles[i].BaseSalary)
		p.Roles[i].FTE = NonNegative(p.Roles[i].FTE)
		p.Roles[i].Years = NormalizeYears(p.Roles[i].Years)
	}
	if p.Subcontractors == nil {
		p.Subcontractors = []Subcontractor{}
	}
	for i := range p.Subcontractors {
		p.Subcontractors[i].BilledRate = NonNegative(p.Subcontractors[i].BilledRate)
		p.Subcontractors[i].FTE = NonNegative(p.Subcontractors[i].FTE)
		p.Subcontractors[i].Years = NormalizeYears(p.Subcontractors[i].Years)
	}
	if p.TeamingPartners == nil {
		p.TeamingPartners = []TeamingPartner{}
	}
	for i := range p.TeamingPartners {
		p.TeamingPartners[i].WorkShare = NonNegative(p.TeamingPartners[i].WorkShare)
	}
	if p.WBSElements == nil {
		p.WBSElements = []WBSElement{}
	}
	for i := range p.WBSElements {
		p.WBSElements[i].Hours = NonNegative(p.WBSElements[i].Hours)
	}
	if p.RateJustifications == nil {
		p.RateJustifications = map[string]RateJustification{}
	}
	if p.ODCs == nil {
		p.ODCs = []ODC{}
	}
	for i := range p.ODCs {
		p.ODCs[i].Quantity = NonNegative(p.ODCs[i].Quantity)
		p.ODCs[i].UnitCost = NonNegative(p.ODCs[i].UnitCost)
	}
	if p.PerDiem == nil {
		p.PerDiem = []PerDiem{}
	}
	for i := range p.PerDiem {
		item := &p.PerDiem[i]
		item.Lodging = NonNegative(item.Lodging)
		item.MIE = NonNegative(item.MIE)
		item.Days = NonNegative(item.Days)
		item.Trips = NonNegative(item.Trips)
		item.Staff = NonNegative(item.Staff)
	}
	if p.Requirements == nil {
		p.Requirements = []Requirement{}
	}
	p.Rates = p.Rates.Sanitized()
}

// Sanitized returns r with every rate forced non-negative and finite.
func (r Rates) Sanitized() Rates {
	return Rates{
		Fringe:     NonNegative(r.Fringe),
		Overhead:   NonNegative(r.Overhead),
		GAndA:      NonNegative(r.GAndA),
		Profit:     NonNegative(r.Profit),
		Escalation: NonNegative(r.Escalation),
	}
}

// NonNegative maps NaN, infinities and negative values to 0.
func NonNegative(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0
	}
	return value
}

func clampOptionYears(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxOptionYears {
		return MaxOptionYears
	}
	return n
}

// Summary is the record the remote store keeps for a proposal.
type Summary struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	Solicitation        string    `json:"solicitation"`
	Client              string    `json:"client"`
	ContractType        string    `json:"contractType"`
	DueDate             string    `json:"dueDate"`
	TotalValue          float64   `json:"totalValue"`
	TeamSize            int       `json:"teamSize"`
	PeriodOfPerformance string    `json:"periodOfPerformance"`
	Progress            int       `json:"progress"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Snapshot is the full working copy kept in the local cache.
type Snapshot struct {
	Proposal  Proposal  `json:"proposal"`
	LastSaved time.Time `json:"lastSaved"`
}
