package pricing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"bidline/api/internal/proposal"
)

const (
	progressTitle        = 10
	progressNumber       = 5
	progressClientAgency = 15
	progressRoles        = 40
	progressWBS          = 30
	progressMax          = 100
)

// Progress is the 0–100 completeness score of a proposal.
func Progress(p proposal.Proposal) int {
	score := 0
	if strings.TrimSpace(p.Solicitation.Title) != "" {
		score += progressTitle
	}
	if strings.TrimSpace(p.Solicitation.Number) != "" {
		score += progressNumber
	}
	if strings.TrimSpace(p.Solicitation.ClientAgency) != "" {
		score += progressClientAgency
	}
	if len(p.Roles) > 0 {
		score += progressRoles
	}
	if len(p.WBSElements) > 0 {
		score += progressWBS
	}
	if score > progressMax {
		return progressMax
	}
	return score
}

// FormatPeriod renders a period of performance, e.g. "1 Base + 2 OYs".
func FormatPeriod(pop proposal.PeriodOfPerformance) string {
	options := pop.OptionYears
	if options < 0 {
		options = 0
	}
	if options > proposal.MaxOptionYears {
		options = proposal.MaxOptionYears
	}
	switch {
	case pop.BaseYear && options > 0:
		return fmt.Sprintf("1 Base + %d %s", options, plural(options, "OY", "OYs"))
	case pop.BaseYear:
		return "1 Base Year"
	case options > 0:
		return fmt.Sprintf("%d %s", options, plural(options, "Option Year", "Option Years"))
	default:
		return ""
	}
}

var (
	basePattern   = regexp.MustCompile(`(?i)\bbase\b`)
	optionPattern = regexp.MustCompile(`(?i)(\d+)\s*(oys?|option\s+years?)\b`)
)

// ParsePeriod is the inverse of FormatPeriod. Strings it cannot read yield
// the zero period.
func ParsePeriod(raw string) proposal.PeriodOfPerformance {
	var pop proposal.PeriodOfPerformance
	pop.BaseYear = basePattern.MatchString(raw)
	if match := optionPattern.FindStringSubmatch(raw); match != nil {
		if n, err := strconv.Atoi(match[1]); err == nil {
			pop.OptionYears = n
		}
	}
	if pop.OptionYears > proposal.MaxOptionYears {
		pop.OptionYears = proposal.MaxOptionYears
	}
	return pop
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
