package syncer

import (
	"bidline/api/internal/pricing"
	"bidline/api/internal/proposal"
)

// Owner says which tier is authoritative for a proposal field on load.
type Owner string

const (
	OwnerRemote Owner = "remote"
	OwnerLocal  Owner = "local"
)

// fieldRule moves one field into the merged proposal. fromRemote reports
// false when the remote record carries no value, in which case the cached
// value is used.
type fieldRule struct {
	field      string
	owner      Owner
	fromRemote func(dst *proposal.Proposal, remote proposal.Summary) bool
	fromCache  func(dst *proposal.Proposal, cached proposal.Proposal)
}

var precedence = []fieldRule{
	{
		field: "solicitation.title",
		owner: OwnerRemote,
		fromRemote: func(dst *proposal.Proposal, remote proposal.Summary) bool {
			dst.Solicitation.Title = remote.Title
			return true
		},
		fromCache: func(dst *proposal.Proposal, cached proposal.Proposal) {
			dst.Solicitation.Title = cached.Solicitation.Title
		},
	},
	{
		field: "solicitation.number",
		owner: OwnerRemote,
		fromRemote: func(dst *proposal.Proposal, remote proposal.Summary) bool {
			dst.Solicitation.Number = remote.Solicitation
			return true
		},
		fromCache: func(dst *proposal.Proposal, cached proposal.Proposal) {
			dst.Solicitation.Number = cached.Solicitation.Number
		},
	},
	{
		field: "solicitation.clientAgency",
		owner: OwnerRemote,
		fromRemote: func(dst *proposal.Proposal, remote proposal.Summary) bool {
			dst.Solicitation.ClientAgency = remote.Client
			return true
		},
		fromCache: func(dst *proposal.Proposal, cached proposal.Proposal) {
			dst.Solicitation.ClientAgency = cached.Solicitation.ClientAgency
		},
	},
	{
		field: "solicitation.contractType",
		owner: OwnerRemote,
		fromRemote: func(dst *proposal.Proposal, remote proposal.Summary) bool {
			dst.Solicitation.ContractType = remote.ContractType
			return true
		},
		fromCache: func(dst *proposal.Proposal, cached proposal.Proposal) {
			dst.Solicitation.ContractType = cached.Solicitation.ContractType
		},
	},
	{
		field: "solicitation.dueDate",
		owner: OwnerRemote,
		fromRemote: func(dst *proposal.Proposal, remote proposal.Summary) bool {
			dst.Solicitation.DueDate = remote.DueDate
			return true
		},
		fromCache: func(dst *proposal.Proposal, cached proposal.Proposal) {
			dst.Solicitation.DueDate = cached.Solicitation.DueDate
		},
	},
	{
		// The remote keeps only the formatted string. An empty string is
		// treated as "not recorded" so a cached structured period survives.
		field: "solicitation.period",
		owner: OwnerRemote,
		fromRemote: func(dst *proposal.Proposal, remote proposal.Summary) bool {
			if remote.PeriodOfPerformance == "" {
				return false
			}
			dst.Solicitation.Period = pricing.ParsePeriod(remote.PeriodOfPerformance)
			return true
		},
		fromCache: func(dst *proposal.Proposal, cached proposal.Proposal) {
			dst.Solicitation.Period = cached.Solicitation.Period
		},
	},
	{field: "roles", owner: OwnerLocal, fromCache: func(dst *proposal.Proposal, c proposal.Proposal) { dst.Roles = c.Roles }},
	{field: "subcontractors", owner: OwnerLocal, fromCache: func(dst *proposal.Proposal, c proposal.Proposal) { dst.Subcontractors = c.Subcontractors }},
	{field: "teamingPartners", owner: OwnerLocal, fromCache: func(dst *proposal.Proposal, c proposal.Proposal) { dst.TeamingPartners = c.TeamingPartners }},
	{field: "wbsElements", owner: OwnerLocal, fromCache: func(dst *proposal.Proposal, c proposal.Proposal) { dst.WBSElements = c.WBSElements }},
	{field: "rateJustifications", owner: OwnerLocal, fromCache: func(dst *proposal.Proposal, c proposal.Proposal) { dst.RateJustifications = c.RateJustifications }},
	{field: "odcs", owner: OwnerLocal, fromCache: func(dst *proposal.Proposal, c proposal.Proposal) { dst.ODCs = c.ODCs }},
	{field: "perDiem", owner: OwnerLocal, fromCache: func(dst *proposal.Proposal, c proposal.Proposal) { dst.PerDiem = c.PerDiem }},
	{field: "requirements", owner: OwnerLocal, fromCache: func(dst *proposal.Proposal, c proposal.Proposal) { dst.Requirements = c.Requirements }},
	{field: "rates", owner: OwnerLocal, fromCache: func(dst *proposal.Proposal, c proposal.Proposal) { dst.Rates = c.Rates }},
}

// FieldOwnership lists every merged field and its authoritative tier.
func FieldOwnership() map[string]Owner {
	out := make(map[string]Owner, len(precedence))
	for _, rule := range precedence {
		out[rule.field] = rule.owner
	}
	return out
}

// Merge builds the working proposal for id from whichever tiers answered.
// remote and cached may each be nil; with both nil the result is the
// default-reset proposal. Totals, team size and progress are never merged
// because they are always derived from the collections.
func Merge(id string, remote *proposal.Summary, cached *proposal.Snapshot) proposal.Proposal {
	merged := proposal.New(id)
	var cachedProposal proposal.Proposal
	if cached != nil {
		cachedProposal = cached.Proposal.Clone()
	}

	for _, rule := range precedence {
		if rule.owner == OwnerRemote && remote != nil && rule.fromRemote(&merged, *remote) {
			continue
		}
		if cached != nil {
			rule.fromCache(&merged, cachedProposal)
		}
	}

	merged.ID = id
	merged.Sanitize()
	return merged
}

func sourceOf(remote *proposal.Summary, cached *proposal.Snapshot) Source {
	switch {
	case remote != nil && cached != nil:
		return SourceRemoteCache
	case remote != nil:
		return SourceRemote
	case cached != nil:
		return SourceCache
	default:
		return SourceDefault
	}
}
