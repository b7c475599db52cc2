// Package search indexes synced proposal summaries and answers free-text
// queries over them.
package search

import (
	"context"
	"time"

	"bidline/api/internal/proposal"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	Solicitation        string    `json:"solicitation"`
	Client              string    `json:"client"`
	ContractType        string    `json:"contractType"`
	DueDate             string    `json:"dueDate"`
	TotalValue          float64   `json:"totalValue"`
	Progress            int       `json:"progress"`
	PeriodOfPerformance string    `json:"periodOfPerformance"`
	Highlight           string    `json:"highlight,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Query describes a search request.
type Query struct {
	Text               string
	FilterClient       string
	FilterContractType string
	Limit              int
	Offset             int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute a free-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Index is a Searcher that can also accept records.
type Index interface {
	Searcher
	IndexProposals(records []Record) error
}

// Record is the document stored in the index for one proposal.
type Record struct {
	ID                  string  `json:"id"`
	Title               string  `json:"title"`
	Solicitation        string  `json:"solicitation"`
	Client              string  `json:"client"`
	ContractType        string  `json:"contractType"`
	DueDate             string  `json:"dueDate"`
	TotalValue          float64 `json:"totalValue"`
	TeamSize            int     `json:"teamSize"`
	Progress            int     `json:"progress"`
	PeriodOfPerformance string  `json:"periodOfPerformance"`
	UpdatedAt           int64   `json:"updatedAt"`
}

func RecordFromSummary(s proposal.Summary) Record {
	return Record{
		ID:                  s.ID,
		Title:               s.Title,
		Solicitation:        s.Solicitation,
		Client:              s.Client,
		ContractType:        s.ContractType,
		DueDate:             s.DueDate,
		TotalValue:          s.TotalValue,
		TeamSize:            s.TeamSize,
		Progress:            s.Progress,
		PeriodOfPerformance: s.PeriodOfPerformance,
		UpdatedAt:           s.UpdatedAt.Unix(),
	}
}

func resultFromSummary(s proposal.Summary) Result {
	return Result{
		ID:                  s.ID,
		Title:               s.Title,
		Solicitation:        s.Solicitation,
		Client:              s.Client,
		ContractType:        s.ContractType,
		DueDate:             s.DueDate,
		TotalValue:          s.TotalValue,
		Progress:            s.Progress,
		PeriodOfPerformance: s.PeriodOfPerformance,
		UpdatedAt:           s.UpdatedAt,
	}
}
