package search

import (
	"context"
	"strings"

	"bidline/api/internal/proposal"
)

// SummaryFinder is the part of the remote store the fallback searcher needs.
type SummaryFinder interface {
	SearchProposals(ctx context.Context, query string, limit int) ([]proposal.Summary, error)
	ListProposals(ctx context.Context, limit int) ([]proposal.Summary, error)
}

// StoreSearcher answers queries straight from the proposals table.
type StoreSearcher struct {
	store SummaryFinder
}

func NewStoreSearcher(store SummaryFinder) *StoreSearcher {
	return &StoreSearcher{store: store}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (s *StoreSearcher) Healthy() bool {
	return true
}

func (s *StoreSearcher) Search(ctx context.Context, q Query) ([]Result, int, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := max(q.Offset, 0)

	summaries, err := s.store.SearchProposals(ctx, q.Text, limit+offset)
	if err != nil {
		return nil, 0, err
	}

	results := make([]Result, 0, len(summaries))
	for _, summary := range summaries {
		if q.FilterClient != "" && !strings.EqualFold(summary.Client, q.FilterClient) {
			continue
		}
		if q.FilterContractType != "" && !strings.EqualFold(summary.ContractType, q.FilterContractType) {
			continue
		}
		results = append(results, resultFromSummary(summary))
	}
	total := len(results)
	if offset >= len(results) {
		return []Result{}, total, nil
	}
	results = results[offset:]
	if len(results) > limit {
		results = results[:limit]
	}
	return results, total, nil
}

// LoadAllRecords returns every stored summary for a full reindex.
func (s *StoreSearcher) LoadAllRecords(ctx context.Context, limit int) ([]Record, error) {
	summaries, err := s.store.ListProposals(ctx, limit)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(summaries))
	for _, summary := range summaries {
		records = append(records, RecordFromSummary(summary))
	}
	return records, nil
}
