package search

import (
	"context"

	"github.com/rs/zerolog"

	"bidline/api/internal/proposal"
)

const reindexLimit = 10000

// Service tries the index first and falls back to the proposals table.
type Service struct {
	index    Index
	fallback *StoreSearcher
	log      zerolog.Logger
}

// NewService creates a search service. index may be nil if Meilisearch is
// not configured.
func NewService(index Index, fallback *StoreSearcher, log zerolog.Logger) *Service {
	return &Service{index: index, fallback: fallback, log: log.With().Str("component", "search").Logger()}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search tries the index if healthy, otherwise falls back to the store.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexReady() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "meilisearch"}
		}
		s.log.Warn().Err(err).Msg("index search failed, falling back to store")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text, Backend: "none"}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.Error().Err(err).Msg("store search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Backend: "postgres"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "postgres"}
}

// IndexSynced pushes the stored summary of a freshly synced proposal. It has
// the shape of a sync hook.
func (s *Service) IndexSynced(_ context.Context, _ proposal.Proposal, stored proposal.Summary) error {
	if !s.indexReady() {
		return nil
	}
	return s.index.IndexProposals([]Record{RecordFromSummary(stored)})
}

// ReindexAll reads every summary from the store and pushes it to the index.
func (s *Service) ReindexAll(ctx context.Context) {
	if !s.indexReady() || s.fallback == nil {
		return
	}
	records, err := s.fallback.LoadAllRecords(ctx, reindexLimit)
	if err != nil {
		s.log.Error().Err(err).Msg("reindex load failed")
		return
	}
	if err := s.index.IndexProposals(records); err != nil {
		s.log.Error().Err(err).Msg("reindex push failed")
		return
	}
	s.log.Info().Int("count", len(records)).Msg("search index rebuilt")
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
