package cache

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"bidline/api/internal/metrics"
	"bidline/api/internal/proposal"
)

const keyPrefix = "proposal-data-"

// Key is the cache key for a proposal's working snapshot.
func Key(proposalID string) string {
	return keyPrefix + proposalID
}

// Snapshots stores full proposal snapshots in a Cache.
type Snapshots struct {
	cache Cache
	log   zerolog.Logger
}

func NewSnapshots(cache Cache, log zerolog.Logger) *Snapshots {
	return &Snapshots{cache: cache, log: log}
}

// Load returns the cached snapshot for proposalID. Read failures and
// unparseable entries are logged and reported as a miss.
func (s *Snapshots) Load(ctx context.Context, proposalID string) (proposal.Snapshot, bool) {
	raw, ok, err := s.cache.Get(ctx, Key(proposalID))
	if err != nil {
		metrics.CacheErrors.WithLabelValues("read").Inc()
		s.log.Warn().Err(err).Str("proposal_id", proposalID).Msg("cache read failed")
		return proposal.Snapshot{}, false
	}
	if !ok || raw == "" {
		return proposal.Snapshot{}, false
	}

	var snapshot proposal.Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		metrics.CacheErrors.WithLabelValues("corrupt").Inc()
		s.log.Warn().Err(err).Str("proposal_id", proposalID).Msg("discarding unreadable cached snapshot")
		return proposal.Snapshot{}, false
	}
	if snapshot.Proposal.ID == "" {
		snapshot.Proposal.ID = proposalID
	}
	if snapshot.Proposal.ID != proposalID {
		metrics.CacheErrors.WithLabelValues("corrupt").Inc()
		s.log.Warn().Str("proposal_id", proposalID).Str("cached_id", snapshot.Proposal.ID).Msg("cached snapshot belongs to another proposal")
		return proposal.Snapshot{}, false
	}
	snapshot.Proposal.Sanitize()
	return snapshot, true
}

func (s *Snapshots) Save(ctx context.Context, snapshot proposal.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.cache.Set(ctx, Key(snapshot.Proposal.ID), string(payload)); err != nil {
		metrics.CacheErrors.WithLabelValues("write").Inc()
		return err
	}
	return nil
}
