package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"
)

const idxProposals = "bidline_proposals"

// Meili implements Index via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	log     zerolog.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the proposals index.
// An unreachable server is not an error; the health loop picks it up later.
func NewMeili(url, apiKey string, log zerolog.Logger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		log:    log.With().Str("component", "search").Logger(),
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		m.log.Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxProposals,
		PrimaryKey: "id",
	}); err != nil {
		m.log.Debug().Err(err).Msg("create index (may already exist)")
	}

	index := m.client.Index(idxProposals)
	filterable := []interface{}{"client", "contractType"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warn().Err(err).Msg("update filterable attributes")
	}
	searchable := []string{"title", "solicitation", "client", "contractType"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn().Err(err).Msg("update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info().Msg("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, errors.New("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 20
	}
	request := &meili.SearchRequest{
		IndexUID:              idxProposals,
		Query:                 q.Text,
		Limit:                 limit,
		Offset:                int64(max(q.Offset, 0)),
		AttributesToHighlight: []string{"title", "client"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if filters := buildFilters(q); len(filters) > 0 {
		request.Filter = filters
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{request},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func buildFilters(q Query) []string {
	var filters []string
	if q.FilterClient != "" {
		filters = append(filters, fmt.Sprintf("client = %q", q.FilterClient))
	}
	if q.FilterContractType != "" {
		filters = append(filters, fmt.Sprintf("contractType = %q", q.FilterContractType))
	}
	return filters
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		ID:                  decodeString(hit, "id"),
		Title:               decodeString(hit, "title"),
		Solicitation:        decodeString(hit, "solicitation"),
		Client:              decodeString(hit, "client"),
		ContractType:        decodeString(hit, "contractType"),
		DueDate:             decodeString(hit, "dueDate"),
		PeriodOfPerformance: decodeString(hit, "periodOfPerformance"),
		Highlight:           firstNonBlank(decodeFormattedString(hit, "title"), decodeFormattedString(hit, "client")),
	}
	decode(hit, "totalValue", &r.TotalValue)
	decode(hit, "progress", &r.Progress)
	var updated int64
	if decode(hit, "updatedAt", &updated) && updated > 0 {
		r.UpdatedAt = time.Unix(updated, 0).UTC()
	}
	return r
}

func decode(hit meili.Hit, key string, dst any) bool {
	raw, ok := hit[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func decodeString(hit meili.Hit, key string) string {
	var s string
	if decode(hit, key, &s) {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexProposals adds or replaces records in the index.
func (m *Meili) IndexProposals(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxProposals).AddDocuments(records, nil)
	return err
}
