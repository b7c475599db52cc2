package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bidline/api/internal/proposal"
)

// ErrNotFound is returned when no summary row exists for a proposal id.
var ErrNotFound = errors.New("proposal not found")

const summaryColumns = `id, title, solicitation, client, contract_type, due_date,
	total_value, team_size, period_of_performance, progress, updated_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (proposal.Summary, error) {
	var item proposal.Summary
	err := row.Scan(
		&item.ID,
		&item.Title,
		&item.Solicitation,
		&item.Client,
		&item.ContractType,
		&item.DueDate,
		&item.TotalValue,
		&item.TeamSize,
		&item.PeriodOfPerformance,
		&item.Progress,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) FetchProposal(ctx context.Context, id string) (proposal.Summary, error) {
	item, err := scanSummary(s.db.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM proposals WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return proposal.Summary{}, ErrNotFound
	}
	if err != nil {
		return proposal.Summary{}, fmt.Errorf("fetch proposal %s: %w", id, err)
	}
	return item, nil
}

// UpdateProposal upserts the summary row for id and returns the stored row.
// The id argument wins over summary.ID.
func (s *PostgresStore) UpdateProposal(ctx context.Context, id string, summary proposal.Summary) (proposal.Summary, error) {
	if strings.TrimSpace(id) == "" {
		return proposal.Summary{}, errors.New("update proposal: id is required")
	}
	updatedAt := summary.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = nowUTC()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO proposals (id, title, solicitation, client, contract_type, due_date,
			total_value, team_size, period_of_performance, progress, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			title=EXCLUDED.title,
			solicitation=EXCLUDED.solicitation,
			client=EXCLUDED.client,
			contract_type=EXCLUDED.contract_type,
			due_date=EXCLUDED.due_date,
			total_value=EXCLUDED.total_value,
			team_size=EXCLUDED.team_size,
			period_of_performance=EXCLUDED.period_of_performance,
			progress=EXCLUDED.progress,
			updated_at=EXCLUDED.updated_at
		RETURNING `+summaryColumns,
		id,
		summary.Title,
		summary.Solicitation,
		summary.Client,
		summary.ContractType,
		summary.DueDate,
		proposal.NonNegative(summary.TotalValue),
		max(summary.TeamSize, 0),
		summary.PeriodOfPerformance,
		min(max(summary.Progress, 0), 100),
		updatedAt,
	)
	stored, err := scanSummary(row)
	if err != nil {
		return proposal.Summary{}, fmt.Errorf("update proposal %s: %w", id, err)
	}
	return stored, nil
}

// ListProposals returns summaries ordered by most recent update.
func (s *PostgresStore) ListProposals(ctx context.Context, limit int) ([]proposal.Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+summaryColumns+`
		FROM proposals
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()
	return collectSummaries(rows)
}

// SearchProposals is a substring match over title, solicitation number and
// client. It backs search when no index is configured.
func (s *PostgresStore) SearchProposals(ctx context.Context, query string, limit int) ([]proposal.Summary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListProposals(ctx, limit)
	}
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+summaryColumns+`
		FROM proposals
		WHERE title ILIKE $1 OR solicitation ILIKE $1 OR client ILIKE $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search proposals: %w", err)
	}
	defer rows.Close()
	return collectSummaries(rows)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func collectSummaries(rows *sql.Rows) ([]proposal.Summary, error) {
	items := make([]proposal.Summary, 0)
	for rows.Next() {
		item, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}
	return items, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}
