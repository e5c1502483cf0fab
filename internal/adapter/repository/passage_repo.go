package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"chat-orchestrator/internal/domain"
)

type passageRepository struct {
	pool *pgxpool.Pool
}

// NewPassageRepository creates a pgvector-backed passage repository.
func NewPassageRepository(pool *pgxpool.Pool) domain.PassageRepository {
	return &passageRepository{pool: pool}
}

type dbExecutor interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *passageRepository) getExecutor(ctx context.Context) dbExecutor {
	tx := ExtractTx(ctx)
	if tx != nil {
		return tx
	}
	return r.pool
}

func (r *passageRepository) SimilaritySearch(ctx context.Context, embedding []float32, filters domain.PassageFilters, limit int) ([]domain.RetrievedPassage, error) {
	query := `
		SELECT content, source, title, 1 - (embedding <=> $1) AS score
		FROM passages
		WHERE ($2 = '' OR company_id = $2)
		  AND ($3 = '' OR project_id = $3)
		ORDER BY embedding <=> $1
		LIMIT $4
	`
	rows, err := r.getExecutor(ctx).Query(ctx, query,
		pgvector.NewVector(embedding), filters.CompanyID, filters.ProjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}
	defer rows.Close()

	var passages []domain.RetrievedPassage
	for rows.Next() {
		var p domain.RetrievedPassage
		var source, title string
		if err := rows.Scan(&p.Text, &source, &title, &p.Score); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		p.Metadata = map[string]string{}
		if source != "" {
			p.Metadata["source"] = source
		}
		if title != "" {
			p.Metadata["title"] = title
		}
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return passages, nil
}
