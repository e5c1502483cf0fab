package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-orchestrator/internal/domain"
)

// ConversationRepository is a postgres-backed conversation store.
// Each Save appends the given turns to the conversation inside one
// transaction.
type ConversationRepository struct {
	pool *pgxpool.Pool
	tm   domain.TransactionManager
}

func NewConversationRepository(pool *pgxpool.Pool, tm domain.TransactionManager) *ConversationRepository {
	return &ConversationRepository{pool: pool, tm: tm}
}

var _ domain.ConversationStore = (*ConversationRepository)(nil)

func (r *ConversationRepository) getExecutor(ctx context.Context) dbExecutor {
	tx := ExtractTx(ctx)
	if tx != nil {
		return tx
	}
	return r.pool
}

func (r *ConversationRepository) Save(ctx context.Context, ref domain.ConversationRef, turns []domain.Message) error {
	if len(turns) == 0 {
		return nil
	}

	return r.tm.RunInTx(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		exec := r.getExecutor(ctx)

		upsert := `
			INSERT INTO conversations (id, title, company_id, project_id, user_id, model, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (id) DO UPDATE SET
				title = COALESCE(NULLIF(EXCLUDED.title, ''), conversations.title),
				model = EXCLUDED.model,
				updated_at = EXCLUDED.updated_at
		`
		if _, err := exec.Exec(ctx, upsert,
			ref.ConversationID, ref.Title, ref.CompanyID, ref.ProjectID, ref.UserID, ref.Model, now); err != nil {
			return fmt.Errorf("failed to upsert conversation: %w", err)
		}

		var nextOrdinal int
		ordinalQuery := `
			SELECT COALESCE(MAX(ordinal), 0) + 1
			FROM conversation_messages
			WHERE conversation_id = $1
		`
		if err := exec.QueryRow(ctx, ordinalQuery, ref.ConversationID).Scan(&nextOrdinal); err != nil {
			return fmt.Errorf("failed to read next ordinal: %w", err)
		}

		insert := `
			INSERT INTO conversation_messages (id, conversation_id, ordinal, role, content, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		for i, turn := range turns {
			if _, err := exec.Exec(ctx, insert,
				uuid.New(), ref.ConversationID, nextOrdinal+i, turn.Role, turn.Content, now); err != nil {
				return fmt.Errorf("failed to insert message: %w", err)
			}
		}
		return nil
	})
}

// History returns the stored turns of a conversation in order.
func (r *ConversationRepository) History(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	query := `
		SELECT role, content
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY ordinal DESC
		LIMIT $2
	`
	rows, err := r.getExecutor(ctx).Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var turns []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		turns = append(turns, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	// Newest-first from the query, reverse to chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
