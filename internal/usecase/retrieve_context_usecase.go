package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"chat-orchestrator/internal/domain"
)

type retrieveContextUsecase struct {
	encoder     domain.VectorEncoder
	passageRepo domain.PassageRepository
	logger      *slog.Logger
}

// NewRetrieveContextUsecase wraps the vector store behind the
// domain.Retriever contract: embed the query, search, return ranked
// passages.
func NewRetrieveContextUsecase(encoder domain.VectorEncoder, passageRepo domain.PassageRepository, logger *slog.Logger) domain.Retriever {
	return &retrieveContextUsecase{
		encoder:     encoder,
		passageRepo: passageRepo,
		logger:      logger,
	}
}

func (u *retrieveContextUsecase) Search(ctx context.Context, query string, filters domain.PassageFilters, topK int) ([]domain.RetrievedPassage, error) {
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if topK <= 0 {
		topK = 3
	}

	embeddings, err := u.encoder.Encode(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(embeddings))
	}

	passages, err := u.passageRepo.SimilaritySearch(ctx, embeddings[0], filters, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search passages: %w", err)
	}

	u.logger.Debug("retrieved passages",
		slog.Int("count", len(passages)),
		slog.String("company_id", filters.CompanyID),
		slog.String("project_id", filters.ProjectID))

	return passages, nil
}
