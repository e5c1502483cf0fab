package domain

import "context"

// RetrievedPassage is a ranked text span returned by vector search.
// Higher Score means more relevant. Metadata keys are unique.
type RetrievedPassage struct {
	Text     string
	Score    float32
	Metadata map[string]string
}

// PassageFilters narrows a similarity search to a tenant scope.
type PassageFilters struct {
	CompanyID string
	ProjectID string
}

// Retriever wraps a vector-similarity search. Implementations return
// passages ordered by descending relevance.
type Retriever interface {
	Search(ctx context.Context, query string, filters PassageFilters, topK int) ([]RetrievedPassage, error)
}

// VectorEncoder turns texts into embedding vectors.
type VectorEncoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// PassageRepository performs vector-similarity search over stored
// passages. Results are ordered by descending relevance.
type PassageRepository interface {
	SimilaritySearch(ctx context.Context, embedding []float32, filters PassageFilters, limit int) ([]RetrievedPassage, error)
}
