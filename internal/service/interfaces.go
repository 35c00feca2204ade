package service

import (
	"context"

	"github.com/pageza/mealsense/backend/internal/model"
)

// Embedder turns text into a fixed-length vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer returns a generated completion for a prompt
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// FoodLookup resolves a food by exact name. The database and RAG paths both implement it.
type FoodLookup interface {
	Lookup(ctx context.Context, name string) (*model.Food, bool)
}

// VectorIndex is the read side of the document store
type VectorIndex interface {
	SimilaritySearch(ctx context.Context, query []float32, topK int) []model.ScoredChunk
	Len() int
}

// QueryEngine answers free-text questions grounded in stored documents
type QueryEngine interface {
	Query(ctx context.Context, text string, topK int) model.QueryResult
}

// FoodKnowledgeStore is the structured lookup used by the orchestrator
type FoodKnowledgeStore interface {
	FoodLookup
	GetByName(ctx context.Context, name string) (*model.Food, bool)
	GetSimilar(ctx context.Context, name, category string, limit int) []model.Food
	SearchByCategory(ctx context.Context, category string) []model.Food
	GetAll(ctx context.Context, limit int) []model.Food
}
