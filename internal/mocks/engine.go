package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/pageza/mealsense/backend/internal/model"
)

// MockQueryEngine is a mock implementation of the QueryEngine interface
type MockQueryEngine struct {
	mock.Mock
}

func (m *MockQueryEngine) Query(ctx context.Context, text string, topK int) model.QueryResult {
	args := m.Called(ctx, text, topK)
	return args.Get(0).(model.QueryResult)
}

// Answer builds a successful query result
func Answer(query, answer string) model.QueryResult {
	return model.QueryResult{
		Query:     query,
		Answer:    answer,
		Sources:   []model.ScoredChunk{},
		Timestamp: time.Now().UTC(),
	}
}

// Fallback builds a fallback query result
func Fallback(query string) model.QueryResult {
	return model.QueryResult{
		Query:     query,
		Answer:    "no information available",
		Sources:   []model.ScoredChunk{},
		Fallback:  true,
		Timestamp: time.Now().UTC(),
	}
}
