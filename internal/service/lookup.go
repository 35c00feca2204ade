package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/internal/model"
)

// RAGLookup resolves foods the database does not know by asking the query engine
// for their nutrition facts
type RAGLookup struct {
	engine QueryEngine
	parser *ResponseParser
	logger *zap.Logger
}

// NewRAGLookup creates a new RAGLookup instance
func NewRAGLookup(engine QueryEngine, parser *ResponseParser, log *zap.Logger) *RAGLookup {
	return &RAGLookup{engine: engine, parser: parser, logger: log}
}

// Lookup returns a food built from the first parsed item carrying nutrition data.
// An item titled with the requested name is preferred.
func (l *RAGLookup) Lookup(ctx context.Context, name string) (*model.Food, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	result := l.engine.Query(ctx, fmt.Sprintf("nutrition information for %s", name), 0)
	if result.Fallback {
		return nil, false
	}

	items := l.parser.ParseItems(result.Answer)
	var picked *ParsedItem
	for i := range items {
		if len(items[i].Nutrition) == 0 {
			continue
		}
		if strings.EqualFold(items[i].Title, name) {
			picked = &items[i]
			break
		}
		if picked == nil {
			picked = &items[i]
		}
	}
	if picked == nil {
		l.logger.Debug("No nutrition found in RAG answer", zap.String("name", name))
		return nil, false
	}

	n := picked.Nutrition
	return &model.Food{
		Name:        name,
		Calories:    n[model.NutrientCalories],
		Carbs:       n[model.NutrientCarbs],
		Protein:     n[model.NutrientProtein],
		Fat:         n[model.NutrientFat],
		Tags:        model.NewTags(),
		Description: picked.Reason,
		Source:      string(model.SourceRAG),
	}, true
}

// ChainLookup tries each lookup in order and returns the first hit
type ChainLookup []FoodLookup

// Lookup implements FoodLookup
func (c ChainLookup) Lookup(ctx context.Context, name string) (*model.Food, bool) {
	for _, l := range c {
		if ctx.Err() != nil {
			return nil, false
		}
		if food, ok := l.Lookup(ctx, name); ok {
			return food, true
		}
	}
	return nil, false
}
