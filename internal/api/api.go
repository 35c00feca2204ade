// Package api is the thin gin adapter over the recommendation services.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/internal/model"
	"github.com/pageza/mealsense/backend/internal/service"
)

// Recommender is the orchestrator surface used by the handlers
type Recommender interface {
	SimilarFoods(ctx context.Context, name string, limit int, user model.UserContext) []model.Recommendation
	MealPlan(ctx context.Context, user model.UserContext, count int) service.MealPlan
	Alternatives(ctx context.Context, name, reason string, user model.UserContext, limit int) []service.Alternative
	Recipes(ctx context.Context, user model.UserContext, ingredients []string, mealType string, limit int) []model.RecipeRecommendation
	LookupFood(ctx context.Context, name string) (*model.Food, bool)
}

// DailyAnalyzer totals a day's intake
type DailyAnalyzer interface {
	AnalyzeDaily(ctx context.Context, foodNames []string) service.DailyAnalysis
}

// Dependencies are the collaborators RegisterRoutes wires into handlers
type Dependencies struct {
	Recommendations Recommender
	Nutrition       DailyAnalyzer
	RAG             service.QueryEngine
	Health          HealthChecker
	Metrics         http.Handler
	Logger          *zap.Logger
	// APIMiddleware runs on /api/v1 only, leaving /health and /metrics unthrottled
	APIMiddleware []gin.HandlerFunc
}

// RegisterRoutes registers all API routes
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	health := NewHealthHandler(deps.Health)
	router.GET("/health", health.Check)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	v1 := router.Group("/api/v1")
	v1.Use(deps.APIMiddleware...)
	NewRecommendationHandler(deps.Recommendations, log.Named("api")).RegisterRoutes(v1)
	NewNutritionHandler(deps.Nutrition).RegisterRoutes(v1)
	NewRAGHandler(deps.RAG).RegisterRoutes(v1)
}
