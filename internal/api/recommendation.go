package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/internal/apperrors"
	"github.com/pageza/mealsense/backend/internal/model"
)

// defaultAlternativeReason is used when the caller gives no reason
const defaultAlternativeReason = "healthier alternative"

// RecommendationHandler serves the food and recommendation routes
type RecommendationHandler struct {
	recs   Recommender
	logger *zap.Logger
}

// NewRecommendationHandler creates a new recommendation handler
func NewRecommendationHandler(recs Recommender, log *zap.Logger) *RecommendationHandler {
	return &RecommendationHandler{recs: recs, logger: log}
}

// RegisterRoutes registers the food and recommendation routes
func (h *RecommendationHandler) RegisterRoutes(router *gin.RouterGroup) {
	foods := router.Group("/foods")
	{
		foods.GET("/:name", h.GetFood)
		foods.GET("/:name/similar", h.SimilarFoods)
	}

	recommendations := router.Group("/recommendations")
	{
		recommendations.POST("/meal-plan", h.MealPlan)
		recommendations.POST("/alternatives", h.Alternatives)
		recommendations.POST("/recipes", h.Recipes)
	}
}

// GetFood resolves one food from the database or the document index
func (h *RecommendationHandler) GetFood(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	food, ok := h.recs.LookupFood(c.Request.Context(), name)
	if !ok {
		_ = c.Error(apperrors.NewNotFoundError("food " + name))
		return
	}
	c.JSON(http.StatusOK, food)
}

// SimilarFoods reads the user context from the query string:
// ?limit=5&health_goal=...&allergies=a,b&recent_foods=c
func (h *RecommendationHandler) SimilarFoods(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			_ = c.Error(apperrors.NewBadRequestError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	user := model.UserContext{
		HealthGoal:  c.Query("health_goal"),
		Allergies:   splitList(c.QueryArray("allergies")),
		RecentFoods: splitList(c.QueryArray("recent_foods")),
	}

	recs := h.recs.SimilarFoods(c.Request.Context(), name, limit, user)
	c.JSON(http.StatusOK, SimilarResponse{Food: name, Recommendations: recs})
}

func (h *RecommendationHandler) MealPlan(c *gin.Context) {
	var req MealPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewBadRequestError(err.Error()))
		return
	}

	plan := h.recs.MealPlan(c.Request.Context(), req.UserContext, req.Count)
	h.logger.Debug("Meal plan built",
		zap.Int("health_based", len(plan.HealthBased)),
		zap.Int("balanced_meal", len(plan.BalancedMeal)),
		zap.Int("variety_based", len(plan.VarietyBased)),
	)
	c.JSON(http.StatusOK, MealPlanResponse{
		Recommendations: plan,
		UserAllergies:   nonNilStrings(req.Allergies),
		HealthGoal:      req.HealthGoal,
	})
}

func (h *RecommendationHandler) Alternatives(c *gin.Context) {
	var req AlternativesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewBadRequestError("food_name is required"))
		return
	}
	req.FoodName = strings.TrimSpace(req.FoodName)
	if req.FoodName == "" {
		_ = c.Error(apperrors.NewBadRequestError("food_name is required"))
		return
	}
	if req.Reason == "" {
		req.Reason = defaultAlternativeReason
	}

	alts := h.recs.Alternatives(c.Request.Context(), req.FoodName, req.Reason, req.UserContext, req.Limit)
	c.JSON(http.StatusOK, AlternativesResponse{
		OriginalFood: req.FoodName,
		Reason:       req.Reason,
		Alternatives: alts,
	})
}

func (h *RecommendationHandler) Recipes(c *gin.Context) {
	var req RecipesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewBadRequestError(err.Error()))
		return
	}

	recipes := h.recs.Recipes(c.Request.Context(), req.UserContext, req.Ingredients, req.MealType, req.Limit)
	c.JSON(http.StatusOK, RecipesResponse{
		Ingredients: nonNilStrings(req.Ingredients),
		MealType:    req.MealType,
		HealthGoal:  req.HealthGoal,
		Recipes:     recipes,
	})
}
