package api

import (
	"strings"

	"github.com/pageza/mealsense/backend/internal/model"
	"github.com/pageza/mealsense/backend/internal/service"
)

// MealPlanRequest asks for the three meal-plan sections
type MealPlanRequest struct {
	model.UserContext
	Count int `json:"count"`
}

// MealPlanResponse is returned by POST /recommendations/meal-plan
type MealPlanResponse struct {
	Recommendations service.MealPlan `json:"recommendations"`
	UserAllergies   []string         `json:"user_allergies"`
	HealthGoal      string           `json:"health_goal"`
}

// AlternativesRequest asks for substitutes of one food
type AlternativesRequest struct {
	model.UserContext
	FoodName string `json:"food_name" binding:"required"`
	Reason   string `json:"reason"`
	Limit    int    `json:"limit"`
}

// AlternativesResponse is returned by POST /recommendations/alternatives
type AlternativesResponse struct {
	OriginalFood string                `json:"original_food"`
	Reason       string                `json:"reason"`
	Alternatives []service.Alternative `json:"alternatives"`
}

// RecipesRequest asks for recipes built around ingredients
type RecipesRequest struct {
	model.UserContext
	Ingredients []string `json:"ingredients"`
	MealType    string   `json:"meal_type"`
	Limit       int      `json:"limit"`
}

// RecipesResponse is returned by POST /recommendations/recipes
type RecipesResponse struct {
	Ingredients []string                     `json:"ingredients"`
	MealType    string                       `json:"meal_type"`
	HealthGoal  string                       `json:"health_goal"`
	Recipes     []model.RecipeRecommendation `json:"recipes"`
}

// SimilarResponse is returned by GET /foods/:name/similar
type SimilarResponse struct {
	Food            string                 `json:"food"`
	Recommendations []model.Recommendation `json:"recommendations"`
}

// DailyNutritionRequest lists the foods eaten in a day
type DailyNutritionRequest struct {
	Foods []string `json:"foods" binding:"required"`
}

// RAGQueryRequest is a free-text question for the document index
type RAGQueryRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k"`
}

// splitList reads comma separated query values, also accepting repeated keys
func splitList(values []string) []string {
	out := []string{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
