package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/config"
	"github.com/pageza/mealsense/backend/internal/metrics"
	"github.com/pageza/mealsense/backend/internal/model"
)

const (
	defaultAlternativeLimit = 3
	defaultRecipeLimit      = 3
	minVarietyItems         = 3
	varietyPoolSize         = 50
	maxQueryIngredients     = 5
	maxQueryRecentFoods     = 5
)

// Comparison directions
const (
	DirectionUp   = "up"
	DirectionDown = "down"
	DirectionSame = "same"
)

// MealPlan groups meal recommendations by strategy
type MealPlan struct {
	HealthBased  []model.Recommendation `json:"health_based"`
	BalancedMeal []model.Recommendation `json:"balanced_meal"`
	VarietyBased []model.Recommendation `json:"variety_based"`
}

// NutrientComparison compares one nutrient of an alternative with the original.
// Percentage is nil when the original amount is zero and the amount changed.
type NutrientComparison struct {
	Original    float64  `json:"original"`
	Alternative float64  `json:"alternative"`
	Change      float64  `json:"change"`
	Percentage  *float64 `json:"percentage"`
	Direction   string   `json:"direction"`
}

// Alternative is a replacement suggestion with its nutrient comparison
type Alternative struct {
	model.Recommendation
	Comparison map[string]NutrientComparison `json:"comparison,omitempty"`
}

// RecommendationService combines the food database and the RAG engine into
// personalized, allergy-safe recommendations
type RecommendationService struct {
	foods        FoodKnowledgeStore
	engine       QueryEngine
	parser       *ResponseParser
	ranker       SimilarityRanker
	lookup       FoodLookup
	defaultLimit int
	metrics      *metrics.Collector
	logger       *zap.Logger
}

// NewRecommendationService creates a new RecommendationService instance.
// lookup defaults to the food store alone when nil.
func NewRecommendationService(
	foods FoodKnowledgeStore,
	engine QueryEngine,
	parser *ResponseParser,
	lookup FoodLookup,
	cfg config.RecommendationConfig,
	m *metrics.Collector,
	log *zap.Logger,
) *RecommendationService {
	if lookup == nil {
		lookup = foods
	}
	if m == nil {
		m = metrics.New()
	}
	limit := cfg.DefaultLimit
	if limit <= 0 {
		limit = 5
	}
	return &RecommendationService{
		foods:        foods,
		engine:       engine,
		parser:       parser,
		ranker:       SimilarityRanker{Policy: SimilarPolicy{AllowCrossCategory: cfg.AllowCrossCategory}},
		lookup:       lookup,
		defaultLimit: limit,
		metrics:      m,
		logger:       log,
	}
}

// SimilarFoods recommends foods like name. Database matches are used when the
// food is known; otherwise the RAG engine is asked. Allergens are removed last.
func (s *RecommendationService) SimilarFoods(ctx context.Context, name string, limit int, user model.UserContext) []model.Recommendation {
	if limit <= 0 {
		limit = s.defaultLimit
	}

	var recs []model.Recommendation
	if base, ok := s.foods.GetByName(ctx, name); ok {
		candidates := s.foods.GetSimilar(ctx, base.Name, base.Category, limit)
		for _, f := range s.ranker.Rank(*base, candidates) {
			recs = append(recs, model.FromFood(f, ReasonFor(user.HealthGoal, f.Nutrition())))
		}
		if len(recs) > limit {
			recs = recs[:limit]
		}
	}

	if len(recs) == 0 {
		s.logger.Debug("No database matches, asking RAG", zap.String("name", name))
		result := s.engine.Query(ctx, fmt.Sprintf("items similar to %s, count=%d", name, limit), 0)
		if !result.Fallback {
			recs = ToRecommendations(s.parser.ParseItems(result.Answer), model.SourceRAG)
			for i := range recs {
				if recs[i].Reason == "" {
					recs[i].Reason = ReasonFor(user.HealthGoal, recs[i].Nutrition)
				}
			}
			if len(recs) > limit {
				recs = recs[:limit]
			}
		}
	}

	recs = s.filterAllergens(recs, user.Allergies)
	s.record("similar", recs)
	return recs
}

// MealPlan builds goal-driven, balanced and variety sections of up to count items each
func (s *RecommendationService) MealPlan(ctx context.Context, user model.UserContext, count int) MealPlan {
	if count <= 0 {
		count = s.defaultLimit
	}

	healthQuery := "healthy foods"
	if user.HealthGoal != "" {
		healthQuery = "foods recommended for the health goal"
	}
	plan := MealPlan{
		HealthBased:  s.recommendFromRAG(ctx, buildQuery(healthQuery, user, count), user, count),
		BalancedMeal: s.recommendFromRAG(ctx, buildQuery("balanced meal combinations", user, count), user, count),
		VarietyBased: s.variety(ctx, user, count),
	}

	s.record("meal_plan", plan.HealthBased)
	s.record("meal_plan", plan.BalancedMeal)
	s.record("meal_plan", plan.VarietyBased)
	return plan
}

func (s *RecommendationService) variety(ctx context.Context, user model.UserContext, count int) []model.Recommendation {
	recent := make(map[string]struct{}, len(user.RecentFoods))
	for _, f := range user.RecentFoods {
		recent[strings.ToLower(strings.TrimSpace(f))] = struct{}{}
	}

	var recs []model.Recommendation
	for _, f := range s.foods.GetAll(ctx, varietyPoolSize) {
		if _, eaten := recent[strings.ToLower(f.Name)]; eaten {
			continue
		}
		recs = append(recs, model.FromFood(f, ReasonNotRecent))
	}
	recs = s.filterAllergens(recs, user.Allergies)

	if len(recs) < minVarietyItems {
		seen := make(map[string]struct{}, len(recs))
		for _, r := range recs {
			seen[r.Name] = struct{}{}
		}
		for _, r := range s.recommendFromRAG(ctx, buildQuery("a variety of different foods", user, count), user, count) {
			if _, dup := seen[r.Name]; dup {
				continue
			}
			if _, eaten := recent[strings.ToLower(r.Name)]; eaten {
				continue
			}
			seen[r.Name] = struct{}{}
			recs = append(recs, r)
		}
	}

	recs = RankByGoal(recs, user.HealthGoal, RecommendationNutrition)
	if len(recs) > count {
		recs = recs[:count]
	}
	return nonNil(recs)
}

// Alternatives suggests replacements for name. Database-backed alternatives of
// a known food carry a per-nutrient comparison.
func (s *RecommendationService) Alternatives(ctx context.Context, name, reason string, user model.UserContext, limit int) []Alternative {
	if limit <= 0 {
		limit = defaultAlternativeLimit
	}

	query := fmt.Sprintf("alternatives to %s", name)
	if reason != "" {
		query += fmt.Sprintf(", reason: %s", reason)
	}

	original, known := s.foods.GetByName(ctx, name)
	var candidates []model.Recommendation
	for _, r := range s.recommendFromRAG(ctx, buildQuery(query, user, limit), user, 0) {
		if strings.EqualFold(r.Name, name) {
			continue
		}
		candidates = append(candidates, r)
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]Alternative, 0, len(candidates))
	for _, c := range candidates {
		alt := Alternative{Recommendation: c}
		if known && c.Source == model.SourceDatabase {
			alt.Comparison = CompareNutrition(original.Nutrition(), c.Nutrition)
		}
		out = append(out, alt)
	}

	recs := make([]model.Recommendation, len(out))
	for i := range out {
		recs[i] = out[i].Recommendation
	}
	s.record("alternatives", recs)
	return out
}

// Recipes suggests recipes for the meal type and available ingredients
func (s *RecommendationService) Recipes(ctx context.Context, user model.UserContext, ingredients []string, mealType string, limit int) []model.RecipeRecommendation {
	if limit <= 0 {
		limit = defaultRecipeLimit
	}

	query := "recipe recommendations"
	if mealType != "" {
		query += fmt.Sprintf(", meal type: %s", mealType)
	}
	if len(ingredients) > 0 {
		shown := ingredients
		if len(shown) > maxQueryIngredients {
			shown = shown[:maxQueryIngredients]
		}
		query += fmt.Sprintf(", ingredients: %s", strings.Join(shown, ", "))
		if extra := len(ingredients) - len(shown); extra > 0 {
			query += fmt.Sprintf(" and %d more", extra)
		}
	}

	result := s.engine.Query(ctx, buildQuery(query, user, limit), 0)
	if result.Fallback {
		return []model.RecipeRecommendation{}
	}

	recipes := ToRecipes(s.parser.ParseItems(result.Answer), model.SourceRAG)
	for i := range recipes {
		if food, ok := s.foods.GetByName(ctx, recipes[i].Title); ok {
			recipes[i].Source = model.SourceDatabase
			recipes[i].Nutrition = food.Nutrition()
		}
		if recipes[i].Reason == "" {
			recipes[i].Reason = ReasonFor(user.HealthGoal, recipes[i].Nutrition)
		}
	}

	recipes, dropped := FilterRecipeAllergens(recipes, user.Allergies)
	s.metrics.AllergyFiltered(dropped)
	recipes = RankByGoal(recipes, user.HealthGoal, RecipeNutrition)
	if len(recipes) > limit {
		recipes = recipes[:limit]
	}

	for source, n := range countRecipeSources(recipes) {
		s.metrics.Recommended("recipes", string(source), n)
	}
	return recipes
}

// LookupFood resolves a food from the database, then from RAG
func (s *RecommendationService) LookupFood(ctx context.Context, name string) (*model.Food, bool) {
	return s.lookup.Lookup(ctx, name)
}

// recommendFromRAG runs query, enriches items from the database, removes
// allergens and ranks by goal. limit <= 0 keeps every item.
func (s *RecommendationService) recommendFromRAG(ctx context.Context, query string, user model.UserContext, limit int) []model.Recommendation {
	result := s.engine.Query(ctx, query, 0)
	if result.Fallback {
		return []model.Recommendation{}
	}

	recs := ToRecommendations(s.parser.ParseItems(result.Answer), model.SourceRAG)
	for i, r := range recs {
		reason := r.Reason
		if food, ok := s.foods.GetByName(ctx, r.Name); ok {
			if reason == "" {
				reason = ReasonFor(user.HealthGoal, food.Nutrition())
			}
			recs[i] = model.FromFood(*food, reason)
			continue
		}
		if reason == "" {
			recs[i].Reason = ReasonFor(user.HealthGoal, r.Nutrition)
		}
	}

	recs = s.filterAllergens(recs, user.Allergies)
	recs = RankByGoal(recs, user.HealthGoal, RecommendationNutrition)
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return nonNil(recs)
}

func (s *RecommendationService) filterAllergens(recs []model.Recommendation, allergies []string) []model.Recommendation {
	kept, dropped := FilterAllergens(recs, allergies)
	if dropped > 0 {
		s.logger.Debug("Removed allergen matches", zap.Int("dropped", dropped))
	}
	s.metrics.AllergyFiltered(dropped)
	return kept
}

func (s *RecommendationService) record(kind string, recs []model.Recommendation) {
	counts := make(map[model.Source]int)
	for _, r := range recs {
		counts[r.Source]++
	}
	for source, n := range counts {
		s.metrics.Recommended(kind, string(source), n)
	}
}

func countRecipeSources(recipes []model.RecipeRecommendation) map[model.Source]int {
	counts := make(map[model.Source]int)
	for _, r := range recipes {
		counts[r.Source]++
	}
	return counts
}

// buildQuery appends the user's goal, exclusions and the desired count to base
func buildQuery(base string, user model.UserContext, count int) string {
	parts := []string{base}
	if user.HealthGoal != "" {
		parts = append(parts, "health goal: "+user.HealthGoal)
	}
	if allergies := allergyTerms(user.Allergies); len(allergies) > 0 {
		parts = append(parts, "exclude allergens: "+strings.Join(allergies, ", "))
	}
	if len(user.RecentFoods) > 0 {
		recent := user.RecentFoods
		if len(recent) > maxQueryRecentFoods {
			recent = recent[:maxQueryRecentFoods]
		}
		parts = append(parts, "exclude recently eaten: "+strings.Join(recent, ", "))
	}
	if count > 0 {
		parts = append(parts, fmt.Sprintf("count=%d", count))
	}
	return strings.Join(parts, ", ")
}

// CompareNutrition reports the change of every nutrient present in both snapshots
func CompareNutrition(original, alternative model.NutritionSnapshot) map[string]NutrientComparison {
	keys := make([]string, 0, len(original))
	for k := range original {
		if _, ok := alternative[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make(map[string]NutrientComparison, len(keys))
	for _, k := range keys {
		orig, alt := original[k], alternative[k]
		change := alt - orig
		c := NutrientComparison{
			Original:    orig,
			Alternative: alt,
			Change:      change,
			Direction:   DirectionSame,
		}
		switch {
		case change > 0:
			c.Direction = DirectionUp
		case change < 0:
			c.Direction = DirectionDown
		}
		if orig != 0 {
			pct := math.Round(change/orig*1000) / 10
			c.Percentage = &pct
		} else if change == 0 {
			zero := 0.0
			c.Percentage = &zero
		}
		out[k] = c
	}
	return out
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
