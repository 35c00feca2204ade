package service

import (
	"math"
	"sort"
	"strings"

	"github.com/pageza/mealsense/backend/internal/model"
)

// Reasons attached to ranked recommendations
const (
	ReasonLowCalorie  = "low calorie"
	ReasonHighProtein = "high protein"
	ReasonLowCarb     = "low carb"
	ReasonLowSodium   = "low sodium"
	ReasonBalanced    = "balanced nutrition"
	ReasonNotRecent   = "not eaten recently, adds variety"
)

// SimilarityRanker orders candidate foods by calorie distance to a base food
type SimilarityRanker struct {
	Policy SimilarPolicy
}

// Rank keeps candidates in base's category other than base itself, sorted
// stably by ascending calorie distance. With AllowCrossCategory, candidates
// from other categories follow, ranked the same way.
func (r SimilarityRanker) Rank(base model.Food, candidates []model.Food) []model.Food {
	same := make([]model.Food, 0, len(candidates))
	var other []model.Food
	for _, c := range candidates {
		switch {
		case c.Name == base.Name:
		case c.Category == base.Category:
			same = append(same, c)
		case r.Policy.AllowCrossCategory:
			other = append(other, c)
		}
	}
	byDistance := func(foods []model.Food) {
		sort.SliceStable(foods, func(i, j int) bool {
			return math.Abs(foods[i].Calories-base.Calories) < math.Abs(foods[j].Calories-base.Calories)
		})
	}
	byDistance(same)
	byDistance(other)
	return append(same, other...)
}

type goalRule struct {
	terms     []string
	nutrient  string
	ascending bool
	reason    string
	qualifies func(v float64) bool
}

var goalRules = []goalRule{
	{
		terms:     []string{"weight loss", "diet", "체중 감량", "다이어트"},
		nutrient:  model.NutrientCalories,
		ascending: true,
		reason:    ReasonLowCalorie,
		qualifies: func(v float64) bool { return v < 500 },
	},
	{
		terms:     []string{"muscle gain", "bulk", "근육 증가", "벌크업"},
		nutrient:  model.NutrientProtein,
		ascending: false,
		reason:    ReasonHighProtein,
		qualifies: func(v float64) bool { return v > 25 },
	},
	{
		terms:     []string{"diabetes", "당뇨"},
		nutrient:  model.NutrientCarbs,
		ascending: true,
		reason:    ReasonLowCarb,
		qualifies: func(v float64) bool { return v < 30 },
	},
	{
		terms:     []string{"hypertension", "고혈압"},
		nutrient:  model.NutrientSodium,
		ascending: true,
		reason:    ReasonLowSodium,
		qualifies: func(v float64) bool { return v < 500 },
	},
}

// matchGoal returns the first rule whose term appears in goal, case-insensitively
func matchGoal(goal string) (goalRule, bool) {
	goal = strings.ToLower(goal)
	if strings.TrimSpace(goal) == "" {
		return goalRule{}, false
	}
	for _, rule := range goalRules {
		for _, term := range rule.terms {
			if strings.Contains(goal, term) {
				return rule, true
			}
		}
	}
	return goalRule{}, false
}

// RankByGoal orders items by the nutrient the goal cares about. Items missing
// that nutrient follow in their original order; unknown goals keep the input order.
func RankByGoal[T any](items []T, goal string, nutrition func(T) model.NutritionSnapshot) []T {
	rule, ok := matchGoal(goal)
	if !ok {
		return items
	}

	with := make([]T, 0, len(items))
	var without []T
	for _, it := range items {
		if _, has := nutrition(it)[rule.nutrient]; has {
			with = append(with, it)
		} else {
			without = append(without, it)
		}
	}
	sort.SliceStable(with, func(i, j int) bool {
		a := nutrition(with[i])[rule.nutrient]
		b := nutrition(with[j])[rule.nutrient]
		if rule.ascending {
			return a < b
		}
		return a > b
	})
	return append(with, without...)
}

// RecommendationNutrition selects a recommendation's nutrients for ranking
func RecommendationNutrition(r model.Recommendation) model.NutritionSnapshot { return r.Nutrition }

// RecipeNutrition selects a recipe's nutrients for ranking
func RecipeNutrition(r model.RecipeRecommendation) model.NutritionSnapshot { return r.Nutrition }

// ReasonFor explains why a food with these nutrients suits the goal
func ReasonFor(goal string, nutrition model.NutritionSnapshot) string {
	if rule, ok := matchGoal(goal); ok {
		if v, has := nutrition[rule.nutrient]; has && rule.qualifies(v) {
			return rule.reason
		}
	}
	return ReasonBalanced
}

// FilterAllergens drops recommendations whose name or any tag contains an
// allergy term, case-insensitively. It returns the kept items and the number dropped.
func FilterAllergens(items []model.Recommendation, allergies []string) ([]model.Recommendation, int) {
	terms := allergyTerms(allergies)
	out := make([]model.Recommendation, 0, len(items))
	for _, it := range items {
		if containsAny(terms, append([]string{it.Name}, it.Tags...)...) {
			continue
		}
		out = append(out, it)
	}
	return out, len(items) - len(out)
}

// FilterRecipeAllergens drops recipes whose title or any ingredient contains an allergy term
func FilterRecipeAllergens(items []model.RecipeRecommendation, allergies []string) ([]model.RecipeRecommendation, int) {
	terms := allergyTerms(allergies)
	out := make([]model.RecipeRecommendation, 0, len(items))
	for _, it := range items {
		if containsAny(terms, append([]string{it.Title}, it.Ingredients...)...) {
			continue
		}
		out = append(out, it)
	}
	return out, len(items) - len(out)
}

func allergyTerms(allergies []string) []string {
	terms := make([]string, 0, len(allergies))
	for _, a := range allergies {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			terms = append(terms, a)
		}
	}
	return terms
}

func containsAny(terms []string, fields ...string) bool {
	for _, f := range fields {
		f = strings.ToLower(f)
		for _, t := range terms {
			if strings.Contains(f, t) {
				return true
			}
		}
	}
	return false
}
