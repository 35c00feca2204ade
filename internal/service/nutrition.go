package service

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/internal/model"
)

// Overall verdicts of a daily analysis
const (
	BalanceLow    = "low"
	BalanceNormal = "normal"
	BalanceHigh   = "high"
)

// RecommendedDaily is the reference intake the analysis compares against
var RecommendedDaily = model.NutritionSnapshot{
	model.NutrientCalories: 2000,
	model.NutrientProtein:  50,
	model.NutrientFat:      65,
	model.NutrientCarbs:    300,
	model.NutrientSodium:   2000,
	model.NutrientFiber:    25,
	model.NutrientSugar:    50,
}

// intakeBand holds the low and high ratios of the recommended value; zero disables a side
type intakeBand struct {
	nutrient string
	low      float64
	high     float64
	lowMsg   string
	highMsg  string
}

var intakeBands = []intakeBand{
	{model.NutrientCalories, 0.75, 1.25,
		"Calorie intake is low. Eat more to meet your energy needs.",
		"Calorie intake is high. Reduce portion sizes."},
	{model.NutrientProtein, 0.8, 2,
		"Protein intake is low. Add protein-rich foods.",
		"Protein intake is high. Moderate protein portions."},
	{model.NutrientFat, 0.5, 1.5,
		"Fat intake is low. Add sources of healthy fats.",
		"Fat intake is high. Reduce fatty foods."},
	{model.NutrientCarbs, 0.7, 1.3,
		"Carbohydrate intake is low. Add energy-providing foods.",
		"Carbohydrate intake is high. Moderate carbohydrate portions."},
	{model.NutrientSodium, 0, 1.3,
		"",
		"Sodium intake is high. Cut back on processed foods and salt."},
	{model.NutrientFiber, 0.7, 0,
		"Fiber intake is low. Eat more vegetables, fruit and whole grains.",
		""},
	{model.NutrientSugar, 0, 1.2,
		"",
		"Sugar intake is high. Cut back on sweets and processed foods."},
}

// Evaluation is the verdict on a day's intake
type Evaluation struct {
	Overall     string   `json:"overall"`
	Suggestions []string `json:"suggestions"`
}

// DailyAnalysis sums a day's foods and compares them with RecommendedDaily
type DailyAnalysis struct {
	Total      model.NutritionSnapshot `json:"total"`
	Percentage model.NutritionSnapshot `json:"percentage"`
	Evaluation Evaluation              `json:"evaluation"`
	Unknown    []string                `json:"unknown_foods"`
}

// NutritionAnalyzer evaluates daily intake against reference values
type NutritionAnalyzer struct {
	foods  FoodLookup
	logger *zap.Logger
}

// NewNutritionAnalyzer creates a new NutritionAnalyzer instance
func NewNutritionAnalyzer(foods FoodLookup, log *zap.Logger) *NutritionAnalyzer {
	return &NutritionAnalyzer{foods: foods, logger: log}
}

// AnalyzeDaily totals the nutrients of the named foods. Names that cannot be
// resolved are listed in Unknown and contribute nothing.
func (a *NutritionAnalyzer) AnalyzeDaily(ctx context.Context, foodNames []string) DailyAnalysis {
	total := make(model.NutritionSnapshot, len(RecommendedDaily))
	for k := range RecommendedDaily {
		total[k] = 0
	}
	unknown := []string{}

	for _, name := range foodNames {
		food, ok := a.foods.Lookup(ctx, name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		for k, v := range food.Nutrition() {
			if _, tracked := total[k]; tracked {
				total[k] += v
			}
		}
	}
	if len(unknown) > 0 {
		a.logger.Debug("Daily analysis skipped unknown foods", zap.Strings("foods", unknown))
	}

	return DailyAnalysis{
		Total:      total,
		Percentage: percentOfRecommended(total),
		Evaluation: EvaluateBalance(total),
		Unknown:    unknown,
	}
}

func percentOfRecommended(total model.NutritionSnapshot) model.NutritionSnapshot {
	out := make(model.NutritionSnapshot, len(total))
	for k, v := range total {
		rec := RecommendedDaily[k]
		if rec <= 0 {
			out[k] = 0
			continue
		}
		out[k] = math.Round(v/rec*10000) / 100
	}
	return out
}

// EvaluateBalance applies the intake bands. Calories alone drive the overall verdict.
func EvaluateBalance(total model.NutritionSnapshot) Evaluation {
	eval := Evaluation{Overall: BalanceNormal, Suggestions: []string{}}
	for _, band := range intakeBands {
		v := total[band.nutrient]
		rec := RecommendedDaily[band.nutrient]
		switch {
		case band.low > 0 && v < rec*band.low:
			eval.Suggestions = append(eval.Suggestions, band.lowMsg)
			if band.nutrient == model.NutrientCalories {
				eval.Overall = BalanceLow
			}
		case band.high > 0 && v > rec*band.high:
			eval.Suggestions = append(eval.Suggestions, band.highMsg)
			if band.nutrient == model.NutrientCalories {
				eval.Overall = BalanceHigh
			}
		}
	}
	return eval
}
