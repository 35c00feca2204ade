package model

// Source tags where a recommendation came from
type Source string

const (
	SourceDatabase Source = "database"
	SourceRAG      Source = "rag"
)

// Nutrient keys used in snapshots
const (
	NutrientCalories = "calories"
	NutrientCarbs    = "carbs"
	NutrientProtein  = "protein"
	NutrientFat      = "fat"
	NutrientSodium   = "sodium"
	NutrientFiber    = "fiber"
	NutrientSugar    = "sugar"
)

// NutritionSnapshot maps nutrient keys to amounts
type NutritionSnapshot map[string]float64

// UserContext is supplied by the caller for every request
type UserContext struct {
	HealthGoal  string   `json:"health_goal"`
	Allergies   []string `json:"allergies"`
	RecentFoods []string `json:"recent_foods"`
}

// Recommendation is a suggested food
type Recommendation struct {
	Name      string            `json:"name"`
	Category  string            `json:"category"`
	Reason    string            `json:"reason"`
	Nutrition NutritionSnapshot `json:"nutrition"`
	Tags      []string          `json:"tags"`
	Source    Source            `json:"source"`
}

// RecipeRecommendation is a suggested recipe
type RecipeRecommendation struct {
	Title        string            `json:"title"`
	Ingredients  []string          `json:"ingredients"`
	Instructions string            `json:"instructions"`
	Nutrition    NutritionSnapshot `json:"nutrition"`
	Reason       string            `json:"reason"`
	Source       Source            `json:"source"`
}

// FromFood builds a database-sourced recommendation
func FromFood(f Food, reason string) Recommendation {
	tags := make([]string, len(f.Tags.Values))
	copy(tags, f.Tags.Values)
	return Recommendation{
		Name:      f.Name,
		Category:  f.Category,
		Reason:    reason,
		Nutrition: f.Nutrition(),
		Tags:      tags,
		Source:    SourceDatabase,
	}
}
