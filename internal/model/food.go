package model

import (
	"time"
)

// Food is a known food or recipe with its nutrient profile
type Food struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	Name        string    `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Category    string    `gorm:"size:100;index" json:"category"`
	Calories    float64   `gorm:"type:float" json:"calories"`
	Carbs       float64   `gorm:"type:float" json:"carbs"`
	Protein     float64   `gorm:"type:float" json:"protein"`
	Fat         float64   `gorm:"type:float" json:"fat"`
	Sodium      float64   `gorm:"type:float" json:"sodium"`
	Fiber       float64   `gorm:"type:float" json:"fiber"`
	Sugar       float64   `gorm:"type:float" json:"sugar"`
	Tags        Tags      `gorm:"not null" json:"tags"`
	Description string    `gorm:"type:text" json:"description"`
	Source      string    `gorm:"size:50" json:"source"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Nutrition returns the nutrient fields as a snapshot map
func (f Food) Nutrition() NutritionSnapshot {
	return NutritionSnapshot{
		NutrientCalories: f.Calories,
		NutrientCarbs:    f.Carbs,
		NutrientProtein:  f.Protein,
		NutrientFat:      f.Fat,
		NutrientSodium:   f.Sodium,
		NutrientFiber:    f.Fiber,
		NutrientSugar:    f.Sugar,
	}
}
