package service

import (
	"context"
	"errors"
	"math"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pageza/mealsense/backend/internal/apperrors"
	"github.com/pageza/mealsense/backend/internal/model"
)

// SimilarPolicy controls how GetSimilar fills short same-category results
type SimilarPolicy struct {
	AllowCrossCategory bool
}

// FoodStore is the gorm-backed food knowledge base.
// Read errors are logged and reported as empty results.
type FoodStore struct {
	db     *gorm.DB
	policy SimilarPolicy
	logger *zap.Logger
}

// NewFoodStore creates a new FoodStore instance
func NewFoodStore(db *gorm.DB, policy SimilarPolicy, log *zap.Logger) *FoodStore {
	return &FoodStore{
		db:     db,
		policy: policy,
		logger: log,
	}
}

// GetByName returns the food with exactly this name
func (s *FoodStore) GetByName(ctx context.Context, name string) (*model.Food, bool) {
	var food model.Food
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&food).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("Failed to get food by name",
				zap.String("name", name),
				zap.Error(apperrors.NewDatabaseError("get food", err)))
		}
		return nil, false
	}
	s.warnMalformed(&food)
	return &food, true
}

// Lookup resolves a food from the database
func (s *FoodStore) Lookup(ctx context.Context, name string) (*model.Food, bool) {
	return s.GetByName(ctx, name)
}

// GetSimilar returns foods of the given category closest in calories to name.
// An unknown base food counts as zero calories.
func (s *FoodStore) GetSimilar(ctx context.Context, name, category string, limit int) []model.Food {
	if limit <= 0 {
		return []model.Food{}
	}

	base := 0.0
	if food, ok := s.GetByName(ctx, name); ok {
		base = food.Calories
	}

	var same []model.Food
	err := s.db.WithContext(ctx).
		Where("category = ? AND name <> ?", category, name).
		Order("id").
		Find(&same).Error
	if err != nil {
		s.logger.Error("Failed to load similar foods",
			zap.String("category", category),
			zap.Error(apperrors.NewDatabaseError("get similar foods", err)))
		return []model.Food{}
	}
	s.warnMalformedAll(same)
	out := takeClosest(same, base, limit)

	if !s.policy.AllowCrossCategory || len(out) >= limit {
		return out
	}

	var others []model.Food
	err = s.db.WithContext(ctx).
		Where("category <> ? AND name <> ?", category, name).
		Order("id").
		Find(&others).Error
	if err != nil {
		s.logger.Error("Failed to load cross-category foods",
			zap.String("category", category),
			zap.Error(apperrors.NewDatabaseError("get similar foods", err)))
		return out
	}
	s.warnMalformedAll(others)
	return append(out, takeClosest(others, base, limit-len(out))...)
}

// SearchByCategory returns every food in category in insertion order
func (s *FoodStore) SearchByCategory(ctx context.Context, category string) []model.Food {
	var foods []model.Food
	if err := s.db.WithContext(ctx).Where("category = ?", category).Order("id").Find(&foods).Error; err != nil {
		s.logger.Error("Failed to search foods by category",
			zap.String("category", category),
			zap.Error(apperrors.NewDatabaseError("search foods", err)))
		return []model.Food{}
	}
	s.warnMalformedAll(foods)
	return foods
}

// GetAll returns up to limit foods in insertion order. limit <= 0 returns all.
func (s *FoodStore) GetAll(ctx context.Context, limit int) []model.Food {
	var foods []model.Food
	query := s.db.WithContext(ctx).Order("id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&foods).Error; err != nil {
		s.logger.Error("Failed to list foods", zap.Error(apperrors.NewDatabaseError("list foods", err)))
		return []model.Food{}
	}
	s.warnMalformedAll(foods)
	return foods
}

// Upsert inserts food or updates the existing row with the same name
func (s *FoodStore) Upsert(ctx context.Context, food *model.Food) error {
	if food.Name == "" {
		return apperrors.NewBadRequestError("food name is required")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"category", "calories", "carbs", "protein", "fat",
			"sodium", "fiber", "sugar", "tags", "description", "source", "updated_at",
		}),
	}).Create(food).Error
	if err != nil {
		return apperrors.NewDatabaseError("upsert food", err)
	}
	return nil
}

// Count returns the number of stored foods
func (s *FoodStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Food{}).Count(&n).Error; err != nil {
		return 0, apperrors.NewDatabaseError("count foods", err)
	}
	return n, nil
}

func (s *FoodStore) warnMalformed(f *model.Food) {
	if f.Tags.Malformed() {
		s.logger.Warn("Food has malformed tags, treating as empty", zap.String("name", f.Name))
	}
}

func (s *FoodStore) warnMalformedAll(foods []model.Food) {
	for i := range foods {
		s.warnMalformed(&foods[i])
	}
}

// takeClosest sorts foods stably by calorie distance from base and keeps the first n
func takeClosest(foods []model.Food, base float64, n int) []model.Food {
	sort.SliceStable(foods, func(i, j int) bool {
		return math.Abs(foods[i].Calories-base) < math.Abs(foods[j].Calories-base)
	})
	if len(foods) > n {
		foods = foods[:n]
	}
	if foods == nil {
		return []model.Food{}
	}
	return foods
}
