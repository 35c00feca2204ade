package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/mealsense/backend/config"
	"github.com/pageza/mealsense/backend/internal/database"
	"github.com/pageza/mealsense/backend/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// newTestDB opens a migrated in-memory sqlite database closed at test end
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, zap.NewNop()))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func testFoods() []model.Food {
	return []model.Food{
		{Name: "kimchi", Category: "side", Calories: 23, Carbs: 4, Protein: 2, Fat: 0.5, Sodium: 670, Tags: model.NewTags("fermented", "spicy")},
		{Name: "kkakdugi", Category: "side", Calories: 30, Carbs: 6, Protein: 1, Sodium: 600, Tags: model.NewTags("fermented", "radish")},
		{Name: "spinach namul", Category: "side", Calories: 60, Carbs: 5, Protein: 3, Fat: 4, Sodium: 300, Tags: model.NewTags("vegetable", "sesame")},
		{Name: "pickled radish", Category: "side", Calories: 25, Carbs: 6, Sodium: 700, Tags: model.NewTags("radish")},
		{Name: "bibimbap", Category: "main", Calories: 560, Carbs: 85, Protein: 20, Fat: 15, Sodium: 900, Tags: model.NewTags("rice", "egg", "vegetable")},
		{Name: "chicken breast salad", Category: "main", Calories: 350, Carbs: 12, Protein: 35, Fat: 10, Sodium: 450, Tags: model.NewTags("chicken", "salad")},
	}
}

// newSeededStore returns a FoodStore over testFoods
func newSeededStore(t *testing.T, policy SimilarPolicy) *FoodStore {
	t.Helper()
	store := NewFoodStore(newTestDB(t), policy, zap.NewNop())
	for _, f := range testFoods() {
		food := f
		food.Source = string(model.SourceDatabase)
		require.NoError(t, store.Upsert(context.Background(), &food))
	}
	return store
}
