package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/internal/database"
	"github.com/pageza/mealsense/backend/internal/metrics"
	"github.com/pageza/mealsense/backend/internal/model"
	"github.com/pageza/mealsense/backend/internal/service"
	"github.com/pageza/mealsense/backend/internal/testdb"
)

func TestPostgresRoundTrip(t *testing.T) {
	tdb := testdb.SetupTestDB(t)
	ctx := context.Background()

	t.Run("should report healthy", func(t *testing.T) {
		require.NoError(t, database.HealthCheck(ctx, tdb.DB))
	})

	t.Run("should store tags as jsonb", func(t *testing.T) {
		foods := service.NewFoodStore(tdb.DB, service.SimilarPolicy{}, zap.NewNop())
		food := model.Food{
			Name:     "kimchi",
			Category: "fermented",
			Calories: 23,
			Sodium:   747,
			Tags:     model.NewTags("spicy", "probiotic"),
			Source:   string(model.SourceDatabase),
		}
		require.NoError(t, foods.Upsert(ctx, &food))

		got, ok := foods.GetByName(ctx, "kimchi")
		require.True(t, ok)
		assert.Equal(t, []string{"spicy", "probiotic"}, got.Tags.Values)
		assert.False(t, got.Tags.Malformed())
	})

	t.Run("should persist embeddings in a vector column", func(t *testing.T) {
		store := service.NewDocumentStore(tdb.DB, service.NewHashEmbedder(16), nil, metrics.New(), zap.NewNop())
		n := store.AddDocuments(ctx, []model.Document{{
			Content:  "Kimchi is fermented napa cabbage with chili.",
			Metadata: model.Metadata{model.MetaType: service.DocTypeArticle, model.MetaTitle: "kimchi"},
		}})
		require.Equal(t, 1, n)

		reloaded := service.NewDocumentStore(tdb.DB, service.NewHashEmbedder(16), nil, metrics.New(), zap.NewNop())
		require.NoError(t, reloaded.Load(ctx))
		assert.Equal(t, 1, reloaded.Len())
		assert.Equal(t, 16, reloaded.Dimension())

		var colType string
		require.NoError(t, tdb.DB.Raw(
			"SELECT udt_name FROM information_schema.columns WHERE table_name = 'document_chunks' AND column_name = 'embedding'",
		).Scan(&colType).Error)
		assert.Equal(t, "vector", colType)
	})
}
