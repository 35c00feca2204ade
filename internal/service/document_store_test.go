package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/internal/metrics"
	"github.com/pageza/mealsense/backend/internal/mocks"
	"github.com/pageza/mealsense/backend/internal/model"
)

func newTestDocumentStore(t *testing.T, embedder Embedder) *DocumentStore {
	t.Helper()
	return NewDocumentStore(newTestDB(t), embedder, nil, metrics.New(), zap.NewNop())
}

func article(title, content string) model.Document {
	return model.Document{
		Content:  content,
		Metadata: model.Metadata{model.MetaType: DocTypeArticle, model.MetaTitle: title},
	}
}

func TestDocumentStore_AddDocuments(t *testing.T) {
	ctx := context.Background()

	t.Run("should split, embed and index documents", func(t *testing.T) {
		store := newTestDocumentStore(t, NewHashEmbedder(32))
		n := store.AddDocuments(ctx, []model.Document{
			article("kimchi", "Kimchi is fermented napa cabbage with chili."),
			article("bibimbap", "Bibimbap is rice topped with vegetables and egg."),
		})
		assert.Equal(t, 2, n)
		assert.Equal(t, 2, store.Len())
		assert.Equal(t, 32, store.Dimension())
	})

	t.Run("should honour per-call split options", func(t *testing.T) {
		store := newTestDocumentStore(t, NewHashEmbedder(32))
		long := strings.Repeat("Brown rice has more fiber than white rice. ", 20)
		n := store.AddDocuments(ctx, []model.Document{article("rice", long)}, WithChunkSize(100), WithChunkOverlap(10))
		assert.Greater(t, n, 5)
		assert.Equal(t, n, store.Len())
	})

	t.Run("should skip documents whose embedding fails", func(t *testing.T) {
		embedder := new(mocks.MockEmbedder)
		embedder.On("Embed", mock.Anything, "broken document").Return(nil, errors.New("backend down"))
		embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{1, 0, 0}, nil)

		store := newTestDocumentStore(t, embedder)
		n := store.AddDocuments(ctx, []model.Document{
			article("a", "first document"),
			article("b", "broken document"),
			article("c", "third document"),
		})
		assert.Equal(t, 2, n)
		assert.Equal(t, 2, store.Len())
	})

	t.Run("should reject embeddings of a different dimension", func(t *testing.T) {
		embedder := new(mocks.MockEmbedder)
		embedder.On("Embed", mock.Anything, "three dims").Return([]float32{1, 0, 0}, nil)
		embedder.On("Embed", mock.Anything, "two dims").Return([]float32{1, 0}, nil)

		store := newTestDocumentStore(t, embedder)
		n := store.AddDocuments(ctx, []model.Document{article("a", "three dims"), article("b", "two dims")})
		assert.Equal(t, 1, n)
		assert.Equal(t, 3, store.Dimension())

		assert.Equal(t, 0, store.AddDocuments(ctx, []model.Document{article("c", "two dims")}))
		assert.Equal(t, 1, store.Len())
	})

	t.Run("should ignore empty documents", func(t *testing.T) {
		store := newTestDocumentStore(t, NewHashEmbedder(32))
		assert.Equal(t, 0, store.AddDocuments(ctx, []model.Document{article("empty", "   ")}))
	})

	t.Run("should stamp metadata", func(t *testing.T) {
		store := newTestDocumentStore(t, NewHashEmbedder(32))
		store.AddDocuments(ctx, []model.Document{article("kimchi", "Kimchi is fermented.")})

		q, _ := NewHashEmbedder(32).Embed(ctx, "Kimchi is fermented.")
		hits := store.SimilaritySearch(ctx, q, 1)
		require.Len(t, hits, 1)
		assert.Equal(t, "kimchi", hits[0].Chunk.Metadata[model.MetaTitle])
		assert.NotEmpty(t, hits[0].Chunk.Metadata[model.MetaAddedAt])
	})
}

func TestDocumentStore_AddNutritionDocument(t *testing.T) {
	ctx := context.Background()
	store := newTestDocumentStore(t, NewHashEmbedder(32))

	food := testFoods()[0]
	require.True(t, store.AddNutritionDocument(ctx, food))

	q, _ := NewHashEmbedder(32).Embed(ctx, FormatNutritionDocument(food))
	hits := store.SimilaritySearch(ctx, q, 1)
	require.Len(t, hits, 1)
	chunk := hits[0].Chunk
	assert.Equal(t, DocTypeNutrition, chunk.Metadata[model.MetaType])
	assert.Equal(t, "kimchi", chunk.Metadata[model.MetaName])
	assert.Equal(t, "side", chunk.Metadata[model.MetaCategory])
	assert.Contains(t, chunk.Content, "Calories: 23 kcal")
	assert.Contains(t, chunk.Content, "Sodium: 670 mg")
	assert.Contains(t, chunk.Content, "Tags: fermented, spicy")
}

func TestDocumentStore_SimilaritySearch(t *testing.T) {
	ctx := context.Background()
	embedder := NewHashEmbedder(64)
	store := newTestDocumentStore(t, embedder)

	docs := []string{
		"Kimchi is a spicy fermented cabbage side dish.",
		"Grilled salmon is rich in omega-3 fats.",
		"Kimchi is a spicy fermented cabbage side dish.",
		"Oatmeal is a whole grain breakfast high in fiber.",
	}
	for i, d := range docs {
		store.AddDocuments(ctx, []model.Document{article(string(rune('a'+i)), d)})
	}
	require.Equal(t, 4, store.Len())

	t.Run("should score identical vectors exactly one and keep storage order on ties", func(t *testing.T) {
		q, err := embedder.Embed(ctx, docs[0])
		require.NoError(t, err)

		hits := store.SimilaritySearch(ctx, q, 3)
		require.Len(t, hits, 3)
		assert.Equal(t, 1.0, hits[0].Score)
		assert.Equal(t, 1.0, hits[1].Score)
		assert.Less(t, hits[0].Chunk.ID, hits[1].Chunk.ID)
		assert.Equal(t, "a", hits[0].Chunk.Metadata[model.MetaTitle])
		assert.Equal(t, "c", hits[1].Chunk.Metadata[model.MetaTitle])
		assert.LessOrEqual(t, hits[2].Score, hits[1].Score)
	})

	t.Run("should keep scores within range", func(t *testing.T) {
		q, _ := embedder.Embed(ctx, "fiber rich breakfast")
		for _, h := range store.SimilaritySearch(ctx, q, 10) {
			assert.GreaterOrEqual(t, h.Score, -1.0)
			assert.LessOrEqual(t, h.Score, 1.0)
		}
	})

	t.Run("should cap results at the index size", func(t *testing.T) {
		q, _ := embedder.Embed(ctx, "salmon")
		assert.Len(t, store.SimilaritySearch(ctx, q, 100), 4)
	})

	t.Run("should return nothing for invalid queries", func(t *testing.T) {
		assert.Empty(t, store.SimilaritySearch(ctx, []float32{1, 2, 3}, 3))
		assert.Empty(t, store.SimilaritySearch(ctx, make([]float32, 64), 3))

		q, _ := embedder.Embed(ctx, "salmon")
		assert.Empty(t, store.SimilaritySearch(ctx, q, 0))

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.Empty(t, store.SimilaritySearch(cctx, q, 3))
	})
}

func TestDocumentStore_Load(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	embedder := NewHashEmbedder(16)

	writer := NewDocumentStore(db, embedder, nil, nil, zap.NewNop())
	require.Equal(t, 3, writer.AddDocuments(ctx, []model.Document{
		article("a", "tofu soup"),
		article("b", "seaweed soup"),
		article("c", "bean sprout soup"),
	}))

	t.Run("should rebuild the index from the database", func(t *testing.T) {
		reader := NewDocumentStore(db, embedder, nil, nil, zap.NewNop())
		assert.Equal(t, 0, reader.Len())
		require.NoError(t, reader.Load(ctx))
		assert.Equal(t, 3, reader.Len())
		assert.Equal(t, 16, reader.Dimension())
	})

	t.Run("should skip chunks with corrupt embeddings", func(t *testing.T) {
		require.NoError(t, db.Exec("UPDATE document_chunks SET embedding = ? WHERE content = ?", "garbage", "seaweed soup").Error)

		reader := NewDocumentStore(db, embedder, nil, nil, zap.NewNop())
		require.NoError(t, reader.Load(ctx))
		assert.Equal(t, 2, reader.Len())
	})

	t.Run("should survive truncated embeddings", func(t *testing.T) {
		require.NoError(t, db.Exec("UPDATE document_chunks SET embedding = ? WHERE content = ?", "", "tofu soup").Error)
		require.NoError(t, db.Exec("UPDATE document_chunks SET embedding = ? WHERE content = ?", "x", "bean sprout soup").Error)

		reader := NewDocumentStore(db, embedder, nil, nil, zap.NewNop())
		require.NotPanics(t, func() {
			require.NoError(t, reader.Load(ctx))
		})
		assert.Equal(t, 0, reader.Len())
	})
}

func TestDocumentStore_ConcurrentReads(t *testing.T) {
	ctx := context.Background()
	embedder := NewHashEmbedder(32)
	store := newTestDocumentStore(t, embedder)
	store.AddDocuments(ctx, []model.Document{article("seed", "barley tea")})
	q, _ := embedder.Embed(ctx, "barley tea")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hits := store.SimilaritySearch(ctx, q, 5)
				assert.NotEmpty(t, hits)
				assert.Equal(t, 1.0, hits[0].Score)
			}
		}()
	}
	for i := 0; i < 5; i++ {
		store.AddDocuments(ctx, []model.Document{article("more", "green tea with honey")})
	}
	wg.Wait()
	assert.Equal(t, 6, store.Len())
}

func TestCosineSimilarity(t *testing.T) {
	s, ok := cosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.True(t, ok)
	assert.InDelta(t, 0, s, 1e-9)

	s, ok = cosineSimilarity([]float32{1, 2}, []float32{-1, -2})
	require.True(t, ok)
	assert.InDelta(t, -1, s, 1e-9)

	s, ok = cosineSimilarity([]float32{0.3, 0.7, 0.1}, []float32{0.3, 0.7, 0.1})
	require.True(t, ok)
	assert.Equal(t, 1.0, s)

	_, ok = cosineSimilarity([]float32{0, 0}, []float32{1, 1})
	assert.False(t, ok)
	_, ok = cosineSimilarity([]float32{1}, []float32{1, 1})
	assert.False(t, ok)
}
