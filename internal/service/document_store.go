package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/mealsense/backend/internal/apperrors"
	"github.com/pageza/mealsense/backend/internal/metrics"
	"github.com/pageza/mealsense/backend/internal/model"
)

// DocType values written to chunk metadata
const (
	DocTypeNutrition = "nutrition"
	DocTypeRecipe    = "recipe"
	DocTypeArticle   = "article"
)

// indexSnapshot is an immutable view of the stored chunks
type indexSnapshot struct {
	chunks []model.DocumentChunk
	dim    int
}

// DocumentStore persists embedded document chunks and serves cosine search
// over an in-memory snapshot. Writers are serialized; readers never block.
type DocumentStore struct {
	db       *gorm.DB
	embedder Embedder
	splitter *TextSplitter
	metrics  *metrics.Collector
	logger   *zap.Logger

	mu   sync.Mutex
	snap atomic.Pointer[indexSnapshot]
}

// NewDocumentStore creates a new DocumentStore instance with an empty index.
// Call Load to pick up chunks already in the database.
func NewDocumentStore(db *gorm.DB, embedder Embedder, splitter *TextSplitter, m *metrics.Collector, log *zap.Logger) *DocumentStore {
	if splitter == nil {
		splitter = NewTextSplitter(DefaultChunkSize, DefaultChunkOverlap)
	}
	if m == nil {
		m = metrics.New()
	}
	s := &DocumentStore{
		db:       db,
		embedder: embedder,
		splitter: splitter,
		metrics:  m,
		logger:   log,
	}
	s.snap.Store(&indexSnapshot{})
	return s
}

// Len returns the number of searchable chunks
func (s *DocumentStore) Len() int {
	return len(s.snap.Load().chunks)
}

// Dimension returns the embedding dimension of the index, 0 while empty
func (s *DocumentStore) Dimension() int {
	return s.snap.Load().dim
}

// Load replaces the in-memory index with the chunks stored in the database
func (s *DocumentStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []model.DocumentChunk
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return apperrors.NewDatabaseError("load document chunks", err)
	}

	next := &indexSnapshot{chunks: make([]model.DocumentChunk, 0, len(rows))}
	for _, c := range rows {
		if c.Embedding.Malformed() || c.Embedding.Dim() == 0 {
			s.logger.Warn("Skipping chunk with malformed embedding", zap.Uint("chunk_id", c.ID))
			continue
		}
		if next.dim == 0 {
			next.dim = c.Embedding.Dim()
		}
		if c.Embedding.Dim() != next.dim {
			s.logger.Warn("Skipping chunk with mismatched dimension",
				zap.Uint("chunk_id", c.ID),
				zap.Int("dimension", c.Embedding.Dim()),
				zap.Int("index_dimension", next.dim))
			continue
		}
		next.chunks = append(next.chunks, c)
	}
	s.snap.Store(next)

	s.logger.Info("Loaded document index", zap.Int("chunks", len(next.chunks)), zap.Int("dimension", next.dim))
	return nil
}

// AddDocuments splits, embeds and stores docs, returning the number of chunks
// added. A document whose embedding fails is skipped; the batch continues.
func (s *DocumentStore) AddDocuments(ctx context.Context, docs []model.Document, opts ...SplitOption) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	splitter := s.splitter.With(opts...)
	current := s.snap.Load()
	dim := current.dim

	var added []model.DocumentChunk
	for i, doc := range docs {
		chunks, err := s.buildChunks(ctx, splitter, doc, dim)
		if err != nil {
			s.logger.Warn("Skipping document",
				zap.Int("index", i),
				zap.String("name", docLabel(doc)),
				zap.Error(err))
			s.metrics.DocumentSkipped()
			continue
		}
		if len(chunks) == 0 {
			continue
		}
		if err := s.db.WithContext(ctx).Create(&chunks).Error; err != nil {
			s.logger.Error("Failed to store document chunks",
				zap.String("name", docLabel(doc)),
				zap.Error(apperrors.NewDatabaseError("store chunks", err)))
			s.metrics.DocumentSkipped()
			continue
		}
		if dim == 0 {
			dim = chunks[0].Embedding.Dim()
		}
		added = append(added, chunks...)
	}

	if len(added) > 0 {
		next := &indexSnapshot{
			chunks: make([]model.DocumentChunk, 0, len(current.chunks)+len(added)),
			dim:    dim,
		}
		next.chunks = append(next.chunks, current.chunks...)
		next.chunks = append(next.chunks, added...)
		s.snap.Store(next)
	}

	s.metrics.ChunksIngested(len(added))
	s.logger.Info("Added documents",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(added)))
	return len(added)
}

func (s *DocumentStore) buildChunks(ctx context.Context, splitter *TextSplitter, doc model.Document, dim int) ([]model.DocumentChunk, error) {
	pieces := splitter.Split(doc.Content)
	if len(pieces) == 0 {
		return nil, nil
	}

	meta := make(model.Metadata, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	if meta[model.MetaAddedAt] == "" {
		meta[model.MetaAddedAt] = time.Now().UTC().Format(time.RFC3339)
	}

	docID := uuid.New()
	chunks := make([]model.DocumentChunk, 0, len(pieces))
	for pos, piece := range pieces {
		vec, err := s.embedder.Embed(ctx, piece)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunk %d: %w", pos, err)
		}
		if len(vec) == 0 {
			return nil, apperrors.NewMalformedDataError("embedding", fmt.Errorf("empty vector for chunk %d", pos))
		}
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim {
			return nil, apperrors.NewMalformedDataError("embedding",
				fmt.Errorf("dimension %d does not match index dimension %d", len(vec), dim))
		}
		chunks = append(chunks, model.DocumentChunk{
			DocumentID: docID,
			Position:   pos,
			Content:    piece,
			Metadata:   meta,
			Embedding:  model.NewEmbedding(vec),
		})
	}
	return chunks, nil
}

// AddNutritionDocument indexes a food's nutrient profile as a text document
func (s *DocumentStore) AddNutritionDocument(ctx context.Context, food model.Food) bool {
	doc := model.Document{
		Content: FormatNutritionDocument(food),
		Metadata: model.Metadata{
			model.MetaType:     DocTypeNutrition,
			model.MetaName:     food.Name,
			model.MetaCategory: food.Category,
		},
	}
	return s.AddDocuments(ctx, []model.Document{doc}) > 0
}

// FormatNutritionDocument renders a food as the text indexed for retrieval
func FormatNutritionDocument(food model.Food) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Food: %s\n", food.Name)
	if food.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", food.Category)
	}
	fmt.Fprintf(&b, "Calories: %s kcal\n", formatAmount(food.Calories))
	fmt.Fprintf(&b, "Carbs: %s g\n", formatAmount(food.Carbs))
	fmt.Fprintf(&b, "Protein: %s g\n", formatAmount(food.Protein))
	fmt.Fprintf(&b, "Fat: %s g\n", formatAmount(food.Fat))
	fmt.Fprintf(&b, "Sodium: %s mg\n", formatAmount(food.Sodium))
	fmt.Fprintf(&b, "Fiber: %s g\n", formatAmount(food.Fiber))
	fmt.Fprintf(&b, "Sugar: %s g\n", formatAmount(food.Sugar))
	if len(food.Tags.Values) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(food.Tags.Values, ", "))
	}
	if food.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", food.Description)
	}
	return strings.TrimSpace(b.String())
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SimilaritySearch returns the topK chunks by descending cosine similarity,
// ties in storage order. Any invalid input yields an empty result.
func (s *DocumentStore) SimilaritySearch(ctx context.Context, query []float32, topK int) []model.ScoredChunk {
	snap := s.snap.Load()
	if topK <= 0 || len(snap.chunks) == 0 || ctx.Err() != nil {
		return []model.ScoredChunk{}
	}
	if len(query) != snap.dim {
		s.logger.Warn("Query dimension does not match index",
			zap.Int("dimension", len(query)),
			zap.Int("index_dimension", snap.dim))
		return []model.ScoredChunk{}
	}
	if norm(query) == 0 {
		s.logger.Warn("Query embedding is a zero vector")
		return []model.ScoredChunk{}
	}

	scored := make([]model.ScoredChunk, 0, len(snap.chunks))
	for i, c := range snap.chunks {
		if i%1024 == 0 && ctx.Err() != nil {
			return []model.ScoredChunk{}
		}
		score, ok := cosineSimilarity(query, c.Embedding.Slice())
		if !ok {
			continue
		}
		scored = append(scored, model.ScoredChunk{Chunk: c, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// cosineSimilarity is exactly 1 for identical vectors and clamped to [-1, 1]
func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	identical := true
	var dot, na, nb float64
	for i := range a {
		if a[i] != b[i] {
			identical = false
		}
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	if identical {
		return 1, true
	}
	score := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, score)), true
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func docLabel(doc model.Document) string {
	if name := doc.Metadata[model.MetaName]; name != "" {
		return name
	}
	return doc.Metadata[model.MetaTitle]
}
