package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/config"
	"github.com/pageza/mealsense/backend/internal/metrics"
	"github.com/pageza/mealsense/backend/internal/mocks"
	"github.com/pageza/mealsense/backend/internal/model"
)

var testRAGConfig = config.RAGConfig{
	TopK:           2,
	Timeout:        2 * time.Second,
	CacheTTL:       time.Hour,
	FallbackAnswer: DefaultFallbackAnswer,
}

type ragFixture struct {
	embedder  *HashEmbedder
	store     *DocumentStore
	completer *mocks.MockCompleter
	cache     *redis.Client
	redis     *miniredis.Miniredis
	metrics   *metrics.Collector
}

func newRAGFixture(t *testing.T, withDocs bool) *ragFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	f := &ragFixture{
		embedder:  NewHashEmbedder(256),
		completer: new(mocks.MockCompleter),
		cache:     cache,
		redis:     mr,
		metrics:   metrics.New(),
	}
	f.store = NewDocumentStore(newTestDB(t), f.embedder, nil, f.metrics, zap.NewNop())
	if withDocs {
		f.store.AddDocuments(context.Background(), []model.Document{
			article("kimchi", "Kimchi is fermented cabbage. It has about 23 calories per serving."),
			article("salmon", "Salmon is an oily fish rich in protein and omega-3."),
		})
	}
	return f
}

func assertRAGOutcomes(t *testing.T, m *metrics.Collector, lines ...string) {
	t.Helper()
	expected := "# HELP mealsense_rag_queries_total RAG queries by outcome\n" +
		"# TYPE mealsense_rag_queries_total counter\n" +
		strings.Join(lines, "\n") + "\n"
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "mealsense_rag_queries_total"))
}

func (f *ragFixture) service() *RAGService {
	return NewRAGService(f.embedder, f.store, f.completer, f.cache, testRAGConfig, f.metrics, zap.NewNop())
}

func TestRAGService_Query(t *testing.T) {
	t.Run("should answer from retrieved chunks", func(t *testing.T) {
		f := newRAGFixture(t, true)
		f.completer.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
			return strings.Contains(p, "Kimchi is fermented cabbage") && strings.HasSuffix(p, "Question: how many calories in kimchi")
		})).Return("About 23 calories.", nil).Once()

		result := f.service().Query(context.Background(), "how many calories in kimchi", 1)
		assert.Equal(t, "About 23 calories.", result.Answer)
		assert.False(t, result.Fallback)
		require.Len(t, result.Sources, 1)
		assert.Equal(t, "kimchi", result.Sources[0].Chunk.Metadata[model.MetaTitle])
		assert.Equal(t, "how many calories in kimchi", result.Query)
		assert.False(t, result.Timestamp.IsZero())
		f.completer.AssertExpectations(t)
		assertRAGOutcomes(t, f.metrics, `mealsense_rag_queries_total{outcome="answered"} 1`)
	})

	t.Run("should serve repeated queries from the cache", func(t *testing.T) {
		f := newRAGFixture(t, true)
		f.completer.On("Complete", mock.Anything, mock.Anything).Return("Salmon is high in protein.", nil).Once()
		svc := f.service()

		first := svc.Query(context.Background(), "protein in salmon", 0)
		second := svc.Query(context.Background(), "protein in salmon", 0)

		assert.Equal(t, first.Answer, second.Answer)
		assert.Equal(t, len(first.Sources), len(second.Sources))
		assert.True(t, f.redis.Exists(answerCacheKey("protein in salmon", 2)))
		ttl := f.redis.TTL(answerCacheKey("protein in salmon", 2))
		assert.Equal(t, time.Hour, ttl)
		f.completer.AssertNumberOfCalls(t, "Complete", 1)
	})

	t.Run("should fall back when the index is empty", func(t *testing.T) {
		f := newRAGFixture(t, false)
		result := f.service().Query(context.Background(), "anything", 3)

		assert.Equal(t, DefaultFallbackAnswer, result.Answer)
		assert.True(t, result.Fallback)
		assert.NotNil(t, result.Sources)
		assert.Empty(t, result.Sources)
		f.completer.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	})

	t.Run("should fall back and not cache when completion fails", func(t *testing.T) {
		f := newRAGFixture(t, true)
		f.completer.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("backend down"))

		result := f.service().Query(context.Background(), "kimchi", 0)
		assert.Equal(t, DefaultFallbackAnswer, result.Answer)
		assert.Empty(t, result.Sources)
		assert.Empty(t, f.redis.Keys())
		assertRAGOutcomes(t, f.metrics, `mealsense_rag_queries_total{outcome="fallback"} 1`)
	})

	t.Run("should fall back when embedding fails", func(t *testing.T) {
		f := newRAGFixture(t, true)
		embedder := new(mocks.MockEmbedder)
		embedder.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("embedding down"))

		svc := NewRAGService(embedder, f.store, f.completer, nil, testRAGConfig, nil, zap.NewNop())
		result := svc.Query(context.Background(), "kimchi", 0)
		assert.True(t, result.Fallback)
		f.completer.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	})

	t.Run("should fall back on a cancelled context", func(t *testing.T) {
		f := newRAGFixture(t, true)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result := f.service().Query(ctx, "kimchi", 0)
		assert.True(t, result.Fallback)
		assert.Equal(t, DefaultFallbackAnswer, result.Answer)
	})

	t.Run("should fall back when the completion times out", func(t *testing.T) {
		f := newRAGFixture(t, true)
		f.completer.On("Complete", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return("", context.DeadlineExceeded)

		cfg := testRAGConfig
		cfg.Timeout = 50 * time.Millisecond
		svc := NewRAGService(f.embedder, f.store, f.completer, nil, cfg, nil, zap.NewNop())

		start := time.Now()
		result := svc.Query(context.Background(), "kimchi", 0)
		assert.True(t, result.Fallback)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("should ignore cache failures", func(t *testing.T) {
		f := newRAGFixture(t, true)
		f.completer.On("Complete", mock.Anything, mock.Anything).Return("answer", nil)
		f.redis.Close()

		result := f.service().Query(context.Background(), "kimchi", 0)
		assert.Equal(t, "answer", result.Answer)
	})

	t.Run("should fall back on an empty query", func(t *testing.T) {
		f := newRAGFixture(t, true)
		assert.True(t, f.service().Query(context.Background(), "  ", 0).Fallback)
	})
}

func TestAnswerCacheKey(t *testing.T) {
	assert.Equal(t, answerCacheKey("kimchi", 3), answerCacheKey("kimchi", 3))
	assert.NotEqual(t, answerCacheKey("kimchi", 3), answerCacheKey("kimchi", 4))
	assert.True(t, strings.HasPrefix(answerCacheKey("kimchi", 3), "rag:answer:"))
}
