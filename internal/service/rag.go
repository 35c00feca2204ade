package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/config"
	"github.com/pageza/mealsense/backend/internal/metrics"
	"github.com/pageza/mealsense/backend/internal/model"
)

// DefaultFallbackAnswer is returned whenever a query cannot be answered
const DefaultFallbackAnswer = "no information available"

const answerCachePrefix = "rag:answer:"

var errNoContext = errors.New("no relevant documents found")

// RAGService answers questions from retrieved document chunks.
// It never returns an error: every failure becomes the fallback answer.
type RAGService struct {
	embedder  Embedder
	index     VectorIndex
	completer Completer
	cache     *redis.Client
	topK      int
	timeout   time.Duration
	cacheTTL  time.Duration
	fallback  string
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewRAGService creates a new RAGService instance. cache may be nil.
func NewRAGService(embedder Embedder, index VectorIndex, completer Completer, cache *redis.Client, cfg config.RAGConfig, m *metrics.Collector, log *zap.Logger) *RAGService {
	if m == nil {
		m = metrics.New()
	}
	s := &RAGService{
		embedder:  embedder,
		index:     index,
		completer: completer,
		cache:     cache,
		topK:      cfg.TopK,
		timeout:   cfg.Timeout,
		cacheTTL:  cfg.CacheTTL,
		fallback:  cfg.FallbackAnswer,
		metrics:   m,
		logger:    log,
	}
	if s.topK <= 0 {
		s.topK = 3
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}
	if s.fallback == "" {
		s.fallback = DefaultFallbackAnswer
	}
	return s
}

type cachedAnswer struct {
	Answer  string              `json:"answer"`
	Sources []model.ScoredChunk `json:"sources"`
}

// Query embeds text, retrieves the topK closest chunks and asks the completion
// backend to answer from them. topK <= 0 uses the configured default.
func (s *RAGService) Query(ctx context.Context, text string, topK int) model.QueryResult {
	if topK <= 0 {
		topK = s.topK
	}
	result := model.QueryResult{
		Query:     text,
		Sources:   []model.ScoredChunk{},
		Timestamp: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := answerCacheKey(text, topK)
	if cached, ok := s.cached(ctx, key); ok {
		result.Answer = cached.Answer
		if cached.Sources != nil {
			result.Sources = cached.Sources
		}
		s.metrics.RAGQuery(metrics.OutcomeCached)
		return result
	}

	answer, sources, err := s.answer(ctx, text, topK)
	if err != nil {
		s.logger.Warn("RAG query fell back",
			zap.String("query", text),
			zap.Error(err))
		result.Answer = s.fallback
		result.Fallback = true
		s.metrics.RAGQuery(metrics.OutcomeFallback)
		return result
	}

	result.Answer = answer
	result.Sources = sources
	s.store(ctx, key, cachedAnswer{Answer: answer, Sources: sources})
	s.metrics.RAGQuery(metrics.OutcomeAnswered)
	return result
}

func (s *RAGService) answer(ctx context.Context, text string, topK int) (string, []model.ScoredChunk, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil, errors.New("empty query")
	}
	if s.index.Len() == 0 {
		return "", nil, errors.New("document index is empty")
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", nil, fmt.Errorf("failed to embed query: %w", err)
	}

	sources := s.index.SimilaritySearch(ctx, vec, topK)
	if len(sources) == 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", nil, ctxErr
		}
		return "", nil, errNoContext
	}

	answer, err := s.completer.Complete(ctx, buildRAGPrompt(text, sources))
	if err != nil {
		return "", nil, fmt.Errorf("failed to complete answer: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", nil, errors.New("empty completion")
	}
	return answer, sources, nil
}

func buildRAGPrompt(query string, sources []model.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, src.Chunk.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

func answerCacheKey(query string, topK int) string {
	sum := sha256.Sum256([]byte(query + "|" + strconv.Itoa(topK)))
	return answerCachePrefix + hex.EncodeToString(sum[:])
}

func (s *RAGService) cached(ctx context.Context, key string) (cachedAnswer, bool) {
	if s.cache == nil {
		return cachedAnswer{}, false
	}
	data, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Failed to read answer cache", zap.Error(err))
		}
		return cachedAnswer{}, false
	}
	var entry cachedAnswer
	if err := json.Unmarshal(data, &entry); err != nil || entry.Answer == "" {
		s.logger.Warn("Discarding unreadable cached answer", zap.String("key", key))
		return cachedAnswer{}, false
	}
	return entry, true
}

func (s *RAGService) store(ctx context.Context, key string, entry cachedAnswer) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn("Failed to encode answer for cache", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("Failed to write answer cache", zap.Error(err))
	}
}
