package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/config"
	"github.com/pageza/mealsense/backend/internal/metrics"
)

// EmbeddingService calls an OpenAI compatible /v1/embeddings endpoint.
// Recent results are kept in an LRU so repeated queries skip the backend.
type EmbeddingService struct {
	apiKey     string
	apiURL     string
	model      string
	dimensions int
	client     *http.Client
	cache      *lru.Cache[string, []float32]
	guard      *backendGuard
	logger     *zap.Logger
}

// NewEmbeddingService creates a new EmbeddingService instance
func NewEmbeddingService(cfg config.EmbeddingConfig, log *zap.Logger, m *metrics.Collector) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding.api_key must be set for the openai provider")
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	return &EmbeddingService{
		apiKey:     cfg.APIKey,
		apiURL:     cfg.URL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		guard:      newBackendGuard("embedding", cfg.MaxRetries, m, log),
		logger:     log,
	}, nil
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns the embedding for text
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	if vec, ok := s.cache.Get(text); ok {
		return vec, nil
	}

	jsonData, err := json.Marshal(embeddingRequest{Model: s.model, Input: text, Dimensions: s.dimensions})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var vec []float32
	err = s.guard.do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.apiKey)

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return &statusError{StatusCode: resp.StatusCode, Body: string(body)}
		}

		var result embeddingResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
			return fmt.Errorf("no embedding in response")
		}
		vec = result.Data[0].Embedding
		return nil
	})
	if err != nil {
		s.logger.Error("Embedding request failed", zap.Error(err))
		return nil, err
	}

	s.cache.Add(text, vec)
	return vec, nil
}

// HashEmbedder is a deterministic offline embedder. Tokens and character
// bigrams are hashed into a fixed number of buckets and the result is L2
// normalized, so texts sharing vocabulary land close together.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a HashEmbedder producing vectors of length dims
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

// Embed implements Embedder
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return nil, fmt.Errorf("cannot embed text without tokens")
	}

	vec := make([]float32, e.dims)
	for _, tok := range tokens {
		e.add(vec, tok, 1)
		runes := []rune(tok)
		for i := 0; i+1 < len(runes); i++ {
			e.add(vec, string(runes[i:i+2]), 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil, fmt.Errorf("text hashed to a zero vector")
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (e *HashEmbedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum32()
	idx := int(sum % uint32(e.dims))
	if sum&(1<<31) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}
