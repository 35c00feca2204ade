// Package container wires the recommendation pipeline from configuration.
// New builds everything explicitly; Module exposes the same graph to fx.
package container

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/mealsense/backend/config"
	"github.com/pageza/mealsense/backend/internal/apperrors"
	"github.com/pageza/mealsense/backend/internal/database"
	"github.com/pageza/mealsense/backend/internal/metrics"
	"github.com/pageza/mealsense/backend/internal/service"
)

// Container holds every long-lived component of the backend
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *gorm.DB
	Redis   *redis.Client
	Metrics *metrics.Collector

	Embedder  service.Embedder
	Completer service.Completer

	Foods           *service.FoodStore
	Documents       *service.DocumentStore
	RAG             *service.RAGService
	Parser          *service.ResponseParser
	Lookup          service.FoodLookup
	Recommendations *service.RecommendationService
	Nutrition       *service.NutritionAnalyzer

	ownsDB    bool
	ownsRedis bool
}

type options struct {
	db        *gorm.DB
	redis     *redis.Client
	embedder  service.Embedder
	completer service.Completer
	metrics   *metrics.Collector
	migrate   bool
}

// Option overrides a component New would otherwise build from configuration
type Option func(*options)

// WithDB uses an existing database handle; the container will not close it
func WithDB(db *gorm.DB) Option {
	return func(o *options) { o.db = db }
}

// WithRedis uses an existing redis client; the container will not close it
func WithRedis(client *redis.Client) Option {
	return func(o *options) { o.redis = client }
}

func WithEmbedder(e service.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

func WithCompleter(c service.Completer) Option {
	return func(o *options) { o.completer = c }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) { o.metrics = m }
}

// WithoutMigration skips AutoMigrate on startup
func WithoutMigration() Option {
	return func(o *options) { o.migrate = false }
}

// New builds the container. Redis is optional: when it is disabled or
// unreachable the RAG answer cache is skipped and rate limiting stays in process.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*Container, error) {
	o := options{migrate: true}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container{Config: cfg, Logger: log, Metrics: o.metrics}
	if c.Metrics == nil {
		c.Metrics = metrics.New()
	}

	c.DB = o.db
	if c.DB == nil {
		db, err := database.Open(cfg.Database, log)
		if err != nil {
			return nil, err
		}
		c.DB = db
		c.ownsDB = true
	}
	if o.migrate {
		if err := database.AutoMigrate(c.DB, log); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	c.Redis = o.redis
	if c.Redis == nil && cfg.Redis.Enabled {
		client, err := database.NewRedisClient(cfg.Redis, log)
		if err != nil {
			log.Warn("Redis unavailable, continuing without answer cache", zap.Error(err))
		} else {
			c.Redis = client
			c.ownsRedis = true
		}
	}

	var err error
	c.Embedder = o.embedder
	if c.Embedder == nil {
		if c.Embedder, err = newEmbedder(cfg.Embedding, c.Metrics, log); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	c.Completer = o.completer
	if c.Completer == nil {
		c.Completer = newCompleter(cfg.LLM, c.Metrics, log)
	}

	splitter := service.NewTextSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	policy := service.SimilarPolicy{AllowCrossCategory: cfg.Recommendation.AllowCrossCategory}

	c.Foods = service.NewFoodStore(c.DB, policy, log.Named("foods"))
	c.Documents = service.NewDocumentStore(c.DB, c.Embedder, splitter, c.Metrics, log.Named("documents"))
	if err := c.Documents.Load(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to load document index: %w", err)
	}

	c.RAG = service.NewRAGService(c.Embedder, c.Documents, c.Completer, c.Redis, cfg.RAG, c.Metrics, log.Named("rag"))
	c.Parser = service.NewResponseParser(log.Named("parser"))
	c.Lookup = service.ChainLookup{c.Foods, service.NewRAGLookup(c.RAG, c.Parser, log.Named("lookup"))}
	c.Recommendations = service.NewRecommendationService(
		c.Foods, c.RAG, c.Parser, c.Lookup, cfg.Recommendation, c.Metrics, log.Named("recommendations"),
	)
	c.Nutrition = service.NewNutritionAnalyzer(c.Lookup, log.Named("nutrition"))

	log.Info("Container ready",
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Int("indexed_chunks", c.Documents.Len()),
		zap.Bool("answer_cache", c.Redis != nil),
		zap.Bool("cross_category", policy.AllowCrossCategory),
	)
	return c, nil
}

func newEmbedder(cfg config.EmbeddingConfig, m *metrics.Collector, log *zap.Logger) (service.Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return service.NewEmbeddingService(cfg, log.Named("embedding"), m)
	case "hash", "":
		log.Info("Using offline hash embeddings", zap.Int("dimensions", cfg.Dimensions))
		return service.NewHashEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
}

// newCompleter falls back to an always-failing backend when no key is set,
// so RAG queries answer with the fallback instead of the server refusing to start
func newCompleter(cfg config.LLMConfig, m *metrics.Collector, log *zap.Logger) service.Completer {
	llm, err := service.NewLLMService(cfg, log.Named("llm"), m)
	if err != nil {
		log.Warn("Completion backend disabled", zap.Error(err))
		return offlineCompleter{}
	}
	return llm
}

type offlineCompleter struct{}

func (offlineCompleter) Complete(context.Context, string) (string, error) {
	return "", apperrors.NewServiceUnavailableError("llm", errors.New("no completion backend configured"))
}

// Close releases the connections the container opened itself
func (c *Container) Close() error {
	var errs []error
	if c.ownsRedis && c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.ownsDB && c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
