package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment    Environment          `mapstructure:"-"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	LLM            LLMConfig            `mapstructure:"llm"`
	Embedding      EmbeddingConfig      `mapstructure:"embedding"`
	RAG            RAGConfig            `mapstructure:"rag"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Log            LogConfig            `mapstructure:"log"`
}

// ServerConfig configures the HTTP adapter
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RateLimit      int           `mapstructure:"rate_limit"`
	RateWindow     time.Duration `mapstructure:"rate_window"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

// DatabaseConfig selects and configures the gorm dialector
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig configures the answer cache and rate limiter backend
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	URL      string `mapstructure:"url"`
}

// LLMConfig configures the chat-completion backend
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	APIKeyFile  string        `mapstructure:"api_key_file"`
	URL         string        `mapstructure:"url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// EmbeddingConfig configures the embedding backend
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"`
	APIKey     string        `mapstructure:"api_key"`
	APIKeyFile string        `mapstructure:"api_key_file"`
	URL        string        `mapstructure:"url"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	CacheSize  int           `mapstructure:"cache_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// RAGConfig configures retrieval and ingestion
type RAGConfig struct {
	TopK           int           `mapstructure:"top_k"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	ChunkSize      int           `mapstructure:"chunk_size"`
	ChunkOverlap   int           `mapstructure:"chunk_overlap"`
	FallbackAnswer string        `mapstructure:"fallback_answer"`
}

// RecommendationConfig configures the orchestrator
type RecommendationConfig struct {
	DefaultLimit       int  `mapstructure:"default_limit"`
	AllowCrossCategory bool `mapstructure:"allow_cross_category"`
}

// StorageConfig points at the S3 bucket holding nutrition documents
type StorageConfig struct {
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`
}

// LogConfig configures zap
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional file, then MEALSENSE_* environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/mealsense")
	}

	v.SetEnvPrefix("MEALSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Environment = GetEnvironment()

	if err := resolveSecrets(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.rate_limit", 60)
	v.SetDefault("server.rate_window", time.Minute)
	v.SetDefault("server.shutdown_grace", 10*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "mealsense")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "mealsense.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.url", "")

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.api_key_file", "")
	v.SetDefault("llm.url", "https://api.deepseek.com/v1/chat/completions")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.max_retries", 2)

	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.api_key_file", "")
	v.SetDefault("embedding.url", "https://api.openai.com/v1/embeddings")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 256)
	v.SetDefault("embedding.cache_size", 1024)
	v.SetDefault("embedding.timeout", 15*time.Second)
	v.SetDefault("embedding.max_retries", 2)

	v.SetDefault("rag.top_k", 3)
	v.SetDefault("rag.timeout", 30*time.Second)
	v.SetDefault("rag.cache_ttl", time.Hour)
	v.SetDefault("rag.chunk_size", 1000)
	v.SetDefault("rag.chunk_overlap", 200)
	v.SetDefault("rag.fallback_answer", "no information available")

	v.SetDefault("recommendation.default_limit", 5)
	v.SetDefault("recommendation.allow_cross_category", false)

	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// resolveSecrets fills API keys from *_FILE paths or Docker secrets when not set directly
func resolveSecrets(cfg *Config) error {
	llmKey, err := secretValue(cfg.LLM.APIKey, cfg.LLM.APIKeyFile, "llm_api_key")
	if err != nil {
		return err
	}
	cfg.LLM.APIKey = llmKey

	embKey, err := secretValue(cfg.Embedding.APIKey, cfg.Embedding.APIKeyFile, "embedding_api_key")
	if err != nil {
		return err
	}
	if embKey == "" {
		embKey = cfg.LLM.APIKey
	}
	cfg.Embedding.APIKey = embKey

	if cfg.Database.Password == "" {
		cfg.Database.Password = readSecret("db_password")
	}
	if cfg.Redis.Password == "" {
		cfg.Redis.Password = readSecret("redis_password")
	}
	return nil
}

func secretValue(value, file, secretName string) (string, error) {
	if value != "" {
		return value, nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read key file %s: %w", file, err)
		}
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("key file %s is empty", file)
		}
		return key, nil
	}
	return readSecret(secretName), nil
}

// readSecret reads a Docker secret from the secrets directory
func readSecret(name string) string {
	secretsDir := os.Getenv("SECRETS_DIR")
	if secretsDir == "" {
		secretsDir = "/run/secrets"
	}
	if data, err := os.ReadFile(filepath.Join(secretsDir, name)); err == nil {
		return strings.TrimSpace(string(data))
	}
	return ""
}

// DSN returns the postgres connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Addr returns host:port for the server
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}
