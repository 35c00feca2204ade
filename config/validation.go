package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one pass
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "\n")
}

// ValidateConfig checks if the configuration meets the requirements for its environment
func ValidateConfig(cfg *Config) error {
	var errs ValidationErrors

	if cfg.Server.Port == "" {
		errs = append(errs, ValidationError{"server.port", "is required"})
	}

	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.Path == "" {
			errs = append(errs, ValidationError{"database.path", "is required for sqlite"})
		}
	case "postgres":
		if cfg.Database.Host == "" || cfg.Database.Name == "" || cfg.Database.User == "" {
			errs = append(errs, ValidationError{"database", "host, name and user are required for postgres"})
		}
	default:
		errs = append(errs, ValidationError{"database.driver", fmt.Sprintf("unsupported driver %q", cfg.Database.Driver)})
	}

	switch cfg.Embedding.Provider {
	case "hash":
		if cfg.Embedding.Dimensions <= 0 {
			errs = append(errs, ValidationError{"embedding.dimensions", "must be positive"})
		}
	case "openai":
	default:
		errs = append(errs, ValidationError{"embedding.provider", fmt.Sprintf("unsupported provider %q", cfg.Embedding.Provider)})
	}

	if cfg.RAG.ChunkSize <= 0 {
		errs = append(errs, ValidationError{"rag.chunk_size", "must be positive"})
	}
	if cfg.RAG.ChunkOverlap < 0 || cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		errs = append(errs, ValidationError{"rag.chunk_overlap", "must be in [0, chunk_size)"})
	}
	if cfg.RAG.TopK <= 0 {
		errs = append(errs, ValidationError{"rag.top_k", "must be positive"})
	}
	if cfg.RAG.Timeout <= 0 {
		errs = append(errs, ValidationError{"rag.timeout", "must be positive"})
	}
	if cfg.LLM.Timeout <= 0 {
		errs = append(errs, ValidationError{"llm.timeout", "must be positive"})
	}
	if cfg.Recommendation.DefaultLimit <= 0 {
		errs = append(errs, ValidationError{"recommendation.default_limit", "must be positive"})
	}

	if cfg.IsProduction() || cfg.Environment == CI {
		if cfg.LLM.APIKey == "" {
			errs = append(errs, ValidationError{"llm.api_key", fmt.Sprintf("is required in %s", cfg.Environment)})
		}
	}
	if cfg.IsProduction() {
		if cfg.Embedding.Provider == "hash" {
			errs = append(errs, ValidationError{"embedding.provider", "hash embeddings are not allowed in production"})
		}
		if cfg.Database.Driver != "postgres" {
			errs = append(errs, ValidationError{"database.driver", "production requires postgres"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
