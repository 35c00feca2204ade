package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/config"
	"github.com/pageza/mealsense/backend/internal/metrics"
)

const nutritionSystemPrompt = `You are a nutrition expert and chef. Answer only from the provided context.
When recommending foods, meals or recipes, list each one as a numbered item ("1. Name") and put its details under these headers, one per line:
Ingredients:
- ingredient
Instructions:
step text
Nutrition:
Calories: 0
Protein: 0
Carbs: 0
Fat: 0
Reason:
why it fits the request`

// LLMService handles interactions with a DeepSeek/OpenAI compatible chat-completions API
type LLMService struct {
	apiKey      string
	apiURL      string
	model       string
	temperature float64
	client      *http.Client
	guard       *backendGuard
	logger      *zap.Logger
}

// NewLLMService creates a new LLMService instance
func NewLLMService(cfg config.LLMConfig, log *zap.Logger, m *metrics.Collector) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm.api_key or llm.api_key_file must be set")
	}

	apiURL := cfg.URL
	if apiURL == "" {
		apiURL = "https://api.deepseek.com/v1/chat/completions"
	}
	model := cfg.Model
	if model == "" {
		model = "deepseek-chat"
	}

	return &LLMService{
		apiKey:      cfg.APIKey,
		apiURL:      apiURL,
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.Timeout},
		guard:       newBackendGuard("llm", cfg.MaxRetries, m, log),
		logger:      log,
	}, nil
}

// Message represents a message in the chat
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request represents a chat-completions request
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends the prompt with the nutrition system prompt and returns the first choice
func (s *LLMService) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := Request{
		Model: s.model,
		Messages: []Message{
			{Role: "system", Content: nutritionSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: s.temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var content string
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

		var result chatResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if len(result.Choices) == 0 {
			return fmt.Errorf("no response from API")
		}
		content = strings.TrimSpace(result.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		s.logger.Error("Completion request failed", zap.Error(err))
		return "", err
	}

	s.logger.Debug("Completion received", zap.Int("length", len(content)))
	return content, nil
}
