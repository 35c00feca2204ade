package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/config"
	"github.com/pageza/mealsense/backend/internal/container"
)

func TestNew(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Environment: config.Test,
		Server: config.ServerConfig{
			Host:           "localhost",
			Port:           "0",
			AllowedOrigins: []string{"http://localhost:5173"},
			RateLimit:      2,
			RateWindow:     time.Hour,
		},
		Database:       config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"},
		Embedding:      config.EmbeddingConfig{Provider: "hash", Dimensions: 32},
		RAG:            config.RAGConfig{TopK: 3, Timeout: time.Second, ChunkSize: 200, ChunkOverlap: 20},
		Recommendation: config.RecommendationConfig{DefaultLimit: 5},
	}
	c, err := container.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	server := New(c)
	require.NotNil(t, server)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "192.0.2.7:4000"
		server.Handler().ServeHTTP(w, req)
		return w
	}

	// Test health check endpoint
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get("/health").Code)
	}

	// only the API group is rate limited
	assert.Equal(t, http.StatusNotFound, get("/api/v1/foods/kimchi").Code)
	assert.Equal(t, http.StatusNotFound, get("/api/v1/foods/kimchi").Code)
	assert.Equal(t, http.StatusTooManyRequests, get("/api/v1/foods/kimchi").Code)

	w := get("/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `mealsense_http_requests_total{method="GET",route="/health",status="200"} 3`)
}
