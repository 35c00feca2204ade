package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pageza/mealsense/backend/internal/apperrors"
	"github.com/pageza/mealsense/backend/internal/service"
)

// maxTopK caps the number of chunks a caller may request
const maxTopK = 20

// RAGHandler exposes the document question-answering engine
type RAGHandler struct {
	engine service.QueryEngine
}

func NewRAGHandler(engine service.QueryEngine) *RAGHandler {
	return &RAGHandler{engine: engine}
}

func (h *RAGHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/rag/query", h.Query)
}

// Query answers a question; a backend failure still returns 200 with the fallback answer
func (h *RAGHandler) Query(c *gin.Context) {
	var req RAGQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		_ = c.Error(apperrors.NewBadRequestError("query is required"))
		return
	}
	if req.TopK < 0 || req.TopK > maxTopK {
		_ = c.Error(apperrors.NewBadRequestError("top_k must be between 0 and 20"))
		return
	}
	c.JSON(http.StatusOK, h.engine.Query(c.Request.Context(), req.Query, req.TopK))
}
