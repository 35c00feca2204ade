package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pageza/mealsense/backend/internal/apperrors"
)

// NutritionHandler serves the daily intake analysis
type NutritionHandler struct {
	analyzer DailyAnalyzer
}

func NewNutritionHandler(analyzer DailyAnalyzer) *NutritionHandler {
	return &NutritionHandler{analyzer: analyzer}
}

func (h *NutritionHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/nutrition/daily", h.Daily)
}

func (h *NutritionHandler) Daily(c *gin.Context) {
	var req DailyNutritionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewBadRequestError("foods is required"))
		return
	}
	c.JSON(http.StatusOK, h.analyzer.AnalyzeDaily(c.Request.Context(), req.Foods))
}
