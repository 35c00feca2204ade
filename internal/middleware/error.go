package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/internal/apperrors"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error    string                 `json:"error"`
	Code     apperrors.ErrorCode    `json:"code"`
	Details  string                 `json:"details,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ErrorHandler turns the last error attached with c.Error, or a panic, into a
// JSON error response. Handlers that already wrote a body are left alone.
func ErrorHandler(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Panic while serving request",
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", r),
				)
				abortWith(c, apperrors.NewInternalError("").WithCause(fmt.Errorf("panic: %v", r)))
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		appErr, ok := apperrors.As(err)
		if !ok {
			appErr = apperrors.NewInternalError("").WithCause(err)
		}

		status := appErr.StatusCode()
		fields := []zap.Field{
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		}
		if status >= http.StatusInternalServerError {
			log.Error("Request failed", fields...)
		} else {
			log.Debug("Request rejected", fields...)
		}
		abortWith(c, appErr)
	}
}

func abortWith(c *gin.Context, appErr *apperrors.AppError) {
	c.AbortWithStatusJSON(appErr.StatusCode(), ErrorResponse{
		Error:    appErr.Message,
		Code:     appErr.Code,
		Details:  appErr.Details,
		Metadata: appErr.Metadata,
	})
}
