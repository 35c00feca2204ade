package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	t.Run("should unwrap to the cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := NewExternalServiceError("embedding backend", cause)

		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "EXTERNAL_SERVICE_ERROR")
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("should be found through wrapping", func(t *testing.T) {
		err := fmt.Errorf("failed to query: %w", NewDatabaseError("select foods", errors.New("boom")))

		appErr, ok := As(err)
		require.True(t, ok)
		assert.Equal(t, CodeDatabaseError, appErr.Code)
		assert.True(t, HasCode(err, CodeDatabaseError))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("should map codes to status", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, NewNotFoundError("food").StatusCode())
		assert.Equal(t, http.StatusBadRequest, NewBadRequestError("bad").StatusCode())
		assert.Equal(t, http.StatusServiceUnavailable, NewServiceUnavailableError("llm", nil).StatusCode())
		assert.Equal(t, http.StatusInternalServerError, NewInternalError("").StatusCode())
	})

	t.Run("should attach metadata", func(t *testing.T) {
		err := NewNotFoundError("food").WithMetadata("name", "kimchi")
		assert.Equal(t, "kimchi", err.Metadata["name"])
	})
}
