package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	cases := []struct {
		name     string
		build    func(string, ...string) *AppError
		wantType ErrorType
		wantCode int
	}{
		{"validation", NewValidationError, ErrorTypeValidation, http.StatusBadRequest},
		{"not found", NewNotFoundError, ErrorTypeNotFound, http.StatusNotFound},
		{"conflict", NewConflictError, ErrorTypeConflict, http.StatusConflict},
		{"queue full", NewQueueFullError, ErrorTypeQueueFull, http.StatusTooManyRequests},
		{"unavailable", NewUnavailableError, ErrorTypeUnavailable, http.StatusServiceUnavailable},
		{"internal", NewInternalError, ErrorTypeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.build("boom")
			assert.Equal(t, tc.wantType, err.Type)
			assert.Equal(t, tc.wantCode, err.Code)
			assert.Equal(t, "boom", err.Message)
		})
	}
}

func TestAppError_Error(t *testing.T) {
	t.Run("should format without details", func(t *testing.T) {
		err := NewNotFoundError("node not found")
		assert.Equal(t, "not_found: node not found", err.Error())
	})

	t.Run("should append details when present", func(t *testing.T) {
		err := NewValidationError("invalid prefix", "must be hex")
		assert.Equal(t, "validation_error: invalid prefix (must be hex)", err.Error())
	})

	t.Run("should keep only the first detail", func(t *testing.T) {
		err := NewValidationError("invalid prefix", "first", "second")
		assert.Equal(t, "first", err.Details)
	})
}

func TestPredicates(t *testing.T) {
	t.Run("should match through wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("enqueue: %w", NewQueueFullError("queue full"))

		assert.True(t, IsAppError(wrapped))
		assert.True(t, IsQueueFullError(wrapped))
		assert.False(t, IsNotFoundError(wrapped))

		appErr := GetAppError(wrapped)
		require.NotNil(t, appErr)
		assert.Equal(t, ErrorTypeQueueFull, appErr.Type)
	})

	t.Run("should reject plain errors", func(t *testing.T) {
		plain := stderrors.New("boom")

		assert.False(t, IsAppError(plain))
		assert.False(t, IsValidationError(plain))
		assert.Nil(t, GetAppError(plain))
	})

	t.Run("should separate the kinds", func(t *testing.T) {
		assert.True(t, IsValidationError(NewValidationError("v")))
		assert.True(t, IsNotFoundError(NewNotFoundError("n")))
		assert.True(t, IsConflictError(NewConflictError("c")))
		assert.True(t, IsUnavailableError(NewUnavailableError("u")))
		assert.False(t, IsConflictError(NewNotFoundError("n")))
	})
}

func TestIsDuplicateError(t *testing.T) {
	assert.True(t, IsDuplicateError(stderrors.New("UNIQUE constraint failed: node_tags.node_public_key")))
	assert.True(t, IsDuplicateError(stderrors.New("pq: duplicate key value violates unique constraint")))
	assert.False(t, IsDuplicateError(stderrors.New("no such table")))
	assert.False(t, IsDuplicateError(nil))
}
