package response

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/listenupapp/bookshelf/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	JSON(w, http.StatusOK, map[string]string{"message": "test"}, logger)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotNil(t, body["data"])
	assert.NotContains(t, body, "error")
}

func TestJSON_ErrorStatus(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusNotFound, map[string]string{"message": "test"}, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"], "success should be false for status >= 400")
}

func TestCreated(t *testing.T) {
	w := httptest.NewRecorder()

	Created(w, map[string]int{"id": 7}, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(7), data["id"])
}

func TestNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	NoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"not found", errors.NotFoundf("book %d not found", 3), http.StatusNotFound, "NOT_FOUND"},
		{"wrapped conflict", fmt.Errorf("create tag: %w", errors.ConstraintViolationf("tag exists")), http.StatusConflict, "CONSTRAINT_VIOLATION"},
		{"validation", errors.Validation("bad input"), http.StatusBadRequest, "VALIDATION"},
		{"not seeded", errors.ErrNotSeeded, http.StatusServiceUnavailable, "NOT_SEEDED"},
		{"transaction", errors.ErrTransactionFailure, http.StatusInternalServerError, "TRANSACTION_FAILURE"},
		{"unknown", io.ErrUnexpectedEOF, http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleError(w, tt.err, nil)

			assert.Equal(t, tt.wantCode, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			errBody, ok := body["error"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.wantErr, errBody["code"])
			assert.NotEmpty(t, errBody["message"])
		})
	}
}

func TestHandleError_Details(t *testing.T) {
	w := httptest.NewRecorder()
	HandleError(w, errors.ValidationWithDetails("invalid book", map[string]string{"title": "is required"}), nil)

	body := decode(t, w)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, map[string]any{"title": "is required"}, errBody["details"])
}

func TestTooManyRequests(t *testing.T) {
	w := httptest.NewRecorder()
	TooManyRequests(w, "slow down", nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	errBody := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "RATE_LIMITED", errBody["code"])
}
