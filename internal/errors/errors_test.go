package errors_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/listenupapp/bookshelf/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := errors.NotFoundf("book %d", 7)

	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.False(t, errors.Is(err, errors.ErrValidation))
	assert.Equal(t, "book 7", err.Error())
}

func TestError_WrappedChain(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("commit: %w", errors.Wrap(cause, errors.CodeTransactionFailure, "transaction failed"))

	assert.True(t, errors.Is(err, errors.ErrTransactionFailure))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, errors.CodeTransactionFailure, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "disk full")
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, errors.CodeInternal, errors.CodeOf(errors.New("boom")))
}

func TestCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code errors.Code
		want int
	}{
		{errors.CodeNotFound, http.StatusNotFound},
		{errors.CodeConstraintViolation, http.StatusConflict},
		{errors.CodeValidation, http.StatusBadRequest},
		{errors.CodeNotSeeded, http.StatusServiceUnavailable},
		{errors.CodeStoreUnavailable, http.StatusServiceUnavailable},
		{errors.CodeTransactionFailure, http.StatusInternalServerError},
		{errors.CodeCollectionNotFound, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestError_WithDetails(t *testing.T) {
	details := map[string]string{"label": "required"}
	err := errors.ErrValidation.WithDetails(details)

	assert.Equal(t, details, err.Details)
	assert.Nil(t, errors.ErrValidation.Details)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestCode_Retryable(t *testing.T) {
	assert.True(t, errors.CodeNotSeeded.Retryable())
	assert.True(t, errors.CodeStoreUnavailable.Retryable())
	assert.False(t, errors.CodeNotFound.Retryable())
}
