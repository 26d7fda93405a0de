package validation_test

import (
	"testing"

	"github.com/listenupapp/bookshelf/internal/errors"
	"github.com/listenupapp/bookshelf/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tagRequest struct {
	Label string `json:"label" validate:"label,max=128"`
	Color string `json:"color,omitempty" validate:"omitempty,iscolor"`
}

type bookRequest struct {
	Title   string   `json:"title" validate:"label"`
	Authors []string `json:"authors" validate:"dive,label"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	assert.NoError(t, v.Validate(tagRequest{Label: "sci-fi", Color: "hsl(184, 50%, 50%)"}))
	assert.NoError(t, v.Validate(tagRequest{Label: "classic", Color: "#aa33ff"}))
	assert.NoError(t, v.Validate(tagRequest{Label: "no color"}))
	assert.NoError(t, v.Validate(bookRequest{Title: "Dune", Authors: []string{"Frank Herbert"}}))
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		req       any
		wantField string
		wantMsg   string
	}{
		{
			name:      "blank label",
			req:       tagRequest{Label: "   "},
			wantField: "label",
			wantMsg:   "must not be blank",
		},
		{
			name:      "bad color",
			req:       tagRequest{Label: "x", Color: "not a color"},
			wantField: "color",
			wantMsg:   "must be a CSS color (hex, rgb, rgba, hsl or hsla)",
		},
		{
			name:      "blank author in list",
			req:       bookRequest{Title: "Dune", Authors: []string{"Frank Herbert", " "}},
			wantField: "authors[1]",
			wantMsg:   "must not be blank",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrValidation))

			var domainErr *errors.Error
			require.True(t, errors.As(err, &domainErr))
			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Equal(t, tt.wantMsg, details[tt.wantField])
		})
	}
}
