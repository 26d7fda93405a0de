package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "trims", input: "  Alice  ", want: "Alice"},
		{name: "blank", input: " \t\n", want: ""},
		{name: "composes accents", input: "Garci\u0301a", want: "Garc\u00eda"},
		{name: "already normal", input: "Jorge Amado", want: "Jorge Amado"},
		{name: "keeps case", input: "sci-FI", want: "sci-FI"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Label(tt.input))
		})
	}
}

func TestFold(t *testing.T) {
	assert.Equal(t, Fold("Dom Casmurro"), Fold("DOM CASMURRO"))
	assert.Equal(t, Fold("Straße"), Fold("STRASSE"))
	assert.NotEqual(t, Fold("Dune"), Fold("Dunes"))
}

func TestLabels(t *testing.T) {
	got := Labels([]string{" Bob", "Alice", "", "Bob ", "  ", "Carol"})

	assert.Equal(t, []string{"Bob", "Alice", "Carol"}, got)
}
