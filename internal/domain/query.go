package domain

import "fmt"

// FilterField selects which attribute a BookQuery matches against.
type FilterField string

// Filter fields offered by the library view.
const (
	FilterNone      FilterField = ""
	FilterTitle     FilterField = "title"
	FilterTag       FilterField = "tag"
	FilterAuthor    FilterField = "author"
	FilterPublisher FilterField = "publisher"
)

// ParseFilterField validates a filter field name.
func ParseFilterField(s string) (FilterField, error) {
	switch f := FilterField(s); f {
	case FilterNone, FilterTitle, FilterTag, FilterAuthor, FilterPublisher:
		return f, nil
	default:
		return FilterNone, fmt.Errorf("unknown filter %q", s)
	}
}

// BookQuery narrows a book listing.
//
// Title matching honors CaseSensitive and WholeWord: whole-word means the
// title must equal Value, otherwise Value may appear anywhere in the title.
// Tag, author and publisher match the label exactly. An author query with an
// empty Value selects books that have no authors.
type BookQuery struct {
	Field         FilterField `json:"field"`
	Value         string      `json:"value"`
	CaseSensitive bool        `json:"case_sensitive"`
	WholeWord     bool        `json:"whole_word"`
}
