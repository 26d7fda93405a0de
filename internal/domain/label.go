package domain

// Author is a unique author name shared by every book that credits it.
type Author struct {
	ID    int64  `json:"id,omitempty"`
	Label string `json:"label"`
}

// Tag is a unique, colored label shared by every book it is attached to.
type Tag struct {
	ID    int64  `json:"id,omitempty"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// BookAuthor links a book to one of its authors.
type BookAuthor struct {
	ID       int64 `json:"id,omitempty"`
	BookID   int64 `json:"book_id"`
	AuthorID int64 `json:"author_id"`
}

// BookTag links a book to one of its tags.
type BookTag struct {
	ID     int64 `json:"id,omitempty"`
	BookID int64 `json:"book_id"`
	TagID  int64 `json:"tag_id"`
}

// SeedMarker records that the default dataset has been loaded.
type SeedMarker struct {
	ID     int64  `json:"id,omitempty"`
	Exists string `json:"exists"`
}

// SeedMarkerValue is the single value ever stored in SeedMarker.Exists.
const SeedMarkerValue = "true"
