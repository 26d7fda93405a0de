// Package search keeps a Bleve full-text index of books, denormalized with
// their author and tag labels so one query covers titles, names and tags.
package search

import (
	"strconv"
	"strings"

	"github.com/listenupapp/bookshelf/internal/domain"
)

// BookDocument is the indexed form of a hydrated book.
type BookDocument struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Authors   string   `json:"authors,omitempty"`
	Publisher string   `json:"publisher,omitempty"`
	Release   string   `json:"release,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Type      string   `json:"type,omitempty"`
}

// ToMap converts the document to the field names used by the mapping.
func (d *BookDocument) ToMap() map[string]any {
	m := map[string]any{
		"title": d.Title,
	}
	if d.Authors != "" {
		m["authors"] = d.Authors
	}
	if d.Publisher != "" {
		m["publisher"] = d.Publisher
	}
	if d.Release != "" {
		m["release"] = d.Release
	}
	if len(d.Tags) > 0 {
		m["tags"] = d.Tags
	}
	if d.Type != "" {
		m["type"] = d.Type
	}
	return m
}

// DocID returns the index document id of a book.
func DocID(bookID int64) string {
	return strconv.FormatInt(bookID, 10)
}

// ParseDocID is the inverse of DocID.
func ParseDocID(id string) (int64, error) {
	return strconv.ParseInt(id, 10, 64)
}

// BookToSearchDocument builds the document for b.
func BookToSearchDocument(b *domain.HydratedBook) *BookDocument {
	return &BookDocument{
		ID:        DocID(b.ID),
		Title:     b.Title,
		Authors:   strings.Join(b.AuthorLabels(), ", "),
		Publisher: b.Publisher,
		Release:   b.Release,
		Tags:      b.TagLabels(),
		Type:      string(b.Type),
	}
}

// IndexBooks indexes books, replacing any previous documents for them.
func (s *SearchIndex) IndexBooks(books []domain.HydratedBook) error {
	docs := make([]*BookDocument, len(books))
	for i := range books {
		docs[i] = BookToSearchDocument(&books[i])
	}
	return s.IndexDocuments(docs)
}

// DeleteBooks removes the documents of the given book ids.
func (s *SearchIndex) DeleteBooks(ids []int64) error {
	docIDs := make([]string, len(ids))
	for i, id := range ids {
		docIDs[i] = DocID(id)
	}
	return s.DeleteDocuments(docIDs)
}
