package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/listenupapp/bookshelf/internal/domain"
	"github.com/listenupapp/bookshelf/internal/schema"
	"github.com/listenupapp/bookshelf/internal/store"
)

// AuthorInput renames an author.
type AuthorInput struct {
	Label string `json:"label" validate:"label"`
}

// AuthorService orchestrates author operations. Authors are created
// implicitly when a book is saved with a new name.
type AuthorService struct {
	lib *Library
}

// NewAuthorService creates a new author service.
func NewAuthorService(lib *Library) *AuthorService {
	return &AuthorService{lib: lib}
}

var authorScope = []string{schema.Authors, schema.BookAuthors}

// ListAll returns every author in key order.
func (s *AuthorService) ListAll(ctx context.Context) ([]domain.Author, error) {
	return s.lib.authors.ListAll(ctx)
}

// Get returns one author, or NOT_FOUND.
func (s *AuthorService) Get(ctx context.Context, id int64) (*domain.Author, error) {
	return s.lib.authors.Get(ctx, id)
}

// FindByLabel returns the author labeled label, if any.
func (s *AuthorService) FindByLabel(ctx context.Context, label string) ([]domain.Author, error) {
	return s.lib.authors.FindByLabel(ctx, label)
}

// FindByBookID returns the book's authors in link order, or NOT_FOUND for an
// unknown book.
func (s *AuthorService) FindByBookID(ctx context.Context, bookID int64) ([]domain.Author, error) {
	var out []domain.Author
	err := s.lib.db.View(ctx, []string{schema.Books, schema.Authors, schema.BookAuthors}, func(tx *store.Txn) error {
		if _, err := s.lib.books.GetInTxn(tx, bookID); err != nil {
			return err
		}
		var err error
		out, err = s.lib.authors.FindByBookIDInTxn(tx, bookID)
		return err
	})
	return out, err
}

// Update renames an author. Renaming onto a label already in use is a
// CONSTRAINT_VIOLATION.
func (s *AuthorService) Update(ctx context.Context, id int64, in AuthorInput) (*domain.Author, error) {
	if err := s.lib.validator.Validate(in); err != nil {
		return nil, err
	}

	author := &domain.Author{ID: id, Label: in.Label}
	var books []int64
	err := s.lib.write(ctx, "update_author", authorScope, func(tx *store.Txn, log *slog.Logger) error {
		if err := s.lib.authors.UpdateInTxn(tx, author); err != nil {
			return err
		}
		links, err := s.lib.bookAuthors.ListByTargetInTxn(tx, id)
		if err != nil {
			return err
		}
		for _, l := range links {
			books = append(books, l.BookID)
		}
		log.Info("author updated", "author_id", id, "label", author.Label)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.lib.reindex(ctx, books)
	return author, nil
}

// Delete removes the author and every link to it in one transaction.
func (s *AuthorService) Delete(ctx context.Context, id int64) error {
	var books []int64
	err := s.lib.write(ctx, "delete_author", authorScope, func(tx *store.Txn, log *slog.Logger) error {
		if _, err := s.lib.authors.GetInTxn(tx, id); err != nil {
			return err
		}
		links, err := s.lib.bookAuthors.DeleteByTargetInTxn(tx, id)
		if err != nil {
			return fmt.Errorf("delete author links: %w", err)
		}
		if err := s.lib.authors.DeleteInTxn(tx, id); err != nil {
			return fmt.Errorf("delete author: %w", err)
		}
		for _, l := range links {
			books = append(books, l.BookID)
		}
		log.Info("author deleted", "author_id", id, "book_links", len(links))
		return nil
	})
	if err != nil {
		return err
	}

	s.lib.reindex(ctx, books)
	return nil
}

// PruneOrphans deletes every author no book credits and returns them.
func (s *AuthorService) PruneOrphans(ctx context.Context) ([]domain.Author, error) {
	var pruned []domain.Author
	err := s.lib.write(ctx, "prune_authors", authorScope, func(tx *store.Txn, log *slog.Logger) error {
		orphans, err := s.lib.authors.OrphansInTxn(tx)
		if err != nil {
			return err
		}
		for _, a := range orphans {
			if err := s.lib.authors.DeleteInTxn(tx, a.ID); err != nil {
				return err
			}
		}
		pruned = orphans
		log.Info("orphan authors pruned", "count", len(orphans))
		return nil
	})
	return pruned, err
}
