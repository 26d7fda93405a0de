package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/listenupapp/bookshelf/internal/domain"
	"github.com/listenupapp/bookshelf/internal/schema"
	"github.com/listenupapp/bookshelf/internal/store"
)

// TagService orchestrates tag operations. Tags are shared by every book they
// are attached to.
type TagService struct {
	lib *Library
}

// NewTagService creates a new tag service.
func NewTagService(lib *Library) *TagService {
	return &TagService{lib: lib}
}

var tagScope = []string{schema.Tags, schema.BookTags}

// ListAll returns every tag in key order.
func (s *TagService) ListAll(ctx context.Context) ([]domain.Tag, error) {
	return s.lib.tags.ListAll(ctx)
}

// Get returns one tag, or NOT_FOUND.
func (s *TagService) Get(ctx context.Context, id int64) (*domain.Tag, error) {
	return s.lib.tags.Get(ctx, id)
}

// FindByLabel returns the tag labeled label, if any.
func (s *TagService) FindByLabel(ctx context.Context, label string) ([]domain.Tag, error) {
	return s.lib.tags.FindByLabel(ctx, label)
}

// FindByBookID returns the book's tags in link order, or NOT_FOUND for an
// unknown book.
func (s *TagService) FindByBookID(ctx context.Context, bookID int64) ([]domain.Tag, error) {
	var out []domain.Tag
	err := s.lib.db.View(ctx, []string{schema.Books, schema.Tags, schema.BookTags}, func(tx *store.Txn) error {
		if _, err := s.lib.books.GetInTxn(tx, bookID); err != nil {
			return err
		}
		var err error
		out, err = s.lib.tags.FindByBookIDInTxn(tx, bookID)
		return err
	})
	return out, err
}

// Create adds a tag not attached to any book. A label already in use is a
// CONSTRAINT_VIOLATION.
func (s *TagService) Create(ctx context.Context, in TagInput) (*domain.Tag, error) {
	if err := s.lib.validator.Validate(in); err != nil {
		return nil, err
	}
	tag := domain.Tag{Label: in.Label, Color: strings.TrimSpace(in.Color)}
	if tag.Color == "" {
		tag.Color = DefaultTagColor
	}

	err := s.lib.write(ctx, "create_tag", tagScope, func(tx *store.Txn, log *slog.Logger) error {
		if _, err := s.lib.tags.CreateInTxn(tx, &tag); err != nil {
			return err
		}
		log.Info("tag created", "tag_id", tag.ID, "label", tag.Label)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// Update renames or recolors a tag. An empty color keeps the current one.
func (s *TagService) Update(ctx context.Context, id int64, in TagInput) (*domain.Tag, error) {
	if err := s.lib.validator.Validate(in); err != nil {
		return nil, err
	}

	var (
		tag   *domain.Tag
		books []int64
	)
	err := s.lib.write(ctx, "update_tag", tagScope, func(tx *store.Txn, log *slog.Logger) error {
		current, err := s.lib.tags.GetInTxn(tx, id)
		if err != nil {
			return err
		}
		tag = &domain.Tag{ID: id, Label: in.Label, Color: strings.TrimSpace(in.Color)}
		if tag.Color == "" {
			tag.Color = current.Color
		}
		if err := s.lib.tags.UpdateInTxn(tx, tag); err != nil {
			return err
		}
		links, err := s.lib.bookTags.ListByTargetInTxn(tx, id)
		if err != nil {
			return err
		}
		for _, l := range links {
			books = append(books, l.BookID)
		}
		log.Info("tag updated", "tag_id", id, "label", tag.Label, "color", tag.Color)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.lib.reindex(ctx, books)
	return tag, nil
}

// Delete removes the tag and every link to it in one transaction.
func (s *TagService) Delete(ctx context.Context, id int64) error {
	var books []int64
	err := s.lib.write(ctx, "delete_tag", tagScope, func(tx *store.Txn, log *slog.Logger) error {
		if _, err := s.lib.tags.GetInTxn(tx, id); err != nil {
			return err
		}
		links, err := s.lib.bookTags.DeleteByTargetInTxn(tx, id)
		if err != nil {
			return fmt.Errorf("delete tag links: %w", err)
		}
		if err := s.lib.tags.DeleteInTxn(tx, id); err != nil {
			return fmt.Errorf("delete tag: %w", err)
		}
		for _, l := range links {
			books = append(books, l.BookID)
		}
		log.Info("tag deleted", "tag_id", id, "book_links", len(links))
		return nil
	})
	if err != nil {
		return err
	}

	s.lib.reindex(ctx, books)
	return nil
}

// PruneOrphans deletes every tag no book is linked to and returns them.
func (s *TagService) PruneOrphans(ctx context.Context) ([]domain.Tag, error) {
	var pruned []domain.Tag
	err := s.lib.write(ctx, "prune_tags", tagScope, func(tx *store.Txn, log *slog.Logger) error {
		orphans, err := s.lib.tags.OrphansInTxn(tx)
		if err != nil {
			return err
		}
		for _, t := range orphans {
			if err := s.lib.tags.DeleteInTxn(tx, t.ID); err != nil {
				return err
			}
		}
		pruned = orphans
		log.Info("orphan tags pruned", "count", len(orphans))
		return nil
	})
	return pruned, err
}
