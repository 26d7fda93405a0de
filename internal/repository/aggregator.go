package repository

import (
	"context"
	"log/slog"

	"github.com/listenupapp/bookshelf/internal/domain"
	"github.com/listenupapp/bookshelf/internal/errors"
	"github.com/listenupapp/bookshelf/internal/schema"
	"github.com/listenupapp/bookshelf/internal/store"
)

// HydrateScope lists the collections a hydration reads.
var HydrateScope = []string{schema.Books, schema.Authors, schema.Tags, schema.BookAuthors, schema.BookTags}

// Aggregator joins bare book rows with their authors and tags.
type Aggregator struct {
	db          *store.DB
	authors     *AuthorRepository
	tags        *TagRepository
	bookAuthors *BookAuthorRepository
	bookTags    *BookTagRepository
	logger      *slog.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(db *store.DB, authors *AuthorRepository, tags *TagRepository,
	bookAuthors *BookAuthorRepository, bookTags *BookTagRepository, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		db:          db,
		authors:     authors,
		tags:        tags,
		bookAuthors: bookAuthors,
		bookTags:    bookTags,
		logger:      orDiscard(logger),
	}
}

// Hydrate joins books in one read snapshot, so every book in the result
// reflects the same state of the store.
func (a *Aggregator) Hydrate(ctx context.Context, books []domain.Book) ([]domain.HydratedBook, error) {
	var out []domain.HydratedBook
	err := a.db.View(ctx, HydrateScope, func(tx *store.Txn) error {
		var err error
		out, err = a.HydrateInTxn(tx, books)
		return err
	})
	return out, err
}

// HydrateInTxn is Hydrate inside tx. Both junctions are scanned once and
// grouped by book in memory; each author and tag is read at most once.
func (a *Aggregator) HydrateInTxn(tx *store.Txn, books []domain.Book) ([]domain.HydratedBook, error) {
	out := make([]domain.HydratedBook, 0, len(books))
	if len(books) == 0 {
		return out, nil
	}

	authorLinks, err := a.bookAuthors.ScanAllInTxn(tx)
	if err != nil {
		return nil, err
	}
	tagLinks, err := a.bookTags.ScanAllInTxn(tx)
	if err != nil {
		return nil, err
	}
	authorsByBook := a.bookAuthors.GroupByBook(authorLinks)
	tagsByBook := a.bookTags.GroupByBook(tagLinks)

	authorCache := make(map[int64]*domain.Author)
	tagCache := make(map[int64]*domain.Tag)

	for _, b := range books {
		h := domain.HydratedBook{
			Book:    b,
			Type:    b.Type(),
			Authors: []domain.Author{},
			Tags:    []domain.Tag{},
		}

		for _, id := range authorsByBook[b.ID] {
			author, err := resolve(tx, a.authors, authorCache, id)
			if err != nil {
				return nil, err
			}
			if author == nil {
				a.logger.Warn("dangling link", "collection", schema.BookAuthors, "book_id", b.ID, "author_id", id)
				continue
			}
			h.Authors = append(h.Authors, *author)
		}

		for _, id := range tagsByBook[b.ID] {
			tag, err := resolve(tx, a.tags, tagCache, id)
			if err != nil {
				return nil, err
			}
			if tag == nil {
				a.logger.Warn("dangling link", "collection", schema.BookTags, "book_id", b.ID, "tag_id", id)
				continue
			}
			h.Tags = append(h.Tags, *tag)
		}

		out = append(out, h)
	}
	return out, nil
}

// resolve reads id through cache. A missing entity is cached and returned as nil.
func resolve[T, J any](tx *store.Txn, repo *LabelRepository[T, J], cache map[int64]*T, id int64) (*T, error) {
	if v, ok := cache[id]; ok {
		return v, nil
	}
	v, err := repo.GetInTxn(tx, id)
	if errors.Is(err, errors.ErrNotFound) {
		cache[id] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cache[id] = v
	return v, nil
}
