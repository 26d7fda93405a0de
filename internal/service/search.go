package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/listenupapp/bookshelf/internal/domain"
	"github.com/listenupapp/bookshelf/internal/errors"
	"github.com/listenupapp/bookshelf/internal/repository"
	"github.com/listenupapp/bookshelf/internal/search"
	"github.com/listenupapp/bookshelf/internal/store"
)

// SearchService bridges the full-text index with the store. The store is
// authoritative: index writes happen after commits and a failed write only
// leaves the index stale until the next Reindex.
type SearchService struct {
	index  *search.SearchIndex
	db     *store.DB
	books  *repository.BookRepository
	agg    *repository.Aggregator
	logger *slog.Logger
}

// NewSearchService creates a new search service.
func NewSearchService(index *search.SearchIndex, db *store.DB, logger *slog.Logger) *SearchService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	bookAuthors := repository.NewBookAuthorRepository(db)
	bookTags := repository.NewBookTagRepository(db)
	authors := repository.NewAuthorRepository(db, bookAuthors, logger)
	tags := repository.NewTagRepository(db, bookTags, logger)

	return &SearchService{
		index:  index,
		db:     db,
		books:  repository.NewBookRepository(db),
		agg:    repository.NewAggregator(db, authors, tags, bookAuthors, bookTags, logger),
		logger: logger,
	}
}

// Search runs a query against the index.
func (s *SearchService) Search(ctx context.Context, params search.SearchParams) (*search.SearchResult, error) {
	return s.index.Search(ctx, params)
}

// Reindex rebuilds the index from every book in the store.
func (s *SearchService) Reindex(ctx context.Context) (int, error) {
	var books []domain.HydratedBook
	err := s.db.View(ctx, repository.HydrateScope, func(tx *store.Txn) error {
		rows, err := s.books.ListAllInTxn(tx)
		if err != nil {
			return err
		}
		books, err = s.agg.HydrateInTxn(tx, rows)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("load books: %w", err)
	}

	if err := s.index.Rebuild(); err != nil {
		return 0, fmt.Errorf("rebuild index: %w", err)
	}
	if err := s.index.IndexBooks(books); err != nil {
		return 0, fmt.Errorf("index books: %w", err)
	}

	s.logger.Info("search index rebuilt", "books", len(books))
	return len(books), nil
}

// RefreshBooks re-reads the given books and replaces their documents. Books
// that no longer exist are removed from the index.
func (s *SearchService) RefreshBooks(ctx context.Context, ids []int64) {
	var (
		books   []domain.HydratedBook
		missing []int64
	)
	err := s.db.View(ctx, repository.HydrateScope, func(tx *store.Txn) error {
		rows := make([]domain.Book, 0, len(ids))
		for _, id := range ids {
			b, err := s.books.GetInTxn(tx, id)
			if err != nil {
				if errors.Is(err, errors.ErrNotFound) {
					missing = append(missing, id)
					continue
				}
				return err
			}
			rows = append(rows, *b)
		}
		var err error
		books, err = s.agg.HydrateInTxn(tx, rows)
		return err
	})
	if err != nil {
		s.logger.Warn("failed to load books for search index", "book_ids", ids, "error", err)
		return
	}

	if err := s.index.IndexBooks(books); err != nil {
		s.logger.Warn("failed to index books", "book_ids", ids, "error", err)
	}
	if len(missing) > 0 {
		s.RemoveBooks(missing)
	}
}

// RemoveBooks drops the documents of deleted books.
func (s *SearchService) RemoveBooks(ids []int64) {
	if err := s.index.DeleteBooks(ids); err != nil {
		s.logger.Warn("failed to remove books from search index", "book_ids", ids, "error", err)
	}
}

// DocumentCount returns the number of indexed books.
func (s *SearchService) DocumentCount() (uint64, error) {
	return s.index.DocumentCount()
}
