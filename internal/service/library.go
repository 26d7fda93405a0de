// Package service orchestrates the library's multi-step workflows: saving a
// book together with its authors and tags, cascading deletes, orphan pruning,
// filtering and keeping the search index in step with the store.
package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/listenupapp/bookshelf/internal/id"
	"github.com/listenupapp/bookshelf/internal/repository"
	"github.com/listenupapp/bookshelf/internal/store"
	"github.com/listenupapp/bookshelf/internal/validation"
)

// OrphanPolicy selects which entity kinds are deleted once no book links to them.
type OrphanPolicy struct {
	Authors bool
	Tags    bool
}

// DefaultOrphanPolicy prunes authors and keeps tags.
func DefaultOrphanPolicy() OrphanPolicy {
	return OrphanPolicy{Authors: true}
}

// Library holds the repositories, orphan policy and write lock shared by the
// book, author and tag services.
type Library struct {
	db          *store.DB
	books       *repository.BookRepository
	authors     *repository.AuthorRepository
	tags        *repository.TagRepository
	bookAuthors *repository.BookAuthorRepository
	bookTags    *repository.BookTagRepository
	agg         *repository.Aggregator
	search      *SearchService
	validator   *validation.Validator
	policy      OrphanPolicy
	logger      *slog.Logger

	// mu serializes write workflows so search index updates are applied in
	// commit order.
	mu sync.Mutex
}

// NewLibrary builds the repositories over db. search may be nil.
func NewLibrary(db *store.DB, search *SearchService, policy OrphanPolicy, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	bookAuthors := repository.NewBookAuthorRepository(db)
	bookTags := repository.NewBookTagRepository(db)
	authors := repository.NewAuthorRepository(db, bookAuthors, logger)
	tags := repository.NewTagRepository(db, bookTags, logger)

	return &Library{
		db:          db,
		books:       repository.NewBookRepository(db),
		authors:     authors,
		tags:        tags,
		bookAuthors: bookAuthors,
		bookTags:    bookTags,
		agg:         repository.NewAggregator(db, authors, tags, bookAuthors, bookTags, logger),
		search:      search,
		validator:   validation.New(),
		policy:      policy,
		logger:      logger,
	}
}

// Policy returns the orphan policy in effect.
func (l *Library) Policy() OrphanPolicy { return l.policy }

// Aggregator returns the hydrator, for callers that join rows themselves.
func (l *Library) Aggregator() *repository.Aggregator { return l.agg }

// write runs fn as one serialized read-write transaction over scope and
// logs the workflow under a fresh operation id.
func (l *Library) write(ctx context.Context, name string, scope []string, fn func(*store.Txn, *slog.Logger) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	log := l.logger.With("op", name, "op_id", id.Op())
	if err := l.db.Update(ctx, scope, func(tx *store.Txn) error { return fn(tx, log) }); err != nil {
		log.Warn("workflow failed", "error", err)
		return err
	}
	return nil
}

// pruneAuthorsInTxn deletes the given authors that no book links to any more.
func (l *Library) pruneAuthorsInTxn(tx *store.Txn, ids []int64) ([]int64, error) {
	return pruneInTxn(tx, l.authors, ids)
}

// pruneTagsInTxn deletes the given tags that no book links to any more.
func (l *Library) pruneTagsInTxn(tx *store.Txn, ids []int64) ([]int64, error) {
	return pruneInTxn(tx, l.tags, ids)
}

func pruneInTxn[T, J any](tx *store.Txn, repo *repository.LabelRepository[T, J], ids []int64) ([]int64, error) {
	var pruned []int64
	for _, id := range ids {
		orphan, err := repo.IsOrphanInTxn(tx, id)
		if err != nil {
			return nil, err
		}
		if !orphan {
			continue
		}
		if err := repo.DeleteInTxn(tx, id); err != nil {
			return nil, err
		}
		pruned = append(pruned, id)
	}
	return pruned, nil
}

// reindex refreshes the search documents of the given books after a commit.
// Failures are logged; the store stays authoritative.
func (l *Library) reindex(ctx context.Context, ids []int64) {
	if l.search == nil || len(ids) == 0 {
		return
	}
	l.search.RefreshBooks(ctx, ids)
}

// unindex drops the search documents of deleted books after a commit.
func (l *Library) unindex(ids []int64) {
	if l.search == nil || len(ids) == 0 {
		return
	}
	l.search.RemoveBooks(ids)
}
