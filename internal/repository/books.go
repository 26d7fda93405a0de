package repository

import (
	"context"

	"github.com/listenupapp/bookshelf/internal/domain"
	"github.com/listenupapp/bookshelf/internal/errors"
	"github.com/listenupapp/bookshelf/internal/schema"
	"github.com/listenupapp/bookshelf/internal/store"
)

// BookRepository reads and writes bare book rows. Joining authors and tags
// is the Aggregator's job.
type BookRepository struct {
	db    *store.DB
	table store.Table[domain.Book]
}

// NewBookRepository creates a book row repository.
func NewBookRepository(db *store.DB) *BookRepository {
	return &BookRepository{db: db, table: schema.BookTable}
}

// Name returns the book collection name.
func (r *BookRepository) Name() string { return r.table.Name() }

// ListAllInTxn returns every book in key order.
func (r *BookRepository) ListAllInTxn(tx *store.Txn) ([]domain.Book, error) {
	return r.table.All(tx)
}

// GetInTxn returns the book with id, or NOT_FOUND.
func (r *BookRepository) GetInTxn(tx *store.Txn, id int64) (*domain.Book, error) {
	b, err := r.table.Get(tx, id)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.NotFoundf("book %d not found", id).WithCause(err)
	}
	return b, err
}

// Get is GetInTxn in its own read transaction.
func (r *BookRepository) Get(ctx context.Context, id int64) (*domain.Book, error) {
	var out *domain.Book
	err := r.db.View(ctx, []string{schema.Books}, func(tx *store.Txn) error {
		var err error
		out, err = r.GetInTxn(tx, id)
		return err
	})
	return out, err
}

// ExistsInTxn reports whether a book with id is stored.
func (r *BookRepository) ExistsInTxn(tx *store.Txn, id int64) (bool, error) {
	c, err := r.table.In(tx)
	if err != nil {
		return false, err
	}
	return c.Exists(id)
}

// FindByTitleInTxn returns the books titled exactly title.
func (r *BookRepository) FindByTitleInTxn(tx *store.Txn, title string) ([]domain.Book, error) {
	return r.table.ByIndex(tx, schema.IndexTitle, title)
}

// FindByPublisherInTxn returns the books from exactly publisher.
func (r *BookRepository) FindByPublisherInTxn(tx *store.Txn, publisher string) ([]domain.Book, error) {
	return r.table.ByIndex(tx, schema.IndexPublisher, publisher)
}

// PublishersInTxn returns the distinct non-empty publishers in index order.
func (r *BookRepository) PublishersInTxn(tx *store.Txn) ([]string, error) {
	books, err := r.table.ByIndex(tx, schema.IndexPublisher, nil)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, b := range books {
		if b.Publisher == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1] == b.Publisher {
			continue
		}
		out = append(out, b.Publisher)
	}
	return out, nil
}

// InsertInTxn stores a new book and writes its key into b.
func (r *BookRepository) InsertInTxn(tx *store.Txn, b *domain.Book) (int64, error) {
	return r.table.Insert(tx, b)
}

// PutInTxn overwrites the book with b's key.
func (r *BookRepository) PutInTxn(tx *store.Txn, b *domain.Book) error {
	return r.table.Put(tx, b)
}

// DeleteInTxn removes the book row only.
func (r *BookRepository) DeleteInTxn(tx *store.Txn, id int64) error {
	return r.table.Delete(tx, id)
}
