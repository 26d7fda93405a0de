package repository

import (
	"context"

	"github.com/listenupapp/bookshelf/internal/domain"
	"github.com/listenupapp/bookshelf/internal/schema"
	"github.com/listenupapp/bookshelf/internal/store"
)

// JunctionRepository manages many-to-many rows linking books to one other
// entity kind. Every bulk operation runs in a single transaction.
type JunctionRepository[J any] struct {
	db          *store.DB
	table       store.Table[J]
	targetIndex string
	bookOf      func(*J) int64
	targetOf    func(*J) int64
	newLink     func(bookID, targetID int64) J
}

// Name returns the junction collection name.
func (r *JunctionRepository[J]) Name() string { return r.table.Name() }

// Create links bookID to targetID and returns the new row key.
func (r *JunctionRepository[J]) Create(ctx context.Context, bookID, targetID int64) (int64, error) {
	var key int64
	err := r.db.Update(ctx, []string{r.table.Name()}, func(tx *store.Txn) error {
		var err error
		key, err = r.CreateInTxn(tx, bookID, targetID)
		return err
	})
	return key, err
}

// CreateInTxn links bookID to targetID inside tx.
func (r *JunctionRepository[J]) CreateInTxn(tx *store.Txn, bookID, targetID int64) (int64, error) {
	link := r.newLink(bookID, targetID)
	return r.table.Insert(tx, &link)
}

// ListByBook returns the book's rows in creation order.
func (r *JunctionRepository[J]) ListByBook(ctx context.Context, bookID int64) ([]J, error) {
	var rows []J
	err := r.db.View(ctx, []string{r.table.Name()}, func(tx *store.Txn) error {
		var err error
		rows, err = r.ListByBookInTxn(tx, bookID)
		return err
	})
	return rows, err
}

// ListByBookInTxn is ListByBook inside tx.
func (r *JunctionRepository[J]) ListByBookInTxn(tx *store.Txn, bookID int64) ([]J, error) {
	return r.table.ByIndex(tx, schema.IndexBookID, bookID)
}

// ListByTarget returns every row pointing at targetID.
func (r *JunctionRepository[J]) ListByTarget(ctx context.Context, targetID int64) ([]J, error) {
	var rows []J
	err := r.db.View(ctx, []string{r.table.Name()}, func(tx *store.Txn) error {
		var err error
		rows, err = r.ListByTargetInTxn(tx, targetID)
		return err
	})
	return rows, err
}

// ListByTargetInTxn is ListByTarget inside tx.
func (r *JunctionRepository[J]) ListByTargetInTxn(tx *store.Txn, targetID int64) ([]J, error) {
	return r.table.ByIndex(tx, r.targetIndex, targetID)
}

// CountByTarget counts the books linked to targetID.
func (r *JunctionRepository[J]) CountByTarget(ctx context.Context, targetID int64) (int, error) {
	var n int
	err := r.db.View(ctx, []string{r.table.Name()}, func(tx *store.Txn) error {
		var err error
		n, err = r.CountByTargetInTxn(tx, targetID)
		return err
	})
	return n, err
}

// CountByTargetInTxn is CountByTarget inside tx.
func (r *JunctionRepository[J]) CountByTargetInTxn(tx *store.Txn, targetID int64) (int, error) {
	c, err := r.table.In(tx)
	if err != nil {
		return 0, err
	}
	return c.CountByIndex(r.targetIndex, targetID)
}

// ScanAll returns every row ordered by book, then creation.
func (r *JunctionRepository[J]) ScanAll(ctx context.Context) ([]J, error) {
	var rows []J
	err := r.db.View(ctx, []string{r.table.Name()}, func(tx *store.Txn) error {
		var err error
		rows, err = r.ScanAllInTxn(tx)
		return err
	})
	return rows, err
}

// ScanAllInTxn is ScanAll inside tx.
func (r *JunctionRepository[J]) ScanAllInTxn(tx *store.Txn) ([]J, error) {
	return r.table.ByIndex(tx, schema.IndexBookID, nil)
}

// DeleteByBook removes every row of bookID and returns the removed rows.
// Either all of them are gone or none are.
func (r *JunctionRepository[J]) DeleteByBook(ctx context.Context, bookID int64) ([]J, error) {
	var removed []J
	err := r.db.Update(ctx, []string{r.table.Name()}, func(tx *store.Txn) error {
		var err error
		removed, err = r.DeleteByBookInTxn(tx, bookID)
		return err
	})
	return removed, err
}

// DeleteByBookInTxn is DeleteByBook inside tx.
func (r *JunctionRepository[J]) DeleteByBookInTxn(tx *store.Txn, bookID int64) ([]J, error) {
	return r.deleteWhere(tx, schema.IndexBookID, bookID)
}

// DeleteByTarget removes every row pointing at targetID.
func (r *JunctionRepository[J]) DeleteByTarget(ctx context.Context, targetID int64) ([]J, error) {
	var removed []J
	err := r.db.Update(ctx, []string{r.table.Name()}, func(tx *store.Txn) error {
		var err error
		removed, err = r.DeleteByTargetInTxn(tx, targetID)
		return err
	})
	return removed, err
}

// DeleteByTargetInTxn is DeleteByTarget inside tx.
func (r *JunctionRepository[J]) DeleteByTargetInTxn(tx *store.Txn, targetID int64) ([]J, error) {
	return r.deleteWhere(tx, r.targetIndex, targetID)
}

func (r *JunctionRepository[J]) deleteWhere(tx *store.Txn, index string, value int64) ([]J, error) {
	c, err := r.table.In(tx)
	if err != nil {
		return nil, err
	}
	rows, err := r.table.ByIndex(tx, index, value)
	if err != nil {
		return nil, err
	}
	keys, err := c.GetAllKeysByIndex(index, value)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if err := c.Delete(key); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// TargetIDs returns the distinct target ids of rows, in row order.
func (r *JunctionRepository[J]) TargetIDs(rows []J) []int64 {
	out := make([]int64, 0, len(rows))
	seen := make(map[int64]struct{}, len(rows))
	for i := range rows {
		id := r.targetOf(&rows[i])
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// GroupByBook indexes rows by book id, keeping row order within each book.
func (r *JunctionRepository[J]) GroupByBook(rows []J) map[int64][]int64 {
	out := make(map[int64][]int64)
	for i := range rows {
		book := r.bookOf(&rows[i])
		out[book] = append(out[book], r.targetOf(&rows[i]))
	}
	return out
}

// BookAuthorRepository links books to authors.
type BookAuthorRepository struct {
	*JunctionRepository[domain.BookAuthor]
}

// NewBookAuthorRepository creates the book/author junction repository.
func NewBookAuthorRepository(db *store.DB) *BookAuthorRepository {
	return &BookAuthorRepository{&JunctionRepository[domain.BookAuthor]{
		db:          db,
		table:       schema.BookAuthorTable,
		targetIndex: schema.IndexAuthorID,
		bookOf:      func(j *domain.BookAuthor) int64 { return j.BookID },
		targetOf:    func(j *domain.BookAuthor) int64 { return j.AuthorID },
		newLink: func(bookID, authorID int64) domain.BookAuthor {
			return domain.BookAuthor{BookID: bookID, AuthorID: authorID}
		},
	}}
}

// DeleteByAuthor removes every link to authorID.
func (r *BookAuthorRepository) DeleteByAuthor(ctx context.Context, authorID int64) ([]domain.BookAuthor, error) {
	return r.DeleteByTarget(ctx, authorID)
}

// BookTagRepository links books to tags.
type BookTagRepository struct {
	*JunctionRepository[domain.BookTag]
}

// NewBookTagRepository creates the book/tag junction repository.
func NewBookTagRepository(db *store.DB) *BookTagRepository {
	return &BookTagRepository{&JunctionRepository[domain.BookTag]{
		db:          db,
		table:       schema.BookTagTable,
		targetIndex: schema.IndexTagID,
		bookOf:      func(j *domain.BookTag) int64 { return j.BookID },
		targetOf:    func(j *domain.BookTag) int64 { return j.TagID },
		newLink: func(bookID, tagID int64) domain.BookTag {
			return domain.BookTag{BookID: bookID, TagID: tagID}
		},
	}}
}

// DeleteByTag removes every link to tagID, used before the tag itself is deleted.
func (r *BookTagRepository) DeleteByTag(ctx context.Context, tagID int64) ([]domain.BookTag, error) {
	return r.DeleteByTarget(ctx, tagID)
}
