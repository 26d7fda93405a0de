// Package repository provides collection-level access to books, authors,
// tags and the junction rows between them. Every method has a variant that
// runs inside a caller's transaction so services can compose multi-step
// workflows atomically.
package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/listenupapp/bookshelf/internal/domain"
	"github.com/listenupapp/bookshelf/internal/errors"
	"github.com/listenupapp/bookshelf/internal/normalize"
	"github.com/listenupapp/bookshelf/internal/schema"
	"github.com/listenupapp/bookshelf/internal/store"
)

// LabelRepository stores entities identified by a unique label (authors and
// tags) and resolves them for a book through the junction J.
type LabelRepository[T, J any] struct {
	db     *store.DB
	table  store.Table[T]
	kind   string
	label  func(*T) *string
	id     func(*T) int64
	links  *JunctionRepository[J]
	logger *slog.Logger
}

// AuthorRepository stores authors.
type AuthorRepository = LabelRepository[domain.Author, domain.BookAuthor]

// TagRepository stores tags.
type TagRepository = LabelRepository[domain.Tag, domain.BookTag]

// NewAuthorRepository creates an author repository joined through links.
func NewAuthorRepository(db *store.DB, links *BookAuthorRepository, logger *slog.Logger) *AuthorRepository {
	return &AuthorRepository{
		db:     db,
		table:  schema.AuthorTable,
		kind:   "author",
		label:  func(a *domain.Author) *string { return &a.Label },
		id:     func(a *domain.Author) int64 { return a.ID },
		links:  links.JunctionRepository,
		logger: orDiscard(logger),
	}
}

// NewTagRepository creates a tag repository joined through links.
func NewTagRepository(db *store.DB, links *BookTagRepository, logger *slog.Logger) *TagRepository {
	return &TagRepository{
		db:     db,
		table:  schema.TagTable,
		kind:   "tag",
		label:  func(t *domain.Tag) *string { return &t.Label },
		id:     func(t *domain.Tag) int64 { return t.ID },
		links:  links.JunctionRepository,
		logger: orDiscard(logger),
	}
}

func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}

// Name returns the entity collection name.
func (r *LabelRepository[T, J]) Name() string { return r.table.Name() }

// ListAll returns every entity in key order.
func (r *LabelRepository[T, J]) ListAll(ctx context.Context) ([]T, error) {
	var out []T
	err := r.db.View(ctx, []string{r.table.Name()}, func(tx *store.Txn) error {
		var err error
		out, err = r.table.All(tx)
		return err
	})
	return out, err
}

// ListAllInTxn is ListAll inside tx.
func (r *LabelRepository[T, J]) ListAllInTxn(tx *store.Txn) ([]T, error) {
	return r.table.All(tx)
}

// Get returns the entity with id, or NOT_FOUND.
func (r *LabelRepository[T, J]) Get(ctx context.Context, id int64) (*T, error) {
	var out *T
	err := r.db.View(ctx, []string{r.table.Name()}, func(tx *store.Txn) error {
		var err error
		out, err = r.GetInTxn(tx, id)
		return err
	})
	return out, err
}

// GetInTxn is Get inside tx.
func (r *LabelRepository[T, J]) GetInTxn(tx *store.Txn, id int64) (*T, error) {
	return r.table.Get(tx, id)
}

// FindByLabel returns the entities whose normalized label equals label.
// The label index is unique, so the result holds at most one entity.
func (r *LabelRepository[T, J]) FindByLabel(ctx context.Context, label string) ([]T, error) {
	var out []T
	err := r.db.View(ctx, []string{r.table.Name()}, func(tx *store.Txn) error {
		var err error
		out, err = r.FindByLabelInTxn(tx, label)
		return err
	})
	return out, err
}

// FindByLabelInTxn is FindByLabel inside tx.
func (r *LabelRepository[T, J]) FindByLabelInTxn(tx *store.Txn, label string) ([]T, error) {
	label = normalize.Label(label)
	if label == "" {
		return []T{}, nil
	}
	return r.table.ByIndex(tx, schema.IndexLabel, label)
}

// FindByBookID returns the entities linked to bookID in link order.
func (r *LabelRepository[T, J]) FindByBookID(ctx context.Context, bookID int64) ([]T, error) {
	var out []T
	err := r.db.View(ctx, []string{r.table.Name(), r.links.Name()}, func(tx *store.Txn) error {
		var err error
		out, err = r.FindByBookIDInTxn(tx, bookID)
		return err
	})
	return out, err
}

// FindByBookIDInTxn is FindByBookID inside tx. There is one entry per link
// row, in row order, as hydration reports them. Links to missing entities are
// skipped.
func (r *LabelRepository[T, J]) FindByBookIDInTxn(tx *store.Txn, bookID int64) ([]T, error) {
	rows, err := r.links.ListByBookInTxn(tx, bookID)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for i := range rows {
		id := r.links.targetOf(&rows[i])
		v, err := r.table.Get(tx, id)
		if errors.Is(err, errors.ErrNotFound) {
			r.logger.Warn("dangling link", "collection", r.links.Name(), "book_id", bookID, r.kind+"_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// Create inserts v and returns its key. A label already present is a
// CONSTRAINT_VIOLATION.
func (r *LabelRepository[T, J]) Create(ctx context.Context, v *T) (int64, error) {
	var key int64
	err := r.db.Update(ctx, []string{r.table.Name()}, func(tx *store.Txn) error {
		var err error
		key, err = r.CreateInTxn(tx, v)
		return err
	})
	return key, err
}

// CreateInTxn is Create inside tx.
func (r *LabelRepository[T, J]) CreateInTxn(tx *store.Txn, v *T) (int64, error) {
	if err := r.normalize(v); err != nil {
		return 0, err
	}
	return r.table.Insert(tx, v)
}

// FindOrCreateInTxn returns the entity labeled like v, inserting v when no
// such entity exists. The lookup and the insert share tx, and write
// transactions are serialized by the store, so two callers can never create
// the same label twice. An existing entity is returned unchanged.
func (r *LabelRepository[T, J]) FindOrCreateInTxn(tx *store.Txn, v T) (T, bool, error) {
	var zero T
	if err := r.normalize(&v); err != nil {
		return zero, false, err
	}
	found, err := r.table.ByIndex(tx, schema.IndexLabel, *r.label(&v))
	if err != nil {
		return zero, false, err
	}
	if len(found) > 0 {
		return found[0], false, nil
	}
	if _, err := r.table.Insert(tx, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Update overwrites the entity with v's key. It returns NOT_FOUND when the
// key is absent.
func (r *LabelRepository[T, J]) Update(ctx context.Context, v *T) error {
	return r.db.Update(ctx, []string{r.table.Name()}, func(tx *store.Txn) error {
		return r.UpdateInTxn(tx, v)
	})
}

// UpdateInTxn is Update inside tx.
func (r *LabelRepository[T, J]) UpdateInTxn(tx *store.Txn, v *T) error {
	if err := r.normalize(v); err != nil {
		return err
	}
	c, err := r.table.In(tx)
	if err != nil {
		return err
	}
	id := r.id(v)
	ok, err := c.Exists(id)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NotFoundf("%s %d not found", r.kind, id)
	}
	return r.table.Put(tx, v)
}

// Delete removes the entity row only. Callers cascade junction rows.
func (r *LabelRepository[T, J]) Delete(ctx context.Context, id int64) error {
	return r.db.Update(ctx, []string{r.table.Name()}, func(tx *store.Txn) error {
		return r.DeleteInTxn(tx, id)
	})
}

// DeleteInTxn is Delete inside tx.
func (r *LabelRepository[T, J]) DeleteInTxn(tx *store.Txn, id int64) error {
	return r.table.Delete(tx, id)
}

// IsOrphanInTxn reports whether no junction row references id.
func (r *LabelRepository[T, J]) IsOrphanInTxn(tx *store.Txn, id int64) (bool, error) {
	n, err := r.links.CountByTargetInTxn(tx, id)
	return n == 0, err
}

// OrphansInTxn returns every entity no book links to.
func (r *LabelRepository[T, J]) OrphansInTxn(tx *store.Txn) ([]T, error) {
	all, err := r.table.All(tx)
	if err != nil {
		return nil, err
	}
	var out []T
	for i := range all {
		orphan, err := r.IsOrphanInTxn(tx, r.id(&all[i]))
		if err != nil {
			return nil, err
		}
		if orphan {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// ID returns v's key.
func (r *LabelRepository[T, J]) ID(v *T) int64 { return r.id(v) }

// Label returns v's label.
func (r *LabelRepository[T, J]) Label(v *T) string { return *r.label(v) }

// Links returns the junction the entity is joined through.
func (r *LabelRepository[T, J]) Links() *JunctionRepository[J] { return r.links }

func (r *LabelRepository[T, J]) normalize(v *T) error {
	l := r.label(v)
	*l = normalize.Label(*l)
	if *l == "" {
		return errors.ValidationWithDetails(fmt.Sprintf("%s label is required", r.kind),
			map[string]string{"label": "is required"})
	}
	return nil
}
