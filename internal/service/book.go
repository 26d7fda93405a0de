package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/listenupapp/bookshelf/internal/domain"
	"github.com/listenupapp/bookshelf/internal/errors"
	"github.com/listenupapp/bookshelf/internal/normalize"
	"github.com/listenupapp/bookshelf/internal/repository"
	"github.com/listenupapp/bookshelf/internal/search"
	"github.com/listenupapp/bookshelf/internal/store"
)

// DefaultTagColor is given to tags created without a color.
const DefaultTagColor = "hsl(184, 50%, 50%)"

// BookInput is the editable part of a book together with the full lists of
// author names and tags it should carry after the save.
type BookInput struct {
	Title      string          `json:"title" validate:"required,label"`
	Publisher  string          `json:"publisher"`
	Release    string          `json:"release"`
	Cover      *domain.Payload `json:"cover,omitempty"`
	Attachment *domain.Payload `json:"attachment,omitempty"`
	Authors    []string        `json:"authors" validate:"dive,label"`
	Tags       []TagInput      `json:"tags" validate:"dive"`
}

// TagInput names a tag to attach or create. Color only applies when the tag
// does not exist yet.
type TagInput struct {
	Label string `json:"label" validate:"label"`
	Color string `json:"color" validate:"omitempty,iscolor"`
}

// BookService orchestrates book operations.
type BookService struct {
	lib *Library
}

// NewBookService creates a new book service.
func NewBookService(lib *Library) *BookService {
	return &BookService{lib: lib}
}

// ListAll returns every book with its authors and tags, in key order.
func (s *BookService) ListAll(ctx context.Context) ([]domain.HydratedBook, error) {
	return s.read(ctx, func(tx *store.Txn) ([]domain.Book, error) {
		return s.lib.books.ListAllInTxn(tx)
	})
}

// FindByID returns one hydrated book, or NOT_FOUND.
func (s *BookService) FindByID(ctx context.Context, id int64) (*domain.HydratedBook, error) {
	out, err := s.read(ctx, func(tx *store.Txn) ([]domain.Book, error) {
		b, err := s.lib.books.GetInTxn(tx, id)
		if err != nil {
			return nil, err
		}
		return []domain.Book{*b}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// FindByTitle returns the books titled exactly title.
func (s *BookService) FindByTitle(ctx context.Context, title string) ([]domain.HydratedBook, error) {
	return s.read(ctx, func(tx *store.Txn) ([]domain.Book, error) {
		return s.lib.books.FindByTitleInTxn(tx, title)
	})
}

// FindByPublisher returns the books from exactly publisher.
func (s *BookService) FindByPublisher(ctx context.Context, publisher string) ([]domain.HydratedBook, error) {
	return s.read(ctx, func(tx *store.Txn) ([]domain.Book, error) {
		return s.lib.books.FindByPublisherInTxn(tx, publisher)
	})
}

// FindByAuthorLabel returns the books crediting the author labeled label.
// An unknown label yields an empty list.
func (s *BookService) FindByAuthorLabel(ctx context.Context, label string) ([]domain.HydratedBook, error) {
	return s.read(ctx, func(tx *store.Txn) ([]domain.Book, error) {
		authors, err := s.lib.authors.FindByLabelInTxn(tx, label)
		if err != nil || len(authors) == 0 {
			return nil, err
		}
		links, err := s.lib.bookAuthors.ListByTargetInTxn(tx, authors[0].ID)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, len(links))
		for i, l := range links {
			ids[i] = l.BookID
		}
		return s.booksByID(tx, ids)
	})
}

// FindByTagLabel returns the books carrying the tag labeled label. An
// unknown label yields an empty list.
func (s *BookService) FindByTagLabel(ctx context.Context, label string) ([]domain.HydratedBook, error) {
	return s.read(ctx, func(tx *store.Txn) ([]domain.Book, error) {
		tags, err := s.lib.tags.FindByLabelInTxn(tx, label)
		if err != nil || len(tags) == 0 {
			return nil, err
		}
		links, err := s.lib.bookTags.ListByTargetInTxn(tx, tags[0].ID)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, len(links))
		for i, l := range links {
			ids[i] = l.BookID
		}
		return s.booksByID(tx, ids)
	})
}

// Filter applies a library view query.
func (s *BookService) Filter(ctx context.Context, q domain.BookQuery) ([]domain.HydratedBook, error) {
	switch q.Field {
	case domain.FilterNone:
		return s.ListAll(ctx)
	case domain.FilterTag:
		return s.FindByTagLabel(ctx, q.Value)
	case domain.FilterPublisher:
		return s.FindByPublisher(ctx, q.Value)
	case domain.FilterAuthor:
		if strings.TrimSpace(q.Value) == "" {
			return s.withoutAuthors(ctx)
		}
		return s.FindByAuthorLabel(ctx, q.Value)
	case domain.FilterTitle:
		return s.read(ctx, func(tx *store.Txn) ([]domain.Book, error) {
			all, err := s.lib.books.ListAllInTxn(tx)
			if err != nil {
				return nil, err
			}
			return slices.DeleteFunc(all, func(b domain.Book) bool {
				return !matchTitle(b.Title, q)
			}), nil
		})
	default:
		return nil, errors.Validationf("unknown filter %q", q.Field)
	}
}

func matchTitle(title string, q domain.BookQuery) bool {
	value := q.Value
	if !q.CaseSensitive {
		title = normalize.Fold(title)
		value = normalize.Fold(value)
	}
	if q.WholeWord {
		return title == value
	}
	return strings.Contains(title, value)
}

func (s *BookService) withoutAuthors(ctx context.Context) ([]domain.HydratedBook, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(b domain.HydratedBook) bool {
		return len(b.Authors) > 0
	}), nil
}

// ListPublishers returns the distinct publishers in sorted order.
func (s *BookService) ListPublishers(ctx context.Context) ([]string, error) {
	var out []string
	err := s.lib.db.View(ctx, []string{s.lib.books.Name()}, func(tx *store.Txn) error {
		var err error
		out, err = s.lib.books.PublishersInTxn(tx)
		return err
	})
	return out, err
}

// Search returns the books matching a full-text query, best match first.
// Without a search index it falls back to a case-insensitive title match.
func (s *BookService) Search(ctx context.Context, query string, limit int) ([]domain.HydratedBook, error) {
	if strings.TrimSpace(query) == "" {
		return []domain.HydratedBook{}, nil
	}
	if s.lib.search == nil {
		return s.Filter(ctx, domain.BookQuery{Field: domain.FilterTitle, Value: query})
	}

	params := search.DefaultSearchParams()
	params.Query = query
	params.IncludeFacets = false
	if limit > 0 {
		params.Limit = limit
	}
	res, err := s.lib.search.Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}

	ids := make([]int64, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.BookID
	}
	return s.read(ctx, func(tx *store.Txn) ([]domain.Book, error) {
		return s.booksByID(tx, ids)
	})
}

// Create stores a new book with progress "0" and links it to its authors
// and tags, creating any that do not exist yet, all in one transaction.
func (s *BookService) Create(ctx context.Context, in BookInput) (*domain.HydratedBook, error) {
	if err := s.lib.validator.Validate(in); err != nil {
		return nil, err
	}

	var out *domain.HydratedBook
	err := s.lib.write(ctx, "create_book", repository.HydrateScope, func(tx *store.Txn, log *slog.Logger) error {
		book := in.book()
		book.Progress = domain.InitialProgress
		if _, err := s.lib.books.InsertInTxn(tx, &book); err != nil {
			return fmt.Errorf("insert book: %w", err)
		}
		if _, err := s.reconcileInTxn(tx, log, book.ID, in); err != nil {
			return err
		}

		hydrated, err := s.lib.agg.HydrateInTxn(tx, []domain.Book{book})
		if err != nil {
			return err
		}
		out = &hydrated[0]
		log.Info("book created", "book_id", book.ID, "authors", len(out.Authors), "tags", len(out.Tags))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.lib.reindex(ctx, []int64{out.ID})
	return out, nil
}

// Update overwrites the book's fields, keeping its progress, and replaces
// its author and tag links. Entities that lose their last link are pruned
// per the orphan policy. Everything happens in one transaction.
func (s *BookService) Update(ctx context.Context, id int64, in BookInput) (*domain.HydratedBook, error) {
	if err := s.lib.validator.Validate(in); err != nil {
		return nil, err
	}

	var out *domain.HydratedBook
	err := s.lib.write(ctx, "update_book", repository.HydrateScope, func(tx *store.Txn, log *slog.Logger) error {
		current, err := s.lib.books.GetInTxn(tx, id)
		if err != nil {
			return err
		}

		book := in.book()
		book.ID = id
		book.Progress = current.Progress
		if err := s.lib.books.PutInTxn(tx, &book); err != nil {
			return fmt.Errorf("update book: %w", err)
		}

		dropped, err := s.reconcileInTxn(tx, log, id, in)
		if err != nil {
			return err
		}
		if err := s.pruneInTxn(tx, log, dropped); err != nil {
			return err
		}

		hydrated, err := s.lib.agg.HydrateInTxn(tx, []domain.Book{book})
		if err != nil {
			return err
		}
		out = &hydrated[0]
		log.Info("book updated", "book_id", id, "authors", len(out.Authors), "tags", len(out.Tags))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.lib.reindex(ctx, []int64{id})
	return out, nil
}

// UpdateProgress replaces only the book's reading progress.
func (s *BookService) UpdateProgress(ctx context.Context, id int64, progress string) error {
	return s.lib.write(ctx, "update_progress", []string{s.lib.books.Name()}, func(tx *store.Txn, log *slog.Logger) error {
		book, err := s.lib.books.GetInTxn(tx, id)
		if err != nil {
			return err
		}
		book.Progress = progress
		if err := s.lib.books.PutInTxn(tx, book); err != nil {
			return err
		}
		log.Debug("progress updated", "book_id", id, "progress", progress)
		return nil
	})
}

// Delete removes the book and its links, then prunes authors (and tags, if
// the policy says so) that no other book references. The cascade is one
// transaction: it either completes or leaves the store untouched.
func (s *BookService) Delete(ctx context.Context, id int64) error {
	err := s.lib.write(ctx, "delete_book", repository.HydrateScope, func(tx *store.Txn, log *slog.Logger) error {
		if _, err := s.lib.books.GetInTxn(tx, id); err != nil {
			return err
		}

		authorLinks, err := s.lib.bookAuthors.DeleteByBookInTxn(tx, id)
		if err != nil {
			return fmt.Errorf("delete author links: %w", err)
		}
		tagLinks, err := s.lib.bookTags.DeleteByBookInTxn(tx, id)
		if err != nil {
			return fmt.Errorf("delete tag links: %w", err)
		}

		linked := droppedLinks{
			authors: s.lib.bookAuthors.TargetIDs(authorLinks),
			tags:    s.lib.bookTags.TargetIDs(tagLinks),
		}
		if err := s.pruneInTxn(tx, log, linked); err != nil {
			return err
		}

		if err := s.lib.books.DeleteInTxn(tx, id); err != nil {
			return fmt.Errorf("delete book: %w", err)
		}
		log.Info("book deleted", "book_id", id,
			"author_links", len(authorLinks), "tag_links", len(tagLinks))
		return nil
	})
	if err != nil {
		return err
	}

	s.lib.unindex([]int64{id})
	return nil
}

// droppedLinks holds the entity ids a book was linked to before a save or
// delete and is no longer.
type droppedLinks struct {
	authors []int64
	tags    []int64
}

// reconcileInTxn replaces the book's links with the entities named by in.
// Existing entities are reused by label; missing ones are created.
func (s *BookService) reconcileInTxn(tx *store.Txn, log *slog.Logger, bookID int64, in BookInput) (droppedLinks, error) {
	var dropped droppedLinks

	oldAuthors, err := s.lib.bookAuthors.DeleteByBookInTxn(tx, bookID)
	if err != nil {
		return dropped, fmt.Errorf("clear author links: %w", err)
	}
	keepAuthors := make(map[int64]bool)
	for _, label := range normalize.Labels(in.Authors) {
		author, created, err := s.lib.authors.FindOrCreateInTxn(tx, domain.Author{Label: label})
		if err != nil {
			return dropped, fmt.Errorf("author %q: %w", label, err)
		}
		if created {
			log.Debug("author created", "author_id", author.ID, "label", author.Label)
		}
		if _, err := s.lib.bookAuthors.CreateInTxn(tx, bookID, author.ID); err != nil {
			return dropped, fmt.Errorf("link author %q: %w", label, err)
		}
		keepAuthors[author.ID] = true
	}

	oldTags, err := s.lib.bookTags.DeleteByBookInTxn(tx, bookID)
	if err != nil {
		return dropped, fmt.Errorf("clear tag links: %w", err)
	}
	keepTags := make(map[int64]bool)
	for _, t := range uniqueTags(in.Tags) {
		tag, created, err := s.lib.tags.FindOrCreateInTxn(tx, t)
		if err != nil {
			return dropped, fmt.Errorf("tag %q: %w", t.Label, err)
		}
		if created {
			log.Debug("tag created", "tag_id", tag.ID, "label", tag.Label)
		}
		if _, err := s.lib.bookTags.CreateInTxn(tx, bookID, tag.ID); err != nil {
			return dropped, fmt.Errorf("link tag %q: %w", t.Label, err)
		}
		keepTags[tag.ID] = true
	}

	for _, id := range s.lib.bookAuthors.TargetIDs(oldAuthors) {
		if !keepAuthors[id] {
			dropped.authors = append(dropped.authors, id)
		}
	}
	for _, id := range s.lib.bookTags.TargetIDs(oldTags) {
		if !keepTags[id] {
			dropped.tags = append(dropped.tags, id)
		}
	}
	return dropped, nil
}

// pruneInTxn applies the orphan policy to entities that just lost a link.
func (s *BookService) pruneInTxn(tx *store.Txn, log *slog.Logger, dropped droppedLinks) error {
	if s.lib.policy.Authors {
		pruned, err := s.lib.pruneAuthorsInTxn(tx, dropped.authors)
		if err != nil {
			return fmt.Errorf("prune authors: %w", err)
		}
		if len(pruned) > 0 {
			log.Info("orphan authors pruned", "author_ids", pruned)
		}
	}
	if s.lib.policy.Tags {
		pruned, err := s.lib.pruneTagsInTxn(tx, dropped.tags)
		if err != nil {
			return fmt.Errorf("prune tags: %w", err)
		}
		if len(pruned) > 0 {
			log.Info("orphan tags pruned", "tag_ids", pruned)
		}
	}
	return nil
}

// read loads rows with fn and hydrates them in the same snapshot.
func (s *BookService) read(ctx context.Context, fn func(*store.Txn) ([]domain.Book, error)) ([]domain.HydratedBook, error) {
	var out []domain.HydratedBook
	err := s.lib.db.View(ctx, repository.HydrateScope, func(tx *store.Txn) error {
		rows, err := fn(tx)
		if err != nil {
			return err
		}
		out, err = s.lib.agg.HydrateInTxn(tx, rows)
		return err
	})
	return out, err
}

// booksByID loads books in the order of ids, skipping duplicates and ids
// with no book.
func (s *BookService) booksByID(tx *store.Txn, ids []int64) ([]domain.Book, error) {
	out := make([]domain.Book, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		b, err := s.lib.books.GetInTxn(tx, id)
		if errors.Is(err, errors.ErrNotFound) {
			s.lib.logger.Warn("dangling book reference", "book_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, nil
}

func (in BookInput) book() domain.Book {
	return domain.Book{
		Title:      strings.TrimSpace(in.Title),
		Publisher:  strings.TrimSpace(in.Publisher),
		Release:    strings.TrimSpace(in.Release),
		Cover:      in.Cover,
		Attachment: in.Attachment,
	}
}

// uniqueTags normalizes labels, fills the default color and keeps the first
// entry of each label.
func uniqueTags(in []TagInput) []domain.Tag {
	out := make([]domain.Tag, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, t := range in {
		label := normalize.Label(t.Label)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		color := strings.TrimSpace(t.Color)
		if color == "" {
			color = DefaultTagColor
		}
		out = append(out, domain.Tag{Label: label, Color: color})
	}
	return out
}
