package repository_test

import (
	"context"
	"testing"

	"github.com/listenupapp/bookshelf/internal/domain"
	"github.com/listenupapp/bookshelf/internal/errors"
	"github.com/listenupapp/bookshelf/internal/repository"
	"github.com/listenupapp/bookshelf/internal/schema"
	"github.com/listenupapp/bookshelf/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type repos struct {
	db          *store.DB
	books       *repository.BookRepository
	authors     *repository.AuthorRepository
	tags        *repository.TagRepository
	bookAuthors *repository.BookAuthorRepository
	bookTags    *repository.BookTagRepository
	agg         *repository.Aggregator
}

func setupTestRepos(t *testing.T) (*repos, func()) {
	t.Helper()

	db, err := store.Open(store.Options{Path: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, schema.Initialize(context.Background(), db, schema.Options{SkipSeed: true}))

	r := &repos{db: db}
	r.books = repository.NewBookRepository(db)
	r.bookAuthors = repository.NewBookAuthorRepository(db)
	r.bookTags = repository.NewBookTagRepository(db)
	r.authors = repository.NewAuthorRepository(db, r.bookAuthors, nil)
	r.tags = repository.NewTagRepository(db, r.bookTags, nil)
	r.agg = repository.NewAggregator(db, r.authors, r.tags, r.bookAuthors, r.bookTags, nil)

	return r, func() { _ = db.Close() }
}

func (r *repos) insertBook(t *testing.T, title string) int64 {
	t.Helper()
	var id int64
	err := r.db.Update(context.Background(), []string{schema.Books}, func(tx *store.Txn) error {
		var err error
		id, err = r.books.InsertInTxn(tx, &domain.Book{Title: title, Progress: domain.InitialProgress})
		return err
	})
	require.NoError(t, err)
	return id
}

func TestLabelRepository_CreateAndFind(t *testing.T) {
	r, cleanup := setupTestRepos(t)
	defer cleanup()
	ctx := context.Background()

	a := &domain.Author{Label: "  Ursula K. Le Guin "}
	id, err := r.authors.Create(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, id, a.ID)
	assert.Equal(t, "Ursula K. Le Guin", a.Label)

	found, err := r.authors.FindByLabel(ctx, "Ursula K. Le Guin")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].ID)

	none, err := r.authors.FindByLabel(ctx, "ursula k. le guin")
	require.NoError(t, err)
	assert.Empty(t, none)

	got, err := r.authors.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, a.Label, got.Label)
}

func TestLabelRepository_DuplicateLabel(t *testing.T) {
	r, cleanup := setupTestRepos(t)
	defer cleanup()
	ctx := context.Background()

	_, err := r.tags.Create(ctx, &domain.Tag{Label: "sci-fi", Color: "#00f"})
	require.NoError(t, err)

	_, err = r.tags.Create(ctx, &domain.Tag{Label: " sci-fi", Color: "#f00"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConstraintViolation))

	all, err := r.tags.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLabelRepository_BlankLabel(t *testing.T) {
	r, cleanup := setupTestRepos(t)
	defer cleanup()

	_, err := r.authors.Create(context.Background(), &domain.Author{Label: "   "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestLabelRepository_FindOrCreateInTxn(t *testing.T) {
	r, cleanup := setupTestRepos(t)
	defer cleanup()
	ctx := context.Background()

	existing := &domain.Tag{Label: "horror", Color: "#000"}
	_, err := r.tags.Create(ctx, existing)
	require.NoError(t, err)

	err = r.db.Update(ctx, []string{schema.Tags}, func(tx *store.Txn) error {
		got, created, err := r.tags.FindOrCreateInTxn(tx, domain.Tag{Label: "horror", Color: "#fff"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, existing.ID, got.ID)
		assert.Equal(t, "#000", got.Color)

		fresh, created, err := r.tags.FindOrCreateInTxn(tx, domain.Tag{Label: "gothic", Color: "#333"})
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotZero(t, fresh.ID)

		again, created, err := r.tags.FindOrCreateInTxn(tx, domain.Tag{Label: "gothic"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, fresh.ID, again.ID)
		return nil
	})
	require.NoError(t, err)

	all, err := r.tags.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLabelRepository_Update(t *testing.T) {
	r, cleanup := setupTestRepos(t)
	defer cleanup()
	ctx := context.Background()

	tag := &domain.Tag{Label: "classic", Color: "#111"}
	_, err := r.tags.Create(ctx, tag)
	require.NoError(t, err)

	tag.Label = "classics"
	tag.Color = "#222"
	require.NoError(t, r.tags.Update(ctx, tag))

	old, err := r.tags.FindByLabel(ctx, "classic")
	require.NoError(t, err)
	assert.Empty(t, old)

	got, err := r.tags.Get(ctx, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, "classics", got.Label)
	assert.Equal(t, "#222", got.Color)

	err = r.tags.Update(ctx, &domain.Tag{ID: 999, Label: "ghost"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestLabelRepository_FindByBookID(t *testing.T) {
	r, cleanup := setupTestRepos(t)
	defer cleanup()
	ctx := context.Background()

	book := r.insertBook(t, "The Dispossessed")
	second := &domain.Author{Label: "Second"}
	first := &domain.Author{Label: "First"}
	_, err := r.authors.Create(ctx, second)
	require.NoError(t, err)
	_, err = r.authors.Create(ctx, first)
	require.NoError(t, err)

	// Link order, not key order, decides the result order.
	_, err = r.bookAuthors.Create(ctx, book, first.ID)
	require.NoError(t, err)
	_, err = r.bookAuthors.Create(ctx, book, second.ID)
	require.NoError(t, err)
	// Dangling link is skipped.
	_, err = r.bookAuthors.Create(ctx, book, 404)
	require.NoError(t, err)

	got, err := r.authors.FindByBookID(ctx, book)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "First", got[0].Label)
	assert.Equal(t, "Second", got[1].Label)

	none, err := r.authors.FindByBookID(ctx, book+1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLabelRepository_FindByBookIDMatchesHydration(t *testing.T) {
	r, cleanup := setupTestRepos(t)
	defer cleanup()
	ctx := context.Background()

	book := r.insertBook(t, "Lathe of Heaven")
	author := &domain.Author{Label: "Le Guin"}
	_, err := r.authors.Create(ctx, author)
	require.NoError(t, err)

	// Two rows linking the same pair are reported twice by both read paths.
	for range 2 {
		_, err = r.bookAuthors.Create(ctx, book, author.ID)
		require.NoError(t, err)
	}

	direct, err := r.authors.FindByBookID(ctx, book)
	require.NoError(t, err)

	b, err := r.books.Get(ctx, book)
	require.NoError(t, err)
	hydrated, err := r.agg.Hydrate(ctx, []domain.Book{*b})
	require.NoError(t, err)
	require.Len(t, hydrated, 1)

	require.Len(t, direct, 2)
	assert.Equal(t, hydrated[0].Authors, direct)
}

func TestJunctionRepository_DeleteByBook(t *testing.T) {
	r, cleanup := setupTestRepos(t)
	defer cleanup()
	ctx := context.Background()

	b1 := r.insertBook(t, "One")
	b2 := r.insertBook(t, "Two")
	for _, tag := range []int64{1, 2, 3} {
		_, err := r.bookTags.Create(ctx, b1, tag)
		require.NoError(t, err)
	}
	_, err := r.bookTags.Create(ctx, b2, 1)
	require.NoError(t, err)

	removed, err := r.bookTags.DeleteByBook(ctx, b1)
	require.NoError(t, err)
	assert.Len(t, removed, 3)

	left, err := r.bookTags.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, b2, left[0].BookID)

	removed, err = r.bookTags.DeleteByBook(ctx, b1)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestJunctionRepository_DeleteByTag(t *testing.T) {
	r, cleanup := setupTestRepos(t)
	defer cleanup()
	ctx := context.Background()

	b1 := r.insertBook(t, "One")
	b2 := r.insertBook(t, "Two")
	for _, pair := range [][2]int64{{b1, 7}, {b2, 7}, {b2, 8}} {
		_, err := r.bookTags.Create(ctx, pair[0], pair[1])
		require.NoError(t, err)
	}

	n, err := r.bookTags.CountByTarget(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	removed, err := r.bookTags.DeleteByTag(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	n, err = r.bookTags.CountByTarget(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, n)

	rest, err := r.bookTags.ListByTarget(ctx, 8)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, b2, rest[0].BookID)
}

func TestJunctionRepository_DeleteIsAllOrNothing(t *testing.T) {
	r, cleanup := setupTestRepos(t)
	defer cleanup()
	ctx := context.Background()

	book := r.insertBook(t, "One")
	for _, author := range []int64{1, 2} {
		_, err := r.bookAuthors.Create(ctx, book, author)
		require.NoError(t, err)
	}

	boom := errors.New("boom")
	err := r.db.Update(ctx, []string{schema.BookAuthors}, func(tx *store.Txn) error {
		removed, err := r.bookAuthors.DeleteByBookInTxn(tx, book)
		require.NoError(t, err)
		require.Len(t, removed, 2)
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := r.bookAuthors.ListByBook(ctx, book)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestLabelRepository_Orphans(t *testing.T) {
	r, cleanup := setupTestRepos(t)
	defer cleanup()
	ctx := context.Background()

	book := r.insertBook(t, "One")
	linked := &domain.Author{Label: "Linked"}
	lonely := &domain.Author{Label: "Lonely"}
	for _, a := range []*domain.Author{linked, lonely} {
		_, err := r.authors.Create(ctx, a)
		require.NoError(t, err)
	}
	_, err := r.bookAuthors.Create(ctx, book, linked.ID)
	require.NoError(t, err)

	err = r.db.View(ctx, []string{schema.Authors, schema.BookAuthors}, func(tx *store.Txn) error {
		orphans, err := r.authors.OrphansInTxn(tx)
		require.NoError(t, err)
		require.Len(t, orphans, 1)
		assert.Equal(t, "Lonely", orphans[0].Label)
		return nil
	})
	require.NoError(t, err)
}

func TestBookRepository_Publishers(t *testing.T) {
	r, cleanup := setupTestRepos(t)
	defer cleanup()
	ctx := context.Background()

	err := r.db.Update(ctx, []string{schema.Books}, func(tx *store.Txn) error {
		for _, b := range []domain.Book{
			{Title: "A", Publisher: "Tor"},
			{Title: "B", Publisher: "Ace"},
			{Title: "C", Publisher: "Tor"},
			{Title: "D"},
		} {
			if _, err := r.books.InsertInTxn(tx, &b); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = r.db.View(ctx, []string{schema.Books}, func(tx *store.Txn) error {
		pubs, err := r.books.PublishersInTxn(tx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Ace", "Tor"}, pubs)

		tor, err := r.books.FindByPublisherInTxn(tx, "Tor")
		require.NoError(t, err)
		assert.Len(t, tor, 2)
		return nil
	})
	require.NoError(t, err)

	_, err = r.books.Get(ctx, 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestAggregator_Hydrate(t *testing.T) {
	r, cleanup := setupTestRepos(t)
	defer cleanup()
	ctx := context.Background()

	pdf, err := domain.ParseDataURL("data:application/pdf;base64,JVBERi0xLjQK")
	require.NoError(t, err)

	var withLinks, bare domain.Book
	err = r.db.Update(ctx, repository.HydrateScope, func(tx *store.Txn) error {
		withLinks = domain.Book{Title: "Linked", Attachment: pdf}
		if _, err := r.books.InsertInTxn(tx, &withLinks); err != nil {
			return err
		}
		bare = domain.Book{Title: "Bare"}
		if _, err := r.books.InsertInTxn(tx, &bare); err != nil {
			return err
		}
		alice, _, err := r.authors.FindOrCreateInTxn(tx, domain.Author{Label: "Alice"})
		require.NoError(t, err)
		bob, _, err := r.authors.FindOrCreateInTxn(tx, domain.Author{Label: "Bob"})
		require.NoError(t, err)
		scifi, _, err := r.tags.FindOrCreateInTxn(tx, domain.Tag{Label: "sci-fi", Color: "#00f"})
		require.NoError(t, err)

		for _, id := range []int64{bob.ID, alice.ID, 999} {
			_, err := r.bookAuthors.CreateInTxn(tx, withLinks.ID, id)
			require.NoError(t, err)
		}
		_, err = r.bookTags.CreateInTxn(tx, withLinks.ID, scifi.ID)
		return err
	})
	require.NoError(t, err)

	out, err := r.agg.Hydrate(ctx, []domain.Book{withLinks, bare})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, []string{"Bob", "Alice"}, out[0].AuthorLabels())
	assert.Equal(t, []string{"sci-fi"}, out[0].TagLabels())
	assert.Equal(t, domain.TypePDF, out[0].Type)

	assert.Empty(t, out[1].Authors)
	assert.NotNil(t, out[1].Authors)
	assert.Empty(t, out[1].Tags)
	assert.Equal(t, domain.TypeNone, out[1].Type)

	empty, err := r.agg.Hydrate(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
