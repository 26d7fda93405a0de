// Package schema defines the library's collections and indexes, upgrades the
// store to the current layout and loads the default dataset exactly once.
package schema

import (
	"context"
	"log/slog"

	"github.com/listenupapp/bookshelf/internal/domain"
	"github.com/listenupapp/bookshelf/internal/errors"
	"github.com/listenupapp/bookshelf/internal/store"
)

// Version is bumped whenever the collection or index set changes.
const Version = 1

// Collection names.
const (
	Books       = "books"
	Authors     = "authors"
	Tags        = "tags"
	BookAuthors = "book_authors"
	BookTags    = "book_tags"
	SeedMarkers = "seed_markers"
)

// Index names shared by repositories.
const (
	IndexTitle     = "title"
	IndexPublisher = "publisher"
	IndexRelease   = "release"
	IndexLabel     = "label"
	IndexColor     = "color"
	IndexBookID    = "book_id"
	IndexAuthorID  = "author_id"
	IndexTagID     = "tag_id"
	IndexExists    = "exists"
)

// All lists every collection, for transactions that touch the whole library.
var All = []string{Books, Authors, Tags, BookAuthors, BookTags, SeedMarkers}

// Typed accessors for each collection.
var (
	BookTable       = store.NewTable[domain.Book](Books, func(b *domain.Book) *int64 { return &b.ID })
	AuthorTable     = store.NewTable[domain.Author](Authors, func(a *domain.Author) *int64 { return &a.ID })
	TagTable        = store.NewTable[domain.Tag](Tags, func(t *domain.Tag) *int64 { return &t.ID })
	BookAuthorTable = store.NewTable[domain.BookAuthor](BookAuthors, func(j *domain.BookAuthor) *int64 { return &j.ID })
	BookTagTable    = store.NewTable[domain.BookTag](BookTags, func(j *domain.BookTag) *int64 { return &j.ID })
	SeedMarkerTable = store.NewTable[domain.SeedMarker](SeedMarkers, func(m *domain.SeedMarker) *int64 { return &m.ID })
)

type collectionDef struct {
	name    string
	indexes []store.IndexSpec
}

var v1 = []collectionDef{
	{Books, []store.IndexSpec{
		{Name: IndexTitle},
		{Name: IndexPublisher},
		{Name: IndexRelease},
	}},
	{Authors, []store.IndexSpec{
		{Name: IndexLabel, Unique: true},
	}},
	{Tags, []store.IndexSpec{
		{Name: IndexLabel, Unique: true},
		{Name: IndexColor},
	}},
	{BookAuthors, []store.IndexSpec{
		{Name: IndexBookID},
		{Name: IndexAuthorID},
	}},
	{BookTags, []store.IndexSpec{
		{Name: IndexBookID},
		{Name: IndexTagID},
	}},
	{SeedMarkers, []store.IndexSpec{
		{Name: IndexExists, Unique: true},
	}},
}

// Migrate brings the store to Version. It is a no-op on an up-to-date store.
func Migrate(ctx context.Context, db *store.DB) (bool, error) {
	return db.Upgrade(ctx, Version, func(u *store.Upgrade) error {
		if u.From() < 1 {
			for _, def := range v1 {
				if err := u.CreateCollection(def.name); err != nil {
					return err
				}
				for _, idx := range def.indexes {
					if err := u.CreateIndex(def.name, idx); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

// Options configures Initialize.
type Options struct {
	// Seed is the dataset loaded on first run. Nil loads the bundled dataset.
	Seed *Dataset
	// SkipSeed leaves a fresh store empty.
	SkipSeed bool
	Logger   *slog.Logger
}

// Initialize migrates the store and loads the default dataset once.
func Initialize(ctx context.Context, db *store.DB, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	if _, err := Migrate(ctx, db); err != nil {
		return errors.Wrap(err, errors.CodeStoreUnavailable, "migrate schema")
	}
	if opts.SkipSeed {
		log.Info("default dataset disabled")
		return nil
	}

	ds := opts.Seed
	if ds == nil {
		var err error
		if ds, err = DefaultDataset(); err != nil {
			return err
		}
	}

	seeded, err := EnsureSeeded(ctx, db, ds)
	if err != nil {
		return err
	}
	if seeded {
		log.Info("default dataset loaded",
			"books", len(ds.Books), "authors", len(ds.Authors), "tags", len(ds.Tags))
	} else {
		log.Debug("default dataset already present")
	}
	return nil
}

// Seeded reports whether the default dataset has been loaded.
func Seeded(ctx context.Context, db *store.DB) (bool, error) {
	var n int
	err := db.View(ctx, []string{SeedMarkers}, func(tx *store.Txn) error {
		c, err := SeedMarkerTable.In(tx)
		if err != nil {
			return err
		}
		n, err = c.CountByIndex(IndexExists, domain.SeedMarkerValue)
		return err
	})
	return n > 0, err
}
