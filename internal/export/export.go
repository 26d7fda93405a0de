// Package export writes a relational copy of the library to a SQLite file so
// it can be inspected or queried with ordinary SQL tools.
package export

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/listenupapp/bookshelf/internal/domain"
	"github.com/listenupapp/bookshelf/internal/schema"
	"github.com/listenupapp/bookshelf/internal/store"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Stats counts the rows written per table.
type Stats struct {
	Books       int `json:"books"`
	Authors     int `json:"authors"`
	Tags        int `json:"tags"`
	BookAuthors int `json:"book_authors"`
	BookTags    int `json:"book_tags"`
	// Skipped counts junction rows pointing at a missing book, author or tag.
	Skipped int `json:"skipped"`
}

// Options configures an export.
type Options struct {
	// Overwrite replaces an existing file at the target path.
	Overwrite bool
	Logger    *slog.Logger
}

// snapshot is every exported collection read in one transaction.
type snapshot struct {
	books       []domain.Book
	authors     []domain.Author
	tags        []domain.Tag
	bookAuthors []domain.BookAuthor
	bookTags    []domain.BookTag
}

// ToSQLite exports the library held by db to a new SQLite file at path.
func ToSQLite(ctx context.Context, db *store.DB, path string, opts Options) (*Stats, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if _, err := os.Stat(path); err == nil {
		if !opts.Overwrite {
			return nil, fmt.Errorf("export target %s already exists", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove existing export: %w", err)
		}
	}

	snap, err := readSnapshot(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("read library: %w", err)
	}

	out, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	version, err := db.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}

	stats, err := write(ctx, out, snap, version)
	if err != nil {
		return nil, err
	}

	logger.Info("library exported",
		"path", path,
		"books", stats.Books,
		"authors", stats.Authors,
		"tags", stats.Tags,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

func readSnapshot(ctx context.Context, db *store.DB) (*snapshot, error) {
	var snap snapshot
	scope := []string{schema.Books, schema.Authors, schema.Tags, schema.BookAuthors, schema.BookTags}
	err := db.View(ctx, scope, func(tx *store.Txn) error {
		var err error
		if snap.books, err = schema.BookTable.All(tx); err != nil {
			return err
		}
		if snap.authors, err = schema.AuthorTable.All(tx); err != nil {
			return err
		}
		if snap.tags, err = schema.TagTable.All(tx); err != nil {
			return err
		}
		if snap.bookAuthors, err = schema.BookAuthorTable.All(tx); err != nil {
			return err
		}
		snap.bookTags, err = schema.BookTagTable.All(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}
	return db, nil
}

func write(ctx context.Context, db *sql.DB, snap *snapshot, version int) (*Stats, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin export: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var stats Stats

	info := map[string]string{
		"schema_version": strconv.Itoa(version),
		"exported_at":    time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range info {
		if _, err := tx.ExecContext(ctx, `INSERT INTO export_info (key, value) VALUES (?, ?)`, k, v); err != nil {
			return nil, fmt.Errorf("write export info: %w", err)
		}
	}

	books := make(map[int64]bool, len(snap.books))
	for _, b := range snap.books {
		coverType, cover := payloadColumns(b.Cover)
		attachmentType, attachment := payloadColumns(b.Attachment)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO books (id, title, publisher, release, progress, type,
				cover_media_type, cover, attachment_media_type, attachment)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.Title, b.Publisher, b.Release, b.Progress, nullString(string(b.Type())),
			coverType, cover, attachmentType, attachment,
		)
		if err != nil {
			return nil, fmt.Errorf("write book %d: %w", b.ID, err)
		}
		books[b.ID] = true
		stats.Books++
	}

	authors := make(map[int64]bool, len(snap.authors))
	for _, a := range snap.authors {
		if _, err := tx.ExecContext(ctx, `INSERT INTO authors (id, label) VALUES (?, ?)`, a.ID, a.Label); err != nil {
			return nil, fmt.Errorf("write author %d: %w", a.ID, err)
		}
		authors[a.ID] = true
		stats.Authors++
	}

	tags := make(map[int64]bool, len(snap.tags))
	for _, t := range snap.tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tags (id, label, color) VALUES (?, ?, ?)`, t.ID, t.Label, t.Color); err != nil {
			return nil, fmt.Errorf("write tag %d: %w", t.ID, err)
		}
		tags[t.ID] = true
		stats.Tags++
	}

	for _, l := range snap.bookAuthors {
		if !books[l.BookID] || !authors[l.AuthorID] {
			stats.Skipped++
			continue
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO book_authors (id, book_id, author_id) VALUES (?, ?, ?)`,
			l.ID, l.BookID, l.AuthorID)
		if err != nil {
			return nil, fmt.Errorf("write book author %d: %w", l.ID, err)
		}
		stats.BookAuthors++
	}

	for _, l := range snap.bookTags {
		if !books[l.BookID] || !tags[l.TagID] {
			stats.Skipped++
			continue
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO book_tags (id, book_id, tag_id) VALUES (?, ?, ?)`,
			l.ID, l.BookID, l.TagID)
		if err != nil {
			return nil, fmt.Errorf("write book tag %d: %w", l.ID, err)
		}
		stats.BookTags++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit export: %w", err)
	}
	return &stats, nil
}

func payloadColumns(p *domain.Payload) (sql.NullString, []byte) {
	if p == nil {
		return sql.NullString{}, nil
	}
	return nullString(p.MediaType), p.Data
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
