package export

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/listenupapp/bookshelf/internal/domain"
	"github.com/listenupapp/bookshelf/internal/schema"
	"github.com/listenupapp/bookshelf/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*store.DB, func()) {
	t.Helper()

	db, err := store.Open(store.Options{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, schema.Initialize(context.Background(), db, schema.Options{}))

	return db, func() { _ = db.Close() }
}

func queryInt(t *testing.T, db *sql.DB, q string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(q, args...).Scan(&n))
	return n
}

func TestToSQLite(t *testing.T) {
	db, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	ds, err := schema.DefaultDataset()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "library.db")
	stats, err := ToSQLite(ctx, db, path, Options{})
	require.NoError(t, err)

	assert.Equal(t, len(ds.Books), stats.Books)
	assert.Equal(t, len(ds.Authors), stats.Authors)
	assert.Equal(t, len(ds.Tags), stats.Tags)
	assert.Equal(t, len(ds.BookAuthors), stats.BookAuthors)
	assert.Equal(t, len(ds.BookTags), stats.BookTags)
	assert.Zero(t, stats.Skipped)

	out, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, len(ds.Books), queryInt(t, out, `SELECT COUNT(*) FROM books`))
	assert.Equal(t, 2, queryInt(t, out, `
		SELECT COUNT(*) FROM book_authors ba
		JOIN authors a ON a.id = ba.author_id
		WHERE a.label = ?`, "H. G. Wells"))

	var mediaType string
	require.NoError(t, out.QueryRow(`SELECT cover_media_type FROM books WHERE title = ?`, "Dom Casmurro").Scan(&mediaType))
	assert.Equal(t, "image/svg+xml", mediaType)

	var version string
	require.NoError(t, out.QueryRow(`SELECT value FROM export_info WHERE key = 'schema_version'`).Scan(&version))
	assert.Equal(t, "1", version)
}

func TestToSQLite_ExistingTarget(t *testing.T) {
	db, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "library.db")
	_, err := ToSQLite(ctx, db, path, Options{})
	require.NoError(t, err)

	_, err = ToSQLite(ctx, db, path, Options{})
	require.Error(t, err)

	stats, err := ToSQLite(ctx, db, path, Options{Overwrite: true})
	require.NoError(t, err)
	assert.NotZero(t, stats.Books)
}

func TestToSQLite_SkipsDanglingLinks(t *testing.T) {
	db, err := store.Open(store.Options{InMemory: true})
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	require.NoError(t, schema.Initialize(ctx, db, schema.Options{SkipSeed: true}))

	err = db.Update(ctx, schema.All, func(tx *store.Txn) error {
		pdf, err := domain.ParseDataURL("data:application/pdf;base64,JVBERi0xLjQK")
		if err != nil {
			return err
		}
		book := domain.Book{Title: "Lonely", Progress: "0", Attachment: pdf}
		if _, err := schema.BookTable.Insert(tx, &book); err != nil {
			return err
		}
		link := domain.BookTag{BookID: book.ID, TagID: 77}
		_, err = schema.BookTagTable.Insert(tx, &link)
		return err
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "library.db")
	stats, err := ToSQLite(ctx, db, path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Books)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.BookTags)

	out, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer out.Close()

	var docType string
	require.NoError(t, out.QueryRow(`SELECT type FROM books`).Scan(&docType))
	assert.Equal(t, "pdf", docType)
}
