package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/bookshelf/internal/http/response"
	"github.com/listenupapp/bookshelf/internal/ratelimit"
	"github.com/listenupapp/bookshelf/internal/schema"
	"github.com/listenupapp/bookshelf/internal/search"
	"github.com/listenupapp/bookshelf/internal/service"
	"github.com/listenupapp/bookshelf/internal/store"
)

const pdfDataURL = "data:application/pdf;base64,JVBERi0xLjQK"

type testEnvelope[T any] struct {
	Success bool                `json:"success"`
	Data    T                   `json:"data"`
	Error   *response.ErrorBody `json:"error"`
}

type testServer struct {
	*Server
	api humatest.TestAPI
}

// setupTestServer creates a test server over an empty in-memory library.
func setupTestServer(t *testing.T, opts Options) (*testServer, func()) {
	t.Helper()
	ctx := context.Background()

	db, err := store.Open(store.Options{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, schema.Initialize(ctx, db, schema.Options{SkipSeed: true}))

	index, err := search.NewSearchIndex(search.Options{})
	require.NoError(t, err)

	searchSvc := service.NewSearchService(index, db, nil)
	lib := service.NewLibrary(db, searchSvc, service.DefaultOrphanPolicy(), nil)

	s := NewServer(db, &Services{
		Book:   service.NewBookService(lib),
		Author: service.NewAuthorService(lib),
		Tag:    service.NewTagService(lib),
		Search: searchSvc,
	}, opts, nil)

	cleanup := func() {
		if opts.WriteLimiter != nil {
			opts.WriteLimiter.Stop()
		}
		_ = index.Close()
		_ = db.Close()
	}
	return &testServer{Server: s, api: humatest.Wrap(t, s.API())}, cleanup
}

func decodeEnvelope[T any](t *testing.T, w *httptest.ResponseRecorder) testEnvelope[T] {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func (ts *testServer) createBook(t *testing.T, body map[string]any) BookResponse {
	t.Helper()
	resp := ts.api.Post("/api/v1/books", body)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return decodeEnvelope[BookResponse](t, resp).Data
}

// largePDFDataURL builds a PDF data URL whose decoded document is size bytes.
func largePDFDataURL(size int) string {
	doc := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("0"), size)...)
	return "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(doc[:size])
}

func bookPath(id int64, suffix ...string) string {
	p := "/api/v1/books/" + strconv.FormatInt(id, 10)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

func TestHealth_UnseededIsDegraded(t *testing.T) {
	ts, cleanup := setupTestServer(t, Options{})
	defer cleanup()

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	env := decodeEnvelope[HealthResponse](t, resp)
	assert.True(t, env.Success)
	assert.Equal(t, "degraded", env.Data.Status)
	assert.Equal(t, "degraded", env.Data.Components["database"].Status)
	assert.Equal(t, "healthy", env.Data.Components["search"].Status)
}

func TestBooks_Lifecycle(t *testing.T) {
	ts, cleanup := setupTestServer(t, Options{})
	defer cleanup()

	book := ts.createBook(t, map[string]any{
		"title":      "Frankenstein",
		"publisher":  "Lackington",
		"release":    "1818",
		"attachment": pdfDataURL,
		"authors":    []string{"Mary Shelley", "Percy Shelley"},
		"tags":       []map[string]string{{"label": "horror", "color": "#aa0000"}},
	})
	assert.NotZero(t, book.ID)
	assert.Equal(t, "pdf", book.Type)
	assert.Equal(t, "0", book.Progress)
	require.Len(t, book.Authors, 2)
	assert.Equal(t, "Mary Shelley", book.Authors[0].Label)
	require.Len(t, book.Tags, 1)
	assert.Equal(t, "#aa0000", book.Tags[0].Color)

	resp := ts.api.Get(bookPath(book.ID))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, pdfDataURL, decodeEnvelope[BookResponse](t, resp).Data.Attachment)

	resp = ts.api.Put(bookPath(book.ID, "progress"), map[string]any{"progress": "42"})
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())

	resp = ts.api.Put(bookPath(book.ID), map[string]any{
		"title":   "Frankenstein; or, The Modern Prometheus",
		"authors": []string{"Mary Shelley"},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	updated := decodeEnvelope[BookResponse](t, resp).Data
	assert.Equal(t, "42", updated.Progress)
	assert.Empty(t, updated.Tags)
	assert.Empty(t, updated.Type)

	// Percy lost his only book and was pruned.
	resp = ts.api.Get("/api/v1/authors")
	authors := decodeEnvelope[AuthorListResponse](t, resp).Data.Authors
	require.Len(t, authors, 1)
	assert.Equal(t, "Mary Shelley", authors[0].Label)

	resp = ts.api.Get(bookPath(book.ID, "authors"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decodeEnvelope[AuthorListResponse](t, resp).Data.Authors, 1)

	resp = ts.api.Delete(bookPath(book.ID))
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())

	resp = ts.api.Get(bookPath(book.ID))
	require.Equal(t, http.StatusNotFound, resp.Code)
	env := decodeEnvelope[any](t, resp)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", string(env.Error.Code))

	resp = ts.api.Get(bookPath(book.ID, "tags"))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestBooks_Filter(t *testing.T) {
	ts, cleanup := setupTestServer(t, Options{})
	defer cleanup()

	ts.createBook(t, map[string]any{"title": "The Time Machine", "publisher": "Heinemann", "authors": []string{"H. G. Wells"}})
	ts.createBook(t, map[string]any{"title": "The War of the Worlds", "publisher": "Heinemann", "authors": []string{"H. G. Wells"}})
	ts.createBook(t, map[string]any{"title": "Beowulf"})

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"no filter", "", []string{"The Time Machine", "The War of the Worlds", "Beowulf"}},
		{"title contains", "?field=title&value=the", []string{"The Time Machine", "The War of the Worlds"}},
		{"title case sensitive", "?field=title&value=the&case=true", []string{"The War of the Worlds"}},
		{"title whole", "?field=title&value=beowulf&whole=true", []string{"Beowulf"}},
		{"author", "?field=author&value=H.%20G.%20Wells", []string{"The Time Machine", "The War of the Worlds"}},
		{"no author", "?field=author&value=", []string{"Beowulf"}},
		{"publisher", "?field=publisher&value=Heinemann", []string{"The Time Machine", "The War of the Worlds"}},
		{"unknown tag", "?field=tag&value=nope", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.api.Get("/api/v1/books" + tt.query)
			require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

			books := decodeEnvelope[BookListResponse](t, resp).Data.Books
			titles := make([]string, len(books))
			for i, b := range books {
				titles[i] = b.Title
			}
			assert.Equal(t, tt.want, titles)
		})
	}

	resp := ts.api.Get("/api/v1/books?field=genre&value=x")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = ts.api.Get("/api/v1/publishers")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []string{"Heinemann"}, decodeEnvelope[PublishersResponse](t, resp).Data.Publishers)
}

func TestBooks_Validation(t *testing.T) {
	ts, cleanup := setupTestServer(t, Options{})
	defer cleanup()

	resp := ts.api.Post("/api/v1/books", map[string]any{"title": "  "})
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
	env := decodeEnvelope[any](t, resp)
	assert.Equal(t, "VALIDATION", string(env.Error.Code))
	assert.NotNil(t, env.Error.Details)

	resp = ts.api.Post("/api/v1/books", map[string]any{"title": "Bad cover", "cover": "not a data url"})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = ts.api.Put(bookPath(999), map[string]any{"title": "Ghost"})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.api.Put(bookPath(999, "progress"), map[string]any{"progress": "3"})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.api.Get("/api/v1/books/abc")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "VALIDATION", string(decodeEnvelope[any](t, resp).Error.Code))
}

func TestTags_Endpoints(t *testing.T) {
	ts, cleanup := setupTestServer(t, Options{})
	defer cleanup()

	resp := ts.api.Post("/api/v1/tags", map[string]any{"label": "classic"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	tag := decodeEnvelope[TagResponse](t, resp).Data
	assert.Equal(t, service.DefaultTagColor, tag.Color)

	resp = ts.api.Post("/api/v1/tags", map[string]any{"label": "classic"})
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "CONSTRAINT_VIOLATION", string(decodeEnvelope[any](t, resp).Error.Code))

	book := ts.createBook(t, map[string]any{"title": "Dom Casmurro", "tags": []map[string]string{{"label": "classic"}}})
	require.Len(t, book.Tags, 1)
	assert.Equal(t, tag.ID, book.Tags[0].ID)

	resp = ts.api.Put("/api/v1/tags/"+strconv.FormatInt(tag.ID, 10), map[string]any{"label": "classics", "color": "#123456"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = ts.api.Get("/api/v1/tags?label=classics")
	tags := decodeEnvelope[TagListResponse](t, resp).Data.Tags
	require.Len(t, tags, 1)
	assert.Equal(t, "#123456", tags[0].Color)

	resp = ts.api.Delete("/api/v1/tags/" + strconv.FormatInt(tag.ID, 10))
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = ts.api.Get(bookPath(book.ID, "tags"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decodeEnvelope[TagListResponse](t, resp).Data.Tags)
}

func TestAuthors_Endpoints(t *testing.T) {
	ts, cleanup := setupTestServer(t, Options{})
	defer cleanup()

	book := ts.createBook(t, map[string]any{"title": "Emma", "authors": []string{"Jane Austin"}})
	authorID := strconv.FormatInt(book.Authors[0].ID, 10)

	resp := ts.api.Put("/api/v1/authors/"+authorID, map[string]any{"label": "Jane Austen"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = ts.api.Get("/api/v1/authors?label=Jane%20Austen")
	require.Len(t, decodeEnvelope[AuthorListResponse](t, resp).Data.Authors, 1)

	resp = ts.api.Delete("/api/v1/authors/" + authorID)
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = ts.api.Get(bookPath(book.ID))
	assert.Empty(t, decodeEnvelope[BookResponse](t, resp).Data.Authors)

	resp = ts.api.Delete("/api/v1/authors/" + authorID)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSearch_Endpoint(t *testing.T) {
	ts, cleanup := setupTestServer(t, Options{})
	defer cleanup()

	ts.createBook(t, map[string]any{"title": "Frankenstein", "authors": []string{"Mary Shelley"}})
	ts.createBook(t, map[string]any{"title": "Emma", "authors": []string{"Jane Austen"}})

	resp := ts.api.Get("/api/v1/search?q=shelley")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	result := decodeEnvelope[SearchResponse](t, resp).Data
	require.Len(t, result.Books, 1)
	assert.Equal(t, "Frankenstein", result.Books[0].Title)

	resp = ts.api.Get("/api/v1/search?q=")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decodeEnvelope[SearchResponse](t, resp).Data.Books)
}

func TestWriteRateLimit(t *testing.T) {
	ts, cleanup := setupTestServer(t, Options{WriteLimiter: ratelimit.New(0.001, 1)})
	defer cleanup()

	resp := ts.api.Post("/api/v1/tags", map[string]any{"label": "first"})
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = ts.api.Post("/api/v1/tags", map[string]any{"label": "second"})
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "RATE_LIMITED", string(decodeEnvelope[any](t, resp).Error.Code))

	// Reads are never throttled.
	resp = ts.api.Get("/api/v1/tags")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestUnknownRoute(t *testing.T) {
	ts, cleanup := setupTestServer(t, Options{})
	defer cleanup()

	w := httptest.NewRecorder()
	ts.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	env := decodeEnvelope[any](t, w)
	assert.False(t, env.Success)
	assert.Equal(t, "NOT_FOUND", string(env.Error.Code))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.2.3.4:80", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.3"}, "1.2.3.4:80", "10.0.0.3"},
		{"remote addr", nil, "1.2.3.4:80", "1.2.3.4"},
		{"ipv6 remote", nil, "[::1]:8080", "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(r))
		})
	}
}

func TestBooks_LargeAttachment(t *testing.T) {
	ts, cleanup := setupTestServer(t, Options{})
	defer cleanup()

	attachment := largePDFDataURL(5 << 20)
	book := ts.createBook(t, map[string]any{
		"title":      "Middlemarch",
		"attachment": attachment,
		"authors":    []string{"George Eliot"},
	})
	assert.Equal(t, "pdf", book.Type)

	resp := ts.api.Get(bookPath(book.ID))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, attachment, decodeEnvelope[BookResponse](t, resp).Data.Attachment)

	replacement := largePDFDataURL(3 << 20)
	resp = ts.api.Put(bookPath(book.ID), map[string]any{
		"title":      "Middlemarch",
		"attachment": replacement,
		"authors":    []string{"George Eliot"},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, replacement, decodeEnvelope[BookResponse](t, resp).Data.Attachment)
}

func TestBooks_BodyOverLimit(t *testing.T) {
	ts, cleanup := setupTestServer(t, Options{MaxBodyBytes: 64 << 10})
	defer cleanup()

	resp := ts.api.Post("/api/v1/books", map[string]any{
		"title":      "Daniel Deronda",
		"attachment": largePDFDataURL(128 << 10),
	})
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code, resp.Body.String())

	env := decodeEnvelope[any](t, resp)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.EqualValues(t, "VALIDATION", env.Error.Code)
}
