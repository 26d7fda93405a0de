package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/bookshelf/internal/domain"
	domainerrors "github.com/listenupapp/bookshelf/internal/errors"
	"github.com/listenupapp/bookshelf/internal/service"
)

func (s *Server) registerBookRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listBooks",
		Method:      http.MethodGet,
		Path:        "/api/v1/books",
		Summary:     "List books",
		Description: "Returns every book with its authors and tags, optionally filtered",
		Tags:        []string{"Books"},
	}, s.handleListBooks)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createBook",
		Method:        http.MethodPost,
		Path:          "/api/v1/books",
		Summary:       "Create book",
		Description:   "Creates a book, creating any authors and tags it names that do not exist yet",
		Tags:          []string{"Books"},
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  s.maxBodyBytes,
	}, s.handleCreateBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBook",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}",
		Summary:     "Get book",
		Tags:        []string{"Books"},
	}, s.handleGetBook)

	huma.Register(s.api, huma.Operation{
		OperationID:  "updateBook",
		Method:       http.MethodPut,
		Path:         "/api/v1/books/{id}",
		Summary:      "Update book",
		Description:  "Replaces the book's fields and its full author and tag lists",
		Tags:         []string{"Books"},
		MaxBodyBytes: s.maxBodyBytes,
	}, s.handleUpdateBook)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteBook",
		Method:        http.MethodDelete,
		Path:          "/api/v1/books/{id}",
		Summary:       "Delete book",
		Description:   "Deletes the book and its links, pruning authors no other book credits",
		Tags:          []string{"Books"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteBook)

	huma.Register(s.api, huma.Operation{
		OperationID:   "updateBookProgress",
		Method:        http.MethodPut,
		Path:          "/api/v1/books/{id}/progress",
		Summary:       "Update reading progress",
		Tags:          []string{"Books"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleUpdateProgress)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBookAuthors",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}/authors",
		Summary:     "Get book authors",
		Tags:        []string{"Books", "Authors"},
	}, s.handleGetBookAuthors)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBookTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}/tags",
		Summary:     "Get book tags",
		Tags:        []string{"Books", "Tags"},
	}, s.handleGetBookTags)

	huma.Register(s.api, huma.Operation{
		OperationID: "listPublishers",
		Method:      http.MethodGet,
		Path:        "/api/v1/publishers",
		Summary:     "List publishers",
		Description: "Returns the distinct publishers in sorted order",
		Tags:        []string{"Books"},
	}, s.handleListPublishers)
}

// === DTOs ===

// BookResponse contains book data in API responses.
type BookResponse struct {
	ID         int64            `json:"id" doc:"Book ID"`
	Title      string           `json:"title" doc:"Title"`
	Publisher  string           `json:"publisher" doc:"Publisher"`
	Release    string           `json:"release" doc:"Release date as entered"`
	Cover      string           `json:"cover,omitempty" doc:"Cover image as a data: URL"`
	Attachment string           `json:"attachment,omitempty" doc:"Document as a data: URL"`
	Type       string           `json:"type,omitempty" doc:"Document type derived from the attachment: pdf or epub"`
	Progress   string           `json:"progress" doc:"Opaque reading position"`
	Authors    []AuthorResponse `json:"authors" doc:"Authors in link order"`
	Tags       []TagResponse    `json:"tags" doc:"Tags in link order"`
}

// BookListResponse contains a list of books.
type BookListResponse struct {
	Books []BookResponse `json:"books" doc:"Books"`
}

// BookListOutput wraps the book list for Huma.
type BookListOutput struct {
	Body BookListResponse
}

// BookOutput wraps a single book for Huma.
type BookOutput struct {
	Body BookResponse
}

// ListBooksInput contains the library view filter.
type ListBooksInput struct {
	Field string `query:"field" doc:"Filter field: title, tag, author or publisher"`
	Value string `query:"value" doc:"Filter value. An empty author selects books without authors"`
	Case  bool   `query:"case" doc:"Case-sensitive title match"`
	Whole bool   `query:"whole" doc:"Title must equal the value"`
}

// TagRequest names a tag on a book.
type TagRequest struct {
	Label string `json:"label" doc:"Tag label"`
	Color string `json:"color,omitempty" doc:"CSS color used when the tag is created"`
}

// BookRequest is the request body for creating or updating a book.
type BookRequest struct {
	Title      string       `json:"title" doc:"Title"`
	Publisher  string       `json:"publisher,omitempty" doc:"Publisher"`
	Release    string       `json:"release,omitempty" doc:"Release date"`
	Cover      string       `json:"cover,omitempty" doc:"Cover image as a data: URL"`
	Attachment string       `json:"attachment,omitempty" doc:"Document as a data: URL"`
	Authors    []string     `json:"authors,omitempty" doc:"Full list of author names"`
	Tags       []TagRequest `json:"tags,omitempty" doc:"Full list of tags"`
}

// CreateBookInput wraps the create book request for Huma.
type CreateBookInput struct {
	Body BookRequest
}

// BookIDInput addresses one book.
type BookIDInput struct {
	ID int64 `path:"id" doc:"Book ID"`
}

// UpdateBookInput wraps the update book request for Huma.
type UpdateBookInput struct {
	ID   int64 `path:"id" doc:"Book ID"`
	Body BookRequest
}

// ProgressRequest is the request body for a progress update.
type ProgressRequest struct {
	Progress string `json:"progress" doc:"Opaque reading position"`
}

// UpdateProgressInput wraps the progress request for Huma.
type UpdateProgressInput struct {
	ID   int64 `path:"id" doc:"Book ID"`
	Body ProgressRequest
}

// PublishersResponse lists distinct publishers.
type PublishersResponse struct {
	Publishers []string `json:"publishers" doc:"Distinct publishers"`
}

// PublishersOutput wraps the publishers response for Huma.
type PublishersOutput struct {
	Body PublishersResponse
}

// === Handlers ===

func (s *Server) handleListBooks(ctx context.Context, input *ListBooksInput) (*BookListOutput, error) {
	field, err := domain.ParseFilterField(strings.ToLower(input.Field))
	if err != nil {
		return nil, s.fail(domainerrors.Validation(err.Error()))
	}

	books, err := s.services.Book.Filter(ctx, domain.BookQuery{
		Field:         field,
		Value:         input.Value,
		CaseSensitive: input.Case,
		WholeWord:     input.Whole,
	})
	if err != nil {
		return nil, s.fail(err)
	}

	return &BookListOutput{Body: BookListResponse{Books: toBookResponses(books)}}, nil
}

func (s *Server) handleCreateBook(ctx context.Context, input *CreateBookInput) (*BookOutput, error) {
	in, err := input.Body.toInput()
	if err != nil {
		return nil, s.fail(err)
	}

	book, err := s.services.Book.Create(ctx, in)
	if err != nil {
		return nil, s.fail(err)
	}

	return &BookOutput{Body: toBookResponse(book)}, nil
}

func (s *Server) handleGetBook(ctx context.Context, input *BookIDInput) (*BookOutput, error) {
	book, err := s.services.Book.FindByID(ctx, input.ID)
	if err != nil {
		return nil, s.fail(err)
	}
	return &BookOutput{Body: toBookResponse(book)}, nil
}

func (s *Server) handleUpdateBook(ctx context.Context, input *UpdateBookInput) (*BookOutput, error) {
	in, err := input.Body.toInput()
	if err != nil {
		return nil, s.fail(err)
	}

	book, err := s.services.Book.Update(ctx, input.ID, in)
	if err != nil {
		return nil, s.fail(err)
	}

	return &BookOutput{Body: toBookResponse(book)}, nil
}

func (s *Server) handleDeleteBook(ctx context.Context, input *BookIDInput) (*struct{}, error) {
	if err := s.services.Book.Delete(ctx, input.ID); err != nil {
		return nil, s.fail(err)
	}
	return nil, nil
}

func (s *Server) handleUpdateProgress(ctx context.Context, input *UpdateProgressInput) (*struct{}, error) {
	if err := s.services.Book.UpdateProgress(ctx, input.ID, input.Body.Progress); err != nil {
		return nil, s.fail(err)
	}
	return nil, nil
}

func (s *Server) handleGetBookAuthors(ctx context.Context, input *BookIDInput) (*AuthorListOutput, error) {
	authors, err := s.services.Author.FindByBookID(ctx, input.ID)
	if err != nil {
		return nil, s.fail(err)
	}
	return &AuthorListOutput{Body: AuthorListResponse{Authors: toAuthorResponses(authors)}}, nil
}

func (s *Server) handleGetBookTags(ctx context.Context, input *BookIDInput) (*TagListOutput, error) {
	tags, err := s.services.Tag.FindByBookID(ctx, input.ID)
	if err != nil {
		return nil, s.fail(err)
	}
	return &TagListOutput{Body: TagListResponse{Tags: toTagResponses(tags)}}, nil
}

func (s *Server) handleListPublishers(ctx context.Context, _ *struct{}) (*PublishersOutput, error) {
	publishers, err := s.services.Book.ListPublishers(ctx)
	if err != nil {
		return nil, s.fail(err)
	}
	if publishers == nil {
		publishers = []string{}
	}
	return &PublishersOutput{Body: PublishersResponse{Publishers: publishers}}, nil
}

// fail converts a service error for huma and logs the ones that are not the
// client's fault.
func (s *Server) fail(err error) error {
	apiErr := toAPIError(err)
	if apiErr.status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "code", apiErr.Code, "error", err)
	}
	return apiErr
}

// === Mapping ===

func (r BookRequest) toInput() (service.BookInput, error) {
	in := service.BookInput{
		Title:     r.Title,
		Publisher: r.Publisher,
		Release:   r.Release,
		Authors:   r.Authors,
	}

	var err error
	if in.Cover, err = parsePayload("cover", r.Cover); err != nil {
		return in, err
	}
	if in.Attachment, err = parsePayload("attachment", r.Attachment); err != nil {
		return in, err
	}

	for _, t := range r.Tags {
		in.Tags = append(in.Tags, service.TagInput{Label: t.Label, Color: t.Color})
	}
	return in, nil
}

func parsePayload(field, s string) (*domain.Payload, error) {
	if s == "" {
		return nil, nil
	}
	p, err := domain.ParseDataURL(s)
	if err != nil {
		return nil, domainerrors.ValidationWithDetails("invalid "+field, map[string]string{field: err.Error()})
	}
	return p, nil
}

func toBookResponse(b *domain.HydratedBook) BookResponse {
	resp := BookResponse{
		ID:        b.ID,
		Title:     b.Title,
		Publisher: b.Publisher,
		Release:   b.Release,
		Type:      string(b.Type),
		Progress:  b.Progress,
		Authors:   toAuthorResponses(b.Authors),
		Tags:      toTagResponses(b.Tags),
	}
	if b.Cover != nil {
		resp.Cover = b.Cover.DataURL()
	}
	if b.Attachment != nil {
		resp.Attachment = b.Attachment.DataURL()
	}
	return resp
}

func toBookResponses(books []domain.HydratedBook) []BookResponse {
	out := make([]BookResponse, len(books))
	for i := range books {
		out[i] = toBookResponse(&books[i])
	}
	return out
}
