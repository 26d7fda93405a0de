package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/bookshelf/internal/domain"
	"github.com/listenupapp/bookshelf/internal/service"
)

func (s *Server) registerAuthorRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listAuthors",
		Method:      http.MethodGet,
		Path:        "/api/v1/authors",
		Summary:     "List authors",
		Description: "Returns all authors, or the one with the given label",
		Tags:        []string{"Authors"},
	}, s.handleListAuthors)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateAuthor",
		Method:      http.MethodPut,
		Path:        "/api/v1/authors/{id}",
		Summary:     "Rename author",
		Tags:        []string{"Authors"},
	}, s.handleUpdateAuthor)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteAuthor",
		Method:        http.MethodDelete,
		Path:          "/api/v1/authors/{id}",
		Summary:       "Delete author",
		Description:   "Deletes the author and removes it from every book",
		Tags:          []string{"Authors"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteAuthor)
}

// AuthorResponse contains author data in API responses.
type AuthorResponse struct {
	ID    int64  `json:"id" doc:"Author ID"`
	Label string `json:"label" doc:"Author name"`
}

// AuthorListResponse contains a list of authors.
type AuthorListResponse struct {
	Authors []AuthorResponse `json:"authors" doc:"Authors"`
}

// AuthorListOutput wraps the author list for Huma.
type AuthorListOutput struct {
	Body AuthorListResponse
}

// AuthorOutput wraps a single author for Huma.
type AuthorOutput struct {
	Body AuthorResponse
}

// ListAuthorsInput optionally narrows the listing to one label.
type ListAuthorsInput struct {
	Label string `query:"label" doc:"Exact author name"`
}

// AuthorRequest is the request body for renaming an author.
type AuthorRequest struct {
	Label string `json:"label" doc:"New author name"`
}

// UpdateAuthorInput wraps the rename request for Huma.
type UpdateAuthorInput struct {
	ID   int64 `path:"id" doc:"Author ID"`
	Body AuthorRequest
}

// AuthorIDInput addresses one author.
type AuthorIDInput struct {
	ID int64 `path:"id" doc:"Author ID"`
}

func (s *Server) handleListAuthors(ctx context.Context, input *ListAuthorsInput) (*AuthorListOutput, error) {
	var (
		authors []domain.Author
		err     error
	)
	if input.Label != "" {
		authors, err = s.services.Author.FindByLabel(ctx, input.Label)
	} else {
		authors, err = s.services.Author.ListAll(ctx)
	}
	if err != nil {
		return nil, s.fail(err)
	}
	return &AuthorListOutput{Body: AuthorListResponse{Authors: toAuthorResponses(authors)}}, nil
}

func (s *Server) handleUpdateAuthor(ctx context.Context, input *UpdateAuthorInput) (*AuthorOutput, error) {
	author, err := s.services.Author.Update(ctx, input.ID, service.AuthorInput{Label: input.Body.Label})
	if err != nil {
		return nil, s.fail(err)
	}
	return &AuthorOutput{Body: AuthorResponse{ID: author.ID, Label: author.Label}}, nil
}

func (s *Server) handleDeleteAuthor(ctx context.Context, input *AuthorIDInput) (*struct{}, error) {
	if err := s.services.Author.Delete(ctx, input.ID); err != nil {
		return nil, s.fail(err)
	}
	return nil, nil
}

func toAuthorResponses(authors []domain.Author) []AuthorResponse {
	out := make([]AuthorResponse, len(authors))
	for i, a := range authors {
		out[i] = AuthorResponse{ID: a.ID, Label: a.Label}
	}
	return out
}
