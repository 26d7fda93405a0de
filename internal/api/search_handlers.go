package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchBooks",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search books",
		Description: "Full-text search over titles, authors, publishers and tags, best match first",
		Tags:        []string{"Search"},
	}, s.handleSearch)
}

// SearchInput contains search parameters.
type SearchInput struct {
	Query string `query:"q" doc:"Search text"`
	Limit int    `query:"limit" minimum:"0" maximum:"100" doc:"Maximum number of books (default 20)"`
}

// SearchResponse contains the matching books.
type SearchResponse struct {
	Query string         `json:"query" doc:"The search text"`
	Books []BookResponse `json:"books" doc:"Matching books, best match first"`
}

// SearchOutput wraps the search response for Huma.
type SearchOutput struct {
	Body SearchResponse
}

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	books, err := s.services.Book.Search(ctx, input.Query, input.Limit)
	if err != nil {
		return nil, s.fail(err)
	}
	return &SearchOutput{Body: SearchResponse{
		Query: input.Query,
		Books: toBookResponses(books),
	}}, nil
}
