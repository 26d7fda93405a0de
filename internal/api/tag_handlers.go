package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/bookshelf/internal/domain"
	"github.com/listenupapp/bookshelf/internal/service"
)

func (s *Server) registerTagRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags",
		Summary:     "List tags",
		Description: "Returns all tags, or the one with the given label",
		Tags:        []string{"Tags"},
	}, s.handleListTags)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createTag",
		Method:        http.MethodPost,
		Path:          "/api/v1/tags",
		Summary:       "Create tag",
		Description:   "Creates a new tag",
		Tags:          []string{"Tags"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateTag)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateTag",
		Method:      http.MethodPut,
		Path:        "/api/v1/tags/{id}",
		Summary:     "Update tag",
		Description: "Renames or recolors a tag",
		Tags:        []string{"Tags"},
	}, s.handleUpdateTag)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteTag",
		Method:        http.MethodDelete,
		Path:          "/api/v1/tags/{id}",
		Summary:       "Delete tag",
		Description:   "Deletes a tag and removes it from every book",
		Tags:          []string{"Tags"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteTag)
}

// === DTOs ===

// TagResponse contains tag data in API responses.
type TagResponse struct {
	ID    int64  `json:"id" doc:"Tag ID"`
	Label string `json:"label" doc:"Tag label"`
	Color string `json:"color" doc:"Display color"`
}

// TagListResponse contains a list of tags.
type TagListResponse struct {
	Tags []TagResponse `json:"tags" doc:"List of tags"`
}

// TagListOutput wraps the list tags response for Huma.
type TagListOutput struct {
	Body TagListResponse
}

// TagOutput wraps the tag response for Huma.
type TagOutput struct {
	Body TagResponse
}

// ListTagsInput optionally narrows the listing to one label.
type ListTagsInput struct {
	Label string `query:"label" doc:"Exact tag label"`
}

// CreateTagInput wraps the create tag request for Huma.
type CreateTagInput struct {
	Body TagRequest
}

// UpdateTagInput wraps the update tag request for Huma.
type UpdateTagInput struct {
	ID   int64 `path:"id" doc:"Tag ID"`
	Body TagRequest
}

// TagIDInput addresses one tag.
type TagIDInput struct {
	ID int64 `path:"id" doc:"Tag ID"`
}

// === Handlers ===

func (s *Server) handleListTags(ctx context.Context, input *ListTagsInput) (*TagListOutput, error) {
	var (
		tags []domain.Tag
		err  error
	)
	if input.Label != "" {
		tags, err = s.services.Tag.FindByLabel(ctx, input.Label)
	} else {
		tags, err = s.services.Tag.ListAll(ctx)
	}
	if err != nil {
		return nil, s.fail(err)
	}
	return &TagListOutput{Body: TagListResponse{Tags: toTagResponses(tags)}}, nil
}

func (s *Server) handleCreateTag(ctx context.Context, input *CreateTagInput) (*TagOutput, error) {
	t, err := s.services.Tag.Create(ctx, service.TagInput{
		Label: input.Body.Label,
		Color: input.Body.Color,
	})
	if err != nil {
		return nil, s.fail(err)
	}
	return &TagOutput{Body: toTagResponse(*t)}, nil
}

func (s *Server) handleUpdateTag(ctx context.Context, input *UpdateTagInput) (*TagOutput, error) {
	t, err := s.services.Tag.Update(ctx, input.ID, service.TagInput{
		Label: input.Body.Label,
		Color: input.Body.Color,
	})
	if err != nil {
		return nil, s.fail(err)
	}
	return &TagOutput{Body: toTagResponse(*t)}, nil
}

func (s *Server) handleDeleteTag(ctx context.Context, input *TagIDInput) (*struct{}, error) {
	if err := s.services.Tag.Delete(ctx, input.ID); err != nil {
		return nil, s.fail(err)
	}
	return nil, nil
}

func toTagResponse(t domain.Tag) TagResponse {
	return TagResponse{ID: t.ID, Label: t.Label, Color: t.Color}
}

func toTagResponses(tags []domain.Tag) []TagResponse {
	out := make([]TagResponse, len(tags))
	for i, t := range tags {
		out[i] = toTagResponse(t)
	}
	return out
}
