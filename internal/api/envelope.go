package api

import (
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/listenupapp/bookshelf/internal/errors"
	"github.com/listenupapp/bookshelf/internal/http/response"
)

// EnvelopeTransformer wraps every huma response body in the
// {success, data, error} envelope shared with the non-huma routes.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	code, err := strconv.Atoi(status)
	if err != nil {
		code = http.StatusOK
	}

	if code < http.StatusBadRequest {
		return response.Envelope{Success: true, Data: v}, nil
	}

	body := &response.ErrorBody{
		Code:    statusToCode(code),
		Message: http.StatusText(code),
	}
	switch e := v.(type) {
	case *APIError:
		body.Code, body.Message, body.Details = e.Code, e.Message, e.Details
	case *domainerrors.Error:
		body.Code, body.Message, body.Details = e.Code, e.Message, e.Details
	case *huma.ErrorModel:
		body.Message = e.Detail
		if len(e.Errors) > 0 {
			body.Details = e.Errors
		}
	}
	return response.Envelope{Success: false, Error: body}, nil
}
