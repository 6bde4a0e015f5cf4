package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/collab-messaging/internal/apperr"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error errorPayload `json:"error"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: errorPayload{
			Code:    code,
			Message: message,
		},
	}
}

// writeError renders err with the status of its kind. Internal causes are logged, not
// sent to the client.
func writeError(c echo.Context, err error) error {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= 500 {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(status, NewErrorResponse(string(kind), apperr.MessageOf(err)))
}

func badRequest(c echo.Context, message string) error {
	return writeError(c, apperr.Validation(message))
}
