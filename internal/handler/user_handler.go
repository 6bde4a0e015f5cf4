package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/collab-messaging/internal/apperr"
	"github.com/shinyyama/collab-messaging/internal/identity"
)

type UserHandler struct {
	provider identity.Provider
}

func NewUserHandler(provider identity.Provider) *UserHandler {
	return &UserHandler{provider: provider}
}

type PublicUserResponse struct {
	UID         string  `json:"uid"`
	DisplayName string  `json:"displayName"`
	PhotoURL    *string `json:"photoURL"`
}

func (h *UserHandler) GetPublic(c echo.Context) error {
	uid := c.Param("uid")
	if uid == "" {
		return badRequest(c, "invalid uid")
	}
	user, err := h.provider.Lookup(c.Request().Context(), uid)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return writeError(c, apperr.NotFound("user not found"))
		}
		return writeError(c, err)
	}
	resp := PublicUserResponse{
		UID:         user.UID,
		DisplayName: user.DisplayName,
		PhotoURL:    user.PhotoURL,
	}
	return c.JSON(http.StatusOK, resp)
}
