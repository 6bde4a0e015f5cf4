package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/collab-messaging/internal/apperr"
	appmw "github.com/shinyyama/collab-messaging/internal/middleware"
	"github.com/shinyyama/collab-messaging/internal/model"
	"github.com/shinyyama/collab-messaging/internal/service"
)

type NotificationHandler struct {
	svc service.NotificationService
}

func NewNotificationHandler(svc service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

type NotificationResponse struct {
	ID             string  `json:"id"`
	Type           string  `json:"type"`
	Message        string  `json:"message"`
	FromUser       *string `json:"fromUser,omitempty"`
	ConversationID *string `json:"conversationId,omitempty"`
	Read           bool    `json:"isRead"`
	CreatedAt      string  `json:"createdAt"`
}

type MarkNotificationsRequest struct {
	IDs []string `json:"ids"`
}

func toNotificationResponse(n model.Notification) NotificationResponse {
	return NotificationResponse{
		ID:             n.ID,
		Type:           string(n.Type),
		Message:        n.Message,
		FromUser:       n.FromUID,
		ConversationID: n.ConversationID,
		Read:           n.IsRead,
		CreatedAt:      n.CreatedAt.Format(time.RFC3339),
	}
}

func (h *NotificationHandler) List(c echo.Context) error {
	actor := appmw.Actor(c)
	if actor == nil {
		return writeError(c, apperr.Unauthenticated("missing uid"))
	}
	unreadOnly := c.QueryParam("unread_only") == "true"
	limit := 20
	if lStr := c.QueryParam("limit"); lStr != "" {
		if lParsed, err := strconv.Atoi(lStr); err == nil && lParsed > 0 {
			limit = lParsed
		}
	}
	list, unreadCount, err := h.svc.List(c.Request().Context(), actor.UID, unreadOnly, limit)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		resp = append(resp, toNotificationResponse(n))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"notifications": resp,
		"unreadCount":   unreadCount,
	})
}

// MarkRead marks the listed notifications read; an empty list marks all of them.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	actor := appmw.Actor(c)
	if actor == nil {
		return writeError(c, apperr.Unauthenticated("missing uid"))
	}
	var req MarkNotificationsRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid json")
		}
	}
	n, err := h.svc.MarkRead(c.Request().Context(), actor.UID, req.IDs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"count": n})
}

func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	actor := appmw.Actor(c)
	if actor == nil {
		return writeError(c, apperr.Unauthenticated("missing uid"))
	}
	n, err := h.svc.MarkAllRead(c.Request().Context(), actor.UID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok", "count": n})
}
