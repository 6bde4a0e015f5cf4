package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/collab-messaging/internal/apperr"
	"github.com/shinyyama/collab-messaging/internal/identity"
	appmw "github.com/shinyyama/collab-messaging/internal/middleware"
	"github.com/shinyyama/collab-messaging/internal/model"
	"github.com/shinyyama/collab-messaging/internal/repository"
	"github.com/shinyyama/collab-messaging/internal/service"
)

type MessageHandler struct {
	svc service.MessagingService
}

func NewMessageHandler(svc service.MessagingService) *MessageHandler {
	return &MessageHandler{svc: svc}
}

type SendMessageRequest struct {
	ReceiverID string            `json:"receiverId"`
	Content    string            `json:"content"`
	Attachment *model.Attachment `json:"attachment"`
	Type       string            `json:"type"`
}

type CreateConversationRequest struct {
	ParticipantID string `json:"participantId"`
}

type MarkReadRequest struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

func (h *MessageHandler) Send(c echo.Context) error {
	actor := appmw.Actor(c)
	if actor == nil {
		return writeError(c, apperr.Unauthenticated("missing uid"))
	}
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	if strings.TrimSpace(req.ReceiverID) == "" {
		return badRequest(c, "receiverId is required")
	}
	msgType, ok := parseMessageType(req.Type)
	if !ok {
		return badRequest(c, "invalid message type")
	}
	msg, err := h.svc.SendMessage(c.Request().Context(), actor, service.SendInput{
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Attachment: req.Attachment,
		Type:       msgType,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) ListConversations(c echo.Context) error {
	actor := appmw.Actor(c)
	if actor == nil {
		return writeError(c, apperr.Unauthenticated("missing uid"))
	}
	list, err := h.svc.ListConversations(c.Request().Context(), actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"conversations": list})
}

func (h *MessageHandler) CreateConversation(c echo.Context) error {
	actor := appmw.Actor(c)
	if actor == nil {
		return writeError(c, apperr.Unauthenticated("missing uid"))
	}
	var req CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	sum, err := h.svc.CreateConversation(c.Request().Context(), actor, req.ParticipantID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *MessageHandler) GetConversation(c echo.Context) error {
	actor := appmw.Actor(c)
	if actor == nil {
		return writeError(c, apperr.Unauthenticated("missing uid"))
	}
	page, err := parsePage(c)
	if err != nil {
		return writeError(c, err)
	}
	thread, err := h.svc.GetConversationMessages(c.Request().Context(), actor, c.Param("conversationId"), page)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, thread)
}

// OpenWith resolves or creates the conversation with another user and returns it with
// its messages.
func (h *MessageHandler) OpenWith(c echo.Context) error {
	actor := appmw.Actor(c)
	if actor == nil {
		return writeError(c, apperr.Unauthenticated("missing uid"))
	}
	page, err := parsePage(c)
	if err != nil {
		return writeError(c, err)
	}
	thread, err := h.svc.OpenConversationWith(c.Request().Context(), actor, c.Param("otherUserId"), page)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, thread)
}

func (h *MessageHandler) MarkRead(c echo.Context) error {
	actor := appmw.Actor(c)
	if actor == nil {
		return writeError(c, apperr.Unauthenticated("missing uid"))
	}
	var req MarkReadRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	if req.ConversationID == "" {
		return badRequest(c, "conversationId is required")
	}
	res, err := h.svc.MarkRead(c.Request().Context(), actor, req.ConversationID, req.MessageIDs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *MessageHandler) Archive(c echo.Context) error {
	return h.softState(c, h.svc.ArchiveConversation)
}

func (h *MessageHandler) Unarchive(c echo.Context) error {
	return h.softState(c, h.svc.UnarchiveConversation)
}

func (h *MessageHandler) Delete(c echo.Context) error {
	return h.softState(c, h.svc.DeleteConversation)
}

func (h *MessageHandler) softState(c echo.Context, fn func(ctx context.Context, actor *identity.Actor, id string) error) error {
	actor := appmw.Actor(c)
	if actor == nil {
		return writeError(c, apperr.Unauthenticated("missing uid"))
	}
	if err := fn(c.Request().Context(), actor, c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func parsePage(c echo.Context) (repository.Page, error) {
	var p repository.Page
	if s := c.QueryParam("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return p, apperr.Validation("invalid page")
		}
		p.Page = n
	}
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return p, apperr.Validation("invalid limit")
		}
		p.Limit = n
	}
	p.Reverse = c.QueryParam("order") == "desc"
	return p, nil
}

func parseMessageType(s string) (model.MessageType, bool) {
	switch t := model.MessageType(strings.ToLower(strings.TrimSpace(s))); t {
	case "", model.MessageTypeText, model.MessageTypeImage, model.MessageTypeFile, model.MessageTypeLink:
		return t, true
	}
	return "", false
}
