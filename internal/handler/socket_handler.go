package handler

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shinyyama/collab-messaging/internal/apperr"
	"github.com/shinyyama/collab-messaging/internal/gateway"
	"github.com/shinyyama/collab-messaging/internal/model"
	"github.com/shinyyama/collab-messaging/internal/reqctx"
	"github.com/shinyyama/collab-messaging/internal/service"
	"github.com/sirupsen/logrus"
)

// SocketHandler serves client → server websocket events.
type SocketHandler struct {
	svc     service.MessagingService
	emitter gateway.Emitter
	log     *logrus.Logger
}

func NewSocketHandler(svc service.MessagingService, emitter gateway.Emitter, logger *logrus.Logger) *SocketHandler {
	return &SocketHandler{svc: svc, emitter: emitter, log: logger}
}

type conversationRef struct {
	ConversationID string `json:"conversationId"`
}

type socketSendRequest struct {
	// ConversationID may be "new" when the client has no conversation yet.
	ConversationID string             `json:"conversationId"`
	ReceiverID     string             `json:"receiverId"`
	Content        string             `json:"content"`
	Attachments    []model.Attachment `json:"attachments"`
	Type           string             `json:"type"`
}

type socketReadRequest struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

type typingRequest struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type MessageSentAck struct {
	Success        bool   `json:"success"`
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UID            string `json:"uid"`
	IsTyping       bool   `json:"isTyping"`
}

func (h *SocketHandler) HandleInbound(ctx context.Context, c *gateway.Client, f gateway.Frame) {
	actor := c.Actor()
	ctx = reqctx.WithUID(reqctx.WithRID(ctx, uuid.NewString()), actor.UID)
	entry := h.log.WithFields(logrus.Fields{"uid": actor.UID, "event": f.Event, "request_id": reqctx.RID(ctx)})

	var err error
	switch f.Event {
	case gateway.EventJoinConversation:
		err = h.join(ctx, c, f.Data)
	case gateway.EventLeaveConversation:
		var req conversationRef
		if err = decode(f.Data, &req); err == nil {
			c.Leave(gateway.ConversationRoom(req.ConversationID))
		}
	case gateway.EventSendMessage:
		err = h.send(ctx, c, f.Data)
	case gateway.EventMarkRead:
		var req socketReadRequest
		if err = decode(f.Data, &req); err == nil {
			_, err = h.svc.MarkRead(ctx, actor, req.ConversationID, req.MessageIDs)
		}
	case gateway.EventTyping:
		err = h.typing(c, f.Data)
	default:
		err = apperr.Validation("unknown event " + f.Event)
	}
	if err == nil {
		return
	}
	if apperr.KindOf(err) == apperr.KindInternal {
		entry.WithError(err).Error("websocket event failed")
	} else {
		entry.WithError(err).Debug("websocket event rejected")
	}
	// Rejections are reported on the socket; the connection stays open.
	c.EmitError(apperr.MessageOf(err))
}

func (h *SocketHandler) join(ctx context.Context, c *gateway.Client, data json.RawMessage) error {
	var req conversationRef
	if err := decode(data, &req); err != nil {
		return err
	}
	cv, err := h.svc.JoinConversation(ctx, c.Actor(), req.ConversationID)
	if err != nil {
		return err
	}
	c.Join(gateway.ConversationRoom(cv.ID))
	return c.Emit(gateway.EventJoinedConversation, conversationRef{ConversationID: cv.ID})
}

func (h *SocketHandler) send(ctx context.Context, c *gateway.Client, data json.RawMessage) error {
	var req socketSendRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if len(req.Attachments) > 1 {
		return apperr.Validation("only one attachment per message")
	}
	msgType, ok := parseMessageType(req.Type)
	if !ok {
		return apperr.Validation("invalid message type")
	}
	in := service.SendInput{
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Type:       msgType,
	}
	if id := strings.TrimSpace(req.ConversationID); id != "new" {
		in.ConversationID = id
	}
	if len(req.Attachments) > 0 {
		in.Attachment = &req.Attachments[0]
	}
	msg, err := h.svc.SendMessage(ctx, c.Actor(), in)
	if err != nil {
		return err
	}
	c.Join(gateway.ConversationRoom(msg.ConversationID))
	return c.Emit(gateway.EventMessageSent, MessageSentAck{
		Success:        true,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
	})
}

// typing relays a typing indicator to a conversation the client has joined.
func (h *SocketHandler) typing(c *gateway.Client, data json.RawMessage) error {
	var req typingRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	room := gateway.ConversationRoom(req.ConversationID)
	if !c.InRoom(room) {
		return apperr.Forbidden("join the conversation first")
	}
	return h.emitter.Emit(gateway.EventUserTyping, TypingEvent{
		ConversationID: req.ConversationID,
		UID:            c.Actor().UID,
		IsTyping:       req.IsTyping,
	}, room)
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return apperr.Validation("missing payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Validation("malformed payload")
	}
	return nil
}
