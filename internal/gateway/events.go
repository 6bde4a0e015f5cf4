package gateway

import "encoding/json"

// Client → server events.
const (
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
	EventSendMessage       = "send-message"
	EventMarkRead          = "mark-read"
	EventTyping            = "typing"
)

// Server → client events.
const (
	EventConnected              = "connected"
	EventReceiveMessage         = "receive-message"
	EventMessageSent            = "message-sent"
	EventMessagesRead           = "messages-read"
	EventNewNotification        = "newNotification"
	EventNewMessageNotification = "new-message-notification"
	EventConversationUpdated    = "conversation-updated"
	EventUserTyping             = "user-typing"
	EventJoinedConversation     = "joined-conversation"
	EventError                  = "error"
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func ConversationRoom(id string) string {
	return "conversation:" + id
}

func UserRoom(uid string) string {
	return "user:" + uid
}
