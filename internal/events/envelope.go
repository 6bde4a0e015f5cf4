package events

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys double as event types.
const (
	TypeMessageCreated      = "messages.created.v1"
	TypeMessagesRead        = "messages.read.v1"
	TypeNotificationCreated = "notifications.created.v1"
)

const producer = "collab-messaging"

type Meta struct {
	// Trace / request correlation ID
	CorrelationID *string `json:"correlation_id,omitempty"`
	// Unique event ID
	ID       string    `json:"id"`
	Producer *string   `json:"producer,omitempty"`
	Time     time.Time `json:"time"`
	// Event name and version, e.g. messages.created.v1
	Type string `json:"type"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

func NewEnvelope(eventType string, correlationID string, data any) Envelope {
	p := producer
	meta := Meta{
		ID:       uuid.NewString(),
		Producer: &p,
		Time:     time.Now().UTC(),
		Type:     eventType,
	}
	if correlationID != "" {
		meta.CorrelationID = &correlationID
	}
	return Envelope{Meta: meta, Data: data}
}
