package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationMessage       NotificationType = "message"
	NotificationOrder         NotificationType = "order"
	NotificationLike          NotificationType = "like"
	NotificationPromotion     NotificationType = "promotion"
	NotificationQuoteRequest  NotificationType = "quote_request"
	NotificationQuoteAccepted NotificationType = "quote_accepted"
	NotificationQuoteRejected NotificationType = "quote_rejected"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationMessage, NotificationOrder, NotificationLike, NotificationPromotion,
		NotificationQuoteRequest, NotificationQuoteAccepted, NotificationQuoteRejected:
		return true
	}
	return false
}

type Notification struct {
	ID             string           `gorm:"primaryKey;size:36" json:"id"`
	UserUID        string           `gorm:"column:user_uid;size:128;index;not null" json:"user"`
	Type           NotificationType `gorm:"column:type;size:32;not null" json:"type"`
	Message        string           `gorm:"column:message;type:text" json:"message"`
	FromUID        *string          `gorm:"column:from_uid;size:128" json:"fromUser,omitempty"`
	ConversationID *string          `gorm:"column:conversation_id;size:36;index" json:"conversationId,omitempty"`
	IsRead         bool             `gorm:"column:is_read;not null;default:false" json:"isRead"`
	ReadAt         *time.Time       `gorm:"column:read_at" json:"readAt,omitempty"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"createdAt"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
