package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
	MessageTypeLink  MessageType = "link"
)

var (
	ErrEmptyMessage = errors.New("message needs content or an attachment")
	ErrSelfMessage  = errors.New("sender and receiver must differ")
)

type Attachment struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

func (a *Attachment) Empty() bool {
	return a == nil || strings.TrimSpace(a.FileURL) == ""
}

// MessageTypeFor derives the stored type: image/* attachments are images, any other
// attachment is a file. Text messages stay text unless the client asked for link.
func MessageTypeFor(att *Attachment, requested MessageType) MessageType {
	if !att.Empty() {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(att.FileType)), "image/") {
			return MessageTypeImage
		}
		return MessageTypeFile
	}
	if requested == MessageTypeLink {
		return MessageTypeLink
	}
	return MessageTypeText
}

type Message struct {
	ID             string      `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string      `gorm:"column:conversation_id;size:36;not null;index:idx_messages_conv_sent,priority:1" json:"conversationId"`
	SenderUID      string      `gorm:"column:sender_uid;size:128;not null;index" json:"sender"`
	ReceiverUID    string      `gorm:"column:receiver_uid;size:128;not null;index:idx_messages_receiver_unread,priority:1" json:"receiver"`
	Content        string      `gorm:"type:text" json:"content"`
	FileURL        *string     `gorm:"column:file_url;size:1024" json:"fileUrl,omitempty"`
	FileName       *string     `gorm:"column:file_name;size:255" json:"fileName,omitempty"`
	FileType       *string     `gorm:"column:file_type;size:128" json:"fileType,omitempty"`
	Type           MessageType `gorm:"column:type;size:16;not null" json:"type"`
	IsRead         bool        `gorm:"column:is_read;not null;default:false;index:idx_messages_receiver_unread,priority:2" json:"isRead"`
	ReadAt         *time.Time  `gorm:"column:read_at" json:"readAt,omitempty"`
	SentAt         time.Time   `gorm:"column:sent_at;not null;index:idx_messages_conv_sent,priority:2" json:"sentAt"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) SetAttachment(att *Attachment) {
	if att.Empty() {
		m.FileURL, m.FileName, m.FileType = nil, nil, nil
		return
	}
	url, name, typ := strings.TrimSpace(att.FileURL), att.FileName, att.FileType
	m.FileURL, m.FileName, m.FileType = &url, &name, &typ
}

func (m *Message) HasAttachment() bool {
	return m.FileURL != nil && *m.FileURL != ""
}

func (m *Message) Validate() error {
	if strings.TrimSpace(m.Content) == "" && !m.HasAttachment() {
		return ErrEmptyMessage
	}
	if m.SenderUID == m.ReceiverUID {
		return ErrSelfMessage
	}
	return nil
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Type == "" {
		m.Type = MessageTypeText
	}
	return nil
}
