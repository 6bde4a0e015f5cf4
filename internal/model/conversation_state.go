package model

import "time"

// ConversationState is one participant's private view of a conversation: the unread
// counter and the archive/delete soft state. Every conversation has exactly two rows.
type ConversationState struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement"`
	ConversationID string     `gorm:"column:conversation_id;size:36;not null;uniqueIndex:uk_conversation_states_conv_uid"`
	UID            string     `gorm:"column:uid;size:128;not null;uniqueIndex:uk_conversation_states_conv_uid;index"`
	UnreadCount    int        `gorm:"column:unread_count;not null;default:0"`
	LastReadAt     *time.Time `gorm:"column:last_read_at"`
	ArchivedAt     *time.Time `gorm:"column:archived_at"`
	DeletedForAt   *time.Time `gorm:"column:deleted_for_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime"`
}

func (ConversationState) TableName() string {
	return "conversation_states"
}
