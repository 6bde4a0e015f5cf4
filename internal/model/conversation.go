package model

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrInvalidParticipants = errors.New("a conversation needs exactly two distinct participants")

// Conversation is a two-party thread. The pair is stored normalized (low < high) under a
// unique index, so a lookup never depends on argument order.
type Conversation struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	ParticipantLow  string     `gorm:"column:participant_low;size:128;not null;uniqueIndex:uk_conversations_pair" json:"-"`
	ParticipantHigh string     `gorm:"column:participant_high;size:128;not null;uniqueIndex:uk_conversations_pair;index" json:"-"`
	LastMessageID   *string    `gorm:"column:last_message_id;size:36" json:"lastMessageId,omitempty"`
	LastMessageAt   *time.Time `gorm:"column:last_message_at;index" json:"lastMessageAt,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`

	LastMessage *Message            `gorm:"foreignKey:LastMessageID" json:"lastMessage,omitempty"`
	States      []ConversationState `gorm:"foreignKey:ConversationID" json:"-"`

	UnreadCounts map[string]int `gorm:"-" json:"unreadCounts"`
	ArchivedBy   []string       `gorm:"-" json:"archivedBy"`
	DeletedFor   []string       `gorm:"-" json:"deletedFor"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// NormalizePair orders two actor ids so that the same unordered pair always maps to the
// same (low, high) tuple.
func NormalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

func NewConversation(a, b string) (*Conversation, error) {
	low, high := NormalizePair(a, b)
	cv := &Conversation{ParticipantLow: low, ParticipantHigh: high}
	if err := cv.Validate(); err != nil {
		return nil, err
	}
	return cv, nil
}

func (c *Conversation) Validate() error {
	if c.ParticipantLow == "" || c.ParticipantHigh == "" || c.ParticipantLow == c.ParticipantHigh {
		return ErrInvalidParticipants
	}
	if c.ParticipantLow > c.ParticipantHigh {
		c.ParticipantLow, c.ParticipantHigh = c.ParticipantHigh, c.ParticipantLow
	}
	return nil
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func (c *Conversation) Participants() []string {
	return []string{c.ParticipantLow, c.ParticipantHigh}
}

func (c *Conversation) HasParticipant(uid string) bool {
	return uid != "" && (c.ParticipantLow == uid || c.ParticipantHigh == uid)
}

// Other returns the participant that is not uid. It returns "" when uid is not a participant.
func (c *Conversation) Other(uid string) string {
	switch uid {
	case c.ParticipantLow:
		return c.ParticipantHigh
	case c.ParticipantHigh:
		return c.ParticipantLow
	}
	return ""
}

func (c *Conversation) UnreadFor(uid string) int {
	return c.UnreadCounts[uid]
}

func (c *Conversation) IsArchivedBy(uid string) bool {
	return containsString(c.ArchivedBy, uid)
}

func (c *Conversation) IsDeletedFor(uid string) bool {
	return containsString(c.DeletedFor, uid)
}

// Hydrate fills the per-participant views from the loaded state rows.
func (c *Conversation) Hydrate() {
	c.UnreadCounts = make(map[string]int, 2)
	c.ArchivedBy = []string{}
	c.DeletedFor = []string{}
	for _, p := range c.Participants() {
		c.UnreadCounts[p] = 0
	}
	for _, st := range c.States {
		if st.UnreadCount > 0 {
			c.UnreadCounts[st.UID] = st.UnreadCount
		}
		if st.ArchivedAt != nil {
			c.ArchivedBy = append(c.ArchivedBy, st.UID)
		}
		if st.DeletedForAt != nil {
			c.DeletedFor = append(c.DeletedFor, st.UID)
		}
	}
	sort.Strings(c.ArchivedBy)
	sort.Strings(c.DeletedFor)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
