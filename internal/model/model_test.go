package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePair(t *testing.T) {
	tests := []struct {
		a, b     string
		low, high string
	}{
		{"a", "b", "a", "b"},
		{"b", "a", "a", "b"},
		{"creator-9", "brand-1", "brand-1", "creator-9"},
	}
	for _, tt := range tests {
		low, high := NormalizePair(tt.a, tt.b)
		assert.Equal(t, tt.low, low)
		assert.Equal(t, tt.high, high)
	}
}

func TestNewConversationRejectsInvalidPairs(t *testing.T) {
	for _, pair := range [][2]string{{"u1", "u1"}, {"", "u1"}, {"u1", ""}} {
		_, err := NewConversation(pair[0], pair[1])
		assert.ErrorIs(t, err, ErrInvalidParticipants, pair)
	}
	cv, err := NewConversation("u2", "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, cv.Participants())
	assert.Equal(t, "u2", cv.Other("u1"))
	assert.Equal(t, "u1", cv.Other("u2"))
	assert.Empty(t, cv.Other("u3"))
	assert.False(t, cv.HasParticipant(""))
}

func TestConversationHydrate(t *testing.T) {
	now := time.Now()
	cv := Conversation{
		ParticipantLow:  "u1",
		ParticipantHigh: "u2",
		States: []ConversationState{
			{UID: "u1", UnreadCount: 3, ArchivedAt: &now},
			{UID: "u2", DeletedForAt: &now},
		},
	}
	cv.Hydrate()
	assert.Equal(t, map[string]int{"u1": 3, "u2": 0}, cv.UnreadCounts)
	assert.Equal(t, 3, cv.UnreadFor("u1"))
	assert.True(t, cv.IsArchivedBy("u1"))
	assert.False(t, cv.IsArchivedBy("u2"))
	assert.True(t, cv.IsDeletedFor("u2"))
	assert.False(t, cv.IsDeletedFor("u1"))
}

func TestMessageTypeFor(t *testing.T) {
	tests := []struct {
		name      string
		att       *Attachment
		requested MessageType
		want      MessageType
	}{
		{"no attachment", nil, "", MessageTypeText},
		{"link requested", nil, MessageTypeLink, MessageTypeLink},
		{"image requested without file", nil, MessageTypeImage, MessageTypeText},
		{"png", &Attachment{FileURL: "u", FileType: "image/png"}, "", MessageTypeImage},
		{"pdf", &Attachment{FileURL: "u", FileType: "application/pdf"}, MessageTypeLink, MessageTypeFile},
		{"blank url", &Attachment{FileType: "image/png"}, "", MessageTypeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MessageTypeFor(tt.att, tt.requested))
		})
	}
}

func TestMessageValidate(t *testing.T) {
	m := Message{SenderUID: "u1", ReceiverUID: "u2"}
	assert.ErrorIs(t, m.Validate(), ErrEmptyMessage)

	m.SetAttachment(&Attachment{FileURL: " https://cdn/x.png ", FileName: "x.png", FileType: "image/png"})
	require.NoError(t, m.Validate())
	assert.Equal(t, "https://cdn/x.png", *m.FileURL)

	m.SetAttachment(nil)
	assert.Nil(t, m.FileURL)
	m.Content = "hello"
	require.NoError(t, m.Validate())

	m.ReceiverUID = "u1"
	assert.ErrorIs(t, m.Validate(), ErrSelfMessage)
}

func TestNotificationTypeValid(t *testing.T) {
	assert.True(t, NotificationQuoteAccepted.Valid())
	assert.False(t, NotificationType("digest").Valid())
}
