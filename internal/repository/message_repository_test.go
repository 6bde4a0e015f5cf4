package repository

import (
	"context"
	"testing"

	"github.com/shinyyama/collab-messaging/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMessages(t *testing.T, repo MessageRepository, convID string, n int) []model.Message {
	t.Helper()
	out := make([]model.Message, 0, n)
	// Insert in reverse so that ordering must come from sent_at, not insertion order.
	for i := n - 1; i >= 0; i-- {
		m := model.Message{ConversationID: convID, SenderUID: "u1", ReceiverUID: "u2", Content: "m", SentAt: at(i)}
		require.NoError(t, repo.Create(context.Background(), &m))
		out = append(out, m)
	}
	return out
}

func TestMessageCreateValidation(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	err := repo.Create(ctx, &model.Message{ConversationID: "c", SenderUID: "u1", ReceiverUID: "u2", SentAt: at(0)})
	assert.ErrorIs(t, err, model.ErrEmptyMessage)

	err = repo.Create(ctx, &model.Message{ConversationID: "c", SenderUID: "u1", ReceiverUID: "u1", Content: "hi", SentAt: at(0)})
	assert.ErrorIs(t, err, model.ErrSelfMessage)

	m := &model.Message{ConversationID: "c", SenderUID: "u1", ReceiverUID: "u2", SentAt: at(0)}
	m.SetAttachment(&model.Attachment{FileURL: "https://cdn/x.png", FileName: "x.png", FileType: "image/png"})
	m.Type = model.MessageTypeFor(&model.Attachment{FileType: "image/png", FileURL: "https://cdn/x.png"}, "")
	require.NoError(t, repo.Create(ctx, m))
	assert.NotEmpty(t, m.ID)

	got, err := repo.FindByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageTypeImage, got.Type)
	assert.False(t, got.IsRead)
}

func TestMessageListOrderAndPaging(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()
	seedMessages(t, repo, "c1", 25)
	seedMessages(t, repo, "c2", 2)

	all, err := repo.ListByConversation(ctx, "c1", Page{})
	require.NoError(t, err)
	require.Len(t, all, 25)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].SentAt.Before(all[i-1].SentAt), "messages out of order at %d", i)
	}

	first, err := repo.ListByConversation(ctx, "c1", Page{Page: 1})
	require.NoError(t, err)
	assert.Len(t, first, DefaultPageSize)
	assert.True(t, first[0].SentAt.Equal(at(0)))

	second, err := repo.ListByConversation(ctx, "c1", Page{Page: 2})
	require.NoError(t, err)
	assert.Len(t, second, 5)

	recent, err := repo.ListByConversation(ctx, "c1", Page{Limit: 3, Reverse: true})
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.True(t, recent[0].SentAt.Equal(at(24)))
}

func TestMessageMarkRead(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()
	msgs := seedMessages(t, repo, "c1", 3)
	reply := model.Message{ConversationID: "c1", SenderUID: "u2", ReceiverUID: "u1", Content: "back", SentAt: at(9)}
	require.NoError(t, repo.Create(ctx, &reply))

	n, err := repo.MarkRead(ctx, ReadFilter{ConversationID: "c1", Receiver: "u2", MessageIDs: []string{msgs[0].ID}}, at(20))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.MarkRead(ctx, ReadFilter{ConversationID: "c1", Receiver: "u2"}, at(21))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.MarkRead(ctx, ReadFilter{ConversationID: "c1", Receiver: "u2"}, at(22))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	first, err := repo.FindByID(ctx, msgs[0].ID)
	require.NoError(t, err)
	require.NotNil(t, first.ReadAt)
	assert.True(t, first.ReadAt.Equal(at(20)), "readAt is set once")

	unread, err := repo.CountUnread(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)
}
