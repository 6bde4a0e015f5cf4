package repository

import (
	"context"
	"testing"

	"github.com/shinyyama/collab-messaging/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository(newTestDB(t))
	conv := "conv-1"

	for _, n := range []*model.Notification{
		{UserUID: "u2", Type: model.NotificationMessage, Message: "New message from u1", ConversationID: &conv},
		{UserUID: "u2", Type: model.NotificationOrder, Message: "Order placed"},
		{UserUID: "u3", Type: model.NotificationLike, Message: "Someone liked your post"},
	} {
		require.NoError(t, repo.Create(ctx, n))
		assert.NotEmpty(t, n.ID)
	}

	list, err := repo.ListByUser(ctx, "u2", true, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	n, err := repo.MarkByConversation(ctx, "u2", conv)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	cnt, err := repo.CountUnread(ctx, "u2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, cnt)

	n, err = repo.MarkRead(ctx, "u2", []string{list[0].ID, list[1].ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.MarkAllRead(ctx, "u3")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	unread, err := repo.ListByUser(ctx, "u2", true, 10)
	require.NoError(t, err)
	assert.Empty(t, unread)
	everything, err := repo.ListByUser(ctx, "u2", false, 10)
	require.NoError(t, err)
	assert.Len(t, everything, 2)
}

func TestStoreTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newTestDB(t))

	err := s.Transaction(ctx, func(tx Store) error {
		if err := tx.Notifications().Create(ctx, &model.Notification{UserUID: "u1", Type: model.NotificationPromotion, Message: "x"}); err != nil {
			return err
		}
		return ErrNotFound
	})
	assert.ErrorIs(t, err, ErrNotFound)

	cnt, err := s.Notifications().CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, cnt)
}
