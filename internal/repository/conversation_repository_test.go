package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/shinyyama/collab-messaging/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationCreateIsSymmetric(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(newTestDB(t))

	first, err := repo.Create(ctx, "brand-1", "creator-1")
	require.NoError(t, err)
	second, err := repo.Create(ctx, "creator-1", "brand-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.ElementsMatch(t, []string{"brand-1", "creator-1"}, first.Participants())
	assert.Equal(t, map[string]int{"brand-1": 0, "creator-1": 0}, first.UnreadCounts)

	found, err := repo.FindByParticipants(ctx, "creator-1", "brand-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestConversationCreateRejectsSingleParticipant(t *testing.T) {
	repo := NewConversationRepository(newTestDB(t))
	_, err := repo.Create(context.Background(), "u1", "u1")
	assert.ErrorIs(t, err, model.ErrInvalidParticipants)
}

func TestConversationFindMissing(t *testing.T) {
	repo := NewConversationRepository(newTestDB(t))
	_, err := repo.FindByParticipants(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationConcurrentCreateYieldsOneRow(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	repo := NewConversationRepository(gdb)

	const n = 16
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "u1", "u2"
			if i%2 == 1 {
				a, b = b, a
			}
			cv, err := repo.Create(ctx, a, b)
			errs[i] = err
			if err == nil {
				ids[i] = cv.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	var convs, states int64
	require.NoError(t, gdb.Model(&model.Conversation{}).Count(&convs).Error)
	require.NoError(t, gdb.Model(&model.ConversationState{}).Count(&states).Error)
	assert.EqualValues(t, 1, convs)
	assert.EqualValues(t, 2, states)
}

func TestConversationUnreadCounters(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(newTestDB(t))
	cv, err := repo.Create(ctx, "u1", "u2")
	require.NoError(t, err)

	require.NoError(t, repo.IncrementUnread(ctx, cv.ID, "u2", 1))
	require.NoError(t, repo.IncrementUnread(ctx, cv.ID, "u2", 1))
	require.NoError(t, repo.IncrementUnread(ctx, cv.ID, "u1", -5))

	got, err := repo.FindByID(ctx, cv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UnreadFor("u2"))
	assert.Equal(t, 0, got.UnreadFor("u1"))

	require.NoError(t, repo.ResetUnread(ctx, cv.ID, "u2", at(1)))
	got, err = repo.FindByID(ctx, cv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadFor("u2"))

	assert.ErrorIs(t, repo.IncrementUnread(ctx, cv.ID, "stranger", 1), ErrNotFound)
}

func TestConversationSetLastMessageKeepsNewest(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	repo := NewConversationRepository(gdb)
	msgs := NewMessageRepository(gdb)
	cv, err := repo.Create(ctx, "u1", "u2")
	require.NoError(t, err)

	newer := &model.Message{ConversationID: cv.ID, SenderUID: "u1", ReceiverUID: "u2", Content: "newer", SentAt: at(10)}
	older := &model.Message{ConversationID: cv.ID, SenderUID: "u2", ReceiverUID: "u1", Content: "older", SentAt: at(5)}
	require.NoError(t, msgs.Create(ctx, newer))
	require.NoError(t, msgs.Create(ctx, older))

	require.NoError(t, repo.SetLastMessage(ctx, cv.ID, newer.ID, newer.SentAt))
	require.NoError(t, repo.SetLastMessage(ctx, cv.ID, older.ID, older.SentAt))

	got, err := repo.FindByID(ctx, cv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageID)
	assert.Equal(t, newer.ID, *got.LastMessageID)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, "newer", got.LastMessage.Content)
	assert.True(t, got.LastMessageAt.Equal(at(10)))
}

func TestConversationSoftStateIsPerParticipant(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(newTestDB(t))
	cv, err := repo.Create(ctx, "u1", "u2")
	require.NoError(t, err)

	require.NoError(t, repo.SoftDeleteFor(ctx, cv.ID, "u1", at(1)))
	require.NoError(t, repo.ArchiveFor(ctx, cv.ID, "u2", at(2)))

	forU1, err := repo.ListForUser(ctx, "u1", ListOptions{ExcludeDeletedFor: "u1"})
	require.NoError(t, err)
	assert.Empty(t, forU1)

	forU2, err := repo.ListForUser(ctx, "u2", ListOptions{ExcludeDeletedFor: "u2"})
	require.NoError(t, err)
	require.Len(t, forU2, 1)
	assert.True(t, forU2[0].IsDeletedFor("u1"))
	assert.True(t, forU2[0].IsArchivedBy("u2"))
	assert.False(t, forU2[0].IsArchivedBy("u1"))

	require.NoError(t, repo.RestoreFor(ctx, cv.ID, "u1"))
	require.NoError(t, repo.UnarchiveFor(ctx, cv.ID, "u2"))
	got, err := repo.FindByID(ctx, cv.ID)
	require.NoError(t, err)
	assert.Empty(t, got.DeletedFor)
	assert.Empty(t, got.ArchivedBy)
}

func TestConversationListOrderedByLastMessage(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(newTestDB(t))

	quiet, err := repo.Create(ctx, "u1", "u2")
	require.NoError(t, err)
	older, err := repo.Create(ctx, "u1", "u3")
	require.NoError(t, err)
	newer, err := repo.Create(ctx, "u4", "u1")
	require.NoError(t, err)
	require.NoError(t, repo.SetLastMessage(ctx, older.ID, "m-old", at(1)))
	require.NoError(t, repo.SetLastMessage(ctx, newer.ID, "m-new", at(2)))

	list, err := repo.ListForUser(ctx, "u1", ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{newer.ID, older.ID, quiet.ID}, []string{list[0].ID, list[1].ID, list[2].ID})

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
