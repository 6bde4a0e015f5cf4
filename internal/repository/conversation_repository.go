package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shinyyama/collab-messaging/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListOptions struct {
	// ExcludeDeletedFor hides conversations this user soft-deleted.
	ExcludeDeletedFor string
}

type ConversationRepository interface {
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	FindByParticipants(ctx context.Context, a, b string) (*model.Conversation, error)
	// Create returns the conversation for the unordered pair, creating it if needed.
	// A concurrent create of the same pair yields the same row, never a duplicate-key error.
	Create(ctx context.Context, a, b string) (*model.Conversation, error)
	ListForUser(ctx context.Context, uid string, opts ListOptions) ([]model.Conversation, error)
	ListAll(ctx context.Context) ([]model.Conversation, error)
	IncrementUnread(ctx context.Context, id, uid string, delta int) error
	ResetUnread(ctx context.Context, id, uid string, at time.Time) error
	SetLastMessage(ctx context.Context, id, messageID string, at time.Time) error
	ArchiveFor(ctx context.Context, id, uid string, at time.Time) error
	UnarchiveFor(ctx context.Context, id, uid string) error
	SoftDeleteFor(ctx context.Context, id, uid string, at time.Time) error
	RestoreFor(ctx context.Context, id, uid string) error
}

type conversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) withStates(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("States").Preload("LastMessage")
}

func (r *conversationRepository) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var cv model.Conversation
	if err := r.withStates(ctx).Where("id = ?", id).First(&cv).Error; err != nil {
		return nil, notFound(err)
	}
	cv.Hydrate()
	return &cv, nil
}

func (r *conversationRepository) FindByParticipants(ctx context.Context, a, b string) (*model.Conversation, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	low, high := model.NormalizePair(a, b)
	var cv model.Conversation
	if err := r.withStates(ctx).
		Where("participant_low = ? AND participant_high = ?", low, high).
		First(&cv).Error; err != nil {
		return nil, notFound(err)
	}
	cv.Hydrate()
	return &cv, nil
}

func (r *conversationRepository) Create(ctx context.Context, a, b string) (*model.Conversation, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	cv, err := model.NewConversation(a, b)
	if err != nil {
		return nil, err
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(cv).Error; err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		var ids []string
		if err := tx.Model(&model.Conversation{}).
			Where("participant_low = ? AND participant_high = ?", cv.ParticipantLow, cv.ParticipantHigh).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("reload conversation: %w", err)
		}
		if len(ids) == 0 {
			return fmt.Errorf("reload conversation: %w", ErrNotFound)
		}
		id := ids[0]
		states := []model.ConversationState{
			{ConversationID: id, UID: cv.ParticipantLow},
			{ConversationID: id, UID: cv.ParticipantHigh},
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&states).Error; err != nil {
			return fmt.Errorf("insert conversation states: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.FindByParticipants(ctx, a, b)
}

func (r *conversationRepository) ListForUser(ctx context.Context, uid string, opts ListOptions) ([]model.Conversation, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	q := r.withStates(ctx).Where("(participant_low = ? OR participant_high = ?)", uid, uid)
	if opts.ExcludeDeletedFor != "" {
		q = q.Where(`NOT EXISTS (SELECT 1 FROM conversation_states s
			WHERE s.conversation_id = conversations.id AND s.uid = ? AND s.deleted_for_at IS NOT NULL)`,
			opts.ExcludeDeletedFor)
	}
	var list []model.Conversation
	if err := q.Order("last_message_at DESC").Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Hydrate()
	}
	return list, nil
}

func (r *conversationRepository) ListAll(ctx context.Context) ([]model.Conversation, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Conversation
	if err := r.withStates(ctx).Order("last_message_at DESC").Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Hydrate()
	}
	return list, nil
}

func (r *conversationRepository) IncrementUnread(ctx context.Context, id, uid string, delta int) error {
	return r.updateState(ctx, id, uid, map[string]interface{}{
		"unread_count": gorm.Expr("CASE WHEN unread_count + ? < 0 THEN 0 ELSE unread_count + ? END", delta, delta),
	})
}

func (r *conversationRepository) ResetUnread(ctx context.Context, id, uid string, at time.Time) error {
	return r.updateState(ctx, id, uid, map[string]interface{}{
		"unread_count": 0,
		"last_read_at": at,
	})
}

func (r *conversationRepository) SetLastMessage(ctx context.Context, id, messageID string, at time.Time) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	// An older timestamp never overwrites a newer pointer.
	return r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ? AND (last_message_at IS NULL OR last_message_at <= ?)", id, at).
		Updates(map[string]interface{}{
			"last_message_id": messageID,
			"last_message_at": at,
		}).Error
}

func (r *conversationRepository) ArchiveFor(ctx context.Context, id, uid string, at time.Time) error {
	return r.updateState(ctx, id, uid, map[string]interface{}{"archived_at": at})
}

func (r *conversationRepository) UnarchiveFor(ctx context.Context, id, uid string) error {
	return r.updateState(ctx, id, uid, map[string]interface{}{"archived_at": nil})
}

func (r *conversationRepository) SoftDeleteFor(ctx context.Context, id, uid string, at time.Time) error {
	return r.updateState(ctx, id, uid, map[string]interface{}{"deleted_for_at": at})
}

func (r *conversationRepository) RestoreFor(ctx context.Context, id, uid string) error {
	return r.updateState(ctx, id, uid, map[string]interface{}{"deleted_for_at": nil})
}

func (r *conversationRepository) updateState(ctx context.Context, id, uid string, values map[string]interface{}) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.ConversationState{}).
		Where("conversation_id = ? AND uid = ?", id, uid).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
