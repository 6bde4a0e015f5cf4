package repository

import (
	"context"

	"github.com/shinyyama/collab-messaging/internal/model"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, userUID string, ids []string) (int64, error)
	MarkAllRead(ctx context.Context, userUID string) (int64, error)
	MarkByConversation(ctx context.Context, userUID, convID string) (int64, error)
	CountUnread(ctx context.Context, userUID string) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepository) ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Notification
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	q := r.db.WithContext(ctx).Model(&model.Notification{}).Where("user_uid = ?", userUID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if err := q.Order("created_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userUID string, ids []string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return r.markRead(r.unread(ctx, userUID).Where("id IN ?", ids))
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userUID string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	return r.markRead(r.unread(ctx, userUID))
}

func (r *notificationRepository) MarkByConversation(ctx context.Context, userUID, convID string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	return r.markRead(r.unread(ctx, userUID).Where("conversation_id = ?", convID))
}

func (r *notificationRepository) CountUnread(ctx context.Context, userUID string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	var cnt int64
	if err := r.unread(ctx, userUID).Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}

func (r *notificationRepository) unread(ctx context.Context, userUID string) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_uid = ? AND is_read = ?", userUID, false)
}

func (r *notificationRepository) markRead(q *gorm.DB) (int64, error) {
	res := q.Updates(map[string]interface{}{
		"is_read": true,
		"read_at": r.db.NowFunc(),
	})
	return res.RowsAffected, res.Error
}
