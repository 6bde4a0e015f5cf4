package repository

import (
	"context"
	"time"

	"github.com/shinyyama/collab-messaging/internal/model"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page selects a window of a conversation. The zero value returns every message.
type Page struct {
	Page    int
	Limit   int
	Reverse bool
}

func (p Page) paginated() bool {
	return p.Page > 0 || p.Limit > 0
}

func (p Page) window() (limit, offset int) {
	limit = p.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	page := p.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

type ReadFilter struct {
	ConversationID string
	Receiver       string
	// MessageIDs restricts the update when non-empty.
	MessageIDs []string
}

type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) error
	FindByID(ctx context.Context, id string) (*model.Message, error)
	ListByConversation(ctx context.Context, convID string, p Page) ([]model.Message, error)
	// MarkRead flips unread messages matching f and reports how many changed.
	MarkRead(ctx context.Context, f ReadFilter, at time.Time) (int64, error)
	CountUnread(ctx context.Context, convID, receiver string) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *model.Message) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepository) FindByID(ctx context.Context, id string) (*model.Message, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var msg model.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

func (r *messageRepository) ListByConversation(ctx context.Context, convID string, p Page) ([]model.Message, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	dir := "ASC"
	if p.Reverse {
		dir = "DESC"
	}
	q := r.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("sent_at " + dir).
		Order("created_at " + dir)
	if p.paginated() {
		limit, offset := p.window()
		q = q.Limit(limit).Offset(offset)
	}
	var msgs []model.Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, f ReadFilter, at time.Time) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	q := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("conversation_id = ? AND receiver_uid = ? AND is_read = ?", f.ConversationID, f.Receiver, false)
	if len(f.MessageIDs) > 0 {
		q = q.Where("id IN ?", f.MessageIDs)
	}
	res := q.Updates(map[string]interface{}{
		"is_read": true,
		"read_at": at,
	})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *messageRepository) CountUnread(ctx context.Context, convID, receiver string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("conversation_id = ? AND receiver_uid = ? AND is_read = ?", convID, receiver, false).
		Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}
