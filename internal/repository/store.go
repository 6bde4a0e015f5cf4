package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrDBNotReady = errors.New("database not initialized")
	ErrNotFound   = errors.New("record not found")
)

// Store groups the messaging repositories so that a service can run several writes as
// one unit of work.
type Store interface {
	Conversations() ConversationRepository
	Messages() MessageRepository
	Notifications() NotificationRepository
	// Transaction runs fn with repositories bound to a single database transaction.
	// fn must only use the Store it is handed.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type store struct {
	db            *gorm.DB
	conversations ConversationRepository
	messages      MessageRepository
	notifications NotificationRepository
}

func NewStore(db *gorm.DB) Store {
	return &store{
		db:            db,
		conversations: NewConversationRepository(db),
		messages:      NewMessageRepository(db),
		notifications: NewNotificationRepository(db),
	}
}

func (s *store) Conversations() ConversationRepository { return s.conversations }

func (s *store) Messages() MessageRepository { return s.messages }

func (s *store) Notifications() NotificationRepository { return s.notifications }

func (s *store) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if s.db == nil {
		return ErrDBNotReady
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
