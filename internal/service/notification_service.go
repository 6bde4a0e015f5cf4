package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shinyyama/collab-messaging/internal/apperr"
	"github.com/shinyyama/collab-messaging/internal/events"
	"github.com/shinyyama/collab-messaging/internal/gateway"
	"github.com/shinyyama/collab-messaging/internal/model"
	"github.com/shinyyama/collab-messaging/internal/reqctx"
	"github.com/shinyyama/collab-messaging/internal/repository"
	"github.com/sirupsen/logrus"
)

const sideEffectTimeout = 2 * time.Second

type NotifyInput struct {
	UserUID        string
	Type           model.NotificationType
	Message        string
	FromUID        string
	ConversationID string
}

type NotificationService interface {
	// Notify is best-effort: failures are logged and reported as a nil notification.
	Notify(ctx context.Context, in NotifyInput) *model.Notification
	List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error)
	MarkRead(ctx context.Context, userUID string, ids []string) (int64, error)
	MarkAllRead(ctx context.Context, userUID string) (int64, error)
	MarkByConversation(ctx context.Context, userUID, convID string) (int64, error)
}

type notificationService struct {
	repo      repository.NotificationRepository
	emitter   gateway.Emitter
	publisher events.Publisher
	log       *logrus.Logger
}

func NewNotificationService(repo repository.NotificationRepository, emitter gateway.Emitter, publisher events.Publisher, logger *logrus.Logger) (NotificationService, error) {
	if repo == nil || emitter == nil {
		return nil, errors.New("notification service: repository and emitter are required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if publisher == nil {
		publisher = events.NewFallback(logger)
	}
	return &notificationService{repo: repo, emitter: emitter, publisher: publisher, log: logger}, nil
}

func (s *notificationService) Notify(ctx context.Context, in NotifyInput) *model.Notification {
	fields := logrus.Fields{"user": in.UserUID, "type": in.Type}
	if in.UserUID == "" || !in.Type.Valid() {
		degraded(ctx, s.log, "create notification", apperr.Validation("recipient and a known type are required"), fields)
		return nil
	}
	ctx, cancel := withShortDeadline(ctx)
	defer cancel()

	n := &model.Notification{
		UserUID:        in.UserUID,
		Type:           in.Type,
		Message:        in.Message,
		FromUID:        strPtrOrNil(in.FromUID),
		ConversationID: strPtrOrNil(in.ConversationID),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		degraded(ctx, s.log, "create notification", err, fields)
		return nil
	}

	fields["notification"] = n.ID
	if err := s.emitter.Emit(gateway.EventNewNotification, map[string]any{"notification": n}, gateway.UserRoom(n.UserUID)); err != nil {
		degraded(ctx, s.log, "emit notification", err, fields)
	}
	env := events.NewEnvelope(events.TypeNotificationCreated, reqctx.RID(ctx), n)
	if err := s.publisher.Publish(ctx, events.TypeNotificationCreated, env); err != nil {
		degraded(ctx, s.log, "publish notification", err, fields)
	}
	return n
}

func (s *notificationService) List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error) {
	if userUID == "" {
		return nil, 0, apperr.Unauthenticated("authentication required")
	}
	list, err := s.repo.ListByUser(ctx, userUID, unreadOnly, limit)
	if err != nil {
		return nil, 0, storeErr(err, "notifications not found")
	}
	cnt, err := s.repo.CountUnread(ctx, userUID)
	if err != nil {
		return list, 0, storeErr(err, "notifications not found")
	}
	return list, cnt, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userUID string, ids []string) (int64, error) {
	if userUID == "" {
		return 0, apperr.Unauthenticated("authentication required")
	}
	if len(ids) == 0 {
		return s.MarkAllRead(ctx, userUID)
	}
	ids = compactIDs(ids)
	if len(ids) == 0 {
		return 0, apperr.Validation("ids must not be blank")
	}
	n, err := s.repo.MarkRead(ctx, userUID, ids)
	return n, storeErr(err, "notifications not found")
}

func (s *notificationService) MarkAllRead(ctx context.Context, userUID string) (int64, error) {
	if userUID == "" {
		return 0, apperr.Unauthenticated("authentication required")
	}
	n, err := s.repo.MarkAllRead(ctx, userUID)
	return n, storeErr(err, "notifications not found")
}

func (s *notificationService) MarkByConversation(ctx context.Context, userUID, convID string) (int64, error) {
	if userUID == "" || convID == "" {
		return 0, nil
	}
	n, err := s.repo.MarkByConversation(ctx, userUID, convID)
	return n, storeErr(err, "notifications not found")
}

// withShortDeadline detaches ctx from the caller's cancellation and bounds it, so side
// effects of a committed write still run when the client has gone away.
func withShortDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// compactIDs trims ids and drops blanks and duplicates, keeping order.
func compactIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
