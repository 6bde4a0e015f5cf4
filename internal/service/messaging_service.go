package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shinyyama/collab-messaging/internal/apperr"
	"github.com/shinyyama/collab-messaging/internal/events"
	"github.com/shinyyama/collab-messaging/internal/gateway"
	"github.com/shinyyama/collab-messaging/internal/identity"
	"github.com/shinyyama/collab-messaging/internal/model"
	"github.com/shinyyama/collab-messaging/internal/reqctx"
	"github.com/shinyyama/collab-messaging/internal/repository"
	"github.com/sirupsen/logrus"
)

type SendInput struct {
	ReceiverID string
	// ConversationID pins the send to an existing conversation. Empty resolves the
	// conversation from the participant pair, creating it if needed.
	ConversationID string
	Content        string
	Attachment     *model.Attachment
	Type           model.MessageType
}

type ReadResult struct {
	Count int64 `json:"count"`
}

// ConversationSummary is a conversation as seen by one viewer. UnreadCount is the
// viewer's own counter and is nil when the viewer is not a participant.
type ConversationSummary struct {
	ID            string          `json:"id"`
	Participants  []string        `json:"participants"`
	Other         *identity.Actor `json:"otherUser"`
	LastMessage   *model.Message  `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time      `json:"lastMessageAt,omitempty"`
	UnreadCount   *int            `json:"unreadCount,omitempty"`
	Archived      bool            `json:"archived"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type ConversationThread struct {
	Conversation ConversationSummary `json:"conversation"`
	Messages     []model.Message     `json:"messages"`
}

// ConversationUpdate is pushed to a participant's personal room when the conversation's
// list entry changes for them.
type ConversationUpdate struct {
	ConversationID string         `json:"conversationId"`
	LastMessage    *model.Message `json:"lastMessage,omitempty"`
	LastMessageAt  *time.Time     `json:"lastMessageAt,omitempty"`
	UnreadCount    int            `json:"unreadCount"`
}

type ReadReceipt struct {
	ConversationID string   `json:"conversationId"`
	ReadBy         string   `json:"readBy"`
	Count          int64    `json:"count"`
	MessageIDs     []string `json:"messageIds,omitempty"`
}

type MessageNotification struct {
	ConversationID string              `json:"conversationId"`
	Message        *model.Message      `json:"message"`
	Sender         *identity.Actor     `json:"sender"`
	Notification   *model.Notification `json:"notification,omitempty"`
}

type MessagingService interface {
	SendMessage(ctx context.Context, actor *identity.Actor, in SendInput) (*model.Message, error)
	MarkRead(ctx context.Context, actor *identity.Actor, conversationID string, messageIDs []string) (*ReadResult, error)
	ListConversations(ctx context.Context, actor *identity.Actor) ([]ConversationSummary, error)
	GetConversationMessages(ctx context.Context, actor *identity.Actor, conversationID string, p repository.Page) (*ConversationThread, error)
	OpenConversationWith(ctx context.Context, actor *identity.Actor, otherUID string, p repository.Page) (*ConversationThread, error)
	CreateConversation(ctx context.Context, actor *identity.Actor, participantUID string) (*ConversationSummary, error)
	ArchiveConversation(ctx context.Context, actor *identity.Actor, conversationID string) error
	UnarchiveConversation(ctx context.Context, actor *identity.Actor, conversationID string) error
	DeleteConversation(ctx context.Context, actor *identity.Actor, conversationID string) error
	// JoinConversation authorizes a live subscription to the conversation's room.
	JoinConversation(ctx context.Context, actor *identity.Actor, conversationID string) (*model.Conversation, error)
}

type Option func(*messagingService)

// WithClock overrides the clock used for sentAt and read timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *messagingService) { s.now = now }
}

// WithBackground sets the runner for post-commit side effects, so the caller can wait for
// them on shutdown.
func WithBackground(bg *Background) Option {
	return func(s *messagingService) {
		if bg != nil {
			s.bg = bg
		}
	}
}

type messagingService struct {
	store     repository.Store
	ids       identity.Provider
	notifier  NotificationService
	emitter   gateway.Emitter
	publisher events.Publisher
	log       *logrus.Logger
	now       func() time.Time
	bg        *Background
}

func NewMessagingService(
	store repository.Store,
	ids identity.Provider,
	notifier NotificationService,
	emitter gateway.Emitter,
	publisher events.Publisher,
	logger *logrus.Logger,
	opts ...Option,
) (MessagingService, error) {
	switch {
	case store == nil:
		return nil, errors.New("messaging service: store is required")
	case ids == nil:
		return nil, errors.New("messaging service: identity provider is required")
	case notifier == nil:
		return nil, errors.New("messaging service: notification service is required")
	case emitter == nil:
		return nil, errors.New("messaging service: emitter is required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if publisher == nil {
		publisher = events.NewFallback(logger)
	}
	s := &messagingService{
		store:     store,
		ids:       ids,
		notifier:  notifier,
		emitter:   emitter,
		publisher: publisher,
		log:       logger,
		now:       func() time.Time { return time.Now().UTC() },
		bg:        &Background{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *messagingService) SendMessage(ctx context.Context, actor *identity.Actor, in SendInput) (*model.Message, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	receiver := strings.TrimSpace(in.ReceiverID)
	switch {
	case receiver == "":
		return nil, apperr.Validation("receiverId is required")
	case strings.TrimSpace(in.Content) == "" && in.Attachment.Empty():
		return nil, apperr.Validation("content or attachment is required")
	case receiver == actor.UID:
		return nil, apperr.Validation("cannot send a message to yourself")
	}
	if err := s.resolveUser(ctx, receiver, "receiver not found"); err != nil {
		return nil, err
	}

	var (
		cv  *model.Conversation
		err error
	)
	if in.ConversationID != "" {
		cv, err = s.store.Conversations().FindByID(ctx, in.ConversationID)
		if err != nil {
			return nil, storeErr(err, "conversation not found")
		}
		if cv.Other(actor.UID) != receiver {
			return nil, apperr.Forbidden("not a participant of this conversation")
		}
	} else {
		cv, err = s.store.Conversations().Create(ctx, actor.UID, receiver)
		if err != nil {
			return nil, storeErr(err, "conversation not found")
		}
	}

	now := s.now()
	msg := &model.Message{
		ConversationID: cv.ID,
		SenderUID:      actor.UID,
		ReceiverUID:    receiver,
		Content:        in.Content,
		Type:           model.MessageTypeFor(in.Attachment, in.Type),
		SentAt:         now,
	}
	msg.SetAttachment(in.Attachment)

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Messages().Create(ctx, msg); err != nil {
			return err
		}
		if err := tx.Conversations().SetLastMessage(ctx, cv.ID, msg.ID, now); err != nil {
			return err
		}
		if err := tx.Conversations().IncrementUnread(ctx, cv.ID, receiver, 1); err != nil {
			return err
		}
		// New mail brings a soft-deleted conversation back for both sides.
		for _, uid := range []string{receiver, actor.UID} {
			if !cv.IsDeletedFor(uid) {
				continue
			}
			if err := tx.Conversations().RestoreFor(ctx, cv.ID, uid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err, "conversation not found")
	}

	s.bg.Go(func() { s.afterSend(ctx, actor, cv.ID, msg) })
	return msg, nil
}

// afterSend runs the best-effort side effects of a committed send. It runs in the
// background, after SendMessage has returned.
func (s *messagingService) afterSend(ctx context.Context, actor *identity.Actor, convID string, msg *model.Message) {
	ctx, cancel := withShortDeadline(ctx)
	defer cancel()
	fields := logrus.Fields{"conversation": convID, "message": msg.ID}

	n := s.notifier.Notify(ctx, NotifyInput{
		UserUID:        msg.ReceiverUID,
		Type:           model.NotificationMessage,
		Message:        messagePreview(actor, msg),
		FromUID:        actor.UID,
		ConversationID: convID,
	})

	s.emit(ctx, gateway.EventReceiveMessage, msg, gateway.ConversationRoom(convID))
	s.emit(ctx, gateway.EventNewMessageNotification, MessageNotification{
		ConversationID: convID,
		Message:        msg,
		Sender:         actor,
		Notification:   n,
	}, gateway.UserRoom(msg.ReceiverUID))

	if cv, err := s.store.Conversations().FindByID(ctx, convID); err != nil {
		degraded(ctx, s.log, "reload conversation", err, fields)
	} else {
		for _, uid := range cv.Participants() {
			s.emit(ctx, gateway.EventConversationUpdated, ConversationUpdate{
				ConversationID: cv.ID,
				LastMessage:    cv.LastMessage,
				LastMessageAt:  cv.LastMessageAt,
				UnreadCount:    cv.UnreadFor(uid),
			}, gateway.UserRoom(uid))
		}
	}

	s.publish(ctx, events.TypeMessageCreated, map[string]any{
		"message":    msg,
		"senderName": actor.DisplayName,
	}, fields)
}

func (s *messagingService) MarkRead(ctx context.Context, actor *identity.Actor, conversationID string, messageIDs []string) (*ReadResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if conversationID == "" {
		return nil, apperr.Validation("conversationId is required")
	}
	cv, err := s.store.Conversations().FindByID(ctx, conversationID)
	if err != nil {
		return nil, storeErr(err, "conversation not found")
	}
	participant := cv.HasParticipant(actor.UID)
	if !participant && !actor.Admin {
		return nil, apperr.Forbidden("not a participant of this conversation")
	}
	// Messages are addressed to participants only, so an admin outside the pair has
	// nothing to mark.
	if !participant {
		return &ReadResult{}, nil
	}

	ids := compactIDs(messageIDs)
	now := s.now()
	var count int64
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		n, err := tx.Messages().MarkRead(ctx, repository.ReadFilter{
			ConversationID: cv.ID,
			Receiver:       actor.UID,
			MessageIDs:     ids,
		}, now)
		if err != nil {
			return err
		}
		count = n
		if len(ids) == 0 {
			return tx.Conversations().ResetUnread(ctx, cv.ID, actor.UID, now)
		}
		if n > 0 {
			return tx.Conversations().IncrementUnread(ctx, cv.ID, actor.UID, -int(n))
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err, "conversation not found")
	}

	s.bg.Go(func() { s.afterRead(ctx, actor, cv, ids, count) })
	return &ReadResult{Count: count}, nil
}

func (s *messagingService) afterRead(ctx context.Context, actor *identity.Actor, cv *model.Conversation, ids []string, count int64) {
	ctx, cancel := withShortDeadline(ctx)
	defer cancel()
	fields := logrus.Fields{"conversation": cv.ID, "reader": actor.UID}

	if len(ids) == 0 {
		if _, err := s.notifier.MarkByConversation(ctx, actor.UID, cv.ID); err != nil {
			degraded(ctx, s.log, "mark notifications read", err, fields)
		}
	}

	unread := 0
	if fresh, err := s.store.Conversations().FindByID(ctx, cv.ID); err != nil {
		degraded(ctx, s.log, "reload conversation", err, fields)
	} else {
		cv = fresh
		unread = fresh.UnreadFor(actor.UID)
	}
	s.emit(ctx, gateway.EventConversationUpdated, ConversationUpdate{
		ConversationID: cv.ID,
		LastMessage:    cv.LastMessage,
		LastMessageAt:  cv.LastMessageAt,
		UnreadCount:    unread,
	}, gateway.UserRoom(actor.UID))

	if count == 0 {
		return
	}
	receipt := ReadReceipt{
		ConversationID: cv.ID,
		ReadBy:         actor.UID,
		Count:          count,
		MessageIDs:     ids,
	}
	s.emit(ctx, gateway.EventMessagesRead, receipt, gateway.ConversationRoom(cv.ID), gateway.UserRoom(cv.Other(actor.UID)))
	s.publish(ctx, events.TypeMessagesRead, receipt, fields)
}

func (s *messagingService) ListConversations(ctx context.Context, actor *identity.Actor) ([]ConversationSummary, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var (
		list []model.Conversation
		err  error
	)
	if actor.Admin {
		list, err = s.store.Conversations().ListAll(ctx)
	} else {
		list, err = s.store.Conversations().ListForUser(ctx, actor.UID, repository.ListOptions{ExcludeDeletedFor: actor.UID})
	}
	if err != nil {
		return nil, storeErr(err, "conversations not found")
	}

	profiles := make(map[string]*identity.Actor)
	out := make([]ConversationSummary, 0, len(list))
	for i := range list {
		out = append(out, s.summarize(ctx, actor, &list[i], profiles))
	}
	return out, nil
}

func (s *messagingService) GetConversationMessages(ctx context.Context, actor *identity.Actor, conversationID string, p repository.Page) (*ConversationThread, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	cv, err := s.store.Conversations().FindByID(ctx, conversationID)
	if err != nil {
		return nil, storeErr(err, "conversation not found")
	}
	// Non-participants learn nothing, not even that the conversation exists.
	if !cv.HasParticipant(actor.UID) && !actor.Admin {
		return nil, apperr.NotFound("conversation not found")
	}
	return s.thread(ctx, actor, cv, p)
}

func (s *messagingService) OpenConversationWith(ctx context.Context, actor *identity.Actor, otherUID string, p repository.Page) (*ConversationThread, error) {
	cv, err := s.resolvePeer(ctx, actor, otherUID)
	if err != nil {
		return nil, err
	}
	return s.thread(ctx, actor, cv, p)
}

func (s *messagingService) CreateConversation(ctx context.Context, actor *identity.Actor, participantUID string) (*ConversationSummary, error) {
	cv, err := s.resolvePeer(ctx, actor, participantUID)
	if err != nil {
		return nil, err
	}
	sum := s.summarize(ctx, actor, cv, nil)
	return &sum, nil
}

func (s *messagingService) ArchiveConversation(ctx context.Context, actor *identity.Actor, conversationID string) error {
	return s.updateOwnState(ctx, actor, conversationID, func(repo repository.ConversationRepository, id, uid string) error {
		return repo.ArchiveFor(ctx, id, uid, s.now())
	})
}

func (s *messagingService) UnarchiveConversation(ctx context.Context, actor *identity.Actor, conversationID string) error {
	return s.updateOwnState(ctx, actor, conversationID, func(repo repository.ConversationRepository, id, uid string) error {
		return repo.UnarchiveFor(ctx, id, uid)
	})
}

func (s *messagingService) DeleteConversation(ctx context.Context, actor *identity.Actor, conversationID string) error {
	return s.updateOwnState(ctx, actor, conversationID, func(repo repository.ConversationRepository, id, uid string) error {
		return repo.SoftDeleteFor(ctx, id, uid, s.now())
	})
}

func (s *messagingService) JoinConversation(ctx context.Context, actor *identity.Actor, conversationID string) (*model.Conversation, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if conversationID == "" {
		return nil, apperr.Validation("conversationId is required")
	}
	cv, err := s.store.Conversations().FindByID(ctx, conversationID)
	if err != nil {
		return nil, storeErr(err, "conversation not found")
	}
	if !cv.HasParticipant(actor.UID) && !actor.Admin {
		return nil, apperr.Forbidden("not a participant of this conversation")
	}
	return cv, nil
}

// updateOwnState applies a per-participant soft-state change for the actor.
func (s *messagingService) updateOwnState(ctx context.Context, actor *identity.Actor, conversationID string, fn func(repo repository.ConversationRepository, id, uid string) error) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	cv, err := s.store.Conversations().FindByID(ctx, conversationID)
	if err != nil {
		return storeErr(err, "conversation not found")
	}
	if !cv.HasParticipant(actor.UID) {
		return apperr.Forbidden("not a participant of this conversation")
	}
	return storeErr(fn(s.store.Conversations(), cv.ID, actor.UID), "conversation not found")
}

func (s *messagingService) resolvePeer(ctx context.Context, actor *identity.Actor, otherUID string) (*model.Conversation, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	otherUID = strings.TrimSpace(otherUID)
	switch {
	case otherUID == "":
		return nil, apperr.Validation("participantId is required")
	case otherUID == actor.UID:
		return nil, apperr.Validation("cannot start a conversation with yourself")
	}
	if err := s.resolveUser(ctx, otherUID, "user not found"); err != nil {
		return nil, err
	}
	cv, err := s.store.Conversations().Create(ctx, actor.UID, otherUID)
	if err != nil {
		return nil, storeErr(err, "conversation not found")
	}
	return cv, nil
}

func (s *messagingService) thread(ctx context.Context, actor *identity.Actor, cv *model.Conversation, p repository.Page) (*ConversationThread, error) {
	msgs, err := s.store.Messages().ListByConversation(ctx, cv.ID, p)
	if err != nil {
		return nil, storeErr(err, "conversation not found")
	}
	return &ConversationThread{
		Conversation: s.summarize(ctx, actor, cv, nil),
		Messages:     msgs,
	}, nil
}

// summarize renders cv from the actor's side. Admins outside the pair see it from the
// first participant's side, without an unread count.
func (s *messagingService) summarize(ctx context.Context, actor *identity.Actor, cv *model.Conversation, profiles map[string]*identity.Actor) ConversationSummary {
	viewer := actor.UID
	participant := cv.HasParticipant(viewer)
	if !participant {
		viewer = cv.ParticipantLow
	}
	sum := ConversationSummary{
		ID:            cv.ID,
		Participants:  cv.Participants(),
		Other:         s.publicProfile(ctx, cv.Other(viewer), profiles),
		LastMessage:   cv.LastMessage,
		LastMessageAt: cv.LastMessageAt,
		Archived:      cv.IsArchivedBy(viewer),
		CreatedAt:     cv.CreatedAt,
	}
	if participant {
		unread := cv.UnreadFor(viewer)
		sum.UnreadCount = &unread
	}
	return sum
}

// publicProfile looks up uid's public identity, falling back to a bare id when the
// identity provider cannot answer.
func (s *messagingService) publicProfile(ctx context.Context, uid string, cache map[string]*identity.Actor) *identity.Actor {
	if p, ok := cache[uid]; ok {
		return p
	}
	p, err := s.ids.Lookup(ctx, uid)
	if err != nil {
		if !errors.Is(err, identity.ErrUserNotFound) {
			degraded(ctx, s.log, "lookup profile", err, logrus.Fields{"uid": uid})
		}
		p = &identity.Actor{UID: uid}
	}
	if cache != nil {
		cache[uid] = p
	}
	return p
}

func (s *messagingService) resolveUser(ctx context.Context, uid, notFoundMsg string) error {
	if _, err := s.ids.Lookup(ctx, uid); err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return apperr.NotFound(notFoundMsg)
		}
		return apperr.Wrap(apperr.KindInternal, "identity lookup failed", err)
	}
	return nil
}

func (s *messagingService) emit(ctx context.Context, event string, payload any, rooms ...string) {
	if err := s.emitter.Emit(event, payload, rooms...); err != nil {
		degraded(ctx, s.log, "emit "+event, err, logrus.Fields{"rooms": rooms})
	}
}

func (s *messagingService) publish(ctx context.Context, key string, data any, fields logrus.Fields) {
	env := events.NewEnvelope(key, reqctx.RID(ctx), data)
	if err := s.publisher.Publish(ctx, key, env); err != nil {
		degraded(ctx, s.log, "publish "+key, err, fields)
	}
}

func requireActor(actor *identity.Actor) error {
	if actor == nil || actor.UID == "" {
		return apperr.Unauthenticated("authentication required")
	}
	return nil
}

const previewRunes = 80

func messagePreview(sender *identity.Actor, msg *model.Message) string {
	name := sender.DisplayName
	if name == "" {
		name = "Someone"
	}
	switch msg.Type {
	case model.MessageTypeImage:
		return fmt.Sprintf("%s sent you an image", name)
	case model.MessageTypeFile:
		return fmt.Sprintf("%s sent you a file", name)
	}
	text := strings.TrimSpace(msg.Content)
	if utf8.RuneCountInString(text) > previewRunes {
		text = string([]rune(text)[:previewRunes]) + "…"
	}
	return fmt.Sprintf("New message from %s: %s", name, text)
}
