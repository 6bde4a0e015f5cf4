package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shinyyama/collab-messaging/internal/db"
	"github.com/shinyyama/collab-messaging/internal/events"
	"github.com/shinyyama/collab-messaging/internal/identity"
	"github.com/shinyyama/collab-messaging/internal/model"
	"github.com/shinyyama/collab-messaging/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeIdentity struct {
	users map[string]*identity.Actor
}

func newFakeIdentity(uids ...string) *fakeIdentity {
	f := &fakeIdentity{users: make(map[string]*identity.Actor)}
	for _, uid := range uids {
		f.users[uid] = &identity.Actor{UID: uid, DisplayName: "User " + uid}
	}
	return f
}

func (f *fakeIdentity) Verify(_ context.Context, token string) (*identity.Actor, error) {
	if a, ok := f.users[token]; ok {
		return a, nil
	}
	return nil, identity.ErrInvalidToken
}

func (f *fakeIdentity) Lookup(_ context.Context, uid string) (*identity.Actor, error) {
	if a, ok := f.users[uid]; ok {
		return a, nil
	}
	return nil, identity.ErrUserNotFound
}

type emitted struct {
	Event   string
	Payload any
	Rooms   []string
}

type recorder struct {
	mu     sync.Mutex
	events []emitted
	err    error
}

func (r *recorder) Emit(event string, payload any, rooms ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, emitted{Event: event, Payload: payload, Rooms: rooms})
	return nil
}

// to returns the events named event that were addressed to room.
func (r *recorder) to(event, room string) []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emitted
	for _, e := range r.events {
		if e.Event != event {
			continue
		}
		for _, rm := range e.Rooms {
			if rm == room {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type capturePublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *capturePublisher) Publish(_ context.Context, key string, _ events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// brokenNotifications fails every create.
type brokenNotifications struct {
	repository.NotificationRepository
}

func (brokenNotifications) Create(context.Context, *model.Notification) error {
	return errors.New("notification store offline")
}

// stepClock advances one second per reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	db        *gorm.DB
	store     repository.Store
	ids       *fakeIdentity
	emitter   *recorder
	publisher *capturePublisher
	notifier  NotificationService
	bg        *Background
	// raw returns before side effects finish; svc waits for them after every write.
	raw MessagingService
	svc MessagingService

	notifications repository.NotificationRepository
	publish       events.Publisher
}

type fixtureOption func(*fixture)

func withBrokenNotifications() fixtureOption {
	return func(f *fixture) {
		f.notifications = brokenNotifications{f.store.Notifications()}
	}
}

func withPublisher(p events.Publisher) fixtureOption {
	return func(f *fixture) {
		f.publish = p
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	f := &fixture{
		db:        gdb,
		store:     repository.NewStore(gdb),
		ids:       newFakeIdentity("u1", "u2", "u3"),
		emitter:   &recorder{},
		publisher: &capturePublisher{},
		bg:        &Background{},
	}
	f.notifications = f.store.Notifications()
	f.publish = f.publisher
	for _, opt := range opts {
		opt(f)
	}
	// Registered after the database cleanup, so it runs first.
	t.Cleanup(f.bg.Wait)

	f.notifier, err = NewNotificationService(f.notifications, f.emitter, f.publish, quietLogger())
	require.NoError(t, err)
	clock := &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	f.raw, err = NewMessagingService(f.store, f.ids, f.notifier, f.emitter, f.publish, quietLogger(),
		WithClock(clock.Now), WithBackground(f.bg))
	require.NoError(t, err)
	f.svc = settledService{MessagingService: f.raw, bg: f.bg}
	return f
}

// settledService waits for the side effects of each write before returning.
type settledService struct {
	MessagingService
	bg *Background
}

func (s settledService) SendMessage(ctx context.Context, actor *identity.Actor, in SendInput) (*model.Message, error) {
	defer s.bg.Wait()
	return s.MessagingService.SendMessage(ctx, actor, in)
}

func (s settledService) MarkRead(ctx context.Context, actor *identity.Actor, conversationID string, messageIDs []string) (*ReadResult, error) {
	defer s.bg.Wait()
	return s.MessagingService.MarkRead(ctx, actor, conversationID, messageIDs)
}

// slowPublisher stands in for a broker that takes delay to confirm each publish.
type slowPublisher struct {
	capturePublisher
	delay time.Duration
}

func (p *slowPublisher) Publish(ctx context.Context, key string, env events.Envelope) error {
	time.Sleep(p.delay)
	return p.capturePublisher.Publish(ctx, key, env)
}

func (f *fixture) actor(uid string) *identity.Actor {
	return f.ids.users[uid]
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
