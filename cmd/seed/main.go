package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shinyyama/collab-messaging/internal/config"
	"github.com/shinyyama/collab-messaging/internal/db"
	"github.com/shinyyama/collab-messaging/internal/model"
	"github.com/shinyyama/collab-messaging/internal/repository"
)

// seedThread is a scripted exchange; even lines are sent by the first user.
type seedThread struct {
	Lines []string
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run() error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	store := repository.NewStore(gdb)

	uids := seedUIDs()
	if len(uids) < 2 {
		return fmt.Errorf("SEED_UIDS needs at least two comma separated user ids")
	}

	canSeed, err := shouldSeed(ctx, store, uids[0])
	if err != nil {
		return err
	}
	if !canSeed {
		log.Printf("conversations already exist; skipping seed (set FORCE_SEED=true to override)")
		return nil
	}

	threads := buildSeedThreads()
	start := time.Now().UTC().Add(-time.Duration(len(threads)*len(uids)) * time.Hour)
	seeded := 0
	for i := 1; i < len(uids); i++ {
		th := threads[(i-1)%len(threads)]
		if err := seedConversation(ctx, store, uids[0], uids[i], th, start.Add(time.Duration(i)*time.Hour)); err != nil {
			return err
		}
		seeded++
	}

	log.Printf("seeded %d conversations", seeded)
	return nil
}

func seedConversation(ctx context.Context, store repository.Store, a, b string, th seedThread, at time.Time) error {
	cv, err := store.Conversations().Create(ctx, a, b)
	if err != nil {
		return fmt.Errorf("create conversation %s/%s: %w", a, b, err)
	}
	return store.Transaction(ctx, func(tx repository.Store) error {
		for i, line := range th.Lines {
			from, to := a, b
			if i%2 == 1 {
				from, to = b, a
			}
			sentAt := at.Add(time.Duration(i) * time.Minute)
			msg := &model.Message{
				ConversationID: cv.ID,
				SenderUID:      from,
				ReceiverUID:    to,
				Content:        line,
				Type:           model.MessageTypeFor(nil, model.MessageTypeText),
				SentAt:         sentAt,
			}
			if err := tx.Messages().Create(ctx, msg); err != nil {
				return fmt.Errorf("insert message: %w", err)
			}
			if err := tx.Conversations().SetLastMessage(ctx, cv.ID, msg.ID, sentAt); err != nil {
				return fmt.Errorf("set last message: %w", err)
			}
			if err := tx.Conversations().IncrementUnread(ctx, cv.ID, to, 1); err != nil {
				return fmt.Errorf("increment unread: %w", err)
			}
		}
		return nil
	})
}

func buildSeedThreads() []seedThread {
	return []seedThread{
		{Lines: []string{
			"Hi! We loved your last campaign reel. Are you open to a collaboration this spring?",
			"Thanks for reaching out! Yes, I have availability from April.",
			"Great. Could you share your rate card for two posts and one story?",
		}},
		{Lines: []string{
			"Quick question about the product brief you sent.",
			"Sure, what do you need?",
			"Is the launch date fixed or can we shift by a week?",
			"It can move. I'll confirm with the team tomorrow.",
		}},
		{Lines: []string{
			"Your quote was accepted, congratulations!",
			"Wonderful, thank you. I'll send the draft by Friday.",
		}},
	}
}

func seedUIDs() []string {
	var out []string
	for _, s := range strings.Split(os.Getenv("SEED_UIDS"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func shouldSeed(ctx context.Context, store repository.Store, uid string) (bool, error) {
	list, err := store.Conversations().ListForUser(ctx, uid, repository.ListOptions{})
	if err != nil {
		return false, fmt.Errorf("list conversations: %w", err)
	}
	if len(list) == 0 {
		return true, nil
	}
	force := os.Getenv("FORCE_SEED")
	return strings.EqualFold(force, "true"), nil
}
