package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shinyyama/collab-messaging/internal/config"
	"github.com/shinyyama/collab-messaging/internal/db"
	"github.com/shinyyama/collab-messaging/internal/events"
	"github.com/shinyyama/collab-messaging/internal/gateway"
	"github.com/shinyyama/collab-messaging/internal/identity"
	"github.com/shinyyama/collab-messaging/internal/repository"
	"github.com/shinyyama/collab-messaging/internal/server"
	"github.com/shinyyama/collab-messaging/internal/service"
	"github.com/sirupsen/logrus"
)

// Set by -ldflags at build time.
var (
	gitSHA    = "dev"
	buildTime = ""
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config load error")
	}
	log := newLogger(cfg)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(conn); err != nil {
		return err
	}
	store := repository.NewStore(conn)

	ids, err := identity.NewFirebaseProvider(ctx, cfg.FirebaseProjectID)
	if err != nil {
		return err
	}

	publisher := events.NewFallback(log)
	if cfg.RabbitMQURL != "" {
		p, err := events.NewRabbitPublisher(ctx, events.ConnectionOptions{
			URL:           cfg.RabbitMQURL,
			RetryAttempts: 5,
			Delay:         time.Second,
			Logger:        log,
		}, cfg.EventsExchange)
		if err != nil {
			log.WithError(err).Warn("rabbitmq unavailable; domain events will only be logged")
		} else {
			publisher = p
		}
	}
	defer publisher.Close()

	hub := gateway.New(ids, log, gateway.Options{
		SendBuffer:  cfg.WSSendBuffer,
		CheckOrigin: server.CheckOrigin(cfg.AllowedOriginSuffix),
	})
	go hub.Run(ctx)

	notifier, err := service.NewNotificationService(store.Notifications(), hub, publisher, log)
	if err != nil {
		return err
	}
	bg := &service.Background{}
	messaging, err := service.NewMessagingService(store, ids, notifier, hub, publisher, log, service.WithBackground(bg))
	if err != nil {
		return err
	}

	srv := server.New(server.Deps{
		Messaging:     messaging,
		Notifications: notifier,
		Identity:      ids,
		Hub:           hub,
		Logger:        log,
		OriginSuffix:  cfg.AllowedOriginSuffix,
		SHA:           gitSHA,
		BuildTime:     buildTime,
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("starting server")
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	_ = hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	// Pending side effects still publish before the broker connection closes.
	bg.Wait()
	return err
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.LogFormat == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
