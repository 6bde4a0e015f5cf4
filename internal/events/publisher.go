package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher hands domain events to downstream consumers (e-mail, push). Delivery is
// best-effort from the messaging core's point of view.
type Publisher interface {
	Publish(ctx context.Context, key string, msg Envelope) error
	Close() error
}

type ConnectionOptions struct {
	URL           string
	RetryAttempts int
	Delay         time.Duration
	Logger        *logrus.Logger
}

const maxDelay = 60 * time.Second

// DialWithRetry tries to connect to RabbitMQ with exponential backoff.
// It respects context cancellation for graceful shutdown.
func DialWithRetry(ctx context.Context, cfg ConnectionOptions) (*amqp091.Connection, error) {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	var lastErr error
	for i := 1; i <= cfg.RetryAttempts; i++ {
		conn, err := amqp091.Dial(cfg.URL)
		if err == nil {
			if i > 1 {
				cfg.Logger.WithField("attempt", i).Info("rabbit connected")
			}
			return conn, nil
		}
		lastErr = err
		if i == cfg.RetryAttempts {
			break
		}

		sleep := cfg.Delay * time.Duration(math.Pow(2, float64(i-1)))
		if sleep > maxDelay {
			sleep = maxDelay
		}
		cfg.Logger.WithFields(logrus.Fields{
			"attempt": i,
			"sleep":   sleep,
		}).WithError(err).Warn("rabbit dial failed")

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.New("dial cancelled: " + ctx.Err().Error())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", cfg.RetryAttempts, lastErr)
}

type rmqPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      *logrus.Logger
}

// NewRabbitPublisher declares a durable topic exchange and publishes persistent JSON
// messages to it.
func NewRabbitPublisher(ctx context.Context, opts ConnectionOptions, exchange string) (Publisher, error) {
	conn, err := DialWithRetry(ctx, opts)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, err
	}
	return &rmqPublisher{conn: conn, exchange: exchange, log: opts.Logger}, nil
}

func (r *rmqPublisher) Publish(ctx context.Context, key string, msg Envelope) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	msgID := msg.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	cid := msgID
	if msg.Meta.CorrelationID != nil {
		cid = *msg.Meta.CorrelationID
	}

	err = publishConfirmed(ctx, ch, r.exchange, key, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     msgID,
		CorrelationId: cid,
		Timestamp:     time.Now(),
		Type:          msg.Meta.Type,
		Body:          body,
	})
	if err == nil {
		r.log.WithFields(logrus.Fields{"key": key, "exchange": r.exchange}).Debug("published")
	}
	return err
}

// confirmChannel is the part of *amqp091.Channel used to publish with broker confirms.
type confirmChannel interface {
	Confirm(noWait bool) error
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) (*amqp091.DeferredConfirmation, error)
}

// publishConfirmed puts ch in confirm mode, publishes p and waits for the broker's ack.
func publishConfirmed(ctx context.Context, ch confirmChannel, exchange, key string, p amqp091.Publishing) error {
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("enable confirms: %w", err)
	}
	conf, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, p)
	if err != nil {
		return err
	}
	if conf == nil {
		return errors.New("publish: channel is not in confirm mode")
	}
	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return fmt.Errorf("publish %s: nacked by broker", key)
	}
	return nil
}

func (r *rmqPublisher) Close() error {
	return r.conn.Close()
}

// FallbackPublisher is used when no broker is configured. It only logs.
type FallbackPublisher struct {
	log *logrus.Logger
}

func NewFallback(logger *logrus.Logger) Publisher {
	return &FallbackPublisher{log: logger}
}

func (p *FallbackPublisher) Publish(ctx context.Context, key string, msg Envelope) error {
	p.log.WithFields(logrus.Fields{"key": key, "event_id": msg.Meta.ID}).Debug("fallback publisher: skipped publish")
	return nil
}

func (p *FallbackPublisher) Close() error {
	return nil
}
