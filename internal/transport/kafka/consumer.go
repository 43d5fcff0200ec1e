// Package kafka consumes payment notifications from a Kafka topic and feeds
// them to settlement.
package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/cimillas/flashsale/internal/app"
	"github.com/cimillas/flashsale/internal/domain"
)

// IdempotencyHeader overrides the message key as the idempotency key.
const IdempotencyHeader = "Idempotency-Key"

const (
	defaultRetryBackoff = 200 * time.Millisecond
	defaultMaxBackoff   = 5 * time.Second
	fetchErrorPause     = time.Second
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type PaymentSettler interface {
	Settle(ctx context.Context, key string, payload []byte) (app.SettleResult, error)
}

// NewReader returns a consumer-group reader that commits explicitly.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
}

type Consumer struct {
	reader     MessageReader
	settler    PaymentSettler
	logger     *zap.Logger
	backoff    time.Duration
	maxBackoff time.Duration
}

type Option func(*Consumer)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetryBackoff sets the first and the largest pause between retries of a
// settlement that has no definite answer yet.
func WithRetryBackoff(initial, ceiling time.Duration) Option {
	return func(c *Consumer) {
		if initial > 0 {
			c.backoff = initial
		}
		if ceiling >= c.backoff {
			c.maxBackoff = ceiling
		}
	}
}

func NewConsumer(reader MessageReader, settler PaymentSettler, opts ...Option) *Consumer {
	c := &Consumer{
		reader:     reader,
		settler:    settler,
		logger:     zap.NewNop(),
		backoff:    defaultRetryBackoff,
		maxBackoff: defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes until ctx is cancelled. A message's offset is committed only
// once settlement has produced a definite answer for it.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("fetch payment notification failed", zap.Error(err))
			if !sleep(ctx, fetchErrorPause) {
				return nil
			}
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			// Only cancellation ends up here; the offset stays uncommitted.
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("commit payment notification failed",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
	}
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// handle settles msg until it gets a definite answer, retrying every other
// failure with backoff. It returns an error only when ctx ends first.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	key := idempotencyKey(msg)
	fields := []zap.Field{
		zap.String("idempotency_key", key),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	}

	backoff := c.backoff
	for attempt := 1; ; attempt++ {
		res, err := c.settler.Settle(ctx, key, msg.Value)
		switch {
		case err == nil:
			c.logger.Info("payment notification settled",
				append(fields, zap.String("status", string(res.Response.Status)), zap.Bool("replayed", res.Replayed))...)
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case definite(res, err):
			c.logger.Warn("payment notification rejected",
				append(fields, zap.String("status", string(res.Response.Status)), zap.Error(err))...)
			return nil
		default:
			log := c.logger.Error
			if domain.IsTransient(err) {
				log = c.logger.Warn
			}
			log("payment notification settlement failed",
				append(fields, zap.Int("attempt", attempt), zap.Bool("transient", domain.IsTransient(err)), zap.Error(err))...)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, c.maxBackoff)
		}
	}
}

// definite reports whether a failed settlement will fail the same way on
// every retry: a stored rejection, or a payload or key that can never settle.
func definite(res app.SettleResult, err error) bool {
	if len(res.Body) > 0 {
		return true
	}
	return errors.Is(err, domain.ErrInvalidPayload) ||
		errors.Is(err, domain.ErrIdempotencyKeyRequired) ||
		errors.Is(err, domain.ErrIdempotencyConflict)
}

func idempotencyKey(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == IdempotencyHeader && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return string(msg.Key)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
