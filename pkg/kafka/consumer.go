// Package kafka wraps segmentio/kafka-go for the two event streams of the
// search platform: index requests consumed by the indexer and snapshot
// announcements consumed by search replicas. Values travel as JSON.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/config"
	"github.com/segmentio/kafka-go"
)

// MessageHandler processes one message. A returned error makes the consumer
// hand the same message over again after a backoff; later messages wait and
// the offset is not committed until the handler succeeds.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

const (
	initialRedeliveryDelay = 500 * time.Millisecond
	maxRedeliveryDelay     = 30 * time.Second
)

type Consumer struct {
	reader        *kafka.Reader
	logger        *slog.Logger
	handler       MessageHandler
	redeliveryMin time.Duration
	redeliveryMax time.Duration
}

// NewConsumer joins cfg.ConsumerGroup on topic. An empty group id makes the
// consumer read as an independent member, which replicas use so every
// replica sees every announcement.
func NewConsumer(cfg config.KafkaConfig, topic, groupID string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    1e6,
		StartOffset: kafka.LastOffset,
	})
	return &Consumer{
		reader:  r,
		logger:        slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler:       handler,
		redeliveryMin: initialRedeliveryDelay,
		redeliveryMax: maxRedeliveryDelay,
	}
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)
		if err := c.process(ctx, msg); err != nil {
			c.logger.Info("consumer stopping with message unprocessed", "offset", msg.Offset, "reason", err)
			return nil
		}
		if c.reader.Config().GroupID == "" {
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message", "offset", msg.Offset, "error", err)
		}
	}
}

// process runs the handler on msg until it succeeds. It only gives up when
// ctx is done, in which case msg stays uncommitted.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	delay := c.redeliveryMin
	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, msg.Key, msg.Value)
		if err == nil {
			return nil
		}
		c.logger.Error("failed to process message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"attempt", attempt,
			"next_delay", delay,
			"error", err,
		)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		delay = min(delay*2, c.redeliveryMax)
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
