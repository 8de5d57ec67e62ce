package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/imgbatch/internal/config"
)

// handler defines the interface for handling usage messages.
type handler interface {
	Handle(ctx context.Context, msg kafka.Message) error
}

// Consumer reads usage reports from Kafka and passes them to the handler.
type Consumer struct {
	Client   *wbfkafka.Consumer
	handler  handler
	cfg      *config.Kafka
	strategy retry.Strategy
	backoff  time.Duration
}

// New creates a new Consumer.
// - cfg: Kafka configuration struct
// - s: retry strategy
// - h: handler for usage messages
func New(
	cfg *config.Kafka,
	s retry.Strategy,
	h handler,
) *Consumer {
	consumer := wbfkafka.NewConsumer(cfg.Brokers, cfg.Topic, cfg.GroupID)

	return &Consumer{
		Client:   consumer,
		handler:  h,
		cfg:      cfg,
		strategy: s,
		backoff:  500 * time.Millisecond,
	}
}

// Consume continuously fetches messages from Kafka, processes them using the handler,
// and commits offsets after processing. It stops gracefully on context cancellation.
//
// A message the handler rejects is logged and committed: a malformed report
// would otherwise block the partition forever.
func (c *Consumer) Consume(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	zlog.Logger.Info().
		Str("topic", c.cfg.Topic).
		Msg("starting consumer")

	for {
		// Exit if context is canceled (graceful shutdown).
		if ctx.Err() != nil {
			zlog.Logger.Info().Msg("shutdown signal received, stopping consumer")
			return
		}

		// Fetch a message from Kafka with retries.
		var msg kafka.Message
		err := retry.Do(func() error {
			var fetchErr error
			msg, fetchErr = c.Client.Fetch(ctx)
			return fetchErr
		}, c.strategy)

		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			zlog.Logger.Err(err).Msg("failed to fetch message")
			time.Sleep(c.backoff)
			continue
		}

		if err := c.handler.Handle(ctx, msg); err != nil {
			zlog.Logger.Err(err).
				Str("message", string(msg.Value)).
				Msg("failed to handle usage report")
		}

		// Commit the message with retries.
		err = retry.Do(func() error {
			return c.Client.Commit(ctx, msg)
		}, c.strategy)
		if err != nil {
			zlog.Logger.Err(err).Msg("failed to commit message after retries")
			continue
		}

		zlog.Logger.Debug().
			Int64("offset", msg.Offset).
			Msg("message handled")
	}
}
