package producer

import (
	"context"
	"encoding/json"
	"fmt"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/imgbatch/internal/config"
	"github.com/aliskhannn/imgbatch/internal/model"
)

// Producer publishes usage reports to Kafka.
type Producer struct {
	Client   *wbfkafka.Producer
	strategy retry.Strategy
	cfg      *config.Kafka
}

// New creates a new Producer.
// - cfg: Kafka configuration struct
// - s: retry strategy
func New(
	cfg *config.Kafka,
	s retry.Strategy,
) *Producer {
	producer := wbfkafka.NewProducer(cfg.Brokers, cfg.Topic)

	return &Producer{
		Client:   producer,
		cfg:      cfg,
		strategy: s,
	}
}

// Produce serializes the report to JSON and sends it to Kafka.
// The actor ID is used as the message key so one actor's reports stay ordered.
func (p *Producer) Produce(ctx context.Context, report model.UsageReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal usage report: %w", err)
	}

	key := []byte(report.ActorID)

	if err = p.Client.SendWithRetry(ctx, p.strategy, key, data); err != nil {
		return fmt.Errorf("failed to send usage report: %w", err)
	}

	return nil
}
