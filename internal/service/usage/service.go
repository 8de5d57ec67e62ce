package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/imgbatch/internal/model"
)

var ErrInvalidReport = errors.New("invalid usage report")

// producer defines the interface for publishing usage events to a message broker (e.g., Kafka).
type producer interface {
	Produce(ctx context.Context, report model.UsageReport) error
}

// repository defines the interface for storing collected reports.
type repository interface {
	SaveReport(ctx context.Context, report model.UsageReport) error
}

// observer receives pipeline counters.
type observer interface {
	UsageEvent(stage string)
}

// Service collects usage reports. Reports are accepted over HTTP, queued to
// Kafka and written to the database by the consumer.
type Service struct {
	producer producer
	repo     repository
	observer observer
	now      func() time.Time
}

// NewService creates a new Service.
func NewService(p producer, repo repository, obs observer) *Service {
	return &Service{producer: p, repo: repo, observer: obs, now: time.Now}
}

// Publish validates report, stamps it with an ID and queues it for storage.
func (s *Service) Publish(ctx context.Context, report model.UsageReport) (string, error) {
	if report.ItemCount < 0 || report.TotalBytes < 0 || report.TotalDurationMs < 0 {
		return "", ErrInvalidReport
	}
	if report.ActorID == "" && !report.Anonymous {
		return "", fmt.Errorf("%w: actor id is required", ErrInvalidReport)
	}

	report.ID = uuid.NewString()
	if report.Timestamp == 0 {
		report.Timestamp = s.now().UnixMilli()
	}

	if err := s.producer.Produce(ctx, report); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}

	if s.observer != nil {
		s.observer.UsageEvent("published")
	}

	return report.ID, nil
}

// Store persists a report delivered by the queue.
func (s *Service) Store(ctx context.Context, report model.UsageReport) error {
	if _, err := uuid.Parse(report.ID); err != nil {
		return fmt.Errorf("%w: bad id %q", ErrInvalidReport, report.ID)
	}

	if err := s.repo.SaveReport(ctx, report); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if s.observer != nil {
		s.observer.UsageEvent("stored")
	}

	zlog.Logger.Debug().
		Str("id", report.ID).
		Str("actor_id", report.ActorID).
		Int("items", report.ItemCount).
		Msg("usage report stored")

	return nil
}
