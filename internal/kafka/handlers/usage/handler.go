package usage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/aliskhannn/imgbatch/internal/model"
)

type service interface {
	Store(ctx context.Context, report model.UsageReport) error
}

// ReportHandler stores usage reports delivered by Kafka.
type ReportHandler struct {
	service service
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(s service) *ReportHandler {
	return &ReportHandler{service: s}
}

// Handle decodes one message and stores the report it carries.
func (h *ReportHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var report model.UsageReport
	if err := json.Unmarshal(msg.Value, &report); err != nil {
		return fmt.Errorf("unmarshal usage report: %w", err)
	}

	if err := h.service.Store(ctx, report); err != nil {
		return fmt.Errorf("store usage report: %w", err)
	}

	return nil
}
