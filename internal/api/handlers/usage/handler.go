package usage

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/imgbatch/internal/api/respond"
	"github.com/aliskhannn/imgbatch/internal/model"
	"github.com/aliskhannn/imgbatch/internal/service/usage"
)

// service defines the interface for collecting usage reports.
type service interface {
	Publish(ctx context.Context, report model.UsageReport) (string, error)
}

// Handler provides the HTTP handler for usage collection.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// Report accepts one usage report and queues it.
func (h *Handler) Report(c *ginext.Context) {
	var report model.UsageReport
	if err := c.ShouldBindJSON(&report); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %v", err))
		return
	}

	id, err := h.service.Publish(c.Request.Context(), report)
	if err != nil {
		if errors.Is(err, usage.ErrInvalidReport) {
			respond.Fail(c, http.StatusBadRequest, err)
			return
		}

		zlog.Logger.Err(err).Str("actor_id", report.ActorID).Msg("failed to publish usage report")
		respond.Fail(c, http.StatusServiceUnavailable, errors.New("usage collector unavailable"))
		return
	}

	respond.Accepted(c, map[string]string{"id": id})
}
