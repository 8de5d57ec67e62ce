package quota

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/imgbatch/internal/api/respond"
	"github.com/aliskhannn/imgbatch/internal/middleware"
	"github.com/aliskhannn/imgbatch/internal/model"
	"github.com/aliskhannn/imgbatch/internal/quota"
	"github.com/aliskhannn/imgbatch/internal/service/account"
)

// service defines the interface for registered quota operations.
type service interface {
	Admit(ctx context.Context, actorID string, n int) (model.AdmitResponse, error)
	Account(ctx context.Context, actorID string) (quota.Quota, error)
}

// Handler provides HTTP handlers for quota and account endpoints.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// Admit evaluates a request to add items to a batch. A refused request is
// still a 200: the decision is in the body.
func (h *Handler) Admit(c *ginext.Context) {
	actorID := middleware.ActorID(c)

	var req model.AdmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %v", err))
		return
	}

	if req.ActorID != "" && req.ActorID != actorID {
		zlog.Logger.Warn().Str("token_actor", actorID).Str("body_actor", req.ActorID).Msg("actor mismatch")
		respond.Fail(c, http.StatusForbidden, errors.New("actor does not match token"))
		return
	}

	res, err := h.service.Admit(c.Request.Context(), actorID, req.RequestedCount)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCount) {
			respond.Fail(c, http.StatusBadRequest, err)
			return
		}

		zlog.Logger.Err(err).Str("actor_id", actorID).Msg("failed to admit")
		respond.Fail(c, http.StatusInternalServerError, errors.New("failed to evaluate quota"))
		return
	}

	respond.OK(c, res)
}

// Account returns the caller's quota and storage usage.
func (h *Handler) Account(c *ginext.Context) {
	actorID := middleware.ActorID(c)

	q, err := h.service.Account(c.Request.Context(), actorID)
	if err != nil {
		zlog.Logger.Err(err).Str("actor_id", actorID).Msg("failed to get account")
		respond.Fail(c, http.StatusInternalServerError, errors.New("failed to get account"))
		return
	}

	respond.OK(c, q)
}
