package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/imgbatch/internal/api/respond"
	"github.com/aliskhannn/imgbatch/internal/middleware"
	"github.com/aliskhannn/imgbatch/internal/model"
)

// service defines the interface for persisting artifacts.
type service interface {
	Upload(ctx context.Context, actorID string, req model.UploadRequest) (model.UploadResult, error)
}

// Handler provides the HTTP handler for artifact uploads.
type Handler struct {
	service service
	maxSize int64
}

// NewHandler creates a new Handler. maxSize bounds the request body in bytes.
func NewHandler(s service, maxSize int64) *Handler {
	if maxSize <= 0 {
		maxSize = 32 << 20
	}

	return &Handler{service: s, maxSize: maxSize}
}

// Upload handles a multipart upload of one processed artifact.
func (h *Handler) Upload(c *ginext.Context) {
	actorID := middleware.ActorID(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize)

	// Retrieve the uploaded file from the form.
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to read uploaded file")
		respond.Fail(c, http.StatusBadRequest, errors.New("failed to retrieve the file"))
		return
	}
	defer file.Close()

	width, err := formInt(c, "width")
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, err)
		return
	}
	height, err := formInt(c, "height")
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, err)
		return
	}

	contentType := c.PostForm("content_type")
	if contentType == "" {
		contentType = header.Header.Get("Content-Type")
	}

	res, err := h.service.Upload(c.Request.Context(), actorID, model.UploadRequest{
		Filename:    header.Filename,
		Body:        file,
		Size:        header.Size,
		Width:       width,
		Height:      height,
		ContentType: contentType,
	})
	if err != nil {
		if errors.Is(err, model.ErrStorageFull) {
			respond.Fail(c, http.StatusInsufficientStorage, err)
			return
		}

		zlog.Logger.Err(err).Str("actor_id", actorID).Str("file", header.Filename).Msg("failed to upload artifact")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to upload artifact"))
		return
	}

	respond.Created(c, res)
}

// formInt parses an optional non-negative integer form field. A missing field is 0.
func formInt(c *ginext.Context, key string) (int, error) {
	raw := c.PostForm(key)
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}

	return n, nil
}
