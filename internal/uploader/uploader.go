package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/imgbatch/internal/export"
	"github.com/aliskhannn/imgbatch/internal/model"
)

var ErrNotCompleted = errors.New("item is not completed")

// sender defines the interface for the durable storage endpoint.
type sender interface {
	Upload(ctx context.Context, req model.UploadRequest) (model.UploadResult, error)
}

// artifactLoader defines the interface for reading local artifacts.
type artifactLoader interface {
	Load(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Storage is the actor's durable storage allowance as known to the caller.
type Storage struct {
	Used  int64
	Quota int64
}

// Fits reports whether size more bytes fit in the allowance.
func (s Storage) Fits(size int64) bool {
	return s.Used+size <= s.Quota
}

// Result pairs an item with the outcome of its upload.
type Result struct {
	ItemID string
	model.UploadResult
}

// Uploader persists completed artifacts to durable storage.
type Uploader struct {
	sender    sender
	artifacts artifactLoader
}

// New creates a new Uploader.
func New(s sender, artifacts artifactLoader) *Uploader {
	return &Uploader{sender: s, artifacts: artifacts}
}

// Upload sends one completed item. Capacity is checked against usage right
// before the upload. The caller owns usage and must add the item's size on success.
func (u *Uploader) Upload(ctx context.Context, item model.Item, usage Storage) (model.UploadResult, error) {
	if item.State != model.StateCompleted || item.ResultRef == "" {
		return model.UploadResult{Error: ErrNotCompleted.Error()}, fmt.Errorf("%w: %s", ErrNotCompleted, item.ID)
	}

	if !usage.Fits(item.ResultSize) {
		err := fmt.Errorf("%w: %d of %d bytes used, item needs %d",
			model.ErrStorageFull, usage.Used, usage.Quota, item.ResultSize)
		return model.UploadResult{Error: err.Error()}, err
	}

	rc, err := u.artifacts.Load(ctx, item.ResultRef)
	if err != nil {
		return model.UploadResult{Error: err.Error()}, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer rc.Close()

	res, err := u.sender.Upload(ctx, model.UploadRequest{
		Filename:    export.ResultFileName(item),
		Body:        rc,
		Size:        item.ResultSize,
		Width:       item.ResultWidth,
		Height:      item.ResultHeight,
		ContentType: item.ResultContentType,
	})
	if err != nil {
		res.Success = false
		if res.Error == "" {
			res.Error = err.Error()
		}
		return res, fmt.Errorf("failed to upload %s: %w", item.ID, err)
	}
	if !res.Success {
		return res, fmt.Errorf("failed to upload %s: %s", item.ID, res.Error)
	}

	return res, nil
}

// UploadAll uploads every completed item in order, checking capacity before
// each one so a long batch persists what fits. usage is advanced after every
// success and the final value is returned. Failures never change item state.
func (u *Uploader) UploadAll(ctx context.Context, items []model.Item, usage Storage) ([]Result, Storage) {
	results := make([]Result, 0, len(items))

	for _, it := range items {
		if it.State != model.StateCompleted {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		res, err := u.Upload(ctx, it, usage)
		if err != nil {
			zlog.Logger.Warn().Err(err).Str("item", it.ID).Msg("upload failed")
		} else {
			usage.Used += it.ResultSize
		}

		results = append(results, Result{ItemID: it.ID, UploadResult: res})
	}

	return results, usage
}
