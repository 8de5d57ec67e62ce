package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/disintegration/imaging"

	"github.com/aliskhannn/imgbatch/internal/model"
)

const previewSize = 256

// Ingest stores a new source image in the workspace and returns a pending item.
//
// The source is kept byte for byte under "originals/". When the source decodes,
// its dimensions are captured and a JPEG preview is written under "previews/";
// an undecodable source is still accepted and fails later, at transform time.
func (p *Processor) Ingest(ctx context.Context, name string, modTime time.Time, r io.Reader) (model.Item, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return model.Item{}, fmt.Errorf("failed to read source %s: %w", name, err)
	}

	item := model.Item{
		ID:           model.ItemID(name, modTime),
		Name:         name,
		ModTime:      modTime,
		OriginalSize: int64(len(data)),
		State:        model.StatePending,
	}

	// Save the original file to storage.
	item.SourceRef, err = p.fileStorage.Save(ctx, "originals", item.ID, bytes.NewReader(data))
	if err != nil {
		return model.Item{}, fmt.Errorf("failed to save source %s: %w", name, err)
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return item, nil
	}

	item.OriginalWidth = src.Bounds().Dx()
	item.OriginalHeight = src.Bounds().Dy()

	// Generate the display-only preview.
	thumb := imaging.Fit(src, previewSize, previewSize, imaging.Box)
	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return item, nil
	}

	item.PreviewRef, err = p.fileStorage.Save(ctx, "previews", item.ID+".jpg", buf)
	if err != nil {
		return model.Item{}, fmt.Errorf("failed to save preview %s: %w", name, err)
	}

	return item, nil
}
