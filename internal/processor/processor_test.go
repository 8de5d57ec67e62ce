package processor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/imgbatch/internal/model"
	"github.com/aliskhannn/imgbatch/internal/storage/local"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := imaging.New(w, h, color.NRGBA{R: 200, G: 120, B: 40, A: 255})
	buf := bytes.NewBuffer(nil)
	require.NoError(t, imaging.Encode(buf, img, imaging.JPEG))

	return buf.Bytes()
}

func newProcessor(t *testing.T) (*Processor, *local.Storage) {
	t.Helper()

	fs, err := local.NewStorage(t.TempDir())
	require.NoError(t, err)

	return New(fs), fs
}

func decodeRef(t *testing.T, fs *local.Storage, ref string) image.Image {
	t.Helper()

	rc, err := fs.Load(context.Background(), ref)
	require.NoError(t, err)
	defer rc.Close()

	img, _, err := image.Decode(rc)
	require.NoError(t, err)

	return img
}

func TestTargetSize_KeepAspectRatio(t *testing.T) {
	cases := []struct {
		srcW, srcH, tw, th int
	}{
		{1600, 1200, 800, 600},
		{4000, 3000, 800, 600},
		{1080, 1920, 800, 600},
		{333, 777, 100, 100},
		{50, 20, 800, 600},
		{1, 1000, 10, 10},
	}

	for _, tc := range cases {
		opts := model.Options{TargetWidth: tc.tw, TargetHeight: tc.th, KeepAspectRatio: true}
		w, h := TargetSize(tc.srcW, tc.srcH, opts)

		s := math.Min(float64(tc.tw)/float64(tc.srcW), float64(tc.th)/float64(tc.srcH))
		assert.Equal(t, max(int(math.Round(float64(tc.srcW)*s)), 1), w, "width for %+v", tc)
		assert.Equal(t, max(int(math.Round(float64(tc.srcH)*s)), 1), h, "height for %+v", tc)
		assert.LessOrEqual(t, w, tc.tw)
		assert.LessOrEqual(t, h, tc.th)
	}
}

func TestTargetSize_Distort(t *testing.T) {
	opts := model.Options{TargetWidth: 300, TargetHeight: 50, KeepAspectRatio: false}

	w, h := TargetSize(1000, 1000, opts)

	assert.Equal(t, 300, w)
	assert.Equal(t, 50, h)
}

func TestTransform_JPEG(t *testing.T) {
	p, fs := newProcessor(t)
	ctx := context.Background()

	item, err := p.Ingest(ctx, "photo.jpg", time.UnixMilli(1700000000000), bytes.NewReader(jpegBytes(t, 1600, 1200)))
	require.NoError(t, err)

	opts := model.Options{
		TargetWidth: 800, TargetHeight: 800, KeepAspectRatio: true,
		Format: model.FormatJPEG, Quality: 0.8, Compression: 1,
	}

	art, err := p.Transform(ctx, item, opts)
	require.NoError(t, err)

	assert.Equal(t, 800, art.Width)
	assert.Equal(t, 600, art.Height)
	assert.Equal(t, "image/jpeg", art.ContentType)
	assert.Equal(t, "results/photo.jpg-1700000000000.jpg", art.Ref)
	assert.Positive(t, art.Size)

	out := decodeRef(t, fs, art.Ref)
	assert.Equal(t, 800, out.Bounds().Dx())
	assert.Equal(t, 600, out.Bounds().Dy())
}

func TestTransform_PNGWithWatermark(t *testing.T) {
	p, fs := newProcessor(t)
	ctx := context.Background()

	item, err := p.Ingest(ctx, "a.jpg", time.UnixMilli(1), bytes.NewReader(jpegBytes(t, 400, 400)))
	require.NoError(t, err)

	opts := model.Options{
		TargetWidth: 200, TargetHeight: 100, KeepAspectRatio: false,
		Format: model.FormatPNG, Quality: 0.3, Compression: 0.5, Watermark: "imgbatch",
	}

	art, err := p.Transform(ctx, item, opts)
	require.NoError(t, err)

	out := decodeRef(t, fs, art.Ref)
	assert.Equal(t, 200, out.Bounds().Dx())
	assert.Equal(t, 100, out.Bounds().Dy())
	assert.Equal(t, "image/png", art.ContentType)
}

func TestTransform_WebP(t *testing.T) {
	p, _ := newProcessor(t)
	ctx := context.Background()

	item, err := p.Ingest(ctx, "b.jpg", time.UnixMilli(2), bytes.NewReader(jpegBytes(t, 1024, 768)))
	require.NoError(t, err)

	opts := model.Options{
		TargetWidth: 800, TargetHeight: 600, KeepAspectRatio: true,
		Format: model.FormatWebP, Quality: 0.9, Compression: 0.8,
	}

	art, err := p.Transform(ctx, item, opts)
	require.NoError(t, err)

	assert.Equal(t, 800, art.Width)
	assert.Equal(t, 600, art.Height)
	assert.Equal(t, "image/webp", art.ContentType)
	assert.Equal(t, "results/b.jpg-2.webp", art.Ref)
}

func TestTransform_CorruptSource(t *testing.T) {
	p, _ := newProcessor(t)
	ctx := context.Background()

	item, err := p.Ingest(ctx, "broken.jpg", time.UnixMilli(3), bytes.NewReader([]byte("definitely not an image")))
	require.NoError(t, err)
	assert.Empty(t, item.PreviewRef)
	assert.Zero(t, item.OriginalWidth)

	_, err = p.Transform(ctx, item, model.DefaultOptions())
	require.ErrorIs(t, err, ErrDecode)
}

func TestTransform_InvalidOptions(t *testing.T) {
	p, _ := newProcessor(t)

	opts := model.DefaultOptions()
	opts.TargetWidth = 0

	_, err := p.Transform(context.Background(), model.Item{SourceRef: "originals/x"}, opts)
	require.ErrorIs(t, err, model.ErrInvalidOptions)
}

func TestIngest_CapturesOriginal(t *testing.T) {
	p, fs := newProcessor(t)
	data := jpegBytes(t, 640, 480)

	item, err := p.Ingest(context.Background(), "cat.jpg", time.UnixMilli(42), bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, "cat.jpg-42", item.ID)
	assert.Equal(t, model.StatePending, item.State)
	assert.Equal(t, int64(len(data)), item.OriginalSize)
	assert.Equal(t, 640, item.OriginalWidth)
	assert.Equal(t, 480, item.OriginalHeight)
	assert.Equal(t, "originals/cat.jpg-42", item.SourceRef)
	assert.Equal(t, "previews/cat.jpg-42.jpg", item.PreviewRef)

	preview := decodeRef(t, fs, item.PreviewRef)
	assert.Equal(t, 256, preview.Bounds().Dx())
	assert.Equal(t, 192, preview.Bounds().Dy())
}
