package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
	_ "golang.org/x/image/webp"

	"github.com/aliskhannn/imgbatch/internal/model"
)

var (
	ErrDecode            = errors.New("failed to decode image")
	ErrEncode            = errors.New("failed to encode image")
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

// fileStorage defines the interface for the workspace storage.
// It allows saving and loading files by ref (e.g., local FS, S3, MinIO).
type fileStorage interface {
	Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
	Load(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Processor is the transform engine: it decodes one source image, scales it
// to the target size and re-encodes it at the effective quality.
// It never touches the batch; callers apply the returned artifact.
type Processor struct {
	fileStorage fileStorage
}

// New creates a new Processor with the given file storage backend.
func New(fs fileStorage) *Processor {
	return &Processor{fileStorage: fs}
}

// TargetSize computes the output dimensions for a source of srcW x srcH.
// With keepAspect the source is scaled by min(tw/srcW, th/srcH) and rounded,
// otherwise the target is used verbatim. Dimensions never drop below one pixel.
func TargetSize(srcW, srcH int, opts model.Options) (int, int) {
	if !opts.KeepAspectRatio || srcW <= 0 || srcH <= 0 {
		return opts.TargetWidth, opts.TargetHeight
	}

	scale := math.Min(
		float64(opts.TargetWidth)/float64(srcW),
		float64(opts.TargetHeight)/float64(srcH),
	)

	w := int(math.Round(float64(srcW) * scale))
	h := int(math.Round(float64(srcH) * scale))

	return max(w, 1), max(h, 1)
}

// Transform processes a single item and stores the result under "results/".
// Both decode and encode failures are returned as errors for the caller to
// record on the item.
func (p *Processor) Transform(ctx context.Context, item model.Item, opts model.Options) (model.Artifact, error) {
	if err := opts.Validate(); err != nil {
		return model.Artifact{}, err
	}

	// Load the original image from storage.
	srcReader, err := p.fileStorage.Load(ctx, item.SourceRef)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("failed to load original image: %w", err)
	}
	defer srcReader.Close()

	// Decode into an image object.
	src, err := imaging.Decode(srcReader, imaging.AutoOrientation(true))
	if err != nil {
		return model.Artifact{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := src.Bounds()
	width, height := TargetSize(bounds.Dx(), bounds.Dy(), opts)

	// Perform resizing.
	var out image.Image = imaging.Resize(src, width, height, imaging.Lanczos)

	if opts.Watermark != "" {
		out = watermark(out, opts.Watermark)
	}

	if err := ctx.Err(); err != nil {
		return model.Artifact{}, err
	}

	// Encode resized image into buffer for storage.
	buf := bytes.NewBuffer(nil)
	if err := encode(buf, out, opts.Format, opts.EffectiveQuality()); err != nil {
		return model.Artifact{}, err
	}
	size := int64(buf.Len())

	ref, err := p.fileStorage.Save(ctx, "results", item.ID+"."+opts.Format.Ext(), buf)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("failed to save result: %w", err)
	}

	return model.Artifact{
		Ref:          ref,
		Size:         size,
		Width:        width,
		Height:       height,
		ContentType:  opts.Format.ContentType(),
		SourceWidth:  bounds.Dx(),
		SourceHeight: bounds.Dy(),
	}, nil
}

// encode writes img in the given format at quality q in [0.1, 1.0].
func encode(w io.Writer, img image.Image, format model.Format, q float64) error {
	var err error

	switch format {
	case model.FormatJPEG:
		err = imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(int(math.Round(q*100))))
	case model.FormatPNG:
		// PNG is lossless; lower quality trades CPU for a smaller file.
		level := png.DefaultCompression
		if q < 0.5 {
			level = png.BestCompression
		}
		err = imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(level))
	case model.FormatWebP:
		err = webp.Encode(w, img, &webp.Options{Quality: float32(q * 100)})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}

	return nil
}

// watermark draws text in the bottom-right corner of img.
func watermark(img image.Image, text string) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetFontFace(basicfont.Face7x13)

	tw, _ := dc.MeasureString(text)
	margin := 8.0
	x := float64(dc.Width()) - tw - margin
	y := float64(dc.Height()) - margin

	// Shadow first so the text stays readable on light images.
	dc.SetColor(color.RGBA{A: 160})
	dc.DrawString(text, x+1, y+1)
	dc.SetColor(color.White)
	dc.DrawString(text, x, y)

	return dc.Image()
}
