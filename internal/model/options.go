package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Format is an output raster format.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

const (
	minFactor = 0.1
	maxFactor = 1.0
)

var ErrInvalidOptions = errors.New("invalid processing options")

// ParseFormat maps a user supplied format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", ErrInvalidOptions, s)
	}
}

// Ext returns the file extension used for the format, without the dot.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatPNG:
		return "png"
	case FormatWebP:
		return "webp"
	default:
		return string(f)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Options holds the processing parameters applied to every item of a batch.
type Options struct {
	TargetWidth     int     `json:"target_width"`
	TargetHeight    int     `json:"target_height"`
	KeepAspectRatio bool    `json:"keep_aspect_ratio"`
	Format          Format  `json:"format"`
	Quality         float64 `json:"quality"`     // 0.1 - 1.0
	Compression     float64 `json:"compression"` // 0.1 - 1.0
	Watermark       string  `json:"watermark,omitempty"`
}

// DefaultOptions returns the options a fresh batch starts with.
func DefaultOptions() Options {
	return Options{
		TargetWidth:     1920,
		TargetHeight:    1080,
		KeepAspectRatio: true,
		Format:          FormatJPEG,
		Quality:         0.9,
		Compression:     1.0,
	}
}

// EffectiveQuality is the encode parameter actually used: the product of the
// quality and compression factors with a floor of 0.1.
func (o Options) EffectiveQuality() float64 {
	return math.Max(minFactor, o.Quality*o.Compression)
}

// Validate checks the options before they are applied to a batch.
func (o Options) Validate() error {
	if o.TargetWidth <= 0 || o.TargetHeight <= 0 {
		return fmt.Errorf("%w: target size must be positive, got %dx%d", ErrInvalidOptions, o.TargetWidth, o.TargetHeight)
	}
	if _, err := ParseFormat(string(o.Format)); err != nil {
		return err
	}
	if o.Quality < minFactor || o.Quality > maxFactor {
		return fmt.Errorf("%w: quality %.2f out of range", ErrInvalidOptions, o.Quality)
	}
	if o.Compression < minFactor || o.Compression > maxFactor {
		return fmt.Errorf("%w: compression %.2f out of range", ErrInvalidOptions, o.Compression)
	}
	return nil
}
