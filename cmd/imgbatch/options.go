package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aliskhannn/imgbatch/internal/model"
)

// applyOption sets one processing option from a "key=value" pair.
func applyOption(o *model.Options, key, value string) error {
	value = strings.TrimSpace(value)

	switch strings.ToLower(strings.TrimSpace(key)) {
	case "width", "w":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("width: %w", err)
		}
		o.TargetWidth = n
	case "height", "h":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("height: %w", err)
		}
		o.TargetHeight = n
	case "size":
		w, h, ok := strings.Cut(strings.ToLower(value), "x")
		if !ok {
			return fmt.Errorf("size must look like 800x600, got %q", value)
		}
		if err := applyOption(o, "width", w); err != nil {
			return err
		}
		return applyOption(o, "height", h)
	case "aspect", "keep_aspect_ratio":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("aspect: %w", err)
		}
		o.KeepAspectRatio = b
	case "format", "f":
		f, err := model.ParseFormat(value)
		if err != nil {
			return err
		}
		o.Format = f
	case "quality", "q":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("quality: %w", err)
		}
		o.Quality = v
	case "compression", "c":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("compression: %w", err)
		}
		o.Compression = v
	case "watermark":
		o.Watermark = value
	default:
		return fmt.Errorf("unknown option %q", key)
	}

	return nil
}

// applyOptions applies "key=value" arguments in order and validates the result.
func applyOptions(o model.Options, args []string) (model.Options, error) {
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return o, fmt.Errorf("expected key=value, got %q", arg)
		}
		if err := applyOption(&o, key, value); err != nil {
			return o, err
		}
	}

	return o, o.Validate()
}
