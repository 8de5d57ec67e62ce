package export

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aliskhannn/imgbatch/internal/model"
)

var (
	ErrNothingToExport   = errors.New("no completed items to export")
	ErrArchiveNotAllowed = errors.New("multi-item download requires a registered account")
	ErrBatchTooLarge     = errors.New("batch exceeds the download limit of the plan")
)

// artifactLoader defines the interface for reading stored artifacts.
type artifactLoader interface {
	Load(ctx context.Context, ref string) (io.ReadCloser, error)
}

// FileName builds "{base}_{width}x{height}.{ext}" where base is name without its extension.
func FileName(name string, width, height int, ext string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return fmt.Sprintf("%s_%dx%d.%s", base, width, height, strings.TrimPrefix(ext, "."))
}

// ResultFileName is the download name of a completed item.
func ResultFileName(item model.Item) string {
	return FileName(item.Name, item.ResultWidth, item.ResultHeight, path.Ext(item.ResultRef))
}

// Exporter writes completed artifacts out of the workspace.
type Exporter struct {
	artifacts  artifactLoader
	batchLimit int
}

// New creates a new Exporter. batchLimit bounds multi-item downloads; zero means unlimited.
func New(artifacts artifactLoader, batchLimit int) *Exporter {
	return &Exporter{artifacts: artifacts, batchLimit: batchLimit}
}

// WriteFile copies one completed item into dir and returns the written path.
func (e *Exporter) WriteFile(ctx context.Context, item model.Item, dir string) (string, error) {
	if item.State != model.StateCompleted {
		return "", fmt.Errorf("%w: %s is %s", ErrNothingToExport, item.ID, item.State)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export dir: %w", err)
	}

	src, err := e.artifacts.Load(ctx, item.ResultRef)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer src.Close()

	dst := filepath.Join(dir, ResultFileName(item))
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", dst, err)
	}

	return dst, f.Close()
}

// WriteArchive bundles every completed item into a zip written to w.
// It returns the number of files written.
func (e *Exporter) WriteArchive(ctx context.Context, actor model.Actor, items []model.Item, w io.Writer) (int, error) {
	if !actor.Registered() {
		return 0, ErrArchiveNotAllowed
	}

	done := Completed(items)
	if len(done) == 0 {
		return 0, ErrNothingToExport
	}
	if e.batchLimit > 0 && len(done) > e.batchLimit {
		return 0, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(done), e.batchLimit)
	}

	zw := zip.NewWriter(w)
	seen := make(map[string]int, len(done))

	for _, it := range done {
		name := uniqueName(ResultFileName(it), seen)

		if err := e.addToArchive(ctx, zw, it, name); err != nil {
			zw.Close()
			return 0, err
		}
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish archive: %w", err)
	}

	return len(done), nil
}

func (e *Exporter) addToArchive(ctx context.Context, zw *zip.Writer, it model.Item, name string) error {
	src, err := e.artifacts.Load(ctx, it.ResultRef)
	if err != nil {
		return fmt.Errorf("failed to open artifact %s: %w", it.ID, err)
	}
	defer src.Close()

	// Encoded images do not compress further.
	dst, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store, Modified: it.ModTime})
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", name, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to write %s to archive: %w", name, err)
	}

	return nil
}

// Completed filters items down to the completed ones, keeping order.
func Completed(items []model.Item) []model.Item {
	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if it.State == model.StateCompleted {
			out = append(out, it)
		}
	}
	return out
}

func uniqueName(name string, seen map[string]int) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}

	ext := path.Ext(name)
	return fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext)
}
