package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidRef = errors.New("invalid storage reference")

// Storage provides a simple file-based workspace for a client session.
// Files are addressed by refs of the form "subdir/filename" relative to the base directory.
type Storage struct {
	basePath string
}

// NewStorage creates a new Storage rooted at basePath, creating the directory if needed.
func NewStorage(basePath string) (*Storage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace %s: %w", basePath, err)
	}

	return &Storage{basePath: basePath}, nil
}

// Save stores src in the given subdirectory under filename and returns its ref.
// The file is written to a temporary name first so a failed write never leaves a partial ref.
func (s *Storage) Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref := filepath.ToSlash(filepath.Join(subdir, filepath.Base(filename)))
	dstPath, err := s.resolve(ref)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", ref, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dstPath), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", ref, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to save file %s: %w", ref, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to save file %s: %w", ref, err)
	}

	if err := os.Rename(tmp.Name(), dstPath); err != nil {
		return "", fmt.Errorf("failed to save file %s: %w", ref, err)
	}

	return ref, nil
}

// Load opens the file behind ref.
func (s *Storage) Load(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load file %s: %w", ref, err)
	}

	return f, nil
}

// Delete removes the file behind ref. Deleting a missing file is not an error.
func (s *Storage) Delete(ctx context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file %s: %w", ref, err)
	}

	return nil
}

func (s *Storage) resolve(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if ref == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}

	return filepath.Join(s.basePath, clean), nil
}
