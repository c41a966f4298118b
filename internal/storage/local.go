package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage stores files under Root/Dir and serves them from {BaseURL}/{Dir}.
type LocalStorage struct {
	root string
	dir  string
	now  func() time.Time
}

// NewLocal creates a local filesystem backend.
// root is the filesystem directory that dir is relative to (usually the working directory).
// dir is both the on-disk subdirectory and the URL path segment, e.g. "uploads/images".
func NewLocal(root, dir string) *LocalStorage {
	if root == "" {
		root = "."
	}
	return &LocalStorage{
		root: root,
		dir:  strings.Trim(filepath.ToSlash(dir), "/"),
		now:  time.Now,
	}
}

// Dir returns the URL-relative upload directory.
func (s *LocalStorage) Dir() string { return s.dir }

// Path returns the on-disk directory files are written to.
func (s *LocalStorage) Path() string {
	return filepath.Join(s.root, filepath.FromSlash(s.dir))
}

func (s *LocalStorage) Upload(_ context.Context, req Request) Result {
	name, err := s.write(req)
	if err != nil {
		slog.Error("local storage write failed", "category", req.Category.String(), "filename", req.Filename, "error", err)
		return Failed(err)
	}
	return Succeeded(fmt.Sprintf("%s/%s/%s", strings.TrimRight(req.BaseURL, "/"), s.dir, name))
}

func (s *LocalStorage) write(req Request) (string, error) {
	dir := s.Path()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create upload dir: %w", ErrFilesystem, err)
	}

	name := UniqueName(req.Content, req.Filename, s.now())
	if err := os.WriteFile(filepath.Join(dir, name), req.Content, 0o644); err != nil {
		return "", fmt.Errorf("%w: write file: %w", ErrFilesystem, err)
	}
	return name, nil
}

// Ping checks that the upload directory can be created.
func (s *LocalStorage) Ping(_ context.Context) error {
	return os.MkdirAll(s.Path(), 0o755)
}
