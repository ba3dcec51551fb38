package persistence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dfryer1193/blogcms/blog/domain"
	"github.com/google/uuid"
)

var _ domain.FileStore = (*LocalFileStore)(nil)

// DefaultUploadDir is where uploads land when no directory is configured
const DefaultUploadDir = "./uploads"

// LocalFileStore implements domain.FileStore on the local filesystem
type LocalFileStore struct {
	dir string
	now func() time.Time
}

// NewLocalFileStore creates a file store rooted at dir
func NewLocalFileStore(dir string) *LocalFileStore {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultUploadDir
	}
	return &LocalFileStore{
		dir: dir,
		now: time.Now,
	}
}

// Dir returns the directory files are written to
func (s *LocalFileStore) Dir() string {
	return s.dir
}

// Save streams r into a temp file and renames it to a generated name so a
// partially written upload is never visible under its final name
func (s *LocalFileStore) Save(ctx context.Context, r io.Reader, originalName string) (*domain.UploadedFile, error) {
	if r == nil {
		return nil, fmt.Errorf("upload reader cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	size, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to close upload: %w", err)
	}

	filename := s.generateFilename(originalName)
	if err := os.Rename(tmpPath, filepath.Join(s.dir, filename)); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	return &domain.UploadedFile{
		Filename:     filename,
		OriginalName: originalName,
		Size:         size,
	}, nil
}

// Delete removes a stored file; a file that is already gone is not an error
func (s *LocalFileStore) Delete(ctx context.Context, filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	localPath := filepath.Join(s.dir, filepath.Base(filename))
	if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove upload: %w", err)
	}

	return nil
}

// generateFilename builds "<unix millis>-<8 hex>" plus the original extension.
// The random suffix keeps two uploads in the same millisecond apart.
func (s *LocalFileStore) generateFilename(originalName string) string {
	ext := filepath.Ext(filepath.Base(originalName))
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), suffix, ext)
}
