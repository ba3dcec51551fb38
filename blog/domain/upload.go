package domain

import (
	"context"
	"io"
)

// UploadedFile describes a file accepted from a request and written to storage.
type UploadedFile struct {
	// Filename is the generated storage name, not the caller's name.
	Filename     string
	OriginalName string
	ContentType  string
	Size         int64
}

type FileStore interface {
	// Save writes r under a freshly generated name derived from originalName's extension
	Save(ctx context.Context, r io.Reader, originalName string) (*UploadedFile, error)

	// Delete removes a stored file. Missing files are ignored.
	Delete(ctx context.Context, filename string) error
}
