package uploads

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound        = errors.New("upload not found")
	ErrNoFile          = errors.New("no file provided")
	ErrTooLarge        = errors.New("file size exceeds limit")
	ErrInvalidFiletype = errors.New("invalid file type")
	ErrNotRequeueable  = errors.New("upload is not in a failed state")
)

// Repository port (interface untuk persistence)
type Repository interface {
	Create(ctx context.Context, u *Upload) error
	Get(ctx context.Context, id string) (*Upload, error)
	// OldestPending returns the PENDING upload with the smallest created_at, or ErrNotFound.
	OldestPending(ctx context.Context) (*Upload, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Upload, error)
}

// FileStore port (interface untuk penyimpanan file)
type FileStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
}

// TextExtractor turns stored file bytes into plain text for the model.
type TextExtractor interface {
	Extract(ctx context.Context, filetype string, data []byte) (string, error)
}
