package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/bryanwahyu/sitesafe/internal/application"
	"github.com/bryanwahyu/sitesafe/internal/domain/billing"
	domain "github.com/bryanwahyu/sitesafe/internal/domain/uploads"
)

// Entitlements answers whether a user may submit files.
type Entitlements interface {
	Entitled(ctx context.Context, userID string) (bool, error)
}

// Service implements use-cases untuk Upload
type Service struct {
	Repo  domain.Repository
	Files domain.FileStore
	Clock application.Clock
	// Billing is consulted only when RequireSubscription is set.
	Billing             Entitlements
	RequireSubscription bool
}

// SubmitCommand is one multipart file.
type SubmitCommand struct {
	UserID   string
	Filename string
	Size     int64
	Body     io.Reader
}

type SubmitResult struct {
	Success     bool   `json:"success"`
	UploadID    string `json:"uploadId"`
	StoragePath string `json:"storagePath"`
}

// Submit validates the file, stores it at <userId>/<uuid>.<ext> and queues it as PENDING.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (SubmitResult, error) {
	if cmd.Body == nil || cmd.Filename == "" {
		return SubmitResult{}, domain.ErrNoFile
	}
	if cmd.Size > domain.MaxSize {
		return SubmitResult{}, domain.ErrTooLarge
	}
	ext := Extension(cmd.Filename)
	if !domain.AllowedFiletypes[ext] {
		return SubmitResult{}, fmt.Errorf("%w: .%s", domain.ErrInvalidFiletype, ext)
	}
	if s.RequireSubscription && s.Billing != nil {
		ok, err := s.Billing.Entitled(ctx, cmd.UserID)
		if err != nil {
			return SubmitResult{}, err
		}
		if !ok {
			return SubmitResult{}, billing.ErrNotEntitled
		}
	}

	// Size from the multipart header can lie; read at most one byte past the limit.
	data, err := io.ReadAll(io.LimitReader(cmd.Body, domain.MaxSize+1))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > domain.MaxSize {
		return SubmitResult{}, domain.ErrTooLarge
	}
	contentType := mimetype.Detect(data).String()

	id := uuid.New().String()
	key := fmt.Sprintf("%s/%s.%s", cmd.UserID, id, ext)
	if err := s.Files.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return SubmitResult{}, fmt.Errorf("store file: %w", err)
	}

	now := s.Clock.Now()
	up := &domain.Upload{
		ID:          id,
		UserID:      cmd.UserID,
		Filename:    cmd.Filename,
		StoragePath: key,
		Filetype:    ext,
		ContentType: contentType,
		Size:        int64(len(data)),
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Repo.Create(ctx, up); err != nil {
		if rerr := s.Files.Remove(context.WithoutCancel(ctx), key); rerr != nil {
			log.Warnf("orphaned object %s: %v", key, rerr)
		}
		return SubmitResult{}, fmt.Errorf("create upload: %w", err)
	}
	log.Infof("upload %s queued for user %s (%s, %d bytes)", id, cmd.UserID, ext, up.Size)
	return SubmitResult{Success: true, UploadID: id, StoragePath: key}, nil
}

// Requeue puts an owned FAILED upload back to PENDING.
func (s *Service) Requeue(ctx context.Context, userID, uploadID string) (*domain.Upload, error) {
	up, err := s.Repo.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if up.UserID != userID {
		return nil, domain.ErrNotFound
	}
	if up.Status != domain.StatusFailed {
		return nil, fmt.Errorf("%w (status %s)", domain.ErrNotRequeueable, up.Status)
	}
	if err := s.Repo.UpdateStatus(ctx, up.ID, domain.StatusPending); err != nil {
		return nil, err
	}
	up.Status = domain.StatusPending
	log.Infof("upload %s requeued by user %s", up.ID, userID)
	return up, nil
}

// Recent lists the user's latest uploads.
func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]*domain.Upload, error) {
	return s.Repo.ListByUser(ctx, userID, limit)
}

// Extension returns the lower-case extension without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// IsValidation reports whether err is a client error of Submit.
func IsValidation(err error) bool {
	return errors.Is(err, domain.ErrNoFile) || errors.Is(err, domain.ErrTooLarge) ||
		errors.Is(err, domain.ErrInvalidFiletype)
}
