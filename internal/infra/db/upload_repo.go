package db

import (
	"context"

	"gorm.io/gorm"

	"github.com/bryanwahyu/sitesafe/internal/domain/uploads"
)

type UploadRepository struct {
	db *gorm.DB
}

func NewUploadRepository(db *gorm.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

func (r *UploadRepository) Create(ctx context.Context, u *uploads.Upload) error {
	status := u.Status
	if status == "" {
		status = uploads.StatusPending
	}
	row := uploadRow{
		ID:          u.ID,
		UserID:      u.UserID,
		Filename:    u.Filename,
		StoragePath: u.StoragePath,
		Filetype:    u.Filetype,
		ContentType: u.ContentType,
		Size:        u.Size,
		Status:      string(status),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Omit("User").Create(&row).Error; err != nil {
		return err
	}
	u.Status = status
	u.CreatedAt, u.UpdatedAt = row.CreatedAt, row.UpdatedAt
	return nil
}

func (r *UploadRepository) Get(ctx context.Context, id string) (*uploads.Upload, error) {
	var row uploadRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err, uploads.ErrNotFound)
	}
	return row.toDomain(), nil
}

// OldestPending picks the next queue candidate, FIFO by creation time.
func (r *UploadRepository) OldestPending(ctx context.Context) (*uploads.Upload, error) {
	var row uploadRow
	err := r.db.WithContext(ctx).
		Where("status = ?", string(uploads.StatusPending)).
		Order("created_at ASC").Order("id ASC").
		Take(&row).Error
	if err != nil {
		return nil, notFound(err, uploads.ErrNotFound)
	}
	return row.toDomain(), nil
}

func (r *UploadRepository) UpdateStatus(ctx context.Context, id string, status uploads.Status) error {
	res := r.db.WithContext(ctx).Model(&uploadRow{}).Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": r.db.NowFunc()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return uploads.ErrNotFound
	}
	return nil
}

// ListByUser newest first. limit <= 0 means no limit.
func (r *UploadRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*uploads.Upload, error) {
	var rows []uploadRow
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*uploads.Upload, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
