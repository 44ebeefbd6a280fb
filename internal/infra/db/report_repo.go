package db

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/bryanwahyu/sitesafe/internal/domain/reports"
)

type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Create(ctx context.Context, rep *reports.Report) error {
	flags := rep.RiskFlags
	if flags == nil {
		flags = []reports.RiskFlag{}
	}
	ids := rep.SourceUploadIDs
	if ids == nil {
		ids = []string{}
	}
	row := reportRow{
		ID:                 rep.ID,
		UserID:             rep.UserID,
		Title:              rep.Title,
		Summary:            rep.Summary,
		FullReportMarkdown: rep.FullReportMarkdown,
		RiskFlags:          datatypes.NewJSONSlice(flags),
		SourceUploadIDs:    datatypes.NewJSONSlice(ids),
		CreatedAt:          rep.CreatedAt,
		UpdatedAt:          rep.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Omit("User").Create(&row).Error; err != nil {
		return err
	}
	rep.CreatedAt, rep.UpdatedAt = row.CreatedAt, row.UpdatedAt
	return nil
}

func (r *ReportRepository) Get(ctx context.Context, id string) (*reports.Report, error) {
	var row reportRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err, reports.ErrNotFound)
	}
	return row.toDomain(), nil
}

// ListByUser newest first.
func (r *ReportRepository) ListByUser(ctx context.Context, userID string) ([]*reports.Report, error) {
	var rows []reportRow
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*reports.Report, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
