package db

import (
	"time"

	"gorm.io/datatypes"

	"github.com/bryanwahyu/sitesafe/internal/domain/auth"
	"github.com/bryanwahyu/sitesafe/internal/domain/billing"
	"github.com/bryanwahyu/sitesafe/internal/domain/reports"
	"github.com/bryanwahyu/sitesafe/internal/domain/uploads"
	"github.com/bryanwahyu/sitesafe/internal/domain/users"
)

type userRow struct {
	ID               string  `gorm:"primaryKey;size:36"`
	Email            string  `gorm:"size:320;not null;uniqueIndex"`
	Name             string  `gorm:"size:255"`
	StripeCustomerID *string `gorm:"size:255;uniqueIndex"`
	Role             string  `gorm:"size:20;not null;default:user"`
	EmailVerifiedAt  *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (userRow) TableName() string { return "users" }

func (r *userRow) toDomain() *users.User {
	return &users.User{
		ID:               r.ID,
		Email:            r.Email,
		Name:             r.Name,
		StripeCustomerID: r.StripeCustomerID,
		Role:             users.Role(r.Role),
		EmailVerifiedAt:  r.EmailVerifiedAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type uploadRow struct {
	ID          string   `gorm:"primaryKey;size:36"`
	UserID      string   `gorm:"size:36;not null;index"`
	User        *userRow `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Filename    string   `gorm:"size:512;not null"`
	StoragePath string   `gorm:"size:1024;not null"`
	Filetype    string   `gorm:"size:16;not null"`
	ContentType string   `gorm:"size:255"`
	Size        int64
	Status      string    `gorm:"size:16;not null;index:idx_uploads_status_created,priority:1"`
	CreatedAt   time.Time `gorm:"index:idx_uploads_status_created,priority:2"`
	UpdatedAt   time.Time
}

func (uploadRow) TableName() string { return "uploads" }

func (r *uploadRow) toDomain() *uploads.Upload {
	return &uploads.Upload{
		ID:          r.ID,
		UserID:      r.UserID,
		Filename:    r.Filename,
		StoragePath: r.StoragePath,
		Filetype:    r.Filetype,
		ContentType: r.ContentType,
		Size:        r.Size,
		Status:      uploads.Status(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type reportRow struct {
	ID                 string   `gorm:"primaryKey;size:36"`
	UserID             string   `gorm:"size:36;not null;index"`
	User               *userRow `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Title              string   `gorm:"size:512;not null"`
	Summary            string   `gorm:"type:text"`
	FullReportMarkdown string   `gorm:"type:text"`
	RiskFlags          datatypes.JSONSlice[reports.RiskFlag]
	SourceUploadIDs    datatypes.JSONSlice[string]
	CreatedAt          time.Time `gorm:"index"`
	UpdatedAt          time.Time
}

func (reportRow) TableName() string { return "reports" }

func (r *reportRow) toDomain() *reports.Report {
	flags := []reports.RiskFlag(r.RiskFlags)
	if flags == nil {
		flags = []reports.RiskFlag{}
	}
	ids := []string(r.SourceUploadIDs)
	if ids == nil {
		ids = []string{}
	}
	return &reports.Report{
		ID:                 r.ID,
		UserID:             r.UserID,
		Title:              r.Title,
		Summary:            r.Summary,
		FullReportMarkdown: r.FullReportMarkdown,
		RiskFlags:          flags,
		SourceUploadIDs:    ids,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

type subscriptionRow struct {
	ID                   string   `gorm:"primaryKey;size:36"`
	UserID               string   `gorm:"size:36;not null;index"`
	User                 *userRow `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	StripeSubscriptionID string   `gorm:"size:255;not null;uniqueIndex"`
	StripePriceID        string   `gorm:"size:255"`
	Status               string   `gorm:"size:32;not null;index"`
	CurrentPeriodEnd     time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (subscriptionRow) TableName() string { return "subscriptions" }

func (r *subscriptionRow) toDomain() *billing.Subscription {
	return &billing.Subscription{
		ID:                   r.ID,
		UserID:               r.UserID,
		StripeSubscriptionID: r.StripeSubscriptionID,
		StripePriceID:        r.StripePriceID,
		Status:               billing.SubscriptionStatus(r.Status),
		CurrentPeriodEnd:     r.CurrentPeriodEnd,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

type sessionRow struct {
	TokenHash string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"size:36;not null;index"`
	User      *userRow  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}

func (sessionRow) TableName() string { return "sessions" }

func (r *sessionRow) toDomain() *auth.Session {
	return &auth.Session{TokenHash: r.TokenHash, UserID: r.UserID, ExpiresAt: r.ExpiresAt, CreatedAt: r.CreatedAt}
}

type verificationTokenRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Email     string `gorm:"size:320;not null;index"`
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (verificationTokenRow) TableName() string { return "verification_tokens" }

func (r *verificationTokenRow) toDomain() *auth.VerificationToken {
	return &auth.VerificationToken{ID: r.ID, Email: r.Email, ExpiresAt: r.ExpiresAt, UsedAt: r.UsedAt, CreatedAt: r.CreatedAt}
}
