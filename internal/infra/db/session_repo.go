package db

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/bryanwahyu/sitesafe/internal/domain/auth"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) CreateSession(ctx context.Context, s *auth.Session) error {
	row := sessionRow{TokenHash: s.TokenHash, UserID: s.UserID, ExpiresAt: s.ExpiresAt, CreatedAt: s.CreatedAt}
	if err := r.db.WithContext(ctx).Omit("User").Create(&row).Error; err != nil {
		return err
	}
	s.CreatedAt = row.CreatedAt
	return nil
}

func (r *SessionRepository) GetSession(ctx context.Context, tokenHash string) (*auth.Session, error) {
	var row sessionRow
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Take(&row).Error; err != nil {
		return nil, notFound(err, auth.ErrNoSession)
	}
	return row.toDomain(), nil
}

func (r *SessionRepository) DeleteSession(ctx context.Context, tokenHash string) error {
	return r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&sessionRow{}).Error
}

func (r *SessionRepository) ExtendSession(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Model(&sessionRow{}).Where("token_hash = ?", tokenHash).Update("expires_at", expiresAt).Error
}

func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", before).Delete(&sessionRow{})
	return res.RowsAffected, res.Error
}

func (r *SessionRepository) CreateVerificationToken(ctx context.Context, v *auth.VerificationToken) error {
	row := verificationTokenRow{ID: v.ID, Email: v.Email, ExpiresAt: v.ExpiresAt, CreatedAt: v.CreatedAt}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	v.CreatedAt = row.CreatedAt
	return nil
}

// ConsumeVerificationToken flips used_at atomically; a second call for the same id
// matches no rows.
func (r *SessionRepository) ConsumeVerificationToken(ctx context.Context, id string, at time.Time) (*auth.VerificationToken, error) {
	var out *auth.VerificationToken
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&verificationTokenRow{}).
			Where("id = ? AND used_at IS NULL", id).
			Update("used_at", at)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return auth.ErrInvalidToken
		}
		var row verificationTokenRow
		if err := tx.Where("id = ?", id).Take(&row).Error; err != nil {
			return err
		}
		out = row.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
