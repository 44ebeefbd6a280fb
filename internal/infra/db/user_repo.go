package db

import (
	"context"

	"gorm.io/gorm"

	"github.com/bryanwahyu/sitesafe/internal/domain/users"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create insert user baru
func (r *UserRepository) Create(ctx context.Context, u *users.User) error {
	role := string(u.Role)
	if role == "" {
		role = string(users.RoleUser)
	}
	row := userRow{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		StripeCustomerID: u.StripeCustomerID,
		Role:             role,
		EmailVerifiedAt:  u.EmailVerifiedAt,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	u.Role = users.Role(role)
	u.CreatedAt, u.UpdatedAt = row.CreatedAt, row.UpdatedAt
	return nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (*users.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *UserRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*users.User, error) {
	return r.first(ctx, "stripe_customer_id = ?", customerID)
}

func (r *UserRepository) SetStripeCustomerID(ctx context.Context, id, customerID string) error {
	return r.update(ctx, id, map[string]any{"stripe_customer_id": customerID})
}

func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	return r.update(ctx, id, map[string]any{"email_verified_at": r.db.NowFunc()})
}

func (r *UserRepository) first(ctx context.Context, query string, arg any) (*users.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).Where(query, arg).Take(&row).Error; err != nil {
		return nil, notFound(err, users.ErrNotFound)
	}
	return row.toDomain(), nil
}

func (r *UserRepository) update(ctx context.Context, id string, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return users.ErrNotFound
	}
	return nil
}
