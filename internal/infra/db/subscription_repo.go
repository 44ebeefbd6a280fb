package db

import (
	"context"

	"gorm.io/gorm"

	"github.com/bryanwahyu/sitesafe/internal/domain/billing"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func subscriptionFromDomain(s *billing.Subscription) subscriptionRow {
	return subscriptionRow{
		ID:                   s.ID,
		UserID:               s.UserID,
		StripeSubscriptionID: s.StripeSubscriptionID,
		StripePriceID:        s.StripePriceID,
		Status:               string(s.Status),
		CurrentPeriodEnd:     s.CurrentPeriodEnd,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func (r *SubscriptionRepository) Create(ctx context.Context, s *billing.Subscription) error {
	row := subscriptionFromDomain(s)
	if err := r.db.WithContext(ctx).Omit("User").Create(&row).Error; err != nil {
		return err
	}
	s.CreatedAt, s.UpdatedAt = row.CreatedAt, row.UpdatedAt
	return nil
}

func (r *SubscriptionRepository) GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*billing.Subscription, error) {
	var row subscriptionRow
	err := r.db.WithContext(ctx).Where("stripe_subscription_id = ?", stripeSubscriptionID).Take(&row).Error
	if err != nil {
		return nil, notFound(err, billing.ErrNotFound)
	}
	return row.toDomain(), nil
}

// Update overwrites the mutable provider fields, keyed by the provider id.
func (r *SubscriptionRepository) Update(ctx context.Context, s *billing.Subscription) error {
	res := r.db.WithContext(ctx).Model(&subscriptionRow{}).
		Where("stripe_subscription_id = ?", s.StripeSubscriptionID).
		Updates(map[string]any{
			"stripe_price_id":    s.StripePriceID,
			"status":             string(s.Status),
			"current_period_end": s.CurrentPeriodEnd,
			"updated_at":         r.db.NowFunc(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return billing.ErrNotFound
	}
	return nil
}

func (r *SubscriptionRepository) FindEntitled(ctx context.Context, userID string) (*billing.Subscription, error) {
	var row subscriptionRow
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID,
			[]string{string(billing.StatusActive), string(billing.StatusTrialing)}).
		Order("current_period_end DESC").
		Take(&row).Error
	if err != nil {
		return nil, notFound(err, billing.ErrNotFound)
	}
	return row.toDomain(), nil
}

func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]*billing.Subscription, error) {
	var rows []subscriptionRow
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*billing.Subscription, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
