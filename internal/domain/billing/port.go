package billing

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("subscription not found")
	ErrAlreadySubscribed = errors.New("user already subscribed")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrMissingSignature  = errors.New("missing stripe signature or secret")
	ErrNotEntitled       = errors.New("active subscription required")
)

// Repository port (interface untuk persistence)
type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
	// FindEntitled returns an ACTIVE or TRIALING subscription of the user, or ErrNotFound.
	FindEntitled(ctx context.Context, userID string) (*Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]*Subscription, error)
}

// Provider port (interface untuk payment processor)
type Provider interface {
	CreateCustomer(ctx context.Context, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error)
	// ParseWebhook verifies the signature header and decodes the event.
	ParseWebhook(payload []byte, signature string) (*Event, error)
}
