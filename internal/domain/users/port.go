package users

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("user not found")

// Repository port (interface untuk persistence)
type Repository interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*User, error)
	SetStripeCustomerID(ctx context.Context, id, customerID string) error
	MarkEmailVerified(ctx context.Context, id string) error
}
