package reports

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("report not found")

// Repository port (interface untuk persistence)
type Repository interface {
	Create(ctx context.Context, r *Report) error
	Get(ctx context.Context, id string) (*Report, error)
	ListByUser(ctx context.Context, userID string) ([]*Report, error)
}
