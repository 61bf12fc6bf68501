package payment

import (
	"context"
)

// Repository defines the interface for payment data access.
// Create fails with ierr.ErrAlreadyExists when the id is taken.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
}
