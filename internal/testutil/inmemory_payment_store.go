package testutil

import (
	"context"

	"github.com/edulane/billing/internal/domain/payment"
	ierr "github.com/edulane/billing/internal/errors"
)

// InMemoryPaymentStore implements payment.Repository
type InMemoryPaymentStore struct {
	*InMemoryStore[*payment.Payment]
}

// NewInMemoryPaymentStore creates a new in-memory payment store
func NewInMemoryPaymentStore() *InMemoryPaymentStore {
	return &InMemoryPaymentStore{
		InMemoryStore: NewInMemoryStore[*payment.Payment](),
	}
}

// Create stores a new payment
func (s *InMemoryPaymentStore) Create(ctx context.Context, p *payment.Payment) error {
	if p == nil {
		return ierr.NewError("payment cannot be nil").
			WithHint("Payment cannot be nil").
			Mark(ierr.ErrValidation)
	}

	if p.ID == "" {
		return ierr.NewError("payment ID cannot be empty").
			WithHint("Payment ID cannot be empty").
			Mark(ierr.ErrValidation)
	}

	copied := *p
	return s.InMemoryStore.Create(ctx, p.ID, &copied)
}

// Get retrieves a payment by ID
func (s *InMemoryPaymentStore) Get(ctx context.Context, id string) (*payment.Payment, error) {
	p, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Payment %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	copied := *p
	return &copied, nil
}

// Update updates an existing payment
func (s *InMemoryPaymentStore) Update(ctx context.Context, p *payment.Payment) error {
	copied := *p
	return s.InMemoryStore.Update(ctx, p.ID, &copied)
}
