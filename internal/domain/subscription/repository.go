package subscription

import (
	"context"
)

// Repository defines the interface for subscription data access.
// Update is conditioned on the stored version being s.Version-1.
type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
	ListByStudent(ctx context.Context, studentID string) ([]*Subscription, error)
}
