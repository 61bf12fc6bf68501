package testutil

import (
	"context"

	"github.com/edulane/billing/internal/domain/subscription"
	ierr "github.com/edulane/billing/internal/errors"
)

// InMemorySubscriptionStore implements subscription.Repository
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]
}

// NewInMemorySubscriptionStore creates a new in-memory subscription store
func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[*subscription.Subscription](),
	}
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil {
		return ierr.NewError("subscription cannot be nil").
			WithHint("Subscription cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, sub.ID, sub.Copy())
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Subscription %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return sub.Copy(), nil
}

func (s *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	return s.CompareAndSwap(ctx, sub.ID, sub.Copy(), func(current *subscription.Subscription) error {
		if current.Version != sub.Version-1 {
			return versionConflict("subscription", sub.ID, current.Version, sub.Version-1)
		}
		return nil
	})
}

func (s *InMemorySubscriptionStore) ListByStudent(ctx context.Context, studentID string) ([]*subscription.Subscription, error) {
	items, err := s.InMemoryStore.List(ctx, func(ctx context.Context, sub *subscription.Subscription) bool {
		return sub.StudentID == studentID && CheckTenantFilter(ctx, sub.TenantID)
	}, func(i, j *subscription.Subscription) bool {
		return i.StartDate.Before(j.StartDate)
	})
	if err != nil {
		return nil, err
	}

	out := make([]*subscription.Subscription, 0, len(items))
	for _, sub := range items {
		out = append(out, sub.Copy())
	}
	return out, nil
}
