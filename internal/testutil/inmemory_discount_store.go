package testutil

import (
	"context"
	"sync"

	"github.com/edulane/billing/internal/domain/discount"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
)

// InMemoryDiscountStore implements discount.Repository
type InMemoryDiscountStore struct {
	*InMemoryStore[*discount.Discount]
	mu      sync.Mutex
	commits int
}

// NewInMemoryDiscountStore creates a new in-memory discount store
func NewInMemoryDiscountStore() *InMemoryDiscountStore {
	return &InMemoryDiscountStore{
		InMemoryStore: NewInMemoryStore[*discount.Discount](),
	}
}

func (s *InMemoryDiscountStore) Create(ctx context.Context, d *discount.Discount) error {
	if d == nil {
		return ierr.NewError("discount cannot be nil").
			WithHint("Discount cannot be nil").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getByCode(ctx, d.TenantID, d.Code); err == nil {
		return ierr.NewError("discount code already exists").
			WithHintf("A discount with code %s already exists", d.Code).
			WithReportableDetails(map[string]any{"code": d.Code}).
			Mark(ierr.ErrAlreadyExists)
	}

	return s.InMemoryStore.Create(ctx, d.ID, d.Copy())
}

func (s *InMemoryDiscountStore) Get(ctx context.Context, id string) (*discount.Discount, error) {
	d, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Discount %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return d.Copy(), nil
}

func (s *InMemoryDiscountStore) GetByCode(ctx context.Context, code string) (*discount.Discount, error) {
	d, err := s.getByCode(ctx, types.GetTenantID(ctx), discount.NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	return d.Copy(), nil
}

func (s *InMemoryDiscountStore) getByCode(ctx context.Context, tenantID, code string) (*discount.Discount, error) {
	items, err := s.InMemoryStore.List(ctx, func(_ context.Context, d *discount.Discount) bool {
		return d.Code == code && (tenantID == "" || d.TenantID == tenantID)
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ierr.NewError("discount not found").
			WithHintf("Discount code %s not found", code).
			WithReportableDetails(map[string]any{"code": code}).
			Mark(ierr.ErrNotFound)
	}
	return items[0], nil
}

func (s *InMemoryDiscountStore) List(ctx context.Context) ([]*discount.Discount, error) {
	items, err := s.InMemoryStore.List(ctx, func(ctx context.Context, d *discount.Discount) bool {
		return CheckTenantFilter(ctx, d.TenantID)
	}, func(i, j *discount.Discount) bool {
		return i.Code < j.Code
	})
	if err != nil {
		return nil, err
	}

	out := make([]*discount.Discount, 0, len(items))
	for _, d := range items {
		out = append(out, d.Copy())
	}
	return out, nil
}

func (s *InMemoryDiscountStore) Update(ctx context.Context, d *discount.Discount) error {
	return s.CompareAndSwap(ctx, d.ID, d.Copy(), func(current *discount.Discount) error {
		if current.Version != d.Version-1 {
			return versionConflict("discount", d.ID, current.Version, d.Version-1)
		}
		return nil
	})
}

func (s *InMemoryDiscountStore) CommitUsage(ctx context.Context, d *discount.Discount, userID string, expectedVersion int) error {
	err := s.CompareAndSwap(ctx, d.ID, d.Copy(), func(current *discount.Discount) error {
		if current.Version != expectedVersion {
			return versionConflict("discount", d.ID, current.Version, expectedVersion)
		}
		if current.MaxUsage != nil && current.CurrentUsage >= *current.MaxUsage {
			return versionConflict("discount", d.ID, current.Version, expectedVersion)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.commits++
	s.mu.Unlock()
	return nil
}

// Commits returns how many usage commits were written
func (s *InMemoryDiscountStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Clear resets all stored data
func (s *InMemoryDiscountStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InMemoryStore.Clear()
	s.commits = 0
}
