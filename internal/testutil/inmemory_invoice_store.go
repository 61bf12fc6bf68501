package testutil

import (
	"context"
	"sync"

	"github.com/edulane/billing/internal/domain/invoice"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
	"github.com/samber/lo"
)

// InMemoryInvoiceStore implements invoice.Repository
type InMemoryInvoiceStore struct {
	*InMemoryStore[*invoice.Invoice]
	mu        sync.Mutex
	sequences map[invoice.SequenceKey]int64
}

// NewInMemoryInvoiceStore creates a new in-memory invoice store
func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		InMemoryStore: NewInMemoryStore[*invoice.Invoice](),
		sequences:     make(map[invoice.SequenceKey]int64),
	}
}

func (s *InMemoryInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	if inv == nil {
		return ierr.NewError("invoice cannot be nil").
			WithHint("Invoice cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, inv.ID, inv.Copy())
}

func (s *InMemoryInvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Invoice %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return inv.Copy(), nil
}

func (s *InMemoryInvoiceStore) Update(ctx context.Context, inv *invoice.Invoice) error {
	return s.CompareAndSwap(ctx, inv.ID, inv.Copy(), func(current *invoice.Invoice) error {
		if current.Version != inv.Version-1 {
			return versionConflict("invoice", inv.ID, current.Version, inv.Version-1)
		}
		return nil
	})
}

func (s *InMemoryInvoiceStore) ListBySubscription(ctx context.Context, subscriptionID string) ([]*invoice.Invoice, error) {
	return s.list(ctx, func(inv *invoice.Invoice) bool {
		return lo.FromPtr(inv.SubscriptionID) == subscriptionID
	})
}

func (s *InMemoryInvoiceStore) ListByStatus(ctx context.Context, status types.InvoiceStatus) ([]*invoice.Invoice, error) {
	return s.list(ctx, func(inv *invoice.Invoice) bool {
		return inv.InvoiceStatus == status
	})
}

func (s *InMemoryInvoiceStore) list(ctx context.Context, match func(*invoice.Invoice) bool) ([]*invoice.Invoice, error) {
	items, err := s.InMemoryStore.List(ctx, func(ctx context.Context, inv *invoice.Invoice) bool {
		return match(inv) && CheckTenantFilter(ctx, inv.TenantID)
	}, func(i, j *invoice.Invoice) bool {
		return i.CreatedAt.Before(j.CreatedAt) || (i.CreatedAt.Equal(j.CreatedAt) && i.ID < j.ID)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(items, func(inv *invoice.Invoice, _ int) *invoice.Invoice {
		return inv.Copy()
	}), nil
}

func (s *InMemoryInvoiceStore) NextSequenceValue(ctx context.Context, key invoice.SequenceKey) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequences[key]++
	return s.sequences[key], nil
}

// Clear resets all stored data
func (s *InMemoryInvoiceStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InMemoryStore.Clear()
	s.sequences = make(map[invoice.SequenceKey]int64)
}
