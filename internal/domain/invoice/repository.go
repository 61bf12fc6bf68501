package invoice

import (
	"context"

	"github.com/edulane/billing/internal/types"
)

// Repository defines the interface for invoice data access.
// Update is conditioned on the stored version being inv.Version-1.
type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	ListBySubscription(ctx context.Context, subscriptionID string) ([]*Invoice, error)
	ListByStatus(ctx context.Context, status types.InvoiceStatus) ([]*Invoice, error)

	// NextSequenceValue atomically increments and returns the counter for key
	NextSequenceValue(ctx context.Context, key SequenceKey) (int64, error)
}
