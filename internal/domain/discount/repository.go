package discount

import (
	"context"
)

// Repository defines the interface for discount data access.
//
// CommitUsage persists the global counter and the ledger entry of userID
// from d in one atomic write, conditioned on the stored version still being
// expectedVersion and the global cap not being reached. A lost race is
// reported as ierr.ErrVersionConflict.
type Repository interface {
	Create(ctx context.Context, d *Discount) error
	Get(ctx context.Context, id string) (*Discount, error)
	GetByCode(ctx context.Context, code string) (*Discount, error)
	List(ctx context.Context) ([]*Discount, error)
	Update(ctx context.Context, d *Discount) error
	CommitUsage(ctx context.Context, d *Discount, userID string, expectedVersion int) error
}
