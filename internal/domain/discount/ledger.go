package discount

import (
	"time"

	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
)

// WithUsage returns a copy of d with one redemption by userID recorded.
// The global counter and the user's ledger entry move together and the
// version is bumped; d itself is left untouched. Recording a transaction
// that is already in the user's entry fails with ErrAlreadyExists.
func (d *Discount) WithUsage(userID, transactionID string, at time.Time) (*Discount, error) {
	if userID == "" || transactionID == "" {
		return nil, ierr.NewError("user and transaction are required to record usage").
			WithHint("Discount usage must reference a user and a transaction").
			Mark(ierr.ErrValidation)
	}

	if err := d.VerifyLedger(); err != nil {
		return nil, err
	}

	if d.HasTransaction(userID, transactionID) {
		return nil, ierr.NewError("discount usage already recorded for transaction").
			WithReportableDetails(map[string]any{
				"discount_id":    d.ID,
				"user_id":        userID,
				"transaction_id": transactionID,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	next := d.Copy()
	entry := next.LedgerEntryFor(userID)
	if entry == nil {
		entry = &LedgerEntry{
			ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_LEDGER_ENTRY),
			DiscountID:  d.ID,
			UserID:      userID,
			FirstUsedAt: at,
		}
		next.Ledger = append(next.Ledger, entry)
	}

	entry.UsageCount++
	entry.LastUsedAt = at
	entry.TransactionIDs = append(entry.TransactionIDs, transactionID)
	next.CurrentUsage++
	next.Version = d.Version + 1

	return next, nil
}
