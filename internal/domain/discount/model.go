package discount

import (
	"strings"
	"time"

	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Discount is a promotional code definition together with its usage ledger
type Discount struct {
	ID                string              `json:"id" db:"id"`
	Code              string              `json:"code" db:"code"`
	Description       string              `json:"description" db:"description"`
	Type              types.DiscountType  `json:"type" db:"type"`
	Value             decimal.Decimal     `json:"value" db:"value"`
	Currency          string              `json:"currency" db:"currency"`
	MaxUsage          *int                `json:"max_usage,omitempty" db:"max_usage"`
	MaxUsagePerUser   *int                `json:"max_usage_per_user,omitempty" db:"max_usage_per_user"`
	MinOrderAmount    *decimal.Decimal    `json:"min_order_amount,omitempty" db:"min_order_amount"`
	MaxDiscountAmount *decimal.Decimal    `json:"max_discount_amount,omitempty" db:"max_discount_amount"`
	ApplicableTo      types.DiscountScope `json:"applicable_to" db:"applicable_to"`
	ApplicableIDs     []string            `json:"applicable_ids,omitempty" db:"-"`
	ValidFrom         *time.Time          `json:"valid_from,omitempty" db:"valid_from"`
	ValidUntil        *time.Time          `json:"valid_until,omitempty" db:"valid_until"`
	IsActive          bool                `json:"is_active" db:"is_active"`

	// CurrentUsage always equals the sum of UsageCount over Ledger
	CurrentUsage int            `json:"current_usage" db:"current_usage"`
	Ledger       []*LedgerEntry `json:"ledger,omitempty" db:"-"`
	Version      int            `json:"version" db:"version"`
	types.BaseModel
}

// LedgerEntry records every redemption of a discount by one user
type LedgerEntry struct {
	ID             string    `json:"id" db:"id"`
	DiscountID     string    `json:"discount_id" db:"discount_id"`
	UserID         string    `json:"user_id" db:"user_id"`
	UsageCount     int       `json:"usage_count" db:"usage_count"`
	FirstUsedAt    time.Time `json:"first_used_at" db:"first_used_at"`
	LastUsedAt     time.Time `json:"last_used_at" db:"last_used_at"`
	TransactionIDs []string  `json:"transaction_ids" db:"-"`
}

// NormalizeCode returns the canonical form codes are stored and looked up by
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LedgerEntryFor returns the ledger entry of userID, nil if the user never
// redeemed the discount
func (d *Discount) LedgerEntryFor(userID string) *LedgerEntry {
	entry, ok := lo.Find(d.Ledger, func(e *LedgerEntry) bool {
		return e.UserID == userID
	})
	if !ok {
		return nil
	}
	return entry
}

// UsageBy returns how many times userID redeemed the discount
func (d *Discount) UsageBy(userID string) int {
	if entry := d.LedgerEntryFor(userID); entry != nil {
		return entry.UsageCount
	}
	return 0
}

// HasTransaction reports whether transactionID was already recorded for userID
func (d *Discount) HasTransaction(userID, transactionID string) bool {
	entry := d.LedgerEntryFor(userID)
	return entry != nil && lo.Contains(entry.TransactionIDs, transactionID)
}

// IsScoped reports whether the discount is limited to specific entities
func (d *Discount) IsScoped() bool {
	return len(d.ApplicableIDs) > 0
}

// Validate checks the definition of the discount, not its applicability
func (d *Discount) Validate() error {
	if NormalizeCode(d.Code) == "" {
		return ierr.NewError("discount code is required").
			WithHint("Please provide a discount code").
			Mark(ierr.ErrValidation)
	}

	if err := d.Type.Validate(); err != nil {
		return err
	}

	if err := d.ApplicableTo.Validate(); err != nil {
		return err
	}

	if d.Value.IsNegative() {
		return ierr.NewError("discount value must not be negative").
			WithHint("Discount value must be zero or greater").
			WithReportableDetails(map[string]any{"value": d.Value}).
			Mark(ierr.ErrValidation)
	}

	if d.Type == types.DiscountTypePercentage && d.Value.GreaterThan(decimal.NewFromInt(100)) {
		return ierr.NewError("percentage discount cannot exceed 100").
			WithHint("Percentage discounts must be between 0 and 100").
			WithReportableDetails(map[string]any{"value": d.Value}).
			Mark(ierr.ErrValidation)
	}

	if d.MaxUsage != nil && *d.MaxUsage < 0 {
		return ierr.NewError("max usage must not be negative").
			WithHint("Max usage must be zero or greater").
			Mark(ierr.ErrValidation)
	}

	if d.MaxUsagePerUser != nil && *d.MaxUsagePerUser < 0 {
		return ierr.NewError("max usage per user must not be negative").
			WithHint("Max usage per user must be zero or greater").
			Mark(ierr.ErrValidation)
	}

	if d.MinOrderAmount != nil && d.MinOrderAmount.IsNegative() {
		return ierr.NewError("min order amount must not be negative").
			WithHint("Minimum order amount must be zero or greater").
			Mark(ierr.ErrValidation)
	}

	if d.MaxDiscountAmount != nil && d.MaxDiscountAmount.IsNegative() {
		return ierr.NewError("max discount amount must not be negative").
			WithHint("Maximum discount amount must be zero or greater").
			Mark(ierr.ErrValidation)
	}

	if d.ValidFrom != nil && d.ValidUntil != nil && d.ValidUntil.Before(*d.ValidFrom) {
		return ierr.NewError("valid_until must not be before valid_from").
			WithHint("The end of the validity window must be after its start").
			WithReportableDetails(map[string]any{
				"valid_from":  d.ValidFrom,
				"valid_until": d.ValidUntil,
			}).
			Mark(ierr.ErrValidation)
	}

	return d.VerifyLedger()
}

// VerifyLedger checks that the global usage counter matches the ledger
func (d *Discount) VerifyLedger() error {
	total := 0
	seen := make(map[string]struct{}, len(d.Ledger))
	for _, entry := range d.Ledger {
		if entry.UsageCount < 0 {
			return ierr.NewError("ledger entry has negative usage").
				WithReportableDetails(map[string]any{
					"discount_id": d.ID,
					"user_id":     entry.UserID,
				}).
				Mark(ierr.ErrInvariantViolation)
		}
		if _, dup := seen[entry.UserID]; dup {
			return ierr.NewError("duplicate ledger entry for user").
				WithReportableDetails(map[string]any{
					"discount_id": d.ID,
					"user_id":     entry.UserID,
				}).
				Mark(ierr.ErrInvariantViolation)
		}
		seen[entry.UserID] = struct{}{}
		total += entry.UsageCount
	}

	if total != d.CurrentUsage {
		return ierr.NewError("discount usage diverged from ledger").
			WithHint("Discount usage records are inconsistent").
			WithReportableDetails(map[string]any{
				"discount_id":   d.ID,
				"current_usage": d.CurrentUsage,
				"ledger_usage":  total,
			}).
			Mark(ierr.ErrInvariantViolation)
	}

	return nil
}

// Copy returns a deep copy of the discount and its ledger
func (d *Discount) Copy() *Discount {
	if d == nil {
		return nil
	}

	copied := *d
	copied.ApplicableIDs = append([]string(nil), d.ApplicableIDs...)
	copied.Ledger = lo.Map(d.Ledger, func(e *LedgerEntry, _ int) *LedgerEntry {
		entry := *e
		entry.TransactionIDs = append([]string(nil), e.TransactionIDs...)
		return &entry
	})
	if d.MaxUsage != nil {
		copied.MaxUsage = lo.ToPtr(*d.MaxUsage)
	}
	if d.MaxUsagePerUser != nil {
		copied.MaxUsagePerUser = lo.ToPtr(*d.MaxUsagePerUser)
	}
	if d.MinOrderAmount != nil {
		copied.MinOrderAmount = lo.ToPtr(*d.MinOrderAmount)
	}
	if d.MaxDiscountAmount != nil {
		copied.MaxDiscountAmount = lo.ToPtr(*d.MaxDiscountAmount)
	}
	if d.ValidFrom != nil {
		copied.ValidFrom = lo.ToPtr(*d.ValidFrom)
	}
	if d.ValidUntil != nil {
		copied.ValidUntil = lo.ToPtr(*d.ValidUntil)
	}
	return &copied
}
