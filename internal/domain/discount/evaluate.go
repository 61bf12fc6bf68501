package discount

import (
	"time"

	"github.com/edulane/billing/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// EvaluationContext is the charge a discount is being evaluated against
type EvaluationContext struct {
	Now            time.Time
	UserID         string
	ProposedAmount decimal.Decimal
	TargetEntityID string
}

// EvaluationResult is the outcome of evaluating a discount. A rejected
// discount is a result, not an error.
type EvaluationResult struct {
	Valid  bool                       `json:"valid"`
	Reason types.DiscountRejectReason `json:"reason,omitempty"`
	Amount decimal.Decimal            `json:"amount"`

	// CallerApplied is set for discount types whose benefit the engine
	// cannot compute. Amount is zero and the caller applies the benefit.
	CallerApplied bool `json:"caller_applied,omitempty"`
}

func rejected(reason types.DiscountRejectReason) EvaluationResult {
	return EvaluationResult{Valid: false, Reason: reason, Amount: decimal.Zero}
}

// Evaluate decides whether d can be applied to the charge described by ec
// and computes the discount amount. Checks run in a fixed order and the
// first failure is reported. Evaluate never mutates d.
func Evaluate(d *Discount, ec EvaluationContext) EvaluationResult {
	if !d.IsActive {
		return rejected(types.DiscountRejectReasonInactive)
	}

	if d.ValidFrom != nil && ec.Now.Before(*d.ValidFrom) {
		return rejected(types.DiscountRejectReasonNotYetValid)
	}
	if d.ValidUntil != nil && ec.Now.After(*d.ValidUntil) {
		return rejected(types.DiscountRejectReasonExpired)
	}

	if reason, ok := d.CheckUsage(ec.UserID); !ok {
		return rejected(reason)
	}

	if d.MinOrderAmount != nil && ec.ProposedAmount.LessThan(*d.MinOrderAmount) {
		return rejected(types.DiscountRejectReasonMinOrderNotMet)
	}

	if d.IsScoped() && !lo.Contains(d.ApplicableIDs, ec.TargetEntityID) {
		return rejected(types.DiscountRejectReasonNotApplicable)
	}

	if !d.Type.IsComputed() {
		return EvaluationResult{Valid: true, Amount: decimal.Zero, CallerApplied: true}
	}

	return EvaluationResult{Valid: true, Amount: d.ComputeAmount(ec.ProposedAmount)}
}

// CheckUsage runs only the usage cap checks. It is what must be re-checked
// right before a redemption is committed.
func (d *Discount) CheckUsage(userID string) (types.DiscountRejectReason, bool) {
	if d.MaxUsage != nil && d.CurrentUsage >= *d.MaxUsage {
		return types.DiscountRejectReasonUsageLimitReached, false
	}

	if d.MaxUsagePerUser != nil && d.UsageBy(userID) >= *d.MaxUsagePerUser {
		return types.DiscountRejectReasonUserUsageLimitReached, false
	}

	return "", true
}

// ComputeAmount returns the discount amount for a charge, clamped to
// MaxDiscountAmount and rounded half up to cents
func (d *Discount) ComputeAmount(proposed decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch d.Type {
	case types.DiscountTypeFixedAmount:
		amount = d.Value
	case types.DiscountTypePercentage:
		amount = types.Percent(proposed, d.Value)
	default:
		return decimal.Zero
	}

	if d.MaxDiscountAmount != nil && amount.GreaterThan(*d.MaxDiscountAmount) {
		amount = *d.MaxDiscountAmount
	}

	return types.RoundMoney(amount)
}
