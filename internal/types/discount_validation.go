package types

import (
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/samber/lo"
)

// DiscountRejectReason explains why a discount was found but cannot be
// applied. Rejections are results, not errors.
type DiscountRejectReason string

const (
	DiscountRejectReasonInactive              DiscountRejectReason = "DISCOUNT_INACTIVE"
	DiscountRejectReasonNotYetValid           DiscountRejectReason = "DISCOUNT_NOT_YET_VALID"
	DiscountRejectReasonExpired               DiscountRejectReason = "DISCOUNT_EXPIRED"
	DiscountRejectReasonUsageLimitReached     DiscountRejectReason = "USAGE_LIMIT_REACHED"
	DiscountRejectReasonUserUsageLimitReached DiscountRejectReason = "USER_USAGE_LIMIT_REACHED"
	DiscountRejectReasonMinOrderNotMet        DiscountRejectReason = "MIN_ORDER_NOT_MET"
	DiscountRejectReasonNotApplicable         DiscountRejectReason = "NOT_APPLICABLE"
)

func (r DiscountRejectReason) String() string {
	return string(r)
}

func (r DiscountRejectReason) Validate() error {
	allowed := []DiscountRejectReason{
		DiscountRejectReasonInactive,
		DiscountRejectReasonNotYetValid,
		DiscountRejectReasonExpired,
		DiscountRejectReasonUsageLimitReached,
		DiscountRejectReasonUserUsageLimitReached,
		DiscountRejectReasonMinOrderNotMet,
		DiscountRejectReasonNotApplicable,
	}

	if !lo.Contains(allowed, r) {
		return ierr.NewError("invalid discount reject reason").
			WithHint("Please provide a valid discount reject reason").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
				"reason":  r,
			}).
			Mark(ierr.ErrValidation)
	}

	return nil
}

// Message returns the user facing text for the reason
func (r DiscountRejectReason) Message() string {
	switch r {
	case DiscountRejectReasonInactive:
		return "Discount code is not active"
	case DiscountRejectReasonNotYetValid:
		return "Discount code is not valid yet"
	case DiscountRejectReasonExpired:
		return "Discount code has expired"
	case DiscountRejectReasonUsageLimitReached:
		return "Discount code has reached its usage limit"
	case DiscountRejectReasonUserUsageLimitReached:
		return "You have already used this discount code the maximum number of times"
	case DiscountRejectReasonMinOrderNotMet:
		return "Order amount is below the minimum required for this discount code"
	case DiscountRejectReasonNotApplicable:
		return "Discount code does not apply to this item"
	default:
		return "Discount code cannot be applied"
	}
}

// IsUsageLimit returns true if the reason is one of the usage caps
func (r DiscountRejectReason) IsUsageLimit() bool {
	return r == DiscountRejectReasonUsageLimitReached ||
		r == DiscountRejectReasonUserUsageLimitReached
}

// IsWindow returns true if the reason is related to the validity window
func (r DiscountRejectReason) IsWindow() bool {
	return r == DiscountRejectReasonNotYetValid || r == DiscountRejectReasonExpired
}
