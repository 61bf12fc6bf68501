package types

import (
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/samber/lo"
)

// DiscountType represents how a discount amount is computed
type DiscountType string

const (
	// DiscountTypeFixedAmount takes a flat amount off the charge
	DiscountTypeFixedAmount DiscountType = "fixed_amount"
	// DiscountTypePercentage takes a percentage of the charge off
	DiscountTypePercentage DiscountType = "percentage"
	// DiscountTypeBuyXGetY is accepted and validated, but the benefit is
	// applied by the caller. The engine always computes a zero amount for it.
	DiscountTypeBuyXGetY DiscountType = "buy_x_get_y"
)

func (t DiscountType) String() string {
	return string(t)
}

func (t DiscountType) Validate() error {
	allowed := []DiscountType{
		DiscountTypeFixedAmount,
		DiscountTypePercentage,
		DiscountTypeBuyXGetY,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid discount type").
			WithHint("Please provide a valid discount type").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
				"type":    t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsComputed reports whether the engine computes an amount for this type
func (t DiscountType) IsComputed() bool {
	return t == DiscountTypeFixedAmount || t == DiscountTypePercentage
}

// DiscountScope is the kind of entity a discount may be applied to
type DiscountScope string

const (
	DiscountScopeCourse       DiscountScope = "course"
	DiscountScopeGroup        DiscountScope = "group"
	DiscountScopeSubscription DiscountScope = "subscription"
)

func (s DiscountScope) String() string {
	return string(s)
}

func (s DiscountScope) Validate() error {
	allowed := []DiscountScope{
		DiscountScopeCourse,
		DiscountScopeGroup,
		DiscountScopeSubscription,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid discount scope").
			WithHint("Please provide a valid discount scope").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
				"scope":   s,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
