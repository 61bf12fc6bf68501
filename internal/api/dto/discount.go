package dto

import (
	"context"
	"time"

	"github.com/edulane/billing/internal/domain/discount"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
	"github.com/edulane/billing/internal/validator"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// CreateDiscountRequest represents the request to create a discount code
type CreateDiscountRequest struct {
	Code              string              `json:"code" validate:"required,max=64"`
	Description       string              `json:"description,omitempty"`
	Type              types.DiscountType  `json:"type" validate:"required"`
	Value             decimal.Decimal     `json:"value"`
	Currency          string              `json:"currency,omitempty" validate:"omitempty,len=3"`
	MaxUsage          *int                `json:"max_usage,omitempty" validate:"omitempty,gte=0"`
	MaxUsagePerUser   *int                `json:"max_usage_per_user,omitempty" validate:"omitempty,gte=0"`
	MinOrderAmount    *decimal.Decimal    `json:"min_order_amount,omitempty"`
	MaxDiscountAmount *decimal.Decimal    `json:"max_discount_amount,omitempty"`
	ApplicableTo      types.DiscountScope `json:"applicable_to" validate:"required"`
	ApplicableIDs     []string            `json:"applicable_ids,omitempty" validate:"omitempty,dive,required"`
	ValidFrom         *time.Time          `json:"valid_from,omitempty"`
	ValidUntil        *time.Time          `json:"valid_until,omitempty"`
	IsActive          *bool               `json:"is_active,omitempty"`
}

func (r *CreateDiscountRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}

	if err := r.Type.Validate(); err != nil {
		return err
	}

	return r.ApplicableTo.Validate()
}

// ToDiscount builds a discount with an empty ledger. Discounts are active
// unless the request says otherwise.
func (r *CreateDiscountRequest) ToDiscount(ctx context.Context) *discount.Discount {
	return &discount.Discount{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_DISCOUNT),
		Code:              discount.NormalizeCode(r.Code),
		Description:       r.Description,
		Type:              r.Type,
		Value:             r.Value,
		Currency:          types.NormalizeCurrency(r.Currency),
		MaxUsage:          r.MaxUsage,
		MaxUsagePerUser:   r.MaxUsagePerUser,
		MinOrderAmount:    r.MinOrderAmount,
		MaxDiscountAmount: r.MaxDiscountAmount,
		ApplicableTo:      r.ApplicableTo,
		ApplicableIDs:     lo.Uniq(r.ApplicableIDs),
		ValidFrom:         r.ValidFrom,
		ValidUntil:        r.ValidUntil,
		IsActive:          lo.FromPtrOr(r.IsActive, true),
		CurrentUsage:      0,
		Ledger:            []*discount.LedgerEntry{},
		Version:           1,
		BaseModel:         types.GetDefaultBaseModel(ctx),
	}
}

// DiscountResponse represents a discount with its usage ledger
type DiscountResponse struct {
	*discount.Discount
}

// EvaluateDiscountRequest asks whether a code applies to a proposed charge
type EvaluateDiscountRequest struct {
	Code           string          `json:"code" validate:"required"`
	UserID         string          `json:"user_id" validate:"required"`
	ProposedAmount decimal.Decimal `json:"proposed_amount"`
	TargetEntityID string          `json:"target_entity_id,omitempty"`
	// At overrides the evaluation time, defaults to now
	At *time.Time `json:"at,omitempty"`
}

func (r *EvaluateDiscountRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}

	if r.ProposedAmount.IsNegative() {
		return ierr.NewError("proposed_amount must not be negative").
			WithHint("Proposed amount must be zero or greater").
			WithReportableDetails(map[string]any{
				"proposed_amount": r.ProposedAmount.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// EvaluateDiscountResponse is the structured outcome of an evaluation
type EvaluateDiscountResponse struct {
	DiscountID string `json:"discount_id"`
	Code       string `json:"code"`
	discount.EvaluationResult
	Message string `json:"message,omitempty"`
}

// CommitDiscountUsageRequest records one redemption of a code
type CommitDiscountUsageRequest struct {
	Code          string     `json:"code" validate:"required"`
	UserID        string     `json:"user_id" validate:"required"`
	TransactionID string     `json:"transaction_id" validate:"required"`
	At            *time.Time `json:"at,omitempty"`
}

func (r *CommitDiscountUsageRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// CommitDiscountUsageResponse reports whether the redemption was recorded.
// A cap reached between evaluation and commit is reported through Reason.
type CommitDiscountUsageResponse struct {
	Committed       bool                       `json:"committed"`
	AlreadyRecorded bool                       `json:"already_recorded,omitempty"`
	Reason          types.DiscountRejectReason `json:"reason,omitempty"`
	Discount        *DiscountResponse          `json:"discount"`
}
