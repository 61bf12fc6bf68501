package dto

import (
	"context"
	"time"

	"github.com/edulane/billing/internal/domain/discount"
	"github.com/edulane/billing/internal/domain/payment"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
	"github.com/edulane/billing/internal/validator"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ProcessPaymentRequest is a payment event for an invoice. PaymentID is
// assigned by the sender and makes redelivery a no-op.
type ProcessPaymentRequest struct {
	PaymentID      string          `json:"payment_id" validate:"required"`
	InvoiceID      string          `json:"invoice_id" validate:"required"`
	SubscriptionID *string         `json:"subscription_id,omitempty"`
	StudentID      string          `json:"student_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency" validate:"required,len=3"`
	DiscountCode   *string         `json:"discount_code,omitempty"`
	ReceivedAt     *time.Time      `json:"received_at,omitempty"`
}

func (r *ProcessPaymentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}

	if r.Amount.IsNegative() {
		return ierr.NewError("amount must not be negative").
			WithHint("Payment amount must be zero or greater").
			WithReportableDetails(map[string]any{"amount": r.Amount.String()}).
			Mark(ierr.ErrValidation)
	}

	if r.DiscountCode != nil && discount.NormalizeCode(*r.DiscountCode) == "" {
		return ierr.NewError("discount_code must not be blank").
			WithHint("Omit discount_code or provide a code").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *ProcessPaymentRequest) ToPayment(ctx context.Context, receivedAt time.Time) *payment.Payment {
	var code *string
	if r.DiscountCode != nil {
		code = lo.ToPtr(discount.NormalizeCode(*r.DiscountCode))
	}

	return &payment.Payment{
		ID:             r.PaymentID,
		InvoiceID:      r.InvoiceID,
		SubscriptionID: r.SubscriptionID,
		StudentID:      r.StudentID,
		Amount:         types.RoundMoney(r.Amount),
		Currency:       types.NormalizeCurrency(r.Currency),
		DiscountCode:   code,
		PaymentStatus:  types.PaymentStatusPending,
		ReceivedAt:     receivedAt,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
}

// ProcessPaymentResponse is the state after a payment was applied.
// Duplicate is set when the payment had already been processed.
type ProcessPaymentResponse struct {
	Payment            *payment.Payment             `json:"payment"`
	Invoice            *InvoiceResponse             `json:"invoice,omitempty"`
	Subscription       *SubscriptionResponse        `json:"subscription,omitempty"`
	DiscountRedemption *CommitDiscountUsageResponse `json:"discount_redemption,omitempty"`
	Duplicate          bool                         `json:"duplicate,omitempty"`
	SubscriptionStatus types.SubscriptionStatus     `json:"subscription_status,omitempty"`
}
