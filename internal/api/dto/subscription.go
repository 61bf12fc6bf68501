package dto

import (
	"context"
	"time"

	"github.com/edulane/billing/internal/domain/subscription"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
	"github.com/edulane/billing/internal/validator"
	"github.com/shopspring/decimal"
)

// CreateSubscriptionRequest enrolls a student in a plan
type CreateSubscriptionRequest struct {
	StudentID       string          `json:"student_id" validate:"required"`
	PlanType        types.PlanType  `json:"plan_type" validate:"required"`
	Currency        string          `json:"currency" validate:"required,len=3"`
	SessionsTotal   int             `json:"sessions_total" validate:"required,gte=1"`
	PlanPrice       decimal.Decimal `json:"plan_price"`
	StartDate       time.Time       `json:"start_date" validate:"required"`
	EndDate         time.Time       `json:"end_date" validate:"required"`
	PaymentDeadline *time.Time      `json:"payment_deadline,omitempty"`
	GraceDays       *int            `json:"grace_days,omitempty" validate:"omitempty,gte=0"`
}

func (r *CreateSubscriptionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}

	if err := r.PlanType.Validate(); err != nil {
		return err
	}

	if r.PlanPrice.IsNegative() {
		return ierr.NewError("plan_price must not be negative").
			WithHint("Plan price must be zero or greater").
			Mark(ierr.ErrValidation)
	}

	if r.EndDate.Before(r.StartDate) {
		return ierr.NewError("end_date must not be before start_date").
			WithHint("Subscription end date must be after its start date").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *CreateSubscriptionRequest) ToSubscription(ctx context.Context) *subscription.Subscription {
	return &subscription.Subscription{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		StudentID:       r.StudentID,
		PlanType:        r.PlanType,
		Currency:        types.NormalizeCurrency(r.Currency),
		SessionsTotal:   r.SessionsTotal,
		SessionsUsed:    0,
		AmountPaid:      decimal.Zero,
		PlanPrice:       types.RoundMoney(r.PlanPrice),
		StartDate:       r.StartDate.UTC(),
		EndDate:         r.EndDate.UTC(),
		PaymentDeadline: r.PaymentDeadline,
		GraceDays:       r.GraceDays,
		Version:         1,
		BaseModel:       types.GetDefaultBaseModel(ctx),
	}
}

// SubscriptionResponse carries the subscription with its status resolved
// at read time
type SubscriptionResponse struct {
	*subscription.Subscription
	RemainingSessions int             `json:"remaining_sessions"`
	Balance           decimal.Decimal `json:"balance"`
}

func NewSubscriptionResponse(s *subscription.Subscription) *SubscriptionResponse {
	return &SubscriptionResponse{
		Subscription:      s,
		RemainingSessions: s.RemainingSessions(),
		Balance:           s.Balance(),
	}
}

// RecordSubscriptionPaymentRequest credits a payment to a subscription
type RecordSubscriptionPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (r *RecordSubscriptionPaymentRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return ierr.NewError("amount must be positive").
			WithHint("Payment amount must be greater than zero").
			WithReportableDetails(map[string]any{"amount": r.Amount.String()}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
