package subscription

import (
	"time"

	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
	"github.com/shopspring/decimal"
)

func errExpired(s *Subscription, op string) error {
	return ierr.NewError("subscription is expired").
		WithHintf("Cannot %s an expired subscription", op).
		WithReportableDetails(map[string]any{
			"subscription_id": s.ID,
			"sessions_used":   s.SessionsUsed,
			"sessions_total":  s.SessionsTotal,
		}).
		Mark(ierr.ErrInvalidOperation)
}

// RecordPayment returns a copy of s with amount added to what was paid
func (s *Subscription) RecordPayment(amount decimal.Decimal, now time.Time) (*Subscription, error) {
	if s.IsExpired() {
		return nil, errExpired(s, "record a payment on")
	}

	if !amount.IsPositive() {
		return nil, ierr.NewError("payment amount must be positive").
			WithHint("Payment amount must be greater than zero").
			WithReportableDetails(map[string]any{"amount": amount}).
			Mark(ierr.ErrValidation)
	}

	next := s.Copy()
	next.AmountPaid = types.RoundMoney(s.AmountPaid.Add(amount))
	next.Version = s.Version + 1
	return next.WithStatus(now), nil
}

// ConsumeSession returns a copy of s with one more session used
func (s *Subscription) ConsumeSession(now time.Time) (*Subscription, error) {
	if s.IsExpired() {
		return nil, errExpired(s, "consume a session of")
	}

	next := s.Copy()
	next.SessionsUsed = s.SessionsUsed + 1
	next.Version = s.Version + 1
	return next.WithStatus(now), nil
}

// Renew creates a new subscription continuing s from now. Counters start
// from zero and the new period has the same length as the old one; s is
// not modified.
func Renew(s *Subscription, now time.Time) *Subscription {
	duration := s.EndDate.Sub(s.StartDate)
	renewedFrom := s.ID

	renewed := &Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		StudentID:          s.StudentID,
		PlanType:           s.PlanType,
		Currency:           s.Currency,
		SessionsTotal:      s.SessionsTotal,
		SessionsUsed:       0,
		AmountPaid:         decimal.Zero,
		PlanPrice:          s.PlanPrice,
		StartDate:          now,
		EndDate:            now.Add(duration),
		RenewedFromID:      &renewedFrom,
		SubscriptionStatus: types.SubscriptionStatusActivePartiallyPaid,
		BaseModel: types.BaseModel{
			TenantID:  s.TenantID,
			Status:    types.StatusPublished,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	if s.GraceDays != nil {
		grace := *s.GraceDays
		renewed.GraceDays = &grace
	}

	// The old deadline is carried over at the same offset from the start
	if s.PaymentDeadline != nil {
		deadline := now.Add(s.PaymentDeadline.Sub(s.StartDate))
		renewed.PaymentDeadline = &deadline
	}

	return renewed
}
