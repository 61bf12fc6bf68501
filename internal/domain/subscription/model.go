package subscription

import (
	"time"

	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
	"github.com/shopspring/decimal"
)

// Subscription is one student's enrollment plan, tracked by sessions
// consumed and amount paid
type Subscription struct {
	ID              string          `json:"id" db:"id"`
	StudentID       string          `json:"student_id" db:"student_id"`
	PlanType        types.PlanType  `json:"plan_type" db:"plan_type"`
	Currency        string          `json:"currency" db:"currency"`
	SessionsTotal   int             `json:"sessions_total" db:"sessions_total"`
	SessionsUsed    int             `json:"sessions_used" db:"sessions_used"`
	AmountPaid      decimal.Decimal `json:"amount_paid" db:"amount_paid"`
	PlanPrice       decimal.Decimal `json:"plan_price" db:"plan_price"`
	StartDate       time.Time       `json:"start_date" db:"start_date"`
	EndDate         time.Time       `json:"end_date" db:"end_date"`
	PaymentDeadline *time.Time      `json:"payment_deadline,omitempty" db:"payment_deadline"`
	GraceDays       *int            `json:"grace_days,omitempty" db:"grace_days"`

	// RenewedFromID links a renewal to the subscription it was created from
	RenewedFromID *string `json:"renewed_from_id,omitempty" db:"renewed_from_id"`

	// SubscriptionStatus is a projection filled on read. It is recomputed
	// from the fields above and never trusted when loaded.
	SubscriptionStatus types.SubscriptionStatus `json:"subscription_status" db:"subscription_status"`
	Version            int                      `json:"version" db:"version"`
	types.BaseModel
}

// RemainingSessions returns how many sessions can still be consumed
func (s *Subscription) RemainingSessions() int {
	return s.SessionsTotal - s.SessionsUsed
}

// Balance returns what is left to pay on the plan
func (s *Subscription) Balance() decimal.Decimal {
	return s.PlanPrice.Sub(s.AmountPaid)
}

// EffectiveDeadline returns the payment deadline extended by the grace period
func (s *Subscription) EffectiveDeadline() (time.Time, bool) {
	if s.PaymentDeadline == nil {
		return time.Time{}, false
	}
	grace := 0
	if s.GraceDays != nil {
		grace = *s.GraceDays
	}
	return s.PaymentDeadline.AddDate(0, 0, grace), true
}

// Copy returns a copy that shares no pointers with s
func (s *Subscription) Copy() *Subscription {
	if s == nil {
		return nil
	}
	copied := *s
	if s.PaymentDeadline != nil {
		deadline := *s.PaymentDeadline
		copied.PaymentDeadline = &deadline
	}
	if s.GraceDays != nil {
		grace := *s.GraceDays
		copied.GraceDays = &grace
	}
	if s.RenewedFromID != nil {
		renewed := *s.RenewedFromID
		copied.RenewedFromID = &renewed
	}
	return &copied
}

func (s *Subscription) Validate() error {
	if s.StudentID == "" {
		return ierr.NewError("student_id is required").
			WithHint("Subscription must reference a student").
			Mark(ierr.ErrValidation)
	}

	if err := s.PlanType.Validate(); err != nil {
		return err
	}

	if s.SessionsTotal < 1 {
		return ierr.NewError("sessions_total must be at least 1").
			WithHint("A subscription must include at least one session").
			WithReportableDetails(map[string]any{"sessions_total": s.SessionsTotal}).
			Mark(ierr.ErrValidation)
	}

	if s.SessionsUsed < 0 || s.SessionsUsed > s.SessionsTotal {
		return ierr.NewError("sessions_used out of range").
			WithHint("Sessions used must be between zero and the total number of sessions").
			WithReportableDetails(map[string]any{
				"sessions_used":  s.SessionsUsed,
				"sessions_total": s.SessionsTotal,
			}).
			Mark(ierr.ErrValidation)
	}

	if s.AmountPaid.IsNegative() || s.PlanPrice.IsNegative() {
		return ierr.NewError("amounts must not be negative").
			WithHint("Plan price and amount paid must be zero or greater").
			WithReportableDetails(map[string]any{
				"amount_paid": s.AmountPaid,
				"plan_price":  s.PlanPrice,
			}).
			Mark(ierr.ErrValidation)
	}

	if s.EndDate.Before(s.StartDate) {
		return ierr.NewError("end_date must not be before start_date").
			WithHint("Subscription end date must be after its start date").
			Mark(ierr.ErrValidation)
	}

	if s.GraceDays != nil && *s.GraceDays < 0 {
		return ierr.NewError("grace_days must not be negative").
			WithHint("Grace days must be zero or greater").
			Mark(ierr.ErrValidation)
	}

	return nil
}
