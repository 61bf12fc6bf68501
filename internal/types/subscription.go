package types

import (
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/samber/lo"
)

// SubscriptionStatus is the billing state of a subscription. It is always
// derived from the subscription's counters and deadlines and is never a
// source of truth on its own.
type SubscriptionStatus string

const (
	SubscriptionStatusActiveFullyPaid     SubscriptionStatus = "active_fully_paid"
	SubscriptionStatusActivePartiallyPaid SubscriptionStatus = "active_partially_paid"
	SubscriptionStatusDueSoon             SubscriptionStatus = "due_soon"
	SubscriptionStatusExpired             SubscriptionStatus = "expired"
	SubscriptionStatusOnHold              SubscriptionStatus = "on_hold"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

func (s SubscriptionStatus) Validate() error {
	allowed := []SubscriptionStatus{
		SubscriptionStatusActiveFullyPaid,
		SubscriptionStatusActivePartiallyPaid,
		SubscriptionStatusDueSoon,
		SubscriptionStatusExpired,
		SubscriptionStatusOnHold,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid subscription status").
			WithHint("Please provide a valid subscription status").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
				"status":  s,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsActive reports whether sessions may still be booked against the subscription
func (s SubscriptionStatus) IsActive() bool {
	return s != SubscriptionStatusExpired && s != SubscriptionStatusOnHold
}

// PlanType is how a subscription is sold to a student
type PlanType string

const (
	// PlanTypeRecurringPeriod is a plan billed for a calendar period, e.g. a month of classes
	PlanTypeRecurringPeriod PlanType = "recurring_period"
	// PlanTypeFixedLectureCount is a pack of a fixed number of lectures
	PlanTypeFixedLectureCount PlanType = "fixed_lecture_count"
)

func (p PlanType) String() string {
	return string(p)
}

func (p PlanType) Validate() error {
	allowed := []PlanType{
		PlanTypeRecurringPeriod,
		PlanTypeFixedLectureCount,
	}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid plan type").
			WithHint("Please provide a valid plan type").
			WithReportableDetails(map[string]any{
				"allowed":   allowed,
				"plan_type": p,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
