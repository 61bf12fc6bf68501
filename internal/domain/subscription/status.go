package subscription

import (
	"time"

	"github.com/edulane/billing/internal/types"
)

// Resolve derives the status of s at now. Rules are evaluated in order and
// the first match wins:
//
//  1. all sessions consumed            -> expired
//  2. nothing left to pay              -> active, fully paid
//  3. exactly one session left         -> due soon
//  4. past deadline + grace, unpaid    -> on hold
//  5. otherwise                        -> active, partially paid
func Resolve(s *Subscription, now time.Time) types.SubscriptionStatus {
	if s.SessionsUsed >= s.SessionsTotal {
		return types.SubscriptionStatusExpired
	}

	if !s.Balance().IsPositive() {
		return types.SubscriptionStatusActiveFullyPaid
	}

	if s.RemainingSessions() == 1 {
		return types.SubscriptionStatusDueSoon
	}

	if deadline, ok := s.EffectiveDeadline(); ok {
		if now.After(deadline) && s.AmountPaid.LessThan(s.PlanPrice) {
			return types.SubscriptionStatusOnHold
		}
	}

	return types.SubscriptionStatusActivePartiallyPaid
}

// WithStatus returns s with its status projection recomputed at now
func (s *Subscription) WithStatus(now time.Time) *Subscription {
	s.SubscriptionStatus = Resolve(s, now)
	return s
}

// IsExpired reports whether the subscription is exhausted and immutable
func (s *Subscription) IsExpired() bool {
	return Resolve(s, time.Time{}) == types.SubscriptionStatusExpired
}
