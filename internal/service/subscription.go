package service

import (
	"context"

	"github.com/edulane/billing/internal/api/dto"
	"github.com/edulane/billing/internal/domain/subscription"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
)

// resolveConcurrency bounds the parallel reads of ResolveStatuses
const resolveConcurrency = 8

// SubscriptionService defines the interface for subscription operations.
// Every subscription returned carries its status resolved at read time.
type SubscriptionService interface {
	CreateSubscription(ctx context.Context, req dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error)
	GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	ListSubscriptionsByStudent(ctx context.Context, studentID string) ([]*dto.SubscriptionResponse, error)
	RecordPayment(ctx context.Context, id string, req dto.RecordSubscriptionPaymentRequest) (*dto.SubscriptionResponse, error)
	ConsumeSession(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	RenewSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	ResolveStatuses(ctx context.Context, ids []string) ([]*dto.SubscriptionResponse, error)
}

type subscriptionService struct {
	ServiceParams
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{
		ServiceParams: params,
	}
}

func (s *subscriptionService) CreateSubscription(ctx context.Context, req dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub := req.ToSubscription(ctx).WithStatus(s.now())
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	if err := s.SubRepo.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.Logger.Infow("created subscription",
		"subscription_id", sub.ID,
		"student_id", sub.StudentID,
		"plan_type", sub.PlanType,
		"sessions_total", sub.SessionsTotal,
	)
	return dto.NewSubscriptionResponse(sub), nil
}

func (s *subscriptionService) GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	sub, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewSubscriptionResponse(sub), nil
}

func (s *subscriptionService) get(ctx context.Context, id string) (*subscription.Subscription, error) {
	if id == "" {
		return nil, ierr.NewError("subscription_id is required").
			WithHint("Subscription ID is required").
			Mark(ierr.ErrValidation)
	}

	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sub.WithStatus(s.now()), nil
}

func (s *subscriptionService) ListSubscriptionsByStudent(ctx context.Context, studentID string) ([]*dto.SubscriptionResponse, error) {
	subs, err := s.SubRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	return lo.Map(subs, func(sub *subscription.Subscription, _ int) *dto.SubscriptionResponse {
		return dto.NewSubscriptionResponse(sub.WithStatus(now))
	}), nil
}

func (s *subscriptionService) RecordPayment(ctx context.Context, id string, req dto.RecordSubscriptionPaymentRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := s.recordPayment(ctx, sub, req)
	if err != nil {
		return nil, err
	}
	return dto.NewSubscriptionResponse(next), nil
}

func (s *subscriptionService) recordPayment(ctx context.Context, sub *subscription.Subscription, req dto.RecordSubscriptionPaymentRequest) (*subscription.Subscription, error) {
	next, err := sub.RecordPayment(req.Amount, s.now())
	if err != nil {
		return nil, err
	}
	next.Touch(ctx)

	if err := s.SubRepo.Update(ctx, next); err != nil {
		return nil, err
	}

	s.Logger.Infow("recorded subscription payment",
		"subscription_id", next.ID,
		"amount", req.Amount,
		"amount_paid", next.AmountPaid,
		"status", next.SubscriptionStatus,
	)
	return next, nil
}

func (s *subscriptionService) ConsumeSession(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	sub, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := sub.ConsumeSession(s.now())
	if err != nil {
		return nil, err
	}
	next.Touch(ctx)

	if err := s.SubRepo.Update(ctx, next); err != nil {
		return nil, err
	}

	s.Logger.Infow("consumed subscription session",
		"subscription_id", next.ID,
		"sessions_used", next.SessionsUsed,
		"sessions_total", next.SessionsTotal,
		"status", next.SubscriptionStatus,
	)
	return dto.NewSubscriptionResponse(next), nil
}

// RenewSubscription stores a fresh record that starts active-partially-paid.
// Reads project its status from then on.
func (s *subscriptionService) RenewSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	sub, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	renewed := subscription.Renew(sub, now)
	renewed.Version = 1
	renewed.CreatedBy = types.GetUserID(ctx)
	renewed.Touch(ctx)

	if err := renewed.Validate(); err != nil {
		return nil, err
	}

	if err := s.SubRepo.Create(ctx, renewed); err != nil {
		return nil, err
	}

	s.Logger.Infow("renewed subscription",
		"subscription_id", renewed.ID,
		"renewed_from_id", sub.ID,
		"student_id", renewed.StudentID,
	)
	return dto.NewSubscriptionResponse(renewed), nil
}

// ResolveStatuses reads the given subscriptions in parallel and returns
// them in the requested order with their current status
func (s *subscriptionService) ResolveStatuses(ctx context.Context, ids []string) ([]*dto.SubscriptionResponse, error) {
	results := make([]*dto.SubscriptionResponse, len(ids))

	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(resolveConcurrency)

	for i, id := range ids {
		p.Go(func(ctx context.Context) error {
			sub, err := s.get(ctx, id)
			if err != nil {
				return err
			}
			results[i] = dto.NewSubscriptionResponse(sub)
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
