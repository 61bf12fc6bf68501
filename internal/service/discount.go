package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/edulane/billing/internal/api/dto"
	"github.com/edulane/billing/internal/cache"
	"github.com/edulane/billing/internal/domain/discount"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/metrics"
	"github.com/edulane/billing/internal/types"
	"github.com/samber/lo"
)

// commitRetryInterval is the pause before re-validating a lost commit race
const commitRetryInterval = 5 * time.Millisecond

// DiscountService defines the interface for discount operations
type DiscountService interface {
	CreateDiscount(ctx context.Context, req dto.CreateDiscountRequest) (*dto.DiscountResponse, error)
	GetDiscount(ctx context.Context, id string) (*dto.DiscountResponse, error)
	GetDiscountByCode(ctx context.Context, code string) (*dto.DiscountResponse, error)
	ListDiscounts(ctx context.Context) ([]*dto.DiscountResponse, error)
	SetDiscountActive(ctx context.Context, id string, active bool) (*dto.DiscountResponse, error)

	// EvaluateDiscount checks a code against a proposed charge. Only an
	// unknown code is an error, every other rejection is a result.
	EvaluateDiscount(ctx context.Context, req dto.EvaluateDiscountRequest) (*dto.EvaluateDiscountResponse, error)

	// CommitUsage records one redemption of a code by a user for a
	// transaction. Usage caps are re-checked against a fresh read and the
	// global counter and ledger entry are written together.
	CommitUsage(ctx context.Context, req dto.CommitDiscountUsageRequest) (*dto.CommitDiscountUsageResponse, error)
}

type discountService struct {
	ServiceParams
}

// NewDiscountService creates a new discount service
func NewDiscountService(params ServiceParams) DiscountService {
	return &discountService{
		ServiceParams: params,
	}
}

func (s *discountService) CreateDiscount(ctx context.Context, req dto.CreateDiscountRequest) (*dto.DiscountResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	d := req.ToDiscount(ctx)
	if d.Currency == "" && s.Config != nil {
		d.Currency = s.Config.Billing.Currency
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	if err := s.DiscountRepo.Create(ctx, d); err != nil {
		return nil, err
	}

	s.Logger.Infow("created discount",
		"discount_id", d.ID,
		"discount_code", d.Code,
		"type", d.Type,
	)

	return &dto.DiscountResponse{Discount: d}, nil
}

func (s *discountService) GetDiscount(ctx context.Context, id string) (*dto.DiscountResponse, error) {
	if id == "" {
		return nil, ierr.NewError("discount_id is required").
			WithHint("Discount ID is required").
			Mark(ierr.ErrValidation)
	}

	d, err := s.DiscountRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.DiscountResponse{Discount: d}, nil
}

func (s *discountService) GetDiscountByCode(ctx context.Context, code string) (*dto.DiscountResponse, error) {
	d, err := s.getByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return &dto.DiscountResponse{Discount: d}, nil
}

func (s *discountService) ListDiscounts(ctx context.Context) ([]*dto.DiscountResponse, error) {
	discounts, err := s.DiscountRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	return lo.Map(discounts, func(d *discount.Discount, _ int) *dto.DiscountResponse {
		return &dto.DiscountResponse{Discount: d}
	}), nil
}

func (s *discountService) SetDiscountActive(ctx context.Context, id string, active bool) (*dto.DiscountResponse, error) {
	d, err := s.DiscountRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if d.IsActive == active {
		return &dto.DiscountResponse{Discount: d}, nil
	}

	next := d.Copy()
	next.IsActive = active
	next.Version = d.Version + 1
	next.Touch(ctx)

	if err := s.DiscountRepo.Update(ctx, next); err != nil {
		return nil, err
	}

	s.Logger.Infow("updated discount state",
		"discount_id", d.ID,
		"discount_code", d.Code,
		"is_active", active,
	)
	return &dto.DiscountResponse{Discount: next}, nil
}

func (s *discountService) EvaluateDiscount(ctx context.Context, req dto.EvaluateDiscountRequest) (*dto.EvaluateDiscountResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	d, err := s.getByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	result := discount.Evaluate(d, discount.EvaluationContext{
		Now:            lo.FromPtrOr(req.At, s.now()),
		UserID:         req.UserID,
		ProposedAmount: req.ProposedAmount,
		TargetEntityID: req.TargetEntityID,
	})

	s.Logger.Debugw("evaluated discount",
		"discount_code", d.Code,
		"user_id", req.UserID,
		"valid", result.Valid,
		"reason", result.Reason,
		"amount", result.Amount,
	)

	resp := &dto.EvaluateDiscountResponse{
		DiscountID:       d.ID,
		Code:             d.Code,
		EvaluationResult: result,
	}
	if !result.Valid {
		resp.Message = result.Reason.Message()
	}
	return resp, nil
}

func (s *discountService) CommitUsage(ctx context.Context, req dto.CommitDiscountUsageRequest) (*dto.CommitDiscountUsageResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	code := discount.NormalizeCode(req.Code)
	at := lo.FromPtrOr(req.At, s.now())

	unlock := s.locks().Lock(types.GetTenantID(ctx) + ":" + code)
	defer unlock()

	var resp *dto.CommitDiscountUsageResponse
	attempt := 0

	operation := func() error {
		attempt++

		// always a fresh read, never a cached record
		d, err := s.getByCode(ctx, code)
		if err != nil {
			return backoff.Permanent(err)
		}

		if d.HasTransaction(req.UserID, req.TransactionID) {
			resp = &dto.CommitDiscountUsageResponse{
				AlreadyRecorded: true,
				Discount:        &dto.DiscountResponse{Discount: d},
			}
			return nil
		}

		if reason, ok := d.CheckUsage(req.UserID); !ok {
			s.Logger.Infow("discount usage cap reached at commit",
				"discount_code", code,
				"user_id", req.UserID,
				"transaction_id", req.TransactionID,
				"reason", reason,
			)
			resp = &dto.CommitDiscountUsageResponse{
				Reason:   reason,
				Discount: &dto.DiscountResponse{Discount: d},
			}
			return nil
		}

		next, err := d.WithUsage(req.UserID, req.TransactionID, at)
		if err != nil {
			return backoff.Permanent(err)
		}

		if err := s.DiscountRepo.CommitUsage(ctx, next, req.UserID, d.Version); err != nil {
			if ierr.IsRetryable(err) {
				s.Metrics.CommitConflict()
				s.Logger.Warnw("discount usage commit lost a race, re-validating",
					"discount_code", code,
					"transaction_id", req.TransactionID,
					"attempt", attempt,
				)
				return err
			}
			return backoff.Permanent(err)
		}

		resp = &dto.CommitDiscountUsageResponse{
			Committed: true,
			Discount:  &dto.DiscountResponse{Discount: next},
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(commitRetryInterval), s.commitRetries()),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		s.Metrics.DiscountCommit(metrics.CommitError)
		return nil, err
	}
	s.Metrics.DiscountCommit(commitOutcome(resp))

	if resp.Committed {
		s.Logger.Infow("committed discount usage",
			"discount_code", code,
			"user_id", req.UserID,
			"transaction_id", req.TransactionID,
			"current_usage", resp.Discount.CurrentUsage,
		)
	}
	return resp, nil
}

func commitOutcome(resp *dto.CommitDiscountUsageResponse) string {
	switch {
	case resp.Committed:
		return metrics.CommitCommitted
	case resp.AlreadyRecorded:
		return metrics.CommitAlreadyRecorded
	default:
		return metrics.CommitLimitReached
	}
}

func (s *discountService) commitRetries() uint64 {
	if s.Config == nil {
		return 1
	}
	return s.Config.Billing.CommitRetries
}

// getByCode resolves a code to its discount. Only the code to id mapping
// is kept in the request cache; the record itself is always read fresh.
func (s *discountService) getByCode(ctx context.Context, code string) (*discount.Discount, error) {
	code = discount.NormalizeCode(code)
	if code == "" {
		return nil, ierr.NewError("discount code is required").
			WithHint("Please provide a discount code").
			Mark(ierr.ErrValidation)
	}

	c := cache.FromContext(ctx)
	key := cache.GenerateKey(cache.PrefixDiscountCode, types.GetTenantID(ctx), code)
	if id, ok := c.Get(ctx, key); ok {
		d, err := s.DiscountRepo.Get(ctx, id.(string))
		if err == nil {
			return d, nil
		}
		if !ierr.IsNotFound(err) {
			return nil, err
		}
		c.Delete(ctx, key)
	}

	d, err := s.DiscountRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	c.Set(ctx, key, d.ID, 0)
	return d, nil
}
