package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/edulane/billing/internal/api/dto"
	"github.com/edulane/billing/internal/domain/discount"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/metrics"
	"github.com/edulane/billing/internal/testutil"
	"github.com/edulane/billing/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/suite"
)

type DiscountServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  DiscountService
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func TestDiscountService(t *testing.T) {
	suite.Run(t, new(DiscountServiceSuite))
}

func (s *DiscountServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.registry = prometheus.NewRegistry()
	s.metrics = metrics.New(s.registry)
	s.setupService()
}

func (s *DiscountServiceSuite) setupService() {
	s.service = NewDiscountService(s.params(s.GetStores().DiscountRepo))
}

func (s *DiscountServiceSuite) params(repo discount.Repository) ServiceParams {
	params := NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetDB(),
		repo,
		s.GetStores().SubscriptionRepo,
		s.GetStores().InvoiceRepo,
		s.GetStores().PaymentRepo,
		nil,
		s.metrics,
	)
	params.Clock = s.Clock()
	return params
}

func (s *DiscountServiceSuite) createDiscount(req dto.CreateDiscountRequest) *dto.DiscountResponse {
	if req.ApplicableTo == "" {
		req.ApplicableTo = types.DiscountScopeCourse
	}
	resp, err := s.service.CreateDiscount(s.GetContext(), req)
	s.Require().NoError(err)
	return resp
}

func (s *DiscountServiceSuite) TestCreateDiscount() {
	resp := s.createDiscount(dto.CreateDiscountRequest{
		Code:  "  spring10 ",
		Type:  types.DiscountTypePercentage,
		Value: decimal.NewFromInt(10),
	})

	s.Equal("SPRING10", resp.Code)
	s.True(resp.IsActive)
	s.Equal(0, resp.CurrentUsage)
	s.Equal(1, resp.Version)
	s.Equal(s.GetConfig().Billing.Currency, resp.Currency)

	_, err := s.service.CreateDiscount(s.GetContext(), dto.CreateDiscountRequest{
		Code:         "SPRING10",
		Type:         types.DiscountTypeFixedAmount,
		Value:        decimal.NewFromInt(5),
		ApplicableTo: types.DiscountScopeCourse,
	})
	s.True(ierr.IsAlreadyExists(err))
}

func (s *DiscountServiceSuite) TestCreateDiscount_Invalid() {
	tests := []struct {
		name string
		req  dto.CreateDiscountRequest
	}{
		{
			name: "missing code",
			req: dto.CreateDiscountRequest{
				Type:         types.DiscountTypePercentage,
				Value:        decimal.NewFromInt(10),
				ApplicableTo: types.DiscountScopeCourse,
			},
		},
		{
			name: "unknown type",
			req: dto.CreateDiscountRequest{
				Code:         "X",
				Type:         types.DiscountType("bogus"),
				Value:        decimal.NewFromInt(10),
				ApplicableTo: types.DiscountScopeCourse,
			},
		},
		{
			name: "percentage above 100",
			req: dto.CreateDiscountRequest{
				Code:         "X",
				Type:         types.DiscountTypePercentage,
				Value:        decimal.NewFromInt(120),
				ApplicableTo: types.DiscountScopeCourse,
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.CreateDiscount(s.GetContext(), tt.req)
			s.True(ierr.IsValidation(err), "got %v", err)
		})
	}
}

func (s *DiscountServiceSuite) TestGetAndListDiscounts() {
	spring := s.createDiscount(dto.CreateDiscountRequest{
		Code:  "SPRING10",
		Type:  types.DiscountTypePercentage,
		Value: decimal.NewFromInt(10),
	})
	s.createDiscount(dto.CreateDiscountRequest{
		Code:  "AUTUMN5",
		Type:  types.DiscountTypeFixedAmount,
		Value: decimal.NewFromInt(5),
	})

	byID, err := s.service.GetDiscount(s.GetContext(), spring.ID)
	s.Require().NoError(err)
	s.Equal("SPRING10", byID.Code)

	byCode, err := s.service.GetDiscountByCode(s.GetContext(), " spring10")
	s.Require().NoError(err)
	s.Equal(spring.ID, byCode.ID)

	_, err = s.service.GetDiscount(s.GetContext(), "")
	s.True(ierr.IsValidation(err))

	_, err = s.service.GetDiscountByCode(s.GetContext(), "WINTER")
	s.True(ierr.IsNotFound(err))

	all, err := s.service.ListDiscounts(s.GetContext())
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *DiscountServiceSuite) TestEvaluateDiscount() {
	s.createDiscount(dto.CreateDiscountRequest{
		Code:              "SPRING20",
		Type:              types.DiscountTypePercentage,
		Value:             decimal.NewFromInt(20),
		MaxDiscountAmount: lo.ToPtr(decimal.NewFromInt(50)),
		ApplicableIDs:     []string{"course_1"},
	})

	tests := []struct {
		name   string
		req    dto.EvaluateDiscountRequest
		valid  bool
		reason types.DiscountRejectReason
		amount string
	}{
		{
			name:   "percentage of proposed amount",
			req:    dto.EvaluateDiscountRequest{Code: "spring20", UserID: "student_1", ProposedAmount: decimal.NewFromInt(150), TargetEntityID: "course_1"},
			valid:  true,
			amount: "30",
		},
		{
			name:   "capped at max discount amount",
			req:    dto.EvaluateDiscountRequest{Code: "SPRING20", UserID: "student_1", ProposedAmount: decimal.NewFromInt(1000), TargetEntityID: "course_1"},
			valid:  true,
			amount: "50",
		},
		{
			name:   "other course",
			req:    dto.EvaluateDiscountRequest{Code: "SPRING20", UserID: "student_1", ProposedAmount: decimal.NewFromInt(150), TargetEntityID: "course_2"},
			reason: types.DiscountRejectReasonNotApplicable,
			amount: "0",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resp, err := s.service.EvaluateDiscount(s.GetContext(), tt.req)
			s.Require().NoError(err)
			s.Equal(tt.valid, resp.Valid)
			s.Equal(tt.reason, resp.Reason)
			s.True(decimal.RequireFromString(tt.amount).Equal(resp.Amount), "amount %s", resp.Amount)
			if !tt.valid {
				s.NotEmpty(resp.Message)
			}
		})
	}
}

func (s *DiscountServiceSuite) TestEvaluateDiscount_UnknownCode() {
	_, err := s.service.EvaluateDiscount(s.GetContext(), dto.EvaluateDiscountRequest{
		Code:           "NOPE",
		UserID:         "student_1",
		ProposedAmount: decimal.NewFromInt(100),
	})
	s.True(ierr.IsNotFound(err))
}

func (s *DiscountServiceSuite) TestEvaluateDiscount_Inactive() {
	created := s.createDiscount(dto.CreateDiscountRequest{
		Code:  "OFF",
		Type:  types.DiscountTypeFixedAmount,
		Value: decimal.NewFromInt(10),
	})

	updated, err := s.service.SetDiscountActive(s.GetContext(), created.ID, false)
	s.Require().NoError(err)
	s.False(updated.IsActive)
	s.Equal(2, updated.Version)

	resp, err := s.service.EvaluateDiscount(s.GetContext(), dto.EvaluateDiscountRequest{
		Code:           "OFF",
		UserID:         "student_1",
		ProposedAmount: decimal.NewFromInt(100),
	})
	s.Require().NoError(err)
	s.False(resp.Valid)
	s.Equal(types.DiscountRejectReasonInactive, resp.Reason)
}

func (s *DiscountServiceSuite) TestCommitUsage() {
	s.createDiscount(dto.CreateDiscountRequest{
		Code:     "ONCE",
		Type:     types.DiscountTypeFixedAmount,
		Value:    decimal.NewFromInt(10),
		MaxUsage: lo.ToPtr(5),
	})

	req := dto.CommitDiscountUsageRequest{Code: "once", UserID: "student_1", TransactionID: "tx_1"}

	resp, err := s.service.CommitUsage(s.GetContext(), req)
	s.Require().NoError(err)
	s.True(resp.Committed)
	s.Equal(1, resp.Discount.CurrentUsage)
	s.Require().Len(resp.Discount.Ledger, 1)
	s.Equal(1, resp.Discount.Ledger[0].UsageCount)
	s.Equal([]string{"tx_1"}, resp.Discount.Ledger[0].TransactionIDs)
	s.Equal(s.GetNow(), resp.Discount.Ledger[0].FirstUsedAt)

	replay, err := s.service.CommitUsage(s.GetContext(), req)
	s.Require().NoError(err)
	s.False(replay.Committed)
	s.True(replay.AlreadyRecorded)
	s.Equal(1, replay.Discount.CurrentUsage)

	stored, err := s.GetStores().DiscountRepo.GetByCode(s.GetContext(), "ONCE")
	s.Require().NoError(err)
	s.Equal(1, stored.CurrentUsage)
	s.NoError(stored.VerifyLedger())
}

func (s *DiscountServiceSuite) TestCommitUsage_PerUserCap() {
	s.createDiscount(dto.CreateDiscountRequest{
		Code:            "PERUSER",
		Type:            types.DiscountTypeFixedAmount,
		Value:           decimal.NewFromInt(10),
		MaxUsagePerUser: lo.ToPtr(1),
	})

	first, err := s.service.CommitUsage(s.GetContext(), dto.CommitDiscountUsageRequest{Code: "PERUSER", UserID: "student_1", TransactionID: "tx_1"})
	s.Require().NoError(err)
	s.True(first.Committed)

	second, err := s.service.CommitUsage(s.GetContext(), dto.CommitDiscountUsageRequest{Code: "PERUSER", UserID: "student_1", TransactionID: "tx_2"})
	s.Require().NoError(err)
	s.False(second.Committed)
	s.Equal(types.DiscountRejectReasonUserUsageLimitReached, second.Reason)

	other, err := s.service.CommitUsage(s.GetContext(), dto.CommitDiscountUsageRequest{Code: "PERUSER", UserID: "student_2", TransactionID: "tx_3"})
	s.Require().NoError(err)
	s.True(other.Committed)
	s.Equal(2, other.Discount.CurrentUsage)
}

func (s *DiscountServiceSuite) TestCommitUsage_ConcurrentNeverExceedsCap() {
	const maxUsage = 3
	const attempts = 20

	s.createDiscount(dto.CreateDiscountRequest{
		Code:     "RUSH",
		Type:     types.DiscountTypePercentage,
		Value:    decimal.NewFromInt(10),
		MaxUsage: lo.ToPtr(maxUsage),
	})

	var committed, limited atomic.Int32
	var wg conc.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Go(func() {
			resp, err := s.service.CommitUsage(s.GetContext(), dto.CommitDiscountUsageRequest{
				Code:          "RUSH",
				UserID:        fmt.Sprintf("student_%d", i),
				TransactionID: fmt.Sprintf("tx_%d", i),
			})
			if err != nil {
				return
			}
			if resp.Committed {
				committed.Add(1)
			}
			if resp.Reason == types.DiscountRejectReasonUsageLimitReached {
				limited.Add(1)
			}
		})
	}
	wg.Wait()

	s.Equal(int32(maxUsage), committed.Load())
	s.Equal(int32(attempts-maxUsage), limited.Load())

	stored, err := s.GetStores().DiscountRepo.GetByCode(s.GetContext(), "RUSH")
	s.Require().NoError(err)
	s.Equal(maxUsage, stored.CurrentUsage)
	s.Len(stored.Ledger, maxUsage)
	s.NoError(stored.VerifyLedger())
}

// racingDiscountRepo commits a redemption by another user right before the
// first CommitUsage it sees, as a second process would
type racingDiscountRepo struct {
	discount.Repository
	races atomic.Int32
}

func (r *racingDiscountRepo) CommitUsage(ctx context.Context, d *discount.Discount, userID string, expectedVersion int) error {
	if r.races.Add(1) == 1 {
		current, err := r.Repository.Get(ctx, d.ID)
		if err != nil {
			return err
		}
		next, err := current.WithUsage("student_other", "tx_other", current.CreatedAt)
		if err != nil {
			return err
		}
		if err := r.Repository.CommitUsage(ctx, next, "student_other", current.Version); err != nil {
			return err
		}
	}
	return r.Repository.CommitUsage(ctx, d, userID, expectedVersion)
}

func (s *DiscountServiceSuite) TestCommitUsage_RetriesLostRace() {
	s.createDiscount(dto.CreateDiscountRequest{
		Code:     "RACE",
		Type:     types.DiscountTypeFixedAmount,
		Value:    decimal.NewFromInt(10),
		MaxUsage: lo.ToPtr(5),
	})

	repo := &racingDiscountRepo{Repository: s.GetStores().DiscountRepo}
	svc := NewDiscountService(s.params(repo))

	resp, err := svc.CommitUsage(s.GetContext(), dto.CommitDiscountUsageRequest{Code: "RACE", UserID: "student_1", TransactionID: "tx_1"})
	s.Require().NoError(err)
	s.True(resp.Committed)
	s.Equal(2, resp.Discount.CurrentUsage)
	s.Equal(int32(2), repo.races.Load())
	s.Equal(float64(1), counterValue(s.T(), s.registry, "billing_discounts_commit_conflicts_total", nil))
	s.Equal(float64(1), counterValue(s.T(), s.registry, "billing_discounts_commits_total", map[string]string{"outcome": metrics.CommitCommitted}))
}

func (s *DiscountServiceSuite) TestCommitUsage_LostRaceReachesCap() {
	s.createDiscount(dto.CreateDiscountRequest{
		Code:     "LAST",
		Type:     types.DiscountTypeFixedAmount,
		Value:    decimal.NewFromInt(10),
		MaxUsage: lo.ToPtr(1),
	})

	repo := &racingDiscountRepo{Repository: s.GetStores().DiscountRepo}
	svc := NewDiscountService(s.params(repo))

	resp, err := svc.CommitUsage(s.GetContext(), dto.CommitDiscountUsageRequest{Code: "LAST", UserID: "student_1", TransactionID: "tx_1"})
	s.Require().NoError(err)
	s.False(resp.Committed)
	s.Equal(types.DiscountRejectReasonUsageLimitReached, resp.Reason)
	s.Equal(1, resp.Discount.CurrentUsage)
	s.Equal(float64(1), counterValue(s.T(), s.registry, "billing_discounts_commits_total", map[string]string{"outcome": metrics.CommitLimitReached}))
}

func (s *DiscountServiceSuite) TestCommitUsage_RetriesExhausted() {
	s.createDiscount(dto.CreateDiscountRequest{
		Code:  "BUSY",
		Type:  types.DiscountTypeFixedAmount,
		Value: decimal.NewFromInt(10),
	})

	cfg := *s.GetConfig()
	cfg.Billing.CommitRetries = 0

	params := s.params(&racingDiscountRepo{Repository: s.GetStores().DiscountRepo})
	params.Config = &cfg
	svc := NewDiscountService(params)

	_, err := svc.CommitUsage(s.GetContext(), dto.CommitDiscountUsageRequest{Code: "BUSY", UserID: "student_1", TransactionID: "tx_1"})
	s.True(ierr.IsVersionConflict(err), "got %v", err)
}
