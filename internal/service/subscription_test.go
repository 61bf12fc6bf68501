package service

import (
	"testing"
	"time"

	"github.com/edulane/billing/internal/api/dto"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/testutil"
	"github.com/edulane/billing/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type SubscriptionServiceSuite struct {
	testutil.BaseServiceTestSuite
	service SubscriptionService
}

func TestSubscriptionService(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceSuite))
}

func (s *SubscriptionServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.setupService()
}

func (s *SubscriptionServiceSuite) setupService() {
	s.service = NewSubscriptionService(ServiceParams{
		Logger:      s.GetLogger(),
		Config:      s.GetConfig(),
		DB:          s.GetDB(),
		SubRepo:     s.GetStores().SubscriptionRepo,
		InvoiceRepo: s.GetStores().InvoiceRepo,
		Clock:       s.Clock(),
	})
}

func (s *SubscriptionServiceSuite) createSubscription(sessions int, price int64, deadline *time.Time, grace *int) *dto.SubscriptionResponse {
	resp, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{
		StudentID:       "student_1",
		PlanType:        types.PlanTypeFixedLectureCount,
		Currency:        "usd",
		SessionsTotal:   sessions,
		PlanPrice:       decimal.NewFromInt(price),
		StartDate:       s.GetNow(),
		EndDate:         s.GetNow().AddDate(0, 3, 0),
		PaymentDeadline: deadline,
		GraceDays:       grace,
	})
	s.Require().NoError(err)
	return resp
}

func (s *SubscriptionServiceSuite) TestCreateSubscription() {
	resp := s.createSubscription(10, 200, nil, nil)

	s.Equal(types.SubscriptionStatusActivePartiallyPaid, resp.SubscriptionStatus)
	s.Equal(10, resp.RemainingSessions)
	s.True(decimal.NewFromInt(200).Equal(resp.Balance))
	s.Equal(1, resp.Version)

	got, err := s.service.GetSubscription(s.GetContext(), resp.ID)
	s.Require().NoError(err)
	s.Equal(resp.ID, got.ID)
	s.Equal(types.SubscriptionStatusActivePartiallyPaid, got.SubscriptionStatus)
}

func (s *SubscriptionServiceSuite) TestCreateSubscription_Invalid() {
	_, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{
		StudentID:     "student_1",
		PlanType:      types.PlanTypeFixedLectureCount,
		Currency:      "usd",
		SessionsTotal: 4,
		PlanPrice:     decimal.NewFromInt(-1),
		StartDate:     s.GetNow(),
		EndDate:       s.GetNow().AddDate(0, 1, 0),
	})
	s.True(ierr.IsValidation(err))

	_, err = s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{
		StudentID:     "student_1",
		PlanType:      types.PlanTypeFixedLectureCount,
		Currency:      "usd",
		SessionsTotal: 4,
		PlanPrice:     decimal.NewFromInt(100),
		StartDate:     s.GetNow(),
		EndDate:       s.GetNow().AddDate(0, 0, -1),
	})
	s.True(ierr.IsValidation(err))
}

func (s *SubscriptionServiceSuite) TestRecordPayment() {
	sub := s.createSubscription(10, 200, nil, nil)

	partial, err := s.service.RecordPayment(s.GetContext(), sub.ID, dto.RecordSubscriptionPaymentRequest{Amount: decimal.NewFromInt(50)})
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActivePartiallyPaid, partial.SubscriptionStatus)
	s.True(decimal.NewFromInt(150).Equal(partial.Balance))
	s.Equal(2, partial.Version)

	full, err := s.service.RecordPayment(s.GetContext(), sub.ID, dto.RecordSubscriptionPaymentRequest{Amount: decimal.NewFromInt(150)})
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActiveFullyPaid, full.SubscriptionStatus)
	s.True(full.Balance.IsZero())

	_, err = s.service.RecordPayment(s.GetContext(), sub.ID, dto.RecordSubscriptionPaymentRequest{Amount: decimal.Zero})
	s.True(ierr.IsValidation(err))
}

func (s *SubscriptionServiceSuite) TestConsumeSession_StatusProgression() {
	sub := s.createSubscription(3, 90, nil, nil)

	resp, err := s.service.ConsumeSession(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActivePartiallyPaid, resp.SubscriptionStatus)

	resp, err = s.service.ConsumeSession(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(1, resp.RemainingSessions)
	s.Equal(types.SubscriptionStatusDueSoon, resp.SubscriptionStatus)

	resp, err = s.service.ConsumeSession(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusExpired, resp.SubscriptionStatus)

	_, err = s.service.ConsumeSession(s.GetContext(), sub.ID)
	s.True(ierr.IsInvalidOperation(err))

	_, err = s.service.RecordPayment(s.GetContext(), sub.ID, dto.RecordSubscriptionPaymentRequest{Amount: decimal.NewFromInt(10)})
	s.True(ierr.IsInvalidOperation(err))
}

func (s *SubscriptionServiceSuite) TestStatus_OnHoldAfterGrace() {
	deadline := s.GetNow().AddDate(0, 0, 7)
	sub := s.createSubscription(10, 200, &deadline, lo.ToPtr(3))

	s.SetNow(deadline.AddDate(0, 0, 3))
	got, err := s.service.GetSubscription(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActivePartiallyPaid, got.SubscriptionStatus)

	s.SetNow(deadline.AddDate(0, 0, 3).Add(time.Second))
	got, err = s.service.GetSubscription(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusOnHold, got.SubscriptionStatus)

	paid, err := s.service.RecordPayment(s.GetContext(), sub.ID, dto.RecordSubscriptionPaymentRequest{Amount: decimal.NewFromInt(200)})
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActiveFullyPaid, paid.SubscriptionStatus)
}

func (s *SubscriptionServiceSuite) TestRenewSubscription() {
	deadline := s.GetNow().AddDate(0, 0, 10)
	sub := s.createSubscription(2, 100, &deadline, lo.ToPtr(2))

	_, err := s.service.ConsumeSession(s.GetContext(), sub.ID)
	s.Require().NoError(err)

	s.SetNow(s.GetNow().AddDate(0, 1, 0))
	renewed, err := s.service.RenewSubscription(s.GetContext(), sub.ID)
	s.Require().NoError(err)

	s.NotEqual(sub.ID, renewed.ID)
	s.Equal(sub.ID, lo.FromPtr(renewed.RenewedFromID))
	s.Equal(0, renewed.SessionsUsed)
	s.True(renewed.AmountPaid.IsZero())
	s.Equal(s.GetNow(), renewed.StartDate)
	s.Require().NotNil(renewed.PaymentDeadline)
	s.Equal(s.GetNow().AddDate(0, 0, 10), *renewed.PaymentDeadline)
	s.Equal(2, lo.FromPtr(renewed.GraceDays))

	original, err := s.service.GetSubscription(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(1, original.SessionsUsed)

	subs, err := s.service.ListSubscriptionsByStudent(s.GetContext(), "student_1")
	s.Require().NoError(err)
	s.Len(subs, 2)
}

func (s *SubscriptionServiceSuite) TestRenewSubscription_StartsPartiallyPaid() {
	sub := s.createSubscription(10, 0, nil, nil)
	s.Equal(types.SubscriptionStatusActiveFullyPaid, sub.SubscriptionStatus)

	renewed, err := s.service.RenewSubscription(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActivePartiallyPaid, renewed.SubscriptionStatus)

	got, err := s.service.GetSubscription(s.GetContext(), renewed.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActiveFullyPaid, got.SubscriptionStatus)
}

func (s *SubscriptionServiceSuite) TestResolveStatuses() {
	a := s.createSubscription(10, 0, nil, nil)
	b := s.createSubscription(2, 100, nil, nil)
	c := s.createSubscription(5, 100, nil, nil)

	_, err := s.service.ConsumeSession(s.GetContext(), b.ID)
	s.Require().NoError(err)

	resp, err := s.service.ResolveStatuses(s.GetContext(), []string{c.ID, a.ID, b.ID})
	s.Require().NoError(err)
	s.Require().Len(resp, 3)
	s.Equal(c.ID, resp[0].ID)
	s.Equal(types.SubscriptionStatusActivePartiallyPaid, resp[0].SubscriptionStatus)
	s.Equal(a.ID, resp[1].ID)
	s.Equal(types.SubscriptionStatusActiveFullyPaid, resp[1].SubscriptionStatus)
	s.Equal(b.ID, resp[2].ID)
	s.Equal(types.SubscriptionStatusDueSoon, resp[2].SubscriptionStatus)

	_, err = s.service.ResolveStatuses(s.GetContext(), []string{a.ID, "sub_missing"})
	s.True(ierr.IsNotFound(err), "got %v", err)
}
