package postgres

import (
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/edulane/billing/internal/domain/subscription"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

func (s *RepositoryTestSuite) subscriptionRow(rows *sqlmock.Rows, id string, start int) *sqlmock.Rows {
	startDate := s.now.AddDate(0, 0, start)
	return rows.AddRow(
		id, types.DefaultTenantID, "student_1", "fixed_lecture_count", "usd",
		10, 4, "50.00", "140.00",
		startDate, startDate.AddDate(0, 3, 0), s.now.AddDate(0, 0, 7), 3, nil,
		"active_partially_paid", 2,
		"published", s.now, s.now, types.DefaultUserID, types.DefaultUserID,
	)
}

func (s *RepositoryTestSuite) TestSubscriptionCreate() {
	repo := NewSubscriptionRepository(s.db, s.log)
	sub := &subscription.Subscription{
		ID:            "sub_1",
		StudentID:     "student_1",
		PlanType:      types.PlanTypeFixedLectureCount,
		Currency:      "usd",
		SessionsTotal: 10,
		AmountPaid:    decimal.Zero,
		PlanPrice:     decimal.NewFromInt(140),
		StartDate:     s.now,
		EndDate:       s.now.AddDate(0, 3, 0),
		BaseModel:     types.GetDefaultBaseModel(s.ctx),
	}

	s.mock.ExpectExec("INSERT INTO subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.Require().NoError(repo.Create(s.ctx, sub))
}

func (s *RepositoryTestSuite) TestSubscriptionGet() {
	repo := NewSubscriptionRepository(s.db, s.log)

	rows := s.subscriptionRow(sqlmock.NewRows(columns(subscriptionColumns)), "sub_1", 0)
	s.mock.ExpectQuery("SELECT .* FROM subscriptions WHERE id = ").
		WithArgs("sub_1", types.DefaultTenantID, types.StatusPublished).
		WillReturnRows(rows)

	sub, err := repo.Get(s.ctx, "sub_1")
	s.Require().NoError(err)
	s.Equal("student_1", sub.StudentID)
	s.Equal(types.PlanTypeFixedLectureCount, sub.PlanType)
	s.Equal(4, sub.SessionsUsed)
	s.True(sub.AmountPaid.Equal(decimal.NewFromInt(50)))
	s.True(sub.PlanPrice.Equal(decimal.NewFromInt(140)))
	s.Require().NotNil(sub.GraceDays)
	s.Equal(3, *sub.GraceDays)
	s.Nil(sub.RenewedFromID)
	s.Equal(2, sub.Version)
}

func (s *RepositoryTestSuite) TestSubscriptionGetNotFound() {
	repo := NewSubscriptionRepository(s.db, s.log)

	s.mock.ExpectQuery("SELECT .* FROM subscriptions").
		WillReturnRows(sqlmock.NewRows(columns(subscriptionColumns)))

	_, err := repo.Get(s.ctx, "sub_missing")
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *RepositoryTestSuite) TestSubscriptionUpdateIsVersioned() {
	repo := NewSubscriptionRepository(s.db, s.log)
	sub := &subscription.Subscription{
		ID:                 "sub_1",
		SessionsUsed:       5,
		AmountPaid:         decimal.NewFromInt(70),
		GraceDays:          lo.ToPtr(3),
		SubscriptionStatus: types.SubscriptionStatusActivePartiallyPaid,
		Version:            3,
		BaseModel:          types.GetDefaultBaseModel(s.ctx),
	}

	s.mock.ExpectExec("UPDATE subscriptions SET").
		WithArgs(5, "70", sqlmock.AnyArg(), 3, "active_partially_paid", 3,
			sqlmock.AnyArg(), sqlmock.AnyArg(), "sub_1", types.DefaultTenantID, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.Require().NoError(repo.Update(s.ctx, sub))

	s.mock.ExpectExec("UPDATE subscriptions SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Update(s.ctx, sub)
	s.Require().Error(err)
	s.True(ierr.IsVersionConflict(err))
}

func (s *RepositoryTestSuite) TestSubscriptionListByStudent() {
	repo := NewSubscriptionRepository(s.db, s.log)

	rows := sqlmock.NewRows(columns(subscriptionColumns))
	s.subscriptionRow(rows, "sub_1", -90)
	s.subscriptionRow(rows, "sub_2", 0)
	s.mock.ExpectQuery("SELECT .* FROM subscriptions WHERE student_id = ").
		WithArgs("student_1", types.DefaultTenantID, types.StatusPublished).
		WillReturnRows(rows)

	subs, err := repo.ListByStudent(s.ctx, "student_1")
	s.Require().NoError(err)
	s.Equal([]string{"sub_1", "sub_2"}, lo.Map(subs, func(sub *subscription.Subscription, _ int) string {
		return sub.ID
	}))
}
