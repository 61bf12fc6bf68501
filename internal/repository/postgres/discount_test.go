package postgres

import (
	"errors"
	"regexp"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/edulane/billing/internal/domain/discount"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

func (s *RepositoryTestSuite) discountRows(maxUsage interface{}, usage, version int) *sqlmock.Rows {
	return sqlmock.NewRows(columns(discountColumns)).AddRow(
		"dsc_1", types.DefaultTenantID, "SPRING20", "spring promo", "percentage", "20", "usd",
		maxUsage, nil, nil, nil,
		"subscription", "{sub_1,sub_2}", nil, nil, true,
		usage, version,
		"published", s.now, s.now, types.DefaultUserID, types.DefaultUserID,
	)
}

func (s *RepositoryTestSuite) TestDiscountCreate() {
	repo := NewDiscountRepository(s.db, s.log)
	d := &discount.Discount{
		ID:            "dsc_1",
		Code:          "SPRING20",
		Type:          types.DiscountTypePercentage,
		Value:         decimal.NewFromInt(20),
		Currency:      "usd",
		ApplicableTo:  types.DiscountScopeSubscription,
		ApplicableIDs: []string{"sub_1"},
		IsActive:      true,
		BaseModel:     types.GetDefaultBaseModel(s.ctx),
	}

	s.mock.ExpectExec("INSERT INTO discounts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.Require().NoError(repo.Create(s.ctx, d))

	s.mock.ExpectExec("INSERT INTO discounts").
		WillReturnError(&pq.Error{Code: "23505"})
	err := repo.Create(s.ctx, d)
	s.Require().Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *RepositoryTestSuite) TestDiscountGetByCodeLoadsLedger() {
	repo := NewDiscountRepository(s.db, s.log)

	s.mock.ExpectQuery("SELECT .* FROM discounts WHERE code = ").
		WithArgs("SPRING20", types.DefaultTenantID, types.StatusPublished).
		WillReturnRows(s.discountRows(10, 3, 3))
	s.mock.ExpectQuery("SELECT .* FROM discount_ledger_entries").
		WithArgs("dsc_1").
		WillReturnRows(sqlmock.NewRows(columns(ledgerColumns)).
			AddRow("dle_1", "dsc_1", "student_1", 2, s.now, s.now, "{inv_1,inv_2}").
			AddRow("dle_2", "dsc_1", "student_2", 1, s.now, s.now, "{inv_3}"))

	d, err := repo.GetByCode(s.ctx, " spring20 ")
	s.Require().NoError(err)
	s.Equal("SPRING20", d.Code)
	s.Equal([]string{"sub_1", "sub_2"}, d.ApplicableIDs)
	s.Require().NotNil(d.MaxUsage)
	s.Equal(10, *d.MaxUsage)
	s.Nil(d.MaxUsagePerUser)
	s.Len(d.Ledger, 2)
	s.Equal(2, d.UsageBy("student_1"))
	s.True(d.HasTransaction("student_1", "inv_2"))
	s.NoError(d.VerifyLedger())
}

func (s *RepositoryTestSuite) TestDiscountGetNotFound() {
	repo := NewDiscountRepository(s.db, s.log)

	s.mock.ExpectQuery("SELECT .* FROM discounts WHERE id = ").
		WillReturnRows(sqlmock.NewRows(columns(discountColumns)))

	_, err := repo.Get(s.ctx, "dsc_missing")
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *RepositoryTestSuite) TestDiscountList() {
	repo := NewDiscountRepository(s.db, s.log)

	s.mock.ExpectQuery("SELECT .* FROM discounts WHERE tenant_id = ").
		WillReturnRows(s.discountRows(nil, 0, 1))

	list, err := repo.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Nil(list[0].MaxUsage)
	s.Empty(list[0].Ledger)
}

func (s *RepositoryTestSuite) TestDiscountDatabaseError() {
	repo := NewDiscountRepository(s.db, s.log)

	s.mock.ExpectQuery("SELECT .* FROM discounts").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.List(s.ctx)
	s.Require().Error(err)
	s.True(ierr.IsDatabase(err))
}

func (s *RepositoryTestSuite) TestDiscountCommitUsage() {
	repo := NewDiscountRepository(s.db, s.log)
	current := &discount.Discount{
		ID:       "dsc_1",
		Code:     "SPRING20",
		MaxUsage: lo.ToPtr(10),
		Version:  3,
	}
	next, err := current.WithUsage("student_1", "inv_1", s.now)
	s.Require().NoError(err)

	s.mock.ExpectBegin()
	s.mock.ExpectExec(regexp.QuoteMeta("UPDATE discounts SET current_usage = $1")).
		WithArgs(1, 4, sqlmock.AnyArg(), types.DefaultUserID, "dsc_1", types.DefaultTenantID, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec("INSERT INTO discount_ledger_entries").
		WithArgs(sqlmock.AnyArg(), "dsc_1", "student_1", 1, s.now, s.now, "{\"inv_1\"}").
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	s.Require().NoError(repo.CommitUsage(s.ctx, next, "student_1", current.Version))
}

func (s *RepositoryTestSuite) TestDiscountCommitUsageLostRace() {
	repo := NewDiscountRepository(s.db, s.log)
	current := &discount.Discount{ID: "dsc_1", Code: "SPRING20", Version: 3}
	next, err := current.WithUsage("student_1", "inv_1", s.now)
	s.Require().NoError(err)

	// a concurrent commit moved the version or used the last slot
	s.mock.ExpectBegin()
	s.mock.ExpectExec("UPDATE discounts SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectRollback()

	err = repo.CommitUsage(s.ctx, next, "student_1", current.Version)
	s.Require().Error(err)
	s.True(ierr.IsVersionConflict(err))
	s.True(ierr.IsRetryable(err))
}

func (s *RepositoryTestSuite) TestDiscountCommitUsageWithoutEntry() {
	repo := NewDiscountRepository(s.db, s.log)

	err := repo.CommitUsage(s.ctx, &discount.Discount{ID: "dsc_1"}, "student_1", 0)
	s.Require().Error(err)
	s.True(ierr.IsInvariantViolation(err))
}
