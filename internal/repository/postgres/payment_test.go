package postgres

import (
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/edulane/billing/internal/domain/payment"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func (s *RepositoryTestSuite) newPayment() *payment.Payment {
	return &payment.Payment{
		ID:            "pay_1",
		InvoiceID:     "inv_1",
		StudentID:     "student_1",
		Amount:        decimal.NewFromInt(112),
		Currency:      "usd",
		PaymentStatus: types.PaymentStatusPending,
		ReceivedAt:    s.now,
		BaseModel:     types.GetDefaultBaseModel(s.ctx),
	}
}

func (s *RepositoryTestSuite) TestPaymentCreateDuplicate() {
	repo := NewPaymentRepository(s.db, s.log)

	s.mock.ExpectExec("INSERT INTO payments").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(s.ctx, s.newPayment())
	s.Require().Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *RepositoryTestSuite) TestPaymentGet() {
	repo := NewPaymentRepository(s.db, s.log)

	s.mock.ExpectQuery("SELECT .* FROM payments WHERE id = ").
		WithArgs("pay_1", types.DefaultTenantID).
		WillReturnRows(sqlmock.NewRows(columns(paymentColumns)).AddRow(
			"pay_1", types.DefaultTenantID, "inv_1", nil, "student_1", "112", "usd",
			"SPRING20", "succeeded", s.now, s.now, nil, nil,
			"published", s.now, s.now, types.DefaultUserID, types.DefaultUserID,
		))

	p, err := repo.Get(s.ctx, "pay_1")
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusSucceeded, p.PaymentStatus)
	s.Equal("SPRING20", *p.DiscountCode)
	s.True(p.Amount.Equal(decimal.NewFromInt(112)))
	s.Nil(p.FailedAt)
}

func (s *RepositoryTestSuite) TestPaymentUpdateMissing() {
	repo := NewPaymentRepository(s.db, s.log)

	s.mock.ExpectExec("UPDATE payments SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(s.ctx, s.newPayment())
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
}
