package postgres

import (
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/edulane/billing/internal/domain/invoice"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
	"github.com/shopspring/decimal"
)

const storedItems = `[{"id":"inv_item_1","description":"Tuition","quantity":"1","unit_price":"140","line_total":"140"}]`
const storedDiscounts = `[{"id":"inv_dsc_1","code":"SPRING20","type":"percentage","value":"20","description":"spring","applied_amount":"28","currency":"usd"}]`

func (s *RepositoryTestSuite) invoiceRow(rows *sqlmock.Rows, id string, taxes interface{}) *sqlmock.Rows {
	return rows.AddRow(
		id, types.DefaultTenantID, "student_1", "sub_1", nil, "draft", "usd",
		[]byte(storedItems), []byte(storedDiscounts), taxes,
		"140", "28", "0", "112", "0",
		nil, nil, nil, nil, 2,
		"published", s.now, s.now, types.DefaultUserID, types.DefaultUserID,
	)
}

func (s *RepositoryTestSuite) TestInvoiceCreate() {
	repo := NewInvoiceRepository(s.db, s.log)
	inv := invoice.New("student_1", "usd")
	inv.BaseModel = types.GetDefaultBaseModel(s.ctx)

	s.mock.ExpectExec("INSERT INTO invoices").
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.Require().NoError(repo.Create(s.ctx, inv))
}

func (s *RepositoryTestSuite) TestInvoiceGetDecodesEntries() {
	repo := NewInvoiceRepository(s.db, s.log)

	s.mock.ExpectQuery("SELECT .* FROM invoices WHERE id = ").
		WithArgs("inv_1", types.DefaultTenantID, types.StatusPublished).
		WillReturnRows(s.invoiceRow(sqlmock.NewRows(columns(invoiceColumns)), "inv_1", nil))

	inv, err := repo.Get(s.ctx, "inv_1")
	s.Require().NoError(err)
	s.Require().Len(inv.Items, 1)
	s.Equal("Tuition", inv.Items[0].Description)
	s.True(inv.Items[0].LineTotal.Equal(decimal.NewFromInt(140)))
	s.Require().Len(inv.Discounts, 1)
	s.Equal("SPRING20", *inv.Discounts[0].Code)
	s.NotNil(inv.Taxes)
	s.Empty(inv.Taxes)
	s.Nil(inv.InvoiceNumber)
	s.True(inv.TotalAmount.Equal(decimal.NewFromInt(112)))
	s.NoError(inv.VerifyTotals())
}

func (s *RepositoryTestSuite) TestInvoiceGetCorruptEntries() {
	repo := NewInvoiceRepository(s.db, s.log)

	s.mock.ExpectQuery("SELECT .* FROM invoices").
		WillReturnRows(s.invoiceRow(sqlmock.NewRows(columns(invoiceColumns)), "inv_1", []byte(`{"not":"a list"}`)))

	_, err := repo.Get(s.ctx, "inv_1")
	s.Require().Error(err)
	s.True(ierr.IsDatabase(err))
}

func (s *RepositoryTestSuite) TestInvoiceUpdateIsVersioned() {
	repo := NewInvoiceRepository(s.db, s.log)
	inv := invoice.New("student_1", "usd")
	inv.Version = 5

	s.mock.ExpectExec("UPDATE invoices SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(s.ctx, inv)
	s.Require().Error(err)
	s.True(ierr.IsVersionConflict(err))
}

func (s *RepositoryTestSuite) TestInvoiceListByStatus() {
	repo := NewInvoiceRepository(s.db, s.log)

	rows := sqlmock.NewRows(columns(invoiceColumns))
	s.invoiceRow(rows, "inv_1", []byte(`[]`))
	s.invoiceRow(rows, "inv_2", []byte(`[]`))
	s.mock.ExpectQuery("SELECT .* FROM invoices WHERE invoice_status = ").
		WithArgs("sent", types.DefaultTenantID, types.StatusPublished).
		WillReturnRows(rows)

	invoices, err := repo.ListByStatus(s.ctx, types.InvoiceStatusSent)
	s.Require().NoError(err)
	s.Len(invoices, 2)
}

func (s *RepositoryTestSuite) TestInvoiceNextSequenceValue() {
	repo := NewInvoiceRepository(s.db, s.log)
	key := invoice.SequenceKey{Scope: types.DefaultTenantID, Year: 2024}

	s.mock.ExpectQuery("INSERT INTO invoice_sequences").
		WithArgs(types.DefaultTenantID, 2024).
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(int64(7)))

	value, err := repo.NextSequenceValue(s.ctx, key)
	s.Require().NoError(err)
	s.Equal(int64(7), value)
}

func (s *RepositoryTestSuite) TestInvoiceNextSequenceValueInvalidKey() {
	repo := NewInvoiceRepository(s.db, s.log)

	_, err := repo.NextSequenceValue(s.ctx, invoice.SequenceKey{Year: 2024})
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}
