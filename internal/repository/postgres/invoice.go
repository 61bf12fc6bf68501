package postgres

import (
	"context"

	"github.com/edulane/billing/internal/domain/invoice"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/logger"
	"github.com/edulane/billing/internal/postgres"
	"github.com/edulane/billing/internal/types"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const invoiceColumns = `
	id, tenant_id, student_id, subscription_id, invoice_number, invoice_status, currency,
	items, discounts, taxes,
	subtotal, total_discounts, total_taxes, total_amount, amount_paid,
	due_date, sent_at, paid_at, voided_at, version,
	status, created_at, updated_at, created_by, updated_by`

// invoiceRow holds the entry lists as their JSONB encoding
type invoiceRow struct {
	invoice.Invoice
	ItemsJSON     []byte `db:"items"`
	DiscountsJSON []byte `db:"discounts"`
	TaxesJSON     []byte `db:"taxes"`
}

func newInvoiceRow(inv *invoice.Invoice) (*invoiceRow, error) {
	row := &invoiceRow{Invoice: *inv}

	var err error
	if row.ItemsJSON, err = json.Marshal(lo.Ternary(inv.Items == nil, []*invoice.Item{}, inv.Items)); err != nil {
		return nil, encodeError(err, inv.ID)
	}
	if row.DiscountsJSON, err = json.Marshal(lo.Ternary(inv.Discounts == nil, []*invoice.DiscountEntry{}, inv.Discounts)); err != nil {
		return nil, encodeError(err, inv.ID)
	}
	if row.TaxesJSON, err = json.Marshal(lo.Ternary(inv.Taxes == nil, []*invoice.TaxEntry{}, inv.Taxes)); err != nil {
		return nil, encodeError(err, inv.ID)
	}
	return row, nil
}

func (row *invoiceRow) toDomain() (*invoice.Invoice, error) {
	inv := row.Invoice
	inv.Items = []*invoice.Item{}
	inv.Discounts = []*invoice.DiscountEntry{}
	inv.Taxes = []*invoice.TaxEntry{}

	if len(row.ItemsJSON) > 0 {
		if err := json.Unmarshal(row.ItemsJSON, &inv.Items); err != nil {
			return nil, encodeError(err, inv.ID)
		}
	}
	if len(row.DiscountsJSON) > 0 {
		if err := json.Unmarshal(row.DiscountsJSON, &inv.Discounts); err != nil {
			return nil, encodeError(err, inv.ID)
		}
	}
	if len(row.TaxesJSON) > 0 {
		if err := json.Unmarshal(row.TaxesJSON, &inv.Taxes); err != nil {
			return nil, encodeError(err, inv.ID)
		}
	}
	return &inv, nil
}

func encodeError(err error, invoiceID string) error {
	return ierr.WithError(err).
		WithHint("Invoice entries could not be encoded").
		WithReportableDetails(map[string]any{"invoice_id": invoiceID}).
		Mark(ierr.ErrDatabase)
}

type invoiceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{db: db, logger: logger}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	row, err := newInvoiceRow(inv)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO invoices (` + invoiceColumns + `
		) VALUES (
			:id, :tenant_id, :student_id, :subscription_id, :invoice_number, :invoice_status, :currency,
			:items, :discounts, :taxes,
			:subtotal, :total_discounts, :total_taxes, :total_amount, :amount_paid,
			:due_date, :sent_at, :paid_at, :voided_at, :version,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	r.logger.Debugw("creating invoice",
		"invoice_id", inv.ID,
		"student_id", inv.StudentID,
	)

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, row); err != nil {
		return wrapError(err, "invoice", map[string]any{"invoice_id": inv.ID})
	}
	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE id = $1 AND tenant_id = $2 AND status = $3`

	var row invoiceRow
	err := r.db.GetQuerier(ctx).GetContext(ctx, &row, query, id, types.GetTenantID(ctx), types.StatusPublished)
	if err != nil {
		return nil, wrapError(err, "invoice", map[string]any{"invoice_id": id})
	}
	return row.toDomain()
}

func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	row, err := newInvoiceRow(inv)
	if err != nil {
		return err
	}

	query := `
		UPDATE invoices SET
			invoice_number = $1,
			invoice_status = $2,
			items = $3,
			discounts = $4,
			taxes = $5,
			subtotal = $6,
			total_discounts = $7,
			total_taxes = $8,
			total_amount = $9,
			amount_paid = $10,
			due_date = $11,
			sent_at = $12,
			paid_at = $13,
			voided_at = $14,
			version = $15,
			updated_at = $16,
			updated_by = $17
		WHERE id = $18 AND tenant_id = $19 AND version = $20`

	details := map[string]any{
		"invoice_id": inv.ID,
		"version":    inv.Version,
	}

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		inv.InvoiceNumber,
		inv.InvoiceStatus,
		row.ItemsJSON,
		row.DiscountsJSON,
		row.TaxesJSON,
		inv.Subtotal,
		inv.TotalDiscounts,
		inv.TotalTaxes,
		inv.TotalAmount,
		inv.AmountPaid,
		inv.DueDate,
		inv.SentAt,
		inv.PaidAt,
		inv.VoidedAt,
		inv.Version,
		inv.UpdatedAt,
		inv.UpdatedBy,
		inv.ID,
		types.GetTenantID(ctx),
		inv.Version-1,
	)
	if err != nil {
		return wrapError(err, "invoice", details)
	}
	return checkVersioned(result, "invoice", details)
}

func (r *invoiceRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE subscription_id = $1 AND tenant_id = $2 AND status = $3
		ORDER BY created_at, id`

	return r.list(ctx, query, map[string]any{"subscription_id": subscriptionID},
		subscriptionID, types.GetTenantID(ctx), types.StatusPublished)
}

func (r *invoiceRepository) ListByStatus(ctx context.Context, status types.InvoiceStatus) ([]*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE invoice_status = $1 AND tenant_id = $2 AND status = $3
		ORDER BY created_at, id`

	return r.list(ctx, query, map[string]any{"invoice_status": status},
		status, types.GetTenantID(ctx), types.StatusPublished)
}

func (r *invoiceRepository) list(ctx context.Context, query string, details map[string]any, args ...interface{}) ([]*invoice.Invoice, error) {
	var rows []invoiceRow
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapError(err, "invoice", details)
	}

	invoices := make([]*invoice.Invoice, 0, len(rows))
	for i := range rows {
		inv, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

// NextSequenceValue increments the counter of key with a single upsert so
// concurrent callers never observe the same value
func (r *invoiceRepository) NextSequenceValue(ctx context.Context, key invoice.SequenceKey) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	query := `
		INSERT INTO invoice_sequences (scope, year, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (scope, year) DO UPDATE
			SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value`

	var value int64
	if err := r.db.GetQuerier(ctx).QueryRowxContext(ctx, query, key.Scope, key.Year).Scan(&value); err != nil {
		return 0, wrapError(err, "invoice sequence", map[string]any{
			"scope": key.Scope,
			"year":  key.Year,
		})
	}

	r.logger.Debugw("issued invoice sequence value",
		"scope", key.Scope,
		"year", key.Year,
		"value", value,
	)
	return value, nil
}
