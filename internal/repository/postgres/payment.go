package postgres

import (
	"context"
	"database/sql"

	"github.com/edulane/billing/internal/domain/payment"
	"github.com/edulane/billing/internal/logger"
	"github.com/edulane/billing/internal/postgres"
	"github.com/edulane/billing/internal/types"
)

const paymentColumns = `
	id, tenant_id, invoice_id, subscription_id, student_id, amount, currency,
	discount_code, payment_status, received_at, succeeded_at, failed_at, error_message,
	status, created_at, updated_at, created_by, updated_by`

type paymentRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPaymentRepository(db *postgres.DB, logger *logger.Logger) payment.Repository {
	return &paymentRepository{db: db, logger: logger}
}

func (r *paymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `
		) VALUES (
			:id, :tenant_id, :invoice_id, :subscription_id, :student_id, :amount, :currency,
			:discount_code, :payment_status, :received_at, :succeeded_at, :failed_at, :error_message,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	r.logger.Debugw("recording payment",
		"payment_id", p.ID,
		"invoice_id", p.InvoiceID,
		"payment_status", p.PaymentStatus,
	)

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, p); err != nil {
		return wrapError(err, "payment", map[string]any{"payment_id": p.ID})
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE id = $1 AND tenant_id = $2`

	var p payment.Payment
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &p, query, id, types.GetTenantID(ctx)); err != nil {
		return nil, wrapError(err, "payment", map[string]any{"payment_id": id})
	}
	return &p, nil
}

func (r *paymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	query := `
		UPDATE payments SET
			payment_status = $1,
			succeeded_at = $2,
			failed_at = $3,
			error_message = $4,
			updated_at = $5,
			updated_by = $6
		WHERE id = $7 AND tenant_id = $8`

	details := map[string]any{"payment_id": p.ID}

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		p.PaymentStatus,
		p.SucceededAt,
		p.FailedAt,
		p.ErrorMessage,
		p.UpdatedAt,
		p.UpdatedBy,
		p.ID,
		types.GetTenantID(ctx),
	)
	if err != nil {
		return wrapError(err, "payment", details)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return wrapError(err, "payment", details)
	}
	if n == 0 {
		return wrapError(sql.ErrNoRows, "payment", details)
	}
	return nil
}
