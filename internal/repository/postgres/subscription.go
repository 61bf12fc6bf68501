package postgres

import (
	"context"

	"github.com/edulane/billing/internal/domain/subscription"
	"github.com/edulane/billing/internal/logger"
	"github.com/edulane/billing/internal/postgres"
	"github.com/edulane/billing/internal/types"
)

const subscriptionColumns = `
	id, tenant_id, student_id, plan_type, currency,
	sessions_total, sessions_used, amount_paid, plan_price,
	start_date, end_date, payment_deadline, grace_days, renewed_from_id,
	subscription_status, version,
	status, created_at, updated_at, created_by, updated_by`

type subscriptionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `
		) VALUES (
			:id, :tenant_id, :student_id, :plan_type, :currency,
			:sessions_total, :sessions_used, :amount_paid, :plan_price,
			:start_date, :end_date, :payment_deadline, :grace_days, :renewed_from_id,
			:subscription_status, :version,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	r.logger.Debugw("creating subscription",
		"subscription_id", sub.ID,
		"student_id", sub.StudentID,
	)

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, sub); err != nil {
		return wrapError(err, "subscription", map[string]any{"subscription_id": sub.ID})
	}
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE id = $1 AND tenant_id = $2 AND status = $3`

	var sub subscription.Subscription
	err := r.db.GetQuerier(ctx).GetContext(ctx, &sub, query, id, types.GetTenantID(ctx), types.StatusPublished)
	if err != nil {
		return nil, wrapError(err, "subscription", map[string]any{"subscription_id": id})
	}
	return &sub, nil
}

// Update writes every mutable column when the stored version is the one
// sub was read at
func (r *subscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		UPDATE subscriptions SET
			sessions_used = $1,
			amount_paid = $2,
			payment_deadline = $3,
			grace_days = $4,
			subscription_status = $5,
			version = $6,
			updated_at = $7,
			updated_by = $8
		WHERE id = $9 AND tenant_id = $10 AND version = $11`

	details := map[string]any{
		"subscription_id": sub.ID,
		"version":         sub.Version,
	}

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		sub.SessionsUsed,
		sub.AmountPaid,
		sub.PaymentDeadline,
		sub.GraceDays,
		sub.SubscriptionStatus,
		sub.Version,
		sub.UpdatedAt,
		sub.UpdatedBy,
		sub.ID,
		types.GetTenantID(ctx),
		sub.Version-1,
	)
	if err != nil {
		return wrapError(err, "subscription", details)
	}
	return checkVersioned(result, "subscription", details)
}

func (r *subscriptionRepository) ListByStudent(ctx context.Context, studentID string) ([]*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE student_id = $1 AND tenant_id = $2 AND status = $3
		ORDER BY start_date, id`

	var subs []*subscription.Subscription
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &subs, query, studentID, types.GetTenantID(ctx), types.StatusPublished)
	if err != nil {
		return nil, wrapError(err, "subscription", map[string]any{"student_id": studentID})
	}
	return subs, nil
}
