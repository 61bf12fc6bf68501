package postgres

import (
	"context"
	"time"

	"github.com/edulane/billing/internal/domain/discount"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/logger"
	"github.com/edulane/billing/internal/postgres"
	"github.com/edulane/billing/internal/types"
	"github.com/lib/pq"
	"github.com/samber/lo"
)

const discountColumns = `
	id, tenant_id, code, description, type, value, currency,
	max_usage, max_usage_per_user, min_order_amount, max_discount_amount,
	applicable_to, applicable_ids, valid_from, valid_until, is_active,
	current_usage, version,
	status, created_at, updated_at, created_by, updated_by`

const ledgerColumns = `
	id, discount_id, user_id, usage_count, first_used_at, last_used_at, transaction_ids`

// discountRow carries the array column the domain model keeps as a slice
type discountRow struct {
	discount.Discount
	ApplicableIDs pq.StringArray `db:"applicable_ids"`
}

func (row *discountRow) toDomain() *discount.Discount {
	d := row.Discount
	d.ApplicableIDs = []string(row.ApplicableIDs)
	d.Ledger = []*discount.LedgerEntry{}
	return &d
}

type ledgerRow struct {
	discount.LedgerEntry
	TransactionIDs pq.StringArray `db:"transaction_ids"`
}

type discountRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewDiscountRepository(db *postgres.DB, logger *logger.Logger) discount.Repository {
	return &discountRepository{db: db, logger: logger}
}

func (r *discountRepository) Create(ctx context.Context, d *discount.Discount) error {
	query := `
		INSERT INTO discounts (` + discountColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18,
			$19, $20, $21, $22, $23
		)`

	r.logger.Debugw("creating discount",
		"discount_id", d.ID,
		"discount_code", d.Code,
	)

	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		d.ID, d.TenantID, d.Code, d.Description, d.Type, d.Value, d.Currency,
		d.MaxUsage, d.MaxUsagePerUser, d.MinOrderAmount, d.MaxDiscountAmount,
		d.ApplicableTo, pq.StringArray(lo.Ternary(d.ApplicableIDs == nil, []string{}, d.ApplicableIDs)),
		d.ValidFrom, d.ValidUntil, d.IsActive,
		d.CurrentUsage, d.Version,
		d.Status, d.CreatedAt, d.UpdatedAt, d.CreatedBy, d.UpdatedBy,
	)
	if err != nil {
		return wrapError(err, "discount", map[string]any{"discount_code": d.Code})
	}
	return nil
}

func (r *discountRepository) Get(ctx context.Context, id string) (*discount.Discount, error) {
	query := `SELECT ` + discountColumns + `
		FROM discounts
		WHERE id = $1 AND tenant_id = $2 AND status = $3`

	return r.getOne(ctx, query, map[string]any{"discount_id": id}, id, types.GetTenantID(ctx), types.StatusPublished)
}

func (r *discountRepository) GetByCode(ctx context.Context, code string) (*discount.Discount, error) {
	query := `SELECT ` + discountColumns + `
		FROM discounts
		WHERE code = $1 AND tenant_id = $2 AND status = $3`

	code = discount.NormalizeCode(code)
	return r.getOne(ctx, query, map[string]any{"discount_code": code}, code, types.GetTenantID(ctx), types.StatusPublished)
}

func (r *discountRepository) getOne(ctx context.Context, query string, details map[string]any, args ...interface{}) (*discount.Discount, error) {
	var row discountRow
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &row, query, args...); err != nil {
		return nil, wrapError(err, "discount", details)
	}

	d := row.toDomain()
	ledger, err := r.getLedger(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	d.Ledger = ledger
	return d, nil
}

func (r *discountRepository) getLedger(ctx context.Context, discountID string) ([]*discount.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + `
		FROM discount_ledger_entries
		WHERE discount_id = $1
		ORDER BY first_used_at, user_id`

	var rows []ledgerRow
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &rows, query, discountID); err != nil {
		return nil, wrapError(err, "discount ledger", map[string]any{"discount_id": discountID})
	}

	return lo.Map(rows, func(row ledgerRow, _ int) *discount.LedgerEntry {
		entry := row.LedgerEntry
		entry.TransactionIDs = []string(row.TransactionIDs)
		return &entry
	}), nil
}

// List returns the tenant's discounts without their ledgers
func (r *discountRepository) List(ctx context.Context) ([]*discount.Discount, error) {
	query := `SELECT ` + discountColumns + `
		FROM discounts
		WHERE tenant_id = $1 AND status = $2
		ORDER BY code`

	var rows []discountRow
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &rows, query, types.GetTenantID(ctx), types.StatusPublished); err != nil {
		return nil, wrapError(err, "discount", nil)
	}

	return lo.Map(rows, func(row discountRow, _ int) *discount.Discount {
		return row.toDomain()
	}), nil
}

// Update writes the definition of d. Usage is only ever written by
// CommitUsage.
func (r *discountRepository) Update(ctx context.Context, d *discount.Discount) error {
	query := `
		UPDATE discounts SET
			description = $1,
			is_active = $2,
			valid_from = $3,
			valid_until = $4,
			max_usage = $5,
			max_usage_per_user = $6,
			version = $7,
			updated_at = $8,
			updated_by = $9
		WHERE id = $10 AND tenant_id = $11 AND version = $12`

	details := map[string]any{
		"discount_id": d.ID,
		"version":     d.Version,
	}

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		d.Description,
		d.IsActive,
		d.ValidFrom,
		d.ValidUntil,
		d.MaxUsage,
		d.MaxUsagePerUser,
		d.Version,
		d.UpdatedAt,
		d.UpdatedBy,
		d.ID,
		types.GetTenantID(ctx),
		d.Version-1,
	)
	if err != nil {
		return wrapError(err, "discount", details)
	}
	return checkVersioned(result, "discount", details)
}

// CommitUsage moves the global counter and upserts the ledger entry of
// userID in one transaction. The counter update only applies while the
// stored version is expectedVersion and the cap is not reached.
func (r *discountRepository) CommitUsage(ctx context.Context, d *discount.Discount, userID string, expectedVersion int) error {
	entry := d.LedgerEntryFor(userID)
	if entry == nil {
		return ierr.NewError("ledger entry missing for user").
			WithReportableDetails(map[string]any{
				"discount_id": d.ID,
				"user_id":     userID,
			}).
			Mark(ierr.ErrInvariantViolation)
	}

	details := map[string]any{
		"discount_id":      d.ID,
		"user_id":          userID,
		"expected_version": expectedVersion,
	}

	return r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.GetQuerier(ctx)

		result, err := q.ExecContext(ctx, `
			UPDATE discounts SET
				current_usage = $1,
				version = $2,
				updated_at = $3,
				updated_by = $4
			WHERE id = $5 AND tenant_id = $6 AND version = $7
				AND (max_usage IS NULL OR current_usage < max_usage)`,
			d.CurrentUsage,
			d.Version,
			time.Now().UTC(),
			types.GetUserID(ctx),
			d.ID,
			types.GetTenantID(ctx),
			expectedVersion,
		)
		if err != nil {
			return wrapError(err, "discount", details)
		}
		if err := checkVersioned(result, "discount", details); err != nil {
			return err
		}

		_, err = q.ExecContext(ctx, `
			INSERT INTO discount_ledger_entries (`+ledgerColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (discount_id, user_id) DO UPDATE SET
				usage_count = EXCLUDED.usage_count,
				last_used_at = EXCLUDED.last_used_at,
				transaction_ids = EXCLUDED.transaction_ids`,
			entry.ID,
			d.ID,
			userID,
			entry.UsageCount,
			entry.FirstUsedAt,
			entry.LastUsedAt,
			pq.StringArray(entry.TransactionIDs),
		)
		if err != nil {
			return wrapError(err, "discount ledger", details)
		}

		r.logger.Debugw("committed discount usage",
			"discount_id", d.ID,
			"user_id", userID,
			"current_usage", d.CurrentUsage,
		)
		return nil
	})
}
