package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/rentkart/internal/domain/discount"
)

const discountColumns = `code, type, value, max_discount_amount, min_order_amount, start_at, end_at,
	usage_limit, used_count, owner_id, item_id, active, is_public, allowed_users, description`

const (
	findDiscountSQL = `SELECT ` + discountColumns + ` FROM discounts WHERE code = $1`

	// The limit check and the increment are one statement so concurrent
	// redemptions can never overshoot usage_limit.
	incrementUsageSQL = `UPDATE discounts SET used_count = used_count + 1
		WHERE code = $1 AND (usage_limit = 0 OR used_count < usage_limit)
		RETURNING ` + discountColumns

	upsertDiscountSQL = `INSERT INTO discounts (` + discountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (code) DO UPDATE SET
			type = EXCLUDED.type, value = EXCLUDED.value,
			max_discount_amount = EXCLUDED.max_discount_amount,
			min_order_amount = EXCLUDED.min_order_amount,
			start_at = EXCLUDED.start_at, end_at = EXCLUDED.end_at,
			usage_limit = EXCLUDED.usage_limit, owner_id = EXCLUDED.owner_id,
			item_id = EXCLUDED.item_id, active = EXCLUDED.active,
			is_public = EXCLUDED.is_public, allowed_users = EXCLUDED.allowed_users,
			description = EXCLUDED.description`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	db *DB
}

func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Discount, error) {
	return r.one(ctx, findDiscountSQL, discount.NormalizeCode(code))
}

func (r *DiscountRepository) IncrementUsage(ctx context.Context, code string) (*discount.Discount, error) {
	code = discount.NormalizeCode(code)
	d, err := r.one(ctx, incrementUsageSQL, code)
	if errors.Is(err, discount.ErrNotFound) {
		if _, findErr := r.FindByCode(ctx, code); findErr != nil {
			return nil, findErr
		}
		return nil, discount.ErrUsageLimitReached
	}
	return d, err
}

// Upsert stores d, keeping the usage count of an existing code.
func (r *DiscountRepository) Upsert(ctx context.Context, d *discount.Discount) error {
	allowed := d.AllowedUsers
	if allowed == nil {
		allowed = []string{}
	}
	_, err := r.db.conn(ctx).Exec(ctx, upsertDiscountSQL,
		discount.NormalizeCode(d.Code), string(d.Type), d.Value, d.MaxDiscountAmount, d.MinOrderAmount,
		nullTime(d.StartAt), nullTime(d.EndAt), d.UsageLimit, d.OwnerID, d.ItemID, d.Active, d.IsPublic,
		allowed, d.Description,
	)
	if err != nil {
		return errors.Wrapf(mapErr(err), "upsert discount %q", d.Code)
	}
	return nil
}

func (r *DiscountRepository) one(ctx context.Context, sql, code string) (*discount.Discount, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, code)
	if err != nil {
		return nil, errors.Wrap(mapErr(err), "query discount")
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan discount")
	}
	return &d, nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var (
		d              discount.Discount
		typ            string
		startAt, endAt *time.Time
	)
	err := row.Scan(
		&d.Code, &typ, &d.Value, &d.MaxDiscountAmount, &d.MinOrderAmount, &startAt, &endAt,
		&d.UsageLimit, &d.UsedCount, &d.OwnerID, &d.ItemID, &d.Active, &d.IsPublic, &d.AllowedUsers, &d.Description,
	)
	d.Type = discount.Type(typ)
	d.StartAt = fromNullTime(startAt)
	d.EndAt = fromNullTime(endAt)
	return d, err
}
