package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/item"
)

const itemColumns = `id, owner_id, title, images, base_price, price_unit, deposit_per_unit,
	quantity, available_quantity, status, deleted, created_at, updated_at`

const (
	getItemSQL = `SELECT ` + itemColumns + ` FROM items WHERE id = $1 AND NOT deleted`

	createItemSQL = `INSERT INTO items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id, title = EXCLUDED.title, images = EXCLUDED.images,
			base_price = EXCLUDED.base_price, price_unit = EXCLUDED.price_unit,
			deposit_per_unit = EXCLUDED.deposit_per_unit, quantity = EXCLUDED.quantity,
			available_quantity = EXCLUDED.available_quantity, status = EXCLUDED.status,
			deleted = EXCLUDED.deleted, updated_at = EXCLUDED.updated_at`

	// Listing status follows availability unless the item is in
	// maintenance or withdrawn.
	reserveItemSQL = `UPDATE items SET
			available_quantity = available_quantity - $2,
			status = CASE
				WHEN status NOT IN ('available', 'rented') THEN status
				WHEN available_quantity - $2 = 0 THEN 'rented'
				ELSE 'available' END,
			updated_at = NOW()
		WHERE id = $1 AND NOT deleted AND available_quantity >= $2
		RETURNING ` + itemColumns

	releaseItemSQL = `UPDATE items SET
			available_quantity = LEAST(quantity, available_quantity + $2),
			status = CASE
				WHEN status NOT IN ('available', 'rented') THEN status
				WHEN LEAST(quantity, available_quantity + $2) = 0 THEN 'rented'
				ELSE 'available' END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + itemColumns
)

var _ item.Repository = (*ItemRepository)(nil)

// ItemRepository implements item.Repository backed by PostgreSQL.
type ItemRepository struct {
	db *DB
}

// Get returns a non-deleted item.
func (r *ItemRepository) Get(ctx context.Context, id string) (*item.Item, error) {
	return r.one(ctx, getItemSQL, id)
}

// Create inserts the item or replaces an item with the same ID.
func (r *ItemRepository) Create(ctx context.Context, it *item.Item) error {
	images := it.Images
	if images == nil {
		images = []string{}
	}
	_, err := r.db.conn(ctx).Exec(ctx, createItemSQL,
		it.ID, it.OwnerID, it.Title, images, it.BasePrice, string(it.PriceUnit), it.DepositPerUnit,
		it.Quantity, it.AvailableQuantity, string(it.Status), it.Deleted, it.CreatedAt, it.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(mapErr(err), "create item %q", it.ID)
	}
	return nil
}

// Reserve decrements availability in a single conditional update.
func (r *ItemRepository) Reserve(ctx context.Context, id string, units int) (*item.Item, error) {
	it, err := r.one(ctx, reserveItemSQL, id, units)
	if errors.Is(err, item.ErrNotFound) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, errors.Wrapf(failure.ErrCapacityExceeded, "item %s has fewer than %d units", id, units)
	}
	return it, err
}

// Release returns units to the pool.
func (r *ItemRepository) Release(ctx context.Context, id string, units int) (*item.Item, error) {
	return r.one(ctx, releaseItemSQL, id, units)
}

func (r *ItemRepository) one(ctx context.Context, sql string, args ...any) (*item.Item, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(mapErr(err), "query item")
	}

	it, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, item.ErrNotFound
		}
		return nil, errors.Wrap(mapErr(err), "scan item")
	}
	return &it, nil
}

func scanItem(row pgx.CollectableRow) (item.Item, error) {
	var (
		it        item.Item
		priceUnit string
		status    string
	)
	err := row.Scan(
		&it.ID, &it.OwnerID, &it.Title, &it.Images, &it.BasePrice, &priceUnit, &it.DepositPerUnit,
		&it.Quantity, &it.AvailableQuantity, &status, &it.Deleted, &it.CreatedAt, &it.UpdatedAt,
	)
	it.PriceUnit = item.PriceUnit(priceUnit)
	it.Status = item.Status(status)
	return it, err
}
