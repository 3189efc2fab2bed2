package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/order"
)

const orderColumns = `id, renter_id, owner_id, item_id, item_snapshot, unit_count, start_at, end_at,
	billed_units, subtotal, discount_code, discount_amount, service_fee, deposit_amount, total_amount,
	amount_paid, amount_refunded, payment_ref, payment_status, status, disputed_from,
	cancel_reason, cancelled_by, condition, reviews, version, created_at, updated_at`

const (
	createOrderSQL = `INSERT INTO orders (` + orderColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`

	getOrderSQL          = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	updateOrderSQL = `UPDATE orders SET
			amount_paid = $3, amount_refunded = $4, payment_ref = $5, payment_status = $6,
			status = $7, disputed_from = $8, cancel_reason = $9, cancelled_by = $10,
			condition = $11, reviews = $12, updated_at = $13, version = version + 1
		WHERE id = $1 AND version = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	listOrdersByStatusSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT NULLIF($3, 0)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db *DB
}

// Create inserts a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	snapshot, err := json.Marshal(o.Snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal item snapshot")
	}
	condition, reviews, err := marshalOutcome(o)
	if err != nil {
		return err
	}

	_, err = r.db.conn(ctx).Exec(ctx, createOrderSQL,
		o.ID, o.RenterID, o.OwnerID, o.ItemID, snapshot, o.UnitCount, o.StartAt, o.EndAt,
		o.BilledUnits, o.Subtotal, o.DiscountCode, o.DiscountAmount, o.ServiceFee, o.DepositAmount, o.TotalAmount,
		o.AmountPaid, o.AmountRefunded, o.PaymentRef, string(o.PaymentStatus), string(o.Status), string(o.DisputedFrom),
		o.CancelReason, o.CancelledBy, condition, reviews, o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(mapErr(err), "create order %s", o.ID)
	}
	return nil
}

// Get returns an order by ID.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.one(ctx, getOrderSQL, id)
}

// GetForUpdate returns an order and locks its row until the transaction ends.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.one(ctx, getOrderForUpdateSQL, id)
}

// Update writes the mutable part of an order. Pricing and the item snapshot
// are fixed at creation.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	condition, reviews, err := marshalOutcome(o)
	if err != nil {
		return err
	}

	tag, err := r.db.conn(ctx).Exec(ctx, updateOrderSQL,
		o.ID, o.Version,
		o.AmountPaid, o.AmountRefunded, o.PaymentRef, string(o.PaymentStatus),
		string(o.Status), string(o.DisputedFrom), o.CancelReason, o.CancelledBy,
		condition, reviews, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(mapErr(err), "update order %s", o.ID)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.conn(ctx).QueryRow(ctx, orderExistsSQL, o.ID).Scan(&exists); err != nil {
			return errors.Wrap(err, "check order")
		}
		if !exists {
			return order.ErrNotFound
		}
		return errors.Wrapf(failure.ErrConcurrencyConflict, "order %s version %d is stale", o.ID, o.Version)
	}

	o.Version++
	return nil
}

// ListByStatus returns orders in status created before createdBefore,
// oldest first. A zero limit returns all of them.
func (r *OrderRepository) ListByStatus(ctx context.Context, status order.Status, createdBefore time.Time, limit int) ([]order.Order, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listOrdersByStatusSQL, string(status), createdBefore, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	return orders, nil
}

func (r *OrderRepository) one(ctx context.Context, sql string, id string) (*order.Order, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, id)
	if err != nil {
		return nil, errors.Wrap(mapErr(err), "query order")
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(mapErr(err), "scan order")
	}
	return &o, nil
}

func marshalOutcome(o *order.Order) (condition, reviews []byte, err error) {
	if o.Condition != nil {
		if condition, err = json.Marshal(o.Condition); err != nil {
			return nil, nil, errors.Wrap(err, "marshal condition")
		}
	}
	list := o.Reviews
	if list == nil {
		list = []order.Review{}
	}
	if reviews, err = json.Marshal(list); err != nil {
		return nil, nil, errors.Wrap(err, "marshal reviews")
	}
	return condition, reviews, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                                   order.Order
		snapshot, condition, reviews        []byte
		paymentStatus, status, disputedFrom string
	)
	err := row.Scan(
		&o.ID, &o.RenterID, &o.OwnerID, &o.ItemID, &snapshot, &o.UnitCount, &o.StartAt, &o.EndAt,
		&o.BilledUnits, &o.Subtotal, &o.DiscountCode, &o.DiscountAmount, &o.ServiceFee, &o.DepositAmount, &o.TotalAmount,
		&o.AmountPaid, &o.AmountRefunded, &o.PaymentRef, &paymentStatus, &status, &disputedFrom,
		&o.CancelReason, &o.CancelledBy, &condition, &reviews, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.Status = order.Status(status)
	o.DisputedFrom = order.Status(disputedFrom)

	if err := json.Unmarshal(snapshot, &o.Snapshot); err != nil {
		return o, errors.Wrap(err, "unmarshal item snapshot")
	}
	if len(condition) > 0 {
		o.Condition = &order.ConditionReport{}
		if err := json.Unmarshal(condition, o.Condition); err != nil {
			return o, errors.Wrap(err, "unmarshal condition")
		}
	}
	if len(reviews) > 0 {
		if err := json.Unmarshal(reviews, &o.Reviews); err != nil {
			return o, errors.Wrap(err, "unmarshal reviews")
		}
		if len(o.Reviews) == 0 {
			o.Reviews = nil
		}
	}
	return o, nil
}
