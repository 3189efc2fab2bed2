package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/rentkart/internal/domain/dispute"
	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/order"
)

const disputeColumns = `id, order_id, reporter_id, reported_id, reason, status, review_note,
	decision, refund_amount, resolution_note, version, created_at, updated_at, closed_at`

const (
	createDisputeSQL = `INSERT INTO disputes (` + disputeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	getDisputeSQL          = `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`
	getDisputeForUpdateSQL = getDisputeSQL + ` FOR UPDATE`

	findOpenDisputeSQL = `SELECT ` + disputeColumns + ` FROM disputes
		WHERE order_id = $1 AND status IN ('pending', 'reviewed')`

	updateDisputeSQL = `UPDATE disputes SET
			status = $3, review_note = $4, decision = $5, refund_amount = $6, resolution_note = $7,
			updated_at = $8, closed_at = $9, version = version + 1
		WHERE id = $1 AND version = $2`
)

var _ dispute.Repository = (*DisputeRepository)(nil)

// DisputeRepository implements dispute.Repository backed by PostgreSQL.
type DisputeRepository struct {
	db *DB
}

// Create inserts a dispute. The partial unique index on open disputes
// turns a concurrent second dispute into dispute.ErrDuplicateDispute.
func (r *DisputeRepository) Create(ctx context.Context, d *dispute.Dispute) error {
	decision, amount, note := resolutionArgs(d.Resolution)
	_, err := r.db.conn(ctx).Exec(ctx, createDisputeSQL,
		d.ID, d.OrderID, d.ReporterID, d.ReportedID, d.Reason, string(d.Status), d.ReviewNote,
		decision, amount, note, d.Version, d.CreatedAt, d.UpdatedAt, nullTime(d.ClosedAt),
	)
	if err != nil {
		err = mapErr(err)
		if errors.Is(err, failure.ErrDuplicateOperation) {
			return dispute.ErrDuplicateDispute
		}
		return errors.Wrapf(err, "create dispute for order %s", d.OrderID)
	}
	return nil
}

func (r *DisputeRepository) Get(ctx context.Context, id string) (*dispute.Dispute, error) {
	return r.one(ctx, getDisputeSQL, id)
}

func (r *DisputeRepository) GetForUpdate(ctx context.Context, id string) (*dispute.Dispute, error) {
	return r.one(ctx, getDisputeForUpdateSQL, id)
}

func (r *DisputeRepository) FindOpenByOrder(ctx context.Context, orderID string) (*dispute.Dispute, error) {
	return r.one(ctx, findOpenDisputeSQL, orderID)
}

func (r *DisputeRepository) Update(ctx context.Context, d *dispute.Dispute) error {
	decision, amount, note := resolutionArgs(d.Resolution)
	tag, err := r.db.conn(ctx).Exec(ctx, updateDisputeSQL,
		d.ID, d.Version, string(d.Status), d.ReviewNote, decision, amount, note,
		d.UpdatedAt, nullTime(d.ClosedAt),
	)
	if err != nil {
		return errors.Wrapf(mapErr(err), "update dispute %s", d.ID)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, d.ID); err != nil {
			return err
		}
		return errors.Wrapf(failure.ErrConcurrencyConflict, "dispute %s", d.ID)
	}

	d.Version++
	return nil
}

func (r *DisputeRepository) one(ctx context.Context, sql, arg string) (*dispute.Dispute, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(mapErr(err), "query dispute")
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDispute)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dispute.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan dispute")
	}
	return &d, nil
}

func resolutionArgs(res *dispute.Resolution) (decision *string, amount decimal.NullDecimal, note *string) {
	if res == nil {
		return nil, decimal.NullDecimal{}, nil
	}
	dec := string(res.Decision)
	return &dec, decimal.NewNullDecimal(res.RefundAmount), &res.Note
}

func scanDispute(row pgx.CollectableRow) (dispute.Dispute, error) {
	var (
		d        dispute.Dispute
		status   string
		decision *string
		amount   decimal.NullDecimal
		note     *string
		closedAt *time.Time
	)
	err := row.Scan(
		&d.ID, &d.OrderID, &d.ReporterID, &d.ReportedID, &d.Reason, &status, &d.ReviewNote,
		&decision, &amount, &note, &d.Version, &d.CreatedAt, &d.UpdatedAt, &closedAt,
	)
	if err != nil {
		return d, err
	}

	d.Status = dispute.Status(status)
	d.ClosedAt = fromNullTime(closedAt)
	if decision != nil {
		d.Resolution = &dispute.Resolution{Decision: order.Decision(*decision), RefundAmount: amount.Decimal}
		if note != nil {
			d.Resolution.Note = *note
		}
	}
	return d, nil
}
