package dispute

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/order"
	"github.com/xenking/rentkart/internal/domain/txn"
)

// Orders is the part of the order lifecycle disputes drive.
type Orders interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	MarkDisputed(ctx context.Context, orderID string) (*order.Order, error)
	RestoreFromDispute(ctx context.Context, orderID string) (*order.Order, error)
	ApplyDisputeResolution(ctx context.Context, orderID string, res order.Resolution) (*order.Order, error)
}

// Resolver opens, reviews and settles disputes.
type Resolver struct {
	repo   Repository
	orders Orders
	runner txn.Runner
	retry  txn.Policy
	now    func() time.Time
}

// NewResolver creates a dispute Resolver.
func NewResolver(repo Repository, orders Orders, runner txn.Runner, retry txn.Policy) *Resolver {
	return &Resolver{repo: repo, orders: orders, runner: runner, retry: retry, now: time.Now}
}

// Get returns a dispute by ID.
func (r *Resolver) Get(ctx context.Context, id string) (*Dispute, error) {
	return r.repo.Get(ctx, id)
}

// Open files a dispute by one party of the order against the other and
// moves the order into dispute.
func (r *Resolver) Open(ctx context.Context, orderID, reporterID, reason string) (*Dispute, error) {
	var d *Dispute
	err := txn.Do(ctx, r.runner, r.retry, func(ctx context.Context) error {
		o, err := r.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}

		var reported string
		switch reporterID {
		case o.RenterID:
			reported = o.OwnerID
		case o.OwnerID:
			reported = o.RenterID
		default:
			return order.ErrNotParty
		}

		// MarkDisputed locks the order, so the open dispute lookup below sees
		// any dispute committed by a concurrent Open.
		if _, err := r.orders.MarkDisputed(ctx, orderID); err != nil {
			if !errors.Is(err, failure.ErrInvalidStateTransition) {
				return err
			}
			if _, ferr := r.repo.FindOpenByOrder(ctx, orderID); ferr == nil {
				return ErrDuplicateDispute
			} else if !errors.Is(ferr, ErrNotFound) {
				return errors.Wrap(ferr, "find open dispute")
			}
			return errors.Wrapf(ErrOrderNotDisputable, "order %s is %s", orderID, o.Status)
		}

		now := r.now()
		d = &Dispute{
			ID:         uuid.New().String(),
			OrderID:    orderID,
			ReporterID: reporterID,
			ReportedID: reported,
			Reason:     reason,
			Status:     StatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return r.repo.Create(ctx, d)
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Dispute opened",
		zap.String("dispute_id", d.ID),
		zap.String("order_id", orderID),
	)
	return d, nil
}

// Review records that a moderator looked at the dispute.
func (r *Resolver) Review(ctx context.Context, id, note string) (*Dispute, error) {
	var d *Dispute
	err := txn.Do(ctx, r.runner, r.retry, func(ctx context.Context) error {
		var err error
		if d, err = r.repo.GetForUpdate(ctx, id); err != nil {
			return err
		}
		switch d.Status {
		case StatusReviewed:
			return nil
		case StatusPending:
		default:
			return &StatusError{DisputeID: d.ID, From: d.Status, Action: "review"}
		}

		d.Status = StatusReviewed
		d.ReviewNote = note
		d.UpdatedAt = r.now()
		return r.repo.Update(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Resolve settles the dispute with decision and applies it to the order.
// Resolving a closed dispute returns the stored result without side
// effects.
func (r *Resolver) Resolve(ctx context.Context, id string, decision order.Decision, refund decimal.Decimal, note string) (*Dispute, error) {
	var d *Dispute
	err := txn.Do(ctx, r.runner, r.retry, func(ctx context.Context) error {
		var err error
		if d, err = r.repo.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if d.Status.Terminal() {
			return nil
		}

		if _, err := r.orders.ApplyDisputeResolution(ctx, d.OrderID, order.Resolution{
			Decision:     decision,
			RefundAmount: refund,
			Reference:    d.ID,
		}); err != nil {
			return err
		}

		now := r.now()
		d.Status = StatusResolved
		d.Resolution = &Resolution{Decision: decision, RefundAmount: refund, Note: note}
		d.UpdatedAt = now
		d.ClosedAt = now
		return r.repo.Update(ctx, d)
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Dispute resolved",
		zap.String("dispute_id", d.ID),
		zap.String("order_id", d.OrderID),
		zap.String("status", string(d.Status)),
	)
	return d, nil
}

// Reject dismisses the dispute and returns the order to its previous
// status. Rejecting a closed dispute returns it unchanged.
func (r *Resolver) Reject(ctx context.Context, id, note string) (*Dispute, error) {
	var d *Dispute
	err := txn.Do(ctx, r.runner, r.retry, func(ctx context.Context) error {
		var err error
		if d, err = r.repo.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if d.Status.Terminal() {
			return nil
		}

		if _, err := r.orders.RestoreFromDispute(ctx, d.OrderID); err != nil {
			return err
		}

		now := r.now()
		d.Status = StatusRejected
		d.ReviewNote = note
		d.UpdatedAt = now
		d.ClosedAt = now
		return r.repo.Update(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}
