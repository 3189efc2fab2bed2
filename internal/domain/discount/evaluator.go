package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Evaluator checks discount eligibility and computes discount amounts.
type Evaluator struct {
	repo     Repository
	now      func() time.Time
	redeemed metric.Int64Counter
	rejected metric.Int64Counter
}

// NewEvaluator creates an Evaluator backed by the given Repository.
func NewEvaluator(repo Repository) *Evaluator {
	meter := otel.Meter("rentkart/discount")
	redeemed, _ := meter.Int64Counter("discount.redeemed",
		metric.WithDescription("Discount codes successfully redeemed"))
	rejected, _ := meter.Int64Counter("discount.rejected",
		metric.WithDescription("Discount evaluations rejected, by reason"))

	return &Evaluator{
		repo:     repo,
		now:      time.Now,
		redeemed: redeemed,
		rejected: rejected,
	}
}

// Validate checks req against the stored discount and returns the amount it
// would take off req.BaseAmount. It has no side effects.
func (e *Evaluator) Validate(ctx context.Context, req Request) (*Result, error) {
	code := NormalizeCode(req.Code)
	d, err := e.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.reject(ctx, ErrNotFound)
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup discount")
	}

	if err := e.check(d, req); err != nil {
		e.reject(ctx, err)
		return nil, err
	}

	amount, err := Apply(d, req.BaseAmount)
	if err != nil {
		return nil, err
	}

	return &Result{Amount: amount, Discount: *d}, nil
}

// Redeem validates req and consumes one use of the discount. The usage
// counter never passes the limit, even when many redemptions race.
func (e *Evaluator) Redeem(ctx context.Context, req Request) (*Result, error) {
	res, err := e.Validate(ctx, req)
	if err != nil {
		return nil, err
	}

	d, err := e.repo.IncrementUsage(ctx, res.Discount.Code)
	if err != nil {
		if errors.Is(err, ErrUsageLimitReached) || errors.Is(err, ErrNotFound) {
			e.reject(ctx, err)
			return nil, err
		}
		return nil, errors.Wrap(err, "increment discount usage")
	}
	res.Discount = *d

	e.redeemed.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(d.Type))))
	return res, nil
}

func (e *Evaluator) check(d *Discount, req Request) error {
	now := e.now()

	switch {
	case !d.Active:
		return ErrInactive
	case !d.StartAt.IsZero() && now.Before(d.StartAt):
		return ErrNotYetValid
	case !d.EndAt.IsZero() && now.After(d.EndAt):
		return ErrExpired
	case d.MinOrderAmount.Valid && req.BaseAmount.LessThan(d.MinOrderAmount.Decimal):
		return ErrBelowMinimum
	case d.OwnerID != "" && d.OwnerID != req.OwnerID:
		return ErrScopeMismatch
	case d.ItemID != "" && d.ItemID != req.ItemID:
		return ErrScopeMismatch
	case d.Exhausted():
		return ErrUsageLimitReached
	case !d.Allows(req.UserID):
		return ErrNotAllowed
	}
	return nil
}

func (e *Evaluator) reject(ctx context.Context, reason error) {
	e.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason.Error())))
}
