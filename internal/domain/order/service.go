package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/rentkart/internal/domain/contract"
	"github.com/xenking/rentkart/internal/domain/discount"
	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/item"
	"github.com/xenking/rentkart/internal/domain/ledger"
	"github.com/xenking/rentkart/internal/domain/txn"
)

const (
	roleRenter = "renter"
	roleOwner  = "owner"
	roleSystem = "system"
)

// Discounts redeems discount codes.
type Discounts interface {
	Redeem(ctx context.Context, req discount.Request) (*discount.Result, error)
}

// Ledger posts money movements.
type Ledger interface {
	Record(ctx context.Context, e ledger.Entry) (*ledger.Transaction, error)
}

// Contracts manages the agreement attached to each order.
type Contracts interface {
	Issue(ctx context.Context, orderID, ownerID, renterID, content string) (*contract.Contract, error)
	IsActive(ctx context.Context, orderID string) (bool, error)
	Close(ctx context.Context, orderID string) error
}

// CreateRequest holds the input for reserving an item.
type CreateRequest struct {
	RenterID     string
	ItemID       string
	UnitCount    int
	StartAt      time.Time
	EndAt        time.Time
	DiscountCode string
	// ContinueWithoutDiscount creates the order at full price when the
	// discount code is rejected instead of failing.
	ContinueWithoutDiscount bool
}

// Decision is the outcome of a dispute as applied to its order.
type Decision string

const (
	// DecisionRefund cancels the order and refunds the renter.
	DecisionRefund Decision = "refund"
	// DecisionPartialRefund completes the order and refunds part of it.
	DecisionPartialRefund Decision = "partial_refund"
	// DecisionRelease completes the order without refund.
	DecisionRelease Decision = "release"
)

// Resolution is a dispute outcome to apply to an order.
type Resolution struct {
	Decision     Decision
	RefundAmount decimal.Decimal
	// Reference identifies the dispute. It scopes the refund's
	// idempotency key.
	Reference string
}

// Service owns every status change of an order.
type Service struct {
	orders    Repository
	items     item.Repository
	discounts Discounts
	contracts Contracts
	ledger    Ledger
	runner    txn.Runner
	policy    Policy
	now       func() time.Time

	tracer      trace.Tracer
	transitions metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	orders Repository,
	items item.Repository,
	discounts Discounts,
	contracts Contracts,
	ledger Ledger,
	runner txn.Runner,
	policy Policy,
) *Service {
	transitions, _ := otel.Meter("rentkart/order").Int64Counter("order.transitions",
		metric.WithDescription("Order lifecycle transitions, by event"))

	return &Service{
		orders:      orders,
		items:       items,
		discounts:   discounts,
		contracts:   contracts,
		ledger:      ledger,
		runner:      runner,
		policy:      policy,
		now:         time.Now,
		tracer:      otel.Tracer("rentkart/order"),
		transitions: transitions,
	}
}

// Get returns an order by ID.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// Create reserves req.UnitCount units of the item, prices the rental,
// redeems the discount code and opens the order in pending_payment together
// with its unsigned contract.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Create", trace.WithAttributes(
		attribute.String("order.item_id", req.ItemID),
		attribute.Int("order.unit_count", req.UnitCount),
	))
	defer span.End()

	if req.UnitCount < 1 {
		return nil, errors.Wrap(failure.ErrInvalidArgument, "unit count must be at least 1")
	}
	if !req.StartAt.Before(req.EndAt) {
		return nil, errors.Wrap(failure.ErrInvalidWindow, "start must be before end")
	}
	if req.StartAt.Before(s.now()) {
		return nil, errors.Wrap(failure.ErrInvalidWindow, "start is in the past")
	}

	var o *Order
	err := txn.Do(ctx, s.runner, s.policy.Retry, func(ctx context.Context) error {
		it, err := s.items.Get(ctx, req.ItemID)
		if err != nil {
			return err
		}
		if !it.Rentable() {
			return item.ErrNotRentable
		}
		if it.OwnerID == req.RenterID {
			return ErrOwnItem
		}
		if it.AvailableQuantity < req.UnitCount {
			return errors.Wrapf(failure.ErrCapacityExceeded, "requested %d, available %d",
				req.UnitCount, it.AvailableQuantity)
		}

		snap := snapshot(it)
		quote, err := Price(snap, req.UnitCount, req.StartAt, req.EndAt)
		if err != nil {
			return err
		}

		code, off, err := s.redeem(ctx, req, it, quote.Subtotal)
		if err != nil {
			return err
		}

		if _, err := s.items.Reserve(ctx, it.ID, req.UnitCount); err != nil {
			return err
		}

		net := quote.Subtotal.Sub(off)
		fee := percentOf(net, s.policy.ServiceFeePercent)
		now := s.now()
		o = &Order{
			ID:             uuid.New().String(),
			RenterID:       req.RenterID,
			OwnerID:        it.OwnerID,
			ItemID:         it.ID,
			Snapshot:       snap,
			UnitCount:      req.UnitCount,
			StartAt:        req.StartAt,
			EndAt:          req.EndAt,
			BilledUnits:    quote.BilledUnits,
			Subtotal:       quote.Subtotal,
			DiscountCode:   code,
			DiscountAmount: off,
			ServiceFee:     fee,
			DepositAmount:  quote.Deposit,
			TotalAmount:    net.Add(fee).Add(quote.Deposit),
			AmountPaid:     decimal.Zero,
			AmountRefunded: decimal.Zero,
			PaymentStatus:  PaymentNotPaid,
			Status:         StatusPendingPayment,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if _, err := s.contracts.Issue(ctx, o.ID, o.OwnerID, o.RenterID, contractTerms(o)); err != nil {
			return errors.Wrap(err, "issue contract")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("item_id", o.ItemID),
		zap.Int("unit_count", o.UnitCount),
		zap.String("total", o.TotalAmount.String()),
	)
	return o, nil
}

// redeem applies the request's discount code, if any, to subtotal.
func (s *Service) redeem(ctx context.Context, req CreateRequest, it *item.Item, subtotal decimal.Decimal) (string, decimal.Decimal, error) {
	if req.DiscountCode == "" {
		return "", decimal.Zero, nil
	}

	res, err := s.discounts.Redeem(ctx, discount.Request{
		Code:       req.DiscountCode,
		BaseAmount: subtotal,
		UserID:     req.RenterID,
		OwnerID:    it.OwnerID,
		ItemID:     it.ID,
	})
	switch {
	case err == nil:
		return res.Discount.Code, res.Amount, nil
	case errors.Is(err, failure.ErrDiscountInvalid) && req.ContinueWithoutDiscount:
		zctx.From(ctx).Info("Discount rejected, continuing at full price",
			zap.String("code", req.DiscountCode), zap.Error(err))
		return "", decimal.Zero, nil
	default:
		return "", decimal.Zero, err
	}
}

// ConfirmPayment captures amount from the renter and confirms the order.
// The payment must cover MinPaymentRatio of the rental amount; anything
// below the total leaves the order partially paid. Amounts above the total
// are capped at the total.
//
// A provider failure is persisted as PaymentFailed, keeps the order in
// pending_payment and is returned to the caller, who may retry.
func (s *Service) ConfirmPayment(ctx context.Context, orderID string, amount decimal.Decimal) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.ConfirmPayment", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer span.End()

	if !amount.IsPositive() {
		return nil, errors.Wrap(failure.ErrInvalidArgument, "payment amount must be positive")
	}

	var (
		o           *Order
		providerErr error
	)
	err := txn.Do(ctx, s.runner, s.policy.Retry, func(ctx context.Context) error {
		var err error
		if o, err = s.orders.GetForUpdate(ctx, orderID); err != nil {
			return err
		}
		if _, err := o.next(EventPay); err != nil {
			return err
		}

		required := o.TotalAmount.Sub(o.DepositAmount).Mul(s.policy.MinPaymentRatio).Round(2)
		if amount.LessThan(required) {
			return errors.Wrapf(ErrInsufficientPayment, "got %s, need %s", amount, required)
		}
		charge := decimal.Min(amount, o.TotalAmount)

		tx, err := s.ledger.Record(ctx, ledger.Entry{
			UserID:         o.RenterID,
			OrderID:        o.ID,
			Type:           ledger.TypePayment,
			Amount:         charge,
			IdempotencyKey: "order:" + o.ID + ":payment",
		})
		if err != nil {
			if !errors.Is(err, failure.ErrProviderFailure) {
				return err
			}
			providerErr = err
			o.PaymentStatus = PaymentFailed
			o.UpdatedAt = s.now()
			return s.orders.Update(ctx, o)
		}

		o.AmountPaid = charge
		o.PaymentRef = tx.ProviderRef
		o.PaymentStatus = PaymentPartial
		if charge.GreaterThanOrEqual(o.TotalAmount) {
			o.PaymentStatus = PaymentPaid
		}
		return s.transition(ctx, o, EventPay)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if providerErr != nil {
		span.RecordError(providerErr)
		return o, providerErr
	}
	return o, nil
}

// Start hands the item over to the renter.
func (s *Service) Start(ctx context.Context, orderID string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Start", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer span.End()

	var o *Order
	err := txn.Do(ctx, s.runner, s.policy.Retry, func(ctx context.Context) error {
		var err error
		if o, err = s.orders.GetForUpdate(ctx, orderID); err != nil {
			return err
		}
		if _, err := o.next(EventStart); err != nil {
			return err
		}
		if o.PaymentStatus == PaymentPartial && !s.policy.AllowPartialStart {
			return ErrPaymentIncomplete
		}
		if !s.policy.AllowUnsignedStart {
			active, err := s.contracts.IsActive(ctx, o.ID)
			if err != nil {
				return errors.Wrap(err, "check contract")
			}
			if !active {
				return errors.Wrapf(failure.ErrContractNotSigned, "order %s", o.ID)
			}
		}
		return s.transition(ctx, o, EventStart)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return o, nil
}

// Complete closes a rental once the item is returned. It returns the held
// deposit, charges the reported damage fee, releases the reserved units and
// closes the contract. Completing a completed order returns it unchanged.
func (s *Service) Complete(ctx context.Context, orderID string, report ConditionReport) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Complete", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer span.End()

	if report.DamageFee.IsNegative() {
		return nil, errors.Wrap(failure.ErrInvalidArgument, "damage fee must not be negative")
	}

	var o *Order
	err := txn.Do(ctx, s.runner, s.policy.Retry, func(ctx context.Context) error {
		var err error
		if o, err = s.orders.GetForUpdate(ctx, orderID); err != nil {
			return err
		}
		if o.Status == StatusCompleted {
			return nil
		}
		if _, err := o.next(EventComplete); err != nil {
			return err
		}

		if _, err := s.items.Release(ctx, o.ItemID, o.UnitCount); err != nil {
			return errors.Wrap(err, "release units")
		}

		if held := o.HeldDeposit(); held.IsPositive() {
			if err := s.refund(ctx, o, held, "order:"+o.ID+":deposit-refund"); err != nil {
				return err
			}
		}
		if report.DamageFee.IsPositive() {
			if _, err := s.ledger.Record(ctx, ledger.Entry{
				UserID:         o.RenterID,
				OrderID:        o.ID,
				Type:           ledger.TypeFee,
				Amount:         report.DamageFee,
				IdempotencyKey: "order:" + o.ID + ":damage-fee",
			}); err != nil {
				return err
			}
		}

		if err := s.contracts.Close(ctx, o.ID); err != nil {
			return errors.Wrap(err, "close contract")
		}

		report.ReportedAt = s.now()
		o.Condition = &report
		return s.transition(ctx, o, EventComplete)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return o, nil
}

// Cancel cancels an order that has not started yet, releasing its units,
// closing its contract and refunding the captured payment. Owners and the
// platform cancel with a full refund; renters get a full refund only with
// enough notice.
func (s *Service) Cancel(ctx context.Context, orderID, reason, actorID string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Cancel", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer span.End()

	var o *Order
	err := txn.Do(ctx, s.runner, s.policy.Retry, func(ctx context.Context) error {
		var err error
		if o, err = s.orders.GetForUpdate(ctx, orderID); err != nil {
			return err
		}
		role, err := actorRole(o, actorID)
		if err != nil {
			return err
		}
		if _, err := o.next(EventCancel); err != nil {
			return err
		}

		if _, err := s.items.Release(ctx, o.ItemID, o.UnitCount); err != nil {
			return errors.Wrap(err, "release units")
		}

		if o.Refundable().IsPositive() {
			amount := s.policy.cancelRefund(o, role, s.now())
			if amount.IsPositive() {
				if err := s.refund(ctx, o, amount, "order:"+o.ID+":cancel-refund"); err != nil {
					return err
				}
			}
		}

		if err := s.contracts.Close(ctx, o.ID); err != nil {
			return errors.Wrap(err, "close contract")
		}

		o.CancelReason = reason
		o.CancelledBy = actorID
		return s.transition(ctx, o, EventCancel)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return o, nil
}

// MarkDisputed moves an order into dispute.
func (s *Service) MarkDisputed(ctx context.Context, orderID string) (*Order, error) {
	var o *Order
	err := txn.Do(ctx, s.runner, s.policy.Retry, func(ctx context.Context) error {
		var err error
		if o, err = s.orders.GetForUpdate(ctx, orderID); err != nil {
			return err
		}
		return s.transition(ctx, o, EventDispute)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// RestoreFromDispute returns a disputed order to the status it had before
// the dispute was opened.
func (s *Service) RestoreFromDispute(ctx context.Context, orderID string) (*Order, error) {
	var o *Order
	err := txn.Do(ctx, s.runner, s.policy.Retry, func(ctx context.Context) error {
		var err error
		if o, err = s.orders.GetForUpdate(ctx, orderID); err != nil {
			return err
		}
		return s.transition(ctx, o, EventRejectDispute)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ApplyDisputeResolution settles a disputed order: a refund decision
// cancels it, the others complete it. The refund is posted once per
// dispute reference, and units still reserved by the order are released.
func (s *Service) ApplyDisputeResolution(ctx context.Context, orderID string, res Resolution) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.ApplyDisputeResolution", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.decision", string(res.Decision)),
	))
	defer span.End()

	var ev Event
	switch res.Decision {
	case DecisionRefund:
		ev = EventResolveCancel
	case DecisionPartialRefund:
		ev = EventResolveComplete
	case DecisionRelease:
		ev = EventResolveComplete
		if !res.RefundAmount.IsZero() {
			return nil, errors.Wrap(failure.ErrInvalidArgument, "release decision cannot refund")
		}
	default:
		return nil, errors.Wrapf(failure.ErrInvalidArgument, "unknown decision %q", res.Decision)
	}
	if res.RefundAmount.IsNegative() {
		return nil, errors.Wrap(failure.ErrInvalidArgument, "refund amount must not be negative")
	}

	var o *Order
	err := txn.Do(ctx, s.runner, s.policy.Retry, func(ctx context.Context) error {
		var err error
		if o, err = s.orders.GetForUpdate(ctx, orderID); err != nil {
			return err
		}
		if _, err := o.next(ev); err != nil {
			return err
		}
		if res.RefundAmount.GreaterThan(o.Refundable()) {
			return errors.Wrapf(ErrRefundTooLarge, "refund %s, refundable %s", res.RefundAmount, o.Refundable())
		}

		if res.RefundAmount.IsPositive() {
			key := "order:" + o.ID + ":dispute-refund:" + res.Reference
			if err := s.refund(ctx, o, res.RefundAmount, key); err != nil {
				return err
			}
		}
		if holdsCapacity(o.DisputedFrom) {
			if _, err := s.items.Release(ctx, o.ItemID, o.UnitCount); err != nil {
				return errors.Wrap(err, "release units")
			}
		}
		if err := s.contracts.Close(ctx, o.ID); err != nil {
			return errors.Wrap(err, "close contract")
		}
		return s.transition(ctx, o, ev)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return o, nil
}

// AddReview appends a review by one of the parties to a completed order.
func (s *Service) AddReview(ctx context.Context, orderID string, r Review) (*Order, error) {
	if r.Rating < 1 || r.Rating > 5 {
		return nil, errors.Wrap(failure.ErrInvalidArgument, "rating must be between 1 and 5")
	}

	var o *Order
	err := txn.Do(ctx, s.runner, s.policy.Retry, func(ctx context.Context) error {
		var err error
		if o, err = s.orders.GetForUpdate(ctx, orderID); err != nil {
			return err
		}
		if o.Status != StatusCompleted {
			return &TransitionError{OrderID: o.ID, From: o.Status, Event: "review"}
		}
		if r.AuthorID != o.RenterID && r.AuthorID != o.OwnerID {
			return ErrNotParty
		}
		for _, existing := range o.Reviews {
			if existing.AuthorID == r.AuthorID {
				return ErrAlreadyReviewed
			}
		}

		r.CreatedAt = s.now()
		o.Reviews = append(o.Reviews, r)
		o.UpdatedAt = r.CreatedAt
		return s.orders.Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ExpireUnpaid cancels orders still waiting for payment after the policy's
// payment timeout and returns how many were cancelled.
func (s *Service) ExpireUnpaid(ctx context.Context, limit int) (int, error) {
	cutoff := s.now().Add(-s.policy.PaymentTimeout)
	stale, err := s.orders.ListByStatus(ctx, StatusPendingPayment, cutoff, limit)
	if err != nil {
		return 0, errors.Wrap(err, "list unpaid orders")
	}

	lg := zctx.From(ctx)
	expired := 0
	for _, o := range stale {
		if _, err := s.Cancel(ctx, o.ID, "payment timeout", SystemActor); err != nil {
			if errors.Is(err, failure.ErrInvalidStateTransition) {
				continue
			}
			lg.Warn("Expire unpaid order", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		expired++
	}
	return expired, nil
}

// refund returns amount of the order's payment to the renter.
func (s *Service) refund(ctx context.Context, o *Order, amount decimal.Decimal, key string) error {
	if _, err := s.ledger.Record(ctx, ledger.Entry{
		UserID:         o.RenterID,
		OrderID:        o.ID,
		Type:           ledger.TypeRefund,
		Amount:         amount.Neg(),
		IdempotencyKey: key,
		ChargeRef:      o.PaymentRef,
	}); err != nil {
		return err
	}
	o.AmountRefunded = o.AmountRefunded.Add(amount)
	return nil
}

// transition applies ev to o and persists it.
func (s *Service) transition(ctx context.Context, o *Order, ev Event) error {
	from, err := o.apply(ev)
	if err != nil {
		return err
	}
	// Completed orders stay paid or partial whatever was returned to the
	// renter; only a cancelled order is marked refunded.
	if o.Status == StatusCancelled && o.AmountRefunded.IsPositive() {
		o.PaymentStatus = PaymentRefunded
	}
	o.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, o); err != nil {
		return errors.Wrap(err, "update order")
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("event", string(ev))))
	zctx.From(ctx).Info("Order transition",
		zap.String("order_id", o.ID),
		zap.String("event", string(ev)),
		zap.String("from", string(from)),
		zap.String("to", string(o.Status)),
	)
	return nil
}

func actorRole(o *Order, actorID string) (string, error) {
	switch actorID {
	case SystemActor:
		return roleSystem, nil
	case o.RenterID:
		return roleRenter, nil
	case o.OwnerID:
		return roleOwner, nil
	default:
		return "", ErrNotParty
	}
}

func contractTerms(o *Order) string {
	return fmt.Sprintf(
		"Rental agreement for %q: %d unit(s) from %s to %s (%d %s). "+
			"Rental %s, discount %s, service fee %s, deposit %s, total %s.",
		o.Snapshot.Title, o.UnitCount,
		o.StartAt.UTC().Format(time.RFC3339), o.EndAt.UTC().Format(time.RFC3339),
		o.BilledUnits, o.Snapshot.PriceUnit,
		o.Subtotal, o.DiscountAmount, o.ServiceFee, o.DepositAmount, o.TotalAmount,
	)
}
