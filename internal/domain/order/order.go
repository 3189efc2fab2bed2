// Package order implements the rental order lifecycle: reservation,
// payment, hand-over, return, cancellation and dispute settlement.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/item"
)

// Status is the lifecycle status of an order.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusConfirmed      Status = "confirmed"
	StatusInProgress     Status = "in_progress"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
	StatusDisputed       Status = "disputed"
)

// PaymentStatus tracks money collected for an order. It is independent of
// Status but only the lifecycle transitions change it.
type PaymentStatus string

const (
	PaymentNotPaid  PaymentStatus = "not_paid"
	PaymentPartial  PaymentStatus = "partial"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

// SystemActor cancels orders on behalf of the platform.
const SystemActor = "system"

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.Wrap(failure.ErrNotFound, "order")
	// ErrInsufficientPayment is returned when a payment is below the
	// configured minimum.
	ErrInsufficientPayment = errors.Wrap(failure.ErrInvalidArgument, "payment below required minimum")
	// ErrPaymentIncomplete is returned when starting a partially paid order
	// while partial starts are disabled.
	ErrPaymentIncomplete = errors.Wrap(failure.ErrInvalidStateTransition, "order not fully paid")
	// ErrNotParty is returned when the actor is neither renter nor owner.
	ErrNotParty = errors.Wrap(failure.ErrForbidden, "actor is not a party to the order")
	// ErrOwnItem is returned when an owner tries to rent their own item.
	ErrOwnItem = errors.Wrap(failure.ErrForbidden, "cannot rent own item")
	// ErrAlreadyReviewed is returned for a second review by the same author.
	ErrAlreadyReviewed = errors.Wrap(failure.ErrDuplicateOperation, "review already submitted")
	// ErrRefundTooLarge is returned when a refund exceeds the refundable
	// amount of the order.
	ErrRefundTooLarge = errors.Wrap(failure.ErrInvalidArgument, "refund exceeds refundable amount")
)

// ItemSnapshot freezes the item's listing at reservation time.
type ItemSnapshot struct {
	Title          string          `json:"title"`
	Images         []string        `json:"images,omitempty"`
	BasePrice      decimal.Decimal `json:"base_price"`
	PriceUnit      item.PriceUnit  `json:"price_unit"`
	DepositPerUnit decimal.Decimal `json:"deposit_per_unit"`
}

// ConditionReport is filed when the item is returned.
type ConditionReport struct {
	Condition  string          `json:"condition"`
	Notes      string          `json:"notes,omitempty"`
	DamageFee  decimal.Decimal `json:"damage_fee"`
	ReportedAt time.Time       `json:"reported_at"`
}

// Review is feedback left by a party after completion.
type Review struct {
	AuthorID  string    `json:"author_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Order is a reservation of UnitCount units of an item for [StartAt, EndAt).
type Order struct {
	ID        string
	RenterID  string
	OwnerID   string
	ItemID    string
	Snapshot  ItemSnapshot
	UnitCount int
	StartAt   time.Time
	EndAt     time.Time

	// BilledUnits is the rental duration in the item's price unit.
	BilledUnits    int
	Subtotal       decimal.Decimal
	DiscountCode   string
	DiscountAmount decimal.Decimal
	ServiceFee     decimal.Decimal
	DepositAmount  decimal.Decimal
	TotalAmount    decimal.Decimal

	AmountPaid     decimal.Decimal
	AmountRefunded decimal.Decimal
	PaymentRef     string
	PaymentStatus  PaymentStatus

	Status Status
	// DisputedFrom is the status the order had when a dispute was opened.
	DisputedFrom Status
	CancelReason string
	CancelledBy  string
	Condition    *ConditionReport
	Reviews      []Review

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HeldDeposit returns the part of the deposit covered by the payment.
func (o *Order) HeldDeposit() decimal.Decimal {
	rental := o.TotalAmount.Sub(o.DepositAmount)
	held := o.AmountPaid.Sub(rental)
	if held.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(held, o.DepositAmount)
}

// Refundable returns the captured amount not yet refunded.
func (o *Order) Refundable() decimal.Decimal {
	return o.AmountPaid.Sub(o.AmountRefunded)
}

// holdsCapacity reports whether the order's units are still reserved.
func holdsCapacity(s Status) bool {
	switch s {
	case StatusPendingPayment, StatusConfirmed, StatusInProgress:
		return true
	}
	return false
}

// Repository persists orders. GetForUpdate locks the order for the rest of
// the unit of work. Update fails with failure.ErrConcurrencyConflict when
// o.Version is stale and increments o.Version on success.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	ListByStatus(ctx context.Context, status Status, createdBefore time.Time, limit int) ([]Order, error)
}
