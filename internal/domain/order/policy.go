package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/rentkart/internal/domain/txn"
)

// Policy holds the marketplace rules applied by the lifecycle.
type Policy struct {
	// ServiceFeePercent is charged on the discounted subtotal.
	ServiceFeePercent decimal.Decimal
	// MinPaymentRatio is the share of the rental amount (total minus
	// deposit) a payment must cover to confirm an order.
	MinPaymentRatio decimal.Decimal
	// AllowUnsignedStart lets a rental start before both parties signed.
	AllowUnsignedStart bool
	// AllowPartialStart lets a partially paid rental start.
	AllowPartialStart bool
	// FullRefundNotice is how long before the start a renter may cancel
	// with a full refund.
	FullRefundNotice time.Duration
	// PartialRefundPercent of the rental amount is refunded on late renter
	// cancellations. The held deposit is always returned.
	PartialRefundPercent decimal.Decimal
	// PaymentTimeout is how long an order may wait for payment.
	PaymentTimeout time.Duration

	Retry txn.Policy
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		ServiceFeePercent:    decimal.Zero,
		MinPaymentRatio:      decimal.NewFromInt(1),
		AllowUnsignedStart:   false,
		AllowPartialStart:    true,
		FullRefundNotice:     48 * time.Hour,
		PartialRefundPercent: decimal.NewFromInt(50),
		PaymentTimeout:       30 * time.Minute,
		Retry:                txn.DefaultPolicy(),
	}
}

// cancelRefund returns how much of the captured payment goes back to the
// renter when o is cancelled by actorRole at now.
func (p Policy) cancelRefund(o *Order, actorRole string, now time.Time) decimal.Decimal {
	held := o.HeldDeposit()
	rental := o.Refundable().Sub(held)
	if rental.IsNegative() {
		rental = decimal.Zero
	}

	pct := hundred
	if actorRole == roleRenter && o.StartAt.Sub(now) < p.FullRefundNotice {
		pct = p.PartialRefundPercent
	}
	return held.Add(percentOf(rental, pct))
}
