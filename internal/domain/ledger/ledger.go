// Package ledger records money movements as an append-only, per-user chain
// of signed entries.
package ledger

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/rentkart/internal/domain/failure"
)

// Type classifies a ledger entry.
type Type string

const (
	TypePayment    Type = "payment"
	TypeRefund     Type = "refund"
	TypeDeposit    Type = "deposit"
	TypeWithdrawal Type = "withdrawal"
	TypeFee        Type = "fee"
	TypeReward     Type = "reward"
)

// Status is the settlement status of an entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ErrNotFound is returned when no entry matches a lookup.
var ErrNotFound = errors.Wrap(failure.ErrNotFound, "ledger entry")

// Transaction is one signed money movement for a user. Positive amounts
// debit the user (payments, fees), negative amounts credit the user
// (refunds).
type Transaction struct {
	ID             string
	Seq            int64
	UserID         string
	OrderID        string
	Type           Type
	Amount         decimal.Decimal
	Status         Status
	BalanceAfter   decimal.Decimal
	IdempotencyKey string
	ProviderRef    string
	FailureReason  string
	CreatedAt      time.Time
	SettledAt      time.Time
}

// Entry is a request to post a transaction.
type Entry struct {
	UserID         string
	OrderID        string
	Type           Type
	Amount         decimal.Decimal
	IdempotencyKey string
	// ChargeRef is the provider transaction a refund is issued against.
	ChargeRef string
}

func (e Entry) validate() error {
	switch {
	case e.UserID == "":
		return errors.Wrap(failure.ErrInvalidArgument, "user id required")
	case e.IdempotencyKey == "":
		return errors.Wrap(failure.ErrInvalidArgument, "idempotency key required")
	case e.Amount.IsZero():
		return errors.Wrap(failure.ErrInvalidArgument, "amount must be non-zero")
	}

	switch e.Type {
	case TypePayment, TypeFee:
		if e.Amount.IsNegative() {
			return errors.Wrapf(failure.ErrInvalidArgument, "%s amount must be positive", e.Type)
		}
	case TypeRefund:
		if e.Amount.IsPositive() {
			return errors.Wrap(failure.ErrInvalidArgument, "refund amount must be negative")
		}
		if e.ChargeRef == "" {
			return errors.Wrap(failure.ErrInvalidArgument, "refund requires a charge reference")
		}
	case TypeDeposit, TypeWithdrawal, TypeReward:
	default:
		return errors.Wrapf(failure.ErrInvalidArgument, "unknown entry type %q", e.Type)
	}
	return nil
}

// matches reports whether t was posted for the same request as e.
func (t *Transaction) matches(e Entry) bool {
	return t.UserID == e.UserID &&
		t.OrderID == e.OrderID &&
		t.Type == e.Type &&
		t.Amount.Equal(e.Amount)
}

// Repository persists ledger entries. Entries of a user are ordered by Seq.
type Repository interface {
	// LockAccount serializes postings for userID until the surrounding
	// unit of work ends.
	LockAccount(ctx context.Context, userID string) error
	FindByKey(ctx context.Context, key string) (*Transaction, error)
	// Balance returns BalanceAfter of the user's latest completed entry,
	// or zero.
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	// Create inserts t and assigns t.Seq.
	Create(ctx context.Context, t *Transaction) error
	// Reopen moves a failed entry back to pending with a fresh sequence
	// number so a retried posting lands at the end of the user's chain.
	Reopen(ctx context.Context, t *Transaction) error
	Update(ctx context.Context, t *Transaction) error
	ListByUser(ctx context.Context, userID string) ([]Transaction, error)
	ListByOrder(ctx context.Context, orderID string) ([]Transaction, error)
}

// Provider is the external payment processor. Both calls are idempotent
// per key.
type Provider interface {
	Charge(ctx context.Context, userID string, amount decimal.Decimal, key string) (providerTxID string, err error)
	Refund(ctx context.Context, providerTxID string, amount decimal.Decimal, key string) error
}

// ProviderError wraps a failed payment provider call.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return "provider " + e.Op + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() []error {
	return []error{failure.ErrProviderFailure, e.Err}
}
