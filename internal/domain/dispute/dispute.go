// Package dispute handles disagreements between renter and owner about an
// order and settles them exactly once.
package dispute

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/order"
)

// Status of a dispute. Resolved and Rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusReviewed Status = "reviewed"
	StatusResolved Status = "resolved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further changes are possible.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusRejected
}

var (
	// ErrNotFound is returned when a dispute does not exist.
	ErrNotFound = errors.Wrap(failure.ErrNotFound, "dispute")
	// ErrOrderNotDisputable is returned when the order is not confirmed,
	// in progress or completed.
	ErrOrderNotDisputable = errors.Wrap(failure.ErrInvalidStateTransition, "order not disputable")
	// ErrDuplicateDispute is returned when the order already has an
	// unresolved dispute.
	ErrDuplicateDispute = errors.Wrap(failure.ErrDuplicateOperation, "order already has an open dispute")
)

// StatusError is returned when an action is not allowed from the
// dispute's current status.
type StatusError struct {
	DisputeID string
	From      Status
	Action    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dispute %s: cannot %s from %s", e.DisputeID, e.Action, e.From)
}

func (e *StatusError) Unwrap() error {
	return failure.ErrInvalidStateTransition
}

// Resolution is the stored outcome of a resolved dispute.
type Resolution struct {
	Decision     order.Decision
	RefundAmount decimal.Decimal
	Note         string
}

// Dispute is a complaint about one order.
type Dispute struct {
	ID         string
	OrderID    string
	ReporterID string
	ReportedID string
	Reason     string
	Status     Status
	ReviewNote string
	Resolution *Resolution
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ClosedAt   time.Time
}

// Repository persists disputes. FindOpenByOrder returns the order's
// pending or reviewed dispute, or ErrNotFound.
type Repository interface {
	Create(ctx context.Context, d *Dispute) error
	Get(ctx context.Context, id string) (*Dispute, error)
	GetForUpdate(ctx context.Context, id string) (*Dispute, error)
	Update(ctx context.Context, d *Dispute) error
	FindOpenByOrder(ctx context.Context, orderID string) (*Dispute, error)
}
