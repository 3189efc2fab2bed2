// Package contract manages the two-party rental agreement attached to
// every order.
package contract

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/rentkart/internal/domain/failure"
)

// Role identifies which party signs.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleRenter Role = "renter"
)

// Status of a contract. It only moves forward.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

var rank = map[Status]int{
	StatusPending:   0,
	StatusActive:    1,
	StatusCompleted: 2,
}

var (
	// ErrNotFound is returned when an order has no contract.
	ErrNotFound = errors.Wrap(failure.ErrNotFound, "contract")
	// ErrUnknownRole is returned for a role other than owner or renter.
	ErrUnknownRole = errors.Wrap(failure.ErrInvalidArgument, "unknown signer role")
	// ErrWrongSigner is returned when the signer is not the party the
	// role belongs to.
	ErrWrongSigner = errors.Wrap(failure.ErrForbidden, "signer does not hold role")
	// ErrClosed is returned when signing a contract that was closed
	// without the signature.
	ErrClosed = errors.Wrap(failure.ErrInvalidStateTransition, "contract already completed")
)

// Signature is one party's acceptance of the contract.
type Signature struct {
	Role     Role
	SignerID string
	SignedAt time.Time
}

// Contract is the agreement between owner and renter for one order.
type Contract struct {
	ID             string
	OrderID        string
	OwnerID        string
	RenterID       string
	Content        string
	SignedByOwner  bool
	SignedByRenter bool
	Signatures     []Signature
	Status         Status
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// signed reports whether role already signed.
func (c *Contract) signed(role Role) bool {
	if role == RoleOwner {
		return c.SignedByOwner
	}
	return c.SignedByRenter
}

func (c *Contract) party(role Role) string {
	if role == RoleOwner {
		return c.OwnerID
	}
	return c.RenterID
}

// advance moves the contract to to unless it is already at or past it.
func (c *Contract) advance(to Status) bool {
	if rank[to] <= rank[c.Status] {
		return false
	}
	c.Status = to
	return true
}

// Repository persists contracts. Update fails with
// failure.ErrConcurrencyConflict when c.Version is stale and increments
// c.Version on success.
type Repository interface {
	Create(ctx context.Context, c *Contract) error
	GetByOrder(ctx context.Context, orderID string) (*Contract, error)
	Update(ctx context.Context, c *Contract) error
}
