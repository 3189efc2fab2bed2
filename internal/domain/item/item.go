// Package item describes rentable listings and their reservable capacity.
package item

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/rentkart/internal/domain/failure"
)

// PriceUnit is the time unit an item's base price is quoted in.
type PriceUnit string

const (
	PerHour  PriceUnit = "hour"
	PerDay   PriceUnit = "day"
	PerWeek  PriceUnit = "week"
	PerMonth PriceUnit = "month"
)

// Duration returns the length of one price unit. A month is billed as 30 days.
func (u PriceUnit) Duration() (time.Duration, error) {
	switch u {
	case PerHour:
		return time.Hour, nil
	case PerDay:
		return 24 * time.Hour, nil
	case PerWeek:
		return 7 * 24 * time.Hour, nil
	case PerMonth:
		return 30 * 24 * time.Hour, nil
	default:
		return 0, errors.Wrapf(failure.ErrInvalidArgument, "unknown price unit %q", u)
	}
}

// Status is the listing status of an item.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusRented      Status = "rented"
	StatusMaintenance Status = "maintenance"
	StatusUnavailable Status = "unavailable"
)

var (
	// ErrNotFound is returned when an item does not exist or was deleted.
	ErrNotFound = errors.Wrap(failure.ErrNotFound, "item")
	// ErrNotRentable is returned when an item is in maintenance or withdrawn.
	ErrNotRentable = errors.Wrap(failure.ErrCapacityExceeded, "item not rentable")
)

// Item is a rentable listing. Its units are fungible: an order reserves a
// number of units, not a specific instance.
type Item struct {
	ID                string
	OwnerID           string
	Title             string
	Images            []string
	BasePrice         decimal.Decimal
	PriceUnit         PriceUnit
	DepositPerUnit    decimal.Decimal
	Quantity          int
	AvailableQuantity int
	Status            Status
	Deleted           bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Rentable reports whether new reservations may be placed on the item.
func (i *Item) Rentable() bool {
	if i.Deleted {
		return false
	}
	return i.Status == StatusAvailable || i.Status == StatusRented
}

// StatusFor returns the listing status implied by an available unit count,
// leaving maintenance and withdrawn listings untouched.
func (i *Item) StatusFor(available int) Status {
	if i.Status != StatusAvailable && i.Status != StatusRented {
		return i.Status
	}
	if available == 0 {
		return StatusRented
	}
	return StatusAvailable
}

// Repository provides item lookup and capacity mutation. Reserve and
// Release are atomic against concurrent callers for the same item.
type Repository interface {
	Get(ctx context.Context, id string) (*Item, error)
	Create(ctx context.Context, item *Item) error
	// Reserve decrements the available quantity by units or fails with
	// failure.ErrCapacityExceeded leaving the item unchanged.
	Reserve(ctx context.Context, id string, units int) (*Item, error)
	// Release returns units to the pool, never exceeding Quantity.
	Release(ctx context.Context, id string, units int) (*Item, error)
}
