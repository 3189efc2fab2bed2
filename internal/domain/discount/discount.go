// Package discount validates and redeems discount codes against a rental
// subtotal.
package discount

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/rentkart/internal/domain/failure"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercent takes a percentage of the base amount, optionally capped.
	TypePercent Type = "percent"
	// TypeFixed takes a fixed amount, never more than the base amount.
	TypeFixed Type = "fixed"
)

// invalidError is a discount rejection reason. Every reason is also a
// failure.ErrDiscountInvalid.
type invalidError struct{ msg string }

func (e *invalidError) Error() string { return e.msg }

func (e *invalidError) Unwrap() error { return failure.ErrDiscountInvalid }

// Rejection reasons returned by Evaluator.
var (
	ErrNotFound          error = &invalidError{"discount code not found"}
	ErrInactive          error = &invalidError{"discount inactive"}
	ErrExpired           error = &invalidError{"discount expired"}
	ErrNotYetValid       error = &invalidError{"discount not yet valid"}
	ErrBelowMinimum      error = &invalidError{"order amount below discount minimum"}
	ErrScopeMismatch     error = &invalidError{"discount does not apply to this item"}
	ErrUsageLimitReached error = &invalidError{"discount usage limit reached"}
	ErrNotAllowed        error = &invalidError{"discount not available to this user"}
)

// Discount is a redeemable code.
type Discount struct {
	Code              string
	Type              Type
	Value             decimal.Decimal
	MaxDiscountAmount decimal.NullDecimal
	MinOrderAmount    decimal.NullDecimal
	StartAt           time.Time
	EndAt             time.Time
	// UsageLimit of zero means unlimited.
	UsageLimit   int
	UsedCount    int
	OwnerID      string
	ItemID       string
	Active       bool
	IsPublic     bool
	AllowedUsers []string
	Description  string
}

// Allows reports whether userID may redeem a non-public discount.
func (d *Discount) Allows(userID string) bool {
	return d.IsPublic || slices.Contains(d.AllowedUsers, userID)
}

// Exhausted reports whether the usage limit has been reached.
func (d *Discount) Exhausted() bool {
	return d.UsageLimit > 0 && d.UsedCount >= d.UsageLimit
}

// NormalizeCode canonicalizes a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Request describes the order a code is evaluated against.
type Request struct {
	Code       string
	BaseAmount decimal.Decimal
	UserID     string
	OwnerID    string
	ItemID     string
}

// Result is the outcome of a successful evaluation.
type Result struct {
	Amount   decimal.Decimal
	Discount Discount
}

// Repository provides lookup and usage accounting for discounts.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Discount, error)
	// IncrementUsage bumps UsedCount by one unless the usage limit is
	// already reached, in which case it returns ErrUsageLimitReached. The
	// check and the increment are a single atomic step.
	IncrementUsage(ctx context.Context, code string) (*Discount, error)
	Upsert(ctx context.Context, d *Discount) error
}
