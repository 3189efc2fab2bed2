// Package failure defines the error kinds shared by every domain package.
//
// Domain packages return their own sentinels and typed errors, all of which
// unwrap to one of the kinds below, so callers can branch on
// errors.Is(err, failure.ErrNotFound) without knowing which component failed.
package failure

import "github.com/go-faster/errors"

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStateTransition is returned when a lifecycle event is not
	// allowed from the entity's current state.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrCapacityExceeded is returned when an item has fewer available units
	// than requested.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrInvalidWindow is returned when a rental window is empty or inverted.
	ErrInvalidWindow = errors.New("invalid rental window")
	// ErrDiscountInvalid is the umbrella kind for every discount rejection.
	ErrDiscountInvalid = errors.New("discount invalid")
	// ErrContractNotSigned is returned when a rental is started before both
	// parties signed the contract.
	ErrContractNotSigned = errors.New("contract not signed")
	// ErrDuplicateOperation is returned when an idempotency key is reused
	// with a different payload.
	ErrDuplicateOperation = errors.New("duplicate operation")
	// ErrProviderFailure is returned when the payment provider call failed.
	// Retrying with the same idempotency key is always safe.
	ErrProviderFailure = errors.New("payment provider failure")
	// ErrConcurrencyConflict is returned when a concurrent writer won the
	// race for the same entity. The caller should retry.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrInvalidArgument is returned for malformed input such as a
	// non-positive unit count or a negative amount.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrForbidden is returned when the actor is not a party to the entity
	// it tries to mutate.
	ErrForbidden = errors.New("forbidden")
)

// Retryable reports whether the core may transparently retry an operation
// that failed with err.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrProviderFailure)
}
