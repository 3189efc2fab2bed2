// Package payment provides payment provider adapters for the ledger.
package payment

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/rentkart/internal/domain/ledger"
)

var (
	// ErrUnknownCharge is returned when a refund references no charge.
	ErrUnknownCharge = errors.New("unknown charge")
	// ErrRefundExceedsCharge is returned when refunds would exceed the
	// charged amount.
	ErrRefundExceedsCharge = errors.New("refund exceeds charge")
	// ErrDeclined is returned for injected failures.
	ErrDeclined = errors.New("payment declined")
)

var _ ledger.Provider = (*Sandbox)(nil)

type charge struct {
	userID   string
	amount   decimal.Decimal
	refunded decimal.Decimal
}

// Sandbox is an in-process payment provider. It keeps charges in memory,
// deduplicates calls by idempotency key and can be told to fail.
type Sandbox struct {
	mu       sync.Mutex
	charges  map[string]*charge
	byKey    map[string]string
	refunds  map[string]bool
	failNext int
}

// NewSandbox creates an empty Sandbox.
func NewSandbox() *Sandbox {
	return &Sandbox{
		charges: make(map[string]*charge),
		byKey:   make(map[string]string),
		refunds: make(map[string]bool),
	}
}

// FailNext makes the next n calls fail with ErrDeclined.
func (s *Sandbox) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

func (s *Sandbox) injected() bool {
	if s.failNext > 0 {
		s.failNext--
		return true
	}
	return false
}

// Charge captures amount from userID.
func (s *Sandbox) Charge(_ context.Context, userID string, amount decimal.Decimal, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[key]; ok {
		return id, nil
	}
	if s.injected() {
		return "", ErrDeclined
	}

	id := "ch_" + uuid.New().String()
	s.charges[id] = &charge{userID: userID, amount: amount}
	s.byKey[key] = id
	return id, nil
}

// Refund returns amount of a previous charge.
func (s *Sandbox) Refund(_ context.Context, chargeID string, amount decimal.Decimal, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refunds[key] {
		return nil
	}
	if s.injected() {
		return ErrDeclined
	}

	c, ok := s.charges[chargeID]
	if !ok {
		return errors.Wrap(ErrUnknownCharge, chargeID)
	}
	if c.refunded.Add(amount).GreaterThan(c.amount) {
		return errors.Wrapf(ErrRefundExceedsCharge, "charge %s", chargeID)
	}
	c.refunded = c.refunded.Add(amount)
	s.refunds[key] = true
	return nil
}

// Captured returns the amount charged and not refunded for chargeID.
func (s *Sandbox) Captured(chargeID string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.charges[chargeID]
	if !ok {
		return decimal.Zero
	}
	return c.amount.Sub(c.refunded)
}
