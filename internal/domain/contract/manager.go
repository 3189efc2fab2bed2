package contract

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/rentkart/internal/domain/txn"
)

// Manager issues, signs and closes contracts.
type Manager struct {
	repo   Repository
	runner txn.Runner
	retry  txn.Policy
	now    func() time.Time
}

// NewManager creates a contract Manager.
func NewManager(repo Repository, runner txn.Runner, retry txn.Policy) *Manager {
	return &Manager{repo: repo, runner: runner, retry: retry, now: time.Now}
}

// Issue creates the pending, unsigned contract for an order.
func (m *Manager) Issue(ctx context.Context, orderID, ownerID, renterID, content string) (*Contract, error) {
	now := m.now()
	c := &Contract{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		OwnerID:   ownerID,
		RenterID:  renterID,
		Content:   content,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.repo.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create contract")
	}
	return c, nil
}

// Get returns the contract of an order.
func (m *Manager) Get(ctx context.Context, orderID string) (*Contract, error) {
	return m.repo.GetByOrder(ctx, orderID)
}

// Sign records the signature of role. Signing twice is a no-op. The
// contract becomes active once both parties signed.
func (m *Manager) Sign(ctx context.Context, orderID string, role Role, signerID string) (*Contract, error) {
	if role != RoleOwner && role != RoleRenter {
		return nil, ErrUnknownRole
	}

	var out *Contract
	err := txn.Do(ctx, m.runner, m.retry, func(ctx context.Context) error {
		c, err := m.repo.GetByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if c.party(role) != signerID {
			return ErrWrongSigner
		}
		if c.signed(role) {
			out = c
			return nil
		}
		if c.Status == StatusCompleted {
			return ErrClosed
		}

		now := m.now()
		if role == RoleOwner {
			c.SignedByOwner = true
		} else {
			c.SignedByRenter = true
		}
		c.Signatures = append(c.Signatures, Signature{Role: role, SignerID: signerID, SignedAt: now})
		if c.SignedByOwner && c.SignedByRenter {
			c.advance(StatusActive)
		}
		c.UpdatedAt = now

		if err := m.repo.Update(ctx, c); err != nil {
			return errors.Wrap(err, "update contract")
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Contract signed",
		zap.String("order_id", orderID),
		zap.String("role", string(role)),
		zap.String("status", string(out.Status)),
	)
	return out, nil
}

// IsActive reports whether both parties signed the order's contract.
func (m *Manager) IsActive(ctx context.Context, orderID string) (bool, error) {
	c, err := m.repo.GetByOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	return c.SignedByOwner && c.SignedByRenter, nil
}

// Close marks the contract completed, signed or not. A closed contract
// accepts no further signatures. Closing a completed contract is a no-op.
func (m *Manager) Close(ctx context.Context, orderID string) error {
	c, err := m.repo.GetByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !c.advance(StatusCompleted) {
		return nil
	}
	c.UpdatedAt = m.now()
	return m.repo.Update(ctx, c)
}
