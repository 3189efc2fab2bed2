package memory

import (
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/rentkart/internal/domain/contract"
	"github.com/xenking/rentkart/internal/domain/failure"
)

var _ contract.Repository = (*ContractRepository)(nil)

// ContractRepository implements contract.Repository on a Store.
type ContractRepository struct{ s *Store }

func copyContract(c *contract.Contract) *contract.Contract {
	cp := *c
	cp.Signatures = slices.Clone(c.Signatures)
	return &cp
}

func (r *ContractRepository) Create(ctx context.Context, c *contract.Contract) error {
	st, done := r.s.view(ctx)
	defer done()

	if _, ok := st.contracts[c.OrderID]; ok {
		return errors.Wrapf(failure.ErrDuplicateOperation, "order %s already has a contract", c.OrderID)
	}
	st.contracts[c.OrderID] = copyContract(c)
	return nil
}

func (r *ContractRepository) GetByOrder(ctx context.Context, orderID string) (*contract.Contract, error) {
	st, done := r.s.view(ctx)
	defer done()

	c, ok := st.contracts[orderID]
	if !ok {
		return nil, contract.ErrNotFound
	}
	return copyContract(c), nil
}

func (r *ContractRepository) Update(ctx context.Context, c *contract.Contract) error {
	st, done := r.s.view(ctx)
	defer done()

	cur, ok := st.contracts[c.OrderID]
	if !ok {
		return contract.ErrNotFound
	}
	if cur.Version != c.Version {
		return errors.Wrapf(failure.ErrConcurrencyConflict, "contract %s", c.ID)
	}
	c.Version++
	st.contracts[c.OrderID] = copyContract(c)
	return nil
}
